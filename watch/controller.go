// Package watch turns scroll and resize activity on a rendered list into
// window requests for a chunks.Array.
package watch

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Row is one rendered row. Top is relative to the viewport top and may be
// negative for rows scrolled partially out. Placeholder rows have no ID.
type Row struct {
	ID     string
	Top    int
	Height int
}

// Viewport is the read side of a rendered list.
type Viewport interface {
	// Rows returns the rows currently rendered, in display order.
	Rows() []Row
	// Header returns the top of the header sentinel relative to the viewport
	// top and its height in lines. ok is false when the list has no header.
	Header() (top, height int, ok bool)
	// ScrollOffset is the distance from the start sentinel to the viewport top.
	ScrollOffset() int
	Height() int
}

// EventSource delivers scroll and resize notifications. The returned funcs
// unregister the listener.
type EventSource interface {
	OnScroll(fn func()) (cancel func())
	OnResize(fn func()) (cancel func())
}

// Scheduler runs fn once after d. stop prevents a run that has not started.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) (stop func())
}

// Lookup maps identifiers to logical indices.
type Lookup interface {
	IndexOf(id string) int
	Len() int
}

// Target receives the computed window.
type Target interface {
	SetWindow(start, end int)
}

// TargetFunc adapts a function to Target.
type TargetFunc func(start, end int)

func (f TargetFunc) SetWindow(start, end int) { f(start, end) }

// TimerScheduler schedules on time.AfterFunc goroutines.
type TimerScheduler struct{}

func (TimerScheduler) Schedule(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

const (
	DefaultInterval  = 16 * time.Millisecond
	DefaultRowHeight = 1
)

var ErrInvalidConfig = errors.New("watch: invalid config")

type Config struct {
	Viewport  Viewport
	Events    EventSource
	Scheduler Scheduler
	Lookup    Lookup
	Target    Target
	// OnChange runs once per recomputation with the visible identifiers.
	OnChange  func(ids []string, headerVisible bool)
	RowHeight int
	Interval  time.Duration
	Logger    *slog.Logger
}

// Visible is the outcome of one measurement.
type Visible struct {
	IDs           []string
	HeaderVisible bool
	// Start and End are the first and last visible logical indices. They
	// are meaningful only when Ranged is set.
	Start, End int
	Ranged     bool
	// Estimated is set when the range came from the scroll offset because
	// no identified row was on screen.
	Estimated bool
}

// Controller measures the viewport on scroll and resize and forwards the
// visible range to its target. At most one recomputation is pending at a
// time.
type Controller struct {
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	pending bool
	stop    func()
	unbind  []func()
	closed  bool
	last    Visible
}

func New(cfg Config) (*Controller, error) {
	switch {
	case cfg.Viewport == nil:
		return nil, fmt.Errorf("%w: viewport is required", ErrInvalidConfig)
	case cfg.Events == nil:
		return nil, fmt.Errorf("%w: event source is required", ErrInvalidConfig)
	case cfg.Lookup == nil:
		return nil, fmt.Errorf("%w: lookup is required", ErrInvalidConfig)
	case cfg.RowHeight < 0:
		return nil, fmt.Errorf("%w: row height %d", ErrInvalidConfig, cfg.RowHeight)
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = TimerScheduler{}
	}
	if cfg.RowHeight == 0 {
		cfg.RowHeight = DefaultRowHeight
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Controller{cfg: cfg, log: log}
	c.unbind = []func(){
		cfg.Events.OnScroll(c.Trigger),
		cfg.Events.OnResize(c.Trigger),
	}
	return c, nil
}

// Trigger schedules a recomputation unless one is already pending.
func (c *Controller) Trigger() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.pending {
		return
	}
	c.pending = true
	c.stop = c.cfg.Scheduler.Schedule(c.cfg.Interval, c.fire)
}

func (c *Controller) fire() {
	c.mu.Lock()
	c.pending = false
	c.stop = nil
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	c.Recompute()
}

// Recompute measures the viewport, reports the visible identifiers and
// moves the target window.
func (c *Controller) Recompute() Visible {
	v := c.measure()

	c.mu.Lock()
	c.last = v
	c.mu.Unlock()

	if c.cfg.OnChange != nil {
		c.cfg.OnChange(v.IDs, v.HeaderVisible)
	}
	if v.Ranged && c.cfg.Target != nil {
		c.log.Debug("watch: window", "start", v.Start, "end", v.End, "estimated", v.Estimated)
		c.cfg.Target.SetWindow(v.Start, v.End)
	}
	return v
}

// Last returns the most recent measurement.
func (c *Controller) Last() Visible {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func (c *Controller) measure() Visible {
	vp := c.cfg.Viewport
	height := vp.Height()

	var v Visible
	for _, r := range vp.Rows() {
		if r.ID == "" || r.Top >= height || r.Top+max(r.Height, 1) <= 0 {
			continue
		}
		v.IDs = append(v.IDs, r.ID)
	}
	// any line of the header on screen counts
	if top, hh, ok := vp.Header(); ok {
		v.HeaderVisible = top < height && top+max(hh, 1) > 0
	}

	if len(v.IDs) > 0 {
		first := c.cfg.Lookup.IndexOf(v.IDs[0])
		last := c.cfg.Lookup.IndexOf(v.IDs[len(v.IDs)-1])
		if first >= 0 {
			v.Start, v.End, v.Ranged = first, max(last, first), true
			return v
		}
	}
	if c.cfg.Lookup.Len() == 0 {
		return v
	}
	offset := max(vp.ScrollOffset(), 0)
	v.Start = offset / c.cfg.RowHeight
	v.End = (offset + height) / c.cfg.RowHeight
	v.Ranged, v.Estimated = true, true
	return v
}

// Close unbinds the listeners and drops a pending recomputation. It is safe
// to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	stop := c.stop
	unbind := c.unbind
	c.stop, c.unbind = nil, nil
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	for _, fn := range unbind {
		fn()
	}
}
