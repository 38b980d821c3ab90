package watch

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeViewport struct {
	rows         []Row
	header       int
	headerHeight int
	hasHeader    bool
	offset       int
	height       int
}

func (f *fakeViewport) Rows() []Row { return f.rows }
func (f *fakeViewport) Header() (int, int, bool) {
	return f.header, f.headerHeight, f.hasHeader
}
func (f *fakeViewport) ScrollOffset() int { return f.offset }
func (f *fakeViewport) Height() int       { return f.height }

type fakeEvents struct {
	mu      sync.Mutex
	scroll  []func()
	resize  []func()
	unbinds int
}

func (f *fakeEvents) OnScroll(fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scroll = append(f.scroll, fn)
	return f.unbind
}

func (f *fakeEvents) OnResize(fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resize = append(f.resize, fn)
	return f.unbind
}

func (f *fakeEvents) unbind() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unbinds++
}

func (f *fakeEvents) fireScroll() {
	for _, fn := range f.scroll {
		fn()
	}
}

func (f *fakeEvents) fireResize() {
	for _, fn := range f.resize {
		fn()
	}
}

// manualScheduler queues callbacks until the test ticks.
type manualScheduler struct {
	queued []func()
	stops  int
}

func (m *manualScheduler) Schedule(_ time.Duration, fn func()) func() {
	m.queued = append(m.queued, fn)
	return func() { m.stops++ }
}

func (m *manualScheduler) tick() {
	q := m.queued
	m.queued = nil
	for _, fn := range q {
		fn()
	}
}

// seqLookup is a backing sequence with ids "0".."n-1".
type seqLookup int

func (s seqLookup) IndexOf(id string) int {
	i, err := strconv.Atoi(id)
	if err != nil || i < 0 || i >= int(s) {
		return -1
	}
	return i
}

func (s seqLookup) Len() int { return int(s) }

type recorder struct {
	windows [][2]int
	changes []changeCall
}

type changeCall struct {
	ids    []string
	header bool
}

func (r *recorder) SetWindow(start, end int) { r.windows = append(r.windows, [2]int{start, end}) }

func (r *recorder) onChange(ids []string, header bool) {
	r.changes = append(r.changes, changeCall{ids: ids, header: header})
}

func rowsFrom(first, last, rowHeight, top int) []Row {
	var rows []Row
	for i := first; i <= last; i++ {
		rows = append(rows, Row{ID: strconv.Itoa(i), Top: top + (i-first)*rowHeight, Height: rowHeight})
	}
	return rows
}

func newController(t *testing.T, vp Viewport, lookup Lookup) (*Controller, *fakeEvents, *manualScheduler, *recorder) {
	t.Helper()
	ev := &fakeEvents{}
	sched := &manualScheduler{}
	rec := &recorder{}
	c, err := New(Config{
		Viewport:  vp,
		Events:    ev,
		Scheduler: sched,
		Lookup:    lookup,
		Target:    rec,
		OnChange:  rec.onChange,
		RowHeight: 2,
	})
	require.NoError(t, err)
	return c, ev, sched, rec
}

func TestRecompute_VisibleIdentifiers(t *testing.T) {
	vp := &fakeViewport{rows: rowsFrom(30, 45, 2, 0), height: 32}
	c, _, _, rec := newController(t, vp, seqLookup(100))

	v := c.Recompute()
	assert.Equal(t, 30, v.Start)
	assert.Equal(t, 45, v.End)
	assert.False(t, v.Estimated)
	require.Len(t, rec.windows, 1)
	assert.Equal(t, [2]int{30, 45}, rec.windows[0])
	require.Len(t, rec.changes, 1)
	assert.Len(t, rec.changes[0].ids, 16)
	assert.Equal(t, "30", rec.changes[0].ids[0])
}

func TestRecompute_SkipsRowsOutsideViewport(t *testing.T) {
	// rows 28 and 29 are above the top edge, 46 starts at the bottom edge
	vp := &fakeViewport{rows: rowsFrom(28, 46, 2, -4), height: 32}
	c, _, _, rec := newController(t, vp, seqLookup(100))

	c.Recompute()
	assert.Equal(t, [2]int{30, 45}, rec.windows[0])
}

func TestRecompute_PartiallyVisibleRowCounts(t *testing.T) {
	vp := &fakeViewport{rows: rowsFrom(29, 45, 2, -1), height: 32}
	c, _, _, rec := newController(t, vp, seqLookup(100))

	c.Recompute()
	assert.Equal(t, [2]int{29, 45}, rec.windows[0])
}

func TestRecompute_EstimatesFromOffset(t *testing.T) {
	vp := &fakeViewport{
		rows:   []Row{{Top: 0, Height: 2}, {Top: 2, Height: 2}},
		offset: 200,
		height: 40,
	}
	c, _, _, rec := newController(t, vp, seqLookup(1000))

	v := c.Recompute()
	assert.True(t, v.Estimated)
	assert.Empty(t, v.IDs)
	assert.Equal(t, [2]int{100, 120}, rec.windows[0])
}

func TestRecompute_UnknownIdentifierFallsBackToEstimate(t *testing.T) {
	vp := &fakeViewport{rows: []Row{{ID: "stale", Top: 0, Height: 2}}, offset: 10, height: 10}
	c, _, _, rec := newController(t, vp, seqLookup(50))

	v := c.Recompute()
	assert.True(t, v.Estimated)
	assert.Equal(t, [2]int{5, 10}, rec.windows[0])
}

func TestRecompute_EmptySequenceWritesNothing(t *testing.T) {
	vp := &fakeViewport{height: 20, header: 0, hasHeader: true}
	c, _, _, rec := newController(t, vp, seqLookup(0))

	v := c.Recompute()
	assert.False(t, v.Ranged)
	assert.Empty(t, rec.windows)
	require.Len(t, rec.changes, 1, "observers still hear about the measurement")
	assert.True(t, rec.changes[0].header)
}

func TestRecompute_HeaderVisibility(t *testing.T) {
	tests := []struct {
		name      string
		top       int
		hasHeader bool
		want      bool
	}{
		{"at top", 0, true, true},
		{"inside", 5, true, true},
		{"partly scrolled", -1, true, true},
		{"last line only", -2, true, true},
		{"scrolled away", -3, true, false},
		{"below bottom", 20, true, false},
		{"no header", 0, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vp := &fakeViewport{
				rows:         rowsFrom(0, 3, 2, 4),
				height:       20,
				header:       tt.top,
				headerHeight: 3,
				hasHeader:    tt.hasHeader,
			}
			c, _, _, rec := newController(t, vp, seqLookup(10))
			c.Recompute()
			assert.Equal(t, tt.want, rec.changes[0].header)
		})
	}
}

func TestEvents_CoalescedPerTick(t *testing.T) {
	vp := &fakeViewport{rows: rowsFrom(0, 9, 2, 0), height: 20}
	_, ev, sched, rec := newController(t, vp, seqLookup(10))

	ev.fireScroll()
	ev.fireScroll()
	ev.fireResize()
	assert.Len(t, sched.queued, 1)
	assert.Empty(t, rec.changes, "nothing runs before the tick")

	sched.tick()
	assert.Len(t, rec.changes, 1)

	ev.fireScroll()
	sched.tick()
	assert.Len(t, rec.changes, 2)
}

func TestClose_Idempotent(t *testing.T) {
	vp := &fakeViewport{rows: rowsFrom(0, 9, 2, 0), height: 20}
	c, ev, sched, rec := newController(t, vp, seqLookup(10))

	ev.fireScroll()
	c.Close()
	c.Close()
	assert.Equal(t, 2, ev.unbinds)
	assert.Equal(t, 1, sched.stops)

	sched.tick()
	ev.fireScroll()
	assert.Empty(t, rec.changes)
	assert.Empty(t, sched.queued)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Events: &fakeEvents{}, Lookup: seqLookup(1)})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{Viewport: &fakeViewport{}, Lookup: seqLookup(1)})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{Viewport: &fakeViewport{}, Events: &fakeEvents{}})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestTimerScheduler_Runs(t *testing.T) {
	done := make(chan struct{})
	TimerScheduler{}.Schedule(time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduled func did not run")
	}
}
