package chunks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
)

// Config configures an Array. Fetch is required.
type Config[T Record] struct {
	Fetch       FetchFunc[T]
	StartIndex  int
	EndIndex    int
	IndexMargin int
	// Less imposes a final order on the materialized span, for collaborators
	// whose chunks are not naturally ordered. Optional; cmp.Compare convention.
	Less   func(a, b T) int
	Logger *slog.Logger
}

type lane struct {
	busy     bool
	deferred bool
	waiters  []*Load
}

type job[T Record] struct {
	dir    Direction
	cursor Cursor
	size   int
	offset int
	at     int // logical index of the first record
	load   *Load
}

type subscriber struct {
	id int
	fn func(Change)
}

// Array is a windowed sequence over a server-side result set. It is safe for
// concurrent use.
type Array[T Record] struct {
	fetch FetchFunc[T]
	less  func(a, b T) int
	log   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries []Entry[T]
	ids     map[string]int
	start   int
	end     int
	margin  int
	total   int // -1 until known

	fwd     lane
	bwd     lane
	jumping bool
	jumpDir Direction
	initial *Load

	subs    []subscriber
	nextSub int
	closed  bool
}

// New creates an array and starts the initial fetch for
// [max(0, StartIndex-IndexMargin), EndIndex+IndexMargin).
func New[T Record](cfg Config[T]) (*Array[T], error) {
	if cfg.Fetch == nil {
		return nil, fmt.Errorf("%w: fetch is required", ErrInvalidConfig)
	}
	if cfg.StartIndex < 0 || cfg.EndIndex < cfg.StartIndex {
		return nil, fmt.Errorf("%w: window [%d, %d)", ErrInvalidConfig, cfg.StartIndex, cfg.EndIndex)
	}
	if cfg.IndexMargin < 0 {
		return nil, fmt.Errorf("%w: negative margin %d", ErrInvalidConfig, cfg.IndexMargin)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Array[T]{
		fetch:  cfg.Fetch,
		less:   cfg.Less,
		log:    logger,
		ctx:    ctx,
		cancel: cancel,
		ids:    make(map[string]int),
		start:  cfg.StartIndex,
		end:    cfg.EndIndex,
		margin: cfg.IndexMargin,
		total:  -1,
	}

	a.mu.Lock()
	ws, we := a.wanted()
	a.grow(we)
	if ws >= we {
		a.initial = settledLoad(nil)
		a.mu.Unlock()
		return a, nil
	}
	j := a.startJob(DirInitial, nil, we-ws, ws, ws, nil)
	a.initial = j.load
	a.mu.Unlock()

	a.launch(j)
	return a, nil
}

// InitialLoad returns the handle of the first fetch.
func (a *Array[T]) InitialLoad() *Load {
	return a.initial
}

// SetWindow moves the requested window to [start, end). Placeholders are
// added synchronously; missing ranges are fetched in the background. The
// returned load settles when every fetch issued or deferred by this call has
// settled. A window that is already materialized issues nothing.
func (a *Array[T]) SetWindow(start, end int) *Load {
	start = max(start, 0)
	end = max(end, start)

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return settledLoad(ErrClosed)
	}
	a.start, a.end = start, end
	ws, we := a.wanted()
	before := len(a.entries)
	a.grow(we)
	trimmed := a.trim()

	var sink []*Load
	jobs := a.plan(&sink)

	var subs []subscriber
	change := Change{From: ws, To: we, Len: a.length()}
	if len(a.entries) != before || trimmed > 0 || len(jobs) > 0 {
		subs = a.subscribers()
	}
	a.mu.Unlock()

	for _, j := range jobs {
		a.launch(j)
	}
	notify(subs, change)
	return joinLoads(sink...)
}

// Get returns the record at index i. The boolean is false for placeholders
// and out-of-range indices.
func (a *Array[T]) Get(i int) (T, bool) {
	e := a.At(i)
	return e.Item, e.Loaded
}

// At returns the slot at index i.
func (a *Array[T]) At(i int) Entry[T] {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i < 0 || i >= len(a.entries) {
		return Entry[T]{Index: i}
	}
	return a.entries[i]
}

// Slice copies the slots in [from, to). Indices past the allocated slots
// come back as placeholders.
func (a *Array[T]) Slice(from, to int) []Entry[T] {
	from = max(from, 0)
	if to <= from {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Entry[T], 0, to-from)
	for i := from; i < to; i++ {
		if i < len(a.entries) {
			out = append(out, a.entries[i])
			continue
		}
		out = append(out, Entry[T]{Index: i})
	}
	return out
}

// Len is the total size when known, otherwise the allocated extent.
func (a *Array[T]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.length()
}

// Total returns the result set size and whether it is known.
func (a *Array[T]) Total() (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total, a.total >= 0
}

// IndexOf maps a record identifier to its logical index, or -1.
func (a *Array[T]) IndexOf(id string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i, ok := a.ids[id]; ok {
		return i
	}
	return -1
}

// IDs lists the identifier of every allocated slot; placeholders are "".
func (a *Array[T]) IDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		if e.Loaded {
			out[i] = e.Item.ID()
		}
	}
	return out
}

// Window returns the requested window.
func (a *Array[T]) Window() (start, end int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.start, a.end
}

// Span returns the materialized run serving the current window. It is
// empty when nothing near the window has been fetched.
func (a *Array[T]) Span() (start, end int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ws, we := a.wanted()
	rs, re, ok := a.runNear(ws, we)
	if !ok {
		return 0, 0
	}
	return rs, re
}

// State reports which fetches are in flight.
func (a *Array[T]) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case a.jumping && a.jumpDir == DirInitial:
		return StateFetchingInitial
	case a.jumping:
		return StateJumping
	case a.fwd.busy && a.bwd.busy:
		return StateFetchingBoth
	case a.fwd.busy:
		return StateFetchingForward
	case a.bwd.busy:
		return StateFetchingBackward
	default:
		return StateIdle
	}
}

// Subscribe registers fn to run after every mutation. fn runs outside the
// array lock, on whichever goroutine caused the change.
func (a *Array[T]) Subscribe(fn func(Change)) (unsubscribe func()) {
	a.mu.Lock()
	id := a.nextSub
	a.nextSub++
	a.subs = append(a.subs, subscriber{id: id, fn: fn})
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.subs = slices.DeleteFunc(a.subs, func(s subscriber) bool { return s.id == id })
	}
}

// Close cancels the context passed to fetches. Fetches still in flight
// settle with their own error; later SetWindow calls return ErrClosed.
func (a *Array[T]) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()
	a.cancel()
}

// wanted is the window widened by the margin, clamped to the known total.
func (a *Array[T]) wanted() (int, int) {
	ws := max(0, a.start-a.margin)
	we := a.end + a.margin
	if a.total >= 0 {
		we = min(we, a.total)
		ws = min(ws, we)
	}
	return ws, we
}

func (a *Array[T]) length() int {
	if a.total >= 0 {
		return a.total
	}
	return len(a.entries)
}

func (a *Array[T]) loaded(i int) bool {
	return i >= 0 && i < len(a.entries) && a.entries[i].Loaded
}

// grow appends placeholders up to n slots.
func (a *Array[T]) grow(n int) {
	if a.total >= 0 {
		n = min(n, a.total)
	}
	for len(a.entries) < n {
		a.entries = append(a.entries, Entry[T]{Index: len(a.entries)})
	}
}

func (a *Array[T]) unload(i int) {
	e := a.entries[i]
	if !e.Loaded {
		return
	}
	if id := e.Item.ID(); a.ids[id] == i {
		delete(a.ids, id)
	}
	a.entries[i] = Entry[T]{Index: i}
}

// trim releases records outside the window widened by twice the margin.
// A side with a fetch in flight is left alone.
func (a *Array[T]) trim() int {
	keepFrom := max(0, a.start-2*a.margin)
	keepTo := a.end + 2*a.margin
	n := 0
	if !a.bwd.busy {
		for i := 0; i < min(keepFrom, len(a.entries)); i++ {
			if a.entries[i].Loaded {
				a.unload(i)
				n++
			}
		}
	}
	if !a.fwd.busy {
		for i := keepTo; i < len(a.entries); i++ {
			if a.entries[i].Loaded {
				a.unload(i)
				n++
			}
		}
	}
	return n
}

// runNear finds the materialized run that intersects [ws, we) or touches
// one of its ends.
func (a *Array[T]) runNear(ws, we int) (int, int, bool) {
	seed := -1
	for i := ws; i < we && i < len(a.entries); i++ {
		if a.entries[i].Loaded {
			seed = i
			break
		}
	}
	switch {
	case seed >= 0:
	case a.loaded(ws - 1):
		seed = ws - 1
	case a.loaded(we):
		seed = we
	default:
		return 0, 0, false
	}
	rs, re := seed, seed+1
	for a.loaded(rs - 1) {
		rs--
	}
	for a.loaded(re) {
		re++
	}
	return rs, re, true
}

// plan issues or defers the fetches the current window needs. Every load it
// creates is appended to sink.
func (a *Array[T]) plan(sink *[]*Load) []job[T] {
	ws, we := a.wanted()
	if ws >= we {
		return nil
	}
	rs, re, ok := a.runNear(ws, we)
	if !ok {
		if a.fwd.busy || a.bwd.busy {
			a.deferOn(a.busyLane(), sink)
			return nil
		}
		return []job[T]{a.startJob(DirJump, nil, we-ws, ws, ws, sink)}
	}

	var jobs []job[T]
	if re < we {
		if a.fwd.busy {
			a.deferOn(&a.fwd, sink)
		} else {
			cursor := a.entries[re-1].Item.Cursor()
			jobs = append(jobs, a.startJob(DirForward, cursor, we-re, 1, re, sink))
		}
	}
	if rs > ws {
		if a.bwd.busy {
			a.deferOn(&a.bwd, sink)
		} else {
			size := rs - ws
			cursor := a.entries[rs].Item.Cursor()
			jobs = append(jobs, a.startJob(DirBackward, cursor, size, -size, ws, sink))
		}
	}
	return jobs
}

func (a *Array[T]) busyLane() *lane {
	if a.fwd.busy {
		return &a.fwd
	}
	return &a.bwd
}

func (a *Array[T]) deferOn(l *lane, sink *[]*Load) {
	w := newLoad()
	l.deferred = true
	l.waiters = append(l.waiters, w)
	if sink != nil {
		*sink = append(*sink, w)
	}
}

func (a *Array[T]) startJob(dir Direction, cursor Cursor, size, offset, at int, sink *[]*Load) job[T] {
	j := job[T]{dir: dir, cursor: cursor, size: size, offset: offset, at: at, load: newLoad()}
	switch dir {
	case DirForward:
		a.fwd.busy = true
	case DirBackward:
		a.bwd.busy = true
	default:
		a.fwd.busy, a.bwd.busy = true, true
		a.jumping, a.jumpDir = true, dir
	}
	if sink != nil {
		*sink = append(*sink, j.load)
	}
	return j
}

// release frees the lanes held by a job of direction dir and hands back
// whatever was deferred on them.
func (a *Array[T]) release(dir Direction) (waiters []*Load, deferred bool) {
	take := func(l *lane) {
		waiters = append(waiters, l.waiters...)
		deferred = deferred || l.deferred
		*l = lane{}
	}
	switch dir {
	case DirForward:
		take(&a.fwd)
	case DirBackward:
		take(&a.bwd)
	default:
		take(&a.fwd)
		take(&a.bwd)
		a.jumping = false
	}
	return waiters, deferred
}

func (a *Array[T]) launch(j job[T]) {
	a.log.Debug("chunks: fetch", "dir", j.dir, "size", j.size, "offset", j.offset, "at", j.at)
	go func() {
		page, err := a.fetch(a.ctx, j.cursor, j.size, j.offset)
		a.complete(j, page, err)
	}()
}

func (a *Array[T]) complete(j job[T], page Page[T], err error) {
	if err == nil {
		err = validate(j, page)
	}

	a.mu.Lock()
	waiters, deferred := a.release(j.dir)
	if err == nil && a.closed {
		err = ErrClosed
	}

	var (
		jobs   []job[T]
		sink   []*Load
		change Change
	)
	if err != nil {
		err = &FetchError{Direction: j.dir, Size: j.size, Offset: j.offset, Err: err}
		change = Change{From: j.at, To: j.at + j.size, Len: a.length(), Err: err}
	} else {
		from, to := a.merge(j, page)
		change = Change{From: from, To: to, Len: a.length()}
		if deferred {
			jobs = a.plan(&sink)
		}
	}
	subs := a.subscribers()
	a.mu.Unlock()

	if err != nil {
		a.log.Debug("chunks: fetch failed", "dir", j.dir, "error", err)
	}
	for _, next := range jobs {
		a.launch(next)
	}
	notify(subs, change)

	switch {
	case err != nil:
		for _, w := range waiters {
			w.settle(err)
		}
	case len(waiters) > 0:
		joinLoads(sink...).onSettle(func(ferr error) {
			for _, w := range waiters {
				w.settle(ferr)
			}
		})
	}
	j.load.settle(err)
}

func validate[T Record](j job[T], page Page[T]) error {
	if len(page.Items) > j.size {
		return fmt.Errorf("%w: %d records for a chunk of %d", ErrMalformedChunk, len(page.Items), j.size)
	}
	seen := make(map[string]struct{}, len(page.Items))
	for i, it := range page.Items {
		id := it.ID()
		if id == "" {
			return fmt.Errorf("%w: record %d has no id", ErrMalformedChunk, i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate id %q", ErrMalformedChunk, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// merge places a page by logical index and returns the range it covered.
func (a *Array[T]) merge(j job[T], page Page[T]) (int, int) {
	items := page.Items
	at := j.at
	if j.dir == DirBackward && len(items) < j.size {
		// a short backward page still ends right before its anchor
		at += j.size - len(items)
	}

	switch {
	case page.Total > 0:
		a.setTotal(max(page.Total, at+len(items)))
	case len(items) < j.size && j.dir != DirBackward:
		a.setTotal(at + len(items))
	}
	if a.total >= 0 && at+len(items) > a.total {
		a.total = at + len(items)
	}

	a.grow(at + len(items))
	for i, it := range items {
		a.place(at+i, it)
	}
	if a.less != nil && len(items) > 0 {
		a.sortRun(at, at+len(items))
	}
	return at, at + len(items)
}

func (a *Array[T]) setTotal(n int) {
	a.total = n
	if len(a.entries) > n {
		for i := n; i < len(a.entries); i++ {
			a.unload(i)
		}
		a.entries = a.entries[:n]
	}
}

func (a *Array[T]) place(pos int, it T) {
	id := it.ID()
	if old, ok := a.ids[id]; ok && old != pos {
		a.unload(old)
	}
	a.unload(pos)
	a.entries[pos] = Entry[T]{Index: pos, Item: it, Loaded: true}
	a.ids[id] = pos
}

// sortRun stable-sorts the whole materialized run around [from, to).
func (a *Array[T]) sortRun(from, to int) {
	rs, re := from, to
	for a.loaded(rs - 1) {
		rs--
	}
	for a.loaded(re) {
		re++
	}
	items := make([]T, 0, re-rs)
	for i := rs; i < re; i++ {
		items = append(items, a.entries[i].Item)
	}
	slices.SortStableFunc(items, a.less)
	for i, it := range items {
		pos := rs + i
		a.entries[pos] = Entry[T]{Index: pos, Item: it, Loaded: true}
		a.ids[it.ID()] = pos
	}
}

func (a *Array[T]) subscribers() []subscriber {
	if len(a.subs) == 0 {
		return nil
	}
	return slices.Clone(a.subs)
}

func notify(subs []subscriber, c Change) {
	for _, s := range subs {
		s.fn(c)
	}
}
