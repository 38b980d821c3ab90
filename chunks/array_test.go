package chunks

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Test backend
// ---------------------------------------------------------------------------

type row struct {
	pos int
	tag string
}

func (r row) ID() string     { return strconv.Itoa(r.pos) }
func (r row) Cursor() Cursor { return posCursor(r.pos) }

type posCursor int

func (posCursor) CursorKind() string { return "pos" }

type call struct {
	cursor Cursor
	size   int
	offset int
}

func (c call) dir() Direction {
	switch {
	case c.cursor == nil:
		return DirJump
	case c.offset < 0:
		return DirBackward
	default:
		return DirForward
	}
}

type heldCall struct {
	call
	release chan struct{}
}

// backend serves rows 0..total-1 and records every fetch. With hold set,
// each fetch blocks until the test releases it.
type backend struct {
	mu          sync.Mutex
	total       int
	reportTotal bool
	hold        bool
	calls       []call
	held        []heldCall
	failNext    error
	reverse     bool
}

func (b *backend) fetch(ctx context.Context, cursor Cursor, size, offset int) (Page[row], error) {
	c := call{cursor: cursor, size: size, offset: offset}
	b.mu.Lock()
	b.calls = append(b.calls, c)
	err := b.failNext
	b.failNext = nil
	var gate chan struct{}
	if b.hold {
		gate = make(chan struct{})
		b.held = append(b.held, heldCall{call: c, release: gate})
	}
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Page[row]{}, ctx.Err()
		}
	}
	if err != nil {
		return Page[row]{}, err
	}

	first := offset
	if cursor != nil {
		first = int(cursor.(posCursor)) + offset
	}
	var items []row
	for p := max(first, 0); p < first+size && p < b.total; p++ {
		items = append(items, row{pos: p})
	}
	if b.reverse {
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
	}
	page := Page[row]{Items: items}
	if b.reportTotal {
		page.Total = b.total
	}
	return page, nil
}

func (b *backend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func (b *backend) callAt(i int) call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[i]
}

// release unblocks the first held fetch matching dir.
func (b *backend) release(t *testing.T, dir Direction) call {
	t.Helper()
	var found heldCall
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, h := range b.held {
			if h.dir() == dir {
				found = h
				b.held = append(b.held[:i], b.held[i+1:]...)
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond, "no held %s fetch", dir)
	close(found.release)
	return found.call
}

func wait(t *testing.T, l *Load) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := l.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return err
}

func loadedRange(a *Array[row], from, to int) bool {
	for i := from; i < to; i++ {
		r, ok := a.Get(i)
		if !ok || r.pos != i {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// New
// ---------------------------------------------------------------------------

func TestNew_InitialFetchCoversMargin(t *testing.T) {
	b := &backend{total: 50}
	a, err := New(Config[row]{Fetch: b.fetch, StartIndex: 0, EndIndex: 50, IndexMargin: 24})
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, wait(t, a.InitialLoad()))
	first := b.callAt(0)
	assert.Nil(t, first.cursor)
	assert.Equal(t, 0, first.offset)
	assert.GreaterOrEqual(t, first.size, 74)

	for i := 0; i < 50; i++ {
		r, ok := a.Get(i)
		require.True(t, ok, "index %d should be materialized", i)
		assert.Equal(t, strconv.Itoa(i), r.ID())
	}
	assert.Equal(t, 50, a.Len(), "short page marks the end of results")
	total, known := a.Total()
	assert.True(t, known)
	assert.Equal(t, 50, total)
}

func TestNew_InvalidConfig(t *testing.T) {
	b := &backend{total: 10}
	tests := []struct {
		name string
		cfg  Config[row]
	}{
		{"missing fetch", Config[row]{EndIndex: 10}},
		{"negative start", Config[row]{Fetch: b.fetch, StartIndex: -1, EndIndex: 10}},
		{"end before start", Config[row]{Fetch: b.fetch, StartIndex: 5, EndIndex: 4}},
		{"negative margin", Config[row]{Fetch: b.fetch, EndIndex: 10, IndexMargin: -2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestNew_EmptyWindowSkipsFetch(t *testing.T) {
	b := &backend{total: 10}
	a, err := New(Config[row]{Fetch: b.fetch})
	require.NoError(t, err)
	defer a.Close()

	assert.True(t, a.InitialLoad().Settled())
	assert.Equal(t, 0, b.callCount())
}

func TestState_InitialThenIdle(t *testing.T) {
	b := &backend{total: 100, hold: true}
	a, err := New(Config[row]{Fetch: b.fetch, EndIndex: 20, IndexMargin: 5})
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, StateFetchingInitial, a.State())
	assert.True(t, a.InitialLoad().Pending())
	b.release(t, DirJump)
	require.NoError(t, wait(t, a.InitialLoad()))
	assert.Equal(t, StateIdle, a.State())
}

// ---------------------------------------------------------------------------
// SetWindow
// ---------------------------------------------------------------------------

func TestSetWindow_CoalescesWhileInitialPending(t *testing.T) {
	b := &backend{total: 1000, hold: true}
	a, err := New(Config[row]{Fetch: b.fetch, StartIndex: 0, EndIndex: 50, IndexMargin: 24})
	require.NoError(t, err)
	defer a.Close()

	moved := a.SetWindow(10, 60)
	assert.Equal(t, 1, b.callCount(), "second window must wait for the initial fetch")
	assert.Equal(t, 84, a.Len(), "placeholders are added synchronously")

	b.release(t, DirJump)
	next := b.release(t, DirForward)
	require.NoError(t, wait(t, moved))

	assert.Equal(t, 2, b.callCount())
	assert.Equal(t, posCursor(73), next.cursor)
	assert.Equal(t, 1, next.offset)
	assert.Equal(t, 10, next.size, "only the uncovered tail is requested")
	assert.True(t, loadedRange(a, 0, 84))
}

func TestSetWindow_CoveredWindowIsIdempotent(t *testing.T) {
	b := &backend{total: 1000}
	a, err := New(Config[row]{Fetch: b.fetch, EndIndex: 30, IndexMargin: 10})
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, wait(t, a.InitialLoad()))

	l1 := a.SetWindow(5, 30)
	l2 := a.SetWindow(5, 30)
	assert.True(t, l1.Settled())
	assert.True(t, l2.Settled())
	assert.Equal(t, 1, b.callCount())
	assert.Equal(t, StateIdle, a.State())
}

func TestSetWindow_ForwardExtension(t *testing.T) {
	b := &backend{total: 1000, reportTotal: true}
	a, err := New(Config[row]{Fetch: b.fetch, EndIndex: 20, IndexMargin: 5})
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, wait(t, a.InitialLoad()))
	assert.Equal(t, 1000, a.Len())

	require.NoError(t, wait(t, a.SetWindow(20, 40)))
	c := b.callAt(1)
	assert.Equal(t, posCursor(24), c.cursor)
	assert.Equal(t, 1, c.offset)
	assert.Equal(t, 20, c.size)
	assert.True(t, loadedRange(a, 15, 45))

	rs, re := a.Span()
	assert.LessOrEqual(t, rs, 15)
	assert.Equal(t, 45, re)
}

func TestSetWindow_BackwardExtension(t *testing.T) {
	b := &backend{total: 1000}
	a, err := New(Config[row]{Fetch: b.fetch, StartIndex: 100, EndIndex: 120, IndexMargin: 10})
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, wait(t, a.InitialLoad()))
	assert.Equal(t, call{cursor: nil, size: 40, offset: 90}, b.callAt(0))

	require.NoError(t, wait(t, a.SetWindow(80, 100)))
	c := b.callAt(1)
	assert.Equal(t, posCursor(90), c.cursor)
	assert.Equal(t, -20, c.offset)
	assert.Equal(t, 20, c.size)
	assert.True(t, loadedRange(a, 70, 110))
}

func TestSetWindow_JumpReplacesDistantSpan(t *testing.T) {
	b := &backend{total: 1000}
	a, err := New(Config[row]{Fetch: b.fetch, EndIndex: 10, IndexMargin: 5})
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, wait(t, a.InitialLoad()))

	l := a.SetWindow(500, 510)
	_, ok := a.Get(0)
	assert.False(t, ok, "records far from the window are released")
	require.NoError(t, wait(t, l))

	assert.Equal(t, call{cursor: nil, size: 20, offset: 495}, b.callAt(1))
	assert.True(t, loadedRange(a, 495, 515))
	assert.Equal(t, 500, a.IndexOf("500"))
	assert.Equal(t, -1, a.IndexOf("3"))
}

func TestSetWindow_FailureLeavesPlaceholders(t *testing.T) {
	boom := errors.New("backend down")
	b := &backend{total: 1000, failNext: boom}
	a, err := New(Config[row]{Fetch: b.fetch, EndIndex: 50})
	require.NoError(t, err)
	defer a.Close()

	err = wait(t, a.InitialLoad())
	require.ErrorIs(t, err, boom)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, DirInitial, fe.Direction)
	assert.Equal(t, 50, fe.Size)

	for i := 0; i < 50; i++ {
		_, ok := a.Get(i)
		assert.False(t, ok)
	}
	assert.Equal(t, StateIdle, a.State(), "lock released after failure")
	assert.Equal(t, 1, b.callCount(), "no automatic retry")

	require.NoError(t, wait(t, a.SetWindow(0, 50)))
	assert.Equal(t, 2, b.callCount())
	assert.True(t, loadedRange(a, 0, 50))
}

func TestSetWindow_DeferredRequestSharesFailure(t *testing.T) {
	boom := errors.New("timeout")
	b := &backend{total: 1000, hold: true, failNext: boom}
	a, err := New(Config[row]{Fetch: b.fetch, EndIndex: 10})
	require.NoError(t, err)
	defer a.Close()

	deferred := a.SetWindow(0, 20)
	b.release(t, DirJump)
	assert.ErrorIs(t, wait(t, deferred), boom)
	assert.Equal(t, 1, b.callCount())
}

func TestSetWindow_OutOfOrderCompletion(t *testing.T) {
	run := func(first, second Direction) []string {
		b := &backend{total: 1000, hold: true}
		a, err := New(Config[row]{Fetch: b.fetch, StartIndex: 100, EndIndex: 120})
		require.NoError(t, err)
		defer a.Close()
		b.release(t, DirJump)
		require.NoError(t, wait(t, a.InitialLoad()))

		l := a.SetWindow(90, 130)
		assert.Equal(t, StateFetchingBoth, a.State())
		b.release(t, first)
		b.release(t, second)
		require.NoError(t, wait(t, l))
		return a.IDs()
	}

	forwardFirst := run(DirForward, DirBackward)
	backwardFirst := run(DirBackward, DirForward)
	assert.Equal(t, forwardFirst, backwardFirst)
}

func TestSetWindow_SingleFetchPerDirection(t *testing.T) {
	b := &backend{total: 1000, hold: true}
	a, err := New(Config[row]{Fetch: b.fetch, EndIndex: 10})
	require.NoError(t, err)
	defer a.Close()
	b.release(t, DirJump)
	require.NoError(t, wait(t, a.InitialLoad()))

	l1 := a.SetWindow(0, 20)
	l2 := a.SetWindow(0, 30)
	l3 := a.SetWindow(0, 40)
	assert.Equal(t, 2, b.callCount(), "later windows wait for the forward lane")

	first := b.release(t, DirForward)
	assert.Equal(t, 10, first.size)
	second := b.release(t, DirForward)
	assert.Equal(t, posCursor(19), second.cursor)
	assert.Equal(t, 20, second.size, "deferred windows are coalesced into one fetch")

	for _, l := range []*Load{l1, l2, l3} {
		require.NoError(t, wait(t, l))
	}
	assert.Equal(t, 3, b.callCount())
	assert.True(t, loadedRange(a, 0, 40))
}

func TestSetWindow_MalformedChunk(t *testing.T) {
	dup := func(ctx context.Context, cursor Cursor, size, offset int) (Page[row], error) {
		return Page[row]{Items: []row{{pos: 1}, {pos: 1}}}, nil
	}
	a, err := New(Config[row]{Fetch: dup, EndIndex: 5})
	require.NoError(t, err)
	defer a.Close()

	err = wait(t, a.InitialLoad())
	assert.ErrorIs(t, err, ErrMalformedChunk)
	_, ok := a.Get(1)
	assert.False(t, ok)
}

func TestSetWindow_OversizedChunk(t *testing.T) {
	big := func(ctx context.Context, cursor Cursor, size, offset int) (Page[row], error) {
		items := make([]row, size+1)
		for i := range items {
			items[i] = row{pos: i}
		}
		return Page[row]{Items: items}, nil
	}
	a, err := New(Config[row]{Fetch: big, EndIndex: 5})
	require.NoError(t, err)
	defer a.Close()
	assert.ErrorIs(t, wait(t, a.InitialLoad()), ErrMalformedChunk)
}

func TestLess_SortsMaterializedSpan(t *testing.T) {
	b := &backend{total: 1000, reverse: true}
	byPos := func(x, y row) int { return x.pos - y.pos }
	a, err := New(Config[row]{Fetch: b.fetch, EndIndex: 10, Less: byPos})
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, wait(t, a.InitialLoad()))
	require.NoError(t, wait(t, a.SetWindow(0, 20)))

	assert.True(t, loadedRange(a, 0, 20))
	for i := 0; i < 20; i++ {
		assert.Equal(t, i, a.IndexOf(strconv.Itoa(i)))
	}
}

func TestLess_TiesKeepMergeOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	// each call serves the next block of positions, ignoring the cursor
	blocks := func(ctx context.Context, cursor Cursor, size, offset int) (Page[row], error) {
		mu.Lock()
		first := calls * 10
		calls++
		mu.Unlock()
		items := make([]row, size)
		for i := range items {
			items[i] = row{pos: first + i}
		}
		return Page[row]{Items: items}, nil
	}
	// odd positions sort before even ones; everything else is a tie
	parity := func(x, y row) int { return (1 - x.pos%2) - (1 - y.pos%2) }

	a, err := New(Config[row]{Fetch: blocks, EndIndex: 10, Less: parity})
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, wait(t, a.InitialLoad()))
	assert.Equal(t, []string{"1", "3", "5", "7", "9", "0", "2", "4", "6", "8"}, a.IDs())

	require.NoError(t, wait(t, a.SetWindow(0, 20)))
	assert.Equal(t, []string{
		"1", "3", "5", "7", "9", "11", "13", "15", "17", "19",
		"0", "2", "4", "6", "8", "10", "12", "14", "16", "18",
	}, a.IDs())
}

func TestSubscribe_NotifiesAndUnsubscribes(t *testing.T) {
	b := &backend{total: 1000, hold: true}
	a, err := New(Config[row]{Fetch: b.fetch, EndIndex: 10})
	require.NoError(t, err)
	defer a.Close()

	var (
		mu      sync.Mutex
		changes []Change
	)
	unsubscribe := a.Subscribe(func(c Change) {
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
	})

	b.release(t, DirJump)
	require.NoError(t, wait(t, a.InitialLoad()))
	mu.Lock()
	require.Len(t, changes, 1)
	assert.Equal(t, 0, changes[0].From)
	assert.Equal(t, 10, changes[0].To)
	mu.Unlock()

	unsubscribe()
	l := a.SetWindow(0, 20)
	b.release(t, DirForward)
	require.NoError(t, wait(t, l))
	mu.Lock()
	assert.Len(t, changes, 1)
	mu.Unlock()
}

func TestClose_RejectsNewWindows(t *testing.T) {
	b := &backend{total: 1000, hold: true}
	a, err := New(Config[row]{Fetch: b.fetch, EndIndex: 10})
	require.NoError(t, err)

	a.Close()
	a.Close()
	assert.Error(t, wait(t, a.InitialLoad()), "in-flight fetch sees the cancelled context")
	assert.ErrorIs(t, wait(t, a.SetWindow(0, 10)), ErrClosed)
}

func TestSlice_PadsWithPlaceholders(t *testing.T) {
	b := &backend{total: 1000}
	a, err := New(Config[row]{Fetch: b.fetch, EndIndex: 5})
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, wait(t, a.InitialLoad()))

	entries := a.Slice(3, 8)
	require.Len(t, entries, 5)
	assert.True(t, entries[0].Loaded)
	assert.True(t, entries[1].Loaded)
	assert.False(t, entries[2].Loaded)
	assert.Equal(t, 7, entries[4].Index)
}
