// Package chunks implements a windowed, lazily fetched view over a large
// server-side result set.
//
// An Array keeps one slot per logical position. Slots inside the window the
// consumer asked for (plus a margin on each side) are materialized by calling
// the fetch collaborator; everything else is a placeholder. Fetch results are
// merged by logical index, so a chunk that lands over already materialized
// slots replaces them instead of duplicating them.
//
// At most one fetch extends the materialized span forward and at most one
// extends it backward at any time. Requests arriving while a direction is
// busy are coalesced and re-planned from the latest window once the in-flight
// fetch settles.
package chunks

import (
	"context"
	"errors"
	"fmt"
)

// Cursor is an opaque continuation token handed back to the fetch
// collaborator. The array never inspects it; backends define the variants.
type Cursor interface {
	CursorKind() string
}

// Record is an item the array can hold.
type Record interface {
	// ID is the stable identity of the record within one result set.
	ID() string
	// Cursor returns the token a fetch anchored on this record starts from.
	Cursor() Cursor
}

// Page is one fetched chunk.
type Page[T any] struct {
	Items []T
	// Total is the size of the whole result set when the backend reports it.
	// Values <= 0 mean not reported.
	Total int
}

// FetchFunc loads size records. With a nil cursor, offset is the absolute
// logical index of the first record. With a cursor, offset is the position
// of the first record relative to the record the cursor came from: 1 means
// "right after it", -size means "the size records right before it".
//
// A FetchFunc must be safe to call again with the same arguments.
type FetchFunc[T any] func(ctx context.Context, cursor Cursor, size, offset int) (Page[T], error)

// Entry is one slot of the array.
type Entry[T any] struct {
	Index  int
	Item   T
	Loaded bool
}

// Direction identifies which side of the span a fetch extends.
type Direction int

const (
	DirInitial Direction = iota
	DirForward
	DirBackward
	DirJump
)

func (d Direction) String() string {
	switch d {
	case DirInitial:
		return "initial"
	case DirForward:
		return "forward"
	case DirBackward:
		return "backward"
	case DirJump:
		return "jump"
	default:
		return "unknown"
	}
}

// State is the fetch state of an array.
type State int

const (
	StateIdle State = iota
	StateFetchingInitial
	StateFetchingForward
	StateFetchingBackward
	StateFetchingBoth
	StateJumping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetchingInitial:
		return "fetching_initial"
	case StateFetchingForward:
		return "fetching_forward"
	case StateFetchingBackward:
		return "fetching_backward"
	case StateFetchingBoth:
		return "fetching_both"
	case StateJumping:
		return "jumping"
	default:
		return "unknown"
	}
}

// Change is delivered to subscribers after every mutation.
type Change struct {
	// From and To bound the logical range that changed.
	From, To int
	// Len is the array length after the change.
	Len int
	// Err is set when the change is the settlement of a failed fetch.
	Err error
}

var (
	ErrInvalidConfig  = errors.New("chunks: invalid config")
	ErrMalformedChunk = errors.New("chunks: malformed chunk")
	ErrClosed         = errors.New("chunks: array closed")
)

// FetchError wraps a rejected fetch with the range it was asked for.
type FetchError struct {
	Direction Direction
	Size      int
	Offset    int
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("chunks: %s fetch (size %d, offset %d): %v", e.Direction, e.Size, e.Offset, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
