package client

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/ecrin/mdr-browse/chunks"
)

// Paging selects how follow-up chunks are addressed.
type Paging string

const (
	// PagingOffset uses from/size. Simple, but deep pages get slow and the
	// backend caps from+size.
	PagingOffset Paging = "offset"
	// PagingKeyset uses search_after on the study id.
	PagingKeyset Paging = "keyset"
)

func ParsePaging(s string) (Paging, error) {
	switch p := Paging(strings.ToLower(strings.TrimSpace(s))); p {
	case PagingOffset, PagingKeyset:
		return p, nil
	case "":
		return PagingOffset, nil
	default:
		return "", fmt.Errorf("unknown paging mode %q", s)
	}
}

// OffsetCursor addresses a record by its logical index.
type OffsetCursor struct {
	Index int
}

func (OffsetCursor) CursorKind() string { return "offset" }

// KeysetCursor addresses a record by its sort key. Index is kept so jumps
// and offset fallbacks can still be computed.
type KeysetCursor struct {
	Index int
	ID    int64
}

func (KeysetCursor) CursorKind() string { return "keyset" }

func cursorIndex(c chunks.Cursor) (int, bool) {
	switch c := c.(type) {
	case OffsetCursor:
		return c.Index, true
	case KeysetCursor:
		return c.Index, true
	default:
		return 0, false
	}
}

// MaxResultWindow is the backend's default cap on from+size.
const MaxResultWindow = 10000

// TitleQuery builds the query clause for a title search. Blank text
// matches every study.
func TitleQuery(text string) json.RawMessage {
	text = strings.TrimSpace(text)
	if text == "" {
		return json.RawMessage(`{"match_all":{}}`)
	}
	q := map[string]any{
		"simple_query_string": map[string]any{
			"query":            text,
			"fields":           []string{"display_title.title_text"},
			"default_operator": "and",
		},
	}
	data, _ := json.Marshal(q)
	return data
}

// StudyFetcher returns the fetch collaborator for a chunks.Array of studies
// matching query in index.
//
// In keyset mode a jump past MaxResultWindow is read from the tail with a
// descending sort once the total is known. Jumps deeper than the window from
// both ends still fail on the backend.
func (c *Client) StudyFetcher(index string, query json.RawMessage, mode Paging) chunks.FetchFunc[Study] {
	var total atomic.Int64
	return func(ctx context.Context, cursor chunks.Cursor, size, offset int) (page chunks.Page[Study], err error) {
		defer func() {
			if err == nil && page.Total > 0 {
				total.Store(int64(page.Total))
			}
		}()
		if size <= 0 {
			return chunks.Page[Study]{}, nil
		}
		if kc, ok := cursor.(KeysetCursor); ok && mode == PagingKeyset {
			return c.fetchAfter(ctx, index, query, kc, size, offset)
		}

		from := offset
		if cursor != nil {
			at, ok := cursorIndex(cursor)
			if !ok {
				return chunks.Page[Study]{}, fmt.Errorf("unsupported cursor %q", cursor.CursorKind())
			}
			from = at + offset
		}
		if from < 0 {
			size += from
			from = 0
		}
		if size <= 0 {
			return chunks.Page[Study]{}, nil
		}
		if n := int(total.Load()); mode == PagingKeyset && from+size > MaxResultWindow && n > 0 {
			return c.fetchTail(ctx, index, query, from, size, n)
		}
		req := SearchRequest{
			Query:          query,
			From:           &from,
			Size:           size,
			Sort:           []map[string]any{{"id": "asc"}},
			Source:         studySource,
			TrackTotalHits: true,
		}
		resp, err := c.Search(ctx, index, req)
		if err != nil {
			return chunks.Page[Study]{}, err
		}
		return decodePage(resp, from, mode, false)
	}
}

// fetchAfter reads the records next to the cursor with search_after. A
// negative offset reads backwards by flipping the sort and reversing the hits.
func (c *Client) fetchAfter(ctx context.Context, index string, query json.RawMessage, kc KeysetCursor, size, offset int) (chunks.Page[Study], error) {
	order := "asc"
	skip := 0
	if offset < 0 {
		order = "desc"
		skip = max(-offset-size, 0)
	} else {
		skip = max(offset-1, 0)
	}
	req := SearchRequest{
		Query:          query,
		Size:           size + skip,
		Sort:           []map[string]any{{"id": order}},
		SearchAfter:    []any{kc.ID},
		Source:         studySource,
		TrackTotalHits: true,
	}
	resp, err := c.Search(ctx, index, req)
	if err != nil {
		return chunks.Page[Study]{}, err
	}
	hits := resp.Hits.Hits
	hits = hits[min(skip, len(hits)):]
	resp = &SearchResponse{Took: resp.Took, TimedOut: resp.TimedOut, Hits: Hits{Total: resp.Hits.Total, Hits: hits}}

	if offset < 0 {
		first := kc.Index + offset + size - len(hits)
		return decodePage(resp, first, PagingKeyset, true)
	}
	return decodePage(resp, kc.Index+offset, PagingKeyset, false)
}

// fetchTail reads [from, from+size) counted from the end of a result set of
// n records: descending sort, then the hits are reversed.
func (c *Client) fetchTail(ctx context.Context, index string, query json.RawMessage, from, size, n int) (chunks.Page[Study], error) {
	end := min(from+size, n)
	if end <= from {
		return chunks.Page[Study]{Total: n}, nil
	}
	descFrom := n - end
	req := SearchRequest{
		Query:          query,
		From:           &descFrom,
		Size:           end - from,
		Sort:           []map[string]any{{"id": "desc"}},
		Source:         studySource,
		TrackTotalHits: true,
	}
	resp, err := c.Search(ctx, index, req)
	if err != nil {
		return chunks.Page[Study]{}, err
	}
	return decodePage(resp, end-len(resp.Hits.Hits), PagingKeyset, true)
}

func decodePage(resp *SearchResponse, first int, mode Paging, reversed bool) (chunks.Page[Study], error) {
	hits := resp.Hits.Hits
	if reversed {
		hits = slices.Clone(hits)
		slices.Reverse(hits)
	}
	studies := make([]Study, 0, len(hits))
	for i, h := range hits {
		var s Study
		if err := json.Unmarshal(h.Source, &s); err != nil {
			return chunks.Page[Study]{}, fmt.Errorf("decode hit %s: %w", h.ID, err)
		}
		if mode == PagingKeyset {
			s.cursor = KeysetCursor{Index: first + i, ID: s.StudyID}
		} else {
			s.cursor = OffsetCursor{Index: first + i}
		}
		studies = append(studies, s)
	}
	return chunks.Page[Study]{Items: studies, Total: resp.Hits.Total.Value}, nil
}
