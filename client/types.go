package client

import (
	"encoding/json"
	"strconv"

	"github.com/ecrin/mdr-browse/chunks"
)

// HealthResponse from GET /_cluster/health.
type HealthResponse struct {
	ClusterName   string `json:"cluster_name"`
	Status        string `json:"status"`
	NumberOfNodes int    `json:"number_of_nodes"`
	TimedOut      bool   `json:"timed_out"`
}

// Title of a study.
type Title struct {
	Text string `json:"title_text"`
}

// Category is a categorized value reference. Name is filled by backends that
// denormalize it; otherwise only the numeric id is present.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
}

// Topic attached to a study.
type Topic struct {
	Value string `json:"topic_value"`
}

// Identifier of a study in an external registry.
type Identifier struct {
	Value string   `json:"identifier_value"`
	Type  Category `json:"identifier_type"`
}

// Study is one search hit. It implements chunks.Record.
type Study struct {
	StudyID          int64        `json:"id"`
	DisplayTitle     Title        `json:"display_title"`
	BriefDescription string       `json:"brief_description"`
	DataSharing      string       `json:"data_sharing_statement"`
	Type             Category     `json:"study_type"`
	Status           Category     `json:"study_status"`
	GenderElig       Category     `json:"study_gender_elig"`
	StartYear        int          `json:"study_start_year"`
	Topics           []Topic      `json:"study_topics"`
	Identifiers      []Identifier `json:"study_identifiers"`
	LinkedObjects    []int64      `json:"linked_data_objects"`

	cursor chunks.Cursor
}

func (s Study) ID() string { return strconv.FormatInt(s.StudyID, 10) }

func (s Study) Cursor() chunks.Cursor { return s.cursor }

// Title returns the display title, or a fallback built from the id.
func (s Study) Title() string {
	if s.DisplayTitle.Text != "" {
		return s.DisplayTitle.Text
	}
	return "Study " + s.ID()
}

// SearchRequest is the body of POST /{index}/_search.
type SearchRequest struct {
	Query          json.RawMessage  `json:"query,omitempty"`
	From           *int             `json:"from,omitempty"`
	Size           int              `json:"size"`
	Sort           []map[string]any `json:"sort,omitempty"`
	SearchAfter    []any            `json:"search_after,omitempty"`
	Source         []string         `json:"_source,omitempty"`
	TrackTotalHits bool             `json:"track_total_hits,omitempty"`
}

// SearchResponse from POST /{index}/_search.
type SearchResponse struct {
	Took     int  `json:"took"`
	TimedOut bool `json:"timed_out"`
	Hits     Hits `json:"hits"`
}

type Hits struct {
	Total TotalHits `json:"total"`
	Hits  []Hit     `json:"hits"`
}

// TotalHits accepts both the object form and the legacy bare number.
type TotalHits struct {
	Value    int    `json:"value"`
	Relation string `json:"relation"`
}

func (t *TotalHits) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		t.Value, t.Relation = n, "eq"
		return nil
	}
	type plain TotalHits
	return json.Unmarshal(data, (*plain)(t))
}

type Hit struct {
	Index  string          `json:"_index"`
	ID     string          `json:"_id"`
	Score  *float64        `json:"_score"`
	Source json.RawMessage `json:"_source"`
	Sort   []any           `json:"sort,omitempty"`
}

// ErrorResponse is the backend's error envelope. Error is either an object
// or a plain string depending on the failure.
type ErrorResponse struct {
	Error  json.RawMessage `json:"error"`
	Status int             `json:"status"`
}

type errorCause struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// studySource lists the fields requested for every study hit.
var studySource = []string{
	"id",
	"display_title.title_text",
	"brief_description",
	"data_sharing_statement",
	"study_type",
	"study_status",
	"study_gender_elig",
	"study_start_year",
	"study_topics",
	"study_identifiers",
	"linked_data_objects",
}
