package domain

import "time"

type SourceTag string

const (
	SourcePrimaryAPI   SourceTag = "primaryApi"
	SourceFeed         SourceTag = "feed"
	SourceRenderedPage SourceTag = "renderedPage"
)

// SourcePriority lists sources from most to least trusted. Earlier sources
// most reliably carry a stable review identifier.
var SourcePriority = []SourceTag{SourcePrimaryAPI, SourceFeed, SourceRenderedPage}

// Rank returns the position of t in SourcePriority; unknown tags sort last.
func (t SourceTag) Rank() int {
	for i, s := range SourcePriority {
		if s == t {
			return i
		}
	}
	return len(SourcePriority)
}

func (t SourceTag) Valid() bool { return t.Rank() < len(SourcePriority) }

// Candidate is one raw record as produced by a source adapter.
type Candidate struct {
	Source SourceTag
	Fields map[string]any
}

// CanonicalReview is the unit of record sent downstream. SourceTag is kept
// for conflict resolution only and is never serialized.
type CanonicalReview struct {
	SourceID              *string        `json:"sourceId"`
	Author                string         `json:"author"`
	Title                 *string        `json:"title"`
	Text                  string         `json:"text"`
	Rating                *int           `json:"rating"`
	ReviewDate            *time.Time     `json:"reviewDate"`
	Version               *string        `json:"version,omitempty"`
	DeveloperResponseText *string        `json:"developerResponseText"`
	DeveloperResponseAt   *time.Time     `json:"developerResponseAt,omitempty"`
	SourceTag             SourceTag      `json:"-"`
	Raw                   map[string]any `json:"raw"`
}

func (r CanonicalReview) HasSourceID() bool {
	return r.SourceID != nil && *r.SourceID != ""
}

func (r CanonicalReview) HasDeveloperResponse() bool {
	return r.DeveloperResponseText != nil && *r.DeveloperResponseText != ""
}

// PageRequest addresses one page of one source.
type PageRequest struct {
	AppID    string
	Country  string
	Lang     string
	Cursor   string // empty on the first page
	PageSize int
}

type Page struct {
	Candidates []Candidate
	NextCursor string // empty when the source has nothing further
}
