package domain

import (
	"context"
	"time"
)

// SourceAdapter fetches one page of raw candidates. An empty page is not an
// error; only unrecoverable transport or auth failures are.
type SourceAdapter interface {
	Tag() SourceTag
	FetchPage(ctx context.Context, req PageRequest) (Page, error)
}

// IngestResponse is what a single POST to the ingestion endpoint returned.
type IngestResponse struct {
	Status   int
	Accepted *int
	Body     string
}

// IngestEndpoint performs exactly one delivery attempt. A non-nil error means
// no HTTP status was obtained (connection-level failure).
type IngestEndpoint interface {
	Post(ctx context.Context, body []byte) (IngestResponse, error)
}

type RunStore interface {
	// Write path
	RecordRun(ctx context.Context, run Run, reviews []StoredReview) (int64, error)

	// Read paths
	GetRun(ctx context.Context, id int64) (Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	ListRunReviews(ctx context.Context, runID int64, pg PageQuery) (ReviewsPage, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// Run is the audit summary of one collector invocation.
type Run struct {
	ID         int64          `json:"id"`
	AppID      string         `json:"appId"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Candidates map[string]int `json:"candidates"` // per source tag
	Rejected   int            `json:"rejected"`
	Merged     int            `json:"merged"`
	Attempts   int            `json:"attempts"`
	Accepted   *int           `json:"accepted"`
	Outcome    string         `json:"outcome"` // delivered|empty|dry_run|fatal|exhausted
	Error      *string        `json:"error"`
}

// StoredReview is a merged review as kept in the audit store.
type StoredReview struct {
	Signature string          `json:"signature"`
	Source    SourceTag       `json:"source"`
	Review    CanonicalReview `json:"review"`
}

type PageQuery struct {
	Limit  int
	Cursor *string
}

type ReviewsPage struct {
	Items      []StoredReview `json:"items"`
	NextCursor *string        `json:"nextCursor"`
}
