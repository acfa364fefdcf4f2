package app_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"review_sync/internal/domain"
)

// ---- fakes ----

// scriptedSource serves pages in order; a nil page entry means "fail here".
type scriptedSource struct {
	tag   domain.SourceTag
	pages []*domain.Page
	err   error

	mu      sync.Mutex
	cursors []string
}

func (s *scriptedSource) Tag() domain.SourceTag { return s.tag }

func (s *scriptedSource) FetchPage(ctx context.Context, req domain.PageRequest) (domain.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.cursors)
	s.cursors = append(s.cursors, req.Cursor)
	if i >= len(s.pages) {
		return domain.Page{}, nil
	}
	if s.pages[i] == nil {
		if s.err != nil {
			return domain.Page{}, s.err
		}
		return domain.Page{}, errors.New("boom")
	}
	return *s.pages[i], nil
}

func (s *scriptedSource) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cursors)
}

// brokenSource fails on every page.
type brokenSource struct{ tag domain.SourceTag }

func (b brokenSource) Tag() domain.SourceTag { return b.tag }
func (b brokenSource) FetchPage(ctx context.Context, req domain.PageRequest) (domain.Page, error) {
	return domain.Page{}, domain.ErrSourceUnavailable
}

// fakeEndpoint replays statuses; status 0 means a connection-level error.
type fakeEndpoint struct {
	mu       sync.Mutex
	statuses []int
	bodies   [][]byte
}

func (f *fakeEndpoint) Post(ctx context.Context, body []byte) (domain.IngestResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies = append(f.bodies, body)
	st := f.statuses[len(f.statuses)-1]
	if n := len(f.bodies); n <= len(f.statuses) {
		st = f.statuses[n-1]
	}
	if st == 0 {
		return domain.IngestResponse{}, errors.New("connection reset by peer")
	}
	resp := domain.IngestResponse{Status: st, Body: "status"}
	if st >= 200 && st < 300 {
		n := 2
		resp.Accepted = &n
	}
	return resp, nil
}

func (f *fakeEndpoint) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bodies)
}

// sleepRecorder never actually waits.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err() == nil
}

type fakeRunStore struct {
	mu      sync.Mutex
	runs    []domain.Run
	reviews map[int64][]domain.StoredReview
	rp      domain.ReviewsPage
	err     error
}

func (f *fakeRunStore) RecordRun(ctx context.Context, run domain.Run, rs []domain.StoredReview) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	run.ID = int64(len(f.runs) + 1)
	f.runs = append(f.runs, run)
	if f.reviews == nil {
		f.reviews = map[int64][]domain.StoredReview{}
	}
	f.reviews[run.ID] = rs
	return run.ID, nil
}

func (f *fakeRunStore) GetRun(ctx context.Context, id int64) (domain.Run, error) {
	for _, r := range f.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.Run{}, domain.ErrNotFound
}

func (f *fakeRunStore) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	return f.runs, nil
}

func (f *fakeRunStore) ListRunReviews(ctx context.Context, id int64, pg domain.PageQuery) (domain.ReviewsPage, error) {
	return f.rp, nil
}

type fakeCache struct {
	store map[string]any
	dels  []string
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	if c.store == nil {
		return false, nil
	}
	v, ok := c.store[key]
	if !ok {
		return false, nil
	}
	switch d := dst.(type) {
	case *domain.Run:
		*d = v.(domain.Run)
	case *[]domain.Run:
		*d = v.([]domain.Run)
	case *domain.ReviewsPage:
		*d = v.(domain.ReviewsPage)
	}
	return true, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	if c.store == nil {
		c.store = map[string]any{}
	}
	c.store[key] = v
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.dels = append(c.dels, key)
	delete(c.store, key)
	return nil
}

// ---- builders ----

func ptr[T any](v T) *T { return &v }

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func page(tag domain.SourceTag, next string, rows ...map[string]any) *domain.Page {
	p := &domain.Page{NextCursor: next}
	for _, r := range rows {
		p.Candidates = append(p.Candidates, domain.Candidate{Source: tag, Fields: r})
	}
	return p
}

func review(tag domain.SourceTag, author, text string) domain.CanonicalReview {
	return domain.CanonicalReview{Author: author, Text: text, SourceTag: tag}
}
