package httpserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	server "review_sync/internal/adapters/http_server"
	redisad "review_sync/internal/adapters/redis"
	"review_sync/internal/app"
	"review_sync/internal/domain"
)

type stubStore struct {
	runs    []domain.Run
	reviews []domain.StoredReview
	lastPg  domain.PageQuery
}

func (s *stubStore) RecordRun(ctx context.Context, run domain.Run, rs []domain.StoredReview) (int64, error) {
	return 0, nil
}

func (s *stubStore) GetRun(ctx context.Context, id int64) (domain.Run, error) {
	for _, r := range s.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.Run{}, domain.ErrNotFound
}

func (s *stubStore) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	if len(s.runs) > limit {
		return s.runs[:limit], nil
	}
	return s.runs, nil
}

func (s *stubStore) ListRunReviews(ctx context.Context, id int64, pg domain.PageQuery) (domain.ReviewsPage, error) {
	s.lastPg = pg
	return domain.ReviewsPage{Items: s.reviews}, nil
}

func newTestServer(t *testing.T, st *stubStore) *httptest.Server {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redisad.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = cache.Close() })

	srv := server.New(zerolog.Nop(), 5*time.Second)
	srv.MountHandlers(&server.Handlers{Q: app.NewQueryService(st, cache, time.Minute)})
	ts := httptest.NewServer(srv.Mux())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string, hdr map[string]string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

func sampleStore() *stubStore {
	acc := 2
	return &stubStore{
		runs: []domain.Run{
			{ID: 2, AppID: "com.example", Outcome: "delivered", Merged: 2, Accepted: &acc, Candidates: map[string]int{"feed": 1}},
			{ID: 1, AppID: "com.example", Outcome: "dry_run"},
		},
		reviews: []domain.StoredReview{
			{Signature: "ana|ótimo app|", Source: domain.SourceFeed, Review: domain.CanonicalReview{Author: "Ana", Text: "Ótimo app"}},
		},
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, &stubStore{})
	if res := get(t, ts.URL+"/healthz", nil); res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}
}

func TestListRuns(t *testing.T) {
	ts := newTestServer(t, sampleStore())

	res := get(t, ts.URL+"/v1/runs?limit=1", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}
	var runs []domain.Run
	if err := json.NewDecoder(res.Body).Decode(&runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != 2 || runs[0].Accepted == nil || *runs[0].Accepted != 2 {
		t.Fatalf("unexpected runs: %+v", runs)
	}
}

func TestListRuns_EmptyIsArray(t *testing.T) {
	ts := newTestServer(t, &stubStore{})
	res := get(t, ts.URL+"/v1/runs", nil)
	var raw json.RawMessage
	_ = json.NewDecoder(res.Body).Decode(&raw)
	if string(raw) != "[]" {
		t.Fatalf("expected [], got %s", raw)
	}
}

func TestGetRun_ETagAndNotModified(t *testing.T) {
	ts := newTestServer(t, sampleStore())

	res := get(t, ts.URL+"/v1/runs/2", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}
	etag := res.Header.Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag")
	}

	res2 := get(t, ts.URL+"/v1/runs/2", map[string]string{"If-None-Match": etag})
	if res2.StatusCode != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", res2.StatusCode)
	}
}

func TestGetRun_Errors(t *testing.T) {
	ts := newTestServer(t, sampleStore())

	cases := map[string]int{
		"/v1/runs/abc":               http.StatusBadRequest,
		"/v1/runs/0":                 http.StatusBadRequest,
		"/v1/runs/999":               http.StatusNotFound,
		"/v1/runs?limit=0":           http.StatusBadRequest,
		"/v1/runs?limit=101":         http.StatusBadRequest,
		"/v1/runs/2/reviews?limit=x": http.StatusBadRequest,
	}
	for path, want := range cases {
		res := get(t, ts.URL+path, nil)
		if res.StatusCode != want {
			t.Fatalf("%s: expected %d, got %d", path, want, res.StatusCode)
		}
		if ct := res.Header.Get("Content-Type"); ct != "application/problem+json" {
			t.Fatalf("%s: expected problem+json, got %q", path, ct)
		}
	}
}

func TestListRunReviews_PassesCursor(t *testing.T) {
	st := sampleStore()
	ts := newTestServer(t, st)

	res := get(t, ts.URL+"/v1/runs/2/reviews?limit=5&cursor=17", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}
	var page domain.ReviewsPage
	if err := json.NewDecoder(res.Body).Decode(&page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Review.Author != "Ana" || page.Items[0].Source != domain.SourceFeed {
		t.Fatalf("unexpected page: %+v", page)
	}
	if st.lastPg.Limit != 5 || st.lastPg.Cursor == nil || *st.lastPg.Cursor != "17" {
		t.Fatalf("unexpected page query: %+v", st.lastPg)
	}
}
