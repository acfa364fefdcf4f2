package app

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"review_sync/internal/domain"
)

// list limits the API serves from cache; invalidated after every recorded run
var cachedRunLimits = []int{20, 50, 100}

type QueryService struct {
	repo     domain.RunStore
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(r domain.RunStore, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{repo: r, cache: c, cacheTTL: ttl}
}

func runsKey(limit int) string { return fmt.Sprintf("runs:%d", limit) }

// ListRuns only caches the limits invalidateRuns knows about; any other limit
// reads through to the store.
func (s *QueryService) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	if !slices.Contains(cachedRunLimits, limit) {
		return s.repo.ListRuns(ctx, limit)
	}
	key := runsKey(limit)
	var out []domain.Run
	if ok, _ := s.cache.Get(ctx, key, &out); ok {
		return out, nil
	}
	out, err := s.repo.ListRuns(ctx, limit)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Set(ctx, key, out, int(s.cacheTTL.Seconds()))
	return out, nil
}

// Recorded runs are immutable, so a cached run is never invalidated.
func (s *QueryService) GetRun(ctx context.Context, id int64) (domain.Run, error) {
	key := fmt.Sprintf("run:%d", id)
	var run domain.Run
	if ok, _ := s.cache.Get(ctx, key, &run); ok {
		return run, nil
	}
	run, err := s.repo.GetRun(ctx, id)
	if err != nil {
		return domain.Run{}, err
	}
	_ = s.cache.Set(ctx, key, run, int(s.cacheTTL.Seconds()))
	return run, nil
}

func (s *QueryService) ListRunReviews(ctx context.Context, id int64, pg domain.PageQuery) (domain.ReviewsPage, error) {
	cursor := ""
	if pg.Cursor != nil {
		cursor = *pg.Cursor
	}
	key := fmt.Sprintf("run:%d:reviews:%d:%s", id, pg.Limit, cursor)
	var out domain.ReviewsPage
	if ok, _ := s.cache.Get(ctx, key, &out); ok {
		return out, nil
	}

	rs, err := s.repo.ListRunReviews(ctx, id, pg)
	if err != nil {
		return domain.ReviewsPage{}, err
	}

	// copy slice to avoid aliasing the repo's backing array
	copyRS := deepCopyReviewsPage(rs)

	// optional size guard
	if b, _ := json.Marshal(copyRS); len(b) < 1_000_000 {
		_ = s.cache.Set(ctx, key, copyRS, int(s.cacheTTL.Seconds()))
	}
	return copyRS, nil
}

func deepCopyReviewsPage(in domain.ReviewsPage) domain.ReviewsPage {
	out := domain.ReviewsPage{NextCursor: in.NextCursor}
	if n := len(in.Items); n > 0 {
		out.Items = make([]domain.StoredReview, n)
		copy(out.Items, in.Items)
	}
	return out
}

func invalidateRuns(ctx context.Context, c domain.Cache) {
	for _, lim := range cachedRunLimits {
		_ = c.Del(ctx, runsKey(lim))
	}
}
