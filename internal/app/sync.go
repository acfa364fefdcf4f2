package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"review_sync/internal/adapters/observability"
	"review_sync/internal/domain"
)

// SourcePlan is one source adapter plus how far to page through it.
type SourcePlan struct {
	Adapter domain.SourceAdapter
	Request domain.PageRequest
	Limits  RetrievalLimits
}

type SyncService struct {
	sources []SourcePlan
	deliver *Deliverer
	store   domain.RunStore // optional audit
	cache   domain.Cache    // optional, invalidated after a run is recorded
	workers int
	sleep   Sleeper
	now     func() time.Time
}

type SyncOption func(*SyncService)

func WithRunStore(s domain.RunStore) SyncOption { return func(x *SyncService) { x.store = s } }
func WithCache(c domain.Cache) SyncOption       { return func(x *SyncService) { x.cache = c } }
func WithWorkers(n int) SyncOption              { return func(x *SyncService) { x.workers = n } }
func WithSleeper(s Sleeper) SyncOption          { return func(x *SyncService) { x.sleep = s } }
func WithClock(now func() time.Time) SyncOption { return func(x *SyncService) { x.now = now } }

func NewSyncService(sources []SourcePlan, d *Deliverer, opts ...SyncOption) *SyncService {
	ordered := slices.Clone(sources)
	slices.SortStableFunc(ordered, func(a, b SourcePlan) int {
		return a.Adapter.Tag().Rank() - b.Adapter.Tag().Rank()
	})
	s := &SyncService{sources: ordered, deliver: d, workers: len(ordered), sleep: SleepCtx, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if s.workers < 1 {
		s.workers = 1
	}
	return s
}

type SyncResult struct {
	Run      domain.Run
	Reviews  []domain.CanonicalReview
	Merge    MergeStats
	Delivery DeliveryReport
}

// Collect runs every source's retrieval loop concurrently and returns once all
// of them have finished or failed. Results come back in source-priority order.
func (s *SyncService) Collect(ctx context.Context) []Retrieval {
	results := make([]Retrieval, len(s.sources))
	sem := semaphore.NewWeighted(int64(s.workers))
	var g errgroup.Group

	for i, plan := range s.sources {
		tag := plan.Adapter.Tag()
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = Retrieval{Source: tag, Err: err}
			continue
		}
		g.Go(func() error {
			defer sem.Release(1)
			r := Retrieve(ctx, plan.Adapter, plan.Request, plan.Limits, s.sleep)
			observability.ObserveRetrieval(string(tag), r.Pages, len(r.Candidates), r.Err != nil)
			if r.Err != nil {
				log.Warn().Str("source", string(tag)).Int("pages", r.Pages).
					Int("candidates", len(r.Candidates)).Err(r.Err).Msg("source unavailable, keeping partial results")
			} else {
				log.Info().Str("source", string(tag)).Int("pages", r.Pages).
					Int("candidates", len(r.Candidates)).Msg("source collected")
			}
			results[i] = r
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Run performs one full batch: collect, normalize, merge, deliver, record.
func (s *SyncService) Run(ctx context.Context, dryRun bool) (SyncResult, error) {
	started := s.now().UTC()
	run := domain.Run{StartedAt: started, Candidates: map[string]int{}}
	if len(s.sources) > 0 {
		run.AppID = s.sources[0].Request.AppID
	}

	// 1) Collect (barrier), then normalize in source-priority order.
	var normalized []domain.CanonicalReview
	for _, r := range s.Collect(ctx) {
		run.Candidates[string(r.Source)] = len(r.Candidates)
		rs, rejected := NormalizeAll(r.Candidates)
		if rejected > 0 {
			observability.ObserveRejected(string(r.Source), rejected)
			log.Debug().Str("source", string(r.Source)).Int("rejected", rejected).Msg("dropped malformed candidates")
		}
		run.Rejected += rejected
		normalized = append(normalized, rs...)
	}

	// 2) Merge.
	m := Merge(normalized)
	res := SyncResult{Reviews: m.Reviews(), Merge: m.Stats()}
	observability.ObserveMerge(res.Merge.Inserted, res.Merge.Replaced, res.Merge.Patched, res.Merge.Absorbed)
	run.Merged = m.Len()
	log.Info().Int("normalized", len(normalized)).Int("merged", run.Merged).
		Int("replaced", res.Merge.Replaced).Int("patched", res.Merge.Patched).Msg("merge done")

	// 3) Deliver.
	var err error
	switch {
	case dryRun:
		run.Outcome = "dry_run"
	case m.Len() == 0:
		run.Outcome = "empty"
		log.Info().Msg("nothing to send")
	default:
		res.Delivery, err = s.deliver.Deliver(ctx, res.Reviews)
		run.Attempts = res.Delivery.Attempts
		run.Accepted = res.Delivery.Accepted
		switch {
		case err == nil:
			run.Outcome = "delivered"
		case errors.Is(err, domain.ErrFatalDelivery):
			run.Outcome = "fatal"
		default:
			run.Outcome = "exhausted"
		}
		if err != nil {
			msg := err.Error()
			run.Error = &msg
		}
	}
	run.FinishedAt = s.now().UTC()

	// 4) Audit (best effort).
	run.ID = s.record(ctx, run, m.Entries())
	res.Run = run
	if err != nil {
		return res, fmt.Errorf("deliver %d reviews: %w", m.Len(), err)
	}
	return res, nil
}

func (s *SyncService) record(ctx context.Context, run domain.Run, entries []MergedReview) int64 {
	if s.store == nil {
		return 0
	}
	stored := make([]domain.StoredReview, len(entries))
	for i, e := range entries {
		stored[i] = domain.StoredReview{Signature: e.Signature, Source: e.Review.SourceTag, Review: e.Review}
	}
	id, err := s.store.RecordRun(ctx, run, stored)
	if err != nil {
		log.Warn().Err(err).Msg("record run failed")
		return 0
	}
	if s.cache != nil {
		invalidateRuns(ctx, s.cache)
	}
	return id
}
