package app

import (
	"context"
	"time"

	"review_sync/internal/domain"
)

// RetrievalLimits bounds one source's retrieval loop. Zero means unbounded
// for MaxPages and MaxItems; at least one of them should be set.
type RetrievalLimits struct {
	MaxPages int
	MaxItems int
	PageSize int
	DelayMin time.Duration
	DelayMax time.Duration
}

// Retrieval is what one source contributed. Err is the terminal failure, if
// any; Candidates gathered before it are still valid.
type Retrieval struct {
	Source     domain.SourceTag
	Candidates []domain.Candidate
	Pages      int
	Err        error
}

// Retrieve drives adapter page by page until it runs dry, a limit is hit, or
// it fails. Pages are fetched sequentially with a randomized pause between them.
func Retrieve(ctx context.Context, adapter domain.SourceAdapter, req domain.PageRequest, lim RetrievalLimits, sleep Sleeper) Retrieval {
	if sleep == nil {
		sleep = SleepCtx
	}
	acc := Retrieval{Source: adapter.Tag()}
	if lim.PageSize > 0 {
		req.PageSize = lim.PageSize
	}

	for {
		if lim.MaxPages > 0 && acc.Pages >= lim.MaxPages {
			break
		}
		if lim.MaxItems > 0 && len(acc.Candidates) >= lim.MaxItems {
			break
		}
		if acc.Pages > 0 && !sleep(ctx, between(lim.DelayMin, lim.DelayMax)) {
			acc.Err = ctx.Err()
			break
		}

		page, err := adapter.FetchPage(ctx, req)
		if err != nil {
			acc.Err = err
			break
		}
		acc.Pages++
		if len(page.Candidates) == 0 {
			break
		}
		acc.Candidates = append(acc.Candidates, page.Candidates...)
		if page.NextCursor == "" {
			break
		}
		req.Cursor = page.NextCursor
	}

	if lim.MaxItems > 0 && len(acc.Candidates) > lim.MaxItems {
		acc.Candidates = acc.Candidates[:lim.MaxItems]
	}
	return acc
}
