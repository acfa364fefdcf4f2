// Package stores holds the source adapters that pull raw reviews from the
// app stores: a paginated JSON API, the RSS customer-review feed, and the
// rendered see-all reviews page.
package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"review_sync/internal/adapters/observability"
	"review_sync/internal/domain"
)

const userAgent = "Mozilla/5.0 (compatible; review-sync/1.0)"

// getter is the shared HTTP core of every adapter: client-side rate limiting,
// one attempt per call, status classification. Retrying is the retrieval
// loop's concern (it stops and keeps what it has).
type getter struct {
	service string
	hc      *http.Client
	rl      *rate.Limiter
}

func newGetter(service string, rps float64, timeout time.Duration) getter {
	if rps <= 0 {
		rps = 2
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return getter{
		service: service,
		hc:      &http.Client{Timeout: timeout},
		rl:      rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// fetch performs a GET and returns the body of a 2xx response.
func (g getter) fetch(ctx context.Context, endpoint, url, accept string) ([]byte, error) {
	if err := g.rl.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := g.hc.Do(req)
	if err != nil {
		observability.ObserveExternal(g.service, endpoint, 0, time.Since(start))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrSourceUnavailable, g.service, err)
	}
	defer resp.Body.Close()
	observability.ObserveExternal(g.service, endpoint, resp.StatusCode, time.Since(start))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrSourceUnavailable, g.service, domain.ErrNotFound)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s: %w (%d)", domain.ErrSourceUnavailable, g.service, domain.ErrUnauthorized, resp.StatusCode)
	default:
		// read a small error body for diagnostics
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %s: bad status %d: %s", domain.ErrSourceUnavailable, g.service,
			resp.StatusCode, strings.TrimSpace(string(b)))
	}
}

func (g getter) getJSON(ctx context.Context, endpoint, url string, out any) error {
	b, err := g.fetch(ctx, endpoint, url, "application/json")
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("%w: %s: decode: %v", domain.ErrSourceUnavailable, g.service, err)
	}
	return nil
}

// candidates tags raw maps with their source.
func candidates(tag domain.SourceTag, rows []map[string]any) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Candidate{Source: tag, Fields: r})
	}
	return out
}
