package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"review_sync/internal/adapters/observability"
	"review_sync/internal/domain"
)

// Client posts a JSON batch to the ingestion endpoint, one attempt per call.
type Client struct {
	url   string
	token string
	hc    *http.Client
}

func New(url, token string, timeout time.Duration) (*Client, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: ingest url", domain.ErrConfigMissing)
	}
	if token == "" {
		return nil, fmt.Errorf("%w: ingest token", domain.ErrConfigMissing)
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{url: url, token: token, hc: &http.Client{Timeout: timeout}}, nil
}

// Post returns the endpoint's status for any HTTP response; err is only set
// when no response was obtained.
func (c *Client) Post(ctx context.Context, body []byte) (domain.IngestResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return domain.IngestResponse{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		observability.ObserveExternal("ingest", "import", 0, time.Since(start))
		return domain.IngestResponse{}, err
	}
	defer resp.Body.Close()
	observability.ObserveExternal("ingest", "import", resp.StatusCode, time.Since(start))

	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return domain.IngestResponse{
		Status:   resp.StatusCode,
		Accepted: acceptedCount(b),
		Body:     strings.TrimSpace(string(b)),
	}, nil
}

// acceptedCount reads the first count-like field the endpoint reports.
func acceptedCount(b []byte) *int {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	for _, k := range []string{"accepted", "inserted", "imported", "count"} {
		if f, ok := m[k].(float64); ok {
			n := int(f)
			return &n
		}
	}
	return nil
}
