package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"review_sync/internal/domain"
)

// the store never serves more than this many feed pages
const maxFeedPage = 10

// Feed reads the customer-review syndication feed in its JSON rendering.
// The cursor is the 1-based page number.
type Feed struct {
	base string
	g    getter
}

func NewFeed(base string, rps float64, timeout time.Duration) *Feed {
	return &Feed{base: strings.TrimRight(base, "/"), g: newGetter("rss_feed", rps, timeout)}
}

func (f *Feed) Tag() domain.SourceTag { return domain.SourceFeed }

func (f *Feed) FetchPage(ctx context.Context, req domain.PageRequest) (domain.Page, error) {
	page := 1
	if req.Cursor != "" {
		n, err := strconv.Atoi(req.Cursor)
		if err != nil || n < 1 {
			return domain.Page{}, fmt.Errorf("rss_feed: bad cursor %q", req.Cursor)
		}
		page = n
	}
	u := fmt.Sprintf("%s/%s/rss/customerreviews/page=%d/id=%s/sortby=mostrecent/json",
		f.base, url.PathEscape(req.Country), page, url.PathEscape(req.AppID))

	var doc struct {
		Feed struct {
			Entry json.RawMessage `json:"entry"`
		} `json:"feed"`
	}
	if err := f.g.getJSON(ctx, "customerreviews", u, &doc); err != nil {
		return domain.Page{}, err
	}

	entries, err := feedEntries(doc.Feed.Entry)
	if err != nil {
		return domain.Page{}, fmt.Errorf("%w: rss_feed: %v", domain.ErrSourceUnavailable, err)
	}
	rows := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		if _, isApp := e["im:name"]; isApp { // app metadata, not a review
			continue
		}
		rows = append(rows, e)
	}

	next := ""
	if len(entries) > 0 && page < maxFeedPage {
		next = strconv.Itoa(page + 1)
	}
	return domain.Page{Candidates: candidates(f.Tag(), rows), NextCursor: next}, nil
}

// feedEntries accepts both a list of entries and a lone entry object.
func feedEntries(raw json.RawMessage) ([]map[string]any, error) {
	trimmed := strings.TrimSpace(string(raw))
	switch {
	case trimmed == "" || trimmed == "null":
		return nil, nil
	case strings.HasPrefix(trimmed, "["):
		var list []map[string]any
		err := json.Unmarshal(raw, &list)
		return list, err
	default:
		var one map[string]any
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, err
		}
		return []map[string]any{one}, nil
	}
}
