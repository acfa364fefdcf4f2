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

// PlayAPI reads the structured, token-paginated reviews API. Responses are
// either a bare array or {"data": [...], "nextPaginationToken": "..."}.
type PlayAPI struct {
	base string
	g    getter
}

func NewPlayAPI(base string, rps float64, timeout time.Duration) *PlayAPI {
	return &PlayAPI{base: strings.TrimRight(base, "/"), g: newGetter("play_api", rps, timeout)}
}

func (a *PlayAPI) Tag() domain.SourceTag { return domain.SourcePrimaryAPI }

func (a *PlayAPI) FetchPage(ctx context.Context, req domain.PageRequest) (domain.Page, error) {
	q := url.Values{}
	q.Set("sort", "newest")
	q.Set("lang", req.Lang)
	q.Set("country", req.Country)
	if req.PageSize > 0 {
		q.Set("num", strconv.Itoa(req.PageSize))
	}
	if req.Cursor != "" {
		q.Set("paginationToken", req.Cursor)
	}
	u := fmt.Sprintf("%s/apps/%s/reviews?%s", a.base, url.PathEscape(req.AppID), q.Encode())

	var raw json.RawMessage
	if err := a.g.getJSON(ctx, "reviews", u, &raw); err != nil {
		return domain.Page{}, err
	}
	rows, next, err := decodePlayPage(raw)
	if err != nil {
		return domain.Page{}, fmt.Errorf("%w: play_api: %v", domain.ErrSourceUnavailable, err)
	}
	return domain.Page{Candidates: candidates(a.Tag(), rows), NextCursor: next}, nil
}

func decodePlayPage(raw json.RawMessage) ([]map[string]any, string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, "", nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var rows []map[string]any
		err := json.Unmarshal(raw, &rows)
		return rows, "", err
	}
	var env struct {
		Data                []map[string]any `json:"data"`
		NextPaginationToken string           `json:"nextPaginationToken"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, "", err
	}
	return env.Data, env.NextPaginationToken, nil
}
