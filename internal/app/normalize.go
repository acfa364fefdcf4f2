package app

import (
	"maps"
	"math"
	"strconv"
	"strings"
	"time"

	"review_sync/internal/domain"
)

/********** alias registries (one per source shape) **********/

var reviewAliases = map[domain.SourceTag]map[string][]string{
	domain.SourcePrimaryAPI: {
		"source_id": {"reviewId", "id", "review_id"},
		"author":    {"userName", "author", "user", "user.name"},
		"title":     {"title"},
		"text":      {"text", "content", "body"},
		"rating":    {"score", "rating"},
		"date":      {"date", "at", "review_date"},
		"version":   {"reviewCreatedVersion", "appVersion", "version"},
		"dev_text":  {"replyText", "developerComment", "developerResponse.text", "developer_response_text"},
		"dev_at":    {"replyDate", "developerCommentLastUpdated", "developerResponse.lastModified"},
	},
	domain.SourceFeed: {
		"source_id": {"id.label", "id.attributes.im:id"},
		"author":    {"author.name.label"},
		"title":     {"title.label"},
		"text":      {"content.label"},
		"rating":    {"im:rating.label"},
		"date":      {"updated.label", "im:releaseDate.label"},
		"version":   {"im:version.label"},
		"dev_text":  {"developerResponse.content.label"},
	},
	domain.SourceRenderedPage: {
		"author":   {"author", "userName"},
		"title":    {"title"},
		"text":     {"text", "body"},
		"rating":   {"rating"},
		"date":     {"date", "review_date"},
		"dev_text": {"developerResponse", "dev_response_text"},
	},
}

// accepted date encodings, most specific first
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05-07:00",
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	time.RFC1123Z,
	time.RFC1123,
}

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// lookupStr returns the trimmed string at path or "".
func lookupStr(m map[string]any, path string) string {
	if v := lookupAny(m, path); v != nil {
		switch s := v.(type) {
		case string:
			return strings.TrimSpace(s)
		case float64:
			return strconv.FormatFloat(s, 'f', -1, 64)
		}
	}
	return ""
}

func firstNonEmptyAlias(m map[string]any, aliases map[string][]string, key string) *string {
	for _, p := range aliases[key] {
		if s := lookupStr(m, p); s != "" {
			return &s
		}
	}
	return nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// getFloatFlexible: number from several paths (float64/int/string like "4,0").
func getFloatFlexible(m map[string]any, paths ...string) *float64 {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case float64:
			f := v
			return &f
		case int:
			f := float64(v)
			return &f
		case string:
			s := strings.TrimSpace(strings.ReplaceAll(v, ",", "."))
			if s == "" {
				continue
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

// ratingFrom rounds to the nearest star; anything outside 1..5 is dropped.
func ratingFrom(m map[string]any, paths ...string) *int {
	f := getFloatFlexible(m, paths...)
	if f == nil || math.IsNaN(*f) {
		return nil
	}
	n := int(math.Round(*f))
	if n < 1 || n > 5 {
		return nil
	}
	return &n
}

// parseDate never fails: unknown encodings collapse to nil.
func parseDate(v any) *time.Time {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				u := ts.UTC()
				return &u
			}
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return parseDate(float64(n))
		}
	case float64:
		if t <= 0 || math.IsInf(t, 0) || math.IsNaN(t) {
			return nil
		}
		var ts time.Time
		if t > 1e12 { // epoch millis
			ts = time.UnixMilli(int64(t))
		} else {
			ts = time.Unix(int64(t), 0)
		}
		u := ts.UTC()
		return &u
	case time.Time:
		if t.IsZero() {
			return nil
		}
		u := t.UTC()
		return &u
	}
	return nil
}

func firstDate(m map[string]any, paths ...string) *time.Time {
	for _, p := range paths {
		if ts := parseDate(lookupAny(m, p)); ts != nil {
			return ts
		}
	}
	return nil
}

/********** normalizer **********/

// Normalize maps one raw candidate into the canonical schema. ok is false when
// the candidate is inadmissible (no author, or neither body nor title).
func Normalize(c domain.Candidate) (domain.CanonicalReview, bool) {
	aliases, known := reviewAliases[c.Source]
	if !known || c.Fields == nil {
		return domain.CanonicalReview{}, false
	}
	f := c.Fields

	author := deref(firstNonEmptyAlias(f, aliases, "author"))
	title := firstNonEmptyAlias(f, aliases, "title")
	text := deref(firstNonEmptyAlias(f, aliases, "text"))
	if author == "" || (text == "" && title == nil) {
		return domain.CanonicalReview{}, false
	}

	return domain.CanonicalReview{
		SourceID:              firstNonEmptyAlias(f, aliases, "source_id"),
		Author:                author,
		Title:                 title,
		Text:                  text,
		Rating:                ratingFrom(f, aliases["rating"]...),
		ReviewDate:            firstDate(f, aliases["date"]...),
		Version:               firstNonEmptyAlias(f, aliases, "version"),
		DeveloperResponseText: firstNonEmptyAlias(f, aliases, "dev_text"),
		DeveloperResponseAt:   firstDate(f, aliases["dev_at"]...),
		SourceTag:             c.Source,
		Raw:                   maps.Clone(f),
	}, true
}

// NormalizeAll drops inadmissible candidates and reports how many were dropped.
func NormalizeAll(cs []domain.Candidate) ([]domain.CanonicalReview, int) {
	out := make([]domain.CanonicalReview, 0, len(cs))
	rejected := 0
	for _, c := range cs {
		r, ok := Normalize(c)
		if !ok {
			rejected++
			continue
		}
		out = append(out, r)
	}
	return out, rejected
}
