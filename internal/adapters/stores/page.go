package stores

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"review_sync/internal/domain"
)

// Page scrapes the rendered "see all reviews" page. It is the only source
// that shows developer responses, and the most fragile one: layout changes
// here reduce what it finds, they never produce an error for a parsed page.
type Page struct {
	base string
	g    getter
}

func NewPage(base string, rps float64, timeout time.Duration) *Page {
	return &Page{base: strings.TrimRight(base, "/"), g: newGetter("store_page", rps, timeout)}
}

func (p *Page) Tag() domain.SourceTag { return domain.SourceRenderedPage }

// FetchPage ignores the cursor: the page is a single document.
func (p *Page) FetchPage(ctx context.Context, req domain.PageRequest) (domain.Page, error) {
	u := fmt.Sprintf("%s/%s/app/id%s?see-all=reviews", p.base, url.PathEscape(req.Country), url.PathEscape(req.AppID))
	body, err := p.g.fetch(ctx, "see_all_reviews", u, "text/html")
	if err != nil {
		return domain.Page{}, err
	}
	rows, err := ParseReviewsHTML(body)
	if err != nil {
		return domain.Page{}, fmt.Errorf("%w: store_page: %v", domain.ErrSourceUnavailable, err)
	}
	return domain.Page{Candidates: candidates(p.Tag(), rows)}, nil
}

var (
	cardSelector     = ".we-customer-review, [data-test-we-customer-review]"
	authorSelectors  = []string{"[data-test-user-name]", ".we-customer-review__user"}
	titleSelectors   = []string{"[data-test-review-title]", ".we-customer-review__title", "h3"}
	bodySelectors    = []string{"[data-test-review-body]", ".we-customer-review__body .we-clamp", ".we-customer-review__body", "blockquote"}
	replySelectors   = []string{"[data-test-developer-response-body]", ".we-customer-review__response-body", ".we-customer-review__response .we-clamp"}
	ratingLabelRegex = regexp.MustCompile(`(?i)(\d+)(?:[.,]\d+)?\s*(?:de|out of|of)\s*5`)
	dayRegex         = regexp.MustCompile(`\b(\d{2}/\d{2}/\d{4})\b`)
	replyLabelRegex  = regexp.MustCompile(`(?i)(resposta do desenvolvedor|developer response)\s*,?\s*`)
	moreSuffixRegex  = regexp.MustCompile(`(?i)\s*\b(mais|more)\s*$`)
)

// ParseReviewsHTML extracts one raw row per review card.
func ParseReviewsHTML(doc []byte) ([]map[string]any, error) {
	root, err := goquery.NewDocumentFromReader(bytes.NewReader(doc))
	if err != nil {
		return nil, err
	}

	var rows []map[string]any
	root.Find(cardSelector).Each(func(_ int, card *goquery.Selection) {
		row := map[string]any{"html": true}
		setNonEmpty(row, "author", firstText(card, authorSelectors))
		setNonEmpty(row, "title", firstText(card, titleSelectors))
		setNonEmpty(row, "text", firstText(card, bodySelectors))
		setNonEmpty(row, "date", cardDate(card))
		setNonEmpty(row, "developerResponse", cardReply(card))
		if r, ok := cardRating(card); ok {
			row["rating"] = r
		}
		rows = append(rows, row)
	})
	return rows, nil
}

func setNonEmpty(m map[string]any, k, v string) {
	if v != "" {
		m[k] = v
	}
}

func clean(s string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(s), " "))
}

func firstText(card *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		if s := clean(card.Find(sel).First().Text()); s != "" {
			return s
		}
	}
	return ""
}

func cardRating(card *goquery.Selection) (float64, bool) {
	var out float64
	found := false
	card.Find("[aria-label]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		label, _ := s.Attr("aria-label")
		m := ratingLabelRegex.FindStringSubmatch(label)
		if m == nil {
			return true
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return true
		}
		out, found = float64(n), true
		return false
	})
	return out, found
}

// cardDate prefers a machine-readable datetime attribute, then a dd/mm/yyyy day.
func cardDate(card *goquery.Selection) string {
	if dt, ok := card.Find("time[datetime]").First().Attr("datetime"); ok && strings.TrimSpace(dt) != "" {
		return strings.TrimSpace(dt)
	}
	if m := dayRegex.FindStringSubmatch(card.Text()); m != nil {
		return m[1]
	}
	return ""
}

func cardReply(card *goquery.Selection) string {
	if s := firstText(card, replySelectors); s != "" {
		return moreSuffixRegex.ReplaceAllString(s, "")
	}
	text := clean(card.Text())
	loc := replyLabelRegex.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	reply := strings.TrimSpace(text[loc[1]:])
	reply = dayRegex.ReplaceAllString(reply, "")
	return clean(moreSuffixRegex.ReplaceAllString(reply, ""))
}
