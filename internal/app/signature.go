package app

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"review_sync/internal/domain"
)

const signatureTextLen = 120

var whitespaceRegex = regexp.MustCompile(`\s+`)

// foldText NFC-normalizes, lowercases and collapses runs of whitespace.
func foldText(s string) string {
	s = norm.NFC.String(s)
	s = strings.ToLower(s)
	s = whitespaceRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Signature is the fuzzy identity key used to match the same review across
// sources: author | first 120 chars of text (or title) | review day.
// Trailing punctuation and ellipses are dropped from the text part after
// truncation, so "Ótimo app" and "Ótimo app!!" match. A text made only of
// punctuation or emoji is kept as is.
func Signature(r domain.CanonicalReview) string {
	body := r.Text
	if strings.TrimSpace(body) == "" {
		body = deref(r.Title)
	}
	body = foldText(body)
	if rs := []rune(body); len(rs) > signatureTextLen {
		body = string(rs[:signatureTextLen])
	}
	if trimmed := strings.TrimRightFunc(body, func(c rune) bool {
		return unicode.IsPunct(c) || unicode.IsSpace(c) || unicode.IsSymbol(c)
	}); trimmed != "" {
		body = trimmed
	}

	day := ""
	if r.ReviewDate != nil {
		day = r.ReviewDate.UTC().Format("2006-01-02")
	}
	return foldText(r.Author) + "|" + body + "|" + day
}
