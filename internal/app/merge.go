package app

import (
	"slices"

	"review_sync/internal/domain"
)

type MergeStats struct {
	Inserted int `json:"inserted"`
	Replaced int `json:"replaced"`
	Patched  int `json:"patched"`
	Absorbed int `json:"absorbed"` // matched an entry and changed nothing
}

type MergedReview struct {
	Signature string
	Review    domain.CanonicalReview
}

// Merger unions canonical reviews by signature. Entries keep the order in
// which their signature was first seen; no entry is ever removed.
type Merger struct {
	index   map[string]int
	entries []MergedReview
	stats   MergeStats
}

func NewMerger() *Merger {
	return &Merger{index: make(map[string]int)}
}

// Add folds one review into the set. Callers must add in source-priority order.
func (m *Merger) Add(in domain.CanonicalReview) {
	k := Signature(in)
	i, seen := m.index[k]
	if !seen {
		m.index[k] = len(m.entries)
		m.entries = append(m.entries, MergedReview{Signature: k, Review: in})
		m.stats.Inserted++
		return
	}

	stored := m.entries[i].Review
	if in.HasSourceID() && !stored.HasSourceID() {
		m.entries[i].Review = unionInto(in, stored)
		m.stats.Replaced++
		return
	}
	if patched, ok := patchDeveloperResponse(stored, in); ok {
		m.entries[i].Review = patched
		m.stats.Patched++
		return
	}
	m.stats.Absorbed++
}

func (m *Merger) Len() int { return len(m.entries) }

func (m *Merger) Stats() MergeStats { return m.stats }

// Entries returns a copy of the merged set in first-seen order.
func (m *Merger) Entries() []MergedReview {
	return slices.Clone(m.entries)
}

func (m *Merger) Reviews() []domain.CanonicalReview {
	out := make([]domain.CanonicalReview, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Review
	}
	return out
}

// Merge orders reviews by source priority (stable within a source) and
// folds them into one de-duplicated set.
func Merge(reviews []domain.CanonicalReview) *Merger {
	ordered := slices.Clone(reviews)
	slices.SortStableFunc(ordered, func(a, b domain.CanonicalReview) int {
		return a.SourceTag.Rank() - b.SourceTag.Rank()
	})
	m := NewMerger()
	for _, r := range ordered {
		m.Add(r)
	}
	return m
}

// unionInto returns winner with every optional field it lacks filled from prev.
func unionInto(winner, prev domain.CanonicalReview) domain.CanonicalReview {
	if !winner.HasDeveloperResponse() && prev.HasDeveloperResponse() {
		winner.DeveloperResponseText = prev.DeveloperResponseText
		if winner.DeveloperResponseAt == nil {
			winner.DeveloperResponseAt = prev.DeveloperResponseAt
		}
	}
	if winner.Title == nil {
		winner.Title = prev.Title
	}
	if winner.Rating == nil {
		winner.Rating = prev.Rating
	}
	if winner.ReviewDate == nil {
		winner.ReviewDate = prev.ReviewDate
	}
	if winner.Version == nil {
		winner.Version = prev.Version
	}
	return winner
}

// patchDeveloperResponse copies only the developer response from in into
// stored, and only when stored has none.
func patchDeveloperResponse(stored, in domain.CanonicalReview) (domain.CanonicalReview, bool) {
	if stored.HasDeveloperResponse() || !in.HasDeveloperResponse() {
		return stored, false
	}
	stored.DeveloperResponseText = in.DeveloperResponseText
	if stored.DeveloperResponseAt == nil {
		stored.DeveloperResponseAt = in.DeveloperResponseAt
	}
	return stored, true
}
