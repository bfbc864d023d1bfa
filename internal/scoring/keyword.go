package scoring

import (
	"math"
	"sort"
	"strings"

	"rankjuice/internal/match"
)

// Keyword pairs a researched search phrase with its monthly search volume.
type Keyword struct {
	Phrase       string `json:"phrase"`
	SearchVolume int    `json:"search_volume"`
}

// Draft is a candidate listing under evaluation. Bullets may be shorter than
// the account's slot count; BackendTerms is the raw search-terms field.
type Draft struct {
	Title        string   `json:"title"`
	Bullets      []string `json:"bullets"`
	Description  string   `json:"description"`
	BackendTerms string   `json:"backend_terms"`
}

// AccountType selects the tiering ranges for a listing.
type AccountType string

// Supported account types. Anything other than AccountVendor falls back to
// seller ranges.
const (
	AccountSeller AccountType = "seller"
	AccountVendor AccountType = "vendor"
)

// volume returns the keyword's search volume with negatives clamped to zero.
// Scraped volume feeds occasionally deliver -1 for "unknown".
func volume(k Keyword) int {
	if k.SearchVolume < 0 {
		return 0
	}
	return k.SearchVolume
}

// sortByVolume returns a copy of keywords ordered by descending clamped
// volume. The sort is stable so equal-volume keywords keep their input order.
func sortByVolume(keywords []Keyword) []Keyword {
	sorted := make([]Keyword, len(keywords))
	copy(sorted, keywords)
	sort.SliceStable(sorted, func(i, j int) bool {
		return volume(sorted[i]) > volume(sorted[j])
	})
	return sorted
}

// RankedByVolume exposes the tiering sort for callers that need the full
// ranked list, such as the PPC recommender input.
func RankedByVolume(keywords []Keyword) []Keyword {
	return sortByVolume(keywords)
}

// topKeywords returns at most n keywords ordered by descending volume.
func topKeywords(keywords []Keyword, n int) []Keyword {
	sorted := sortByVolume(keywords)
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func (d Draft) bulletText() string {
	return strings.Join(d.Bullets, " ")
}

// visibleText is the indexable copy a shopper can see.
func (d Draft) visibleText() string {
	return d.Title + " " + d.bulletText() + " " + d.Description
}

func (d Draft) combinedText() string {
	return d.visibleText() + " " + d.BackendTerms
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// coveredCount reports how many of the given keywords clear the coverage
// threshold against the word set.
func coveredCount(keywords []Keyword, set map[string]struct{}) int {
	count := 0
	for _, kw := range keywords {
		if match.PhraseCovered(kw.Phrase, set) {
			count++
		}
	}
	return count
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round1(float64(part) / float64(total) * 100)
}
