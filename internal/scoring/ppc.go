package scoring

import (
	"strings"
	"unicode/utf8"

	"rankjuice/internal/match"
)

// Bucket routing thresholds and caps.
const (
	exactRankLimit    = 10
	exactVolumeFloor  = 1000
	phraseRankLimit   = 30
	phraseVolumeFloor = 500

	exactCap    = 15
	phraseCap   = 20
	broadCap    = 25
	negativeCap = 10

	minNegativeLength = 4
)

// genericTerms keeps everyday product words out of the negative-keyword
// suggestions. A single generic word is a category term, not a competitor
// brand.
var genericTerms = buildWordSet([]string{
	"steel", "glass", "wood", "metal", "plastic", "cotton", "leather",
	"wool", "bamboo", "silicone", "ceramic",
	"black", "white", "blue", "green", "red", "grey", "gray", "brown",
	"pink", "purple", "yellow", "silver", "gold",
	"small", "medium", "large", "mini", "maxi",
	"water", "bottle", "pack", "gift", "set",
	"women", "woman", "men", "man", "kids", "baby",
	"home", "kitchen", "garden", "travel", "sport", "sports", "outdoor",
	"premium", "quality", "original", "professional", "portable",
})

// PPCEntry is one keyword routed to a paid-search match-type bucket.
type PPCEntry struct {
	Phrase       string `json:"phrase"`
	SearchVolume int    `json:"search_volume"`
	Indexed      bool   `json:"indexed"`
}

// PPCReport groups the keyword list into suggested campaign buckets.
type PPCReport struct {
	Exact     []PPCEntry `json:"exact_match"`
	Phrase    []PPCEntry `json:"phrase_match"`
	Broad     []PPCEntry `json:"broad_match"`
	Negatives []string   `json:"negative_candidates"`
	Summary   PPCSummary `json:"summary"`
}

// PPCSummary counts the truncated buckets and estimates a starting daily
// spend for the exact and phrase campaigns.
type PPCSummary struct {
	ExactCount           int     `json:"exact_count"`
	PhraseCount          int     `json:"phrase_count"`
	BroadCount           int     `json:"broad_count"`
	NegativeCount        int     `json:"negative_count"`
	EstimatedDailyBudget float64 `json:"estimated_daily_budget"`
}

// RecommendPPC routes keywords into exact, phrase and broad match-type
// buckets by rank and volume. The caller supplies the list already sorted
// descending by search volume; the list index is the rank. Each entry records
// whether the draft text already indexes the phrase, so sellers can spot
// keywords they are paying for but not ranking on.
func RecommendPPC(keywords []Keyword, draftText string) PPCReport {
	draftSet := match.Words(draftText)

	var exact, phrase, broad []PPCEntry
	var negatives []string
	for i, kw := range keywords {
		vol := volume(kw)
		entry := PPCEntry{
			Phrase:       kw.Phrase,
			SearchVolume: vol,
			Indexed:      match.PhraseCovered(kw.Phrase, draftSet),
		}
		switch {
		case i < exactRankLimit && vol >= exactVolumeFloor:
			exact = append(exact, entry)
		case i < phraseRankLimit || vol >= phraseVolumeFloor:
			phrase = append(phrase, entry)
		case vol > 0:
			broad = append(broad, entry)
		}

		if word, ok := negativeCandidate(kw.Phrase); ok {
			negatives = append(negatives, word)
		}
	}

	exact = truncateEntries(exact, exactCap)
	phrase = truncateEntries(phrase, phraseCap)
	broad = truncateEntries(broad, broadCap)
	if len(negatives) > negativeCap {
		negatives = negatives[:negativeCap]
	}

	totalVolume := 0
	for _, entry := range exact {
		totalVolume += entry.SearchVolume
	}
	for _, entry := range phrase {
		totalVolume += entry.SearchVolume
	}

	return PPCReport{
		Exact:     exact,
		Phrase:    phrase,
		Broad:     broad,
		Negatives: negatives,
		Summary: PPCSummary{
			ExactCount:           len(exact),
			PhraseCount:          len(phrase),
			BroadCount:           len(broad),
			NegativeCount:        len(negatives),
			EstimatedDailyBudget: round2(float64(totalVolume) / 30 * 0.01 * 0.75),
		},
	}
}

// negativeCandidate flags single-word phrases of 4+ runes that are not plain
// category vocabulary. Those are usually competitor brand names worth
// excluding from broad campaigns.
func negativeCandidate(phrase string) (string, bool) {
	fields := strings.Fields(strings.ToLower(phrase))
	if len(fields) != 1 {
		return "", false
	}
	word := fields[0]
	if utf8.RuneCountInString(word) < minNegativeLength {
		return "", false
	}
	if _, generic := genericTerms[word]; generic {
		return "", false
	}
	return word, true
}

func truncateEntries(entries []PPCEntry, limit int) []PPCEntry {
	if len(entries) > limit {
		return entries[:limit]
	}
	return entries
}
