package scoring

import (
	"sort"
	"strings"
	"unicode/utf8"

	"rankjuice/internal/match"
)

// variantSkipWords excludes size units, materials and adjective-like words
// from plural/singular variant generation. "edelstahls" or "xxls" would only
// burn budget.
var variantSkipWords = map[string]struct{}{
	"xl": {}, "xxl": {}, "xxxl": {}, "cm": {}, "mm": {}, "ml": {}, "oz": {},
	"kg": {}, "lb": {}, "inch": {}, "zoll": {}, "liter": {}, "litre": {},
	"small": {}, "medium": {}, "large": {}, "klein": {}, "gross": {},
	"mini": {}, "maxi": {}, "neu": {}, "new": {}, "free": {}, "gratis": {},
	"plus": {}, "extra": {}, "deluxe": {}, "premium": {},
	"steel": {}, "glass": {}, "wood": {}, "metal": {}, "plastic": {},
	"cotton": {}, "leather": {}, "silk": {}, "wool": {}, "bamboo": {},
	"ceramic": {}, "edelstahl": {}, "glas": {}, "holz": {}, "metall": {},
	"kunststoff": {}, "baumwolle": {}, "leder": {},
}

// PackBackendTerms fills the hidden search-terms field up to maxBytes with
// material the visible listing does not already index. Four greedy passes run
// in a fixed order, each stopping at the first candidate that would overflow
// the budget:
//
//  1. whole keyword phrases not fully covered by the visible copy,
//  2. individual root words ranked by the cumulative volume of the keywords
//     containing them,
//  3. plural/singular variants of those root words,
//  4. caller-supplied suggestion terms.
//
// The result is the space-joined accepted terms and is guaranteed to fit in
// maxBytes when UTF-8 encoded. maxBytes <= 0 yields an empty string.
func PackBackendTerms(keywords []Keyword, visibleText string, maxBytes int, suggestions string) string {
	if maxBytes <= 0 {
		return ""
	}

	visible := match.Words(visibleText)
	packer := newTermPacker(maxBytes, visible)
	ranked := rankedRootWords(keywords)

	// Pass 1: full phrases with at least one word missing from the visible copy.
	seenPhrases := make(map[string]struct{})
	for _, kw := range keywords {
		phrase := strings.ToLower(strings.TrimSpace(kw.Phrase))
		if phrase == "" {
			continue
		}
		if _, dup := seenPhrases[phrase]; dup {
			continue
		}
		seenPhrases[phrase] = struct{}{}
		if allWordsIn(phrase, visible) {
			continue
		}
		if !packer.add(phrase) {
			break
		}
	}

	// Pass 2: highest-volume root words not yet indexed anywhere.
	for _, entry := range ranked {
		if packer.knows(entry.word) {
			continue
		}
		if !packer.add(entry.word) {
			break
		}
	}

	// Pass 3: morphological variants of the same root words.
	for _, entry := range ranked {
		if _, skip := variantSkipWords[entry.word]; skip {
			continue
		}
		overflow := false
		for _, variant := range morphVariants(entry.word) {
			if packer.knows(variant) {
				continue
			}
			if !packer.add(variant) {
				overflow = true
				break
			}
		}
		if overflow {
			break
		}
	}

	// Pass 4: sanitized external suggestions.
	for _, token := range match.CleanTokens(suggestions) {
		if packer.knows(token) {
			continue
		}
		if !packer.add(token) {
			break
		}
	}

	return strings.Join(packer.terms, " ")
}

// termPacker tracks accepted terms, their running byte cost, and every word
// already indexed (visible copy plus packed terms).
type termPacker struct {
	maxBytes int
	bytes    int
	terms    []string
	known    map[string]struct{}
}

func newTermPacker(maxBytes int, visible map[string]struct{}) *termPacker {
	known := make(map[string]struct{}, len(visible))
	for word := range visible {
		known[word] = struct{}{}
	}
	return &termPacker{maxBytes: maxBytes, known: known}
}

// add accepts candidate if it still fits, accounting for the joining space.
func (p *termPacker) add(candidate string) bool {
	separator := 0
	if len(p.terms) > 0 {
		separator = 1
	}
	if p.bytes+separator+len(candidate) > p.maxBytes {
		return false
	}
	p.terms = append(p.terms, candidate)
	p.bytes += separator + len(candidate)
	for _, word := range match.Tokens(candidate) {
		p.known[word] = struct{}{}
	}
	return true
}

func (p *termPacker) knows(word string) bool {
	_, ok := p.known[word]
	return ok
}

type weightedWord struct {
	word   string
	volume int
}

// rankedRootWords aggregates every token of at least 2 runes across the
// keyword list, crediting each word with the volume of every keyword that
// contains it, and ranks by volume descending with an alphabetical tie-break
// to keep output deterministic.
func rankedRootWords(keywords []Keyword) []weightedWord {
	totals := make(map[string]int)
	for _, kw := range keywords {
		counted := make(map[string]struct{})
		for _, word := range match.Tokens(kw.Phrase) {
			if utf8.RuneCountInString(word) < 2 {
				continue
			}
			if _, dup := counted[word]; dup {
				continue
			}
			counted[word] = struct{}{}
			totals[word] += volume(kw)
		}
	}
	ranked := make([]weightedWord, 0, len(totals))
	for word, vol := range totals {
		ranked = append(ranked, weightedWord{word: word, volume: vol})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].volume != ranked[j].volume {
			return ranked[i].volume > ranked[j].volume
		}
		return ranked[i].word < ranked[j].word
	})
	return ranked
}

// morphVariants derives plural/singular spellings: strip a trailing "s" from
// 5-9 rune words, append "s" to words of up to 8 runes, and append "n" to
// words of 8+ runes ending in "e" (German plurals like "flasche").
func morphVariants(word string) []string {
	length := utf8.RuneCountInString(word)
	var variants []string
	if strings.HasSuffix(word, "s") {
		if length >= 5 && length <= 9 {
			variants = append(variants, strings.TrimSuffix(word, "s"))
		}
	} else if length <= 8 {
		variants = append(variants, word+"s")
	}
	if length >= 8 && strings.HasSuffix(word, "e") {
		variants = append(variants, word+"n")
	}
	return variants
}

func allWordsIn(phrase string, set map[string]struct{}) bool {
	for _, word := range strings.Fields(phrase) {
		if _, ok := set[word]; !ok {
			return false
		}
	}
	return true
}
