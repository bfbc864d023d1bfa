package match

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// coverageThreshold is the fraction of a phrase's words that must appear in a
// word set for the phrase to count as covered.
const coverageThreshold = 0.7

// extraLetters lists the lowercase diacritics accepted as word runes on top of
// a-z and 0-9. Covers the German, Polish, French, Italian and Spanish
// marketplaces.
const extraLetters = "àáâäçèéêëìíîïñòóôöùúûüýÿßąćęłńśźż"

// IsWordRune reports whether r belongs to the token alphabet.
func IsWordRune(r rune) bool {
	if r >= 'a' && r <= 'z' {
		return true
	}
	if r >= '0' && r <= '9' {
		return true
	}
	return strings.ContainsRune(extraLetters, r)
}

// Tokens lowercases text and returns every maximal run of word runes, in
// order and with multiplicity preserved.
func Tokens(text string) []string {
	lower := strings.ToLower(text)
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !IsWordRune(r)
	})
}

// Words returns the set of unique lowercase tokens extracted from text.
// Membership tests against the result drive every coverage computation.
func Words(text string) map[string]struct{} {
	tokens := Tokens(text)
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	return set
}

// PhraseCovered reports whether at least 70% of the phrase's whitespace-split
// words are present in the supplied word set. A single-word phrase requires an
// exact hit; a 3-word phrase requires all three (2/3 falls short); a 4-word
// phrase requires at least three.
func PhraseCovered(phrase string, set map[string]struct{}) bool {
	words := strings.Fields(strings.ToLower(phrase))
	if len(words) == 0 {
		return false
	}
	matched := 0
	for _, word := range words {
		if _, ok := set[word]; ok {
			matched++
		}
	}
	return float64(matched)/float64(len(words)) >= coverageThreshold
}

// ExactPhrase reports whether phrase occurs verbatim in text with word
// boundaries on both ends. Matching is case-insensitive and tolerant of
// diacritics; boundaries are any rune outside the token alphabet or the edges
// of the text.
func ExactPhrase(phrase, text string) bool {
	needle := strings.ToLower(strings.TrimSpace(phrase))
	if needle == "" || text == "" {
		return false
	}
	haystack := strings.ToLower(text)

	for offset := 0; offset <= len(haystack)-len(needle); {
		idx := strings.Index(haystack[offset:], needle)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(needle)
		if boundaryBefore(haystack, start) && boundaryAfter(haystack, end) {
			return true
		}
		offset = start + 1
	}
	return false
}

func boundaryBefore(s string, idx int) bool {
	if idx == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:idx])
	return !IsWordRune(r)
}

func boundaryAfter(s string, idx int) bool {
	if idx >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[idx:])
	return !IsWordRune(r)
}

// CleanTokens lowercases s, drops every rune that is neither a word rune nor
// whitespace, and splits the remainder on whitespace. Used to sanitize
// externally supplied suggestion terms before packing.
func CleanTokens(s string) []string {
	lower := strings.ToLower(s)
	stripped := strings.Map(func(r rune) rune {
		if IsWordRune(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, lower)
	return strings.Fields(stripped)
}
