package brands

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"

	"rankjuice/internal/match"
	"rankjuice/internal/store"
)

// MatchThreshold is the minimum similarity at which a token is treated as a brand hit.
const MatchThreshold = 0.85

// Match is a competitor brand resembling the queried token.
type Match struct {
	Brand      string
	Source     string
	Items      int
	Similarity float64
}

// Index manages the competitor brand inventory and fuzzy lookups against it.
type Index struct {
	db      *store.Database
	cache   map[string]cacheEntry
	cacheMu sync.RWMutex
}

type cacheEntry struct {
	match Match
	found bool
}

func NewIndex(db *store.Database) *Index {
	return &Index{
		db:    db,
		cache: make(map[string]cacheEntry),
	}
}

// BuildEntry normalizes a raw brand name into a storable row. The second return
// is false when the name normalizes to something shorter than minLength runes.
func BuildEntry(name, source string, minLength int) (store.Brand, bool) {
	raw := strings.TrimSpace(name)
	normalized := normalizeBrand(raw)
	if normalized == "" || runeLen(normalized) < minLength {
		return store.Brand{}, false
	}
	return store.Brand{
		Name:       raw,
		Normalized: normalized,
		Prefix:     prefix(normalized, 3),
		Length:     runeLen(normalized),
		Items:      1,
		Source:     source,
	}, true
}

// LoadFromCSV ingests the provided CSV (brand[,source] columns) and replaces the
// stored brand inventory.
func (ix *Index) LoadFromCSV(path string, minLength int) (int, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, fmt.Errorf("brand file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open brand file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(bufio.NewReader(file))
	reader.FieldsPerRecord = -1

	merged := make(map[string]store.Brand)
	var order []string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("read brand row: %w", err)
		}
		if len(row) == 0 {
			continue
		}

		name := strings.TrimSpace(row[0])
		if strings.EqualFold(name, "brand") || strings.EqualFold(name, "name") {
			continue
		}
		source := "csv"
		if len(row) > 1 && strings.TrimSpace(row[1]) != "" {
			source = strings.TrimSpace(row[1])
		}

		entry, ok := BuildEntry(name, source, minLength)
		if !ok {
			continue
		}
		if existing, ok := merged[entry.Normalized]; ok {
			existing.Items++
			merged[entry.Normalized] = existing
			continue
		}
		merged[entry.Normalized] = entry
		order = append(order, entry.Normalized)
	}

	entries := make([]store.Brand, 0, len(merged))
	for _, key := range order {
		entries = append(entries, merged[key])
	}
	return ix.Replace(entries)
}

// Replace swaps the persisted inventory and resets the lookup cache.
func (ix *Index) Replace(entries []store.Brand) (int, error) {
	if err := ix.db.ReplaceBrands(entries); err != nil {
		return 0, err
	}

	ix.cacheMu.Lock()
	ix.cache = make(map[string]cacheEntry)
	ix.cacheMu.Unlock()

	return len(entries), nil
}

// Count returns the number of stored brand rows.
func (ix *Index) Count() int {
	if ix == nil {
		return 0
	}
	count, err := ix.db.CountBrands()
	if err != nil {
		return 0
	}
	return int(count)
}

// BestMatch returns the closest stored brand for the supplied token.
func (ix *Index) BestMatch(token string) (Match, bool) {
	normalized := normalizeBrand(token)
	if normalized == "" {
		return Match{}, false
	}

	if cached, ok := ix.lookupCache(normalized); ok {
		return cached.match, cached.found
	}

	targetLen := runeLen(normalized)
	minLen := targetLen - 2
	if minLen < 1 {
		minLen = 1
	}
	maxLen := targetLen + 2

	prefix3 := prefix(normalized, 3)
	prefix2 := prefix(normalized, 2)
	prefix1 := prefix(normalized, 1)

	searchPrefixes := [][]string{
		uniqueNonEmpty([]string{prefix3}),
		uniqueNonEmpty([]string{prefix2}),
		uniqueNonEmpty([]string{prefix1}),
		nil,
	}

	var best Match
	var found bool

	for _, prefixes := range searchPrefixes {
		candidates, err := ix.db.FindBrandCandidates(prefixes, minLen, maxLen, targetLen, 75)
		if err != nil {
			continue
		}
		for _, candidate := range candidates {
			sim := similarity(normalized, candidate.Normalized)
			if sim > best.Similarity {
				best = Match{Brand: candidate.Name, Source: candidate.Source, Items: candidate.Items, Similarity: sim}
				found = true
			}
		}
		if found && best.Similarity >= 0.95 {
			break
		}
	}

	ix.storeCache(normalized, cacheEntry{match: best, found: found})
	if !found {
		return Match{}, false
	}
	return best, true
}

func (ix *Index) lookupCache(key string) (cacheEntry, bool) {
	ix.cacheMu.RLock()
	defer ix.cacheMu.RUnlock()
	entry, ok := ix.cache[key]
	return entry, ok
}

func (ix *Index) storeCache(key string, entry cacheEntry) {
	ix.cacheMu.Lock()
	ix.cache[key] = entry
	ix.cacheMu.Unlock()
}

func uniqueNonEmpty(items []string) []string {
	var result []string
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// normalizeBrand lowercases the name and strips everything but word runes, so
// "Hydro Flask" and "hydro-flask" both key as "hydroflask".
func normalizeBrand(value string) string {
	return strings.Join(match.Tokens(value), "")
}

func prefix(value string, size int) string {
	if size <= 0 {
		return ""
	}
	runes := []rune(value)
	if len(runes) < size {
		size = len(runes)
	}
	if size <= 0 {
		return ""
	}
	return string(runes[:size])
}

func runeLen(value string) int {
	return len([]rune(value))
}

func similarity(a, b string) float64 {
	aRunes := []rune(a)
	bRunes := []rune(b)
	if len(aRunes) == 0 && len(bRunes) == 0 {
		return 1
	}
	if len(aRunes) == 0 || len(bRunes) == 0 {
		return 0
	}

	dist := levenshtein(aRunes, bRunes)
	maxLen := math.Max(float64(len(aRunes)), float64(len(bRunes)))
	if maxLen == 0 {
		return 1
	}

	score := 1 - float64(dist)/maxLen
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func levenshtein(a, b []rune) int {
	rows := len(a) + 1
	cols := len(b) + 1

	dp := make([]int, rows*cols)

	index := func(r, c int) int {
		return r*cols + c
	}

	for r := 0; r < rows; r++ {
		dp[index(r, 0)] = r
	}
	for c := 0; c < cols; c++ {
		dp[index(0, c)] = c
	}

	for r := 1; r < rows; r++ {
		for c := 1; c < cols; c++ {
			cost := 0
			if a[r-1] != b[c-1] {
				cost = 1
			}
			deletion := dp[index(r-1, c)] + 1
			insertion := dp[index(r, c-1)] + 1
			substitution := dp[index(r-1, c-1)] + cost
			dp[index(r, c)] = minInt(deletion, insertion, substitution)
		}
	}

	return dp[index(rows-1, cols-1)]
}

func minInt(values ...int) int {
	if len(values) == 0 {
		return 0
	}
	min := values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
	}
	return min
}
