package scoring

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"rankjuice/internal/match"
)

// Repetition and density limits enforced by the anti-stuffing check.
const (
	densityLimitPct  = 3.0
	titleRepeatLimit = 2
	copyRepeatLimit  = 3
)

// CheckAntiStuffing flags keyword stuffing in a draft: words taking up more
// than 3% of the combined copy, words used more than twice in the title, and
// words used more than three times across title and bullets. The description
// counts toward density but not toward the repetition checks, since
// descriptions legitimately restate the product name. Returns one warning
// string per finding, empty when the draft is clean.
func CheckAntiStuffing(title string, bullets []string, description string) []string {
	var warnings []string
	bulletText := strings.Join(bullets, " ")

	combined := title + " " + bulletText + " " + description
	order, counts, total := contentWordCounts(combined)
	for _, word := range order {
		count := counts[word]
		share := float64(count) / float64(total) * 100
		if share > densityLimitPct {
			warnings = append(warnings, fmt.Sprintf(
				"%q appears %d times (%.1f%% of listing copy) - keep keyword density under %.1f%%",
				word, count, share, densityLimitPct))
		}
	}

	order, counts, _ = contentWordCounts(title)
	for _, word := range order {
		if count := counts[word]; count > titleRepeatLimit {
			warnings = append(warnings, fmt.Sprintf(
				"%q repeated %d times in the title - use it at most %d times there",
				word, count, titleRepeatLimit))
		}
	}

	order, counts, _ = contentWordCounts(title + " " + bulletText)
	for _, word := range order {
		if count := counts[word]; count > copyRepeatLimit {
			warnings = append(warnings, fmt.Sprintf(
				"%q repeated %d times across title and bullets - vary the wording",
				word, count))
		}
	}

	return warnings
}

// contentWordCounts tallies the significant words of text, returning them in
// first-seen order so warning output stays deterministic.
func contentWordCounts(text string) ([]string, map[string]int, int) {
	var order []string
	counts := make(map[string]int)
	total := 0
	for _, token := range match.Tokens(text) {
		if utf8.RuneCountInString(token) < 2 {
			continue
		}
		if match.IsStopWord(token) {
			continue
		}
		if _, seen := counts[token]; !seen {
			order = append(order, token)
		}
		counts[token]++
		total++
	}
	return order, counts, total
}

func buildWordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		set[word] = struct{}{}
	}
	return set
}
