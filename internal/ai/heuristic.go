package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"rankjuice/internal/match"
	"rankjuice/internal/scoring"
)

// HeuristicGenerator assembles deterministic drafts straight from the tiered
// keywords. It backs the AI client in a fallback chain so score-only paths and
// tests never touch the network.
type HeuristicGenerator struct{}

// Enabled always reports true; the heuristic needs no credentials.
func (HeuristicGenerator) Enabled() bool {
	return true
}

// Generate builds a draft by packing tier phrases into the title, bullets and
// description under their character limits. The variant index rotates the
// bullet and description assignments so successive candidates differ.
func (g HeuristicGenerator) Generate(ctx context.Context, input GenerationInput) (GeneratedDraft, error) {
	draft := GeneratedDraft{
		Title:       g.buildTitle(input),
		Bullets:     g.buildBullets(input),
		Description: g.buildDescription(input),
		Source:      "heuristic",
	}
	if draft.Title == "" && len(draft.Bullets) == 0 {
		return GeneratedDraft{}, errors.New("no keywords to build a draft from")
	}
	return draft, nil
}

func (HeuristicGenerator) buildTitle(input GenerationInput) string {
	limit := input.TitleCharLimit
	if limit <= 0 {
		limit = 200
	}
	title := titleCase(strings.TrimSpace(input.ProductName))
	for _, keyword := range input.Tiers.Title {
		phrase := strings.TrimSpace(keyword.Phrase)
		if phrase == "" {
			continue
		}
		if title == "" {
			title = titleCase(phrase)
			continue
		}
		if allWordsPresent(phrase, title) {
			continue
		}
		candidate := title + " - " + titleCase(phrase)
		if utf8.RuneCountInString(candidate) > limit {
			continue
		}
		title = candidate
	}
	return title
}

func (HeuristicGenerator) buildBullets(input GenerationInput) []string {
	count := input.BulletCount
	if count <= 0 {
		count = 5
	}
	limit := input.BulletCharLimit
	if limit <= 0 {
		limit = 250
	}

	keywords := rotateKeywords(input.Tiers.Bullets, input.Variant)
	groups := make([][]string, count)
	for i, keyword := range keywords {
		phrase := strings.TrimSpace(keyword.Phrase)
		if phrase == "" {
			continue
		}
		slot := i % count
		groups[slot] = append(groups[slot], phrase)
	}

	var bullets []string
	for _, group := range groups {
		if len(group) == 0 {
			continue
		}
		bullet := titleCase(group[0])
		if len(group) > 1 {
			bullet += ": " + strings.Join(group[1:], ", ")
		}
		bullets = append(bullets, clipRunes(bullet, limit))
	}
	return bullets
}

func (HeuristicGenerator) buildDescription(input GenerationInput) string {
	product := titleCase(strings.TrimSpace(input.ProductName))
	if product == "" {
		product = "This product"
	}
	sentences := []string{fmt.Sprintf("%s for daily use at home and on the go.", product)}

	keywords := rotateKeywords(input.Tiers.Description, input.Variant)
	var phrases []string
	for _, keyword := range keywords {
		phrase := strings.TrimSpace(keyword.Phrase)
		if phrase == "" {
			continue
		}
		phrases = append(phrases, phrase)
		if len(phrases) == 12 {
			break
		}
	}
	for start := 0; start < len(phrases); start += 4 {
		end := start + 4
		if end > len(phrases) {
			end = len(phrases)
		}
		sentences = append(sentences, fmt.Sprintf("Ideal for %s.", joinNatural(phrases[start:end])))
	}
	return strings.Join(sentences, " ")
}

// rotateKeywords shifts the list left by the variant index so each candidate
// leads its bullets and description with different phrases.
func rotateKeywords(list []scoring.Keyword, by int) []scoring.Keyword {
	if len(list) == 0 || by <= 0 {
		return list
	}
	by = by % len(list)
	if by == 0 {
		return list
	}
	out := make([]scoring.Keyword, 0, len(list))
	out = append(out, list[by:]...)
	out = append(out, list[:by]...)
	return out
}

func allWordsPresent(phrase, text string) bool {
	set := match.Words(text)
	for _, word := range match.Tokens(phrase) {
		if _, ok := set[word]; !ok {
			return false
		}
	}
	return true
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		runes := []rune(word)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

func joinNatural(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}
