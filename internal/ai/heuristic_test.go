package ai

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"rankjuice/internal/scoring"
)

func keywords(phrases ...string) []scoring.Keyword {
	out := make([]scoring.Keyword, 0, len(phrases))
	for i, phrase := range phrases {
		out = append(out, scoring.Keyword{Phrase: phrase, SearchVolume: 1000 - i})
	}
	return out
}

func TestHeuristicBuildsDeterministicDraft(t *testing.T) {
	input := GenerationInput{
		ProductName:     "steel water bottle",
		Marketplace:     "amazon.com",
		TitleCharLimit:  200,
		BulletCount:     3,
		BulletCharLimit: 250,
		Tiers: scoring.KeywordTiers{
			Title:       keywords("insulated water bottle", "leak proof"),
			Bullets:     keywords("gym bottle", "hiking flask", "cold drinks", "bpa free"),
			Description: keywords("camping", "office", "travel mug", "kids school"),
		},
	}

	first, err := HeuristicGenerator{}.Generate(context.Background(), input)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := HeuristicGenerator{}.Generate(context.Background(), input)
	if err != nil {
		t.Fatalf("generate again: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical drafts, got %+v vs %+v", first, second)
	}

	if first.Title != "Steel Water Bottle - Insulated Water Bottle - Leak Proof" {
		t.Fatalf("unexpected title %q", first.Title)
	}
	if len(first.Bullets) != 3 {
		t.Fatalf("expected 3 bullets, got %d: %v", len(first.Bullets), first.Bullets)
	}
	// Four bullet phrases round-robin into three slots.
	if first.Bullets[0] != "Gym Bottle: bpa free" {
		t.Fatalf("unexpected first bullet %q", first.Bullets[0])
	}
	if !strings.Contains(first.Description, "Ideal for camping, office, travel mug and kids school.") {
		t.Fatalf("unexpected description %q", first.Description)
	}
	if first.BackendTerms != "" {
		t.Fatalf("heuristic should leave backend terms to the packer, got %q", first.BackendTerms)
	}
}

func TestHeuristicSkipsCoveredTitlePhrases(t *testing.T) {
	input := GenerationInput{
		ProductName:    "water bottle",
		TitleCharLimit: 200,
		Tiers: scoring.KeywordTiers{
			// Already covered by the product name, so nothing to add.
			Title: keywords("bottle water"),
		},
	}
	draft, err := HeuristicGenerator{}.Generate(context.Background(), input)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if draft.Title != "Water Bottle" {
		t.Fatalf("expected covered phrase skipped, got %q", draft.Title)
	}
}

func TestHeuristicHonorsTitleLimit(t *testing.T) {
	input := GenerationInput{
		ProductName:    "bottle",
		TitleCharLimit: 20,
		Tiers: scoring.KeywordTiers{
			Title: keywords("a very long keyword phrase that cannot fit", "steel"),
		},
	}
	draft, err := HeuristicGenerator{}.Generate(context.Background(), input)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if utf8.RuneCountInString(draft.Title) > 20 {
		t.Fatalf("title exceeds limit: %q", draft.Title)
	}
	// The long phrase is skipped but the short one still lands.
	if draft.Title != "Bottle - Steel" {
		t.Fatalf("unexpected title %q", draft.Title)
	}
}

func TestHeuristicVariantRotatesBullets(t *testing.T) {
	input := GenerationInput{
		ProductName:     "bottle",
		BulletCount:     2,
		BulletCharLimit: 250,
		Tiers: scoring.KeywordTiers{
			Bullets: keywords("first phrase", "second phrase", "third phrase"),
		},
	}
	base, err := HeuristicGenerator{}.Generate(context.Background(), input)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	input.Variant = 1
	rotated, err := HeuristicGenerator{}.Generate(context.Background(), input)
	if err != nil {
		t.Fatalf("generate variant: %v", err)
	}
	if reflect.DeepEqual(base.Bullets, rotated.Bullets) {
		t.Fatalf("expected variant to change bullet layout, both %v", base.Bullets)
	}
	if rotated.Bullets[0] != "Second Phrase: first phrase" {
		t.Fatalf("unexpected rotated bullet %q", rotated.Bullets[0])
	}
}

func TestHeuristicRejectsEmptyInput(t *testing.T) {
	if _, err := (HeuristicGenerator{}).Generate(context.Background(), GenerationInput{}); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func TestNormalizeJSONBlock(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: `{"title":"x"}`, want: `{"title":"x"}`},
		{name: "fenced", in: "```json\n{\"title\":\"x\"}\n```", want: `{"title":"x"}`},
		{name: "prose wrapped", in: "Here you go:\n{\"title\":\"x\"}\nEnjoy", want: `{"title":"x"}`},
		{name: "empty", in: "   ", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := normalizeJSONBlock(tc.in); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestSanitizeDraftEnforcesLimits(t *testing.T) {
	draft := GeneratedDraft{
		Title:        "  A   title\nwith newline that runs much longer than allowed  ",
		Bullets:      []string{" one ", "", "two", "three", "four"},
		Description:  "  body  ",
		BackendTerms: "  Steel   FLASCHE  thermo ",
	}
	sanitizeDraft(&draft, GenerationInput{TitleCharLimit: 12, BulletCount: 3, BulletCharLimit: 250})
	if draft.Title != "A title" {
		t.Fatalf("expected clipped title at a word boundary, got %q", draft.Title)
	}
	want := []string{"one", "two", "three"}
	if !reflect.DeepEqual(draft.Bullets, want) {
		t.Fatalf("expected %v, got %v", want, draft.Bullets)
	}
	if draft.Description != "body" {
		t.Fatalf("expected trimmed description, got %q", draft.Description)
	}
	if draft.BackendTerms != "steel flasche thermo" {
		t.Fatalf("expected normalized backend terms, got %q", draft.BackendTerms)
	}
}

type stubGenerator struct {
	draft   GeneratedDraft
	err     error
	enabled bool
}

func (s stubGenerator) Enabled() bool { return s.enabled }

func (s stubGenerator) Generate(context.Context, GenerationInput) (GeneratedDraft, error) {
	return s.draft, s.err
}

func TestWithFallbackPrefersUsablePrimary(t *testing.T) {
	primary := stubGenerator{enabled: true, draft: GeneratedDraft{Title: "AI", Bullets: []string{"b"}}}
	fallback := stubGenerator{enabled: true, draft: GeneratedDraft{Title: "Heuristic", Bullets: []string{"h"}}}

	draft, err := WithFallback(primary, fallback).Generate(context.Background(), GenerationInput{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if draft.Title != "AI" {
		t.Fatalf("expected primary draft, got %q", draft.Title)
	}
}

func TestWithFallbackUsesFallbackOnError(t *testing.T) {
	primary := stubGenerator{enabled: true, err: errors.New("openai status 500: boom")}
	fallback := stubGenerator{enabled: true, draft: GeneratedDraft{Title: "Heuristic", Bullets: []string{"h"}}}

	draft, err := WithFallback(primary, fallback).Generate(context.Background(), GenerationInput{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if draft.Title != "Heuristic" {
		t.Fatalf("expected fallback draft, got %q", draft.Title)
	}
}

func TestWithFallbackRejectsUnusablePrimaryDraft(t *testing.T) {
	primary := stubGenerator{enabled: true, draft: GeneratedDraft{Title: "No bullets"}}
	fallback := stubGenerator{enabled: true, draft: GeneratedDraft{Title: "Heuristic", Bullets: []string{"h"}}}

	draft, err := WithFallback(primary, fallback).Generate(context.Background(), GenerationInput{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if draft.Title != "Heuristic" {
		t.Fatalf("expected fallback for bullet-less draft, got %q", draft.Title)
	}
}

func TestWithFallbackDisabledWhenBothMissing(t *testing.T) {
	chain := WithFallback(stubGenerator{}, stubGenerator{})
	if chain.Enabled() {
		t.Fatalf("expected disabled chain")
	}
	if _, err := chain.Generate(context.Background(), GenerationInput{}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}
