package scoring

import (
	"fmt"
	"strings"
	"testing"
)

// fillerWords returns n distinct tokens so density stays below the limit for
// everything except the word under test.
func fillerWords(n int) []string {
	words := make([]string, 0, n)
	for i := 0; i < n; i++ {
		words = append(words, fmt.Sprintf("filler%03d", i))
	}
	return words
}

func TestCheckAntiStuffingDensity(t *testing.T) {
	// Four occurrences spread across the fields stay under both repetition
	// limits but cross the 3% density line.
	title := "bottle pro bottle"
	bullets := []string{"bottle for hiking", strings.Join(fillerWords(93), " ")}
	description := "bottle travel"

	warnings := CheckAntiStuffing(title, bullets, description)
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d: %v", len(warnings), warnings)
	}
	if !strings.Contains(warnings[0], `"bottle"`) || !strings.Contains(warnings[0], "4.0%") {
		t.Fatalf("expected density warning naming bottle at 4.0%%, got %q", warnings[0])
	}
}

func TestCheckAntiStuffingTitleRepetition(t *testing.T) {
	title := "bottle pro bottle max bottle"
	bullets := []string{strings.Join(fillerWords(97), " ")}

	warnings := CheckAntiStuffing(title, bullets, "")
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d: %v", len(warnings), warnings)
	}
	if !strings.Contains(warnings[0], "repeated 3 times in the title") {
		t.Fatalf("expected title repetition warning, got %q", warnings[0])
	}
}

func TestCheckAntiStuffingTitleAndBulletRepetition(t *testing.T) {
	title := "bottle pro bottle max"
	bullets := []string{
		"bottle for hiking",
		"bottle for office",
		strings.Join(fillerWords(130), " "),
	}

	warnings := CheckAntiStuffing(title, bullets, "")
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d: %v", len(warnings), warnings)
	}
	if !strings.Contains(warnings[0], "repeated 4 times across title and bullets") {
		t.Fatalf("expected combined repetition warning, got %q", warnings[0])
	}
}

func TestCheckAntiStuffingDescriptionExcludedFromRepetition(t *testing.T) {
	title := "bottle pro"
	description := strings.Repeat("bottle ", 9)
	bullets := []string{strings.Join(fillerWords(330), " ")}

	warnings := CheckAntiStuffing(title, bullets, description)
	for _, w := range warnings {
		if strings.Contains(w, "repeated") {
			t.Fatalf("expected description occurrences to skip repetition checks, got %q", w)
		}
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
}

func TestCheckAntiStuffingDescriptionCountsTowardDensity(t *testing.T) {
	title := "bottle pro"
	description := strings.Repeat("bottle ", 9)
	bullets := []string{strings.Join(fillerWords(89), " ")}

	warnings := CheckAntiStuffing(title, bullets, description)
	if len(warnings) != 1 {
		t.Fatalf("expected 1 density warning, got %d: %v", len(warnings), warnings)
	}
	if !strings.Contains(warnings[0], "appears 10 times") || !strings.Contains(warnings[0], "10.0%") {
		t.Fatalf("expected density warning counting description, got %q", warnings[0])
	}
}

func TestCheckAntiStuffingIgnoresStopWordsAndShortTokens(t *testing.T) {
	title := "the and für the and für the and für a b c"
	bullets := []string{strings.Join(fillerWords(40), " ")}

	warnings := CheckAntiStuffing(title, bullets, "")
	if len(warnings) != 0 {
		t.Fatalf("expected stop words and short tokens ignored, got %v", warnings)
	}
}

func TestCheckAntiStuffingCleanDraft(t *testing.T) {
	title := "Stainless Steel Water Bottle 750ml"
	bullets := []string{strings.Join(fillerWords(60), " ")}
	description := "Keeps drinks cold on every trip."

	warnings := CheckAntiStuffing(title, bullets, description)
	if len(warnings) != 0 {
		t.Fatalf("expected clean draft, got %v", warnings)
	}
}

func TestCheckAntiStuffingEmptyInput(t *testing.T) {
	if warnings := CheckAntiStuffing("", nil, ""); len(warnings) != 0 {
		t.Fatalf("expected no warnings for empty draft, got %v", warnings)
	}
}
