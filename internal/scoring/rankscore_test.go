package scoring

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"testing"
)

func TestRankingWeightsSumToOne(t *testing.T) {
	const sum = WeightCoverage + WeightExactMatch + WeightVolume + WeightBackend + WeightStructure
	if sum != 1.0 {
		t.Fatalf("expected weights to sum to 1.0, got %v", sum)
	}

	report := CalculateRankingScore(nil, Draft{})
	got := report.Weights.Coverage + report.Weights.ExactMatch + report.Weights.Volume +
		report.Weights.BackendEfficiency + report.Weights.Structure
	if math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("expected reported weights to sum to 1.0, got %v", got)
	}
}

func TestBackendEfficiencyBands(t *testing.T) {
	// A keyword the draft never covers keeps visible coverage at 0 so the
	// coverage floors stay out of the way.
	keywords := []Keyword{{Phrase: "uncovered", SearchVolume: 100}}

	cases := []struct {
		bytes int
		want  float64
	}{
		{260, 50},
		{250, 100},
		{245, 100},
		{240, 100},
		{239, 95},
		{230, 95},
		{225, 85},
		{220, 85},
		{120, 40},
		{0, 0},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d bytes", tc.bytes), func(t *testing.T) {
			draft := Draft{Title: "unrelated", BackendTerms: strings.Repeat("a", tc.bytes)}
			if got := backendEfficiency(keywords, draft); got != tc.want {
				t.Fatalf("expected %.1f for %d bytes, got %.1f", tc.want, tc.bytes, got)
			}
		})
	}
}

func TestBackendEfficiencyVisibleCoverageFloors(t *testing.T) {
	var full []Keyword
	var words []string
	for i := 0; i < 10; i++ {
		word := fmt.Sprintf("word%02d", i)
		full = append(full, Keyword{Phrase: word, SearchVolume: 100})
		words = append(words, word)
	}

	// All ten keywords visible: coverage 100 lifts a 40-point base to 80.
	draft := Draft{Title: strings.Join(words, " "), BackendTerms: strings.Repeat("a", 120)}
	if got := backendEfficiency(full, draft); got != 80 {
		t.Fatalf("expected floor 80 at full visible coverage, got %.1f", got)
	}

	// Nine of ten visible: coverage 90 lifts the base to 60 instead.
	draft.Title = strings.Join(words[:9], " ")
	if got := backendEfficiency(full, draft); got != 60 {
		t.Fatalf("expected floor 60 at 90%% visible coverage, got %.1f", got)
	}

	// The floor never lowers an already strong base.
	draft.Title = strings.Join(words, " ")
	draft.BackendTerms = strings.Repeat("a", 245)
	if got := backendEfficiency(full, draft); got != 100 {
		t.Fatalf("expected full band score to survive the floor, got %.1f", got)
	}
}

func TestStructureComponent(t *testing.T) {
	goodTitle := strings.Repeat("a", 150)
	goodBullet := strings.Repeat("b", 100)
	fiveBullets := []string{goodBullet, goodBullet, goodBullet, goodBullet, goodBullet}

	cases := []struct {
		name  string
		draft Draft
		want  float64
	}{
		{"empty draft", Draft{}, 60},
		{"well formed", Draft{Title: goodTitle, Bullets: fiveBullets}, 100},
		{"separator bonus clamped", Draft{Title: strings.Repeat("a", 147) + " - ", Bullets: fiveBullets}, 100},
		{"overlong title", Draft{Title: strings.Repeat("a", 201), Bullets: fiveBullets}, 90},
		{"short bullets", Draft{Title: goodTitle, Bullets: []string{"one", "two", "three", "four", "five"}}, 85},
		{"overlong bullet", Draft{Title: goodTitle, Bullets: []string{strings.Repeat("b", 501), goodBullet, goodBullet, goodBullet, goodBullet}}, 98},
		{"missing bullets", Draft{Title: goodTitle, Bullets: []string{goodBullet, goodBullet, goodBullet}}, 90},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := structureComponent(tc.draft); got != tc.want {
				t.Fatalf("expected %.1f, got %.1f", tc.want, got)
			}
		})
	}
}

func TestExactMatchComponent(t *testing.T) {
	keywords := []Keyword{
		{Phrase: "steel bottle", SearchVolume: 100},
		{Phrase: "water flask", SearchVolume: 90},
		{Phrase: "vacuum cup", SearchVolume: 80},
		{Phrase: "gym jug", SearchVolume: 70},
		{Phrase: "sports canteen", SearchVolume: 60},
		{Phrase: "travel tumbler", SearchVolume: 50},
	}
	draft := Draft{
		Title:   "Premium Steel Bottle Pro",
		Bullets: []string{"Great water flask for hiking"},
	}

	// Title hit 1.5 + bullet hit 1.0 against a target of 3 (half of six).
	if got := exactMatchComponent(keywords, draft); got != 83.3 {
		t.Fatalf("expected 83.3, got %.1f", got)
	}

	if got := exactMatchComponent(nil, draft); got != 0 {
		t.Fatalf("expected 0 for empty keywords, got %.1f", got)
	}
}

func TestVolumeComponent(t *testing.T) {
	draft := Draft{Title: "Premium Steel Bottle Pro"}
	keywords := []Keyword{
		{Phrase: "steel bottle", SearchVolume: 1000},
		{Phrase: "steel thermos", SearchVolume: 500},
		{Phrase: "garden hose", SearchVolume: 500},
	}

	// Captured: 1000*1.5 exact + 500*0.3 partial = 1650 of 3000 possible.
	if got := volumeComponent(keywords, draft); got != 55.0 {
		t.Fatalf("expected 55.0, got %.1f", got)
	}
}

func TestVolumeComponentNeutralWithoutSignal(t *testing.T) {
	keywords := []Keyword{
		{Phrase: "steel bottle", SearchVolume: 0},
		{Phrase: "water flask", SearchVolume: -5},
	}
	if got := volumeComponent(keywords, Draft{Title: "Steel Bottle"}); got != 50 {
		t.Fatalf("expected neutral 50 with zero total volume, got %.1f", got)
	}
	if got := volumeComponent(nil, Draft{}); got != 50 {
		t.Fatalf("expected neutral 50 for empty keywords, got %.1f", got)
	}
}

func TestScoreGrades(t *testing.T) {
	cases := []struct {
		score float64
		grade string
	}{
		{95, "A+"},
		{90, "A+"},
		{85, "A"},
		{75, "B"},
		{65, "C"},
		{40, "D"},
	}
	for _, tc := range cases {
		grade, verdict := scoreGrade(tc.score)
		if grade != tc.grade {
			t.Fatalf("expected grade %s at %.0f, got %s", tc.grade, tc.score, grade)
		}
		if verdict == "" {
			t.Fatalf("expected a verdict string at %.0f", tc.score)
		}
	}
}

func TestCalculateRankingScoreDeterministic(t *testing.T) {
	keywords := []Keyword{
		{Phrase: "trinkflasche edelstahl", SearchVolume: 4400},
		{Phrase: "wasserflasche sport", SearchVolume: 1900},
		{Phrase: "thermosflasche", SearchVolume: 880},
	}
	draft := Draft{
		Title:        "Trinkflasche Edelstahl 750ml - Wasserflasche für Sport und Büro",
		Bullets:      []string{"Doppelwandige Thermosflasche hält Getränke 12 Stunden heiß oder 24 Stunden kalt"},
		Description:  "Die perfekte Begleitung für unterwegs.",
		BackendTerms: "isolierflasche auslaufsicher bpafrei",
	}

	first := CalculateRankingScore(keywords, draft)
	second := CalculateRankingScore(keywords, draft)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical reports for identical input:\n%+v\n%+v", first, second)
	}
	if first.Score < 0 || first.Score > 100 {
		t.Fatalf("expected score within [0,100], got %.1f", first.Score)
	}
	if first.Grade == "" || first.Verdict == "" {
		t.Fatalf("expected grade and verdict to be set")
	}
}

func TestCalculateRankingScoreOverlongBackend(t *testing.T) {
	keywords := []Keyword{{Phrase: "steel bottle", SearchVolume: 1000}}
	draft := Draft{Title: "Steel Bottle", BackendTerms: strings.Repeat("x", 260)}

	report := CalculateRankingScore(keywords, draft)
	if report.Components.BackendEfficiency != 50 {
		t.Fatalf("expected backend efficiency 50 over the byte limit, got %.1f",
			report.Components.BackendEfficiency)
	}
}
