package brands

import (
	"math"
	"testing"
)

func TestBuildEntryNormalizesNames(t *testing.T) {
	entry, ok := BuildEntry("  Hydro Flask ", "feed", 3)
	if !ok {
		t.Fatalf("expected entry for Hydro Flask")
	}
	if entry.Name != "Hydro Flask" {
		t.Fatalf("expected trimmed name, got %q", entry.Name)
	}
	if entry.Normalized != "hydroflask" {
		t.Fatalf("expected normalized hydroflask, got %q", entry.Normalized)
	}
	if entry.Prefix != "hyd" {
		t.Fatalf("expected prefix hyd, got %q", entry.Prefix)
	}
	if entry.Length != 10 {
		t.Fatalf("expected length 10, got %d", entry.Length)
	}
	if entry.Items != 1 {
		t.Fatalf("expected items 1, got %d", entry.Items)
	}
	if entry.Source != "feed" {
		t.Fatalf("expected source feed, got %q", entry.Source)
	}
}

func TestBuildEntryRejectsShortNames(t *testing.T) {
	if _, ok := BuildEntry("xy", "csv", 3); ok {
		t.Fatalf("expected xy to be rejected at min length 3")
	}
	if _, ok := BuildEntry("  !! ", "csv", 1); ok {
		t.Fatalf("expected punctuation-only name to be rejected")
	}
	if _, ok := BuildEntry("öko", "csv", 3); !ok {
		t.Fatalf("expected öko to pass a rune-based length check")
	}
}

func TestSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a    string
		b    string
		want float64
	}{
		{name: "identical", a: "hydroflask", b: "hydroflask", want: 1},
		{name: "one edit", a: "hydroflask", b: "hydroflash", want: 0.9},
		{name: "disjoint", a: "abc", b: "xyz", want: 0},
		{name: "both empty", a: "", b: "", want: 1},
		{name: "one empty", a: "yeti", b: "", want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := similarity(tc.a, tc.b)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a    string
		b    string
		want int
	}{
		{a: "yeti", b: "yeti", want: 0},
		{a: "yeti", b: "yetti", want: 1},
		{a: "stanley", b: "stanly", want: 1},
		{a: "", b: "brand", want: 5},
		{a: "kitten", b: "sitting", want: 3},
	}
	for _, tc := range cases {
		got := levenshtein([]rune(tc.a), []rune(tc.b))
		if got != tc.want {
			t.Fatalf("levenshtein(%q, %q): expected %d, got %d", tc.a, tc.b, tc.want, got)
		}
	}
}
