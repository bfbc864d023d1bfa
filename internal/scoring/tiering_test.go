package scoring

import (
	"fmt"
	"testing"
)

func rankedKeywords(n int) []Keyword {
	keywords := make([]Keyword, 0, n)
	for i := 0; i < n; i++ {
		keywords = append(keywords, Keyword{
			Phrase:       fmt.Sprintf("kw%03d", i),
			SearchVolume: 100000 - i,
		})
	}
	return keywords
}

func TestTierKeywordsSellerBands(t *testing.T) {
	tiers := TierKeywords(rankedKeywords(250), AccountSeller)

	if len(tiers.Title) != 7 {
		t.Fatalf("expected 7 title keywords, got %d", len(tiers.Title))
	}
	if len(tiers.Bullets) != 25 {
		t.Fatalf("expected 25 bullet keywords, got %d", len(tiers.Bullets))
	}
	if len(tiers.Backend) != 68 {
		t.Fatalf("expected 68 backend keywords, got %d", len(tiers.Backend))
	}
	if len(tiers.Description) != 100 {
		t.Fatalf("expected 100 description keywords, got %d", len(tiers.Description))
	}
	if got := tiers.Title[0].Phrase; got != "kw000" {
		t.Fatalf("expected top keyword first, got %s", got)
	}
	if got := tiers.Bullets[0].Phrase; got != "kw007" {
		t.Fatalf("expected bullets to start at rank 7, got %s", got)
	}
	if got := tiers.Backend[0].Phrase; got != "kw032" {
		t.Fatalf("expected backend to start at rank 32, got %s", got)
	}
	if got := tiers.Description[len(tiers.Description)-1].Phrase; got != "kw199" {
		t.Fatalf("expected description to end at rank 199, got %s", got)
	}
}

func TestTierKeywordsVendorBands(t *testing.T) {
	tiers := TierKeywords(rankedKeywords(250), AccountVendor)

	if len(tiers.Title) != 7 {
		t.Fatalf("expected 7 title keywords, got %d", len(tiers.Title))
	}
	if len(tiers.Bullets) != 45 {
		t.Fatalf("expected 45 bullet keywords, got %d", len(tiers.Bullets))
	}
	if len(tiers.Backend) != 68 {
		t.Fatalf("expected 68 backend keywords, got %d", len(tiers.Backend))
	}
	if len(tiers.Description) != 130 {
		t.Fatalf("expected 130 description keywords, got %d", len(tiers.Description))
	}
	if got := tiers.Bullets[0].Phrase; got != "kw007" {
		t.Fatalf("expected bullets to start at rank 7, got %s", got)
	}
	if got := tiers.Backend[0].Phrase; got != "kw052" {
		t.Fatalf("expected backend to start at rank 52, got %s", got)
	}
	if got := tiers.Description[len(tiers.Description)-1].Phrase; got != "kw249" {
		t.Fatalf("expected description to end at rank 249, got %s", got)
	}
}

func TestTierKeywordsShortList(t *testing.T) {
	tiers := TierKeywords(rankedKeywords(10), AccountSeller)

	if len(tiers.Title) != 7 {
		t.Fatalf("expected 7 title keywords, got %d", len(tiers.Title))
	}
	if len(tiers.Bullets) != 3 {
		t.Fatalf("expected 3 bullet keywords, got %d", len(tiers.Bullets))
	}
	if len(tiers.Backend) != 0 || len(tiers.Description) != 0 {
		t.Fatalf("expected empty backend/description bands, got %d/%d",
			len(tiers.Backend), len(tiers.Description))
	}
}

func TestTierKeywordsStableOnEqualVolume(t *testing.T) {
	keywords := []Keyword{
		{Phrase: "first", SearchVolume: 500},
		{Phrase: "second", SearchVolume: 500},
		{Phrase: "third", SearchVolume: 500},
	}
	tiers := TierKeywords(keywords, AccountSeller)
	for i, want := range []string{"first", "second", "third"} {
		if got := tiers.Title[i].Phrase; got != want {
			t.Fatalf("expected %s at position %d, got %s", want, i, got)
		}
	}
}

func TestTierKeywordsClampsNegativeVolume(t *testing.T) {
	keywords := []Keyword{
		{Phrase: "unknown", SearchVolume: -10},
		{Phrase: "small", SearchVolume: 5},
	}
	tiers := TierKeywords(keywords, AccountSeller)
	if got := tiers.Title[0].Phrase; got != "small" {
		t.Fatalf("expected positive volume to outrank negative, got %s first", got)
	}
}

func TestBulletCount(t *testing.T) {
	if got := BulletCount(AccountSeller); got != 5 {
		t.Fatalf("expected 5 seller bullets, got %d", got)
	}
	if got := BulletCount(AccountVendor); got != 10 {
		t.Fatalf("expected 10 vendor bullets, got %d", got)
	}
	if got := BulletCount(AccountType("unknown")); got != 5 {
		t.Fatalf("expected seller fallback, got %d", got)
	}
}

func TestBulletCharLimit(t *testing.T) {
	cases := []struct {
		category string
		want     int
	}{
		{"Apparel > Shirts", 150},
		{"Clothing", 150},
		{"SHOES", 150},
		{"Fashion Jewelry", 150},
		{"Kitchen & Dining", 200},
		{"", 200},
	}
	for _, tc := range cases {
		if got := BulletCharLimit(tc.category); got != tc.want {
			t.Fatalf("expected limit %d for %q, got %d", tc.want, tc.category, got)
		}
	}
}
