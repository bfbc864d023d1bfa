package match

import (
	"reflect"
	"testing"
)

func TestTokensHandlesDiacriticsAndPunctuation(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"ascii", "Stainless Steel Water-Bottle 750ml", []string{"stainless", "steel", "water", "bottle", "750ml"}},
		{"german", "Trinkflasche für unterwegs, spülmaschinenfest", []string{"trinkflasche", "für", "unterwegs", "spülmaschinenfest"}},
		{"polish", "Butelka filtrująca, łatwa w czyszczeniu", []string{"butelka", "filtrująca", "łatwa", "w", "czyszczeniu"}},
		{"eszett", "Maßband GROSS", []string{"maßband", "gross"}},
		{"punctuation only", "!!! --- ???", nil},
		{"empty", "", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Tokens(tc.in)
			if len(got) == 0 && len(tc.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestWordsDeduplicates(t *testing.T) {
	set := Words("Bottle bottle BOTTLE, bottle!")
	if len(set) != 1 {
		t.Fatalf("expected 1 unique token, got %d", len(set))
	}
	if _, ok := set["bottle"]; !ok {
		t.Fatalf("expected set to contain %q", "bottle")
	}
}

func TestPhraseCoveredThreshold(t *testing.T) {
	set := Words("stainless steel water bottle for travel")
	cases := []struct {
		name   string
		phrase string
		want   bool
	}{
		{"single word hit", "bottle", true},
		{"single word miss", "thermos", false},
		{"two of two", "steel bottle", true},
		{"one of two", "steel flask", false},
		{"two of three falls short", "steel water flask", false},
		{"three of three", "steel water bottle", true},
		{"three of four passes", "insulated steel water bottle", true},
		{"two of four fails", "insulated vacuum steel bottle", false},
		{"empty phrase", "", false},
		{"case insensitive", "STEEL Water BOTTLE", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := PhraseCovered(tc.phrase, set); got != tc.want {
				t.Fatalf("expected %v for %q, got %v", tc.want, tc.phrase, got)
			}
		})
	}
}

func TestExactPhraseRespectsWordBoundaries(t *testing.T) {
	cases := []struct {
		name   string
		phrase string
		text   string
		want   bool
	}{
		{"substring inside word", "water bottle", "underwater bottleneck", false},
		{"bounded by punctuation", "water bottle", "Premium water bottle, leakproof", true},
		{"bounded by edges", "water bottle", "water bottle", true},
		{"case insensitive", "Water Bottle", "BPA-free WATER BOTTLE for gym", true},
		{"prefix runs into word", "bottle", "bottles on sale", false},
		{"diacritic boundary", "flasche", "trinkflasche isoliert", false},
		{"diacritic phrase", "trinkflasche edelstahl", "Premium Trinkflasche Edelstahl 750ml", true},
		{"empty phrase", "", "anything", false},
		{"empty text", "bottle", "", false},
		{"second occurrence bounded", "bottle", "bottles and a bottle", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExactPhrase(tc.phrase, tc.text); got != tc.want {
				t.Fatalf("expected %v for %q in %q, got %v", tc.want, tc.phrase, tc.text, got)
			}
		})
	}
}

func TestCleanTokensStripsSymbols(t *testing.T) {
	got := CleanTokens("Yoga-Matte! (rutschfest) & ÖKO zertifiziert™")
	want := []string{"yogamatte", "rutschfest", "öko", "zertifiziert"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
