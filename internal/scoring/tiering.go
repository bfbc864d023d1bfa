package scoring

import "strings"

// KeywordTiers assigns every ranked keyword to the listing field where it
// earns the most indexing weight. Tiers are contiguous rank bands: the
// highest-volume keywords go to the title, then bullets, then backend search
// terms, then the description. Keywords past the description band are dropped.
type KeywordTiers struct {
	Title       []Keyword `json:"title"`
	Bullets     []Keyword `json:"bullets"`
	Backend     []Keyword `json:"backend"`
	Description []Keyword `json:"description"`
}

// tierBounds holds the exclusive upper rank of each band. The title band
// always ends at 7.
type tierBounds struct {
	bullets     int
	backend     int
	description int
}

const titleBound = 7

var (
	sellerBounds = tierBounds{bullets: 32, backend: 100, description: 200}
	vendorBounds = tierBounds{bullets: 52, backend: 120, description: 250}
)

// shortBulletCategories mark browse categories with a reduced bullet length
// allowance on most marketplaces.
var shortBulletCategories = []string{"apparel", "clothing", "shoes", "jewelry", "fashion"}

// TierKeywords ranks keywords by descending search volume and splits them
// into placement bands. Vendor accounts get wider bullet and backend bands
// because vendor listings expose more bullet slots.
func TierKeywords(keywords []Keyword, account AccountType) KeywordTiers {
	bounds := sellerBounds
	if account == AccountVendor {
		bounds = vendorBounds
	}
	ranked := sortByVolume(keywords)
	return KeywordTiers{
		Title:       band(ranked, 0, titleBound),
		Bullets:     band(ranked, titleBound, bounds.bullets),
		Backend:     band(ranked, bounds.bullets, bounds.backend),
		Description: band(ranked, bounds.backend, bounds.description),
	}
}

// BulletCount returns the number of bullet slots for the account type.
func BulletCount(account AccountType) int {
	if account == AccountVendor {
		return 10
	}
	return 5
}

// BulletCharLimit returns the per-bullet character allowance for the given
// browse category. Soft-lines categories run shorter bullets.
func BulletCharLimit(category string) int {
	lower := strings.ToLower(category)
	for _, marker := range shortBulletCategories {
		if strings.Contains(lower, marker) {
			return 150
		}
	}
	return 200
}

func band(ranked []Keyword, start, end int) []Keyword {
	if start > len(ranked) {
		start = len(ranked)
	}
	if end > len(ranked) {
		end = len(ranked)
	}
	return ranked[start:end]
}
