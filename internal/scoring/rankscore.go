package scoring

import (
	"strings"
	"unicode/utf8"

	"rankjuice/internal/match"
)

// Component weights for the composite ranking score. They sum to exactly 1.0.
const (
	WeightCoverage   = 0.35
	WeightExactMatch = 0.30
	WeightVolume     = 0.20
	WeightBackend    = 0.10
	WeightStructure  = 0.05
)

const (
	exactMatchTopN  = 30
	volumeTopN      = 50
	backendByteCap  = 250
	coverageCeiling = 98.0
)

// RankingScoreReport is the composite 0-100 estimate of how well a draft can
// rank for its keyword list.
type RankingScoreReport struct {
	Score      float64         `json:"score"`
	Grade      string          `json:"grade"`
	Verdict    string          `json:"verdict"`
	Components ScoreComponents `json:"components"`
	Weights    ScoreComponents `json:"weights"`
}

// ScoreComponents carries one value per ranking factor, doubling as the
// weight table in the report.
type ScoreComponents struct {
	Coverage          float64 `json:"keyword_coverage"`
	ExactMatch        float64 `json:"exact_matches"`
	Volume            float64 `json:"search_volume"`
	BackendEfficiency float64 `json:"backend_efficiency"`
	Structure         float64 `json:"structure"`
}

// CalculateRankingScore evaluates the draft on five weighted factors and
// folds them into a single graded score.
func CalculateRankingScore(keywords []Keyword, draft Draft) RankingScoreReport {
	components := ScoreComponents{
		Coverage:          coverageComponent(keywords, draft),
		ExactMatch:        exactMatchComponent(keywords, draft),
		Volume:            volumeComponent(keywords, draft),
		BackendEfficiency: backendEfficiency(keywords, draft),
		Structure:         structureComponent(draft),
	}
	score := round1(components.Coverage*WeightCoverage +
		components.ExactMatch*WeightExactMatch +
		components.Volume*WeightVolume +
		components.BackendEfficiency*WeightBackend +
		components.Structure*WeightStructure)
	grade, verdict := scoreGrade(score)
	return RankingScoreReport{
		Score:      score,
		Grade:      grade,
		Verdict:    verdict,
		Components: components,
		Weights: ScoreComponents{
			Coverage:          WeightCoverage,
			ExactMatch:        WeightExactMatch,
			Volume:            WeightVolume,
			BackendEfficiency: WeightBackend,
			Structure:         WeightStructure,
		},
	}
}

// coverageComponent rescales raw coverage so that 98% already earns full
// marks. Perfect raw coverage is rarely attainable once the keyword list
// carries misspellings and competitor brands.
func coverageComponent(keywords []Keyword, draft Draft) float64 {
	raw := coverageReport(keywords, draft, coverageOptions{topN: DefaultCoverageTopN, includeBackend: true}).Overall
	return round1(clampFloat(raw*100/coverageCeiling, 0, 100))
}

// exactMatchComponent rewards verbatim keyword placement in the title (1.5
// points) or bullets (1.0 point) across the top keywords, measured against a
// target of half the checked keywords, clamped to [3,8].
func exactMatchComponent(keywords []Keyword, draft Draft) float64 {
	top := topKeywords(keywords, exactMatchTopN)
	if len(top) == 0 {
		return 0
	}
	bullets := draft.bulletText()
	points := 0.0
	for _, kw := range top {
		switch {
		case match.ExactPhrase(kw.Phrase, draft.Title):
			points += 1.5
		case match.ExactPhrase(kw.Phrase, bullets):
			points += 1.0
		}
	}
	target := clampFloat(0.5*float64(len(top)), 3, 8)
	return round1(clampFloat(points/target*100, 0, 100))
}

// volumeComponent measures how much of the available search volume the draft
// captures, weighting title exact matches 1.5x, bullet exact matches 1.0x and
// partial title word overlap 0.3x. With no volume signal at all it returns a
// neutral 50.
func volumeComponent(keywords []Keyword, draft Draft) float64 {
	top := topKeywords(keywords, volumeTopN)
	titleSet := match.Words(draft.Title)
	bullets := draft.bulletText()

	total := 0
	captured := 0.0
	for _, kw := range top {
		vol := volume(kw)
		total += vol
		switch {
		case match.ExactPhrase(kw.Phrase, draft.Title):
			captured += float64(vol) * 1.5
		case match.ExactPhrase(kw.Phrase, bullets):
			captured += float64(vol)
		case anyWordIn(kw.Phrase, titleSet):
			captured += float64(vol) * 0.3
		}
	}
	if total == 0 {
		return 50
	}
	return round1(clampFloat(captured/(float64(total)*1.5)*100, 0, 100))
}

// backendEfficiency scores how well the backend field uses its byte budget.
// Exceeding the budget is penalized outright; otherwise fuller is better,
// with a floor when the visible copy already covers the list on its own.
func backendEfficiency(keywords []Keyword, draft Draft) float64 {
	b := len(draft.BackendTerms)
	if b > backendByteCap {
		return 50
	}
	var base float64
	switch {
	case b >= 240:
		base = 100
	case b >= 230:
		base = 95
	case b >= 220:
		base = 85
	default:
		base = float64(b) / 240 * 80
	}

	visible := coverageReport(keywords, draft, coverageOptions{topN: DefaultCoverageTopN, includeBackend: false}).Overall
	if visible >= 95 {
		if base < 80 {
			base = 80
		}
	} else if visible >= 90 {
		if base < 60 {
			base = 60
		}
	}
	return round1(base)
}

// structureComponent applies the layout heuristics marketplaces reward:
// long-enough titles, a full set of substantial bullets, and a brand
// separator in the title.
func structureComponent(draft Draft) float64 {
	score := 100.0
	titleLen := utf8.RuneCountInString(draft.Title)
	if titleLen < 150 {
		score -= 15
	}
	if titleLen > 200 {
		score -= 10
	}
	if len(draft.Bullets) < 5 {
		score -= float64(5-len(draft.Bullets)) * 5
	}
	for _, bullet := range draft.Bullets {
		length := utf8.RuneCountInString(bullet)
		switch {
		case length < 100:
			score -= 3
		case length > 500:
			score -= 2
		}
	}
	if strings.Contains(draft.Title, " - ") {
		score += 5
	}
	return clampFloat(score, 0, 100)
}

func anyWordIn(phrase string, set map[string]struct{}) bool {
	for _, word := range match.Tokens(phrase) {
		if _, ok := set[word]; ok {
			return true
		}
	}
	return false
}

func scoreGrade(score float64) (string, string) {
	switch {
	case score >= 90:
		return "A+", "Excellent - listing is primed to rank"
	case score >= 80:
		return "A", "Very good - only minor optimizations left"
	case score >= 70:
		return "B", "Good - meaningful ranking headroom remains"
	case score >= 60:
		return "C", "Fair - several ranking factors need work"
	default:
		return "D", "Poor - rework the listing against the keyword list"
	}
}
