package scoring

import "rankjuice/internal/match"

// Coverage thresholds and limits.
const (
	CoverageTarget      = 95.0
	DefaultCoverageTopN = 200
	maxUncoveredListed  = 20
)

// Coverage grades.
const (
	GradeExcellent = "EXCELLENT"
	GradeGood      = "GOOD"
	GradeModerate  = "MODERATE"
	GradeLow       = "LOW"
)

// CoverageReport summarizes how thoroughly a draft indexes the researched
// keyword list.
type CoverageReport struct {
	Overall     float64           `json:"overall_pct"`
	Grade       string            `json:"grade"`
	ByPlacement PlacementCoverage `json:"by_placement"`
	Target      float64           `json:"target_pct"`
	MeetsTarget bool              `json:"meets_target"`
	Covered     int               `json:"keywords_covered"`
	Checked     int               `json:"keywords_checked"`
	Uncovered   []string          `json:"uncovered"`
}

// PlacementCoverage breaks coverage down by listing field, as a percentage of
// the checked keywords covered by that field alone.
type PlacementCoverage struct {
	Title       float64 `json:"title"`
	Bullets     float64 `json:"bullets"`
	Backend     float64 `json:"backend"`
	Description float64 `json:"description"`
}

type coverageOptions struct {
	topN           int
	includeBackend bool
}

// CalculateCoverage checks the top keywords by volume (up to
// DefaultCoverageTopN) against each listing field and against the combined
// text, backend terms included.
func CalculateCoverage(keywords []Keyword, draft Draft) CoverageReport {
	return coverageReport(keywords, draft, coverageOptions{topN: DefaultCoverageTopN, includeBackend: true})
}

// CalculateCoverageTopN is CalculateCoverage with a caller-chosen keyword
// budget. topN <= 0 checks the whole list.
func CalculateCoverageTopN(keywords []Keyword, draft Draft, topN int) CoverageReport {
	return coverageReport(keywords, draft, coverageOptions{topN: topN, includeBackend: true})
}

func coverageReport(keywords []Keyword, draft Draft, opts coverageOptions) CoverageReport {
	considered := topKeywords(keywords, opts.topN)

	titleSet := match.Words(draft.Title)
	bulletSet := match.Words(draft.bulletText())
	descriptionSet := match.Words(draft.Description)
	backendSet := map[string]struct{}{}
	combined := draft.Title + " " + draft.bulletText() + " " + draft.Description
	if opts.includeBackend {
		backendSet = match.Words(draft.BackendTerms)
		combined += " " + draft.BackendTerms
	}
	combinedSet := match.Words(combined)

	covered := 0
	missed := make(map[string]struct{})
	for _, kw := range considered {
		if match.PhraseCovered(kw.Phrase, combinedSet) {
			covered++
			continue
		}
		missed[kw.Phrase] = struct{}{}
	}

	// Uncovered phrases are reported in the caller's keyword order, not rank order.
	var uncovered []string
	for _, kw := range keywords {
		if len(uncovered) == maxUncoveredListed || len(missed) == 0 {
			break
		}
		if _, ok := missed[kw.Phrase]; !ok {
			continue
		}
		uncovered = append(uncovered, kw.Phrase)
		delete(missed, kw.Phrase)
	}

	overall := percentage(covered, len(considered))
	return CoverageReport{
		Overall: overall,
		Grade:   coverageGrade(overall),
		ByPlacement: PlacementCoverage{
			Title:       percentage(coveredCount(considered, titleSet), len(considered)),
			Bullets:     percentage(coveredCount(considered, bulletSet), len(considered)),
			Backend:     percentage(coveredCount(considered, backendSet), len(considered)),
			Description: percentage(coveredCount(considered, descriptionSet), len(considered)),
		},
		Target:      CoverageTarget,
		MeetsTarget: overall >= CoverageTarget,
		Covered:     covered,
		Checked:     len(considered),
		Uncovered:   uncovered,
	}
}

func coverageGrade(pct float64) string {
	switch {
	case pct >= 95:
		return GradeExcellent
	case pct >= 85:
		return GradeGood
	case pct >= 70:
		return GradeModerate
	default:
		return GradeLow
	}
}
