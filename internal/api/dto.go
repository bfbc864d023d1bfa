package api

import (
	"encoding/json"
	"time"

	"rankjuice/internal/scoring"
	"rankjuice/internal/store"
)

// UploadResponse summarizes a stored keyword CSV.
type UploadResponse struct {
	BatchID        uint   `json:"batch_id"`
	BatchName      string `json:"batch_name"`
	Owner          string `json:"owner"`
	ProductName    string `json:"product_name"`
	Marketplace    string `json:"marketplace"`
	AccountType    string `json:"account_type"`
	RowCount       int    `json:"row_count"`
	UniqueKeywords int    `json:"unique_keywords"`
	DuplicateRows  int    `json:"duplicate_rows"`
	ZeroVolumeRows int    `json:"zero_volume_rows"`
	KnownVolumes   int    `json:"known_volumes"`
}

// OptimizeRequest starts an optimization job for a batch.
type OptimizeRequest struct {
	BatchID         uint   `json:"batch_id"`
	Candidates      int    `json:"candidates"`
	MaxBackendBytes int    `json:"max_backend_bytes"`
	Suggestions     string `json:"suggestions"`
	FetchVolumes    bool   `json:"fetch_volumes"`
}

// StartOptimizationResponse acknowledges an accepted job.
type StartOptimizationResponse struct {
	JobID      string    `json:"job_id"`
	BatchID    uint      `json:"batch_id"`
	RequestID  uint      `json:"request_id"`
	Candidates int       `json:"candidates"`
	StartedAt  time.Time `json:"started_at"`
}

// ScoreRequest asks for a synchronous report on a caller-supplied draft.
type ScoreRequest struct {
	ProductName     string            `json:"product_name"`
	Category        string            `json:"category"`
	Marketplace     string            `json:"marketplace"`
	AccountType     string            `json:"account_type"`
	Keywords        []scoring.Keyword `json:"keywords"`
	Draft           scoring.Draft     `json:"draft"`
	MaxBackendBytes int               `json:"max_backend_bytes"`
	Suggestions     string            `json:"suggestions"`
}

// DraftDTO is the scored listing copy including the packed backend field.
type DraftDTO struct {
	Title        string   `json:"title"`
	Bullets      []string `json:"bullets"`
	Description  string   `json:"description"`
	BackendTerms string   `json:"backend_terms"`
	BackendBytes int      `json:"backend_bytes"`
}

// TierSummary counts keywords per placement band.
type TierSummary struct {
	Title       int `json:"title"`
	Bullets     int `json:"bullets"`
	Backend     int `json:"backend"`
	Description int `json:"description"`
	Total       int `json:"total"`
}

// BrandNote flags a negative-keyword candidate resembling a known competitor
// brand. Notes never change the PPC buckets themselves.
type BrandNote struct {
	Term       string  `json:"term"`
	Brand      string  `json:"brand"`
	Similarity float64 `json:"similarity"`
	Source     string  `json:"source,omitempty"`
}

// ListingReport merges every engine verdict for one draft.
type ListingReport struct {
	ProductName      string                     `json:"product_name"`
	Marketplace      string                     `json:"marketplace"`
	AccountType      string                     `json:"account_type"`
	Draft            DraftDTO                   `json:"draft"`
	Tiers            TierSummary                `json:"tiers"`
	Coverage         scoring.CoverageReport     `json:"coverage"`
	Ranking          scoring.RankingScoreReport `json:"ranking"`
	StuffingWarnings []string                   `json:"stuffing_warnings"`
	Policy           scoring.PolicyReport       `json:"policy"`
	PPC              scoring.PPCReport          `json:"ppc"`
	BrandNotes       []BrandNote                `json:"brand_notes,omitempty"`
	GeneratedBy      string                     `json:"generated_by,omitempty"`
	ProcessingTimeMs int64                      `json:"processing_time_ms"`
}

// CandidateDTO is a per-candidate progress snapshot for stream consumers.
type CandidateDTO struct {
	Index       int     `json:"index"`
	Score       float64 `json:"score"`
	Grade       string  `json:"grade"`
	CoveragePct float64 `json:"coverage_pct"`
	GeneratedBy string  `json:"generated_by,omitempty"`
}

// OptimizationDTO mirrors a persisted winning report row.
type OptimizationDTO struct {
	ID               uint                     `json:"id"`
	BatchID          uint                     `json:"batch_id"`
	JobID            string                   `json:"job_id,omitempty"`
	ProductName      string                   `json:"product_name"`
	Marketplace      string                   `json:"marketplace"`
	AccountType      string                   `json:"account_type"`
	Title            string                   `json:"title"`
	Bullets          []string                 `json:"bullets"`
	Description      string                   `json:"description"`
	BackendTerms     string                   `json:"backend_terms"`
	BackendBytes     int                      `json:"backend_bytes"`
	Score            float64                  `json:"score"`
	Grade            string                   `json:"grade"`
	Verdict          string                   `json:"verdict"`
	CoveragePct      float64                  `json:"coverage_pct"`
	CoverageGrade    string                   `json:"coverage_grade"`
	Components       *scoring.ScoreComponents `json:"components,omitempty"`
	StuffingWarnings []string                 `json:"stuffing_warnings"`
	PolicyStatus     string                   `json:"policy_status"`
	SuppressionRisk  bool                     `json:"suppression_risk"`
	PolicyViolations []scoring.Violation      `json:"policy_violations,omitempty"`
	PPC              *scoring.PPCReport       `json:"ppc,omitempty"`
	GeneratedBy      string                   `json:"generated_by,omitempty"`
	CandidateCount   int                      `json:"candidate_count"`
	ProcessingTimeMs int64                    `json:"processing_time_ms"`
	CreatedAt        time.Time                `json:"created_at"`
}

// MarshalJSON keeps the list fields as empty arrays rather than null so API
// consumers can iterate without nil checks.
func (dto OptimizationDTO) MarshalJSON() ([]byte, error) {
	type Alias OptimizationDTO
	out := Alias(dto)
	if out.Bullets == nil {
		out.Bullets = []string{}
	}
	if out.StuffingWarnings == nil {
		out.StuffingWarnings = []string{}
	}
	return json.Marshal(out)
}

// FromModel converts a stored report row into its transport form, decoding
// the JSON report columns.
func FromModel(row store.Optimization) OptimizationDTO {
	dto := OptimizationDTO{
		ID:               row.ID,
		BatchID:          row.BatchID,
		JobID:            row.JobID,
		ProductName:      row.ProductName,
		Marketplace:      row.Marketplace,
		AccountType:      row.AccountType,
		Title:            row.Title,
		Description:      row.Description,
		BackendTerms:     row.BackendTerms,
		BackendBytes:     row.BackendBytes,
		Score:            round2(row.Score),
		Grade:            row.Grade,
		Verdict:          row.Verdict,
		CoveragePct:      round2(row.CoveragePct),
		CoverageGrade:    row.CoverageGrade,
		PolicyStatus:     row.PolicyStatus,
		SuppressionRisk:  row.SuppressionRisk,
		GeneratedBy:      row.GeneratedBy,
		CandidateCount:   row.CandidateCount,
		ProcessingTimeMs: row.ProcessingTimeMs,
		CreatedAt:        row.CreatedAt,
	}
	dto.Bullets = row.Bullets()
	dto.StuffingWarnings = row.StuffingWarnings()
	dto.Components = decodeComponents(row.ComponentsJSON)
	dto.PolicyViolations = decodeViolations(row.PolicyJSON)
	dto.PPC = decodePPC(row.PPCReportJSON)
	return dto
}

// BatchDTO summarizes an uploaded keyword batch.
type BatchDTO struct {
	ID               uint       `json:"id"`
	Name             string     `json:"name"`
	Owner            string     `json:"owner"`
	OriginalFilename string     `json:"original_filename,omitempty"`
	ProductName      string     `json:"product_name"`
	Category         string     `json:"category,omitempty"`
	Marketplace      string     `json:"marketplace"`
	AccountType      string     `json:"account_type"`
	RowCount         int        `json:"row_count"`
	UniqueKeywords   int        `json:"unique_keywords"`
	DuplicateRows    int        `json:"duplicate_rows"`
	ZeroVolumeRows   int        `json:"zero_volume_rows"`
	Keywords         int        `json:"keywords"`
	TotalVolume      int64      `json:"total_volume"`
	HasResult        bool       `json:"has_result"`
	Score            float64    `json:"score,omitempty"`
	LastOptimizedAt  *time.Time `json:"last_optimized_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// BatchesResponse is a paginated batch listing.
type BatchesResponse struct {
	Items []BatchDTO `json:"items"`
	Total int64      `json:"total"`
}

// BatchFromModel converts a stored batch row.
func BatchFromModel(row store.KeywordBatch) BatchDTO {
	return BatchDTO{
		ID:               row.ID,
		Name:             row.Name,
		Owner:            row.Owner,
		OriginalFilename: row.OriginalFilename,
		ProductName:      row.ProductName,
		Category:         row.Category,
		Marketplace:      row.Marketplace,
		AccountType:      row.AccountType,
		RowCount:         row.RowCount,
		UniqueKeywords:   row.UniqueKeywords,
		DuplicateRows:    row.DuplicateRows,
		ZeroVolumeRows:   row.ZeroVolumeRows,
		LastOptimizedAt:  row.LastOptimizedAt,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
}

// ApplySummary folds aggregated keyword counts and report state into the DTO.
func (dto *BatchDTO) ApplySummary(summary store.BatchSummary) {
	dto.Keywords = summary.Keywords
	dto.TotalVolume = summary.TotalVolume
	dto.HasResult = summary.HasResult
	dto.Score = round2(summary.Score)
}

// KeywordDTO is one stored keyword row.
type KeywordDTO struct {
	Phrase       string `json:"phrase"`
	SearchVolume int    `json:"search_volume"`
	RowIndex     int    `json:"row_index"`
}

// KeywordsResponse lists the keywords of one batch.
type KeywordsResponse struct {
	Items []KeywordDTO `json:"items"`
	Total int          `json:"total"`
}

// OptimizationRequestDTO reports the state of a tracked job run.
type OptimizationRequestDTO struct {
	ID         uint       `json:"id"`
	BatchID    uint       `json:"batch_id"`
	Type       string     `json:"type"`
	Status     string     `json:"status"`
	JobID      string     `json:"job_id"`
	Message    string     `json:"message,omitempty"`
	Candidates int        `json:"candidates"`
	Processed  int        `json:"processed"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// RequestFromModel converts a stored request row.
func RequestFromModel(row store.OptimizationRequest) OptimizationRequestDTO {
	return OptimizationRequestDTO{
		ID:         row.ID,
		BatchID:    row.BatchID,
		Type:       row.Type,
		Status:     row.Status,
		JobID:      row.JobID,
		Message:    row.Message,
		Candidates: row.Candidates,
		Processed:  row.Processed,
		StartedAt:  row.StartedAt,
		FinishedAt: row.FinishedAt,
		CreatedAt:  row.CreatedAt,
	}
}

// ResultsResponse is a paginated report listing.
type ResultsResponse struct {
	Items []OptimizationDTO `json:"items"`
	Total int64             `json:"total"`
}

// OptimizeStatusResponse reports whether a job is running and its last event.
type OptimizeStatusResponse struct {
	Running       bool          `json:"running"`
	JobID         string        `json:"job_id,omitempty"`
	BatchID       uint          `json:"batch_id,omitempty"`
	RequestID     uint          `json:"request_id,omitempty"`
	State         string        `json:"state,omitempty"`
	Message       string        `json:"message,omitempty"`
	Processed     int           `json:"processed,omitempty"`
	Total         int           `json:"total,omitempty"`
	LastCandidate *CandidateDTO `json:"last_candidate,omitempty"`
}

func decodeComponents(raw string) *scoring.ScoreComponents {
	if raw == "" {
		return nil
	}
	var out scoring.ScoreComponents
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return &out
}

func decodeViolations(raw string) []scoring.Violation {
	if raw == "" {
		return nil
	}
	var out []scoring.Violation
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func decodePPC(raw string) *scoring.PPCReport {
	if raw == "" {
		return nil
	}
	var out scoring.PPCReport
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return &out
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
