package store

import (
	"encoding/json"
	"strings"
	"time"
)

// KeywordBatch represents an uploaded keyword CSV for a single product listing.
type KeywordBatch struct {
	ID               uint   `gorm:"primaryKey"`
	Name             string `gorm:"size:128;index"`
	Owner            string `gorm:"size:128;index"`
	OriginalFilename string `gorm:"size:256"`
	ProductName      string `gorm:"size:256"`
	Category         string `gorm:"size:128"`
	Marketplace      string `gorm:"size:32;index"`
	AccountType      string `gorm:"size:16"`
	RowCount         int
	UniqueKeywords   int
	DuplicateRows    int
	ZeroVolumeRows   int
	LastOptimizedAt  *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// BatchKeyword links keyword phrases to batches (one row per unique phrase).
type BatchKeyword struct {
	ID           uint   `gorm:"primaryKey"`
	BatchID      uint   `gorm:"index"`
	Phrase       string `gorm:"size:255"`
	Normalized   string `gorm:"size:255;index"`
	SearchVolume int    `gorm:"index"`
	RowIndex     int
	CreatedAt    time.Time
}

// OptimizationRequest tracks an optimization job for a batch (e.g., initial run, re-run).
type OptimizationRequest struct {
	ID         uint   `gorm:"primaryKey"`
	BatchID    uint   `gorm:"index"`
	Type       string `gorm:"size:32"`
	Status     string `gorm:"size:32;index"`
	JobID      string `gorm:"size:64;index"`
	Message    string `gorm:"size:255"`
	Candidates int
	Processed  int
	StartedAt  time.Time
	FinishedAt *time.Time
	CreatedAt  time.Time
}

// Optimization is the winning listing report persisted per batch for querying/exporting.
type Optimization struct {
	ID               uint   `gorm:"primaryKey"`
	BatchID          uint   `gorm:"uniqueIndex"`
	JobID            string `gorm:"size:64;index"`
	ProductName      string `gorm:"size:256;index"`
	Marketplace      string `gorm:"size:32;index"`
	AccountType      string `gorm:"size:16"`
	Title            string `gorm:"size:512"`
	BulletsJSON      string `gorm:"type:text"`
	Description      string `gorm:"type:text"`
	BackendTerms     string `gorm:"size:512"`
	BackendBytes     int
	Score            float64 `gorm:"index"`
	Grade            string  `gorm:"size:8"`
	Verdict          string  `gorm:"size:128"`
	CoveragePct      float64
	CoverageGrade    string `gorm:"size:16"`
	ComponentsJSON   string `gorm:"type:text"`
	StuffingJSON     string `gorm:"type:text"`
	PolicyStatus     string `gorm:"size:16;index"`
	SuppressionRisk  bool
	PolicyJSON       string `gorm:"type:text"`
	PPCReportJSON    string `gorm:"type:text"`
	GeneratedBy      string `gorm:"size:64"`
	CandidateCount   int
	ProcessingTimeMs int64
	CreatedAt        time.Time `gorm:"autoCreateTime"`
}

// Brand stores a competitor brand extracted from product feeds or CSV imports.
type Brand struct {
	ID         uint      `gorm:"primaryKey"`
	Name       string    `gorm:"size:255"`
	Normalized string    `gorm:"size:255;uniqueIndex"`
	Prefix     string    `gorm:"size:16;index"`
	Length     int       `gorm:"index"`
	Items      int       `gorm:"index"`
	Source     string    `gorm:"size:64"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

// TitleTerm stores aggregated title-word counts harvested from product feeds.
type TitleTerm struct {
	Term      string `gorm:"primaryKey;size:128"`
	Total     int    `gorm:"index"`
	UpdatedAt time.Time
}

// SetBullets persists the bullet list as JSON.
func (o *Optimization) SetBullets(bullets []string) {
	if bullets == nil {
		o.BulletsJSON = "[]"
		return
	}
	payload, _ := json.Marshal(bullets)
	o.BulletsJSON = string(payload)
}

// Bullets returns the unmarshalled bullet list.
func (o *Optimization) Bullets() []string {
	if strings.TrimSpace(o.BulletsJSON) == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(o.BulletsJSON), &out); err != nil {
		return nil
	}
	return out
}

// SetStuffingWarnings saves the anti-stuffing warnings as JSON.
func (o *Optimization) SetStuffingWarnings(warnings []string) {
	payload, _ := json.Marshal(warnings)
	o.StuffingJSON = string(payload)
}

// StuffingWarnings returns the decoded anti-stuffing warnings slice.
func (o *Optimization) StuffingWarnings() []string {
	if strings.TrimSpace(o.StuffingJSON) == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(o.StuffingJSON), &out); err != nil {
		return nil
	}
	return out
}
