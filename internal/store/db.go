package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Database wraps the GORM DB handle and exposes repository helpers.
type Database struct {
	gorm *gorm.DB
	mu   sync.Mutex
}

// Open initializes the SQLite-backed database at the provided path.
func Open(path string, silent bool) (*Database, error) {
	cfg := &gorm.Config{}
	if silent {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&KeywordBatch{}, &BatchKeyword{}, &OptimizationRequest{}, &Optimization{}, &Brand{}, &TitleTerm{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		logrus.WithError(err).Warn("enable WAL mode")
	}
	if err := db.Exec("PRAGMA synchronous=NORMAL").Error; err != nil {
		logrus.WithError(err).Warn("set synchronous pragma")
	}
	if err := applyIndexes(db); err != nil {
		return nil, fmt.Errorf("apply indexes: %w", err)
	}
	return &Database{gorm: db}, nil
}

// Close closes the underlying database connection.
func (d *Database) Close() error {
	if d == nil {
		return nil
	}
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateKeywordBatch inserts a new keyword batch record.
func (d *Database) CreateKeywordBatch(batch *KeywordBatch) error {
	if batch == nil {
		return errors.New("batch is nil")
	}
	batch.Marketplace = strings.ToLower(strings.TrimSpace(batch.Marketplace))
	batch.AccountType = strings.ToLower(strings.TrimSpace(batch.AccountType))
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Create(batch).Error
}

// UpdateKeywordBatchStats updates aggregate statistics for a batch.
func (d *Database) UpdateKeywordBatchStats(batchID uint, rowCount, uniqueKeywords, duplicateRows, zeroVolumeRows int) error {
	return d.gorm.Model(&KeywordBatch{}).
		Where("id = ?", batchID).
		Updates(map[string]any{
			"row_count":        rowCount,
			"unique_keywords":  uniqueKeywords,
			"duplicate_rows":   duplicateRows,
			"zero_volume_rows": zeroVolumeRows,
		}).Error
}

// ReplaceBatchKeywords replaces all keyword rows associated with a batch.
func (d *Database) ReplaceBatchKeywords(batchID uint, rows []BatchKeyword) error {
	for i := range rows {
		rows[i].BatchID = batchID
		rows[i].Phrase = strings.TrimSpace(rows[i].Phrase)
		rows[i].Normalized = normalizePhraseKey(rows[i].Phrase)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("batch_id = ?", batchID).Delete(&BatchKeyword{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 500).Error
	})
}

// ListBatchKeywords returns the keywords of a batch ordered by search volume.
func (d *Database) ListBatchKeywords(batchID uint) ([]BatchKeyword, error) {
	var rows []BatchKeyword
	if err := d.gorm.Model(&BatchKeyword{}).
		Where("batch_id = ?", batchID).
		Order("search_volume DESC, row_index ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// CountBatchKeywords returns the number of keyword rows in a batch.
func (d *Database) CountBatchKeywords(batchID uint) (int, error) {
	var count int64
	if err := d.gorm.Model(&BatchKeyword{}).
		Where("batch_id = ?", batchID).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// UpdateKeywordVolumes writes refreshed search volumes keyed by normalized phrase.
func (d *Database) UpdateKeywordVolumes(batchID uint, volumes map[string]int) error {
	if len(volumes) == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Transaction(func(tx *gorm.DB) error {
		for phrase, volume := range volumes {
			key := normalizePhraseKey(phrase)
			if key == "" {
				continue
			}
			if err := tx.Model(&BatchKeyword{}).
				Where("batch_id = ? AND normalized = ?", batchID, key).
				Update("search_volume", volume).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// KnownVolumes returns previously stored positive search volumes for the given phrases.
// Lookups are chunked to stay below the SQLite bind-variable limit.
func (d *Database) KnownVolumes(phrases []string) (map[string]int, error) {
	result := make(map[string]int)
	if len(phrases) == 0 {
		return result, nil
	}

	unique := make([]string, 0, len(phrases))
	seen := make(map[string]struct{})
	for _, phrase := range phrases {
		key := normalizePhraseKey(phrase)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, key)
	}

	if len(unique) == 0 {
		return result, nil
	}

	const chunkSize = 1000
	for i := 0; i < len(unique); i += chunkSize {
		end := i + chunkSize
		if end > len(unique) {
			end = len(unique)
		}
		chunk := unique[i:end]

		var rows []struct {
			Normalized   string
			SearchVolume int
		}
		if err := d.gorm.Model(&BatchKeyword{}).
			Select("normalized, MAX(search_volume) AS search_volume").
			Where("normalized IN ? AND search_volume > 0", chunk).
			Group("normalized").
			Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			result[row.Normalized] = row.SearchVolume
		}
	}
	return result, nil
}

// SaveOptimization inserts or updates the winning report for a batch.
func (d *Database) SaveOptimization(o *Optimization) error {
	if o == nil {
		return errors.New("optimization is nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	columns := []string{
		"job_id",
		"product_name",
		"marketplace",
		"account_type",
		"title",
		"bullets_json",
		"description",
		"backend_terms",
		"backend_bytes",
		"score",
		"grade",
		"verdict",
		"coverage_pct",
		"coverage_grade",
		"components_json",
		"stuffing_json",
		"policy_status",
		"suppression_risk",
		"policy_json",
		"ppc_report_json",
		"generated_by",
		"candidate_count",
		"processing_time_ms",
	}
	o.Marketplace = strings.ToLower(strings.TrimSpace(o.Marketplace))
	return d.gorm.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "batch_id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(o).Error
}

// CountOptimizationsByGrade returns stored report counts grouped by ranking grade.
func (d *Database) CountOptimizationsByGrade() (map[string]int64, error) {
	var rows []struct {
		Grade string
		Total int64
	}
	if err := d.gorm.Model(&Optimization{}).
		Select("grade, COUNT(*) AS total").
		Group("grade").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Grade] = row.Total
	}
	return out, nil
}

// GetOptimization retrieves the stored report for a batch.
func (d *Database) GetOptimization(batchID uint) (*Optimization, error) {
	var row Optimization
	if err := d.gorm.Where("batch_id = ?", batchID).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// ClearOptimizations removes previously calculated reports (useful before re-processing).
func (d *Database) ClearOptimizations() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Optimization{}).Error
}

// OptimizationQuery encapsulates filters and pagination for listing stored reports.
type OptimizationQuery struct {
	Query        string
	Marketplace  string
	AccountType  string
	MinScore     float64
	Grade        string
	PolicyStatus string
	Sort         string
	Offset       int
	Limit        int
	BatchID      uint
}

// ListOptimizations returns paginated report records applying optional filters.
func (d *Database) ListOptimizations(opts OptimizationQuery) ([]Optimization, int64, error) {
	var total int64
	base := d.gorm.Model(&Optimization{})
	if opts.BatchID > 0 {
		base = base.Where("batch_id = ?", opts.BatchID)
	}
	if opts.Query != "" {
		like := fmt.Sprintf("%%%s%%", opts.Query)
		base = base.Where("product_name LIKE ? OR title LIKE ?", like, like)
	}
	if mp := strings.TrimSpace(opts.Marketplace); mp != "" {
		base = base.Where("marketplace = ?", strings.ToLower(mp))
	}
	if account := strings.TrimSpace(opts.AccountType); account != "" {
		base = base.Where("account_type = ?", strings.ToLower(account))
	}
	if opts.MinScore > 0 {
		base = base.Where("score >= ?", opts.MinScore)
	}
	if grade := strings.TrimSpace(opts.Grade); grade != "" {
		base = base.Where("grade = ?", strings.ToUpper(grade))
	}
	if status := strings.TrimSpace(opts.PolicyStatus); status != "" {
		base = base.Where("policy_status = ?", strings.ToUpper(status))
	}

	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := orderForSort(opts.Sort)
	queryBuilder := base.Order(order).Offset(opts.Offset)
	if opts.Limit > 0 {
		queryBuilder = queryBuilder.Limit(opts.Limit)
	}

	var rows []Optimization
	if err := queryBuilder.Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func orderForSort(sort string) string {
	switch strings.ToLower(strings.TrimSpace(sort)) {
	case "score_asc":
		return "optimizations.score ASC, optimizations.id DESC"
	case "score_desc":
		return "optimizations.score DESC, optimizations.id DESC"
	case "coverage_asc":
		return "optimizations.coverage_pct ASC, optimizations.id DESC"
	case "coverage_desc":
		return "optimizations.coverage_pct DESC, optimizations.score DESC, optimizations.id DESC"
	case "product_asc":
		return "optimizations.product_name ASC"
	case "product_desc":
		return "optimizations.product_name DESC"
	case "created_asc":
		return "optimizations.created_at ASC"
	case "created_desc":
		return "optimizations.created_at DESC"
	default:
		return "optimizations.id DESC"
	}
}

// BatchSummary aggregates keyword counts and report status for a batch.
type BatchSummary struct {
	BatchID     uint
	Keywords    int
	TotalVolume int64
	HasResult   bool
	Score       float64
}

func normalizePhraseKey(value string) string {
	return strings.Join(strings.Fields(strings.ToLower(value)), " ")
}

func applyIndexes(db *gorm.DB) error {
	stmts := []string{
		"UPDATE batch_keywords SET normalized = LOWER(TRIM(phrase)) WHERE phrase IS NOT NULL AND (normalized IS NULL OR normalized = '')",
		"CREATE INDEX IF NOT EXISTS idx_batch_keywords_batch_normalized ON batch_keywords(batch_id, normalized)",
		"CREATE INDEX IF NOT EXISTS idx_batch_keywords_volume ON batch_keywords(search_volume)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_optimizations_batch ON optimizations(batch_id)",
		"CREATE INDEX IF NOT EXISTS idx_optimizations_score ON optimizations(score)",
		"CREATE INDEX IF NOT EXISTS idx_optimizations_policy_status ON optimizations(policy_status)",
		"CREATE INDEX IF NOT EXISTS idx_optimization_requests_status_created ON optimization_requests(status, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_optimization_requests_job ON optimization_requests(job_id)",
		"CREATE INDEX IF NOT EXISTS idx_brands_prefix_length ON brands(prefix, length)",
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// BatchSummaries returns per-batch keyword aggregates joined with report status.
func (d *Database) BatchSummaries(batchIDs []uint) (map[uint]BatchSummary, error) {
	result := make(map[uint]BatchSummary)
	if len(batchIDs) == 0 {
		return result, nil
	}
	query := `
		SELECT bk.batch_id AS batch_id,
		       COUNT(*) AS keywords,
		       SUM(CASE WHEN bk.search_volume > 0 THEN bk.search_volume ELSE 0 END) AS total_volume,
		       CASE WHEN MAX(o.id) IS NULL THEN 0 ELSE 1 END AS has_result,
		       COALESCE(MAX(o.score), 0) AS score
		FROM batch_keywords bk
		LEFT JOIN optimizations o ON o.batch_id = bk.batch_id
		WHERE bk.batch_id IN ?
		GROUP BY bk.batch_id`
	var rows []BatchSummary
	if err := d.gorm.Raw(query, batchIDs).Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.BatchID] = row
	}
	return result, nil
}

// CreateOptimizationRequest records a new optimization request for a batch.
func (d *Database) CreateOptimizationRequest(batchID uint, requestType, status, jobID string, candidates int) (*OptimizationRequest, error) {
	request := &OptimizationRequest{
		BatchID:    batchID,
		Type:       requestType,
		Status:     status,
		JobID:      jobID,
		Candidates: candidates,
		StartedAt:  time.Now(),
	}
	if err := d.gorm.Create(request).Error; err != nil {
		return nil, err
	}
	return request, nil
}

// UpdateOptimizationRequest updates the status, message and timestamps of a request.
func (d *Database) UpdateOptimizationRequest(requestID uint, status, message string) error {
	updates := map[string]any{"status": status}
	if message != "" {
		updates["message"] = message
	}
	if status == "completed" || status == "failed" || status == "cancelled" {
		now := time.Now()
		updates["finished_at"] = &now
	}
	return d.gorm.Model(&OptimizationRequest{}).Where("id = ?", requestID).Updates(updates).Error
}

// UpdateOptimizationProgress refreshes the processed candidate count for a running job.
func (d *Database) UpdateOptimizationProgress(jobID string, processed int) error {
	return d.gorm.Model(&OptimizationRequest{}).
		Where("job_id = ?", jobID).
		Update("processed", processed).Error
}

// TouchBatchOptimized stamps the batch with the time of its last finished run.
func (d *Database) TouchBatchOptimized(batchID uint) error {
	now := time.Now()
	return d.gorm.Model(&KeywordBatch{}).
		Where("id = ?", batchID).
		Update("last_optimized_at", &now).Error
}

// ListKeywordBatches returns keyword batches ordered by creation time.
func (d *Database) ListKeywordBatches(offset, limit int) ([]KeywordBatch, int64, error) {
	var total int64
	if err := d.gorm.Model(&KeywordBatch{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query := d.gorm.Model(&KeywordBatch{}).Order("created_at DESC")
	if limit > 0 {
		query = query.Offset(offset).Limit(limit)
	}
	var batches []KeywordBatch
	if err := query.Find(&batches).Error; err != nil {
		return nil, 0, err
	}
	return batches, total, nil
}

// GetKeywordBatch retrieves a batch by ID.
func (d *Database) GetKeywordBatch(batchID uint) (*KeywordBatch, error) {
	var batch KeywordBatch
	if err := d.gorm.First(&batch, batchID).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

// GetOptimizationRequest fetches a request record by ID.
func (d *Database) GetOptimizationRequest(requestID uint) (*OptimizationRequest, error) {
	var request OptimizationRequest
	if err := d.gorm.First(&request, requestID).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

// GetOptimizationRequestByJob fetches the request record carrying the given job ID.
func (d *Database) GetOptimizationRequestByJob(jobID string) (*OptimizationRequest, error) {
	var request OptimizationRequest
	if err := d.gorm.Where("job_id = ?", jobID).First(&request).Error; err != nil {
		return nil, err
	}
	return &request, nil
}
