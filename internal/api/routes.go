package api

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"rankjuice/internal/ai"
	"rankjuice/internal/brands"
	"rankjuice/internal/metrics"
	"rankjuice/internal/scoring"
	"rankjuice/internal/store"
	"rankjuice/internal/volume"
)

// Config defines server dependencies.
type Config struct {
	DBPath          string
	PolicyTermsPath string
	BrandsCSVPath   string
	AllowedOrigins  []string
	SilentDB        bool
	AIConfig        ai.Config
	VolumeConfig    volume.Config
	DisableAI       bool
	MaxCandidates   int
	BackendMaxBytes int
}

// Server wires HTTP handlers with persistence and the scoring engine.
type Server struct {
	db              *store.Database
	policyPath      string
	policyChecker   *scoring.PolicyChecker
	allowedOrigins  []string
	generator       ai.Generator
	volumeClient    *volume.Client
	brandIndex      *brands.Index
	jobNotifier     *OptimizationNotifier
	jobMu           sync.Mutex
	activeJob       *optimizationJob
	maxCandidates   int
	backendMaxBytes int
}

const brandMinLength = 3

// NewServer constructs the API server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("db path required")
	}
	db, err := store.Open(cfg.DBPath, cfg.SilentDB)
	if err != nil {
		return nil, err
	}

	checker, err := scoring.NewPolicyChecker(cfg.PolicyTermsPath)
	if err != nil {
		return nil, fmt.Errorf("policy checker: %w", err)
	}

	var generator ai.Generator = ai.HeuristicGenerator{}
	if cfg.DisableAI {
		logrus.Info("AI draft generation disabled via configuration")
	} else if client, err := ai.NewClient(cfg.AIConfig); err == nil {
		generator = ai.WithFallback(&retryingGenerator{inner: client}, ai.HeuristicGenerator{})
		logrus.Info("AI draft generation enabled")
	} else if errors.Is(err, ai.ErrDisabled) {
		logrus.Info("AI draft generation disabled - no API key configured")
	} else {
		return nil, fmt.Errorf("ai client: %w", err)
	}

	var volumeClient *volume.Client
	if strings.TrimSpace(cfg.VolumeConfig.APIKey) == "" {
		logrus.Info("search volume lookup disabled - no API key configured")
	} else {
		client, err := volume.NewClient(cfg.VolumeConfig)
		if err != nil {
			return nil, fmt.Errorf("volume client: %w", err)
		}
		volumeClient = client
		logrus.WithFields(logrus.Fields{
			"ttl":     cfg.VolumeConfig.CacheTTL,
			"timeout": cfg.VolumeConfig.Timeout,
		}).Info("search volume lookup enabled")
	}

	server := &Server{
		db:              db,
		policyPath:      cfg.PolicyTermsPath,
		policyChecker:   checker,
		allowedOrigins:  cfg.AllowedOrigins,
		generator:       generator,
		volumeClient:    volumeClient,
		brandIndex:      brands.NewIndex(db),
		jobNotifier:     NewOptimizationNotifier(),
		maxCandidates:   cfg.MaxCandidates,
		backendMaxBytes: cfg.BackendMaxBytes,
	}

	if server.maxCandidates <= 0 {
		server.maxCandidates = maxCandidateCap
	}
	if server.backendMaxBytes <= 0 {
		server.backendMaxBytes = defaultBackendBytes
	}

	if trimmed := strings.TrimSpace(cfg.BrandsCSVPath); trimmed != "" {
		if err := server.loadBrandInventory(trimmed); err != nil {
			logrus.WithError(err).Warn("load brand inventory")
		}
	}

	metrics.Init(db)

	return server, nil
}

// Router configures gin routes.
func (s *Server) Router() (*gin.Engine, error) {
	r := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowCredentials = true
	if len(s.allowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.allowedOrigins
	}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	corsCfg.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	r.Use(cors.New(corsCfg))

	r.GET("/api/healthz", s.handleHealth)
	r.GET("/api/config", s.handleConfig)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/batches", s.handleListBatches)
		api.GET("/batches/:id", s.handleGetBatch)
		api.GET("/batches/:id/keywords", s.handleBatchKeywords)
		api.GET("/batches/:id/report", s.handleBatchReport)
		api.GET("/requests/:id/status", s.handleRequestStatus)
		api.POST("/upload", s.handleUpload)
		api.POST("/score", s.handleScore)
		api.POST("/optimize", s.handleOptimize)
		api.GET("/optimize/status", s.handleOptimizeStatus)
		api.DELETE("/optimize/:jobID", s.handleCancelOptimize)
		api.GET("/optimize/stream", s.handleOptimizeStream)
		api.GET("/results", s.handleResults)
		api.DELETE("/results", s.handleClearResults)
		api.GET("/export.csv", s.handleExportCSV)
		api.GET("/export.json", s.handleExportJSON)
	}

	return r, nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleConfig(c *gin.Context) {
	marketplaces, err := s.listMarketplaces()
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"policy_terms_path":  s.policyPath,
		"marketplaces":       marketplaces,
		"brand_records":      s.brandIndex.Count(),
		"backend_max_bytes":  s.backendMaxBytes,
		"max_candidates":     s.maxCandidates,
		"generation_enabled": s.generator != nil && s.generator.Enabled(),
		"volume_lookup":      s.volumeClient != nil,
	})
}

func (s *Server) handleListBatches(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	if page < 0 {
		page = 0
	}
	pageSize, _ := strconv.Atoi(c.Query("pageSize"))
	if pageSize <= 0 {
		pageSize = 25
	}
	offset := page * pageSize

	rows, total, err := s.db.ListKeywordBatches(offset, pageSize)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	ids := make([]uint, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	summaries, err := s.db.BatchSummaries(ids)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	dtos := make([]BatchDTO, 0, len(rows))
	for _, row := range rows {
		dto := BatchFromModel(row)
		if summary, ok := summaries[row.ID]; ok {
			dto.ApplySummary(summary)
		}
		dtos = append(dtos, dto)
	}
	c.JSON(http.StatusOK, BatchesResponse{Items: dtos, Total: total})
}

func (s *Server) handleGetBatch(c *gin.Context) {
	batchID, err := parseUintParam(c.Param("id"))
	if err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}

	batch, err := s.db.GetKeywordBatch(batchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.renderError(c, http.StatusNotFound, fmt.Errorf("batch %d not found", batchID))
		} else {
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}

	dto := BatchFromModel(*batch)
	summaries, err := s.db.BatchSummaries([]uint{batch.ID})
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	if summary, ok := summaries[batch.ID]; ok {
		dto.ApplySummary(summary)
	}
	c.JSON(http.StatusOK, dto)
}

func (s *Server) handleBatchKeywords(c *gin.Context) {
	batchID, err := parseUintParam(c.Param("id"))
	if err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	if _, err := s.db.GetKeywordBatch(batchID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.renderError(c, http.StatusNotFound, fmt.Errorf("batch %d not found", batchID))
		} else {
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}

	rows, err := s.db.ListBatchKeywords(batchID)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	dtos := make([]KeywordDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, KeywordDTO{
			Phrase:       row.Phrase,
			SearchVolume: row.SearchVolume,
			RowIndex:     row.RowIndex,
		})
	}
	c.JSON(http.StatusOK, KeywordsResponse{Items: dtos, Total: len(dtos)})
}

func (s *Server) handleBatchReport(c *gin.Context) {
	batchID, err := parseUintParam(c.Param("id"))
	if err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}

	row, err := s.db.GetOptimization(batchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.renderError(c, http.StatusNotFound, fmt.Errorf("no report for batch %d", batchID))
		} else {
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}

	c.JSON(http.StatusOK, FromModel(*row))
}

func (s *Server) handleRequestStatus(c *gin.Context) {
	requestID, err := parseUintParam(c.Param("id"))
	if err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}

	request, err := s.db.GetOptimizationRequest(requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.renderError(c, http.StatusNotFound, fmt.Errorf("request %d not found", requestID))
		} else {
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}

	c.JSON(http.StatusOK, RequestFromModel(*request))
}

func (s *Server) handleUpload(c *gin.Context) {
	batchName := strings.TrimSpace(c.PostForm("batch_name"))
	if batchName == "" {
		s.renderError(c, http.StatusBadRequest, errors.New("batch_name is required"))
		return
	}
	ownerName := strings.TrimSpace(c.PostForm("owner_name"))
	if ownerName == "" {
		s.renderError(c, http.StatusBadRequest, errors.New("owner_name is required"))
		return
	}
	productName := strings.TrimSpace(c.PostForm("product_name"))
	if productName == "" {
		productName = batchName
	}
	category := strings.TrimSpace(c.PostForm("category"))
	marketplace := strings.TrimSpace(c.PostForm("marketplace"))
	if marketplace == "" {
		marketplace = "amazon.com"
	}
	account := strings.TrimSpace(c.PostForm("account_type"))
	if account == "" {
		account = string(scoring.AccountSeller)
	}

	fileHeader, err := c.FormFile("keywords")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			s.renderError(c, http.StatusBadRequest, errors.New("keywords csv file is required"))
		} else {
			s.renderError(c, http.StatusBadRequest, err)
		}
		return
	}

	path, cleanup, err := saveFormFile(fileHeader)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	if cleanup != nil {
		defer cleanup()
	}

	parsed, err := parseKeywordCSV(path)
	if err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	if parsed.rowCount == 0 {
		s.renderError(c, http.StatusBadRequest, errors.New("no keywords detected in csv"))
		return
	}

	// Backfill zero-volume rows from volumes recorded by earlier batches.
	known, err := s.db.KnownVolumes(parsed.phrases)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	knownCount := 0
	for i := range parsed.rows {
		if parsed.rows[i].SearchVolume > 0 {
			continue
		}
		if vol, ok := known[parsed.rows[i].Normalized]; ok && vol > 0 {
			parsed.rows[i].SearchVolume = vol
			knownCount++
		}
	}
	zeroVolume := 0
	for _, row := range parsed.rows {
		if row.SearchVolume <= 0 {
			zeroVolume++
		}
	}

	batch := &store.KeywordBatch{
		Name:             batchName,
		Owner:            ownerName,
		OriginalFilename: fileHeader.Filename,
		ProductName:      productName,
		Category:         category,
		Marketplace:      marketplace,
		AccountType:      account,
	}
	if err := s.db.CreateKeywordBatch(batch); err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	if err := s.db.ReplaceBatchKeywords(batch.ID, parsed.rows); err != nil {
		s.renderError(c, http.StatusInternalServerError, fmt.Errorf("store batch keywords: %w", err))
		return
	}

	if err := s.db.UpdateKeywordBatchStats(batch.ID, parsed.rowCount, len(parsed.rows), parsed.duplicateRows, zeroVolume); err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"batch_id": batch.ID,
		"keywords": len(parsed.rows),
		"rows":     parsed.rowCount,
	}).Info("keyword batch uploaded")

	c.JSON(http.StatusOK, UploadResponse{
		BatchID:        batch.ID,
		BatchName:      batch.Name,
		Owner:          batch.Owner,
		ProductName:    batch.ProductName,
		Marketplace:    batch.Marketplace,
		AccountType:    batch.AccountType,
		RowCount:       parsed.rowCount,
		UniqueKeywords: len(parsed.rows),
		DuplicateRows:  parsed.duplicateRows,
		ZeroVolumeRows: zeroVolume,
		KnownVolumes:   knownCount,
	})
}

func (s *Server) handleScore(c *gin.Context) {
	var req ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	if len(req.Keywords) == 0 {
		s.renderError(c, http.StatusBadRequest, errors.New("keywords are required"))
		return
	}
	marketplace := strings.ToLower(strings.TrimSpace(req.Marketplace))
	if marketplace == "" {
		marketplace = "amazon.com"
	}

	maxBytes := req.MaxBackendBytes
	if maxBytes <= 0 {
		maxBytes = s.backendMaxBytes
	}

	report := s.buildListingReport(req.Keywords, req.Draft, reportParams{
		ProductName: strings.TrimSpace(req.ProductName),
		Category:    strings.TrimSpace(req.Category),
		Marketplace: marketplace,
		Account:     accountType(req.AccountType),
		MaxBytes:    maxBytes,
		Suggestions: req.Suggestions,
	})
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleOptimize(c *gin.Context) {
	var req OptimizeRequest
	if c.Request.Body != nil {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			s.renderError(c, http.StatusBadRequest, err)
			return
		}
	}

	if req.BatchID == 0 {
		s.renderError(c, http.StatusBadRequest, errors.New("batch_id is required"))
		return
	}

	batch, err := s.db.GetKeywordBatch(req.BatchID)
	if err != nil {
		s.renderError(c, http.StatusNotFound, fmt.Errorf("batch %d not found", req.BatchID))
		return
	}

	keywordCount, err := s.db.CountBatchKeywords(batch.ID)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	if keywordCount == 0 {
		s.renderError(c, http.StatusBadRequest, errors.New("batch has no keywords to optimize"))
		return
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if s.activeJob != nil {
		s.renderError(c, http.StatusConflict, errors.New("optimization already running"))
		return
	}

	job, err := s.startOptimization(req, batch)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusAccepted, StartOptimizationResponse{
		JobID:      job.id,
		BatchID:    batch.ID,
		RequestID:  job.requestID,
		Candidates: job.candidates,
		StartedAt:  job.startedAt,
	})
}

func (s *Server) handleCancelOptimize(c *gin.Context) {
	jobID := strings.TrimSpace(c.Param("jobID"))
	if jobID == "" {
		s.renderError(c, http.StatusBadRequest, errors.New("job id required"))
		return
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if s.activeJob == nil {
		s.renderError(c, http.StatusNotFound, errors.New("no optimization running"))
		return
	}
	if s.activeJob.id != jobID {
		s.renderError(c, http.StatusNotFound, errors.New("job not found"))
		return
	}

	s.activeJob.cancel()
	logrus.WithField("job", jobID).Info("optimization cancellation requested")
	s.jobNotifier.Broadcast(OptimizationEvent{
		Type:    "progress",
		JobID:   s.activeJob.id,
		BatchID: s.activeJob.batchID,
		Total:   s.activeJob.candidates,
		Message: "cancellation requested",
	})

	c.JSON(http.StatusAccepted, gin.H{"status": "cancelling"})
}

func (s *Server) handleOptimizeStatus(c *gin.Context) {
	s.jobMu.Lock()
	job := s.activeJob
	s.jobMu.Unlock()

	status := s.jobNotifier.LastStatus()

	resp := OptimizeStatusResponse{Running: job != nil}
	if job != nil {
		resp.JobID = job.id
		resp.BatchID = job.batchID
		resp.RequestID = job.requestID
		resp.Total = job.candidates
	} else if jobID := strings.TrimSpace(c.Query("job_id")); jobID != "" {
		// The job already finished; report its terminal state from the request row.
		request, err := s.db.GetOptimizationRequestByJob(jobID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				s.renderError(c, http.StatusNotFound, fmt.Errorf("job %s not found", jobID))
			} else {
				s.renderError(c, http.StatusInternalServerError, err)
			}
			return
		}
		resp.JobID = request.JobID
		resp.BatchID = request.BatchID
		resp.RequestID = request.ID
		resp.State = request.Status
		resp.Message = request.Message
		resp.Processed = request.Processed
		resp.Total = request.Candidates
		c.JSON(http.StatusOK, resp)
		return
	}
	if status != nil {
		resp.State = status.Type
		resp.Message = status.Message
		if status.Processed != 0 {
			resp.Processed = status.Processed
		}
		if status.Total != 0 {
			resp.Total = status.Total
		}
		if status.BatchID != 0 {
			resp.BatchID = status.BatchID
		}
		if status.Candidate != nil {
			candidate := *status.Candidate
			resp.LastCandidate = &candidate
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleOptimizeStream(c *gin.Context) {
	upgrader := websocket.Upgrader{
		HandshakeTimeout:  5 * time.Second,
		EnableCompression: true,
		CheckOrigin: func(r *http.Request) bool {
			if len(s.allowedOrigins) == 0 {
				return true
			}
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			for _, allowed := range s.allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("upgrade websocket")
		return
	}

	client := s.jobNotifier.Register(conn)
	logrus.WithField("remote", conn.RemoteAddr().String()).Info("optimization websocket connected")
	defer s.jobNotifier.Unregister(client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).Warn("optimization websocket unexpected close")
			} else {
				logrus.WithField("remote", conn.RemoteAddr().String()).Info("optimization websocket closed")
			}
			return
		}
	}
}

func (s *Server) handleResults(c *gin.Context) {
	batchID, ok := s.parseBatchQuery(c)
	if !ok {
		return
	}
	s.renderResults(c, batchID)
}

func (s *Server) renderResults(c *gin.Context, batchID uint) {
	query := strings.TrimSpace(c.Query("q"))
	minScore, _ := strconv.ParseFloat(c.Query("minScore"), 64)
	page, _ := strconv.Atoi(c.Query("page"))
	if page < 0 {
		page = 0
	}
	pageSize, _ := strconv.Atoi(c.Query("pageSize"))
	if pageSize <= 0 {
		pageSize = 100
	}
	offset := page * pageSize

	rows, total, err := s.db.ListOptimizations(store.OptimizationQuery{
		Query:        query,
		Marketplace:  strings.TrimSpace(c.Query("marketplace")),
		AccountType:  strings.TrimSpace(c.Query("accountType")),
		MinScore:     minScore,
		Grade:        strings.TrimSpace(c.Query("grade")),
		PolicyStatus: strings.TrimSpace(c.Query("policyStatus")),
		Sort:         strings.TrimSpace(c.Query("sort")),
		Offset:       offset,
		Limit:        pageSize,
		BatchID:      batchID,
	})
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	dtos := make([]OptimizationDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, FromModel(row))
	}
	c.JSON(http.StatusOK, ResultsResponse{Items: dtos, Total: total})
}

func (s *Server) handleClearResults(c *gin.Context) {
	s.jobMu.Lock()
	running := s.activeJob != nil
	s.jobMu.Unlock()
	if running {
		s.renderError(c, http.StatusConflict, errors.New("cannot clear results while an optimization is running"))
		return
	}

	if err := s.db.ClearOptimizations(); err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	logrus.Info("stored optimization reports cleared")
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

func (s *Server) handleExportCSV(c *gin.Context) {
	batchID, ok := s.parseBatchQuery(c)
	if !ok {
		return
	}

	rows, _, err := s.db.ListOptimizations(store.OptimizationQuery{Limit: -1, BatchID: batchID})
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=listing-reports.csv")
	c.Header("Content-Type", "text/csv")

	writer := csv.NewWriter(c.Writer)
	headers := []string{"batch_id", "product_name", "marketplace", "account_type", "score", "grade", "verdict", "coverage_pct", "coverage_grade", "policy_status", "suppression_risk", "backend_bytes", "stuffing_warnings", "generated_by", "title", "bullets", "backend_terms"}
	if err := writer.Write(headers); err != nil {
		return
	}
	for _, row := range rows {
		dto := FromModel(row)
		line := []string{
			strconv.FormatUint(uint64(dto.BatchID), 10),
			dto.ProductName,
			dto.Marketplace,
			dto.AccountType,
			fmt.Sprintf("%.1f", dto.Score),
			dto.Grade,
			dto.Verdict,
			fmt.Sprintf("%.1f", dto.CoveragePct),
			dto.CoverageGrade,
			dto.PolicyStatus,
			strconv.FormatBool(dto.SuppressionRisk),
			strconv.Itoa(dto.BackendBytes),
			strings.Join(dto.StuffingWarnings, "|"),
			dto.GeneratedBy,
			dto.Title,
			strings.Join(dto.Bullets, "|"),
			dto.BackendTerms,
		}
		if err := writer.Write(line); err != nil {
			return
		}
	}
	writer.Flush()
}

func (s *Server) handleExportJSON(c *gin.Context) {
	batchID, ok := s.parseBatchQuery(c)
	if !ok {
		return
	}

	rows, _, err := s.db.ListOptimizations(store.OptimizationQuery{Limit: -1, BatchID: batchID})
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	dtos := make([]OptimizationDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, FromModel(row))
	}
	c.Header("Content-Disposition", "attachment; filename=listing-reports.json")
	c.JSON(http.StatusOK, dtos)
}

// parseBatchQuery reads the optional batch_id query parameter. The second
// return value is false when the parameter was present but invalid, in which
// case the error response has already been written.
func (s *Server) parseBatchQuery(c *gin.Context) (uint, bool) {
	value := firstNonEmpty(c.Query("batch_id"), c.Query("batchId"))
	if value == "" {
		return 0, true
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		s.renderError(c, http.StatusBadRequest, fmt.Errorf("invalid batch_id: %s", value))
		return 0, false
	}
	return uint(parsed), true
}

func (s *Server) loadBrandInventory(path string) error {
	count, err := s.brandIndex.LoadFromCSV(path, brandMinLength)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"path":   path,
		"brands": count,
	}).Info("competitor brand inventory loaded")
	return nil
}

func (s *Server) listMarketplaces() ([]string, error) {
	rows, _, err := s.db.ListKeywordBatches(0, 0)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		market := strings.ToLower(strings.TrimSpace(row.Marketplace))
		if market == "" {
			continue
		}
		set[market] = struct{}{}
	}
	markets := make([]string, 0, len(set))
	for market := range set {
		markets = append(markets, market)
	}
	sort.Strings(markets)
	return markets, nil
}

func (s *Server) renderError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

func accountType(value string) scoring.AccountType {
	if strings.EqualFold(strings.TrimSpace(value), string(scoring.AccountVendor)) {
		return scoring.AccountVendor
	}
	return scoring.AccountSeller
}

func saveFormFile(header *multipart.FileHeader) (string, func(), error) {
	if header == nil {
		return "", nil, errors.New("file header is nil")
	}
	src, err := header.Open()
	if err != nil {
		return "", nil, err
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "upload-*"+filepath.Ext(header.Filename))
	if err != nil {
		return "", nil, err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, err
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }
	return tmp.Name(), cleanup, nil
}

type csvParseResult struct {
	rows          []store.BatchKeyword
	phrases       []string
	rowCount      int
	duplicateRows int
}

// parseKeywordCSV reads a keyword CSV with an optional header row. The phrase
// column is detected by header name, falling back to column zero; the volume
// column likewise, falling back to column one when the file has no header and
// at least two columns. Duplicate phrases collapse onto the first occurrence,
// keeping the highest volume seen.
func parseKeywordCSV(path string) (*csvParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var (
		phraseCol = -1
		volumeCol = -1
		sawHeader bool
		seen      = make(map[string]int)
		rows      []store.BatchKeyword
		phrases   []string
		rowIndex  int
	)

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if len(record) == 0 {
			continue
		}

		if !sawHeader {
			sawHeader = true
			phraseCol, volumeCol = detectKeywordColumns(record)
			if phraseCol >= 0 {
				continue
			}
			phraseCol = 0
			if volumeCol < 0 && len(record) > 1 {
				volumeCol = 1
			}
		}

		if phraseCol >= len(record) {
			continue
		}

		value := strings.TrimSpace(strings.TrimPrefix(record[phraseCol], "\ufeff"))
		if value == "" {
			continue
		}

		rowIndex++
		vol := 0
		if volumeCol >= 0 && volumeCol < len(record) {
			vol = parseVolume(record[volumeCol])
		}

		key := normalizeKeywordKey(value)
		if idx, ok := seen[key]; ok {
			if vol > rows[idx].SearchVolume {
				rows[idx].SearchVolume = vol
			}
			continue
		}
		seen[key] = len(rows)
		rows = append(rows, store.BatchKeyword{
			Phrase:       value,
			Normalized:   key,
			SearchVolume: vol,
			RowIndex:     rowIndex,
		})
		phrases = append(phrases, value)
	}

	return &csvParseResult{
		rows:          rows,
		phrases:       phrases,
		rowCount:      rowIndex,
		duplicateRows: rowIndex - len(rows),
	}, nil
}

func detectKeywordColumns(record []string) (int, int) {
	phraseCol, volumeCol := -1, -1
	for idx, value := range record {
		normalized := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(value, "\ufeff")))
		switch normalized {
		case "keyword", "keywords", "phrase", "search term", "search_term", "term", "query":
			if phraseCol < 0 {
				phraseCol = idx
			}
		case "volume", "search volume", "search_volume", "searches", "monthly volume", "monthly_volume", "sv":
			if volumeCol < 0 {
				volumeCol = idx
			}
		}
	}
	return phraseCol, volumeCol
}

func parseVolume(value string) int {
	cleaned := strings.ReplaceAll(strings.TrimSpace(value), ",", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.Atoi(cleaned); err == nil {
		if parsed < 0 {
			return 0
		}
		return parsed
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil && parsed > 0 {
		return int(parsed)
	}
	return 0
}

func normalizeKeywordKey(value string) string {
	return strings.Join(strings.Fields(strings.ToLower(value)), " ")
}

func parseUintParam(value string) (uint, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, errors.New("identifier is required")
	}
	parsed, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid identifier: %w", err)
	}
	if parsed == 0 {
		return 0, errors.New("identifier must be greater than zero")
	}
	return uint(parsed), nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
