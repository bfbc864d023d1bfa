package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"rankjuice/internal/ai"
	"rankjuice/internal/brands"
	"rankjuice/internal/metrics"
	"rankjuice/internal/scoring"
	"rankjuice/internal/store"
	"rankjuice/internal/util"
)

const (
	progressThrottle  = 500 * time.Millisecond
	genMaxRetries     = 3
	genInitialBackoff = 2 * time.Second
	genMaxBackoff     = 10 * time.Second

	defaultCandidates   = 3
	maxCandidateCap     = 8
	defaultBackendBytes = 249
	titleCharTarget     = 200
)

// optimizationJob tracks one in-flight optimization run.
type optimizationJob struct {
	id         string
	cancel     context.CancelFunc
	startedAt  time.Time
	batchID    uint
	batchName  string
	requestID  uint
	candidates int
}

type candidateResult struct {
	Index         int
	Report        ListingReport
	GenDuration   time.Duration
	TotalDuration time.Duration
	Err           error
}

// reportParams carries the listing context shared by every candidate.
type reportParams struct {
	ProductName string
	Category    string
	Marketplace string
	Account     scoring.AccountType
	MaxBytes    int
	Suggestions string
	GeneratedBy string
}

// startOptimization registers the job and launches the background runner.
// The caller must hold jobMu.
func (s *Server) startOptimization(req OptimizeRequest, batch *store.KeywordBatch) (*optimizationJob, error) {
	candidates := req.Candidates
	if candidates <= 0 {
		candidates = defaultCandidates
	}
	if candidates > s.maxCandidates {
		candidates = s.maxCandidates
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &optimizationJob{
		id:         uuid.NewString(),
		cancel:     cancel,
		startedAt:  time.Now().UTC(),
		batchID:    batch.ID,
		batchName:  batch.Name,
		candidates: candidates,
	}

	request, err := s.db.CreateOptimizationRequest(batch.ID, "optimize", "running", job.id, candidates)
	if err != nil {
		cancel()
		return nil, err
	}
	job.requestID = request.ID

	s.activeJob = job
	go s.runOptimization(ctx, job, req, *batch)

	return job, nil
}

func (s *Server) runOptimization(ctx context.Context, job *optimizationJob, req OptimizeRequest, batch store.KeywordBatch) {
	metrics.JobStarted()

	finishStatus := "failed"
	finishMessage := ""
	defer func() {
		if err := s.db.UpdateOptimizationRequest(job.requestID, finishStatus, finishMessage); err != nil {
			logrus.WithError(err).Warn("update optimization request")
		}
		metrics.JobFinished(finishStatus)
		s.jobMu.Lock()
		if s.activeJob != nil && s.activeJob.id == job.id {
			s.activeJob = nil
		}
		s.jobMu.Unlock()
	}()

	fail := func(stage string, err error) {
		finishMessage = err.Error()
		logrus.WithError(err).WithField("job", job.id).Errorf("optimization %s", stage)
		s.jobNotifier.Broadcast(OptimizationEvent{
			Type:    "error",
			JobID:   job.id,
			BatchID: job.batchID,
			Message: err.Error(),
		})
	}

	rows, err := s.db.ListBatchKeywords(job.batchID)
	if err != nil {
		fail("load keywords", err)
		return
	}
	keywords := make([]scoring.Keyword, 0, len(rows))
	var zeroPhrases []string
	for _, row := range rows {
		keywords = append(keywords, scoring.Keyword{Phrase: row.Phrase, SearchVolume: row.SearchVolume})
		if row.SearchVolume <= 0 {
			zeroPhrases = append(zeroPhrases, row.Phrase)
		}
	}

	if req.FetchVolumes && s.volumeClient != nil && len(zeroPhrases) > 0 {
		volumes := s.volumeClient.LookupAll(ctx, batch.Marketplace, zeroPhrases)
		if len(volumes) > 0 {
			if err := s.db.UpdateKeywordVolumes(job.batchID, volumes); err != nil {
				logrus.WithError(err).Warn("persist refreshed volumes")
			}
			applyVolumes(keywords, volumes)
			logrus.WithFields(logrus.Fields{
				"job":      job.id,
				"keywords": len(volumes),
			}).Info("search volumes refreshed")
			s.jobNotifier.Broadcast(OptimizationEvent{
				Type:    "progress",
				JobID:   job.id,
				BatchID: job.batchID,
				Total:   job.candidates,
				Message: fmt.Sprintf("refreshed search volume for %d keywords", len(volumes)),
			})
		}
	}

	account := accountType(batch.AccountType)
	marketplace := strings.ToLower(strings.TrimSpace(batch.Marketplace))
	productName := strings.TrimSpace(batch.ProductName)
	if productName == "" {
		productName = batch.Name
	}

	maxBytes := req.MaxBackendBytes
	if maxBytes <= 0 {
		maxBytes = s.backendMaxBytes
	}

	params := reportParams{
		ProductName: productName,
		Category:    batch.Category,
		Marketplace: marketplace,
		Account:     account,
		MaxBytes:    maxBytes,
		Suggestions: req.Suggestions,
	}

	input := ai.GenerationInput{
		ProductName:     productName,
		Category:        batch.Category,
		Marketplace:     marketplace,
		Tiers:           scoring.TierKeywords(keywords, account),
		TitleCharLimit:  titleCharTarget,
		BulletCount:     scoring.BulletCount(account),
		BulletCharLimit: scoring.BulletCharLimit(batch.Category),
	}

	logrus.WithFields(logrus.Fields{
		"job":        job.id,
		"batch_id":   job.batchID,
		"batch_name": job.batchName,
		"keywords":   len(keywords),
		"candidates": job.candidates,
		"account":    string(account),
	}).Info("optimization job started")

	s.jobNotifier.Broadcast(OptimizationEvent{
		Type:    "started",
		JobID:   job.id,
		BatchID: job.batchID,
		Total:   job.candidates,
		Message: fmt.Sprintf("generating %d candidate drafts", job.candidates),
	})

	workerCount := determineWorkerCount(job.candidates)
	taskCh := make(chan int, job.candidates)
	resultCh := make(chan candidateResult, job.candidates)

	var workerWG sync.WaitGroup
	for w := 0; w < workerCount; w++ {
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			for index := range taskCh {
				resultCh <- s.buildCandidate(ctx, index, input, keywords, params)
			}
		}()
	}
	go func() {
		workerWG.Wait()
		close(resultCh)
	}()

	go func() {
		defer close(taskCh)
		for i := 0; i < job.candidates; i++ {
			select {
			case <-ctx.Done():
				return
			case taskCh <- i:
			}
		}
	}()

	var (
		pendingEvent OptimizationEvent
		hasPending   bool
		lastEmit     time.Time
	)
	flush := func(force bool) {
		if !hasPending {
			return
		}
		if !force && time.Since(lastEmit) < progressThrottle {
			return
		}
		s.jobNotifier.Broadcast(pendingEvent)
		hasPending = false
		lastEmit = time.Now()
	}

	var (
		processed int
		failures  int
		best      *candidateResult
	)

collect:
	for {
		select {
		case <-ctx.Done():
			finishStatus = "cancelled"
			finishMessage = "cancelled by user"
			logrus.WithFields(logrus.Fields{
				"job":       job.id,
				"processed": processed,
			}).Warn("optimization cancelled")
			s.jobNotifier.Broadcast(OptimizationEvent{
				Type:      "cancelled",
				JobID:     job.id,
				BatchID:   job.batchID,
				Processed: processed,
				Total:     job.candidates,
				Message:   "optimization cancelled",
			})
			return
		case res, ok := <-resultCh:
			if !ok {
				break collect
			}
			processed++
			event := OptimizationEvent{
				Type:      "candidate",
				JobID:     job.id,
				BatchID:   job.batchID,
				Processed: processed,
				Total:     job.candidates,
			}
			if res.Err != nil {
				failures++
				logrus.WithError(res.Err).WithFields(logrus.Fields{
					"job":       job.id,
					"candidate": res.Index,
				}).Warn("candidate draft failed")
				event.Type = "progress"
				event.Message = fmt.Sprintf("candidate %d failed", res.Index)
			} else {
				if best == nil || res.Report.Ranking.Score > best.Report.Ranking.Score ||
					(res.Report.Ranking.Score == best.Report.Ranking.Score && res.Index < best.Index) {
					kept := res
					best = &kept
				}
				event.Candidate = &CandidateDTO{
					Index:       res.Index,
					Score:       round2(res.Report.Ranking.Score),
					Grade:       res.Report.Ranking.Grade,
					CoveragePct: round2(res.Report.Coverage.Overall),
					GeneratedBy: res.Report.GeneratedBy,
				}
				logrus.WithFields(logrus.Fields{
					"job":       job.id,
					"candidate": res.Index,
					"score":     event.Candidate.Score,
					"generate":  res.GenDuration.Round(time.Millisecond).String(),
					"total":     res.TotalDuration.Round(time.Millisecond).String(),
				}).Debug("candidate timings")
			}
			if err := s.db.UpdateOptimizationProgress(job.id, processed); err != nil {
				logrus.WithError(err).Warn("update optimization progress")
			}
			pendingEvent = event
			hasPending = true
			flush(false)
		}
	}
	flush(true)

	if best == nil {
		fail("complete", errors.New("all candidate drafts failed"))
		return
	}

	record := optimizationRecord(job, best)
	if err := s.db.SaveOptimization(record); err != nil {
		fail("save report", err)
		return
	}
	if err := s.db.TouchBatchOptimized(job.batchID); err != nil {
		logrus.WithError(err).Warn("stamp batch optimization time")
	}
	metrics.ReportPersisted(record.Score, record.BackendBytes)

	finishStatus = "complete"
	finishMessage = fmt.Sprintf("%d/%d candidates scored", processed-failures, job.candidates)

	duration := time.Since(job.startedAt).Round(time.Millisecond)
	dto := FromModel(*record)
	s.jobNotifier.Broadcast(OptimizationEvent{
		Type:      "complete",
		JobID:     job.id,
		BatchID:   job.batchID,
		Processed: processed,
		Total:     job.candidates,
		Report:    &dto,
		Message:   fmt.Sprintf("optimization finished in %s", duration),
	})

	logrus.WithFields(logrus.Fields{
		"job":       job.id,
		"batch_id":  job.batchID,
		"processed": processed,
		"score":     record.Score,
		"grade":     record.Grade,
		"duration":  duration.String(),
	}).Info("optimization job completed")
}

// buildCandidate generates one draft variant and scores it.
func (s *Server) buildCandidate(ctx context.Context, index int, input ai.GenerationInput, keywords []scoring.Keyword, params reportParams) candidateResult {
	started := time.Now()
	result := candidateResult{Index: index}
	if err := ctx.Err(); err != nil {
		result.Err = err
		return result
	}

	input.Variant = index
	genStart := time.Now()
	generated, err := s.generator.Generate(ctx, input)
	result.GenDuration = time.Since(genStart)
	if err != nil {
		result.Err = fmt.Errorf("generate candidate %d: %w", index, err)
		result.TotalDuration = time.Since(started)
		return result
	}

	// BackendTerms stays empty so the packer rebuilds the field from
	// uncovered keywords; the generator's own suggestion feeds the packer.
	draft := scoring.Draft{
		Title:       generated.Title,
		Bullets:     generated.Bullets,
		Description: generated.Description,
	}

	p := params
	p.GeneratedBy = generated.Source
	if suggestion := strings.TrimSpace(generated.BackendTerms); suggestion != "" {
		p.Suggestions = strings.TrimSpace(p.Suggestions + " " + suggestion)
	}

	result.Report = s.buildListingReport(keywords, draft, p)
	result.TotalDuration = time.Since(started)
	return result
}

// buildListingReport runs the full engine over one draft. An empty backend
// field is packed first so every verdict sees the final listing text.
func (s *Server) buildListingReport(keywords []scoring.Keyword, draft scoring.Draft, params reportParams) ListingReport {
	timer := util.StartTimer()

	if draft.Bullets == nil {
		draft.Bullets = []string{}
	}

	maxBytes := params.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultBackendBytes
	}

	if strings.TrimSpace(draft.BackendTerms) == "" {
		visible := strings.Join(append([]string{draft.Title}, append(draft.Bullets, draft.Description)...), " ")
		draft.BackendTerms = scoring.PackBackendTerms(keywords, visible, maxBytes, params.Suggestions)
	}

	tiers := scoring.TierKeywords(keywords, params.Account)
	coverage := scoring.CalculateCoverage(keywords, draft)
	ranking := scoring.CalculateRankingScore(keywords, draft)
	warnings := scoring.CheckAntiStuffing(draft.Title, draft.Bullets, draft.Description)
	policy := s.policyChecker.Check(draft, params.Marketplace)

	ranked := scoring.RankedByVolume(keywords)
	combined := strings.Join(append([]string{draft.Title}, append(draft.Bullets, draft.Description, draft.BackendTerms)...), " ")
	ppc := scoring.RecommendPPC(ranked, combined)

	return ListingReport{
		ProductName: params.ProductName,
		Marketplace: params.Marketplace,
		AccountType: string(params.Account),
		Draft: DraftDTO{
			Title:        draft.Title,
			Bullets:      draft.Bullets,
			Description:  draft.Description,
			BackendTerms: draft.BackendTerms,
			BackendBytes: len(draft.BackendTerms),
		},
		Tiers: TierSummary{
			Title:       len(tiers.Title),
			Bullets:     len(tiers.Bullets),
			Backend:     len(tiers.Backend),
			Description: len(tiers.Description),
			Total:       len(keywords),
		},
		Coverage:         coverage,
		Ranking:          ranking,
		StuffingWarnings: warnings,
		Policy:           policy,
		PPC:              ppc,
		BrandNotes:       s.annotateNegatives(ppc.Negatives),
		GeneratedBy:      params.GeneratedBy,
		ProcessingTimeMs: timer.ElapsedMs(),
	}
}

// annotateNegatives flags negative-keyword candidates resembling a known
// competitor brand. Notes are advisory; the PPC buckets stay untouched.
func (s *Server) annotateNegatives(negatives []string) []BrandNote {
	if s.brandIndex == nil || len(negatives) == 0 {
		return nil
	}
	var notes []BrandNote
	for _, term := range negatives {
		match, ok := s.brandIndex.BestMatch(term)
		if !ok || match.Similarity < brands.MatchThreshold {
			continue
		}
		notes = append(notes, BrandNote{
			Term:       term,
			Brand:      match.Brand,
			Similarity: round2(match.Similarity),
			Source:     match.Source,
		})
	}
	return notes
}

// retryingGenerator retries rate-limited and transient upstream failures with
// exponential backoff before the fallback chain moves on.
type retryingGenerator struct {
	inner ai.Generator
}

func (g *retryingGenerator) Enabled() bool {
	return g.inner != nil && g.inner.Enabled()
}

func (g *retryingGenerator) Generate(ctx context.Context, input ai.GenerationInput) (ai.GeneratedDraft, error) {
	if !g.Enabled() {
		return ai.GeneratedDraft{}, ai.ErrDisabled
	}

	delay := genInitialBackoff
	var lastErr error
	for attempt := 0; attempt < genMaxRetries; attempt++ {
		draft, err := g.inner.Generate(ctx, input)
		if err == nil {
			metrics.GenerationCall("ok")
			return draft, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ai.GeneratedDraft{}, ctx.Err()
		}
		if !shouldRetryGeneration(err) {
			break
		}
		metrics.GenerationCall("retry")
		logrus.WithError(err).WithField("attempt", attempt+1).Warn("draft generation retry")
		select {
		case <-ctx.Done():
			return ai.GeneratedDraft{}, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > genMaxBackoff {
			delay = genMaxBackoff
		}
	}
	metrics.GenerationCall("error")
	return ai.GeneratedDraft{}, lastErr
}

// shouldRetryGeneration reports whether the upstream error is a rate limit or
// a transient server failure.
func shouldRetryGeneration(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "status 429") ||
		strings.Contains(msg, "status 500") ||
		strings.Contains(msg, "status 503")
}

func determineWorkerCount(candidates int) int {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	if workers > 12 {
		workers = 12
	}
	if workers > candidates {
		workers = candidates
	}
	return workers
}

// applyVolumes folds refreshed lookups into the in-memory keyword set. The
// lookup map is keyed by phrase as supplied.
func applyVolumes(keywords []scoring.Keyword, volumes map[string]int) {
	for i := range keywords {
		if vol, ok := volumes[keywords[i].Phrase]; ok && vol > keywords[i].SearchVolume {
			keywords[i].SearchVolume = vol
		}
	}
}

func optimizationRecord(job *optimizationJob, best *candidateResult) *store.Optimization {
	report := best.Report
	record := &store.Optimization{
		BatchID:          job.batchID,
		JobID:            job.id,
		ProductName:      report.ProductName,
		Marketplace:      report.Marketplace,
		AccountType:      report.AccountType,
		Title:            report.Draft.Title,
		Description:      report.Draft.Description,
		BackendTerms:     report.Draft.BackendTerms,
		BackendBytes:     report.Draft.BackendBytes,
		Score:            report.Ranking.Score,
		Grade:            report.Ranking.Grade,
		Verdict:          report.Ranking.Verdict,
		CoveragePct:      report.Coverage.Overall,
		CoverageGrade:    report.Coverage.Grade,
		ComponentsJSON:   marshalJSON(report.Ranking.Components),
		PolicyStatus:     report.Policy.Status,
		SuppressionRisk:  report.Policy.SuppressionRisk,
		PolicyJSON:       marshalJSON(report.Policy.Violations),
		PPCReportJSON:    marshalJSON(report.PPC),
		GeneratedBy:      report.GeneratedBy,
		CandidateCount:   job.candidates,
		ProcessingTimeMs: report.ProcessingTimeMs,
	}
	record.SetBullets(report.Draft.Bullets)
	record.SetStuffingWarnings(report.StuffingWarnings)
	return record
}

func marshalJSON(v any) string {
	payload, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(payload)
}
