package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"rankjuice/internal/store"
)

var gradeDesc = prometheus.NewDesc(
	"rankjuice_optimizations_by_grade",
	"Stored optimization reports by ranking grade",
	[]string{"grade"},
	nil,
)

var (
	jobsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rankjuice_optimization_jobs_started_total",
		Help: "Optimization jobs accepted for processing",
	})
	jobsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rankjuice_optimization_jobs_finished_total",
		Help: "Optimization jobs finished by outcome",
	}, []string{"outcome"})
	generationCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rankjuice_generation_calls_total",
		Help: "Listing generation calls by status",
	}, []string{"status"})
	compositeScores = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rankjuice_composite_score",
		Help:    "Composite ranking scores of persisted winners",
		Buckets: prometheus.LinearBuckets(40, 5, 13),
	})
	backendBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rankjuice_backend_bytes_last",
		Help: "Byte length of the most recently packed backend terms",
	})
)

// GradeCollector is a custom Prometheus collector that reads stored report
// counts from the database on each scrape.
type GradeCollector struct {
	db *store.Database
}

// Describe sends the metric descriptor to the channel.
func (c *GradeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- gradeDesc
}

// Collect queries the database for per-grade report counts and emits them.
func (c *GradeCollector) Collect(ch chan<- prometheus.Metric) {
	counts, err := c.db.CountOptimizationsByGrade()
	if err != nil {
		logrus.WithError(err).Error("collect optimization grade metrics")
		return
	}
	for grade, count := range counts {
		ch <- prometheus.MustNewConstMetric(gradeDesc, prometheus.GaugeValue, float64(count), grade)
	}
}

var initOnce sync.Once

// Init registers the instruments and the database-backed collector.
// Must be called once at startup.
func Init(db *store.Database) {
	initOnce.Do(func() {
		prometheus.MustRegister(jobsStarted, jobsFinished, generationCalls, compositeScores, backendBytes)
		if db != nil {
			prometheus.MustRegister(&GradeCollector{db: db})
		}
	})
}

// JobStarted counts an accepted optimization job.
func JobStarted() {
	jobsStarted.Inc()
}

// JobFinished counts a finished job with its outcome (completed, failed, cancelled).
func JobFinished(outcome string) {
	jobsFinished.WithLabelValues(outcome).Inc()
}

// GenerationCall counts one listing-generation attempt by status (ok, retry, error).
func GenerationCall(status string) {
	generationCalls.WithLabelValues(status).Inc()
}

// ReportPersisted observes the winning report's score and packed byte length.
func ReportPersisted(score float64, packedBytes int) {
	compositeScores.Observe(score)
	backendBytes.Set(float64(packedBytes))
}
