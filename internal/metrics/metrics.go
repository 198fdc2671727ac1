package metrics

import (
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bounded cardinality constants for metric labels
const (
	// Run outcomes
	RunOutcomeCompleted       = "completed"
	RunOutcomeNetworkNotFound = "network_not_found"
	RunOutcomeFailed          = "failed"

	// Candle cache layers
	CacheLayerRun   = "run"
	CacheLayerRedis = "redis"

	// Collaborator error categories
	ErrorTimeout     = "timeout"
	ErrorNotFound    = "not_found"
	ErrorUnavailable = "unavailable"
	ErrorInvalid     = "invalid"
	ErrorOther       = "other"
)

// NormalizeError maps collaborator errors to a bounded set of categories
func NormalizeError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, errors.ErrUnsupported) {
		return ErrorInvalid
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline"):
		return ErrorTimeout
	case strings.Contains(lower, "not found") || strings.Contains(lower, "404"):
		return ErrorNotFound
	case strings.Contains(lower, "circuit breaker") || strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "no responders") || strings.Contains(lower, "unavailable"):
		return ErrorUnavailable
	case strings.Contains(lower, "invalid") || strings.Contains(lower, "nan"):
		return ErrorInvalid
	default:
		return ErrorOther
	}
}

// Pipeline metrics
var (
	PipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neatrank_pipeline_runs_total",
		Help: "Pipeline runs by outcome",
	}, []string{"outcome"})

	PipelineRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "neatrank_pipeline_run_duration_seconds",
		Help:    "Duration of one pipeline run",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
	})

	ApplicantsEvaluated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "neatrank_applicants_evaluated_total",
		Help: "Applicants a network was evaluated against",
	})

	EvaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "neatrank_evaluation_duration_ms",
		Help:    "Duration of one network evaluation in milliseconds",
		Buckets: []float64{10, 50, 100, 500, 1000, 5000, 30000},
	})

	ResultsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "neatrank_results_persisted_total",
		Help: "Improved results written to the store",
	})

	ResultsPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "neatrank_results_pruned_total",
		Help: "Results evicted from leaderboards",
	})

	BestScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "neatrank_last_improved_score",
		Help: "Composite score of the most recent improved result",
	})
)

// Market data metrics
var (
	CandleCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neatrank_candle_cache_lookups_total",
		Help: "Candle bucket cache lookups by layer and result",
	}, []string{"layer", "result"})

	CandlesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "neatrank_candles_fetched_total",
		Help: "Candles returned by market data providers",
	})
)

// System health metrics
var (
	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "neatrank_database_connections_active",
		Help: "Number of active database connections",
	})

	DatabaseConnectionsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "neatrank_database_connections_idle",
		Help: "Number of idle database connections",
	})

	StoredObjects = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "neatrank_stored_objects",
		Help: "Objects in the Postgres object store by class",
	}, []string{"class"})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neatrank_errors_total",
		Help: "Errors by component and category",
	}, []string{"component", "category"})
)

// RecordRun records a finished pipeline run
func RecordRun(outcome string, durationSeconds float64) {
	PipelineRuns.WithLabelValues(outcome).Inc()
	PipelineRunDuration.Observe(durationSeconds)
}

// RecordEvaluation records one network evaluation
func RecordEvaluation(durationMs float64) {
	ApplicantsEvaluated.Inc()
	EvaluationDuration.Observe(durationMs)
}

// RecordImprovement records a persisted result and the leaderboard pruning
// that followed it
func RecordImprovement(score float64, pruned int) {
	ResultsPersisted.Inc()
	ResultsPruned.Add(float64(pruned))
	BestScore.Set(score)
}

// RecordCacheLookup records a candle bucket cache lookup
func RecordCacheLookup(layer string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CandleCacheLookups.WithLabelValues(layer, result).Inc()
}

// RecordCandlesFetched records candles returned by a provider
func RecordCandlesFetched(n int) {
	CandlesFetched.Add(float64(n))
}

// UpdateDatabaseConnections updates database connection metrics
func UpdateDatabaseConnections(active, idle int32) {
	DatabaseConnectionsActive.Set(float64(active))
	DatabaseConnectionsIdle.Set(float64(idle))
}

// RecordError records an error of a component
func RecordError(component string, err error) {
	if err == nil {
		return
	}
	Errors.WithLabelValues(component, NormalizeError(err)).Inc()
}
