package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	CheckpointHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentbook_checkpoint_height",
			Help: "Highest fully processed block height",
		},
	)

	LogsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentbook_logs_ingested_total",
			Help: "Total number of logs handled by event",
		},
		[]string{"event"},
	)

	UnknownLogs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentbook_unknown_logs_total",
			Help: "Total number of logs skipped as unknown",
		},
	)

	DecodeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentbook_decode_failures_total",
			Help: "Total number of recognized events that failed to decode",
		},
	)

	HandlerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentbook_handler_errors_total",
			Help: "Total number of handler errors by event",
		},
		[]string{"event"},
	)

	PollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentbook_poll_cycles_total",
			Help: "Total number of poll cycles by outcome",
		},
		[]string{"outcome"},
	)

	BatchProcessingTime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agentbook_batch_processing_duration_seconds",
			Help:    "Time taken to process one batch of blocks",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Solver metrics
	SolverAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentbook_solver_attempts_total",
			Help: "Total number of intents the solver considered",
		},
	)

	SolverFills = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentbook_solver_fills_total",
			Help: "Total number of intents the solver filled",
		},
	)

	SolverSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentbook_solver_skips_total",
			Help: "Total number of intents not attempted by reason",
		},
		[]string{"reason"},
	)

	// System metrics
	Uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentbook_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentbook_goroutines",
			Help: "Number of active goroutines",
		},
	)

	MemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentbook_memory_usage_bytes",
			Help: "Memory usage statistics",
		},
		[]string{"type"},
	)

	startTime = time.Now()
)

func CheckpointSet(block uint64) {
	CheckpointHeight.Set(float64(block))
}

func LogIngestedInc(event string) {
	LogsIngested.WithLabelValues(event).Inc()
}

func HandlerErrorInc(event string) {
	HandlerErrors.WithLabelValues(event).Inc()
}

func PollCycleInc(outcome string) {
	PollCycles.WithLabelValues(outcome).Inc()
}

func SolverSkipInc(reason string) {
	SolverSkips.WithLabelValues(reason).Inc()
}

// UpdateSystemMetrics refreshes runtime gauges. Called periodically by the
// metrics server.
func UpdateSystemMetrics() {
	Uptime.Set(time.Since(startTime).Seconds())
	Goroutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	MemoryUsage.WithLabelValues("total_alloc").Set(float64(m.TotalAlloc))
	MemoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	MemoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))
}
