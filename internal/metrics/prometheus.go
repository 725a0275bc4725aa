package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	StepTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eval_wizard_step_transitions_total",
			Help: "Wizard step completions by step key and outcome",
		},
		[]string{"step", "outcome"},
	)

	MetadataLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eval_wizard_metadata_loads_total",
			Help: "Metadata loads by the source that served them",
		},
		[]string{"source"},
	)

	MetadataWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eval_wizard_metadata_writes_total",
			Help: "Metadata persistence attempts by target and status",
		},
		[]string{"target", "status"},
	)

	DatasetValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eval_wizard_dataset_validations_total",
			Help: "Dataset column validations by resulting status",
		},
		[]string{"status"},
	)

	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eval_wizard_runs_total",
			Help: "Evaluation runs by final status",
		},
		[]string{"status"},
	)

	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eval_wizard_run_duration_seconds",
			Help:    "Wall time of evaluation runs",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		},
	)

	RunsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "eval_wizard_runs_in_flight",
			Help: "Evaluation runs currently executing",
		},
	)

	JudgeCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eval_wizard_judge_calls_total",
			Help: "LLM judge calls by metric and status",
		},
		[]string{"metric", "status"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eval_wizard_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eval_wizard_circuit_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	WebSocketConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "eval_wizard_websocket_connections",
			Help: "Open run status websocket connections",
		},
	)
)

var registerOnce sync.Once

// Init registers all collectors with the default registry. Safe to call more
// than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			StepTransitions,
			MetadataLoads,
			MetadataWrites,
			DatasetValidations,
			RunsTotal,
			RunDuration,
			RunsInFlight,
			JudgeCalls,
			LLMTokensUsed,
			CircuitState,
			WebSocketConnections,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
