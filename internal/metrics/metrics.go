package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zombor/nfce-ingest/internal/nfce"
)

var (
	// ParseOutcomes counts parses by capture source and outcome status
	ParseOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfce_parse_outcomes_total",
			Help: "Total number of receipt parses by source and outcome status",
		},
		[]string{"source", "status"},
	)

	// Reconciliations counts reconciliation results
	Reconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfce_reconciliation_total",
			Help: "Total number of reconciliations by status",
		},
		[]string{"status"},
	)

	// ParseDuration tracks how long a single parse takes
	ParseDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nfce_parse_duration_seconds",
			Help:    "Receipt parse duration in seconds",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		},
	)

	// Submissions counts submission attempts by result
	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfce_submissions_total",
			Help: "Total number of receipt submissions by result",
		},
		[]string{"result"},
	)

	// TriageUpdates counts triage status changes
	TriageUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfce_triage_updates_total",
			Help: "Total number of triage status changes by new status",
		},
		[]string{"status"},
	)

	// RequestDuration tracks HTTP request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nfce_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "code"},
	)
)

// ObserveParse records one parse.
func ObserveParse(source nfce.Source, outcome nfce.ParseOutcome, took time.Duration) {
	ParseDuration.Observe(took.Seconds())
	ParseOutcomes.WithLabelValues(string(source), string(outcome.Status)).Inc()
	if outcome.Receipt != nil {
		Reconciliations.WithLabelValues(string(outcome.Receipt.ReconciliationStatus)).Inc()
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// Instrument wraps a handler and records its duration under route.
func Instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		defer func() {
			RequestDuration.WithLabelValues(route, strconv.Itoa(rec.code)).Observe(time.Since(start).Seconds())
		}()
		next(rec, r)
	}
}
