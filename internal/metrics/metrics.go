// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mission_matcher"

// Search outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeFallback  = "fallback"
	OutcomeNoMatches = "no_matches"
	OutcomeInvalid   = "invalid"
	OutcomeTimeout   = "timeout"
	OutcomeError     = "error"
)

var (
	searches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "search",
		Name:      "total",
		Help:      "Searches by outcome",
	}, []string{"outcome"})

	searchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "search",
		Name:      "latency_seconds",
		Help:      "End-to-end search latency",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 240},
	})

	stageSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "search",
		Name:      "stage_candidates",
		Help:      "Candidates left after each pipeline stage",
		Buckets:   []float64{0, 1, 3, 5, 10, 15, 25, 50, 100, 500},
	}, []string{"stage"})

	embeddings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "embedding",
		Name:      "candidates_total",
		Help:      "Candidate embeddings by result",
	}, []string{"result"})

	embeddingAborts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "embedding",
		Name:      "aborts_total",
		Help:      "Resolver runs stopped by the consecutive failure budget",
	})

	explanations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "explain",
		Name:      "total",
		Help:      "Match explanations by result",
	}, []string{"result"})
)

func ObserveSearch(outcome string, elapsed time.Duration) {
	searches.WithLabelValues(outcome).Inc()
	searchLatency.Observe(elapsed.Seconds())
}

func ObserveStage(stage string, left int) {
	stageSize.WithLabelValues(stage).Observe(float64(left))
}

func AddEmbeddings(embedded, failed int) {
	if embedded > 0 {
		embeddings.WithLabelValues("ok").Add(float64(embedded))
	}
	if failed > 0 {
		embeddings.WithLabelValues("failed").Add(float64(failed))
	}
}

func IncEmbeddingAbort() {
	embeddingAborts.Inc()
}

// IncExplanation records one explanation. result is "ok", "generic" or "dropped".
func IncExplanation(result string) {
	explanations.WithLabelValues(result).Inc()
}
