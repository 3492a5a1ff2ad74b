package matching

import (
	"strconv"

	"go.uber.org/zap"
)

const (
	StageLoad      = "load"
	StagePrefilter = "prefilter"
	StageEmbedding = "embedding"
	StageRanking   = "ranking"
	StageExplain   = "explain"
)

// Step describes how one pipeline stage changed the candidate count.
type Step struct {
	Name    string
	Initial int
	Dropped int
	Left    int
}

func newStep(name string, initial, left int) Step {
	return Step{Name: name, Initial: initial, Dropped: initial - left, Left: left}
}

func logStep(logger *zap.Logger, step Step) {
	logger.Info("search step",
		zap.String("name", step.Name),
		zap.Int("initial", step.Initial),
		zap.Int("dropped", step.Dropped),
		zap.Int("left", step.Left),
	)
}

// Status describes a stage and the settings it runs with.
type Status struct {
	Name    string            `json:"name"`
	Enabled bool              `json:"enabled"`
	Reason  string            `json:"reason,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// Describe lists the stages of the engine with their effective settings.
func (e *Engine) Describe() []Status {
	statuses := []Status{
		{
			Name:    StagePrefilter,
			Enabled: true,
			Details: map[string]string{"policy": "strict", "limit": strconv.Itoa(e.prefilter.Limit())},
		},
	}

	embedding := Status{Name: StageEmbedding, Enabled: e.resolver != nil}
	if e.resolver != nil {
		cfg := e.resolver.Config()
		embedding.Details = map[string]string{
			"batch_size":               strconv.Itoa(cfg.BatchSize),
			"max_concurrent_batches":   strconv.Itoa(cfg.MaxConcurrentBatches),
			"group_pause":              cfg.GroupPause.String(),
			"max_consecutive_failures": strconv.Itoa(cfg.MaxConsecutiveFailures),
		}
	} else {
		embedding.Reason = "no embedding provider configured"
	}
	statuses = append(statuses, embedding,
		Status{
			Name:    StageRanking,
			Enabled: true,
			Details: map[string]string{
				"top_k":          strconv.Itoa(e.ranker.TopK()),
				"min_similarity": strconv.FormatFloat(e.ranker.MinSimilarity(), 'f', 2, 64),
			},
		},
		Status{
			Name:    StageExplain,
			Enabled: true,
			Details: map[string]string{"strict": strconv.FormatBool(e.explainer.Strict())},
		},
	)

	return statuses
}
