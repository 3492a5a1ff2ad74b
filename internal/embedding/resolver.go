// Package embedding fills in missing candidate vectors in bounded, paced
// batch groups and persists every successful batch right away.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/spigell/mission-matcher/internal/ai"
	"github.com/spigell/mission-matcher/internal/candidate"
	"github.com/spigell/mission-matcher/internal/metrics"
	"github.com/spigell/mission-matcher/internal/utils"
)

const (
	DefaultBatchSize              = 10
	DefaultMaxConcurrentBatches   = 5
	DefaultGroupPause             = time.Second
	DefaultMaxConsecutiveFailures = 3
)

var ErrNoEmbedder = errors.New("embedding provider is not configured")

// Persister receives vectors as soon as a batch finishes.
type Persister interface {
	PersistEmbeddings(ctx context.Context, updates []candidate.EmbeddingUpdate) error
}

type Config struct {
	BatchSize              int
	MaxConcurrentBatches   int
	GroupPause             time.Duration
	MaxConsecutiveFailures int
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxConcurrentBatches <= 0 {
		c.MaxConcurrentBatches = DefaultMaxConcurrentBatches
	}
	if c.GroupPause < 0 {
		c.GroupPause = 0
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	return c
}

// Report summarizes one Resolve call.
type Report struct {
	Requested int
	Embedded  int
	Failed    int
	// Skipped counts candidates never sent because processing stopped early.
	Skipped int
	Aborted bool
}

type Resolver struct {
	embedder  ai.Embedder
	persister Persister
	pool      *ants.Pool
	cfg       Config
	logger    *zap.Logger
}

func New(embedder ai.Embedder, persister Persister, cfg Config, logger *zap.Logger) (*Resolver, error) {
	if embedder == nil {
		return nil, ErrNoEmbedder
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg = cfg.withDefaults()
	pool, err := ants.NewPool(cfg.MaxConcurrentBatches)
	if err != nil {
		return nil, fmt.Errorf("create embedding pool: %w", err)
	}

	return &Resolver{
		embedder:  embedder,
		persister: persister,
		pool:      pool,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Release stops the worker pool. The resolver must not be used afterwards.
func (r *Resolver) Release() {
	r.pool.Release()
}

func (r *Resolver) Config() Config { return r.cfg }

// EmbedMission always asks the provider; mission vectors are never cached.
func (r *Resolver) EmbedMission(ctx context.Context, mission candidate.Mission) ([]float32, error) {
	vector, err := r.embedder.Embed(ctx, mission.EmbeddingText())
	if err != nil {
		return nil, fmt.Errorf("embed mission: %w", err)
	}
	if len(vector) == 0 {
		return nil, errors.New("embed mission: provider returned an empty vector")
	}
	return vector, nil
}

type batchResult struct {
	embedded int
	failed   int
}

// Resolve sets Embedding on every candidate that lacks one. Candidates that
// already carry a vector are not sent. Individual failures are logged and
// skipped. Only context errors are returned.
func (r *Resolver) Resolve(ctx context.Context, candidates []*candidate.Candidate) (Report, error) {
	pending := make([]*candidate.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c != nil && !c.HasEmbedding() {
			pending = append(pending, c)
		}
	}

	report := Report{Requested: len(pending)}
	if len(pending) == 0 {
		return report, nil
	}

	batches := split(pending, r.cfg.BatchSize)
	consecutive := 0

	for start := 0; start < len(batches); start += r.cfg.MaxConcurrentBatches {
		if start > 0 {
			if err := utils.WaitFor(ctx, r.cfg.GroupPause); err != nil {
				return r.finish(report, len(pending)), err
			}
		}
		if err := ctx.Err(); err != nil {
			return r.finish(report, len(pending)), err
		}

		end := min(start+r.cfg.MaxConcurrentBatches, len(batches))
		group := batches[start:end]
		results := make([]batchResult, len(group))

		var wg sync.WaitGroup
		for i, batch := range group {
			wg.Add(1)
			if err := r.pool.Submit(func() {
				defer wg.Done()
				results[i] = r.runBatch(ctx, batch)
			}); err != nil {
				wg.Done()
				r.logger.Warn("failed to schedule embedding batch", zap.Error(err))
				results[i] = batchResult{failed: len(batch)}
			}
		}
		wg.Wait()

		for _, res := range results {
			report.Embedded += res.embedded
			report.Failed += res.failed

			if res.embedded == 0 {
				consecutive++
			} else {
				consecutive = 0
			}
			if consecutive >= r.cfg.MaxConsecutiveFailures {
				report.Aborted = true
			}
		}

		r.logger.Debug("embedding group finished",
			zap.Int("group_start", start),
			zap.Int("batches", len(group)),
			zap.Int("embedded", report.Embedded),
			zap.Int("failed", report.Failed),
		)

		if report.Aborted {
			break
		}
	}

	report = r.finish(report, len(pending))

	if report.Aborted {
		metrics.IncEmbeddingAbort()
		r.logger.Warn("embedding stopped after consecutive batch failures",
			zap.Int("max_consecutive_failures", r.cfg.MaxConsecutiveFailures),
			zap.Int("embedded", report.Embedded),
			zap.Int("skipped", report.Skipped),
		)
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (r *Resolver) finish(report Report, pending int) Report {
	report.Skipped = pending - report.Embedded - report.Failed
	metrics.AddEmbeddings(report.Embedded, report.Failed)
	return report
}

func (r *Resolver) runBatch(ctx context.Context, batch []*candidate.Candidate) batchResult {
	var vectors [][]float32
	if multi, ok := r.embedder.(ai.BatchEmbedder); ok {
		vectors = r.embedMulti(ctx, multi, batch)
	} else {
		vectors = r.embedEach(ctx, batch)
	}

	updates := make([]candidate.EmbeddingUpdate, 0, len(batch))
	for i, c := range batch {
		if len(vectors[i]) == 0 {
			continue
		}
		c.Embedding = vectors[i]
		updates = append(updates, candidate.EmbeddingUpdate{
			CandidateID: c.ID,
			SessionID:   c.SessionID,
			UserID:      c.UserID,
			Vector:      vectors[i],
		})
	}

	if len(updates) > 0 && r.persister != nil {
		if err := r.persister.PersistEmbeddings(ctx, updates); err != nil {
			// vectors stay usable for this search
			r.logger.Warn("failed to persist embeddings", zap.Int("count", len(updates)), zap.Error(err))
		}
	}

	return batchResult{embedded: len(updates), failed: len(batch) - len(updates)}
}

func (r *Resolver) embedMulti(ctx context.Context, embedder ai.BatchEmbedder, batch []*candidate.Candidate) [][]float32 {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.EmbeddingText()
	}

	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err == nil && len(vectors) != len(batch) {
		err = fmt.Errorf("expected %d vectors, got %d", len(batch), len(vectors))
	}
	if err != nil {
		r.logger.Warn("embedding batch failed", zap.Int("size", len(batch)), zap.Error(err))
		return make([][]float32, len(batch))
	}

	return vectors
}

func (r *Resolver) embedEach(ctx context.Context, batch []*candidate.Candidate) [][]float32 {
	vectors := make([][]float32, len(batch))

	var wg sync.WaitGroup
	for i, c := range batch {
		wg.Add(1)
		go func(i int, c *candidate.Candidate) {
			defer wg.Done()
			v, err := r.embedder.Embed(ctx, c.EmbeddingText())
			if err != nil {
				r.logger.Warn("candidate embedding failed", zap.String("candidate_id", c.ID), zap.Error(err))
				return
			}
			vectors[i] = v
		}(i, c)
	}
	wg.Wait()

	return vectors
}

func split(items []*candidate.Candidate, size int) [][]*candidate.Candidate {
	batches := make([][]*candidate.Candidate, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		batches = append(batches, items[start:min(start+size, len(items))])
	}
	return batches
}
