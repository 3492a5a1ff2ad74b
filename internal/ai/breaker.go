package ai

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned while the provider breaker rejects calls.
var ErrCircuitOpen = errors.New("provider circuit breaker is open")

type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before probing again.
	Timeout time.Duration
	// HalfOpenRequests is the number of probe calls allowed while half-open.
	HalfOpenRequests uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:      5,
		Timeout:          30 * time.Second,
		HalfOpenRequests: 1,
	}
}

func newBreaker(name string, cfg BreakerConfig, logger *zap.Logger) *gobreaker.CircuitBreaker {
	if cfg.MaxFailures == 0 {
		cfg = DefaultBreakerConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			// a caller giving up says nothing about provider health
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("provider circuit breaker changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

// callerErr attaches the context error to a failure that happened after the
// caller gave up, so providers that drop the cause are not blamed.
func callerErr(ctx context.Context, err error) error {
	ctxErr := ctx.Err()
	if err == nil || ctxErr == nil || errors.Is(err, ctxErr) {
		return err
	}
	return errors.Join(ctxErr, err)
}

func breakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

type breakerGenerator struct {
	next    TextGenerator
	breaker *gobreaker.CircuitBreaker
}

// WithGeneratorBreaker guards a text generator with a circuit breaker.
func WithGeneratorBreaker(next TextGenerator, cfg BreakerConfig, logger *zap.Logger) TextGenerator {
	return &breakerGenerator{next: next, breaker: newBreaker("generator:"+next.Model(), cfg, logger)}
}

func (b *breakerGenerator) GenerateContent(ctx context.Context, system, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	res, err := b.breaker.Execute(func() (interface{}, error) {
		out, err := b.next.GenerateContent(ctx, system, message)
		return out, callerErr(ctx, err)
	})
	if err != nil {
		return "", breakerErr(err)
	}
	return res.(string), nil
}

func (b *breakerGenerator) Model() string { return b.next.Model() }

type breakerEmbedder struct {
	next    Embedder
	breaker *gobreaker.CircuitBreaker
}

type breakerBatchEmbedder struct {
	*breakerEmbedder
	batch BatchEmbedder
}

// WithEmbedderBreaker guards an embedder with a circuit breaker. Batch support
// of the wrapped embedder is preserved.
func WithEmbedderBreaker(next Embedder, cfg BreakerConfig, logger *zap.Logger) Embedder {
	wrapped := &breakerEmbedder{next: next, breaker: newBreaker("embedder:"+next.Model(), cfg, logger)}
	if batch, ok := next.(BatchEmbedder); ok {
		return &breakerBatchEmbedder{breakerEmbedder: wrapped, batch: batch}
	}
	return wrapped
}

func (b *breakerEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := b.breaker.Execute(func() (interface{}, error) {
		vector, err := b.next.Embed(ctx, text)
		return vector, callerErr(ctx, err)
	})
	if err != nil {
		return nil, breakerErr(err)
	}
	return res.([]float32), nil
}

func (b *breakerEmbedder) Model() string { return b.next.Model() }

func (b *breakerBatchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := b.breaker.Execute(func() (interface{}, error) {
		vectors, err := b.batch.EmbedBatch(ctx, texts)
		return vectors, callerErr(ctx, err)
	})
	if err != nil {
		return nil, breakerErr(err)
	}
	return res.([][]float32), nil
}
