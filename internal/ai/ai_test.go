package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubGenerator struct {
	answer     string
	err        error
	calls      int
	lastSystem string
	lastPrompt string
}

func (s *stubGenerator) GenerateContent(_ context.Context, system, message string) (string, error) {
	s.calls++
	s.lastSystem = system
	s.lastPrompt = message
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

func (s *stubGenerator) Model() string { return "stub-model" }

type stubEmbedder struct {
	err   error
	calls int
}

func (s *stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	s.calls++
	return []float32{1}, s.err
}

func (s *stubEmbedder) Model() string { return "stub-embed" }

type stubBatchEmbedder struct {
	stubEmbedder
}

func (s *stubBatchEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	return make([][]float32, len(texts)), s.err
}

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{name: "plain", input: `{"a":1}`, expect: `{"a":1}`},
		{name: "fenced", input: "```json\n{\"a\":1}\n```", expect: `{"a":1}`},
		{name: "prose around", input: "Sure! {\"a\":1} Hope this helps.", expect: `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ExtractJSON(tt.input); got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestCoerceString(t *testing.T) {
	if got := CoerceString(nil); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
	if got := CoerceString(" x "); got != "x" {
		t.Fatalf("expected trimmed string, got %q", got)
	}
	if got := CoerceString(float64(3)); got != "3" {
		t.Fatalf("expected json number, got %q", got)
	}
}

func TestMissionExtractorParsesAttributes(t *testing.T) {
	stub := &stubGenerator{answer: "```json\n{\"industry\": \"construction\", \"location\": \"Texas\", \"role\": \"contractor\", \"description\": null}\n```"}
	core, observed := observer.New(zapcore.DebugLevel)

	attrs, err := NewMissionExtractor(stub, zap.New(core), 0).Extract(context.Background(), "Looking for construction contractors in Texas")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if attrs.Industry != "construction" || attrs.Location != "Texas" || attrs.Role != "contractor" || attrs.Description != "" {
		t.Fatalf("unexpected attributes: %+v", attrs)
	}
	if !strings.Contains(stub.lastPrompt, "Looking for construction contractors in Texas") {
		t.Fatalf("mission text missing from prompt")
	}
	if stub.lastSystem == "" {
		t.Fatalf("expected a system instruction")
	}
	if observed.FilterMessage("mission extraction response").Len() != 1 {
		t.Fatalf("expected response to be logged")
	}
}

func TestMissionExtractorErrors(t *testing.T) {
	ex := NewMissionExtractor(&stubGenerator{answer: "no json here"}, nil, 0)
	if _, err := ex.Extract(context.Background(), "find investors"); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := ex.Extract(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty mission")
	}
}

func TestGeneratorBreakerOpens(t *testing.T) {
	stub := &stubGenerator{err: errors.New("boom")}
	g := WithGeneratorBreaker(stub, BreakerConfig{MaxFailures: 2, Timeout: time.Minute, HalfOpenRequests: 1}, zap.NewNop())

	for range 2 {
		if _, err := g.GenerateContent(context.Background(), "s", "m"); err == nil || errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("expected provider error, got %v", err)
		}
	}

	_, err := g.GenerateContent(context.Background(), "s", "m")
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if stub.calls != 2 {
		t.Fatalf("expected provider to be skipped while open, got %d calls", stub.calls)
	}
}

func TestEmbedderBreakerKeepsBatchSupport(t *testing.T) {
	wrapped := WithEmbedderBreaker(&stubBatchEmbedder{}, BreakerConfig{}, nil)
	batch, ok := wrapped.(BatchEmbedder)
	if !ok {
		t.Fatal("expected batch support to be preserved")
	}
	out, err := batch.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil || len(out) != 2 {
		t.Fatalf("unexpected result: %v, %v", out, err)
	}

	if _, ok := WithEmbedderBreaker(&stubEmbedder{}, BreakerConfig{}, nil).(BatchEmbedder); ok {
		t.Fatal("single embedder must not gain batch support")
	}
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	stub := &stubEmbedder{err: context.Canceled}
	e := WithEmbedderBreaker(stub, BreakerConfig{MaxFailures: 1, Timeout: time.Minute, HalfOpenRequests: 1}, nil)

	for range 3 {
		if _, err := e.Embed(context.Background(), "x"); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	}
	if stub.calls != 3 {
		t.Fatalf("expected every call to reach the provider, got %d", stub.calls)
	}
}

// slowEmbedder waits for the caller to give up and then fails with an error
// that does not carry the context cause.
type slowEmbedder struct {
	calls int
}

func (s *slowEmbedder) Embed(ctx context.Context, _ string) ([]float32, error) {
	s.calls++
	if ctx.Done() != nil {
		<-ctx.Done()
		return nil, errors.New("request aborted")
	}
	return []float32{1}, nil
}

func (s *slowEmbedder) Model() string { return "slow-embed" }

func TestBreakerIgnoresExpiredDeadlines(t *testing.T) {
	tests := []struct {
		name string
		next Embedder
	}{
		{name: "deadline error", next: &stubEmbedder{err: context.DeadlineExceeded}},
		{name: "error after deadline", next: &slowEmbedder{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := WithEmbedderBreaker(tt.next, BreakerConfig{MaxFailures: 2, Timeout: time.Minute, HalfOpenRequests: 1}, nil)

			for range 5 {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
				_, err := e.Embed(ctx, "x")
				cancel()
				if !errors.Is(err, context.DeadlineExceeded) {
					t.Fatalf("expected deadline exceeded, got %v", err)
				}
			}

			_, err := e.Embed(context.Background(), "x")
			if errors.Is(err, ErrCircuitOpen) {
				t.Fatalf("fresh call rejected after timed out searches: %v", err)
			}
		})
	}
}
