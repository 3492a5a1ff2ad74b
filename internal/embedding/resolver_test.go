package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/mission-matcher/internal/ai"
	"github.com/spigell/mission-matcher/internal/candidate"
)

type fakeEmbedder struct {
	mu       sync.Mutex
	texts    []string
	failWith func(text string) error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	if f.failWith != nil {
		if err := f.failWith(text); err != nil {
			return nil, err
		}
	}
	return []float32{float32(len(text)), 1}, nil
}

func (f *fakeEmbedder) Model() string { return "fake" }

type fakeBatchEmbedder struct {
	fakeEmbedder
	sizes    []int
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	fail     bool
}

func (f *fakeBatchEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if cur <= seen || f.maxSeen.CompareAndSwap(seen, cur) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	f.sizes = append(f.sizes, len(texts))
	f.mu.Unlock()

	if f.fail {
		return nil, errors.New("provider down")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, float32(i)}
	}
	return out, nil
}

type fakePersister struct {
	mu      sync.Mutex
	batches [][]candidate.EmbeddingUpdate
	err     error
}

func (f *fakePersister) PersistEmbeddings(_ context.Context, updates []candidate.EmbeddingUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, updates)
	return f.err
}

func makeCandidates(n int) []*candidate.Candidate {
	out := make([]*candidate.Candidate, 0, n)
	for i := range n {
		out = append(out, &candidate.Candidate{
			ID:        fmt.Sprintf("c%d", i),
			UserID:    "u1",
			SessionID: "s1",
			Name:      fmt.Sprintf("Person %d", i),
		})
	}
	return out
}

func newTestResolver(t *testing.T, e ai.Embedder, p Persister, cfg Config) *Resolver {
	t.Helper()
	r, err := New(e, p, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	t.Cleanup(r.Release)
	return r
}

func TestResolveBatchesAndPersists(t *testing.T) {
	embedder := &fakeBatchEmbedder{}
	persister := &fakePersister{}
	r := newTestResolver(t, embedder, persister, Config{BatchSize: 10, MaxConcurrentBatches: 2})

	candidates := makeCandidates(25)
	report, err := r.Resolve(context.Background(), candidates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Requested != 25 || report.Embedded != 25 || report.Failed != 0 || report.Skipped != 0 || report.Aborted {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(embedder.sizes) != 3 {
		t.Fatalf("expected 3 batch requests, got %v", embedder.sizes)
	}
	if got := embedder.maxSeen.Load(); got > 2 {
		t.Fatalf("expected at most 2 concurrent batches, saw %d", got)
	}
	if len(persister.batches) != 3 {
		t.Fatalf("expected one persist call per batch, got %d", len(persister.batches))
	}
	for _, c := range candidates {
		if !c.HasEmbedding() {
			t.Fatalf("candidate %s has no vector", c.ID)
		}
	}
	u := persister.batches[0][0]
	if u.UserID != "u1" || u.SessionID != "s1" || u.CandidateID == "" {
		t.Fatalf("persisted update missing scope: %+v", u)
	}
}

func TestResolveSkipsCandidatesWithVectors(t *testing.T) {
	embedder := &fakeEmbedder{}
	r := newTestResolver(t, embedder, nil, Config{})

	candidates := makeCandidates(3)
	candidates[1].Embedding = []float32{9, 9}

	report, err := r.Resolve(context.Background(), candidates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Requested != 2 || len(embedder.texts) != 2 {
		t.Fatalf("expected 2 requests, got report %+v and %d calls", report, len(embedder.texts))
	}
	if candidates[1].Embedding[0] != 9 {
		t.Fatalf("existing vector was replaced")
	}
}

func TestResolveSingleFailureIsSkipped(t *testing.T) {
	core, observed := observer.New(zapcore.WarnLevel)
	embedder := &fakeEmbedder{failWith: func(text string) error {
		if strings.HasPrefix(text, "Person 1") && !strings.HasPrefix(text, "Person 10") {
			return errors.New("bad input")
		}
		return nil
	}}
	r, err := New(embedder, &fakePersister{}, Config{BatchSize: 5}, zap.New(core))
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	defer r.Release()

	candidates := makeCandidates(4)
	report, err := r.Resolve(context.Background(), candidates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Embedded != 3 || report.Failed != 1 || report.Aborted {
		t.Fatalf("unexpected report: %+v", report)
	}
	if candidates[1].HasEmbedding() {
		t.Fatalf("failed candidate should stay without a vector")
	}
	if observed.FilterMessage("candidate embedding failed").Len() != 1 {
		t.Fatalf("expected the failure to be logged")
	}
}

func TestResolveAbortsAfterConsecutiveFailures(t *testing.T) {
	embedder := &fakeBatchEmbedder{fail: true}
	persister := &fakePersister{}
	r := newTestResolver(t, embedder, persister, Config{BatchSize: 1, MaxConcurrentBatches: 2, MaxConsecutiveFailures: 3})

	report, err := r.Resolve(context.Background(), makeCandidates(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !report.Aborted {
		t.Fatalf("expected abort, got %+v", report)
	}
	// two groups of two batches run before the budget is exceeded
	if len(embedder.sizes) != 4 || report.Failed != 4 || report.Skipped != 6 {
		t.Fatalf("unexpected progress: calls=%d report=%+v", len(embedder.sizes), report)
	}
	if len(persister.batches) != 0 {
		t.Fatalf("nothing should be persisted")
	}
}

func TestResolvePersistErrorKeepsVectors(t *testing.T) {
	r := newTestResolver(t, &fakeBatchEmbedder{}, &fakePersister{err: errors.New("disk full")}, Config{})

	candidates := makeCandidates(2)
	report, err := r.Resolve(context.Background(), candidates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Embedded != 2 || !candidates[0].HasEmbedding() {
		t.Fatalf("vectors should be kept in memory, got %+v", report)
	}
}

func TestResolveHonoursCancellation(t *testing.T) {
	r := newTestResolver(t, &fakeBatchEmbedder{}, nil, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := r.Resolve(ctx, makeCandidates(3))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if report.Skipped != 3 {
		t.Fatalf("expected all candidates skipped, got %+v", report)
	}
}

func TestEmbedMissionUsesTemplate(t *testing.T) {
	embedder := &fakeEmbedder{}
	r := newTestResolver(t, embedder, nil, Config{})

	mission := candidate.Mission{Text: "Find builders", Attributes: candidate.Attributes{Industry: "construction"}}
	if _, err := r.EmbedMission(context.Background(), mission); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(embedder.texts) != 1 || embedder.texts[0] != mission.EmbeddingText() {
		t.Fatalf("unexpected mission text: %v", embedder.texts)
	}

	// never cached
	if _, err := r.EmbedMission(context.Background(), mission); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(embedder.texts) != 2 {
		t.Fatalf("expected a second provider call, got %d", len(embedder.texts))
	}
}

func TestNewRequiresEmbedder(t *testing.T) {
	if _, err := New(nil, nil, Config{}, nil); !errors.Is(err, ErrNoEmbedder) {
		t.Fatalf("expected ErrNoEmbedder, got %v", err)
	}
}
