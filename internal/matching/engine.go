// Package matching runs a mission search over one session of candidates:
// load, prefilter, resolve embeddings, rank, explain.
package matching

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/mission-matcher/internal/candidate"
	"github.com/spigell/mission-matcher/internal/embedding"
	"github.com/spigell/mission-matcher/internal/explain"
	"github.com/spigell/mission-matcher/internal/history"
	"github.com/spigell/mission-matcher/internal/logger"
	"github.com/spigell/mission-matcher/internal/metrics"
	"github.com/spigell/mission-matcher/internal/prefilter"
	"github.com/spigell/mission-matcher/internal/ranking"
)

const (
	DefaultTimeout = 4 * time.Minute

	MessageFallback  = "Semantic ranking unavailable; showing keyword-based matches."
	MessageNoMatches = "No relevant matches found for this mission."
)

// CandidateSource loads the candidates of one session.
type CandidateSource interface {
	CandidatesBySession(ctx context.Context, userID, sessionID string) ([]*candidate.Candidate, error)
}

// AttributeExtractor guesses industry, location and role from the mission text.
type AttributeExtractor interface {
	Extract(ctx context.Context, text string) (candidate.Attributes, error)
}

// Recorder archives finished searches.
type Recorder interface {
	Record(ctx context.Context, entry history.Entry) error
}

type Config struct {
	Timeout time.Duration
}

// Deps are the collaborators of an Engine. Resolver may be nil when no
// embedding provider is configured; every search then fails with
// ErrMissingCredentials. Extractor and Recorder are optional.
type Deps struct {
	Store     CandidateSource
	Resolver  *embedding.Resolver
	Prefilter *prefilter.Prefilter
	Ranker    *ranking.Ranker
	Explainer *explain.Explainer
	Extractor AttributeExtractor
	Recorder  Recorder
}

type Engine struct {
	store     CandidateSource
	resolver  *embedding.Resolver
	prefilter *prefilter.Prefilter
	ranker    *ranking.Ranker
	explainer *explain.Explainer
	extractor AttributeExtractor
	recorder  Recorder
	timeout   time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func New(deps Deps, cfg Config, log *zap.Logger) (*Engine, error) {
	if deps.Store == nil {
		return nil, errors.New("candidate store is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Prefilter == nil {
		deps.Prefilter = prefilter.New(prefilter.Config{})
	}
	if deps.Ranker == nil {
		ranker, err := ranking.New(ranking.Config{})
		if err != nil {
			return nil, err
		}
		deps.Ranker = ranker
	}
	if deps.Explainer == nil {
		deps.Explainer = explain.New(nil, explain.Config{Strict: true}, log)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Engine{
		store:     deps.Store,
		resolver:  deps.Resolver,
		prefilter: deps.Prefilter,
		ranker:    deps.Ranker,
		explainer: deps.Explainer,
		extractor: deps.Extractor,
		recorder:  deps.Recorder,
		timeout:   timeout,
		logger:    log,
		now:       time.Now,
	}, nil
}

func (e *Engine) Timeout() time.Duration { return e.timeout }

type Request struct {
	Mission    string
	SessionID  string
	UserID     string
	Attributes candidate.Attributes
	// ExtractAttributes asks the extractor for attributes when none are given.
	// It runs only once the session is known to hold candidates.
	ExtractAttributes bool
}

type Diagnostics struct {
	TotalCandidates int `json:"total_candidates"`
	AfterPrefilter  int `json:"after_prefilter"`
	WithEmbeddings  int `json:"with_embeddings"`
	FinalMatches    int `json:"final_matches"`
}

type Response struct {
	SearchID       string               `json:"search_id"`
	Attributes     candidate.Attributes `json:"attributes"`
	Matches        []candidate.Match    `json:"matches"`
	Recommendation string               `json:"recommendation,omitempty"`
	// Message is set for keyword fallback results and for searches without matches.
	Message     string      `json:"message,omitempty"`
	Fallback    bool        `json:"fallback"`
	Diagnostics Diagnostics `json:"diagnostics"`
	Steps       []Step      `json:"-"`
}

// Search runs the whole pipeline under the engine timeout. Input problems are
// reported as *InputError, a missing embedding provider as ErrMissingCredentials
// and an expired deadline as ErrTimeout.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	started := e.now()

	if e.resolver == nil {
		metrics.ObserveSearch(metrics.OutcomeError, time.Since(started))
		return nil, ErrMissingCredentials
	}

	req.Mission = strings.TrimSpace(req.Mission)
	if err := validate(req); err != nil {
		metrics.ObserveSearch(metrics.OutcomeInvalid, time.Since(started))
		return nil, err
	}

	searchID := uuid.NewString()
	log := logger.WithSearchFields(e.logger, req.UserID, req.SessionID, searchID)

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.run(runCtx, log, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			log.Warn("search timed out", zap.Duration("timeout", e.timeout), zap.Error(err))
			metrics.ObserveSearch(metrics.OutcomeTimeout, time.Since(started))
			return nil, fmt.Errorf("%w after %s", ErrTimeout, e.timeout)
		}
		outcome := metrics.OutcomeError
		if IsInputError(err) {
			outcome = metrics.OutcomeInvalid
		}
		metrics.ObserveSearch(outcome, time.Since(started))
		return nil, err
	}
	resp.SearchID = searchID

	// the archive outlives the search deadline
	e.archive(ctx, log, req, resp)

	outcome := metrics.OutcomeOK
	switch {
	case resp.Fallback:
		outcome = metrics.OutcomeFallback
	case len(resp.Matches) == 0:
		outcome = metrics.OutcomeNoMatches
	}
	elapsed := time.Since(started)
	metrics.ObserveSearch(outcome, elapsed)

	log.Info("search finished",
		zap.String("outcome", outcome),
		zap.Int("matches", len(resp.Matches)),
		zap.Duration("elapsed", elapsed),
	)

	return resp, nil
}

func validate(req Request) error {
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.SessionID) == "" {
		return newInputError(ErrMissingScope, "user id and session id are required")
	}
	if req.Mission == "" {
		return newInputError(ErrEmptyMission, "please describe your mission")
	}
	return nil
}

func (e *Engine) run(ctx context.Context, log *zap.Logger, req Request) (*Response, error) {
	resp := &Response{Matches: []candidate.Match{}, Attributes: req.Attributes}

	candidates, err := e.store.CandidatesBySession(ctx, req.UserID, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil, newInputError(ErrNoCandidates, "no contacts found in this session, import a CSV first")
	}
	resp.Diagnostics.TotalCandidates = len(candidates)
	e.step(log, resp, newStep(StageLoad, len(candidates), len(candidates)))

	if req.ExtractAttributes && e.extractor != nil && resp.Attributes == (candidate.Attributes{}) {
		attrs, err := e.extractor.Extract(ctx, req.Mission)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("mission attribute extraction failed, searching with text only", zap.Error(err))
		}
		resp.Attributes = attrs
	}
	mission := candidate.Mission{Text: req.Mission, Attributes: resp.Attributes}

	scored := e.prefilter.Filter(req.Mission, candidates)
	resp.Diagnostics.AfterPrefilter = len(scored)
	e.step(log, resp, newStep(StagePrefilter, len(candidates), len(scored)))
	if len(scored) == 0 {
		resp.Message = MessageNoMatches
		return resp, nil
	}

	missionVector, err := e.resolver.EmbedMission(ctx, mission)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("mission embedding failed, falling back to keyword ranking", zap.Error(err))
		return e.fallback(ctx, resp, req.Mission, scored), nil
	}

	pending := make([]*candidate.Candidate, 0, len(scored))
	for _, s := range scored {
		pending = append(pending, s.Candidate)
	}
	report, err := e.resolver.Resolve(ctx, pending)
	if err != nil {
		return nil, err
	}
	if report.Aborted {
		log.Warn("embedding stopped early", zap.Int("skipped", report.Skipped))
	}

	for _, c := range pending {
		if c.HasEmbedding() {
			resp.Diagnostics.WithEmbeddings++
		}
	}
	e.step(log, resp, newStep(StageEmbedding, len(scored), resp.Diagnostics.WithEmbeddings))

	ranked := e.ranker.Rank(missionVector, scored)
	if ranked.Comparable == 0 {
		log.Warn("no comparable candidate vectors, falling back to keyword ranking",
			zap.Int("with_embeddings", resp.Diagnostics.WithEmbeddings),
			zap.Int("mission_dimension", len(missionVector)),
		)
		return e.fallback(ctx, resp, req.Mission, scored), nil
	}
	e.step(log, resp, newStep(StageRanking, ranked.Comparable, len(ranked.Matches)))
	if len(ranked.Matches) == 0 {
		resp.Message = MessageNoMatches
		return resp, nil
	}

	explained := e.explainer.Explain(ctx, req.Mission, ranked.Matches)
	e.step(log, resp, newStep(StageExplain, len(ranked.Matches), len(explained)))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(explained) == 0 {
		resp.Message = MessageNoMatches
		return resp, nil
	}

	resp.Matches = explained
	resp.Diagnostics.FinalMatches = len(explained)
	resp.Recommendation = e.explainer.Summarize(ctx, req.Mission, explained)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return resp, nil
}

// fallback answers with the best keyword-scored candidates. They carry a fixed
// reasoning, so only the summary is generated.
func (e *Engine) fallback(ctx context.Context, resp *Response, mission string, scored []prefilter.Scored) *Response {
	resp.Matches = e.ranker.Fallback(scored)
	resp.Fallback = true
	resp.Message = MessageFallback
	resp.Diagnostics.FinalMatches = len(resp.Matches)
	resp.Recommendation = e.explainer.Summarize(ctx, mission, resp.Matches)
	return resp
}

func (e *Engine) step(log *zap.Logger, resp *Response, step Step) {
	resp.Steps = append(resp.Steps, step)
	logStep(log, step)
	metrics.ObserveStage(step.Name, step.Left)
}

func (e *Engine) archive(ctx context.Context, log *zap.Logger, req Request, resp *Response) {
	if e.recorder == nil {
		return
	}

	err := e.recorder.Record(context.WithoutCancel(ctx), history.Entry{
		ID:             resp.SearchID,
		UserID:         req.UserID,
		SessionID:      req.SessionID,
		Mission:        req.Mission,
		Attributes:     resp.Attributes,
		Matches:        resp.Matches,
		Recommendation: resp.Recommendation,
		Message:        resp.Message,
		Fallback:       resp.Fallback,
		CreatedAt:      e.now().UTC(),
	})
	if err != nil {
		log.Warn("failed to archive search", zap.Error(err))
	}
}
