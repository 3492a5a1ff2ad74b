// Package explain asks the text provider to justify each match and to write
// one recommendation for the whole result.
package explain

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/mission-matcher/internal/ai"
	"github.com/spigell/mission-matcher/internal/candidate"
	"github.com/spigell/mission-matcher/internal/metrics"
	"github.com/spigell/mission-matcher/internal/utils"
)

// SystemInstruction frames every call to the text provider.
const SystemInstruction = "You are a professional network analyst. You help people find the most relevant contacts in their own network for a specific mission, and you explain your reasoning briefly and honestly."

const (
	GenericReasoning = "This contact's profile overlaps with the mission. Review their background to confirm the fit before reaching out."
	GenericSummary   = "Start with the highest ranked contacts above; their profiles are the closest to your mission. Review each profile before reaching out."

	defaultMaxLogLength = 200
)

//go:embed match_prompt.md
var matchPromptTemplate string

//go:embed summary_prompt.md
var summaryPromptTemplate string

var negativePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bnot (?:a|an) (?:good|strong|great|suitable|relevant|ideal) (?:match|fit)\b`),
	regexp.MustCompile(`(?i)\b(?:does not|doesn't|do not|don't) align\b`),
	regexp.MustCompile(`(?i)\bshould (?:be excluded|not be considered)\b`),
	regexp.MustCompile(`(?i)\b(?:is|are) not relevant\b`),
	regexp.MustCompile(`(?i)\bpoor (?:match|fit)\b`),
	regexp.MustCompile(`(?i)\bno (?:clear|direct|obvious) (?:connection|relevance)\b`),
}

// IsNegative reports whether an explanation rejects the match.
func IsNegative(text string) bool {
	for _, p := range negativePatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

type Config struct {
	// Strict drops matches whose explanation rejects them.
	Strict       bool
	MaxLogLength int
}

type Explainer struct {
	generator ai.TextGenerator
	strict    bool
	maxLogLen int
	logger    *zap.Logger
}

func New(generator ai.TextGenerator, cfg Config, logger *zap.Logger) *Explainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxLog := cfg.MaxLogLength
	if maxLog <= 0 {
		maxLog = defaultMaxLogLength
	}
	return &Explainer{generator: generator, strict: cfg.Strict, maxLogLen: maxLog, logger: logger}
}

func (e *Explainer) Strict() bool { return e.strict }

// Explain fills Reasoning for every match concurrently and returns the kept
// matches in their original order. A provider failure yields GenericReasoning.
func (e *Explainer) Explain(ctx context.Context, mission string, matches []candidate.Match) []candidate.Match {
	explained := make([]candidate.Match, len(matches))
	drop := make([]bool, len(matches))

	var wg sync.WaitGroup
	for i, m := range matches {
		wg.Add(1)
		go func() {
			defer wg.Done()
			text, generated := e.reason(ctx, mission, m)
			m.Reasoning = text
			explained[i] = m
			if generated && e.strict && IsNegative(text) {
				drop[i] = true
			}
		}()
	}
	wg.Wait()

	kept := make([]candidate.Match, 0, len(explained))
	for i, m := range explained {
		if drop[i] {
			metrics.IncExplanation("dropped")
			e.logger.Debug("match dropped by negative explanation",
				zap.String("candidate_id", m.ID),
				zap.String("reasoning", utils.TruncateForLog(m.Reasoning, e.maxLogLen)),
			)
			continue
		}
		kept = append(kept, m)
	}

	return kept
}

func (e *Explainer) reason(ctx context.Context, mission string, m candidate.Match) (string, bool) {
	if e.generator == nil {
		metrics.IncExplanation("generic")
		return GenericReasoning, false
	}

	prompt, err := buildMatchPrompt(mission, m)
	if err != nil {
		e.logger.Warn("failed to build explanation prompt", zap.String("candidate_id", m.ID), zap.Error(err))
		metrics.IncExplanation("generic")
		return GenericReasoning, false
	}

	raw, err := e.generator.GenerateContent(ctx, SystemInstruction, prompt)
	raw = strings.TrimSpace(raw)
	if err != nil || raw == "" {
		e.logger.Warn("explanation failed, using generic text", zap.String("candidate_id", m.ID), zap.Error(err))
		metrics.IncExplanation("generic")
		return GenericReasoning, false
	}

	e.logger.Debug("explanation received",
		zap.String("candidate_id", m.ID),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, e.maxLogLen)),
	)
	metrics.IncExplanation("ok")

	return raw, true
}

// Summarize writes one recommendation paragraph for the final matches.
func (e *Explainer) Summarize(ctx context.Context, mission string, matches []candidate.Match) string {
	if e.generator == nil || len(matches) == 0 {
		return GenericSummary
	}

	var list strings.Builder
	for i, m := range matches {
		fmt.Fprintf(&list, "%d. %s\n", i+1, m.Label())
		if m.Reasoning != "" {
			fmt.Fprintf(&list, "   %s\n", m.Reasoning)
		}
	}

	prompt := strings.ReplaceAll(summaryPromptTemplate, "{{MISSION}}", mission)
	prompt = strings.ReplaceAll(prompt, "{{MATCHES}}", strings.TrimSpace(list.String()))

	raw, err := e.generator.GenerateContent(ctx, SystemInstruction, prompt)
	raw = strings.TrimSpace(raw)
	if err != nil || raw == "" {
		e.logger.Warn("recommendation failed, using generic text", zap.Error(err))
		return GenericSummary
	}

	return raw
}

func buildMatchPrompt(mission string, m candidate.Match) (string, error) {
	public := map[string]any{
		"name":     m.Name,
		"title":    m.Title,
		"company":  m.Company,
		"location": m.Location,
		"industry": m.Industry,
		"summary":  m.Summary,
		"skills":   m.Skills,
	}
	payload, err := json.MarshalIndent(public, "", "  ")
	if err != nil {
		return "", err
	}

	prompt := strings.ReplaceAll(matchPromptTemplate, "{{MISSION}}", mission)
	prompt = strings.ReplaceAll(prompt, "{{SIMILARITY}}", fmt.Sprintf("%.2f", m.Similarity))
	prompt = strings.ReplaceAll(prompt, "{{CANDIDATE_JSON}}", string(payload))
	return prompt, nil
}
