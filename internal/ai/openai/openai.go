// Package openai talks to OpenAI-compatible chat and embedding endpoints
// through langchaingo.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/spigell/mission-matcher/internal/ai"
	"github.com/spigell/mission-matcher/internal/logger"
)

const (
	ProviderName = "openai"

	defaultModel          = "gpt-4o-mini"
	defaultEmbeddingModel = "text-embedding-3-small"
)

type Config struct {
	APIKey string
	// BaseURL points at a compatible server. Empty means api.openai.com.
	BaseURL        string
	Model          string
	EmbeddingModel string
	Temperature    float64
}

func (c Config) options(extra ...lcopenai.Option) ([]lcopenai.Option, error) {
	token := strings.TrimSpace(c.APIKey)
	if token == "" {
		if strings.TrimSpace(c.BaseURL) == "" {
			return nil, fmt.Errorf("openai: %w", ai.ErrMissingCredentials)
		}
		// local compatible servers usually accept any token
		token = "none"
	}

	opts := []lcopenai.Option{lcopenai.WithToken(token)}
	if base := strings.TrimSpace(c.BaseURL); base != "" {
		opts = append(opts, lcopenai.WithBaseURL(base))
	}
	return append(opts, extra...), nil
}

type Generator struct {
	llm         llms.Model
	model       string
	temperature float64
	logger      *zap.Logger
}

func NewGenerator(cfg Config, log *zap.Logger) (*Generator, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	opts, err := cfg.options(lcopenai.WithModel(model))
	if err != nil {
		return nil, err
	}

	client, err := lcopenai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}

	return &Generator{
		llm:         client,
		model:       model,
		temperature: cfg.Temperature,
		logger:      logger.WithCommonFields(log, ProviderName, model),
	}, nil
}

func (g *Generator) Model() string { return g.model }

func (g *Generator) GenerateContent(ctx context.Context, system, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", errors.New("message must not be empty")
	}

	content := make([]llms.MessageContent, 0, 2)
	if system = strings.TrimSpace(system); system != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, message))

	resp, err := g.llm.GenerateContent(ctx, content, llms.WithTemperature(g.temperature))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("openai api returned no choices")
	}

	output := strings.TrimSpace(resp.Choices[0].Content)
	if output == "" {
		return "", errors.New("openai api returned empty response")
	}

	return output, nil
}

// Embedder sends every batch as a single embeddings request.
type Embedder struct {
	embedder embeddings.Embedder
	model    string
	logger   *zap.Logger
}

func NewEmbedder(cfg Config, log *zap.Logger) (*Embedder, error) {
	model := strings.TrimSpace(cfg.EmbeddingModel)
	if model == "" {
		model = defaultEmbeddingModel
	}

	opts, err := cfg.options(lcopenai.WithEmbeddingModel(model))
	if err != nil {
		return nil, err
	}

	client, err := lcopenai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	return &Embedder{
		embedder: embedder,
		model:    model,
		logger:   logger.WithCommonFields(log, ProviderName, model),
	}, nil
}

func (e *Embedder) Model() string { return e.model }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts to embed")
	}

	e.logger.Debug("requesting embeddings", zap.Int("inputs", len(texts)))

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embed documents: expected %d embeddings, got %d", len(texts), len(vectors))
	}

	return vectors, nil
}
