package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/mission-matcher/internal/logger"
)

const defaultEmbeddingModel = "gemini-embedding-001"

type embedModels interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Embedder calls the Gemini embedding endpoint. One request may carry many inputs.
type Embedder struct {
	models     embedModels
	model      string
	dimensions int32
	logger     *zap.Logger
}

type EmbedderConfig struct {
	APIKey string
	Model  string
	// Dimensions truncates the output vectors when positive.
	Dimensions int32
}

func NewEmbedder(ctx context.Context, cfg EmbedderConfig, log *zap.Logger) (*Embedder, error) {
	client, err := newClient(ctx, cfg.APIKey)
	if err != nil {
		return nil, err
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultEmbeddingModel
	}

	return &Embedder{
		models:     client.Models,
		model:      model,
		dimensions: cfg.Dimensions,
		logger:     logger.WithCommonFields(log, ProviderName, model),
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

	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	}

	var config *genai.EmbedContentConfig
	if e.dimensions > 0 {
		dims := e.dimensions
		config = &genai.EmbedContentConfig{OutputDimensionality: &dims}
	}

	resp, err := e.models.EmbedContent(ctx, e.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, fmt.Errorf("embed content: expected %d embeddings, got %d", len(texts), got)
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("embed content: empty embedding at index %d", i)
		}
		vectors[i] = emb.Values
	}

	e.logger.Debug("gemini embeddings received",
		zap.Int("inputs", len(texts)),
		zap.Int("dimensions", len(vectors[0])),
	)

	return vectors, nil
}
