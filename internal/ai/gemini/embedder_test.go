package gemini

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

type fakeEmbedModels struct {
	calls    int
	model    string
	inputs   []string
	config   *genai.EmbedContentConfig
	response *genai.EmbedContentResponse
}

func (f *fakeEmbedModels) EmbedContent(_ context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.calls++
	f.model = model
	f.config = config
	for _, c := range contents {
		f.inputs = append(f.inputs, c.Parts[0].Text)
	}
	return f.response, nil
}

func TestEmbedderBatchesInputs(t *testing.T) {
	models := &fakeEmbedModels{response: &genai.EmbedContentResponse{
		Embeddings: []*genai.ContentEmbedding{{Values: []float32{1, 0}}, {Values: []float32{0, 1}}},
	}}
	e := &Embedder{models: models, model: "embed-x", dimensions: 2, logger: zap.NewNop()}

	vectors, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if models.calls != 1 {
		t.Fatalf("expected one request, got %d", models.calls)
	}
	if strings.Join(models.inputs, ",") != "a,b" {
		t.Fatalf("unexpected inputs: %v", models.inputs)
	}
	if models.config == nil || models.config.OutputDimensionality == nil || *models.config.OutputDimensionality != 2 {
		t.Fatalf("expected output dimensionality to be forwarded")
	}
	if len(vectors) != 2 || vectors[1][1] != 1 {
		t.Fatalf("unexpected vectors: %v", vectors)
	}
}

func TestEmbedderRejectsShortResponse(t *testing.T) {
	models := &fakeEmbedModels{response: &genai.EmbedContentResponse{
		Embeddings: []*genai.ContentEmbedding{{Values: []float32{1}}},
	}}
	e := &Embedder{models: models, model: "embed-x", logger: zap.NewNop()}

	if _, err := e.EmbedBatch(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error when provider returns fewer vectors")
	}
	if models.config != nil {
		t.Fatalf("expected nil config without dimensions")
	}
}
