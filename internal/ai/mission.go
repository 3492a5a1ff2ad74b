package ai

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/mission-matcher/internal/candidate"
	"github.com/spigell/mission-matcher/internal/utils"
)

//go:embed mission_prompt.md
var missionPromptTemplate string

const missionSystemInstruction = "You extract structured search attributes from networking requests. Reply with JSON only."

const defaultMaxLogLength = 200

// MissionExtractor asks a text generator to split free mission text into attributes.
type MissionExtractor struct {
	generator TextGenerator
	logger    *zap.Logger
	maxLogLen int
}

func NewMissionExtractor(generator TextGenerator, logger *zap.Logger, maxLogLength int) *MissionExtractor {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &MissionExtractor{
		generator: generator,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

// Extract returns the attributes found in text. Callers may fall back to an
// empty Attributes value on error.
func (m *MissionExtractor) Extract(ctx context.Context, text string) (candidate.Attributes, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return candidate.Attributes{}, fmt.Errorf("mission text is required")
	}

	prompt := strings.ReplaceAll(missionPromptTemplate, "{{MISSION}}", text)

	m.logger.Debug("mission extraction request",
		zap.String("model", m.generator.Model()),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
	)

	raw, err := m.generator.GenerateContent(ctx, missionSystemInstruction, prompt)
	if err != nil {
		return candidate.Attributes{}, err
	}

	m.logger.Debug("mission extraction response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, m.maxLogLen)),
	)

	data, err := ParseJSONObject(raw)
	if err != nil {
		return candidate.Attributes{}, err
	}

	return candidate.Attributes{
		Industry:    CoerceString(data["industry"]),
		Location:    CoerceString(data["location"]),
		Role:        CoerceString(data["role"]),
		Description: CoerceString(data["description"]),
	}, nil
}
