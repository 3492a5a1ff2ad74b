package candidate

import (
	"fmt"
	"strings"
)

// Attributes are derived from the mission text by an upstream extractor.
type Attributes struct {
	Industry    string `json:"industry"`
	Location    string `json:"location"`
	Role        string `json:"role"`
	Description string `json:"description"`
}

// Mission lives for the duration of a single search.
type Mission struct {
	Text       string     `json:"text"`
	Attributes Attributes `json:"attributes"`
}

// EmbeddingText renders the mission in the fixed template used for its vector.
func (m Mission) EmbeddingText() string {
	return fmt.Sprintf("%s | Industry: %s | Location: %s | Role: %s",
		strings.TrimSpace(m.Text),
		orUnspecified(m.Attributes.Industry),
		orUnspecified(m.Attributes.Location),
		orUnspecified(m.Attributes.Role),
	)
}

func orUnspecified(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "unspecified"
	}
	return s
}
