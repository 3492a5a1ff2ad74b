package candidate

import (
	"encoding/json"
	"fmt"
	"os"
)

// Match is one ranked result. It is never mutated after the search returns.
type Match struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Title      string   `json:"title,omitempty"`
	Company    string   `json:"company,omitempty"`
	Location   string   `json:"location,omitempty"`
	Industry   string   `json:"industry,omitempty"`
	Summary    string   `json:"summary,omitempty"`
	Skills     []string `json:"skills,omitempty"`
	Similarity float64  `json:"similarity"`
	Reasoning  string   `json:"reasoning,omitempty"`
	// Fallback marks results ranked by text score because no vectors were available.
	Fallback bool `json:"fallback,omitempty"`
}

// NewMatch copies the public fields of a candidate.
func NewMatch(c *Candidate, similarity float64) Match {
	return Match{
		ID:         c.ID,
		Name:       c.Name,
		Title:      c.Title,
		Company:    c.Company,
		Location:   c.Location,
		Industry:   c.Industry,
		Summary:    c.Summary,
		Skills:     append([]string(nil), c.Skills...),
		Similarity: similarity,
	}
}

// Label is a one-line description used in CLI menus and logs.
func (m Match) Label() string {
	label := fmt.Sprintf("%s (%.2f)", m.Name, m.Similarity)
	if m.Title != "" {
		label += " / " + m.Title
	}
	if m.Company != "" {
		label += " / " + m.Company
	}
	return label
}

// DumpMatchesToTmpFile writes matches as indented JSON into a temp file and returns its name.
func DumpMatchesToTmpFile(matches []Match) (string, error) {
	file, err := os.CreateTemp("", "matches_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(matches); err != nil {
		return "", err
	}
	return file.Name(), nil
}
