package candidate

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Candidate is a single contact record owned by one user and one session.
type Candidate struct {
	ID         string   `json:"id"`
	SessionID  string   `json:"session_id"`
	UserID     string   `json:"user_id"`
	Name       string   `json:"name"`
	Title      string   `json:"title,omitempty"`
	Company    string   `json:"company,omitempty"`
	Location   string   `json:"location,omitempty"`
	Industry   string   `json:"industry,omitempty"`
	Summary    string   `json:"summary,omitempty"`
	Experience string   `json:"experience,omitempty"`
	Education  string   `json:"education,omitempty"`
	Skills     []string `json:"skills,omitempty"`
	// Embedding is nil until the resolver fills it in.
	Embedding []float32 `json:"-"`
}

// EmbeddingUpdate carries a freshly computed vector back to the store.
type EmbeddingUpdate struct {
	CandidateID string
	SessionID   string
	UserID      string
	Vector      []float32
}

// Key returns the composite deduplication key: normalized name and company.
func (c *Candidate) Key() string {
	return Key(c.Name, c.Company)
}

// Key builds the deduplication key used by the store and the ranker.
func Key(name, company string) string {
	return normalizeKeyPart(name) + "|" + normalizeKeyPart(company)
}

func normalizeKeyPart(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(s)))
}

func (c *Candidate) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// EmbeddingText joins all non-empty profile fields in a fixed order.
func (c *Candidate) EmbeddingText() string {
	fields := []string{
		c.Name,
		c.Title,
		c.Company,
		c.Location,
		c.Industry,
		c.Summary,
		c.Experience,
		c.Education,
		strings.Join(nonEmpty(c.Skills), ", "),
	}

	return strings.Join(nonEmpty(fields), " ")
}

// Haystack is the lowercase text the prefilter searches for keywords.
func (c *Candidate) Haystack() string {
	parts := nonEmpty([]string{c.Title, c.Company, c.Industry, c.Summary})
	return strings.ToLower(norm.NFKC.String(strings.Join(parts, " ")))
}

// Clone returns a deep copy so callers can mutate embeddings freely.
func (c *Candidate) Clone() *Candidate {
	if c == nil {
		return nil
	}

	cp := *c
	if c.Skills != nil {
		cp.Skills = append([]string(nil), c.Skills...)
	}
	if c.Embedding != nil {
		cp.Embedding = append([]float32(nil), c.Embedding...)
	}

	return &cp
}

// CloneAll deep-copies a list of candidates.
func CloneAll(items []*Candidate) []*Candidate {
	out := make([]*Candidate, 0, len(items))
	for _, item := range items {
		out = append(out, item.Clone())
	}
	return out
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
