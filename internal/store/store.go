// Package store defines candidate persistence. The durable backends live in
// the sqlite and postgres subpackages; Cached adds a read-through LRU.
package store

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/spigell/mission-matcher/internal/candidate"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Store keeps candidates per user and session. A name and company pair is
// unique within one user's session.
type Store interface {
	// CandidatesBySession returns every candidate of the session in insertion order.
	CandidatesBySession(ctx context.Context, userID, sessionID string) ([]*candidate.Candidate, error)
	// PersistEmbeddings writes vectors keyed by candidate, session and user.
	// Updates for rows that no longer exist are ignored.
	PersistEmbeddings(ctx context.Context, updates []candidate.EmbeddingUpdate) error
	// UpsertCandidates inserts new candidates and refreshes existing ones with the
	// same key. A stored vector survives only when the embedding text is unchanged.
	UpsertCandidates(ctx context.Context, userID, sessionID string, candidates []*candidate.Candidate) (int, error)
	// DeleteSession removes all candidates of the session and reports how many were removed.
	DeleteSession(ctx context.Context, userID, sessionID string) (int, error)
	Close() error
}

// ValidateScope checks the identifiers every store operation needs.
func ValidateScope(userID, sessionID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	return nil
}

// PrepareForUpsert fills ids and scope, drops rows without a name and keeps
// the first of several rows sharing a key. The returned candidates are copies.
func PrepareForUpsert(userID, sessionID string, candidates []*candidate.Candidate) []*candidate.Candidate {
	out := make([]*candidate.Candidate, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if c == nil || strings.TrimSpace(c.Name) == "" {
			continue
		}
		if _, dup := seen[c.Key()]; dup {
			continue
		}
		seen[c.Key()] = struct{}{}
		cp := c.Clone()
		if cp.ID == "" {
			cp.ID = uuid.NewString()
		}
		cp.UserID = userID
		cp.SessionID = sessionID
		cp.Embedding = nil
		out = append(out, cp)
	}
	return out
}

// ContentHash fingerprints the text a vector was computed from.
func ContentHash(c *candidate.Candidate) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(c.EmbeddingText())))
}
