package store

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/spigell/mission-matcher/internal/candidate"
)

const DefaultCacheSize = 128

// Cached serves CandidatesBySession from memory and drops a session's entry on
// every write that touches it. Callers always receive copies.
type Cached struct {
	Store
	sessions *lru.Cache[string, []*candidate.Candidate]
}

func NewCached(next Store, size int) (*Cached, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	sessions, err := lru.New[string, []*candidate.Candidate](size)
	if err != nil {
		return nil, err
	}
	return &Cached{Store: next, sessions: sessions}, nil
}

func cacheKey(userID, sessionID string) string {
	return userID + "\x00" + sessionID
}

func (c *Cached) CandidatesBySession(ctx context.Context, userID, sessionID string) ([]*candidate.Candidate, error) {
	key := cacheKey(userID, sessionID)
	if cached, ok := c.sessions.Get(key); ok {
		return candidate.CloneAll(cached), nil
	}

	loaded, err := c.Store.CandidatesBySession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	c.sessions.Add(key, candidate.CloneAll(loaded))
	return loaded, nil
}

func (c *Cached) PersistEmbeddings(ctx context.Context, updates []candidate.EmbeddingUpdate) error {
	defer func() {
		for _, u := range updates {
			c.sessions.Remove(cacheKey(u.UserID, u.SessionID))
		}
	}()
	return c.Store.PersistEmbeddings(ctx, updates)
}

func (c *Cached) UpsertCandidates(ctx context.Context, userID, sessionID string, candidates []*candidate.Candidate) (int, error) {
	defer c.sessions.Remove(cacheKey(userID, sessionID))
	return c.Store.UpsertCandidates(ctx, userID, sessionID, candidates)
}

func (c *Cached) DeleteSession(ctx context.Context, userID, sessionID string) (int, error) {
	defer c.sessions.Remove(cacheKey(userID, sessionID))
	return c.Store.DeleteSession(ctx, userID, sessionID)
}
