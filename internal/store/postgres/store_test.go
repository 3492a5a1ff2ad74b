package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/mission-matcher/internal/candidate"
	"github.com/spigell/mission-matcher/internal/store"
)

// These tests need a PostgreSQL server with pgvector. They run only when
// MISSION_MATCHER_TEST_POSTGRES_DSN is set.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("MISSION_MATCHER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MISSION_MATCHER_TEST_POSTGRES_DSN not set")
	}

	s, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = s.db.Exec(`DELETE FROM candidates WHERE user_id = 'pg-test-user'`)
		s.Close()
	})
	return s
}

func TestPostgresRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	const user, session = "pg-test-user", "pg-test-session"

	n, err := s.UpsertCandidates(ctx, user, session, []*candidate.Candidate{
		{ID: "pg-a", Name: "Ann", Company: "BuildCo", Skills: []string{"Planning"}},
		{Name: "ANN", Company: "buildco"},
		{ID: "pg-b", Name: "Bob"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.PersistEmbeddings(ctx, []candidate.EmbeddingUpdate{
		{CandidateID: "pg-a", SessionID: session, UserID: user, Vector: []float32{1, 2, 3}},
	}))

	got, err := s.CandidatesBySession(ctx, user, session)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []float32{1, 2, 3}, got[0].Embedding)
	assert.Equal(t, []string{"Planning"}, got[0].Skills)
	assert.Nil(t, got[1].Embedding)

	removed, err := s.DeleteSession(ctx, user, session)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = s.DeleteSession(ctx, user, session)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
