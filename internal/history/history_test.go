package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/mission-matcher/internal/candidate"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndListNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := range 3 {
		require.NoError(t, s.Record(ctx, Entry{
			ID:        fmt.Sprintf("s%d", i),
			UserID:    "u1",
			Mission:   fmt.Sprintf("mission %d", i),
			Matches:   []candidate.Match{{ID: "c1", Name: "Ann", Similarity: 0.8}},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.Record(ctx, Entry{ID: "other", UserID: "u10", CreatedAt: base}))

	all, err := s.List(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "s2", all[0].ID)
	assert.Equal(t, "s0", all[2].ID)
	assert.Equal(t, "Ann", all[0].Matches[0].Name)

	limited, err := s.List(ctx, "u1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	other, err := s.List(ctx, "u10", 0)
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestRecordRequiresIdentity(t *testing.T) {
	s := openTestStore(t)
	assert.ErrorIs(t, s.Record(context.Background(), Entry{ID: "x"}), ErrInvalidEntry)
}

func TestDeleteUser(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, Entry{ID: "a", UserID: "u1"}))
	require.NoError(t, s.Record(ctx, Entry{ID: "b", UserID: "u1"}))
	require.NoError(t, s.Record(ctx, Entry{ID: "c", UserID: "u2"}))

	n, err := s.DeleteUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	left, err := s.List(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Empty(t, left)

	kept, err := s.List(ctx, "u2", 0)
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}
