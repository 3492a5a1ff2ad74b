// Package sqlite implements store.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/spigell/mission-matcher/internal/candidate"
	"github.com/spigell/mission-matcher/internal/store"
)

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens dsn (a file path or ":memory:") and applies the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// one writer at a time; this also keeps ":memory:" on a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CandidatesBySession(ctx context.Context, userID, sessionID string) ([]*candidate.Candidate, error) {
	if err := store.ValidateScope(userID, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, title, company, location, industry, summary,
		       experience, education, skills, embedding, dimension
		FROM candidates
		WHERE user_id = ? AND session_id = ?
		ORDER BY seq`, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	var out []*candidate.Candidate
	for rows.Next() {
		c := &candidate.Candidate{UserID: userID, SessionID: sessionID}
		var skills string
		var blob []byte
		var dimension int
		if err := rows.Scan(&c.ID, &c.Name, &c.Title, &c.Company, &c.Location, &c.Industry,
			&c.Summary, &c.Experience, &c.Education, &skills, &blob, &dimension); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		if err := json.Unmarshal([]byte(skills), &c.Skills); err != nil {
			return nil, fmt.Errorf("failed to decode skills of %s: %w", c.ID, err)
		}
		if c.Embedding, err = decodeVector(blob, dimension); err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c.ID, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate candidates: %w", err)
	}

	return out, nil
}

func (s *Store) PersistEmbeddings(ctx context.Context, updates []candidate.EmbeddingUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE candidates
		SET embedding = ?, dimension = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND session_id = ? AND user_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare embedding update: %w", err)
	}
	defer stmt.Close()

	for _, u := range updates {
		if len(u.Vector) == 0 {
			return fmt.Errorf("%w: empty vector for candidate %s", store.ErrInvalidInput, u.CandidateID)
		}
		if _, err := stmt.ExecContext(ctx, encodeVector(u.Vector), len(u.Vector), u.CandidateID, u.SessionID, u.UserID); err != nil {
			return fmt.Errorf("failed to store embedding for %s: %w", u.CandidateID, err)
		}
	}

	return tx.Commit()
}

func (s *Store) UpsertCandidates(ctx context.Context, userID, sessionID string, candidates []*candidate.Candidate) (int, error) {
	if err := store.ValidateScope(userID, sessionID); err != nil {
		return 0, err
	}

	prepared := store.PrepareForUpsert(userID, sessionID, candidates)
	if len(prepared) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candidates (id, user_id, session_id, dedup_key, name, title, company, location,
		                        industry, summary, experience, education, skills, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, session_id, dedup_key) DO UPDATE SET
			name = excluded.name,
			title = excluded.title,
			company = excluded.company,
			location = excluded.location,
			industry = excluded.industry,
			summary = excluded.summary,
			experience = excluded.experience,
			education = excluded.education,
			skills = excluded.skills,
			embedding = CASE WHEN candidates.content_hash = excluded.content_hash THEN candidates.embedding ELSE NULL END,
			dimension = CASE WHEN candidates.content_hash = excluded.content_hash THEN candidates.dimension ELSE 0 END,
			content_hash = excluded.content_hash,
			updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range prepared {
		skills, err := json.Marshal(nonNil(c.Skills))
		if err != nil {
			return 0, fmt.Errorf("failed to encode skills: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, userID, sessionID, c.Key(), c.Name, c.Title, c.Company,
			c.Location, c.Industry, c.Summary, c.Experience, c.Education, string(skills), store.ContentHash(c)); err != nil {
			return 0, fmt.Errorf("failed to upsert candidate %q: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit upsert: %w", err)
	}

	return len(prepared), nil
}

func (s *Store) DeleteSession(ctx context.Context, userID, sessionID string) (int, error) {
	if err := store.ValidateScope(userID, sessionID); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM candidates WHERE user_id = ? AND session_id = ?`, userID, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted rows: %w", err)
	}
	if n == 0 {
		return 0, store.ErrNotFound
	}

	return int(n), nil
}

func nonNil(skills []string) []string {
	if skills == nil {
		return []string{}
	}
	return skills
}
