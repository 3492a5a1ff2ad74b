package sqlite

// Schema is applied on every open; all statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS candidates (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT    NOT NULL UNIQUE,
	user_id      TEXT    NOT NULL,
	session_id   TEXT    NOT NULL,
	dedup_key    TEXT    NOT NULL,
	name         TEXT    NOT NULL,
	title        TEXT    NOT NULL DEFAULT '',
	company      TEXT    NOT NULL DEFAULT '',
	location     TEXT    NOT NULL DEFAULT '',
	industry     TEXT    NOT NULL DEFAULT '',
	summary      TEXT    NOT NULL DEFAULT '',
	experience   TEXT    NOT NULL DEFAULT '',
	education    TEXT    NOT NULL DEFAULT '',
	skills       TEXT    NOT NULL DEFAULT '[]',
	content_hash TEXT    NOT NULL,
	embedding    BLOB,
	dimension    INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (user_id, session_id, dedup_key)
);

CREATE INDEX IF NOT EXISTS idx_candidates_scope ON candidates (user_id, session_id, seq);
`
