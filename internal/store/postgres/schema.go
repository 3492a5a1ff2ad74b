package postgres

const Schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS candidates (
	seq          BIGSERIAL PRIMARY KEY,
	id           TEXT        NOT NULL UNIQUE,
	user_id      TEXT        NOT NULL,
	session_id   TEXT        NOT NULL,
	dedup_key    TEXT        NOT NULL,
	name         TEXT        NOT NULL,
	title        TEXT        NOT NULL DEFAULT '',
	company      TEXT        NOT NULL DEFAULT '',
	location     TEXT        NOT NULL DEFAULT '',
	industry     TEXT        NOT NULL DEFAULT '',
	summary      TEXT        NOT NULL DEFAULT '',
	experience   TEXT        NOT NULL DEFAULT '',
	education    TEXT        NOT NULL DEFAULT '',
	skills       TEXT[]      NOT NULL DEFAULT '{}',
	content_hash TEXT        NOT NULL,
	embedding    vector,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (user_id, session_id, dedup_key)
);

CREATE INDEX IF NOT EXISTS idx_candidates_scope ON candidates (user_id, session_id, seq);
`
