package postgres

import (
	"context"
	"fmt"
)

// Schema is the database schema. Statements are idempotent so Migrate can run on every start.
const Schema = `
CREATE TABLE IF NOT EXISTS people (
	id            UUID PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	first_name    TEXT NOT NULL DEFAULT '',
	last_name     TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL,
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	id                  UUID PRIMARY KEY,
	name                TEXT NOT NULL,
	description         TEXT NOT NULL DEFAULT '',
	venue               TEXT NOT NULL DEFAULT '',
	manager_id          UUID NOT NULL REFERENCES people(id),
	status              TEXT NOT NULL,
	is_public           BOOLEAN NOT NULL DEFAULT TRUE,
	max_members         INTEGER NOT NULL DEFAULT 0,
	requires_approval   BOOLEAN NOT NULL DEFAULT FALSE,
	max_songs_per_user  INTEGER NOT NULL DEFAULT 0,
	allow_duplicates    BOOLEAN NOT NULL DEFAULT FALSE,
	time_bomb_enabled   BOOLEAN NOT NULL DEFAULT FALSE,
	time_bomb_duration  INTEGER NOT NULL DEFAULT 0,
	start_date          TIMESTAMPTZ NOT NULL,
	end_date            TIMESTAMPTZ NOT NULL,
	last_queue_position INTEGER NOT NULL DEFAULT 0,
	version             INTEGER NOT NULL DEFAULT 1,
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL,
	CHECK (start_date < end_date)
);

CREATE INDEX IF NOT EXISTS events_manager ON events (manager_id);

CREATE TABLE IF NOT EXISTS event_members (
	event_id    UUID NOT NULL REFERENCES events(id) ON DELETE CASCADE,
	user_id     UUID NOT NULL REFERENCES people(id),
	joined_at   TIMESTAMPTZ NOT NULL,
	is_approved BOOLEAN NOT NULL,
	PRIMARY KEY (event_id, user_id)
);

CREATE TABLE IF NOT EXISTS event_participants (
	id          UUID PRIMARY KEY,
	event_id    UUID NOT NULL REFERENCES events(id) ON DELETE CASCADE,
	email       TEXT NOT NULL,
	first_name  TEXT NOT NULL,
	last_name   TEXT NOT NULL,
	is_approved BOOLEAN NOT NULL,
	joined_at   TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS event_participants_identity
	ON event_participants (event_id, lower(email), lower(last_name));

CREATE TABLE IF NOT EXISTS song_requests (
	id                   UUID PRIMARY KEY,
	event_id             UUID NOT NULL REFERENCES events(id) ON DELETE CASCADE,
	requested_by         TEXT NOT NULL,
	title                TEXT NOT NULL,
	artist               TEXT NOT NULL,
	album                TEXT NOT NULL DEFAULT '',
	duration             INTEGER NOT NULL DEFAULT 0,
	external_ids         JSONB NOT NULL DEFAULT '{}',
	message              TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL,
	priority             INTEGER NOT NULL DEFAULT 0,
	queue_position       INTEGER NOT NULL DEFAULT 0,
	like_count           INTEGER NOT NULL DEFAULT 0,
	is_time_bomb         BOOLEAN NOT NULL DEFAULT FALSE,
	time_bomb_expires_at TIMESTAMPTZ,
	approved_by          TEXT NOT NULL DEFAULT '',
	approved_at          TIMESTAMPTZ,
	rejected_by          TEXT NOT NULL DEFAULT '',
	rejected_at          TIMESTAMPTZ,
	rejection_reason     TEXT NOT NULL DEFAULT '',
	played_by            TEXT NOT NULL DEFAULT '',
	played_at            TIMESTAMPTZ,
	play_duration        INTEGER NOT NULL DEFAULT 0,
	skipped_by           TEXT NOT NULL DEFAULT '',
	skipped_at           TIMESTAMPTZ,
	created_at           TIMESTAMPTZ NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS song_requests_event_status ON song_requests (event_id, status);
CREATE INDEX IF NOT EXISTS song_requests_requester ON song_requests (event_id, requested_by);
CREATE INDEX IF NOT EXISTS song_requests_time_bomb ON song_requests (time_bomb_expires_at)
	WHERE is_time_bomb AND status = 'pending';

CREATE TABLE IF NOT EXISTS song_request_likes (
	request_id UUID NOT NULL REFERENCES song_requests(id) ON DELETE CASCADE,
	user_id    TEXT NOT NULL,
	liked_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (request_id, user_id)
);
`

// Migrate applies Schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	s.logger.Info("database schema applied")
	return nil
}
