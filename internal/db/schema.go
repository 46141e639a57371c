package db

import (
	"context"
	"fmt"
)

// The credential and token tables hold at most one row, keyed by the
// constant account id.
const accountID = 1

var schema = []string{
	`CREATE TABLE IF NOT EXISTS spotify_credentials (
		id            SMALLINT PRIMARY KEY,
		client_id     TEXT NOT NULL,
		client_secret TEXT NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS spotify_tokens (
		id            SMALLINT PRIMARY KEY,
		access_token  TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		token_type    TEXT NOT NULL,
		expiry        TIMESTAMPTZ,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS track_lookups (
		query_key   TEXT PRIMARY KEY,
		uri         TEXT NOT NULL,
		description TEXT NOT NULL,
		fetched_at  TIMESTAMPTZ NOT NULL
	)`,
}

func migrate(ctx context.Context, q querier) error {
	for _, stmt := range schema {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}
