package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/justestif/moodmusic/internal/spotify"
)

// TrackRepository caches suggestion lookups.
type TrackRepository struct {
	q querier
}

// GetTrack returns the cached lookup for key, or (nil, nil) when none exists.
func (r *TrackRepository) GetTrack(ctx context.Context, key string) (*spotify.CachedTrack, error) {
	query := `
		SELECT uri, description, fetched_at
		FROM track_lookups
		WHERE query_key = $1
	`
	var track spotify.CachedTrack
	err := r.q.QueryRow(ctx, query, key).Scan(&track.URI, &track.Description, &track.FetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying track lookup: %w", err)
	}
	return &track, nil
}

// PutTrack creates or replaces the cached lookup for key.
func (r *TrackRepository) PutTrack(ctx context.Context, key string, track spotify.CachedTrack) error {
	query := `
		INSERT INTO track_lookups (query_key, uri, description, fetched_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (query_key) DO UPDATE SET
			uri = EXCLUDED.uri,
			description = EXCLUDED.description,
			fetched_at = EXCLUDED.fetched_at
	`
	if _, err := r.q.Exec(ctx, query, key, track.URI, track.Description, track.FetchedAt); err != nil {
		return fmt.Errorf("upserting track lookup: %w", err)
	}
	return nil
}

var _ spotify.TrackCache = (*TrackRepository)(nil)
