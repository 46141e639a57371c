package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/justestif/moodmusic/internal/auth"
)

// CredentialRepository stores the Spotify application credentials.
type CredentialRepository struct {
	q querier
}

// LoadCredentials returns the stored credentials, or (nil, nil) when none are stored.
func (r *CredentialRepository) LoadCredentials(ctx context.Context) (*auth.Credentials, error) {
	query := `SELECT client_id, client_secret FROM spotify_credentials WHERE id = $1`

	var creds auth.Credentials
	err := r.q.QueryRow(ctx, query, accountID).Scan(&creds.ClientID, &creds.ClientSecret)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}
	return &creds, nil
}

// SaveCredentials creates or replaces the stored credentials.
func (r *CredentialRepository) SaveCredentials(ctx context.Context, creds auth.Credentials) error {
	query := `
		INSERT INTO spotify_credentials (id, client_id, client_secret, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			client_id = EXCLUDED.client_id,
			client_secret = EXCLUDED.client_secret,
			updated_at = NOW()
	`
	if _, err := r.q.Exec(ctx, query, accountID, creds.ClientID, creds.ClientSecret); err != nil {
		return fmt.Errorf("upserting credentials: %w", err)
	}
	return nil
}

// DeleteCredentials removes the stored credentials.
func (r *CredentialRepository) DeleteCredentials(ctx context.Context) error {
	query := `DELETE FROM spotify_credentials WHERE id = $1`
	if _, err := r.q.Exec(ctx, query, accountID); err != nil {
		return fmt.Errorf("deleting credentials: %w", err)
	}
	return nil
}

var _ auth.CredentialStore = (*CredentialRepository)(nil)
