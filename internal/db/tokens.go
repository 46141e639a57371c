package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/oauth2"

	"github.com/justestif/moodmusic/internal/auth"
)

// TokenRepository stores the OAuth token of the logged-in account.
type TokenRepository struct {
	q querier
}

// Load returns the stored token, or (nil, nil) when none is stored.
func (r *TokenRepository) Load(ctx context.Context) (*oauth2.Token, error) {
	query := `
		SELECT access_token, refresh_token, token_type, expiry
		FROM spotify_tokens
		WHERE id = $1
	`
	var (
		token  oauth2.Token
		expiry *time.Time
	)
	err := r.q.QueryRow(ctx, query, accountID).Scan(
		&token.AccessToken,
		&token.RefreshToken,
		&token.TokenType,
		&expiry,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying token: %w", err)
	}
	if expiry != nil {
		token.Expiry = *expiry
	}
	return &token, nil
}

// Save creates or replaces the stored token.
func (r *TokenRepository) Save(ctx context.Context, token *oauth2.Token) error {
	if token == nil {
		return errors.New("cannot save nil token")
	}

	// A zero expiry means the token never expires
	var expiry *time.Time
	if !token.Expiry.IsZero() {
		expiry = &token.Expiry
	}

	query := `
		INSERT INTO spotify_tokens (id, access_token, refresh_token, token_type, expiry, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_type = EXCLUDED.token_type,
			expiry = EXCLUDED.expiry,
			updated_at = NOW()
	`
	_, err := r.q.Exec(ctx, query,
		accountID,
		token.AccessToken,
		token.RefreshToken,
		token.TokenType,
		expiry,
	)
	if err != nil {
		return fmt.Errorf("upserting token: %w", err)
	}
	return nil
}

// Delete removes the stored token.
func (r *TokenRepository) Delete(ctx context.Context) error {
	query := `DELETE FROM spotify_tokens WHERE id = $1`
	if _, err := r.q.Exec(ctx, query, accountID); err != nil {
		return fmt.Errorf("deleting token: %w", err)
	}
	return nil
}

var _ auth.TokenStore = (*TokenRepository)(nil)
