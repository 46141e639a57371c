package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// refreshBuffer is how long before expiry an access token is refreshed.
const refreshBuffer = 60 * time.Second

var (
	// ErrMissingCredentials is returned when no Spotify client ID or secret is configured.
	ErrMissingCredentials = errors.New("spotify client ID or secret not configured")

	// ErrNotAuthenticated is returned when no usable token is stored.
	ErrNotAuthenticated = errors.New("not authenticated with spotify")

	// ErrRefreshFailed is returned when Spotify rejects the refresh token.
	// Stored tokens are cleared before it is returned.
	ErrRefreshFailed = errors.New("refreshing spotify token failed")
)

// Scopes requested during login.
var Scopes = []string{
	spotifyauth.ScopeUserReadPlaybackState,
	spotifyauth.ScopeUserModifyPlaybackState,
	spotifyauth.ScopeUserReadCurrentlyPlaying,
	spotifyauth.ScopeUserLibraryRead,
}

// CredentialStore persists the Spotify application credentials.
type CredentialStore interface {
	// LoadCredentials returns (nil, nil) when nothing is stored.
	LoadCredentials(ctx context.Context) (*Credentials, error)
	SaveCredentials(ctx context.Context, creds Credentials) error
	DeleteCredentials(ctx context.Context) error
}

// TokenStore persists the OAuth token of the single logged-in account.
type TokenStore interface {
	// Load returns (nil, nil) when nothing is stored.
	Load(ctx context.Context) (*oauth2.Token, error)
	Save(ctx context.Context, token *oauth2.Token) error
	Delete(ctx context.Context) error
}

// Manager owns the credentials and token of the one account the proxy serves.
type Manager struct {
	creds    CredentialStore
	tokens   TokenStore
	endpoint oauth2.Endpoint
	logger   *slog.Logger

	mu      sync.RWMutex
	current Credentials
	token   *oauth2.Token
}

// Option configures a Manager.
type Option func(*Manager)

// WithEndpoint overrides the Spotify accounts endpoint.
func WithEndpoint(e oauth2.Endpoint) Option {
	return func(m *Manager) { m.endpoint = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager backed by the given stores.
func NewManager(creds CredentialStore, tokens TokenStore, opts ...Option) *Manager {
	m := &Manager{
		creds:  creds,
		tokens: tokens,
		endpoint: oauth2.Endpoint{
			AuthURL:  spotifyauth.AuthURL,
			TokenURL: spotifyauth.TokenURL,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load reads stored credentials and token. When nothing is stored, seed
// (typically from the environment) is used without being persisted.
func (m *Manager) Load(ctx context.Context, seed Credentials) error {
	stored, err := m.creds.LoadCredentials(ctx)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	token, err := m.tokens.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading token: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case stored != nil && stored.Complete():
		m.current = *stored
		m.logger.Info("loaded saved spotify credentials")
	case seed.Trimmed().Complete():
		m.current = seed.Trimmed()
		m.logger.Info("using spotify credentials from configuration")
	}
	m.token = token
	return nil
}

// Status reports whether credentials are configured and whether a refresh token is held.
func (m *Manager) Status() (credentialsSet, loggedIn bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Complete(), m.token != nil && m.token.RefreshToken != ""
}

// Credentials returns a copy of the configured credentials.
func (m *Manager) Credentials() Credentials {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// SetCredentials trims, validates and persists new credentials. Any stored token is cleared.
func (m *Manager) SetCredentials(ctx context.Context, clientID, clientSecret string) error {
	creds := Credentials{ClientID: clientID, ClientSecret: clientSecret}.Trimmed()
	if !creds.Complete() {
		return ErrMissingCredentials
	}

	if err := m.creds.SaveCredentials(ctx, creds); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}

	m.mu.Lock()
	m.current = creds
	m.mu.Unlock()

	return m.Logout(ctx)
}

// ClearCredentials removes stored credentials and tokens.
func (m *Manager) ClearCredentials(ctx context.Context) error {
	m.mu.Lock()
	m.current = Credentials{}
	m.mu.Unlock()

	if err := m.creds.DeleteCredentials(ctx); err != nil {
		m.logger.Warn("deleting stored credentials", "error", err)
	}
	return m.Logout(ctx)
}

// Logout drops the token from memory and storage.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.token = nil
	m.mu.Unlock()

	if err := m.tokens.Delete(ctx); err != nil {
		return fmt.Errorf("deleting token: %w", err)
	}
	return nil
}

// AuthURL returns the Spotify consent URL for the given redirect URI and state.
func (m *Manager) AuthURL(redirectURI, state string) (string, error) {
	cfg, err := m.oauthConfig(redirectURI)
	if err != nil {
		return "", err
	}
	return cfg.AuthCodeURL(state), nil
}

// Exchange trades an authorization code for a token and stores it.
func (m *Manager) Exchange(ctx context.Context, redirectURI, code string) error {
	cfg, err := m.oauthConfig(redirectURI)
	if err != nil {
		return err
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchanging code for token: %w", err)
	}

	m.storeToken(ctx, token)
	return nil
}

// Token returns a valid access token, refreshing it when it expires within a minute.
func (m *Manager) Token(ctx context.Context) (*oauth2.Token, error) {
	src, err := m.TokenSource(ctx)
	if err != nil {
		return nil, err
	}

	token, err := src.Token()
	if err != nil {
		if errors.Is(err, ErrRefreshFailed) {
			return nil, fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
		}
		return nil, err
	}
	return token, nil
}

// TokenSource returns a token source that persists refreshed tokens.
func (m *Manager) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	m.mu.RLock()
	token := m.token
	m.mu.RUnlock()

	cfg, err := m.oauthConfig("")
	if err != nil {
		return nil, err
	}
	if token == nil || (token.RefreshToken == "" && !token.Valid()) {
		return nil, ErrNotAuthenticated
	}

	// The inner source starts without an access token so that every call
	// reaching it performs a refresh.
	base := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: token.RefreshToken})
	src := &persistingSource{
		ctx:     context.WithoutCancel(ctx),
		base:    base,
		manager: m,
	}
	return oauth2.ReuseTokenSourceWithExpiry(token, src, refreshBuffer), nil
}

// HTTPClient returns an HTTP client authorized as the logged-in account.
func (m *Manager) HTTPClient(ctx context.Context) (*http.Client, error) {
	src, err := m.TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, src), nil
}

// ForceRefresh marks the current access token expired so the next request refreshes it.
func (m *Manager) ForceRefresh() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == nil {
		return
	}
	expired := *m.token
	expired.Expiry = time.Now().Add(-time.Minute)
	m.token = &expired
}

func (m *Manager) oauthConfig(redirectURI string) (*oauth2.Config, error) {
	creds := m.Credentials()
	if !creds.Complete() {
		return nil, ErrMissingCredentials
	}

	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       Scopes,
		Endpoint:     m.endpoint,
	}, nil
}

func (m *Manager) storeToken(ctx context.Context, token *oauth2.Token) {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()

	// Log but don't fail, the token is usable from memory
	if err := m.tokens.Save(ctx, token); err != nil {
		m.logger.Warn("failed to persist spotify token", "error", err)
	}
}

func (m *Manager) dropToken(ctx context.Context) {
	if err := m.Logout(ctx); err != nil {
		m.logger.Warn("failed to clear spotify token", "error", err)
	}
}

// persistingSource saves every refreshed token and clears storage when
// Spotify refuses the refresh token.
type persistingSource struct {
	ctx     context.Context
	base    oauth2.TokenSource
	manager *Manager
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			s.manager.logger.Error("spotify refused token refresh, clearing tokens", "error", err)
			s.manager.dropToken(s.ctx)
			return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
		}
		return nil, err
	}

	s.manager.logger.Debug("spotify token refreshed", "expiry", token.Expiry)
	s.manager.storeToken(s.ctx, token)
	return token, nil
}

// GenerateState creates a random state string for OAuth.
func GenerateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// RedirectURI joins an origin and base path into the callback URL.
func RedirectURI(origin, basePath string) string {
	return strings.TrimSuffix(origin, "/") + basePath + "/auth/callback"
}
