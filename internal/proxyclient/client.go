// Package proxyclient is a REST client for the Mood Music proxy.
package proxyclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/justestif/moodmusic/internal/api"
)

const userAgent = "moodmusic-companion/1.0"

// csrfHeader must match the proxy's CSRF header.
const csrfHeader = "X-CSRF-Token"

// errRetryable marks a failure worth retrying.
var errRetryable = errors.New("retryable")

// Client talks to the proxy's HTTP API.
type Client struct {
	baseURL    string
	csrfToken  string
	httpClient *http.Client
	delays     []time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithCSRFToken sends token on every request.
func WithCSRFToken(token string) Option {
	return func(cl *Client) { cl.csrfToken = token }
}

// WithRetryDelays overrides the backoff between retries.
func WithRetryDelays(delays ...time.Duration) Option {
	return func(cl *Client) { cl.delays = delays }
}

// New creates a client for the proxy rooted at baseURL
// (for example http://127.0.0.1:8000/api/plugins/moodmusic).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		delays: []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CredentialsStatus returns the masked credential state.
func (c *Client) CredentialsStatus(ctx context.Context) (*api.ConfigStatus, error) {
	var out api.ConfigStatus
	if err := c.do(ctx, http.MethodGet, "/config", nil, &out); err != nil {
		return nil, fmt.Errorf("fetching credentials status: %w", err)
	}
	return &out, nil
}

// SaveCredentials stores new Spotify application credentials.
func (c *Client) SaveCredentials(ctx context.Context, clientID, clientSecret string) error {
	body := api.ConfigRequest{ClientID: clientID, ClientSecret: clientSecret}
	if err := c.do(ctx, http.MethodPost, "/config", body, nil); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}
	return nil
}

// ClearCredentials removes stored credentials and tokens.
func (c *Client) ClearCredentials(ctx context.Context) error {
	if err := c.do(ctx, http.MethodDelete, "/config", nil, nil); err != nil {
		return fmt.Errorf("clearing credentials: %w", err)
	}
	return nil
}

// AuthStatus reports whether the proxy holds a Spotify login.
func (c *Client) AuthStatus(ctx context.Context) (*api.AuthStatus, error) {
	var out api.AuthStatus
	if err := c.do(ctx, http.MethodGet, "/auth/status", nil, &out); err != nil {
		return nil, fmt.Errorf("fetching auth status: %w", err)
	}
	return &out, nil
}

// PlaybackState returns the current player state.
func (c *Client) PlaybackState(ctx context.Context) (*api.PlaybackState, error) {
	var out api.PlaybackState
	if err := c.do(ctx, http.MethodGet, "/playback/state", nil, &out); err != nil {
		return nil, fmt.Errorf("fetching playback state: %w", err)
	}
	return &out, nil
}

// Play asks the proxy to search for and play a suggestion.
func (c *Client) Play(ctx context.Context, s api.Suggestion) (*api.PlayResponse, error) {
	var out api.PlayResponse
	if err := c.do(ctx, http.MethodPost, "/play", api.PlayRequest{Suggestion: &s}, &out); err != nil {
		return nil, fmt.Errorf("playing suggestion: %w", err)
	}
	return &out, nil
}

// PlayLiked asks the proxy to play the account's liked songs.
func (c *Client) PlayLiked(ctx context.Context) (*api.PlayResponse, error) {
	var out api.PlayResponse
	if err := c.do(ctx, http.MethodPost, "/play/liked", nil, &out); err != nil {
		return nil, fmt.Errorf("playing liked songs: %w", err)
	}
	return &out, nil
}

// do performs a request. GET requests retry transport errors and gateway
// failures with the configured backoff; other methods may already have
// taken effect and are sent once.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= len(c.delays); attempt++ {
		// Wait before retry (skip on first attempt)
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.delays[attempt-1]):
			}
		}

		err := c.doSingleRequest(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		if method != http.MethodGet || !errors.Is(err, errRetryable) || ctx.Err() != nil {
			return err
		}
		lastErr = err
	}

	return lastErr
}

// doSingleRequest performs a single HTTP request.
func (c *Client) doSingleRequest(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.csrfToken != "" {
		req.Header.Set(csrfHeader, c.csrfToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: executing request: %w", errRetryable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody api.ErrorResponse
		_ = json.Unmarshal(data, &errBody)
		apiErr := api.NewError(resp.StatusCode, errBody)
		switch resp.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return fmt.Errorf("%w: %w", errRetryable, apiErr)
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}
