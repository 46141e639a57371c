package proxyclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/moodmusic/internal/api"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithRetryDelays(time.Millisecond, time.Millisecond, time.Millisecond)}, opts...)
	return New(srv.URL+"/api/plugins/moodmusic/", opts...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestPlay(t *testing.T) {
	var gotPath, gotToken string
	var gotBody api.PlayRequest

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get(csrfHeader)
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		writeJSON(w, http.StatusOK, api.PlayResponse{Success: true, Message: `Playing "A by B"`, TrackURI: "spotify:track:1"})
	}, WithCSRFToken("tok"))

	resp, err := c.Play(context.Background(), api.Suggestion{Title: "A", Artist: "B"})
	require.NoError(t, err)

	assert.Equal(t, "/api/plugins/moodmusic/play", gotPath)
	assert.Equal(t, "tok", gotToken)
	require.NotNil(t, gotBody.Suggestion)
	assert.Equal(t, "A", gotBody.Suggestion.Title)
	assert.Equal(t, "spotify:track:1", resp.TrackURI)
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      api.ErrorResponse
		wantMsg   string
		wantLogin bool
		wantConf  bool
		wantIs    error
	}{
		{
			name:    "not found uses message",
			status:  http.StatusNotFound,
			body:    api.ErrorResponse{Message: `Song "x" by y not found.`},
			wantMsg: `Song "x" by y not found.`,
			wantIs:  api.ErrNotFound,
		},
		{
			name:      "needs login uses error",
			status:    http.StatusUnauthorized,
			body:      api.ErrorResponse{Error: "Authentication required.", NeedsLogin: true},
			wantMsg:   "Authentication required.",
			wantLogin: true,
			wantIs:    api.ErrUnauthorized,
		},
		{
			name:     "needs configuration",
			status:   http.StatusBadRequest,
			body:     api.ErrorResponse{Error: "Spotify credentials not configured.", NeedsConfiguration: true},
			wantMsg:  "Spotify credentials not configured.",
			wantConf: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				writeJSON(w, tt.status, tt.body)
			})

			_, err := c.Play(context.Background(), api.Suggestion{Title: "x"})
			require.Error(t, err)

			var apiErr *api.Error
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
			assert.Equal(t, tt.wantLogin, apiErr.NeedsLogin)
			assert.Equal(t, tt.wantConf, apiErr.NeedsConfiguration)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
			assert.Equal(t, int32(1), calls.Load(), "client errors are not retried")
		})
	}
}

func TestRetriesGatewayErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, api.AuthStatus{LoggedIn: true, CredentialsSet: true})
	})

	status, err := c.AuthStatus(context.Background())
	require.NoError(t, err)

	assert.True(t, status.LoggedIn)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.PlaybackState(context.Background())
	require.Error(t, err)

	var apiErr *api.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Equal(t, "request failed (HTTP 503)", apiErr.Message)
	assert.Equal(t, int32(4), calls.Load())
}

func TestRetryHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, WithRetryDelays(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.PlaybackState(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPlayIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Play(context.Background(), api.Suggestion{Title: "Hurt", Artist: "Johnny Cash"})
	require.Error(t, err)
	_, err = c.PlayLiked(context.Background())
	require.Error(t, err)

	assert.Equal(t, int32(2), calls.Load())
}

func TestTransportErrorRetried(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, WithRetryDelays(time.Millisecond))
	_, err := c.CredentialsStatus(context.Background())

	require.Error(t, err)
	var apiErr *api.Error
	assert.False(t, errors.As(err, &apiErr))
}

func TestConfigMethods(t *testing.T) {
	var methods []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method+" "+r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, api.ConfigStatus{ClientIDSet: true, ClientID: "abcd****"})
		default:
			writeJSON(w, http.StatusOK, api.MessageResponse{Success: true, Message: "ok"})
		}
	})
	ctx := context.Background()

	status, err := c.CredentialsStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.ClientIDSet)

	require.NoError(t, c.SaveCredentials(ctx, "id", "secret"))
	require.NoError(t, c.ClearCredentials(ctx))

	assert.Equal(t, []string{
		"GET /api/plugins/moodmusic/config",
		"POST /api/plugins/moodmusic/config",
		"DELETE /api/plugins/moodmusic/config",
	}, methods)
}
