package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"

	"github.com/justestif/moodmusic/internal/api"
	"github.com/justestif/moodmusic/internal/auth"
	"github.com/justestif/moodmusic/internal/metrics"
)

// Accounts is the single-account credential and token holder.
type Accounts interface {
	Status() (credentialsSet, loggedIn bool)
	Credentials() auth.Credentials
	SetCredentials(ctx context.Context, clientID, clientSecret string) error
	ClearCredentials(ctx context.Context) error
	AuthURL(redirectURI, state string) (string, error)
	Exchange(ctx context.Context, redirectURI, code string) error
	HTTPClient(ctx context.Context) (*http.Client, error)
	ForceRefresh()
}

var _ Accounts = (*auth.Manager)(nil)

// Handlers contains HTTP handlers for the proxy.
type Handlers struct {
	accounts  Accounts
	newPlayer PlayerFactory
	templates *Templates
	basePath  string
	publicURL string
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(accounts Accounts, newPlayer PlayerFactory, templates *Templates, cfg ServerConfig) *Handlers {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		accounts:  accounts,
		newPlayer: newPlayer,
		templates: templates,
		basePath:  cfg.BasePath,
		publicURL: cfg.PublicURL,
		metrics:   cfg.Metrics,
		logger:    logger,
	}
}

// Health reports that the proxy is up (GET /test).
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, api.HealthResponse{
		Status:  "ok",
		Message: "Mood Music proxy is working",
	})
}

// GetConfig returns masked credentials (GET /config).
func (h *Handlers) GetConfig(w http.ResponseWriter, _ *http.Request) {
	creds := h.accounts.Credentials()
	writeJSON(w, http.StatusOK, api.ConfigStatus{
		ClientIDSet:     creds.ClientID != "",
		ClientSecretSet: creds.ClientSecret != "",
		ClientID:        auth.Mask(creds.ClientID),
		ClientSecret:    auth.Mask(creds.ClientSecret),
	})
}

// SaveConfig stores new credentials (POST /config).
func (h *Handlers) SaveConfig(w http.ResponseWriter, r *http.Request) {
	var req api.ConfigRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Message: "Invalid request body: " + err.Error()})
		return
	}

	err := h.accounts.SetCredentials(r.Context(), req.ClientID, req.ClientSecret)
	if errors.Is(err, auth.ErrMissingCredentials) {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Message: "Client ID and Client Secret are required."})
		return
	}
	if err != nil {
		h.logger.Error("saving credentials", "error", err)
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Message: "Failed to save credentials."})
		return
	}

	h.logger.Info("spotify credentials updated")
	writeJSON(w, http.StatusOK, api.MessageResponse{
		Success: true,
		Message: "Credentials saved. Please log in to Spotify again.",
	})
}

// ClearConfig removes credentials and tokens (DELETE /config).
func (h *Handlers) ClearConfig(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.ClearCredentials(r.Context()); err != nil {
		h.logger.Error("clearing credentials", "error", err)
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Message: "Failed to clear credentials."})
		return
	}

	h.logger.Info("spotify credentials cleared")
	writeJSON(w, http.StatusOK, api.MessageResponse{
		Success: true,
		Message: "Credentials cleared.",
	})
}

// AuthStatus reports the login state (GET /auth/status).
func (h *Handlers) AuthStatus(w http.ResponseWriter, _ *http.Request) {
	credentialsSet, loggedIn := h.accounts.Status()
	writeJSON(w, http.StatusOK, api.AuthStatus{
		LoggedIn:       loggedIn,
		CredentialsSet: credentialsSet,
	})
}

// Login initiates the Spotify OAuth flow (GET /auth/login).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	credentialsSet, _ := h.accounts.Status()
	if !credentialsSet {
		h.renderResult(w, http.StatusBadRequest, ResultPageData{
			PageData: PageData{Title: "Configuration Error"},
			Message:  "Spotify Client ID or Secret not configured on the server.",
		})
		return
	}

	state, err := auth.GenerateState()
	if err != nil {
		http.Error(w, "Failed to generate state", http.StatusInternalServerError)
		return
	}

	url, err := h.accounts.AuthURL(h.redirectURI(r), state)
	if err != nil {
		h.logger.Error("building auth URL", "error", err)
		http.Error(w, "Failed to start login", http.StatusInternalServerError)
		return
	}

	setStateCookie(w, h.cookiePath(), state, requestScheme(r) == "https")
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// Callback handles the OAuth callback from Spotify (GET /auth/callback).
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	expected := stateFromRequest(r)
	clearStateCookie(w, h.cookiePath())

	query := r.URL.Query()
	if errMsg := query.Get("error"); errMsg != "" {
		h.logger.Warn("spotify login refused", "error", errMsg)
		h.renderResult(w, http.StatusBadRequest, ResultPageData{
			PageData: PageData{Title: "Spotify Login Error"},
			Message:  "An error occurred:",
			Detail:   errMsg,
		})
		return
	}

	code := query.Get("code")
	if code == "" {
		h.renderResult(w, http.StatusBadRequest, ResultPageData{
			PageData: PageData{Title: "Spotify Login Error"},
			Message:  "No authorization code received from Spotify.",
		})
		return
	}

	state := query.Get("state")
	if expected == "" || subtle.ConstantTimeCompare([]byte(state), []byte(expected)) != 1 {
		h.renderResult(w, http.StatusBadRequest, ResultPageData{
			PageData: PageData{Title: "Spotify Login Error"},
			Message:  "Login state did not match. Please start the login again.",
		})
		return
	}

	if err := h.accounts.Exchange(r.Context(), h.redirectURI(r), code); err != nil {
		h.logger.Error("exchanging authorization code", "error", err)
		h.renderResult(w, http.StatusInternalServerError, ResultPageData{
			PageData: PageData{Title: "Spotify Login Error"},
			Message:  "Failed to exchange authorization code for tokens. Check server logs.",
		})
		return
	}

	h.logger.Info("spotify login successful")
	h.renderResult(w, http.StatusOK, ResultPageData{
		PageData: PageData{Title: "Login Successful"},
		Success:  true,
		Message:  "Spotify login successful. You can now close this window.",
	})
}

// RequireAuth rejects requests until credentials are configured and an account is logged in.
func (h *Handlers) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credentialsSet, loggedIn := h.accounts.Status()
		if !credentialsSet {
			writeJSON(w, http.StatusBadRequest, api.ErrorResponse{
				Error:              "Spotify credentials not configured.",
				NeedsConfiguration: true,
			})
			return
		}
		if !loggedIn {
			writeNeedsLogin(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeNeedsLogin(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{
		Error:      "Authentication required.",
		NeedsLogin: true,
	})
}

func (h *Handlers) renderResult(w http.ResponseWriter, status int, data ResultPageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, "result", data); err != nil {
		h.logger.Error("rendering result page", "error", err)
	}
}

// redirectURI is the OAuth callback as seen by the browser.
func (h *Handlers) redirectURI(r *http.Request) string {
	if h.publicURL != "" {
		return auth.RedirectURI(h.publicURL, h.basePath)
	}
	return auth.RedirectURI(requestScheme(r)+"://"+r.Host, h.basePath)
}

func (h *Handlers) cookiePath() string {
	return h.basePath + "/auth"
}

func requestScheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
