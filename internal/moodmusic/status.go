package moodmusic

import (
	"context"
	"log/slog"
)

// StatusCache mirrors the proxy's credential and login state and starts or
// stops the poller when the login state changes.
type StatusCache struct {
	proxy  Proxy
	state  *State
	poller *Poller
	logger *slog.Logger

	// pollCtx outlives the refresh calls and is handed to the poller.
	pollCtx context.Context
}

// NewStatusCache creates a StatusCache.
func NewStatusCache(proxy Proxy, state *State, poller *Poller, logger *slog.Logger) *StatusCache {
	return &StatusCache{proxy: proxy, state: state, poller: poller, logger: logger, pollCtx: context.Background()}
}

// RefreshCredentialsStatus asks the proxy whether credentials are configured.
// Errors count as not configured.
func (c *StatusCache) RefreshCredentialsStatus(ctx context.Context) bool {
	status, err := c.proxy.CredentialsStatus(ctx)
	if err != nil {
		c.logger.Warn("checking credentials status", "error", err)
		c.state.setCredentialsConfigured(false)
		return false
	}

	configured := status.ClientIDSet && status.ClientSecretSet
	c.state.setCredentialsConfigured(configured)
	return configured
}

// RefreshAuthStatus asks the proxy whether it holds a login. Errors count as
// logged out. The poller starts on a false to true edge and stops on a true
// to false edge once no analysis is live.
func (c *StatusCache) RefreshAuthStatus(ctx context.Context) bool {
	loggedIn, configured := false, false
	status, err := c.proxy.AuthStatus(ctx)
	if err != nil {
		c.logger.Warn("checking auth status", "error", err)
	} else {
		loggedIn, configured = status.LoggedIn, status.CredentialsSet
	}

	was := c.state.setAuth(loggedIn, configured)
	switch {
	case !was && loggedIn:
		c.logger.Info("spotify login detected")
		c.EnsurePoller()
	case was && !loggedIn:
		c.logger.Warn("spotify login lost")
		c.state.whenIdle(func() {
			if !c.state.Authenticated() {
				c.poller.Stop()
			}
		})
	}
	return loggedIn
}

// EnsurePoller starts the poller if the extension is active, authenticated
// and configured. Starting a running poller does nothing.
func (c *StatusCache) EnsurePoller() {
	if c.state.Active() && c.state.Authenticated() && c.state.CredentialsConfigured() {
		c.poller.Start(c.pollCtx)
	}
}
