package web

import (
	"net/http"
	"time"
)

const (
	stateCookieName = "oauth_state"
	stateTTL        = 5 * time.Minute
)

// setStateCookie stores the OAuth state for validation on callback.
func setStateCookie(w http.ResponseWriter, path, state string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     path,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(stateTTL.Seconds()),
	})
}

// stateFromRequest returns the stored OAuth state, or "" when absent.
func stateFromRequest(r *http.Request) string {
	c, err := r.Cookie(stateCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func clearStateCookie(w http.ResponseWriter, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     path,
		HttpOnly: true,
		MaxAge:   -1,
	})
}
