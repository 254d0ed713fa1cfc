package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/goizzi/backoffice-service/internal/app"
)

const sessionRateLimitScope = "session_login"

func (h *Handler) sessionCookie(value string, maxAge time.Duration) *http.Cookie {
	cookie := &http.Cookie{
		Name:     app.SessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge > 0 {
		cookie.MaxAge = int(maxAge.Seconds())
	} else {
		cookie.MaxAge = -1
	}
	return cookie
}

// handleCreateSession exchanges a Firebase ID token for the session cookie.
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	log := h.logger.WithFields(logrus.Fields{"component": "session", "client_ip": clientIP(r)})

	if h.sessionRateLimit > 0 {
		count, retryAfter, err := h.limiter.ConsumeRateLimit(r.Context(), sessionRateLimitScope, clientIP(r), h.sessionRateLimit, time.Minute)
		if err != nil {
			log.WithError(err).Warn("rate limiter unavailable; allowing request")
		} else if count > h.sessionRateLimit {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, app.ErrRateLimited.Error())
			return
		}
	}

	var body struct {
		IDToken interface{} `json:"idToken"`
	}
	if !decodeJSON(w, r, &body) {
		writeError(w, http.StatusBadRequest, invalidJSONMessage)
		return
	}
	idToken, _ := body.IDToken.(string)
	if idToken = strings.TrimSpace(idToken); idToken == "" {
		writeError(w, http.StatusBadRequest, "Missing id token.")
		return
	}
	if h.sessions == nil {
		writeError(w, http.StatusInternalServerError, credentialsMessage)
		return
	}

	cookie, err := h.sessions.CreateSessionCookie(r.Context(), idToken)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrStaffNotFound):
			writeError(w, http.StatusForbidden, app.ErrStaffNotFound.Error())
		case errors.Is(err, app.ErrNotConfigured):
			writeError(w, http.StatusInternalServerError, credentialsMessage)
		default:
			log.WithError(err).Warn("session creation failed")
			writeError(w, http.StatusInternalServerError, "Failed to create session.")
		}
		return
	}

	http.SetCookie(w, h.sessionCookie(cookie, h.sessions.MaxAge()))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDeleteSession clears the session cookie.
func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(app.SessionCookieName); err == nil && h.sessions != nil {
		h.sessions.Invalidate(r.Context(), cookie.Value)
	}
	http.SetCookie(w, h.sessionCookie("", 0))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
