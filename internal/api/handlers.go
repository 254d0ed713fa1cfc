/**
 * @description
 * HTTP handlers for the back-office API. Handlers translate requests into
 * internal/app calls and map service errors to status codes. Every error body has
 * the shape {"error": "..."}.
 */
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/goizzi/backoffice-service/internal/app"
	"github.com/goizzi/backoffice-service/internal/domain"
)

const (
	credentialsMessage = "Firebase Admin credentials are not configured."
	invalidJSONMessage = "Invalid JSON payload."
	maxBodyBytes       = 1 << 20
)

// Handler holds the services the HTTP handlers interact with.
type Handler struct {
	service          *app.Service
	sessions         *app.SessionService
	limiter          app.RateLimiter
	branches         *app.BranchDirectory
	logger           *logrus.Logger
	secureCookies    bool
	sessionRateLimit int
}

// HandlerOptions wires a Handler.
type HandlerOptions struct {
	Service          *app.Service
	Sessions         *app.SessionService
	Limiter          app.RateLimiter
	Branches         *app.BranchDirectory
	Logger           *logrus.Logger
	SecureCookies    bool
	SessionRateLimit int
}

func NewHandler(opts HandlerOptions) *Handler {
	limiter := opts.Limiter
	if limiter == nil {
		limiter = app.NewMemoryRateLimiter()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		service:          opts.Service,
		sessions:         opts.Sessions,
		limiter:          limiter,
		branches:         opts.Branches,
		logger:           logger,
		secureCookies:    opts.SecureCookies,
		sessionRateLimit: opts.SessionRateLimit,
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(dst) == nil
}

// pathParams returns the trimmed URL params, or false when any of them is blank.
func pathParams(r *http.Request, names ...string) ([]string, bool) {
	values := make([]string, len(names))
	for i, name := range names {
		values[i] = strings.TrimSpace(chi.URLParam(r, name))
		if values[i] == "" {
			return nil, false
		}
	}
	return values, true
}

// requireStore writes the credentials error when the document store is missing.
func (h *Handler) requireStore(w http.ResponseWriter) bool {
	if h.service == nil || !h.service.Configured() {
		writeError(w, http.StatusInternalServerError, credentialsMessage)
		return false
	}
	return true
}

// writeServiceError maps err to a response. failure is the generic 500 message and
// notFound the 404 message of the operation.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, failure, notFound string) {
	if verr, ok := app.AsValidationError(err); ok {
		writeError(w, http.StatusBadRequest, verr.Message)
		return
	}
	switch {
	case errors.Is(err, app.ErrNotConfigured):
		writeError(w, http.StatusInternalServerError, credentialsMessage)
	case errors.Is(err, app.ErrNotFound) && notFound != "":
		writeError(w, http.StatusNotFound, notFound)
	case errors.Is(err, app.ErrStaffNotFound):
		writeError(w, http.StatusForbidden, app.ErrStaffNotFound.Error())
	case errors.Is(err, app.ErrSignerNotConfigured):
		writeError(w, http.StatusInternalServerError, "KYC image storage is not configured.")
	default:
		h.logger.WithFields(logrus.Fields{
			"component": "api",
			"method":    r.Method,
			"path":      r.URL.Path,
		}).WithError(err).Error(failure)
		writeError(w, http.StatusInternalServerError, failure)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{"status": "ok", "branchesCached": 0}
	if h.branches != nil {
		body["branchesCached"] = h.branches.Count()
	}
	if h.service == nil || !h.service.Configured() {
		body["warning"] = credentialsMessage
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) handleListBranches(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	branches := []domain.Branch{}
	if h.branches != nil {
		branches = h.branches.List()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"branches": branches})
}
