/**
 * @description
 * HTTP router setup for the back-office service using go-chi/chi.
 *
 * @notes
 * - KYC approval, KYC decision and application status are called by trusted
 *   back-office tooling and are gated only on the document store. Every other
 *   borrower and loan route requires a staff session.
 */
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/goizzi/backoffice-service/internal/app"
)

// RouterOptions carries the cross-cutting router settings.
type RouterOptions struct {
	AllowedOrigins []string
	Logger         *logrus.Logger
	Users          *app.UserDirectory
	TrustedProxies TrustedProxies
}

// NewRouter creates the chi router and registers all routes.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	logger := opts.Logger
	if logger == nil {
		logger = h.logger
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}

	r.Use(middleware.RequestID)
	r.Use(RealIP(opts.TrustedProxies))
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: logger, NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.handleHealth)

	r.Post("/session", h.handleCreateSession)
	r.Delete("/session", h.handleDeleteSession)

	r.Post("/borrowers/{borrowerId}/kyc/{kycId}/approval", h.handleKycApproval)
	r.Post("/borrowers/{borrowerId}/kyc/{kycId}/decision", h.handleKycDecision)
	r.Post("/borrowers/{borrowerId}/application/{applicationId}/status", h.handleApplicationStatus)

	r.Group(func(r chi.Router) {
		r.Use(SessionMiddleware(h.sessions))
		r.Use(NameLoaderMiddleware(opts.Users))

		r.Get("/status", h.handleStatus)
		r.Get("/branches", h.handleListBranches)

		r.Get("/borrowers/{borrowerId}", h.handleGetBorrower)
		r.Post("/borrowers/{borrowerId}/follow-up/clear", h.handleClearFollowUp)
		r.Post("/borrowers/{borrowerId}/kyc-missing", h.handleKycMissing)
		r.Get("/borrowers/{borrowerId}/kyc/{kycId}/images", h.handleKycImages)
		r.Get("/borrowers/{borrowerId}/notes", h.handleListBorrowerNotes)
		r.Post("/borrowers/{borrowerId}/notes", h.handleAddBorrowerNote)
		r.Patch("/borrowers/{borrowerId}/notes/{noteId}", h.handleUpdateNoteFlags)
		r.Get("/borrowers/{borrowerId}/application/{applicationId}", h.handleGetApplication)
		r.Post("/borrowers/{borrowerId}/application/{applicationId}/manual-checks", h.handleManualChecks)
		r.Post("/borrowers/{borrowerId}/references/{referenceId}/status", h.handleReferenceStatus)

		r.Post("/loans/{loanId}/notes", h.handleAddLoanNote)
		r.Patch("/loans/{loanId}/notes/{noteId}", h.handleUpdateLoanNoteFlags)
		r.Post("/loans/{loanId}/repayment-schedule/custom", h.handleCustomPayment)
		r.Patch("/loans/{loanId}/repayment-schedule/{scheduleId}/payment", h.handleSchedulePayment)
	})

	return r
}
