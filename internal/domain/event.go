package domain

import "time"

// Event types published after successful mutations.
const (
	EventFollowUpCleared        = "borrower.follow_up.cleared"
	EventKycMissingUpdated      = "borrower.kyc_missing.updated"
	EventKycApprovalUpdated     = "borrower.kyc.approval_updated"
	EventKycDecisionRecorded    = "borrower.kyc.decision_recorded"
	EventNoteAdded              = "borrower.note.added"
	EventNoteFlagsUpdated       = "borrower.note.flags_updated"
	EventManualChecklistUpdated = "borrower.application.manual_checks_updated"
	EventApplicationStatusSet   = "borrower.application.status_updated"
	EventReferenceStatusUpdated = "borrower.reference.status_updated"
	EventLoanNoteAdded          = "loan.note.added"
	EventLoanNoteFlagsUpdated   = "loan.note.flags_updated"
	EventLoanPaymentPosted      = "loan.repayment.payment_posted"
)

// BackofficeEvent is the message published to the event bus.
type BackofficeEvent struct {
	EventID       string         `json:"event_id"`
	EventType     string         `json:"event_type"`
	BorrowerID    string         `json:"borrower_id,omitempty"`
	LoanID        string         `json:"loan_id,omitempty"`
	ApplicationID string         `json:"application_id,omitempty"`
	SubjectID     string         `json:"subject_id,omitempty"`
	Changes       map[string]any `json:"changes,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}
