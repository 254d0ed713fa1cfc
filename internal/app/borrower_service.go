package app

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/goizzi/backoffice-service/internal/domain"
	"github.com/goizzi/backoffice-service/internal/store"
)

// ClearFollowUp resets the follow-up state of a borrower.
func (s *Service) ClearFollowUp(ctx context.Context, borrowerID string) error {
	if err := s.requireStore(); err != nil {
		return err
	}
	borrowerID = trimmed(borrowerID)
	if borrowerID == "" {
		return newValidationError("borrowerId", "Missing borrower id.")
	}

	fields := map[string]any{
		"followUp":      false,
		"followUpCount": 0,
		"followUpAt":    nil,
	}
	if err := s.store.SetMerge(ctx, store.BorrowerPath(borrowerID), fields); err != nil {
		return fmt.Errorf("clear follow-up for %s: %w", borrowerID, err)
	}
	s.publish(ctx, domain.BackofficeEvent{EventType: domain.EventFollowUpCleared, BorrowerID: borrowerID, Changes: fields})
	return nil
}

// maxKycMissingCount is the largest integer a float64 (and a JSON number) holds exactly.
const maxKycMissingCount = 1 << 53

// SetKycMissingCount stores the floor of count. Negative or non-finite counts are rejected
// without touching the store.
func (s *Service) SetKycMissingCount(ctx context.Context, borrowerID string, count float64) error {
	if err := s.requireStore(); err != nil {
		return err
	}
	borrowerID = trimmed(borrowerID)
	if borrowerID == "" {
		return newValidationError("borrowerId", "Missing borrower id.")
	}
	if math.IsNaN(count) || math.IsInf(count, 0) || count < 0 {
		return newValidationError("kycMissingCount", "kycMissingCount must be a non-negative number.")
	}
	if count > maxKycMissingCount {
		return newValidationError("kycMissingCount", "kycMissingCount is too large.")
	}

	fields := map[string]any{"kycMissingCount": int64(math.Floor(count))}
	if err := s.store.SetMerge(ctx, store.BorrowerPath(borrowerID), fields); err != nil {
		return fmt.Errorf("set kyc missing count for %s: %w", borrowerID, err)
	}
	s.publish(ctx, domain.BackofficeEvent{EventType: domain.EventKycMissingUpdated, BorrowerID: borrowerID, Changes: fields})
	return nil
}

// SetGovernmentIDApproval merges isApproved onto a KYC record.
func (s *Service) SetGovernmentIDApproval(ctx context.Context, borrowerID, kycID string, isApproved bool) error {
	if err := s.requireStore(); err != nil {
		return err
	}
	borrowerID, kycID = trimmed(borrowerID), trimmed(kycID)
	if borrowerID == "" || kycID == "" {
		return newValidationError("kycId", "Missing borrower or KYC id.")
	}

	fields := map[string]any{"isApproved": isApproved}
	if err := s.store.SetMerge(ctx, store.KycPath(borrowerID, kycID), fields); err != nil {
		return fmt.Errorf("set approval for kyc %s/%s: %w", borrowerID, kycID, err)
	}
	s.publish(ctx, domain.BackofficeEvent{
		EventType:  domain.EventKycApprovalUpdated,
		BorrowerID: borrowerID,
		SubjectID:  kycID,
		Changes:    fields,
	})
	return nil
}

// ManualChecklistInput replaces the manual verification checklist of an application.
type ManualChecklistInput struct {
	BorrowerID    string   `json:"borrowerId" validate:"required"`
	ApplicationID string   `json:"applicationId" validate:"required"`
	Items         []string `json:"manualVerified"`
	ActorUserID   string   `json:"actorUserId"`
}

var manualChecklistMessages = map[string]string{
	"borrowerId":    "Missing borrower or application id.",
	"applicationId": "Missing borrower or application id.",
}

// ManualChecklistResult is what was stored.
type ManualChecklistResult struct {
	ManualVerified     []string `json:"manualVerified"`
	ManuallyVerifiedBy *string  `json:"manuallyVerifiedBy"`
	UpdatedAt          string   `json:"updatedAt"`
}

// NormalizeChecklist trims items, drops empties and removes duplicates. The first
// occurrence of each item keeps its position.
func NormalizeChecklist(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		v := strings.TrimSpace(item)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func (s *Service) SetManualChecklist(ctx context.Context, input ManualChecklistInput) (*ManualChecklistResult, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	input.BorrowerID, input.ApplicationID = trimmed(input.BorrowerID), trimmed(input.ApplicationID)
	if err := validateInput(input, manualChecklistMessages); err != nil {
		return nil, err
	}

	result := &ManualChecklistResult{
		ManualVerified:     NormalizeChecklist(input.Items),
		ManuallyVerifiedBy: optionalTrimmed(&input.ActorUserID),
		UpdatedAt:          s.timestamp(),
	}
	fields := map[string]any{
		"manualVerified":     result.ManualVerified,
		"manuallyVerifiedBy": nil,
		"updatedAt":          result.UpdatedAt,
	}
	if result.ManuallyVerifiedBy != nil {
		fields["manuallyVerifiedBy"] = *result.ManuallyVerifiedBy
	}
	path := store.ApplicationPath(input.BorrowerID, input.ApplicationID)
	if err := s.store.SetMerge(ctx, path, fields); err != nil {
		return nil, fmt.Errorf("set manual checklist for %s: %w", path, err)
	}
	s.publish(ctx, domain.BackofficeEvent{
		EventType:     domain.EventManualChecklistUpdated,
		BorrowerID:    input.BorrowerID,
		ApplicationID: input.ApplicationID,
		Changes:       fields,
	})
	return result, nil
}

// ReferenceStatusInput sets how a borrower reference responded to contact.
type ReferenceStatusInput struct {
	BorrowerID    string `json:"borrowerId" validate:"required"`
	ReferenceID   string `json:"referenceId" validate:"required"`
	ContactStatus string `json:"contactStatus" validate:"oneof=pending agreed declined no_response"`
}

var referenceStatusMessages = map[string]string{
	"borrowerId":    "Missing borrower or reference id.",
	"referenceId":   "Missing borrower or reference id.",
	"contactStatus": "contactStatus must be a valid value.",
}

func (s *Service) SetReferenceStatus(ctx context.Context, input ReferenceStatusInput) (*domain.Reference, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	input.BorrowerID, input.ReferenceID = trimmed(input.BorrowerID), trimmed(input.ReferenceID)
	input.ContactStatus = strings.ToLower(trimmed(input.ContactStatus))
	if err := validateInput(input, referenceStatusMessages); err != nil {
		return nil, err
	}

	ref := &domain.Reference{
		ReferenceID:   input.ReferenceID,
		ContactStatus: input.ContactStatus,
		UpdatedAt:     s.timestamp(),
	}
	fields := map[string]any{"contactStatus": ref.ContactStatus, "updatedAt": ref.UpdatedAt}
	path := store.ReferencePath(input.BorrowerID, input.ReferenceID)
	if err := s.store.SetMerge(ctx, path, fields); err != nil {
		return nil, fmt.Errorf("set reference status for %s: %w", path, err)
	}
	s.publish(ctx, domain.BackofficeEvent{
		EventType:  domain.EventReferenceStatusUpdated,
		BorrowerID: input.BorrowerID,
		SubjectID:  input.ReferenceID,
		Changes:    fields,
	})
	return ref, nil
}

// GetBorrower reads a borrower document.
func (s *Service) GetBorrower(ctx context.Context, borrowerID string) (*domain.Borrower, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	borrowerID = trimmed(borrowerID)
	if borrowerID == "" {
		return nil, newValidationError("borrowerId", "Missing borrower id.")
	}
	doc, err := s.store.Get(ctx, store.BorrowerPath(borrowerID))
	if err != nil {
		return nil, fmt.Errorf("get borrower %s: %w", borrowerID, err)
	}
	b := domain.BorrowerFromDocument(doc.ID, doc.Data)
	return &b, nil
}

// GetApplication reads a borrower application.
func (s *Service) GetApplication(ctx context.Context, borrowerID, applicationID string) (*domain.Application, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	borrowerID, applicationID = trimmed(borrowerID), trimmed(applicationID)
	if borrowerID == "" || applicationID == "" {
		return nil, newValidationError("applicationId", "Missing borrower or application id.")
	}
	doc, err := s.store.Get(ctx, store.ApplicationPath(borrowerID, applicationID))
	if err != nil {
		return nil, fmt.Errorf("get application %s/%s: %w", borrowerID, applicationID, err)
	}
	a := domain.ApplicationFromDocument(doc.ID, doc.Data)
	return &a, nil
}
