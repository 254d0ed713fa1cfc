package app

import (
	"context"
	"fmt"

	"github.com/goizzi/backoffice-service/internal/domain"
	"github.com/goizzi/backoffice-service/internal/store"
)

// NoteTypeKycDecision tags notes written by RecordKycDecision.
const NoteTypeKycDecision = "kyc_decision"

// KycDecisionInput records a staff decision on a KYC document.
type KycDecisionInput struct {
	BorrowerID    string `json:"borrowerId" validate:"required"`
	KycID         string `json:"kycId" validate:"required"`
	ApplicationID string `json:"applicationId" validate:"required"`
	Action        string `json:"action" validate:"required"`
	ActorName     string `json:"actorName"`
	ActorUserID   string `json:"actorUserId"`
	DocumentType  string `json:"documentType"`
}

var kycDecisionMessages = map[string]string{
	"borrowerId":    "Missing borrower or KYC id.",
	"kycId":         "Missing borrower or KYC id.",
	"applicationId": "Missing application id.",
	"action":        "Missing action.",
}

// RecordKycDecision applies the decision to the KYC record, stamps the application and
// appends an audit note, all in one commit. It returns the new note.
func (s *Service) RecordKycDecision(ctx context.Context, input KycDecisionInput) (*domain.Note, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	input.BorrowerID, input.KycID = trimmed(input.BorrowerID), trimmed(input.KycID)
	input.ApplicationID, input.Action = trimmed(input.ApplicationID), trimmed(input.Action)
	if err := validateInput(input, kycDecisionMessages); err != nil {
		return nil, err
	}
	action, ok := domain.ParseKycDecisionAction(input.Action)
	if !ok {
		return nil, newValidationError("action", "action must be a valid value.")
	}

	createdAt := s.timestamp()
	actorUserID := optionalTrimmed(&input.ActorUserID)
	actorName := s.users.ResolveActorName(ctx, input.ActorUserID, input.ActorName)
	text := fmt.Sprintf("%s %s.", domain.KycDocumentLabel(input.DocumentType), action.PastTense())

	note := BuildNote(domain.NoteDraft{
		NoteID:          s.newID(),
		Note:            text,
		CreatedAt:       createdAt,
		CreatedByName:   &actorName,
		ApplicationID:   &input.ApplicationID,
		Type:            domain.Ptr(NoteTypeKycDecision),
		CreatedByUserID: actorUserID,
	})
	decision := domain.KycDecisionLog{
		KycID:           input.KycID,
		Action:          string(action),
		DecidedAt:       createdAt,
		DecidedByName:   actorName,
		DecidedByUserID: actorUserID,
	}

	writes := []store.Write{
		{Path: store.BorrowerNotePath(input.BorrowerID, note.NoteID), Fields: note.Document()},
		{
			Path:   store.ApplicationPath(input.BorrowerID, input.ApplicationID),
			Fields: map[string]any{"updatedAt": createdAt, "lastKycDecision": decision.Document()},
			Merge:  true,
		},
		{Path: store.KycPath(input.BorrowerID, input.KycID), Fields: action.KycUpdate(), Merge: true},
	}
	if err := s.store.Commit(ctx, writes); err != nil {
		return nil, fmt.Errorf("record kyc decision %s/%s: %w", input.BorrowerID, input.KycID, err)
	}

	s.publish(ctx, domain.BackofficeEvent{
		EventType:     domain.EventKycDecisionRecorded,
		BorrowerID:    input.BorrowerID,
		ApplicationID: input.ApplicationID,
		SubjectID:     input.KycID,
		Changes:       map[string]any{"action": string(action), "noteId": note.NoteID},
	})
	return &note, nil
}

// ApplicationStatusInput sets the review status of an application with an audit note.
type ApplicationStatusInput struct {
	BorrowerID    string `json:"borrowerId" validate:"required"`
	ApplicationID string `json:"applicationId" validate:"required"`
	Status        string `json:"status" validate:"oneof=Reject Reviewed Approve Completed"`
	ActorName     string `json:"actorName"`
	ActorUserID   string `json:"actorUserId"`
}

var applicationStatusMessages = map[string]string{
	"borrowerId":    "Missing borrower or application id.",
	"applicationId": "Missing borrower or application id.",
	"status":        "status must be a valid value.",
}

// ApplicationStatusResult is returned after a status change.
type ApplicationStatusResult struct {
	Status              string      `json:"status"`
	UpdatedAt           string      `json:"updatedAt"`
	StatusUpdatedByName string      `json:"statusUpdatedByName"`
	Note                domain.Note `json:"note"`
}

func (s *Service) SetApplicationStatus(ctx context.Context, input ApplicationStatusInput) (*ApplicationStatusResult, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	input.BorrowerID, input.ApplicationID = trimmed(input.BorrowerID), trimmed(input.ApplicationID)
	input.Status = trimmed(input.Status)
	if err := validateInput(input, applicationStatusMessages); err != nil {
		return nil, err
	}

	createdAt := s.timestamp()
	actorUserID := optionalTrimmed(&input.ActorUserID)
	actorName := s.users.ResolveActorName(ctx, input.ActorUserID, input.ActorName)
	note := BuildNote(domain.NoteDraft{
		NoteID:          s.newID(),
		Note:            fmt.Sprintf("Status set to %s.", input.Status),
		CreatedAt:       createdAt,
		CreatedByName:   &actorName,
		ApplicationID:   &input.ApplicationID,
		CreatedByUserID: actorUserID,
	})

	appFields := map[string]any{
		"status":                input.Status,
		"updatedAt":             createdAt,
		"statusUpdatedByName":   actorName,
		"statusUpdatedByUserId": nil,
	}
	if actorUserID != nil {
		appFields["statusUpdatedByUserId"] = *actorUserID
	}
	writes := []store.Write{
		{Path: store.BorrowerNotePath(input.BorrowerID, note.NoteID), Fields: note.Document()},
		{Path: store.ApplicationPath(input.BorrowerID, input.ApplicationID), Fields: appFields, Merge: true},
	}
	if err := s.store.Commit(ctx, writes); err != nil {
		return nil, fmt.Errorf("set application status %s/%s: %w", input.BorrowerID, input.ApplicationID, err)
	}

	s.publish(ctx, domain.BackofficeEvent{
		EventType:     domain.EventApplicationStatusSet,
		BorrowerID:    input.BorrowerID,
		ApplicationID: input.ApplicationID,
		Changes:       map[string]any{"status": input.Status, "noteId": note.NoteID},
	})
	return &ApplicationStatusResult{
		Status:              input.Status,
		UpdatedAt:           createdAt,
		StatusUpdatedByName: actorName,
		Note:                note,
	}, nil
}
