/**
 * @description
 * Pure helpers that normalise free text and assemble canonical note records.
 */

package app

import (
	"strings"

	"github.com/goizzi/backoffice-service/internal/domain"
)

// UnknownStaffName is recorded when no author name can be resolved.
const UnknownStaffName = "Unknown staff"

// SanitizeName trims the name and falls back to UnknownStaffName when nothing is left.
func SanitizeName(name string) string {
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		return trimmed
	}
	return UnknownStaffName
}

// SanitizeNote trims surrounding whitespace. Empty text is allowed here; callers
// that require content reject it themselves.
func SanitizeNote(text string) string {
	return strings.TrimSpace(text)
}

// BuildNote produces the canonical note for a draft. Optional fields are carried
// over only when set, so Note.Document() stays sparse.
func BuildNote(draft domain.NoteDraft) domain.Note {
	name := ""
	if draft.CreatedByName != nil {
		name = *draft.CreatedByName
	}
	return domain.Note{
		NoteID:          draft.NoteID,
		Note:            SanitizeNote(draft.Note),
		CreatedAt:       draft.CreatedAt,
		CreatedByName:   SanitizeName(name),
		BorrowerID:      copyString(draft.BorrowerID),
		ApplicationID:   copyString(draft.ApplicationID),
		LoanID:          copyString(draft.LoanID),
		Type:            copyString(draft.Type),
		CreatedByUserID: copyString(draft.CreatedByUserID),
		CallActive:      copyBool(draft.CallActive),
		IsActive:        copyBool(draft.IsActive),
		MessageActive:   copyBool(draft.MessageActive),
		IsSeen:          copyBool(draft.IsSeen),
	}
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyBool(v *bool) *bool {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
