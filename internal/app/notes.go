package app

import (
	"context"
	"fmt"

	"github.com/goizzi/backoffice-service/internal/domain"
	"github.com/goizzi/backoffice-service/internal/store"
)

// AddNoteInput creates a free-text note on a borrower or a loan.
type AddNoteInput struct {
	BorrowerID      string
	LoanID          string
	ApplicationID   *string
	Type            *string
	Note            string
	CreatedByName   string
	CreatedByUserID *string
	CallActive      *bool
	IsActive        *bool
	MessageActive   *bool
}

// AddBorrowerNote appends a note under borrowers/{id}/notes. When the note belongs to
// an application, the application's updatedAt is bumped in the same commit.
func (s *Service) AddBorrowerNote(ctx context.Context, input AddNoteInput) (*domain.Note, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	borrowerID := trimmed(input.BorrowerID)
	if borrowerID == "" {
		return nil, newValidationError("borrowerId", "Missing borrower id.")
	}
	text := SanitizeNote(input.Note)
	if text == "" {
		return nil, newValidationError("note", "Note cannot be empty.")
	}

	note := s.buildAuthoredNote(ctx, input, text)
	writes := []store.Write{{Path: store.BorrowerNotePath(borrowerID, note.NoteID), Fields: note.Document()}}
	if note.ApplicationID != nil {
		writes = append(writes, store.Write{
			Path:   store.ApplicationPath(borrowerID, *note.ApplicationID),
			Fields: map[string]any{"updatedAt": note.CreatedAt},
			Merge:  true,
		})
	}
	if err := s.store.Commit(ctx, writes); err != nil {
		return nil, fmt.Errorf("add note for borrower %s: %w", borrowerID, err)
	}

	event := domain.BackofficeEvent{
		EventType:  domain.EventNoteAdded,
		BorrowerID: borrowerID,
		SubjectID:  note.NoteID,
	}
	if note.ApplicationID != nil {
		event.ApplicationID = *note.ApplicationID
	}
	s.publish(ctx, event)
	return &note, nil
}

// AddLoanNote appends a note under loans/{id}/notes.
func (s *Service) AddLoanNote(ctx context.Context, input AddNoteInput) (*domain.Note, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	loanID := trimmed(input.LoanID)
	if loanID == "" {
		return nil, newValidationError("loanId", "Missing loan id.")
	}
	text := SanitizeNote(input.Note)
	if text == "" {
		return nil, newValidationError("note", "Note cannot be empty.")
	}

	input.LoanID = loanID
	note := s.buildAuthoredNote(ctx, input, text)
	if err := s.store.Commit(ctx, []store.Write{{Path: store.LoanNotePath(loanID, note.NoteID), Fields: note.Document()}}); err != nil {
		return nil, fmt.Errorf("add note for loan %s: %w", loanID, err)
	}
	s.publish(ctx, domain.BackofficeEvent{EventType: domain.EventLoanNoteAdded, LoanID: loanID, SubjectID: note.NoteID})
	return &note, nil
}

func (s *Service) buildAuthoredNote(ctx context.Context, input AddNoteInput, text string) domain.Note {
	authorID := optionalTrimmed(input.CreatedByUserID)
	uid := ""
	if authorID != nil {
		uid = *authorID
	}
	name := s.users.ResolveActorName(ctx, uid, input.CreatedByName)

	draft := domain.NoteDraft{
		NoteID:          s.newID(),
		Note:            text,
		CreatedAt:       s.timestamp(),
		CreatedByName:   &name,
		ApplicationID:   optionalTrimmed(input.ApplicationID),
		Type:            optionalTrimmed(input.Type),
		CreatedByUserID: authorID,
		CallActive:      input.CallActive,
		IsActive:        input.IsActive,
		MessageActive:   input.MessageActive,
	}
	if loanID := trimmed(input.LoanID); loanID != "" {
		draft.LoanID = &loanID
		if borrowerID := trimmed(input.BorrowerID); borrowerID != "" {
			draft.BorrowerID = &borrowerID
		}
	}
	return BuildNote(draft)
}

// UpdateNoteFlags merges the provided flags onto an existing borrower note and returns
// the updated note. At least one flag is required; this is checked before any read.
func (s *Service) UpdateNoteFlags(ctx context.Context, borrowerID, noteID string, flags domain.NoteFlags) (*domain.Note, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	borrowerID, noteID = trimmed(borrowerID), trimmed(noteID)
	if borrowerID == "" || noteID == "" {
		return nil, newValidationError("noteId", "Missing borrower or note id.")
	}
	if flags.Empty() {
		return nil, newValidationError("flags", "Missing update fields.")
	}
	note, err := s.updateFlags(ctx, store.BorrowerNotePath(borrowerID, noteID), flags)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, domain.BackofficeEvent{
		EventType:  domain.EventNoteFlagsUpdated,
		BorrowerID: borrowerID,
		SubjectID:  noteID,
		Changes:    flags.Fields(),
	})
	return note, nil
}

// UpdateLoanNoteFlags is UpdateNoteFlags for loan notes.
func (s *Service) UpdateLoanNoteFlags(ctx context.Context, loanID, noteID string, flags domain.NoteFlags) (*domain.Note, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	loanID, noteID = trimmed(loanID), trimmed(noteID)
	if loanID == "" || noteID == "" {
		return nil, newValidationError("noteId", "Missing loan or note id.")
	}
	if flags.Empty() {
		return nil, newValidationError("flags", "Missing update fields.")
	}
	note, err := s.updateFlags(ctx, store.LoanNotePath(loanID, noteID), flags)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, domain.BackofficeEvent{
		EventType: domain.EventLoanNoteFlagsUpdated,
		LoanID:    loanID,
		SubjectID: noteID,
		Changes:   flags.Fields(),
	})
	return note, nil
}

func (s *Service) updateFlags(ctx context.Context, path string, flags domain.NoteFlags) (*domain.Note, error) {
	doc, err := s.store.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("load note %s: %w", path, err)
	}
	fields := flags.Fields()
	if err := s.store.SetMerge(ctx, path, fields); err != nil {
		return nil, fmt.Errorf("update note flags %s: %w", path, err)
	}
	note := domain.NoteFromDocument(doc.ID, store.MergeFields(doc.Data, fields))
	return &note, nil
}

// ListBorrowerNotes returns a borrower's notes, newest first. When applicationID is set
// only notes of that application are returned. Missing author names are filled from
// the staff directory.
func (s *Service) ListBorrowerNotes(ctx context.Context, borrowerID, applicationID string) ([]domain.Note, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	borrowerID = trimmed(borrowerID)
	if borrowerID == "" {
		return nil, newValidationError("borrowerId", "Missing borrower id.")
	}
	opts := store.ListOptions{OrderBy: "createdAt", Descending: true}
	if applicationID = trimmed(applicationID); applicationID != "" {
		opts.WhereField, opts.WhereValue = "applicationId", applicationID
	}
	docs, err := s.store.List(ctx, store.BorrowerNotesCollection(borrowerID), opts)
	if err != nil {
		return nil, fmt.Errorf("list notes for borrower %s: %w", borrowerID, err)
	}
	notes := make([]domain.Note, 0, len(docs))
	for _, doc := range docs {
		notes = append(notes, domain.NoteFromDocument(doc.ID, doc.Data))
	}
	return s.hydrateNoteAuthors(ctx, notes), nil
}

func (s *Service) hydrateNoteAuthors(ctx context.Context, notes []domain.Note) []domain.Note {
	var missing []string
	seen := map[string]struct{}{}
	for _, n := range notes {
		if n.CreatedByName != "" || n.CreatedByUserID == nil {
			continue
		}
		if _, ok := seen[*n.CreatedByUserID]; ok {
			continue
		}
		seen[*n.CreatedByUserID] = struct{}{}
		missing = append(missing, *n.CreatedByUserID)
	}
	if len(missing) == 0 {
		return notes
	}
	names, err := s.users.DisplayNames(ctx, missing)
	if err != nil {
		s.logger.WithField("component", "notes").WithError(err).Warn("author hydration failed")
		return notes
	}
	for i := range notes {
		n := &notes[i]
		if n.CreatedByName != "" || n.CreatedByUserID == nil {
			continue
		}
		if name, ok := names[*n.CreatedByUserID]; ok {
			n.CreatedByName = name
		}
	}
	return notes
}
