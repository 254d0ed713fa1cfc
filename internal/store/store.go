/**
 * @description
 * Document store contract used by the back-office services. Documents are addressed
 * by slash-separated paths ("borrowers/{id}/kyc/{kycId}") in the Firestore layout.
 *
 * @notes
 * - All service writes are merge writes: only the named fields change. Nested maps
 *   are merged field by field, as Firestore does with MergeAll.
 * - Commit applies a group of writes atomically.
 * - The store does not retry; callers see the first failure.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("document not found")

// Document is a stored document and its decoded fields.
type Document struct {
	ID   string
	Path string
	Data map[string]any
}

// Write is one operation of an atomic commit. Merge=false replaces the document.
type Write struct {
	Path   string
	Fields map[string]any
	Merge  bool
}

// ListOptions narrows a collection listing. Only equality filters are supported.
type ListOptions struct {
	WhereField string
	WhereValue any
	OrderBy    string
	Descending bool
	Limit      int
}

// DocumentStore is the adapter over the backing document database.
type DocumentStore interface {
	Get(ctx context.Context, path string) (*Document, error)
	// GetAll returns one entry per path, nil where the document does not exist.
	GetAll(ctx context.Context, paths []string) ([]*Document, error)
	SetMerge(ctx context.Context, path string, fields map[string]any) error
	Commit(ctx context.Context, writes []Write) error
	List(ctx context.Context, collection string, opts ListOptions) ([]*Document, error)
	Close() error
}

// Path helpers for the collections the console uses.

func BorrowerPath(borrowerID string) string {
	return join("borrowers", borrowerID)
}

func KycPath(borrowerID, kycID string) string {
	return join("borrowers", borrowerID, "kyc", kycID)
}

func ApplicationPath(borrowerID, applicationID string) string {
	return join("borrowers", borrowerID, "application", applicationID)
}

func BorrowerNotesCollection(borrowerID string) string {
	return join("borrowers", borrowerID, "notes")
}

func BorrowerNotePath(borrowerID, noteID string) string {
	return join(BorrowerNotesCollection(borrowerID), noteID)
}

func ReferencePath(borrowerID, referenceID string) string {
	return join("borrowers", borrowerID, "references", referenceID)
}

func LoanNotesCollection(loanID string) string {
	return join("loans", loanID, "notes")
}

func LoanNotePath(loanID, noteID string) string {
	return join(LoanNotesCollection(loanID), noteID)
}

func RepaymentSchedulePath(loanID, scheduleID string) string {
	return join("loans", loanID, "repaymentSchedule", scheduleID)
}

func PaymentHistoryPath(loanID, scheduleID, paymentID string) string {
	return join(RepaymentSchedulePath(loanID, scheduleID), "paymentHistory", paymentID)
}

func UserPath(uid string) string {
	return join("users", uid)
}

const BranchesCollection = "branches"

func join(segments ...string) string {
	return strings.Join(segments, "/")
}

// SplitPath returns the parent collection path and the document id.
func SplitPath(path string) (collection, id string, err error) {
	clean := strings.Trim(path, "/")
	segments := strings.Split(clean, "/")
	if clean == "" || len(segments)%2 != 0 {
		return "", "", fmt.Errorf("invalid document path %q", path)
	}
	for _, s := range segments {
		if s == "" {
			return "", "", fmt.Errorf("invalid document path %q", path)
		}
	}
	idx := strings.LastIndex(clean, "/")
	return clean[:idx], clean[idx+1:], nil
}

// MergeFields applies a merge write on top of existing data and returns the result.
// Nested maps merge recursively; every other value replaces the existing one.
func MergeFields(existing, fields map[string]any) map[string]any {
	out := make(map[string]any, len(existing)+len(fields))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range fields {
		incoming, isMap := v.(map[string]any)
		current, wasMap := out[k].(map[string]any)
		if isMap && wasMap {
			out[k] = MergeFields(current, incoming)
			continue
		}
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, item := range typed {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), typed...)
	default:
		return v
	}
}
