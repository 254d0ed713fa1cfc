/**
 * @description
 * Note records attached to borrowers and loans. A note is written once; afterwards
 * only its boolean flags may change.
 *
 * @notes
 * - Optional fields are pointers so that "absent" and "zero" stay distinct. Document()
 *   only emits the fields that are set, which keeps merge writes from clobbering
 *   sibling fields with nulls.
 */

package domain

// Note is the canonical audit note record.
type Note struct {
	NoteID          string  `json:"noteId"`
	Note            string  `json:"note"`
	CreatedAt       string  `json:"createdAt"`
	CreatedByName   string  `json:"createdByName"`
	BorrowerID      *string `json:"borrowerId,omitempty"`
	ApplicationID   *string `json:"applicationId,omitempty"`
	LoanID          *string `json:"loanId,omitempty"`
	Type            *string `json:"type,omitempty"`
	CreatedByUserID *string `json:"createdByUserId,omitempty"`
	CallActive      *bool   `json:"callActive,omitempty"`
	IsActive        *bool   `json:"isActive,omitempty"`
	MessageActive   *bool   `json:"messageActive,omitempty"`
	IsSeen          *bool   `json:"isSeen,omitempty"`
}

// NoteDraft is the unnormalized input to the note builder.
type NoteDraft struct {
	NoteID          string
	Note            string
	CreatedAt       string
	CreatedByName   *string
	BorrowerID      *string
	ApplicationID   *string
	LoanID          *string
	Type            *string
	CreatedByUserID *string
	CallActive      *bool
	IsActive        *bool
	MessageActive   *bool
	IsSeen          *bool
}

// NoteFlags carries the mutable flags of a note. Nil means "leave unchanged".
type NoteFlags struct {
	IsActive      *bool `json:"isActive,omitempty"`
	CallActive    *bool `json:"callActive,omitempty"`
	MessageActive *bool `json:"messageActive,omitempty"`
}

// Empty reports whether no flag was provided.
func (f NoteFlags) Empty() bool {
	return f.IsActive == nil && f.CallActive == nil && f.MessageActive == nil
}

// Fields returns the sparse merge payload for the provided flags.
func (f NoteFlags) Fields() map[string]any {
	fields := map[string]any{}
	if f.IsActive != nil {
		fields["isActive"] = *f.IsActive
	}
	if f.CallActive != nil {
		fields["callActive"] = *f.CallActive
	}
	if f.MessageActive != nil {
		fields["messageActive"] = *f.MessageActive
	}
	return fields
}

// Document returns the persisted form of the note. The note id is the document id
// and is stored alongside the other fields.
func (n Note) Document() map[string]any {
	doc := map[string]any{
		"noteId":        n.NoteID,
		"note":          n.Note,
		"createdAt":     n.CreatedAt,
		"createdByName": n.CreatedByName,
	}
	putString(doc, "borrowerId", n.BorrowerID)
	putString(doc, "applicationId", n.ApplicationID)
	putString(doc, "loanId", n.LoanID)
	putString(doc, "type", n.Type)
	putString(doc, "createdByUserId", n.CreatedByUserID)
	putBool(doc, "callActive", n.CallActive)
	putBool(doc, "isActive", n.IsActive)
	putBool(doc, "messageActive", n.MessageActive)
	putBool(doc, "isSeen", n.IsSeen)
	return doc
}

// NoteFromDocument maps stored note data back to a Note. Fields of the wrong type are
// treated as absent.
func NoteFromDocument(id string, data map[string]any) Note {
	n := Note{
		NoteID:        id,
		Note:          StringValue(data, "note"),
		CreatedAt:     TimestampValue(data, "createdAt"),
		CreatedByName: StringValue(data, "createdByName"),
	}
	n.BorrowerID = OptionalString(data, "borrowerId")
	n.ApplicationID = OptionalString(data, "applicationId")
	n.LoanID = OptionalString(data, "loanId")
	n.Type = OptionalString(data, "type")
	n.CreatedByUserID = OptionalString(data, "createdByUserId")
	n.CallActive = OptionalBool(data, "callActive")
	n.IsActive = OptionalBool(data, "isActive")
	n.MessageActive = OptionalBool(data, "messageActive")
	n.IsSeen = OptionalBool(data, "isSeen")
	return n
}

func putString(doc map[string]any, key string, value *string) {
	if value != nil {
		doc[key] = *value
	}
}

func putBool(doc map[string]any, key string, value *bool) {
	if value != nil {
		doc[key] = *value
	}
}
