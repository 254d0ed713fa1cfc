/**
 * @description
 * Borrower-side records: the borrower document itself, KYC submissions, loan
 * applications and character references.
 */

package domain

import "strings"

// Borrower is the subset of borrower fields the back office reads and mutates.
type Borrower struct {
	BorrowerID      string         `json:"borrowerId"`
	FollowUp        bool           `json:"followUp"`
	FollowUpCount   int64          `json:"followUpCount"`
	FollowUpAt      *string        `json:"followUpAt"`
	KycMissingCount int64          `json:"kycMissingCount"`
	Fields          map[string]any `json:"fields,omitempty"`
}

func BorrowerFromDocument(id string, data map[string]any) Borrower {
	b := Borrower{BorrowerID: id, Fields: data}
	if v, ok := data["followUp"].(bool); ok {
		b.FollowUp = v
	}
	if n, ok := NumberValue(data, "followUpCount"); ok {
		b.FollowUpCount = int64(n)
	}
	if ts := TimestampValue(data, "followUpAt"); ts != "" {
		b.FollowUpAt = &ts
	}
	if n, ok := NumberValue(data, "kycMissingCount"); ok {
		b.KycMissingCount = int64(n)
	}
	return b
}

// KycRecord is a single KYC document submission. Legacy submissions carry
// front/back/primary storage refs instead of the storageRefs list.
type KycRecord struct {
	KycID           string   `json:"kycId"`
	Type            string   `json:"type,omitempty"`
	StorageRefs     []string `json:"storageRefs,omitempty"`
	FrontStorageRef string   `json:"frontStorageRef,omitempty"`
	BackStorageRef  string   `json:"backStorageRef,omitempty"`
	StorageRef      string   `json:"storageRef,omitempty"`
	IsApproved      *bool    `json:"isApproved,omitempty"`
	IsWaived        *bool    `json:"isWaived,omitempty"`
}

func KycRecordFromDocument(id string, data map[string]any) KycRecord {
	return KycRecord{
		KycID:           id,
		Type:            StringValue(data, "type"),
		StorageRefs:     StringSlice(data, "storageRefs"),
		FrontStorageRef: StringValue(data, "frontStorageRef"),
		BackStorageRef:  StringValue(data, "backStorageRef"),
		StorageRef:      StringValue(data, "storageRef"),
		IsApproved:      OptionalBool(data, "isApproved"),
		IsWaived:        OptionalBool(data, "isWaived"),
	}
}

// AllStorageRefs returns front, back, primary and list refs in that order.
func (k KycRecord) AllStorageRefs() []string {
	refs := make([]string, 0, len(k.StorageRefs)+3)
	for _, ref := range []string{k.FrontStorageRef, k.BackStorageRef, k.StorageRef} {
		if ref != "" {
			refs = append(refs, ref)
		}
	}
	return append(refs, k.StorageRefs...)
}

// Application holds the loan application state reviewed by staff.
type Application struct {
	ApplicationID         string          `json:"applicationId"`
	Status                string          `json:"status,omitempty"`
	ManualVerified        []string        `json:"manualVerified"`
	ManuallyVerifiedBy    *string         `json:"manuallyVerifiedBy"`
	StatusUpdatedByName   string          `json:"statusUpdatedByName,omitempty"`
	StatusUpdatedByUserID *string         `json:"statusUpdatedByUserId,omitempty"`
	LastKycDecision       *KycDecisionLog `json:"lastKycDecision,omitempty"`
	UpdatedAt             string          `json:"updatedAt,omitempty"`
}

// KycDecisionLog is the latest decision recorded against an application.
type KycDecisionLog struct {
	KycID           string  `json:"kycId"`
	Action          string  `json:"action"`
	DecidedAt       string  `json:"decidedAt"`
	DecidedByName   string  `json:"decidedByName"`
	DecidedByUserID *string `json:"decidedByUserId,omitempty"`
}

func (d KycDecisionLog) Document() map[string]any {
	doc := map[string]any{
		"kycId":         d.KycID,
		"action":        d.Action,
		"decidedAt":     d.DecidedAt,
		"decidedByName": d.DecidedByName,
	}
	// An absent actor id is written as null so the merge clears the previous one.
	doc["decidedByUserId"] = nil
	putString(doc, "decidedByUserId", d.DecidedByUserID)
	return doc
}

func ApplicationFromDocument(id string, data map[string]any) Application {
	app := Application{
		ApplicationID:         id,
		Status:                StringValue(data, "status"),
		ManualVerified:        StringSlice(data, "manualVerified"),
		ManuallyVerifiedBy:    OptionalString(data, "manuallyVerifiedBy"),
		StatusUpdatedByName:   StringValue(data, "statusUpdatedByName"),
		StatusUpdatedByUserID: OptionalString(data, "statusUpdatedByUserId"),
		UpdatedAt:             TimestampValue(data, "updatedAt"),
	}
	if app.ManualVerified == nil {
		app.ManualVerified = []string{}
	}
	if raw, ok := data["lastKycDecision"].(map[string]any); ok {
		app.LastKycDecision = &KycDecisionLog{
			KycID:           StringValue(raw, "kycId"),
			Action:          StringValue(raw, "action"),
			DecidedAt:       TimestampValue(raw, "decidedAt"),
			DecidedByName:   StringValue(raw, "decidedByName"),
			DecidedByUserID: OptionalString(raw, "decidedByUserId"),
		}
	}
	return app
}

// ApplicationStatus values staff can set on an application.
var ApplicationStatuses = []string{"Reject", "Reviewed", "Approve", "Completed"}

// ReferenceContactStatus values for borrower references.
var ReferenceContactStatuses = []string{"pending", "agreed", "declined", "no_response"}

// KycDecisionAction is the enumerated set of decisions staff can record on a KYC document.
type KycDecisionAction string

const (
	KycDecisionApprove KycDecisionAction = "approve"
	KycDecisionReject  KycDecisionAction = "reject"
	KycDecisionWaive   KycDecisionAction = "waive"
	KycDecisionUnwaive KycDecisionAction = "unwaive"
)

// ParseKycDecisionAction accepts the verb or past-tense form, case-insensitively.
func ParseKycDecisionAction(raw string) (KycDecisionAction, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approve", "approved":
		return KycDecisionApprove, true
	case "reject", "rejected":
		return KycDecisionReject, true
	case "waive", "waived":
		return KycDecisionWaive, true
	case "unwaive", "unwaived":
		return KycDecisionUnwaive, true
	}
	return "", false
}

// PastTense is used in note text, e.g. "approved".
func (a KycDecisionAction) PastTense() string {
	if a == KycDecisionReject {
		return "rejected"
	}
	return string(a) + "d"
}

// KycUpdate is the merge payload a decision writes onto the KYC record.
func (a KycDecisionAction) KycUpdate() map[string]any {
	switch a {
	case KycDecisionApprove:
		return map[string]any{"isApproved": true}
	case KycDecisionReject:
		return map[string]any{"isApproved": false}
	case KycDecisionWaive:
		return map[string]any{"isWaived": true}
	default:
		return map[string]any{"isWaived": false}
	}
}

// kycDocumentLabels name document types in decision notes.
var kycDocumentLabels = map[string]string{
	"government_id":    "Government ID",
	"bank_statement":   "Bank statement",
	"payslip":          "Payslip",
	"property_title":   "Property title",
	"proof_of_billing": "Proof of billing",
	"other":            "Supporting document",
}

// KycDocumentLabel returns the human label for a document type. Decisions are
// recorded against proof of billing unless another type is named.
func KycDocumentLabel(documentType string) string {
	key := strings.ToLower(strings.TrimSpace(documentType))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if label, ok := kycDocumentLabels[key]; ok {
		return label
	}
	return kycDocumentLabels["proof_of_billing"]
}

// Reference is a borrower character reference.
type Reference struct {
	ReferenceID   string `json:"referenceId"`
	ContactStatus string `json:"contactStatus"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
}
