package api

import (
	"net/http"
	"strings"

	"github.com/goizzi/backoffice-service/internal/app"
	"github.com/goizzi/backoffice-service/internal/domain"
)

func (h *Handler) handleClearFollowUp(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	ids, ok := pathParams(r, "borrowerId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Missing borrower id.")
		return
	}
	if err := h.service.ClearFollowUp(r.Context(), ids[0]); err != nil {
		h.writeServiceError(w, r, err, "Failed to clear borrower follow-up.", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleKycMissing(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	ids, ok := pathParams(r, "borrowerId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Missing borrower id.")
		return
	}
	var body struct {
		KycMissingCount interface{} `json:"kycMissingCount"`
	}
	if !decodeJSON(w, r, &body) {
		writeError(w, http.StatusBadRequest, invalidJSONMessage)
		return
	}
	count, isNumber := body.KycMissingCount.(float64)
	if !isNumber {
		writeError(w, http.StatusBadRequest, "kycMissingCount must be a number.")
		return
	}
	if err := h.service.SetKycMissingCount(r.Context(), ids[0], count); err != nil {
		h.writeServiceError(w, r, err, "Failed to update KYC missing count.", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleKycApproval(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	ids, ok := pathParams(r, "borrowerId", "kycId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Missing borrower or KYC id.")
		return
	}
	var body struct {
		IsApproved interface{} `json:"isApproved"`
	}
	if !decodeJSON(w, r, &body) {
		writeError(w, http.StatusBadRequest, invalidJSONMessage)
		return
	}
	approved, isBool := body.IsApproved.(bool)
	if !isBool {
		writeError(w, http.StatusBadRequest, "isApproved must be a boolean.")
		return
	}
	if err := h.service.SetGovernmentIDApproval(r.Context(), ids[0], ids[1], approved); err != nil {
		h.writeServiceError(w, r, err, "Failed to update KYC approval.", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleKycDecision(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	ids, ok := pathParams(r, "borrowerId", "kycId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Missing borrower or KYC id.")
		return
	}
	var body struct {
		ApplicationID string `json:"applicationId"`
		Action        string `json:"action"`
		ActorName     string `json:"actorName"`
		ActorUserID   string `json:"actorUserId"`
		DocumentType  string `json:"documentType"`
	}
	if !decodeJSON(w, r, &body) {
		writeError(w, http.StatusBadRequest, invalidJSONMessage)
		return
	}

	note, err := h.service.RecordKycDecision(r.Context(), app.KycDecisionInput{
		BorrowerID:    ids[0],
		KycID:         ids[1],
		ApplicationID: body.ApplicationID,
		Action:        body.Action,
		ActorName:     body.ActorName,
		ActorUserID:   body.ActorUserID,
		DocumentType:  body.DocumentType,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to update KYC decision.", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"note": note})
}

type noteRequest struct {
	Note            string  `json:"note"`
	BorrowerID      *string `json:"borrowerId"`
	ApplicationID   *string `json:"applicationId"`
	Type            *string `json:"type"`
	CreatedByName   string  `json:"createdByName"`
	CreatedByUserID *string `json:"createdByUserId"`
	CallActive      *bool   `json:"callActive"`
	IsActive        *bool   `json:"isActive"`
	MessageActive   *bool   `json:"messageActive"`
}

// input converts the request, defaulting the author to the signed-in staff member.
func (req noteRequest) input(r *http.Request) app.AddNoteInput {
	authorID := req.CreatedByUserID
	if authorID == nil || strings.TrimSpace(*authorID) == "" {
		if session, ok := StaffSessionFromContext(r.Context()); ok {
			authorID = domain.Ptr(session.UID)
		}
	}
	input := app.AddNoteInput{
		ApplicationID:   req.ApplicationID,
		Type:            req.Type,
		Note:            req.Note,
		CreatedByName:   req.CreatedByName,
		CreatedByUserID: authorID,
		CallActive:      req.CallActive,
		IsActive:        req.IsActive,
		MessageActive:   req.MessageActive,
	}
	if req.BorrowerID != nil {
		input.BorrowerID = *req.BorrowerID
	}
	return input
}

func (h *Handler) handleAddBorrowerNote(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	ids, ok := pathParams(r, "borrowerId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Missing borrower id.")
		return
	}
	var body noteRequest
	if !decodeJSON(w, r, &body) {
		writeError(w, http.StatusBadRequest, invalidJSONMessage)
		return
	}
	input := body.input(r)
	input.BorrowerID = ids[0]

	note, err := h.service.AddBorrowerNote(r.Context(), input)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to add note.", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"note": note})
}

func (h *Handler) handleListBorrowerNotes(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	ids, ok := pathParams(r, "borrowerId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Missing borrower id.")
		return
	}
	notes, err := h.service.ListBorrowerNotes(r.Context(), ids[0], r.URL.Query().Get("applicationId"))
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to load notes.", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notes": notes})
}

type noteFlagsRequest struct {
	IsActive      *bool `json:"isActive"`
	CallActive    *bool `json:"callActive"`
	MessageActive *bool `json:"messageActive"`
}

func (req noteFlagsRequest) flags() domain.NoteFlags {
	return domain.NoteFlags{IsActive: req.IsActive, CallActive: req.CallActive, MessageActive: req.MessageActive}
}

func (h *Handler) handleUpdateNoteFlags(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	ids, ok := pathParams(r, "borrowerId", "noteId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Missing borrower or note id.")
		return
	}
	var body noteFlagsRequest
	if !decodeJSON(w, r, &body) {
		writeError(w, http.StatusBadRequest, invalidJSONMessage)
		return
	}
	note, err := h.service.UpdateNoteFlags(r.Context(), ids[0], ids[1], body.flags())
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to update borrower note.", "Note not found.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"note": note})
}

func (h *Handler) handleManualChecks(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	ids, ok := pathParams(r, "borrowerId", "applicationId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Missing borrower or application id.")
		return
	}
	var body struct {
		ManualVerified interface{} `json:"manualVerified"`
		ActorUserID    string      `json:"actorUserId"`
	}
	if !decodeJSON(w, r, &body) {
		writeError(w, http.StatusBadRequest, invalidJSONMessage)
		return
	}
	items, isList := stringList(body.ManualVerified)
	if !isList {
		writeError(w, http.StatusBadRequest, "manualVerified must be an array of strings.")
		return
	}
	actor := body.ActorUserID
	if strings.TrimSpace(actor) == "" {
		if session, ok := StaffSessionFromContext(r.Context()); ok {
			actor = session.UID
		}
	}

	result, err := h.service.SetManualChecklist(r.Context(), app.ManualChecklistInput{
		BorrowerID:    ids[0],
		ApplicationID: ids[1],
		Items:         items,
		ActorUserID:   actor,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to update manual checks.", "")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// stringList accepts a JSON array whose elements are all strings.
func stringList(raw interface{}) ([]string, bool) {
	list, ok := raw.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func (h *Handler) handleApplicationStatus(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	ids, ok := pathParams(r, "borrowerId", "applicationId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Missing borrower or application id.")
		return
	}
	var body struct {
		Status      string `json:"status"`
		ActorName   string `json:"actorName"`
		ActorUserID string `json:"actorUserId"`
	}
	if !decodeJSON(w, r, &body) {
		writeError(w, http.StatusBadRequest, invalidJSONMessage)
		return
	}
	result, err := h.service.SetApplicationStatus(r.Context(), app.ApplicationStatusInput{
		BorrowerID:    ids[0],
		ApplicationID: ids[1],
		Status:        body.Status,
		ActorName:     body.ActorName,
		ActorUserID:   body.ActorUserID,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to update application status.", "")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleReferenceStatus(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	ids, ok := pathParams(r, "borrowerId", "referenceId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Missing borrower or reference id.")
		return
	}
	var body struct {
		ContactStatus string `json:"contactStatus"`
	}
	if !decodeJSON(w, r, &body) {
		writeError(w, http.StatusBadRequest, invalidJSONMessage)
		return
	}
	ref, err := h.service.SetReferenceStatus(r.Context(), app.ReferenceStatusInput{
		BorrowerID:    ids[0],
		ReferenceID:   ids[1],
		ContactStatus: body.ContactStatus,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to update reference status.", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reference": ref})
}

func (h *Handler) handleGetBorrower(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	ids, ok := pathParams(r, "borrowerId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Missing borrower id.")
		return
	}
	borrower, err := h.service.GetBorrower(r.Context(), ids[0])
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to load borrower.", "Borrower not found.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"borrower": borrower})
}

func (h *Handler) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	ids, ok := pathParams(r, "borrowerId", "applicationId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Missing borrower or application id.")
		return
	}
	application, err := h.service.GetApplication(r.Context(), ids[0], ids[1])
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to load application.", "Application not found.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"application": application})
}

func (h *Handler) handleKycImages(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	ids, ok := pathParams(r, "borrowerId", "kycId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Missing borrower or KYC id.")
		return
	}
	images, err := h.service.SignKycImages(r.Context(), ids[0], ids[1])
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to fetch KYC images.", "KYC record not found.")
		return
	}
	urls := make([]string, len(images))
	for i, img := range images {
		urls[i] = img.URL
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"urls": urls, "items": images})
}
