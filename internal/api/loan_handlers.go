package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/goizzi/backoffice-service/internal/app"
	"github.com/goizzi/backoffice-service/internal/domain"
)

func (h *Handler) handleAddLoanNote(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	ids, ok := pathParams(r, "loanId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Missing loan id.")
		return
	}
	var body noteRequest
	if !decodeJSON(w, r, &body) {
		writeError(w, http.StatusBadRequest, invalidJSONMessage)
		return
	}
	input := body.input(r)
	input.LoanID = ids[0]

	note, err := h.service.AddLoanNote(r.Context(), input)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to add note.", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"note": note})
}

func (h *Handler) handleUpdateLoanNoteFlags(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	ids, ok := pathParams(r, "loanId", "noteId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Missing loan or note id.")
		return
	}
	var body noteFlagsRequest
	if !decodeJSON(w, r, &body) {
		writeError(w, http.StatusBadRequest, invalidJSONMessage)
		return
	}
	note, err := h.service.UpdateLoanNoteFlags(r.Context(), ids[0], ids[1], body.flags())
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to update loan note.", "Note not found.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"note": note})
}

type paymentRequest struct {
	Action           string                  `json:"action"`
	DueDate          string                  `json:"dueDate"`
	PaidAt           string                  `json:"paidAt"`
	AmountPaidAmount *decimal.Decimal        `json:"amountPaidAmount"`
	Breakdown        domain.PaymentBreakdown `json:"breakdown"`
	Remarks          string                  `json:"remarks"`
}

func (h *Handler) handleSchedulePayment(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	ids, ok := pathParams(r, "loanId", "scheduleId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Missing loan or schedule id.")
		return
	}
	var body paymentRequest
	if !decodeJSON(w, r, &body) {
		writeError(w, http.StatusBadRequest, invalidJSONMessage)
		return
	}
	entry, err := h.service.PostSchedulePayment(r.Context(), app.PaymentInput{
		LoanID:           ids[0],
		ScheduleID:       ids[1],
		Action:           body.Action,
		DueDate:          body.DueDate,
		AmountPaidAmount: body.AmountPaidAmount,
		Breakdown:        body.Breakdown,
		Remarks:          body.Remarks,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to post payment.", "Schedule not found.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"schedule": entry})
}

func (h *Handler) handleCustomPayment(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	ids, ok := pathParams(r, "loanId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Missing loan id.")
		return
	}
	var body paymentRequest
	if !decodeJSON(w, r, &body) {
		writeError(w, http.StatusBadRequest, invalidJSONMessage)
		return
	}
	entry, err := h.service.PostCustomPayment(r.Context(), app.CustomPaymentInput{
		LoanID:           ids[0],
		PaidAt:           body.PaidAt,
		AmountPaidAmount: body.AmountPaidAmount,
		Breakdown:        body.Breakdown,
		Remarks:          body.Remarks,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to post payment.", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"schedule": entry})
}
