/**
 * @description
 * Posting payments against loan repayment schedules. Every payment writes an entry to
 * the schedule's paymentHistory and merges the paid state onto the schedule entry in
 * one commit. Editing a posted payment first writes a reversal of the previous one.
 *
 * @dependencies
 * - github.com/shopspring/decimal: exact comparison of the breakdown against the amount paid.
 */

package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/goizzi/backoffice-service/internal/domain"
	"github.com/goizzi/backoffice-service/internal/store"
)

const (
	PaymentActionApply = "apply"
	PaymentActionEdit  = "edit"
)

// PaymentInput posts or edits the payment of one schedule entry.
type PaymentInput struct {
	LoanID           string
	ScheduleID       string
	Action           string
	DueDate          string
	AmountPaidAmount *decimal.Decimal
	Breakdown        domain.PaymentBreakdown
	Remarks          string
}

// CustomPaymentInput records a payment that does not belong to a scheduled installment.
type CustomPaymentInput struct {
	LoanID           string
	PaidAt           string
	AmountPaidAmount *decimal.Decimal
	Breakdown        domain.PaymentBreakdown
	Remarks          string
}

func checkBreakdown(amount *decimal.Decimal, breakdown domain.PaymentBreakdown) error {
	if amount == nil {
		return newValidationError("amountPaidAmount", "Amount paid is required.")
	}
	if !breakdown.Total().Equal(*amount) {
		return newValidationError("breakdown", "Breakdown must equal amount paid.")
	}
	return nil
}

// normalizeDate returns value as YYYY-MM-DD when it parses as a date or timestamp.
func normalizeDate(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC().Format("2006-01-02"), true
		}
	}
	return "", false
}

func (s *Service) PostSchedulePayment(ctx context.Context, input PaymentInput) (*domain.RepaymentEntry, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	loanID, scheduleID := trimmed(input.LoanID), trimmed(input.ScheduleID)
	if loanID == "" || scheduleID == "" {
		return nil, newValidationError("scheduleId", "Missing loan or schedule id.")
	}
	action := strings.ToLower(trimmed(input.Action))
	if action == "" {
		action = PaymentActionApply
	}
	if action != PaymentActionApply && action != PaymentActionEdit {
		return nil, newValidationError("action", "action must be apply or edit.")
	}
	if err := checkBreakdown(input.AmountPaidAmount, input.Breakdown); err != nil {
		return nil, err
	}

	schedulePath := store.RepaymentSchedulePath(loanID, scheduleID)
	doc, err := s.store.Get(ctx, schedulePath)
	if err != nil {
		return nil, fmt.Errorf("load schedule %s: %w", schedulePath, err)
	}
	existingPaymentID := domain.StringValue(doc.Data, "paymentId")
	if action == PaymentActionApply && existingPaymentID != "" {
		return nil, newValidationError("action", "Payment already applied. Edit instead.")
	}
	if action == PaymentActionEdit && existingPaymentID == "" {
		return nil, newValidationError("action", "No existing payment to edit.")
	}

	updatedAt := s.timestamp()
	dueDate, ok := normalizeDate(input.DueDate)
	if !ok {
		dueDate = domain.StringValue(doc.Data, "dueDate")
		if dueDate == "" {
			dueDate = domain.DateOnly(updatedAt)
		}
	}

	var writes []store.Write
	if action == PaymentActionEdit {
		reversal := map[string]any{
			"status":              domain.PaymentHistoryReverse,
			"amountPaidAmount":    0,
			"breakdown":           map[string]any{},
			"remarks":             domain.StringValue(doc.Data, "remarks"),
			"createdAt":           updatedAt,
			"reversalOfPaymentId": existingPaymentID,
		}
		if prev, ok := doc.Data["amountPaidAmount"]; ok {
			reversal["amountPaidAmount"] = prev
		}
		if prev, ok := doc.Data["breakdown"].(map[string]any); ok {
			reversal["breakdown"] = prev
		}
		writes = append(writes, store.Write{
			Path:   store.PaymentHistoryPath(loanID, scheduleID, s.newID()),
			Fields: reversal,
		})
	}

	paymentID := s.newID()
	amount := input.AmountPaidAmount.InexactFloat64()
	remarks := input.Remarks
	writes = append(writes,
		store.Write{
			Path: store.PaymentHistoryPath(loanID, scheduleID, paymentID),
			Fields: map[string]any{
				"status":           domain.PaymentHistoryPosted,
				"amountPaidAmount": amount,
				"breakdown":        input.Breakdown.Document(),
				"remarks":          remarks,
				"createdAt":        updatedAt,
			},
		},
		store.Write{
			Path: schedulePath,
			Fields: map[string]any{
				"dueDate":          dueDate,
				"amountPaidAmount": amount,
				"breakdown":        input.Breakdown.Document(),
				"remarks":          remarks,
				"paymentStatus":    domain.PaymentStatusPaid,
				"paymentId":        paymentID,
				"paidAt":           updatedAt,
				"updatedAt":        updatedAt,
			},
			Merge: true,
		},
	)
	if err := s.store.Commit(ctx, writes); err != nil {
		return nil, fmt.Errorf("post payment for %s: %w", schedulePath, err)
	}

	entry := &domain.RepaymentEntry{
		ScheduleID:       scheduleID,
		DueDate:          dueDate,
		ScheduleType:     domain.StringValue(doc.Data, "scheduleType"),
		AmountPaidAmount: *input.AmountPaidAmount,
		Breakdown:        input.Breakdown,
		Remarks:          remarks,
		PaymentStatus:    domain.PaymentStatusPaid,
		PaidAt:           updatedAt,
		UpdatedAt:        updatedAt,
	}
	if n, ok := domain.NumberValue(doc.Data, "installmentNumber"); ok {
		v := int64(n)
		entry.InstallmentNumber = &v
	}
	if n, ok := domain.NumberValue(doc.Data, "expectedPaymentAmount"); ok {
		v := decimal.NewFromFloat(n)
		entry.ExpectedPaymentAmount = &v
	}

	s.publish(ctx, domain.BackofficeEvent{
		EventType: domain.EventLoanPaymentPosted,
		LoanID:    loanID,
		SubjectID: scheduleID,
		Changes:   map[string]any{"action": action, "paymentId": paymentID, "amountPaidAmount": amount},
	})
	return entry, nil
}

// PostCustomPayment creates a custom schedule entry carrying the payment.
func (s *Service) PostCustomPayment(ctx context.Context, input CustomPaymentInput) (*domain.RepaymentEntry, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	loanID := trimmed(input.LoanID)
	if loanID == "" {
		return nil, newValidationError("loanId", "Missing loan id.")
	}
	if err := checkBreakdown(input.AmountPaidAmount, input.Breakdown); err != nil {
		return nil, err
	}

	now := s.now()
	updatedAt := domain.FormatTimestamp(now)
	paidAt, ok := normalizeDate(input.PaidAt)
	if !ok {
		paidAt = domain.DateOnly(updatedAt)
	}
	scheduleID := fmt.Sprintf("custom-%d", now.UnixMilli())
	paymentID := s.newID()
	amount := input.AmountPaidAmount.InexactFloat64()

	writes := []store.Write{
		{
			Path: store.PaymentHistoryPath(loanID, scheduleID, paymentID),
			Fields: map[string]any{
				"status":           domain.PaymentHistoryPosted,
				"amountPaidAmount": amount,
				"breakdown":        input.Breakdown.Document(),
				"remarks":          input.Remarks,
				"createdAt":        updatedAt,
			},
		},
		{
			Path: store.RepaymentSchedulePath(loanID, scheduleID),
			Fields: map[string]any{
				"scheduleType":     domain.ScheduleTypeCustom,
				"dueDate":          paidAt,
				"amountPaidAmount": amount,
				"breakdown":        input.Breakdown.Document(),
				"remarks":          input.Remarks,
				"paymentStatus":    domain.PaymentStatusPaid,
				"paymentId":        paymentID,
				"paidAt":           paidAt,
				"updatedAt":        updatedAt,
			},
			Merge: true,
		},
	}
	if err := s.store.Commit(ctx, writes); err != nil {
		return nil, fmt.Errorf("post custom payment for loan %s: %w", loanID, err)
	}

	s.publish(ctx, domain.BackofficeEvent{
		EventType: domain.EventLoanPaymentPosted,
		LoanID:    loanID,
		SubjectID: scheduleID,
		Changes:   map[string]any{"action": "custom", "paymentId": paymentID, "amountPaidAmount": amount},
	})
	return &domain.RepaymentEntry{
		ScheduleID:       scheduleID,
		DueDate:          paidAt,
		ScheduleType:     domain.ScheduleTypeCustom,
		AmountPaidAmount: *input.AmountPaidAmount,
		Breakdown:        input.Breakdown,
		Remarks:          input.Remarks,
		PaymentStatus:    domain.PaymentStatusPaid,
		PaidAt:           paidAt,
		UpdatedAt:        updatedAt,
	}, nil
}
