/**
 * @description
 * Loan repayment schedule entries and the payment history written beneath them.
 *
 * @notes
 * - Amounts are kept as shopspring decimals in memory and persisted as plain JSON
 *   numbers, matching the documents the console already reads.
 */

package domain

import "github.com/shopspring/decimal"

func init() {
	// API clients expect amounts as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	PaymentStatusPaid     = "paid"
	PaymentHistoryPosted  = "posted"
	PaymentHistoryReverse = "reversed"
	ScheduleTypeCustom    = "custom"
)

// PaymentBreakdown splits an amount paid into its components.
type PaymentBreakdown struct {
	PrincipalAmount     decimal.Decimal `json:"principalAmount"`
	InterestAmount      decimal.Decimal `json:"interestAmount"`
	FinanceChargeAmount decimal.Decimal `json:"financeChargeAmount"`
	LateChargeAmount    decimal.Decimal `json:"lateChargeAmount"`
	OtherAmount         decimal.Decimal `json:"otherAmount"`
}

// Total sums every component.
func (b PaymentBreakdown) Total() decimal.Decimal {
	return decimal.Sum(b.PrincipalAmount, b.InterestAmount, b.FinanceChargeAmount, b.LateChargeAmount, b.OtherAmount)
}

func (b PaymentBreakdown) Document() map[string]any {
	return map[string]any{
		"principalAmount":     b.PrincipalAmount.InexactFloat64(),
		"interestAmount":      b.InterestAmount.InexactFloat64(),
		"financeChargeAmount": b.FinanceChargeAmount.InexactFloat64(),
		"lateChargeAmount":    b.LateChargeAmount.InexactFloat64(),
		"otherAmount":         b.OtherAmount.InexactFloat64(),
	}
}

// RepaymentEntry is the view of a schedule entry returned after a payment is posted.
type RepaymentEntry struct {
	ScheduleID            string           `json:"scheduleId"`
	DueDate               string           `json:"dueDate"`
	InstallmentNumber     *int64           `json:"installmentNumber,omitempty"`
	ScheduleType          string           `json:"scheduleType,omitempty"`
	ExpectedPaymentAmount *decimal.Decimal `json:"expectedPaymentAmount,omitempty"`
	AmountPaidAmount      decimal.Decimal  `json:"amountPaidAmount"`
	Breakdown             PaymentBreakdown `json:"breakdown"`
	Remarks               string           `json:"remarks"`
	PaymentStatus         string           `json:"paymentStatus"`
	PaidAt                string           `json:"paidAt"`
	UpdatedAt             string           `json:"updatedAt"`
}
