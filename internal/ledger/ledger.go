// Package ledger holds the balance rules shared by invoices and billing records.
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
)

// ErrInvalidAmount is returned for a payment that is zero or negative.
var ErrInvalidAmount = fmt.Errorf("%w: payment amount must be greater than zero", store.ErrValidation)

// ErrAmountPrecision is returned for money with more than two decimal places.
var ErrAmountPrecision = fmt.Errorf("%w: amount must have at most 2 decimal places", store.ErrValidation)

// ErrAmountTooLarge is returned for money beyond MaxAmount.
var ErrAmountTooLarge = fmt.Errorf("%w: amount exceeds the supported maximum", store.ErrValidation)

// MaxAmount is the largest value a NUMERIC(14,2) column holds.
var MaxAmount = decimal.RequireFromString("999999999999.99")

// Result is the outcome of one payment against a balance.
type Result struct {
	PaidAmount decimal.Decimal
	Applied    decimal.Decimal
	Remaining  decimal.Decimal
	Status     domain.PaymentStatus
}

// CheckAmount rejects money with more than two decimal places or a magnitude
// beyond MaxAmount.
func CheckAmount(value decimal.Decimal) error {
	if !value.Equal(value.Round(2)) {
		return ErrAmountPrecision
	}
	if value.Abs().GreaterThan(MaxAmount) {
		return ErrAmountTooLarge
	}
	return nil
}

// ApplyPayment adds amount to paid, capping the balance at total.
func ApplyPayment(total, paid, amount decimal.Decimal) (Result, error) {
	if !amount.IsPositive() {
		return Result{}, ErrInvalidAmount
	}
	if err := CheckAmount(amount); err != nil {
		return Result{}, err
	}
	newPaid := decimal.Min(paid.Add(amount), total)
	if newPaid.LessThan(paid) {
		newPaid = paid
	}
	remaining := total.Sub(newPaid)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return Result{
		PaidAmount: newPaid,
		Applied:    newPaid.Sub(paid),
		Remaining:  remaining,
		Status:     StatusFor(total, newPaid),
	}, nil
}

// StatusFor derives the payment status of a balance. Nothing paid is always
// PENDING; reaching the total is PAID.
func StatusFor(total, paid decimal.Decimal) domain.PaymentStatus {
	switch {
	case paid.GreaterThanOrEqual(total):
		return domain.PaymentStatusPaid
	case paid.IsPositive():
		return domain.PaymentStatusPartiallyPaid
	default:
		return domain.PaymentStatusPending
	}
}
