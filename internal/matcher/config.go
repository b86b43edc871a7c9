// Package matcher pairs bank transactions with ledger entries.
//
// Matching is greedy and deterministic. Transactions are visited in
// ascending date order and each one takes the nearest remaining ledger entry
// inside the tolerance window:
//   - dates at most Tolerance.DateDays apart
//   - amounts within Tolerance.AmountAbs, or within Tolerance.AmountPct of
//     the transaction amount
//   - counterparty names equal (case and accent insensitive) when both
//     sides carry one
//
// Candidates are ranked by date delta, then amount delta, then ledger entry
// date and ID. A selected entry leaves the pool, so no ledger entry is
// matched twice. Unmatched items are a normal outcome and end up in the
// BankOnly and LedgerOnly partitions; matching never returns an error for
// them.
//
// Example usage:
//
//	tol := matcher.DefaultTolerance()
//	tol.DateDays = 3
//
//	m, err := matcher.New(tol, log)
//	report := m.Match(statement.Transactions, entries)
package matcher

import (
	"fmt"

	"github.com/shopspring/decimal"

	"statement-reconciler/internal/models"
)

// Tolerance is the matching window between a transaction and a ledger entry.
type Tolerance struct {
	// DateDays is the maximum distance in calendar days between the
	// transaction value date and the ledger entry date.
	DateDays int `json:"date_days" mapstructure:"date_days"`

	// AmountAbs is the maximum absolute amount difference.
	AmountAbs decimal.Decimal `json:"amount_abs" mapstructure:"amount_abs"`

	// AmountPct is the maximum amount difference as a fraction of the
	// transaction amount (0.005 = 0.5%). Zero disables it.
	AmountPct decimal.Decimal `json:"amount_pct" mapstructure:"amount_pct"`

	// SignedAmounts compares signed amounts. When false, magnitudes are
	// compared: receivable and payable residuals carry the opposite sign of
	// the bank movement settling them.
	SignedAmounts bool `json:"signed_amounts" mapstructure:"signed_amounts"`

	// IgnoreCounterparty waives the counterparty constraint entirely.
	IgnoreCounterparty bool `json:"ignore_counterparty" mapstructure:"ignore_counterparty"`
}

// DefaultTolerance returns a three day, one cent window
func DefaultTolerance() Tolerance {
	return Tolerance{
		DateDays:  3,
		AmountAbs: decimal.New(1, -2),
		AmountPct: decimal.Zero,
	}
}

// StrictTolerance only accepts same-day, same-amount pairs
func StrictTolerance() Tolerance {
	return Tolerance{
		DateDays:  0,
		AmountAbs: decimal.Zero,
		AmountPct: decimal.Zero,
	}
}

// RelaxedTolerance accepts a week of delay and half a percent of difference
func RelaxedTolerance() Tolerance {
	return Tolerance{
		DateDays:  7,
		AmountAbs: decimal.New(5, -2),
		AmountPct: decimal.New(5, -3),
	}
}

// Validate checks if the tolerance is usable
func (t Tolerance) Validate() error {
	if t.DateDays < 0 {
		return fmt.Errorf("date tolerance days cannot be negative: %d", t.DateDays)
	}

	if t.AmountAbs.IsNegative() {
		return fmt.Errorf("absolute amount tolerance cannot be negative: %s", t.AmountAbs)
	}

	if t.AmountPct.IsNegative() || t.AmountPct.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("amount tolerance fraction must be between 0 and 1: %s", t.AmountPct)
	}

	return nil
}

// AmountWindow returns the largest accepted amount difference for amount
func (t Tolerance) AmountWindow(amount decimal.Decimal) decimal.Decimal {
	pct := amount.Abs().Mul(t.AmountPct)
	if pct.GreaterThan(t.AmountAbs) {
		return pct
	}
	return t.AmountAbs
}

// WithinAmount reports whether delta is inside the amount window of amount
func (t Tolerance) WithinAmount(amount, delta decimal.Decimal) bool {
	return delta.Abs().LessThanOrEqual(t.AmountWindow(amount))
}

// String returns a human-readable description of the tolerance
func (t Tolerance) String() string {
	return fmt.Sprintf("Tolerance{DateDays: %d, AmountAbs: %s, AmountPct: %s, Signed: %t}",
		t.DateDays, t.AmountAbs.String(), t.AmountPct.String(), t.SignedAmounts)
}

// NetAmount is the amount a ledger entry contributes: debit minus credit when
// either is set, else the residual.
func NetAmount(e models.LedgerEntry) decimal.Decimal {
	if !e.Debit.IsZero() || !e.Credit.IsZero() {
		return e.Debit.Sub(e.Credit)
	}
	return e.Residual
}

// amounts returns the amounts compared under the tolerance sign mode
func (t Tolerance) amounts(tx models.Transaction, e models.LedgerEntry) (decimal.Decimal, decimal.Decimal) {
	a, b := tx.Amount, NetAmount(e)
	if !t.SignedAmounts {
		a, b = a.Abs(), b.Abs()
	}
	return a, b
}
