package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical day format used in reports and JSON output.
const DateLayout = "2006-01-02"

// Transaction represents one parsed row of a bank statement.
// Positive amounts are credits (inflow), negative amounts are debits.
type Transaction struct {
	Line         int               `json:"line"`
	Date         time.Time         `json:"date"`
	BookingDate  time.Time         `json:"booking_date,omitempty"`
	Amount       decimal.Decimal   `json:"amount"`
	Description  string            `json:"description"`
	Counterparty string            `json:"counterparty,omitempty"`
	Reference    string            `json:"reference,omitempty"`
	RawFields    map[string]string `json:"raw_fields,omitempty"`
}

// IsCredit returns true for inflows
func (t Transaction) IsCredit() bool {
	return t.Amount.IsPositive()
}

// HasCounterparty reports whether a counterparty name is known
func (t Transaction) HasCounterparty() bool {
	return strings.TrimSpace(t.Counterparty) != ""
}

// String returns a string representation of the Transaction
func (t Transaction) String() string {
	return fmt.Sprintf("Transaction{Line: %d, Date: %s, Amount: %s, Counterparty: %q}",
		t.Line, t.Date.Format(DateLayout), t.Amount.StringFixed(2), t.Counterparty)
}

// MarshalJSON writes dates as plain days
func (t Transaction) MarshalJSON() ([]byte, error) {
	type Alias Transaction
	aux := struct {
		Date        string `json:"date"`
		BookingDate string `json:"booking_date,omitempty"`
		Alias
	}{
		Date:  formatDay(t.Date),
		Alias: Alias(t),
	}
	aux.BookingDate = formatDay(t.BookingDate)
	return json.Marshal(aux)
}

// Statement is a bank-issued record of the movements on one account for a period.
type Statement struct {
	Source         string              `json:"source,omitempty"`
	Format         string              `json:"format,omitempty"`
	AccountID      string              `json:"account_id"`
	IBAN           string              `json:"iban,omitempty"`
	Currency       string              `json:"currency"`
	PeriodStart    time.Time           `json:"period_start"`
	PeriodEnd      time.Time           `json:"period_end"`
	OpeningBalance decimal.NullDecimal `json:"opening_balance"`
	ClosingBalance decimal.NullDecimal `json:"closing_balance"`
	Transactions   []Transaction       `json:"transactions"`
	Warnings       []Warning           `json:"warnings,omitempty"`
}

// Identifier returns the IBAN when present, else the account number.
func (s *Statement) Identifier() string {
	if s.IBAN != "" {
		return s.IBAN
	}
	return s.AccountID
}

// Movements returns the sum of all transaction amounts
func (s *Statement) Movements() decimal.Decimal {
	sum := decimal.Zero
	for _, tx := range s.Transactions {
		sum = sum.Add(tx.Amount)
	}
	return sum
}

// BalanceCheck verifies opening + movements == closing within epsilon.
// When either balance is unknown the check is reported as not performed.
func (s *Statement) BalanceCheck(epsilon decimal.Decimal) BalanceCheck {
	check := BalanceCheck{Movements: s.Movements(), Epsilon: epsilon}
	if !s.OpeningBalance.Valid || !s.ClosingBalance.Valid {
		return check
	}

	check.Performed = true
	check.Expected = s.OpeningBalance.Decimal.Add(check.Movements)
	check.Difference = check.Expected.Sub(s.ClosingBalance.Decimal)
	check.Passed = check.Difference.Abs().LessThanOrEqual(epsilon)
	return check
}

// HasWarning reports whether a warning with the given code is attached
func (s *Statement) HasWarning(code string) bool {
	for _, w := range s.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// BalanceCheck is the outcome of the opening + movements = closing check.
type BalanceCheck struct {
	Performed  bool            `json:"performed"`
	Passed     bool            `json:"passed"`
	Movements  decimal.Decimal `json:"movements"`
	Expected   decimal.Decimal `json:"expected_closing"`
	Difference decimal.Decimal `json:"difference"`
	Epsilon    decimal.Decimal `json:"epsilon"`
}

// Holds is true when the check passed or could not be performed.
func (b BalanceCheck) Holds() bool {
	return !b.Performed || b.Passed
}

// Warning is a non-fatal finding attached to a parsed statement.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// LedgerEntry is one accounting line supplied by the ERP collaborator.
type LedgerEntry struct {
	ID          string          `json:"id"`
	Date        time.Time       `json:"date"`
	DueDate     time.Time       `json:"due_date,omitempty"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Residual    decimal.Decimal `json:"residual"`
	PartnerName string          `json:"partner_name,omitempty"`
	Reconciled  bool            `json:"reconciled"`
	Currency    string          `json:"currency,omitempty"`
	Label       string          `json:"label,omitempty"`
}

// HasDueDate reports whether a due date is set
func (e LedgerEntry) HasDueDate() bool {
	return !e.DueDate.IsZero()
}

// AgingDate returns the due date, falling back to the entry date.
func (e LedgerEntry) AgingDate() time.Time {
	if e.HasDueDate() {
		return e.DueDate
	}
	return e.Date
}

// HasPartner reports whether a partner name is known
func (e LedgerEntry) HasPartner() bool {
	return strings.TrimSpace(e.PartnerName) != ""
}

// Diagnostics lists data-quality findings. Real ledgers contain entries that
// carry both a debit and a credit, so this never rejects the entry.
func (e LedgerEntry) Diagnostics() []string {
	var out []string
	if !e.Debit.IsZero() && !e.Credit.IsZero() {
		out = append(out, fmt.Sprintf("entry %s has both debit %s and credit %s", e.ID, e.Debit, e.Credit))
	}
	if e.Debit.IsNegative() || e.Credit.IsNegative() {
		out = append(out, fmt.Sprintf("entry %s has a negative debit or credit", e.ID))
	}
	return out
}

// MarshalJSON writes dates as plain days
func (e LedgerEntry) MarshalJSON() ([]byte, error) {
	type Alias LedgerEntry
	return json.Marshal(struct {
		Date    string `json:"date"`
		DueDate string `json:"due_date,omitempty"`
		Alias
	}{
		Date:    formatDay(e.Date),
		DueDate: formatDay(e.DueDate),
		Alias:   Alias(e),
	})
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}
