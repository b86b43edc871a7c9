// Package scenario generates synthetic statement and ledger export pairs with
// a known outcome, for trying the reconciler and for end-to-end tests.
package scenario

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"

	"statement-reconciler/internal/models"
	pkgerrors "statement-reconciler/pkg/errors"
)

const dateLayout = "2006-01-02"

// Generator describes the scenario to produce. Statements use the
// generic-semicolon layout; ledger exports use the CSV ledger columns.
type Generator struct {
	Seed      uint64
	Account   string
	Currency  string
	StartDate time.Time
	// Days is the length of the statement period.
	Days int

	// Matched transactions have a ledger entry within MaxDateShift days.
	Matched      int
	MaxDateShift int
	BankOnly     int
	LedgerOnly   int
	// Duplicates repeats that many matched transactions on the statement.
	Duplicates int
}

// DefaultGenerator returns a small month-long scenario
func DefaultGenerator() Generator {
	return Generator{
		Seed:         1,
		Account:      "1100",
		Currency:     "CHF",
		StartDate:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Days:         30,
		Matched:      40,
		MaxDateShift: 2,
		BankOnly:     3,
		LedgerOnly:   2,
		Duplicates:   1,
	}
}

// Expected is the outcome a reconciliation of the scenario must report when
// the date tolerance is at least MaxDateShift.
type Expected struct {
	Transactions    int `json:"transactions"`
	Matched         int `json:"matched"`
	BankOnly        int `json:"bank_only"`
	LedgerOnly      int `json:"ledger_only"`
	DuplicateExtras int `json:"duplicate_extras"`
}

// Scenario is a generated statement and ledger export
type Scenario struct {
	Statement []byte
	Ledger    []byte
	Expected  Expected
}

// Validate checks the generator settings
func (g Generator) Validate() error {
	outOfRange := func(field string, value int, format string, args ...any) error {
		return pkgerrors.ValidationError(pkgerrors.CodeOutOfRange, field, value, fmt.Errorf(format, args...))
	}
	counts := []struct {
		field string
		value int
	}{
		{"matched", g.Matched}, {"bank_only", g.BankOnly}, {"ledger_only", g.LedgerOnly}, {"duplicates", g.Duplicates},
	}

	if g.Days < 1 {
		return outOfRange("days", g.Days, "days must be positive")
	}
	for _, c := range counts {
		if c.value < 0 {
			return outOfRange(c.field, c.value, "counts must not be negative")
		}
	}
	switch {
	case g.Duplicates > g.Matched:
		return outOfRange("duplicates", g.Duplicates, "cannot exceed matched transactions (%d)", g.Matched)
	case g.MaxDateShift < 0:
		return outOfRange("max_date_shift", g.MaxDateShift, "max date shift must not be negative")
	case g.Matched+g.BankOnly == 0:
		return outOfRange("matched", g.Matched, "a statement needs at least one transaction")
	}
	return nil
}

type row struct {
	date         time.Time
	amount       decimal.Decimal
	counterparty string
	description  string
	reference    string
}

// Generate builds the scenario. Every amount is unique by at least ten
// units, so no transaction can match an entry other than its planted one.
func (g Generator) Generate() (*Scenario, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(g.Seed, g.Seed^0x9e3779b97f4a7c15))
	start := models.Day(g.StartDate)
	last := g.Days - 1

	amount := func(n int, sign bool) decimal.Decimal {
		cents := decimal.New(int64(rng.IntN(100)), -2)
		a := decimal.NewFromInt(int64((n + 1) * 10)).Add(cents)
		if sign && rng.IntN(2) == 0 {
			return a.Neg()
		}
		return a
	}

	var stmt []row
	var ledger [][]string
	entry := func(id string, date time.Time, amt decimal.Decimal, partner, label string) {
		debit, credit := "", ""
		if amt.IsNegative() {
			credit = amt.Neg().StringFixed(2)
		} else {
			debit = amt.StringFixed(2)
		}
		ledger = append(ledger, []string{
			id, date.Format(dateLayout), debit, credit, amt.StringFixed(2),
			partner, "false", g.Currency, label, g.Account,
		})
	}

	// Spread transactions over the period; the first and last land on its
	// bounds so the derived period equals the configured one.
	total := g.Matched + g.BankOnly
	dayOf := func(i int) time.Time {
		if total == 1 {
			return start
		}
		return start.AddDate(0, 0, i*last/(total-1))
	}

	n := 0
	for i := range g.Matched {
		r := row{
			date:         dayOf(n),
			amount:       amount(n, true),
			counterparty: fmt.Sprintf("Customer %03d", i+1),
			description:  fmt.Sprintf("Invoice %d", 1000+i),
			reference:    fmt.Sprintf("RF%06d", n+1),
		}
		stmt = append(stmt, r)
		shift := 0
		if g.MaxDateShift > 0 {
			shift = rng.IntN(g.MaxDateShift + 1)
		}
		entry(fmt.Sprintf("M%04d", i+1), r.date.AddDate(0, 0, shift), r.amount, r.counterparty, r.description)
		n++
	}
	for i := range g.BankOnly {
		stmt = append(stmt, row{
			date:         dayOf(n),
			amount:       amount(n, true),
			counterparty: fmt.Sprintf("Unknown %03d", i+1),
			description:  "Card payment",
			reference:    fmt.Sprintf("RF%06d", n+1),
		})
		n++
	}
	for i := range g.LedgerOnly {
		date := start.AddDate(0, 0, rng.IntN(g.Days))
		entry(fmt.Sprintf("L%04d", i+1), date, amount(n, true), fmt.Sprintf("Supplier %03d", i+1), "Accrual")
		n++
	}
	for i := range g.Duplicates {
		stmt = append(stmt, stmt[i])
	}

	statement, err := writeStatement(stmt)
	if err != nil {
		return nil, err
	}
	ledgerCSV, err := writeLedger(ledger)
	if err != nil {
		return nil, err
	}

	return &Scenario{
		Statement: statement,
		Ledger:    ledgerCSV,
		Expected: Expected{
			Transactions:    len(stmt),
			Matched:         g.Matched,
			BankOnly:        g.BankOnly + g.Duplicates,
			LedgerOnly:      g.LedgerOnly,
			DuplicateExtras: g.Duplicates,
		},
	}, nil
}

func writeStatement(rows []row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = ';'
	if err := w.Write([]string{"date", "amount", "counterparty", "description", "reference"}); err != nil {
		return nil, err
	}
	for _, r := range rows {
		if err := w.Write([]string{r.date.Format(dateLayout), r.amount.StringFixed(2), r.counterparty, r.description, r.reference}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func writeLedger(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{"id", "date", "debit", "credit", "residual", "partner", "reconciled", "currency", "label", "account"}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFiles writes the scenario as <prefix>_statement.csv and
// <prefix>_ledger.csv in dir and returns both paths
func (s *Scenario) WriteFiles(fs afero.Fs, dir, prefix string) (string, string, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return "", "", pkgerrors.FileError(pkgerrors.CodeFilePermission, dir, err)
	}
	statementPath := filepath.Join(dir, prefix+"_statement.csv")
	ledgerPath := filepath.Join(dir, prefix+"_ledger.csv")
	if err := afero.WriteFile(fs, statementPath, s.Statement, 0o644); err != nil {
		return "", "", pkgerrors.FileError(pkgerrors.CodeFilePermission, statementPath, err)
	}
	if err := afero.WriteFile(fs, ledgerPath, s.Ledger, 0o644); err != nil {
		return "", "", pkgerrors.FileError(pkgerrors.CodeFilePermission, ledgerPath, err)
	}
	return statementPath, ledgerPath, nil
}
