package reconciler

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"statement-reconciler/internal/aging"
	"statement-reconciler/internal/dedup"
	"statement-reconciler/internal/ledger"
	"statement-reconciler/internal/matcher"
	"statement-reconciler/internal/models"
	"statement-reconciler/internal/parsers"
	pkgerrors "statement-reconciler/pkg/errors"
)

// DiscrepancyType represents the type of discrepancy
type DiscrepancyType string

const (
	DiscrepancyBalanceMismatch      DiscrepancyType = "balance_mismatch"
	DiscrepancyStatementWarning     DiscrepancyType = "statement_warning"
	DiscrepancyParseError           DiscrepancyType = "parse_error"
	DiscrepancyDuplicateTransaction DiscrepancyType = "duplicate_transaction"
	DiscrepancyAmountDifference     DiscrepancyType = "amount_difference"
	DiscrepancyBankOnly             DiscrepancyType = "bank_only"
	DiscrepancyLedgerOnly           DiscrepancyType = "ledger_only"
	DiscrepancyUnreadableLedgerRow  DiscrepancyType = "unreadable_ledger_row"
)

// Severity represents the severity level of a discrepancy
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Discrepancy is one finding a person has to look at.
type Discrepancy struct {
	Type        DiscrepancyType `json:"type"`
	Severity    Severity        `json:"severity"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	// Lines are the statement lines involved, EntryID the ledger side.
	Lines   []int  `json:"lines,omitempty"`
	EntryID string `json:"entry_id,omitempty"`
}

// Totals holds counts and sums per partition.
type Totals struct {
	Transactions    int             `json:"transactions"`
	StatementAmount decimal.Decimal `json:"statement_amount"`

	Matched         int             `json:"matched"`
	ExactMatches    int             `json:"exact_matches"`
	TolerantMatches int             `json:"tolerant_matches"`
	MatchedAmount   decimal.Decimal `json:"matched_amount"`

	BankOnly         int             `json:"bank_only"`
	BankOnlyAmount   decimal.Decimal `json:"bank_only_amount"`
	LedgerOnly       int             `json:"ledger_only"`
	LedgerOnlyAmount decimal.Decimal `json:"ledger_only_amount"`

	DuplicateGroups      int             `json:"duplicate_groups"`
	DuplicateExtraCount  int             `json:"duplicate_extra_count"`
	DuplicateExtraAmount decimal.Decimal `json:"duplicate_extra_amount"`

	OpenEntries    int             `json:"open_entries"`
	OpenAmount     decimal.Decimal `json:"open_amount"`
	SettledSkipped int             `json:"settled_skipped"`

	ParseErrors       int `json:"parse_errors"`
	LedgerRowsSkipped int `json:"ledger_rows_skipped"`
}

// UnmatchedItems returns the bank-only plus ledger-only count
func (t Totals) UnmatchedItems() int {
	return t.BankOnly + t.LedgerOnly
}

// UnreconciledAmount returns the bank-only plus ledger-only magnitude
func (t Totals) UnreconciledAmount() decimal.Decimal {
	return t.BankOnlyAmount.Add(t.LedgerOnlyAmount)
}

// Report is the structured outcome of one reconciliation run. It carries data
// only; rendering is left to its consumers.
type Report struct {
	RunID       string    `json:"run_id,omitempty"`
	GeneratedAt time.Time `json:"generated_at,omitempty"`

	Source      string    `json:"source,omitempty"`
	AccountID   string    `json:"account_id"`
	Currency    string    `json:"currency"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	AsOf        time.Time `json:"as_of"`

	Balance        models.BalanceCheck         `json:"balance"`
	Totals         Totals                      `json:"totals"`
	Aging          []AgingLine                 `json:"aging,omitempty"`
	Counterparties []aging.CounterpartyBalance `json:"counterparties,omitempty"`
	Discrepancies  []Discrepancy               `json:"discrepancies"`

	Tolerance      PassTolerance `json:"tolerance"`
	Passed         bool          `json:"passed"`
	FailureReasons []string      `json:"failure_reasons,omitempty"`
}

// AgingLine is the summary of one aging bucket.
type AgingLine struct {
	Label   string          `json:"label"`
	Entries int             `json:"entries"`
	Amount  decimal.Decimal `json:"amount"`
}

// CountBySeverity returns how many discrepancies carry the given severity
func (r *Report) CountBySeverity(s Severity) int {
	n := 0
	for _, d := range r.Discrepancies {
		if d.Severity == s {
			n++
		}
	}
	return n
}

// CountByType returns how many discrepancies carry the given type
func (r *Report) CountByType(t DiscrepancyType) int {
	n := 0
	for _, d := range r.Discrepancies {
		if d.Type == t {
			n++
		}
	}
	return n
}

// ReportInput gathers the component outputs a report is built from. Only
// Statement is required.
type ReportInput struct {
	Statement      *models.Statement
	ParseStats     *parsers.ParseStats
	Duplicates     []models.DuplicateGroup
	Matching       models.MatchReport
	Aging          *aging.Result
	LedgerSkipped  []ledger.SkippedRow
	BalanceEpsilon decimal.Decimal
	AsOf           time.Time
	// TopCounterparties limits the ranked partner view; zero keeps all.
	TopCounterparties int
}

// BuildReport aggregates component outputs into a Report. It does no I/O and
// leaves RunID and GeneratedAt to the caller.
func BuildReport(in ReportInput, tol PassTolerance) Report {
	stmt := in.Statement
	if stmt == nil {
		stmt = &models.Statement{}
	}
	eps := in.BalanceEpsilon
	if eps.IsZero() {
		eps = parsers.DefaultBalanceEpsilon
	}

	r := Report{
		Source:        stmt.Source,
		AccountID:     stmt.Identifier(),
		Currency:      stmt.Currency,
		PeriodStart:   stmt.PeriodStart,
		PeriodEnd:     stmt.PeriodEnd,
		AsOf:          in.AsOf,
		Balance:       stmt.BalanceCheck(eps),
		Tolerance:     tol,
		Discrepancies: make([]Discrepancy, 0),
	}
	r.Totals = buildTotals(stmt, in)

	if in.Aging != nil {
		for _, b := range in.Aging.Ordered() {
			r.Aging = append(r.Aging, AgingLine{Label: b.Label, Entries: len(b.Entries), Amount: b.TotalAmount})
		}
		r.Counterparties = in.Aging.Top(in.TopCounterparties)
	}

	r.Discrepancies = append(r.Discrepancies, statementDiscrepancies(stmt, r.Balance)...)
	r.Discrepancies = append(r.Discrepancies, parseDiscrepancies(in.ParseStats)...)
	r.Discrepancies = append(r.Discrepancies, ledgerRowDiscrepancies(in.LedgerSkipped)...)
	r.Discrepancies = append(r.Discrepancies, duplicateDiscrepancies(in.Duplicates)...)
	r.Discrepancies = append(r.Discrepancies, matchDiscrepancies(in.Matching)...)

	r.Passed, r.FailureReasons = evaluate(r, tol)
	return r
}

func buildTotals(stmt *models.Statement, in ReportInput) Totals {
	t := Totals{
		Transactions:         len(stmt.Transactions),
		StatementAmount:      stmt.Movements(),
		Matched:              len(in.Matching.Matched),
		ExactMatches:         in.Matching.CountByConfidence(models.MatchExact),
		TolerantMatches:      in.Matching.CountByConfidence(models.MatchTolerant),
		MatchedAmount:        decimal.Zero,
		BankOnly:             len(in.Matching.BankOnly),
		BankOnlyAmount:       decimal.Zero,
		LedgerOnly:           len(in.Matching.LedgerOnly),
		LedgerOnlyAmount:     decimal.Zero,
		DuplicateExtraAmount: decimal.Zero,
		OpenAmount:           decimal.Zero,
	}

	for _, m := range in.Matching.Matched {
		t.MatchedAmount = t.MatchedAmount.Add(m.Transaction.Amount)
	}
	for _, tx := range in.Matching.BankOnly {
		t.BankOnlyAmount = t.BankOnlyAmount.Add(tx.Amount.Abs())
	}
	for _, e := range in.Matching.LedgerOnly {
		t.LedgerOnlyAmount = t.LedgerOnlyAmount.Add(matcher.NetAmount(e).Abs())
	}

	dups := dedup.Summarize(in.Duplicates)
	t.DuplicateGroups = dups.Groups
	t.DuplicateExtraCount = dups.ExtraCount
	t.DuplicateExtraAmount = dups.ExtraAmount

	if in.Aging != nil {
		t.OpenEntries = in.Aging.EntryCount()
		t.OpenAmount = in.Aging.Total()
		t.SettledSkipped = in.Aging.Settled
	}
	if in.ParseStats != nil {
		t.ParseErrors = in.ParseStats.ErrorCount
	}
	t.LedgerRowsSkipped = len(in.LedgerSkipped)
	return t
}

func statementDiscrepancies(stmt *models.Statement, check models.BalanceCheck) []Discrepancy {
	var out []Discrepancy
	if check.Performed && !check.Passed {
		out = append(out, Discrepancy{
			Type:     DiscrepancyBalanceMismatch,
			Severity: SeverityCritical,
			Description: fmt.Sprintf("opening %s + movements %s = %s, closing balance is %s",
				stmt.OpeningBalance.Decimal.StringFixed(2), check.Movements.StringFixed(2),
				check.Expected.StringFixed(2), stmt.ClosingBalance.Decimal.StringFixed(2)),
			Amount: check.Difference,
		})
	}
	for _, w := range stmt.Warnings {
		if w.Code == string(pkgerrors.CodeToleranceViolation) {
			continue
		}
		d := Discrepancy{
			Type:        DiscrepancyStatementWarning,
			Severity:    SeverityInfo,
			Description: w.Message,
			Amount:      decimal.Zero,
		}
		if w.Line > 0 {
			d.Lines = []int{w.Line}
		}
		out = append(out, d)
	}
	return out
}

func parseDiscrepancies(stats *parsers.ParseStats) []Discrepancy {
	if stats == nil {
		return nil
	}
	out := make([]Discrepancy, 0, len(stats.Errors))
	for _, e := range stats.Errors {
		d := Discrepancy{
			Type:        DiscrepancyParseError,
			Severity:    SeverityMedium,
			Description: e.Error(),
			Amount:      decimal.Zero,
		}
		if e.Location.Line > 0 {
			d.Lines = []int{e.Location.Line}
		}
		out = append(out, d)
	}
	return out
}

// ledgerRowDiscrepancies explains bank-only transactions whose ledger entry
// may sit in an unreadable row
func ledgerRowDiscrepancies(rows []ledger.SkippedRow) []Discrepancy {
	out := make([]Discrepancy, 0, len(rows))
	for _, row := range rows {
		out = append(out, Discrepancy{
			Type:        DiscrepancyUnreadableLedgerRow,
			Severity:    SeverityMedium,
			Description: "ledger row skipped, " + row.String(),
			Amount:      decimal.Zero,
			EntryID:     row.ID,
		})
	}
	return out
}

func duplicateDiscrepancies(groups []models.DuplicateGroup) []Discrepancy {
	out := make([]Discrepancy, 0, len(groups))
	for _, g := range groups {
		out = append(out, Discrepancy{
			Type:        DiscrepancyDuplicateTransaction,
			Severity:    duplicateSeverity(g.Confidence),
			Description: fmt.Sprintf("%d transactions share the %s signature: %s", len(g.Transactions), g.Strategy, g.Suggestion),
			Amount:      g.SuspectedExtraAmount,
			Lines:       g.Lines(),
		})
	}
	return out
}

func duplicateSeverity(c models.DuplicateConfidence) Severity {
	switch c {
	case models.DuplicateHigh:
		return SeverityHigh
	case models.DuplicateMedium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func matchDiscrepancies(m models.MatchReport) []Discrepancy {
	var out []Discrepancy
	for _, res := range m.Matched {
		if res.Confidence != models.MatchTolerant || res.AmountDelta.IsZero() {
			continue
		}
		out = append(out, Discrepancy{
			Type:     DiscrepancyAmountDifference,
			Severity: SeverityLow,
			Description: fmt.Sprintf("matched to %s with amount difference %s (%d days apart)",
				res.Entry.ID, res.AmountDelta.StringFixed(2), res.DateDeltaDays),
			Amount:  res.AmountDelta,
			Lines:   []int{res.Transaction.Line},
			EntryID: res.Entry.ID,
		})
	}
	for _, tx := range m.BankOnly {
		out = append(out, Discrepancy{
			Type:     DiscrepancyBankOnly,
			Severity: SeverityHigh,
			Description: fmt.Sprintf("no ledger entry for %s of %s %s %s", direction(tx),
				tx.Date.Format(models.DateLayout), tx.Amount.StringFixed(2), describe(tx)),
			Amount: tx.Amount,
			Lines:  []int{tx.Line},
		})
	}
	for _, e := range m.LedgerOnly {
		out = append(out, Discrepancy{
			Type:     DiscrepancyLedgerOnly,
			Severity: SeverityMedium,
			Description: fmt.Sprintf("ledger entry %s of %s (%s) not on the statement",
				e.ID, e.Date.Format(models.DateLayout), nonEmpty(e.PartnerName, e.Label)),
			Amount:  matcher.NetAmount(e),
			EntryID: e.ID,
		})
	}
	return out
}

func describe(tx models.Transaction) string {
	if tx.HasCounterparty() {
		return tx.Counterparty
	}
	return nonEmpty(tx.Description)
}

func direction(tx models.Transaction) string {
	if tx.IsCredit() {
		return "incoming payment"
	}
	return "outgoing payment"
}

func nonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return "-"
}

// evaluate applies the pass tolerance
func evaluate(r Report, tol PassTolerance) (bool, []string) {
	var reasons []string
	if !r.Balance.Holds() {
		reasons = append(reasons, fmt.Sprintf("statement balance off by %s", r.Balance.Difference.StringFixed(2)))
	}
	if tol.MaxUnmatchedItems >= 0 && r.Totals.UnmatchedItems() > tol.MaxUnmatchedItems {
		reasons = append(reasons, fmt.Sprintf("%d unmatched items exceed the limit of %d",
			r.Totals.UnmatchedItems(), tol.MaxUnmatchedItems))
	}
	if amount := r.Totals.UnreconciledAmount(); amount.GreaterThan(tol.MaxUnreconciledAmount) {
		reasons = append(reasons, fmt.Sprintf("unreconciled amount %s exceeds the limit of %s",
			amount.StringFixed(2), tol.MaxUnreconciledAmount.StringFixed(2)))
	}
	return len(reasons) == 0, reasons
}
