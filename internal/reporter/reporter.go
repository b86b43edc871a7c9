// Package reporter renders reconciliation results for people and machines.
//
// A ReportGenerator writes one format per instance: a console summary with
// totals, aging and discrepancy sections, an indented JSON document, or a
// flat CSV of the matched and unmatched items.
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"statement-reconciler/internal/aging"
	"statement-reconciler/internal/dedup"
	"statement-reconciler/internal/matcher"
	"statement-reconciler/internal/models"
	"statement-reconciler/internal/reconciler"
)

// OutputFormat represents the supported output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig configures which sections are rendered and how.
type ReportConfig struct {
	Format OutputFormat `json:"format" mapstructure:"format"`

	IncludeMatched       bool `json:"include_matched" mapstructure:"include_matched"`
	IncludeBankOnly      bool `json:"include_bank_only" mapstructure:"include_bank_only"`
	IncludeLedgerOnly    bool `json:"include_ledger_only" mapstructure:"include_ledger_only"`
	IncludeDuplicates    bool `json:"include_duplicates" mapstructure:"include_duplicates"`
	IncludeAging         bool `json:"include_aging" mapstructure:"include_aging"`
	IncludeDiscrepancies bool `json:"include_discrepancies" mapstructure:"include_discrepancies"`

	// TableMaxWidth truncates console lines
	TableMaxWidth int `json:"table_max_width" mapstructure:"table_max_width"`
	// MaxListItems caps console item lists; zero means no cap
	MaxListItems int  `json:"max_list_items" mapstructure:"max_list_items"`
	CSVDelimiter rune `json:"csv_delimiter" mapstructure:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers" mapstructure:"csv_headers"`
	SortByAmount bool `json:"sort_by_amount" mapstructure:"sort_by_amount"`
}

// DefaultReportConfig returns a configuration with sensible defaults
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:               FormatConsole,
		IncludeMatched:       false,
		IncludeBankOnly:      true,
		IncludeLedgerOnly:    true,
		IncludeDuplicates:    true,
		IncludeAging:         true,
		IncludeDiscrepancies: true,
		TableMaxWidth:        120,
		MaxListItems:         10,
		CSVDelimiter:         ',',
		CSVHeaders:           true,
		SortByAmount:         true,
	}
}

// Validate checks if the report configuration is valid
func (rc *ReportConfig) Validate() error {
	if !rc.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", rc.Format)
	}
	if rc.TableMaxWidth < 50 {
		return fmt.Errorf("table max width must be at least 50, got %d", rc.TableMaxWidth)
	}
	if rc.MaxListItems < 0 {
		return fmt.Errorf("max list items cannot be negative, got %d", rc.MaxListItems)
	}
	if rc.Format == FormatCSV && (rc.CSVDelimiter == 0 || rc.CSVDelimiter == '"' || rc.CSVDelimiter == '\n') {
		return fmt.Errorf("invalid csv delimiter %q", rc.CSVDelimiter)
	}
	return nil
}

// ReportGenerator generates reconciliation reports in one output format
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config}, nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

// GenerateReport writes the report of one reconciliation run
func (rg *ReportGenerator) GenerateReport(result *reconciler.Result, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("reconciliation result cannot be nil")
	}
	return rg.GenerateBatchReport([]*reconciler.Result{result}, writer)
}

// GenerateBatchReport writes the reports of several runs. Nil entries stand
// for failed statements and only count toward the batch summary.
func (rg *ReportGenerator) GenerateBatchReport(results []*reconciler.Result, writer io.Writer) error {
	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(results, writer)
	case FormatJSON:
		return rg.generateJSONReport(results, writer)
	case FormatCSV:
		return rg.generateCSVReport(results, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) generateConsoleReport(results []*reconciler.Result, writer io.Writer) error {
	w := &consoleWriter{out: writer, width: rg.config.TableMaxWidth}

	first := true
	for _, res := range results {
		if res == nil {
			continue
		}
		if !first {
			w.line("%s", strings.Repeat("-", min(w.width, 72)))
			w.blank()
		}
		first = false
		rg.writeConsoleResult(w, res)
	}

	if len(results) > 1 {
		sum := reconciler.Summarize(results)
		w.line("=== BATCH SUMMARY ===")
		w.line("Statements: %d", sum.Statements)
		w.line("  Passed:     %d", sum.Passed)
		w.line("  Not passed: %d", sum.NotPassed)
		w.line("  Failed:     %d", sum.Failed)
	}
	return w.err
}

func (rg *ReportGenerator) writeConsoleResult(w *consoleWriter, res *reconciler.Result) {
	r := res.Report

	w.line("RECONCILIATION REPORT")
	if r.RunID != "" {
		w.line("Run:       %s", r.RunID)
	}
	if !r.GeneratedAt.IsZero() {
		w.line("Generated: %s", r.GeneratedAt.Format(time.RFC3339))
	}
	if r.Source != "" {
		w.line("Statement: %s", r.Source)
	}
	w.line("Account:   %s %s", r.AccountID, r.Currency)
	w.line("Period:    %s to %s", formatDay(r.PeriodStart), formatDay(r.PeriodEnd))
	w.line("As of:     %s", formatDay(r.AsOf))
	w.line("Status:    %s", status(r.Passed))
	for _, reason := range r.FailureReasons {
		w.line("  - %s", reason)
	}
	w.blank()

	w.line("=== BALANCE ===")
	if !r.Balance.Performed {
		w.line("Not checked: opening or closing balance missing")
	} else {
		w.line("Movements:  %s", r.Balance.Movements.StringFixed(2))
		w.line("Expected:   %s", r.Balance.Expected.StringFixed(2))
		w.line("Difference: %s (epsilon %s) %s", r.Balance.Difference.StringFixed(2),
			r.Balance.Epsilon.String(), status(r.Balance.Passed))
	}
	w.blank()

	t := r.Totals
	w.line("=== SUMMARY ===")
	w.line("Transactions: %d (%s)", t.Transactions, t.StatementAmount.StringFixed(2))
	w.line("  Matched:    %d (%.1f%%) exact %d, tolerant %d", t.Matched,
		calculatePercentage(t.Matched, t.Transactions), t.ExactMatches, t.TolerantMatches)
	w.line("  Bank only:  %d (%.1f%%) %s", t.BankOnly,
		calculatePercentage(t.BankOnly, t.Transactions), t.BankOnlyAmount.StringFixed(2))
	w.line("Ledger only:  %d %s", t.LedgerOnly, t.LedgerOnlyAmount.StringFixed(2))
	w.line("Duplicates:   %d group(s), %d suspected extra (%s)", t.DuplicateGroups,
		t.DuplicateExtraCount, t.DuplicateExtraAmount.StringFixed(2))
	w.line("Open entries: %d (%s), %d settled skipped", t.OpenEntries, t.OpenAmount.StringFixed(2), t.SettledSkipped)
	if t.ParseErrors > 0 {
		w.line("Parse errors: %d", t.ParseErrors)
	}
	if t.LedgerRowsSkipped > 0 {
		w.line("Ledger rows:  %d unreadable, skipped", t.LedgerRowsSkipped)
	}
	w.line("Unreconciled: %d item(s), %s", t.UnmatchedItems(), t.UnreconciledAmount().StringFixed(2))
	w.blank()

	if rg.config.IncludeMatched && len(res.Matching.Matched) > 0 {
		w.line("=== MATCHED TRANSACTIONS ===")
		rg.printMatches(w, res.Matching.Matched)
		w.blank()
	}
	if rg.config.IncludeBankOnly && len(res.Matching.BankOnly) > 0 {
		w.line("=== BANK ONLY ===")
		rg.printTransactions(w, res.Matching.BankOnly)
		w.blank()
	}
	if rg.config.IncludeLedgerOnly && len(res.Matching.LedgerOnly) > 0 {
		w.line("=== LEDGER ONLY ===")
		rg.printEntries(w, res.Matching.LedgerOnly)
		w.blank()
	}
	if rg.config.IncludeDuplicates && len(res.Duplicates) > 0 {
		w.line("=== SUSPECTED DUPLICATES ===")
		rg.printDuplicates(w, res.Duplicates)
		w.blank()
	}
	if rg.config.IncludeAging && len(r.Aging) > 0 {
		w.line("=== AGING ===")
		for _, a := range r.Aging {
			w.line("%-10s %5d  %14s", a.Label, a.Entries, a.Amount.StringFixed(2))
		}
		if len(r.Counterparties) > 0 {
			w.line("Largest open balances:")
			for _, c := range r.Counterparties {
				w.line("  %-30s %14s  oldest %s", c.Name, c.Total.StringFixed(2), c.Oldest)
			}
		}
		w.blank()
	}
	if rg.config.IncludeDiscrepancies && len(r.Discrepancies) > 0 {
		w.line("=== DISCREPANCIES ===")
		rg.printDiscrepancies(w, r.Discrepancies)
	}
}

func (rg *ReportGenerator) printMatches(w *consoleWriter, matches []models.MatchResult) {
	rg.printList(w, len(matches), func(i int) {
		m := matches[i]
		w.line("  %d. line %d %s %s -> %s %s [%s, delta %s, %d day(s)]",
			i+1, m.Transaction.Line, formatDay(m.Transaction.Date), m.Transaction.Amount.StringFixed(2),
			m.Entry.ID, matcher.NetAmount(*m.Entry).StringFixed(2),
			m.Confidence, m.AmountDelta.StringFixed(2), m.DateDeltaDays)
	})
}

func (rg *ReportGenerator) printTransactions(w *consoleWriter, txs []models.Transaction) {
	txs = append([]models.Transaction(nil), txs...)
	if rg.config.SortByAmount {
		sort.SliceStable(txs, func(i, j int) bool {
			return txs[i].Amount.Abs().GreaterThan(txs[j].Amount.Abs())
		})
	}
	rg.printList(w, len(txs), func(i int) {
		tx := txs[i]
		w.line("  %d. line %d %s %12s  %s", i+1, tx.Line, formatDay(tx.Date),
			tx.Amount.StringFixed(2), firstNonEmpty(tx.Counterparty, tx.Description))
	})
}

func (rg *ReportGenerator) printEntries(w *consoleWriter, entries []models.LedgerEntry) {
	entries = append([]models.LedgerEntry(nil), entries...)
	if rg.config.SortByAmount {
		sort.SliceStable(entries, func(i, j int) bool {
			return matcher.NetAmount(entries[i]).Abs().GreaterThan(matcher.NetAmount(entries[j]).Abs())
		})
	}
	rg.printList(w, len(entries), func(i int) {
		e := entries[i]
		w.line("  %d. %s %s %12s  %s", i+1, e.ID, formatDay(e.Date),
			matcher.NetAmount(e).StringFixed(2), firstNonEmpty(e.PartnerName, e.Label))
	})
}

func (rg *ReportGenerator) printDuplicates(w *consoleWriter, groups []models.DuplicateGroup) {
	rg.printList(w, len(groups), func(i int) {
		g := groups[i]
		w.line("  %d. [%s/%s] lines %s: %s", i+1, g.Strategy, g.Confidence, joinLines(g.Lines()), g.Suggestion)
		for _, tx := range g.Transactions {
			w.line("       line %d %s %12s  %s", tx.Line, formatDay(tx.Date),
				tx.Amount.StringFixed(2), firstNonEmpty(tx.Counterparty, tx.Description))
		}
	})
}

func (rg *ReportGenerator) printDiscrepancies(w *consoleWriter, discrepancies []reconciler.Discrepancy) {
	w.line("Total Discrepancies Found: %d", len(discrepancies))
	w.blank()

	groups := make(map[reconciler.Severity][]reconciler.Discrepancy)
	for _, d := range discrepancies {
		groups[d.Severity] = append(groups[d.Severity], d)
	}

	for _, severity := range severityOrder {
		discs := groups[severity]
		if len(discs) == 0 {
			continue
		}
		w.line("%s Severity (%d):", strings.ToUpper(string(severity)), len(discs))
		rg.printList(w, len(discs), func(i int) {
			d := discs[i]
			if d.Amount.IsZero() {
				w.line("  - %s: %s", d.Type, d.Description)
			} else {
				w.line("  - %s: %s (Amount: %s)", d.Type, d.Description, d.Amount.StringFixed(2))
			}
		})
		w.blank()
	}
}

// printList prints at most MaxListItems items and a remainder line
func (rg *ReportGenerator) printList(w *consoleWriter, n int, item func(i int)) {
	limit := n
	if rg.config.MaxListItems > 0 && n > rg.config.MaxListItems {
		limit = rg.config.MaxListItems
	}
	for i := 0; i < limit; i++ {
		item(i)
	}
	if limit < n {
		w.line("  ... and %d more", n-limit)
	}
}

var severityOrder = []reconciler.Severity{
	reconciler.SeverityCritical,
	reconciler.SeverityHigh,
	reconciler.SeverityMedium,
	reconciler.SeverityLow,
	reconciler.SeverityInfo,
}

type jsonBatch struct {
	Summary reconciler.BatchSummary `json:"summary"`
	Reports []jsonResult            `json:"reports"`
}

type jsonResult struct {
	Report     reconciler.Report       `json:"report"`
	Matched    []models.MatchResult    `json:"matched,omitempty"`
	BankOnly   []models.Transaction    `json:"bank_only,omitempty"`
	LedgerOnly []models.LedgerEntry    `json:"ledger_only,omitempty"`
	Duplicates []models.DuplicateGroup `json:"duplicates,omitempty"`
}

func (rg *ReportGenerator) generateJSONReport(results []*reconciler.Result, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	filtered := make([]jsonResult, 0, len(results))
	for _, res := range results {
		if res != nil {
			filtered = append(filtered, rg.filterResultForOutput(res))
		}
	}
	if len(results) == 1 && len(filtered) == 1 {
		return encoder.Encode(filtered[0])
	}
	return encoder.Encode(jsonBatch{Summary: reconciler.Summarize(results), Reports: filtered})
}

func (rg *ReportGenerator) filterResultForOutput(res *reconciler.Result) jsonResult {
	out := jsonResult{Report: res.Report}
	if rg.config.IncludeMatched {
		out.Matched = res.Matching.Matched
	}
	if rg.config.IncludeBankOnly {
		out.BankOnly = res.Matching.BankOnly
	}
	if rg.config.IncludeLedgerOnly {
		out.LedgerOnly = res.Matching.LedgerOnly
	}
	if rg.config.IncludeDuplicates {
		out.Duplicates = res.Duplicates
	}
	if !rg.config.IncludeAging {
		out.Report.Aging = nil
		out.Report.Counterparties = nil
	}
	if !rg.config.IncludeDiscrepancies {
		out.Report.Discrepancies = nil
	}
	return out
}

var csvHeaders = []string{
	"Type",
	"Account",
	"Line",
	"Date",
	"Amount",
	"Counterparty",
	"Entry_ID",
	"Entry_Date",
	"Entry_Amount",
	"Confidence",
	"Amount_Difference",
	"Date_Difference_Days",
	"Notes",
}

func (rg *ReportGenerator) generateCSVReport(results []*reconciler.Result, writer io.Writer) error {
	w := rg.newCSVWriter(writer)
	if rg.config.CSVHeaders {
		if err := w.Write(csvHeaders); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, res := range results {
		if res == nil {
			continue
		}
		if err := rg.writeCSVResult(w, res); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (rg *ReportGenerator) writeCSVResult(w *csv.Writer, res *reconciler.Result) error {
	account := res.AccountID

	if rg.config.IncludeMatched {
		for _, m := range res.Matching.Matched {
			record := []string{
				"matched", account,
				strconv.Itoa(m.Transaction.Line), formatDay(m.Transaction.Date), m.Transaction.Amount.StringFixed(2),
				firstNonEmpty(m.Transaction.Counterparty, m.Entry.PartnerName),
				m.Entry.ID, formatDay(m.Entry.Date), matcher.NetAmount(*m.Entry).StringFixed(2),
				m.Confidence.String(), m.AmountDelta.StringFixed(2), strconv.Itoa(m.DateDeltaDays),
				m.Transaction.Description,
			}
			if err := w.Write(record); err != nil {
				return fmt.Errorf("failed to write matched record: %w", err)
			}
		}
	}

	if rg.config.IncludeBankOnly {
		for _, tx := range res.Matching.BankOnly {
			record := []string{
				"bank_only", account,
				strconv.Itoa(tx.Line), formatDay(tx.Date), tx.Amount.StringFixed(2), tx.Counterparty,
				"", "", "", models.MatchNone.String(), "", "",
				"No matching ledger entry found",
			}
			if err := w.Write(record); err != nil {
				return fmt.Errorf("failed to write bank only record: %w", err)
			}
		}
	}

	if rg.config.IncludeLedgerOnly {
		for _, e := range res.Matching.LedgerOnly {
			record := []string{
				"ledger_only", account,
				"", "", "", e.PartnerName,
				e.ID, formatDay(e.Date), matcher.NetAmount(e).StringFixed(2), models.MatchNone.String(), "", "",
				"No matching statement transaction found",
			}
			if err := w.Write(record); err != nil {
				return fmt.Errorf("failed to write ledger only record: %w", err)
			}
		}
	}

	if rg.config.IncludeDuplicates {
		if err := writeDuplicateRows(w, account, res.Duplicates); err != nil {
			return err
		}
	}
	return nil
}

// writeDuplicateRows writes one row per suspected extra transaction
func writeDuplicateRows(w *csv.Writer, account string, groups []models.DuplicateGroup) error {
	for _, g := range groups {
		for _, tx := range g.Transactions[1:] {
			record := []string{
				"duplicate", account,
				strconv.Itoa(tx.Line), formatDay(tx.Date), tx.Amount.StringFixed(2), tx.Counterparty,
				"", "", "", string(g.Confidence), "", "",
				fmt.Sprintf("%s duplicate of line %d", g.Strategy, g.Transactions[0].Line),
			}
			if err := w.Write(record); err != nil {
				return fmt.Errorf("failed to write duplicate record: %w", err)
			}
		}
	}
	return nil
}

func (rg *ReportGenerator) newCSVWriter(writer io.Writer) *csv.Writer {
	w := csv.NewWriter(writer)
	w.Comma = rg.config.CSVDelimiter
	if w.Comma == 0 {
		w.Comma = ','
	}
	return w
}

// GenerateDuplicateReport writes the suspected duplicate groups of one statement
func (rg *ReportGenerator) GenerateDuplicateReport(source string, groups []models.DuplicateGroup, writer io.Writer) error {
	sum := dedup.Summarize(groups)

	switch rg.config.Format {
	case FormatJSON:
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(struct {
			Source  string                  `json:"source"`
			Summary dedup.Summary           `json:"summary"`
			Groups  []models.DuplicateGroup `json:"groups"`
		}{source, sum, groups})
	case FormatCSV:
		w := rg.newCSVWriter(writer)
		if rg.config.CSVHeaders {
			if err := w.Write(csvHeaders); err != nil {
				return fmt.Errorf("failed to write CSV headers: %w", err)
			}
		}
		if err := writeDuplicateRows(w, source, groups); err != nil {
			return err
		}
		w.Flush()
		return w.Error()
	}

	w := &consoleWriter{out: writer, width: rg.config.TableMaxWidth}
	w.line("DUPLICATE REPORT: %s", source)
	w.line("Groups: %d, suspected extra transactions: %d (%s)", sum.Groups, sum.ExtraCount, sum.ExtraAmount.StringFixed(2))
	strategies := make([]string, 0, len(sum.ByStrategy))
	for name := range sum.ByStrategy {
		strategies = append(strategies, name)
	}
	sort.Strings(strategies)
	for _, name := range strategies {
		w.line("  %s: %d", name, sum.ByStrategy[name])
	}
	if len(groups) > 0 {
		w.blank()
		rg.printDuplicates(w, groups)
	}
	return w.err
}

// GenerateAgingReport writes an aging classification with its counterparty breakdown
func (rg *ReportGenerator) GenerateAgingReport(res *aging.Result, top int, writer io.Writer) error {
	if res == nil {
		return fmt.Errorf("aging result cannot be nil")
	}
	counterparties := res.Top(top)

	switch rg.config.Format {
	case FormatJSON:
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(struct {
			AsOf           time.Time                   `json:"as_of"`
			Buckets        []*models.AgingBucket       `json:"buckets"`
			Total          decimal.Decimal             `json:"total"`
			Settled        int                         `json:"settled"`
			Counterparties []aging.CounterpartyBalance `json:"counterparties"`
		}{res.AsOf, res.Ordered(), res.Total(), res.Settled, counterparties})
	case FormatCSV:
		w := rg.newCSVWriter(writer)
		if rg.config.CSVHeaders {
			if err := w.Write([]string{"Bucket", "Entry_ID", "Date", "Due_Date", "Partner", "Residual"}); err != nil {
				return fmt.Errorf("failed to write CSV headers: %w", err)
			}
		}
		for _, b := range res.Ordered() {
			for _, e := range b.Entries {
				record := []string{b.Label, e.ID, formatDay(e.Date), formatDay(e.DueDate), e.PartnerName, e.Residual.StringFixed(2)}
				if err := w.Write(record); err != nil {
					return fmt.Errorf("failed to write aging record: %w", err)
				}
			}
		}
		w.Flush()
		return w.Error()
	}

	w := &consoleWriter{out: writer, width: rg.config.TableMaxWidth}
	w.line("AGING REPORT as of %s", formatDay(res.AsOf))
	for _, b := range res.Ordered() {
		w.line("%-10s %5d  %14s", b.Label, len(b.Entries), b.TotalAmount.StringFixed(2))
	}
	w.line("%-10s %5d  %14s", "total", res.EntryCount(), res.Total().StringFixed(2))
	if res.Settled > 0 {
		w.line("Settled entries skipped: %d", res.Settled)
	}
	if len(counterparties) > 0 {
		w.blank()
		w.line("Largest open balances:")
		for _, c := range counterparties {
			w.line("  %-30s %14s  %3d entries, oldest %s", c.Name, c.Total.StringFixed(2), c.Entries, c.Oldest)
		}
	}
	return w.err
}

// consoleWriter keeps the first write error and truncates long lines
type consoleWriter struct {
	out   io.Writer
	width int
	err   error
}

func (w *consoleWriter) line(format string, args ...any) {
	if w.err != nil {
		return
	}
	s := fmt.Sprintf(format, args...)
	if w.width > 0 && len([]rune(s)) > w.width {
		s = string([]rune(s)[:w.width-3]) + "..."
	}
	_, w.err = fmt.Fprintln(w.out, s)
}

func (w *consoleWriter) blank() {
	if w.err == nil {
		_, w.err = fmt.Fprintln(w.out)
	}
}

// Helper functions

func calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(models.DateLayout)
}

func status(passed bool) string {
	if passed {
		return "PASSED"
	}
	return "NOT PASSED"
}

func joinLines(lines []int) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = strconv.Itoa(l)
	}
	return strings.Join(parts, ", ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
