package parsers

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"

	"statement-reconciler/internal/locale"
	"statement-reconciler/internal/models"
	pkgerrors "statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"
)

// StatementParser parses bank exports laid out as described by a FormatSpec
type StatementParser struct {
	spec    FormatSpec
	loc     locale.NumberLocale
	epsilon decimal.Decimal
	logger  logger.Logger
}

// NewStatementParser creates a StatementParser for the given format
func NewStatementParser(spec FormatSpec, log logger.Logger) (*StatementParser, error) {
	if err := spec.Validate(); err != nil {
		return nil, pkgerrors.ConfigurationError(pkgerrors.CodeInvalidConfig, "format", spec.Name, err)
	}
	eps, _ := spec.Epsilon()

	return &StatementParser{
		spec:    spec,
		loc:     spec.NumberLocale(),
		epsilon: eps,
		logger:  logger.OrGlobal(log).WithComponent("statement_parser").WithField("format", spec.Name),
	}, nil
}

// Spec returns the format the parser was built with
func (p *StatementParser) Spec() FormatSpec {
	return p.spec
}

// ParseFile reads and parses a statement file
func (p *StatementParser) ParseFile(fs afero.Fs, path string) (*models.Statement, *ParseStats, error) {
	content, err := afero.ReadFile(fs, path)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return nil, nil, pkgerrors.FileError(pkgerrors.CodeFileNotFound, path, err)
		case os.IsPermission(err):
			return nil, nil, pkgerrors.FileError(pkgerrors.CodeFilePermission, path, err)
		default:
			return nil, nil, pkgerrors.FileError(pkgerrors.CodeFileCorrupted, path, err)
		}
	}
	return p.parse(content, path)
}

// ParseReader parses a statement from r
func (p *StatementParser) ParseReader(r io.Reader) (*models.Statement, *ParseStats, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, pkgerrors.FileError(pkgerrors.CodeFileCorrupted, "", err)
	}
	return p.parse(content, "")
}

// Parse parses raw statement content
func (p *StatementParser) Parse(content []byte) (*models.Statement, *ParseStats, error) {
	return p.parse(content, "")
}

func (p *StatementParser) parse(content []byte, source string) (*models.Statement, *ParseStats, error) {
	log := p.logger
	if source != "" {
		log = log.WithField("file", source)
	}

	stats := NewParseStats(source)
	text, enc, err := Decode(content, p.spec.Encoding)
	if err != nil {
		return nil, stats, err
	}
	stats.Encoding = enc
	log.WithField("encoding", enc).Debug("Decoded statement")

	rr := newRecordReader(text, p.spec.DelimiterRune())
	meta := make(map[string]string)

	// Header block: exactly K non-empty records of metadata.
	for read := 0; read < p.spec.HeaderLines; {
		rec, err := rr.next()
		if err == io.EOF {
			return nil, stats, pkgerrors.MalformedStatementError(source,
				fmt.Sprintf("expected %d header lines, found %d", p.spec.HeaderLines, read))
		}
		stats.RecordsRead++
		if err != nil {
			stats.AddError(asParseError(err).At(source, rec.line, ""))
			read++
			continue
		}
		p.readMetadata(rec.fields, meta)
		read++
	}

	// Transaction header row. Lines between the header block and the row
	// are read as metadata too; some banks add lines the profile ignores.
	var columns *columnIndex
	for columns == nil {
		rec, err := rr.next()
		if err == io.EOF {
			return nil, stats, pkgerrors.MalformedStatementError(source,
				fmt.Sprintf("transaction header row not found (markers: %s)", strings.Join(p.spec.MarkerColumns, ", ")))
		}
		stats.RecordsRead++
		if err != nil {
			stats.AddError(asParseError(err).At(source, rec.line, ""))
			continue
		}
		if p.isTransactionHeader(rec.fields) {
			columns = newColumnIndex(rec.fields)
			stats.HeaderLine = rec.line
			break
		}
		p.readMetadata(rec.fields, meta)
	}

	if err := p.checkColumns(columns); err != nil {
		return nil, stats, pkgerrors.MalformedStatementError(source, err.Error())
	}

	stmt := &models.Statement{
		Source: source,
		Format: p.spec.Name,
	}

	for {
		rec, err := rr.next()
		if err == io.EOF {
			break
		}
		stats.RecordsRead++
		if err != nil {
			stats.AddError(asParseError(err).At(source, rec.line, ""))
			continue
		}

		tx, skip, perr := p.parseRow(rec, columns)
		if perr != nil {
			perr.At(source, rec.line, perr.Location.Column)
			log.WithError(perr).WithField("line", rec.line).Warn("Skipping row")
			stats.AddError(perr)
			continue
		}
		if skip {
			stats.SkippedRows++
			continue
		}
		stmt.Transactions = append(stmt.Transactions, tx)
		stats.TransactionRows++
	}
	stats.EmptyLines = rr.skipped

	p.applyMetadata(stmt, meta, log)
	p.checkBalance(stmt, log)

	log.WithFields(logger.Fields{
		"transactions": stats.TransactionRows,
		"skipped":      stats.SkippedRows,
		"errors":       stats.ErrorCount,
	}).Debug("Parsed statement")

	return stmt, stats, nil
}

// isTransactionHeader reports whether any field names a marker column
func (p *StatementParser) isTransactionHeader(fields []string) bool {
	for _, f := range fields {
		folded := locale.FoldText(f)
		if folded == "" {
			continue
		}
		for _, m := range p.spec.MarkerColumns {
			if folded == locale.FoldText(m) {
				return true
			}
		}
	}
	return false
}

// checkColumns verifies the header row carries the configured columns
func (p *StatementParser) checkColumns(c *columnIndex) error {
	found := false
	for _, col := range p.spec.DateColumns {
		if c.lookup(col) >= 0 {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("no date column (%s) in header %v", strings.Join(p.spec.DateColumns, ", "), c.headers)
	}

	required := []string{p.spec.AmountColumn}
	if p.spec.HasDebitCredit() {
		required = []string{p.spec.DebitColumn, p.spec.CreditColumn}
	}
	for _, col := range required {
		if c.lookup(col) < 0 {
			return fmt.Errorf("missing column %q in header %v", col, c.headers)
		}
	}
	return nil
}

// parseRow turns one record into a Transaction. skip is true for rows that
// carry no amount and no text.
func (p *StatementParser) parseRow(rec record, c *columnIndex) (models.Transaction, bool, *pkgerrors.ParseError) {
	tx := models.Transaction{
		Line:      rec.line,
		RawFields: make(map[string]string, len(c.headers)),
	}
	for i, h := range c.headers {
		if i < len(rec.fields) && h != "" {
			tx.RawFields[h] = rec.fields[i]
		}
	}

	var descParts []string
	for _, col := range p.spec.DescriptionColumns {
		if v := c.value(rec.fields, col); v != "" {
			descParts = append(descParts, v)
		}
	}
	tx.Description = strings.Join(descParts, " ")
	tx.Reference = c.value(rec.fields, p.spec.ReferenceColumn)

	amount, amountCol, empty, perr := p.rowAmount(rec.fields, c)
	if perr != nil {
		return tx, false, perr.At("", rec.line, amountCol)
	}
	tx.Amount = amount

	valueDate, bookingDate, dateCol, perr := p.rowDates(rec.fields, c)
	if perr != nil {
		return tx, false, perr.At("", rec.line, dateCol)
	}

	if valueDate.IsZero() {
		// Continuation lines of multi-line bookings carry neither a date nor
		// an amount.
		if empty {
			return tx, true, nil
		}
		return tx, false, pkgerrors.DateParseError("", p.spec.Formats(), nil).At("", rec.line, p.spec.DateColumns[0])
	}
	tx.Date = valueDate
	tx.BookingDate = bookingDate

	if tx.Amount.IsZero() && tx.Description == "" && tx.Reference == "" {
		return tx, true, nil
	}

	tx.Counterparty = c.value(rec.fields, p.spec.CounterpartyColumn)
	if tx.Counterparty == "" {
		tx.Counterparty = ExtractCounterparty(tx.Description, p.spec.BoilerplatePrefixes, p.spec.CounterpartySeparators)
	}

	return tx, false, nil
}

// rowAmount resolves the signed amount. Credits are positive, debits are
// negated whatever sign the bank wrote them with. empty is true when no
// amount cell had a value.
func (p *StatementParser) rowAmount(fields []string, c *columnIndex) (decimal.Decimal, string, bool, *pkgerrors.ParseError) {
	if !p.spec.HasDebitCredit() {
		raw := c.value(fields, p.spec.AmountColumn)
		if raw == "" {
			return decimal.Zero, p.spec.AmountColumn, true, nil
		}
		amount, err := locale.ParseAmount(raw, p.loc)
		if err != nil {
			return decimal.Zero, p.spec.AmountColumn, false, asParseError(err)
		}
		return amount, p.spec.AmountColumn, false, nil
	}

	amount := decimal.Zero
	rawDebit := c.value(fields, p.spec.DebitColumn)
	rawCredit := c.value(fields, p.spec.CreditColumn)
	if rawCredit != "" {
		credit, err := locale.ParseAmount(rawCredit, p.loc)
		if err != nil {
			return decimal.Zero, p.spec.CreditColumn, false, asParseError(err)
		}
		amount = amount.Add(credit.Abs())
	}
	if rawDebit != "" {
		debit, err := locale.ParseAmount(rawDebit, p.loc)
		if err != nil {
			return decimal.Zero, p.spec.DebitColumn, false, asParseError(err)
		}
		amount = amount.Sub(debit.Abs())
	}
	return amount, "", rawDebit == "" && rawCredit == "", nil
}

// rowDates returns the value date (falling back to the booking date) and
// the booking date when a second date column is configured.
func (p *StatementParser) rowDates(fields []string, c *columnIndex) (time.Time, time.Time, string, *pkgerrors.ParseError) {
	var parsed []time.Time
	for _, col := range p.spec.DateColumns {
		raw := c.value(fields, col)
		if raw == "" {
			parsed = append(parsed, time.Time{})
			continue
		}
		d, err := locale.ParseDate(raw, p.spec.Formats()...)
		if err != nil {
			return time.Time{}, time.Time{}, col, asParseError(err)
		}
		parsed = append(parsed, d)
	}

	var value, booking time.Time
	for _, d := range parsed {
		if !d.IsZero() {
			value = d
			break
		}
	}
	if len(parsed) > 1 {
		booking = parsed[len(parsed)-1]
	}
	return value, booking, "", nil
}

// readMetadata records a "key;value" line when the key is a known alias.
// The value is the first non-empty field after the key.
func (p *StatementParser) readMetadata(fields []string, meta map[string]string) {
	if len(fields) == 0 {
		return
	}
	key := locale.FoldText(strings.TrimSuffix(strings.TrimSpace(fields[0]), ":"))
	if key == "" {
		return
	}

	value := ""
	for _, f := range fields[1:] {
		if f != "" {
			value = f
			break
		}
	}

	for field := range DefaultMetadataKeys {
		if _, seen := meta[field]; seen {
			continue
		}
		for _, alias := range p.spec.MetadataAliases(field) {
			if key == alias {
				meta[field] = value
				return
			}
		}
	}
}

// applyMetadata fills account fields, period and balances. Unreadable
// balances and dates become warnings.
func (p *StatementParser) applyMetadata(stmt *models.Statement, meta map[string]string, log logger.Logger) {
	warn := func(code pkgerrors.ErrorCode, msg string) {
		stmt.Warnings = append(stmt.Warnings, models.Warning{Code: string(code), Message: msg})
		log.Warn(msg)
	}

	stmt.AccountID = meta[MetaAccount]
	stmt.IBAN = strings.ReplaceAll(meta[MetaIBAN], " ", "")
	stmt.Currency = strings.ToUpper(meta[MetaCurrency])
	if stmt.Currency == "" {
		stmt.Currency = p.spec.DefaultCurrency
	}

	balances := []struct {
		field  string
		target *decimal.NullDecimal
	}{
		{MetaOpening, &stmt.OpeningBalance},
		{MetaClosing, &stmt.ClosingBalance},
	}
	for _, b := range balances {
		field, target := b.field, b.target
		raw, ok := meta[field]
		if !ok || raw == "" {
			continue
		}
		amount, err := locale.ParseAmount(raw, p.loc)
		if err != nil {
			warn(pkgerrors.CodeInvalidAmount, fmt.Sprintf("unreadable %s %q", strings.ReplaceAll(field, "_", " "), raw))
			continue
		}
		*target = decimal.NewNullDecimal(amount)
	}

	if raw := meta[MetaPeriod]; raw != "" {
		if start, end, ok := SplitPeriod(raw, p.spec.Formats()); ok {
			stmt.PeriodStart, stmt.PeriodEnd = start, end
		} else {
			warn(pkgerrors.CodeInvalidDate, fmt.Sprintf("unreadable period %q", raw))
		}
	}
	bounds := []struct {
		field  string
		target *time.Time
	}{
		{MetaPeriodStart, &stmt.PeriodStart},
		{MetaPeriodEnd, &stmt.PeriodEnd},
	}
	for _, b := range bounds {
		field, target := b.field, b.target
		raw := meta[field]
		if raw == "" || !target.IsZero() {
			continue
		}
		d, err := locale.ParseDate(raw, p.spec.Formats()...)
		if err != nil {
			warn(pkgerrors.CodeInvalidDate, fmt.Sprintf("unreadable %s %q", strings.ReplaceAll(field, "_", " "), raw))
			continue
		}
		*target = d
	}

	if stmt.PeriodStart.IsZero() || stmt.PeriodEnd.IsZero() {
		first, last := transactionSpan(stmt.Transactions)
		if stmt.PeriodStart.IsZero() {
			stmt.PeriodStart = first
		}
		if stmt.PeriodEnd.IsZero() {
			stmt.PeriodEnd = last
		}
	}
}

// checkBalance attaches a tolerance violation warning when opening plus
// movements does not reach the closing balance.
func (p *StatementParser) checkBalance(stmt *models.Statement, log logger.Logger) {
	check := stmt.BalanceCheck(p.epsilon)
	if check.Holds() {
		return
	}

	violation := pkgerrors.ToleranceViolation(stmt.OpeningBalance.Decimal, check.Movements,
		stmt.ClosingBalance.Decimal, p.epsilon)
	stmt.Warnings = append(stmt.Warnings, models.Warning{
		Code:    string(pkgerrors.CodeToleranceViolation),
		Message: violation.Message,
	})
	log.WithField("difference", check.Difference.String()).Warn("Statement balance check failed")
}

func transactionSpan(txs []models.Transaction) (time.Time, time.Time) {
	var first, last time.Time
	for _, tx := range txs {
		if first.IsZero() || tx.Date.Before(first) {
			first = tx.Date
		}
		if last.IsZero() || tx.Date.After(last) {
			last = tx.Date
		}
	}
	return first, last
}

var periodSeparators = []string{" - ", " – ", " — ", " to ", " bis ", " al ", " au ", "–", "—", "-"}

// SplitPeriod reads a "start <sep> end" period such as
// "01.03.2024 - 31.03.2024" or "dal 01/06/2024 al 30/06/2024".
func SplitPeriod(raw string, formats []string) (time.Time, time.Time, bool) {
	s := strings.TrimSpace(raw)
	lower := strings.ToLower(s)
	if len(lower) != len(s) {
		lower = s
	}
	for _, sep := range periodSeparators {
		for offset := 0; ; {
			i := strings.Index(lower[offset:], sep)
			if i < 0 {
				break
			}
			i += offset
			left := trimWords(s[:i])
			right := trimWords(s[i+len(sep):])
			start, errStart := locale.ParseDate(left, formats...)
			end, errEnd := locale.ParseDate(right, formats...)
			if errStart == nil && errEnd == nil && !end.Before(start) {
				return start, end, true
			}
			offset = i + len(sep)
		}
	}
	return time.Time{}, time.Time{}, false
}

// trimWords strips leading and trailing words such as "from" or "dal".
func trimWords(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsLetter(r) || r == ':'
	})
}

// ExtractCounterparty strips boilerplate prefixes from a description
// (case-insensitive, repeatedly) and cuts at the earliest separator.
func ExtractCounterparty(description string, prefixes, separators []string) string {
	s := strings.TrimSpace(description)
	for stripped := true; stripped; {
		stripped = false
		for _, prefix := range prefixes {
			if prefix == "" || len(s) < len(prefix) {
				continue
			}
			if strings.EqualFold(s[:len(prefix)], prefix) {
				s = strings.TrimLeft(s[len(prefix):], " :-,")
				stripped = true
			}
		}
	}

	cut := len(s)
	for _, sep := range separators {
		if sep == "" {
			continue
		}
		if i := strings.Index(s, sep); i >= 0 && i < cut {
			cut = i
		}
	}
	return strings.TrimSpace(s[:cut])
}

func asParseError(err error) *pkgerrors.ParseError {
	if pe, ok := err.(*pkgerrors.ParseError); ok {
		return pe
	}
	return pkgerrors.RecordParseError("", err)
}
