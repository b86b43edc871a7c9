// Package parsers reads bank statement exports into models.Statement.
//
// A statement export is delimited text made of three parts:
//
//   - a header block of K "key;value" metadata lines (account, IBAN,
//     currency, period, opening and closing balance)
//   - a transaction header row, found by the presence of any marker column
//   - transaction rows keyed by that header
//
// Layouts differ per bank and are described by a FormatSpec rather than by
// per-bank code. Row-level literal errors are collected in ParseStats and
// never abort the file; a missing header block or transaction header row
// fails the whole file with a malformed statement error.
package parsers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"statement-reconciler/internal/locale"
	pkgerrors "statement-reconciler/pkg/errors"
)

// record is one non-empty delimited line with its physical line number.
type record struct {
	line   int
	fields []string
}

// recordReader yields non-empty records from physical lines. Blank lines and
// lines whose fields are all empty are skipped and counted. A quoted field
// never extends past its line.
type recordReader struct {
	lines     []string
	pos       int
	delimiter rune
	skipped   int
}

func newRecordReader(text string, delimiter rune) *recordReader {
	lines := strings.Split(text, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return &recordReader{lines: lines, delimiter: delimiter}
}

// next returns io.EOF at the end of input. Lines that cannot be split are
// returned as *pkgerrors.ParseError so the caller can skip them.
func (rr *recordReader) next() (record, error) {
	for rr.pos < len(rr.lines) {
		rr.pos++
		line := rr.pos
		raw := strings.TrimSuffix(rr.lines[line-1], "\r")
		if strings.TrimSpace(raw) == "" {
			rr.skipped++
			continue
		}

		fields, err := splitLine(raw, rr.delimiter)
		if err != nil {
			return record{line: line}, pkgerrors.RecordParseError(raw, err)
		}
		if isEmptyRecord(fields) {
			rr.skipped++
			continue
		}
		return record{line: line, fields: trimFields(fields)}, nil
	}
	return record{}, io.EOF
}

// splitLine reads one line as a delimited record. Quotes that do not form a
// well-formed quoted field, such as `"Hausbank" AG`, are kept as text.
func splitLine(line string, delimiter rune) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(line))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	fields, err := reader.Read()
	switch {
	case err == nil:
		return fields, nil
	case errors.Is(err, csv.ErrQuote), errors.Is(err, csv.ErrBareQuote):
		return strings.Split(line, string(delimiter)), nil
	default:
		return nil, err
	}
}

// isEmptyRecord checks if all fields in a record are empty or whitespace
func isEmptyRecord(fields []string) bool {
	for _, field := range fields {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func trimFields(fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = strings.TrimSpace(f)
	}
	return out
}

// columnIndex maps folded header names to their first position.
type columnIndex struct {
	headers []string
	byName  map[string]int
}

func newColumnIndex(headers []string) *columnIndex {
	idx := &columnIndex{headers: headers, byName: make(map[string]int, len(headers))}
	for i, h := range headers {
		key := locale.FoldText(h)
		if _, dup := idx.byName[key]; !dup && key != "" {
			idx.byName[key] = i
		}
	}
	return idx
}

// lookup returns the column position or -1
func (c *columnIndex) lookup(name string) int {
	if i, ok := c.byName[locale.FoldText(name)]; ok {
		return i
	}
	return -1
}

// value safely retrieves a field value by column name
func (c *columnIndex) value(fields []string, name string) string {
	i := c.lookup(name)
	if i < 0 || i >= len(fields) {
		return ""
	}
	return fields[i]
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	Source          string                  `json:"source,omitempty"`
	Encoding        Encoding                `json:"encoding"`
	HeaderLine      int                     `json:"header_line"`
	RecordsRead     int                     `json:"records_read"`
	TransactionRows int                     `json:"transaction_rows"`
	EmptyLines      int                     `json:"empty_lines"`
	SkippedRows     int                     `json:"skipped_rows"`
	ErrorCount      int                     `json:"error_count"`
	Errors          []*pkgerrors.ParseError `json:"errors,omitempty"`
}

// NewParseStats creates a new ParseStats instance
func NewParseStats(source string) *ParseStats {
	return &ParseStats{Source: source, Errors: make([]*pkgerrors.ParseError, 0)}
}

// AddError adds an error to the parsing statistics
func (ps *ParseStats) AddError(err *pkgerrors.ParseError) {
	ps.Errors = append(ps.Errors, err)
	ps.ErrorCount++
}

// HasErrors returns true if there were any parsing errors
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorCount > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Read %d records, %d transactions, %d skipped, %d errors",
		ps.RecordsRead, ps.TransactionRows, ps.SkippedRows, ps.ErrorCount)
}

// GetSampleErrors returns a sample of the parsing errors for logging/debugging
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	if len(ps.Errors) == 0 {
		return nil
	}

	limit := len(ps.Errors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	samples := make([]string, 0, limit)
	for _, err := range ps.Errors[:limit] {
		samples = append(samples, err.Error())
	}
	return samples
}
