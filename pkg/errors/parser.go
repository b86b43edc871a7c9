package errors

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ParseLocation identifies where in a statement file a literal was read.
type ParseLocation struct {
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Column   string `json:"column,omitempty"`
	Value    string `json:"value"`
	Expected string `json:"expected,omitempty"`
}

// ParseError is a row-level failure to interpret a numeric or date literal.
// It is recoverable: callers skip the row and keep the error as a warning.
type ParseError struct {
	*ReconcilerError
	Location ParseLocation `json:"location"`
	Examples []string      `json:"examples,omitempty"`
}

// Error implements the error interface with the location appended
func (e *ParseError) Error() string {
	parts := []string{e.ReconcilerError.Error()}

	loc := e.Location
	if loc.File != "" || loc.Line > 0 || loc.Column != "" {
		where := "at"
		if loc.File != "" {
			where += " " + filepath.Base(loc.File)
		}
		if loc.Line > 0 {
			if loc.File != "" {
				where += fmt.Sprintf(":%d", loc.Line)
			} else {
				where += fmt.Sprintf(" line %d", loc.Line)
			}
		}
		if loc.Column != "" {
			where += fmt.Sprintf(" column '%s'", loc.Column)
		}
		parts = append(parts, where)
	}

	return strings.Join(parts, " ")
}

// Unwrap exposes the embedded ReconcilerError so errors.As finds it.
func (e *ParseError) Unwrap() error {
	return e.ReconcilerError
}

// At records the position of the failing literal.
func (e *ParseError) At(file string, line int, column string) *ParseError {
	e.Location.File = file
	e.Location.Line = line
	e.Location.Column = column
	e.ReconcilerError.
		WithContext("file", file).
		WithContext("line", line).
		WithContext("column", column)
	return e
}

// GetDetailedError returns a detailed multi-line error description
func (e *ParseError) GetDetailedError() string {
	var lines []string

	lines = append(lines, fmt.Sprintf("ERROR: %s", e.Message))
	if e.Location.File != "" {
		lines = append(lines, fmt.Sprintf("  -> File: %s", e.Location.File))
	}
	if e.Location.Line > 0 {
		lines = append(lines, fmt.Sprintf("  -> Line: %d", e.Location.Line))
	}
	if e.Location.Column != "" {
		lines = append(lines, fmt.Sprintf("  -> Column: %s", e.Location.Column))
	}
	lines = append(lines, fmt.Sprintf("  -> Value: '%s'", e.Location.Value))
	if e.Location.Expected != "" {
		lines = append(lines, fmt.Sprintf("  -> Expected: %s", e.Location.Expected))
	}
	if e.Suggestion != "" {
		lines = append(lines, fmt.Sprintf("  -> Suggestion: %s", e.Suggestion))
	}
	if len(e.Examples) > 0 {
		lines = append(lines, fmt.Sprintf("  -> Examples: %s", strings.Join(e.Examples, ", ")))
	}

	return strings.Join(lines, "\n")
}

func newParseError(code ErrorCode, message, value, expected string, cause error) *ParseError {
	base := newOrWrap(cause, CategoryParse, code, message).WithContext("value", value)
	return &ParseError{
		ReconcilerError: base,
		Location: ParseLocation{
			Value:    value,
			Expected: expected,
		},
	}
}

// AmountParseError reports a literal that is not a valid amount in the locale.
func AmountParseError(value, locale string, cause error) *ParseError {
	err := newParseError(CodeInvalidAmount,
		fmt.Sprintf("invalid amount %q for locale %s", value, locale),
		value, fmt.Sprintf("decimal number in %s notation", locale), cause)
	err.ReconcilerError.
		WithSuggestion("check the format profile locale against the bank export").
		WithContext("locale", locale)
	return err
}

// DateParseError reports a literal that matches none of the configured layouts.
func DateParseError(value string, formats []string, cause error) *ParseError {
	err := newParseError(CodeInvalidDate,
		fmt.Sprintf("invalid date %q", value),
		value, fmt.Sprintf("one of %s", strings.Join(formats, ", ")), cause)
	err.ReconcilerError.
		WithSuggestion("add the bank's date layout to the format profile").
		WithContext("formats", formats)
	return err
}

// RecordParseError reports a delimited record that could not be read at all.
func RecordParseError(value string, cause error) *ParseError {
	err := newParseError(CodeInvalidRecord, "unreadable record", value, "delimited record", cause)
	err.ReconcilerError.WithSuggestion("check quoting and the delimiter of the format profile")
	return err
}

// MalformedStatementError reports a structural failure that aborts parsing
// of one statement file.
func MalformedStatementError(file, reason string) *ReconcilerError {
	message := "malformed statement: " + reason
	if file != "" {
		message = fmt.Sprintf("malformed statement %s: %s", filepath.Base(file), reason)
	}
	return New(CategoryParse, CodeMalformedStatement, message).
		WithSuggestion("verify the format profile header line count and marker columns").
		WithContext("file_path", file)
}

// ToleranceViolation reports a failed statement balance check.
func ToleranceViolation(opening, movements, closing, epsilon decimal.Decimal) *ReconcilerError {
	computed := opening.Add(movements)
	diff := computed.Sub(closing)
	message := fmt.Sprintf("opening %s + movements %s = %s differs from closing %s by %s (epsilon %s)",
		opening.StringFixed(2), movements.StringFixed(2), computed.StringFixed(2),
		closing.StringFixed(2), diff.StringFixed(2), epsilon.String())

	return New(CategoryReconciliation, CodeToleranceViolation, message).
		WithSuggestion("look for missing rows or a truncated export").
		WithContext("opening_balance", opening.String()).
		WithContext("closing_balance", closing.String()).
		WithContext("difference", diff.String())
}

// IsParseError reports whether err is a recoverable literal parse failure.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsMalformedStatement reports whether err aborted parsing of a file.
func IsMalformedStatement(err error) bool {
	return HasCode(err, CodeMalformedStatement)
}

// IsToleranceViolation reports whether err is a failed balance check.
func IsToleranceViolation(err error) bool {
	return HasCode(err, CodeToleranceViolation)
}

// FormatParseErrorsForUser formats multiple parse errors in a user-friendly way
func FormatParseErrorsForUser(errs []*ParseError) string {
	if len(errs) == 0 {
		return "No parse errors"
	}

	if len(errs) == 1 {
		return errs[0].GetDetailedError()
	}

	const maxDetailed = 3
	lines := []string{fmt.Sprintf("Found %d parse errors:", len(errs))}
	for i, err := range errs {
		if i == maxDetailed {
			lines = append(lines, "", fmt.Sprintf("... and %d more", len(errs)-maxDetailed))
			break
		}
		lines = append(lines, "", err.GetDetailedError())
	}

	return strings.Join(lines, "\n")
}
