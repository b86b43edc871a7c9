package parsers

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"statement-reconciler/internal/locale"
)

// Metadata fields recognized in the statement header block.
const (
	MetaAccount     = "account"
	MetaIBAN        = "iban"
	MetaCurrency    = "currency"
	MetaPeriod      = "period"
	MetaPeriodStart = "period_start"
	MetaPeriodEnd   = "period_end"
	MetaOpening     = "opening_balance"
	MetaClosing     = "closing_balance"
)

// DefaultBalanceEpsilon is the tolerance of the statement balance check.
var DefaultBalanceEpsilon = decimal.New(1, -2)

// FormatSpec describes one bank export layout. Column and metadata names are
// matched case- and accent-insensitively.
type FormatSpec struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Delimiter   string   `yaml:"delimiter" json:"delimiter"`
	HeaderLines int      `yaml:"header_lines" json:"header_lines"`
	Encoding    Encoding `yaml:"encoding,omitempty" json:"encoding,omitempty"`
	Locale      string   `yaml:"locale" json:"locale"`
	DateFormats []string `yaml:"date_formats,omitempty" json:"date_formats,omitempty"`

	// MarkerColumns identify the transaction header row: the first row
	// after the header block containing any of them.
	MarkerColumns []string `yaml:"marker_columns" json:"marker_columns"`

	// DateColumns lists the value date column, then the booking date column.
	DateColumns        []string `yaml:"date_columns" json:"date_columns"`
	AmountColumn       string   `yaml:"amount_column,omitempty" json:"amount_column,omitempty"`
	DebitColumn        string   `yaml:"debit_column,omitempty" json:"debit_column,omitempty"`
	CreditColumn       string   `yaml:"credit_column,omitempty" json:"credit_column,omitempty"`
	DescriptionColumns []string `yaml:"description_columns,omitempty" json:"description_columns,omitempty"`
	CounterpartyColumn string   `yaml:"counterparty_column,omitempty" json:"counterparty_column,omitempty"`
	ReferenceColumn    string   `yaml:"reference_column,omitempty" json:"reference_column,omitempty"`

	// MetadataKeys maps a Meta* field to the header-block keys naming it.
	// Unset fields fall back to DefaultMetadataKeys.
	MetadataKeys    map[string][]string `yaml:"metadata_keys,omitempty" json:"metadata_keys,omitempty"`
	DefaultCurrency string              `yaml:"default_currency,omitempty" json:"default_currency,omitempty"`

	BoilerplatePrefixes    []string `yaml:"boilerplate_prefixes,omitempty" json:"boilerplate_prefixes,omitempty"`
	CounterpartySeparators []string `yaml:"counterparty_separators,omitempty" json:"counterparty_separators,omitempty"`

	// BalanceEpsilon is a decimal literal; empty means DefaultBalanceEpsilon.
	BalanceEpsilon string `yaml:"balance_epsilon,omitempty" json:"balance_epsilon,omitempty"`
}

// DefaultMetadataKeys covers the header keys seen in English, German,
// Italian and French exports.
var DefaultMetadataKeys = map[string][]string{
	MetaAccount:     {"account", "account number", "konto", "kontonummer", "conto", "conto corrente", "numero conto", "compte", "numero de compte"},
	MetaIBAN:        {"iban"},
	MetaCurrency:    {"currency", "wahrung", "divisa", "devise"},
	MetaPeriod:      {"period", "zeitraum", "periode", "periodo", "statement period"},
	MetaPeriodStart: {"from", "date from", "datum von", "von", "dal", "du"},
	MetaPeriodEnd:   {"to", "date to", "datum bis", "bis", "al", "au"},
	MetaOpening:     {"opening balance", "anfangssaldo", "saldo iniziale", "solde initial", "solde de debut"},
	MetaClosing:     {"closing balance", "schlusssaldo", "endsaldo", "saldo finale", "solde final", "solde de fin"},
}

// Validate checks if the format spec is usable
func (f *FormatSpec) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("format name cannot be empty")
	}

	if utf8.RuneCountInString(f.Delimiter) != 1 {
		return fmt.Errorf("format %s: delimiter must be a single character, got %q", f.Name, f.Delimiter)
	}

	if f.HeaderLines < 0 {
		return fmt.Errorf("format %s: header lines cannot be negative", f.Name)
	}

	if _, err := ParseEncoding(string(f.Encoding)); err != nil {
		return fmt.Errorf("format %s: %w", f.Name, err)
	}

	if _, ok := locale.Lookup(f.Locale); !ok {
		return fmt.Errorf("format %s: unknown locale %q (known: %s)", f.Name, f.Locale, strings.Join(locale.Names(), ", "))
	}

	if len(f.MarkerColumns) == 0 {
		return fmt.Errorf("format %s: at least one marker column is required", f.Name)
	}

	if len(f.DateColumns) == 0 {
		return fmt.Errorf("format %s: at least one date column is required", f.Name)
	}

	hasSigned := strings.TrimSpace(f.AmountColumn) != ""
	hasPair := strings.TrimSpace(f.DebitColumn) != "" && strings.TrimSpace(f.CreditColumn) != ""
	if hasSigned == hasPair {
		return fmt.Errorf("format %s: configure either amount_column or both debit_column and credit_column", f.Name)
	}

	for field := range f.MetadataKeys {
		if _, ok := DefaultMetadataKeys[field]; !ok {
			return fmt.Errorf("format %s: unknown metadata field %q", f.Name, field)
		}
	}

	if _, err := f.Epsilon(); err != nil {
		return fmt.Errorf("format %s: %w", f.Name, err)
	}

	return nil
}

// DelimiterRune returns the field separator
func (f *FormatSpec) DelimiterRune() rune {
	r, _ := utf8.DecodeRuneInString(f.Delimiter)
	return r
}

// NumberLocale resolves the locale by name, defaulting to ISO
func (f *FormatSpec) NumberLocale() locale.NumberLocale {
	if loc, ok := locale.Lookup(f.Locale); ok {
		return loc
	}
	return locale.ISO
}

// Formats returns the date layouts, defaulting to locale.DefaultDateFormats
func (f *FormatSpec) Formats() []string {
	if len(f.DateFormats) == 0 {
		return locale.DefaultDateFormats
	}
	return f.DateFormats
}

// Epsilon returns the balance tolerance
func (f *FormatSpec) Epsilon() (decimal.Decimal, error) {
	if strings.TrimSpace(f.BalanceEpsilon) == "" {
		return DefaultBalanceEpsilon, nil
	}
	eps, err := decimal.NewFromString(strings.TrimSpace(f.BalanceEpsilon))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid balance epsilon %q: %w", f.BalanceEpsilon, err)
	}
	if eps.IsNegative() {
		return decimal.Zero, fmt.Errorf("balance epsilon cannot be negative")
	}
	return eps, nil
}

// MetadataAliases returns the folded header keys for a Meta* field
func (f *FormatSpec) MetadataAliases(field string) []string {
	aliases, ok := f.MetadataKeys[field]
	if !ok {
		aliases = DefaultMetadataKeys[field]
	}
	folded := make([]string, len(aliases))
	for i, a := range aliases {
		folded[i] = locale.FoldText(a)
	}
	return folded
}

// HasDebitCredit reports whether amounts come from a column pair
func (f *FormatSpec) HasDebitCredit() bool {
	return strings.TrimSpace(f.AmountColumn) == ""
}
