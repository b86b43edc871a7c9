// Package locale converts locale-formatted amounts and dates found in bank
// exports into canonical decimals and calendar days.
package locale

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	pkgerrors "statement-reconciler/pkg/errors"
)

// NumberLocale describes how a bank writes numbers.
type NumberLocale struct {
	Name                string `yaml:"name" json:"name"`
	DecimalSeparator    rune   `yaml:"-" json:"-"`
	ThousandsSeparators []rune `yaml:"-" json:"-"`
}

var (
	// CH is used by Swiss exports: 1'234.56
	CH = NumberLocale{Name: "CH", DecimalSeparator: '.', ThousandsSeparators: []rune{'\'', '\u2019', ' '}}
	// DE is used by German and Austrian exports: 1.234,56
	DE = NumberLocale{Name: "DE", DecimalSeparator: ',', ThousandsSeparators: []rune{'.', ' '}}
	// IT is used by Italian exports: 1.234,56
	IT = NumberLocale{Name: "IT", DecimalSeparator: ',', ThousandsSeparators: []rune{'.', ' '}}
	// FR groups with (narrow) no-break spaces: 1 234,56
	FR = NumberLocale{Name: "FR", DecimalSeparator: ',', ThousandsSeparators: []rune{' ', '\u00a0', '\u202f'}}
	// US: 1,234.56
	US = NumberLocale{Name: "US", DecimalSeparator: '.', ThousandsSeparators: []rune{','}}
	// ISO has no grouping: 1234.56
	ISO = NumberLocale{Name: "ISO", DecimalSeparator: '.'}
)

var builtins = map[string]NumberLocale{
	"CH": CH, "DE": DE, "IT": IT, "FR": FR, "US": US, "ISO": ISO,
}

// Lookup returns a built-in locale by case-insensitive name.
func Lookup(name string) (NumberLocale, bool) {
	loc, ok := builtins[strings.ToUpper(strings.TrimSpace(name))]
	return loc, ok
}

// Names lists the built-in locale names in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the separators are usable
func (l NumberLocale) Validate() error {
	if l.DecimalSeparator == 0 {
		return fmt.Errorf("locale %s: decimal separator is required", l.Name)
	}
	if unicode.IsDigit(l.DecimalSeparator) {
		return fmt.Errorf("locale %s: decimal separator cannot be a digit", l.Name)
	}
	for _, r := range l.ThousandsSeparators {
		if r == l.DecimalSeparator {
			return fmt.Errorf("locale %s: %q is both decimal and thousands separator", l.Name, r)
		}
		if unicode.IsDigit(r) {
			return fmt.Errorf("locale %s: thousands separator cannot be a digit", l.Name)
		}
	}
	return nil
}

func (l NumberLocale) isThousands(r rune) bool {
	for _, sep := range l.ThousandsSeparators {
		if r == sep {
			return true
		}
	}
	return false
}

var canonicalAmount = regexp.MustCompile(`^\d+(\.\d+)?$`)

// ParseAmount converts a locale-formatted literal to a decimal.
// Currency codes and symbols around the number are ignored. A sign may be
// written as a leading + or -, a trailing -, or surrounding parentheses.
func ParseAmount(raw string, loc NumberLocale) (decimal.Decimal, error) {
	fail := func(reason string) (decimal.Decimal, error) {
		return decimal.Zero, pkgerrors.AmountParseError(raw, loc.Name, fmt.Errorf("%s", reason))
	}

	s := trimDecoration(strings.ReplaceAll(raw, "\u2212", "-"))
	if s == "" {
		return fail("empty value")
	}

	signs := 0
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		signs++
		negative = true
		s = trimDecoration(s[1 : len(s)-1])
	}
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		signs++
		negative = negative || s[0] == '-'
		s = trimDecoration(s[1:])
	}
	if strings.HasSuffix(s, "-") {
		signs++
		negative = true
		s = trimDecoration(s[:len(s)-1])
	}
	if signs > 1 {
		return fail("conflicting sign markers")
	}

	intPart, fracPart, hasDecimal := strings.Cut(s, string(loc.DecimalSeparator))
	if hasDecimal && strings.ContainsRune(fracPart, loc.DecimalSeparator) {
		return fail("more than one decimal separator")
	}

	digits, err := ungroup(intPart, loc)
	if err != nil {
		return fail(err.Error())
	}
	if digits == "" && hasDecimal {
		digits = "0"
	}

	cleaned := digits
	if hasDecimal {
		cleaned += "." + fracPart
	}
	if !canonicalAmount.MatchString(cleaned) {
		return fail(fmt.Sprintf("%q is not a decimal literal", cleaned))
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, pkgerrors.AmountParseError(raw, loc.Name, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// ungroup removes thousands separators, checking the digit grouping
// (first group 1-3 digits, then groups of exactly 3).
func ungroup(s string, loc NumberLocale) (string, error) {
	groups := strings.FieldsFunc(s, loc.isThousands)
	if len(groups) <= 1 {
		if len(groups) == 1 && strings.IndexFunc(s, loc.isThousands) >= 0 {
			return "", fmt.Errorf("misplaced thousands separator in %q", s)
		}
		return strings.Join(groups, ""), nil
	}

	// FieldsFunc drops empty fields, so doubled or edge separators need a
	// separate check.
	if n := len([]rune(s)) - len([]rune(strings.Join(groups, ""))); n != len(groups)-1 {
		return "", fmt.Errorf("misplaced thousands separator in %q", s)
	}
	if l := len(groups[0]); l < 1 || l > 3 {
		return "", fmt.Errorf("invalid digit grouping in %q", s)
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return "", fmt.Errorf("invalid digit grouping in %q", s)
		}
	}
	return strings.Join(groups, ""), nil
}

// trimDecoration strips whitespace, currency symbols and currency codes
// around a number.
func trimDecoration(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsLetter(r) || unicode.Is(unicode.Sc, r)
	})
}
