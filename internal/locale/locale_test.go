package locale

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "statement-reconciler/pkg/errors"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		loc  NumberLocale
		want string
	}{
		{"swiss apostrophe", "1'234.56", CH, "1234.56"},
		{"swiss typographic apostrophe", "1’234’567.05", CH, "1234567.05"},
		{"swiss space grouping", "12 345.00", CH, "12345"},
		{"german", "1.234,56", DE, "1234.56"},
		{"german no grouping", "1234,56", DE, "1234.56"},
		{"german negative", "-1.234,56", DE, "-1234.56"},
		{"italian millions", "132.834,54", IT, "132834.54"},
		{"french narrow nbsp", "1\u202f234,56", FR, "1234.56"},
		{"french nbsp", "12\u00a0000,00", FR, "12000"},
		{"us", "1,234.56", US, "1234.56"},
		{"iso", "1234.56", ISO, "1234.56"},
		{"integer", "150", CH, "150"},
		{"leading plus", "+500.00", CH, "500"},
		{"trailing minus", "200.00-", CH, "-200"},
		{"parentheses", "(75.10)", US, "-75.1"},
		{"currency code prefix", "CHF 1'000.00", CH, "1000"},
		{"currency symbol suffix", "1.000,00 €", DE, "1000"},
		{"code before sign", "EUR -12,50", DE, "-12.5"},
		{"unicode minus", "−3.50", CH, "-3.5"},
		{"fraction only", ",5", DE, "0.5"},
		{"surrounding whitespace", "  42.00 ", ISO, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.raw, tt.loc)
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestParseAmountErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		loc  NumberLocale
	}{
		{"empty", "", CH},
		{"only currency", "CHF", CH},
		{"letters inside", "12a4.00", CH},
		{"two decimal separators", "1,2,3", DE},
		{"wrong locale grouping", "1234.56", DE},
		{"bad group size", "1'23.00", CH},
		{"leading group too long", "1234'567.00", CH},
		{"doubled separator", "1''234.00", CH},
		{"trailing decimal", "12.", ISO},
		{"double sign", "(-5.00)", US},
		{"dangling separator", "1'", CH},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAmount(tt.raw, tt.loc)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsParseError(err))

			re, ok := pkgerrors.AsReconcilerError(err)
			require.True(t, ok)
			assert.Equal(t, pkgerrors.CodeInvalidAmount, re.Code)
		})
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	for _, raw := range []string{"05.03.2024", "05/03/2024", "2024-03-05", "05.03.24", " 05.03.2024 "} {
		got, err := ParseDate(raw)
		require.NoError(t, err, raw)
		assert.True(t, got.Equal(want), "%s parsed as %s", raw, got)
	}

	got, err := ParseDate("03/05/2024", "01/02/2006")
	require.NoError(t, err)
	assert.True(t, got.Equal(want))

	_, err = ParseDate("2024-03-05", "02.01.2006")
	require.Error(t, err)
	re, ok := pkgerrors.AsReconcilerError(err)
	require.True(t, ok)
	assert.Equal(t, pkgerrors.CodeInvalidDate, re.Code)

	_, err = ParseDate("31.02.2024")
	assert.Error(t, err)

	_, err = ParseDate("")
	assert.Error(t, err)
}

func TestLookup(t *testing.T) {
	loc, ok := Lookup("ch")
	require.True(t, ok)
	assert.Equal(t, '.', loc.DecimalSeparator)

	_, ok = Lookup("XX")
	assert.False(t, ok)

	assert.Equal(t, []string{"CH", "DE", "FR", "ISO", "IT", "US"}, Names())

	for _, name := range Names() {
		loc, _ := Lookup(name)
		assert.NoError(t, loc.Validate(), name)
	}

	bad := NumberLocale{Name: "bad", DecimalSeparator: ',', ThousandsSeparators: []rune{','}}
	assert.Error(t, bad.Validate())
}

func TestFoldText(t *testing.T) {
	assert.Equal(t, "muller ag", FoldText("  Müller   AG "))
	assert.Equal(t, "societe generale", FoldText("Société\tGénérale"))
	assert.Equal(t, FoldText("ACME SA"), FoldText("acme sa"))
	assert.Equal(t, "", FoldText("   "))
}
