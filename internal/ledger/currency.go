package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"statement-reconciler/internal/models"
	pkgerrors "statement-reconciler/pkg/errors"
)

// FixedRateConverter converts ledger amounts into one target currency with
// fixed rates. Rates give the target amount of one unit of the key currency.
type FixedRateConverter struct {
	Target string
	Rates  map[string]decimal.Decimal
}

// NewFixedRateConverter validates and normalizes the rates
func NewFixedRateConverter(target string, rates map[string]decimal.Decimal) (*FixedRateConverter, error) {
	target = strings.ToUpper(strings.TrimSpace(target))
	if target == "" {
		return nil, pkgerrors.ConfigurationError(pkgerrors.CodeMissingConfig, "currency.target", "", nil)
	}
	normalized := make(map[string]decimal.Decimal, len(rates))
	for code, rate := range rates {
		if !rate.IsPositive() {
			return nil, pkgerrors.ConfigurationError(pkgerrors.CodeInvalidConfig, "currency.rates."+code, rate.String(),
				fmt.Errorf("rate must be positive"))
		}
		normalized[strings.ToUpper(strings.TrimSpace(code))] = rate
	}
	return &FixedRateConverter{Target: target, Rates: normalized}, nil
}

// Convert returns e expressed in the target currency. Entries without a
// currency are taken to be in the target currency already.
func (c *FixedRateConverter) Convert(e models.LedgerEntry) (models.LedgerEntry, error) {
	code := strings.ToUpper(e.Currency)
	if code == "" || code == c.Target {
		return e, nil
	}
	rate, ok := c.Rates[code]
	if !ok {
		return e, pkgerrors.ValidationError(pkgerrors.CodeOutOfRange, "currency", code,
			fmt.Errorf("no rate from %s to %s", code, c.Target))
	}

	e.Debit = e.Debit.Mul(rate).Round(2)
	e.Credit = e.Credit.Mul(rate).Round(2)
	e.Residual = e.Residual.Mul(rate).Round(2)
	e.Currency = c.Target
	return e, nil
}

// ConvertAll converts every entry, failing on the first missing rate
func (c *FixedRateConverter) ConvertAll(entries []models.LedgerEntry) ([]models.LedgerEntry, error) {
	out := make([]models.LedgerEntry, len(entries))
	for i, e := range entries {
		converted, err := c.Convert(e)
		if err != nil {
			return nil, err
		}
		out[i] = converted
	}
	return out, nil
}

// ConvertingSource wraps a Source and converts what it returns.
type ConvertingSource struct {
	Source    Source
	Converter *FixedRateConverter
}

// FetchOpenEntries implements Source
func (s ConvertingSource) FetchOpenEntries(ctx context.Context, accountID string, asOf time.Time) ([]models.LedgerEntry, error) {
	entries, err := s.Source.FetchOpenEntries(ctx, accountID, asOf)
	if err != nil {
		return nil, err
	}
	return s.Converter.ConvertAll(entries)
}

// SkippedRows implements RowSkipper for the wrapped source
func (s ConvertingSource) SkippedRows(accountID string) []SkippedRow {
	if r, ok := s.Source.(RowSkipper); ok {
		return r.SkippedRows(accountID)
	}
	return nil
}

// FetchEntriesInRange implements Source
func (s ConvertingSource) FetchEntriesInRange(ctx context.Context, accountID string, from, to time.Time) ([]models.LedgerEntry, error) {
	entries, err := s.Source.FetchEntriesInRange(ctx, accountID, from, to)
	if err != nil {
		return nil, err
	}
	return s.Converter.ConvertAll(entries)
}
