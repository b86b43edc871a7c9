// Package reconciler runs one reconciliation of a bank statement against the
// ledger of its account and aggregates the outcome into a Report.
//
// A run chains the core components:
//  1. parse the statement file
//  2. flag suspected duplicate transactions
//  3. fetch ledger entries around the statement period and match them
//  4. age the open ledger entries left unmatched
//  5. build the report
//
// Runs are independent; RunBatch executes several of them concurrently.
//
// Example usage:
//
//	cfg := reconciler.DefaultConfig()
//	cfg.Format, _ = parsers.NewRegistry().Get("ch-bank")
//
//	svc, err := reconciler.NewService(cfg, ledger.NewCSVSource(fs, "ledger.csv", ',', log),
//		reconciler.WithLogger(log))
//	result, err := svc.Run(ctx, reconciler.Request{Path: "statement.csv"})
//	fmt.Println(result.Report.Passed)
package reconciler

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"statement-reconciler/internal/aging"
	"statement-reconciler/internal/dedup"
	"statement-reconciler/internal/matcher"
	"statement-reconciler/internal/parsers"
)

// ReconciliationConfig holds every setting of a run. It is passed by value to
// NewService; nothing is read from process-wide state.
type ReconciliationConfig struct {
	Format    parsers.FormatSpec `mapstructure:"-"`
	Tolerance matcher.Tolerance  `mapstructure:"tolerance"`
	Dedup     dedup.Config       `mapstructure:"dedup"`

	AgingBuckets []aging.BucketSpec `mapstructure:"-"`
	// SettledEpsilon is the residual below which an open entry is settled.
	SettledEpsilon decimal.Decimal `mapstructure:"-"`

	// BalanceEpsilon overrides the format's balance check tolerance when set.
	BalanceEpsilon decimal.Decimal `mapstructure:"-"`

	Pass PassTolerance `mapstructure:"pass"`

	// MatchReconciled lets ledger entries already reconciled in the ERP take
	// part in matching.
	MatchReconciled bool `mapstructure:"match_reconciled"`

	// Concurrency bounds the runs of RunBatch executing at once.
	Concurrency int `mapstructure:"concurrency"`

	// AsOf is the aging date. Zero means the statement period end.
	AsOf time.Time `mapstructure:"-"`
}

// PassTolerance decides when a report passes.
type PassTolerance struct {
	// MaxUnmatchedItems is the number of bank-only plus ledger-only items
	// accepted. Negative means no limit.
	MaxUnmatchedItems int `mapstructure:"max_unmatched_items" json:"max_unmatched_items"`
	// MaxUnreconciledAmount bounds the sum of unmatched amount magnitudes.
	MaxUnreconciledAmount decimal.Decimal `mapstructure:"-" json:"max_unreconciled_amount"`
}

// DefaultConfig returns settings for a strict run with the default tolerance
func DefaultConfig() ReconciliationConfig {
	return ReconciliationConfig{
		Tolerance:      matcher.DefaultTolerance(),
		Dedup:          dedup.DefaultConfig(),
		AgingBuckets:   aging.DefaultBuckets(),
		SettledEpsilon: aging.DefaultEpsilon,
		Pass:           PassTolerance{MaxUnmatchedItems: 0, MaxUnreconciledAmount: decimal.Zero},
		Concurrency:    4,
	}
}

// Validate validates the configuration
func (c *ReconciliationConfig) Validate() error {
	if err := c.Format.Validate(); err != nil {
		return fmt.Errorf("format: %w", err)
	}
	if err := c.Tolerance.Validate(); err != nil {
		return fmt.Errorf("tolerance: %w", err)
	}
	if len(c.AgingBuckets) > 0 {
		if err := aging.ValidateBuckets(c.AgingBuckets); err != nil {
			return fmt.Errorf("aging buckets: %w", err)
		}
	}
	if c.BalanceEpsilon.IsNegative() {
		return fmt.Errorf("balance epsilon must not be negative, got %s", c.BalanceEpsilon)
	}
	if c.SettledEpsilon.IsNegative() {
		return fmt.Errorf("settled epsilon must not be negative, got %s", c.SettledEpsilon)
	}
	if c.Pass.MaxUnreconciledAmount.IsNegative() {
		return fmt.Errorf("max unreconciled amount must not be negative, got %s", c.Pass.MaxUnreconciledAmount)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency)
	}
	return nil
}

// formatSpec returns the format with the balance epsilon override applied
func (c *ReconciliationConfig) formatSpec() parsers.FormatSpec {
	spec := c.Format
	if c.BalanceEpsilon.IsPositive() {
		spec.BalanceEpsilon = c.BalanceEpsilon.String()
	}
	return spec
}
