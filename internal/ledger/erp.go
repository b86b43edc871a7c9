package ledger

import (
	"context"
	"fmt"
	"time"

	"statement-reconciler/internal/models"
	pkgerrors "statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"
)

// Filter is one (field, operator, value) condition of an ERP search domain.
type Filter struct {
	Field    string
	Operator string
	Value    any
}

// String renders the filter as an ERP domain triple
func (f Filter) String() string {
	return fmt.Sprintf("(%q, %q, %v)", f.Field, f.Operator, f.Value)
}

// ERPClient is the part of the ERP remote API the reconciler reads from.
// Authentication and transport belong to the implementation.
type ERPClient interface {
	Search(ctx context.Context, model string, filters []Filter) ([]Record, error)
}

// ERPConfig names the model and fields queried on the ERP side.
type ERPConfig struct {
	Model string `mapstructure:"model"`
	// AccountField is compared with the account ID passed to the fetch calls.
	AccountField string `mapstructure:"account_field"`
	// PostedOnly restricts results to posted journal entries.
	PostedOnly bool `mapstructure:"posted_only"`
}

// DefaultERPConfig queries journal items by account code
func DefaultERPConfig() ERPConfig {
	return ERPConfig{
		Model:        "account.move.line",
		AccountField: "account_id.code",
		PostedOnly:   true,
	}
}

// ERPSource reads ledger entries through an ERPClient.
type ERPSource struct {
	client  ERPClient
	config  ERPConfig
	logger  logger.Logger
	skipped skipLog
}

// NewERPSource creates an ERP backed Source
func NewERPSource(client ERPClient, config ERPConfig, log logger.Logger) *ERPSource {
	if config.Model == "" {
		config.Model = DefaultERPConfig().Model
	}
	if config.AccountField == "" {
		config.AccountField = DefaultERPConfig().AccountField
	}
	return &ERPSource{
		client: client,
		config: config,
		logger: logger.OrGlobal(log).WithComponent("erp_source").WithField("model", config.Model),
	}
}

// FetchOpenEntries implements Source
func (s *ERPSource) FetchOpenEntries(ctx context.Context, accountID string, asOf time.Time) ([]models.LedgerEntry, error) {
	filters := append(s.baseFilters(accountID),
		Filter{Field: "reconciled", Operator: "=", Value: false},
		Filter{Field: "date", Operator: "<=", Value: asOf.Format(models.DateLayout)},
	)
	entries, err := s.search(ctx, "fetch_open_entries", accountID, filters)
	if err != nil {
		return nil, err
	}
	return filterEntries(entries, func(e models.LedgerEntry) bool { return isOpen(e, asOf) }), nil
}

// FetchEntriesInRange implements Source
func (s *ERPSource) FetchEntriesInRange(ctx context.Context, accountID string, from, to time.Time) ([]models.LedgerEntry, error) {
	filters := append(s.baseFilters(accountID),
		Filter{Field: "date", Operator: ">=", Value: from.Format(models.DateLayout)},
		Filter{Field: "date", Operator: "<=", Value: to.Format(models.DateLayout)},
	)
	entries, err := s.search(ctx, "fetch_entries_in_range", accountID, filters)
	if err != nil {
		return nil, err
	}
	return filterEntries(entries, func(e models.LedgerEntry) bool { return inRange(e, from, to) }), nil
}

func (s *ERPSource) baseFilters(accountID string) []Filter {
	var filters []Filter
	if accountID != "" {
		filters = append(filters, Filter{Field: s.config.AccountField, Operator: "=", Value: accountID})
	}
	if s.config.PostedOnly {
		filters = append(filters, Filter{Field: "parent_state", Operator: "=", Value: "posted"})
	}
	return filters
}

func (s *ERPSource) search(ctx context.Context, operation, accountID string, filters []Filter) ([]models.LedgerEntry, error) {
	records, err := s.client.Search(ctx, s.config.Model, filters)
	if err != nil {
		return nil, pkgerrors.ReconciliationError(pkgerrors.CodeLedgerFetchFailed, operation, err).
			WithContext("model", s.config.Model)
	}

	entries := make([]models.LedgerEntry, 0, len(records))
	var skipped []SkippedRow
	for _, r := range records {
		e, err := MapRecord(r)
		if err != nil {
			s.logger.WithError(err).WithField("record_id", r["id"]).Warn("Skipping unmappable ledger record")
			id, _ := toText(r["id"])
			skipped = append(skipped, SkippedRow{ID: id, Reason: err.Error()})
			continue
		}
		for _, d := range e.Diagnostics() {
			s.logger.Debug(d)
		}
		entries = append(entries, e)
	}

	s.logger.WithFields(logger.Fields{
		"operation": operation,
		"records":   len(records),
		"entries":   len(entries),
		"skipped":   len(skipped),
	}).Debug("Fetched ledger entries")
	s.skipped.add(accountID, skipped)
	return entries, nil
}

// SkippedRows implements RowSkipper
func (s *ERPSource) SkippedRows(accountID string) []SkippedRow {
	return s.skipped.get(accountID)
}
