package reconciler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/afero"

	"statement-reconciler/internal/aging"
	"statement-reconciler/internal/dedup"
	"statement-reconciler/internal/ledger"
	"statement-reconciler/internal/matcher"
	"statement-reconciler/internal/models"
	"statement-reconciler/internal/parsers"
	pkgerrors "statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"
)

// Service reconciles statements of one bank format against a ledger source.
type Service struct {
	config  ReconciliationConfig
	parser  *parsers.StatementParser
	dedup   *dedup.Deduplicator
	matcher *matcher.Matcher
	source  ledger.Source

	fs     afero.Fs
	logger logger.Logger
	now    func() time.Time
	newID  func() string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger
func WithLogger(log logger.Logger) ServiceOption {
	return func(s *Service) { s.logger = log }
}

// WithFs sets the filesystem statement paths are read from
func WithFs(fs afero.Fs) ServiceOption {
	return func(s *Service) { s.fs = fs }
}

// WithClock sets the clock used for report timestamps
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithRunIDs sets the generator of report run identifiers
func WithRunIDs(newID func() string) ServiceOption {
	return func(s *Service) { s.newID = newID }
}

// NewService creates a Service
func NewService(cfg ReconciliationConfig, source ledger.Source, opts ...ServiceOption) (*Service, error) {
	if source == nil {
		return nil, pkgerrors.ConfigurationError(pkgerrors.CodeMissingConfig, "ledger_source", nil, nil).
			WithSuggestion("provide a ledger source such as a CSV export")
	}
	if err := cfg.Validate(); err != nil {
		return nil, pkgerrors.ConfigurationError(pkgerrors.CodeInvalidConfig, "reconciliation", cfg.Format.Name, err)
	}
	if len(cfg.AgingBuckets) == 0 {
		cfg.AgingBuckets = aging.DefaultBuckets()
	}
	if cfg.SettledEpsilon.IsZero() {
		cfg.SettledEpsilon = aging.DefaultEpsilon
	}

	s := &Service{
		config: cfg,
		source: source,
		fs:     afero.NewOsFs(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.OrGlobal(s.logger).WithComponent("reconciler")

	var err error
	if s.parser, err = parsers.NewStatementParser(cfg.formatSpec(), s.logger); err != nil {
		return nil, err
	}
	if s.dedup, err = dedup.New(cfg.Dedup, s.logger); err != nil {
		return nil, pkgerrors.ConfigurationError(pkgerrors.CodeInvalidConfig, "dedup.strategies", cfg.Dedup.Strategies, err)
	}
	if s.matcher, err = matcher.New(cfg.Tolerance, s.logger); err != nil {
		return nil, err
	}
	return s, nil
}

// Config returns the configuration the service runs with
func (s *Service) Config() ReconciliationConfig {
	return s.config
}

// Request names one statement to reconcile. Either Path or Content is set.
type Request struct {
	Path    string
	Content []byte
	// AccountID selects the ledger account. Empty means the statement's IBAN
	// or account number.
	AccountID string
	// Format overrides the service format for this statement.
	Format *parsers.FormatSpec
}

// Name identifies the request in logs and errors
func (r Request) Name() string {
	if r.Path != "" {
		return r.Path
	}
	if r.AccountID != "" {
		return "account " + r.AccountID
	}
	return "<inline statement>"
}

// Result holds every intermediate output of a run next to its report.
type Result struct {
	Request    Request                 `json:"-"`
	AccountID  string                  `json:"account_id"`
	Statement  *models.Statement       `json:"statement"`
	ParseStats *parsers.ParseStats     `json:"parse_stats"`
	Duplicates []models.DuplicateGroup `json:"duplicates"`
	Matching   models.MatchReport      `json:"matching"`
	Aging      *aging.Result           `json:"aging"`
	// LedgerSkipped are ledger rows of the account the source could not read.
	LedgerSkipped []ledger.SkippedRow `json:"ledger_skipped,omitempty"`
	Report        Report              `json:"report"`
	Duration      time.Duration       `json:"duration"`
}

// Run reconciles one statement. Structural statement failures and ledger
// fetch failures are returned as errors; everything else, unmatched items
// included, ends up in the report.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	start := s.now()
	log := s.logger.WithField("statement", req.Name())

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stmt, stats, eps, err := s.parse(req)
	if err != nil {
		log.WithError(err).Error("Failed to parse statement")
		return nil, err
	}

	res := &Result{Request: req, Statement: stmt, ParseStats: stats}
	res.AccountID = req.AccountID
	if res.AccountID == "" {
		res.AccountID = stmt.Identifier()
	}
	log = log.WithField("account", res.AccountID)

	res.Duplicates = s.dedup.Detect(stmt.Transactions)

	entries, err := s.fetchCandidates(ctx, res.AccountID, stmt)
	if err != nil {
		log.WithError(err).Error("Failed to fetch ledger entries for matching")
		return nil, err
	}
	res.Matching = s.matcher.Match(stmt.Transactions, entries)

	asOf := s.asOf(stmt)
	open, err := s.source.FetchOpenEntries(ctx, res.AccountID, asOf)
	if err != nil {
		log.WithError(err).Error("Failed to fetch open ledger entries")
		return nil, ledgerError("fetch_open_entries", err)
	}
	open = ledger.Exclude(open, res.Matching.MatchedEntryIDs())
	if skipper, ok := s.source.(ledger.RowSkipper); ok {
		res.LedgerSkipped = skipper.SkippedRows(res.AccountID)
	}

	if res.Aging, err = aging.ClassifyWithEpsilon(open, asOf, s.config.AgingBuckets, s.config.SettledEpsilon); err != nil {
		return nil, pkgerrors.ConfigurationError(pkgerrors.CodeInvalidConfig, "aging.buckets", nil, err)
	}

	res.Report = BuildReport(ReportInput{
		Statement:      stmt,
		ParseStats:     stats,
		Duplicates:     res.Duplicates,
		Matching:       res.Matching,
		Aging:          res.Aging,
		LedgerSkipped:  res.LedgerSkipped,
		BalanceEpsilon: eps,
		AsOf:           asOf,
	}, s.config.Pass)
	res.Report.AccountID = res.AccountID
	res.Report.RunID = s.newID()
	res.Report.GeneratedAt = s.now()
	res.Duration = res.Report.GeneratedAt.Sub(start)

	log.WithFields(logger.Fields{
		"run_id":      res.Report.RunID,
		"matched":     res.Report.Totals.Matched,
		"bank_only":   res.Report.Totals.BankOnly,
		"ledger_only": res.Report.Totals.LedgerOnly,
		"duplicates":  res.Report.Totals.DuplicateGroups,
		"open":        res.Report.Totals.OpenEntries,
		"passed":      res.Report.Passed,
	}).Info("Reconciliation completed")

	return res, nil
}

// parse returns the statement with the balance epsilon it was checked with
func (s *Service) parse(req Request) (*models.Statement, *parsers.ParseStats, decimal.Decimal, error) {
	parser := s.parser
	if req.Format != nil {
		cfg := s.config
		cfg.Format = *req.Format
		var err error
		if parser, err = parsers.NewStatementParser(cfg.formatSpec(), s.logger); err != nil {
			return nil, nil, decimal.Zero, err
		}
	}
	spec := parser.Spec()
	eps, _ := spec.Epsilon()

	var (
		stmt  *models.Statement
		stats *parsers.ParseStats
		err   error
	)
	switch {
	case req.Path != "":
		stmt, stats, err = parser.ParseFile(s.fs, req.Path)
	case len(req.Content) > 0:
		stmt, stats, err = parser.Parse(req.Content)
	default:
		err = pkgerrors.ValidationError(pkgerrors.CodeMissingField, "request", req.Name(), nil).
			WithSuggestion("set a statement path or content")
	}
	return stmt, stats, eps, err
}

// fetchCandidates returns the ledger entries dated within the statement
// period widened by the date tolerance
func (s *Service) fetchCandidates(ctx context.Context, accountID string, stmt *models.Statement) ([]models.LedgerEntry, error) {
	if stmt.PeriodStart.IsZero() || stmt.PeriodEnd.IsZero() {
		return nil, nil
	}
	days := s.config.Tolerance.DateDays
	from := stmt.PeriodStart.AddDate(0, 0, -days)
	to := stmt.PeriodEnd.AddDate(0, 0, days)

	entries, err := s.source.FetchEntriesInRange(ctx, accountID, from, to)
	if err != nil {
		return nil, ledgerError("fetch_entries_in_range", err)
	}
	if s.config.MatchReconciled {
		return entries, nil
	}

	open := entries[:0:0]
	for _, e := range entries {
		if !e.Reconciled {
			open = append(open, e)
		}
	}
	return open, nil
}

func (s *Service) asOf(stmt *models.Statement) time.Time {
	switch {
	case !s.config.AsOf.IsZero():
		return models.Day(s.config.AsOf)
	case !stmt.PeriodEnd.IsZero():
		return models.Day(stmt.PeriodEnd)
	default:
		return models.Day(s.now())
	}
}

func ledgerError(operation string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return pkgerrors.WrapIfNeeded(err, pkgerrors.CategoryReconciliation, pkgerrors.CodeLedgerFetchFailed,
		"fetching ledger entries failed during "+operation)
}
