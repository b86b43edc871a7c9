// Package config turns CLI flags, environment variables and config files into
// the values the reconciliation packages are constructed with.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"statement-reconciler/internal/aging"
	"statement-reconciler/internal/ledger"
	"statement-reconciler/internal/locale"
	"statement-reconciler/internal/parsers"
	"statement-reconciler/internal/reconciler"
	"statement-reconciler/internal/reporter"
	"statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"
)

// EnvPrefix prefixes environment variables, e.g. RECONCILER_DATE_TOLERANCE
const EnvPrefix = "RECONCILER"

// Settings is the flat view of every CLI setting. Keys match the flag names.
type Settings struct {
	Statements   []string `mapstructure:"statement"`
	Ledger       string   `mapstructure:"ledger"`
	LedgerSep    string   `mapstructure:"ledger-delimiter"`
	Account      string   `mapstructure:"account"`
	Format       string   `mapstructure:"format"`
	ProfilesFile string   `mapstructure:"profiles"`
	AsOf         string   `mapstructure:"as-of"`

	DateTolerance      int    `mapstructure:"date-tolerance"`
	AmountTolerance    string `mapstructure:"amount-tolerance"`
	AmountTolerancePct string `mapstructure:"amount-tolerance-pct"`
	SignedAmounts      bool   `mapstructure:"signed-amounts"`
	IgnoreCounterparty bool   `mapstructure:"ignore-counterparty"`
	MatchReconciled    bool   `mapstructure:"match-reconciled"`

	DedupStrategies []string `mapstructure:"dedup-strategies"`
	AgingBuckets    string   `mapstructure:"aging-buckets"`
	BalanceEpsilon  string   `mapstructure:"balance-epsilon"`

	MaxUnmatchedItems     int    `mapstructure:"max-unmatched-items"`
	MaxUnreconciledAmount string `mapstructure:"max-unreconciled-amount"`
	Concurrency           int    `mapstructure:"concurrency"`

	// Currency is the statement currency ledger entries are converted to
	// when Rates is set.
	Currency string            `mapstructure:"currency"`
	Rates    map[string]string `mapstructure:"rates"`

	OutputFormat       string `mapstructure:"output-format"`
	OutputFile         string `mapstructure:"output-file"`
	FailOnUnreconciled bool   `mapstructure:"fail-on-unreconciled"`

	Verbose   bool   `mapstructure:"verbose"`
	LogLevel  string `mapstructure:"log-level"`
	LogFormat string `mapstructure:"log-format"`
	LogFile   string `mapstructure:"log-file"`
}

// Load reads the settings from v
func Load(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "settings", nil, err).
			WithSuggestion("Check the types of the values in the config file")
	}
	return &s, nil
}

// Configure makes v read RECONCILER_ environment variables and, when path is
// set, the given config file
func Configure(v *viper.Viper, path string) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "config", path, err).
			WithSuggestion("Check the config file path and its syntax")
	}
	return nil
}

// LoggerConfig builds the logger configuration. Logs go to stderr so they
// never mix with a report written to stdout.
func (s *Settings) LoggerConfig() *logger.Config {
	cfg := logger.DefaultConfig()
	if s.Verbose {
		cfg = logger.DebugConfig()
	}
	cfg.Output = logger.StderrOutput
	if s.LogLevel != "" {
		cfg.Level = logger.Level(strings.ToLower(s.LogLevel))
	}
	if s.LogFormat != "" {
		cfg.Format = logger.Format(strings.ToLower(s.LogFormat))
	}
	if s.LogFile != "" {
		cfg.Output = logger.FileOutput
		cfg.File = s.LogFile
	}
	return cfg
}

// Registry returns the built-in format profiles plus those of ProfilesFile
func (s *Settings) Registry(fs afero.Fs) (*parsers.Registry, error) {
	reg := parsers.NewRegistry()
	if s.ProfilesFile != "" {
		if err := reg.LoadFile(fs, s.ProfilesFile); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// FormatSpec resolves the Format setting in reg
func (s *Settings) FormatSpec(reg *parsers.Registry) (parsers.FormatSpec, error) {
	name := s.Format
	if name == "" {
		name = parsers.GenericSemicolon.Name
	}
	spec, ok := reg.Get(name)
	if !ok {
		names := make([]string, 0)
		for _, p := range reg.List() {
			names = append(names, p.Name)
		}
		return parsers.FormatSpec{}, errors.ConfigurationError(errors.CodeInvalidConfig, "format", name, nil).
			WithSuggestion("Use one of: " + strings.Join(names, ", "))
	}
	return spec, nil
}

// AsOfDate parses the as-of setting. Empty means zero.
func (s *Settings) AsOfDate() (time.Time, error) {
	if strings.TrimSpace(s.AsOf) == "" {
		return time.Time{}, nil
	}
	t, err := locale.ParseDate(s.AsOf)
	if err != nil {
		return time.Time{}, errors.ConfigurationError(errors.CodeInvalidConfig, "as-of", s.AsOf, err).
			WithSuggestion("Use YYYY-MM-DD")
	}
	return t, nil
}

// ReconciliationConfig builds the run configuration
func (s *Settings) ReconciliationConfig(reg *parsers.Registry) (reconciler.ReconciliationConfig, error) {
	cfg := reconciler.DefaultConfig()

	var err error
	if cfg.Format, err = s.FormatSpec(reg); err != nil {
		return cfg, err
	}
	if cfg.AsOf, err = s.AsOfDate(); err != nil {
		return cfg, err
	}

	cfg.Tolerance.DateDays = s.DateTolerance
	cfg.Tolerance.SignedAmounts = s.SignedAmounts
	cfg.Tolerance.IgnoreCounterparty = s.IgnoreCounterparty
	if cfg.Tolerance.AmountAbs, err = decimalSetting("amount-tolerance", s.AmountTolerance, cfg.Tolerance.AmountAbs); err != nil {
		return cfg, err
	}
	pct, err := decimalSetting("amount-tolerance-pct", s.AmountTolerancePct, decimal.Zero)
	if err != nil {
		return cfg, err
	}
	// percent on the command line, fraction in the tolerance
	cfg.Tolerance.AmountPct = pct.Div(decimal.NewFromInt(100))

	cfg.MatchReconciled = s.MatchReconciled
	if len(s.DedupStrategies) > 0 {
		cfg.Dedup.Strategies = s.DedupStrategies
	}
	if s.AgingBuckets != "" {
		if cfg.AgingBuckets, err = aging.ParseBuckets(s.AgingBuckets); err != nil {
			return cfg, errors.ConfigurationError(errors.CodeInvalidConfig, "aging-buckets", s.AgingBuckets, err).
				WithSuggestion(`Use inclusive ranges ending with an open bucket, e.g. "0-30,31-60,61+"`)
		}
	}
	if cfg.BalanceEpsilon, err = decimalSetting("balance-epsilon", s.BalanceEpsilon, decimal.Zero); err != nil {
		return cfg, err
	}

	cfg.Pass.MaxUnmatchedItems = s.MaxUnmatchedItems
	if cfg.Pass.MaxUnreconciledAmount, err = decimalSetting("max-unreconciled-amount", s.MaxUnreconciledAmount, decimal.Zero); err != nil {
		return cfg, err
	}
	if s.Concurrency > 0 {
		cfg.Concurrency = s.Concurrency
	}

	if err := cfg.Validate(); err != nil {
		return cfg, errors.ConfigurationError(errors.CodeInvalidConfig, "reconciliation", nil, err)
	}
	return cfg, nil
}

// LedgerSource opens the ledger export, converting foreign-currency entries
// when rates are configured
func (s *Settings) LedgerSource(fs afero.Fs, log logger.Logger) (ledger.Source, error) {
	if s.Ledger == "" {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "ledger", nil, nil).
			WithSuggestion("Pass the ledger export with --ledger")
	}

	var sep rune
	if s.LedgerSep != "" {
		r := []rune(s.LedgerSep)
		if len(r) != 1 {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "ledger-delimiter", s.LedgerSep, nil).
				WithSuggestion("Use a single character such as ',' or ';'")
		}
		sep = r[0]
	}

	var src ledger.Source = ledger.NewCSVSource(fs, s.Ledger, sep, log)
	if len(s.Rates) == 0 {
		return src, nil
	}

	if s.Currency == "" {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "currency", nil, nil).
			WithSuggestion("Set --currency to the statement currency when using rates")
	}
	rates := make(map[string]decimal.Decimal, len(s.Rates))
	for code, raw := range s.Rates {
		rate, err := decimalSetting("rates."+code, raw, decimal.Zero)
		if err != nil {
			return nil, err
		}
		rates[code] = rate
	}
	conv, err := ledger.NewFixedRateConverter(s.Currency, rates)
	if err != nil {
		return nil, err
	}
	return ledger.ConvertingSource{Source: src, Converter: conv}, nil
}

// decimalSetting parses a decimal setting given as string or number
func decimalSetting(key string, raw any, fallback decimal.Decimal) (decimal.Decimal, error) {
	text, err := cast.ToStringE(raw)
	if err != nil {
		return fallback, errors.ConfigurationError(errors.CodeInvalidConfig, key, raw, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fallback, nil
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return fallback, errors.ConfigurationError(errors.CodeInvalidConfig, key, raw, err).
			WithSuggestion("Use a plain decimal number such as 0.05")
	}
	if d.IsNegative() {
		return fallback, errors.ConfigurationError(errors.CodeOutOfRange, key, raw, fmt.Errorf("must not be negative"))
	}
	return d, nil
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format string) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()

	switch reporter.OutputFormat(strings.ToLower(format)) {
	case reporter.FormatConsole, "":
		config.Format = reporter.FormatConsole
	case reporter.FormatJSON:
		config.Format = reporter.FormatJSON
		config.IncludeMatched = true
	case reporter.FormatCSV:
		config.Format = reporter.FormatCSV
		config.CSVHeaders = true
		config.CSVDelimiter = ','
		config.IncludeMatched = true
		config.IncludeDiscrepancies = false
		config.IncludeAging = false
	default:
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "output-format", format, nil).
			WithSuggestion("Valid formats: console, json, csv")
	}
	return config, nil
}
