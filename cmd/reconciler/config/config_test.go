package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"statement-reconciler/internal/ledger"
	"statement-reconciler/internal/parsers"
	"statement-reconciler/internal/reporter"
	"statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"
)

func loadFrom(t *testing.T, values map[string]any) *Settings {
	t.Helper()
	v := viper.New()
	for key, value := range values {
		v.Set(key, value)
	}
	s, err := Load(v)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return s
}

func TestReconciliationConfig(t *testing.T) {
	s := loadFrom(t, map[string]any{
		"format":                  "ch-bank",
		"as-of":                   "2024-06-30",
		"date-tolerance":          5,
		"amount-tolerance":        "0.05",
		"amount-tolerance-pct":    "1.5",
		"signed-amounts":          true,
		"ignore-counterparty":     true,
		"match-reconciled":        true,
		"dedup-strategies":        []string{"default"},
		"aging-buckets":           "0-15,16-45,46+",
		"balance-epsilon":         "0.10",
		"max-unmatched-items":     2,
		"max-unreconciled-amount": 25,
		"concurrency":             8,
	})

	cfg, err := s.ReconciliationConfig(parsers.NewRegistry())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Format.Name != "ch-bank" {
		t.Errorf("expected ch-bank format, got %s", cfg.Format.Name)
	}
	if got := cfg.AsOf.Format("2006-01-02"); got != "2024-06-30" {
		t.Errorf("expected as-of 2024-06-30, got %s", got)
	}
	if cfg.Tolerance.DateDays != 5 || !cfg.Tolerance.SignedAmounts || !cfg.Tolerance.IgnoreCounterparty {
		t.Errorf("unexpected tolerance: %+v", cfg.Tolerance)
	}
	if !cfg.Tolerance.AmountAbs.Equal(decimal.RequireFromString("0.05")) {
		t.Errorf("expected amount tolerance 0.05, got %s", cfg.Tolerance.AmountAbs)
	}
	if !cfg.Tolerance.AmountPct.Equal(decimal.RequireFromString("0.015")) {
		t.Errorf("expected percent tolerance as fraction 0.015, got %s", cfg.Tolerance.AmountPct)
	}
	if !cfg.MatchReconciled {
		t.Error("expected MatchReconciled")
	}
	if len(cfg.Dedup.Strategies) != 1 || cfg.Dedup.Strategies[0] != "default" {
		t.Errorf("unexpected strategies: %v", cfg.Dedup.Strategies)
	}
	if len(cfg.AgingBuckets) != 3 || cfg.AgingBuckets[2].Label != "46+" {
		t.Errorf("unexpected buckets: %+v", cfg.AgingBuckets)
	}
	if !cfg.BalanceEpsilon.Equal(decimal.RequireFromString("0.10")) {
		t.Errorf("expected balance epsilon 0.10, got %s", cfg.BalanceEpsilon)
	}
	if cfg.Pass.MaxUnmatchedItems != 2 || !cfg.Pass.MaxUnreconciledAmount.Equal(decimal.NewFromInt(25)) {
		t.Errorf("unexpected pass tolerance: %+v", cfg.Pass)
	}
	if cfg.Concurrency != 8 {
		t.Errorf("expected concurrency 8, got %d", cfg.Concurrency)
	}
}

func TestReconciliationConfigDefaults(t *testing.T) {
	s := loadFrom(t, map[string]any{})

	cfg, err := s.ReconciliationConfig(parsers.NewRegistry())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Format.Name != parsers.GenericSemicolon.Name {
		t.Errorf("expected the generic format, got %s", cfg.Format.Name)
	}
	if !cfg.AsOf.IsZero() {
		t.Errorf("expected no as-of date, got %s", cfg.AsOf)
	}
	if !cfg.Tolerance.AmountPct.IsZero() {
		t.Errorf("expected no percent tolerance, got %s", cfg.Tolerance.AmountPct)
	}
	if cfg.Concurrency <= 0 {
		t.Errorf("expected a positive default concurrency, got %d", cfg.Concurrency)
	}
}

func TestReconciliationConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
		code   errors.ErrorCode
	}{
		{
			name:   "unknown format",
			values: map[string]any{"format": "martian-bank"},
			code:   errors.CodeInvalidConfig,
		},
		{
			name:   "unreadable amount tolerance",
			values: map[string]any{"amount-tolerance": "one cent"},
			code:   errors.CodeInvalidConfig,
		},
		{
			name:   "negative amount tolerance",
			values: map[string]any{"amount-tolerance": "-0.01"},
			code:   errors.CodeOutOfRange,
		},
		{
			name:   "negative unreconciled amount",
			values: map[string]any{"max-unreconciled-amount": -5},
			code:   errors.CodeOutOfRange,
		},
		{
			name:   "unreadable as-of",
			values: map[string]any{"as-of": "end of june"},
			code:   errors.CodeInvalidConfig,
		},
		{
			name:   "buckets not starting at zero",
			values: map[string]any{"aging-buckets": "5-30,31+"},
			code:   errors.CodeInvalidConfig,
		},
		{
			name:   "negative balance epsilon",
			values: map[string]any{"balance-epsilon": "-0.01"},
			code:   errors.CodeOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := loadFrom(t, tt.values)
			_, err := s.ReconciliationConfig(parsers.NewRegistry())
			if !errors.HasCode(err, tt.code) {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestFormatSpecCaseInsensitive(t *testing.T) {
	s := &Settings{Format: "DE-Bank"}
	spec, err := s.FormatSpec(parsers.NewRegistry())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.Name != "de-bank" {
		t.Errorf("expected de-bank, got %s", spec.Name)
	}
}

func TestConfigure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reconciler.yaml")
	content := `ledger: /exports/ledger.csv
date-tolerance: 2
amount-tolerance: 0.02
output-format: json
rates:
  eur: 0.95
  usd: "0.88"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RECONCILER_DATE_TOLERANCE", "7")

	v := viper.New()
	if err := Configure(v, path); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	s, err := Load(v)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if s.Ledger != "/exports/ledger.csv" {
		t.Errorf("expected ledger from file, got %q", s.Ledger)
	}
	if s.DateTolerance != 7 {
		t.Errorf("expected the environment to override the file, got %d", s.DateTolerance)
	}
	if s.OutputFormat != "json" {
		t.Errorf("expected json output, got %q", s.OutputFormat)
	}
	if s.Rates["eur"] != "0.95" || s.Rates["usd"] != "0.88" {
		t.Errorf("unexpected rates: %v", s.Rates)
	}
}

func TestConfigureErrors(t *testing.T) {
	err := Configure(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.HasCode(err, errors.CodeInvalidConfig) {
		t.Errorf("expected invalid config for a missing file, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("ledger: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	err = Configure(viper.New(), path)
	if !errors.HasCode(err, errors.CodeInvalidConfig) {
		t.Errorf("expected invalid config for broken YAML, got %v", err)
	}

	if err := Configure(viper.New(), ""); err != nil {
		t.Errorf("no config file is not an error: %v", err)
	}
}

func TestLedgerSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	log := logger.Discard()

	tests := []struct {
		name     string
		settings Settings
		code     errors.ErrorCode
		convert  bool
	}{
		{
			name:     "plain export",
			settings: Settings{Ledger: "/ledger.csv", LedgerSep: ";"},
		},
		{
			name:     "converted export",
			settings: Settings{Ledger: "/ledger.csv", Currency: "CHF", Rates: map[string]string{"eur": "0.95"}},
			convert:  true,
		},
		{
			name:     "missing ledger",
			settings: Settings{},
			code:     errors.CodeMissingConfig,
		},
		{
			name:     "long delimiter",
			settings: Settings{Ledger: "/ledger.csv", LedgerSep: ";;"},
			code:     errors.CodeInvalidConfig,
		},
		{
			name:     "rates without currency",
			settings: Settings{Ledger: "/ledger.csv", Rates: map[string]string{"eur": "0.95"}},
			code:     errors.CodeMissingConfig,
		},
		{
			name:     "negative rate",
			settings: Settings{Ledger: "/ledger.csv", Currency: "CHF", Rates: map[string]string{"eur": "-1"}},
			code:     errors.CodeOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := tt.settings.LedgerSource(fs, log)
			if tt.code != "" {
				if !errors.HasCode(err, tt.code) {
					t.Errorf("expected %s, got %v", tt.code, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			_, converted := src.(ledger.ConvertingSource)
			if converted != tt.convert {
				t.Errorf("expected converting source %v, got %T", tt.convert, src)
			}
		})
	}
}

func TestLoggerConfig(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		level    logger.Level
		format   logger.Format
		output   logger.Output
	}{
		{
			name:   "defaults",
			level:  logger.DefaultConfig().Level,
			format: logger.DefaultConfig().Format,
			output: logger.StderrOutput,
		},
		{
			name:     "verbose",
			settings: Settings{Verbose: true},
			level:    logger.DebugLevel,
			format:   logger.DefaultConfig().Format,
			output:   logger.StderrOutput,
		},
		{
			name:     "explicit level wins over verbose",
			settings: Settings{Verbose: true, LogLevel: "WARN", LogFormat: "JSON"},
			level:    logger.WarnLevel,
			format:   logger.JSONFormat,
			output:   logger.StderrOutput,
		},
		{
			name:     "log file",
			settings: Settings{LogFile: "/var/log/reconciler.log"},
			level:    logger.DefaultConfig().Level,
			format:   logger.DefaultConfig().Format,
			output:   logger.FileOutput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.settings.LoggerConfig()
			if cfg.Level != tt.level || cfg.Format != tt.format || cfg.Output != tt.output {
				t.Errorf("got level %s format %s output %s", cfg.Level, cfg.Format, cfg.Output)
			}
			if tt.output == logger.FileOutput && cfg.File != tt.settings.LogFile {
				t.Errorf("expected file %s, got %s", tt.settings.LogFile, cfg.File)
			}
			if cfg.CallerInfo != tt.settings.Verbose {
				t.Errorf("expected caller info %v, got %v", tt.settings.Verbose, cfg.CallerInfo)
			}
		})
	}
}

func TestCreateReportConfig(t *testing.T) {
	tests := []struct {
		format         string
		want           reporter.OutputFormat
		includeMatched bool
		includeAging   bool
		discrepancies  bool
		wantErr        bool
	}{
		{format: "", want: reporter.FormatConsole, includeAging: true, discrepancies: true},
		{format: "console", want: reporter.FormatConsole, includeAging: true, discrepancies: true},
		{format: "JSON", want: reporter.FormatJSON, includeMatched: true, includeAging: true, discrepancies: true},
		{format: "csv", want: reporter.FormatCSV, includeMatched: true},
		{format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			cfg, err := CreateReportConfig(tt.format)
			if tt.wantErr {
				if !errors.HasCode(err, errors.CodeInvalidConfig) {
					t.Errorf("expected invalid config, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.Format != tt.want {
				t.Errorf("expected format %s, got %s", tt.want, cfg.Format)
			}
			if cfg.IncludeMatched != tt.includeMatched || cfg.IncludeAging != tt.includeAging ||
				cfg.IncludeDiscrepancies != tt.discrepancies {
				t.Errorf("unexpected sections: %+v", cfg)
			}
			if err := cfg.Validate(); err != nil {
				t.Errorf("config should be valid: %v", err)
			}
		})
	}
}
