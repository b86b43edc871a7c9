package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"statement-reconciler/cmd/reconciler/config"
	"statement-reconciler/internal/parsers"
	"statement-reconciler/internal/reconciler"
	"statement-reconciler/internal/reporter"
	"statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile bank statements against a ledger export",
	Long: `Reconcile parses one or more bank statements, flags suspected duplicate
transactions, matches every transaction against the ledger entries of the
account and ages the open ledger entries that stay unmatched.

Statements are processed concurrently. A statement that cannot be parsed is
reported as failed without stopping the others.

Examples:
  # Swiss statement against a ledger export
  reconciler reconcile --statement june.csv --ledger ledger.csv --format ch-bank

  # Several statements of one account with a wider matching window
  reconciler reconcile --statement june.csv,july.csv --ledger ledger.csv \
    --account CH9300762011623852957 --date-tolerance 5 --amount-tolerance 0.05

  # JSON report in a file, failing the process when anything is unreconciled
  reconciler reconcile --statement june.csv --ledger ledger.csv \
    --output-format json --output-file report.json --fail-on-unreconciled`,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	f := reconcileCmd.Flags()
	f.StringSliceP("statement", "s", nil, "bank statement file(s) to reconcile (required)")
	f.StringP("ledger", "l", "", "ledger export CSV (required)")
	f.String("ledger-delimiter", ",", "field delimiter of the ledger export")
	f.StringP("account", "a", "", "ledger account to reconcile against (default: statement IBAN or account number)")
	f.String("currency", "", "statement currency ledger entries are converted to (with rates from the config file)")
	addFormatFlags(reconcileCmd)
	f.String("as-of", "", "aging date, YYYY-MM-DD (default: statement period end)")

	f.IntP("date-tolerance", "d", 3, "maximum days between transaction and ledger entry")
	f.String("amount-tolerance", "0.01", "maximum absolute amount difference")
	f.String("amount-tolerance-pct", "", "maximum amount difference in percent of the transaction amount")
	f.Bool("signed-amounts", false, "compare signed amounts instead of magnitudes")
	f.Bool("ignore-counterparty", false, "match without comparing counterparty names")
	f.Bool("match-reconciled", false, "let already reconciled ledger entries take part in matching")

	f.StringSlice("dedup-strategies", nil, "duplicate detection strategies: exact, default, loose (default exact,loose)")
	f.String("aging-buckets", "", `aging buckets, e.g. "0-30,31-60,61-90,91-180,181+"`)
	f.String("balance-epsilon", "", "tolerance of the opening plus movements equals closing check")
	f.Int("max-unmatched-items", 0, "unmatched items accepted for a passing report (negative: unlimited)")
	f.String("max-unreconciled-amount", "0", "unmatched amount accepted for a passing report")
	f.Int("concurrency", 4, "statements reconciled at once")
	f.Bool("fail-on-unreconciled", false, "exit with an error when a report does not pass")

	addOutputFlags(reconcileCmd)

	_ = reconcileCmd.MarkFlagRequired("statement")
}

// addFormatFlags adds the statement format selection flags
func addFormatFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "F", "generic-semicolon", "statement format profile (see 'reconciler formats')")
	cmd.Flags().String("profiles", "", "YAML file with additional format profiles")
}

// addOutputFlags adds the report destination flags
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output-format", "f", "console", "output format: console, json, csv")
	cmd.Flags().StringP("output-file", "o", "", "output file path (default: stdout)")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	settings, log, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if err := validateReconcileSettings(appFs, settings); err != nil {
		return err
	}

	reg, err := settings.Registry(appFs)
	if err != nil {
		return err
	}
	cfg, err := settings.ReconciliationConfig(reg)
	if err != nil {
		return err
	}
	source, err := settings.LedgerSource(appFs, log)
	if err != nil {
		return err
	}

	service, err := reconciler.NewService(cfg, source, reconciler.WithLogger(log), reconciler.WithFs(appFs))
	if err != nil {
		return err
	}

	reqs := make([]reconciler.Request, len(settings.Statements))
	for i, path := range settings.Statements {
		reqs[i] = reconciler.Request{Path: path, AccountID: settings.Account}
	}

	log.WithFields(logger.Fields{
		"statements": len(reqs),
		"format":     cfg.Format.Name,
		"ledger":     settings.Ledger,
		"tolerance":  cfg.Tolerance.String(),
	}).Debug("Starting reconciliation")

	results, batchErr := service.RunBatch(cmd.Context(), reqs)

	summary := reconciler.Summarize(results)
	if summary.Failed < summary.Statements {
		if err := writeResults(cmd.OutOrStdout(), settings, log, results); err != nil {
			return err
		}
	}
	if batchErr != nil {
		return batchErr
	}

	if settings.Verbose {
		for _, res := range results {
			if res != nil {
				printParseErrors(cmd.ErrOrStderr(), res.Request.Path, res.ParseStats)
			}
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Reconciled %d statement(s): %d passed, %d not passed.\n",
			summary.Statements, summary.Passed, summary.NotPassed)
	}

	if settings.FailOnUnreconciled && summary.NotPassed > 0 {
		return errors.ReconciliationError(errors.CodeToleranceViolation, "reconcile",
			fmt.Errorf("%d of %d statement(s) not reconciled", summary.NotPassed, summary.Statements)).
			WithSuggestion("Review the discrepancies or relax the pass tolerance")
	}
	return nil
}

// writeResults renders the results to the output file or stdout
func writeResults(stdout io.Writer, settings *config.Settings, log logger.Logger, results []*reconciler.Result) error {
	reportConfig, err := config.CreateReportConfig(settings.OutputFormat)
	if err != nil {
		return err
	}
	generator, err := reporter.NewSafeReportGenerator(reportConfig, log)
	if err != nil {
		return err
	}

	if settings.OutputFile == "" {
		return generator.GenerateReportSafely(results, stdout)
	}
	path, err := generator.WriteReportFile(appFs, settings.OutputFile, results)
	if err != nil {
		return err
	}
	if path != settings.OutputFile {
		log.WithField("file", path).Warn("Report written to backup location")
	}
	return nil
}

// printParseErrors details the rows of a statement that could not be read
func printParseErrors(w io.Writer, path string, stats *parsers.ParseStats) {
	if stats == nil || !stats.HasErrors() {
		return
	}
	fmt.Fprintf(w, "Parse errors in %s:\n%s\n\n", path, errors.FormatParseErrorsForUser(stats.Errors))
}

func validateReconcileSettings(fs afero.Fs, s *config.Settings) error {
	if len(s.Statements) == 0 {
		return errors.ValidationError(errors.CodeMissingField, "statement", nil, nil).
			WithSuggestion("Pass at least one statement with --statement")
	}
	for i, path := range s.Statements {
		if err := validateFileExists(fs, path, fmt.Sprintf("statement %d", i+1)); err != nil {
			return err
		}
	}
	if s.Ledger == "" {
		return errors.ValidationError(errors.CodeMissingField, "ledger", nil, nil).
			WithSuggestion("Pass the ledger export with --ledger")
	}
	if err := validateFileExists(fs, s.Ledger, "ledger export"); err != nil {
		return err
	}
	if s.DateTolerance < 0 {
		return errors.ValidationError(errors.CodeOutOfRange, "date-tolerance", s.DateTolerance, nil).
			WithSuggestion("Date tolerance cannot be negative")
	}
	return validateOutputSettings(fs, s)
}

func validateOutputSettings(fs afero.Fs, s *config.Settings) error {
	if _, err := config.CreateReportConfig(s.OutputFormat); err != nil {
		return err
	}
	if s.OutputFile == "" {
		return nil
	}
	dir := filepath.Dir(s.OutputFile)
	if dir == "." {
		return nil
	}
	if ok, _ := afero.DirExists(fs, dir); !ok {
		return errors.FileError(errors.CodeFileNotFound, dir, nil).
			WithSuggestion("Create the output directory first")
	}
	return nil
}

func validateFileExists(fs afero.Fs, path, description string) error {
	if strings.TrimSpace(path) == "" {
		return errors.ValidationError(errors.CodeMissingField, description, nil, nil)
	}

	info, err := fs.Stat(path)
	if err != nil {
		code := errors.CodeFilePermission
		if os.IsNotExist(err) {
			code = errors.CodeFileNotFound
		}
		return errors.FileError(code, path, err).WithContext("file_role", description)
	}
	if info.IsDir() {
		return errors.FileError(errors.CodeFileCorrupted, path, fmt.Errorf("%s is a directory, expected a file", description))
	}
	return nil
}
