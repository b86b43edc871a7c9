package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"syscall"

	"go.uber.org/multierr"

	"statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	out     io.Writer
	logger  logger.Logger
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler writing to out
func NewCLIErrorHandler(out io.Writer, verbose bool) *CLIErrorHandler {
	return &CLIErrorHandler{
		out:     out,
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: verbose,
	}
}

// HandleError prints err and returns the exit code. Combined batch errors
// are printed one by one and yield the highest exit code among them.
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	errs := multierr.Errors(err)
	if len(errs) > 1 {
		fmt.Fprintf(h.out, "%d statement(s) failed:\n\n", len(errs))
	}

	code := 0
	var reconcilerErrs []*errors.ReconcilerError
	for i, e := range errs {
		if i > 0 {
			fmt.Fprintln(h.out)
		}
		if reconcilerErr, ok := errors.AsReconcilerError(e); ok {
			h.handleReconcilerError(e, reconcilerErr)
			reconcilerErrs = append(reconcilerErrs, reconcilerErr)
			continue
		}
		code = max(code, h.handleGenericError(e))
	}

	summary := errors.NewErrorSummary(reconcilerErrs)
	if summary.Total > 1 {
		h.logger.WithField("by_code", summary.ByCode).Debug(summary.Error())
	}

	help := make([]string, 0, len(summary.ByCategory))
	for category := range summary.ByCategory {
		help = append(help, h.getCategoryHelp(category))
	}
	sort.Strings(help)
	for _, text := range help {
		fmt.Fprintf(h.out, "\n%s\n", text)
	}
	return max(code, summary.GetExitCode())
}

// handleReconcilerError prints err with its context and suggestion. outer is
// the error as returned, which may prefix err with the failing statement.
func (h *CLIErrorHandler) handleReconcilerError(outer error, err *errors.ReconcilerError) {
	if outer != error(err) {
		fmt.Fprintf(h.out, "Error: %v\n", outer)
	} else {
		fmt.Fprintf(h.out, "Error: %s\n", err.Message)
	}

	var parseErr *errors.ParseError
	if stderrors.As(outer, &parseErr) {
		fmt.Fprintf(h.out, "\n%s", parseErr.GetDetailedError())
	}

	if len(err.Context) > 0 {
		keys := make([]string, 0, len(err.Context))
		for key := range err.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintf(h.out, "\nContext:\n")
		for _, key := range keys {
			fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}
}

// handleGenericError handles non-ReconcilerError types
func (h *CLIErrorHandler) handleGenericError(err error) int {
	if h.isFileNotFoundError(err) {
		fmt.Fprintf(h.out, "Error: File not found: %v\n", err)
		fmt.Fprintf(h.out, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	}

	if h.isPermissionError(err) {
		fmt.Fprintf(h.out, "Error: Permission denied: %v\n", err)
		fmt.Fprintf(h.out, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	}

	if h.isDiskFullError(err) {
		fmt.Fprintf(h.out, "Error: Insufficient disk space\n")
		fmt.Fprintf(h.out, "Suggestion: Free up disk space and try again\n")
		return 2
	}

	fmt.Fprintf(h.out, "Error: %v\n", err)
	if !h.verbose {
		fmt.Fprintf(h.out, "Run with --verbose for more details\n")
	}
	return 1
}

// getCategoryHelp returns category-specific help text
func (h *CLIErrorHandler) getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check if the file exists and is readable
• Verify the file path is correct (use absolute paths if needed)
• Ensure you have proper permissions to access the file`

	case errors.CategoryParse:
		return `Parse error help:
• Check that --format names the profile of the bank that produced the file
• Run 'reconciler formats' to see the delimiters and locales of the profiles
• Define a custom profile in a YAML file and load it with --profiles`

	case errors.CategoryValidation:
		return `Validation error help:
• Check that all required flags have values
• Verify dates use YYYY-MM-DD
• Ensure amounts and tolerances are plain decimal numbers`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and arguments
• Verify configuration file syntax if using --config
• Use 'reconciler <command> --help' to see all available options`

	case errors.CategoryReconciliation:
		return `Reconciliation error help:
• Check that the ledger export covers the statement account and period
• Try adjusting matching tolerances (--date-tolerance, --amount-tolerance)
• Relax --max-unmatched-items or --max-unreconciled-amount if differences are expected`

	default:
		return `For more help:
• Use 'reconciler --help' for general help
• Use 'reconciler reconcile --help' for command-specific help`
	}
}

func (h *CLIErrorHandler) isFileNotFoundError(err error) bool {
	return os.IsNotExist(err) || stderrors.Is(err, os.ErrNotExist) ||
		strings.Contains(err.Error(), "no such file or directory")
}

func (h *CLIErrorHandler) isPermissionError(err error) bool {
	return os.IsPermission(err) || stderrors.Is(err, os.ErrPermission) ||
		strings.Contains(err.Error(), "permission denied")
}

func (h *CLIErrorHandler) isDiskFullError(err error) bool {
	if stderrors.Is(err, syscall.ENOSPC) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full") ||
		strings.Contains(errStr, "device full")
}
