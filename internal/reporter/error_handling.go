package reporter

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"statement-reconciler/internal/reconciler"
	"statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with logging and fallbacks
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator with error handling
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"report_config",
			config,
			err,
		).WithSuggestion("Check the report configuration values")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          logger.OrGlobal(log).WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely renders the results to writer. If the requested
// format fails, the report is rendered again as console text with a notice.
func (srg *SafeReportGenerator) GenerateReportSafely(results []*reconciler.Result, writer io.Writer) error {
	srg.logger.WithFields(logger.Fields{
		"format":     srg.config.Format,
		"output":     getWriterDescription(writer),
		"statements": len(results),
	}).Debug("Starting report generation")

	if writer == nil {
		err := errors.ValidationError(errors.CodeMissingField, "writer", nil, nil).
			WithSuggestion("Provide a valid output writer")
		srg.logger.WithError(err).Error("Report generation failed: input validation")
		return err
	}
	if len(results) == 0 {
		err := errors.ValidationError(errors.CodeMissingField, "results", nil, nil).
			WithSuggestion("Provide at least one reconciliation result")
		srg.logger.WithError(err).Error("Report generation failed: input validation")
		return err
	}

	if err := srg.generateWithFallback(results, writer); err != nil {
		srg.logger.WithError(err).Error("Report generation failed")
		return err
	}

	srg.logger.Debug("Report generation completed")
	return nil
}

func (srg *SafeReportGenerator) generateWithFallback(results []*reconciler.Result, writer io.Writer) error {
	// Structured formats are rendered to a buffer so a failure leaves no
	// partial document behind.
	var buf bytes.Buffer
	err := srg.GenerateBatchReport(results, &buf)
	if err == nil {
		if _, werr := buf.WriteTo(writer); werr != nil {
			return srg.wrapGenerationError(werr)
		}
		return nil
	}

	if srg.config.Format == FormatConsole {
		return srg.wrapGenerationError(err)
	}

	srg.logger.WithError(err).WithField("fallback_format", FormatConsole).Warn("Primary report generation failed, attempting fallback")

	fallbackConfig := *srg.config
	fallbackConfig.Format = FormatConsole
	fallback, ferr := NewReportGenerator(&fallbackConfig)
	if ferr != nil {
		return srg.wrapGenerationError(err)
	}

	fmt.Fprintf(writer, "NOTE: Report generated in fallback format due to error with requested format\n")
	fmt.Fprintf(writer, "Original error: %v\n\n", err)

	if ferr := fallback.GenerateBatchReport(results, writer); ferr != nil {
		return errors.InternalError(
			errors.CodeUnexpectedError,
			"report_fallback",
			fmt.Errorf("both primary and fallback generation failed: primary=%v, fallback=%v", err, ferr),
		)
	}
	return nil
}

// WriteReportFile renders the results into path on fs. When path cannot be
// created, the report is written next to it with a _backup suffix.
func (srg *SafeReportGenerator) WriteReportFile(fs afero.Fs, path string, results []*reconciler.Result) (string, error) {
	file, err := fs.Create(path)
	if err != nil {
		if !isFileError(err) {
			return "", errors.FileError(errors.CodeFilePermission, path, err)
		}

		backupPath := generateBackupPath(path)
		srg.logger.WithFields(logger.Fields{
			"original_file": path,
			"backup_file":   backupPath,
		}).WithError(err).Warn("Attempting output fallback")

		var berr error
		if file, berr = fs.Create(backupPath); berr != nil {
			return "", errors.FileError(errors.CodeFilePermission, path, err).
				WithContext("backup_file", backupPath).
				WithSuggestion("Check that the output directory exists and is writable")
		}
		path = backupPath
	}
	defer file.Close()

	if err := srg.GenerateReportSafely(results, file); err != nil {
		return path, err
	}
	srg.logger.WithField("file", path).Info("Report written")
	return path, nil
}

func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return reconcilerErr
	}

	return errors.InternalError(
		errors.CodeProcessingError,
		"report_generation",
		err,
	).WithSuggestion("Check the output destination and report format settings")
}

func isFileError(err error) bool {
	return os.IsPermission(err) ||
		os.IsNotExist(err) ||
		os.IsExist(err) ||
		isSpaceError(err)
}

func generateBackupPath(originalPath string) string {
	dir := filepath.Dir(originalPath)
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]

	return filepath.Join(dir, fmt.Sprintf("%s_backup%s", name, ext))
}

func getWriterDescription(writer io.Writer) string {
	switch w := writer.(type) {
	case afero.File:
		if w.Name() != "" {
			return fmt.Sprintf("file:%s", w.Name())
		}
		return "file:unnamed"
	default:
		return fmt.Sprintf("writer:%T", writer)
	}
}

func isSpaceError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no space left") ||
		strings.Contains(msg, "disk full") ||
		strings.Contains(msg, "device full")
}
