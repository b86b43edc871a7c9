package cmd

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/multierr"

	"statement-reconciler/pkg/errors"
)

func TestCLIErrorHandler(t *testing.T) {
	fileErr := errors.FileError(errors.CodeFileNotFound, "/data/april.csv", os.ErrNotExist).
		WithSuggestion("Check the statement path")
	configErr := errors.ConfigurationError(errors.CodeInvalidConfig, "format", "nope", nil)
	parseErr := errors.MalformedStatementError("/data/empty.csv", "transaction header row not found")

	tests := []struct {
		name     string
		err      error
		verbose  bool
		wantCode int
		contains []string
	}{
		{
			name:     "no error",
			err:      nil,
			wantCode: 0,
		},
		{
			name:     "file error",
			err:      fileErr,
			wantCode: 2,
			contains: []string{"Suggestion: Check the statement path", "File error help"},
		},
		{
			name:     "configuration error",
			err:      configErr,
			wantCode: 4,
			contains: []string{"Configuration error help"},
		},
		{
			name:     "parse error",
			err:      parseErr,
			wantCode: 3,
			contains: []string{"Parse error help", "reconciler formats"},
		},
		{
			name:     "wrapped error keeps its prefix",
			err:      pkgerrors.Wrapf(fileErr, "statement %s", "/data/april.csv"),
			wantCode: 2,
			contains: []string{"Error: statement /data/april.csv:"},
		},
		{
			name:     "combined errors yield the highest code",
			err:      multierr.Combine(fileErr, configErr),
			wantCode: 4,
			contains: []string{"2 statement(s) failed", "File error help", "Configuration error help"},
		},
		{
			name:     "generic and categorized errors",
			err:      multierr.Combine(stderrors.New("boom"), parseErr),
			wantCode: 3,
			contains: []string{"2 statement(s) failed", "Error: boom", "Parse error help"},
		},
		{
			name:     "generic not found",
			err:      fmt.Errorf("open ledger: %w", os.ErrNotExist),
			wantCode: 2,
			contains: []string{"File not found"},
		},
		{
			name:     "generic permission",
			err:      fmt.Errorf("open ledger: %w", os.ErrPermission),
			wantCode: 2,
			contains: []string{"Permission denied"},
		},
		{
			name:     "generic error",
			err:      stderrors.New("boom"),
			wantCode: 1,
			contains: []string{"Error: boom", "--verbose"},
		},
		{
			name:     "verbose shows the cause",
			err:      errors.FileError(errors.CodeFilePermission, "/data/ledger.csv", os.ErrPermission),
			verbose:  true,
			wantCode: 2,
			contains: []string{"Underlying error:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			handler := NewCLIErrorHandler(&buf, tt.verbose)

			if code := handler.HandleError(tt.err); code != tt.wantCode {
				t.Errorf("expected exit code %d, got %d", tt.wantCode, code)
			}
			for _, want := range tt.contains {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output should contain %q:\n%s", want, buf.String())
				}
			}
		})
	}
}

func TestCLIErrorHandlerHelpOncePerCategory(t *testing.T) {
	var buf bytes.Buffer
	handler := NewCLIErrorHandler(&buf, false)

	err := multierr.Combine(
		errors.FileError(errors.CodeFileNotFound, "/a.csv", nil),
		errors.FileError(errors.CodeFileNotFound, "/b.csv", nil),
	)
	handler.HandleError(err)

	if n := strings.Count(buf.String(), "File error help"); n != 1 {
		t.Errorf("expected category help once, got %d times", n)
	}
}
