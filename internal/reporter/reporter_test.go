package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"

	"statement-reconciler/internal/aging"
	"statement-reconciler/internal/ledger"
	"statement-reconciler/internal/models"
	"statement-reconciler/internal/reconciler"
	"statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"
)

func day(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func createSampleResult() *reconciler.Result {
	txs := []models.Transaction{
		{Line: 10, Date: day("2024-03-05"), Amount: amount("500.00"), Counterparty: "Acme SA", Description: "Invoice 17"},
		{Line: 11, Date: day("2024-03-10"), Amount: amount("-50.00"), Counterparty: "Gamma"},
		{Line: 12, Date: day("2024-03-10"), Amount: amount("-50.00"), Counterparty: "Gamma"},
	}
	stmt := &models.Statement{
		Source:         "march.csv",
		AccountID:      "CH9300762011623852957",
		Currency:       "CHF",
		PeriodStart:    day("2024-03-01"),
		PeriodEnd:      day("2024-03-31"),
		OpeningBalance: decimal.NewNullDecimal(amount("1000")),
		ClosingBalance: decimal.NewNullDecimal(amount("1400")),
		Transactions:   txs,
	}
	entry := models.LedgerEntry{ID: "L1", Date: day("2024-03-06"), Debit: amount("500"), PartnerName: "Acme SA"}
	matching := models.MatchReport{
		Matched:    []models.MatchResult{{Transaction: txs[0], Entry: &entry, Confidence: models.MatchTolerant, AmountDelta: decimal.Zero, DateDeltaDays: 1}},
		BankOnly:   []models.Transaction{txs[2]},
		LedgerOnly: []models.LedgerEntry{{ID: "L3", Date: day("2024-03-20"), Credit: amount("75"), PartnerName: "Delta"}},
	}
	matching.Matched = append(matching.Matched, models.MatchResult{
		Transaction: txs[1],
		Entry:       &models.LedgerEntry{ID: "L2", Date: day("2024-03-10"), Credit: amount("50"), PartnerName: "Gamma"},
		Confidence:  models.MatchExact,
		AmountDelta: decimal.Zero,
	})
	dups := []models.DuplicateGroup{{
		Strategy:             "exact",
		Confidence:           models.DuplicateHigh,
		Transactions:         txs[1:],
		SuspectedExtraCount:  1,
		SuspectedExtraAmount: amount("-50"),
		Suggestion:           "keep line 11; review line(s) 12 as possible duplicates (-50.00)",
	}}
	agingRes, err := aging.Classify([]models.LedgerEntry{
		{ID: "L3", Date: day("2024-03-20"), Residual: amount("-75"), PartnerName: "Delta"},
		{ID: "L4", Date: day("2023-09-01"), Residual: amount("120"), PartnerName: "Omega"},
	}, day("2024-03-31"), nil)
	if err != nil {
		panic(err)
	}

	skipped := []ledger.SkippedRow{{Line: 7, ID: "L8", Reason: "invalid amount"}}

	report := reconciler.BuildReport(reconciler.ReportInput{
		Statement:         stmt,
		Duplicates:        dups,
		Matching:          matching,
		Aging:             agingRes,
		LedgerSkipped:     skipped,
		BalanceEpsilon:    amount("0.01"),
		AsOf:              day("2024-03-31"),
		TopCounterparties: 5,
	}, reconciler.PassTolerance{})
	report.RunID = "run-1"
	report.GeneratedAt = day("2024-04-01")

	return &reconciler.Result{
		AccountID:     stmt.AccountID,
		Statement:     stmt,
		Duplicates:    dups,
		Matching:      matching,
		Aging:         agingRes,
		LedgerSkipped: skipped,
		Report:        report,
	}
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{name: "default config", config: nil},
		{name: "valid config", config: DefaultReportConfig()},
		{
			name:        "invalid format",
			config:      &ReportConfig{Format: "xml", TableMaxWidth: 120},
			expectError: true,
		},
		{
			name:        "table width too small",
			config:      &ReportConfig{Format: FormatConsole, TableMaxWidth: 30},
			expectError: true,
		},
		{
			name:        "negative list cap",
			config:      &ReportConfig{Format: FormatConsole, TableMaxWidth: 80, MaxListItems: -1},
			expectError: true,
		},
		{
			name:        "csv without delimiter",
			config:      &ReportConfig{Format: FormatCSV, TableMaxWidth: 80},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if generator == nil || generator.GetConfiguration() == nil {
				t.Errorf("expected generator with configuration")
			}
		})
	}
}

func TestOutputFormatValidation(t *testing.T) {
	tests := []struct {
		format OutputFormat
		valid  bool
	}{
		{FormatConsole, true},
		{FormatJSON, true},
		{FormatCSV, true},
		{"yaml", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := tt.format.IsValid(); got != tt.valid {
			t.Errorf("format %q: expected valid=%v, got %v", tt.format, tt.valid, got)
		}
	}
}

func TestConsoleOutputSections(t *testing.T) {
	result := createSampleResult()

	tests := []struct {
		name             string
		config           *ReportConfig
		shouldContain    []string
		shouldNotContain []string
	}{
		{
			name: "all sections enabled",
			config: &ReportConfig{
				Format:               FormatConsole,
				IncludeMatched:       true,
				IncludeBankOnly:      true,
				IncludeLedgerOnly:    true,
				IncludeDuplicates:    true,
				IncludeAging:         true,
				IncludeDiscrepancies: true,
				TableMaxWidth:        160,
			},
			shouldContain: []string{
				"RECONCILIATION REPORT",
				"Run:       run-1",
				"Status:    NOT PASSED",
				"=== BALANCE ===",
				"=== SUMMARY ===",
				"=== MATCHED TRANSACTIONS ===",
				"=== BANK ONLY ===",
				"=== LEDGER ONLY ===",
				"=== SUSPECTED DUPLICATES ===",
				"=== AGING ===",
				"=== DISCREPANCIES ===",
				"HIGH Severity",
				"lines 11, 12",
				"Ledger rows:  1 unreadable, skipped",
				"unreadable_ledger_row: ledger row skipped, line 7 (L8): invalid amount",
			},
		},
		{
			name: "minimal sections",
			config: &ReportConfig{
				Format:        FormatConsole,
				TableMaxWidth: 120,
			},
			shouldContain: []string{
				"=== BALANCE ===",
				"=== SUMMARY ===",
			},
			shouldNotContain: []string{
				"=== MATCHED TRANSACTIONS ===",
				"=== BANK ONLY ===",
				"=== LEDGER ONLY ===",
				"=== SUSPECTED DUPLICATES ===",
				"=== AGING ===",
				"=== DISCREPANCIES ===",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)
			if err != nil {
				t.Fatalf("failed to create report generator: %v", err)
			}

			var buffer bytes.Buffer
			if err := generator.GenerateReport(result, &buffer); err != nil {
				t.Fatalf("failed to generate report: %v", err)
			}
			output := buffer.String()

			for _, section := range tt.shouldContain {
				if !strings.Contains(output, section) {
					t.Errorf("output should contain: %s\n%s", section, output)
				}
			}
			for _, section := range tt.shouldNotContain {
				if strings.Contains(output, section) {
					t.Errorf("output should not contain: %s", section)
				}
			}
		})
	}
}

func TestConsoleListLimitAndWidth(t *testing.T) {
	result := createSampleResult()
	config := DefaultReportConfig()
	config.IncludeMatched = true
	config.MaxListItems = 1
	config.TableMaxWidth = 50

	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatal(err)
	}
	var buffer bytes.Buffer
	if err := generator.GenerateReport(result, &buffer); err != nil {
		t.Fatal(err)
	}

	output := buffer.String()
	if !strings.Contains(output, "... and 1 more") {
		t.Errorf("expected truncated matched list, got:\n%s", output)
	}
	for _, line := range strings.Split(output, "\n") {
		if len([]rune(line)) > 50 {
			t.Errorf("line exceeds table width: %q", line)
		}
	}
}

func TestJSONReport(t *testing.T) {
	result := createSampleResult()
	config := DefaultReportConfig()
	config.Format = FormatJSON

	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatal(err)
	}
	var buffer bytes.Buffer
	if err := generator.GenerateReport(result, &buffer); err != nil {
		t.Fatalf("failed to generate report: %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(buffer.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	for _, key := range []string{"report", "bank_only", "ledger_only", "duplicates"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("expected key %q in JSON output", key)
		}
	}
	if _, ok := decoded["matched"]; ok {
		t.Errorf("matched transactions are excluded by default")
	}

	var report struct {
		RunID  string `json:"run_id"`
		Passed bool   `json:"passed"`
		Totals struct {
			Matched int `json:"matched"`
		} `json:"totals"`
	}
	if err := json.Unmarshal(decoded["report"], &report); err != nil {
		t.Fatal(err)
	}
	if report.RunID != "run-1" || report.Passed || report.Totals.Matched != 2 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestJSONBatchReport(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatJSON
	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatal(err)
	}

	var buffer bytes.Buffer
	results := []*reconciler.Result{createSampleResult(), nil, createSampleResult()}
	if err := generator.GenerateBatchReport(results, &buffer); err != nil {
		t.Fatal(err)
	}

	var batch struct {
		Summary reconciler.BatchSummary `json:"summary"`
		Reports []json.RawMessage       `json:"reports"`
	}
	if err := json.Unmarshal(buffer.Bytes(), &batch); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if batch.Summary.Statements != 3 || batch.Summary.Failed != 1 || batch.Summary.NotPassed != 2 {
		t.Errorf("unexpected summary: %+v", batch.Summary)
	}
	if len(batch.Reports) != 2 {
		t.Errorf("expected 2 reports, got %d", len(batch.Reports))
	}
}

func TestCSVFormatting(t *testing.T) {
	result := createSampleResult()

	tests := []struct {
		name        string
		modify      func(c *ReportConfig)
		wantRecords int
		wantTypes   []string
	}{
		{
			name:        "defaults",
			modify:      func(c *ReportConfig) {},
			wantRecords: 4,
			wantTypes:   []string{"Type", "bank_only", "ledger_only", "duplicate"},
		},
		{
			name:        "with matched and no headers",
			modify:      func(c *ReportConfig) { c.IncludeMatched = true; c.CSVHeaders = false },
			wantRecords: 5,
			wantTypes:   []string{"matched", "matched", "bank_only", "ledger_only", "duplicate"},
		},
		{
			name:        "semicolon delimiter",
			modify:      func(c *ReportConfig) { c.CSVDelimiter = ';'; c.IncludeDuplicates = false },
			wantRecords: 3,
			wantTypes:   []string{"Type", "bank_only", "ledger_only"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultReportConfig()
			config.Format = FormatCSV
			tt.modify(config)

			generator, err := NewReportGenerator(config)
			if err != nil {
				t.Fatal(err)
			}
			var buffer bytes.Buffer
			if err := generator.GenerateReport(result, &buffer); err != nil {
				t.Fatal(err)
			}

			reader := csv.NewReader(&buffer)
			reader.Comma = config.CSVDelimiter
			records, err := reader.ReadAll()
			if err != nil {
				t.Fatalf("invalid CSV: %v", err)
			}
			if len(records) != tt.wantRecords {
				t.Fatalf("expected %d records, got %d: %v", tt.wantRecords, len(records), records)
			}
			for i, typ := range tt.wantTypes {
				if records[i][0] != typ {
					t.Errorf("record %d: expected type %s, got %s", i, typ, records[i][0])
				}
				if len(records[i]) != len(csvHeaders) {
					t.Errorf("record %d: expected %d columns, got %d", i, len(csvHeaders), len(records[i]))
				}
			}
		})
	}
}

func TestEmptyResultHandling(t *testing.T) {
	empty := &reconciler.Result{
		Statement: &models.Statement{},
		Report:    reconciler.BuildReport(reconciler.ReportInput{}, reconciler.PassTolerance{}),
	}

	for _, format := range []OutputFormat{FormatConsole, FormatJSON, FormatCSV} {
		t.Run(string(format), func(t *testing.T) {
			config := DefaultReportConfig()
			config.Format = format

			generator, err := NewReportGenerator(config)
			if err != nil {
				t.Fatalf("failed to create report generator: %v", err)
			}
			var buffer bytes.Buffer
			if err := generator.GenerateReport(empty, &buffer); err != nil {
				t.Errorf("should handle empty result without error: %v", err)
			}
			if buffer.Len() == 0 {
				t.Errorf("should produce some output even for empty results")
			}
		})
	}

	generator, _ := NewReportGenerator(nil)
	if err := generator.GenerateReport(nil, &bytes.Buffer{}); err == nil {
		t.Error("expected error for nil result")
	}
}

func TestGenerateDuplicateReport(t *testing.T) {
	result := createSampleResult()

	for _, format := range []OutputFormat{FormatConsole, FormatJSON, FormatCSV} {
		t.Run(string(format), func(t *testing.T) {
			config := DefaultReportConfig()
			config.Format = format
			generator, err := NewReportGenerator(config)
			if err != nil {
				t.Fatal(err)
			}

			var buffer bytes.Buffer
			if err := generator.GenerateDuplicateReport("march.csv", result.Duplicates, &buffer); err != nil {
				t.Fatal(err)
			}
			output := buffer.String()

			switch format {
			case FormatConsole:
				for _, want := range []string{
					"Groups: 1, suspected extra transactions: 1 (-50.00)",
					"line 11 2024-03-10       -50.00  Gamma",
					"line 12 2024-03-10       -50.00  Gamma",
				} {
					if !strings.Contains(output, want) {
						t.Errorf("console output should contain %q:\n%s", want, output)
					}
				}
			case FormatJSON:
				var decoded struct {
					Source string `json:"source"`
					Groups []any  `json:"groups"`
				}
				if err := json.Unmarshal(buffer.Bytes(), &decoded); err != nil {
					t.Fatal(err)
				}
				if decoded.Source != "march.csv" || len(decoded.Groups) != 1 {
					t.Errorf("unexpected JSON output: %s", output)
				}
			case FormatCSV:
				if !strings.Contains(output, "exact duplicate of line 11") {
					t.Errorf("unexpected CSV output:\n%s", output)
				}
			}
		})
	}
}

func TestGenerateAgingReport(t *testing.T) {
	result := createSampleResult()

	generator, _ := NewReportGenerator(nil)
	var buffer bytes.Buffer
	if err := generator.GenerateAgingReport(result.Aging, 1, &buffer); err != nil {
		t.Fatal(err)
	}
	output := buffer.String()
	for _, want := range []string{"AGING REPORT as of 2024-03-31", "180+", "total", "Omega"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
	if strings.Contains(output, "Delta") {
		t.Errorf("only the largest counterparty should be listed:\n%s", output)
	}

	config := DefaultReportConfig()
	config.Format = FormatCSV
	generator, _ = NewReportGenerator(config)
	buffer.Reset()
	if err := generator.GenerateAgingReport(result.Aging, 0, &buffer); err != nil {
		t.Fatal(err)
	}
	records, err := csv.NewReader(&buffer).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 || records[1][0] != "0-30" || records[2][0] != "180+" {
		t.Errorf("unexpected aging CSV: %v", records)
	}

	if err := generator.GenerateAgingReport(nil, 0, &buffer); err == nil {
		t.Error("expected error for nil aging result")
	}
}

func TestCalculatePercentage(t *testing.T) {
	tests := []struct {
		part, total int
		expected    float64
	}{
		{0, 0, 0},
		{1, 4, 25},
		{3, 3, 100},
	}
	for _, tt := range tests {
		if got := calculatePercentage(tt.part, tt.total); got != tt.expected {
			t.Errorf("calculatePercentage(%d, %d) = %v, want %v", tt.part, tt.total, got, tt.expected)
		}
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, stderrors.New("broken pipe")
}

func TestSafeReportGenerator(t *testing.T) {
	result := createSampleResult()

	t.Run("invalid config", func(t *testing.T) {
		_, err := NewSafeReportGenerator(&ReportConfig{Format: "xml", TableMaxWidth: 80}, logger.Discard())
		if !errors.HasCode(err, errors.CodeInvalidConfig) {
			t.Errorf("expected invalid config error, got %v", err)
		}
	})

	srg, err := NewSafeReportGenerator(nil, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}

	t.Run("missing inputs", func(t *testing.T) {
		if err := srg.GenerateReportSafely(nil, &bytes.Buffer{}); !errors.HasCode(err, errors.CodeMissingField) {
			t.Errorf("expected missing field error, got %v", err)
		}
		if err := srg.GenerateReportSafely([]*reconciler.Result{result}, nil); !errors.HasCode(err, errors.CodeMissingField) {
			t.Errorf("expected missing field error, got %v", err)
		}
	})

	t.Run("writer failure", func(t *testing.T) {
		err := srg.GenerateReportSafely([]*reconciler.Result{result}, failingWriter{})
		if !errors.HasCode(err, errors.CodeProcessingError) {
			t.Errorf("expected processing error, got %v", err)
		}
	})

	t.Run("write file", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		path, err := srg.WriteReportFile(fs, "/reports/march.txt", []*reconciler.Result{result})
		if err != nil {
			t.Fatal(err)
		}
		if path != "/reports/march.txt" {
			t.Errorf("unexpected path %s", path)
		}
		content, err := afero.ReadFile(fs, path)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(content), "RECONCILIATION REPORT") {
			t.Errorf("unexpected file content:\n%s", content)
		}
	})

	t.Run("read-only destination", func(t *testing.T) {
		fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
		_, err := srg.WriteReportFile(fs, "/reports/march.txt", []*reconciler.Result{result})
		if !errors.HasCode(err, errors.CodeFilePermission) {
			t.Errorf("expected file permission error, got %v", err)
		}
	})
}

func TestGenerateBackupPath(t *testing.T) {
	if got := generateBackupPath("/tmp/out/report.csv"); got != "/tmp/out/report_backup.csv" {
		t.Errorf("unexpected backup path %s", got)
	}
}
