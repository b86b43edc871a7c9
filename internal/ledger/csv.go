package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/afero"

	"statement-reconciler/internal/models"
	pkgerrors "statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"
)

// CSVSource reads a ledger export with a header row whose column names are
// the ERP field names (id, date, date_maturity, debit, credit,
// amount_residual, partner_id, reconciled, currency_id, name, account_id)
// or their short aliases. The file is read on every fetch.
type CSVSource struct {
	fs        afero.Fs
	path      string
	delimiter rune
	logger    logger.Logger
	skipped   skipLog
}

// NewCSVSource creates a Source over a ledger CSV export
func NewCSVSource(fs afero.Fs, path string, delimiter rune, log logger.Logger) *CSVSource {
	if delimiter == 0 {
		delimiter = ','
	}
	return &CSVSource{
		fs:        fs,
		path:      path,
		delimiter: delimiter,
		logger:    logger.OrGlobal(log).WithComponent("csv_ledger").WithField("file", path),
	}
}

// FetchOpenEntries implements Source
func (s *CSVSource) FetchOpenEntries(ctx context.Context, accountID string, asOf time.Time) ([]models.LedgerEntry, error) {
	entries, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return filterEntries(entries, func(e models.LedgerEntry) bool { return isOpen(e, asOf) }), nil
}

// FetchEntriesInRange implements Source
func (s *CSVSource) FetchEntriesInRange(ctx context.Context, accountID string, from, to time.Time) ([]models.LedgerEntry, error) {
	entries, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return filterEntries(entries, func(e models.LedgerEntry) bool { return inRange(e, from, to) }), nil
}

// LoadAll returns every entry of the export regardless of account
func (s *CSVSource) LoadAll(ctx context.Context) ([]models.LedgerEntry, error) {
	return s.load(ctx, "")
}

func (s *CSVSource) load(ctx context.Context, accountID string) ([]models.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		code := pkgerrors.CodeFileCorrupted
		if os.IsNotExist(err) {
			code = pkgerrors.CodeFileNotFound
		}
		return nil, pkgerrors.FileError(code, s.path, err)
	}
	content = bytes.TrimPrefix(content, []byte{0xEF, 0xBB, 0xBF})

	reader := csv.NewReader(bytes.NewReader(content))
	reader.Comma = s.delimiter
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.FileError(pkgerrors.CodeFileCorrupted, s.path, err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	var entries []models.LedgerEntry
	var skipped []SkippedRow
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, pkgerrors.FileError(pkgerrors.CodeFileCorrupted, s.path, err)
		}

		record := make(Record, len(header))
		for i, h := range header {
			if i < len(fields) {
				record[h] = fields[i]
			}
		}
		if accountID != "" {
			if acc := AccountOf(record); acc != "" && acc != accountID {
				continue
			}
		}

		line, _ := reader.FieldPos(0)
		e, err := MapRecord(record)
		if err != nil {
			s.logger.WithError(err).WithField("line", line).Warn("Skipping unreadable ledger row")
			id, _ := toText(record.get(idFields))
			skipped = append(skipped, SkippedRow{Line: line, ID: id, Reason: err.Error()})
			continue
		}
		entries = append(entries, e)
	}
	s.skipped.add(accountID, skipped)
	return entries, nil
}

// SkippedRows implements RowSkipper
func (s *CSVSource) SkippedRows(accountID string) []SkippedRow {
	return s.skipped.get(accountID)
}
