package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statement-reconciler/internal/models"
	pkgerrors "statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"
)

func day(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

type fakeClient struct {
	records []Record
	err     error

	model   string
	filters []Filter
}

func (c *fakeClient) Search(_ context.Context, model string, filters []Filter) ([]Record, error) {
	c.model = model
	c.filters = filters
	return c.records, c.err
}

func TestMapRecord_ERPShapes(t *testing.T) {
	r := Record{
		"id":              float64(4711),
		"date":            "2024-03-07",
		"date_maturity":   false,
		"debit":           float64(0),
		"credit":          1250.5,
		"amount_residual": -1250.5,
		"partner_id":      []any{float64(12), "Acme GmbH"},
		"reconciled":      false,
		"currency_id":     []any{float64(1), "eur"},
		"name":            "INV/2024/0042",
		"account_id":      []any{float64(3), "1200 Bank"},
	}

	e, err := MapRecord(r)
	require.NoError(t, err)
	assert.Equal(t, "4711", e.ID)
	assert.Equal(t, day("2024-03-07"), e.Date)
	assert.False(t, e.HasDueDate())
	assert.True(t, e.Debit.IsZero())
	assert.True(t, e.Credit.Equal(decimal.RequireFromString("1250.5")))
	assert.True(t, e.Residual.Equal(decimal.RequireFromString("-1250.5")))
	assert.Equal(t, "Acme GmbH", e.PartnerName)
	assert.Equal(t, "EUR", e.Currency)
	assert.Equal(t, "INV/2024/0042", e.Label)
	assert.False(t, e.Reconciled)
	assert.Equal(t, "1200 Bank", AccountOf(r))
}

func TestMapRecord_ResidualDefaultsToNet(t *testing.T) {
	e, err := MapRecord(Record{"id": "L1", "date": "2024-01-31", "debit": "300.00", "credit": "50.00"})
	require.NoError(t, err)
	assert.True(t, e.Residual.Equal(decimal.NewFromInt(250)))

	zero, err := MapRecord(Record{"id": "L2", "date": "2024-01-31", "debit": "300.00", "amount_residual": float64(0)})
	require.NoError(t, err)
	assert.True(t, zero.Residual.IsZero(), "an explicit zero residual is kept")
}

func TestMapRecord_Errors(t *testing.T) {
	tests := []struct {
		name  string
		rec   Record
		field string
		code  pkgerrors.ErrorCode
	}{
		{"missing id", Record{"date": "2024-01-01"}, "id", pkgerrors.CodeMissingField},
		{"false id", Record{"id": false, "date": "2024-01-01"}, "id", pkgerrors.CodeMissingField},
		{"missing date", Record{"id": "X"}, "date", pkgerrors.CodeMissingField},
		{"bad date", Record{"id": "X", "date": "yesterday"}, "date", pkgerrors.CodeInvalidDate},
		{"bad due date", Record{"id": "X", "date": "2024-01-01", "due_date": "soon"}, "date_maturity", pkgerrors.CodeInvalidDate},
		{"bad debit", Record{"id": "X", "date": "2024-01-01", "debit": "abc"}, "debit", pkgerrors.CodeInvalidAmount},
		{"bad residual", Record{"id": "X", "date": "2024-01-01", "residual": "n/a"}, "amount_residual", pkgerrors.CodeInvalidAmount},
		{"bad reference", Record{"id": "X", "date": "2024-01-01", "partner_id": []any{float64(1)}}, "partner_id", pkgerrors.CodeInvalidRecord},
		{"bad reconciled", Record{"id": "X", "date": "2024-01-01", "reconciled": "maybe"}, "reconciled", pkgerrors.CodeInvalidRecord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MapRecord(tt.rec)
			require.Error(t, err)
			re, ok := pkgerrors.AsReconcilerError(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, re.Code)
			assert.Equal(t, tt.field, re.Context["field"])
		})
	}

	_, err := MapRecord(Record{"id": "X", "date": "2024-01-01", "debit": "abc"})
	assert.NotContains(t, err.Error(), "missing")
}

func TestStaticSource(t *testing.T) {
	src := &StaticSource{Entries: map[string][]models.LedgerEntry{
		"": {
			{ID: "B", Date: day("2024-02-10")},
			{ID: "A", Date: day("2024-02-10")},
			{ID: "R", Date: day("2024-01-05"), Reconciled: true},
		},
		"CH93": {{ID: "C", Date: day("2024-03-01")}},
	}}
	ctx := context.Background()

	open, err := src.FetchOpenEntries(ctx, "CH93", day("2024-02-28"))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ids(open))

	ranged, err := src.FetchEntriesInRange(ctx, "CH93", day("2024-01-01"), day("2024-03-01"))
	require.NoError(t, err)
	assert.Equal(t, []string{"R", "A", "B", "C"}, ids(ranged))

	other, err := src.FetchEntriesInRange(ctx, "DE89", day("2024-01-01"), day("2024-03-31"))
	require.NoError(t, err)
	assert.Equal(t, []string{"R", "A", "B"}, ids(other))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = src.FetchOpenEntries(cancelled, "", day("2024-02-28"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExclude(t *testing.T) {
	entries := []models.LedgerEntry{{ID: "1"}, {ID: "2"}, {ID: "3"}}
	assert.Equal(t, []string{"1", "3"}, ids(Exclude(entries, map[string]struct{}{"2": {}})))
	assert.Len(t, Exclude(entries, nil), 3)
}

func TestERPSource_Filters(t *testing.T) {
	client := &fakeClient{records: []Record{
		{"id": float64(2), "date": "2024-03-02", "debit": float64(10)},
		{"id": float64(1), "date": "2024-03-01", "debit": float64(20)},
		{"id": false, "date": "2024-03-01"},
	}}
	src := NewERPSource(client, ERPConfig{PostedOnly: true}, logger.Discard())

	entries, err := src.FetchOpenEntries(context.Background(), "1200", day("2024-03-31"))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(entries), "unmappable records are skipped")
	skipped := src.SkippedRows("1200")
	require.Len(t, skipped, 1)
	assert.Empty(t, skipped[0].ID)
	assert.Contains(t, skipped[0].Reason, "id")
	assert.Equal(t, "account.move.line", client.model)
	assert.Equal(t, []Filter{
		{Field: "account_id.code", Operator: "=", Value: "1200"},
		{Field: "parent_state", Operator: "=", Value: "posted"},
		{Field: "reconciled", Operator: "=", Value: false},
		{Field: "date", Operator: "<=", Value: "2024-03-31"},
	}, client.filters)

	_, err = src.FetchEntriesInRange(context.Background(), "", day("2024-03-01"), day("2024-03-31"))
	require.NoError(t, err)
	assert.Equal(t, []Filter{
		{Field: "parent_state", Operator: "=", Value: "posted"},
		{Field: "date", Operator: ">=", Value: "2024-03-01"},
		{Field: "date", Operator: "<=", Value: "2024-03-31"},
	}, client.filters)
}

func TestERPSource_ClientError(t *testing.T) {
	client := &fakeClient{err: errors.New("connection refused")}
	src := NewERPSource(client, DefaultERPConfig(), logger.Discard())

	_, err := src.FetchOpenEntries(context.Background(), "1200", day("2024-03-31"))
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeLedgerFetchFailed))
	assert.Contains(t, err.Error(), "connection refused")
}

const ledgerCSV = "\xEF\xBB\xBFid,date,due_date,debit,credit,residual,partner,reconciled,currency,label,account\n" +
	"L1,2024-01-10,2024-02-10,100.00,,,Acme,false,EUR,INV-1,1200\n" +
	"L2,2024-01-12,,,40.00,,Beta,true,EUR,CN-7,1200\n" +
	"L3,2024-01-15,,55.00,,,Gamma,,EUR,INV-3,1300\n" +
	"L4,not-a-date,,1.00,,,,,EUR,broken,1200\n" +
	"L5,2024-02-02,,20.00,,,,,EUR,INV-5,\n"

func TestCSVSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/ledger.csv", []byte(ledgerCSV), 0o644))
	src := NewCSVSource(fs, "/ledger.csv", 0, logger.Discard())
	ctx := context.Background()

	all, err := src.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"L1", "L2", "L3", "L5"}, ids(all))
	assert.True(t, all[0].Residual.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, day("2024-02-10"), all[0].DueDate)
	assert.True(t, all[1].Residual.Equal(decimal.NewFromInt(-40)))

	open, err := src.FetchOpenEntries(ctx, "1200", day("2024-12-31"))
	require.NoError(t, err)
	assert.Equal(t, []string{"L1", "L5"}, ids(open), "reconciled and foreign-account rows are dropped")

	ranged, err := src.FetchEntriesInRange(ctx, "1200", day("2024-01-11"), day("2024-01-31"))
	require.NoError(t, err)
	assert.Equal(t, []string{"L2"}, ids(ranged))
	skipped := src.SkippedRows("1200")
	require.Len(t, skipped, 1, "each unreadable row is reported once")
	assert.Equal(t, 5, skipped[0].Line)
	assert.Equal(t, "L4", skipped[0].ID)
	assert.Contains(t, skipped[0].String(), "line 5 (L4)")
	assert.Empty(t, src.SkippedRows("1300"))

	var _ RowSkipper = ConvertingSource{Source: src}
	assert.Len(t, ConvertingSource{Source: src}.SkippedRows("1200"), 1)
}

func TestCSVSource_MissingFile(t *testing.T) {
	src := NewCSVSource(afero.NewMemMapFs(), "/nope.csv", ';', logger.Discard())
	_, err := src.LoadAll(context.Background())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeFileNotFound))
}

func TestFixedRateConverter(t *testing.T) {
	conv, err := NewFixedRateConverter("eur", map[string]decimal.Decimal{
		"chf": decimal.RequireFromString("1.05"),
	})
	require.NoError(t, err)

	e, err := conv.Convert(models.LedgerEntry{
		ID:       "X",
		Debit:    decimal.RequireFromString("100.00"),
		Residual: decimal.RequireFromString("33.33"),
		Currency: "CHF",
	})
	require.NoError(t, err)
	assert.Equal(t, "EUR", e.Currency)
	assert.Equal(t, "105", e.Debit.String())
	assert.Equal(t, "35", e.Residual.String())

	same, err := conv.Convert(models.LedgerEntry{ID: "Y", Debit: decimal.NewFromInt(7)})
	require.NoError(t, err)
	assert.Equal(t, "7", same.Debit.String())

	_, err = conv.Convert(models.LedgerEntry{ID: "Z", Currency: "USD"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeOutOfRange))

	_, err = NewFixedRateConverter("EUR", map[string]decimal.Decimal{"USD": decimal.Zero})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidConfig))
}

func TestConvertingSource(t *testing.T) {
	conv, err := NewFixedRateConverter("EUR", map[string]decimal.Decimal{"CHF": decimal.NewFromInt(2)})
	require.NoError(t, err)
	src := ConvertingSource{
		Source:    NewStaticSource([]models.LedgerEntry{{ID: "A", Date: day("2024-01-01"), Credit: decimal.NewFromInt(5), Currency: "CHF"}}),
		Converter: conv,
	}

	entries, err := src.FetchEntriesInRange(context.Background(), "", day("2024-01-01"), day("2024-01-01"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "10", entries[0].Credit.String())
}

func ids(entries []models.LedgerEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}
