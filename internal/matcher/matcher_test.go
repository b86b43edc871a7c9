package matcher

import (
	"testing"
	"time"

	"statement-reconciler/internal/models"

	"github.com/shopspring/decimal"
)

func date(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func createTestMatchingData() ([]models.Transaction, []models.LedgerEntry) {
	transactions := []models.Transaction{
		{Line: 1, Date: date("2024-01-15"), Amount: amount("100.50"), Counterparty: "Acme SA"},
		{Line: 2, Date: date("2024-01-15"), Amount: amount("-250.00"), Counterparty: "Beta GmbH"},
		{Line: 3, Date: date("2024-01-16"), Amount: amount("75.25")},
		{Line: 4, Date: date("2024-01-17"), Amount: amount("100.00"), Counterparty: "Gamma"},
	}

	entries := []models.LedgerEntry{
		{ID: "L1", Date: date("2024-01-15"), Residual: amount("100.50"), PartnerName: "ACME SA"}, // exact with line 1
		{ID: "L2", Date: date("2024-01-16"), Credit: amount("250.00"), PartnerName: "Beta GmbH"},  // one day off
		{ID: "L3", Date: date("2024-01-16"), Residual: amount("75.26")},                          // one cent off
		{ID: "L4", Date: date("2024-01-18"), Residual: amount("500.00")},                         // no match
	}

	return transactions, entries
}

func TestNew(t *testing.T) {
	m, err := New(DefaultTolerance(), nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if m.Tolerance.DateDays != 3 {
		t.Errorf("Expected default date tolerance 3, got %d", m.Tolerance.DateDays)
	}

	if _, err := New(Tolerance{DateDays: -1}, nil); err == nil {
		t.Error("Expected error for negative date tolerance")
	}
}

func TestTolerance_Validate(t *testing.T) {
	tests := []struct {
		name    string
		tol     Tolerance
		wantErr bool
	}{
		{"default", DefaultTolerance(), false},
		{"strict", StrictTolerance(), false},
		{"relaxed", RelaxedTolerance(), false},
		{"negative days", Tolerance{DateDays: -1}, true},
		{"negative abs", Tolerance{AmountAbs: amount("-0.01")}, true},
		{"pct above one", Tolerance{AmountPct: amount("1.5")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tol.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTolerance_AmountWindow(t *testing.T) {
	tol := Tolerance{AmountAbs: amount("0.05"), AmountPct: amount("0.01")}

	tests := []struct {
		amount string
		want   string
	}{
		{"1", "0.05"},
		{"100", "1"},
		{"-1000", "10"},
	}

	for _, tt := range tests {
		got := tol.AmountWindow(amount(tt.amount))
		if !got.Equal(amount(tt.want)) {
			t.Errorf("AmountWindow(%s) = %s, want %s", tt.amount, got, tt.want)
		}
	}
}

func TestNetAmount(t *testing.T) {
	tests := []struct {
		name  string
		entry models.LedgerEntry
		want  string
	}{
		{"debit", models.LedgerEntry{Debit: amount("10"), Residual: amount("4")}, "10"},
		{"credit", models.LedgerEntry{Credit: amount("10")}, "-10"},
		{"both", models.LedgerEntry{Debit: amount("10"), Credit: amount("3")}, "7"},
		{"residual only", models.LedgerEntry{Residual: amount("150")}, "150"},
	}

	for _, tt := range tests {
		if got := NetAmount(tt.entry); !got.Equal(amount(tt.want)) {
			t.Errorf("%s: NetAmount() = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestMatch(t *testing.T) {
	transactions, entries := createTestMatchingData()

	report := Match(transactions, entries, DefaultTolerance())

	if len(report.Matched) != 3 {
		t.Fatalf("Expected 3 matches, got %d", len(report.Matched))
	}
	if len(report.BankOnly) != 1 || report.BankOnly[0].Line != 4 {
		t.Errorf("Expected line 4 to be bank-only, got %v", report.BankOnly)
	}
	if len(report.LedgerOnly) != 1 || report.LedgerOnly[0].ID != "L4" {
		t.Errorf("Expected L4 to be ledger-only, got %v", report.LedgerOnly)
	}

	want := map[int]struct {
		id         string
		confidence models.MatchConfidence
		days       int
	}{
		1: {"L1", models.MatchExact, 0},
		2: {"L2", models.MatchTolerant, 1},
		3: {"L3", models.MatchTolerant, 0},
	}
	for _, m := range report.Matched {
		w := want[m.Transaction.Line]
		if m.Entry.ID != w.id || m.Confidence != w.confidence || m.DateDeltaDays != w.days {
			t.Errorf("Line %d: got (%s, %s, %d), want (%s, %s, %d)", m.Transaction.Line,
				m.Entry.ID, m.Confidence, m.DateDeltaDays, w.id, w.confidence, w.days)
		}
	}

	if report.CountByConfidence(models.MatchExact) != 1 {
		t.Errorf("Expected 1 exact match, got %d", report.CountByConfidence(models.MatchExact))
	}
}

func TestMatch_AcmeScenario(t *testing.T) {
	txs := []models.Transaction{
		{Line: 1, Date: date("2024-03-05"), Amount: amount("-150.00"), Counterparty: "Acme SA"},
	}
	entries := []models.LedgerEntry{
		{ID: "42", Date: date("2024-03-07"), Residual: amount("150.00"), PartnerName: "Acme SA"},
	}

	report := Match(txs, entries, Tolerance{DateDays: 3, AmountAbs: amount("0.01")})

	if len(report.Matched) != 1 {
		t.Fatalf("Expected 1 match, got %d", len(report.Matched))
	}
	m := report.Matched[0]
	if m.Confidence != models.MatchTolerant {
		t.Errorf("Expected TOLERANT, got %s", m.Confidence)
	}
	if m.DateDeltaDays != 2 {
		t.Errorf("Expected date delta 2, got %d", m.DateDeltaDays)
	}
	if !m.AmountDelta.IsZero() {
		t.Errorf("Expected zero amount delta, got %s", m.AmountDelta)
	}

	signed := Match(txs, entries, Tolerance{DateDays: 3, AmountAbs: amount("0.01"), SignedAmounts: true})
	if len(signed.Matched) != 0 {
		t.Error("Expected no match when comparing signed amounts")
	}
}

func TestMatch_CounterpartyConstraint(t *testing.T) {
	txs := []models.Transaction{
		{Line: 1, Date: date("2024-03-05"), Amount: amount("80"), Counterparty: "Müller AG"},
	}

	tests := []struct {
		name    string
		partner string
		ignore  bool
		want    bool
	}{
		{"same name, other case and accents", "MULLER  ag", false, true},
		{"different name", "Meier AG", false, false},
		{"missing partner waives", "", false, true},
		{"blank partner waives", "   ", false, true},
		{"ignored", "Meier AG", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := []models.LedgerEntry{{ID: "1", Date: date("2024-03-05"), Residual: amount("80"), PartnerName: tt.partner}}
			tol := DefaultTolerance()
			tol.IgnoreCounterparty = tt.ignore

			got := len(Match(txs, entries, tol).Matched) == 1
			if got != tt.want {
				t.Errorf("matched = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatch_TieBreak(t *testing.T) {
	txs := []models.Transaction{{Line: 1, Date: date("2024-03-10"), Amount: amount("100")}}
	entries := []models.LedgerEntry{
		{ID: "far", Date: date("2024-03-12"), Residual: amount("100")},
		{ID: "near-but-off", Date: date("2024-03-11"), Residual: amount("100.01")},
		{ID: "near-b", Date: date("2024-03-09"), Residual: amount("100")},
		{ID: "near-a", Date: date("2024-03-11"), Residual: amount("100")},
	}

	report := Match(txs, entries, DefaultTolerance())
	if len(report.Matched) != 1 {
		t.Fatalf("Expected 1 match, got %d", len(report.Matched))
	}
	// near-b and near-a tie on deltas; the earlier entry date wins.
	if got := report.Matched[0].Entry.ID; got != "near-b" {
		t.Errorf("Expected near-b, got %s", got)
	}
}

func TestMatch_AtMostOnce(t *testing.T) {
	var txs []models.Transaction
	for i := 0; i < 5; i++ {
		txs = append(txs, models.Transaction{Line: i + 1, Date: date("2024-05-01").AddDate(0, 0, i%2), Amount: amount("20")})
	}
	entries := []models.LedgerEntry{
		{ID: "A", Date: date("2024-05-01"), Residual: amount("20")},
		{ID: "B", Date: date("2024-05-02"), Residual: amount("20")},
		{ID: "C", Date: date("2024-05-03"), Residual: amount("20")},
	}

	report := Match(txs, entries, DefaultTolerance())

	seen := make(map[string]bool)
	for _, m := range report.Matched {
		if seen[m.Entry.ID] {
			t.Errorf("Ledger entry %s matched twice", m.Entry.ID)
		}
		seen[m.Entry.ID] = true
	}
	if len(report.Matched) != 3 || len(report.BankOnly) != 2 || len(report.LedgerOnly) != 0 {
		t.Errorf("Unexpected partitions: %d matched, %d bank-only, %d ledger-only",
			len(report.Matched), len(report.BankOnly), len(report.LedgerOnly))
	}
	if len(report.Matched)+len(report.BankOnly) != len(txs) {
		t.Error("Every transaction must land in exactly one partition")
	}
}

func TestMatch_Empty(t *testing.T) {
	report := Match(nil, nil, DefaultTolerance())
	if report.Matched == nil || report.BankOnly == nil || report.LedgerOnly == nil {
		t.Error("Expected empty, non-nil partitions")
	}
}

func TestPool_FindMatchDoesNotConsume(t *testing.T) {
	_, entries := createTestMatchingData()
	pool := NewPool(entries, DefaultTolerance())

	tx := models.Transaction{Date: date("2024-01-15"), Amount: amount("100.50")}
	first := pool.FindMatch(tx)
	second := pool.FindMatch(tx)

	if !first.Found() || !second.Found() || first.Entry.ID != second.Entry.ID {
		t.Errorf("Expected repeated FindMatch to return the same entry")
	}
	if pool.Available() != len(entries) {
		t.Errorf("Expected %d available entries, got %d", len(entries), pool.Available())
	}

	miss := pool.FindMatch(models.Transaction{Date: date("2023-01-01"), Amount: amount("1")})
	if miss.Found() || miss.Confidence != models.MatchNone || miss.Entry != nil {
		t.Errorf("Expected NONE result, got %+v", miss)
	}
}
