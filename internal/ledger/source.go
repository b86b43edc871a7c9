// Package ledger is the boundary to the ERP holding the accounting side of a
// reconciliation. Sources return typed models.LedgerEntry values; the untyped
// records of the ERP API are converted in one place, MapRecord.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"statement-reconciler/internal/models"
)

// Source supplies ledger entries of one bank account.
type Source interface {
	// FetchOpenEntries returns entries not yet reconciled on or before asOf.
	FetchOpenEntries(ctx context.Context, accountID string, asOf time.Time) ([]models.LedgerEntry, error)
	// FetchEntriesInRange returns all entries dated within [from, to].
	FetchEntriesInRange(ctx context.Context, accountID string, from, to time.Time) ([]models.LedgerEntry, error)
}

// StaticSource serves entries held in memory, keyed by account. Entries
// under the empty key belong to every account.
type StaticSource struct {
	Entries map[string][]models.LedgerEntry
}

// NewStaticSource creates a source serving entries for any account
func NewStaticSource(entries []models.LedgerEntry) *StaticSource {
	return &StaticSource{Entries: map[string][]models.LedgerEntry{"": entries}}
}

// FetchOpenEntries implements Source
func (s *StaticSource) FetchOpenEntries(ctx context.Context, accountID string, asOf time.Time) ([]models.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return filterEntries(s.forAccount(accountID), func(e models.LedgerEntry) bool {
		return isOpen(e, asOf)
	}), nil
}

// FetchEntriesInRange implements Source
func (s *StaticSource) FetchEntriesInRange(ctx context.Context, accountID string, from, to time.Time) ([]models.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return filterEntries(s.forAccount(accountID), func(e models.LedgerEntry) bool {
		return inRange(e, from, to)
	}), nil
}

func (s *StaticSource) forAccount(accountID string) []models.LedgerEntry {
	out := append([]models.LedgerEntry(nil), s.Entries[""]...)
	if accountID != "" {
		out = append(out, s.Entries[accountID]...)
	}
	return out
}

func isOpen(e models.LedgerEntry, asOf time.Time) bool {
	return !e.Reconciled && !models.Day(e.Date).After(models.Day(asOf))
}

func inRange(e models.LedgerEntry, from, to time.Time) bool {
	d := models.Day(e.Date)
	return !d.Before(models.Day(from)) && !d.After(models.Day(to))
}

// filterEntries keeps entries accepted by keep, sorted by date then ID
func filterEntries(entries []models.LedgerEntry, keep func(models.LedgerEntry) bool) []models.LedgerEntry {
	out := make([]models.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Exclude drops entries whose ID is in ids
func Exclude(entries []models.LedgerEntry, ids map[string]struct{}) []models.LedgerEntry {
	if len(ids) == 0 {
		return entries
	}
	out := make([]models.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		if _, skip := ids[e.ID]; !skip {
			out = append(out, e)
		}
	}
	return out
}

// SkippedRow is a ledger record a source could not convert into an entry.
type SkippedRow struct {
	Line   int    `json:"line,omitempty"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// String names the row by line or ID
func (r SkippedRow) String() string {
	switch {
	case r.Line > 0 && r.ID != "":
		return fmt.Sprintf("line %d (%s): %s", r.Line, r.ID, r.Reason)
	case r.Line > 0:
		return fmt.Sprintf("line %d: %s", r.Line, r.Reason)
	case r.ID != "":
		return fmt.Sprintf("record %s: %s", r.ID, r.Reason)
	}
	return r.Reason
}

// RowSkipper is implemented by sources that drop unreadable records instead
// of failing the fetch.
type RowSkipper interface {
	// SkippedRows returns the rows of accountID dropped by fetches so far,
	// each once.
	SkippedRows(accountID string) []SkippedRow
}

// skipLog collects skipped rows per account. Safe for concurrent use.
type skipLog struct {
	mu   sync.Mutex
	rows map[string][]SkippedRow
	seen map[string]struct{}
}

func (l *skipLog) add(accountID string, rows []SkippedRow) {
	if len(rows) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rows == nil {
		l.rows = make(map[string][]SkippedRow)
		l.seen = make(map[string]struct{})
	}
	for _, r := range rows {
		key := fmt.Sprintf("%s|%d|%s", accountID, r.Line, r.ID)
		if _, dup := l.seen[key]; dup {
			continue
		}
		l.seen[key] = struct{}{}
		l.rows[accountID] = append(l.rows[accountID], r)
	}
}

func (l *skipLog) get(accountID string) []SkippedRow {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]SkippedRow(nil), l.rows[accountID]...)
}
