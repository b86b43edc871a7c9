package matcher

import (
	"sort"
	"time"

	"statement-reconciler/internal/models"
)

// EntryIndex provides day-bucketed lookups over a pool of ledger entries.
// Entries taken by a match are marked consumed and never returned again.
type EntryIndex struct {
	// DateIndex maps date strings (YYYY-MM-DD) to entry positions
	DateIndex map[string][]int

	// AllEntries holds all indexed entries in input order
	AllEntries []models.LedgerEntry

	consumed []bool
	taken    int
}

// NewEntryIndex creates a new index from a slice of ledger entries
func NewEntryIndex(entries []models.LedgerEntry) *EntryIndex {
	index := &EntryIndex{
		DateIndex:  make(map[string][]int),
		AllEntries: entries,
		consumed:   make([]bool, len(entries)),
	}

	for i, e := range entries {
		key := dateKey(e.Date)
		index.DateIndex[key] = append(index.DateIndex[key], i)
	}
	return index
}

func dateKey(t time.Time) string {
	return models.Day(t).Format(models.DateLayout)
}

// GetByDateRange returns the positions of available entries dated within
// [start, end], in date then input order.
func (ix *EntryIndex) GetByDateRange(start, end time.Time) []int {
	var result []int
	current := models.Day(start)
	last := models.Day(end)

	for !current.After(last) {
		for _, pos := range ix.DateIndex[dateKey(current)] {
			if !ix.consumed[pos] {
				result = append(result, pos)
			}
		}
		current = current.AddDate(0, 0, 1)
	}
	return result
}

// Entry returns the entry at position pos
func (ix *EntryIndex) Entry(pos int) models.LedgerEntry {
	return ix.AllEntries[pos]
}

// Consume removes the entry at pos from the pool. It reports false when the
// entry was already consumed.
func (ix *EntryIndex) Consume(pos int) bool {
	if ix.consumed[pos] {
		return false
	}
	ix.consumed[pos] = true
	ix.taken++
	return true
}

// Remaining returns the entries never consumed, sorted by date then ID
func (ix *EntryIndex) Remaining() []models.LedgerEntry {
	out := make([]models.LedgerEntry, 0, len(ix.AllEntries)-ix.taken)
	for i, e := range ix.AllEntries {
		if !ix.consumed[i] {
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

// IndexStats provides statistics about an index
type IndexStats struct {
	TotalEntries   int `json:"total_entries"`
	UniqueDates    int `json:"unique_dates"`
	ConsumedCount  int `json:"consumed_count"`
	AvailableCount int `json:"available_count"`
}

// GetIndexStats returns statistics about the index
func (ix *EntryIndex) GetIndexStats() IndexStats {
	return IndexStats{
		TotalEntries:   len(ix.AllEntries),
		UniqueDates:    len(ix.DateIndex),
		ConsumedCount:  ix.taken,
		AvailableCount: len(ix.AllEntries) - ix.taken,
	}
}
