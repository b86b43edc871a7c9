package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MatchConfidence grades a transaction to ledger entry pairing.
type MatchConfidence string

const (
	// MatchExact means zero date and amount delta
	MatchExact MatchConfidence = "EXACT"
	// MatchTolerant means the pair is within the tolerance window
	MatchTolerant MatchConfidence = "TOLERANT"
	// MatchNone means no candidate was found
	MatchNone MatchConfidence = "NONE"
)

// String returns the string representation of MatchConfidence
func (c MatchConfidence) String() string {
	return string(c)
}

// MatchResult pairs a transaction with at most one ledger entry.
// Entry is nil exactly when Confidence is MatchNone.
type MatchResult struct {
	Transaction   Transaction     `json:"transaction"`
	Entry         *LedgerEntry    `json:"ledger_entry"`
	Confidence    MatchConfidence `json:"confidence"`
	AmountDelta   decimal.Decimal `json:"amount_delta"`
	DateDeltaDays int             `json:"date_delta_days"`
}

// Found reports whether a ledger entry was selected
func (m MatchResult) Found() bool {
	return m.Entry != nil && m.Confidence != MatchNone
}

// NotFound builds the outcome for a transaction without a candidate
func NotFound(tx Transaction) MatchResult {
	return MatchResult{Transaction: tx, Confidence: MatchNone}
}

// MatchReport holds the three matching partitions.
type MatchReport struct {
	Matched    []MatchResult `json:"matched"`
	BankOnly   []Transaction `json:"bank_only"`
	LedgerOnly []LedgerEntry `json:"ledger_only"`
}

// CountByConfidence returns how many matches carry the given confidence
func (r *MatchReport) CountByConfidence(c MatchConfidence) int {
	n := 0
	for _, m := range r.Matched {
		if m.Confidence == c {
			n++
		}
	}
	return n
}

// MatchedEntryIDs returns the set of ledger entry IDs consumed by matches
func (r *MatchReport) MatchedEntryIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(r.Matched))
	for _, m := range r.Matched {
		if m.Entry != nil {
			ids[m.Entry.ID] = struct{}{}
		}
	}
	return ids
}

// Unbounded marks an aging bucket without upper limit.
const Unbounded = -1

// AgingBucket groups open entries whose elapsed days fall in [MinDays, MaxDays).
type AgingBucket struct {
	Label       string          `json:"label"`
	MinDays     int             `json:"min_days"`
	MaxDays     int             `json:"max_days"`
	Entries     []LedgerEntry   `json:"entries"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// Contains reports whether days falls inside the half-open interval
func (b *AgingBucket) Contains(days int) bool {
	if days < b.MinDays {
		return false
	}
	return b.MaxDays == Unbounded || days < b.MaxDays
}

// Add appends an entry and accumulates its residual
func (b *AgingBucket) Add(e LedgerEntry) {
	b.Entries = append(b.Entries, e)
	b.TotalAmount = b.TotalAmount.Add(e.Residual)
}

// DuplicateConfidence ranks signature strategies.
type DuplicateConfidence string

const (
	DuplicateHigh   DuplicateConfidence = "high"
	DuplicateMedium DuplicateConfidence = "medium"
	DuplicateLow    DuplicateConfidence = "low"
)

// DuplicateGroup is a set of transactions sharing one signature.
// The first transaction is the suggested keeper; nothing is removed.
type DuplicateGroup struct {
	Signature            string              `json:"signature"`
	Strategy             string              `json:"strategy"`
	Confidence           DuplicateConfidence `json:"confidence"`
	Transactions         []Transaction       `json:"transactions"`
	SuspectedExtraCount  int                 `json:"suspected_extra_count"`
	SuspectedExtraAmount decimal.Decimal     `json:"suspected_extra_amount"`
	Suggestion           string              `json:"suggestion"`
}

// Lines returns the statement line numbers of the group members
func (g DuplicateGroup) Lines() []int {
	lines := make([]int, len(g.Transactions))
	for i, tx := range g.Transactions {
		lines[i] = tx.Line
	}
	return lines
}

// String returns a short description of the group
func (g DuplicateGroup) String() string {
	return fmt.Sprintf("DuplicateGroup{%s, %d transactions, extra %s}",
		g.Strategy, len(g.Transactions), g.SuspectedExtraAmount.StringFixed(2))
}
