package matcher

import (
	"sort"

	"github.com/shopspring/decimal"

	"statement-reconciler/internal/locale"
	"statement-reconciler/internal/models"
	pkgerrors "statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"
)

// Matcher is the engine pairing statement transactions with ledger entries
type Matcher struct {
	Tolerance Tolerance
	logger    logger.Logger
}

// New creates a matcher with the specified tolerance
func New(tol Tolerance, log logger.Logger) (*Matcher, error) {
	if err := tol.Validate(); err != nil {
		return nil, pkgerrors.ConfigurationError(pkgerrors.CodeInvalidConfig, "tolerance", tol.String(), err)
	}
	return &Matcher{
		Tolerance: tol,
		logger:    logger.OrGlobal(log).WithComponent("matcher"),
	}, nil
}

// Match runs the greedy matching of txs against entries with tol
func Match(txs []models.Transaction, entries []models.LedgerEntry, tol Tolerance) models.MatchReport {
	m := &Matcher{Tolerance: tol, logger: logger.Discard()}
	return m.Match(txs, entries)
}

// Match partitions txs and entries into matched pairs, bank-only
// transactions and ledger-only entries. Inputs are not modified.
func (m *Matcher) Match(txs []models.Transaction, entries []models.LedgerEntry) models.MatchReport {
	pool := NewPool(entries, m.Tolerance)
	report := models.MatchReport{
		Matched:    make([]models.MatchResult, 0),
		BankOnly:   make([]models.Transaction, 0),
		LedgerOnly: make([]models.LedgerEntry, 0),
	}

	for _, tx := range byDate(txs) {
		result, pos := pool.find(tx)
		if !result.Found() {
			report.BankOnly = append(report.BankOnly, tx)
			continue
		}
		pool.index.Consume(pos)
		report.Matched = append(report.Matched, result)
	}
	report.LedgerOnly = pool.index.Remaining()

	m.logger.WithFields(logger.Fields{
		"transactions": len(txs),
		"entries":      len(entries),
		"matched":      len(report.Matched),
		"exact":        report.CountByConfidence(models.MatchExact),
		"bank_only":    len(report.BankOnly),
		"ledger_only":  len(report.LedgerOnly),
	}).Debug("Matching finished")

	return report
}

// byDate returns a copy of txs in ascending value date order; statement order
// breaks ties.
func byDate(txs []models.Transaction) []models.Transaction {
	sorted := make([]models.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	return sorted
}

// Pool is the set of ledger entries still available for matching.
type Pool struct {
	index *EntryIndex
	tol   Tolerance
}

// NewPool indexes entries for FindMatch
func NewPool(entries []models.LedgerEntry, tol Tolerance) *Pool {
	return &Pool{
		index: NewEntryIndex(entries),
		tol:   tol,
	}
}

// candidate is a ledger entry inside the tolerance window of a transaction.
type candidate struct {
	pos         int
	entry       models.LedgerEntry
	dateDelta   int
	amountDelta decimal.Decimal
}

// FindMatch returns the nearest available entry for tx, or a NONE result.
// The pool is not changed.
func (p *Pool) FindMatch(tx models.Transaction) models.MatchResult {
	result, _ := p.find(tx)
	return result
}

func (p *Pool) find(tx models.Transaction) (models.MatchResult, int) {
	days := p.tol.DateDays
	var best *candidate

	for _, pos := range p.index.GetByDateRange(tx.Date.AddDate(0, 0, -days), tx.Date.AddDate(0, 0, days)) {
		c, ok := p.evaluate(tx, pos)
		if !ok {
			continue
		}
		if best == nil || c.less(best) {
			best = &c
		}
	}

	if best == nil {
		return models.NotFound(tx), -1
	}

	entry := best.entry
	confidence := models.MatchTolerant
	if best.dateDelta == 0 && best.amountDelta.IsZero() {
		confidence = models.MatchExact
	}
	return models.MatchResult{
		Transaction:   tx,
		Entry:         &entry,
		Confidence:    confidence,
		AmountDelta:   best.amountDelta,
		DateDeltaDays: best.dateDelta,
	}, best.pos
}

// Available returns how many entries are left in the pool
func (p *Pool) Available() int {
	return p.index.GetIndexStats().AvailableCount
}

func (p *Pool) evaluate(tx models.Transaction, pos int) (candidate, bool) {
	entry := p.index.Entry(pos)

	dateDelta := models.DaysBetween(entry.Date, tx.Date)
	if dateDelta < 0 {
		dateDelta = -dateDelta
	}
	if dateDelta > p.tol.DateDays {
		return candidate{}, false
	}

	txAmount, entryAmount := p.tol.amounts(tx, entry)
	delta := txAmount.Sub(entryAmount)
	if !p.tol.WithinAmount(txAmount, delta) {
		return candidate{}, false
	}

	if !p.tol.IgnoreCounterparty && tx.HasCounterparty() && entry.HasPartner() &&
		!SameCounterparty(tx.Counterparty, entry.PartnerName) {
		return candidate{}, false
	}

	return candidate{pos: pos, entry: entry, dateDelta: dateDelta, amountDelta: delta}, true
}

// less orders candidates by date delta, amount delta, entry date and ID
func (c candidate) less(o *candidate) bool {
	if c.dateDelta != o.dateDelta {
		return c.dateDelta < o.dateDelta
	}
	if cmp := c.amountDelta.Abs().Cmp(o.amountDelta.Abs()); cmp != 0 {
		return cmp < 0
	}
	if !c.entry.Date.Equal(o.entry.Date) {
		return c.entry.Date.Before(o.entry.Date)
	}
	return c.entry.ID < o.entry.ID
}

// SameCounterparty compares two names ignoring case, accents and spacing.
// The constraint is waived when either side is empty.
func SameCounterparty(a, b string) bool {
	fa, fb := locale.FoldText(a), locale.FoldText(b)
	if fa == "" || fb == "" {
		return true
	}
	return fa == fb
}
