// Package dedup flags transactions of one statement that share a signature.
//
// Nothing is ever removed: groups carry a "keep first, review the rest"
// suggestion and the decision to storno an entry stays with a human.
package dedup

import (
	"fmt"
	"iter"
	"strings"

	"github.com/shopspring/decimal"

	"statement-reconciler/internal/locale"
	"statement-reconciler/internal/models"
	"statement-reconciler/pkg/logger"
)

// SignatureField is one component of a duplicate signature
type SignatureField string

const (
	FieldDate         SignatureField = "date"
	FieldAmount       SignatureField = "amount"
	FieldCounterparty SignatureField = "counterparty"
	FieldDescription  SignatureField = "description"
	FieldReference    SignatureField = "reference"
)

// ParseField validates a signature field name
func ParseField(name string) (SignatureField, error) {
	switch f := SignatureField(strings.ToLower(strings.TrimSpace(name))); f {
	case FieldDate, FieldAmount, FieldCounterparty, FieldDescription, FieldReference:
		return f, nil
	}
	return "", fmt.Errorf("unknown signature field %q", name)
}

// DefaultFields is the signature used when none is given
var DefaultFields = []SignatureField{FieldDate, FieldAmount, FieldCounterparty}

// Strategy is a named signature with the confidence its groups carry.
type Strategy struct {
	Name       string
	Fields     []SignatureField
	Confidence models.DuplicateConfidence
	// SkipNearZero leaves amounts below the near-zero epsilon out of grouping.
	SkipNearZero bool
}

var (
	Exact = Strategy{
		Name:       "exact",
		Fields:     []SignatureField{FieldDate, FieldAmount, FieldCounterparty, FieldDescription, FieldReference},
		Confidence: models.DuplicateHigh,
	}
	Default = Strategy{
		Name:       "default",
		Fields:     DefaultFields,
		Confidence: models.DuplicateMedium,
	}
	Loose = Strategy{
		Name:         "loose",
		Fields:       []SignatureField{FieldDate, FieldAmount},
		Confidence:   models.DuplicateLow,
		SkipNearZero: true,
	}
)

// StrategyByName looks up a built-in strategy
func StrategyByName(name string) (Strategy, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case Exact.Name:
		return Exact, true
	case Default.Name:
		return Default, true
	case Loose.Name:
		return Loose, true
	}
	return Strategy{}, false
}

// DefaultNearZeroEpsilon is the magnitude below which loose grouping ignores an amount
var DefaultNearZeroEpsilon = decimal.New(1, -2)

// Signature renders the signature key of a transaction
func Signature(tx models.Transaction, fields []SignatureField) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		switch f {
		case FieldDate:
			parts[i] = tx.Date.Format(models.DateLayout)
		case FieldAmount:
			parts[i] = tx.Amount.String()
		case FieldCounterparty:
			parts[i] = locale.FoldText(tx.Counterparty)
		case FieldDescription:
			parts[i] = locale.FoldText(tx.Description)
		case FieldReference:
			parts[i] = strings.TrimSpace(tx.Reference)
		}
	}
	return strings.Join(parts, "|")
}

// FindDuplicates lazily yields every group of two or more transactions
// sharing the signature built from fields (DefaultFields when empty).
// Groups come in order of their first member. Each iteration regroups the
// input, so ranging twice yields identical groups.
func FindDuplicates(txs []models.Transaction, fields ...SignatureField) iter.Seq[models.DuplicateGroup] {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	strategy := Strategy{Name: "custom", Fields: fields, Confidence: models.DuplicateMedium}
	return strategy.Groups(txs, DefaultNearZeroEpsilon)
}

// Groups lazily yields the duplicate groups of the strategy
func (s Strategy) Groups(txs []models.Transaction, nearZero decimal.Decimal) iter.Seq[models.DuplicateGroup] {
	return func(yield func(models.DuplicateGroup) bool) {
		for _, g := range s.collect(txs, nearZero) {
			if !yield(g.build(txs, s)) {
				return
			}
		}
	}
}

// indexedGroup holds member positions in the input slice.
type indexedGroup struct {
	signature string
	members   []int
}

func (s Strategy) collect(txs []models.Transaction, nearZero decimal.Decimal) []indexedGroup {
	bySignature := make(map[string]int)
	var groups []indexedGroup

	for i, tx := range txs {
		if s.SkipNearZero && tx.Amount.Abs().LessThan(nearZero) {
			continue
		}
		sig := Signature(tx, s.Fields)
		if pos, ok := bySignature[sig]; ok {
			groups[pos].members = append(groups[pos].members, i)
			continue
		}
		bySignature[sig] = len(groups)
		groups = append(groups, indexedGroup{signature: sig, members: []int{i}})
	}

	out := groups[:0]
	for _, g := range groups {
		if len(g.members) > 1 {
			out = append(out, g)
		}
	}
	return out
}

func (g indexedGroup) key() string {
	ids := make([]string, len(g.members))
	for i, m := range g.members {
		ids[i] = fmt.Sprint(m)
	}
	return strings.Join(ids, ",")
}

func (g indexedGroup) build(txs []models.Transaction, s Strategy) models.DuplicateGroup {
	group := models.DuplicateGroup{
		Signature:            g.signature,
		Strategy:             s.Name,
		Confidence:           s.Confidence,
		Transactions:         make([]models.Transaction, len(g.members)),
		SuspectedExtraCount:  len(g.members) - 1,
		SuspectedExtraAmount: decimal.Zero,
	}
	for i, m := range g.members {
		group.Transactions[i] = txs[m]
		if i > 0 {
			group.SuspectedExtraAmount = group.SuspectedExtraAmount.Add(txs[m].Amount)
		}
	}
	group.Suggestion = suggestion(group)
	return group
}

func suggestion(g models.DuplicateGroup) string {
	lines := g.Lines()
	rest := make([]string, len(lines)-1)
	for i, l := range lines[1:] {
		rest[i] = fmt.Sprint(l)
	}
	return fmt.Sprintf("keep line %d; review line(s) %s as possible duplicates (%s)",
		lines[0], strings.Join(rest, ", "), g.SuspectedExtraAmount.StringFixed(2))
}

// Config selects the strategies run by a Deduplicator.
type Config struct {
	// Strategies run in order; earlier strategies win when two produce the
	// same membership. Defaults to exact then loose.
	Strategies      []string        `mapstructure:"strategies"`
	NearZeroEpsilon decimal.Decimal `mapstructure:"-"`
}

// DefaultConfig returns the exact-then-loose configuration
func DefaultConfig() Config {
	return Config{
		Strategies:      []string{Exact.Name, Loose.Name},
		NearZeroEpsilon: DefaultNearZeroEpsilon,
	}
}

// Deduplicator runs several strategies over one statement.
type Deduplicator struct {
	strategies []Strategy
	nearZero   decimal.Decimal
	logger     logger.Logger
}

// New creates a Deduplicator
func New(cfg Config, log logger.Logger) (*Deduplicator, error) {
	names := cfg.Strategies
	if len(names) == 0 {
		names = DefaultConfig().Strategies
	}

	d := &Deduplicator{
		nearZero: cfg.NearZeroEpsilon,
		logger:   logger.OrGlobal(log).WithComponent("deduplicator"),
	}
	if d.nearZero.IsZero() {
		d.nearZero = DefaultNearZeroEpsilon
	}

	for _, name := range names {
		s, ok := StrategyByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown duplicate strategy %q (known: exact, default, loose)", name)
		}
		d.strategies = append(d.strategies, s)
	}
	return d, nil
}

// Detect runs every strategy and returns their groups, dropping groups whose
// membership was already reported by an earlier strategy.
func (d *Deduplicator) Detect(txs []models.Transaction) []models.DuplicateGroup {
	seen := make(map[string]bool)
	var out []models.DuplicateGroup

	for _, s := range d.strategies {
		found := 0
		for _, g := range s.collect(txs, d.nearZero) {
			key := g.key()
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, g.build(txs, s))
			found++
		}
		d.logger.WithFields(logger.Fields{
			"strategy": s.Name,
			"groups":   found,
		}).Debug("Duplicate detection pass finished")
	}
	return out
}

// Summary totals a set of duplicate groups.
type Summary struct {
	Groups      int             `json:"groups"`
	ExtraCount  int             `json:"extra_count"`
	ExtraAmount decimal.Decimal `json:"extra_amount"`
	ByStrategy  map[string]int  `json:"by_strategy"`
}

// Summarize totals groups. Transactions flagged by several groups are
// counted once per group.
func Summarize(groups []models.DuplicateGroup) Summary {
	s := Summary{ExtraAmount: decimal.Zero, ByStrategy: make(map[string]int)}
	for _, g := range groups {
		s.Groups++
		s.ExtraCount += g.SuspectedExtraCount
		s.ExtraAmount = s.ExtraAmount.Add(g.SuspectedExtraAmount)
		s.ByStrategy[g.Strategy]++
	}
	return s
}

// Strategies returns the names of the configured strategies
func (d *Deduplicator) Strategies() []string {
	names := make([]string, len(d.strategies))
	for i, s := range d.strategies {
		names[i] = s.Name
	}
	return names
}
