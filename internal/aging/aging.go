// Package aging buckets open ledger entries by how long they are outstanding.
package aging

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"statement-reconciler/internal/locale"
	"statement-reconciler/internal/models"
)

// BucketSpec defines one half-open range [MinDays, MaxDays) of elapsed days.
type BucketSpec struct {
	Label   string `json:"label" yaml:"label" mapstructure:"label"`
	MinDays int    `json:"min_days" yaml:"min_days" mapstructure:"min_days"`
	MaxDays int    `json:"max_days" yaml:"max_days" mapstructure:"max_days"`
}

// DefaultBuckets returns 0-30, 31-60, 61-90, 91-180 and 180+
func DefaultBuckets() []BucketSpec {
	return []BucketSpec{
		{Label: "0-30", MinDays: 0, MaxDays: 31},
		{Label: "31-60", MinDays: 31, MaxDays: 61},
		{Label: "61-90", MinDays: 61, MaxDays: 91},
		{Label: "91-180", MinDays: 91, MaxDays: 181},
		{Label: "180+", MinDays: 181, MaxDays: models.Unbounded},
	}
}

// DefaultEpsilon is the residual below which an entry counts as settled
var DefaultEpsilon = decimal.New(1, -2)

// ValidateBuckets checks that buckets start at zero, are contiguous and end
// unbounded, so every elapsed day count falls in exactly one bucket.
func ValidateBuckets(buckets []BucketSpec) error {
	if len(buckets) == 0 {
		return fmt.Errorf("at least one aging bucket is required")
	}
	if buckets[0].MinDays != 0 {
		return fmt.Errorf("first bucket %q must start at 0 days, starts at %d", buckets[0].Label, buckets[0].MinDays)
	}

	labels := make(map[string]bool, len(buckets))
	for i, b := range buckets {
		if strings.TrimSpace(b.Label) == "" {
			return fmt.Errorf("bucket %d has no label", i)
		}
		if labels[b.Label] {
			return fmt.Errorf("duplicate bucket label %q", b.Label)
		}
		labels[b.Label] = true

		last := i == len(buckets)-1
		if last {
			if b.MaxDays != models.Unbounded {
				return fmt.Errorf("last bucket %q must be unbounded", b.Label)
			}
			continue
		}
		if b.MaxDays <= b.MinDays {
			return fmt.Errorf("bucket %q is empty: [%d, %d)", b.Label, b.MinDays, b.MaxDays)
		}
		if next := buckets[i+1]; next.MinDays != b.MaxDays {
			return fmt.Errorf("bucket %q ends at %d but %q starts at %d", b.Label, b.MaxDays, next.Label, next.MinDays)
		}
	}
	return nil
}

// ParseBuckets reads a compact definition such as "0-30,31-60,61+". Each
// range is inclusive; the last one must be open ended.
func ParseBuckets(def string) ([]BucketSpec, error) {
	var out []BucketSpec
	for _, part := range strings.Split(def, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b := BucketSpec{Label: part}
		var err error
		if lo, ok := strings.CutSuffix(part, "+"); ok {
			b.MinDays, err = parseDays(lo)
			b.MaxDays = models.Unbounded
		} else if lo, hi, ok := strings.Cut(part, "-"); ok {
			if b.MinDays, err = parseDays(lo); err == nil {
				b.MaxDays, err = parseDays(hi)
				b.MaxDays++
			}
		} else {
			err = fmt.Errorf(`expected "min-max" or "min+"`)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid bucket %q: %w", part, err)
		}
		out = append(out, b)
	}
	if err := ValidateBuckets(out); err != nil {
		return nil, err
	}
	return out, nil
}

// parseDays reads a non-negative day count
func parseDays(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative day count %d", n)
	}
	return n, nil
}

// Result is the outcome of one classification.
type Result struct {
	AsOf    time.Time                      `json:"as_of"`
	Labels  []string                       `json:"labels"`
	Buckets map[string]*models.AgingBucket `json:"buckets"`
	// Settled counts entries skipped because their residual is below epsilon.
	Settled int `json:"settled"`
}

// Classify places every open entry in the bucket of its elapsed days, counted
// from the due date (or entry date) to asOf. Entries not yet due go to the
// first bucket.
func Classify(entries []models.LedgerEntry, asOf time.Time, buckets []BucketSpec) (*Result, error) {
	return ClassifyWithEpsilon(entries, asOf, buckets, DefaultEpsilon)
}

// ClassifyWithEpsilon is Classify with an explicit settled threshold
func ClassifyWithEpsilon(entries []models.LedgerEntry, asOf time.Time, buckets []BucketSpec, epsilon decimal.Decimal) (*Result, error) {
	if len(buckets) == 0 {
		buckets = DefaultBuckets()
	}
	if err := ValidateBuckets(buckets); err != nil {
		return nil, err
	}

	res := &Result{
		AsOf:    models.Day(asOf),
		Labels:  make([]string, len(buckets)),
		Buckets: make(map[string]*models.AgingBucket, len(buckets)),
	}
	ordered := make([]*models.AgingBucket, len(buckets))
	for i, b := range buckets {
		res.Labels[i] = b.Label
		ordered[i] = &models.AgingBucket{
			Label:       b.Label,
			MinDays:     b.MinDays,
			MaxDays:     b.MaxDays,
			Entries:     make([]models.LedgerEntry, 0),
			TotalAmount: decimal.Zero,
		}
		res.Buckets[b.Label] = ordered[i]
	}

	for _, e := range entries {
		if e.Residual.Abs().LessThan(epsilon) {
			res.Settled++
			continue
		}
		days := ElapsedDays(e, asOf)
		if days < 0 {
			days = 0
		}
		for _, b := range ordered {
			if b.Contains(days) {
				b.Add(e)
				break
			}
		}
	}
	return res, nil
}

// ElapsedDays returns the days from the entry's aging date to asOf
func ElapsedDays(e models.LedgerEntry, asOf time.Time) int {
	return models.DaysBetween(e.AgingDate(), asOf)
}

// Ordered returns the buckets in definition order
func (r *Result) Ordered() []*models.AgingBucket {
	out := make([]*models.AgingBucket, len(r.Labels))
	for i, l := range r.Labels {
		out[i] = r.Buckets[l]
	}
	return out
}

// Total returns the open residual over all buckets
func (r *Result) Total() decimal.Decimal {
	total := decimal.Zero
	for _, b := range r.Buckets {
		total = total.Add(b.TotalAmount)
	}
	return total
}

// EntryCount returns the number of classified entries
func (r *Result) EntryCount() int {
	n := 0
	for _, b := range r.Buckets {
		n += len(b.Entries)
	}
	return n
}

// CounterpartyBalance is the open balance of one partner across buckets.
type CounterpartyBalance struct {
	Name     string                     `json:"name"`
	Total    decimal.Decimal            `json:"total"`
	Entries  int                        `json:"entries"`
	ByBucket map[string]decimal.Decimal `json:"by_bucket"`
	// Oldest is the label of the oldest bucket holding an entry of the partner.
	Oldest string `json:"oldest"`
}

// UnknownCounterparty names entries without a partner
const UnknownCounterparty = "(no partner)"

// ByCounterparty indexes classified entries by partner name and ranks the
// partners by the magnitude of their open balance, largest first. Names are
// grouped case and accent insensitively; the first spelling seen is kept.
func (r *Result) ByCounterparty() []CounterpartyBalance {
	index := make(map[string]*CounterpartyBalance)
	var order []string

	for _, b := range r.Ordered() {
		for _, e := range b.Entries {
			name := UnknownCounterparty
			if e.HasPartner() {
				name = strings.TrimSpace(e.PartnerName)
			}
			key := locale.FoldText(name)

			cb, ok := index[key]
			if !ok {
				cb = &CounterpartyBalance{Name: name, Total: decimal.Zero, ByBucket: make(map[string]decimal.Decimal)}
				index[key] = cb
				order = append(order, key)
			}
			cb.Total = cb.Total.Add(e.Residual)
			cb.Entries++
			cb.ByBucket[b.Label] = cb.ByBucket[b.Label].Add(e.Residual)
			cb.Oldest = b.Label
		}
	}

	out := make([]CounterpartyBalance, len(order))
	for i, key := range order {
		out[i] = *index[key]
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Total.Abs().Cmp(out[j].Total.Abs()); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Top returns at most n partners of ByCounterparty
func (r *Result) Top(n int) []CounterpartyBalance {
	all := r.ByCounterparty()
	if n > 0 && n < len(all) {
		return all[:n]
	}
	return all
}
