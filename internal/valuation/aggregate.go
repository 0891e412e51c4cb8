package valuation

import (
	"math"
	"sort"
	"time"

	"appraiser/internal/model"
)

// PairAggregate pools the quantities exchanged between the two types of a pair.
type PairAggregate struct {
	TotalFirst  int64
	TotalSecond int64
	Count       int
}

// Aggregation is the result of folding canonical trades.
type Aggregation struct {
	Pairs map[PairKey]*PairAggregate
	Types map[string]struct{}

	// Overflowed holds trades left out because adding them would overflow
	// a pair total. They contribute neither to totals nor to counts.
	Overflowed []CanonicalTrade
}

// Aggregate folds trades into per-pair totals. Each trade adds its offered
// quantity to the offered type's side and its requested quantity to the
// other, so larger trades weigh proportionally more.
func Aggregate(trades []CanonicalTrade) Aggregation {
	agg := Aggregation{
		Pairs: make(map[PairKey]*PairAggregate),
		Types: make(map[string]struct{}),
	}

	for _, t := range trades {
		first, second := t.RequestedQuantity, t.OfferedQuantity
		if t.OfferedIsFirst {
			first, second = t.OfferedQuantity, t.RequestedQuantity
		}

		pa := agg.Pairs[t.Key]
		var totalFirst, totalSecond int64
		if pa != nil {
			totalFirst, totalSecond = pa.TotalFirst, pa.TotalSecond
		}
		if totalFirst > math.MaxInt64-first || totalSecond > math.MaxInt64-second {
			agg.Overflowed = append(agg.Overflowed, t)
			continue
		}

		if pa == nil {
			pa = &PairAggregate{}
			agg.Pairs[t.Key] = pa
		}
		agg.Types[t.OfferedType] = struct{}{}
		agg.Types[t.RequestedType] = struct{}{}

		pa.TotalFirst += first
		pa.TotalSecond += second
		pa.Count++
	}
	return agg
}

// SortedTypes returns the observed types in lexicographic order.
func (a Aggregation) SortedTypes() []string {
	types := make([]string, 0, len(a.Types))
	for t := range a.Types {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Derive builds both directed entries for every observed pair that has an
// aggregate. Pairs of types that never traded directly yield nothing.
func Derive(agg Aggregation, now time.Time) []model.RatioEntry {
	types := agg.SortedTypes()
	var entries []model.RatioEntry

	for i := 0; i < len(types); i++ {
		for j := i + 1; j < len(types); j++ {
			a, b := types[i], types[j]
			pa, ok := agg.Pairs[PairKey{First: a, Second: b}]
			if !ok {
				continue
			}

			entries = append(entries,
				model.RatioEntry{
					TypeA:        a,
					TypeB:        b,
					AverageRatio: ratioOf(pa.TotalSecond, pa.TotalFirst),
					TradeCount:   pa.Count,
					UpdatedAt:    now,
				},
				model.RatioEntry{
					TypeA:        b,
					TypeB:        a,
					AverageRatio: ratioOf(pa.TotalFirst, pa.TotalSecond),
					TradeCount:   pa.Count,
					UpdatedAt:    now,
				},
			)
		}
	}
	return entries
}

// ratioOf returns num/den, or nil when the quotient is undefined.
func ratioOf(num, den int64) *float64 {
	if den <= 0 {
		return nil
	}
	r := float64(num) / float64(den)
	if math.IsInf(r, 0) || math.IsNaN(r) {
		return nil
	}
	return &r
}
