package database

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"appraiser/internal/model"
)

// MemoryRepository is an in-memory implementation of Repository.
type MemoryRepository struct {
	mu     sync.RWMutex
	trades []model.TradeObservation
	ratios map[model.DirectedPair]model.RatioEntry
}

// Compile-time interface check.
var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		ratios: make(map[model.DirectedPair]model.RatioEntry),
	}
}

// Migrate is a no-op for the in-memory repository.
func (r *MemoryRepository) Migrate(_ context.Context) error {
	return nil
}

// AppendTrade records one observation.
func (r *MemoryRepository) AppendTrade(_ context.Context, trade model.TradeObservation) error {
	if trade.ID == uuid.Nil {
		return ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.trades = append(r.trades, trade)
	return nil
}

// ListTrades returns a copy of every observation, oldest first.
func (r *MemoryRepository) ListTrades(_ context.Context) ([]model.TradeObservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.TradeObservation, len(r.trades))
	copy(out, r.trades)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ObservedAt.Before(out[j].ObservedAt)
	})
	return out, nil
}

// DeleteTradesByType removes observations mentioning itemType on either side.
func (r *MemoryRepository) DeleteTradesByType(_ context.Context, itemType string) (int64, error) {
	target := model.NormalizeType(itemType)
	if target == "" {
		return 0, ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.trades[:0]
	var removed int64
	for _, t := range r.trades {
		if model.NormalizeType(t.OfferedType) == target || model.NormalizeType(t.RequestedType) == target {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	r.trades = kept
	return removed, nil
}

// UpsertRatios writes all entries or none.
func (r *MemoryRepository) UpsertRatios(_ context.Context, entries []model.RatioEntry) error {
	for _, e := range entries {
		if e.TypeA == "" || e.TypeB == "" {
			return ErrInvalidInput
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range entries {
		if e.AverageRatio != nil {
			v := *e.AverageRatio
			e.AverageRatio = &v
		}
		r.ratios[e.Pair()] = e
	}
	return nil
}

// ListRatios returns every stored entry ordered by pair.
func (r *MemoryRepository) ListRatios(_ context.Context) ([]model.RatioEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.RatioEntry, 0, len(r.ratios))
	for _, e := range r.ratios {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TypeA != out[j].TypeA {
			return out[i].TypeA < out[j].TypeA
		}
		return out[i].TypeB < out[j].TypeB
	})
	return out, nil
}

// DeleteRatio removes a single directed entry.
func (r *MemoryRepository) DeleteRatio(_ context.Context, typeA, typeB string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := model.DirectedPair{TypeA: typeA, TypeB: typeB}
	if _, ok := r.ratios[key]; !ok {
		return ErrNotFound
	}
	delete(r.ratios, key)
	return nil
}
