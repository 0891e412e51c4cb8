package valuation

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"appraiser/internal/database"
	"appraiser/internal/model"
	"appraiser/internal/observability"
)

// Engine rebuilds the ratio table from the ledger and answers queries
// against fresh snapshots of it. It keeps no state between calls.
type Engine struct {
	logger  *slog.Logger
	repo    database.Repository
	metrics *observability.Metrics
	now     func() time.Time
}

// NewEngine creates a new valuation engine. metrics may be nil.
func NewEngine(logger *slog.Logger, repo database.Repository, metrics *observability.Metrics) *Engine {
	return &Engine{
		logger:  logger,
		repo:    repo,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RecomputeResult summarises one recomputation pass.
type RecomputeResult struct {
	TradesRead      int `json:"trades_read"`
	TradesDiscarded int `json:"trades_discarded"`
	Pairs           int `json:"pairs"`
	EntriesWritten  int `json:"entries_written"`
	UndefinedRatios int `json:"undefined_ratios"`
}

// Recompute reads the whole ledger, derives every directed ratio and upserts
// them in one unit. On failure the ratio store is left untouched.
func (e *Engine) Recompute(ctx context.Context) (RecomputeResult, error) {
	start := time.Now()
	res, err := e.recompute(ctx)
	if err != nil {
		e.metrics.ObserveRecompute("failure", 0, time.Since(start))
		e.logger.Error("Ratio recomputation failed", "error", err)
		return res, err
	}
	e.metrics.ObserveRecompute("success", res.EntriesWritten, time.Since(start))
	e.logger.Info("Ratio recomputation finished",
		"trades", res.TradesRead,
		"discarded", res.TradesDiscarded,
		"pairs", res.Pairs,
		"entries", res.EntriesWritten,
	)
	return res, nil
}

func (e *Engine) recompute(ctx context.Context) (RecomputeResult, error) {
	var res RecomputeResult

	trades, err := e.repo.ListTrades(ctx)
	if err != nil {
		return res, storageError(err, "reading trade ledger")
	}
	res.TradesRead = len(trades)

	canonical := make([]CanonicalTrade, 0, len(trades))
	for _, t := range trades {
		ct, err := Canonicalize(t)
		if err != nil {
			res.TradesDiscarded++
			e.metrics.IncDiscarded(discardReason(err))
			e.logger.Warn("Skipping trade",
				"id", t.ID,
				"offered", t.OfferedType,
				"offeredQty", t.OfferedQuantity,
				"requested", t.RequestedType,
				"requestedQty", t.RequestedQuantity,
				"reason", err,
			)
			continue
		}
		canonical = append(canonical, ct)
	}

	if len(canonical) == 0 {
		e.logger.Info("No valid trade data found in the ledger")
		return res, nil
	}

	agg := Aggregate(canonical)
	for _, ct := range agg.Overflowed {
		res.TradesDiscarded++
		e.metrics.IncDiscarded(discardReason(ErrQuantityTooLarge))
		e.logger.Warn("Skipping trade",
			"offered", ct.OfferedType,
			"offeredQty", ct.OfferedQuantity,
			"requested", ct.RequestedType,
			"requestedQty", ct.RequestedQuantity,
			"reason", ErrQuantityTooLarge,
		)
	}
	res.Pairs = len(agg.Pairs)

	entries := Derive(agg, e.now())
	for _, entry := range entries {
		if entry.AverageRatio == nil {
			res.UndefinedRatios++
			e.logger.Warn("Ratio is undefined", "typeA", entry.TypeA, "typeB", entry.TypeB)
		}
	}

	if err := e.repo.UpsertRatios(ctx, entries); err != nil {
		return res, storageError(err, "writing ratio store")
	}
	res.EntriesWritten = len(entries)
	return res, nil
}

// Snapshot loads every ratio entry. An empty store yields an empty snapshot.
func (e *Engine) Snapshot(ctx context.Context) (model.Snapshot, error) {
	entries, err := e.repo.ListRatios(ctx)
	if err != nil {
		kind := KindDataFetchFailed
		if errors.Is(err, database.ErrDatabaseNotFound) {
			kind = KindDatabaseNotFound
		}
		return nil, newError(kind, err, "could not load ratio data")
	}

	snap := make(model.Snapshot, len(entries))
	for _, entry := range entries {
		snap[entry.Pair()] = model.RatioStat{
			AverageRatio: entry.AverageRatio,
			TradeCount:   entry.TradeCount,
		}
	}
	return snap, nil
}

// Evaluate classifies a hypothetical trade against a fresh snapshot.
func (e *Engine) Evaluate(ctx context.Context, offType string, offQty int64, reqType string, reqQty int64) (*TradeEvaluation, error) {
	if offQty <= 0 || reqQty <= 0 {
		err := newError(KindInvalidParameter, nil, "amounts must be positive integers, got %d and %d", offQty, reqQty)
		e.metrics.ObserveQuery("evaluate", string(err.Kind))
		return nil, err
	}

	snap, err := e.Snapshot(ctx)
	if err != nil {
		e.metrics.ObserveQuery("evaluate", string(KindOf(err)))
		return nil, err
	}

	res, err := Evaluate(snap, offType, offQty, reqType, reqQty)
	if err != nil {
		e.metrics.ObserveQuery("evaluate", string(KindOf(err)))
		return nil, err
	}
	e.metrics.ObserveQuery("evaluate", "ok")
	return res, nil
}

// Expand converts a quantity of one type into its direct equivalents.
func (e *Engine) Expand(ctx context.Context, baseType string, baseQty float64) (*Equivalence, error) {
	snap, err := e.Snapshot(ctx)
	if err != nil {
		e.metrics.ObserveQuery("expand", string(KindOf(err)))
		return nil, err
	}

	res, err := Expand(snap, baseType, baseQty)
	if err != nil {
		e.metrics.ObserveQuery("expand", string(KindOf(err)))
		if KindOf(err) == KindTypeNotFound {
			e.logger.Warn("Base type not found in any recorded relationship", "baseType", baseType)
		}
		return nil, err
	}
	for _, d := range res.CalculationDetails {
		if d.EquivalentQuantity == nil {
			e.logger.Debug("No direct relationship", "baseType", res.BaseType, "targetType", d.TargetType)
		}
	}
	e.metrics.ObserveQuery("expand", "ok")
	return res, nil
}

// Relationship is one row of the published ratio table.
type Relationship struct {
	TypeA        string   `json:"type_a"`
	TypeB        string   `json:"type_b"`
	AverageRatio *float64 `json:"average_ratio"`
	TradeCount   int      `json:"trade_count"`
}

// Relationships lists every directed ratio ordered by pair, rounded to three
// decimals for display.
func (e *Engine) Relationships(ctx context.Context) ([]Relationship, error) {
	snap, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Relationship, 0, len(snap))
	for pair, stat := range snap {
		rel := Relationship{TypeA: pair.TypeA, TypeB: pair.TypeB, TradeCount: stat.TradeCount}
		if stat.AverageRatio != nil {
			r := round(*stat.AverageRatio, 3)
			rel.AverageRatio = &r
		}
		out = append(out, rel)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TypeA != out[j].TypeA {
			return out[i].TypeA < out[j].TypeA
		}
		return out[i].TypeB < out[j].TypeB
	})
	return out, nil
}

// RemoveRelation deletes one directed entry from the ratio store.
func (e *Engine) RemoveRelation(ctx context.Context, typeA, typeB string) error {
	typeA, typeB = model.NormalizeType(typeA), model.NormalizeType(typeB)
	if err := e.repo.DeleteRatio(ctx, typeA, typeB); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return newError(KindRelationNotFound, err, "no recorded relationship between %s and %s", typeA, typeB)
		}
		return storageError(err, "deleting ratio")
	}
	e.logger.Info("Removed relationship", "typeA", typeA, "typeB", typeB)
	return nil
}

// PurgeResult reports a ledger purge.
type PurgeResult struct {
	Removed int64 `json:"removed"`

	// StaleRelations are the stored ratios that still mention the purged
	// type. Recomputation only upserts, so they stay until removed one by one.
	StaleRelations []Relationship `json:"stale_relations"`
}

// PurgeType removes every ledger trade that mentions itemType and reports the
// ratio entries left behind for it.
func (e *Engine) PurgeType(ctx context.Context, itemType string) (PurgeResult, error) {
	normalized := model.NormalizeType(itemType)
	if normalized == "" {
		return PurgeResult{}, newError(KindInvalidParameter, nil, "type must not be empty")
	}
	n, err := e.repo.DeleteTradesByType(ctx, itemType)
	if err != nil {
		return PurgeResult{}, storageError(err, "deleting trades")
	}
	e.logger.Info("Removed trades from ledger", "type", normalized, "count", n)

	res := PurgeResult{Removed: n, StaleRelations: []Relationship{}}
	rels, err := e.Relationships(ctx)
	if err != nil {
		e.logger.Warn("Could not list relations left for purged type", "type", normalized, "error", err)
		return res, nil
	}
	for _, rel := range rels {
		if rel.TypeA == normalized || rel.TypeB == normalized {
			res.StaleRelations = append(res.StaleRelations, rel)
		}
	}
	if len(res.StaleRelations) > 0 {
		e.logger.Warn("Stored relations still mention purged type, remove them explicitly",
			"type", normalized,
			"relations", len(res.StaleRelations),
		)
	}
	return res, nil
}
