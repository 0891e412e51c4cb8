package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Post is a single free-text offer/request statement received from a feed.
type Post struct {
	Source     string
	Text       string
	ReceivedAt time.Time
}

// TradeObservation is one raw trade as extracted from a post and kept in the ledger.
// Values are stored exactly as extracted; validation happens at recomputation.
type TradeObservation struct {
	ID                uuid.UUID `db:"id"`
	OfferedQuantity   int64     `db:"offered_quantity"`
	OfferedType       string    `db:"offered_type"`
	RequestedQuantity int64     `db:"requested_quantity"`
	RequestedType     string    `db:"requested_type"`
	ObservedAt        time.Time `db:"observed_at"`
}

// NewTradeObservation builds an observation with a fresh ID stamped at now.
func NewTradeObservation(offeredQty int64, offeredType string, requestedQty int64, requestedType string) TradeObservation {
	return TradeObservation{
		ID:                uuid.New(),
		OfferedQuantity:   offeredQty,
		OfferedType:       offeredType,
		RequestedQuantity: requestedQty,
		RequestedType:     requestedType,
		ObservedAt:        time.Now().UTC(),
	}
}

// NormalizeType trims surrounding whitespace and upper-cases an item type.
func NormalizeType(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}

// DirectedPair identifies a directed relation: how much of TypeB one unit of TypeA is worth.
type DirectedPair struct {
	TypeA string
	TypeB string
}

// Reversed returns the opposite direction of the pair.
func (p DirectedPair) Reversed() DirectedPair {
	return DirectedPair{TypeA: p.TypeB, TypeB: p.TypeA}
}

// RatioEntry is a persisted directed ratio row.
// AverageRatio is nil when the ratio is undefined.
type RatioEntry struct {
	TypeA        string    `db:"type_a"`
	TypeB        string    `db:"type_b"`
	AverageRatio *float64  `db:"average_ratio"`
	TradeCount   int       `db:"trade_count"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Pair returns the directed key of the entry.
func (e RatioEntry) Pair() DirectedPair {
	return DirectedPair{TypeA: e.TypeA, TypeB: e.TypeB}
}

// RatioStat is the query-facing view of a ratio entry.
type RatioStat struct {
	AverageRatio *float64
	TradeCount   int
}

// Snapshot is a full in-memory copy of the ratio store.
type Snapshot map[DirectedPair]RatioStat

// Types returns every type that appears on either side of any pair.
func (s Snapshot) Types() map[string]struct{} {
	types := make(map[string]struct{}, len(s))
	for p := range s {
		types[p.TypeA] = struct{}{}
		types[p.TypeB] = struct{}{}
	}
	return types
}
