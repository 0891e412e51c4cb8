package valuation

import (
	"errors"

	"appraiser/internal/model"
)

// Reasons a ledger trade is rejected before aggregation.
var (
	ErrEmptyType           = errors.New("trade has an empty item type")
	ErrNonPositiveQuantity = errors.New("trade has a non-positive quantity")
	ErrSelfTrade           = errors.New("trade exchanges a type for itself")
	ErrQuantityTooLarge    = errors.New("trade quantity overflows the pair totals")
)

// PairKey is the unordered pair of two distinct normalized types, First < Second.
type PairKey struct {
	First  string
	Second string
}

// NewPairKey orders a and b into the canonical key.
func NewPairKey(a, b string) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey{First: a, Second: b}
}

// CanonicalTrade is a validated, normalized trade with its canonical pair.
type CanonicalTrade struct {
	Key               PairKey
	OfferedType       string
	OfferedQuantity   int64
	RequestedType     string
	RequestedQuantity int64

	// OfferedIsFirst is true when the offered type is Key.First.
	OfferedIsFirst bool
}

// Canonicalize validates a raw observation and maps it onto its canonical pair.
func Canonicalize(t model.TradeObservation) (CanonicalTrade, error) {
	offered := model.NormalizeType(t.OfferedType)
	requested := model.NormalizeType(t.RequestedType)

	if offered == "" || requested == "" {
		return CanonicalTrade{}, ErrEmptyType
	}
	if t.OfferedQuantity <= 0 || t.RequestedQuantity <= 0 {
		return CanonicalTrade{}, ErrNonPositiveQuantity
	}
	if offered == requested {
		return CanonicalTrade{}, ErrSelfTrade
	}

	key := NewPairKey(offered, requested)
	return CanonicalTrade{
		Key:               key,
		OfferedType:       offered,
		OfferedQuantity:   t.OfferedQuantity,
		RequestedType:     requested,
		RequestedQuantity: t.RequestedQuantity,
		OfferedIsFirst:    key.First == offered,
	}, nil
}

// discardReason is a short metric label for a rejection.
func discardReason(err error) string {
	switch {
	case errors.Is(err, ErrEmptyType):
		return "empty_type"
	case errors.Is(err, ErrNonPositiveQuantity):
		return "non_positive_quantity"
	case errors.Is(err, ErrSelfTrade):
		return "self_trade"
	case errors.Is(err, ErrQuantityTooLarge):
		return "quantity_too_large"
	default:
		return "other"
	}
}
