package valuation

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"appraiser/internal/model"
)

// Classification is the verdict of a hypothetical trade against the average.
type Classification string

const (
	Underpay Classification = "underpay"
	Overpay  Classification = "overpay"
	Fair     Classification = "fair"
)

// TradeDetails echoes the evaluated trade.
type TradeDetails struct {
	OfferedType     string `json:"offered_type"`
	OfferedAmount   int64  `json:"offered_amount"`
	RequestedType   string `json:"requested_type"`
	RequestedAmount int64  `json:"requested_amount"`
}

// Analysis compares the trade's ratio with the stored average.
type Analysis struct {
	Status       Classification `json:"status"`
	Message      string         `json:"message"`
	YourRatio    float64        `json:"your_ratio"`
	AverageRatio float64        `json:"average_ratio"`
	RatioUnit    string         `json:"ratio_unit"`
}

// TradeEvaluation is the result of a hypothetical-trade evaluation.
type TradeEvaluation struct {
	TradeDetails TradeDetails `json:"trade_details"`
	Analysis     Analysis     `json:"analysis"`
}

// CalculationDetail records how one equivalent was obtained.
type CalculationDetail struct {
	TargetType            string   `json:"target_type"`
	EquivalentQuantity    *float64 `json:"equivalent_quantity"`
	TradeCountForRelation int      `json:"trade_count_for_relation"`
	EffectiveRatio        *float64 `json:"effective_ratio,omitempty"`
}

// Equivalence is the result of a direct-equivalence expansion.
type Equivalence struct {
	BaseType           string              `json:"base_type"`
	BaseQuantity       float64             `json:"base_quantity"`
	Equivalents        map[string]*float64 `json:"equivalents"`
	CalculationDetails []CalculationDetail `json:"calculation_details"`
	Message            string              `json:"message,omitempty"`
}

// Evaluate classifies a hypothetical trade of offQty offType for reqQty reqType
// against the stored average ratio offType -> reqType. Equality is exact.
func Evaluate(snap model.Snapshot, offType string, offQty int64, reqType string, reqQty int64) (*TradeEvaluation, error) {
	if offQty <= 0 || reqQty <= 0 {
		return nil, newError(KindInvalidParameter, nil, "amounts must be positive integers, got %d and %d", offQty, reqQty)
	}
	offType = model.NormalizeType(offType)
	reqType = model.NormalizeType(reqType)

	stat, ok := snap[model.DirectedPair{TypeA: offType, TypeB: reqType}]
	if !ok {
		return nil, newError(KindRelationNotFound, nil, "no recorded relationship between %s and %s", offType, reqType)
	}
	if stat.AverageRatio == nil {
		return nil, newError(KindInvalidRatio, nil, "average ratio for %s -> %s is undefined", offType, reqType)
	}

	avg := *stat.AverageRatio
	observed := float64(reqQty) / float64(offQty)
	unit := reqType + "/" + offType

	var status Classification
	var message string
	switch {
	case observed < avg:
		status = Underpay
		message = fmt.Sprintf("A trade of %d %s for %d %s (%s %s) looks like an 'underpay' compared to the average of (%s %s).",
			offQty, offType, reqQty, reqType, formatRatio(observed), unit, formatRatio(avg), unit)
	case observed > avg:
		status = Overpay
		message = fmt.Sprintf("A trade of %d %s for %d %s (%s %s) looks like an 'overpay' compared to the average of (%s %s).",
			offQty, offType, reqQty, reqType, formatRatio(observed), unit, formatRatio(avg), unit)
	default:
		status = Fair
		message = fmt.Sprintf("A trade of %d %s for %d %s (%s %s) seems fair based on the average.",
			offQty, offType, reqQty, reqType, formatRatio(observed), unit)
	}

	return &TradeEvaluation{
		TradeDetails: TradeDetails{
			OfferedType:     offType,
			OfferedAmount:   offQty,
			RequestedType:   reqType,
			RequestedAmount: reqQty,
		},
		Analysis: Analysis{
			Status:       status,
			Message:      message,
			YourRatio:    round(observed, 1),
			AverageRatio: round(avg, 1),
			RatioUnit:    reqType + "_per_" + offType,
		},
	}, nil
}

// Expand converts baseQty of baseType into every other observed type using
// direct relations only. Types without a direct relation get a nil equivalent
// and a zero trade count; nothing is inferred through intermediate types.
func Expand(snap model.Snapshot, baseType string, baseQty float64) (*Equivalence, error) {
	if !(baseQty > 0) || math.IsInf(baseQty, 0) {
		return nil, newError(KindInvalidParameter, nil, "base quantity must be a positive number, got %v", baseQty)
	}
	baseType = model.NormalizeType(baseType)

	types := snap.Types()
	if _, ok := types[baseType]; !ok {
		return nil, newError(KindTypeNotFound, nil, "type %s not found in any recorded relationship", baseType)
	}

	others := make([]string, 0, len(types)-1)
	for t := range types {
		if t != baseType {
			others = append(others, t)
		}
	}
	sort.Strings(others)

	res := &Equivalence{
		BaseType:           baseType,
		BaseQuantity:       baseQty,
		Equivalents:        make(map[string]*float64, len(others)),
		CalculationDetails: make([]CalculationDetail, 0, len(others)),
	}

	defined := 0
	for _, other := range others {
		detail := CalculationDetail{TargetType: other}

		stat, ok := snap[model.DirectedPair{TypeA: baseType, TypeB: other}]
		if ok && stat.AverageRatio != nil {
			raw := baseQty * *stat.AverageRatio
			if math.IsInf(raw, 0) || math.IsNaN(raw) {
				return nil, newError(KindCalculationError, nil, "equivalent of %v %s in %s is not finite", baseQty, baseType, other)
			}
			eq := round(raw, 2)
			eff := round(*stat.AverageRatio, 1)
			detail.EquivalentQuantity = &eq
			detail.EffectiveRatio = &eff
			detail.TradeCountForRelation = stat.TradeCount
			defined++
		} else if ok {
			detail.TradeCountForRelation = stat.TradeCount
		}

		res.Equivalents[other] = detail.EquivalentQuantity
		res.CalculationDetails = append(res.CalculationDetails, detail)
	}

	if defined == 0 {
		res.Message = fmt.Sprintf("Could not determine relative values for any other type based on %s using available data.", baseType)
	}
	return res, nil
}

// round rounds to the given number of decimal places, ties to even.
func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).RoundBank(places).InexactFloat64()
}

func formatRatio(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
