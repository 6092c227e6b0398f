package domain

import (
	"fmt"
	"strconv"
	"time"
)

type SpinType string

const (
	SpinDiscount     SpinType = "DISCOUNT"
	SpinFreeDelivery SpinType = "FREE_DELIVERY"
	SpinCashback     SpinType = "CASHBACK"
	SpinGift         SpinType = "GIFT"
	SpinMessage      SpinType = "MESSAGE"
)

func (t SpinType) Valid() bool {
	switch t {
	case SpinDiscount, SpinFreeDelivery, SpinCashback, SpinGift, SpinMessage:
		return true
	}
	return false
}

// SpinDefinition is one weighted reward on the wheel. The sum of Probability
// over all active definitions must stay <= 1; the repository enforces that at
// write time.
type SpinDefinition struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Type        SpinType  `json:"type"`
	Value       string    `json:"value"`
	Probability float64   `json:"probability"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// PickReward performs a single weighted draw over defs, which must be
// non-empty and in a stable order (id order): the cumulative-sum tie-breaking
// depends on iteration order. r is uniform in [0,1). When rounding keeps the
// cumulative sum just under 1 and no definition matches, the last one wins;
// that fallback is policy, not an error path.
func PickReward(defs []SpinDefinition, r float64) SpinDefinition {
	cumulative := 0.0
	for _, def := range defs {
		cumulative += def.Probability
		if r <= cumulative {
			return def
		}
	}
	return defs[len(defs)-1]
}

// SpinOutcome is the full effect of a resolved reward on a cart: the fields
// below are what the conditional spin write persists. Cashback is a delta
// subtracted from total_price at write time rather than an absolute value, so
// the write can never clobber a total recomputed by a concurrent item change.
type SpinOutcome struct {
	Definition   SpinDefinition `json:"definition"`
	RewardTag    string         `json:"reward_tag"`
	Discount     float64        `json:"discount"`
	ShippingCost float64        `json:"shipping_cost"`
	Cashback     float64        `json:"cashback"`
}

// ApplyReward computes a reward's effect against a cart snapshot.
//
// CASHBACK subtracts from the total directly instead of going through the
// discount field like DISCOUNT does. The asymmetry is inherited behavior and
// preserved as-is; it is the one place the total changes outside of item
// aggregation, applied exactly once at spin time.
func ApplyReward(cart Cart, def SpinDefinition) (SpinOutcome, error) {
	out := SpinOutcome{
		Definition:   def,
		RewardTag:    fmt.Sprintf("%s:%s", def.Type, def.Value),
		Discount:     cart.Discount,
		ShippingCost: cart.ShippingCost,
	}

	switch def.Type {
	case SpinDiscount:
		v, err := strconv.ParseFloat(def.Value, 64)
		if err != nil {
			return SpinOutcome{}, fmt.Errorf("discount value %q is not numeric: %w", def.Value, err)
		}
		out.Discount = v
	case SpinFreeDelivery:
		out.ShippingCost = 0
	case SpinCashback:
		v, err := strconv.ParseFloat(def.Value, 64)
		if err != nil {
			return SpinOutcome{}, fmt.Errorf("cashback value %q is not numeric: %w", def.Value, err)
		}
		out.Cashback = v
	case SpinGift, SpinMessage:
		// recorded descriptively only
	default:
		return SpinOutcome{}, fmt.Errorf("unknown spin type %q", def.Type)
	}

	return out, nil
}
