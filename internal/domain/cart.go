package domain

import "time"

const (
	// SpinThreshold is the cart total required before the spin wheel unlocks.
	SpinThreshold = 1500.0

	// DefaultShippingCost applies to every cart until a spin reward overrides it.
	DefaultShippingCost = 100.0
)

// Cart is the mutable pre-order container. A cart row is durable: converting
// it to an order resets its derived fields but never deletes it.
type Cart struct {
	ID           int64     `json:"id"`
	UserID       *int64    `json:"user_id,omitempty"` // nil for guest carts
	TotalPrice   float64   `json:"total_price"`
	Discount     float64   `json:"discount"`
	ShippingCost float64   `json:"shipping_cost"`
	SpinPlayed   bool      `json:"spin_played"`
	SpinReward   *string   `json:"spin_reward,omitempty"`
	Message      *string   `json:"message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CartItem carries the unit price resolved at load time: the variant price
// when a variant is selected, the product base price otherwise. Prices are
// never stored on the item, so catalog changes propagate until checkout.
type CartItem struct {
	ID               int64     `json:"id"`
	CartID           int64     `json:"cart_id"`
	ProductID        int64     `json:"product_id"`
	ProductVariantID *int64    `json:"product_variant_id,omitempty"`
	Quantity         int       `json:"quantity"`
	UnitPrice        float64   `json:"unit_price"`
	AddedAt          time.Time `json:"added_at"`
}

// NewCartItem is the input shape for add and bulk-add operations.
type NewCartItem struct {
	ProductID        int64  `json:"product_id"`
	ProductVariantID *int64 `json:"product_variant_id,omitempty"`
	Quantity         int    `json:"quantity"`
}

// CartTotal is the single source of cart arithmetic: every recompute path
// goes through it rather than duplicating the sum inline.
func CartTotal(items []CartItem) float64 {
	var total float64
	for _, it := range items {
		total += it.UnitPrice * float64(it.Quantity)
	}
	return total
}

type CartSummary struct {
	CartID       int64   `json:"cart_id"`
	ItemsCount   int     `json:"items_count"`
	Subtotal     float64 `json:"subtotal"`
	Discount     float64 `json:"discount"`
	ShippingCost float64 `json:"shipping_cost"`
	FinalTotal   float64 `json:"final_total"`
	SpinEligible bool    `json:"spin_eligible"`
	SpinPlayed   bool    `json:"spin_played"`
	SpinReward   *string `json:"spin_reward,omitempty"`
}

// Summarize derives the checkout-facing view of a cart.
// FinalTotal = subtotal - discount + shipping.
func Summarize(cart Cart, items []CartItem) CartSummary {
	count := 0
	for _, it := range items {
		count += it.Quantity
	}
	return CartSummary{
		CartID:       cart.ID,
		ItemsCount:   count,
		Subtotal:     cart.TotalPrice,
		Discount:     cart.Discount,
		ShippingCost: cart.ShippingCost,
		FinalTotal:   cart.TotalPrice - cart.Discount + cart.ShippingCost,
		SpinEligible: cart.TotalPrice >= SpinThreshold && !cart.SpinPlayed,
		SpinPlayed:   cart.SpinPlayed,
		SpinReward:   cart.SpinReward,
	}
}
