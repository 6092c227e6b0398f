package domain

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo encodes the order lifecycle:
// PENDING -> SHIPPED | CANCELLED, SHIPPED -> DELIVERED | CANCELLED.
// DELIVERED and CANCELLED are terminal.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return next == OrderStatusShipped || next == OrderStatusCancelled
	case OrderStatusShipped:
		return next == OrderStatusDelivered || next == OrderStatusCancelled
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
)

type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "COD"
	PaymentMethodOnline PaymentMethod = "ONLINE"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCOD || m == PaymentMethodOnline
}

type OrderType string

const (
	OrderTypeStandard  OrderType = "STANDARD"
	OrderTypeThreeHour OrderType = "THREE_HOUR_DELIVERY"
)

func (t OrderType) Valid() bool {
	return t == OrderTypeStandard || t == OrderTypeThreeHour
}

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Order is an immutable snapshot of a cart at conversion time. Totals,
// discount, shipping and the spin reward are copied by value and never
// re-derived from the cart afterwards.
type Order struct {
	ID                  uuid.UUID     `json:"id"`
	UserID              int64         `json:"user_id"`
	AddressID           *int64        `json:"address_id,omitempty"`
	TotalPrice          float64       `json:"total_price"`
	Discount            float64       `json:"discount"`
	ShippingCost        float64       `json:"shipping_cost"`
	SpinReward          *string       `json:"spin_reward,omitempty"`
	Message             *string       `json:"message,omitempty"`
	Status              OrderStatus   `json:"status"`
	OrderType           OrderType     `json:"order_type"`
	IsThreeHourDelivery bool          `json:"is_three_hour_delivery"`
	PaymentMethod       PaymentMethod `json:"payment_method"`
	PaymentStatus       PaymentStatus `json:"payment_status"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// OrderItem freezes a cart item's product, variant, quantity and the unit
// price that was in effect when the order was created.
type OrderItem struct {
	ID               int64     `json:"id"`
	OrderID          uuid.UUID `json:"order_id"`
	ProductID        int64     `json:"product_id"`
	ProductVariantID *int64    `json:"product_variant_id,omitempty"`
	Quantity         int       `json:"quantity"`
	PricePerItem     float64   `json:"price_per_item"`
}

// OrderPayment records an externally confirmed payment. TransactionUUID is
// unique, which makes recording idempotent under retries.
type OrderPayment struct {
	ID              int64     `json:"id"`
	OrderID         uuid.UUID `json:"order_id"`
	UserID          int64     `json:"user_id"`
	Amount          float64   `json:"amount"`
	TransactionUUID string    `json:"transaction_uuid"`
	TransactionCode *string   `json:"transaction_code,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
