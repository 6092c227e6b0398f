package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/Parsantdeveloper/Ecommerce-backend/internal/cache"
	"github.com/Parsantdeveloper/Ecommerce-backend/internal/domain"
	"github.com/Parsantdeveloper/Ecommerce-backend/internal/repository"
)

type OrderService struct {
	repo  repository.OrderStore
	cache cache.SummaryCache
}

func NewOrderService(repo repository.OrderStore, cache cache.SummaryCache) *OrderService {
	return &OrderService{
		repo:  repo,
		cache: cache,
	}
}

type CreateOrderInput struct {
	CartID        int64
	UserID        int64
	AddressID     *int64
	OrderType     domain.OrderType
	PaymentMethod domain.PaymentMethod
}

// CreateOrder materializes a cart into an order. Snapshot, item copy and
// cart drain happen inside one repository transaction; this layer only
// validates inputs and re-checks cheap preconditions before entering it.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (domain.Order, []domain.OrderItem, error) {
	if in.UserID <= 0 {
		return domain.Order{}, nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if in.OrderType == "" {
		in.OrderType = domain.OrderTypeStandard
	}
	if !in.OrderType.Valid() {
		return domain.Order{}, nil, fmt.Errorf("%w: unknown order type %q", ErrValidation, in.OrderType)
	}
	if in.PaymentMethod == "" {
		in.PaymentMethod = domain.PaymentMethodCOD
	}
	if !in.PaymentMethod.Valid() {
		return domain.Order{}, nil, fmt.Errorf("%w: unknown payment method %q", ErrValidation, in.PaymentMethod)
	}

	if _, err := s.repo.GetCart(ctx, in.CartID); err != nil {
		return domain.Order{}, nil, err
	}
	items, err := s.repo.ListPricedItems(ctx, in.CartID)
	if err != nil {
		if errors.Is(err, repository.ErrPriceUnresolved) {
			log.Printf("integrity fault on cart %d: %v", in.CartID, err)
			return domain.Order{}, nil, ErrIntegrity
		}
		return domain.Order{}, nil, err
	}
	if len(items) == 0 {
		return domain.Order{}, nil, ErrEmptyCart
	}

	if in.AddressID != nil {
		exists, err := s.repo.AddressExists(ctx, *in.AddressID)
		if err != nil {
			return domain.Order{}, nil, err
		}
		if !exists {
			return domain.Order{}, nil, repository.ErrAddressNotFound
		}
	}

	order, orderItems, err := s.repo.CreateOrderFromCart(ctx, in.CartID, repository.CreateOrderParams{
		UserID:        in.UserID,
		AddressID:     in.AddressID,
		OrderType:     in.OrderType,
		PaymentMethod: in.PaymentMethod,
	})
	if err != nil {
		if errors.Is(err, repository.ErrCartEmpty) {
			return domain.Order{}, nil, ErrEmptyCart
		}
		return domain.Order{}, nil, err
	}

	s.invalidateSummary(in.CartID)
	return order, orderItems, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (domain.Order, []domain.OrderItem, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, nil, err
	}
	items, err := s.repo.ListOrderItems(ctx, orderID)
	if err != nil {
		return domain.Order{}, nil, err
	}
	return order, items, nil
}

func (s *OrderService) ListOrders(ctx context.Context, f repository.OrderFilter) ([]domain.Order, error) {
	if f.Status != nil && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown order status %q", ErrValidation, *f.Status)
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.ListOrders(ctx, f)
}

// GetOrderStatusCounts always reports every lifecycle status, zero-filled,
// so dashboards don't have to special-case absent rows.
func (s *OrderService) GetOrderStatusCounts(ctx context.Context, userID *int64) (map[domain.OrderStatus]int, error) {
	counts, err := s.repo.CountOrdersByStatus(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, status := range []domain.OrderStatus{
		domain.OrderStatusPending,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
	} {
		if _, ok := counts[status]; !ok {
			counts[status] = 0
		}
	}
	return counts, nil
}

// UpdateOrderStatus enforces the lifecycle graph, then hands the compare-
// and-swap to the repository so a concurrent transition cannot be lost.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, next domain.OrderStatus) (domain.Order, error) {
	if !next.Valid() {
		return domain.Order{}, fmt.Errorf("%w: unknown order status %q", ErrValidation, next)
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !order.Status.CanTransitionTo(next) {
		return domain.Order{}, fmt.Errorf("%w: %s -> %s", ErrIllegalStatusTransition, order.Status, next)
	}

	updated, err := s.repo.TransitionOrderStatus(ctx, orderID, order.Status, next)
	if errors.Is(err, repository.ErrStatusConflict) {
		return domain.Order{}, fmt.Errorf("%w: order moved off %s concurrently", ErrIllegalStatusTransition, order.Status)
	}
	return updated, err
}

// UpdateOrderDeliverySpeed flips the three-hour delivery flag on an order
// after creation, an admin-side correction for orders placed on the wrong
// speed. Terminal orders are past delivery, so the flag is frozen for them.
func (s *OrderService) UpdateOrderDeliverySpeed(ctx context.Context, orderID uuid.UUID, threeHour bool) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status.IsTerminal() {
		return domain.Order{}, fmt.Errorf("%w: order is already %s", ErrIllegalStatusTransition, order.Status)
	}
	return s.repo.SetOrderDeliverySpeed(ctx, orderID, threeHour)
}

// CancelOrder applies the cancellation policy: a regular user may cancel
// only their own PENDING order, an admin may cancel anything not yet
// delivered or already cancelled.
func (s *OrderService) CancelOrder(ctx context.Context, orderID uuid.UUID, requesterID int64, role domain.Role) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	if role != domain.RoleAdmin {
		if order.UserID != requesterID {
			return domain.Order{}, ErrNotAllowed
		}
		if order.Status != domain.OrderStatusPending {
			return domain.Order{}, fmt.Errorf("%w: only pending orders can be cancelled", ErrIllegalStatusTransition)
		}
	} else if order.Status.IsTerminal() {
		return domain.Order{}, fmt.Errorf("%w: order is already %s", ErrIllegalStatusTransition, order.Status)
	}

	updated, err := s.repo.TransitionOrderStatus(ctx, orderID, order.Status, domain.OrderStatusCancelled)
	if errors.Is(err, repository.ErrStatusConflict) {
		return domain.Order{}, fmt.Errorf("%w: order moved off %s concurrently", ErrIllegalStatusTransition, order.Status)
	}
	return updated, err
}

type RecordPaymentInput struct {
	OrderID         uuid.UUID
	UserID          int64
	Amount          float64
	TransactionUUID string
	TransactionCode *string
}

// RecordPayment stores an externally confirmed payment and marks the order
// paid. The unique transaction uuid makes retries of the same confirmation
// harmless.
func (s *OrderService) RecordPayment(ctx context.Context, in RecordPaymentInput) (domain.OrderPayment, error) {
	if in.TransactionUUID == "" {
		return domain.OrderPayment{}, fmt.Errorf("%w: transaction uuid is required", ErrValidation)
	}
	if in.Amount <= 0 {
		return domain.OrderPayment{}, fmt.Errorf("%w: amount must be greater than 0", ErrValidation)
	}

	order, err := s.repo.GetOrder(ctx, in.OrderID)
	if err != nil {
		return domain.OrderPayment{}, err
	}
	if order.UserID != in.UserID {
		return domain.OrderPayment{}, ErrNotAllowed
	}

	return s.repo.RecordPayment(ctx, domain.OrderPayment{
		OrderID:         in.OrderID,
		UserID:          in.UserID,
		Amount:          in.Amount,
		TransactionUUID: in.TransactionUUID,
		TransactionCode: in.TransactionCode,
	})
}

func (s *OrderService) invalidateSummary(cartID int64) {
	if err := s.cache.Delete(context.Background(), cartID); err != nil {
		log.Printf("summary cache invalidate error: %v", err)
	}
}
