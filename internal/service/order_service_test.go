package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Parsantdeveloper/Ecommerce-backend/internal/domain"
	"github.com/Parsantdeveloper/Ecommerce-backend/internal/repository"
)

type mockOrderStore struct {
	m          sync.Mutex
	cart       domain.Cart
	cartItems  []domain.CartItem
	addresses  map[int64]bool
	orders     map[uuid.UUID]domain.Order
	orderItems map[uuid.UUID][]domain.OrderItem
	payments   map[string]domain.OrderPayment
	err        error
}

func newMockOrderStore() *mockOrderStore {
	return &mockOrderStore{
		addresses:  map[int64]bool{},
		orders:     map[uuid.UUID]domain.Order{},
		orderItems: map[uuid.UUID][]domain.OrderItem{},
		payments:   map[string]domain.OrderPayment{},
	}
}

func (m *mockOrderStore) GetCart(context.Context, int64) (domain.Cart, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return domain.Cart{}, m.err
	}
	if m.cart.ID == 0 {
		return domain.Cart{}, repository.ErrCartNotFound
	}
	return m.cart, nil
}

func (m *mockOrderStore) ListPricedItems(context.Context, int64) ([]domain.CartItem, error) {
	m.m.Lock()
	defer m.m.Unlock()
	return m.cartItems, m.err
}

func (m *mockOrderStore) AddressExists(_ context.Context, addressID int64) (bool, error) {
	m.m.Lock()
	defer m.m.Unlock()
	return m.addresses[addressID], m.err
}

func (m *mockOrderStore) CreateOrderFromCart(_ context.Context, cartID int64, p repository.CreateOrderParams) (domain.Order, []domain.OrderItem, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return domain.Order{}, nil, m.err
	}
	if len(m.cartItems) == 0 {
		return domain.Order{}, nil, repository.ErrCartEmpty
	}

	order := domain.Order{
		ID:                  uuid.New(),
		UserID:              p.UserID,
		AddressID:           p.AddressID,
		TotalPrice:          m.cart.TotalPrice,
		Discount:            m.cart.Discount,
		ShippingCost:        m.cart.ShippingCost,
		SpinReward:          m.cart.SpinReward,
		Message:             m.cart.Message,
		Status:              domain.OrderStatusPending,
		OrderType:           p.OrderType,
		IsThreeHourDelivery: p.OrderType == domain.OrderTypeThreeHour,
		PaymentMethod:       p.PaymentMethod,
		PaymentStatus:       domain.PaymentStatusPending,
	}
	var items []domain.OrderItem
	for i, ci := range m.cartItems {
		items = append(items, domain.OrderItem{
			ID:               int64(i + 1),
			OrderID:          order.ID,
			ProductID:        ci.ProductID,
			ProductVariantID: ci.ProductVariantID,
			Quantity:         ci.Quantity,
			PricePerItem:     ci.UnitPrice,
		})
	}
	m.orders[order.ID] = order
	m.orderItems[order.ID] = items

	// drain: items gone, totals reset, shipping kept
	m.cartItems = nil
	m.cart.TotalPrice = 0
	m.cart.Discount = 0
	m.cart.SpinPlayed = false
	m.cart.SpinReward = nil
	return order, items, nil
}

func (m *mockOrderStore) GetOrder(_ context.Context, orderID uuid.UUID) (domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return domain.Order{}, m.err
	}
	o, ok := m.orders[orderID]
	if !ok {
		return domain.Order{}, repository.ErrOrderNotFound
	}
	return o, nil
}

func (m *mockOrderStore) ListOrderItems(_ context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	m.m.Lock()
	defer m.m.Unlock()
	return m.orderItems[orderID], m.err
}

func (m *mockOrderStore) ListOrders(_ context.Context, f repository.OrderFilter) ([]domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.Order
	for _, o := range m.orders {
		if f.UserID != nil && o.UserID != *f.UserID {
			continue
		}
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (m *mockOrderStore) CountOrdersByStatus(_ context.Context, userID *int64) (map[domain.OrderStatus]int, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	counts := map[domain.OrderStatus]int{}
	for _, o := range m.orders {
		if userID != nil && o.UserID != *userID {
			continue
		}
		counts[o.Status]++
	}
	return counts, nil
}

func (m *mockOrderStore) TransitionOrderStatus(_ context.Context, orderID uuid.UUID, from, to domain.OrderStatus) (domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return domain.Order{}, m.err
	}
	o, ok := m.orders[orderID]
	if !ok {
		return domain.Order{}, repository.ErrOrderNotFound
	}
	if o.Status != from {
		return domain.Order{}, repository.ErrStatusConflict
	}
	o.Status = to
	m.orders[orderID] = o
	return o, nil
}

func (m *mockOrderStore) SetOrderDeliverySpeed(_ context.Context, orderID uuid.UUID, threeHour bool) (domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return domain.Order{}, repository.ErrOrderNotFound
	}
	o.IsThreeHourDelivery = threeHour
	m.orders[orderID] = o
	return o, nil
}

func (m *mockOrderStore) RecordPayment(_ context.Context, payment domain.OrderPayment) (domain.OrderPayment, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return domain.OrderPayment{}, m.err
	}
	if _, ok := m.payments[payment.TransactionUUID]; ok {
		return domain.OrderPayment{}, repository.ErrDuplicatePayment
	}
	payment.ID = int64(len(m.payments) + 1)
	m.payments[payment.TransactionUUID] = payment

	o := m.orders[payment.OrderID]
	o.PaymentStatus = domain.PaymentStatusPaid
	o.PaymentMethod = domain.PaymentMethodOnline
	m.orders[payment.OrderID] = o
	return payment, nil
}

func loadedOrderStore() *mockOrderStore {
	reward := "FREE_DELIVERY:"
	store := newMockOrderStore()
	store.cart = domain.Cart{
		ID:         1,
		TotalPrice: 1600,
		Discount:   150,
		SpinPlayed: true,
		SpinReward: &reward,
	}
	store.cartItems = []domain.CartItem{
		{ID: 1, CartID: 1, ProductID: 10, Quantity: 2, UnitPrice: 500},
		{ID: 2, CartID: 1, ProductID: 20, Quantity: 1, UnitPrice: 600},
	}
	store.addresses[5] = true
	return store
}

func TestCreateOrder_SnapshotsCartAndDrainsIt(t *testing.T) {
	store := loadedOrderStore()
	sut := NewOrderService(store, newMockSummaryCache())

	addr := int64(5)
	order, items, err := sut.CreateOrder(context.Background(), CreateOrderInput{
		CartID:    1,
		UserID:    7,
		AddressID: &addr,
	})
	require.NoError(t, err)

	assert.Equal(t, 1600.0, order.TotalPrice)
	assert.Equal(t, 150.0, order.Discount)
	require.NotNil(t, order.SpinReward)
	assert.Equal(t, "FREE_DELIVERY:", *order.SpinReward)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, domain.OrderTypeStandard, order.OrderType)
	assert.Equal(t, domain.PaymentMethodCOD, order.PaymentMethod)
	require.Len(t, items, 2)
	assert.Equal(t, 500.0, items[0].PricePerItem)

	// cart drained but shipping retained
	assert.Empty(t, store.cartItems)
	assert.Equal(t, 0.0, store.cart.TotalPrice)
	assert.False(t, store.cart.SpinPlayed)
}

func TestCreateOrder_ThreeHourDelivery(t *testing.T) {
	store := loadedOrderStore()
	sut := NewOrderService(store, newMockSummaryCache())

	order, _, err := sut.CreateOrder(context.Background(), CreateOrderInput{
		CartID:    1,
		UserID:    7,
		OrderType: domain.OrderTypeThreeHour,
	})
	require.NoError(t, err)
	assert.True(t, order.IsThreeHourDelivery)
}

func TestCreateOrder_EmptyCart(t *testing.T) {
	store := loadedOrderStore()
	store.cartItems = nil
	sut := NewOrderService(store, newMockSummaryCache())

	_, _, err := sut.CreateOrder(context.Background(), CreateOrderInput{CartID: 1, UserID: 7})
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestCreateOrder_UnknownAddress(t *testing.T) {
	store := loadedOrderStore()
	sut := NewOrderService(store, newMockSummaryCache())

	addr := int64(99)
	_, _, err := sut.CreateOrder(context.Background(), CreateOrderInput{CartID: 1, UserID: 7, AddressID: &addr})
	require.ErrorIs(t, err, repository.ErrAddressNotFound)
	assert.NotEmpty(t, store.cartItems, "cart must be untouched on failure")
}

func TestCreateOrder_InvalidInputs(t *testing.T) {
	sut := NewOrderService(loadedOrderStore(), newMockSummaryCache())
	ctx := context.Background()

	_, _, err := sut.CreateOrder(ctx, CreateOrderInput{CartID: 1})
	require.ErrorIs(t, err, ErrValidation)

	_, _, err = sut.CreateOrder(ctx, CreateOrderInput{CartID: 1, UserID: 7, OrderType: "WARP"})
	require.ErrorIs(t, err, ErrValidation)

	_, _, err = sut.CreateOrder(ctx, CreateOrderInput{CartID: 1, UserID: 7, PaymentMethod: "BARTER"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestCreateOrder_InvalidatesSummaryCache(t *testing.T) {
	store := loadedOrderStore()
	mockC := newMockSummaryCache()
	mockC.Set(context.Background(), 1, &domain.CartSummary{CartID: 1})
	sut := NewOrderService(store, mockC)

	_, _, err := sut.CreateOrder(context.Background(), CreateOrderInput{CartID: 1, UserID: 7})
	require.NoError(t, err)
	assert.Nil(t, mockC.get(1))
}

func createOrder(t *testing.T, store *mockOrderStore, sut *OrderService) domain.Order {
	t.Helper()
	order, _, err := sut.CreateOrder(context.Background(), CreateOrderInput{CartID: 1, UserID: 7})
	require.NoError(t, err)
	return order
}

func TestUpdateOrderStatus_HappyPath(t *testing.T) {
	store := loadedOrderStore()
	sut := NewOrderService(store, newMockSummaryCache())
	order := createOrder(t, store, sut)

	updated, err := sut.UpdateOrderStatus(context.Background(), order.ID, domain.OrderStatusShipped)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, updated.Status)

	updated, err = sut.UpdateOrderStatus(context.Background(), order.ID, domain.OrderStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDelivered, updated.Status)
}

func TestUpdateOrderStatus_IllegalTransitions(t *testing.T) {
	store := loadedOrderStore()
	sut := NewOrderService(store, newMockSummaryCache())
	order := createOrder(t, store, sut)
	ctx := context.Background()

	// PENDING cannot jump straight to DELIVERED
	_, err := sut.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusDelivered)
	require.ErrorIs(t, err, ErrIllegalStatusTransition)

	_, err = sut.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusCancelled)
	require.NoError(t, err)

	// terminal states accept nothing
	_, err = sut.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusShipped)
	require.ErrorIs(t, err, ErrIllegalStatusTransition)
}

func TestUpdateOrderStatus_UnknownStatus(t *testing.T) {
	sut := NewOrderService(newMockOrderStore(), newMockSummaryCache())
	_, err := sut.UpdateOrderStatus(context.Background(), uuid.New(), "LOST")
	require.ErrorIs(t, err, ErrValidation)
}

func TestCancelOrder_UserOwnPending(t *testing.T) {
	store := loadedOrderStore()
	sut := NewOrderService(store, newMockSummaryCache())
	order := createOrder(t, store, sut)

	updated, err := sut.CancelOrder(context.Background(), order.ID, 7, domain.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, updated.Status)
}

func TestCancelOrder_UserCannotCancelOthers(t *testing.T) {
	store := loadedOrderStore()
	sut := NewOrderService(store, newMockSummaryCache())
	order := createOrder(t, store, sut)

	_, err := sut.CancelOrder(context.Background(), order.ID, 8, domain.RoleUser)
	require.ErrorIs(t, err, ErrNotAllowed)
}

func TestCancelOrder_UserCannotCancelShipped(t *testing.T) {
	store := loadedOrderStore()
	sut := NewOrderService(store, newMockSummaryCache())
	order := createOrder(t, store, sut)

	_, err := sut.UpdateOrderStatus(context.Background(), order.ID, domain.OrderStatusShipped)
	require.NoError(t, err)

	_, err = sut.CancelOrder(context.Background(), order.ID, 7, domain.RoleUser)
	require.ErrorIs(t, err, ErrIllegalStatusTransition)
}

func TestCancelOrder_AdminCancelsShipped(t *testing.T) {
	store := loadedOrderStore()
	sut := NewOrderService(store, newMockSummaryCache())
	order := createOrder(t, store, sut)

	_, err := sut.UpdateOrderStatus(context.Background(), order.ID, domain.OrderStatusShipped)
	require.NoError(t, err)

	updated, err := sut.CancelOrder(context.Background(), order.ID, 99, domain.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, updated.Status)
}

func TestCancelOrder_AdminCannotCancelDelivered(t *testing.T) {
	store := loadedOrderStore()
	sut := NewOrderService(store, newMockSummaryCache())
	order := createOrder(t, store, sut)
	ctx := context.Background()

	_, err := sut.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusShipped)
	require.NoError(t, err)
	_, err = sut.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusDelivered)
	require.NoError(t, err)

	_, err = sut.CancelOrder(ctx, order.ID, 99, domain.RoleAdmin)
	require.ErrorIs(t, err, ErrIllegalStatusTransition)
}

func TestUpdateOrderDeliverySpeed_TogglesFlag(t *testing.T) {
	store := loadedOrderStore()
	sut := NewOrderService(store, newMockSummaryCache())
	order := createOrder(t, store, sut)
	require.False(t, order.IsThreeHourDelivery)

	updated, err := sut.UpdateOrderDeliverySpeed(context.Background(), order.ID, true)
	require.NoError(t, err)
	assert.True(t, updated.IsThreeHourDelivery)

	updated, err = sut.UpdateOrderDeliverySpeed(context.Background(), order.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.IsThreeHourDelivery)
}

func TestUpdateOrderDeliverySpeed_TerminalOrderFrozen(t *testing.T) {
	store := loadedOrderStore()
	sut := NewOrderService(store, newMockSummaryCache())
	order := createOrder(t, store, sut)
	ctx := context.Background()

	_, err := sut.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusShipped)
	require.NoError(t, err)
	_, err = sut.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusDelivered)
	require.NoError(t, err)

	_, err = sut.UpdateOrderDeliverySpeed(ctx, order.ID, true)
	require.ErrorIs(t, err, ErrIllegalStatusTransition)
}

func TestUpdateOrderDeliverySpeed_UnknownOrder(t *testing.T) {
	store := loadedOrderStore()
	sut := NewOrderService(store, newMockSummaryCache())

	_, err := sut.UpdateOrderDeliverySpeed(context.Background(), uuid.New(), true)
	require.ErrorIs(t, err, repository.ErrOrderNotFound)
}

func TestRecordPayment_MarksOrderPaid(t *testing.T) {
	store := loadedOrderStore()
	sut := NewOrderService(store, newMockSummaryCache())
	order := createOrder(t, store, sut)

	payment, err := sut.RecordPayment(context.Background(), RecordPaymentInput{
		OrderID:         order.ID,
		UserID:          7,
		Amount:          1550,
		TransactionUUID: "txn-001",
	})
	require.NoError(t, err)
	assert.Equal(t, "txn-001", payment.TransactionUUID)

	updated, _, err := sut.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, updated.PaymentStatus)
	assert.Equal(t, domain.PaymentMethodOnline, updated.PaymentMethod)
}

func TestRecordPayment_DuplicateTransaction(t *testing.T) {
	store := loadedOrderStore()
	sut := NewOrderService(store, newMockSummaryCache())
	order := createOrder(t, store, sut)
	in := RecordPaymentInput{OrderID: order.ID, UserID: 7, Amount: 1550, TransactionUUID: "txn-001"}

	_, err := sut.RecordPayment(context.Background(), in)
	require.NoError(t, err)
	_, err = sut.RecordPayment(context.Background(), in)
	require.ErrorIs(t, err, repository.ErrDuplicatePayment)
}

func TestRecordPayment_WrongUser(t *testing.T) {
	store := loadedOrderStore()
	sut := NewOrderService(store, newMockSummaryCache())
	order := createOrder(t, store, sut)

	_, err := sut.RecordPayment(context.Background(), RecordPaymentInput{
		OrderID:         order.ID,
		UserID:          8,
		Amount:          1550,
		TransactionUUID: "txn-002",
	})
	require.ErrorIs(t, err, ErrNotAllowed)
}

func TestRecordPayment_Validation(t *testing.T) {
	sut := NewOrderService(newMockOrderStore(), newMockSummaryCache())
	ctx := context.Background()

	_, err := sut.RecordPayment(ctx, RecordPaymentInput{OrderID: uuid.New(), UserID: 7, Amount: 10})
	require.ErrorIs(t, err, ErrValidation)

	_, err = sut.RecordPayment(ctx, RecordPaymentInput{OrderID: uuid.New(), UserID: 7, Amount: 0, TransactionUUID: "t"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestGetOrderStatusCounts_ZeroFilled(t *testing.T) {
	store := loadedOrderStore()
	sut := NewOrderService(store, newMockSummaryCache())
	createOrder(t, store, sut)

	counts, err := sut.GetOrderStatusCounts(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.OrderStatusPending])
	assert.Equal(t, 0, counts[domain.OrderStatusShipped])
	assert.Equal(t, 0, counts[domain.OrderStatusDelivered])
	assert.Equal(t, 0, counts[domain.OrderStatusCancelled])
}

func TestListOrders_StatusFilterValidation(t *testing.T) {
	sut := NewOrderService(newMockOrderStore(), newMockSummaryCache())
	bad := domain.OrderStatus("LOST")
	_, err := sut.ListOrders(context.Background(), repository.OrderFilter{Status: &bad})
	require.ErrorIs(t, err, ErrValidation)
}
