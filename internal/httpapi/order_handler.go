package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Parsantdeveloper/Ecommerce-backend/internal/domain"
	"github.com/Parsantdeveloper/Ecommerce-backend/internal/repository"
	"github.com/Parsantdeveloper/Ecommerce-backend/internal/service"
)

type OrderService interface {
	CreateOrder(ctx context.Context, in service.CreateOrderInput) (domain.Order, []domain.OrderItem, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (domain.Order, []domain.OrderItem, error)
	ListOrders(ctx context.Context, f repository.OrderFilter) ([]domain.Order, error)
	GetOrderStatusCounts(ctx context.Context, userID *int64) (map[domain.OrderStatus]int, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, next domain.OrderStatus) (domain.Order, error)
	UpdateOrderDeliverySpeed(ctx context.Context, orderID uuid.UUID, threeHour bool) (domain.Order, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID, requesterID int64, role domain.Role) (domain.Order, error)
	RecordPayment(ctx context.Context, in service.RecordPaymentInput) (domain.OrderPayment, error)
}

type OrderHandler struct {
	svc     OrderService
	timeout time.Duration
}

func NewOrderHandler(svc OrderService, timeout time.Duration) *OrderHandler {
	return &OrderHandler{
		svc:     svc,
		timeout: timeout,
	}
}

type createOrderRequest struct {
	CartID        int64  `json:"cart_id"`
	UserID        int64  `json:"user_id"`
	AddressID     *int64 `json:"address_id,omitempty"`
	OrderType     string `json:"order_type,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`
}

type orderResponse struct {
	Order domain.Order       `json:"order"`
	Items []domain.OrderItem `json:"items"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type deliverySpeedRequest struct {
	IsThreeHourDelivery *bool `json:"is_three_hour_delivery"`
}

type cancelRequest struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role,omitempty"`
}

type paymentRequest struct {
	UserID          int64   `json:"user_id"`
	Amount          float64 `json:"amount"`
	TransactionUUID string  `json:"transaction_uuid"`
	TransactionCode *string `json:"transaction_code,omitempty"`
}

func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.CartID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_cart_id", "cart_id must be positive")
		return
	}

	order, items, err := h.svc.CreateOrder(ctx, service.CreateOrderInput{
		CartID:        req.CartID,
		UserID:        req.UserID,
		AddressID:     req.AddressID,
		OrderType:     domain.OrderType(req.OrderType),
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, orderResponse{Order: order, Items: items})
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := pathUUID(w, r, "order_id")
	if !ok {
		return
	}

	order, items, err := h.svc.GetOrder(ctx, orderID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orderResponse{Order: order, Items: items})
}

func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var f repository.OrderFilter
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_user_id", "user_id must be a positive integer")
			return
		}
		f.UserID = &id
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.OrderStatus(raw)
		f.Status = &status
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		f.Limit, _ = strconv.Atoi(raw)
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		f.Offset, _ = strconv.Atoi(raw)
	}

	orders, err := h.svc.ListOrders(ctx, f)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) StatusCounts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var userID *int64
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_user_id", "user_id must be a positive integer")
			return
		}
		userID = &id
	}

	counts, err := h.svc.GetOrderStatusCounts(ctx, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, counts)
}

func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := pathUUID(w, r, "order_id")
	if !ok {
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	order, err := h.svc.UpdateOrderStatus(ctx, orderID, domain.OrderStatus(req.Status))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) UpdateDeliverySpeed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := pathUUID(w, r, "order_id")
	if !ok {
		return
	}

	var req deliverySpeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.IsThreeHourDelivery == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "is_three_hour_delivery is required")
		return
	}

	order, err := h.svc.UpdateOrderDeliverySpeed(ctx, orderID, *req.IsThreeHourDelivery)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := pathUUID(w, r, "order_id")
	if !ok {
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	role := domain.RoleUser
	if req.Role == string(domain.RoleAdmin) {
		role = domain.RoleAdmin
	}

	order, err := h.svc.CancelOrder(ctx, orderID, req.UserID, role)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := pathUUID(w, r, "order_id")
	if !ok {
		return
	}

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	payment, err := h.svc.RecordPayment(ctx, service.RecordPaymentInput{
		OrderID:         orderID,
		UserID:          req.UserID,
		Amount:          req.Amount,
		TransactionUUID: req.TransactionUUID,
		TransactionCode: req.TransactionCode,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, payment)
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid uuid")
		return uuid.Nil, false
	}
	return id, true
}
