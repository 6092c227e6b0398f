package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Parsantdeveloper/Ecommerce-backend/internal/domain"
)

// CartService is the slice of the cart service the HTTP layer needs.
type CartService interface {
	GetOrCreateCart(ctx context.Context, userID *int64) (domain.Cart, []domain.CartItem, error)
	GetCart(ctx context.Context, cartID int64) (domain.Cart, []domain.CartItem, error)
	AddItem(ctx context.Context, cartID int64, item domain.NewCartItem) (domain.CartItem, error)
	UpdateItemQuantity(ctx context.Context, itemID int64, quantity int) error
	RemoveItem(ctx context.Context, itemID int64) error
	BulkAddItems(ctx context.Context, cartID int64, items []domain.NewCartItem, message *string) (int, error)
	ClearCart(ctx context.Context, cartID int64) error
	UpdateCartMessage(ctx context.Context, cartID int64, message *string) error
	GetCartSummary(ctx context.Context, cartID int64) (domain.CartSummary, error)
}

type CartHandler struct {
	svc     CartService
	timeout time.Duration
}

func NewCartHandler(svc CartService, timeout time.Duration) *CartHandler {
	return &CartHandler{
		svc:     svc,
		timeout: timeout,
	}
}

type cartResponse struct {
	Cart  domain.Cart       `json:"cart"`
	Items []domain.CartItem `json:"items"`
}

type addItemRequest struct {
	ProductID        int64  `json:"product_id"`
	ProductVariantID *int64 `json:"product_variant_id,omitempty"`
	Quantity         *int   `json:"quantity,omitempty"`
}

type bulkAddRequest struct {
	Items   []addItemRequest `json:"items"`
	Message *string          `json:"message,omitempty"`
}

type updateQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

type messageRequest struct {
	Message *string `json:"message"`
}

func (h *CartHandler) CreateOrFetchCart(w http.ResponseWriter, r *http.Request) {
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

	cart, items, err := h.svc.GetOrCreateCart(ctx, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cartResponse{Cart: cart, Items: items})
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cartID, ok := pathID(w, r, "cart_id")
	if !ok {
		return
	}

	cart, items, err := h.svc.GetCart(ctx, cartID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cartResponse{Cart: cart, Items: items})
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cartID, ok := pathID(w, r, "cart_id")
	if !ok {
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}
	quantity := 1 // omitted quantity means a single unit
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	item, err := h.svc.AddItem(ctx, cartID, domain.NewCartItem{
		ProductID:        req.ProductID,
		ProductVariantID: req.ProductVariantID,
		Quantity:         quantity,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

func (h *CartHandler) BulkAddItems(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cartID, ok := pathID(w, r, "cart_id")
	if !ok {
		return
	}

	var req bulkAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	items := make([]domain.NewCartItem, 0, len(req.Items))
	for i, it := range req.Items {
		// unlike single add, bulk items must spell out their quantity
		if it.Quantity == nil {
			respondError(w, http.StatusBadRequest, "invalid_quantity",
				fmt.Sprintf("item %d: quantity is required", i))
			return
		}
		items = append(items, domain.NewCartItem{
			ProductID:        it.ProductID,
			ProductVariantID: it.ProductVariantID,
			Quantity:         *it.Quantity,
		})
	}

	n, err := h.svc.BulkAddItems(ctx, cartID, items, req.Message)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]int{"items_added": n})
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	itemID, ok := pathID(w, r, "item_id")
	if !ok {
		return
	}

	var req updateQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity == nil {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity is required")
		return
	}

	if err := h.svc.UpdateItemQuantity(ctx, itemID, *req.Quantity); err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	itemID, ok := pathID(w, r, "item_id")
	if !ok {
		return
	}

	if err := h.svc.RemoveItem(ctx, itemID); err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cartID, ok := pathID(w, r, "cart_id")
	if !ok {
		return
	}

	if err := h.svc.ClearCart(ctx, cartID); err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *CartHandler) UpdateMessage(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cartID, ok := pathID(w, r, "cart_id")
	if !ok {
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if err := h.svc.UpdateCartMessage(ctx, cartID, req.Message); err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *CartHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cartID, ok := pathID(w, r, "cart_id")
	if !ok {
		return
	}

	summary, err := h.svc.GetCartSummary(ctx, cartID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}
