package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Parsantdeveloper/Ecommerce-backend/internal/domain"
	"github.com/Parsantdeveloper/Ecommerce-backend/internal/service"
)

type SpinService interface {
	PlaySpin(ctx context.Context, cartID int64) (service.SpinResult, error)
	ListDefinitions(ctx context.Context, activeOnly bool) ([]domain.SpinDefinition, error)
	GetDefinition(ctx context.Context, id int64) (domain.SpinDefinition, error)
	CreateDefinition(ctx context.Context, def domain.SpinDefinition) (domain.SpinDefinition, error)
	UpdateDefinition(ctx context.Context, def domain.SpinDefinition) (domain.SpinDefinition, error)
	DeleteDefinition(ctx context.Context, id int64) error
}

type SpinHandler struct {
	svc     SpinService
	timeout time.Duration
}

func NewSpinHandler(svc SpinService, timeout time.Duration) *SpinHandler {
	return &SpinHandler{
		svc:     svc,
		timeout: timeout,
	}
}

type spinResponse struct {
	Reward domain.SpinDefinition `json:"reward"`
	Cart   domain.Cart           `json:"cart"`
}

type definitionRequest struct {
	Title       string  `json:"title"`
	Type        string  `json:"type"`
	Value       string  `json:"value"`
	Probability float64 `json:"probability"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

func (h *SpinHandler) Play(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cartID, ok := pathID(w, r, "cart_id")
	if !ok {
		return
	}

	res, err := h.svc.PlaySpin(ctx, cartID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, spinResponse{Reward: res.Reward, Cart: res.Cart})
}

func (h *SpinHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	activeOnly := r.URL.Query().Get("active") == "true"

	defs, err := h.svc.ListDefinitions(ctx, activeOnly)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, defs)
}

func (h *SpinHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := pathID(w, r, "definition_id")
	if !ok {
		return
	}

	def, err := h.svc.GetDefinition(ctx, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, def)
}

func (h *SpinHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req definitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	def, err := h.svc.CreateDefinition(ctx, toDefinition(0, req))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, def)
}

func (h *SpinHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := pathID(w, r, "definition_id")
	if !ok {
		return
	}

	var req definitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	def, err := h.svc.UpdateDefinition(ctx, toDefinition(id, req))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, def)
}

func (h *SpinHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := pathID(w, r, "definition_id")
	if !ok {
		return
	}

	if err := h.svc.DeleteDefinition(ctx, id); err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func toDefinition(id int64, req definitionRequest) domain.SpinDefinition {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return domain.SpinDefinition{
		ID:          id,
		Title:       req.Title,
		Type:        domain.SpinType(req.Type),
		Value:       req.Value,
		Probability: req.Probability,
		IsActive:    active,
	}
}
