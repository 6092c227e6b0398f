package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/Parsantdeveloper/Ecommerce-backend/internal/repository"
	"github.com/Parsantdeveloper/Ecommerce-backend/internal/service"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleServiceError maps the service and repository sentinels onto HTTP
// statuses. Anything unrecognized is a 500 with a generic body; the detail
// goes to the log, not the client.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrCartNotFound),
		errors.Is(err, repository.ErrItemNotFound),
		errors.Is(err, repository.ErrProductNotFound),
		errors.Is(err, repository.ErrVariantNotFound),
		errors.Is(err, repository.ErrDefinitionNotFound),
		errors.Is(err, repository.ErrAddressNotFound),
		errors.Is(err, repository.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())

	case errors.Is(err, service.ErrValidation):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())

	case errors.Is(err, service.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "empty_cart", err.Error())

	case errors.Is(err, service.ErrSpinNotEligible):
		respondError(w, http.StatusBadRequest, "spin_not_eligible", err.Error())

	case errors.Is(err, service.ErrNoActiveRewards):
		respondError(w, http.StatusBadRequest, "no_active_rewards", err.Error())

	case errors.Is(err, service.ErrIllegalStatusTransition):
		respondError(w, http.StatusBadRequest, "illegal_status_transition", err.Error())

	case errors.Is(err, repository.ErrSpinAlreadyPlayed):
		respondError(w, http.StatusConflict, "spin_already_played", err.Error())

	case errors.Is(err, repository.ErrDuplicatePayment):
		respondError(w, http.StatusConflict, "duplicate_payment", err.Error())

	case errors.Is(err, repository.ErrStatusConflict):
		respondError(w, http.StatusConflict, "status_conflict", err.Error())

	case errors.Is(err, service.ErrNotAllowed):
		respondError(w, http.StatusForbidden, "forbidden", err.Error())

	default:
		log.Printf("internal error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
