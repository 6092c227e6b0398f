package cache

import (
	"context"
	"errors"

	"github.com/Parsantdeveloper/Ecommerce-backend/internal/domain"
)

// SummaryCache holds only the derived cart summary; the relational store
// stays the single source of truth and every mutating cart operation
// invalidates the entry.
type SummaryCache interface {
	Get(ctx context.Context, cartID int64) (*domain.CartSummary, error)
	Set(ctx context.Context, cartID int64, summary *domain.CartSummary) error
	Delete(ctx context.Context, cartID int64) error
}

var ErrCacheMiss = errors.New("cache miss")
