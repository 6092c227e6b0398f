package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strconv"

	"github.com/Parsantdeveloper/Ecommerce-backend/internal/cache"
	"github.com/Parsantdeveloper/Ecommerce-backend/internal/domain"
	"github.com/Parsantdeveloper/Ecommerce-backend/internal/repository"
)

// SpinResult is what a successful spin hands back to the caller: the
// definition that was drawn and the cart as persisted afterwards.
type SpinResult struct {
	Reward domain.SpinDefinition
	Cart   domain.Cart
}

type SpinService struct {
	repo  repository.SpinStore
	cache cache.SummaryCache
	rand  func() float64
}

func NewSpinService(repo repository.SpinStore, cache cache.SummaryCache) *SpinService {
	return &SpinService{
		repo:  repo,
		cache: cache,
		rand:  rand.Float64,
	}
}

// PlaySpin draws a weighted reward and applies it to the cart. The played
// flag flips exactly once: the repository's conditional update is the final
// arbiter, so two racing spins can both pass the preconditions here but only
// one will land.
func (s *SpinService) PlaySpin(ctx context.Context, cartID int64) (SpinResult, error) {
	cart, err := s.repo.GetCart(ctx, cartID)
	if err != nil {
		return SpinResult{}, err
	}
	if cart.SpinPlayed {
		return SpinResult{}, repository.ErrSpinAlreadyPlayed
	}
	if cart.TotalPrice < domain.SpinThreshold {
		return SpinResult{}, fmt.Errorf("%w: cart total %.2f is below %.2f",
			ErrSpinNotEligible, cart.TotalPrice, domain.SpinThreshold)
	}

	defs, err := s.repo.ListDefinitions(ctx, true)
	if err != nil {
		return SpinResult{}, err
	}
	if len(defs) == 0 {
		return SpinResult{}, ErrNoActiveRewards
	}

	picked := domain.PickReward(defs, s.rand())

	outcome, err := domain.ApplyReward(cart, picked)
	if err != nil {
		log.Printf("spin definition %d is malformed: %v", picked.ID, err)
		return SpinResult{}, ErrIntegrity
	}

	if err := s.repo.ApplySpinResult(ctx, cartID, outcome); err != nil {
		return SpinResult{}, err
	}
	s.invalidateSummary(cartID)

	updated, err := s.repo.GetCart(ctx, cartID)
	if err != nil {
		return SpinResult{}, err
	}
	return SpinResult{Reward: picked, Cart: updated}, nil
}

func (s *SpinService) ListDefinitions(ctx context.Context, activeOnly bool) ([]domain.SpinDefinition, error) {
	return s.repo.ListDefinitions(ctx, activeOnly)
}

func (s *SpinService) GetDefinition(ctx context.Context, id int64) (domain.SpinDefinition, error) {
	return s.repo.GetDefinition(ctx, id)
}

func (s *SpinService) CreateDefinition(ctx context.Context, def domain.SpinDefinition) (domain.SpinDefinition, error) {
	if err := validateDefinition(def); err != nil {
		return domain.SpinDefinition{}, err
	}
	created, err := s.repo.CreateDefinition(ctx, def)
	if errors.Is(err, repository.ErrProbabilityExceeded) {
		return domain.SpinDefinition{}, fmt.Errorf("%w: active probabilities would exceed 1", ErrValidation)
	}
	return created, err
}

func (s *SpinService) UpdateDefinition(ctx context.Context, def domain.SpinDefinition) (domain.SpinDefinition, error) {
	if err := validateDefinition(def); err != nil {
		return domain.SpinDefinition{}, err
	}
	updated, err := s.repo.UpdateDefinition(ctx, def)
	if errors.Is(err, repository.ErrProbabilityExceeded) {
		return domain.SpinDefinition{}, fmt.Errorf("%w: active probabilities would exceed 1", ErrValidation)
	}
	return updated, err
}

func (s *SpinService) DeleteDefinition(ctx context.Context, id int64) error {
	return s.repo.DeleteDefinition(ctx, id)
}

func validateDefinition(def domain.SpinDefinition) error {
	if def.Title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if !def.Type.Valid() {
		return fmt.Errorf("%w: unknown reward type %q", ErrValidation, def.Type)
	}
	if def.Probability < 0 || def.Probability > 1 {
		return fmt.Errorf("%w: probability must be between 0 and 1", ErrValidation)
	}
	switch def.Type {
	case domain.SpinDiscount, domain.SpinCashback:
		if _, err := strconv.ParseFloat(def.Value, 64); err != nil {
			return fmt.Errorf("%w: %s rewards need a numeric value", ErrValidation, def.Type)
		}
	}
	return nil
}

func (s *SpinService) invalidateSummary(cartID int64) {
	if err := s.cache.Delete(context.Background(), cartID); err != nil {
		log.Printf("summary cache invalidate error: %v", err)
	}
}
