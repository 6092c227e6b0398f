package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Parsantdeveloper/Ecommerce-backend/internal/cache"
	"github.com/Parsantdeveloper/Ecommerce-backend/internal/domain"
	"github.com/Parsantdeveloper/Ecommerce-backend/internal/repository"
)

// CartService keeps Cart.TotalPrice consistent with the item rows: every
// mutating operation re-reads the fresh item list and recomputes through
// domain.CartTotal.
type CartService struct {
	repo  repository.CartStore
	cache cache.SummaryCache
	sfg   singleflight.Group // prevents summary cache stampede
}

func NewCartService(repo repository.CartStore, cache cache.SummaryCache) *CartService {
	return &CartService{
		repo:  repo,
		cache: cache,
	}
}

func (s *CartService) GetOrCreateCart(ctx context.Context, userID *int64) (domain.Cart, []domain.CartItem, error) {
	var cart domain.Cart
	var err error

	if userID != nil {
		cart, err = s.repo.GetCartByUser(ctx, *userID)
		if errors.Is(err, repository.ErrCartNotFound) {
			cart, err = s.repo.CreateCart(ctx, userID)
			if errors.Is(err, repository.ErrCartExists) {
				// lost the creation race; the winner's cart serves
				cart, err = s.repo.GetCartByUser(ctx, *userID)
			}
		}
	} else {
		// guest carts always start fresh
		cart, err = s.repo.CreateCart(ctx, nil)
	}
	if err != nil {
		return domain.Cart{}, nil, err
	}

	items, err := s.pricedItems(ctx, cart.ID)
	if err != nil {
		return domain.Cart{}, nil, err
	}
	return cart, items, nil
}

func (s *CartService) GetCart(ctx context.Context, cartID int64) (domain.Cart, []domain.CartItem, error) {
	cart, err := s.repo.GetCart(ctx, cartID)
	if err != nil {
		return domain.Cart{}, nil, err
	}
	items, err := s.pricedItems(ctx, cartID)
	if err != nil {
		return domain.Cart{}, nil, err
	}
	return cart, items, nil
}

func (s *CartService) AddItem(ctx context.Context, cartID int64, item domain.NewCartItem) (domain.CartItem, error) {
	if item.Quantity <= 0 {
		return domain.CartItem{}, fmt.Errorf("%w: quantity must be greater than 0", ErrValidation)
	}
	if _, err := s.repo.GetCart(ctx, cartID); err != nil {
		return domain.CartItem{}, err
	}
	if err := s.checkReferences(ctx, []domain.NewCartItem{item}); err != nil {
		return domain.CartItem{}, err
	}

	added, err := s.repo.UpsertItem(ctx, cartID, item)
	if err != nil {
		return domain.CartItem{}, err
	}

	if err := s.recomputeTotal(ctx, cartID); err != nil {
		return domain.CartItem{}, err
	}
	s.invalidateSummary(cartID)
	return added, nil
}

func (s *CartService) UpdateItemQuantity(ctx context.Context, itemID int64, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("%w: quantity must not be negative", ErrValidation)
	}

	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return err
	}

	if quantity == 0 {
		err = s.repo.DeleteItem(ctx, itemID)
	} else {
		err = s.repo.SetItemQuantity(ctx, itemID, quantity)
	}
	if err != nil {
		return err
	}

	if err := s.recomputeTotal(ctx, item.CartID); err != nil {
		return err
	}
	s.invalidateSummary(item.CartID)
	return nil
}

func (s *CartService) RemoveItem(ctx context.Context, itemID int64) error {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteItem(ctx, itemID); err != nil {
		return err
	}

	if err := s.recomputeTotal(ctx, item.CartID); err != nil {
		return err
	}
	s.invalidateSummary(item.CartID)
	return nil
}

// BulkAddItems validates the whole batch before touching anything: one bad
// shape or missing reference rejects the batch with no partial writes.
// Duplicate (product, variant) pairs inside the batch are merged up front so
// the repository can apply everything as one grouped upsert, followed by a
// single total recompute.
func (s *CartService) BulkAddItems(ctx context.Context, cartID int64, items []domain.NewCartItem, message *string) (int, error) {
	if len(items) == 0 {
		return 0, fmt.Errorf("%w: items array is required", ErrValidation)
	}
	for i, it := range items {
		if it.ProductID <= 0 {
			return 0, fmt.Errorf("%w: item %d is missing a product id", ErrValidation, i)
		}
		if it.Quantity <= 0 {
			return 0, fmt.Errorf("%w: item %d must have quantity greater than 0", ErrValidation, i)
		}
	}

	if _, err := s.repo.GetCart(ctx, cartID); err != nil {
		return 0, err
	}
	if err := s.checkReferences(ctx, items); err != nil {
		return 0, err
	}

	merged := mergeBatch(items)
	if err := s.repo.BulkUpsertItems(ctx, cartID, merged, message); err != nil {
		return 0, err
	}

	if err := s.recomputeTotal(ctx, cartID); err != nil {
		return 0, err
	}
	s.invalidateSummary(cartID)
	return len(merged), nil
}

func (s *CartService) ClearCart(ctx context.Context, cartID int64) error {
	if err := s.repo.ResetCart(ctx, cartID); err != nil {
		return err
	}
	s.invalidateSummary(cartID)
	return nil
}

func (s *CartService) UpdateCartMessage(ctx context.Context, cartID int64, message *string) error {
	if err := s.repo.SetCartMessage(ctx, cartID, message); err != nil {
		return err
	}
	s.invalidateSummary(cartID)
	return nil
}

func (s *CartService) GetCartSummary(ctx context.Context, cartID int64) (domain.CartSummary, error) {
	v, err, _ := s.sfg.Do(strconv.FormatInt(cartID, 10), func() (interface{}, error) {
		summary, err := s.cache.Get(ctx, cartID)
		if err == nil {
			return summary, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("summary cache get error: %v", err) // log and fall through to the store
		}

		cart, errGet := s.repo.GetCart(ctx, cartID)
		if errGet != nil {
			return nil, errGet
		}
		items, errItems := s.pricedItems(ctx, cartID)
		if errItems != nil {
			return nil, errItems
		}

		fresh := domain.Summarize(cart, items)

		go func() {
			if errSet := s.cache.Set(context.Background(), cartID, &fresh); errSet != nil {
				log.Printf("summary cache set error: %v", errSet)
			}
		}()

		return &fresh, nil
	})
	if err != nil {
		return domain.CartSummary{}, err
	}
	return *v.(*domain.CartSummary), nil
}

// recomputeTotal is the one place the cached total is written outside of a
// spin: fresh item list in, domain.CartTotal out.
func (s *CartService) recomputeTotal(ctx context.Context, cartID int64) error {
	items, err := s.pricedItems(ctx, cartID)
	if err != nil {
		return err
	}
	return s.repo.SetCartTotal(ctx, cartID, domain.CartTotal(items))
}

func (s *CartService) pricedItems(ctx context.Context, cartID int64) ([]domain.CartItem, error) {
	items, err := s.repo.ListPricedItems(ctx, cartID)
	if errors.Is(err, repository.ErrPriceUnresolved) {
		log.Printf("integrity fault on cart %d: %v", cartID, err)
		return nil, ErrIntegrity
	}
	return items, err
}

func (s *CartService) checkReferences(ctx context.Context, items []domain.NewCartItem) error {
	productIDs := make([]int64, 0, len(items))
	var variantIDs []int64
	seenProducts := make(map[int64]bool)
	seenVariants := make(map[int64]bool)
	for _, it := range items {
		if !seenProducts[it.ProductID] {
			seenProducts[it.ProductID] = true
			productIDs = append(productIDs, it.ProductID)
		}
		if it.ProductVariantID != nil && !seenVariants[*it.ProductVariantID] {
			seenVariants[*it.ProductVariantID] = true
			variantIDs = append(variantIDs, *it.ProductVariantID)
		}
	}

	missing, err := s.repo.MissingProducts(ctx, productIDs)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", repository.ErrProductNotFound, missing)
	}

	missing, err = s.repo.MissingVariants(ctx, variantIDs)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", repository.ErrVariantNotFound, missing)
	}
	return nil
}

// mergeBatch sums quantities of duplicate (product, variant) keys so a batch
// never asks a single upsert statement to touch the same row twice.
func mergeBatch(items []domain.NewCartItem) []domain.NewCartItem {
	type key struct {
		productID int64
		variantID int64
		hasVar    bool
	}
	index := make(map[key]int, len(items))
	merged := make([]domain.NewCartItem, 0, len(items))
	for _, it := range items {
		k := key{productID: it.ProductID}
		if it.ProductVariantID != nil {
			k.variantID = *it.ProductVariantID
			k.hasVar = true
		}
		if i, ok := index[k]; ok {
			merged[i].Quantity += it.Quantity
			continue
		}
		index[k] = len(merged)
		merged = append(merged, it)
	}
	return merged
}

func (s *CartService) invalidateSummary(cartID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, cartID); err != nil {
		log.Printf("summary cache invalidate error: %v", err)
	}
}
