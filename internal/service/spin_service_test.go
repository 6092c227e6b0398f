package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Parsantdeveloper/Ecommerce-backend/internal/domain"
	"github.com/Parsantdeveloper/Ecommerce-backend/internal/repository"
)

type mockSpinStore struct {
	m      sync.Mutex
	cart   domain.Cart
	defs   []domain.SpinDefinition
	err    error
	nextID int64

	// runs after the eligibility read but before the spin write lands,
	// letting tests interleave a cart mutation mid-spin
	beforeApply func(*mockSpinStore)
}

func (m *mockSpinStore) GetCart(context.Context, int64) (domain.Cart, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return domain.Cart{}, m.err
	}
	return m.cart, nil
}

func (m *mockSpinStore) ListDefinitions(_ context.Context, activeOnly bool) ([]domain.SpinDefinition, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if !activeOnly {
		return m.defs, nil
	}
	var active []domain.SpinDefinition
	for _, d := range m.defs {
		if d.IsActive {
			active = append(active, d)
		}
	}
	return active, nil
}

func (m *mockSpinStore) GetDefinition(_ context.Context, id int64) (domain.SpinDefinition, error) {
	m.m.Lock()
	defer m.m.Unlock()
	for _, d := range m.defs {
		if d.ID == id {
			return d, nil
		}
	}
	return domain.SpinDefinition{}, repository.ErrDefinitionNotFound
}

func (m *mockSpinStore) CreateDefinition(_ context.Context, def domain.SpinDefinition) (domain.SpinDefinition, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return domain.SpinDefinition{}, m.err
	}
	var sum float64
	for _, d := range m.defs {
		if d.IsActive {
			sum += d.Probability
		}
	}
	if def.IsActive && sum+def.Probability > 1 {
		return domain.SpinDefinition{}, repository.ErrProbabilityExceeded
	}
	m.nextID++
	def.ID = m.nextID
	m.defs = append(m.defs, def)
	return def, nil
}

func (m *mockSpinStore) UpdateDefinition(_ context.Context, def domain.SpinDefinition) (domain.SpinDefinition, error) {
	m.m.Lock()
	defer m.m.Unlock()
	for i := range m.defs {
		if m.defs[i].ID == def.ID {
			m.defs[i] = def
			return def, nil
		}
	}
	return domain.SpinDefinition{}, repository.ErrDefinitionNotFound
}

func (m *mockSpinStore) DeleteDefinition(_ context.Context, id int64) error {
	m.m.Lock()
	defer m.m.Unlock()
	for i, d := range m.defs {
		if d.ID == id {
			m.defs = append(m.defs[:i], m.defs[i+1:]...)
			return nil
		}
	}
	return repository.ErrDefinitionNotFound
}

func (m *mockSpinStore) ApplySpinResult(_ context.Context, _ int64, out domain.SpinOutcome) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.beforeApply != nil {
		m.beforeApply(m)
	}
	if m.cart.SpinPlayed {
		return repository.ErrSpinAlreadyPlayed
	}
	m.cart.SpinPlayed = true
	tag := out.RewardTag
	m.cart.SpinReward = &tag
	m.cart.Discount = out.Discount
	m.cart.ShippingCost = out.ShippingCost
	m.cart.TotalPrice -= out.Cashback
	return nil
}

func eligibleCart() domain.Cart {
	return domain.Cart{ID: 1, TotalPrice: 1600, ShippingCost: domain.DefaultShippingCost}
}

func wheelDefs() []domain.SpinDefinition {
	return []domain.SpinDefinition{
		{ID: 1, Title: "10% off", Type: domain.SpinDiscount, Value: "150", Probability: 0.3, IsActive: true},
		{ID: 2, Title: "Free delivery", Type: domain.SpinFreeDelivery, Probability: 0.25, IsActive: true},
		{ID: 3, Title: "Cashback", Type: domain.SpinCashback, Value: "100", Probability: 0.25, IsActive: true},
		{ID: 4, Title: "Better luck", Type: domain.SpinMessage, Value: "try again next time", Probability: 0.2, IsActive: true},
	}
}

func TestPlaySpin_DiscountReward(t *testing.T) {
	store := &mockSpinStore{cart: eligibleCart(), defs: wheelDefs()}
	sut := NewSpinService(store, newMockSummaryCache())
	sut.rand = func() float64 { return 0.1 }

	res, err := sut.PlaySpin(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Reward.ID)
	assert.True(t, res.Cart.SpinPlayed)
	require.NotNil(t, res.Cart.SpinReward)
	assert.Equal(t, "DISCOUNT:150", *res.Cart.SpinReward)
	assert.Equal(t, 150.0, res.Cart.Discount)
	assert.Equal(t, 1600.0, res.Cart.TotalPrice)
}

func TestPlaySpin_FreeDeliveryZeroesShipping(t *testing.T) {
	store := &mockSpinStore{cart: eligibleCart(), defs: wheelDefs()}
	sut := NewSpinService(store, newMockSummaryCache())
	sut.rand = func() float64 { return 0.4 }

	res, err := sut.PlaySpin(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Reward.ID)
	assert.Equal(t, 0.0, res.Cart.ShippingCost)
}

func TestPlaySpin_CashbackLowersTotalDirectly(t *testing.T) {
	store := &mockSpinStore{cart: eligibleCart(), defs: wheelDefs()}
	sut := NewSpinService(store, newMockSummaryCache())
	sut.rand = func() float64 { return 0.6 }

	res, err := sut.PlaySpin(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Reward.ID)
	assert.Equal(t, 1500.0, res.Cart.TotalPrice)
	assert.Equal(t, 0.0, res.Cart.Discount)
}

func TestPlaySpin_KeepsTotalRecomputedMidSpin(t *testing.T) {
	store := &mockSpinStore{cart: eligibleCart(), defs: wheelDefs()}
	store.beforeApply = func(m *mockSpinStore) {
		// an item add lands between the eligibility read and the spin write
		m.cart.TotalPrice = 2100
	}
	sut := NewSpinService(store, newMockSummaryCache())
	sut.rand = func() float64 { return 0.4 }

	res, err := sut.PlaySpin(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Reward.ID)
	assert.Equal(t, 0.0, res.Cart.ShippingCost)
	assert.Equal(t, 2100.0, res.Cart.TotalPrice, "spin write must not revert a concurrent recompute")
}

func TestPlaySpin_CashbackAppliesToRecomputedTotal(t *testing.T) {
	store := &mockSpinStore{cart: eligibleCart(), defs: wheelDefs()}
	store.beforeApply = func(m *mockSpinStore) {
		m.cart.TotalPrice = 2100
	}
	sut := NewSpinService(store, newMockSummaryCache())
	sut.rand = func() float64 { return 0.6 }

	res, err := sut.PlaySpin(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Reward.ID)
	assert.Equal(t, 2000.0, res.Cart.TotalPrice)
}

func TestPlaySpin_AlreadyPlayed(t *testing.T) {
	cart := eligibleCart()
	cart.SpinPlayed = true
	store := &mockSpinStore{cart: cart, defs: wheelDefs()}
	sut := NewSpinService(store, newMockSummaryCache())

	_, err := sut.PlaySpin(context.Background(), 1)
	require.ErrorIs(t, err, repository.ErrSpinAlreadyPlayed)
}

func TestPlaySpin_BelowThreshold(t *testing.T) {
	store := &mockSpinStore{
		cart: domain.Cart{ID: 1, TotalPrice: 1499.99, ShippingCost: domain.DefaultShippingCost},
		defs: wheelDefs(),
	}
	sut := NewSpinService(store, newMockSummaryCache())

	_, err := sut.PlaySpin(context.Background(), 1)
	require.ErrorIs(t, err, ErrSpinNotEligible)
}

func TestPlaySpin_NoActiveDefinitions(t *testing.T) {
	defs := wheelDefs()
	for i := range defs {
		defs[i].IsActive = false
	}
	store := &mockSpinStore{cart: eligibleCart(), defs: defs}
	sut := NewSpinService(store, newMockSummaryCache())

	_, err := sut.PlaySpin(context.Background(), 1)
	require.ErrorIs(t, err, ErrNoActiveRewards)
}

func TestPlaySpin_MalformedValueIsIntegrityFault(t *testing.T) {
	store := &mockSpinStore{
		cart: eligibleCart(),
		defs: []domain.SpinDefinition{
			{ID: 1, Title: "broken", Type: domain.SpinDiscount, Value: "ten percent", Probability: 1, IsActive: true},
		},
	}
	sut := NewSpinService(store, newMockSummaryCache())
	sut.rand = func() float64 { return 0.5 }

	_, err := sut.PlaySpin(context.Background(), 1)
	require.ErrorIs(t, err, ErrIntegrity)
	assert.False(t, store.cart.SpinPlayed)
}

func TestPlaySpin_InvalidatesSummaryCache(t *testing.T) {
	store := &mockSpinStore{cart: eligibleCart(), defs: wheelDefs()}
	mockC := newMockSummaryCache()
	mockC.Set(context.Background(), 1, &domain.CartSummary{CartID: 1})
	sut := NewSpinService(store, mockC)
	sut.rand = func() float64 { return 0.1 }

	_, err := sut.PlaySpin(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, mockC.get(1))
}

func TestCreateDefinition_Validation(t *testing.T) {
	sut := NewSpinService(&mockSpinStore{}, newMockSummaryCache())
	ctx := context.Background()

	cases := []struct {
		name string
		def  domain.SpinDefinition
	}{
		{"missing title", domain.SpinDefinition{Type: domain.SpinGift, Probability: 0.1}},
		{"unknown type", domain.SpinDefinition{Title: "x", Type: "JACKPOT", Probability: 0.1}},
		{"probability above 1", domain.SpinDefinition{Title: "x", Type: domain.SpinGift, Probability: 1.5}},
		{"negative probability", domain.SpinDefinition{Title: "x", Type: domain.SpinGift, Probability: -0.1}},
		{"non-numeric discount", domain.SpinDefinition{Title: "x", Type: domain.SpinDiscount, Value: "lots", Probability: 0.1}},
		{"non-numeric cashback", domain.SpinDefinition{Title: "x", Type: domain.SpinCashback, Value: "", Probability: 0.1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := sut.CreateDefinition(ctx, tc.def)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestCreateDefinition_ProbabilityBudget(t *testing.T) {
	store := &mockSpinStore{}
	sut := NewSpinService(store, newMockSummaryCache())
	ctx := context.Background()

	_, err := sut.CreateDefinition(ctx, domain.SpinDefinition{
		Title: "big", Type: domain.SpinGift, Value: "mug", Probability: 0.8, IsActive: true,
	})
	require.NoError(t, err)

	_, err = sut.CreateDefinition(ctx, domain.SpinDefinition{
		Title: "too much", Type: domain.SpinGift, Value: "hat", Probability: 0.3, IsActive: true,
	})
	require.ErrorIs(t, err, ErrValidation)

	// exactly filling the budget is allowed
	_, err = sut.CreateDefinition(ctx, domain.SpinDefinition{
		Title: "fits", Type: domain.SpinGift, Value: "cap", Probability: 0.2, IsActive: true,
	})
	require.NoError(t, err)
}
