package services

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/ruralpay/marketplace/internal/domainerr"
	"github.com/ruralpay/marketplace/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCheckoutService_PlaceOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("two sellers", func(t *testing.T) {
		notifier := new(MockNotifier)
		notifier.On("Publish", mock.Anything, eventOfType(EventOrderCreated)).Return(nil).Once()

		f := newFixture(t, "", notifier)
		buyer := f.account(t, "buyer", 1000, models.RoleUser)
		f.account(t, "s1", 0, models.RoleUser)
		f.account(t, "s2", 0, models.RoleUser)
		f.listing(t, "l1", "s1", 100, 5)
		f.listing(t, "l2", "s2", 100, 5)

		order, err := f.checkout.PlaceOrder(ctx, buyer, []models.CartItem{
			{ListingID: "l1", Quantity: 2},
			{ListingID: "l2", Quantity: 1},
		})
		require.NoError(t, err)

		assert.Equal(t, models.OrderStatusPaid, order.Status)
		assert.Equal(t, int64(300), order.Total)
		assert.Equal(t, int64(15), order.Commission)
		require.Len(t, order.Items, 2)
		assert.Equal(t, "s1", order.Items[0].SellerID)
		assert.Equal(t, int64(100), order.Items[0].UnitPrice)

		assert.Equal(t, int64(700), f.balance(t, "buyer"))
		assert.Equal(t, int64(0), f.balance(t, "s1"))
		assert.Equal(t, int64(3), f.stock(t, "l1"))
		assert.Equal(t, int64(4), f.stock(t, "l2"))

		entries := f.orderEntries(t, order.ID)
		require.Len(t, entries, 3)
		assert.Equal(t, models.EntryKindPayment, entries[0].Kind)
		assert.Equal(t, int64(-300), entries[0].Amount)
		assert.Equal(t, models.EntryStatusCompleted, entries[0].Status)

		holds := map[string]int64{}
		for _, e := range entries[1:] {
			assert.Equal(t, models.EntryKindSale, e.Kind)
			assert.Equal(t, models.EntryStatusPending, e.Status)
			holds[e.ReceiverID] = e.Amount
		}
		assert.Equal(t, map[string]int64{"s1": 190, "s2": 95}, holds)

		notifier.AssertExpectations(t)
	})

	t.Run("duplicate lines are merged", func(t *testing.T) {
		f := newFixture(t, "", nil)
		buyer := f.account(t, "buyer", 1000, models.RoleUser)
		f.account(t, "s1", 0, models.RoleUser)
		f.listing(t, "l1", "s1", 50, 3)

		order, err := f.checkout.PlaceOrder(ctx, buyer, []models.CartItem{
			{ListingID: "l1", Quantity: 1},
			{ListingID: "l1", Quantity: 2},
		})
		require.NoError(t, err)

		require.Len(t, order.Items, 1)
		assert.Equal(t, int64(3), order.Items[0].Quantity)
		assert.Equal(t, int64(0), f.stock(t, "l1"))
	})

	t.Run("rejected carts", func(t *testing.T) {
		f := newFixture(t, "", nil)
		buyer := f.account(t, "buyer", 100, models.RoleUser)
		f.account(t, "s1", 0, models.RoleUser)
		f.listing(t, "l1", "s1", 50, 1)
		f.listing(t, "pricey", "s1", 500, 1)

		tests := []struct {
			name  string
			items []models.CartItem
			want  error
		}{
			{name: "empty cart", items: nil, want: domainerr.ErrInvalidQuantity},
			{name: "zero quantity", items: []models.CartItem{{ListingID: "l1", Quantity: 0}}, want: domainerr.ErrInvalidQuantity},
			{name: "unknown listing", items: []models.CartItem{{ListingID: "nope", Quantity: 1}}, want: domainerr.ErrNotFound},
			{name: "out of stock", items: []models.CartItem{{ListingID: "l1", Quantity: 2}}, want: domainerr.ErrOutOfStock},
			{name: "insufficient funds", items: []models.CartItem{{ListingID: "pricey", Quantity: 1}}, want: domainerr.ErrInsufficientFunds},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.checkout.PlaceOrder(ctx, buyer, tt.items)
				assert.True(t, errors.Is(err, tt.want), "got %v", err)
			})
		}

		assert.Equal(t, int64(100), f.balance(t, "buyer"))
		assert.Equal(t, int64(1), f.stock(t, "l1"))
		assert.Equal(t, int64(1), f.stock(t, "pricey"))
	})

	t.Run("platform account cannot buy", func(t *testing.T) {
		f := newFixture(t, "", nil)
		platform := f.account(t, "platform", 1000, models.RolePlatform)
		f.account(t, "s1", 0, models.RoleUser)
		f.listing(t, "l1", "s1", 50, 1)

		_, err := f.checkout.PlaceOrder(ctx, platform, []models.CartItem{{ListingID: "l1", Quantity: 1}})
		assert.True(t, errors.Is(err, domainerr.ErrUnauthorized))
	})
}

func TestCheckoutService_UnavailableListing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "", nil)
	buyer := f.account(t, "buyer", 100, models.RoleUser)
	f.account(t, "s1", 0, models.RoleUser)
	f.addListing(t, &models.Listing{ID: "l1", OwnerID: "s1", Title: "Withdrawn", UnitPrice: 10, Stock: 5})

	_, err := f.checkout.PlaceOrder(ctx, buyer, []models.CartItem{{ListingID: "l1", Quantity: 1}})

	assert.True(t, errors.Is(err, domainerr.ErrUnavailable))
	assert.Equal(t, int64(5), f.stock(t, "l1"))
}

func TestCheckoutService_AtomicOnMidUnitFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "", nil)
	buyer := f.account(t, "buyer", 1000, models.RoleUser)
	f.account(t, "s1", 0, models.RoleUser)
	f.account(t, "s2", 0, models.RoleUser)
	f.listing(t, "l1", "s1", 100, 5)
	f.listing(t, "l2", "s2", 100, 5)

	boom := errors.New("disk full")
	faulty := &faultyStore{Store: f.store, failEntry: func(e *models.LedgerEntry) error {
		if e.Kind == models.EntryKindSale && e.ReceiverID == "s2" {
			return domainerr.Storage("create ledger entry", boom)
		}
		return nil
	}}
	deps := f.deps
	deps.Store = faulty
	checkout := NewCheckoutService(deps)

	_, err := checkout.PlaceOrder(ctx, buyer, []models.CartItem{
		{ListingID: "l1", Quantity: 2},
		{ListingID: "l2", Quantity: 1},
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerr.ErrStorage))
	assert.True(t, errors.Is(err, boom))

	assert.Equal(t, int64(1000), f.balance(t, "buyer"))
	assert.Equal(t, int64(5), f.stock(t, "l1"))
	assert.Equal(t, int64(5), f.stock(t, "l2"))

	history, err := f.wallet.History(ctx, buyer, "buyer", 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestCheckoutService_NotifierFailureDoesNotRollBack(t *testing.T) {
	notifier := new(MockNotifier)
	notifier.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	f := newFixture(t, "", notifier)
	buyer := f.account(t, "buyer", 100, models.RoleUser)
	f.account(t, "s1", 0, models.RoleUser)
	f.listing(t, "l1", "s1", 40, 1)

	order, err := f.checkout.PlaceOrder(context.Background(), buyer, []models.CartItem{{ListingID: "l1", Quantity: 1}})

	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	assert.Equal(t, int64(60), f.balance(t, "buyer"))
	notifier.AssertCalled(t, "Publish", mock.Anything, eventOfType(EventOrderCreated))
}

func TestCheckoutService_NoOversellUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "", nil)
	f.account(t, "seller", 0, models.RoleUser)
	f.listing(t, "last-one", "seller", 100, 1)

	const buyers = 8
	identities := make([]Identity, buyers)
	for i := range identities {
		identities[i] = f.account(t, "buyer-"+string(rune('a'+i)), 500, models.RoleUser)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var succeeded, outOfStock int
	for _, buyer := range identities {
		wg.Add(1)
		go func(buyer Identity) {
			defer wg.Done()
			_, err := f.checkout.PlaceOrder(ctx, buyer, []models.CartItem{{ListingID: "last-one", Quantity: 1}})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domainerr.ErrOutOfStock):
				outOfStock++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(buyer)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, buyers-1, outOfStock)
	assert.Equal(t, int64(0), f.stock(t, "last-one"))

	var total int64
	for _, buyer := range identities {
		total += f.balance(t, buyer.AccountID)
	}
	assert.Equal(t, int64(buyers*500-100), total)
}

func TestCheckoutService_RejectsOverflowingTotal(t *testing.T) {
	ctx := context.Background()

	t.Run("price times quantity", func(t *testing.T) {
		f := newFixture(t, "", nil)
		buyer := f.account(t, "buyer", 10, models.RoleUser)
		f.account(t, "s1", 0, models.RoleUser)
		f.listing(t, "l1", "s1", (1<<62)+1, 4)

		_, err := f.checkout.PlaceOrder(ctx, buyer, []models.CartItem{{ListingID: "l1", Quantity: 4}})

		assert.True(t, errors.Is(err, domainerr.ErrInvalidAmount), "got %v", err)
		assert.Equal(t, int64(10), f.balance(t, "buyer"))
		assert.Equal(t, int64(4), f.stock(t, "l1"))
	})

	t.Run("sum of lines", func(t *testing.T) {
		f := newFixture(t, "", nil)
		buyer := f.account(t, "buyer", 10, models.RoleUser)
		f.account(t, "s1", 0, models.RoleUser)
		f.listing(t, "l1", "s1", math.MaxInt64/2+1, 1)
		f.listing(t, "l2", "s1", math.MaxInt64/2+1, 1)

		_, err := f.checkout.PlaceOrder(ctx, buyer, []models.CartItem{
			{ListingID: "l1", Quantity: 1},
			{ListingID: "l2", Quantity: 1},
		})

		assert.True(t, errors.Is(err, domainerr.ErrInvalidAmount), "got %v", err)
		assert.Equal(t, int64(10), f.balance(t, "buyer"))
		assert.Equal(t, int64(1), f.stock(t, "l1"))
		assert.Equal(t, int64(1), f.stock(t, "l2"))
	})

	t.Run("merged quantity", func(t *testing.T) {
		f := newFixture(t, "", nil)
		buyer := f.account(t, "buyer", 10, models.RoleUser)
		f.account(t, "s1", 0, models.RoleUser)
		f.listing(t, "l1", "s1", 1, 4)

		_, err := f.checkout.PlaceOrder(ctx, buyer, []models.CartItem{
			{ListingID: "l1", Quantity: math.MaxInt64},
			{ListingID: "l1", Quantity: 1},
		})

		assert.True(t, errors.Is(err, domainerr.ErrInvalidQuantity), "got %v", err)
		assert.Equal(t, int64(4), f.stock(t, "l1"))
	})
}
