package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/ruralpay/marketplace/internal/database"
	"github.com/ruralpay/marketplace/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Publish(ctx context.Context, event Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func eventOfType(t EventType) any {
	return mock.MatchedBy(func(e Event) bool { return e.Type == t })
}

// faultyStore wraps a store and lets a test fail one Tx operation mid-unit.
type faultyStore struct {
	database.Store
	failEntry func(e *models.LedgerEntry) error
}

func (s *faultyStore) RunInTx(ctx context.Context, fn func(tx database.Tx) error) error {
	return s.Store.RunInTx(ctx, func(tx database.Tx) error {
		return fn(&faultyTx{Tx: tx, failEntry: s.failEntry})
	})
}

type faultyTx struct {
	database.Tx
	failEntry func(e *models.LedgerEntry) error
}

func (t *faultyTx) CreateEntry(ctx context.Context, e *models.LedgerEntry) error {
	if t.failEntry != nil {
		if err := t.failEntry(e); err != nil {
			return err
		}
	}
	return t.Tx.CreateEntry(ctx, e)
}

type fixture struct {
	store    *database.MemoryStore
	deps     Deps
	checkout *CheckoutService
	settle   *SettlementService
	wallet   *WalletService
	accounts *AccountService
}

func newFixture(t *testing.T, platformID string, notifier Notifier) *fixture {
	t.Helper()
	store := database.NewMemoryStore()
	if notifier == nil {
		notifier = NopNotifier{}
	}
	deps := Deps{
		Store:    store,
		Ledger:   NewLedger(decimal.RequireFromString("0.05"), platformID),
		Notifier: notifier,
		Log:      zerolog.Nop(),
	}
	return &fixture{
		store:    store,
		deps:     deps,
		checkout: NewCheckoutService(deps),
		settle:   NewSettlementService(deps),
		wallet:   NewWalletService(deps),
		accounts: NewAccountService(deps),
	}
}

var accountSeq int

func (f *fixture) account(t *testing.T, id string, balance int64, role models.Role) Identity {
	t.Helper()
	accountSeq++
	err := f.store.RunInTx(context.Background(), func(tx database.Tx) error {
		return tx.CreateAccount(context.Background(), &models.Account{
			ID:            id,
			AccountNumber: fmt.Sprintf("%010d", accountSeq),
			Email:         id + "@example.com",
			PhoneNumber:   fmt.Sprintf("+234800%07d", accountSeq),
			Role:          role,
			Balance:       balance,
		})
	})
	require.NoError(t, err)
	return Identity{AccountID: id, Role: role}
}

func (f *fixture) listing(t *testing.T, id, ownerID string, price, stock int64) {
	t.Helper()
	f.addListing(t, &models.Listing{
		ID:        id,
		OwnerID:   ownerID,
		Title:     "Listing " + id,
		UnitPrice: price,
		Stock:     stock,
		Available: true,
	})
}

func (f *fixture) addListing(t *testing.T, listing *models.Listing) {
	t.Helper()
	err := f.store.RunInTx(context.Background(), func(tx database.Tx) error {
		return tx.CreateListing(context.Background(), listing)
	})
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, id string) int64 {
	t.Helper()
	var balance int64
	err := f.store.View(context.Background(), func(tx database.Tx) error {
		a, err := tx.GetAccount(context.Background(), id)
		if err != nil {
			return err
		}
		balance = a.Balance
		return nil
	})
	require.NoError(t, err)
	return balance
}

func (f *fixture) stock(t *testing.T, id string) int64 {
	t.Helper()
	var stock int64
	err := f.store.View(context.Background(), func(tx database.Tx) error {
		l, err := tx.GetListing(context.Background(), id)
		if err != nil {
			return err
		}
		stock = l.Stock
		return nil
	})
	require.NoError(t, err)
	return stock
}

func (f *fixture) orderEntries(t *testing.T, orderID string) []models.LedgerEntry {
	t.Helper()
	var entries []models.LedgerEntry
	err := f.store.View(context.Background(), func(tx database.Tx) error {
		var err error
		entries, err = tx.ListEntriesByOrder(context.Background(), orderID)
		return err
	})
	require.NoError(t, err)
	return entries
}
