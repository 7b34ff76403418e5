package database

import (
	"context"

	"github.com/ruralpay/marketplace/internal/models"
)

// Store is the ledger store. Every mutation of balances, stock, orders and
// ledger entries happens inside RunInTx: fn's reads and writes commit together
// or not at all. Write conflicts are retried by the store, so fn must be
// safe to run more than once and must not perform external side effects.
type Store interface {
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
	// View runs fn against a read-only snapshot. Write methods fail.
	View(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Tx is the set of row operations available inside one atomic unit.
// ForUpdate reads lock the row until the unit ends.
type Tx interface {
	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	GetAccountForUpdate(ctx context.Context, id string) (*models.Account, error)
	// FindAccountByIdentifier resolves a phone number, email or account number.
	FindAccountByIdentifier(ctx context.Context, identifier string) (*models.Account, error)
	// UpdateAccountBalance fails with a conflict if version is stale.
	UpdateAccountBalance(ctx context.Context, id string, newBalance int64, version int) error

	CreateListing(ctx context.Context, listing *models.Listing) error
	GetListing(ctx context.Context, id string) (*models.Listing, error)
	GetListingForUpdate(ctx context.Context, id string) (*models.Listing, error)
	UpdateListingStock(ctx context.Context, id string, newStock int64) error

	// CreateOrder inserts the order and all of its items.
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	GetOrderForUpdate(ctx context.Context, id string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) error
	UpdateOrderItemStatus(ctx context.Context, orderID, itemID string, status models.OrderStatus) error

	CreateEntry(ctx context.Context, entry *models.LedgerEntry) error
	GetEntryForUpdate(ctx context.Context, id string) (*models.LedgerEntry, error)
	// FindPendingEntryForUpdate locates an escrow hold by exact order reference.
	FindPendingEntryForUpdate(ctx context.Context, orderID, receiverID string, kind models.EntryKind) (*models.LedgerEntry, error)
	UpdateEntryStatus(ctx context.Context, id string, status models.EntryStatus) error
	ListEntriesByAccount(ctx context.Context, accountID string, limit int) ([]models.LedgerEntry, error)
	ListEntriesByOrder(ctx context.Context, orderID string) ([]models.LedgerEntry, error)
	ListPendingEntries(ctx context.Context, kind models.EntryKind, limit int) ([]models.LedgerEntry, error)
}
