package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/ruralpay/marketplace/internal/domainerr"
	"github.com/ruralpay/marketplace/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T, attempts int) (*PostgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db, zerolog.Nop(), attempts, 0), mock
}

const (
	accountID = "5b0c1a52-7f1e-4d8a-9a43-0d6f2b8e1c01"
	missingID = "5b0c1a52-7f1e-4d8a-9a43-0d6f2b8e1cff"
	orderID   = "9e2f7c44-31a8-4b6e-8d05-6a1c3f9b7e10"
)

var accountRowColumns = []string{"id", "account_number", "email", "phone_number", "role", "balance", "version", "created_at", "updated_at"}

func TestPostgresStore_GetAccountForUpdate(t *testing.T) {
	store, mock := newMockStore(t, 1)
	ctx := context.Background()

	t.Run("existing account", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM accounts WHERE id = \\$1 FOR UPDATE").
			WithArgs(accountID).
			WillReturnRows(sqlmock.NewRows(accountRowColumns).
				AddRow(accountID, "1234567890", nil, "+2348012345678", "user", 5000, 3, time.Now(), time.Now()))
		mock.ExpectCommit()

		var account *models.Account
		err := store.RunInTx(ctx, func(tx Tx) error {
			var err error
			account, err = tx.GetAccountForUpdate(ctx, accountID)
			return err
		})

		require.NoError(t, err)
		assert.Equal(t, int64(5000), account.Balance)
		assert.Equal(t, 3, account.Version)
		assert.Empty(t, account.Email)
		assert.Equal(t, "+2348012345678", account.PhoneNumber)
		assert.Equal(t, models.RoleUser, account.Role)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing account rolls back", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM accounts WHERE id = \\$1 FOR UPDATE").
			WithArgs(missingID).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		err := store.RunInTx(ctx, func(tx Tx) error {
			_, err := tx.GetAccountForUpdate(ctx, missingID)
			return err
		})

		assert.True(t, errors.Is(err, domainerr.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_UpdateAccountBalanceRetriesOnOptimisticMiss(t *testing.T) {
	store, mock := newMockStore(t, 3)
	ctx := context.Background()

	updateQuery := "UPDATE accounts SET balance = \\$1, version = version \\+ 1, updated_at = \\$2 WHERE id = \\$3 AND version = \\$4"

	mock.ExpectBegin()
	mock.ExpectExec(updateQuery).
		WithArgs(4000, sqlmock.AnyArg(), "acc-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectExec(updateQuery).
		WithArgs(4000, sqlmock.AnyArg(), "acc-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	calls := 0
	err := store.RunInTx(ctx, func(tx Tx) error {
		calls++
		return tx.UpdateAccountBalance(ctx, "acc-1", 4000, 1)
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SerializationFailureExhaustsAttempts(t *testing.T) {
	store, mock := newMockStore(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE listings SET stock = \\$1").
			WithArgs(0, sqlmock.AnyArg(), "lst-1").
			WillReturnError(&pq.Error{Code: "40001"})
		mock.ExpectRollback()
	}

	err := store.RunInTx(ctx, func(tx Tx) error {
		return tx.UpdateListingStock(ctx, "lst-1", 0)
	})

	assert.True(t, errors.Is(err, domainerr.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UniqueViolationIsAlreadyExists(t *testing.T) {
	store, mock := newMockStore(t, 3)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO listings").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := store.RunInTx(ctx, func(tx Tx) error {
		return tx.CreateListing(ctx, &models.Listing{ID: "lst-1", OwnerID: "acc-1", Title: "Lamp", UnitPrice: 10, Stock: 1, Available: true})
	})

	assert.True(t, errors.Is(err, domainerr.ErrAlreadyExists))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DomainErrorIsNotRetried(t *testing.T) {
	store, mock := newMockStore(t, 5)

	mock.ExpectBegin()
	mock.ExpectRollback()

	calls := 0
	err := store.RunInTx(context.Background(), func(tx Tx) error {
		calls++
		return domainerr.ErrOutOfStock
	})

	assert.True(t, errors.Is(err, domainerr.ErrOutOfStock))
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CommitFailureIsStorageError(t *testing.T) {
	store, mock := newMockStore(t, 1)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(sql.ErrConnDone)

	err := store.RunInTx(context.Background(), func(tx Tx) error { return nil })

	assert.True(t, errors.Is(err, domainerr.ErrStorage))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetOrderForUpdate(t *testing.T) {
	store, mock := newMockStore(t, 1)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM orders WHERE id = \\$1 FOR UPDATE").
		WithArgs(orderID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "buyer_id", "total", "commission", "status", "created_at", "updated_at"}).
			AddRow(orderID, "buyer", 300, 15, "PAID", now, now))
	mock.ExpectQuery("SELECT (.+) FROM order_items WHERE order_id = \\$1 ORDER BY line_no").
		WithArgs(orderID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "listing_id", "seller_id", "quantity", "unit_price", "status"}).
			AddRow("itm-1", orderID, "lst-1", "s1", 2, 100, "PAID").
			AddRow("itm-2", orderID, "lst-2", "s2", 1, 100, "PAID"))
	mock.ExpectCommit()

	var order *models.Order
	err := store.RunInTx(ctx, func(tx Tx) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, orderID)
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	require.Len(t, order.Items, 2)
	assert.Equal(t, int64(200), order.Items[0].Subtotal())
	assert.Equal(t, []string{"s1", "s2"}, order.SellerIDs())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindPendingEntryUsesOrderReference(t *testing.T) {
	store, mock := newMockStore(t, 1)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM ledger_entries WHERE order_id = \\$1 AND receiver_id = \\$2 AND kind = \\$3 AND status = \\$4 (.+) FOR UPDATE").
		WithArgs("ord-1", "s1", "SALE", "PENDING").
		WillReturnRows(sqlmock.NewRows([]string{"id", "amount", "kind", "status", "sender_id", "receiver_id", "order_id", "description", "created_at", "updated_at"}).
			AddRow("txn-1", 190, "SALE", "PENDING", nil, "s1", "ord-1", "escrow", now, now))
	mock.ExpectCommit()

	var entry *models.LedgerEntry
	err := store.RunInTx(ctx, func(tx Tx) error {
		var err error
		entry, err = tx.FindPendingEntryForUpdate(ctx, "ord-1", "s1", models.EntryKindSale)
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, int64(190), entry.Amount)
	assert.Empty(t, entry.SenderID)
	assert.Equal(t, "ord-1", entry.OrderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateEntryWritesNullReferences(t *testing.T) {
	store, mock := newMockStore(t, 1)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO ledger_entries").
		WithArgs("txn-1", int64(1000), "DEPOSIT", "PENDING",
			sql.NullString{}, sql.NullString{String: "acc-1", Valid: true}, sql.NullString{},
			"deposit request", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := store.RunInTx(ctx, func(tx Tx) error {
		return tx.CreateEntry(ctx, &models.LedgerEntry{
			ID:          "txn-1",
			Amount:      1000,
			Kind:        models.EntryKindDeposit,
			Status:      models.EntryStatusPending,
			ReceiverID:  "acc-1",
			Description: "deposit request",
		})
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateEntryStatusMissingRow(t *testing.T) {
	store, mock := newMockStore(t, 1)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE ledger_entries SET status = \\$1").
		WithArgs("COMPLETED", sqlmock.AnyArg(), "nope").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.RunInTx(ctx, func(tx Tx) error {
		return tx.UpdateEntryStatus(ctx, "nope", models.EntryStatusCompleted)
	})

	assert.True(t, errors.Is(err, domainerr.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MalformedIDIsNotFound(t *testing.T) {
	store, mock := newMockStore(t, 3)
	ctx := context.Background()

	lookups := map[string]func(tx Tx) error{
		"account": func(tx Tx) error { _, err := tx.GetAccount(ctx, "not-a-uuid"); return err },
		"listing": func(tx Tx) error { _, err := tx.GetListingForUpdate(ctx, "lamp"); return err },
		"order":   func(tx Tx) error { _, err := tx.GetOrder(ctx, "42"); return err },
		"entry":   func(tx Tx) error { _, err := tx.GetEntryForUpdate(ctx, "txn-1"); return err },
	}
	for name, lookup := range lookups {
		t.Run(name, func(t *testing.T) {
			mock.ExpectBegin()
			mock.ExpectRollback()

			err := store.RunInTx(ctx, lookup)

			assert.True(t, errors.Is(err, domainerr.ErrNotFound), "got %v", err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_InvalidTextRepresentationIsNotFound(t *testing.T) {
	store, mock := newMockStore(t, 3)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM orders WHERE id = \\$1").
		WithArgs(orderID).
		WillReturnError(&pq.Error{Code: "22P02", Message: "invalid input syntax for type uuid"})
	mock.ExpectRollback()

	calls := 0
	err := store.RunInTx(ctx, func(tx Tx) error {
		calls++
		_, err := tx.GetOrder(ctx, orderID)
		return err
	})

	assert.True(t, errors.Is(err, domainerr.ErrNotFound), "got %v", err)
	assert.False(t, errors.Is(err, domainerr.ErrStorage))
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}
