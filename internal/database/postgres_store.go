package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/ruralpay/marketplace/internal/domainerr"
	"github.com/ruralpay/marketplace/internal/models"
)

// PostgreSQL error codes with a domain meaning. The first two retry the unit.
const (
	pqSerializationFailure      = "40001"
	pqDeadlockDetected          = "40P01"
	pqUniqueViolation           = "23505"
	pqInvalidTextRepresentation = "22P02"
)

const accountColumns = "id, account_number, email, phone_number, role, balance, version, created_at, updated_at"
const listingColumns = "id, owner_id, title, unit_price, stock, available, updated_at"
const orderColumns = "id, buyer_id, total, commission, status, created_at, updated_at"
const itemColumns = "id, order_id, listing_id, seller_id, quantity, unit_price, status"
const entryColumns = "id, amount, kind, status, sender_id, receiver_id, order_id, description, created_at, updated_at"

// PostgresStore implements Store on lib/pq. Units run at READ COMMITTED;
// isolation for touched rows comes from SELECT ... FOR UPDATE plus the
// optimistic version check on account balances.
type PostgresStore struct {
	db          *sql.DB
	log         zerolog.Logger
	maxAttempts int
	baseDelay   time.Duration
}

// NewPostgresStore wraps an open pool. maxAttempts bounds conflict retries.
func NewPostgresStore(db *sql.DB, log zerolog.Logger, maxAttempts int, baseDelay time.Duration) *PostgresStore {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &PostgresStore{
		db:          db,
		log:         log.With().Str("component", "postgres_store").Logger(),
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
	}
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// RunInTx runs fn in one transaction, retrying the whole unit on write conflicts.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = s.runOnce(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, fn)
		if !errors.Is(err, domainerr.ErrConflict) {
			return err
		}
		s.log.Warn().Err(err).Int("attempt", attempt).Msg("write conflict, retrying unit")
		if attempt == s.maxAttempts {
			break
		}
		if werr := s.backoff(ctx, attempt); werr != nil {
			return domainerr.Storage("retry wait", werr)
		}
	}
	return err
}

// View runs fn in a read-only transaction.
func (s *PostgresStore) View(ctx context.Context, fn func(tx Tx) error) error {
	return s.runOnce(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted, ReadOnly: true}, fn)
}

func (s *PostgresStore) runOnce(ctx context.Context, opts *sql.TxOptions, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return classify("begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify("commit transaction", err)
	}
	return nil
}

func (s *PostgresStore) backoff(ctx context.Context, attempt int) error {
	if s.baseDelay <= 0 {
		return ctx.Err()
	}
	delay := s.baseDelay << (attempt - 1)
	delay += rand.N(s.baseDelay)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// classify maps driver errors onto the domain taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqSerializationFailure, pqDeadlockDetected:
			return domainerr.Wrap(domainerr.CodeConflict, op, err)
		case pqUniqueViolation:
			return domainerr.Wrap(domainerr.CodeAlreadyExists, op, err)
		case pqInvalidTextRepresentation:
			// A key that cannot be a UUID names no row.
			return domainerr.Wrap(domainerr.CodeNotFound, op, err)
		}
	}
	return domainerr.Storage(op, err)
}

// checkID rejects ids the UUID key columns could never hold. Sending one
// would abort the surrounding transaction.
func checkID(kind, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domainerr.Newf(domainerr.CodeNotFound, "%s %s not found", kind, id)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type rowScanner interface {
	Scan(dest ...any) error
}

type pgTx struct {
	tx *sql.Tx
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	var email, phone sql.NullString
	var role string
	err := row.Scan(&a.ID, &a.AccountNumber, &email, &phone, &role, &a.Balance, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Email = email.String
	a.PhoneNumber = phone.String
	a.Role = models.Role(role)
	return &a, nil
}

func (t *pgTx) CreateAccount(ctx context.Context, a *models.Account) error {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.Version == 0 {
		a.Version = 1
	}
	if a.Role == "" {
		a.Role = models.RoleUser
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.AccountNumber, nullString(a.Email), nullString(a.PhoneNumber), string(a.Role), a.Balance, a.Version, a.CreatedAt, a.UpdatedAt)
	return classify("create account", err)
}

func (t *pgTx) getAccount(ctx context.Context, id string, lock bool) (*models.Account, error) {
	if err := checkID("account", id); err != nil {
		return nil, err
	}
	query := "SELECT " + accountColumns + " FROM accounts WHERE id = $1"
	if lock {
		query += " FOR UPDATE"
	}
	a, err := scanAccount(t.tx.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerr.Newf(domainerr.CodeNotFound, "account %s not found", id)
	}
	if err != nil {
		return nil, classify("get account", err)
	}
	return a, nil
}

func (t *pgTx) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	return t.getAccount(ctx, id, false)
}

func (t *pgTx) GetAccountForUpdate(ctx context.Context, id string) (*models.Account, error) {
	return t.getAccount(ctx, id, true)
}

func (t *pgTx) FindAccountByIdentifier(ctx context.Context, identifier string) (*models.Account, error) {
	a, err := scanAccount(t.tx.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE phone_number = $1 OR email = $1 OR account_number = $1
		LIMIT 1`, identifier))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerr.Newf(domainerr.CodeNotFound, "no account matches %q", identifier)
	}
	if err != nil {
		return nil, classify("find account", err)
	}
	return a, nil
}

func (t *pgTx) UpdateAccountBalance(ctx context.Context, id string, newBalance int64, version int) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`,
		newBalance, time.Now().UTC(), id, version)
	if err != nil {
		return classify("update account balance", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return classify("update account balance", err)
	}

	if rowsAffected == 0 {
		return domainerr.Newf(domainerr.CodeConflict, "optimistic lock failed for account %s", id)
	}
	return nil
}

func scanListing(row rowScanner) (*models.Listing, error) {
	var l models.Listing
	if err := row.Scan(&l.ID, &l.OwnerID, &l.Title, &l.UnitPrice, &l.Stock, &l.Available, &l.UpdatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func (t *pgTx) CreateListing(ctx context.Context, l *models.Listing) error {
	l.UpdatedAt = time.Now().UTC()
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO listings (`+listingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		l.ID, l.OwnerID, l.Title, l.UnitPrice, l.Stock, l.Available, l.UpdatedAt)
	return classify("create listing", err)
}

func (t *pgTx) getListing(ctx context.Context, id string, lock bool) (*models.Listing, error) {
	if err := checkID("listing", id); err != nil {
		return nil, err
	}
	query := "SELECT " + listingColumns + " FROM listings WHERE id = $1"
	if lock {
		query += " FOR UPDATE"
	}
	l, err := scanListing(t.tx.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerr.Newf(domainerr.CodeNotFound, "listing %s not found", id)
	}
	if err != nil {
		return nil, classify("get listing", err)
	}
	return l, nil
}

func (t *pgTx) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	return t.getListing(ctx, id, false)
}

func (t *pgTx) GetListingForUpdate(ctx context.Context, id string) (*models.Listing, error) {
	return t.getListing(ctx, id, true)
}

func (t *pgTx) UpdateListingStock(ctx context.Context, id string, newStock int64) error {
	result, err := t.tx.ExecContext(ctx,
		"UPDATE listings SET stock = $1, updated_at = $2 WHERE id = $3",
		newStock, time.Now().UTC(), id)
	if err != nil {
		return classify("update listing stock", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return classify("update listing stock", err)
	} else if n == 0 {
		return domainerr.Newf(domainerr.CodeNotFound, "listing %s not found", id)
	}
	return nil
}

func (t *pgTx) CreateOrder(ctx context.Context, o *models.Order) error {
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.ID, o.BuyerID, o.Total, o.Commission, string(o.Status), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return classify("create order", err)
	}

	for i, item := range o.Items {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, line_no, listing_id, seller_id, quantity, unit_price, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			item.ID, o.ID, i, item.ListingID, item.SellerID, item.Quantity, item.UnitPrice, string(item.Status))
		if err != nil {
			return classify("create order item", err)
		}
	}
	return nil
}

func (t *pgTx) getOrder(ctx context.Context, id string, lock bool) (*models.Order, error) {
	if err := checkID("order", id); err != nil {
		return nil, err
	}
	query := "SELECT " + orderColumns + " FROM orders WHERE id = $1"
	if lock {
		query += " FOR UPDATE"
	}
	var o models.Order
	var status string
	err := t.tx.QueryRowContext(ctx, query, id).
		Scan(&o.ID, &o.BuyerID, &o.Total, &o.Commission, &status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerr.Newf(domainerr.CodeNotFound, "order %s not found", id)
	}
	if err != nil {
		return nil, classify("get order", err)
	}
	o.Status = models.OrderStatus(status)

	rows, err := t.tx.QueryContext(ctx,
		"SELECT "+itemColumns+" FROM order_items WHERE order_id = $1 ORDER BY line_no", id)
	if err != nil {
		return nil, classify("get order items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		var itemStatus string
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ListingID, &item.SellerID, &item.Quantity, &item.UnitPrice, &itemStatus); err != nil {
			return nil, classify("scan order item", err)
		}
		item.Status = models.OrderStatus(itemStatus)
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("get order items", err)
	}
	return &o, nil
}

func (t *pgTx) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return t.getOrder(ctx, id, false)
}

func (t *pgTx) GetOrderForUpdate(ctx context.Context, id string) (*models.Order, error) {
	return t.getOrder(ctx, id, true)
}

func (t *pgTx) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) error {
	result, err := t.tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3",
		string(status), time.Now().UTC(), id)
	return expectOneRow("update order status", result, err, "order", id)
}

func (t *pgTx) UpdateOrderItemStatus(ctx context.Context, orderID, itemID string, status models.OrderStatus) error {
	result, err := t.tx.ExecContext(ctx,
		"UPDATE order_items SET status = $1 WHERE id = $2 AND order_id = $3",
		string(status), itemID, orderID)
	return expectOneRow("update order item status", result, err, "order item", itemID)
}

func expectOneRow(op string, result sql.Result, err error, what, id string) error {
	if err != nil {
		return classify(op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return classify(op, err)
	}
	if n == 0 {
		return domainerr.Newf(domainerr.CodeNotFound, "%s %s not found", what, id)
	}
	return nil
}

func scanEntry(row rowScanner) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	var kind, status string
	var sender, receiver, order sql.NullString
	err := row.Scan(&e.ID, &e.Amount, &kind, &status, &sender, &receiver, &order, &e.Description, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Kind = models.EntryKind(kind)
	e.Status = models.EntryStatus(status)
	e.SenderID = sender.String
	e.ReceiverID = receiver.String
	e.OrderID = order.String
	return &e, nil
}

func (t *pgTx) CreateEntry(ctx context.Context, e *models.LedgerEntry) error {
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.Amount, string(e.Kind), string(e.Status),
		nullString(e.SenderID), nullString(e.ReceiverID), nullString(e.OrderID),
		e.Description, e.CreatedAt, e.UpdatedAt)
	return classify("create ledger entry", err)
}

func (t *pgTx) GetEntryForUpdate(ctx context.Context, id string) (*models.LedgerEntry, error) {
	if err := checkID("transaction", id); err != nil {
		return nil, err
	}
	e, err := scanEntry(t.tx.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM ledger_entries WHERE id = $1 FOR UPDATE", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerr.Newf(domainerr.CodeNotFound, "transaction %s not found", id)
	}
	if err != nil {
		return nil, classify("get ledger entry", err)
	}
	return e, nil
}

func (t *pgTx) FindPendingEntryForUpdate(ctx context.Context, orderID, receiverID string, kind models.EntryKind) (*models.LedgerEntry, error) {
	e, err := scanEntry(t.tx.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE order_id = $1 AND receiver_id = $2 AND kind = $3 AND status = $4
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE`,
		orderID, receiverID, string(kind), string(models.EntryStatusPending)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerr.Newf(domainerr.CodeNotFound, "no pending %s entry for order %s receiver %s", kind, orderID, receiverID)
	}
	if err != nil {
		return nil, classify("find pending entry", err)
	}
	return e, nil
}

func (t *pgTx) UpdateEntryStatus(ctx context.Context, id string, status models.EntryStatus) error {
	result, err := t.tx.ExecContext(ctx,
		"UPDATE ledger_entries SET status = $1, updated_at = $2 WHERE id = $3",
		string(status), time.Now().UTC(), id)
	return expectOneRow("update ledger entry status", result, err, "transaction", id)
}

func (t *pgTx) queryEntries(ctx context.Context, op, query string, args ...any) ([]models.LedgerEntry, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, classify(fmt.Sprintf("%s: scan", op), err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return entries, nil
}

func (t *pgTx) ListEntriesByAccount(ctx context.Context, accountID string, limit int) ([]models.LedgerEntry, error) {
	return t.queryEntries(ctx, "list account entries", `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, accountID, limit)
}

func (t *pgTx) ListEntriesByOrder(ctx context.Context, orderID string) ([]models.LedgerEntry, error) {
	return t.queryEntries(ctx, "list order entries",
		"SELECT "+entryColumns+" FROM ledger_entries WHERE order_id = $1 ORDER BY created_at", orderID)
}

func (t *pgTx) ListPendingEntries(ctx context.Context, kind models.EntryKind, limit int) ([]models.LedgerEntry, error) {
	return t.queryEntries(ctx, "list pending entries", `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE kind = $1 AND status = $2
		ORDER BY created_at
		LIMIT $3`, string(kind), string(models.EntryStatusPending), limit)
}
