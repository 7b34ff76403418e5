package database

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ruralpay/marketplace/internal/domainerr"
	"github.com/ruralpay/marketplace/internal/models"
)

var errReadOnly = errors.New("write attempted in read-only unit")

// MemoryStore is an in-process Store. Units are serialized by one mutex and
// run against a staged copy of the state that replaces the live state only
// when fn succeeds.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
	seq   int64
}

type memState struct {
	accounts map[string]models.Account
	listings map[string]models.Listing
	orders   map[string]models.Order
	entries  map[string]models.LedgerEntry
	// entryLog keeps insertion order for listings.
	entryLog []string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		accounts: map[string]models.Account{},
		listings: map[string]models.Listing{},
		orders:   map[string]models.Order{},
		entries:  map[string]models.LedgerEntry{},
	}}
}

func (s *memState) clone() *memState {
	c := &memState{
		accounts: make(map[string]models.Account, len(s.accounts)),
		listings: make(map[string]models.Listing, len(s.listings)),
		orders:   make(map[string]models.Order, len(s.orders)),
		entries:  make(map[string]models.LedgerEntry, len(s.entries)),
		entryLog: append([]string(nil), s.entryLog...),
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.listings {
		c.listings[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = copyOrder(v)
	}
	for k, v := range s.entries {
		c.entries[k] = v
	}
	return c
}

func copyOrder(o models.Order) models.Order {
	o.Items = append([]models.OrderItem(nil), o.Items...)
	return o
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return domainerr.Storage("begin transaction", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.state.clone()
	if err := fn(&memTx{store: s, st: staged}); err != nil {
		return err
	}
	s.state = staged
	return nil
}

func (s *MemoryStore) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return domainerr.Storage("begin transaction", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memTx{store: s, st: s.state, readOnly: true})
}

func (s *MemoryStore) Close() error {
	return nil
}

// tick returns a strictly increasing timestamp so ordering by created_at is stable.
func (s *MemoryStore) tick() time.Time {
	s.seq++
	return time.Now().UTC().Add(time.Duration(s.seq))
}

type memTx struct {
	store    *MemoryStore
	st       *memState
	readOnly bool
}

func (t *memTx) writable(op string) error {
	if t.readOnly {
		return domainerr.Storage(op, errReadOnly)
	}
	return nil
}

func (t *memTx) CreateAccount(_ context.Context, a *models.Account) error {
	if err := t.writable("create account"); err != nil {
		return err
	}
	if _, ok := t.st.accounts[a.ID]; ok {
		return domainerr.Storage("create account", errors.New("duplicate account id"))
	}
	for _, other := range t.st.accounts {
		if other.AccountNumber == a.AccountNumber ||
			(a.Email != "" && other.Email == a.Email) ||
			(a.PhoneNumber != "" && other.PhoneNumber == a.PhoneNumber) {
			return domainerr.Storage("create account", errors.New("duplicate account identifier"))
		}
	}
	now := t.store.tick()
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
	if a.Balance < 0 {
		return domainerr.Storage("create account", errors.New("negative balance"))
	}
	t.st.accounts[a.ID] = *a
	return nil
}

func (t *memTx) GetAccount(_ context.Context, id string) (*models.Account, error) {
	a, ok := t.st.accounts[id]
	if !ok {
		return nil, domainerr.Newf(domainerr.CodeNotFound, "account %s not found", id)
	}
	return &a, nil
}

func (t *memTx) GetAccountForUpdate(ctx context.Context, id string) (*models.Account, error) {
	return t.GetAccount(ctx, id)
}

func (t *memTx) FindAccountByIdentifier(_ context.Context, identifier string) (*models.Account, error) {
	if identifier != "" {
		for _, a := range t.st.accounts {
			if a.PhoneNumber == identifier || a.Email == identifier || a.AccountNumber == identifier {
				found := a
				return &found, nil
			}
		}
	}
	return nil, domainerr.Newf(domainerr.CodeNotFound, "no account matches %q", identifier)
}

func (t *memTx) UpdateAccountBalance(_ context.Context, id string, newBalance int64, version int) error {
	if err := t.writable("update account balance"); err != nil {
		return err
	}
	a, ok := t.st.accounts[id]
	if !ok || a.Version != version {
		return domainerr.Newf(domainerr.CodeConflict, "optimistic lock failed for account %s", id)
	}
	if newBalance < 0 {
		return domainerr.Storage("update account balance", errors.New("balance check constraint violated"))
	}
	a.Balance = newBalance
	a.Version++
	a.UpdatedAt = t.store.tick()
	t.st.accounts[id] = a
	return nil
}

func (t *memTx) CreateListing(_ context.Context, l *models.Listing) error {
	if err := t.writable("create listing"); err != nil {
		return err
	}
	if _, ok := t.st.accounts[l.OwnerID]; !ok {
		return domainerr.Storage("create listing", errors.New("owner foreign key violated"))
	}
	if l.Stock < 0 || l.UnitPrice < 0 {
		return domainerr.Storage("create listing", errors.New("listing check constraint violated"))
	}
	l.UpdatedAt = t.store.tick()
	t.st.listings[l.ID] = *l
	return nil
}

func (t *memTx) GetListing(_ context.Context, id string) (*models.Listing, error) {
	l, ok := t.st.listings[id]
	if !ok {
		return nil, domainerr.Newf(domainerr.CodeNotFound, "listing %s not found", id)
	}
	return &l, nil
}

func (t *memTx) GetListingForUpdate(ctx context.Context, id string) (*models.Listing, error) {
	return t.GetListing(ctx, id)
}

func (t *memTx) UpdateListingStock(_ context.Context, id string, newStock int64) error {
	if err := t.writable("update listing stock"); err != nil {
		return err
	}
	l, ok := t.st.listings[id]
	if !ok {
		return domainerr.Newf(domainerr.CodeNotFound, "listing %s not found", id)
	}
	if newStock < 0 {
		return domainerr.Storage("update listing stock", errors.New("stock check constraint violated"))
	}
	l.Stock = newStock
	l.UpdatedAt = t.store.tick()
	t.st.listings[id] = l
	return nil
}

func (t *memTx) CreateOrder(_ context.Context, o *models.Order) error {
	if err := t.writable("create order"); err != nil {
		return err
	}
	if _, ok := t.st.accounts[o.BuyerID]; !ok {
		return domainerr.Storage("create order", errors.New("buyer foreign key violated"))
	}
	now := t.store.tick()
	o.CreatedAt = now
	o.UpdatedAt = now
	t.st.orders[o.ID] = copyOrder(*o)
	return nil
}

func (t *memTx) GetOrder(_ context.Context, id string) (*models.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return nil, domainerr.Newf(domainerr.CodeNotFound, "order %s not found", id)
	}
	c := copyOrder(o)
	return &c, nil
}

func (t *memTx) GetOrderForUpdate(ctx context.Context, id string) (*models.Order, error) {
	return t.GetOrder(ctx, id)
}

func (t *memTx) UpdateOrderStatus(_ context.Context, id string, status models.OrderStatus) error {
	if err := t.writable("update order status"); err != nil {
		return err
	}
	o, ok := t.st.orders[id]
	if !ok {
		return domainerr.Newf(domainerr.CodeNotFound, "order %s not found", id)
	}
	o.Status = status
	o.UpdatedAt = t.store.tick()
	t.st.orders[id] = o
	return nil
}

func (t *memTx) UpdateOrderItemStatus(_ context.Context, orderID, itemID string, status models.OrderStatus) error {
	if err := t.writable("update order item status"); err != nil {
		return err
	}
	o, ok := t.st.orders[orderID]
	if ok {
		for i := range o.Items {
			if o.Items[i].ID == itemID {
				o.Items[i].Status = status
				t.st.orders[orderID] = o
				return nil
			}
		}
	}
	return domainerr.Newf(domainerr.CodeNotFound, "order item %s not found", itemID)
}

func (t *memTx) CreateEntry(_ context.Context, e *models.LedgerEntry) error {
	if err := t.writable("create ledger entry"); err != nil {
		return err
	}
	for _, ref := range []string{e.SenderID, e.ReceiverID} {
		if _, ok := t.st.accounts[ref]; ref != "" && !ok {
			return domainerr.Storage("create ledger entry", errors.New("account foreign key violated"))
		}
	}
	if _, ok := t.st.orders[e.OrderID]; e.OrderID != "" && !ok {
		return domainerr.Storage("create ledger entry", errors.New("order foreign key violated"))
	}
	now := t.store.tick()
	e.CreatedAt = now
	e.UpdatedAt = now
	t.st.entries[e.ID] = *e
	t.st.entryLog = append(t.st.entryLog, e.ID)
	return nil
}

func (t *memTx) GetEntryForUpdate(_ context.Context, id string) (*models.LedgerEntry, error) {
	e, ok := t.st.entries[id]
	if !ok {
		return nil, domainerr.Newf(domainerr.CodeNotFound, "transaction %s not found", id)
	}
	return &e, nil
}

func (t *memTx) FindPendingEntryForUpdate(_ context.Context, orderID, receiverID string, kind models.EntryKind) (*models.LedgerEntry, error) {
	for _, id := range t.st.entryLog {
		e := t.st.entries[id]
		if e.OrderID == orderID && e.ReceiverID == receiverID && e.Kind == kind && e.Status == models.EntryStatusPending {
			return &e, nil
		}
	}
	return nil, domainerr.Newf(domainerr.CodeNotFound, "no pending %s entry for order %s receiver %s", kind, orderID, receiverID)
}

func (t *memTx) UpdateEntryStatus(_ context.Context, id string, status models.EntryStatus) error {
	if err := t.writable("update ledger entry status"); err != nil {
		return err
	}
	e, ok := t.st.entries[id]
	if !ok {
		return domainerr.Newf(domainerr.CodeNotFound, "transaction %s not found", id)
	}
	e.Status = status
	e.UpdatedAt = t.store.tick()
	t.st.entries[id] = e
	return nil
}

func (t *memTx) filterEntries(keep func(models.LedgerEntry) bool) []models.LedgerEntry {
	var out []models.LedgerEntry
	for _, id := range t.st.entryLog {
		if e := t.st.entries[id]; keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func (t *memTx) ListEntriesByAccount(_ context.Context, accountID string, limit int) ([]models.LedgerEntry, error) {
	out := t.filterEntries(func(e models.LedgerEntry) bool {
		return e.SenderID == accountID || e.ReceiverID == accountID
	})
	// newest first
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memTx) ListEntriesByOrder(_ context.Context, orderID string) ([]models.LedgerEntry, error) {
	return t.filterEntries(func(e models.LedgerEntry) bool { return e.OrderID == orderID }), nil
}

func (t *memTx) ListPendingEntries(_ context.Context, kind models.EntryKind, limit int) ([]models.LedgerEntry, error) {
	out := t.filterEntries(func(e models.LedgerEntry) bool {
		return e.Kind == kind && e.Status == models.EntryStatusPending
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
