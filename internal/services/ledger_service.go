package services

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/ruralpay/marketplace/internal/database"
	"github.com/ruralpay/marketplace/internal/domainerr"
	"github.com/ruralpay/marketplace/internal/models"
	"github.com/shopspring/decimal"
)

// Ledger holds the balance primitives shared by checkout, settlement and
// wallet flows. Every method runs inside the caller's unit.
type Ledger struct {
	commissionRate    decimal.Decimal
	platformAccountID string
}

func NewLedger(commissionRate decimal.Decimal, platformAccountID string) *Ledger {
	return &Ledger{
		commissionRate:    commissionRate,
		platformAccountID: platformAccountID,
	}
}

// Credit adds amount to the account's balance.
func (l *Ledger) Credit(ctx context.Context, tx database.Tx, accountID string, amount int64) error {
	account, err := tx.GetAccountForUpdate(ctx, accountID)
	if err != nil {
		return err
	}
	balance, ok := models.AddAmount(account.Balance, amount)
	if !ok {
		return domainerr.Newf(domainerr.CodeInvalidAmount, "crediting %d overflows account %s", amount, account.ID)
	}
	return tx.UpdateAccountBalance(ctx, account.ID, balance, account.Version)
}

// Debit removes amount from the account, failing if the balance would go negative.
func (l *Ledger) Debit(ctx context.Context, tx database.Tx, accountID string, amount int64) error {
	account, err := tx.GetAccountForUpdate(ctx, accountID)
	if err != nil {
		return err
	}
	if account.Balance < amount {
		return domainerr.Newf(domainerr.CodeInsufficientFunds, "balance %d below required %d", account.Balance, amount)
	}
	return tx.UpdateAccountBalance(ctx, account.ID, account.Balance-amount, account.Version)
}

// AppendEntry assigns an id and writes the entry.
func (l *Ledger) AppendEntry(ctx context.Context, tx database.Tx, entry *models.LedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	return tx.CreateEntry(ctx, entry)
}

// TransferTx moves amount between two accounts and records one TRANSFER entry.
func (l *Ledger) TransferTx(ctx context.Context, tx database.Tx, fromAccountID, toAccountID string, amount int64, description string) (*models.LedgerEntry, error) {
	// Lock accounts in consistent order to prevent deadlocks
	firstLock, secondLock := fromAccountID, toAccountID
	if fromAccountID > toAccountID {
		firstLock, secondLock = toAccountID, fromAccountID
	}

	fromAccount, err := tx.GetAccountForUpdate(ctx, firstLock)
	if err != nil {
		return nil, err
	}

	toAccount, err := tx.GetAccountForUpdate(ctx, secondLock)
	if err != nil {
		return nil, err
	}

	// Determine which locked account is sender/receiver
	if firstLock != fromAccountID {
		fromAccount, toAccount = toAccount, fromAccount
	}

	if fromAccount.Balance < amount {
		return nil, domainerr.Newf(domainerr.CodeInsufficientFunds, "balance %d below transfer amount %d", fromAccount.Balance, amount)
	}

	if err := tx.UpdateAccountBalance(ctx, fromAccount.ID, fromAccount.Balance-amount, fromAccount.Version); err != nil {
		return nil, err
	}

	credited, ok := models.AddAmount(toAccount.Balance, amount)
	if !ok {
		return nil, domainerr.Newf(domainerr.CodeInvalidAmount, "crediting %d overflows account %s", amount, toAccount.ID)
	}
	if err := tx.UpdateAccountBalance(ctx, toAccount.ID, credited, toAccount.Version); err != nil {
		return nil, err
	}

	entry := &models.LedgerEntry{
		Amount:      amount,
		Kind:        models.EntryKindTransfer,
		Status:      models.EntryStatusCompleted,
		SenderID:    fromAccount.ID,
		ReceiverID:  toAccount.ID,
		Description: description,
	}
	if err := l.AppendEntry(ctx, tx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Commission returns round(total × rate), rounding half away from zero.
func (l *Ledger) Commission(total int64) int64 {
	return decimal.NewFromInt(total).Mul(l.commissionRate).Round(0).IntPart()
}

// SellerShare is the amount owed to one seller for an order.
type SellerShare struct {
	SellerID string
	Subtotal int64
	Amount   int64
}

// SplitOrder computes the order commission and every seller's share of
// subtotal × (1 − rate). Shares are floored and the leftover units go to the
// sellers with the largest fractional parts, so shares plus commission always
// equal the order total. sellers fixes the tie-break order.
func (l *Ledger) SplitOrder(sellers []string, subtotals map[string]int64) (int64, []SellerShare) {
	var total int64
	for _, id := range sellers {
		total += subtotals[id]
	}
	commission := l.Commission(total)
	keep := decimal.NewFromInt(1).Sub(l.commissionRate)

	shares := make([]SellerShare, len(sellers))
	fractions := make([]decimal.Decimal, len(sellers))
	allocated := int64(0)
	for i, id := range sellers {
		exact := decimal.NewFromInt(subtotals[id]).Mul(keep)
		floor := exact.Floor()
		shares[i] = SellerShare{SellerID: id, Subtotal: subtotals[id], Amount: floor.IntPart()}
		fractions[i] = exact.Sub(floor)
		allocated += shares[i].Amount
	}

	remainder := total - commission - allocated
	if remainder > 0 && len(shares) > 0 {
		order := make([]int, len(shares))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return fractions[order[a]].GreaterThan(fractions[order[b]])
		})
		for i := int64(0); i < remainder; i++ {
			shares[order[i%int64(len(order))]].Amount++
		}
	}

	return commission, shares
}

// PlatformAccountID is the commission receiver, or "" when commission is
// kept as unaccounted margin.
func (l *Ledger) PlatformAccountID() string {
	return l.platformAccountID
}
