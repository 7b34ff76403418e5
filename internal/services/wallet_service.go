package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/ruralpay/marketplace/internal/database"
	"github.com/ruralpay/marketplace/internal/domainerr"
	"github.com/ruralpay/marketplace/internal/models"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// WalletService handles deposits and peer-to-peer transfers.
type WalletService struct {
	store  database.Store
	ledger *Ledger
	audit  *AuditLogger
	events dispatcher
	log    zerolog.Logger
}

func NewWalletService(deps Deps) *WalletService {
	return &WalletService{
		store:  deps.Store,
		ledger: deps.Ledger,
		audit:  NewAuditLogger(deps.Log),
		events: deps.dispatcher("wallet"),
		log:    deps.Log.With().Str("component", "wallet").Logger(),
	}
}

// checkAmount bounds caller-supplied deposit and transfer amounts.
func checkAmount(amount int64) error {
	if amount <= 0 || amount > models.MaxAmount {
		return domainerr.Newf(domainerr.CodeInvalidAmount, "amount must be between 1 and %d", models.MaxAmount)
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

// RequestDeposit records a PENDING DEPOSIT for the caller. The balance is
// untouched until an admin approves it.
func (s *WalletService) RequestDeposit(ctx context.Context, caller Identity, amount int64) (*models.LedgerEntry, error) {
	if err := Authorize(caller, CapUseWallet, AccountResource(caller.AccountID)); err != nil {
		return nil, err
	}
	if err := checkAmount(amount); err != nil {
		return nil, err
	}

	var entry *models.LedgerEntry
	err := s.store.RunInTx(ctx, func(tx database.Tx) error {
		entry = nil

		if _, err := tx.GetAccount(ctx, caller.AccountID); err != nil {
			return err
		}
		e := &models.LedgerEntry{
			Amount:      amount,
			Kind:        models.EntryKindDeposit,
			Status:      models.EntryStatusPending,
			ReceiverID:  caller.AccountID,
			Description: "Wallet deposit",
		}
		if err := s.ledger.AppendEntry(ctx, tx, e); err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		s.audit.LogError("DEPOSIT_REQUEST", "", caller.AccountID, err)
		return nil, err
	}

	s.audit.LogMovement(string(entry.Kind), entry.ID, "", "", entry.ReceiverID, entry.Amount, string(entry.Status))
	s.events.emit(ctx, Event{
		Type:          EventDepositRequested,
		TransactionID: entry.ID,
		AccountID:     entry.ReceiverID,
		Amount:        entry.Amount,
		Status:        string(entry.Status),
	})
	return entry, nil
}

// ApproveDeposit credits a pending deposit to its receiver.
func (s *WalletService) ApproveDeposit(ctx context.Context, caller Identity, txID string) (*models.LedgerEntry, error) {
	return s.resolveDeposit(ctx, caller, txID, models.EntryStatusCompleted)
}

// RejectDeposit fails a pending deposit without touching any balance.
func (s *WalletService) RejectDeposit(ctx context.Context, caller Identity, txID string) (*models.LedgerEntry, error) {
	return s.resolveDeposit(ctx, caller, txID, models.EntryStatusFailed)
}

func (s *WalletService) resolveDeposit(ctx context.Context, caller Identity, txID string, outcome models.EntryStatus) (*models.LedgerEntry, error) {
	if err := Authorize(caller, CapManageLedger, Resource{}); err != nil {
		return nil, err
	}

	var entry *models.LedgerEntry
	err := s.store.RunInTx(ctx, func(tx database.Tx) error {
		entry = nil

		e, err := tx.GetEntryForUpdate(ctx, txID)
		if err != nil {
			return err
		}
		if e.Kind != models.EntryKindDeposit {
			return domainerr.Newf(domainerr.CodeNotFound, "deposit %s not found", txID)
		}
		if e.Status != models.EntryStatusPending {
			return domainerr.Newf(domainerr.CodeNotPending, "deposit %s is %s", txID, e.Status)
		}

		if err := tx.UpdateEntryStatus(ctx, e.ID, outcome); err != nil {
			return err
		}
		if outcome == models.EntryStatusCompleted {
			if err := s.ledger.Credit(ctx, tx, e.ReceiverID, e.Amount); err != nil {
				return err
			}
		}
		e.Status = outcome
		entry = e
		return nil
	})
	if err != nil {
		s.audit.LogError("DEPOSIT_"+string(outcome), txID, caller.AccountID, err)
		return nil, err
	}

	eventType := EventDepositApproved
	if outcome == models.EntryStatusFailed {
		eventType = EventDepositRejected
	}
	s.audit.LogMovement(string(entry.Kind), entry.ID, "", "", entry.ReceiverID, entry.Amount, string(entry.Status))
	s.log.Info().Str("transaction_id", entry.ID).Str("admin_id", caller.AccountID).
		Str("status", string(entry.Status)).Msg("Deposit resolved")
	s.events.emit(ctx, Event{
		Type:          eventType,
		TransactionID: entry.ID,
		AccountID:     entry.ReceiverID,
		Amount:        entry.Amount,
		Status:        string(entry.Status),
	})
	return entry, nil
}

// Transfer moves amount from the sender to the account matching
// recipientIdentifier (phone number, email or account number).
func (s *WalletService) Transfer(ctx context.Context, sender Identity, recipientIdentifier string, amount int64) (*models.LedgerEntry, error) {
	if err := Authorize(sender, CapUseWallet, AccountResource(sender.AccountID)); err != nil {
		return nil, err
	}
	if err := checkAmount(amount); err != nil {
		return nil, err
	}

	var entry *models.LedgerEntry
	err := s.store.RunInTx(ctx, func(tx database.Tx) error {
		entry = nil

		recipient, err := tx.FindAccountByIdentifier(ctx, recipientIdentifier)
		if domainerr.CodeOf(err) == domainerr.CodeNotFound {
			return domainerr.Wrap(domainerr.CodeRecipientNotFound, fmt.Sprintf("no account for %q", recipientIdentifier), err)
		}
		if err != nil {
			return err
		}
		if recipient.ID == sender.AccountID {
			return domainerr.New(domainerr.CodeSelfTransfer, "cannot transfer to own account")
		}

		e, err := s.ledger.TransferTx(ctx, tx, sender.AccountID, recipient.ID, amount,
			fmt.Sprintf("Transfer to %s", recipient.AccountNumber))
		if err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		s.audit.LogError("TRANSFER", "", sender.AccountID, err)
		return nil, err
	}

	s.audit.LogMovement(string(entry.Kind), entry.ID, "", entry.SenderID, entry.ReceiverID, entry.Amount, string(entry.Status))
	s.events.emit(ctx, Event{
		Type:          EventTransferCompleted,
		TransactionID: entry.ID,
		AccountID:     entry.ReceiverID,
		Amount:        entry.Amount,
		Status:        string(entry.Status),
	})
	return entry, nil
}

// Balance returns the caller's account, or any account for an admin.
func (s *WalletService) Balance(ctx context.Context, caller Identity, accountID string) (*models.Account, error) {
	if !caller.IsAdmin() {
		if err := Authorize(caller, CapUseWallet, AccountResource(accountID)); err != nil {
			return nil, err
		}
	}
	var account *models.Account
	err := s.store.View(ctx, func(tx database.Tx) error {
		a, err := tx.GetAccount(ctx, accountID)
		account = a
		return err
	})
	return account, err
}

// History lists the newest ledger entries where the account is sender or receiver.
func (s *WalletService) History(ctx context.Context, caller Identity, accountID string, limit int) ([]models.LedgerEntry, error) {
	if !caller.IsAdmin() {
		if err := Authorize(caller, CapUseWallet, AccountResource(accountID)); err != nil {
			return nil, err
		}
	}
	var entries []models.LedgerEntry
	err := s.store.View(ctx, func(tx database.Tx) error {
		if _, err := tx.GetAccount(ctx, accountID); err != nil {
			return err
		}
		var err error
		entries, err = tx.ListEntriesByAccount(ctx, accountID, clampLimit(limit))
		return err
	})
	return entries, err
}

// PendingDeposits lists deposits awaiting an admin decision, oldest first.
func (s *WalletService) PendingDeposits(ctx context.Context, caller Identity, limit int) ([]models.LedgerEntry, error) {
	if err := Authorize(caller, CapManageLedger, Resource{}); err != nil {
		return nil, err
	}
	var entries []models.LedgerEntry
	err := s.store.View(ctx, func(tx database.Tx) error {
		var err error
		entries, err = tx.ListPendingEntries(ctx, models.EntryKindDeposit, clampLimit(limit))
		return err
	})
	return entries, err
}
