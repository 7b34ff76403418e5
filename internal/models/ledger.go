package models

import (
	"time"
)

// EntryKind classifies a ledger entry.
type EntryKind string

const (
	EntryKindPayment    EntryKind = "PAYMENT"
	EntryKindSale       EntryKind = "SALE"
	EntryKindDeposit    EntryKind = "DEPOSIT"
	EntryKindTransfer   EntryKind = "TRANSFER"
	EntryKindCommission EntryKind = "COMMISSION"
)

// EntryStatus is the only mutable field of a ledger entry.
type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "PENDING"
	EntryStatusCompleted EntryStatus = "COMPLETED"
	EntryStatusFailed    EntryStatus = "FAILED"
)

// LedgerEntry is one append-only money movement. A PENDING SALE entry is an escrow hold.
type LedgerEntry struct {
	ID          string      `json:"id" db:"id"`
	Amount      int64       `json:"amount" db:"amount"` // in minor units, signed
	Kind        EntryKind   `json:"kind" db:"kind"`
	Status      EntryStatus `json:"status" db:"status"`
	SenderID    string      `json:"sender_id,omitempty" db:"sender_id"`
	ReceiverID  string      `json:"receiver_id,omitempty" db:"receiver_id"`
	OrderID     string      `json:"order_id,omitempty" db:"order_id"`
	Description string      `json:"description" db:"description"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}
