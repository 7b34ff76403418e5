package services

import (
	"github.com/rs/zerolog"
)

// AuditLogger records every committed money movement on a dedicated logger.
type AuditLogger struct {
	log zerolog.Logger
}

func NewAuditLogger(log zerolog.Logger) *AuditLogger {
	return &AuditLogger{log: log.With().Str("stream", "audit").Logger()}
}

// LogMovement records a ledger entry that changed a balance or opened a hold.
func (a *AuditLogger) LogMovement(eventType, transactionID, orderID, fromAccount, toAccount string, amount int64, status string) {
	a.log.Info().
		Str("event_type", eventType).
		Str("transaction_id", transactionID).
		Str("order_id", orderID).
		Str("from_account", fromAccount).
		Str("to_account", toAccount).
		Int64("amount", amount).
		Str("status", status).
		Msg("AUDIT")
}

// LogOperation records a state change that moved no money.
func (a *AuditLogger) LogOperation(operation, reference, accountID, details string) {
	a.log.Info().
		Str("event_type", operation).
		Str("reference", reference).
		Str("account_id", accountID).
		Str("details", details).
		Msg("AUDIT")
}

// LogError records an aborted operation.
func (a *AuditLogger) LogError(operation, reference, accountID string, err error) {
	a.log.Warn().
		Err(err).
		Str("event_type", operation).
		Str("reference", reference).
		Str("account_id", accountID).
		Str("status", "FAILED").
		Msg("AUDIT")
}
