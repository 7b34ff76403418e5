package handlers

import (
	"net/http"

	"github.com/ruralpay/marketplace/internal/services"
)

type WalletHandler struct {
	wallet    *services.WalletService
	validator *ValidationHelper
}

func NewWalletHandler(wallet *services.WalletService) *WalletHandler {
	return &WalletHandler{
		wallet:    wallet,
		validator: NewValidationHelper(),
	}
}

type depositRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0,lte=1000000000000000"`
}

type transferRequest struct {
	Recipient string `json:"recipient" validate:"required"`
	Amount    int64  `json:"amount" validate:"required,gt=0,lte=1000000000000000"`
}

// GetBalance returns the caller's wallet balance
// @Summary Wallet balance
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{account_id=string,balance=int64}
// @Router /wallet/balance [get]
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	account, err := h.wallet.Balance(r.Context(), caller, caller.AccountID)
	if err != nil {
		SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account_id":     account.ID,
		"account_number": account.AccountNumber,
		"balance":        account.Balance,
	})
}

// GetHistory lists the caller's ledger entries, newest first
// @Summary Wallet history
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum entries"
// @Success 200 {object} object{entries=[]models.LedgerEntry}
// @Router /wallet/transactions [get]
func (h *WalletHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	entries, err := h.wallet.History(r.Context(), caller, caller.AccountID, queryLimit(r))
	if err != nil {
		SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// RequestDeposit records a deposit awaiting admin approval
// @Summary Request deposit
// @Tags Wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body depositRequest true "Deposit"
// @Success 202 {object} models.LedgerEntry
// @Router /wallet/deposits [post]
func (h *WalletHandler) RequestDeposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req depositRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	entry, err := h.wallet.RequestDeposit(r.Context(), caller, req.Amount)
	if err != nil {
		SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, entry)
}

// Transfer sends money to another account by phone number, email or account number
// @Summary Transfer
// @Tags Wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body transferRequest true "Transfer"
// @Success 201 {object} models.LedgerEntry
// @Failure 402 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /wallet/transfers [post]
func (h *WalletHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req transferRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	entry, err := h.wallet.Transfer(r.Context(), caller, req.Recipient, req.Amount)
	if err != nil {
		SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}
