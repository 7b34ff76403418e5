package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruralpay/marketplace/internal/models"
	"github.com/ruralpay/marketplace/internal/services"
)

type AdminHandler struct {
	wallet    *services.WalletService
	settle    *services.SettlementService
	validator *ValidationHelper
}

func NewAdminHandler(wallet *services.WalletService, settle *services.SettlementService) *AdminHandler {
	return &AdminHandler{
		wallet:    wallet,
		settle:    settle,
		validator: NewValidationHelper(),
	}
}

type forceStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=PAID PROCESSING SHIPPED CANCELLED"`
}

// ListPendingDeposits lists deposits awaiting a decision
// @Summary Pending deposits
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{entries=[]models.LedgerEntry}
// @Router /admin/deposits [get]
func (h *AdminHandler) ListPendingDeposits(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	entries, err := h.wallet.PendingDeposits(r.Context(), caller, queryLimit(r))
	if err != nil {
		SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// ApproveDeposit credits a pending deposit
// @Summary Approve deposit
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param txId path string true "Transaction ID"
// @Success 200 {object} models.LedgerEntry
// @Router /admin/deposits/{txId}/approve [post]
func (h *AdminHandler) ApproveDeposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	entry, err := h.wallet.ApproveDeposit(r.Context(), caller, chi.URLParam(r, "txId"))
	if err != nil {
		SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// RejectDeposit fails a pending deposit
// @Summary Reject deposit
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param txId path string true "Transaction ID"
// @Success 200 {object} models.LedgerEntry
// @Router /admin/deposits/{txId}/reject [post]
func (h *AdminHandler) RejectDeposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	entry, err := h.wallet.RejectDeposit(r.Context(), caller, chi.URLParam(r, "txId"))
	if err != nil {
		SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// ForceOrderStatus overrides an order's status
// @Summary Force order status
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orderId path string true "Order ID"
// @Param request body forceStatusRequest true "Target status"
// @Success 200 {object} models.Order
// @Router /admin/orders/{orderId}/status [put]
func (h *AdminHandler) ForceOrderStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req forceStatusRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	order, err := h.settle.ForceOrderStatus(r.Context(), caller, chi.URLParam(r, "orderId"), models.OrderStatus(req.Status))
	if err != nil {
		SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}
