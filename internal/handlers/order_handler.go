package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruralpay/marketplace/internal/models"
	"github.com/ruralpay/marketplace/internal/services"
)

type OrderHandler struct {
	checkout  *services.CheckoutService
	settle    *services.SettlementService
	validator *ValidationHelper
}

func NewOrderHandler(checkout *services.CheckoutService, settle *services.SettlementService) *OrderHandler {
	return &OrderHandler{
		checkout:  checkout,
		settle:    settle,
		validator: NewValidationHelper(),
	}
}

type placeOrderRequest struct {
	Items []models.CartItem `json:"items" validate:"required,min=1,dive"`
}

type statusRequest struct {
	Status models.OrderStatus `json:"status" validate:"required,oneof=PROCESSING SHIPPED"`
}

// PlaceOrder checks out the caller's cart
// @Summary Place order
// @Description Reserve stock, debit the wallet and open escrow holds for every seller
// @Tags Orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body placeOrderRequest true "Cart"
// @Success 201 {object} models.Order
// @Failure 400 {object} ErrorResponse
// @Failure 402 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /orders [post]
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req placeOrderRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	order, err := h.checkout.PlaceOrder(r.Context(), caller, req.Items)
	if err != nil {
		SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// GetOrder returns one order
// @Summary Get order
// @Tags Orders
// @Produce json
// @Security BearerAuth
// @Param orderId path string true "Order ID"
// @Success 200 {object} models.Order
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /orders/{orderId} [get]
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	order, err := h.settle.GetOrder(r.Context(), caller, chi.URLParam(r, "orderId"))
	if err != nil {
		SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// GetOrderLedger lists the ledger entries referencing an order
// @Summary Order ledger
// @Tags Orders
// @Produce json
// @Security BearerAuth
// @Param orderId path string true "Order ID"
// @Success 200 {object} object{entries=[]models.LedgerEntry}
// @Router /orders/{orderId}/ledger [get]
func (h *OrderHandler) GetOrderLedger(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	entries, err := h.settle.OrderLedger(r.Context(), caller, chi.URLParam(r, "orderId"))
	if err != nil {
		SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// ConfirmReceipt completes the order and releases escrow to the sellers
// @Summary Confirm receipt
// @Tags Orders
// @Produce json
// @Security BearerAuth
// @Param orderId path string true "Order ID"
// @Success 200 {object} models.Order
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /orders/{orderId}/confirm [post]
func (h *OrderHandler) ConfirmReceipt(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	order, err := h.settle.ConfirmReceipt(r.Context(), caller, chi.URLParam(r, "orderId"))
	if err != nil {
		SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// UpdateOrderStatus lets a seller move the order forward
// @Summary Update order status
// @Tags Orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orderId path string true "Order ID"
// @Param request body statusRequest true "Target status"
// @Success 200 {object} models.Order
// @Router /orders/{orderId}/status [put]
func (h *OrderHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req statusRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	order, err := h.settle.UpdateOrderStatus(r.Context(), caller, chi.URLParam(r, "orderId"), req.Status)
	if err != nil {
		SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// UpdateItemStatus lets a seller move one of their items forward
// @Summary Update order item status
// @Tags Orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orderId path string true "Order ID"
// @Param itemId path string true "Order item ID"
// @Param request body statusRequest true "Target status"
// @Success 200 {object} models.Order
// @Router /orders/{orderId}/items/{itemId}/status [put]
func (h *OrderHandler) UpdateItemStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req statusRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	order, err := h.settle.UpdateOrderItemStatus(r.Context(), caller,
		chi.URLParam(r, "orderId"), chi.URLParam(r, "itemId"), req.Status)
	if err != nil {
		SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}
