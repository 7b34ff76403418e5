package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruralpay/marketplace/internal/models"
	"github.com/ruralpay/marketplace/internal/services"
)

// AccountHandler exposes wallet registration and listing intake.
type AccountHandler struct {
	accounts  *services.AccountService
	validator *ValidationHelper
}

func NewAccountHandler(accounts *services.AccountService) *AccountHandler {
	return &AccountHandler{
		accounts:  accounts,
		validator: NewValidationHelper(),
	}
}

type registerAccountRequest struct {
	ID          string `json:"id" validate:"omitempty,uuid"`
	Email       string `json:"email" validate:"omitempty,email"`
	PhoneNumber string `json:"phone_number" validate:"omitempty,e164"`
	Role        string `json:"role" validate:"omitempty,oneof=user admin platform"`
}

type publishListingRequest struct {
	ID        string `json:"id" validate:"omitempty,uuid"`
	Title     string `json:"title" validate:"required,min=2,max=200"`
	UnitPrice int64  `json:"unit_price" validate:"required,gt=0,lte=100000000000"`
	Stock     int64  `json:"stock" validate:"gte=0,lte=1000000"`
}

type restockRequest struct {
	Stock int64 `json:"stock" validate:"gte=0,lte=1000000"`
}

// RegisterAccount opens a wallet for a user created by the auth subsystem
// @Summary Register account
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body registerAccountRequest true "Account"
// @Success 201 {object} models.Account
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /admin/accounts [post]
func (h *AccountHandler) RegisterAccount(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req registerAccountRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	account, err := h.accounts.RegisterAccount(r.Context(), caller, services.NewAccount{
		ID:          req.ID,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Role:        models.Role(req.Role),
	})
	if err != nil {
		SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// PublishListing registers a listing owned by the caller
// @Summary Publish listing
// @Tags Listings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body publishListingRequest true "Listing"
// @Success 201 {object} models.Listing
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /listings [post]
func (h *AccountHandler) PublishListing(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req publishListingRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	listing, err := h.accounts.PublishListing(r.Context(), caller, services.NewListing{
		ID:        req.ID,
		Title:     req.Title,
		UnitPrice: req.UnitPrice,
		Stock:     req.Stock,
	})
	if err != nil {
		SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, listing)
}

// GetListing returns one listing
// @Summary Get listing
// @Tags Listings
// @Produce json
// @Security BearerAuth
// @Param listingId path string true "Listing ID"
// @Success 200 {object} models.Listing
// @Failure 404 {object} ErrorResponse
// @Router /listings/{listingId} [get]
func (h *AccountHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	listing, err := h.accounts.GetListing(r.Context(), chi.URLParam(r, "listingId"))
	if err != nil {
		SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// Restock sets the stock of a listing the caller owns
// @Summary Restock listing
// @Tags Listings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param listingId path string true "Listing ID"
// @Param request body restockRequest true "Stock"
// @Success 200 {object} models.Listing
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /listings/{listingId}/stock [put]
func (h *AccountHandler) Restock(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req restockRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}

	listing, err := h.accounts.Restock(r.Context(), caller, chi.URLParam(r, "listingId"), req.Stock)
	if err != nil {
		SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}
