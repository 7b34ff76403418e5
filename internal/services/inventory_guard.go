package services

import (
	"context"

	"github.com/ruralpay/marketplace/internal/database"
	"github.com/ruralpay/marketplace/internal/domainerr"
	"github.com/ruralpay/marketplace/internal/models"
)

// InventoryGuard reserves listing stock inside a checkout unit.
type InventoryGuard struct{}

func NewInventoryGuard() *InventoryGuard {
	return &InventoryGuard{}
}

// Reserve locks the listing, checks it can supply quantity units and
// decrements its stock. It never commits on its own: the reservation lives or
// dies with the caller's unit. The returned listing carries the price read
// under the lock.
func (g *InventoryGuard) Reserve(ctx context.Context, tx database.Tx, listingID string, quantity int64) (*models.Listing, error) {
	if quantity <= 0 {
		return nil, domainerr.Newf(domainerr.CodeInvalidQuantity, "quantity for listing %s must be positive", listingID)
	}

	listing, err := tx.GetListingForUpdate(ctx, listingID)
	if err != nil {
		return nil, err
	}

	if !listing.Available {
		return nil, domainerr.Newf(domainerr.CodeUnavailable, "listing %s is not available", listingID)
	}

	if quantity > listing.Stock {
		return nil, domainerr.Newf(domainerr.CodeOutOfStock, "listing %s has %d units, %d requested", listingID, listing.Stock, quantity)
	}

	if err := tx.UpdateListingStock(ctx, listing.ID, listing.Stock-quantity); err != nil {
		return nil, err
	}
	listing.Stock -= quantity
	return listing, nil
}
