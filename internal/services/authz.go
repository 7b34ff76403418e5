package services

import (
	"slices"

	"github.com/ruralpay/marketplace/internal/domainerr"
	"github.com/ruralpay/marketplace/internal/models"
)

// Identity is the authenticated caller as supplied by the auth subsystem.
type Identity struct {
	AccountID string
	Role      models.Role
}

// IsAdmin reports whether the caller holds the admin role.
func (id Identity) IsAdmin() bool {
	return id.Role == models.RoleAdmin
}

// Capability names an action the core guards.
type Capability string

const (
	CapUseWallet       Capability = "wallet:use"
	CapViewOrder       Capability = "order:view"
	CapConfirmReceipt  Capability = "order:confirm"
	CapAdvanceShipment Capability = "order:ship"
	CapManageLedger    Capability = "ledger:manage"
	CapManageListing   Capability = "listing:manage"
)

// Resource describes who is attached to the thing being acted on.
type Resource struct {
	OwnerID   string
	BuyerID   string
	SellerIDs []string
}

// AccountResource is a wallet owned by accountID.
func AccountResource(accountID string) Resource {
	return Resource{OwnerID: accountID}
}

// OrderResource exposes the buyer and every seller of an order.
func OrderResource(order *models.Order) Resource {
	return Resource{BuyerID: order.BuyerID, SellerIDs: order.SellerIDs()}
}

// ItemResource narrows an order to the seller of one item.
func ItemResource(order *models.Order, item models.OrderItem) Resource {
	return Resource{BuyerID: order.BuyerID, SellerIDs: []string{item.SellerID}}
}

// Authorize is the single permission check used by checkout, settlement and wallet flows.
func Authorize(id Identity, capability Capability, res Resource) error {
	if id.AccountID == "" {
		return domainerr.New(domainerr.CodeUnauthorized, "caller identity missing")
	}

	allowed := false
	switch capability {
	case CapUseWallet:
		allowed = id.Role != models.RolePlatform && id.AccountID == res.OwnerID
	case CapViewOrder:
		allowed = id.IsAdmin() || id.AccountID == res.BuyerID || slices.Contains(res.SellerIDs, id.AccountID)
	case CapConfirmReceipt:
		allowed = id.AccountID == res.BuyerID
	case CapAdvanceShipment:
		allowed = slices.Contains(res.SellerIDs, id.AccountID)
	case CapManageLedger:
		allowed = id.IsAdmin()
	case CapManageListing:
		allowed = id.Role != models.RolePlatform && id.AccountID == res.OwnerID
	}

	if !allowed {
		return domainerr.Newf(domainerr.CodeUnauthorized, "account %s lacks %s", id.AccountID, capability)
	}
	return nil
}
