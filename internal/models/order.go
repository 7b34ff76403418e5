package models

import "time"

// OrderStatus is a state of the order lifecycle.
type OrderStatus string

const (
	OrderStatusPaid       OrderStatus = "PAID"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPaid, OrderStatusProcessing, OrderStatusShipped, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// Order is the result of a checkout. Money side effects are recorded as ledger entries.
type Order struct {
	ID         string      `json:"id" db:"id"`
	BuyerID    string      `json:"buyer_id" db:"buyer_id"`
	Total      int64       `json:"total" db:"total"`
	Commission int64       `json:"commission" db:"commission"`
	Status     OrderStatus `json:"status" db:"status"`
	Items      []OrderItem `json:"items"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at" db:"updated_at"`
}

// OrderItem freezes a listing's price and owner at purchase time.
type OrderItem struct {
	ID        string      `json:"id" db:"id"`
	OrderID   string      `json:"order_id" db:"order_id"`
	ListingID string      `json:"listing_id" db:"listing_id"`
	SellerID  string      `json:"seller_id" db:"seller_id"`
	Quantity  int64       `json:"quantity" db:"quantity"`
	UnitPrice int64       `json:"unit_price" db:"unit_price"`
	Status    OrderStatus `json:"status" db:"status"`
}

// Subtotal is the item's frozen price times quantity. Checkout rejects
// items whose subtotal would overflow, so stored items never do.
func (i OrderItem) Subtotal() int64 {
	return i.UnitPrice * i.Quantity
}

// SellerIDs returns the distinct sellers of the order in first-seen order.
func (o *Order) SellerIDs() []string {
	seen := make(map[string]bool, len(o.Items))
	var ids []string
	for _, item := range o.Items {
		if !seen[item.SellerID] {
			seen[item.SellerID] = true
			ids = append(ids, item.SellerID)
		}
	}
	return ids
}

// HasSeller reports whether sellerID owns any item of the order.
func (o *Order) HasSeller(sellerID string) bool {
	for _, item := range o.Items {
		if item.SellerID == sellerID {
			return true
		}
	}
	return false
}

// CartItem is one requested line of a checkout.
type CartItem struct {
	ListingID string `json:"listing_id" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
}
