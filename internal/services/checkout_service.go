package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/ruralpay/marketplace/internal/database"
	"github.com/ruralpay/marketplace/internal/domainerr"
	"github.com/ruralpay/marketplace/internal/models"
)

// CheckoutService runs the atomic place-order workflow.
type CheckoutService struct {
	store  database.Store
	ledger *Ledger
	guard  *InventoryGuard
	audit  *AuditLogger
	events dispatcher
	log    zerolog.Logger
}

func NewCheckoutService(deps Deps) *CheckoutService {
	log := deps.Log.With().Str("component", "checkout").Logger()
	return &CheckoutService{
		store:  deps.Store,
		ledger: deps.Ledger,
		guard:  NewInventoryGuard(),
		audit:  NewAuditLogger(deps.Log),
		events: deps.dispatcher("checkout"),
		log:    log,
	}
}

// cartLine is one listing after duplicate lines have been merged.
type cartLine struct {
	listingID string
	quantity  int64
}

// mergeCart validates quantities and folds repeated listings into one line,
// keeping first-seen order.
func mergeCart(items []models.CartItem) ([]cartLine, error) {
	if len(items) == 0 {
		return nil, domainerr.New(domainerr.CodeInvalidQuantity, "cart is empty")
	}
	index := make(map[string]int, len(items))
	var lines []cartLine
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, domainerr.Newf(domainerr.CodeInvalidQuantity, "quantity for listing %s must be positive", item.ListingID)
		}
		if i, ok := index[item.ListingID]; ok {
			merged, ok := models.AddAmount(lines[i].quantity, item.Quantity)
			if !ok {
				return nil, domainerr.Newf(domainerr.CodeInvalidQuantity, "quantity for listing %s is too large", item.ListingID)
			}
			lines[i].quantity = merged
			continue
		}
		index[item.ListingID] = len(lines)
		lines = append(lines, cartLine{listingID: item.ListingID, quantity: item.Quantity})
	}
	return lines, nil
}

// addLine adds price × quantity to sum, rejecting totals that overflow.
func addLine(sum int64, listing *models.Listing, quantity int64) (int64, error) {
	line, ok := models.MulAmount(listing.UnitPrice, quantity)
	if ok {
		sum, ok = models.AddAmount(sum, line)
	}
	if !ok {
		return 0, domainerr.Newf(domainerr.CodeInvalidAmount, "order total overflows at listing %s", listing.ID)
	}
	return sum, nil
}

// PlaceOrder reserves stock, debits the buyer, creates the PAID order and
// opens one escrow hold per seller, all in one unit. Prices come from the
// listings, never from the caller.
func (s *CheckoutService) PlaceOrder(ctx context.Context, buyer Identity, items []models.CartItem) (*models.Order, error) {
	if err := Authorize(buyer, CapUseWallet, AccountResource(buyer.AccountID)); err != nil {
		return nil, err
	}

	lines, err := mergeCart(items)
	if err != nil {
		return nil, err
	}

	// Reserve in listing id order so concurrent checkouts lock rows consistently.
	lockOrder := make([]cartLine, len(lines))
	copy(lockOrder, lines)
	sort.Slice(lockOrder, func(i, j int) bool { return lockOrder[i].listingID < lockOrder[j].listingID })

	var order *models.Order
	var holds []*models.LedgerEntry
	var payment *models.LedgerEntry

	err = s.store.RunInTx(ctx, func(tx database.Tx) error {
		order, holds, payment = nil, nil, nil

		reserved := make(map[string]*models.Listing, len(lines))
		var total int64
		for _, line := range lockOrder {
			listing, err := s.guard.Reserve(ctx, tx, line.listingID, line.quantity)
			if err != nil {
				return err
			}
			reserved[line.listingID] = listing
			if total, err = addLine(total, listing, line.quantity); err != nil {
				return err
			}
		}

		if err := s.ledger.Debit(ctx, tx, buyer.AccountID, total); err != nil {
			return err
		}

		o := &models.Order{
			ID:      uuid.NewString(),
			BuyerID: buyer.AccountID,
			Total:   total,
			Status:  models.OrderStatusPaid,
		}
		var sellers []string
		subtotals := make(map[string]int64)
		for _, line := range lines {
			listing := reserved[line.listingID]
			o.Items = append(o.Items, models.OrderItem{
				ID:        uuid.NewString(),
				OrderID:   o.ID,
				ListingID: listing.ID,
				SellerID:  listing.OwnerID,
				Quantity:  line.quantity,
				UnitPrice: listing.UnitPrice,
				Status:    models.OrderStatusPaid,
			})
			if _, seen := subtotals[listing.OwnerID]; !seen {
				sellers = append(sellers, listing.OwnerID)
			}
			subtotal, err := addLine(subtotals[listing.OwnerID], listing, line.quantity)
			if err != nil {
				return err
			}
			subtotals[listing.OwnerID] = subtotal
		}

		commission, shares := s.ledger.SplitOrder(sellers, subtotals)
		o.Commission = commission

		if err := tx.CreateOrder(ctx, o); err != nil {
			return err
		}

		p := &models.LedgerEntry{
			Amount:      -total,
			Kind:        models.EntryKindPayment,
			Status:      models.EntryStatusCompleted,
			SenderID:    buyer.AccountID,
			OrderID:     o.ID,
			Description: fmt.Sprintf("Payment for order %s", o.ID),
		}
		if err := s.ledger.AppendEntry(ctx, tx, p); err != nil {
			return err
		}

		var opened []*models.LedgerEntry
		for _, share := range shares {
			hold := &models.LedgerEntry{
				Amount:      share.Amount,
				Kind:        models.EntryKindSale,
				Status:      models.EntryStatusPending,
				ReceiverID:  share.SellerID,
				OrderID:     o.ID,
				Description: fmt.Sprintf("Escrow for order %s", o.ID),
			}
			if err := s.ledger.AppendEntry(ctx, tx, hold); err != nil {
				return err
			}
			opened = append(opened, hold)
		}

		if platformID := s.ledger.PlatformAccountID(); platformID != "" && commission > 0 {
			fee := &models.LedgerEntry{
				Amount:      commission,
				Kind:        models.EntryKindCommission,
				Status:      models.EntryStatusPending,
				ReceiverID:  platformID,
				OrderID:     o.ID,
				Description: fmt.Sprintf("Commission for order %s", o.ID),
			}
			if err := s.ledger.AppendEntry(ctx, tx, fee); err != nil {
				return err
			}
			opened = append(opened, fee)
		}

		order, holds, payment = o, opened, p
		return nil
	})
	if err != nil {
		s.audit.LogError("CHECKOUT", "", buyer.AccountID, err)
		return nil, err
	}

	s.audit.LogMovement(string(payment.Kind), payment.ID, order.ID, buyer.AccountID, "", payment.Amount, string(payment.Status))
	for _, hold := range holds {
		s.audit.LogMovement(string(hold.Kind), hold.ID, order.ID, "", hold.ReceiverID, hold.Amount, string(hold.Status))
	}
	s.log.Info().Str("order_id", order.ID).Str("buyer_id", order.BuyerID).Int64("total", order.Total).
		Int64("commission", order.Commission).Int("items", len(order.Items)).Msg("Order placed")

	s.events.emit(ctx, Event{
		Type:      EventOrderCreated,
		OrderID:   order.ID,
		AccountID: order.BuyerID,
		Amount:    order.Total,
		Status:    string(order.Status),
	})

	return order, nil
}
