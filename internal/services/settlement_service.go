package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/ruralpay/marketplace/internal/database"
	"github.com/ruralpay/marketplace/internal/domainerr"
	"github.com/ruralpay/marketplace/internal/models"
)

// statusRank orders the forward shipment states.
var statusRank = map[models.OrderStatus]int{
	models.OrderStatusPaid:       0,
	models.OrderStatusProcessing: 1,
	models.OrderStatusShipped:    2,
}

// SettlementService drives order status and releases escrow holds.
type SettlementService struct {
	store  database.Store
	ledger *Ledger
	audit  *AuditLogger
	events dispatcher
	log    zerolog.Logger
}

func NewSettlementService(deps Deps) *SettlementService {
	return &SettlementService{
		store:  deps.Store,
		ledger: deps.Ledger,
		audit:  NewAuditLogger(deps.Log),
		events: deps.dispatcher("settlement"),
		log:    deps.Log.With().Str("component", "settlement").Logger(),
	}
}

// ConfirmReceipt completes the order and credits every seller's escrow hold
// exactly once. A seller without a pending hold aborts the whole unit.
func (s *SettlementService) ConfirmReceipt(ctx context.Context, caller Identity, orderID string) (*models.Order, error) {
	var order *models.Order
	var released []models.LedgerEntry

	err := s.store.RunInTx(ctx, func(tx database.Tx) error {
		order, released = nil, nil

		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := Authorize(caller, CapConfirmReceipt, OrderResource(o)); err != nil {
			return err
		}
		if o.Status == models.OrderStatusCompleted {
			return domainerr.Newf(domainerr.CodeAlreadyCompleted, "order %s already completed", o.ID)
		}
		if o.Status != models.OrderStatusPaid && o.Status != models.OrderStatusShipped {
			return domainerr.Newf(domainerr.CodeNotReady, "order %s is %s", o.ID, o.Status)
		}

		if err := tx.UpdateOrderStatus(ctx, o.ID, models.OrderStatusCompleted); err != nil {
			return err
		}
		for i := range o.Items {
			if err := tx.UpdateOrderItemStatus(ctx, o.ID, o.Items[i].ID, models.OrderStatusCompleted); err != nil {
				return err
			}
			o.Items[i].Status = models.OrderStatusCompleted
		}
		o.Status = models.OrderStatusCompleted

		var out []models.LedgerEntry
		for _, sellerID := range o.SellerIDs() {
			entry, err := s.release(ctx, tx, o.ID, sellerID, models.EntryKindSale)
			if err != nil {
				return err
			}
			out = append(out, *entry)
		}

		entries, err := tx.ListEntriesByOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.Kind != models.EntryKindCommission || e.Status != models.EntryStatusPending {
				continue
			}
			entry, err := s.release(ctx, tx, o.ID, e.ReceiverID, models.EntryKindCommission)
			if err != nil {
				return err
			}
			out = append(out, *entry)
		}

		order, released = o, out
		return nil
	})
	if err != nil {
		s.audit.LogError("CONFIRM_RECEIPT", orderID, caller.AccountID, err)
		return nil, err
	}

	events := make([]Event, 0, len(released)+1)
	for _, e := range released {
		s.audit.LogMovement(string(e.Kind), e.ID, order.ID, "", e.ReceiverID, e.Amount, string(e.Status))
		events = append(events, Event{
			Type:          EventEscrowReleased,
			OrderID:       order.ID,
			TransactionID: e.ID,
			AccountID:     e.ReceiverID,
			Amount:        e.Amount,
			Status:        string(e.Status),
		})
	}
	events = append(events, Event{
		Type:      EventOrderStatusChanged,
		OrderID:   order.ID,
		AccountID: order.BuyerID,
		Status:    string(order.Status),
	})
	s.log.Info().Str("order_id", order.ID).Int("released", len(released)).Msg("Escrow released")
	s.events.emit(ctx, events...)

	return order, nil
}

// release locks the pending hold for (order, receiver), marks it COMPLETED and
// credits the receiver.
func (s *SettlementService) release(ctx context.Context, tx database.Tx, orderID, receiverID string, kind models.EntryKind) (*models.LedgerEntry, error) {
	entry, err := tx.FindPendingEntryForUpdate(ctx, orderID, receiverID, kind)
	if errors.Is(err, domainerr.ErrNotFound) {
		return nil, domainerr.Wrap(domainerr.CodeEscrowMissing, "settle order "+orderID+" for "+receiverID, err)
	}
	if err != nil {
		return nil, err
	}
	if err := tx.UpdateEntryStatus(ctx, entry.ID, models.EntryStatusCompleted); err != nil {
		return nil, err
	}
	if err := s.ledger.Credit(ctx, tx, receiverID, entry.Amount); err != nil {
		return nil, err
	}
	entry.Status = models.EntryStatusCompleted
	return entry, nil
}

func sellerTarget(status models.OrderStatus) error {
	if status != models.OrderStatusProcessing && status != models.OrderStatusShipped {
		return domainerr.Newf(domainerr.CodeInvalidTransition, "sellers may not set status %s", status)
	}
	return nil
}

func sellerMayAdvance(from, to models.OrderStatus) error {
	if from != models.OrderStatusPaid && from != models.OrderStatusProcessing {
		return domainerr.Newf(domainerr.CodeInvalidTransition, "cannot move from %s to %s", from, to)
	}
	return nil
}

// UpdateOrderStatus lets a seller of the order mark it PROCESSING or SHIPPED.
// The seller's own items follow. No money moves.
func (s *SettlementService) UpdateOrderStatus(ctx context.Context, caller Identity, orderID string, status models.OrderStatus) (*models.Order, error) {
	if err := sellerTarget(status); err != nil {
		return nil, err
	}

	var order *models.Order
	err := s.store.RunInTx(ctx, func(tx database.Tx) error {
		order = nil

		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := Authorize(caller, CapAdvanceShipment, OrderResource(o)); err != nil {
			return err
		}
		if err := sellerMayAdvance(o.Status, status); err != nil {
			return err
		}

		if err := tx.UpdateOrderStatus(ctx, o.ID, status); err != nil {
			return err
		}
		o.Status = status

		for i, item := range o.Items {
			rank, forward := statusRank[item.Status]
			if item.SellerID != caller.AccountID || !forward || rank >= statusRank[status] {
				continue
			}
			if err := tx.UpdateOrderItemStatus(ctx, o.ID, item.ID, status); err != nil {
				return err
			}
			o.Items[i].Status = status
		}

		order = o
		return nil
	})
	if err != nil {
		s.audit.LogError("UPDATE_ORDER_STATUS", orderID, caller.AccountID, err)
		return nil, err
	}

	s.audit.LogOperation("UPDATE_ORDER_STATUS", order.ID, caller.AccountID, string(status))
	s.events.emit(ctx, Event{Type: EventOrderStatusChanged, OrderID: order.ID, AccountID: order.BuyerID, Status: string(order.Status)})
	return order, nil
}

// UpdateOrderItemStatus lets the seller of one item mark it PROCESSING or
// SHIPPED. The order advances to the least advanced item status once every
// item has moved past it.
func (s *SettlementService) UpdateOrderItemStatus(ctx context.Context, caller Identity, orderID, itemID string, status models.OrderStatus) (*models.Order, error) {
	if err := sellerTarget(status); err != nil {
		return nil, err
	}

	var order *models.Order
	orderChanged := false
	err := s.store.RunInTx(ctx, func(tx database.Tx) error {
		order, orderChanged = nil, false

		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		idx := -1
		for i := range o.Items {
			if o.Items[i].ID == itemID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return domainerr.Newf(domainerr.CodeNotFound, "order item %s not found", itemID)
		}

		if err := Authorize(caller, CapAdvanceShipment, ItemResource(o, o.Items[idx])); err != nil {
			return err
		}
		if o.Status.Terminal() {
			return domainerr.Newf(domainerr.CodeInvalidTransition, "order %s is %s", o.ID, o.Status)
		}
		if err := sellerMayAdvance(o.Items[idx].Status, status); err != nil {
			return err
		}

		if err := tx.UpdateOrderItemStatus(ctx, o.ID, itemID, status); err != nil {
			return err
		}
		o.Items[idx].Status = status

		floor := models.OrderStatusShipped
		for _, item := range o.Items {
			if statusRank[item.Status] < statusRank[floor] {
				floor = item.Status
			}
		}
		if statusRank[floor] > statusRank[o.Status] {
			if err := tx.UpdateOrderStatus(ctx, o.ID, floor); err != nil {
				return err
			}
			o.Status = floor
			orderChanged = true
		}

		order = o
		return nil
	})
	if err != nil {
		s.audit.LogError("UPDATE_ITEM_STATUS", orderID, caller.AccountID, err)
		return nil, err
	}

	s.audit.LogOperation("UPDATE_ITEM_STATUS", itemID, caller.AccountID, string(status))
	if orderChanged {
		s.events.emit(ctx, Event{Type: EventOrderStatusChanged, OrderID: order.ID, AccountID: order.BuyerID, Status: string(order.Status)})
	}
	return order, nil
}

// ForceOrderStatus is the admin override. It can reach any status except
// COMPLETED, which only buyer confirmation may set, and never leaves a
// terminal status. Cancelling reverses no money.
func (s *SettlementService) ForceOrderStatus(ctx context.Context, caller Identity, orderID string, status models.OrderStatus) (*models.Order, error) {
	if err := Authorize(caller, CapManageLedger, Resource{}); err != nil {
		return nil, err
	}
	if !status.Valid() || status == models.OrderStatusCompleted {
		return nil, domainerr.Newf(domainerr.CodeInvalidTransition, "cannot force status %s", status)
	}

	var order *models.Order
	err := s.store.RunInTx(ctx, func(tx database.Tx) error {
		order = nil

		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status == models.OrderStatusCompleted {
			return domainerr.Newf(domainerr.CodeAlreadyCompleted, "order %s already completed", o.ID)
		}
		if o.Status.Terminal() {
			return domainerr.Newf(domainerr.CodeInvalidTransition, "order %s is %s", o.ID, o.Status)
		}

		if err := tx.UpdateOrderStatus(ctx, o.ID, status); err != nil {
			return err
		}
		for i := range o.Items {
			if err := tx.UpdateOrderItemStatus(ctx, o.ID, o.Items[i].ID, status); err != nil {
				return err
			}
			o.Items[i].Status = status
		}
		o.Status = status

		order = o
		return nil
	})
	if err != nil {
		s.audit.LogError("FORCE_ORDER_STATUS", orderID, caller.AccountID, err)
		return nil, err
	}

	s.audit.LogOperation("FORCE_ORDER_STATUS", order.ID, caller.AccountID, string(status))
	s.events.emit(ctx, Event{Type: EventOrderStatusChanged, OrderID: order.ID, AccountID: order.BuyerID, Status: string(order.Status)})
	return order, nil
}

// GetOrder returns the order to its buyer, its sellers or an admin.
func (s *SettlementService) GetOrder(ctx context.Context, caller Identity, orderID string) (*models.Order, error) {
	var order *models.Order
	err := s.store.View(ctx, func(tx database.Tx) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := Authorize(caller, CapViewOrder, OrderResource(o)); err != nil {
			return err
		}
		order = o
		return nil
	})
	return order, err
}

// OrderLedger returns every ledger entry referencing the order.
func (s *SettlementService) OrderLedger(ctx context.Context, caller Identity, orderID string) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := s.store.View(ctx, func(tx database.Tx) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := Authorize(caller, CapViewOrder, OrderResource(o)); err != nil {
			return err
		}
		entries, err = tx.ListEntriesByOrder(ctx, orderID)
		return err
	})
	return entries, err
}
