package services

import (
	"context"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/ruralpay/marketplace/internal/database"
	"github.com/ruralpay/marketplace/internal/domainerr"
	"github.com/ruralpay/marketplace/internal/models"
)

const accountNumberAttempts = 5

// NewAccount is what the auth subsystem knows about a freshly registered user.
type NewAccount struct {
	ID          string
	Email       string
	PhoneNumber string
	Role        models.Role
}

// NewListing is a catalog item handed to the core for stock keeping.
type NewListing struct {
	ID        string
	Title     string
	UnitPrice int64
	Stock     int64
}

// AccountService opens wallets and registers listings for the auth and
// catalog subsystems. Balances always start at zero.
type AccountService struct {
	store database.Store
	audit *AuditLogger
	log   zerolog.Logger
}

func NewAccountService(deps Deps) *AccountService {
	return &AccountService{
		store: deps.Store,
		audit: NewAuditLogger(deps.Log),
		log:   deps.Log.With().Str("component", "accounts").Logger(),
	}
}

// RegisterAccount opens a zero-balance wallet with a fresh 10-digit account number.
func (s *AccountService) RegisterAccount(ctx context.Context, caller Identity, req NewAccount) (*models.Account, error) {
	if err := Authorize(caller, CapManageLedger, Resource{}); err != nil {
		return nil, err
	}
	if req.Role == "" {
		req.Role = models.RoleUser
	}
	if !req.Role.Valid() {
		return nil, domainerr.Newf(domainerr.CodeUnauthorized, "unknown role %q", req.Role)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	var account *models.Account
	err := s.store.RunInTx(ctx, func(tx database.Tx) error {
		account = nil

		for _, key := range []string{req.Email, req.PhoneNumber} {
			if key == "" {
				continue
			}
			if err := ensureUnused(ctx, tx, key); err != nil {
				return err
			}
		}
		if _, err := tx.GetAccount(ctx, req.ID); err == nil {
			return domainerr.Newf(domainerr.CodeAlreadyExists, "account %s already exists", req.ID)
		} else if domainerr.CodeOf(err) != domainerr.CodeNotFound {
			return err
		}

		number, err := freshAccountNumber(ctx, tx)
		if err != nil {
			return err
		}

		a := &models.Account{
			ID:            req.ID,
			AccountNumber: number,
			Email:         req.Email,
			PhoneNumber:   req.PhoneNumber,
			Role:          req.Role,
		}
		if err := tx.CreateAccount(ctx, a); err != nil {
			return err
		}
		account = a
		return nil
	})
	if err != nil {
		s.audit.LogError("ACCOUNT_REGISTER", req.ID, caller.AccountID, err)
		return nil, err
	}

	s.audit.LogOperation("ACCOUNT_REGISTER", account.AccountNumber, account.ID, string(account.Role))
	s.log.Info().Str("account_id", account.ID).Str("account_number", account.AccountNumber).Msg("Account registered")
	return account, nil
}

// PublishListing registers a listing owned by the caller.
func (s *AccountService) PublishListing(ctx context.Context, caller Identity, req NewListing) (*models.Listing, error) {
	if err := Authorize(caller, CapManageListing, AccountResource(caller.AccountID)); err != nil {
		return nil, err
	}
	if req.UnitPrice <= 0 || req.UnitPrice > models.MaxUnitPrice {
		return nil, domainerr.Newf(domainerr.CodeInvalidAmount, "unit price must be between 1 and %d", models.MaxUnitPrice)
	}
	if err := checkStock(req.Stock); err != nil {
		return nil, err
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	listing := &models.Listing{
		ID:        req.ID,
		OwnerID:   caller.AccountID,
		Title:     req.Title,
		UnitPrice: req.UnitPrice,
		Stock:     req.Stock,
		Available: true,
	}
	err := s.store.RunInTx(ctx, func(tx database.Tx) error {
		if _, err := tx.GetAccount(ctx, caller.AccountID); err != nil {
			return err
		}
		if _, err := tx.GetListing(ctx, listing.ID); err == nil {
			return domainerr.Newf(domainerr.CodeAlreadyExists, "listing %s already exists", listing.ID)
		} else if domainerr.CodeOf(err) != domainerr.CodeNotFound {
			return err
		}
		return tx.CreateListing(ctx, listing)
	})
	if err != nil {
		s.audit.LogError("LISTING_PUBLISH", req.ID, caller.AccountID, err)
		return nil, err
	}

	s.log.Info().Str("listing_id", listing.ID).Str("owner_id", listing.OwnerID).
		Int64("stock", listing.Stock).Msg("Listing published")
	return listing, nil
}

// Restock sets the stock of a listing the caller owns.
func (s *AccountService) Restock(ctx context.Context, caller Identity, listingID string, stock int64) (*models.Listing, error) {
	if err := checkStock(stock); err != nil {
		return nil, err
	}

	var listing *models.Listing
	err := s.store.RunInTx(ctx, func(tx database.Tx) error {
		listing = nil

		l, err := tx.GetListingForUpdate(ctx, listingID)
		if err != nil {
			return err
		}
		if err := Authorize(caller, CapManageListing, AccountResource(l.OwnerID)); err != nil {
			return err
		}
		if err := tx.UpdateListingStock(ctx, l.ID, stock); err != nil {
			return err
		}
		l.Stock = stock
		listing = l
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogOperation("LISTING_RESTOCK", listing.ID, caller.AccountID, "")
	return listing, nil
}

// GetListing returns a listing to any authenticated caller.
func (s *AccountService) GetListing(ctx context.Context, listingID string) (*models.Listing, error) {
	var listing *models.Listing
	err := s.store.View(ctx, func(tx database.Tx) error {
		l, err := tx.GetListing(ctx, listingID)
		listing = l
		return err
	})
	if err != nil {
		return nil, err
	}
	return listing, nil
}

func checkStock(stock int64) error {
	if stock < 0 || stock > models.MaxStock {
		return domainerr.Newf(domainerr.CodeInvalidQuantity, "stock must be between 0 and %d", models.MaxStock)
	}
	return nil
}

func ensureUnused(ctx context.Context, tx database.Tx, identifier string) error {
	_, err := tx.FindAccountByIdentifier(ctx, identifier)
	if err == nil {
		return domainerr.Newf(domainerr.CodeAlreadyExists, "%s is already registered", identifier)
	}
	if domainerr.CodeOf(err) == domainerr.CodeNotFound {
		return nil
	}
	return err
}

func freshAccountNumber(ctx context.Context, tx database.Tx) (string, error) {
	for range accountNumberAttempts {
		number := generateAccountNumber()
		_, err := tx.FindAccountByIdentifier(ctx, number)
		if domainerr.CodeOf(err) == domainerr.CodeNotFound {
			return number, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", domainerr.New(domainerr.CodeConflict, "could not allocate an account number")
}

// generateAccountNumber returns 10 digits with no leading zero.
func generateAccountNumber() string {
	const digits = "0123456789"
	b := make([]byte, 10)
	b[0] = digits[1+rand.IntN(9)]
	for i := 1; i < len(b); i++ {
		b[i] = digits[rand.IntN(len(digits))]
	}
	return string(b)
}
