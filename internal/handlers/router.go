package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	mW "github.com/ruralpay/marketplace/internal/middleware"
	"github.com/ruralpay/marketplace/internal/services"
	httpSwagger "github.com/swaggo/http-swagger"
)

// RouterConfig carries everything the HTTP surface needs.
type RouterConfig struct {
	Checkout    *services.CheckoutService
	Settlement  *services.SettlementService
	Wallet      *services.WalletService
	Accounts    *services.AccountService
	Auth        *mW.Authenticator
	Log         zerolog.Logger
	OpenAPIPath string
}

// NewRouter mounts the public and authenticated routes.
func NewRouter(cfg RouterConfig) http.Handler {
	orders := NewOrderHandler(cfg.Checkout, cfg.Settlement)
	wallet := NewWalletHandler(cfg.Wallet)
	admin := NewAdminHandler(cfg.Wallet, cfg.Settlement)
	accounts := NewAccountHandler(cfg.Accounts)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(mW.SecurityHeaders)
	r.Use(mW.RequestLogger(cfg.Log))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	if cfg.OpenAPIPath != "" {
		r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, cfg.OpenAPIPath)
		})
		r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cfg.Auth.Middleware)

		r.Post("/orders", orders.PlaceOrder)
		r.Get("/orders/{orderId}", orders.GetOrder)
		r.Get("/orders/{orderId}/ledger", orders.GetOrderLedger)
		r.Post("/orders/{orderId}/confirm", orders.ConfirmReceipt)
		r.Put("/orders/{orderId}/status", orders.UpdateOrderStatus)
		r.Put("/orders/{orderId}/items/{itemId}/status", orders.UpdateItemStatus)

		r.Post("/listings", accounts.PublishListing)
		r.Get("/listings/{listingId}", accounts.GetListing)
		r.Put("/listings/{listingId}/stock", accounts.Restock)

		r.Get("/wallet/balance", wallet.GetBalance)
		r.Get("/wallet/transactions", wallet.GetHistory)
		r.Post("/wallet/deposits", wallet.RequestDeposit)
		r.Post("/wallet/transfers", wallet.Transfer)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/accounts", accounts.RegisterAccount)
			r.Get("/deposits", admin.ListPendingDeposits)
			r.Post("/deposits/{txId}/approve", admin.ApproveDeposit)
			r.Post("/deposits/{txId}/reject", admin.RejectDeposit)
			r.Put("/orders/{orderId}/status", admin.ForceOrderStatus)
		})
	})

	return r
}
