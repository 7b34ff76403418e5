package services

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/ruralpay/marketplace/internal/database"
)

// Deps are the collaborators shared by the ledger services.
type Deps struct {
	Store         database.Store
	Ledger        *Ledger
	Notifier      Notifier
	NotifyTimeout time.Duration
	Log           zerolog.Logger
}

func (d Deps) dispatcher(component string) dispatcher {
	return newDispatcher(d.Notifier, d.NotifyTimeout, d.Log.With().Str("component", component).Logger())
}
