package handlers

import (
	"tillsync/internal/config"
	"tillsync/internal/repos"
	"tillsync/internal/services"

	"github.com/jmoiron/sqlx"
)

type Deps struct {
	InventoryHandler *InventoryHandler
	ProductHandler   *ProductHandler

	// Ledger is exposed so main can hand it to the hub as its applier.
	Ledger *services.LedgerService
	Auth   *services.TerminalAuthService
}

func NewDeps(db *sqlx.DB, cfg config.Config, events services.Publisher) *Deps {
	prodRepo := repos.NewProductRepo(db)
	ledgerRepo := repos.NewLedgerRepo(db)
	termRepo := repos.NewTerminalRepo(db)

	ledgerSvc := services.NewLedgerService(ledgerRepo, prodRepo, events)
	authSvc := &services.TerminalAuthService{Terminals: termRepo}

	return &Deps{
		InventoryHandler: &InventoryHandler{Ledger: ledgerSvc},
		ProductHandler:   &ProductHandler{Ledger: ledgerSvc},
		Ledger:           ledgerSvc,
		Auth:             authSvc,
	}
}
