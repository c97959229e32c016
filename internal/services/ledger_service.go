package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"tillsync/internal/domain"
	"tillsync/internal/repos"

	"github.com/google/uuid"
)

// Publisher receives one change event per committed adjustment. The hub
// implements it; tests use fakes.
type Publisher interface {
	Publish(ev domain.ChangeEvent)
}

type AdjustRequest struct {
	ProductID        string
	Direction        string // add | remove
	Magnitude        int
	Note             string
	PrincipalID      string
	IdempotencyToken string
}

type AdjustResult struct {
	Product        domain.Product
	Transaction    domain.InventoryTransaction
	AlreadyApplied bool
}

// LedgerService is the only component allowed to mutate stock. Adjustments
// on the same product serialize through a per-product lock; different
// products proceed independently.
type LedgerService struct {
	Ledger   *repos.LedgerRepo
	Products *repos.ProductRepo
	Events   Publisher // optional

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLedgerService(ledger *repos.LedgerRepo, products *repos.ProductRepo, events Publisher) *LedgerService {
	return &LedgerService{Ledger: ledger, Products: products, Events: events, locks: map[string]*sync.Mutex{}}
}

func (s *LedgerService) lockFor(productID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[productID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[productID] = l
	}
	return l
}

// AdjustStock applies one adjustment. A replayed idempotency token
// short-circuits to the original result instead of double-applying; a
// remove that would drive stock negative fails with ErrInsufficientStock
// and mutates nothing.
func (s *LedgerService) AdjustStock(ctx context.Context, req AdjustRequest) (AdjustResult, error) {
	if req.Magnitude < 1 || req.ProductID == "" || req.IdempotencyToken == "" ||
		(req.Direction != domain.DirectionAdd && req.Direction != domain.DirectionRemove) {
		return AdjustResult{}, domain.ErrBadAdjustment
	}

	l := s.lockFor(req.ProductID)
	l.Lock()
	defer l.Unlock()

	prior, err := s.Ledger.ByToken(ctx, req.IdempotencyToken)
	if err != nil && err != sql.ErrNoRows {
		return AdjustResult{}, err
	}
	if err == nil {
		p, perr := s.Products.Get(prior.ProductID)
		if perr != nil {
			return AdjustResult{}, perr
		}
		return AdjustResult{Product: p, Transaction: prior, AlreadyApplied: true}, nil
	}

	t := domain.InventoryTransaction{
		ID:               uuid.NewString(),
		ProductID:        req.ProductID,
		Direction:        req.Direction,
		Magnitude:        req.Magnitude,
		Note:             req.Note,
		PrincipalID:      req.PrincipalID,
		IdempotencyToken: req.IdempotencyToken,
	}
	stock, err := s.Ledger.Apply(ctx, t)
	if err != nil {
		return AdjustResult{}, err
	}
	t.StockAfter = stock

	p, err := s.Products.Get(req.ProductID)
	if err != nil {
		return AdjustResult{}, err
	}

	// Published under the product lock so fanout order matches commit order.
	if s.Events != nil {
		s.Events.Publish(domain.ChangeEvent{
			Resource:  "inventory",
			ProductID: req.ProductID,
			Origin:    req.PrincipalID,
		})
	}

	return AdjustResult{Product: p, Transaction: t}, nil
}

// GetHistory returns the full adjustment sequence for a product, newest
// last.
func (s *LedgerService) GetHistory(ctx context.Context, productID string) ([]domain.InventoryTransaction, error) {
	if _, err := s.Products.Get(productID); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrUnknownProduct
		}
		return nil, err
	}
	return s.Ledger.History(ctx, productID)
}

// GetLowStock returns products with stock below their own threshold, plus
// anything at zero.
func (s *LedgerService) GetLowStock(ctx context.Context) ([]domain.Product, error) {
	return s.Products.ListLowStock()
}

// ListProducts is the dashboard read path.
func (s *LedgerService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.Products.List()
}

func (s *LedgerService) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	p, err := s.Products.Get(productID)
	if err == sql.ErrNoRows {
		return domain.Product{}, domain.ErrUnknownProduct
	}
	return p, err
}

// adjustPayload is the wire shape shared by the HTTP endpoint and the
// websocket sync_operation path.
type adjustPayload struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Type      string `json:"type"`
	Notes     string `json:"notes"`
}

// Apply replays a queued operation received over the realtime channel. The
// operation id doubles as the idempotency token, so a replay after a lost
// ack resolves to the original transaction.
func (s *LedgerService) Apply(ctx context.Context, terminalID string, op domain.SyncOperation) error {
	if op.Resource != "inventory" {
		return fmt.Errorf("unsupported resource %q", op.Resource)
	}
	var body adjustPayload
	if err := json.Unmarshal(op.Payload, &body); err != nil {
		return domain.ErrBadAdjustment
	}
	_, err := s.AdjustStock(ctx, AdjustRequest{
		ProductID:        body.ProductID,
		Direction:        body.Type,
		Magnitude:        body.Quantity,
		Note:             body.Notes,
		PrincipalID:      terminalID,
		IdempotencyToken: op.ID,
	})
	return err
}
