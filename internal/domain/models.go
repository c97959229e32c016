package domain

import (
	"encoding/json"
	"errors"
)

// Adjustment directions.
const (
	DirectionAdd    = "add"
	DirectionRemove = "remove"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrUnknownProduct    = errors.New("unknown product")
	ErrBadAdjustment     = errors.New("invalid adjustment")
)

type Product struct {
	ID                string `db:"id" json:"id"`
	Name              string `db:"name" json:"name"`
	Stock             int    `db:"stock" json:"stock"`
	LowStockThreshold int    `db:"low_stock_threshold" json:"low_stock_threshold"`
	CreatedAt         string `db:"created_at" json:"created_at"`
	UpdatedAt         string `db:"updated_at" json:"updated_at,omitempty"`
}

// InventoryTransaction is an immutable audit record. Stock is only ever
// mutated through the ledger, so the transaction sequence of a product
// reconstructs its stock over time.
type InventoryTransaction struct {
	ID               string `db:"id" json:"id"`
	ProductID        string `db:"product_id" json:"product_id"`
	Direction        string `db:"direction" json:"direction"` // add | remove
	Magnitude        int    `db:"magnitude" json:"magnitude"`
	Note             string `db:"note" json:"note,omitempty"`
	PrincipalID      string `db:"principal_id" json:"principal_id"`
	IdempotencyToken string `db:"idempotency_token" json:"-"`
	StockAfter       int    `db:"stock_after" json:"stock_after"`
	CreatedAt        string `db:"created_at" json:"created_at"`
}

// Terminal is a registered point-of-sale device. The key hash backs the
// principal lookup for the audit trail.
type Terminal struct {
	ID        string `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	KeyHash   string `db:"key_hash" json:"-"`
	CreatedAt string `db:"created_at" json:"created_at"`
}

// ChangeEvent is the wire notification fanned out to connected terminals
// after a ledger commit. It is never persisted; the transaction log already
// carries the durable history.
type ChangeEvent struct {
	Type      string `json:"type"` // always "data_updated"
	Resource  string `json:"resource"`
	ProductID string `json:"product_id,omitempty"`
	Origin    string `json:"origin,omitempty"`
	Seq       uint64 `json:"seq"`
}

// Queued operation statuses. Acknowledged operations are deleted rather
// than parked in a terminal state.
const (
	OpPending  = "pending"
	OpInFlight = "in_flight"
	OpFailed   = "failed"
)

// QueuedOperation is a terminal-local durable write intention. Operations
// replay against the server in strict seq order.
type QueuedOperation struct {
	Seq              int64           `db:"seq" json:"-"`
	ID               string          `db:"id" json:"id"`
	Resource         string          `db:"resource" json:"resource"`
	Intent           string          `db:"intent" json:"intent"` // create | update | delete
	Payload          json.RawMessage `db:"payload" json:"payload"`
	IdempotencyToken string          `db:"idempotency_token" json:"idempotency_token"`
	RetryCount       int             `db:"retry_count" json:"retry_count"`
	Status           string          `db:"status" json:"status"`
	Reason           string          `db:"reason" json:"reason,omitempty"`
	CreatedAt        string          `db:"created_at" json:"created_at"`
}

// SyncOperation is the inbound websocket frame a terminal sends to replay a
// queued operation over the realtime channel.
type SyncOperation struct {
	Type     string          `json:"type"` // "sync_operation"
	ID       string          `json:"id"`
	Resource string          `json:"resource"`
	Payload  json.RawMessage `json:"payload"`
}

// SyncResult acknowledges a SyncOperation.
type SyncResult struct {
	Type    string `json:"type"` // "sync_result"
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
