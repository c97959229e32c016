package repos

import (
	"context"
	"database/sql"

	"tillsync/internal/domain"

	"github.com/jmoiron/sqlx"
)

type LedgerRepo struct{ db *sqlx.DB }

func NewLedgerRepo(db *sqlx.DB) *LedgerRepo { return &LedgerRepo{db: db} }

// ByToken looks up an already-applied transaction for an idempotency token.
// Returns sql.ErrNoRows when the token has never been applied.
func (r *LedgerRepo) ByToken(ctx context.Context, token string) (domain.InventoryTransaction, error) {
	var t domain.InventoryTransaction
	err := r.db.GetContext(ctx, &t, `
	  SELECT id, product_id, direction, magnitude, COALESCE(note,'') AS note,
	         principal_id, idempotency_token, stock_after, created_at
	  FROM inventory_transactions
	  WHERE idempotency_token = ?
	`, token)
	return t, err
}

// Apply atomically mutates the product's stock and appends the transaction
// record. A remove that would drive stock negative affects no rows and the
// whole transaction rolls back.
func (r *LedgerRepo) Apply(ctx context.Context, t domain.InventoryTransaction) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var res sql.Result
	if t.Direction == domain.DirectionAdd {
		res, err = tx.ExecContext(ctx, `
		  UPDATE products
		  SET stock = stock + ?, updated_at = CURRENT_TIMESTAMP
		  WHERE id = ?
		`, t.Magnitude, t.ProductID)
	} else {
		res, err = tx.ExecContext(ctx, `
		  UPDATE products
		  SET stock = stock - ?, updated_at = CURRENT_TIMESTAMP
		  WHERE id = ? AND stock >= ?
		`, t.Magnitude, t.ProductID, t.Magnitude)
	}
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		var exists int
		if err := tx.GetContext(ctx, &exists, `SELECT COUNT(*) FROM products WHERE id = ?`, t.ProductID); err != nil {
			return 0, err
		}
		if exists == 0 {
			return 0, domain.ErrUnknownProduct
		}
		return 0, domain.ErrInsufficientStock
	}

	var stock int
	if err := tx.GetContext(ctx, &stock, `SELECT stock FROM products WHERE id = ?`, t.ProductID); err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `
	  INSERT INTO inventory_transactions
	    (id, product_id, direction, magnitude, note, principal_id, idempotency_token, stock_after, created_at)
	  VALUES
	    (?,  ?,          ?,         ?,         ?,    ?,            ?,                 ?,           CURRENT_TIMESTAMP)
	`, t.ID, t.ProductID, t.Direction, t.Magnitude, t.Note, t.PrincipalID, t.IdempotencyToken, stock); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return stock, nil
}

// History returns the complete adjustment sequence for a product,
// oldest first.
func (r *LedgerRepo) History(ctx context.Context, productID string) ([]domain.InventoryTransaction, error) {
	var out []domain.InventoryTransaction
	err := r.db.SelectContext(ctx, &out, `
	  SELECT id, product_id, direction, magnitude, COALESCE(note,'') AS note,
	         principal_id, idempotency_token, stock_after, created_at
	  FROM inventory_transactions
	  WHERE product_id = ?
	  ORDER BY datetime(created_at), rowid
	`, productID)
	return out, err
}
