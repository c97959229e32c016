package repos

import (
	"tillsync/internal/domain"

	"github.com/jmoiron/sqlx"
)

type ProductRepo struct{ db *sqlx.DB }

func NewProductRepo(db *sqlx.DB) *ProductRepo { return &ProductRepo{db: db} }

func (r *ProductRepo) Get(id string) (domain.Product, error) {
	var p domain.Product
	err := r.db.Get(&p, `
	  SELECT id, name, stock, low_stock_threshold,
	         created_at, COALESCE(updated_at,'') AS updated_at
	  FROM products
	  WHERE id = ?
	`, id)
	return p, err
}

func (r *ProductRepo) List() ([]domain.Product, error) {
	var out []domain.Product
	err := r.db.Select(&out, `
	  SELECT id, name, stock, low_stock_threshold,
	         created_at, COALESCE(updated_at,'') AS updated_at
	  FROM products
	  ORDER BY name
	`)
	return out, err
}

// ListLowStock returns products below their own threshold, plus anything at
// zero regardless of threshold.
func (r *ProductRepo) ListLowStock() ([]domain.Product, error) {
	var out []domain.Product
	err := r.db.Select(&out, `
	  SELECT id, name, stock, low_stock_threshold,
	         created_at, COALESCE(updated_at,'') AS updated_at
	  FROM products
	  WHERE stock < low_stock_threshold OR stock = 0
	  ORDER BY name
	`)
	return out, err
}
