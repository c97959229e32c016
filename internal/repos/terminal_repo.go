package repos

import (
	"tillsync/internal/domain"

	"github.com/jmoiron/sqlx"
)

type TerminalRepo struct{ DB *sqlx.DB }

func NewTerminalRepo(db *sqlx.DB) *TerminalRepo { return &TerminalRepo{DB: db} }

func (r *TerminalRepo) ByID(id string) (*domain.Terminal, error) {
	var t domain.Terminal
	err := r.DB.Get(&t, `SELECT id,name,key_hash,created_at FROM terminals WHERE id=?`, id)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
