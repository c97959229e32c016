package repos

import (
	"log"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

// DevTerminalKey is the key seeded for demo terminals. Local use only;
// deployed registries are provisioned out of band.
const DevTerminalKey = "Till-Key-1!"

func OpenDB(dsn string, seedDemo bool) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// Single writer connection: avoids SQLITE_BUSY under concurrent
	// adjustments and keeps :memory: databases coherent.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, err
	}

	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	if seedDemo {
		// Seed baseline products if DB is empty (idempotent)
		if err := seedIfEmpty(db); err != nil {
			return nil, err
		}
	}
	// Ensure terminals exist (idempotent; safe to run every start)
	if err := seedTerminals(db); err != nil {
		return nil, err
	}

	return db, nil
}

func ensureSchema(db *sqlx.DB) error {
	schema := `
PRAGMA foreign_keys = ON;

-- Products: stock is only ever mutated through the ledger
CREATE TABLE IF NOT EXISTS products(
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
  low_stock_threshold INTEGER NOT NULL DEFAULT 5 CHECK (low_stock_threshold >= 0),
  created_at TEXT DEFAULT CURRENT_TIMESTAMP,
  updated_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_products_name ON products(LOWER(name));

-- Append-only adjustment history
CREATE TABLE IF NOT EXISTS inventory_transactions(
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL REFERENCES products(id) ON DELETE RESTRICT,
  direction TEXT NOT NULL CHECK (direction IN ('add','remove')),
  magnitude INTEGER NOT NULL CHECK (magnitude > 0),
  note TEXT,
  principal_id TEXT NOT NULL,
  idempotency_token TEXT NOT NULL,
  stock_after INTEGER NOT NULL,
  created_at TEXT DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tx_token   ON inventory_transactions(idempotency_token);
CREATE INDEX IF NOT EXISTS idx_tx_product       ON inventory_transactions(product_id, created_at);

-- Registered terminals (acting principals for the audit trail)
CREATE TABLE IF NOT EXISTS terminals(
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  key_hash TEXT NOT NULL,
  created_at TEXT DEFAULT CURRENT_TIMESTAMP
);
`
	_, err := db.Exec(schema)
	return err
}

func seedIfEmpty(db *sqlx.DB) error {
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM products`); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	log.Println("[seed] inserting demo products")

	tx := db.MustBegin()
	tx.MustExec(`INSERT INTO products(id,name,stock,low_stock_threshold) VALUES
	  ('cola-330','Cola 330ml Can',48,12),
	  ('espresso-250','Espresso Beans 250g',5,10),
	  ('choc-bar','Dark Chocolate Bar',0,6),
	  ('water-500','Still Water 500ml',120,24)`)

	return tx.Commit()
}

// seedTerminals ensures two demo terminals exist (idempotent).
func seedTerminals(db *sqlx.DB) error {
	type term struct {
		ID, Name, Hash string
	}
	mk := func(id, name, raw string) term {
		h, _ := bcrypt.GenerateFromPassword([]byte(raw), 10)
		return term{ID: id, Name: name, Hash: string(h)}
	}

	terms := []term{
		mk("till-1", "Front counter", DevTerminalKey),
		mk("till-2", "Back office", DevTerminalKey),
	}

	tx := db.MustBegin()
	defer func() { _ = tx.Rollback() }()

	for _, t := range terms {
		if _, err := tx.Exec(`
			INSERT INTO terminals(id,name,key_hash)
			VALUES(?,?,?)
			ON CONFLICT(id) DO NOTHING
		`, t.ID, t.Name, t.Hash); err != nil {
			return err
		}
	}

	return tx.Commit()
}
