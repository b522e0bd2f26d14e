// Package sqlite persists broker instrument catalogs. A catalog is always
// replaced wholesale per broker; rows are never patched.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"basket-trading/internal/model"
)

// Config configures the catalog store.
type Config struct {
	DBPath string // e.g. "data/catalog.db"
}

// Store is a single-connection SQLite catalog store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database with WAL mode and creates the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("catalog store opened", slog.String("path", cfg.DBPath))
	return &Store{db: db, now: time.Now}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS symbols (
			broker          TEXT    NOT NULL,
			ukey            TEXT    NOT NULL,
			symbol          TEXT    NOT NULL,
			exchange        TEXT    NOT NULL,
			name            TEXT,
			instrument_type TEXT    NOT NULL,
			broker_symbol   TEXT    NOT NULL,
			broker_token    TEXT    NOT NULL,
			lot_size        INTEGER NOT NULL,
			tick_size       REAL    NOT NULL,
			expiry          TEXT,
			strike          REAL,
			PRIMARY KEY (broker, ukey)
		);
		CREATE INDEX IF NOT EXISTS idx_symbols_lookup ON symbols(broker, exchange, symbol);

		CREATE TABLE IF NOT EXISTS catalog_refresh (
			broker       TEXT    PRIMARY KEY,
			row_count    INTEGER NOT NULL,
			refreshed_at INTEGER NOT NULL
		);
	`)
	return err
}

// Replace swaps the broker's catalog for symbols in one transaction. Readers
// see either the old catalog or the new one.
func (s *Store) Replace(ctx context.Context, broker model.BrokerType, symbols []model.UnifiedSymbol) error {
	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM symbols WHERE broker = ?`, string(broker)); err != nil {
		return fmt.Errorf("clear catalog: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO symbols
			(broker, ukey, symbol, exchange, name, instrument_type, broker_symbol, broker_token, lot_size, tick_size, expiry, strike)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i := range symbols {
		u := &symbols[i]
		var expiry, strike any
		if u.Expiry != nil {
			expiry = u.Expiry.Format("2006-01-02")
		}
		if u.Strike != nil {
			strike = *u.Strike
		}
		if _, err := stmt.ExecContext(ctx,
			string(broker), u.Key(), u.Symbol, u.Exchange, u.Name, string(u.InstrumentType),
			u.BrokerSymbol, u.BrokerToken, u.LotSize, u.TickSize, expiry, strike,
		); err != nil {
			return fmt.Errorf("insert %s: %w", u.Key(), err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO catalog_refresh (broker, row_count, refreshed_at) VALUES (?, ?, ?)
		ON CONFLICT(broker) DO UPDATE SET row_count = excluded.row_count, refreshed_at = excluded.refreshed_at`,
		string(broker), len(symbols), s.now().Unix(),
	); err != nil {
		return fmt.Errorf("record refresh: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	slog.Info("catalog replaced",
		slog.String("broker", string(broker)),
		slog.Int("rows", len(symbols)),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
