package execution

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Journal persists batch reports to SQLite for audit.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS batches (
		batch_id     TEXT PRIMARY KEY,
		broker       TEXT NOT NULL,
		kind         TEXT NOT NULL,
		status       TEXT NOT NULL,
		dry_run      INTEGER NOT NULL DEFAULT 0,
		placed       INTEGER NOT NULL,
		failed       INTEGER NOT NULL,
		meta         TEXT,
		started_at   DATETIME NOT NULL,
		finished_at  DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS batch_orders (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id    TEXT NOT NULL REFERENCES batches(batch_id),
		seq         INTEGER NOT NULL,
		symbol      TEXT NOT NULL,
		exchange    TEXT NOT NULL,
		side        TEXT NOT NULL,
		qty         INTEGER NOT NULL,
		order_id    TEXT,
		error       TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_batch_orders_batch ON batch_orders(batch_id, seq);
	CREATE INDEX IF NOT EXISTS idx_batches_started ON batches(started_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("batch journal opened", slog.String("path", dbPath))
	return &Journal{db: db}, nil
}

// Record stores a report and its per-order outcomes in one transaction.
func (j *Journal) Record(r Report) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	meta, err := json.Marshal(r.Meta)
	if err != nil {
		return fmt.Errorf("journal meta: %w", err)
	}
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO batches (batch_id, broker, kind, status, dry_run, placed, failed, meta, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.BatchID, string(r.Broker), r.Kind, string(r.Status), r.DryRun, r.Placed, r.Failed, string(meta),
		r.StartedAt.UTC().Format(time.RFC3339), r.FinishedAt.UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("journal batch: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO batch_orders (batch_id, seq, symbol, exchange, side, qty, order_id, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, o := range r.Outcomes {
		if _, err := stmt.Exec(r.BatchID, i, o.Symbol, o.Exchange, o.TransactionType, o.Quantity, o.OrderID, o.Error); err != nil {
			return fmt.Errorf("journal order %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// HandleReport records r; it lets the journal sit among the report sinks.
func (j *Journal) HandleReport(_ context.Context, r Report) error {
	return j.Record(r)
}

// BatchRecord is a row from the batches table.
type BatchRecord struct {
	BatchID    string `json:"batch_id"`
	Broker     string `json:"broker"`
	Kind       string `json:"kind"`
	Status     string `json:"status"`
	DryRun     bool   `json:"dry_run"`
	Placed     int    `json:"placed"`
	Failed     int    `json:"failed"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
}

// RecentBatches returns the last N batches, newest first.
func (j *Journal) RecentBatches(limit int) ([]BatchRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT batch_id, broker, kind, status, dry_run, placed, failed, started_at, finished_at
		 FROM batches ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BatchRecord
	for rows.Next() {
		var b BatchRecord
		if err := rows.Scan(&b.BatchID, &b.Broker, &b.Kind, &b.Status, &b.DryRun,
			&b.Placed, &b.Failed, &b.StartedAt, &b.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// BatchOutcomes returns the per-order rows of one batch in placement order.
func (j *Journal) BatchOutcomes(batchID string) ([]OutcomeSummary, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT symbol, exchange, side, qty, COALESCE(order_id, ''), COALESCE(error, '')
		 FROM batch_orders WHERE batch_id = ? ORDER BY seq`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OutcomeSummary
	for rows.Next() {
		var o OutcomeSummary
		if err := rows.Scan(&o.Symbol, &o.Exchange, &o.TransactionType, &o.Quantity, &o.OrderID, &o.Error); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
