package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"basket-trading/internal/model"
)

const symbolColumns = `symbol, exchange, COALESCE(name, ''), instrument_type, broker, broker_symbol, broker_token, lot_size, tick_size, expiry, strike`

// All returns the broker's full catalog ordered by exchange and symbol.
func (s *Store) All(ctx context.Context, broker model.BrokerType) ([]model.UnifiedSymbol, error) {
	return s.query(ctx, `SELECT `+symbolColumns+` FROM symbols WHERE broker = ? ORDER BY exchange, symbol`, string(broker))
}

// Find returns every row for an exchange/symbol pair (one per instrument
// type, expiry and strike).
func (s *Store) Find(ctx context.Context, broker model.BrokerType, in model.Instrument) ([]model.UnifiedSymbol, error) {
	return s.query(ctx, `SELECT `+symbolColumns+` FROM symbols WHERE broker = ? AND exchange = ? AND symbol = ?`,
		string(broker), in.Exchange, in.Symbol)
}

// Search returns up to limit rows whose symbol starts with prefix.
func (s *Store) Search(ctx context.Context, broker model.BrokerType, prefix string, limit int) ([]model.UnifiedSymbol, error) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToUpper(prefix))
	return s.query(ctx, `SELECT `+symbolColumns+` FROM symbols
		WHERE broker = ? AND symbol LIKE ? ESCAPE '\' ORDER BY symbol, exchange LIMIT ?`,
		string(broker), escaped+"%", limit)
}

// RefreshInfo describes the last catalog refresh for a broker.
type RefreshInfo struct {
	Rows        int
	RefreshedAt time.Time
}

// LastRefresh reports when the broker's catalog was last replaced. ok is
// false when it never was.
func (s *Store) LastRefresh(ctx context.Context, broker model.BrokerType) (RefreshInfo, bool, error) {
	var info RefreshInfo
	var ts int64
	err := s.db.QueryRowContext(ctx,
		`SELECT row_count, refreshed_at FROM catalog_refresh WHERE broker = ?`, string(broker),
	).Scan(&info.Rows, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return RefreshInfo{}, false, nil
	}
	if err != nil {
		return RefreshInfo{}, false, err
	}
	info.RefreshedAt = time.Unix(ts, 0)
	return info, true, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]model.UnifiedSymbol, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query: %w", err)
	}
	defer rows.Close()

	var out []model.UnifiedSymbol
	for rows.Next() {
		var (
			u      model.UnifiedSymbol
			itype  string
			broker string
			expiry sql.NullString
			strike sql.NullFloat64
		)
		if err := rows.Scan(&u.Symbol, &u.Exchange, &u.Name, &itype, &broker, &u.BrokerSymbol, &u.BrokerToken,
			&u.LotSize, &u.TickSize, &expiry, &strike); err != nil {
			return nil, fmt.Errorf("sqlite scan: %w", err)
		}
		u.InstrumentType = model.InstrumentType(itype)
		u.Broker = model.BrokerType(broker)
		if expiry.Valid {
			if t, err := time.Parse("2006-01-02", expiry.String); err == nil {
				u.Expiry = &t
			}
		}
		if strike.Valid {
			v := strike.Float64
			u.Strike = &v
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
