// Package redis keeps a shared snapshot of broker catalogs and fans batch
// reports out to subscribers.
//
// Keys:
//
//	catalog:<broker>        hash  UnifiedSymbol.Key() -> JSON row
//	catalog:<broker>:token  hash  EXCHANGE:SYMBOL -> broker token (equity and index rows)
//	batches:<broker>        pub/sub channel of JSON execution.Report
//	batches:recent          list of the last recentReports reports, newest first
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"basket-trading/internal/execution"
	"basket-trading/internal/model"
)

const (
	recentReports = 100
	hsetChunk     = 500
	recentKey     = "batches:recent"
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Store wraps a Redis client.
type Store struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (s *Store) Client() *goredis.Client { return s.client }

// New connects and pings the server.
func New(cfg Config) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("redis connected", slog.String("addr", cfg.Addr))
	return &Store{client: client}, nil
}

func catalogKey(b model.BrokerType) string { return "catalog:" + string(b) }
func tokenKey(b model.BrokerType) string   { return "catalog:" + string(b) + ":token" }
func channel(b model.BrokerType) string    { return "batches:" + string(b) }

// ReplaceCatalog writes the catalog under temporary keys and renames them
// over the live ones in one MULTI, so readers never see a half-written set.
func (s *Store) ReplaceCatalog(ctx context.Context, b model.BrokerType, symbols []model.UnifiedSymbol) error {
	live, liveTok := catalogKey(b), tokenKey(b)
	if len(symbols) == 0 {
		return s.client.Del(ctx, live, liveTok).Err()
	}

	suffix := ":tmp:" + uuid.NewString()
	tmp, tmpTok := live+suffix, liveTok+suffix

	rows := make([]any, 0, 2*hsetChunk)
	toks := make([]any, 0, 2*hsetChunk)
	wroteTok := false
	flush := func() error {
		_, err := s.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
			if len(rows) > 0 {
				p.HSet(ctx, tmp, rows...)
			}
			if len(toks) > 0 {
				p.HSet(ctx, tmpTok, toks...)
				wroteTok = true
			}
			return nil
		})
		rows, toks = rows[:0], toks[:0]
		return err
	}

	for i := range symbols {
		u := &symbols[i]
		data, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", u.Key(), err)
		}
		rows = append(rows, u.Key(), data)
		if u.InstrumentType != model.InstrumentDerivative {
			toks = append(toks, u.Instrument().Key(), u.BrokerToken)
		}
		if len(rows) >= 2*hsetChunk {
			if err := flush(); err != nil {
				s.client.Del(ctx, tmp, tmpTok)
				return fmt.Errorf("redis write catalog: %w", err)
			}
		}
	}
	if err := flush(); err != nil {
		s.client.Del(ctx, tmp, tmpTok)
		return fmt.Errorf("redis write catalog: %w", err)
	}

	_, err := s.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Rename(ctx, tmp, live)
		if wroteTok {
			p.Rename(ctx, tmpTok, liveTok)
		} else {
			p.Del(ctx, liveTok)
		}
		return nil
	})
	if err != nil {
		s.client.Del(ctx, tmp, tmpTok)
		return fmt.Errorf("redis swap catalog: %w", err)
	}
	slog.Info("redis catalog replaced", slog.String("broker", string(b)), slog.Int("rows", len(symbols)))
	return nil
}

// PublishReport publishes r on the broker channel and pushes it onto the
// recent list.
func (s *Store) PublishReport(ctx context.Context, r execution.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = s.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
		p.Publish(ctx, channel(r.Broker), data)
		p.LPush(ctx, recentKey, data)
		p.LTrim(ctx, recentKey, 0, recentReports-1)
		return nil
	})
	return err
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}
