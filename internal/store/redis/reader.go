package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/go-redis/redis/v8"

	"basket-trading/internal/execution"
	"basket-trading/internal/model"
)

// Catalog returns the broker's cached catalog in no particular order.
// Rows that fail to decode are skipped.
func (s *Store) Catalog(ctx context.Context, b model.BrokerType) ([]model.UnifiedSymbol, error) {
	all, err := s.client.HGetAll(ctx, catalogKey(b)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis catalog: %w", err)
	}
	out := make([]model.UnifiedSymbol, 0, len(all))
	for key, raw := range all {
		var u model.UnifiedSymbol
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			slog.Warn("redis catalog row skipped", slog.String("key", key), slog.String("error", err.Error()))
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

// Token looks up the broker token of an equity or index instrument. ok is
// false when the instrument is not cached.
func (s *Store) Token(ctx context.Context, b model.BrokerType, in model.Instrument) (string, bool, error) {
	tok, err := s.client.HGet(ctx, tokenKey(b), in.Key()).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return tok, true, nil
}

// RecentReports returns up to n of the latest batch reports, newest first.
func (s *Store) RecentReports(ctx context.Context, n int) ([]execution.Report, error) {
	if n <= 0 || n > recentReports {
		n = recentReports
	}
	raws, err := s.client.LRange(ctx, recentKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis recent reports: %w", err)
	}
	out := make([]execution.Report, 0, len(raws))
	for _, raw := range raws {
		var r execution.Report
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// SubscribeReports streams reports for broker b until ctx is done.
func (s *Store) SubscribeReports(ctx context.Context, b model.BrokerType, fn func(execution.Report)) error {
	sub := s.client.Subscribe(ctx, channel(b))
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var r execution.Report
			if err := json.Unmarshal([]byte(msg.Payload), &r); err != nil {
				slog.Warn("bad report payload", slog.String("error", err.Error()))
				continue
			}
			fn(r)
		}
	}
}
