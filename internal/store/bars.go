package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kestrel-trading/agentrader/internal/model"
)

// UpsertBars writes bars in one transaction, idempotent on the
// (symbol, timestamp, timeframe) primary key: re-upserting the same bar
// overwrites its OHLCV fields rather than erroring or duplicating.
func (s *Store) UpsertBars(ctx context.Context, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	_, err := s.call(ctx, func(ctx context.Context) (any, error) {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("begin upsert bars: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		for _, b := range bars {
			if err := b.Validate(); err != nil {
				return nil, fmt.Errorf("invalid bar: %w", err)
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO market_bars (symbol, timestamp, timeframe, open, high, low, close, volume, vwap, trade_count)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				ON CONFLICT (symbol, timestamp, timeframe) DO UPDATE SET
					open = EXCLUDED.open,
					high = EXCLUDED.high,
					low = EXCLUDED.low,
					close = EXCLUDED.close,
					volume = EXCLUDED.volume,
					vwap = EXCLUDED.vwap,
					trade_count = EXCLUDED.trade_count
			`, b.Symbol, b.Timestamp, b.Timeframe, b.Open, b.High, b.Low, b.Close, b.Volume, b.VWAP, b.TradeCount)
			if err != nil {
				return nil, fmt.Errorf("upsert bar %s@%s: %w", b.Symbol, b.Timestamp, err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit upsert bars: %w", err)
		}
		return nil, nil
	})
	return err
}

// QueryBars returns bars for symbol/timeframe within [start, end], ordered
// ascending by timestamp, matching the replay order the backtest engine
// and technical analyzer both expect.
func (s *Store) QueryBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]model.Bar, error) {
	result, err := s.call(ctx, func(ctx context.Context) (any, error) {
		rows, err := s.pool.Query(ctx, `
			SELECT symbol, timestamp, timeframe, open, high, low, close, volume, vwap, trade_count
			FROM market_bars
			WHERE symbol = $1 AND timeframe = $2 AND timestamp BETWEEN $3 AND $4
			ORDER BY timestamp ASC
		`, symbol, timeframe, start, end)
		if err != nil {
			return nil, fmt.Errorf("query bars: %w", err)
		}
		defer rows.Close()

		bars, err := scanBars(rows)
		if err != nil {
			return nil, err
		}
		return bars, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]model.Bar), nil
}

func scanBars(rows pgx.Rows) ([]model.Bar, error) {
	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		if err := rows.Scan(&b.Symbol, &b.Timestamp, &b.Timeframe, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.VWAP, &b.TradeCount); err != nil {
			return nil, fmt.Errorf("scan bar row: %w", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bar rows: %w", err)
	}
	return bars, nil
}
