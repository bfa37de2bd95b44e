package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kestrel-trading/agentrader/internal/model"
)

// UpsertSentiments writes sentiment records in one transaction, idempotent
// on the (symbol, timestamp, source) primary key. NoData records are not
// persisted: a sentinel "no data" result carries nothing worth storing.
func (s *Store) UpsertSentiments(ctx context.Context, records []model.SentimentRecord) error {
	if len(records) == 0 {
		return nil
	}

	_, err := s.call(ctx, func(ctx context.Context) (any, error) {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("begin upsert sentiments: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		for _, r := range records {
			if r.NoData {
				continue
			}
			metadata, err := json.Marshal(r.Metadata)
			if err != nil {
				return nil, fmt.Errorf("marshal sentiment metadata: %w", err)
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO sentiment_history (symbol, timestamp, source, sentiment, score, confidence, metadata)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (symbol, timestamp, source) DO UPDATE SET
					sentiment = EXCLUDED.sentiment,
					score = EXCLUDED.score,
					confidence = EXCLUDED.confidence,
					metadata = EXCLUDED.metadata
			`, r.Symbol, r.Timestamp, r.Source, r.Sentiment, r.Score, r.Confidence, metadata)
			if err != nil {
				return nil, fmt.Errorf("upsert sentiment %s@%s/%s: %w", r.Symbol, r.Timestamp, r.Source, err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit upsert sentiments: %w", err)
		}
		return nil, nil
	})
	return err
}

// LatestSentiment returns up to limit sentiment records for symbol, most
// recent first, optionally restricted to one source.
func (s *Store) LatestSentiment(ctx context.Context, symbol string, source *model.SentimentSource, limit int) ([]model.SentimentRecord, error) {
	result, err := s.call(ctx, func(ctx context.Context) (any, error) {
		var rows pgx.Rows
		var err error
		if source != nil {
			rows, err = s.pool.Query(ctx, `
				SELECT symbol, timestamp, source, sentiment, score, confidence, metadata
				FROM sentiment_history
				WHERE symbol = $1 AND source = $2
				ORDER BY timestamp DESC
				LIMIT $3
			`, symbol, *source, limit)
		} else {
			rows, err = s.pool.Query(ctx, `
				SELECT symbol, timestamp, source, sentiment, score, confidence, metadata
				FROM sentiment_history
				WHERE symbol = $1
				ORDER BY timestamp DESC
				LIMIT $2
			`, symbol, limit)
		}
		if err != nil {
			return nil, fmt.Errorf("query latest sentiment: %w", err)
		}
		defer rows.Close()
		return scanSentiments(rows)
	})
	if err != nil {
		return nil, err
	}
	return result.([]model.SentimentRecord), nil
}

// SentimentAt returns every source's sentiment record for symbol at
// exactly timestamp (no forward-fill), the join the backtest engine's
// historical sentiment lookup performs per bar.
func (s *Store) SentimentAt(ctx context.Context, symbol string, at time.Time) ([]model.SentimentRecord, error) {
	result, err := s.call(ctx, func(ctx context.Context) (any, error) {
		rows, err := s.pool.Query(ctx, `
			SELECT symbol, timestamp, source, sentiment, score, confidence, metadata
			FROM sentiment_history
			WHERE symbol = $1 AND timestamp = $2
		`, symbol, at)
		if err != nil {
			return nil, fmt.Errorf("query sentiment at timestamp: %w", err)
		}
		defer rows.Close()
		return scanSentiments(rows)
	})
	if err != nil {
		return nil, err
	}
	return result.([]model.SentimentRecord), nil
}

func scanSentiments(rows pgx.Rows) ([]model.SentimentRecord, error) {
	var out []model.SentimentRecord
	for rows.Next() {
		var r model.SentimentRecord
		var metadata []byte
		if err := rows.Scan(&r.Symbol, &r.Timestamp, &r.Source, &r.Sentiment, &r.Score, &r.Confidence, &metadata); err != nil {
			return nil, fmt.Errorf("scan sentiment row: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &r.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal sentiment metadata: %w", err)
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sentiment rows: %w", err)
	}
	return out, nil
}
