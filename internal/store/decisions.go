package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kestrel-trading/agentrader/internal/model"
)

// InsertDecision appends one row to decision_history. Every cycle's
// decision is recorded here regardless of outcome, per spec: a rejected
// or held decision is as much an audit record as an executed one.
func (s *Store) InsertDecision(ctx context.Context, rec model.DecisionRecord) error {
	sources, err := json.Marshal(rec.SentimentSources)
	if err != nil {
		return fmt.Errorf("marshal sentiment sources: %w", err)
	}

	var technicalSignal *string
	if rec.TechnicalSignal != nil {
		v := string(*rec.TechnicalSignal)
		technicalSignal = &v
	}

	_, err = s.call(ctx, func(ctx context.Context) (any, error) {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO decision_history (
				timestamp, agent_id, symbol, decision, confidence,
				sentiment_score, sentiment_confidence, sentiment_sources,
				technical_signal, technical_confidence,
				quantity, price, stop_loss, rationale,
				trade_approved, rejection_reason, trade_executed, order_id
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
			)
		`,
			rec.Timestamp, rec.AgentID, rec.Symbol, rec.Decision, rec.Confidence,
			rec.SentimentScore, rec.SentimentConfidence, sources,
			technicalSignal, rec.TechnicalConfidence,
			rec.Quantity, rec.Price, rec.StopLoss, rec.Rationale,
			rec.TradeApproved, nullableString(rec.RejectionReason), rec.TradeExecuted, nullableString(rec.OrderID),
		)
		if err != nil {
			return nil, fmt.Errorf("insert decision: %w", err)
		}
		return nil, nil
	})
	return err
}

// nullableString maps an empty string to SQL NULL for optional text
// columns, so an absent rejection reason or order ID reads back as NULL
// rather than "".
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
