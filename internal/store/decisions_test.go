package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-trading/agentrader/internal/model"
	"github.com/kestrel-trading/agentrader/internal/store"
)

func TestInsertDecision_RecordsFullRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := store.NewWithPool(mock, nil, zerolog.Nop())

	qty := decimal.NewFromInt(5)
	price := decimal.NewFromFloat(123.45)

	rec := model.DecisionRecord{
		Timestamp:     time.Now(),
		AgentID:       "agent-1",
		Symbol:        "AAPL",
		Decision:      model.ActionBuy,
		Confidence:    0.9,
		Quantity:      &qty,
		Price:         &price,
		Rationale:     "strong bullish signal",
		TradeApproved: true,
		TradeExecuted: true,
		OrderID:       "dryrun-1",
	}

	mock.ExpectExec("INSERT INTO decision_history").WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.InsertDecision(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}
