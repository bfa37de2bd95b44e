package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-trading/agentrader/internal/model"
	"github.com/kestrel-trading/agentrader/internal/store"
)

func sampleBar() model.Bar {
	return model.Bar{
		Symbol:    "AAPL",
		Timestamp: time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC),
		Timeframe: "15m",
		Open:      decimal.NewFromFloat(100),
		High:      decimal.NewFromFloat(101),
		Low:       decimal.NewFromFloat(99),
		Close:     decimal.NewFromFloat(100.5),
		Volume:    1000,
	}
}

func TestUpsertBars_Idempotent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := store.NewWithPool(mock, nil, zerolog.Nop())
	bar := sampleBar()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO market_bars").
		WithArgs(bar.Symbol, bar.Timestamp, bar.Timeframe, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume, bar.VWAP, bar.TradeCount).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.UpsertBars(context.Background(), []model.Bar{bar}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBars_RejectsInvalidBar(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := store.NewWithPool(mock, nil, zerolog.Nop())
	bad := sampleBar()
	bad.High = decimal.NewFromFloat(1) // high < low

	mock.ExpectBegin()
	mock.ExpectRollback()

	err = s.UpsertBars(context.Background(), []model.Bar{bad})
	assert.Error(t, err)
}

func TestQueryBars_OrdersByTimestampAscending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := store.NewWithPool(mock, nil, zerolog.Nop())

	first := sampleBar()
	second := sampleBar()
	second.Timestamp = first.Timestamp.Add(15 * time.Minute)

	cols := []string{"symbol", "timestamp", "timeframe", "open", "high", "low", "close", "volume", "vwap", "trade_count"}
	rows := pgxmock.NewRows(cols).
		AddRow(first.Symbol, first.Timestamp, first.Timeframe, first.Open, first.High, first.Low, first.Close, first.Volume, first.VWAP, first.TradeCount).
		AddRow(second.Symbol, second.Timestamp, second.Timeframe, second.Open, second.High, second.Low, second.Close, second.Volume, second.VWAP, second.TradeCount)

	mock.ExpectQuery("SELECT symbol, timestamp, timeframe, open, high, low, close, volume, vwap, trade_count").
		WithArgs(first.Symbol, first.Timeframe, first.Timestamp, second.Timestamp).
		WillReturnRows(rows)

	out, err := s.QueryBars(context.Background(), first.Symbol, first.Timeframe, first.Timestamp, second.Timestamp)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, out[0].Timestamp.Before(out[1].Timestamp))
}
