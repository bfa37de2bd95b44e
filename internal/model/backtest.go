package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BacktestRun is one completed (or failed) replay of the decision pipeline
// over stored bars for a single agent.
type BacktestRun struct {
	ID              uuid.UUID
	AgentID         string
	Start           time.Time
	End             time.Time
	InitialCapital  decimal.Decimal
	FinalCapital    decimal.Decimal
	TotalReturnPct  float64
	TotalTrades     int
	WinningTrades   int
	LosingTrades    int
	MaxDrawdownPct  float64
	SharpeRatio     float64
	WinRate         float64
	AvgTradePnL     float64
	Config          json.RawMessage
	Status          string // "completed" | "failed"
}

// BacktestTrade is one simulated fill recorded during a backtest run.
type BacktestTrade struct {
	RunID          uuid.UUID
	Timestamp      time.Time
	Action         DecisionAction
	Symbol         string
	Quantity       decimal.Decimal
	Price          decimal.Decimal
	PnL            *decimal.Decimal
	PortfolioValue decimal.Decimal
	CashBalance    decimal.Decimal
}
