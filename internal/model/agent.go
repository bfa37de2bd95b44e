package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AgentStatus is the operator-facing switch on an agent.
type AgentStatus string

const (
	AgentActive AgentStatus = "active"
	AgentPaused AgentStatus = "paused"
)

// RiskParams are the per-agent risk limits consumed by the risk validator
// and the decision maker's position sizing.
type RiskParams struct {
	// MaxPositionSize is either an absolute dollar amount or, when <= 1, a
	// fraction of allocated capital.
	MaxPositionSize   decimal.Decimal
	StopLossFraction  float64
	TakeProfitFraction float64
	MaxDailyTrades    int
	MaxDailyLoss      decimal.Decimal
	MinConfidence     float64
	MaxConcurrentPositions int
}

// StrategyParams selects the timeframe and weighting the pipeline uses.
type StrategyParams struct {
	Type             string
	Timeframe        string
	SentimentWeight  float64
	TechnicalWeight  float64
	SentimentWeights SentimentWeights
}

// SentimentWeights are the per-source weights the aggregator uses.
type SentimentWeights struct {
	News   float64
	Reddit float64
	SEC    float64
}

// AgentConfig is the full static configuration for one agent, loaded from
// its per-agent config file.
type AgentConfig struct {
	ID                string
	Symbol            string
	Status            AgentStatus
	FractionalAllowed bool
	Strategy          StrategyParams
	Risk              RiskParams
	AllocatedCapital  decimal.Decimal
	Personality       string
}

// Position is one open position held by an agent.
type Position struct {
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
	StopLoss   decimal.Decimal
	OpenedAt   time.Time
}

// AgentState is the mutable runtime state for one agent: open positions
// and today's trade/P&L counters. It is mutated only by the loop manager,
// when it applies a completed cycle's order result or the daily reset.
type AgentState struct {
	Positions     []Position
	TradesToday   int
	PnLToday      decimal.Decimal
	LastTradeTime *time.Time
	LastResetDate string // YYYY-MM-DD in the reset timezone
}

// Company is the aggregate capital ceiling spanning all agents.
type Company struct {
	ID               string
	Name             string
	MaxCapital       decimal.Decimal
	MaxDeploymentPct float64
}
