// Package backtest replays the sentiment/technical/decision pipeline over
// historical bars to produce a simulated trade history and performance
// metrics, without touching live market data or the executor. Grounded on
// the reference backtesting engine's portfolio simulation, adapted to call
// straight into the same technical analyzer and fusion math the live cycle
// runner uses rather than a separate scoring path.
package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/kestrel-trading/agentrader/internal/apperr"
	"github.com/kestrel-trading/agentrader/internal/decision"
	"github.com/kestrel-trading/agentrader/internal/marketdata"
	"github.com/kestrel-trading/agentrader/internal/model"
	"github.com/kestrel-trading/agentrader/internal/technical"
)

// riskFreeRate is the annualized risk-free rate; its daily share
// (riskFreeRate/252) is subtracted from the mean bar-to-bar return before
// the Sharpe ratio is annualized by sqrt(252).
const riskFreeRate = 0.02

// defaultWarmupBars is the minimum history skipped before the first trade
// decision, matching the lookback the technical analyzer's indicators
// need to stabilize.
const defaultWarmupBars = 50

// defaultLookbackBars is the sliding window size handed to BuildContext on each
// bar, matching the live cycle's 100-bar fetch.
const defaultLookbackBars = 100

// SentimentHistory looks up the sentiment fused for a symbol at an exact
// bar timestamp. Implementations degrade missing history to a zero-value,
// zero-confidence AggregatedSentiment rather than erroring: most history
// predates sentiment collection.
type SentimentHistory interface {
	At(ctx context.Context, symbol string, at time.Time) (model.AggregatedSentiment, bool, error)
}

// BarSource supplies the ordered bar history a run replays over.
type BarSource interface {
	QueryBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]model.Bar, error)
}

// ResultStore persists a finished or failed run. Narrowed from the full
// store package so this engine can be tested without a database.
type ResultStore interface {
	SaveBacktestRun(ctx context.Context, run model.BacktestRun, trades []model.BacktestTrade) error
}

// Engine replays one agent's decision pipeline over stored history.
type Engine struct {
	Bars       BarSource
	Sentiment  SentimentHistory
	Technical  *technical.Analyzer
	Decider    *decision.AlgorithmicDecisionMaker
	Results    ResultStore
	Log        zerolog.Logger

	WarmupBars    int
	LookbackBars  int
	MinConfidence float64
	CommissionPct float64
}

// NewEngine builds a backtest engine with a 50-bar warmup, a 100-bar
// lookback, a 0.6 minimum confidence and a 0.1% commission. Run falls
// back to the warmup, lookback and minimum-confidence defaults when those
// fields are zero or negative; CommissionPct is used as set, so a zero
// commission stays zero.
func NewEngine(bars BarSource, sentimentHistory SentimentHistory, tech *technical.Analyzer, decider *decision.AlgorithmicDecisionMaker, results ResultStore, log zerolog.Logger) *Engine {
	return &Engine{
		Bars:          bars,
		Sentiment:     sentimentHistory,
		Technical:     tech,
		Decider:       decider,
		Results:       results,
		Log:           log.With().Str("component", "backtest").Logger(),
		WarmupBars:    defaultWarmupBars,
		LookbackBars:  defaultLookbackBars,
		MinConfidence: 0.6,
		CommissionPct: 0.001,
	}
}

// equityPoint is one bar's mark-to-market portfolio value, used to derive
// drawdown and the bar-to-bar Sharpe ratio after the replay completes.
type equityPoint struct {
	timestamp time.Time
	value     decimal.Decimal
}

// openPosition is the single long position a backtest agent can hold at
// once. Kept as a pointer-or-nil on portfolio rather than a slice: the
// replay policy only ever opens one position per symbol at a time.
type openPosition struct {
	quantity   decimal.Decimal
	entryPrice decimal.Decimal
	entryTime  time.Time
}

// portfolio is the simulated cash/position ledger for one run.
type portfolio struct {
	cash     decimal.Decimal
	position *openPosition
}

func (p *portfolio) value(currentPrice decimal.Decimal) decimal.Decimal {
	v := p.cash
	if p.position != nil {
		v = v.Add(p.position.quantity.Mul(currentPrice))
	}
	return v
}

// Run replays agent's pipeline over every bar between start and end,
// simulating trades and persisting the resulting run and trade history.
// Fewer than WarmupBars bars of history is recorded as a failed run
// rather than returning a bare error: the caller can still inspect why
// via the persisted row.
func (e *Engine) Run(ctx context.Context, agent model.AgentConfig, startingCapital decimal.Decimal, start, end time.Time) (model.BacktestRun, []model.BacktestTrade, error) {
	warmup, lookback, minConfidence := e.effectiveParams()

	run := model.BacktestRun{
		ID:             uuid.New(),
		AgentID:        agent.ID,
		Start:          start,
		End:            end,
		InitialCapital: startingCapital,
		Status:         "failed",
	}
	if cfgJSON, err := json.Marshal(agent); err == nil {
		run.Config = cfgJSON
	}

	bars, err := e.Bars.QueryBars(ctx, agent.Symbol, agent.Strategy.Timeframe, start, end)
	if err != nil {
		e.persistFailed(ctx, run)
		return run, nil, fmt.Errorf("query bars: %w", err)
	}
	if len(bars) < warmup {
		e.persistFailed(ctx, run)
		return run, nil, apperr.Validation("backtest", fmt.Sprintf("insufficient data: %d bars available, %d required", len(bars), warmup))
	}

	port := &portfolio{cash: startingCapital}
	var equity []equityPoint
	var trades []model.BacktestTrade
	var sentimentHits, sentimentMisses int

	for i, bar := range bars {
		price := bar.Close

		equity = append(equity, equityPoint{timestamp: bar.Timestamp, value: port.value(price)})

		if i < warmup {
			continue
		}

		windowStart := 0
		if i-lookback+1 > 0 {
			windowStart = i - lookback + 1
		}
		window := bars[windowStart : i+1]

		marketCtx := marketdata.BuildContext(agent.Symbol, agent.Strategy.Timeframe, price.InexactFloat64(), window)
		techAnalysis := e.Technical.Analyze(marketCtx)

		sentimentAgg, found, err := e.Sentiment.At(ctx, agent.Symbol, bar.Timestamp)
		if err != nil {
			e.Log.Warn().Err(err).Time("bar", bar.Timestamp).Msg("sentiment lookup failed, treating as no data")
			found = false
		}
		if found {
			sentimentHits++
		} else {
			sentimentMisses++
			sentimentAgg = model.AggregatedSentiment{OverallSentiment: model.SentimentNeutral}
		}

		score, confidence := e.Decider.Combined(sentimentAgg, techAnalysis)
		if confidence < minConfidence {
			continue
		}

		switch {
		case score > decision.BuyThreshold && port.position == nil:
			trade := e.openLong(agent, port, price, confidence, bar.Timestamp)
			if trade != nil {
				trades = append(trades, *trade)
			}
		case score < decision.SellThreshold && port.position != nil:
			trade := e.closeLong(agent, port, price, bar.Timestamp)
			trades = append(trades, *trade)
		}
	}

	e.Log.Info().
		Str("agent_id", agent.ID).
		Int("bars", len(bars)).
		Int("sentiment_hits", sentimentHits).
		Int("sentiment_misses", sentimentMisses).
		Msg("backtest replay complete")

	finalPrice := bars[len(bars)-1].Close
	run.FinalCapital = port.value(finalPrice)
	run.Status = "completed"
	populateMetrics(&run, trades, equity)

	if err := e.Results.SaveBacktestRun(ctx, run, trades); err != nil {
		return run, trades, fmt.Errorf("save backtest run: %w", err)
	}
	return run, trades, nil
}

func (e *Engine) effectiveParams() (warmup, lookback int, minConfidence float64) {
	warmup = e.WarmupBars
	if warmup <= 0 {
		warmup = defaultWarmupBars
	}
	lookback = e.LookbackBars
	if lookback <= 0 {
		lookback = defaultLookbackBars
	}
	minConfidence = e.MinConfidence
	if minConfidence <= 0 {
		minConfidence = 0.6
	}
	return warmup, lookback, minConfidence
}

// openLong sizes and opens a position against the current portfolio
// equity, reusing the live decision maker's confidence-banded sizing.
// Insufficient cash (after commission) is a silent skip, matching "cash
// cannot go negative".
func (e *Engine) openLong(agent model.AgentConfig, port *portfolio, price decimal.Decimal, confidence float64, at time.Time) *model.BacktestTrade {
	equity := port.value(price)
	maxDollars := decision.ResolveMaxPositionDollars(agent.Risk.MaxPositionSize, equity)
	qty := decision.PositionSize(confidence, price, maxDollars, model.IsCrypto(agent.Symbol))
	if !qty.IsPositive() {
		return nil
	}

	cost := qty.Mul(price).Mul(decimal.NewFromFloat(1 + e.CommissionPct))
	if cost.GreaterThan(port.cash) {
		return nil
	}

	port.cash = port.cash.Sub(cost)
	port.position = &openPosition{quantity: qty, entryPrice: price, entryTime: at}

	return &model.BacktestTrade{
		Timestamp:      at,
		Action:         model.ActionBuy,
		Symbol:         agent.Symbol,
		Quantity:       qty,
		Price:          price,
		PortfolioValue: port.value(price),
		CashBalance:    port.cash,
	}
}

// closeLong liquidates the entire open position, realizing its P&L.
func (e *Engine) closeLong(agent model.AgentConfig, port *portfolio, price decimal.Decimal, at time.Time) *model.BacktestTrade {
	pos := port.position
	proceeds := pos.quantity.Mul(price).Mul(decimal.NewFromFloat(1 - e.CommissionPct))
	pnl := price.Sub(pos.entryPrice).Mul(pos.quantity)

	port.cash = port.cash.Add(proceeds)
	port.position = nil

	return &model.BacktestTrade{
		Timestamp:      at,
		Action:         model.ActionSell,
		Symbol:         agent.Symbol,
		Quantity:       pos.quantity,
		Price:          price,
		PnL:            &pnl,
		PortfolioValue: port.value(price),
		CashBalance:    port.cash,
	}
}

func (e *Engine) persistFailed(ctx context.Context, run model.BacktestRun) {
	if err := e.Results.SaveBacktestRun(ctx, run, nil); err != nil {
		e.Log.Error().Err(err).Str("agent_id", run.AgentID).Msg("failed to persist failed backtest run")
	}
}
