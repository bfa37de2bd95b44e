// Package executor routes a validated Decision to a broker (or, in
// dry-run mode, simulates a fill) and records the outcome. Grounded on
// the teacher's exchange service's dry-run pattern and its
// retry/backoff helper, capped at two attempts per spec §7.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/kestrel-trading/agentrader/internal/model"
	"github.com/kestrel-trading/agentrader/internal/risk"
)

// OrderSide mirrors the broker's buy/sell vocabulary.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderRequest is what the executor submits to a live broker.
type OrderRequest struct {
	Symbol   string
	Side     OrderSide
	Quantity decimal.Decimal
}

// OrderResult is what a successful broker submission (or simulated
// fill) returns.
type OrderResult struct {
	OrderID   string
	FillPrice decimal.Decimal
	FilledAt  time.Time
	Simulated bool
}

// Broker is the abstract brokerage surface per spec §6. A raw HTTP
// client implementing it (Alpaca, Binance, ...) is an external
// collaborator out of scope for this repository.
type Broker interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetLatestQuote(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// TradeLog appends one JSON line per trade/decision to a durable,
// append-only stream. Grounded on the append-only file convention used
// for operator-facing audit trails throughout the original system.
type TradeLog interface {
	AppendDecision(agentID string, at time.Time, decision model.Decision) error
	AppendTrade(agentID string, at time.Time, result OrderResult, decision model.Decision) error
}

const maxBrokerAttempts = 2

var retryableSubstrings = []string{
	"connection refused", "connection reset", "timeout",
	"temporary failure", "too many requests", "rate limit",
}

// isRetryableError reports whether err looks like a transient broker
// failure worth retrying, grounded on the teacher's
// exchange.IsRetryable substring classification.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// TradeExecutor submits a Decision's order (or simulates it in dry-run
// mode), wrapping live broker calls in the exchange circuit breaker and
// retrying transient failures up to maxBrokerAttempts times.
type TradeExecutor struct {
	Broker  Broker
	Log     TradeLog
	Breaker *risk.CircuitBreakers
	DryRun  bool
	Logger  zerolog.Logger
}

// NewTradeExecutor builds an executor. When dryRun is true, Broker may
// be nil: Execute simulates every fill at the last known quote instead
// of calling out.
func NewTradeExecutor(broker Broker, log TradeLog, breaker *risk.CircuitBreakers, dryRun bool, logger zerolog.Logger) *TradeExecutor {
	return &TradeExecutor{Broker: broker, Log: log, Breaker: breaker, DryRun: dryRun, Logger: logger.With().Str("component", "executor").Logger()}
}

// Execute submits decision for agentID/symbol at currentPrice. A hold
// decision is logged and returns a zero-value OrderResult with no
// broker call.
func (e *TradeExecutor) Execute(ctx context.Context, agentID, symbol string, decision model.Decision, currentPrice decimal.Decimal) (OrderResult, error) {
	now := time.Now()

	if e.Log != nil {
		if err := e.Log.AppendDecision(agentID, now, decision); err != nil {
			e.Logger.Warn().Err(err).Str("agent_id", agentID).Msg("failed to append decision log")
		}
	}

	if decision.Action != model.ActionBuy {
		return OrderResult{}, nil
	}

	req := OrderRequest{Symbol: symbol, Side: OrderSideBuy, Quantity: decision.Quantity}

	var result OrderResult
	var err error
	if e.DryRun {
		result = e.simulateFill(req, currentPrice, now)
	} else {
		result, err = e.submitWithRetry(ctx, req)
	}
	if err != nil {
		return OrderResult{}, fmt.Errorf("execute trade for %s: %w", agentID, err)
	}

	if e.Log != nil {
		if logErr := e.Log.AppendTrade(agentID, now, result, decision); logErr != nil {
			e.Logger.Warn().Err(logErr).Str("agent_id", agentID).Msg("failed to append trade log")
		}
	}

	return result, nil
}

// simulateFill produces a deterministic fill for dry-run mode: filled
// immediately at the current price, tagged Simulated.
func (e *TradeExecutor) simulateFill(req OrderRequest, currentPrice decimal.Decimal, at time.Time) OrderResult {
	return OrderResult{
		OrderID:   fmt.Sprintf("dryrun-%d", at.UnixNano()),
		FillPrice: currentPrice,
		FilledAt:  at,
		Simulated: true,
	}
}

// submitWithRetry submits req to the live broker through the exchange
// circuit breaker, retrying once on a transient error.
func (e *TradeExecutor) submitWithRetry(ctx context.Context, req OrderRequest) (OrderResult, error) {
	var lastErr error

	for attempt := 1; attempt <= maxBrokerAttempts; attempt++ {
		out, err := e.Breaker.Call(e.Breaker.Exchange, "exchange", func() (interface{}, error) {
			return e.Broker.SubmitOrder(ctx, req)
		})
		if err == nil {
			return out.(OrderResult), nil
		}

		lastErr = err
		if errors.Is(err, gobreaker.ErrOpenState) || !isRetryableError(err) {
			break
		}
		if attempt < maxBrokerAttempts {
			e.Logger.Warn().Err(err).Int("attempt", attempt).Msg("broker order submission failed, retrying")
			select {
			case <-ctx.Done():
				return OrderResult{}, ctx.Err()
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
		}
	}

	return OrderResult{}, fmt.Errorf("order submission failed after %d attempts: %w", maxBrokerAttempts, lastErr)
}
