package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kestrel-trading/agentrader/internal/apperr"
)

// DecisionAction is the pipeline's output action.
type DecisionAction string

const (
	ActionBuy  DecisionAction = "buy"
	ActionSell DecisionAction = "sell"
	ActionHold DecisionAction = "hold"
)

// Decision is the decision maker's output for one cycle.
type Decision struct {
	Action     DecisionAction
	Quantity   decimal.Decimal
	Rationale  string
	Confidence float64
	StopLoss   *decimal.Decimal
}

// Validate checks the decision invariants from the data model: a buy must
// carry a positive quantity and a stop-loss below the current price; a
// hold must carry zero quantity.
func (d Decision) Validate(currentPrice decimal.Decimal) error {
	switch d.Action {
	case ActionBuy:
		if !d.Quantity.IsPositive() {
			return apperr.FatalInvariant("buy decision must have positive quantity")
		}
		if d.StopLoss == nil {
			return apperr.FatalInvariant("buy decision must set a stop loss")
		}
		if !d.StopLoss.LessThan(currentPrice) {
			return apperr.FatalInvariant("buy decision stop loss must be below current price")
		}
	case ActionHold:
		if !d.Quantity.IsZero() {
			return apperr.FatalInvariant("hold decision must have zero quantity")
		}
	}
	return nil
}

// DecisionRecord is the persisted form of one cycle's decision: the
// decision itself, the sentiment/technical inputs that produced it, and
// the outcome of passing it through the risk validator and executor.
type DecisionRecord struct {
	Timestamp           time.Time
	AgentID             string
	Symbol              string
	Decision            DecisionAction
	Confidence          float64
	SentimentScore      *float64
	SentimentConfidence *float64
	SentimentSources    []SentimentSource
	TechnicalSignal     *Signal
	TechnicalConfidence *float64
	Quantity            *decimal.Decimal
	Price               *decimal.Decimal
	StopLoss            *decimal.Decimal
	Rationale           string
	TradeApproved       bool
	RejectionReason     string
	TradeExecuted       bool
	OrderID             string
}
