// Package risk implements the nine ordered pre-trade checks that gate every
// decision before it reaches the trade executor, plus the circuit breakers
// that protect the exchange, sentiment providers, and the database from
// cascading failures.
package risk

import (
	"github.com/shopspring/decimal"

	"github.com/kestrel-trading/agentrader/internal/apperr"
	"github.com/kestrel-trading/agentrader/internal/model"
)

// Validate runs the ordered risk checks against a single agent's decision
// and returns the first failing check as an *apperr.ValidationError, or
// nil if the decision may proceed to execution.
func Validate(agent model.AgentConfig, state model.AgentState, decision model.Decision, currentPrice decimal.Decimal) error {
	if agent.Status != model.AgentActive {
		return apperr.Validation("agent_status", "agent is "+string(agent.Status))
	}

	if state.TradesToday >= agent.Risk.MaxDailyTrades {
		return apperr.Validation("daily_trade_limit", "daily trade limit")
	}

	if decision.Action == model.ActionBuy || decision.Action == model.ActionSell {
		notional := decision.Quantity.Mul(currentPrice)
		maxPosition := resolveMaxPosition(agent)
		if notional.GreaterThan(maxPosition) {
			return apperr.Validation("max_position_size", "position exceeds max")
		}
	}

	if !agent.AllocatedCapital.IsPositive() {
		return apperr.Validation("allocated_capital", "no capital")
	}

	if decision.Action == model.ActionBuy {
		if decision.StopLoss == nil {
			return apperr.Validation("stop_loss", "stop too tight / missing")
		}
		gap := currentPrice.Sub(*decision.StopLoss).Div(currentPrice)
		minGap := decimal.NewFromFloat(agent.Risk.StopLossFraction)
		if gap.LessThan(minGap) {
			return apperr.Validation("stop_loss", "stop too tight / missing")
		}
	}

	if state.PnLToday.LessThan(agent.Risk.MaxDailyLoss.Neg()) {
		return apperr.Validation("daily_loss_limit", "daily loss limit")
	}

	if decision.Confidence < agent.Risk.MinConfidence {
		return apperr.Validation("min_confidence", "below confidence")
	}

	if decision.Action == "" || decision.Rationale == "" {
		return apperr.Validation("required_fields", "missing field")
	}

	if decision.Action == model.ActionBuy && len(state.Positions) >= agent.Risk.MaxConcurrentPositions {
		return apperr.Validation("max_concurrent_positions", "too many positions")
	}

	return nil
}

// resolveMaxPosition interprets RiskParams.MaxPositionSize as a fraction of
// allocated capital when it is <= 1, or as an absolute dollar ceiling
// otherwise, matching the same convention used for backtest position sizing.
func resolveMaxPosition(agent model.AgentConfig) decimal.Decimal {
	if agent.Risk.MaxPositionSize.LessThanOrEqual(decimal.NewFromInt(1)) {
		return agent.AllocatedCapital.Mul(agent.Risk.MaxPositionSize)
	}
	return agent.Risk.MaxPositionSize
}

// ValidateCompanyCapital checks the company-level aggregate: the sum of
// every agent's allocated capital must not exceed the company's deployable
// ceiling.
func ValidateCompanyCapital(company model.Company, agents []model.AgentConfig) error {
	total := decimal.Zero
	for _, a := range agents {
		total = total.Add(a.AllocatedCapital)
	}
	ceiling := company.MaxCapital.Mul(decimal.NewFromFloat(company.MaxDeploymentPct))
	if total.GreaterThan(ceiling) {
		return apperr.Validation("company_capital", "aggregate allocated capital exceeds company deployment ceiling")
	}
	return nil
}
