package risk

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-trading/agentrader/internal/apperr"
	"github.com/kestrel-trading/agentrader/internal/model"
)

func baseAgent() model.AgentConfig {
	return model.AgentConfig{
		ID:     "agent-1",
		Symbol: "AAPL",
		Status: model.AgentActive,
		Risk: model.RiskParams{
			MaxPositionSize:        decimal.NewFromFloat(0.5),
			StopLossFraction:       0.02,
			MaxDailyTrades:         10,
			MaxDailyLoss:           decimal.NewFromInt(1000),
			MinConfidence:          0.6,
			MaxConcurrentPositions: 3,
		},
		AllocatedCapital: decimal.NewFromInt(10000),
	}
}

func baseDecision() model.Decision {
	sl := decimal.NewFromFloat(95)
	return model.Decision{
		Action:     model.ActionBuy,
		Quantity:   decimal.NewFromInt(10),
		Confidence: 0.8,
		Rationale:  "combined score above buy threshold",
		StopLoss:   &sl,
	}
}

func TestValidate_OK(t *testing.T) {
	err := Validate(baseAgent(), model.AgentState{}, baseDecision(), decimal.NewFromInt(100))
	require.NoError(t, err)
}

func TestValidate_AgentPaused(t *testing.T) {
	agent := baseAgent()
	agent.Status = model.AgentPaused

	err := Validate(agent, model.AgentState{}, baseDecision(), decimal.NewFromInt(100))

	var verr *apperr.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "agent_status", verr.Check)
}

func TestValidate_DailyTradeLimit(t *testing.T) {
	agent := baseAgent()
	state := model.AgentState{TradesToday: agent.Risk.MaxDailyTrades}

	err := Validate(agent, state, baseDecision(), decimal.NewFromInt(100))

	var verr *apperr.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "daily_trade_limit", verr.Check)
}

func TestValidate_PositionExceedsMax(t *testing.T) {
	agent := baseAgent()
	decision := baseDecision()
	decision.Quantity = decimal.NewFromInt(1000) // 1000 * 100 = 100000, way over 50% of 10000

	err := Validate(agent, model.AgentState{}, decision, decimal.NewFromInt(100))

	var verr *apperr.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "max_position_size", verr.Check)
}

func TestValidate_NoCapital(t *testing.T) {
	agent := baseAgent()
	agent.AllocatedCapital = decimal.Zero

	err := Validate(agent, model.AgentState{}, baseDecision(), decimal.NewFromInt(100))

	var verr *apperr.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "allocated_capital", verr.Check)
}

func TestValidate_StopLossMissing(t *testing.T) {
	agent := baseAgent()
	decision := baseDecision()
	decision.StopLoss = nil

	err := Validate(agent, model.AgentState{}, decision, decimal.NewFromInt(100))

	var verr *apperr.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "stop_loss", verr.Check)
}

func TestValidate_StopLossTooTight(t *testing.T) {
	agent := baseAgent()
	decision := baseDecision()
	tight := decimal.NewFromFloat(99.5) // 0.5% below price, less than the 2% minimum
	decision.StopLoss = &tight

	err := Validate(agent, model.AgentState{}, decision, decimal.NewFromInt(100))

	var verr *apperr.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "stop_loss", verr.Check)
}

func TestValidate_DailyLossLimit(t *testing.T) {
	agent := baseAgent()
	state := model.AgentState{PnLToday: decimal.NewFromInt(-1500)}

	err := Validate(agent, state, baseDecision(), decimal.NewFromInt(100))

	var verr *apperr.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "daily_loss_limit", verr.Check)
}

func TestValidate_BelowConfidence(t *testing.T) {
	agent := baseAgent()
	decision := baseDecision()
	decision.Confidence = 0.1

	err := Validate(agent, model.AgentState{}, decision, decimal.NewFromInt(100))

	var verr *apperr.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "min_confidence", verr.Check)
}

func TestValidate_TooManyPositions(t *testing.T) {
	agent := baseAgent()
	state := model.AgentState{
		Positions: make([]model.Position, agent.Risk.MaxConcurrentPositions),
	}

	err := Validate(agent, state, baseDecision(), decimal.NewFromInt(100))

	var verr *apperr.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "max_concurrent_positions", verr.Check)
}

func TestValidate_HoldSkipsPositionAndStopChecks(t *testing.T) {
	agent := baseAgent()
	decision := model.Decision{
		Action:     model.ActionHold,
		Quantity:   decimal.Zero,
		Confidence: 0.9,
		Rationale:  "neutral zone",
	}

	err := Validate(agent, model.AgentState{}, decision, decimal.NewFromInt(100))
	require.NoError(t, err)
}

func TestValidateCompanyCapital(t *testing.T) {
	company := model.Company{
		MaxCapital:       decimal.NewFromInt(100000),
		MaxDeploymentPct: 0.8,
	}
	agents := []model.AgentConfig{
		{AllocatedCapital: decimal.NewFromInt(40000)},
		{AllocatedCapital: decimal.NewFromInt(30000)},
	}
	require.NoError(t, ValidateCompanyCapital(company, agents))

	agents = append(agents, model.AgentConfig{AllocatedCapital: decimal.NewFromInt(20000)})
	err := ValidateCompanyCapital(company, agents)
	var verr *apperr.ValidationError
	require.True(t, errors.As(err, &verr))
}
