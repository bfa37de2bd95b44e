package decision

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-trading/agentrader/internal/model"
)

func equityConfig(maxPosition float64) model.AgentConfig {
	return model.AgentConfig{
		Symbol: "AAPL",
		Risk: model.RiskParams{
			MaxPositionSize:  decimal.NewFromFloat(maxPosition),
			StopLossFraction: 0.03,
			MinConfidence:    0.65,
		},
	}
}

func TestDecide_Scenario1_StrongBullishEquity(t *testing.T) {
	d := NewAlgorithmicDecisionMaker(0.6, 0.4)
	sentiment := model.AggregatedSentiment{Score: 0.7, Confidence: 0.8}
	technical := model.TechnicalAnalysis{OverallSignal: model.SignalBullish, OverallConfidence: 0.7}

	got, err := d.Decide(sentiment, technical, decimal.NewFromInt(100), equityConfig(5000))
	require.NoError(t, err)

	// combined_confidence = 0.8*0.6 + 0.7*0.4 = 0.76, same band as scenario 3
	// (medium, 75%): quantity = int(5000*0.75/100) = 37.
	assert.Equal(t, model.ActionBuy, got.Action)
	assert.True(t, got.Quantity.Equal(decimal.NewFromInt(37)), "quantity=%s", got.Quantity)
	require.NotNil(t, got.StopLoss)
	assert.True(t, got.StopLoss.Equal(decimal.NewFromFloat(97.00)))
	assert.InDelta(t, 0.76, got.Confidence, 0.001)
}

func TestDecide_Scenario2_HighConfidenceBuyEquity(t *testing.T) {
	d := NewAlgorithmicDecisionMaker(0.6, 0.4)
	sentiment := model.AggregatedSentiment{Score: 0.8, Confidence: 0.9}
	technical := model.TechnicalAnalysis{OverallSignal: model.SignalBullish, OverallConfidence: 0.85}

	got, err := d.Decide(sentiment, technical, decimal.NewFromInt(100), equityConfig(5000))
	require.NoError(t, err)

	assert.Equal(t, model.ActionBuy, got.Action)
	assert.True(t, got.Quantity.Equal(decimal.NewFromInt(50)), "quantity=%s", got.Quantity)
	assert.True(t, got.StopLoss.Equal(decimal.NewFromFloat(97.00)))
}

func TestDecide_Scenario3_MediumConfidenceBuyEquity(t *testing.T) {
	d := NewAlgorithmicDecisionMaker(0.6, 0.4)
	sentiment := model.AggregatedSentiment{Score: 0.6, Confidence: 0.8}
	technical := model.TechnicalAnalysis{OverallSignal: model.SignalBullish, OverallConfidence: 0.7}

	got, err := d.Decide(sentiment, technical, decimal.NewFromInt(100), equityConfig(5000))
	require.NoError(t, err)

	assert.Equal(t, model.ActionBuy, got.Action)
	assert.True(t, got.Quantity.Equal(decimal.NewFromInt(37)), "quantity=%s", got.Quantity)
	assert.True(t, got.StopLoss.Equal(decimal.NewFromFloat(97.00)))
}

func TestDecide_Scenario4_BelowThresholdHold(t *testing.T) {
	d := NewAlgorithmicDecisionMaker(0.6, 0.4)
	sentiment := model.AggregatedSentiment{Score: 0.5, Confidence: 0.5}
	technical := model.TechnicalAnalysis{OverallSignal: model.SignalBullish, OverallConfidence: 0.6}

	got, err := d.Decide(sentiment, technical, decimal.NewFromInt(100), equityConfig(5000))
	require.NoError(t, err)

	assert.Equal(t, model.ActionHold, got.Action)
	assert.True(t, got.Quantity.IsZero())
}

func TestDecide_Scenario5_StrongBearishNoShort(t *testing.T) {
	d := NewAlgorithmicDecisionMaker(0.6, 0.4)
	sentiment := model.AggregatedSentiment{Score: -0.7, Confidence: 0.8}
	technical := model.TechnicalAnalysis{OverallSignal: model.SignalBearish, OverallConfidence: 0.7}

	got, err := d.Decide(sentiment, technical, decimal.NewFromInt(100), equityConfig(5000))
	require.NoError(t, err)

	assert.Equal(t, model.ActionHold, got.Action)
	assert.Contains(t, got.Rationale, "bearish")
}

func TestDecide_Scenario6_CryptoFractionalBuy(t *testing.T) {
	d := NewAlgorithmicDecisionMaker(0.6, 0.4)
	sentiment := model.AggregatedSentiment{Score: 0.7, Confidence: 0.85}
	technical := model.TechnicalAnalysis{OverallSignal: model.SignalBullish, OverallConfidence: 0.8}

	cfg := model.AgentConfig{
		Symbol:           "BTC/USD",
		AllocatedCapital: decimal.NewFromInt(100000),
		Risk: model.RiskParams{
			MaxPositionSize:  decimal.NewFromFloat(0.05),
			StopLossFraction: 0.03,
			MinConfidence:    0.65,
		},
	}

	got, err := d.Decide(sentiment, technical, decimal.NewFromInt(60000), cfg)
	require.NoError(t, err)

	// combined_confidence = 0.85*0.6 + 0.8*0.4 = 0.83 (medium band, 75%):
	// position_$ = 100000*0.05*0.75 = 3750; quantity = 3750/60000 = 0.0625.
	assert.Equal(t, model.ActionBuy, got.Action)
	assert.True(t, got.Quantity.Equal(decimal.NewFromFloat(0.0625)), "quantity=%s", got.Quantity)
	require.NotNil(t, got.StopLoss)
	assert.True(t, got.StopLoss.Equal(decimal.NewFromFloat(58200)))
}

func TestDecide_CombinedScoreExactlyAtThreshold_Holds(t *testing.T) {
	d := NewAlgorithmicDecisionMaker(0.6, 0.4)
	// combined = 0.5*0.6 + 0*0.4 = 0.3 exactly
	sentiment := model.AggregatedSentiment{Score: 0.5, Confidence: 0.9}
	technical := model.TechnicalAnalysis{OverallSignal: model.SignalNeutral, OverallConfidence: 0.9}

	got, err := d.Decide(sentiment, technical, decimal.NewFromInt(100), equityConfig(5000))
	require.NoError(t, err)
	assert.Equal(t, model.ActionHold, got.Action)
}

func TestDecide_NonPositivePrice_ReturnsValidationError(t *testing.T) {
	d := NewAlgorithmicDecisionMaker(0.6, 0.4)
	sentiment := model.AggregatedSentiment{Score: 0.7, Confidence: 0.8}
	technical := model.TechnicalAnalysis{OverallSignal: model.SignalBullish, OverallConfidence: 0.7}

	_, err := d.Decide(sentiment, technical, decimal.Zero, equityConfig(5000))
	assert.Error(t, err)
}

func TestDecide_MonotoneInSentiment_NeverFlipsBuyToHoldAboveThreshold(t *testing.T) {
	d := NewAlgorithmicDecisionMaker(0.6, 0.4)
	technical := model.TechnicalAnalysis{OverallSignal: model.SignalNeutral, OverallConfidence: 0.9}

	low := model.AggregatedSentiment{Score: 0.6, Confidence: 0.9}
	high := model.AggregatedSentiment{Score: 0.9, Confidence: 0.9}

	gotLow, err := d.Decide(low, technical, decimal.NewFromInt(100), equityConfig(5000))
	require.NoError(t, err)
	gotHigh, err := d.Decide(high, technical, decimal.NewFromInt(100), equityConfig(5000))
	require.NoError(t, err)

	if gotLow.Action == model.ActionBuy {
		assert.Equal(t, model.ActionBuy, gotHigh.Action)
	}
}
