// Package decision implements the rules-based (non-AI) decision maker:
// sentiment and technical signals are fused into one combined score,
// thresholded into buy/sell/hold, and sized into a quantity against the
// agent's risk parameters. Grounded on the reference algorithmic
// decision maker.
package decision

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kestrel-trading/agentrader/internal/apperr"
	"github.com/kestrel-trading/agentrader/internal/model"
)

// Thresholds empirically validated on historical backtests, carried
// forward unchanged from the reference implementation.
const (
	buyThreshold  = 0.3
	sellThreshold = -0.3
	neutralZone   = 0.15

	confidenceHigh   = 0.85
	confidenceMedium = 0.75
	confidenceLow    = 0.65
)

// AlgorithmicDecisionMaker fuses sentiment and technical signals into a
// trading decision using fixed weights and thresholds (no AI/LLM
// involvement).
type AlgorithmicDecisionMaker struct {
	SentimentWeight float64
	TechnicalWeight float64
}

// NewAlgorithmicDecisionMaker builds a decision maker with the given
// sentiment/technical weighting. Defaults to 60/40 when both are zero.
func NewAlgorithmicDecisionMaker(sentimentWeight, technicalWeight float64) *AlgorithmicDecisionMaker {
	if sentimentWeight == 0 && technicalWeight == 0 {
		sentimentWeight, technicalWeight = 0.6, 0.4
	}
	return &AlgorithmicDecisionMaker{SentimentWeight: sentimentWeight, TechnicalWeight: technicalWeight}
}

// BuyThreshold and SellThreshold are the fixed fusion thresholds Decide
// applies to a combined score, exported for callers (the backtest
// engine) that classify the same score outside of Decide so they can
// react to a bearish regime Decide itself only ever logs as a Hold.
const (
	BuyThreshold  = buyThreshold
	SellThreshold = sellThreshold
)

// DefaultStopLossFraction is the fallback applied when an agent's
// RiskParams.StopLossFraction is unset.
const DefaultStopLossFraction = 0.03

// Combined fuses sentiment and technical analysis into the same
// score/confidence pair Decide computes internally.
func (d *AlgorithmicDecisionMaker) Combined(sentiment model.AggregatedSentiment, technical model.TechnicalAnalysis) (score, confidence float64) {
	technicalScore := technicalToScore(technical.OverallSignal)
	score = sentiment.Score*d.SentimentWeight + technicalScore*d.TechnicalWeight
	confidence = sentiment.Confidence*d.SentimentWeight + technical.OverallConfidence*d.TechnicalWeight
	return score, confidence
}

// PositionSize exports the confidence-banded sizing formula Decide uses
// for its buy quantity, for callers that must size against a capital
// base other than AgentConfig.AllocatedCapital (the backtest engine
// sizes against simulated equity at the current bar).
func PositionSize(confidence float64, currentPrice, maxPositionDollars decimal.Decimal, isCrypto bool) decimal.Decimal {
	return positionSize(confidence, currentPrice, maxPositionDollars, isCrypto)
}

// ResolveMaxPositionDollars interprets a max_position_size setting
// against a capital base: <=1 is a fraction of that base, otherwise an
// absolute dollar ceiling.
func ResolveMaxPositionDollars(maxPositionSize, capitalBase decimal.Decimal) decimal.Decimal {
	if maxPositionSize.LessThanOrEqual(decimal.NewFromInt(1)) {
		return capitalBase.Mul(maxPositionSize)
	}
	return maxPositionSize
}

func technicalToScore(signal model.Signal) float64 {
	switch signal {
	case model.SignalBullish:
		return 1.0
	case model.SignalBearish:
		return -1.0
	default:
		return 0.0
	}
}

// Decide produces a Decision from sentiment and technical analysis for
// one symbol at its current price, under the given agent's risk
// configuration. currentPrice <= 0 returns an apperr ValidationError: a
// hard error, not a hold decision.
func (d *AlgorithmicDecisionMaker) Decide(
	sentiment model.AggregatedSentiment,
	technical model.TechnicalAnalysis,
	currentPrice decimal.Decimal,
	cfg model.AgentConfig,
) (model.Decision, error) {
	if !currentPrice.IsPositive() {
		return model.Decision{}, apperr.Validation("decision", "current_price must be positive")
	}

	minConfidence := cfg.Risk.MinConfidence
	if minConfidence == 0 {
		minConfidence = confidenceLow
	}

	technicalScore := technicalToScore(technical.OverallSignal)

	combinedScore := sentiment.Score*d.SentimentWeight + technicalScore*d.TechnicalWeight
	combinedConfidence := sentiment.Confidence*d.SentimentWeight + technical.OverallConfidence*d.TechnicalWeight

	if combinedConfidence < minConfidence {
		return model.Decision{
			Action:     model.ActionHold,
			Quantity:   decimal.Zero,
			Confidence: combinedConfidence,
			Rationale: fmt.Sprintf(
				"Combined confidence (%.1f%%) below minimum threshold (%.0f%%). Waiting for higher conviction signal.",
				combinedConfidence*100, minConfidence*100,
			),
		}, nil
	}

	switch {
	case combinedScore > buyThreshold:
		return d.buyDecision(combinedScore, combinedConfidence, sentiment.Score, technical.OverallSignal, currentPrice, cfg)
	case combinedScore < sellThreshold:
		return model.Decision{
			Action:     model.ActionHold,
			Quantity:   decimal.Zero,
			Confidence: combinedConfidence,
			Rationale: fmt.Sprintf(
				"Strong bearish signal: combined_score=%.2f (sentiment: %+.2f, technical: %s). "+
					"Not entering position in bearish conditions. Currently only trading long positions.",
				combinedScore, sentiment.Score, technical.OverallSignal,
			),
		}, nil
	default:
		strength := "weak"
		if absFloat(combinedScore) >= neutralZone {
			strength = "moderate"
		}
		direction := "neutral"
		switch {
		case combinedScore > 0:
			direction = "bullish"
		case combinedScore < 0:
			direction = "bearish"
		}
		return model.Decision{
			Action:     model.ActionHold,
			Quantity:   decimal.Zero,
			Confidence: combinedConfidence,
			Rationale: fmt.Sprintf(
				"%s %s signal: combined_score=%.2f (sentiment: %+.2f, technical: %s). Waiting for stronger conviction (threshold: ±%.1f).",
				capitalize(strength), direction, combinedScore, sentiment.Score, technical.OverallSignal, buyThreshold,
			),
		}, nil
	}
}

func (d *AlgorithmicDecisionMaker) buyDecision(
	combinedScore, combinedConfidence, sentimentScore float64,
	technicalSignal model.Signal,
	currentPrice decimal.Decimal,
	cfg model.AgentConfig,
) (model.Decision, error) {
	quantity := positionSize(combinedConfidence, currentPrice, maxPositionDollars(cfg), model.IsCrypto(cfg.Symbol))

	stopLossPct := cfg.Risk.StopLossFraction
	if stopLossPct == 0 {
		stopLossPct = DefaultStopLossFraction
	}
	stopLoss := currentPrice.Mul(decimal.NewFromFloat(1 - stopLossPct)).Round(2)

	decision := model.Decision{
		Action:     model.ActionBuy,
		Quantity:   quantity,
		Confidence: combinedConfidence,
		StopLoss:   &stopLoss,
		Rationale: fmt.Sprintf(
			"Strong bullish signal: combined_score=%.2f (sentiment: %+.2f, technical: %s). "+
				"Confidence %.0f%% exceeds threshold. Entering position with %.1f%% stop loss.",
			combinedScore, sentimentScore, technicalSignal, combinedConfidence*100, stopLossPct*100,
		),
	}

	if err := decision.Validate(currentPrice); err != nil {
		return model.Decision{}, err
	}
	return decision, nil
}

// maxPositionDollars resolves the agent's max_position_size into a
// dollar amount: a value <= 1 is a fraction of allocated capital,
// otherwise it is already an absolute dollar ceiling.
func maxPositionDollars(cfg model.AgentConfig) decimal.Decimal {
	return ResolveMaxPositionDollars(cfg.Risk.MaxPositionSize, cfg.AllocatedCapital)
}

// positionSize scales the max position dollar ceiling by the
// confidence band (100%/75%/50%) and converts to a quantity: equities
// truncate to an integer share count (minimum 1), crypto symbols round
// to 8 decimal places of fractional quantity (minimum 0.00000001).
func positionSize(confidence float64, currentPrice, maxPositionDollars decimal.Decimal, isCrypto bool) decimal.Decimal {
	var fraction float64
	switch {
	case confidence >= confidenceHigh:
		fraction = 1.0
	case confidence >= confidenceMedium:
		fraction = 0.75
	default:
		fraction = 0.50
	}

	dollars := maxPositionDollars.Mul(decimal.NewFromFloat(fraction))
	quantity := dollars.Div(currentPrice)

	if isCrypto {
		q := quantity.Round(8)
		if minQty := decimal.New(1, -8); q.LessThan(minQty) {
			q = minQty
		}
		return q
	}

	shares := quantity.Truncate(0)
	if shares.LessThan(decimal.NewFromInt(1)) {
		shares = decimal.NewFromInt(1)
	}
	return shares
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-32) + s[1:]
}
