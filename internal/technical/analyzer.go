// Package technical converts a market context's raw indicators into
// structured per-indicator signals with confidence scores, then
// synthesizes them into one overall signal via weighted voting. All
// calculations are deterministic and auditable (no model inference),
// per spec §4.5.
package technical

import (
	"fmt"

	"github.com/kestrel-trading/agentrader/internal/model"
)

// Analyzer produces a TechnicalAnalysis from a MarketContext.
type Analyzer struct{}

// NewAnalyzer builds a technical analyzer. It holds no state: every
// calculation is a pure function of the given context.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze runs every per-indicator signal rule over ctx and synthesizes
// them into an overall signal and confidence via weighted voting.
func (a *Analyzer) Analyze(ctx model.MarketContext) model.TechnicalAnalysis {
	var signals []model.TechnicalSignal

	signals = append(signals, analyzeRSI(ctx.Indicators.RSI14))
	signals = append(signals, analyzeSMAPosition(ctx.Indicators.PriceVsSMA20Pct, ctx.Indicators.SMA20))

	if ctx.Trend.Trend != "" {
		signals = append(signals, analyzeTrend(ctx.Trend))
	}

	if ctx.CurrentPrice > 0 {
		signals = append(signals, analyzeLevels(ctx.Levels, ctx.CurrentPrice))
	}

	signals = append(signals, analyzeVolume(ctx.Volume))
	signals = append(signals, analyzePriceAction(ctx.PriceAction))

	overallSignal, overallConfidence := synthesize(signals)

	return model.TechnicalAnalysis{
		OverallSignal:     overallSignal,
		OverallConfidence: overallConfidence,
		Signals:           signals,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func analyzeRSI(rsi float64) model.TechnicalSignal {
	switch {
	case rsi < 30:
		return model.TechnicalSignal{
			Indicator:  "rsi",
			Signal:     model.SignalBullish,
			Confidence: clamp01((30 - rsi) / 10),
			Value:      rsi,
			Reasoning:  fmt.Sprintf("RSI at %.1f suggests oversold conditions", rsi),
		}
	case rsi > 70:
		return model.TechnicalSignal{
			Indicator:  "rsi",
			Signal:     model.SignalBearish,
			Confidence: clamp01((rsi - 70) / 10),
			Value:      rsi,
			Reasoning:  fmt.Sprintf("RSI at %.1f suggests overbought conditions", rsi),
		}
	default:
		return model.TechnicalSignal{
			Indicator:  "rsi",
			Signal:     model.SignalNeutral,
			Confidence: clamp01(1.0 - absFloat(rsi-50)/20),
			Value:      rsi,
			Reasoning:  fmt.Sprintf("RSI at %.1f is in neutral zone", rsi),
		}
	}
}

func analyzeSMAPosition(priceVsSMA, smaValue float64) model.TechnicalSignal {
	switch {
	case priceVsSMA > 2:
		return model.TechnicalSignal{
			Indicator:  "sma_20",
			Signal:     model.SignalBullish,
			Confidence: clamp01(absFloat(priceVsSMA) / 5),
			Value:      smaValue,
			Reasoning:  fmt.Sprintf("Price %.1f%% above 20-period SMA (bullish momentum)", priceVsSMA),
		}
	case priceVsSMA < -2:
		return model.TechnicalSignal{
			Indicator:  "sma_20",
			Signal:     model.SignalBearish,
			Confidence: clamp01(absFloat(priceVsSMA) / 5),
			Value:      smaValue,
			Reasoning:  fmt.Sprintf("Price %.1f%% below 20-period SMA (bearish momentum)", priceVsSMA),
		}
	default:
		return model.TechnicalSignal{
			Indicator:  "sma_20",
			Signal:     model.SignalNeutral,
			Confidence: 0.5,
			Value:      smaValue,
			Reasoning:  fmt.Sprintf("Price near 20-period SMA (%+.1f%%)", priceVsSMA),
		}
	}
}

func analyzeTrend(trend model.TrendAnalysis) model.TechnicalSignal {
	switch trend.Trend {
	case model.TrendBullish:
		return model.TechnicalSignal{
			Indicator:  "trend",
			Signal:     model.SignalBullish,
			Confidence: trend.Strength,
			Value:      trend.ChangePct,
			Reasoning:  fmt.Sprintf("Bullish trend with %+.1f%% change (strength: %.2f)", trend.ChangePct, trend.Strength),
		}
	case model.TrendBearish:
		return model.TechnicalSignal{
			Indicator:  "trend",
			Signal:     model.SignalBearish,
			Confidence: trend.Strength,
			Value:      trend.ChangePct,
			Reasoning:  fmt.Sprintf("Bearish trend with %+.1f%% change (strength: %.2f)", trend.ChangePct, trend.Strength),
		}
	default:
		return model.TechnicalSignal{
			Indicator:  "trend",
			Signal:     model.SignalNeutral,
			Confidence: 0.5,
			Value:      trend.ChangePct,
			Reasoning:  "Sideways/choppy trend with no clear direction",
		}
	}
}

func analyzeLevels(levels model.Levels, currentPrice float64) model.TechnicalSignal {
	switch {
	case levels.DistanceToSupportPct < 2:
		return model.TechnicalSignal{
			Indicator:  "support_resistance",
			Signal:     model.SignalBullish,
			Confidence: maxFloat(0.6, 1.0-levels.DistanceToSupportPct/2),
			Value:      currentPrice,
			Reasoning:  fmt.Sprintf("Price near support level (%.1f%% above) - potential bounce", levels.DistanceToSupportPct),
		}
	case levels.DistanceToResistancePct < 2:
		return model.TechnicalSignal{
			Indicator:  "support_resistance",
			Signal:     model.SignalBearish,
			Confidence: maxFloat(0.6, 1.0-levels.DistanceToResistancePct/2),
			Value:      currentPrice,
			Reasoning:  fmt.Sprintf("Price near resistance level (%.1f%% below) - potential rejection", levels.DistanceToResistancePct),
		}
	default:
		return model.TechnicalSignal{
			Indicator:  "support_resistance",
			Signal:     model.SignalNeutral,
			Confidence: 0.4,
			Value:      currentPrice,
			Reasoning:  "Price in mid-range between support and resistance",
		}
	}
}

func analyzeVolume(volume model.VolumeAnalysis) model.TechnicalSignal {
	switch volume.Trend {
	case model.VolumeHigh:
		return model.TechnicalSignal{
			Indicator:  "volume",
			Signal:     model.SignalNeutral,
			Confidence: 0.7,
			Value:      volume.Ratio,
			Reasoning:  fmt.Sprintf("High volume (%.1fx average) - strong participation", volume.Ratio),
		}
	case model.VolumeLow:
		return model.TechnicalSignal{
			Indicator:  "volume",
			Signal:     model.SignalNeutral,
			Confidence: 0.3,
			Value:      volume.Ratio,
			Reasoning:  fmt.Sprintf("Low volume (%.1fx average) - weak conviction", volume.Ratio),
		}
	default:
		return model.TechnicalSignal{
			Indicator:  "volume",
			Signal:     model.SignalNeutral,
			Confidence: 0.5,
			Value:      volume.Ratio,
			Reasoning:  "Normal volume levels",
		}
	}
}

var priceActionSignals = map[model.PriceActionPattern]struct {
	signal     model.Signal
	confidence float64
	reasoning  string
}{
	model.PatternStrongUptrend:        {model.SignalBullish, 0.85, "Strong uptrend (higher highs and lows)"},
	model.PatternStrongDowntrend:      {model.SignalBearish, 0.85, "Strong downtrend (lower highs and lows)"},
	model.PatternBullishConsolidation: {model.SignalBullish, 0.65, "Bullish consolidation (higher lows)"},
	model.PatternBearishConsolidation: {model.SignalBearish, 0.65, "Bearish consolidation (lower highs)"},
	model.PatternChoppy:               {model.SignalNeutral, 0.3, "Choppy price action - no clear pattern"},
}

func analyzePriceAction(pattern model.PriceActionPattern) model.TechnicalSignal {
	entry, ok := priceActionSignals[pattern]
	if !ok {
		entry = struct {
			signal     model.Signal
			confidence float64
			reasoning  string
		}{model.SignalNeutral, 0.5, fmt.Sprintf("Price action: %s", pattern)}
	}

	return model.TechnicalSignal{
		Indicator:  "price_action",
		Signal:     entry.signal,
		Confidence: entry.confidence,
		Reasoning:  entry.reasoning,
	}
}

// synthesize sums each signal's confidence into its direction's bucket
// and returns the bucket with the highest total as the overall signal,
// with overall confidence equal to that bucket's share of the total. Any
// tie for the highest total resolves to neutral, with confidence equal to
// the neutral bucket's share; no signals at all gives neutral with 0.
func synthesize(signals []model.TechnicalSignal) (model.Signal, float64) {
	if len(signals) == 0 {
		return model.SignalNeutral, 0
	}

	var bullish, bearish, neutral float64
	for _, s := range signals {
		switch s.Signal {
		case model.SignalBullish:
			bullish += s.Confidence
		case model.SignalBearish:
			bearish += s.Confidence
		default:
			neutral += s.Confidence
		}
	}

	total := bullish + bearish + neutral
	if total == 0 {
		return model.SignalNeutral, 0
	}

	switch {
	case bullish > bearish && bullish > neutral:
		return model.SignalBullish, bullish / total
	case bearish > bullish && bearish > neutral:
		return model.SignalBearish, bearish / total
	default:
		return model.SignalNeutral, neutral / total
	}
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
