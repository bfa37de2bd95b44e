package backtest

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/kestrel-trading/agentrader/internal/model"
)

// populateMetrics fills run's performance fields from the closed trades
// and the bar-by-bar equity curve. Metrics are computed over sell trades
// only: a buy has no realized P&L.
func populateMetrics(run *model.BacktestRun, trades []model.BacktestTrade, equity []equityPoint) {
	if !run.InitialCapital.IsZero() {
		delta := run.FinalCapital.Sub(run.InitialCapital)
		run.TotalReturnPct = delta.Div(run.InitialCapital).InexactFloat64() * 100
	}

	var totalPnL float64
	for _, t := range trades {
		if t.Action != model.ActionSell || t.PnL == nil {
			continue
		}
		run.TotalTrades++
		pnl, _ := t.PnL.Float64()
		totalPnL += pnl
		if pnl > 0 {
			run.WinningTrades++
		} else if pnl < 0 {
			run.LosingTrades++
		}
	}
	if run.TotalTrades > 0 {
		run.WinRate = float64(run.WinningTrades) / float64(run.TotalTrades)
		run.AvgTradePnL = totalPnL / float64(run.TotalTrades)
	}

	run.MaxDrawdownPct = maxDrawdown(equity)
	run.SharpeRatio = sharpeRatio(equity)
}

// maxDrawdown returns the largest peak-to-trough decline of the equity
// curve, as a positive percentage.
func maxDrawdown(equity []equityPoint) float64 {
	if len(equity) == 0 {
		return 0
	}

	peak := equity[0].value
	var worst decimal.Decimal
	for _, p := range equity {
		if p.value.GreaterThan(peak) {
			peak = p.value
		}
		if peak.IsZero() {
			continue
		}
		drawdown := peak.Sub(p.value).Div(peak)
		if drawdown.GreaterThan(worst) {
			worst = drawdown
		}
	}
	return worst.InexactFloat64() * 100
}

// sharpeRatio computes the bar-to-bar Sharpe ratio: the mean excess daily
// return over its standard deviation, annualized by sqrt(252). Zero when
// fewer than two equity points exist or the series has no variance.
func sharpeRatio(equity []equityPoint) float64 {
	if len(equity) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].value
		if prev.IsZero() {
			continue
		}
		r := equity[i].value.Sub(prev).Div(prev).InexactFloat64()
		returns = append(returns, r)
	}
	if len(returns) < 2 {
		return 0
	}

	mean := meanOf(returns)
	std := stddevOf(returns, mean)
	if std == 0 {
		return 0
	}

	dailyRiskFree := riskFreeRate / 252
	return (mean - dailyRiskFree) / std * math.Sqrt(252)
}

func meanOf(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddevOf(xs []float64, mean float64) float64 {
	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}
