// Package marketdata computes the indicator/trend/support-resistance/
// volume/price-action context the technical analyzer and decision maker
// consume for a symbol, preferring persisted bars and falling back to a
// broker quote source when coverage is thin.
package marketdata

import (
	"context"
	"time"

	"github.com/cinar/indicator/v2/momentum"
	"github.com/shopspring/decimal"

	"github.com/kestrel-trading/agentrader/internal/apperr"
	"github.com/kestrel-trading/agentrader/internal/model"
)

// sma20Window/sma50Window/rsiPeriod/srWindow/volumeWindow/priceActionWindow are the
// fixed window sizes named by the spec's indicator definitions.
const (
	sma20Window        = 20
	sma50Window         = 50
	rsiPeriod           = 14
	srWindow            = 20
	volumeWindow        = 20
	priceActionWindow   = 5
	trendWindowMax      = 100
)

// BrokerQuoteSource is the external collaborator a live deployment would
// inject to fetch a quote/bars directly from the brokerage when the
// store's coverage for a lookback window is too thin. Raw HTTP clients to
// a broker are out of scope for this repository; only the interface
// shape is modeled here.
type BrokerQuoteSource interface {
	GetLatestQuote(ctx context.Context, symbol string) (decimal.Decimal, error)
	GetBars(ctx context.Context, symbol, timeframe string, limit int) ([]model.Bar, error)
}

// BarStore is the subset of internal/store.Store the provider needs: read
// recent bars and persist newly fetched ones.
type BarStore interface {
	QueryBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]model.Bar, error)
	UpsertBars(ctx context.Context, bars []model.Bar) error
}

// Provider is the contract the cycle runner and backtest engine consume.
type Provider interface {
	GetMarketContext(ctx context.Context, symbol, timeframe string, lookback int) (model.MarketContext, error)
}

// StoreBackedProvider prefers bars already persisted in the store and
// falls back to the broker only when the store's coverage for the
// requested lookback is below half the window, per spec §4.2's "data
// source discipline." Freshly fetched bars are always upserted before
// being returned.
type StoreBackedProvider struct {
	Store  BarStore
	Broker BrokerQuoteSource
}

// NewStoreBackedProvider builds a provider that reads through store and
// falls back to broker when the store has too few bars.
func NewStoreBackedProvider(store BarStore, broker BrokerQuoteSource) *StoreBackedProvider {
	return &StoreBackedProvider{Store: store, Broker: broker}
}

func (p *StoreBackedProvider) GetMarketContext(ctx context.Context, symbol, timeframe string, lookback int) (model.MarketContext, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -lookback*2) // generous window; callers trim via lookback count below

	bars, err := p.Store.QueryBars(ctx, symbol, timeframe, start, end)
	if err != nil {
		return model.MarketContext{}, apperr.TransientIO("query_bars", 1, err)
	}

	if len(bars) < lookback/2 && p.Broker != nil {
		fetched, err := p.Broker.GetBars(ctx, symbol, timeframe, lookback)
		if err == nil && len(fetched) > 0 {
			if err := p.Store.UpsertBars(ctx, fetched); err != nil {
				return model.MarketContext{}, apperr.TransientIO("upsert_bars", 1, err)
			}
			bars = fetched
		}
	}

	if len(bars) > lookback {
		bars = bars[len(bars)-lookback:]
	}

	if len(bars) == 0 {
		return model.MarketContext{Symbol: symbol, Timeframe: timeframe, DataAvailable: false}, nil
	}

	currentPrice := bars[len(bars)-1].Close.InexactFloat64()
	if p.Broker != nil {
		if quote, err := p.Broker.GetLatestQuote(ctx, symbol); err == nil {
			currentPrice = quote.InexactFloat64()
		}
	}

	return BuildContext(symbol, timeframe, currentPrice, bars), nil
}

// FixtureProvider serves a fixed, deterministic set of bars per symbol,
// with no I/O, for tests that need reproducible market data without a
// database. The backtest engine does not use it: it calls BuildContext on
// its own bar window.
type FixtureProvider struct {
	Bars map[string][]model.Bar
}

// NewFixtureProvider builds a provider over an in-memory bar set.
func NewFixtureProvider(bars map[string][]model.Bar) *FixtureProvider {
	return &FixtureProvider{Bars: bars}
}

func (p *FixtureProvider) GetMarketContext(_ context.Context, symbol, timeframe string, lookback int) (model.MarketContext, error) {
	all := p.Bars[symbol]
	if len(all) == 0 {
		return model.MarketContext{Symbol: symbol, Timeframe: timeframe, DataAvailable: false}, nil
	}
	bars := all
	if len(bars) > lookback {
		bars = bars[len(bars)-lookback:]
	}
	currentPrice := bars[len(bars)-1].Close.InexactFloat64()
	return BuildContext(symbol, timeframe, currentPrice, bars), nil
}

// BuildContext computes every derived analytic field from a price/volume
// window with no I/O, shared by both Provider implementations and the
// backtest engine's local context builder. DataAvailable is false when
// bars is empty.
func BuildContext(symbol, timeframe string, currentPrice float64, bars []model.Bar) model.MarketContext {
	closes := closesOf(bars)

	ctx := model.MarketContext{
		Symbol:        symbol,
		Timeframe:     timeframe,
		CurrentPrice:  currentPrice,
		DataAvailable: len(bars) > 0,
		Bars:          bars,
		Indicators:    computeIndicators(closes, currentPrice),
		Trend:         computeTrend(closes),
		Levels:        computeLevels(bars, currentPrice),
		Volume:        computeVolume(bars),
		PriceAction:   computePriceAction(bars),
	}
	return ctx
}

func closesOf(bars []model.Bar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close.InexactFloat64()
	}
	return closes
}

// sma returns the arithmetic mean of the last n closes, or 0 if there are
// fewer than n bars available (spec: "undefined if fewer than n bars").
func sma(closes []float64, n int) float64 {
	if len(closes) < n {
		return 0
	}
	window := closes[len(closes)-n:]
	var sum float64
	for _, c := range window {
		sum += c
	}
	return sum / float64(n)
}

// rsi computes Wilder-smoothed RSI over the given period using
// cinar/indicator's streaming momentum package, matching the channel-fed
// computation style used elsewhere in this codebase's indicator layer.
// Returns the spec's neutral default of 50 when there is not enough data.
func rsi(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 50
	}

	ch := make(chan float64, len(closes))
	for _, c := range closes {
		ch <- c
	}
	close(ch)

	ind := momentum.NewRsiWithPeriod[float64](period)
	out := ind.Compute(ch)

	var last float64
	found := false
	for v := range out {
		last = v
		found = true
	}
	if !found {
		return 50
	}
	return last
}

func computeIndicators(closes []float64, currentPrice float64) model.Indicators {
	sma20 := sma(closes, sma20Window)
	sma50 := sma(closes, sma50Window)
	r := rsi(closes, rsiPeriod)

	var priceVsSMA20 float64
	if sma20 != 0 {
		priceVsSMA20 = (currentPrice - sma20) / sma20 * 100
	}

	return model.Indicators{
		SMA20:           sma20,
		SMA50:           sma50,
		RSI14:           r,
		PriceVsSMA20Pct: priceVsSMA20,
	}
}

// computeTrend compares the mean of the first quarter against the last
// quarter of the most recent min(len, 100) bars, per spec §4.2.
func computeTrend(closes []float64) model.TrendAnalysis {
	n := len(closes)
	if n > trendWindowMax {
		closes = closes[n-trendWindowMax:]
		n = trendWindowMax
	}
	if n < 4 {
		return model.TrendAnalysis{Trend: model.TrendSideways, Strength: 0, ChangePct: 0}
	}

	quarter := n / 4
	firstQuarter := closes[:quarter]
	lastQuarter := closes[n-quarter:]

	firstMean := mean(firstQuarter)
	lastMean := mean(lastQuarter)

	var changePct float64
	if firstMean != 0 {
		changePct = (lastMean - firstMean) / firstMean * 100
	}

	var trend model.TrendDirection
	switch {
	case changePct > 1:
		trend = model.TrendBullish
	case changePct < -1:
		trend = model.TrendBearish
	default:
		trend = model.TrendSideways
	}

	strength := minFloat(absFloat(changePct)/5, 1)

	return model.TrendAnalysis{Trend: trend, Strength: strength, ChangePct: changePct}
}

// computeLevels derives support/resistance from the high/low extremes of
// the last 20 bars.
func computeLevels(bars []model.Bar, currentPrice float64) model.Levels {
	window := lastN(bars, srWindow)
	if len(window) == 0 {
		return model.Levels{}
	}

	resistance := window[0].High.InexactFloat64()
	support := window[0].Low.InexactFloat64()
	for _, b := range window {
		h := b.High.InexactFloat64()
		l := b.Low.InexactFloat64()
		if h > resistance {
			resistance = h
		}
		if l < support {
			support = l
		}
	}

	var distToSupport, distToResistance float64
	if support != 0 {
		distToSupport = (currentPrice - support) / support * 100
	}
	if resistance != 0 {
		distToResistance = (resistance - currentPrice) / resistance * 100
	}

	return model.Levels{
		Support:                 support,
		Resistance:              resistance,
		DistanceToSupportPct:    distToSupport,
		DistanceToResistancePct: distToResistance,
	}
}

// computeVolume compares the latest bar's volume against the mean of the
// last 20 bars.
func computeVolume(bars []model.Bar) model.VolumeAnalysis {
	window := lastN(bars, volumeWindow)
	if len(window) == 0 {
		return model.VolumeAnalysis{Trend: model.VolumeNormal, Ratio: 1}
	}

	var sum float64
	for _, b := range window {
		sum += float64(b.Volume)
	}
	avg := sum / float64(len(window))
	current := float64(bars[len(bars)-1].Volume)

	var ratio float64 = 1
	if avg != 0 {
		ratio = current / avg
	}

	trend := model.VolumeNormal
	switch {
	case ratio > 1.5:
		trend = model.VolumeHigh
	case ratio < 0.5:
		trend = model.VolumeLow
	}

	return model.VolumeAnalysis{Trend: trend, Ratio: ratio, AvgVolume: avg, CurrVolume: current}
}

// computePriceAction classifies the last 5 bars' high/low monotonicity.
func computePriceAction(bars []model.Bar) model.PriceActionPattern {
	window := lastN(bars, priceActionWindow)
	if len(window) < priceActionWindow {
		return model.PatternChoppy
	}

	risingHighs, risingLows := true, true
	fallingHighs, fallingLows := true, true

	for i := 1; i < len(window); i++ {
		prevHigh, high := window[i-1].High, window[i].High
		prevLow, low := window[i-1].Low, window[i].Low

		if !high.GreaterThan(prevHigh) {
			risingHighs = false
		}
		if !low.GreaterThan(prevLow) {
			risingLows = false
		}
		if !high.LessThan(prevHigh) {
			fallingHighs = false
		}
		if !low.LessThan(prevLow) {
			fallingLows = false
		}
	}

	switch {
	case risingHighs && risingLows:
		return model.PatternStrongUptrend
	case fallingHighs && fallingLows:
		return model.PatternStrongDowntrend
	case risingLows:
		return model.PatternBullishConsolidation
	case fallingHighs:
		return model.PatternBearishConsolidation
	default:
		return model.PatternChoppy
	}
}

func lastN(bars []model.Bar, n int) []model.Bar {
	if len(bars) > n {
		return bars[len(bars)-n:]
	}
	return bars
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func absFloat(a float64) float64 {
	if a < 0 {
		return -a
	}
	return a
}
