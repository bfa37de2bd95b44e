package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-trading/agentrader/internal/model"
)

func barsFromCloses(closes []float64) []model.Bar {
	bars := make([]model.Bar, len(closes))
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		d := decimal.NewFromFloat(c)
		bars[i] = model.Bar{
			Symbol:    "TEST",
			Timestamp: base.AddDate(0, 0, i),
			Timeframe: "1d",
			Open:      d,
			High:      d.Mul(decimal.NewFromFloat(1.001)),
			Low:       d.Mul(decimal.NewFromFloat(0.999)),
			Close:     d,
			Volume:    1000,
		}
	}
	return bars
}

func TestRSI_MonotonicRisingCloses_IsOverbought(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	r := rsi(closes, 14)
	assert.GreaterOrEqual(t, r, 70.0)
}

func TestRSI_InsufficientData_ReturnsNeutralDefault(t *testing.T) {
	r := rsi([]float64{100, 101}, 14)
	assert.Equal(t, 50.0, r)
}

func TestTrend_100BarsRisingOverTwoPercent_IsBullish(t *testing.T) {
	closes := make([]float64, 100)
	for i := range closes {
		closes[i] = 100 + float64(i)*0.05 // ~5% rise across the window
	}
	trend := computeTrend(closes)
	assert.Equal(t, model.TrendBullish, trend.Trend)
}

func TestTrend_WithinOnePercent_IsSideways(t *testing.T) {
	closes := make([]float64, 100)
	for i := range closes {
		closes[i] = 100
	}
	trend := computeTrend(closes)
	assert.Equal(t, model.TrendSideways, trend.Trend)
}

func TestBuildContext_ZeroBars_DataUnavailable(t *testing.T) {
	ctx := BuildContext("TEST", "1d", 0, nil)
	assert.False(t, ctx.DataAvailable)
}

func TestComputePriceAction_StrongUptrend(t *testing.T) {
	closes := []float64{100, 101, 102, 103, 104}
	bars := barsFromCloses(closes)
	pattern := computePriceAction(bars)
	assert.Equal(t, model.PatternStrongUptrend, pattern)
}

func TestFixtureProvider_TrimsToLookback(t *testing.T) {
	closes := make([]float64, 150)
	for i := range closes {
		closes[i] = 100 + float64(i)*0.1
	}
	bars := barsFromCloses(closes)
	p := NewFixtureProvider(map[string][]model.Bar{"TEST": bars})

	got, err := p.GetMarketContext(context.Background(), "TEST", "1d", 100)
	require.NoError(t, err)
	assert.Len(t, got.Bars, 100)
	assert.True(t, got.DataAvailable)
}

func TestFixtureProvider_UnknownSymbol_DataUnavailable(t *testing.T) {
	p := NewFixtureProvider(map[string][]model.Bar{})
	got, err := p.GetMarketContext(context.Background(), "NOPE", "1d", 100)
	require.NoError(t, err)
	assert.False(t, got.DataAvailable)
}
