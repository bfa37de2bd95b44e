package cycle

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-trading/agentrader/internal/decision"
	"github.com/kestrel-trading/agentrader/internal/executor"
	"github.com/kestrel-trading/agentrader/internal/marketdata"
	"github.com/kestrel-trading/agentrader/internal/model"
	"github.com/kestrel-trading/agentrader/internal/risk"
	"github.com/kestrel-trading/agentrader/internal/sentiment"
	"github.com/kestrel-trading/agentrader/internal/technical"
)

type fakeProvider struct {
	ctx model.MarketContext
	err error
}

func (p *fakeProvider) GetMarketContext(_ context.Context, _, _ string, _ int) (model.MarketContext, error) {
	return p.ctx, p.err
}

type fakeBroker struct{}

func (fakeBroker) SubmitOrder(ctx context.Context, req executor.OrderRequest) (executor.OrderResult, error) {
	return executor.OrderResult{OrderID: "o-1"}, nil
}
func (fakeBroker) CancelOrder(ctx context.Context, orderID string) error { return nil }
func (fakeBroker) GetLatestQuote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return decimal.NewFromInt(100), nil
}

type fakeLog struct{}

func (fakeLog) AppendDecision(agentID string, at time.Time, d model.Decision) error { return nil }
func (fakeLog) AppendTrade(agentID string, at time.Time, r executor.OrderResult, d model.Decision) error {
	return nil
}

func newRunner(provider marketdata.Provider, sentimentScore float64, techSignal model.Signal) *Runner {
	agg := sentiment.NewAggregator(map[model.SentimentSource]sentiment.SourceFetcher{
		model.SourceNews: func(ctx context.Context, symbol string) (model.SourceSentiment, error) {
			return model.SourceSentiment{Source: model.SourceNews, Score: sentimentScore, Confidence: 0.8, Sentiment: model.LabelFromScore(sentimentScore)}, nil
		},
	}, sentiment.Weights{News: 1}, time.Second)

	return &Runner{
		MarketData: provider,
		Aggregator: agg,
		Technical:  technical.NewAnalyzer(),
		Decider:    decision.NewAlgorithmicDecisionMaker(0, 0),
		Executor:   executor.NewTradeExecutor(fakeBroker{}, fakeLog{}, risk.NewCircuitBreakers(prometheus.NewRegistry()), true, zerolog.Nop()),
		Breakers:   risk.NewCircuitBreakers(prometheus.NewRegistry()),
		Logger:     zerolog.Nop(),
	}
}

func baseAgent(symbol string) model.AgentConfig {
	return model.AgentConfig{
		ID:     "agent-1",
		Symbol: symbol,
		Status: model.AgentActive,
		Risk: model.RiskParams{
			MaxPositionSize:        decimal.NewFromInt(1000),
			StopLossFraction:       0.05,
			MaxDailyTrades:         10,
			MaxDailyLoss:           decimal.NewFromInt(1000),
			MinConfidence:          0,
			MaxConcurrentPositions: 5,
		},
		Strategy:         model.StrategyParams{Timeframe: "1h"},
		AllocatedCapital: decimal.NewFromInt(10000),
	}
}

func baseCompany() model.Company {
	return model.Company{ID: "co-1", MaxCapital: decimal.NewFromInt(1000000), MaxDeploymentPct: 1.0}
}

func TestRun_CryptoAlwaysOpen_WeekendDoesNotSkip(t *testing.T) {
	provider := &fakeProvider{ctx: model.MarketContext{CurrentPrice: 100, DataAvailable: true}}
	r := newRunner(provider, 0.7, model.SignalBullish)
	agent := baseAgent("BTC/USD")
	state := model.AgentState{}
	saturday := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	cc, err := r.Run(context.Background(), agent, state, baseCompany(), nil, saturday, NoHolidays{})
	require.NoError(t, err)
	assert.Empty(t, cc.SkippedReason)
}

func TestRun_Equity_OutsideMarketHours_Skips(t *testing.T) {
	provider := &fakeProvider{ctx: model.MarketContext{CurrentPrice: 100, DataAvailable: true}}
	r := newRunner(provider, 0.7, model.SignalBullish)
	agent := baseAgent("AAPL")
	state := model.AgentState{}
	midnight := time.Date(2026, 8, 3, 4, 0, 0, 0, time.UTC)

	cc, err := r.Run(context.Background(), agent, state, baseCompany(), nil, midnight, NoHolidays{})
	require.NoError(t, err)
	assert.Equal(t, "outside market hours", cc.SkippedReason)
}

func TestRun_Equity_Weekend_Skips(t *testing.T) {
	provider := &fakeProvider{ctx: model.MarketContext{CurrentPrice: 100, DataAvailable: true}}
	r := newRunner(provider, 0.7, model.SignalBullish)
	agent := baseAgent("AAPL")
	state := model.AgentState{}
	saturdayNoon := time.Date(2026, 8, 1, 14, 0, 0, 0, time.UTC)

	cc, err := r.Run(context.Background(), agent, state, baseCompany(), nil, saturdayNoon, NoHolidays{})
	require.NoError(t, err)
	assert.Equal(t, "weekend", cc.SkippedReason)
}

func TestRun_MarketDataUnavailable_SkipsWithoutError(t *testing.T) {
	provider := &fakeProvider{ctx: model.MarketContext{DataAvailable: false}}
	r := newRunner(provider, 0.7, model.SignalBullish)
	agent := baseAgent("BTC/USD")

	cc, err := r.Run(context.Background(), agent, model.AgentState{}, baseCompany(), nil, time.Now().UTC(), NoHolidays{})
	require.NoError(t, err)
	assert.Equal(t, "market data unavailable", cc.SkippedReason)
}

func TestRun_FullPipeline_CryptoBuy_ExecutesTrade(t *testing.T) {
	provider := &fakeProvider{ctx: model.MarketContext{
		CurrentPrice:  100,
		DataAvailable: true,
		Indicators:    model.Indicators{RSI14: 20},
	}}
	r := newRunner(provider, 0.8, model.SignalBullish)
	agent := baseAgent("BTC/USD")

	cc, err := r.Run(context.Background(), agent, model.AgentState{}, baseCompany(), nil, time.Now().UTC(), NoHolidays{})
	require.NoError(t, err)
	assert.Empty(t, cc.SkippedReason)
	if cc.Decision.Action == model.ActionBuy {
		assert.NotEmpty(t, cc.OrderResult.OrderID)
	}
}

func TestRun_RiskValidationFails_SkipsWithoutError(t *testing.T) {
	provider := &fakeProvider{ctx: model.MarketContext{CurrentPrice: 100, DataAvailable: true, Indicators: model.Indicators{RSI14: 20}}}
	r := newRunner(provider, 0.8, model.SignalBullish)
	agent := baseAgent("BTC/USD")
	agent.Risk.MinConfidence = 1.01

	cc, err := r.Run(context.Background(), agent, model.AgentState{}, baseCompany(), nil, time.Now().UTC(), NoHolidays{})
	require.NoError(t, err)
	assert.NotEmpty(t, cc.SkippedReason)
}
