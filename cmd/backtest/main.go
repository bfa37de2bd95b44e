// Command backtest replays one agent's configured strategy over a
// historical bar range stored in Postgres and persists the resulting
// run/trade records. Grounded on the teacher's cmd/backtest entrypoint:
// flag-driven date range and starting capital, console logging to
// stderr, a single synchronous run rather than a long-lived service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/kestrel-trading/agentrader/internal/backtest"
	"github.com/kestrel-trading/agentrader/internal/config"
	"github.com/kestrel-trading/agentrader/internal/decision"
	"github.com/kestrel-trading/agentrader/internal/risk"
	"github.com/kestrel-trading/agentrader/internal/sentiment"
	"github.com/kestrel-trading/agentrader/internal/store"
	"github.com/kestrel-trading/agentrader/internal/technical"
)

const dateLayout = "2006-01-02"

func main() {
	configPath := flag.String("config", "", "process config file path (defaults to ./configs/config.yaml)")
	agentPath := flag.String("agent", "", "agent YAML config file to replay (required)")
	startFlag := flag.String("start", "", "replay start date, YYYY-MM-DD (required)")
	endFlag := flag.String("end", "", "replay end date, YYYY-MM-DD (required)")
	capitalFlag := flag.Float64("capital", 0, "starting capital; defaults to the agent's allocated_capital")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if *agentPath == "" || *startFlag == "" || *endFlag == "" {
		log.Fatal().Msg("-agent, -start, and -end are required")
	}

	start, err := time.Parse(dateLayout, *startFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid -start date")
	}
	end, err := time.Parse(dateLayout, *endFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid -end date")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	baseLog := config.NewLogger("backtest")

	agent, _, err := config.LoadAgentConfig(*agentPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load agent config")
	}

	ctx := context.Background()
	breakers := risk.NewCircuitBreakers(nil)
	db, err := store.New(ctx, cfg.Database.GetDSN(), cfg.Database.PoolSize, breakers, baseLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	weights := sentiment.Weights{
		News:   agent.Strategy.SentimentWeights.News,
		Reddit: agent.Strategy.SentimentWeights.Reddit,
		SEC:    agent.Strategy.SentimentWeights.SEC,
	}
	sentimentHistory := backtest.NewStoreSentimentHistory(db.SentimentAt, weights)

	engine := backtest.NewEngine(
		db,
		sentimentHistory,
		technical.NewAnalyzer(),
		decision.NewAlgorithmicDecisionMaker(agent.Strategy.SentimentWeight, agent.Strategy.TechnicalWeight),
		db,
		baseLog,
	)
	engine.WarmupBars = cfg.Backtest.WarmupBars
	engine.LookbackBars = cfg.Backtest.LookbackBars
	engine.MinConfidence = cfg.Backtest.MinConfidence
	engine.CommissionPct = cfg.Backtest.CommissionPct

	startingCapital := decimal.NewFromFloat(*capitalFlag)
	if startingCapital.IsZero() {
		startingCapital = agent.AllocatedCapital
	}

	run, trades, err := engine.Run(ctx, *agent, startingCapital, start, end)
	if err != nil {
		log.Fatal().Err(err).Msg("backtest run failed")
	}

	fmt.Printf("run_id: %s\n", run.ID)
	fmt.Printf("status: %s\n", run.Status)
	fmt.Printf("period: %s to %s\n", start.Format(dateLayout), end.Format(dateLayout))
	fmt.Printf("initial_capital: %s\n", run.InitialCapital.StringFixed(2))
	fmt.Printf("final_capital: %s\n", run.FinalCapital.StringFixed(2))
	fmt.Printf("total_return_pct: %.2f\n", run.TotalReturnPct)
	fmt.Printf("max_drawdown_pct: %.2f\n", run.MaxDrawdownPct)
	fmt.Printf("sharpe_ratio: %.2f\n", run.SharpeRatio)
	fmt.Printf("total_trades: %d (win_rate=%.1f%%, avg_pnl=%s)\n", run.TotalTrades, run.WinRate*100, decimal.NewFromFloat(run.AvgTradePnL).StringFixed(2))
	fmt.Printf("trades_recorded: %d\n", len(trades))
}
