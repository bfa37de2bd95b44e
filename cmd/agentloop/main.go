// Command agentloop runs every configured agent's decision cycle on its
// own scheduled loop: one process, one database connection pool, one
// metrics/control server, N independently paced agents. Grounded on the
// teacher's cmd/orchestrator entrypoint (flag parsing, stderr console
// logging, signal-driven graceful shutdown), generalized from one
// hardcoded orchestrator to a directory of per-agent config files.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/kestrel-trading/agentrader/internal/config"
	"github.com/kestrel-trading/agentrader/internal/cycle"
	"github.com/kestrel-trading/agentrader/internal/decision"
	"github.com/kestrel-trading/agentrader/internal/executor"
	"github.com/kestrel-trading/agentrader/internal/loop"
	"github.com/kestrel-trading/agentrader/internal/marketdata"
	"github.com/kestrel-trading/agentrader/internal/metrics"
	"github.com/kestrel-trading/agentrader/internal/model"
	"github.com/kestrel-trading/agentrader/internal/risk"
	"github.com/kestrel-trading/agentrader/internal/sentiment"
	"github.com/kestrel-trading/agentrader/internal/store"
	"github.com/kestrel-trading/agentrader/internal/technical"
)

func main() {
	configPath := flag.String("config", "", "process config file path (defaults to ./configs/config.yaml)")
	agentsDir := flag.String("agents-dir", "./configs/agents", "directory of per-agent YAML config files")
	logsDir := flag.String("logs-dir", "./logs", "directory for append-only decision/trade logs")
	dryRun := flag.Bool("dry-run", true, "simulate fills instead of submitting to a live broker")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	baseLog := config.NewLogger("agentloop")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := metrics.NewRegistry()
	breakers := risk.NewCircuitBreakers(reg.Registerer)

	db, err := store.New(ctx, cfg.Database.GetDSN(), cfg.Database.PoolSize, breakers, baseLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	provider := marketdata.NewStoreBackedProvider(db, nil)
	tradeLog := executor.NewJSONLWriter(*logsDir)
	tech := technical.NewAnalyzer()
	tradeExecutor := executor.NewTradeExecutor(nil, tradeLog, breakers, *dryRun, baseLog)

	manager := loop.NewManager(reg, baseLog)
	defer manager.Close()

	if cfg.NATS.Enabled {
		if err := manager.ConnectNATS(cfg.NATS.URL, cfg.NATS.ControlSubject, cfg.NATS.HeartbeatSubject); err != nil {
			log.Warn().Err(err).Msg("failed to connect to nats control plane, continuing without it")
		}
	}

	company := model.Company{
		ID:               cfg.Company.ID,
		Name:             cfg.Company.Name,
		MaxCapital:       decimal.NewFromFloat(cfg.Company.MaxCapital),
		MaxDeploymentPct: cfg.Company.MaxDeploymentPct,
	}

	agentFiles, err := filepath.Glob(filepath.Join(*agentsDir, "*.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to list agent config files")
	}
	if len(agentFiles) == 0 {
		log.Fatal().Str("dir", *agentsDir).Msg("no agent config files found")
	}

	for _, path := range agentFiles {
		agent, intervalSeconds, err := config.LoadAgentConfig(path)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("skipping invalid agent config")
			continue
		}
		if agent.Status != model.AgentActive {
			log.Info().Str("agent_id", agent.ID).Msg("agent paused in config, not starting loop")
			continue
		}
		if intervalSeconds <= 0 {
			intervalSeconds = 60
		}

		aggregator := sentiment.NewAggregator(nil, sentiment.Weights{
			News:   agent.Strategy.SentimentWeights.News,
			Reddit: agent.Strategy.SentimentWeights.Reddit,
			SEC:    agent.Strategy.SentimentWeights.SEC,
		}, 0)

		runner := &cycle.Runner{
			MarketData: provider,
			Aggregator: aggregator,
			Technical:  tech,
			Decider:    decision.NewAlgorithmicDecisionMaker(agent.Strategy.SentimentWeight, agent.Strategy.TechnicalWeight),
			Executor:   tradeExecutor,
			Breakers:   breakers,
			Logger:     config.NewAgentLogger(agent.ID, agent.Strategy.Type),
		}

		manager.Start(ctx, *agent, time.Duration(intervalSeconds)*time.Second, model.AgentState{}, company, runner, cycle.NYSEHolidays{})
		log.Info().Str("agent_id", agent.ID).Str("symbol", agent.Symbol).Int("interval_seconds", intervalSeconds).Msg("agent loop started")
	}

	metricsAddr := fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort)
	metricsServer := metrics.NewServer(metricsAddr, reg, manager, baseLog)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := metricsServer.Start(ctx); err != nil {
			errChan <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errChan:
		log.Error().Err(err).Msg("metrics server failed")
	}

	log.Info().Msg("initiating graceful shutdown")
	cancel()
	manager.StopAll()
	log.Info().Msg("agentloop shutdown complete")
}
