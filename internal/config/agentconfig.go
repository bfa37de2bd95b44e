package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/kestrel-trading/agentrader/internal/model"
)

// agentFile is the on-disk shape of a per-agent config file: a keyed
// structure with sections for the agent identity (including its
// allocated capital), its strategy, its risk limits, its cycle cadence
// (performance), and an optional free-text personality that is carried
// on AgentConfig but not read by the decision code.
type agentFile struct {
	Agent struct {
		ID                string `mapstructure:"id"`
		Symbol            string `mapstructure:"symbol"`
		Status            string `mapstructure:"status"`
		FractionalAllowed bool   `mapstructure:"fractional_allowed"`
		AllocatedCapital  string `mapstructure:"allocated_capital"`
	} `mapstructure:"agent"`

	Strategy struct {
		Type            string  `mapstructure:"type"`
		Timeframe       string  `mapstructure:"timeframe"`
		SentimentWeight float64 `mapstructure:"sentiment_weight"`
		TechnicalWeight float64 `mapstructure:"technical_weight"`
		SentimentWeights struct {
			News   float64 `mapstructure:"news"`
			Reddit float64 `mapstructure:"reddit"`
			SEC    float64 `mapstructure:"sec"`
		} `mapstructure:"sentiment_weights"`
	} `mapstructure:"strategy"`

	Risk struct {
		MaxPositionSize        string  `mapstructure:"max_position_size"`
		StopLossFraction       float64 `mapstructure:"stop_loss_fraction"`
		TakeProfitFraction     float64 `mapstructure:"take_profit_fraction"`
		MaxDailyTrades         int     `mapstructure:"max_daily_trades"`
		MaxDailyLoss           string  `mapstructure:"max_daily_loss"`
		MinConfidence          float64 `mapstructure:"min_confidence"`
		MaxConcurrentPositions int     `mapstructure:"max_concurrent_positions"`
	} `mapstructure:"risk"`

	// Performance holds the scheduler's cycle cadence. LoadAgentConfig
	// returns it next to the AgentConfig, not inside it, and
	// cmd/agentloop hands it to the loop manager's Start.
	Performance struct {
		CycleIntervalSeconds int `mapstructure:"cycle_interval_seconds"`
	} `mapstructure:"performance"`

	Personality string `mapstructure:"personality"`
}

// LoadAgentConfig loads one agent's configuration file from disk. Unlike
// the process config, per-agent files are not merged with defaults: every
// field of the risk section must be present, since a missing risk
// limit silently falling back to zero would misrepresent a deliberate
// trading constraint.
func LoadAgentConfig(path string) (*model.AgentConfig, int, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, 0, fmt.Errorf("failed to read agent config %s: %w", path, err)
	}

	for _, key := range []string{"max_position_size", "stop_loss_fraction", "take_profit_fraction", "max_daily_trades", "max_daily_loss", "min_confidence", "max_concurrent_positions"} {
		if !v.IsSet("risk." + key) {
			return nil, 0, fmt.Errorf("invalid agent config %s: risk.%s must be present", path, key)
		}
	}

	var f agentFile
	if err := v.UnmarshalExact(&f); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal agent config %s: %w", path, err)
	}

	cfg, err := f.toAgentConfig()
	if err != nil {
		return nil, 0, fmt.Errorf("invalid agent config %s: %w", path, err)
	}
	return cfg, f.Performance.CycleIntervalSeconds, nil
}

func (f agentFile) toAgentConfig() (*model.AgentConfig, error) {
	var errs ValidationErrors

	if f.Agent.ID == "" {
		errs = append(errs, ValidationError{"agent.id", "must not be empty"})
	}
	if f.Agent.Symbol == "" {
		errs = append(errs, ValidationError{"agent.symbol", "must not be empty"})
	}

	status := model.AgentActive
	switch strings.ToLower(f.Agent.Status) {
	case "", "active":
		status = model.AgentActive
	case "paused":
		status = model.AgentPaused
	default:
		errs = append(errs, ValidationError{"agent.status", "must be active or paused"})
	}

	allocatedCapital, err := decimal.NewFromString(f.Agent.AllocatedCapital)
	if err != nil {
		errs = append(errs, ValidationError{"agent.allocated_capital", "must be a decimal string"})
	}

	maxPositionSize, err := decimal.NewFromString(f.Risk.MaxPositionSize)
	if err != nil {
		errs = append(errs, ValidationError{"risk.max_position_size", "must be a decimal string"})
	}
	maxDailyLoss, err := decimal.NewFromString(f.Risk.MaxDailyLoss)
	if err != nil {
		errs = append(errs, ValidationError{"risk.max_daily_loss", "must be a decimal string"})
	}

	weightSum := f.Strategy.SentimentWeight + f.Strategy.TechnicalWeight
	if weightSum <= 0 {
		errs = append(errs, ValidationError{"strategy.sentiment_weight+technical_weight", "must sum to a positive value"})
	}

	if len(errs) > 0 {
		return nil, errs
	}

	return &model.AgentConfig{
		ID:                f.Agent.ID,
		Symbol:            f.Agent.Symbol,
		Status:            status,
		FractionalAllowed: f.Agent.FractionalAllowed,
		AllocatedCapital:  allocatedCapital,
		Personality:       f.Personality,
		Strategy: model.StrategyParams{
			Type:            f.Strategy.Type,
			Timeframe:       f.Strategy.Timeframe,
			SentimentWeight: f.Strategy.SentimentWeight,
			TechnicalWeight: f.Strategy.TechnicalWeight,
			SentimentWeights: model.SentimentWeights{
				News:   f.Strategy.SentimentWeights.News,
				Reddit: f.Strategy.SentimentWeights.Reddit,
				SEC:    f.Strategy.SentimentWeights.SEC,
			},
		},
		Risk: model.RiskParams{
			MaxPositionSize:        maxPositionSize,
			StopLossFraction:       f.Risk.StopLossFraction,
			TakeProfitFraction:     f.Risk.TakeProfitFraction,
			MaxDailyTrades:         f.Risk.MaxDailyTrades,
			MaxDailyLoss:           maxDailyLoss,
			MinConfidence:          f.Risk.MinConfidence,
			MaxConcurrentPositions: f.Risk.MaxConcurrentPositions,
		},
	}, nil
}
