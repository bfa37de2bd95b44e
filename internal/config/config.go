package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds process-level application configuration: everything that
// is not specific to a single agent (agent configs are loaded separately,
// one file per agent, via LoadAgentConfig).
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Company    CompanyConfig    `mapstructure:"company"`
	Sentiment  SentimentConfig  `mapstructure:"sentiment"`
	Backtest   BacktestConfig   `mapstructure:"backtest"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // json, console
}

// DatabaseConfig contains PostgreSQL connection settings.
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	Database       string `mapstructure:"database"`
	SSLMode        string `mapstructure:"ssl_mode"`
	PoolSize       int    `mapstructure:"pool_size"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

// NATSConfig contains control-plane messaging settings.
type NATSConfig struct {
	URL              string `mapstructure:"url"`
	Enabled          bool   `mapstructure:"enabled"`
	ControlSubject   string `mapstructure:"control_subject"`
	HeartbeatSubject string `mapstructure:"heartbeat_subject"`
}

// CompanyConfig is the aggregate capital ceiling spanning all agents.
type CompanyConfig struct {
	ID               string  `mapstructure:"id"`
	Name             string  `mapstructure:"name"`
	MaxCapital       float64 `mapstructure:"max_capital"`
	MaxDeploymentPct float64 `mapstructure:"max_deployment_pct"`
}

// ProviderLimit configures one sentiment source's rate limit and timeout.
type ProviderLimit struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
}

// SentimentConfig configures the sentiment analyzers and aggregator.
type SentimentConfig struct {
	News   ProviderLimit `mapstructure:"news"`
	Reddit ProviderLimit `mapstructure:"reddit"`
	SEC    ProviderLimit `mapstructure:"sec"`
}

// BacktestConfig configures default backtest parameters.
type BacktestConfig struct {
	WarmupBars    int     `mapstructure:"warmup_bars"`
	LookbackBars  int     `mapstructure:"lookback_bars"`
	MinConfidence float64 `mapstructure:"min_confidence"`
	CommissionPct float64 `mapstructure:"commission_pct"`
}

// MonitoringConfig contains Prometheus settings.
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads process configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("AGENTRADER")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "agentrader")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "agentrader")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.migrations_path", "./internal/store/migrations")

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.control_subject", "agentrader.control")
	v.SetDefault("nats.heartbeat_subject", "agentrader.heartbeat")

	v.SetDefault("company.id", "default")
	v.SetDefault("company.name", "Default Company")
	v.SetDefault("company.max_capital", 100000.0)
	v.SetDefault("company.max_deployment_pct", 0.8)

	v.SetDefault("sentiment.news.requests_per_second", 5.0)
	v.SetDefault("sentiment.news.timeout_seconds", 30)
	v.SetDefault("sentiment.reddit.requests_per_second", 1.0)
	v.SetDefault("sentiment.reddit.timeout_seconds", 30)
	v.SetDefault("sentiment.sec.requests_per_second", 10.0)
	v.SetDefault("sentiment.sec.timeout_seconds", 30)

	v.SetDefault("backtest.warmup_bars", 50)
	v.SetDefault("backtest.lookback_bars", 100)
	v.SetDefault("backtest.min_confidence", 0.6)
	v.SetDefault("backtest.commission_pct", 0.001)

	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)
}

// GetDSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
