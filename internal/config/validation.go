package config

import (
	"fmt"
	"strings"
)

// ValidationError describes one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of ValidationError, rendered as a
// single numbered multi-line error.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "configuration validation failed with %d error(s):\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, err.Error())
	}
	return strings.TrimRight(b.String(), "\n")
}

// Validate checks the loaded configuration for internal consistency.
// It does not touch the network or filesystem; per-agent config files
// are validated separately by LoadAgentConfig.
func (c *Config) Validate() error {
	var errs ValidationErrors
	errs = append(errs, validateApp(c.App)...)
	errs = append(errs, validateDatabase(c.Database)...)
	errs = append(errs, validateNATS(c.NATS)...)
	errs = append(errs, validateCompany(c.Company)...)
	errs = append(errs, validateSentiment(c.Sentiment)...)
	errs = append(errs, validateBacktest(c.Backtest)...)
	errs = append(errs, validateMonitoring(c.Monitoring)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateApp(c AppConfig) ValidationErrors {
	var errs ValidationErrors
	if c.Name == "" {
		errs = append(errs, ValidationError{"app.name", "must not be empty"})
	}
	switch c.Environment {
	case "development", "staging", "production":
	default:
		errs = append(errs, ValidationError{"app.environment", "must be one of development, staging, production"})
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "console":
	default:
		errs = append(errs, ValidationError{"app.log_format", "must be json or console"})
	}
	return errs
}

func validateDatabase(c DatabaseConfig) ValidationErrors {
	var errs ValidationErrors
	if c.Host == "" {
		errs = append(errs, ValidationError{"database.host", "must not be empty"})
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, ValidationError{"database.port", "must be between 1 and 65535"})
	}
	if c.Database == "" {
		errs = append(errs, ValidationError{"database.database", "must not be empty"})
	}
	if c.PoolSize <= 0 {
		errs = append(errs, ValidationError{"database.pool_size", "must be positive"})
	}
	if c.MigrationsPath == "" {
		errs = append(errs, ValidationError{"database.migrations_path", "must not be empty"})
	}
	return errs
}

func validateNATS(c NATSConfig) ValidationErrors {
	var errs ValidationErrors
	if c.Enabled && c.URL == "" {
		errs = append(errs, ValidationError{"nats.url", "must not be empty when nats.enabled is true"})
	}
	if c.Enabled && c.ControlSubject == "" {
		errs = append(errs, ValidationError{"nats.control_subject", "must not be empty when nats.enabled is true"})
	}
	return errs
}

func validateCompany(c CompanyConfig) ValidationErrors {
	var errs ValidationErrors
	if c.ID == "" {
		errs = append(errs, ValidationError{"company.id", "must not be empty"})
	}
	if c.MaxCapital <= 0 {
		errs = append(errs, ValidationError{"company.max_capital", "must be positive"})
	}
	if c.MaxDeploymentPct <= 0 || c.MaxDeploymentPct > 1 {
		errs = append(errs, ValidationError{"company.max_deployment_pct", "must be in (0, 1]"})
	}
	return errs
}

func validateProviderLimit(field string, p ProviderLimit) ValidationErrors {
	var errs ValidationErrors
	if p.RequestsPerSecond <= 0 {
		errs = append(errs, ValidationError{field + ".requests_per_second", "must be positive"})
	}
	if p.TimeoutSeconds <= 0 {
		errs = append(errs, ValidationError{field + ".timeout_seconds", "must be positive"})
	}
	return errs
}

func validateSentiment(c SentimentConfig) ValidationErrors {
	var errs ValidationErrors
	errs = append(errs, validateProviderLimit("sentiment.news", c.News)...)
	errs = append(errs, validateProviderLimit("sentiment.reddit", c.Reddit)...)
	errs = append(errs, validateProviderLimit("sentiment.sec", c.SEC)...)
	if c.SEC.RequestsPerSecond > 10 {
		errs = append(errs, ValidationError{"sentiment.sec.requests_per_second", "must not exceed the SEC EDGAR fair-access limit of 10 req/s"})
	}
	return errs
}

func validateBacktest(c BacktestConfig) ValidationErrors {
	var errs ValidationErrors
	if c.WarmupBars < 0 {
		errs = append(errs, ValidationError{"backtest.warmup_bars", "must not be negative"})
	}
	if c.LookbackBars <= 0 {
		errs = append(errs, ValidationError{"backtest.lookback_bars", "must be positive"})
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		errs = append(errs, ValidationError{"backtest.min_confidence", "must be in [0, 1]"})
	}
	if c.CommissionPct < 0 {
		errs = append(errs, ValidationError{"backtest.commission_pct", "must not be negative"})
	}
	return errs
}

func validateMonitoring(c MonitoringConfig) ValidationErrors {
	var errs ValidationErrors
	if c.EnableMetrics && (c.PrometheusPort <= 0 || c.PrometheusPort > 65535) {
		errs = append(errs, ValidationError{"monitoring.prometheus_port", "must be between 1 and 65535 when metrics are enabled"})
	}
	return errs
}
