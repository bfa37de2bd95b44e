// Package cycle orchestrates one traversal of the decision pipeline for
// a single (agent, timestamp) pair: market data, parallel sentiment/
// technical analysis, decision, risk validation, execution, and
// logging. Stage functions are threaded explicitly through a typed
// CycleContext, replacing the dict/XCom handoff style of the system
// this was distilled from.
package cycle

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/kestrel-trading/agentrader/internal/apperr"
	"github.com/kestrel-trading/agentrader/internal/decision"
	"github.com/kestrel-trading/agentrader/internal/executor"
	"github.com/kestrel-trading/agentrader/internal/marketdata"
	"github.com/kestrel-trading/agentrader/internal/model"
	"github.com/kestrel-trading/agentrader/internal/risk"
	"github.com/kestrel-trading/agentrader/internal/sentiment"
	"github.com/kestrel-trading/agentrader/internal/technical"
)

// HolidayCalendar reports whether a given date is a market holiday.
// NYSEHolidays (holidays.go) computes the NYSE holiday set; NoHolidays
// reports none (DESIGN.md Open Question #2).
type HolidayCalendar interface {
	IsHoliday(t time.Time) bool
}

// NoHolidays is a HolidayCalendar that never reports a holiday, used
// where no calendar has been wired in yet.
type NoHolidays struct{}

func (NoHolidays) IsHoliday(time.Time) bool { return false }

// CycleContext is threaded through every stage function, accumulating
// each stage's output for the next.
type CycleContext struct {
	Agent         model.AgentConfig
	State         model.AgentState
	Company       model.Company
	CompanyAgents []model.AgentConfig
	Now           time.Time
	Calendar      HolidayCalendar
	SkippedReason string

	MarketContext model.MarketContext
	Sentiment     model.AggregatedSentiment
	Technical     model.TechnicalAnalysis
	Decision      model.Decision
	OrderResult   executor.OrderResult
}

// Runner wires the collaborators every stage needs.
type Runner struct {
	MarketData marketdata.Provider
	Aggregator *sentiment.Aggregator
	Technical  *technical.Analyzer
	Decider    *decision.AlgorithmicDecisionMaker
	Executor   *executor.TradeExecutor
	Breakers   *risk.CircuitBreakers
	Logger     zerolog.Logger
}

// Run executes the full 7-stage pipeline for one agent at "now". A
// market-hours skip is not an error: CycleContext.SkippedReason is set
// and the remaining stages are not run. companyAgents is every agent
// sharing company's ID, used to check the company's aggregate capital
// deployment rather than this agent's allocation in isolation; a caller
// with no roster to hand over may pass nil, in which case only agent
// itself is checked against the company ceiling.
func (r *Runner) Run(ctx context.Context, agent model.AgentConfig, state model.AgentState, company model.Company, companyAgents []model.AgentConfig, now time.Time, calendar HolidayCalendar) (*CycleContext, error) {
	if companyAgents == nil {
		companyAgents = []model.AgentConfig{agent}
	}
	cc := &CycleContext{Agent: agent, State: state, Company: company, CompanyAgents: companyAgents, Now: now, Calendar: calendar}
	log := r.Logger.With().Str("agent_id", agent.ID).Str("symbol", agent.Symbol).Logger()

	if !r.checkMarketHours(cc) {
		log.Debug().Str("reason", cc.SkippedReason).Msg("cycle skipped")
		return cc, nil
	}

	if err := r.fetchMarketData(ctx, cc); err != nil {
		return cc, fmt.Errorf("fetch_market_data: %w", err)
	}

	if !cc.MarketContext.DataAvailable {
		cc.SkippedReason = "market data unavailable"
		return cc, nil
	}

	if err := r.analyze(ctx, cc); err != nil {
		return cc, fmt.Errorf("analyze: %w", err)
	}

	if err := r.makeDecision(cc); err != nil {
		return cc, fmt.Errorf("make_decision: %w", err)
	}

	if err := r.validateRisk(cc); err != nil {
		log.Info().Err(err).Msg("decision rejected by risk validator")
		cc.SkippedReason = err.Error()
		return cc, nil
	}

	if err := r.executeTrade(ctx, cc); err != nil {
		return cc, fmt.Errorf("execute_trade: %w", err)
	}

	r.logPerformance(cc)

	return cc, nil
}

// checkMarketHours gates equities to 09:30-16:00 America/New_York
// Monday-Friday minus holidays; crypto symbols are always open.
func (r *Runner) checkMarketHours(cc *CycleContext) bool {
	if model.IsCrypto(cc.Agent.Symbol) {
		return true
	}

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	local := cc.Now.In(loc)

	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		cc.SkippedReason = "weekend"
		return false
	}

	calendar := cc.Calendar
	if calendar == nil {
		calendar = NoHolidays{}
	}
	if calendar.IsHoliday(local) {
		cc.SkippedReason = "market holiday"
		return false
	}

	open := time.Date(local.Year(), local.Month(), local.Day(), 9, 30, 0, 0, loc)
	closeT := time.Date(local.Year(), local.Month(), local.Day(), 16, 0, 0, 0, loc)
	if local.Before(open) || !local.Before(closeT) {
		cc.SkippedReason = "outside market hours"
		return false
	}
	return true
}

func (r *Runner) fetchMarketData(ctx context.Context, cc *CycleContext) error {
	mc, err := r.MarketData.GetMarketContext(ctx, cc.Agent.Symbol, cc.Agent.Strategy.Timeframe, 100)
	if err != nil {
		return err
	}
	cc.MarketContext = mc
	return nil
}

// analyze runs sentiment aggregation and technical analysis in
// parallel: they share no state and neither depends on the other's
// output.
func (r *Runner) analyze(ctx context.Context, cc *CycleContext) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		agg, err := r.Aggregator.Aggregate(gctx, cc.Agent.Symbol)
		if err != nil {
			return err
		}
		cc.Sentiment = agg
		return nil
	})

	g.Go(func() error {
		cc.Technical = r.Technical.Analyze(cc.MarketContext)
		return nil
	})

	return g.Wait()
}

func (r *Runner) makeDecision(cc *CycleContext) error {
	currentPrice := decimal.NewFromFloat(cc.MarketContext.CurrentPrice)
	d, err := r.Decider.Decide(cc.Sentiment, cc.Technical, currentPrice, cc.Agent)
	if err != nil {
		return err
	}
	cc.Decision = d
	return nil
}

func (r *Runner) validateRisk(cc *CycleContext) error {
	currentPrice := decimal.NewFromFloat(cc.MarketContext.CurrentPrice)
	if err := risk.Validate(cc.Agent, cc.State, cc.Decision, currentPrice); err != nil {
		return err
	}
	return risk.ValidateCompanyCapital(cc.Company, cc.CompanyAgents)
}

func (r *Runner) executeTrade(ctx context.Context, cc *CycleContext) error {
	currentPrice := decimal.NewFromFloat(cc.MarketContext.CurrentPrice)
	result, err := r.Executor.Execute(ctx, cc.Agent.ID, cc.Agent.Symbol, cc.Decision, currentPrice)
	if err != nil {
		return apperr.TransientIO("execute_trade", 1, err)
	}
	cc.OrderResult = result
	return nil
}

func (r *Runner) logPerformance(cc *CycleContext) {
	r.Logger.Info().
		Str("agent_id", cc.Agent.ID).
		Str("action", string(cc.Decision.Action)).
		Float64("confidence", cc.Decision.Confidence).
		Str("order_id", cc.OrderResult.OrderID).
		Msg("cycle complete")
}
