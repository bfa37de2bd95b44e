package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kestrel-trading/agentrader/internal/model"
)

// SaveBacktestRun persists a completed (or failed) backtest run and its
// trades atomically: either the whole replay's record lands, or none of
// it does, matching spec §4.11's "persist BacktestRun + all
// BacktestTrades atomically" requirement.
func (s *Store) SaveBacktestRun(ctx context.Context, run model.BacktestRun, trades []model.BacktestTrade) error {
	_, err := s.call(ctx, func(ctx context.Context) (any, error) {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("begin save backtest run: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		_, err = tx.Exec(ctx, `
			INSERT INTO backtest_runs (
				run_uuid, agent_id, start_date, end_date,
				initial_capital, final_capital, total_return_pct,
				total_trades, winning_trades, losing_trades,
				max_drawdown, sharpe_ratio, win_rate, avg_trade_pnl,
				config, status
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
			)
		`,
			run.ID, run.AgentID, run.Start, run.End,
			run.InitialCapital, run.FinalCapital, run.TotalReturnPct,
			run.TotalTrades, run.WinningTrades, run.LosingTrades,
			run.MaxDrawdownPct, run.SharpeRatio, run.WinRate, run.AvgTradePnL,
			[]byte(run.Config), run.Status,
		)
		if err != nil {
			return nil, fmt.Errorf("insert backtest run: %w", err)
		}

		for _, t := range trades {
			_, err = tx.Exec(ctx, `
				INSERT INTO backtest_trades (
					run_uuid, timestamp, action, symbol, quantity, price, pnl, portfolio_value, cash_balance
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			`, run.ID, t.Timestamp, t.Action, t.Symbol, t.Quantity, t.Price, t.PnL, t.PortfolioValue, t.CashBalance)
			if err != nil {
				return nil, fmt.Errorf("insert backtest trade: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit save backtest run: %w", err)
		}
		return nil, nil
	})
	return err
}

// GetBacktestRun loads one run by its UUID, for the `backtest show` CLI
// surface.
func (s *Store) GetBacktestRun(ctx context.Context, runID string) (model.BacktestRun, error) {
	result, err := s.call(ctx, func(ctx context.Context) (any, error) {
		row := s.pool.QueryRow(ctx, `
			SELECT run_uuid, agent_id, start_date, end_date,
				initial_capital, final_capital, total_return_pct,
				total_trades, winning_trades, losing_trades,
				max_drawdown, sharpe_ratio, win_rate, avg_trade_pnl,
				config, status
			FROM backtest_runs WHERE run_uuid = $1
		`, runID)
		return scanBacktestRun(row)
	})
	if err != nil {
		return model.BacktestRun{}, err
	}
	return result.(model.BacktestRun), nil
}

// ListBacktestRuns returns every backtest run for an agent, most recent
// first, for the `backtest list`/`backtest compare` CLI surface.
func (s *Store) ListBacktestRuns(ctx context.Context, agentID string) ([]model.BacktestRun, error) {
	result, err := s.call(ctx, func(ctx context.Context) (any, error) {
		rows, err := s.pool.Query(ctx, `
			SELECT run_uuid, agent_id, start_date, end_date,
				initial_capital, final_capital, total_return_pct,
				total_trades, winning_trades, losing_trades,
				max_drawdown, sharpe_ratio, win_rate, avg_trade_pnl,
				config, status
			FROM backtest_runs WHERE agent_id = $1 ORDER BY start_date DESC
		`, agentID)
		if err != nil {
			return nil, fmt.Errorf("query backtest runs: %w", err)
		}
		defer rows.Close()

		var out []model.BacktestRun
		for rows.Next() {
			run, err := scanBacktestRun(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, run)
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]model.BacktestRun), nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanBacktestRun(row rowScanner) (model.BacktestRun, error) {
	var run model.BacktestRun
	var config []byte
	if err := row.Scan(
		&run.ID, &run.AgentID, &run.Start, &run.End,
		&run.InitialCapital, &run.FinalCapital, &run.TotalReturnPct,
		&run.TotalTrades, &run.WinningTrades, &run.LosingTrades,
		&run.MaxDrawdownPct, &run.SharpeRatio, &run.WinRate, &run.AvgTradePnL,
		&config, &run.Status,
	); err != nil {
		if err == pgx.ErrNoRows {
			return model.BacktestRun{}, fmt.Errorf("backtest run not found: %w", err)
		}
		return model.BacktestRun{}, fmt.Errorf("scan backtest run: %w", err)
	}
	run.Config = config
	return run, nil
}
