package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// HedgeExecutionStore implements domain.HedgeExecutionStore using
// PostgreSQL.
type HedgeExecutionStore struct {
	pool *pgxpool.Pool
}

// NewHedgeExecutionStore creates a new HedgeExecutionStore.
func NewHedgeExecutionStore(pool *pgxpool.Pool) *HedgeExecutionStore {
	return &HedgeExecutionStore{pool: pool}
}

// Create inserts a hedge execution and its two legs in one transaction.
func (s *HedgeExecutionStore) Create(ctx context.Context, exec domain.HedgeExecution) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO hedge_executions (id, symbol, outcome, expected_profit_rate, realized_profit_rate, funding_diff_apy, profit_usd, notional_usd, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		exec.ID, exec.Symbol, string(exec.Outcome),
		exec.ExpectedProfitRate, exec.RealizedProfitRate, exec.FundingDiffAPY, exec.ProfitUSD, exec.NotionalUSD,
		exec.StartedAt, exec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert hedge_execution: %w", err)
	}

	for i, leg := range []domain.HedgeLeg{exec.Leg1, exec.Leg2} {
		_, err = tx.Exec(ctx, `
			INSERT INTO hedge_execution_legs (execution_id, leg_index, exchange, symbol, side, order_id, expected_price, filled_price, quantity, status, unwound)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			exec.ID, i+1, leg.Exchange, leg.Symbol, string(leg.Side), leg.OrderID,
			leg.ExpectedPrice, leg.FilledPrice, leg.Quantity, string(leg.Status), leg.Unwound,
		)
		if err != nil {
			return fmt.Errorf("postgres: insert hedge_execution_leg: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// ListRecent returns the most recent executions, newest first.
func (s *HedgeExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.HedgeExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.list(ctx, `
		SELECT id, symbol, outcome, expected_profit_rate, realized_profit_rate, funding_diff_apy, profit_usd, notional_usd, started_at, completed_at
		FROM hedge_executions ORDER BY started_at DESC LIMIT $1`, limit)
}

// ListBefore returns all executions completed before the cutoff, oldest
// first, for archival.
func (s *HedgeExecutionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.HedgeExecution, error) {
	return s.list(ctx, `
		SELECT id, symbol, outcome, expected_profit_rate, realized_profit_rate, funding_diff_apy, profit_usd, notional_usd, started_at, completed_at
		FROM hedge_executions WHERE completed_at < $1 ORDER BY started_at ASC`, before)
}

func (s *HedgeExecutionStore) list(ctx context.Context, query string, arg any) ([]domain.HedgeExecution, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("postgres: list hedge_executions: %w", err)
	}
	defer rows.Close()

	var execs []domain.HedgeExecution
	for rows.Next() {
		var exec domain.HedgeExecution
		var outcome string
		if err := rows.Scan(&exec.ID, &exec.Symbol, &outcome,
			&exec.ExpectedProfitRate, &exec.RealizedProfitRate, &exec.FundingDiffAPY, &exec.ProfitUSD, &exec.NotionalUSD,
			&exec.StartedAt, &exec.CompletedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan hedge_execution: %w", err)
		}
		exec.Outcome = domain.HedgeOutcome(outcome)
		execs = append(execs, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range execs {
		if err := s.loadLegs(ctx, &execs[i]); err != nil {
			return nil, err
		}
	}
	return execs, nil
}

func (s *HedgeExecutionStore) loadLegs(ctx context.Context, exec *domain.HedgeExecution) error {
	rows, err := s.pool.Query(ctx, `
		SELECT leg_index, exchange, symbol, side, order_id, expected_price, filled_price, quantity, status, unwound
		FROM hedge_execution_legs WHERE execution_id = $1 ORDER BY leg_index`, exec.ID)
	if err != nil {
		return fmt.Errorf("postgres: load legs for %s: %w", exec.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var leg domain.HedgeLeg
		var idx int
		var side, status string
		if err := rows.Scan(&idx, &leg.Exchange, &leg.Symbol, &side, &leg.OrderID,
			&leg.ExpectedPrice, &leg.FilledPrice, &leg.Quantity, &status, &leg.Unwound); err != nil {
			return fmt.Errorf("postgres: scan leg: %w", err)
		}
		leg.Side = domain.OrderSide(side)
		leg.Status = domain.OrderStatus(status)
		if idx == 1 {
			exec.Leg1 = leg
		} else {
			exec.Leg2 = leg
		}
	}
	return rows.Err()
}

// GetByID returns one execution with its legs.
func (s *HedgeExecutionStore) GetByID(ctx context.Context, id string) (domain.HedgeExecution, error) {
	var exec domain.HedgeExecution
	var outcome string
	err := s.pool.QueryRow(ctx, `
		SELECT id, symbol, outcome, expected_profit_rate, realized_profit_rate, funding_diff_apy, profit_usd, notional_usd, started_at, completed_at
		FROM hedge_executions WHERE id = $1`, id,
	).Scan(&exec.ID, &exec.Symbol, &outcome,
		&exec.ExpectedProfitRate, &exec.RealizedProfitRate, &exec.FundingDiffAPY, &exec.ProfitUSD, &exec.NotionalUSD,
		&exec.StartedAt, &exec.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.HedgeExecution{}, domain.ErrNotFound
		}
		return domain.HedgeExecution{}, fmt.Errorf("postgres: get hedge_execution %s: %w", id, err)
	}
	exec.Outcome = domain.HedgeOutcome(outcome)
	if err := s.loadLegs(ctx, &exec); err != nil {
		return domain.HedgeExecution{}, err
	}
	return exec, nil
}
