// Package positions persists closed-lot snapshots produced by the ledger.
package positions

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/holdings/internal/database"
	"github.com/aristath/holdings/internal/domain"
	"github.com/aristath/holdings/internal/modules/ledger"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ClosedPosition is a stored closed lot
type ClosedPosition struct {
	ID          int64  `json:"id"`
	PortfolioID string `json:"portfolio_id"`
	ledger.ClosedPositionData
}

const closedPositionColumns = `id, portfolio_id, symbol, cycle, total_bought, total_sold,
	average_buy_price, average_sell_price, total_invested, total_received,
	realized_profit_loss, realized_profit_loss_percentage,
	opened_at, closed_at, number_of_trades`

// ClosedPositionRepository stores closed positions keyed by (portfolio, symbol, cycle).
//
// Writes for a symbol are delete-then-insert, so replaying the same ledger any
// number of times leaves exactly the same rows.
type ClosedPositionRepository struct {
	ledgerDB *sql.DB
	tx       *sql.Tx
	log      zerolog.Logger
}

// NewClosedPositionRepository creates a new closed position repository
func NewClosedPositionRepository(ledgerDB *sql.DB, log zerolog.Logger) *ClosedPositionRepository {
	return &ClosedPositionRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "closed_position").Logger(),
	}
}

// WithTx returns a repository whose writes join tx instead of opening their own transaction
func (r *ClosedPositionRepository) WithTx(tx *sql.Tx) *ClosedPositionRepository {
	clone := *r
	clone.tx = tx
	return &clone
}

func (r *ClosedPositionRepository) executor() database.Executor {
	if r.tx != nil {
		return r.tx
	}
	return r.ledgerDB
}

// atomically runs fn in the caller's transaction, or in a new one
func (r *ClosedPositionRepository) atomically(fn func(exec database.Executor) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}
	return database.WithTransaction(r.ledgerDB, func(tx *sql.Tx) error {
		return fn(tx)
	})
}

// Upsert replaces whatever is stored for the symbol with a single record
func (r *ClosedPositionRepository) Upsert(ctx context.Context, portfolioID, symbol string, data ledger.ClosedPositionData) error {
	if data.Cycle == 0 {
		data.Cycle = 1
	}
	return r.ReplaceSymbol(ctx, portfolioID, symbol, []ledger.ClosedPositionData{data})
}

// ReplaceSymbol replaces every stored cycle of the symbol with the given ones
func (r *ClosedPositionRepository) ReplaceSymbol(ctx context.Context, portfolioID, symbol string, cycles []ledger.ClosedPositionData) error {
	symbol = domain.NormalizeSymbol(symbol)

	return r.atomically(func(exec database.Executor) error {
		if _, err := exec.ExecContext(ctx,
			"DELETE FROM closed_positions WHERE portfolio_id = ? AND symbol = ?",
			portfolioID, symbol,
		); err != nil {
			return fmt.Errorf("failed to delete closed positions for %s: %w", symbol, err)
		}

		for _, c := range cycles {
			if err := insertClosed(ctx, exec, portfolioID, symbol, c.Rounded()); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertClosed(ctx context.Context, exec database.Executor, portfolioID, symbol string, c ledger.ClosedPositionData) error {
	var pct sql.NullString
	if c.RealizedProfitLossPercentage.Valid {
		pct = sql.NullString{String: c.RealizedProfitLossPercentage.Decimal.StringFixed(ledger.PercentScale), Valid: true}
	}

	_, err := exec.ExecContext(ctx, `
		INSERT INTO closed_positions
		(portfolio_id, symbol, cycle, total_bought, total_sold, average_buy_price, average_sell_price,
		 total_invested, total_received, realized_profit_loss, realized_profit_loss_percentage,
		 opened_at, closed_at, number_of_trades)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		portfolioID,
		symbol,
		c.Cycle,
		c.TotalBought.String(),
		c.TotalSold.String(),
		c.AverageBuyPrice.String(),
		c.AverageSellPrice.String(),
		c.TotalInvested.String(),
		c.TotalReceived.String(),
		c.RealizedProfitLoss.String(),
		pct,
		c.OpenedAt.UnixMilli(),
		c.ClosedAt.UnixMilli(),
		c.NumberOfTrades,
	)
	if err != nil {
		return fmt.Errorf("failed to insert closed position %s#%d: %w", symbol, c.Cycle, err)
	}
	return nil
}

// DeleteBySymbol removes every stored cycle of a symbol
func (r *ClosedPositionRepository) DeleteBySymbol(ctx context.Context, portfolioID, symbol string) (int64, error) {
	result, err := r.executor().ExecContext(ctx,
		"DELETE FROM closed_positions WHERE portfolio_id = ? AND symbol = ?",
		portfolioID, domain.NormalizeSymbol(symbol),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete closed positions: %w", err)
	}
	return result.RowsAffected()
}

// PruneSymbols deletes closed positions of every symbol not listed in keep.
// An empty keep list clears the portfolio.
func (r *ClosedPositionRepository) PruneSymbols(ctx context.Context, portfolioID string, keep []string) (int64, error) {
	query := "DELETE FROM closed_positions WHERE portfolio_id = ?"
	args := []interface{}{portfolioID}

	if len(keep) > 0 {
		placeholders := make([]string, len(keep))
		for i, s := range keep {
			placeholders[i] = "?"
			args = append(args, domain.NormalizeSymbol(s))
		}
		query += " AND symbol NOT IN (" + strings.Join(placeholders, ", ") + ")"
	}

	result, err := r.executor().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to prune closed positions: %w", err)
	}

	pruned, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to prune closed positions: %w", err)
	}
	if pruned > 0 {
		r.log.Debug().
			Str("portfolio_id", portfolioID).
			Int64("pruned", pruned).
			Msg("Pruned closed positions of symbols that no longer close")
	}
	return pruned, nil
}

// GetByPortfolio returns every closed position of a portfolio ordered by symbol and cycle
func (r *ClosedPositionRepository) GetByPortfolio(ctx context.Context, portfolioID string) ([]ClosedPosition, error) {
	rows, err := r.executor().QueryContext(ctx, `
		SELECT `+closedPositionColumns+` FROM closed_positions
		WHERE portfolio_id = ?
		ORDER BY symbol ASC, cycle ASC
	`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to get closed positions: %w", err)
	}
	defer rows.Close()

	positions := make([]ClosedPosition, 0)
	for rows.Next() {
		var p ClosedPosition
		var pct decimal.NullDecimal
		var openedAt, closedAt int64

		if err := rows.Scan(
			&p.ID,
			&p.PortfolioID,
			&p.Symbol,
			&p.Cycle,
			&p.TotalBought,
			&p.TotalSold,
			&p.AverageBuyPrice,
			&p.AverageSellPrice,
			&p.TotalInvested,
			&p.TotalReceived,
			&p.RealizedProfitLoss,
			&pct,
			&openedAt,
			&closedAt,
			&p.NumberOfTrades,
		); err != nil {
			return nil, fmt.Errorf("failed to scan closed position: %w", err)
		}

		p.RealizedProfitLossPercentage = pct
		p.OpenedAt = time.UnixMilli(openedAt).UTC()
		p.ClosedAt = time.UnixMilli(closedAt).UTC()
		positions = append(positions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating closed positions: %w", err)
	}

	return positions, nil
}
