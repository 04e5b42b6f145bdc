package trading

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/holdings/internal/database"
	"github.com/aristath/holdings/internal/domain"
	"github.com/rs/zerolog"
)

// tradesColumns is the list of columns for the trades table.
// Column order must match scanTrade().
const tradesColumns = `id, portfolio_id, symbol, side, quantity, price, fee, executed_at, source, external_id, created_at`

// TradeRepository handles trade database operations
type TradeRepository struct {
	ledgerDB *sql.DB
	exec     database.Executor
	log      zerolog.Logger
}

// NewTradeRepository creates a new trade repository
func NewTradeRepository(ledgerDB *sql.DB, log zerolog.Logger) *TradeRepository {
	return &TradeRepository{
		ledgerDB: ledgerDB,
		exec:     ledgerDB,
		log:      log.With().Str("repo", "trade").Logger(),
	}
}

// WithTx returns a repository whose statements run inside tx
func (r *TradeRepository) WithTx(tx *sql.Tx) *TradeRepository {
	clone := *r
	clone.exec = tx
	return &clone
}

// Create validates and inserts a trade, returning it with its ID.
//
// A trade whose external ID was already recorded for the portfolio is not
// inserted again; the stored trade is returned with created=false.
func (r *TradeRepository) Create(ctx context.Context, trade domain.Trade) (domain.Trade, bool, error) {
	if err := trade.Validate(); err != nil {
		return domain.Trade{}, false, fmt.Errorf("failed to create trade: %w", err)
	}
	trade.Symbol = domain.NormalizeSymbol(trade.Symbol)

	if trade.ExternalID != "" {
		existing, err := r.GetByExternalID(ctx, trade.PortfolioID, trade.ExternalID)
		if err != nil {
			return domain.Trade{}, false, fmt.Errorf("failed to check for existing trade: %w", err)
		}
		if existing != nil {
			r.log.Debug().
				Str("portfolio_id", trade.PortfolioID).
				Str("external_id", trade.ExternalID).
				Msg("Trade with external_id already exists, skipping duplicate")
			return *existing, false, nil
		}
	}

	created, err := insertTrade(ctx, r.exec, trade)
	if err != nil {
		return domain.Trade{}, false, err
	}

	r.log.Info().
		Str("portfolio_id", created.PortfolioID).
		Str("symbol", created.Symbol).
		Str("side", string(created.Side)).
		Str("quantity", created.Quantity.String()).
		Msg("Trade created")

	return created, true, nil
}

func insertTrade(ctx context.Context, exec database.Executor, trade domain.Trade) (domain.Trade, error) {
	trade.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO trades
		(portfolio_id, symbol, side, quantity, price, fee, executed_at, source, external_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := exec.ExecContext(ctx, query,
		trade.PortfolioID,
		trade.Symbol,
		string(trade.Side),
		trade.Quantity.String(),
		trade.Price.String(),
		trade.Fee.String(),
		trade.ExecutedAt.UnixMilli(),
		string(trade.Source),
		nullString(trade.ExternalID),
		trade.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("failed to create trade: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return domain.Trade{}, fmt.Errorf("failed to read trade id: %w", err)
	}
	trade.ID = id

	return trade, nil
}

// GetByID retrieves a single trade of a portfolio
func (r *TradeRepository) GetByID(ctx context.Context, portfolioID string, id int64) (*domain.Trade, error) {
	query := "SELECT " + tradesColumns + " FROM trades WHERE portfolio_id = ? AND id = ?"

	trade, err := scanTrade(r.exec.QueryRowContext(ctx, query, portfolioID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTradeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}

	return &trade, nil
}

// GetByExternalID retrieves a trade by its import identifier, or nil if none exists
func (r *TradeRepository) GetByExternalID(ctx context.Context, portfolioID, externalID string) (*domain.Trade, error) {
	query := "SELECT " + tradesColumns + " FROM trades WHERE portfolio_id = ? AND external_id = ?"

	trade, err := scanTrade(r.exec.QueryRowContext(ctx, query, portfolioID, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade by external_id: %w", err)
	}

	return &trade, nil
}

// GetByPortfolio retrieves every trade of a portfolio in execution order
func (r *TradeRepository) GetByPortfolio(ctx context.Context, portfolioID string) ([]domain.Trade, error) {
	query := `
		SELECT ` + tradesColumns + ` FROM trades
		WHERE portfolio_id = ?
		ORDER BY executed_at ASC, id ASC
	`

	rows, err := r.exec.QueryContext(ctx, query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to get trades: %w", err)
	}
	defer rows.Close()

	trades := make([]domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}

	return trades, nil
}

// Delete removes a single trade
func (r *TradeRepository) Delete(ctx context.Context, portfolioID string, id int64) error {
	result, err := r.exec.ExecContext(ctx, "DELETE FROM trades WHERE portfolio_id = ? AND id = ?", portfolioID, id)
	if err != nil {
		return fmt.Errorf("failed to delete trade: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete trade: %w", err)
	}
	if affected == 0 {
		return domain.ErrTradeNotFound
	}

	r.log.Info().
		Str("portfolio_id", portfolioID).
		Int64("trade_id", id).
		Msg("Trade deleted")

	return nil
}

// ReplaceBySource atomically deletes every trade of the given source and
// inserts the replacements. Running it twice with the same input leaves the
// same rows behind.
func (r *TradeRepository) ReplaceBySource(ctx context.Context, portfolioID string, source domain.Source, trades []domain.Trade) (int64, error) {
	for i := range trades {
		trades[i].PortfolioID = portfolioID
		trades[i].Source = source
		trades[i].Symbol = domain.NormalizeSymbol(trades[i].Symbol)
		if err := trades[i].Validate(); err != nil {
			return 0, fmt.Errorf("failed to replace trades: %w", err)
		}
	}

	var removed int64
	err := database.WithTransaction(r.ledgerDB, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, "DELETE FROM trades WHERE portfolio_id = ? AND source = ?", portfolioID, string(source))
		if err != nil {
			return fmt.Errorf("failed to delete %s trades: %w", source, err)
		}
		if removed, err = result.RowsAffected(); err != nil {
			return err
		}

		for _, trade := range trades {
			if _, err := insertTrade(ctx, tx, trade); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	r.log.Info().
		Str("portfolio_id", portfolioID).
		Str("source", string(source)).
		Int64("removed", removed).
		Int("inserted", len(trades)).
		Msg("Trades replaced")

	return removed, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(row rowScanner) (domain.Trade, error) {
	var trade domain.Trade
	var side, source string
	var externalID sql.NullString
	var executedAt, createdAt int64

	err := row.Scan(
		&trade.ID,
		&trade.PortfolioID,
		&trade.Symbol,
		&side,
		&trade.Quantity,
		&trade.Price,
		&trade.Fee,
		&executedAt,
		&source,
		&externalID,
		&createdAt,
	)
	if err != nil {
		return trade, err
	}

	trade.Side = domain.TradeSide(side)
	trade.Source = domain.Source(source)
	trade.ExecutedAt = time.UnixMilli(executedAt).UTC()
	trade.CreatedAt = time.UnixMilli(createdAt).UTC()
	if externalID.Valid {
		trade.ExternalID = externalID.String
	}

	return trade, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}
