package portfolio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/holdings/internal/database"
	"github.com/aristath/holdings/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const portfolioColumns = `id, name, quote_asset, total_invested, current_value, profit_loss,
	realized_profit_loss, unrealized_profit_loss, recomputed_at, created_at`

// Repository handles portfolio database operations
type Repository struct {
	ledgerDB *sql.DB
	exec     database.Executor
	log      zerolog.Logger
}

// NewRepository creates a new portfolio repository
func NewRepository(ledgerDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		ledgerDB: ledgerDB,
		exec:     ledgerDB,
		log:      log.With().Str("repo", "portfolio").Logger(),
	}
}

// WithTx returns a repository whose statements run inside tx
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	clone := *r
	clone.exec = tx
	return &clone
}

// Create inserts a new empty portfolio with a generated ID
func (r *Repository) Create(ctx context.Context, name, quoteAsset string) (*domain.Portfolio, error) {
	p := domain.Portfolio{
		ID:         uuid.New().String(),
		Name:       name,
		QuoteAsset: domain.NormalizeSymbol(quoteAsset),
		CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("failed to create portfolio: %w", err)
	}

	_, err := r.exec.ExecContext(ctx,
		`INSERT INTO portfolios (id, name, quote_asset, created_at) VALUES (?, ?, ?, ?)`,
		p.ID, p.Name, p.QuoteAsset, p.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create portfolio: %w", err)
	}

	r.log.Info().
		Str("portfolio_id", p.ID).
		Str("quote_asset", p.QuoteAsset).
		Msg("Portfolio created")

	return &p, nil
}

// GetByID retrieves a portfolio or domain.ErrPortfolioNotFound
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Portfolio, error) {
	row := r.exec.QueryRowContext(ctx, "SELECT "+portfolioColumns+" FROM portfolios WHERE id = ?", id)

	p, err := scanPortfolio(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPortfolioNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	return &p, nil
}

// List returns every portfolio, oldest first
func (r *Repository) List(ctx context.Context) ([]domain.Portfolio, error) {
	rows, err := r.exec.QueryContext(ctx, "SELECT "+portfolioColumns+" FROM portfolios ORDER BY created_at ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	portfolios := make([]domain.Portfolio, 0)
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}
	return portfolios, nil
}

// SaveSummary stores the totals of a recomputation on the portfolio row
func (r *Repository) SaveSummary(ctx context.Context, summary Summary, at time.Time) error {
	result, err := r.exec.ExecContext(ctx, `
		UPDATE portfolios
		SET total_invested = ?, current_value = ?, profit_loss = ?,
		    realized_profit_loss = ?, unrealized_profit_loss = ?, recomputed_at = ?
		WHERE id = ?
	`,
		summary.TotalInvested.String(),
		summary.CurrentValue.String(),
		summary.ProfitLoss.String(),
		summary.RealizedProfitLoss.String(),
		summary.UnrealizedProfitLoss.String(),
		at.UnixMilli(),
		summary.PortfolioID,
	)
	if err != nil {
		return fmt.Errorf("failed to save portfolio summary: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save portfolio summary: %w", err)
	}
	if affected == 0 {
		return domain.ErrPortfolioNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPortfolio(row rowScanner) (domain.Portfolio, error) {
	var p domain.Portfolio
	var recomputedAt sql.NullInt64
	var createdAt int64

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.QuoteAsset,
		&p.TotalInvested,
		&p.CurrentValue,
		&p.ProfitLoss,
		&p.RealizedProfitLoss,
		&p.UnrealizedProfitLoss,
		&recomputedAt,
		&createdAt,
	)
	if err != nil {
		return p, err
	}

	p.CreatedAt = time.UnixMilli(createdAt).UTC()
	if recomputedAt.Valid {
		t := time.UnixMilli(recomputedAt.Int64).UTC()
		p.RecomputedAt = &t
	}
	return p, nil
}
