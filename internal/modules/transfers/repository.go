// Package transfers stores asset deposits and withdrawals.
package transfers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/holdings/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const transfersColumns = `id, portfolio_id, type, asset, amount, fee, known_cost_basis, executed_at, source, external_id, created_at`

// Repository handles transfer database operations
type Repository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// NewRepository creates a new transfer repository
func NewRepository(ledgerDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "transfer").Logger(),
	}
}

// Create validates and inserts a transfer. A transfer whose external ID already
// exists for the portfolio is returned as stored with created=false.
func (r *Repository) Create(ctx context.Context, transfer domain.Transfer) (domain.Transfer, bool, error) {
	if err := transfer.Validate(); err != nil {
		return domain.Transfer{}, false, fmt.Errorf("failed to create transfer: %w", err)
	}
	transfer.Asset = domain.NormalizeSymbol(transfer.Asset)

	if transfer.ExternalID != "" {
		existing, err := r.getOne(ctx, "external_id = ?", transfer.PortfolioID, transfer.ExternalID)
		if err != nil && !errors.Is(err, domain.ErrTransferNotFound) {
			return domain.Transfer{}, false, fmt.Errorf("failed to check for existing transfer: %w", err)
		}
		if existing != nil {
			r.log.Debug().
				Str("portfolio_id", transfer.PortfolioID).
				Str("external_id", transfer.ExternalID).
				Msg("Transfer with external_id already exists, skipping duplicate")
			return *existing, false, nil
		}
	}

	transfer.CreatedAt = time.Now().UTC()

	var knownCost sql.NullString
	if transfer.KnownCostBasis != nil {
		knownCost = sql.NullString{String: transfer.KnownCostBasis.String(), Valid: true}
	}
	var externalID sql.NullString
	if transfer.ExternalID != "" {
		externalID = sql.NullString{String: transfer.ExternalID, Valid: true}
	}

	result, err := r.ledgerDB.ExecContext(ctx, `
		INSERT INTO transfers
		(portfolio_id, type, asset, amount, fee, known_cost_basis, executed_at, source, external_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		transfer.PortfolioID,
		string(transfer.Type),
		transfer.Asset,
		transfer.Amount.String(),
		transfer.Fee.String(),
		knownCost,
		transfer.ExecutedAt.UnixMilli(),
		string(transfer.Source),
		externalID,
		transfer.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return domain.Transfer{}, false, fmt.Errorf("failed to create transfer: %w", err)
	}

	if transfer.ID, err = result.LastInsertId(); err != nil {
		return domain.Transfer{}, false, fmt.Errorf("failed to read transfer id: %w", err)
	}

	r.log.Info().
		Str("portfolio_id", transfer.PortfolioID).
		Str("asset", transfer.Asset).
		Str("type", string(transfer.Type)).
		Str("amount", transfer.Amount.String()).
		Msg("Transfer created")

	return transfer, true, nil
}

// GetByID retrieves a single transfer of a portfolio
func (r *Repository) GetByID(ctx context.Context, portfolioID string, id int64) (*domain.Transfer, error) {
	return r.getOne(ctx, "id = ?", portfolioID, id)
}

func (r *Repository) getOne(ctx context.Context, where string, portfolioID string, arg interface{}) (*domain.Transfer, error) {
	query := "SELECT " + transfersColumns + " FROM transfers WHERE portfolio_id = ? AND " + where

	transfer, err := scanTransfer(r.ledgerDB.QueryRowContext(ctx, query, portfolioID, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTransferNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transfer: %w", err)
	}
	return &transfer, nil
}

// GetByPortfolio retrieves every transfer of a portfolio in execution order
func (r *Repository) GetByPortfolio(ctx context.Context, portfolioID string) ([]domain.Transfer, error) {
	rows, err := r.ledgerDB.QueryContext(ctx, `
		SELECT `+transfersColumns+` FROM transfers
		WHERE portfolio_id = ?
		ORDER BY executed_at ASC, id ASC
	`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transfers: %w", err)
	}
	defer rows.Close()

	transfers := make([]domain.Transfer, 0)
	for rows.Next() {
		transfer, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		transfers = append(transfers, transfer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transfers: %w", err)
	}

	return transfers, nil
}

// Delete removes a single transfer
func (r *Repository) Delete(ctx context.Context, portfolioID string, id int64) error {
	result, err := r.ledgerDB.ExecContext(ctx, "DELETE FROM transfers WHERE portfolio_id = ? AND id = ?", portfolioID, id)
	if err != nil {
		return fmt.Errorf("failed to delete transfer: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete transfer: %w", err)
	}
	if affected == 0 {
		return domain.ErrTransferNotFound
	}

	r.log.Info().
		Str("portfolio_id", portfolioID).
		Int64("transfer_id", id).
		Msg("Transfer deleted")

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransfer(row rowScanner) (domain.Transfer, error) {
	var transfer domain.Transfer
	var kind, source string
	var knownCost decimal.NullDecimal
	var externalID sql.NullString
	var executedAt, createdAt int64

	err := row.Scan(
		&transfer.ID,
		&transfer.PortfolioID,
		&kind,
		&transfer.Asset,
		&transfer.Amount,
		&transfer.Fee,
		&knownCost,
		&executedAt,
		&source,
		&externalID,
		&createdAt,
	)
	if err != nil {
		return transfer, err
	}

	transfer.Type = domain.TransferType(kind)
	transfer.Source = domain.Source(source)
	transfer.ExecutedAt = time.UnixMilli(executedAt).UTC()
	transfer.CreatedAt = time.UnixMilli(createdAt).UTC()
	if knownCost.Valid {
		cost := knownCost.Decimal
		transfer.KnownCostBasis = &cost
	}
	if externalID.Valid {
		transfer.ExternalID = externalID.String
	}

	return transfer, nil
}
