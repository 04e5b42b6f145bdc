package transfers

import (
	"context"
	"fmt"

	"github.com/aristath/holdings/internal/domain"
	"github.com/aristath/holdings/internal/events"
	"github.com/rs/zerolog"
)

// RepositoryInterface defines the interface for transfer persistence
type RepositoryInterface interface {
	Create(ctx context.Context, transfer domain.Transfer) (domain.Transfer, bool, error)
	GetByPortfolio(ctx context.Context, portfolioID string) ([]domain.Transfer, error)
	Delete(ctx context.Context, portfolioID string, id int64) error
}

var _ RepositoryInterface = (*Repository)(nil)

// PortfolioGetter resolves a portfolio, returning domain.ErrPortfolioNotFound if it is missing
type PortfolioGetter interface {
	GetByID(ctx context.Context, id string) (*domain.Portfolio, error)
}

// Service records and removes deposits and withdrawals
type Service struct {
	repo         RepositoryInterface
	portfolios   PortfolioGetter
	eventManager *events.Manager
	log          zerolog.Logger
}

// NewService creates a new transfer service
func NewService(repo RepositoryInterface, portfolios PortfolioGetter, eventManager *events.Manager, log zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		portfolios:   portfolios,
		eventManager: eventManager,
		log:          log.With().Str("service", "transfers").Logger(),
	}
}

// RecordTransfer stores a transfer for an existing portfolio
func (s *Service) RecordTransfer(ctx context.Context, transfer domain.Transfer) (domain.Transfer, bool, error) {
	if _, err := s.portfolios.GetByID(ctx, transfer.PortfolioID); err != nil {
		return domain.Transfer{}, false, err
	}
	if transfer.Source == "" {
		transfer.Source = domain.SourceManual
	}
	if transfer.Source == domain.SourceHoldingSnapshot {
		return domain.Transfer{}, false, fmt.Errorf("%w: transfers cannot use source %s", domain.ErrInvalidInput, transfer.Source)
	}

	stored, created, err := s.repo.Create(ctx, transfer)
	if err != nil {
		return domain.Transfer{}, false, err
	}

	if s.eventManager != nil {
		s.eventManager.EmitTyped("transfers", &events.TransferRecordedData{
			PortfolioID: stored.PortfolioID,
			TransferID:  stored.ID,
			Type:        string(stored.Type),
			Asset:       stored.Asset,
			Amount:      stored.Amount.String(),
			Duplicate:   !created,
		})
	}

	return stored, created, nil
}

// ListTransfers returns a portfolio's transfers in execution order
func (s *Service) ListTransfers(ctx context.Context, portfolioID string) ([]domain.Transfer, error) {
	if _, err := s.portfolios.GetByID(ctx, portfolioID); err != nil {
		return nil, err
	}
	return s.repo.GetByPortfolio(ctx, portfolioID)
}

// DeleteTransfer removes a transfer by explicit user action
func (s *Service) DeleteTransfer(ctx context.Context, portfolioID string, id int64) error {
	if err := s.repo.Delete(ctx, portfolioID, id); err != nil {
		return err
	}

	if s.eventManager != nil {
		s.eventManager.EmitTyped("transfers", &events.TransferDeletedData{
			PortfolioID: portfolioID,
			TransferID:  id,
		})
	}
	return nil
}
