package di

import (
	"github.com/aristath/holdings/internal/clientdata"
	"github.com/aristath/holdings/internal/clients/binance"
	"github.com/aristath/holdings/internal/database"
	"github.com/aristath/holdings/internal/events"
	"github.com/aristath/holdings/internal/modules/portfolio"
	"github.com/aristath/holdings/internal/modules/positions"
	"github.com/aristath/holdings/internal/modules/trading"
	"github.com/aristath/holdings/internal/modules/transfers"
	"github.com/aristath/holdings/internal/reliability"
	"github.com/aristath/holdings/internal/services"
)

// Container holds all initialized dependencies
type Container struct {
	// Databases
	LedgerDB     *database.DB // portfolios, trades, transfers, closed positions
	ClientDataDB *database.DB // persistent price cache

	// Repositories
	PortfolioRepo      *portfolio.Repository
	TradeRepo          *trading.TradeRepository
	TransferRepo       *transfers.Repository
	ClosedPositionRepo *positions.ClosedPositionRepository
	ClientDataRepo     *clientdata.Repository

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Prices
	BinanceClient *binance.Client
	PriceOracle   *services.CachedPriceOracle

	// Services
	PortfolioService *portfolio.Service
	TradingService   *trading.TradingService
	TransferService  *transfers.Service

	// Offsite backups; nil when no bucket is configured
	BackupService *reliability.BackupService
}

// Close closes every open database. Safe on a partially initialized container.
func (c *Container) Close() {
	if c.LedgerDB != nil {
		_ = c.LedgerDB.Close()
	}
	if c.ClientDataDB != nil {
		_ = c.ClientDataDB.Close()
	}
}
