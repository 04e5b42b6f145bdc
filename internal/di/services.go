package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/holdings/internal/clients/binance"
	"github.com/aristath/holdings/internal/database"
	"github.com/aristath/holdings/internal/config"
	"github.com/aristath/holdings/internal/events"
	"github.com/aristath/holdings/internal/modules/portfolio"
	"github.com/aristath/holdings/internal/modules/trading"
	"github.com/aristath/holdings/internal/modules/transfers"
	"github.com/aristath/holdings/internal/reliability"
	"github.com/aristath/holdings/internal/services"
	"github.com/rs/zerolog"
)

// InitializeServices builds the event bus, the price oracle chain and the module services
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) {
	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	// Binance -> sqlite cache (stale fallback) -> in-process memo
	container.BinanceClient = binance.NewClient(binance.Config{
		BaseURL:   cfg.Price.APIURL,
		Timeout:   cfg.Price.RequestTimeout,
		RateLimit: cfg.Price.RateLimit,
		Burst:     cfg.Price.RateBurst,
		CacheTTL:  cfg.Price.PersistTTL,
	}, container.ClientDataRepo, log)
	container.PriceOracle = services.NewCachedPriceOracle(container.BinanceClient, cfg.Price.CacheTTL, log)

	container.TradingService = trading.NewTradingService(
		container.TradeRepo,
		container.PortfolioRepo,
		container.EventManager,
		log,
	)

	container.TransferService = transfers.NewService(
		container.TransferRepo,
		container.PortfolioRepo,
		container.EventManager,
		log,
	)

	container.PortfolioService = portfolio.NewService(
		container.LedgerDB.Conn(),
		container.PortfolioRepo,
		container.ClosedPositionRepo,
		container.TradeRepo,
		container.TransferRepo,
		container.PriceOracle,
		container.EventManager,
		portfolio.Options{
			PreferredQuote: cfg.PreferredQuote,
			Workers:        cfg.LedgerWorkers,
		},
		log,
	)

	log.Info().Msg("Services initialized")
}

// InitializeBackups connects the offsite backup store when one is configured.
// Only the ledger is backed up; the price cache is rebuilt on demand.
func InitializeBackups(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if cfg.Backup == nil {
		log.Info().Msg("Offsite backups disabled")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := reliability.NewS3Store(ctx, cfg.Backup, log)
	if err != nil {
		return fmt.Errorf("failed to create backup store: %w", err)
	}

	container.BackupService = reliability.NewBackupService(
		store,
		[]*database.DB{container.LedgerDB},
		cfg.DataDir,
		cfg.Backup.Prefix,
		cfg.Backup.RetentionDays,
		log,
	)

	log.Info().Str("bucket", cfg.Backup.Bucket).Msg("Offsite backups enabled")
	return nil
}
