package di

import (
	"github.com/aristath/holdings/internal/clientdata"
	"github.com/aristath/holdings/internal/modules/portfolio"
	"github.com/aristath/holdings/internal/modules/positions"
	"github.com/aristath/holdings/internal/modules/trading"
	"github.com/aristath/holdings/internal/modules/transfers"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates all repositories on the container's databases
func InitializeRepositories(container *Container, log zerolog.Logger) {
	ledger := container.LedgerDB.Conn()

	container.PortfolioRepo = portfolio.NewRepository(ledger, log)
	container.TradeRepo = trading.NewTradeRepository(ledger, log)
	container.TransferRepo = transfers.NewRepository(ledger, log)
	container.ClosedPositionRepo = positions.NewClosedPositionRepository(ledger, log)
	container.ClientDataRepo = clientdata.NewRepository(container.ClientDataDB.Conn())

	log.Info().Msg("Repositories initialized")
}
