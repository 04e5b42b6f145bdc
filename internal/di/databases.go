package di

import (
	"fmt"

	"github.com/aristath/holdings/internal/config"
	"github.com/aristath/holdings/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens both databases and applies their schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// ledger.db - trade and transfer history plus derived portfolio state
	ledgerDB, err := database.New(database.Config{
		Path:    cfg.DatabasePath("ledger"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ledger database: %w", err)
	}
	container.LedgerDB = ledgerDB

	// client_data.db - cached responses from the price API
	clientDataDB, err := database.New(database.Config{
		Path:    cfg.DatabasePath("client_data"),
		Profile: database.ProfileCache,
		Name:    "client_data",
	})
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize client_data database: %w", err)
	}
	container.ClientDataDB = clientDataDB

	for _, db := range []*database.DB{ledgerDB, clientDataDB} {
		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to migrate %s database: %w", db.Name(), err)
		}
		version, err := db.SchemaVersion()
		if err != nil {
			container.Close()
			return nil, err
		}
		log.Debug().Str("database", db.Name()).Int("schema_version", version).Msg("Database ready")
	}

	log.Info().
		Str("data_dir", cfg.DataDir).
		Msg("Databases initialized")

	return container, nil
}
