// Command rotatekey re-encrypts every stored provider credential under a new
// master key. The current key comes from the configured vault variable
// (OMS_VAULT_KEY by default); the replacement comes from OMS_VAULT_KEY_NEXT.
// After a successful run, deployments switch OMS_VAULT_KEY to the new value.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/oms/backend/internal/infrastructure/config"
	"github.com/oms/backend/internal/infrastructure/logger"
	"github.com/oms/backend/internal/infrastructure/persistence"
	"github.com/oms/backend/internal/infrastructure/vault"
)

const nextKeyEnvVar = "OMS_VAULT_KEY_NEXT"

func main() {
	var (
		confirm  bool
		logLevel string
	)
	flag.BoolVar(&confirm, "confirm", false, "Actually rotate; without it the tool only reports what would happen")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	currentKey, err := cfg.VaultKey()
	if err != nil {
		log.Fatal("Failed to load current vault key", zap.Error(err))
	}
	newKey, err := vault.KeyFromEnv(nextKeyEnvVar)
	if err != nil {
		log.Fatal("Failed to load replacement vault key", zap.Error(err))
	}

	credVault, err := vault.NewCredentialVault(currentKey)
	if err != nil {
		log.Fatal("Failed to initialize credential vault", zap.Error(err))
	}

	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	repo := persistence.NewGormCredentialRepository(db.DB, credVault)

	if !confirm {
		log.Info("Dry run: keys loaded and database reachable. Re-run with -confirm to rotate.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	rotated, err := repo.RotateKey(ctx, newKey)
	if err != nil {
		log.Fatal("Key rotation failed, no rows were changed", zap.Error(err))
	}

	log.Info("Key rotation complete",
		zap.Int("rows_rotated", rotated),
		zap.String("next_step", "set "+cfg.Vault.KeyEnvVar+" to the new key and restart the service"),
	)
}
