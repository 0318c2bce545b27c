package db

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/diewo77/devis-app/internal/config"
)

// RunMigrations applies the SQL migration files and returns without opening
// the ORM connection. The -migrate-only flag uses it so deploy jobs can
// migrate without starting the server.
func RunMigrations(cfg config.Config, log *zap.Logger) error {
	dsn := NormalizeDSN(cfg.DatabaseDSN)
	if dsn == "" {
		return fmt.Errorf("DATABASE_DSN est vide, vérifiez la configuration de l'environnement")
	}
	log.Info("applying SQL migrations")
	return runSQLMigrations(dsn)
}
