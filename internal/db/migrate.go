package db

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	migrate "github.com/golang-migrate/migrate/v4"
	// The following blank imports register the postgres driver and file
	// source for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/diewo77/devis-app/internal/config"
	"github.com/diewo77/devis-app/internal/models"
)

// Models returns every persisted model in migration order. Shared by
// ConnectAndMigrate and the test helpers.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Niveau1{}, &models.Niveau2{}, &models.Niveau3{},
		&models.Niveau4{}, &models.Niveau5{}, &models.Niveau6{},
		&models.Projet{}, &models.Lot{}, &models.Ouvrage{}, &models.Bloc{},
		&models.Structure{}, &models.ProjetArticle{},
	}
}

func ConnectAndMigrate(cfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	dsn := NormalizeDSN(cfg.DatabaseDSN)
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_DSN est vide, vérifiez la configuration de l'environnement")
	}
	var db *gorm.DB
	var err error
	logLevel := logger.Silent
	if os.Getenv("DB_DEBUG") == "1" {
		logLevel = logger.Info
	}
	// TranslateError so unique-violation races surface as
	// gorm.ErrDuplicatedKey for the find-or-create retry.
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logLevel), TranslateError: true}
	for i := 0; i < 10; i++ {
		db, err = gorm.Open(postgres.Open(dsn), gcfg)
		if err == nil {
			break
		}
		log.Warn("retrying DB connection", zap.Error(err))
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect database after retries: %w", err)
	}

	// Basic connectivity test
	if pingErr := db.Exec("SELECT 1").Error; pingErr != nil {
		return nil, fmt.Errorf("db ping failed: %w", pingErr)
	}

	// Print masked DSN once for diagnostics (before migrations for visibility)
	masked := dsn
	if strings.Contains(masked, "password=") {
		re := regexp.MustCompile(`(password=)([^\s]+)`)
		masked = re.ReplaceAllString(masked, `${1}***`)
	}
	log.Info("using DSN", zap.String("dsn", masked))

	// MIGRATIONS=1 runs the sql migration files via golang-migrate;
	// otherwise AutoMigrate (dev convenience).
	if cfg.RunSQLMigrations {
		if err := runSQLMigrations(dsn); err != nil {
			return nil, fmt.Errorf("sql migrations failed: %w", err)
		}
	} else {
		for _, m := range Models() {
			if migErr := db.AutoMigrate(m); migErr != nil {
				return nil, fmt.Errorf("automigrate %T: %w", m, migErr)
			}
		}
	}

	// sanity check: ensure required core tables exist
	for _, table := range []string{"users", "hierarchie_niveau1", "hierarchie_niveau6", "projets", "structures", "projet_articles"} {
		if !db.Migrator().HasTable(table) {
			return nil, errors.New("missing table after migration: " + table)
		}
	}
	// Seeding only when explicitly requested (e.g. development) via DB_SEED=1
	if cfg.SeedOnStart {
		Seed(db, log)
	}
	return db, nil
}

// Seed inserts baseline reference data. Idempotent: re-running never
// duplicates rows.
func Seed(db *gorm.DB, log *zap.Logger) {
	// Familles de niveau 1 usuelles du bâtiment.
	familles := []string{"Gros œuvre", "Second œuvre", "Électricité", "Plomberie", "CVC"}
	for _, f := range familles {
		key := models.LabelKey(f)
		var existing models.Niveau1
		if err := db.Where("libelle_key = ?", key).First(&existing).Error; errors.Is(err, gorm.ErrRecordNotFound) {
			if cerr := db.Create(&models.Niveau1{Libelle: f, LibelleKey: key}).Error; cerr != nil {
				log.Warn("seed niveau1", zap.String("libelle", f), zap.Error(cerr))
			}
		}
	}
	// Admin account for the API (dev default, override via env).
	email := os.Getenv("ADMIN_EMAIL")
	if email == "" {
		email = "admin@devis.local"
	}
	var existing models.User
	if err := db.Where("email = ?", email).First(&existing).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		pass := os.Getenv("ADMIN_PASSWORD")
		if pass == "" {
			pass = "admin"
		}
		hash, herr := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
		if herr != nil {
			log.Warn("seed admin hash", zap.Error(herr))
			return
		}
		if cerr := db.Create(&models.User{Email: email, Password: string(hash), Nom: "Admin"}).Error; cerr != nil {
			log.Warn("seed admin", zap.Error(cerr))
		}
	}
}

// runSQLMigrations executes migrations in ./migrations using golang-migrate file source.
func runSQLMigrations(dsn string) error {
	m, err := migrate.New("file://migrations", dsn)
	if err != nil {
		return err
	}
	if err = m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}
