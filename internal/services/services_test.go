package services

import (
	"testing"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/diewo77/devis-app/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Use a unique in-memory database per test to avoid cross-test collisions.
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Niveau1{}, &models.Niveau2{}, &models.Niveau3{},
		&models.Niveau4{}, &models.Niveau5{}, &models.Niveau6{},
		&models.Projet{}, &models.Lot{}, &models.Ouvrage{}, &models.Bloc{},
		&models.Structure{}, &models.ProjetArticle{}, &models.User{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestPlacement(db *gorm.DB, sink EventSink) *PlacementService {
	return NewPlacementService(db, NewHierarchyService(), NewStructureService(),
		NewCascadeService(zap.NewNop()), sink, zap.NewNop())
}

func createProjet(t *testing.T, db *gorm.DB, nom string) uint {
	t.Helper()
	projet := models.Projet{Nom: nom, Client: "Client Test"}
	if err := db.Create(&projet).Error; err != nil {
		t.Fatalf("create projet: %v", err)
	}
	return projet.ID
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var count int64
	if err := db.Model(model).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return count
}

// captureSink records emitted events for assertions.
type captureSink struct {
	events []ChangeEvent
}

func (c *captureSink) Emit(ev ChangeEvent) { c.events = append(c.events, ev) }
