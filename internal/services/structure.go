package services

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/diewo77/devis-app/internal/models"
)

// StructureService exposes idempotent "ensure" operations for the
// structural tiers of a project tree. Like the hierarchy resolver, every
// ensure funnels through findOrCreate, so concurrent callers converge on
// the same row.
type StructureService struct{}

func NewStructureService() *StructureService { return &StructureService{} }

// EnsureLot returns the lot linking projetID to the niveau2 catalog node,
// creating it when absent. The display label "Lot N : <libellé>" is
// assigned from a count query at creation; the sequence is a display aid
// and is not gap-free under concurrent creation.
func (s *StructureService) EnsureLot(tx *gorm.DB, projetID, niveau2ID uint) (uint, error) {
	if err := mustExist(tx, &models.Projet{}, projetID, "projet"); err != nil {
		return 0, err
	}
	var n2 models.Niveau2
	if err := tx.Take(&n2, niveau2ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("%w: niveau 2 id=%d", ErrAncestorNotFound, niveau2ID)
		}
		return 0, err
	}

	var count int64
	if err := tx.Model(&models.Lot{}).Where("projet_id = ?", projetID).Count(&count).Error; err != nil {
		return 0, err
	}
	match := map[string]any{"projet_id": projetID, "niveau2_id": niveau2ID}
	insert := map[string]any{
		"projet_id":  projetID,
		"niveau2_id": niveau2ID,
		"libelle":    fmt.Sprintf("Lot %d : %s", count+1, n2.Libelle),
	}
	return findOrCreate(tx, models.Lot{}.TableName(), match, insert)
}

// EnsureOuvrage finds an ouvrage by case/accent-insensitive name within
// the lot, or creates it with the next sequential designation.
func (s *StructureService) EnsureOuvrage(tx *gorm.DB, lotID uint, nom string) (uint, error) {
	nom = strings.TrimSpace(nom)
	if nom == "" {
		return 0, fmt.Errorf("nom d'ouvrage requis")
	}
	if err := mustExist(tx, &models.Lot{}, lotID, "lot"); err != nil {
		return 0, err
	}
	var count int64
	if err := tx.Model(&models.Ouvrage{}).Where("lot_id = ?", lotID).Count(&count).Error; err != nil {
		return 0, err
	}
	key := models.LabelKey(nom)
	match := map[string]any{"lot_id": lotID, "nom_key": key}
	insert := map[string]any{
		"lot_id":       lotID,
		"nom":          nom,
		"nom_key":      key,
		"designation":  fmt.Sprintf("Ouvrage %d", count+1),
		"cached_total": 0,
	}
	return findOrCreate(tx, models.Ouvrage{}.TableName(), match, insert)
}

// EnsureBloc finds a bloc by case/accent-insensitive name within the
// ouvrage, or creates it together with its junction row. The unique
// (ouvrage, nom_key) index arbitrates concurrent creates exactly like the
// other ensures; a race loser converges on the winner's bloc and junction.
// Returns the bloc id and its structure id.
func (s *StructureService) EnsureBloc(tx *gorm.DB, ouvrageID uint, nom string, quantite float64) (uint, uint, error) {
	nom = strings.TrimSpace(nom)
	if nom == "" {
		return 0, 0, fmt.Errorf("nom de bloc requis")
	}
	if err := mustExist(tx, &models.Ouvrage{}, ouvrageID, "ouvrage"); err != nil {
		return 0, 0, err
	}
	var count int64
	if err := tx.Model(&models.Bloc{}).Where("ouvrage_id = ?", ouvrageID).Count(&count).Error; err != nil {
		return 0, 0, err
	}
	key := models.LabelKey(nom)
	match := map[string]any{"ouvrage_id": ouvrageID, "nom_key": key}
	insert := map[string]any{
		"ouvrage_id":        ouvrageID,
		"nom":               nom,
		"nom_key":           key,
		"designation":       fmt.Sprintf("Bloc %d", count+1),
		"quantite":          quantite,
		"cached_sous_total": 0,
	}
	blocID, err := findOrCreate(tx, models.Bloc{}.TableName(), match, insert)
	if err != nil {
		return 0, 0, err
	}
	structureID, err := s.EnsureStructure(tx, ouvrageID, blocID)
	if err != nil {
		return 0, 0, err
	}
	return blocID, structureID, nil
}

// EnsureStructure returns the junction row for (ouvrageID, blocID), where
// blocID 0 means a direct placement under the ouvrage. At most one row
// ever exists per pair; the unique index arbitrates races.
func (s *StructureService) EnsureStructure(tx *gorm.DB, ouvrageID, blocID uint) (uint, error) {
	if err := mustExist(tx, &models.Ouvrage{}, ouvrageID, "ouvrage"); err != nil {
		return 0, err
	}
	kind := models.StructureKindOuvrage
	if blocID != 0 {
		if err := mustExist(tx, &models.Bloc{}, blocID, "bloc"); err != nil {
			return 0, err
		}
		kind = models.StructureKindBloc
	}
	match := map[string]any{"ouvrage_id": ouvrageID, "bloc_id": blocID}
	insert := map[string]any{"ouvrage_id": ouvrageID, "bloc_id": blocID, "kind": kind}
	return findOrCreate(tx, models.Structure{}.TableName(), match, insert)
}

// EnsurePlaceholder makes an otherwise empty structure position visible to
// traversal queries by inserting an article row with no catalog reference.
// No-op when the position already holds any article.
func (s *StructureService) EnsurePlaceholder(tx *gorm.DB, structureID uint) error {
	var count int64
	if err := tx.Model(&models.ProjetArticle{}).Where("structure_id = ?", structureID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return tx.Create(&models.ProjetArticle{StructureID: structureID}).Error
}

// mustExist maps a missing structural row to ErrStructuralNotFound.
func mustExist(tx *gorm.DB, model any, id uint, kind string) error {
	var count int64
	if err := tx.Model(model).Where("id = ?", id).Limit(1).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: %s id=%d", ErrStructuralNotFound, kind, id)
	}
	return nil
}
