package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/diewo77/devis-app/internal/models"
)

// PlacementService is the mutation orchestrator: one transaction per
// user-facing operation wrapping hierarchy resolution, structural ensures,
// the article write and the bloc/ouvrage cascade tiers. The project tier
// (prix_vente) runs after commit to keep the write transaction short; its
// failure degrades to a warning and self-heals on the next mutation.
type PlacementService struct {
	db        *gorm.DB
	hierarchy *HierarchyService
	structure *StructureService
	cascade   *CascadeService
	sink      EventSink
	log       *zap.Logger
}

func NewPlacementService(db *gorm.DB, h *HierarchyService, st *StructureService, c *CascadeService, sink EventSink, log *zap.Logger) *PlacementService {
	if sink == nil {
		sink = NopSink{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PlacementService{db: db, hierarchy: h, structure: st, cascade: c, sink: sink, log: log}
}

// computeTotals derives the cached line amounts:
// HT = quantité × prix unitaire, TTC = HT × (1 + taux/100).
func computeTotals(quantite, prixUnitaire, tauxTVA float64) (ht, ttc float64) {
	ht = quantite * prixUnitaire
	ttc = ht * (1 + tauxTVA/100)
	return ht, ttc
}

type PlaceArticleInput struct {
	ProjetID     uint         `json:"projet_id"`
	Ouvrage      string       `json:"ouvrage"`
	Bloc         string       `json:"bloc"`
	BlocQuantite float64      `json:"bloc_quantite"`
	Hierarchie   ResolveInput `json:"hierarchie"`

	Quantite     float64 `json:"quantite"`
	PrixUnitaire float64 `json:"prix_unitaire"`
	TauxTVA      float64 `json:"taux_tva"`
	Localisation string  `json:"localisation"`
	Description  string  `json:"description"`
	Designation  string  `json:"designation"`
}

// PlaceArticle places an article into a project tree. Missing structural
// tiers (lot, ouvrage, bloc, structure) are created on the way; an
// existing placeholder at the target position is filled instead of
// inserting a sibling. The returned warning is true when the deferred
// prix_vente recompute failed after commit.
func (s *PlacementService) PlaceArticle(ctx context.Context, in PlaceArticleInput) (*models.ProjetArticle, bool, error) {
	var (
		article   models.ProjetArticle
		ouvrageID uint
		blocID    uint
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		path, err := s.hierarchy.Resolve(tx, in.Hierarchie)
		if err != nil {
			return err
		}
		lotID, err := s.structure.EnsureLot(tx, in.ProjetID, path.Niveau2ID)
		if err != nil {
			return err
		}
		ouvrageID, err = s.structure.EnsureOuvrage(tx, lotID, in.Ouvrage)
		if err != nil {
			return err
		}
		var structureID uint
		if strings.TrimSpace(in.Bloc) != "" {
			blocID, structureID, err = s.structure.EnsureBloc(tx, ouvrageID, in.Bloc, in.BlocQuantite)
		} else {
			structureID, err = s.structure.EnsureStructure(tx, ouvrageID, 0)
		}
		if err != nil {
			return err
		}

		leafID := path.LeafID()
		ht, ttc := computeTotals(in.Quantite, in.PrixUnitaire, in.TauxTVA)
		article = models.ProjetArticle{
			StructureID:  structureID,
			Niveau6ID:    &leafID,
			Quantite:     in.Quantite,
			PrixUnitaire: in.PrixUnitaire,
			TauxTVA:      in.TauxTVA,
			TotalHT:      ht,
			TotalTTC:     ttc,
			Localisation: in.Localisation,
			Description:  in.Description,
			Designation:  in.Designation,
		}
		// Fill the structural placeholder when the position holds one,
		// otherwise insert a sibling row.
		var placeholder models.ProjetArticle
		err = tx.Where("structure_id = ? AND niveau6_id IS NULL", structureID).Take(&placeholder).Error
		switch {
		case err == nil:
			article.ID = placeholder.ID
			article.CreatedAt = placeholder.CreatedAt
			if err := tx.Save(&article).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(&article).Error; err != nil {
				return err
			}
		default:
			return err
		}

		return s.cascade.OnArticleChanged(tx, ouvrageID, blocID)
	})
	if err != nil {
		return nil, false, err
	}

	warning := s.projectTier(ctx, in.ProjetID)
	s.sink.Emit(ChangeEvent{Action: ActionPlace, ProjetID: in.ProjetID, ArticleID: article.ID})
	return &article, warning, nil
}

// PlacementPatch carries the partial fields of an update; nil pointers
// leave the stored value untouched.
type PlacementPatch struct {
	Quantite     *float64 `json:"quantite"`
	PrixUnitaire *float64 `json:"prix_unitaire"`
	TauxTVA      *float64 `json:"taux_tva"`
	Localisation *string  `json:"localisation"`
	Description  *string  `json:"description"`
	Designation  *string  `json:"designation"`
}

func (p PlacementPatch) changedFields() []string {
	var fields []string
	if p.Quantite != nil {
		fields = append(fields, "quantite")
	}
	if p.PrixUnitaire != nil {
		fields = append(fields, "prix_unitaire")
	}
	if p.TauxTVA != nil {
		fields = append(fields, "taux_tva")
	}
	if p.Localisation != nil {
		fields = append(fields, "localisation")
	}
	if p.Description != nil {
		fields = append(fields, "description")
	}
	if p.Designation != nil {
		fields = append(fields, "designation")
	}
	return fields
}

// UpdatePlacement applies a partial edit to a placed article, re-derives
// its totals and cascades.
func (s *PlacementService) UpdatePlacement(ctx context.Context, articleID uint, patch PlacementPatch) (*models.ProjetArticle, bool, error) {
	var (
		article models.ProjetArticle
		pos     coords
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Take(&article, articleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: article id=%d", ErrStructuralNotFound, articleID)
			}
			return err
		}
		var err error
		pos, err = resolveCoords(tx, article.StructureID)
		if err != nil {
			return err
		}
		if patch.Quantite != nil {
			article.Quantite = *patch.Quantite
		}
		if patch.PrixUnitaire != nil {
			article.PrixUnitaire = *patch.PrixUnitaire
		}
		if patch.TauxTVA != nil {
			article.TauxTVA = *patch.TauxTVA
		}
		if patch.Localisation != nil {
			article.Localisation = *patch.Localisation
		}
		if patch.Description != nil {
			article.Description = *patch.Description
		}
		if patch.Designation != nil {
			article.Designation = *patch.Designation
		}
		article.TotalHT, article.TotalTTC = computeTotals(article.Quantite, article.PrixUnitaire, article.TauxTVA)
		if err := tx.Save(&article).Error; err != nil {
			return err
		}
		return s.cascade.OnArticleChanged(tx, pos.OuvrageID, pos.BlocID)
	})
	if err != nil {
		return nil, false, err
	}

	warning := s.projectTier(ctx, pos.ProjetID)
	s.sink.Emit(ChangeEvent{Action: ActionUpdate, ProjetID: pos.ProjetID, ArticleID: article.ID, ChangedFields: patch.changedFields()})
	return &article, warning, nil
}

// RemovePlacement deletes a placed article and cascades from the
// structural coordinates captured before the row disappeared, so the now
// emptier bloc/ouvrage still get correct totals.
func (s *PlacementService) RemovePlacement(ctx context.Context, articleID uint) (bool, error) {
	var pos coords
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var article models.ProjetArticle
		if err := tx.Take(&article, articleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: article id=%d", ErrStructuralNotFound, articleID)
			}
			return err
		}
		var err error
		pos, err = resolveCoords(tx, article.StructureID)
		if err != nil {
			return err
		}
		if err := tx.Delete(&models.ProjetArticle{}, articleID).Error; err != nil {
			return err
		}
		return s.cascade.OnArticleChanged(tx, pos.OuvrageID, pos.BlocID)
	})
	if err != nil {
		return false, err
	}

	warning := s.projectTier(ctx, pos.ProjetID)
	s.sink.Emit(ChangeEvent{Action: ActionRemove, ProjetID: pos.ProjetID, ArticleID: articleID})
	return warning, nil
}

// CreateLot builds an empty lot (with a default ouvrage, its structure row
// and a placeholder article) so the node shows up in traversal queries
// before any article is placed.
func (s *PlacementService) CreateLot(ctx context.Context, projetID uint, labels ResolveInput) (uint, error) {
	var lotID uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		niveau2ID, err := s.hierarchy.ResolveNiveau2(tx, labels)
		if err != nil {
			return err
		}
		lotID, err = s.structure.EnsureLot(tx, projetID, niveau2ID)
		if err != nil {
			return err
		}
		var n2 models.Niveau2
		if err := tx.Take(&n2, niveau2ID).Error; err != nil {
			return err
		}
		ouvrageID, err := s.structure.EnsureOuvrage(tx, lotID, n2.Libelle)
		if err != nil {
			return err
		}
		structureID, err := s.structure.EnsureStructure(tx, ouvrageID, 0)
		if err != nil {
			return err
		}
		return s.structure.EnsurePlaceholder(tx, structureID)
	})
	return lotID, err
}

// CreateOuvrage builds an empty ouvrage under a lot, placeholder included.
func (s *PlacementService) CreateOuvrage(ctx context.Context, lotID uint, nom string) (uint, error) {
	var ouvrageID uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		ouvrageID, err = s.structure.EnsureOuvrage(tx, lotID, nom)
		if err != nil {
			return err
		}
		structureID, err := s.structure.EnsureStructure(tx, ouvrageID, 0)
		if err != nil {
			return err
		}
		return s.structure.EnsurePlaceholder(tx, structureID)
	})
	return ouvrageID, err
}

// CreateBloc builds an empty bloc under an ouvrage, placeholder included.
func (s *PlacementService) CreateBloc(ctx context.Context, ouvrageID uint, nom string, quantite float64) (uint, error) {
	var blocID uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var structureID uint
		var err error
		blocID, structureID, err = s.structure.EnsureBloc(tx, ouvrageID, nom, quantite)
		if err != nil {
			return err
		}
		return s.structure.EnsurePlaceholder(tx, structureID)
	})
	return blocID, err
}

// DeleteLot removes a lot and every descendant (ouvrages, blocs,
// structures, articles) bottom-up, then recomputes the project total.
func (s *PlacementService) DeleteLot(ctx context.Context, projetID, lotID uint) (bool, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lot models.Lot
		if err := tx.Where("id = ? AND projet_id = ?", lotID, projetID).Take(&lot).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: lot id=%d projet=%d", ErrStructuralNotFound, lotID, projetID)
			}
			return err
		}
		var ouvrageIDs []uint
		if err := tx.Model(&models.Ouvrage{}).Where("lot_id = ?", lotID).Pluck("id", &ouvrageIDs).Error; err != nil {
			return err
		}
		if err := s.deleteUnderOuvrages(tx, ouvrageIDs); err != nil {
			return err
		}
		if len(ouvrageIDs) > 0 {
			if err := tx.Where("lot_id = ?", lotID).Delete(&models.Ouvrage{}).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.Lot{}, lotID).Error
	})
	if err != nil {
		return false, err
	}
	warning := s.projectTier(ctx, projetID)
	s.sink.Emit(ChangeEvent{Action: ActionDelete, ProjetID: projetID})
	return warning, nil
}

// DeleteOuvrage removes an ouvrage and its descendants.
func (s *PlacementService) DeleteOuvrage(ctx context.Context, lotID, ouvrageID uint) (bool, error) {
	var projetID uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ouvrage models.Ouvrage
		if err := tx.Where("id = ? AND lot_id = ?", ouvrageID, lotID).Take(&ouvrage).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: ouvrage id=%d lot=%d", ErrStructuralNotFound, ouvrageID, lotID)
			}
			return err
		}
		var lot models.Lot
		if err := tx.Take(&lot, lotID).Error; err != nil {
			return err
		}
		projetID = lot.ProjetID
		if err := s.deleteUnderOuvrages(tx, []uint{ouvrageID}); err != nil {
			return err
		}
		return tx.Delete(&models.Ouvrage{}, ouvrageID).Error
	})
	if err != nil {
		return false, err
	}
	warning := s.projectTier(ctx, projetID)
	s.sink.Emit(ChangeEvent{Action: ActionDelete, ProjetID: projetID})
	return warning, nil
}

// DeleteBloc removes a bloc, its junction row and its articles, then
// recomputes the parent ouvrage inside the transaction.
func (s *PlacementService) DeleteBloc(ctx context.Context, ouvrageID, blocID uint) (bool, error) {
	var projetID uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var st models.Structure
		if err := tx.Where("ouvrage_id = ? AND bloc_id = ?", ouvrageID, blocID).Take(&st).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: bloc id=%d ouvrage=%d", ErrStructuralNotFound, blocID, ouvrageID)
			}
			return err
		}
		pos, err := resolveCoords(tx, st.ID)
		if err != nil {
			return err
		}
		projetID = pos.ProjetID
		if err := tx.Where("structure_id = ?", st.ID).Delete(&models.ProjetArticle{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Structure{}, st.ID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Bloc{}, blocID).Error; err != nil {
			return err
		}
		return s.cascade.RecomputeOuvrage(tx, ouvrageID)
	})
	if err != nil {
		return false, err
	}
	warning := s.projectTier(ctx, projetID)
	s.sink.Emit(ChangeEvent{Action: ActionDelete, ProjetID: projetID})
	return warning, nil
}

// GetProjetAggregate returns the cached selling price of a project.
func (s *PlacementService) GetProjetAggregate(ctx context.Context, projetID uint) (float64, error) {
	var projet models.Projet
	if err := s.db.WithContext(ctx).Take(&projet, projetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("%w: projet id=%d", ErrStructuralNotFound, projetID)
		}
		return 0, err
	}
	return projet.PrixVente, nil
}

// deleteUnderOuvrages removes articles, structures and blocs below the
// given ouvrages, bottom-up, respecting referential integrity.
func (s *PlacementService) deleteUnderOuvrages(tx *gorm.DB, ouvrageIDs []uint) error {
	if len(ouvrageIDs) == 0 {
		return nil
	}
	var structureIDs []uint
	if err := tx.Model(&models.Structure{}).Where("ouvrage_id IN ?", ouvrageIDs).Pluck("id", &structureIDs).Error; err != nil {
		return err
	}
	var blocIDs []uint
	if err := tx.Model(&models.Structure{}).
		Where("ouvrage_id IN ? AND bloc_id <> 0", ouvrageIDs).
		Pluck("bloc_id", &blocIDs).Error; err != nil {
		return err
	}
	if len(structureIDs) > 0 {
		if err := tx.Where("structure_id IN ?", structureIDs).Delete(&models.ProjetArticle{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id IN ?", structureIDs).Delete(&models.Structure{}).Error; err != nil {
			return err
		}
	}
	if len(blocIDs) > 0 {
		if err := tx.Where("id IN ?", blocIDs).Delete(&models.Bloc{}).Error; err != nil {
			return err
		}
	}
	return nil
}

// projectTier runs the deferred prix_vente recompute. Returns true when it
// failed: the caller's mutation is already durable, so the failure is
// logged and surfaced as a warning instead of an error.
func (s *PlacementService) projectTier(ctx context.Context, projetID uint) bool {
	if _, err := s.cascade.RecomputeProjet(s.db.WithContext(ctx), projetID); err != nil {
		s.log.Warn("recalcul différé du prix de vente en échec",
			zap.Uint("projet_id", projetID), zap.Error(err))
		return true
	}
	return false
}

// coords are the structural coordinates of an article position, captured
// before mutations that may remove rows along the chain.
type coords struct {
	StructureID uint
	OuvrageID   uint
	BlocID      uint
	LotID       uint
	ProjetID    uint
}

func resolveCoords(tx *gorm.DB, structureID uint) (coords, error) {
	var pos coords
	err := tx.Raw(`SELECT s.id AS structure_id, s.ouvrage_id, s.bloc_id, o.lot_id, l.projet_id
		FROM structures s
		JOIN ouvrages o ON o.id = s.ouvrage_id
		JOIN lots l ON l.id = o.lot_id
		WHERE s.id = ?`, structureID).Scan(&pos).Error
	if err != nil {
		return coords{}, err
	}
	if pos.StructureID == 0 {
		return coords{}, fmt.Errorf("%w: structure id=%d", ErrStructuralNotFound, structureID)
	}
	return pos, nil
}
