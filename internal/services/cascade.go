package services

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/diewo77/devis-app/internal/models"
)

// CascadeService recomputes the cached aggregate fields after any article
// mutation. Every step is a full recompute from children (never an
// incremental delta) so concurrent recomputations converge on the same
// value without locking, and a stale aggregate self-heals on the next
// mutation anywhere in the project.
type CascadeService struct {
	log *zap.Logger
}

func NewCascadeService(log *zap.Logger) *CascadeService {
	if log == nil {
		log = zap.NewNop()
	}
	return &CascadeService{log: log}
}

// RecomputeBloc rewrites CachedSousTotal and CachedPrixUnitaire from the
// bloc's current articles. PrixUnitaire is NULL when the bloc quantity is
// not positive.
func (c *CascadeService) RecomputeBloc(tx *gorm.DB, blocID uint) error {
	var bloc models.Bloc
	if err := tx.Take(&bloc, blocID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: bloc id=%d", ErrStructuralNotFound, blocID)
		}
		return err
	}
	var total float64
	err := tx.Raw(`SELECT COALESCE(SUM(pa.total_ttc), 0)
		FROM projet_articles pa
		JOIN structures s ON s.id = pa.structure_id
		WHERE s.bloc_id = ?`, blocID).Scan(&total).Error
	if err != nil {
		return err
	}
	updates := map[string]any{"cached_sous_total": total, "cached_prix_unitaire": nil}
	if bloc.Quantite > 0 {
		updates["cached_prix_unitaire"] = total / bloc.Quantite
	}
	return tx.Model(&models.Bloc{}).Where("id = ?", blocID).Updates(updates).Error
}

// RecomputeOuvrage rewrites CachedTotal from every article under the
// ouvrage, blocs and direct placements alike.
func (c *CascadeService) RecomputeOuvrage(tx *gorm.DB, ouvrageID uint) error {
	var total float64
	err := tx.Raw(`SELECT COALESCE(SUM(pa.total_ttc), 0)
		FROM projet_articles pa
		JOIN structures s ON s.id = pa.structure_id
		WHERE s.ouvrage_id = ?`, ouvrageID).Scan(&total).Error
	if err != nil {
		return err
	}
	res := tx.Model(&models.Ouvrage{}).Where("id = ?", ouvrageID).Update("cached_total", total)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: ouvrage id=%d", ErrStructuralNotFound, ouvrageID)
	}
	return nil
}

// RecomputeProjet rewrites PrixVente as the sum of TotalTTC over every
// article of the project, through the full join chain. The orchestrator
// runs this tier after commit; a failure here is non-fatal for the
// triggering mutation.
func (c *CascadeService) RecomputeProjet(dbh *gorm.DB, projetID uint) (float64, error) {
	var total float64
	err := dbh.Raw(`SELECT COALESCE(SUM(pa.total_ttc), 0)
		FROM projet_articles pa
		JOIN structures s ON s.id = pa.structure_id
		JOIN ouvrages o ON o.id = s.ouvrage_id
		JOIN lots l ON l.id = o.lot_id
		WHERE l.projet_id = ?`, projetID).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	res := dbh.Model(&models.Projet{}).Where("id = ?", projetID).Update("prix_vente", total)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, fmt.Errorf("%w: projet id=%d", ErrStructuralNotFound, projetID)
	}
	return total, nil
}

// OnArticleChanged runs the in-transaction tiers of the cascade for the
// given structural coordinates: bloc first (when the article sits in one),
// then ouvrage. The project tier is deliberately left to the orchestrator,
// which may defer it past commit.
func (c *CascadeService) OnArticleChanged(tx *gorm.DB, ouvrageID, blocID uint) error {
	if blocID != 0 {
		if err := c.RecomputeBloc(tx, blocID); err != nil {
			return fmt.Errorf("recalcul bloc %d: %w", blocID, err)
		}
	}
	if err := c.RecomputeOuvrage(tx, ouvrageID); err != nil {
		return fmt.Errorf("recalcul ouvrage %d: %w", ouvrageID, err)
	}
	return nil
}
