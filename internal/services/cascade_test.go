package services

import (
	"context"
	"errors"
	"testing"

	"github.com/diewo77/devis-app/internal/models"
)

// place is a shorthand for PlaceArticle with a chain whose leaf label and
// amounts vary per call. TVA is zero so TTC amounts read directly.
func place(t *testing.T, svc *PlacementService, projetID uint, ouvrage, bloc string, blocQ float64, leaf string, quantite, prix float64) *models.ProjetArticle {
	t.Helper()
	in := PlaceArticleInput{
		ProjetID:     projetID,
		Ouvrage:      ouvrage,
		Bloc:         bloc,
		BlocQuantite: blocQ,
		Hierarchie:   ResolveInput{Niveau1: "Électricité", Niveau2: "Courants forts", Niveau3: "Distribution", Niveau6: leaf},
		Quantite:     quantite,
		PrixUnitaire: prix,
	}
	article, warning, err := svc.PlaceArticle(context.Background(), in)
	if err != nil {
		t.Fatalf("place %q: %v", leaf, err)
	}
	if warning {
		t.Fatalf("place %q: unexpected aggregate warning", leaf)
	}
	return article
}

func TestBlocSubtotalRecompute(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestPlacement(db, nil)
	projetID := createProjet(t, db, "Chantier A")

	place(t, svc, projetID, "Alimentation", "Cuisine", 2, "Cable 3G2.5", 1, 100)
	a2 := place(t, svc, projetID, "Alimentation", "Cuisine", 2, "Gaine ICTA", 1, 150)

	var bloc models.Bloc
	if err := db.Take(&bloc).Error; err != nil {
		t.Fatalf("load bloc: %v", err)
	}
	if bloc.CachedSousTotal != 250 {
		t.Fatalf("sous-total = %v, want 250", bloc.CachedSousTotal)
	}
	if bloc.CachedPrixUnitaire == nil || *bloc.CachedPrixUnitaire != 125 {
		t.Fatalf("prix unitaire = %v, want 125", bloc.CachedPrixUnitaire)
	}

	// Removing one article shrinks the subtotal on the same cascade path.
	if _, err := svc.RemovePlacement(context.Background(), a2.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := db.Take(&bloc, bloc.ID).Error; err != nil {
		t.Fatalf("reload bloc: %v", err)
	}
	if bloc.CachedSousTotal != 100 {
		t.Fatalf("sous-total after removal = %v, want 100", bloc.CachedSousTotal)
	}
	if bloc.CachedPrixUnitaire == nil || *bloc.CachedPrixUnitaire != 50 {
		t.Fatalf("prix unitaire after removal = %v, want 50", bloc.CachedPrixUnitaire)
	}
}

func TestBlocZeroQuantityHasNoUnitPrice(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestPlacement(db, nil)
	projetID := createProjet(t, db, "Chantier B")

	place(t, svc, projetID, "Alimentation", "Salle de bain", 0, "Cable 3G2.5", 1, 100)

	var bloc models.Bloc
	if err := db.Take(&bloc).Error; err != nil {
		t.Fatalf("load bloc: %v", err)
	}
	if bloc.CachedSousTotal != 100 {
		t.Fatalf("sous-total = %v, want 100", bloc.CachedSousTotal)
	}
	if bloc.CachedPrixUnitaire != nil {
		t.Fatalf("prix unitaire must stay NULL at zero quantity, got %v", *bloc.CachedPrixUnitaire)
	}
}

func TestOuvrageTotalSpansBlocsAndDirectPlacements(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestPlacement(db, nil)
	projetID := createProjet(t, db, "Chantier C")

	place(t, svc, projetID, "Alimentation", "Cuisine", 1, "Cable 3G2.5", 1, 100)
	place(t, svc, projetID, "Alimentation", "", 0, "Tableau divisionnaire", 1, 300)

	var ouvrage models.Ouvrage
	if err := db.Take(&ouvrage).Error; err != nil {
		t.Fatalf("load ouvrage: %v", err)
	}
	if ouvrage.CachedTotal != 400 {
		t.Fatalf("cached total = %v, want 400", ouvrage.CachedTotal)
	}
}

func TestProjetAggregateMatchesIndependentSum(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestPlacement(db, nil)
	projetID := createProjet(t, db, "Chantier D")

	place(t, svc, projetID, "Alimentation", "Cuisine", 1, "Cable 3G2.5", 2, 50)
	place(t, svc, projetID, "Alimentation", "", 0, "Tableau divisionnaire", 1, 300)
	place(t, svc, projetID, "Éclairage", "", 0, "Spot LED", 4, 25)

	var projet models.Projet
	if err := db.Take(&projet, projetID).Error; err != nil {
		t.Fatalf("load projet: %v", err)
	}
	var independent float64
	err := db.Raw(`SELECT COALESCE(SUM(pa.total_ttc), 0)
		FROM projet_articles pa
		JOIN structures s ON s.id = pa.structure_id
		JOIN ouvrages o ON o.id = s.ouvrage_id
		JOIN lots l ON l.id = o.lot_id
		WHERE l.projet_id = ?`, projetID).Scan(&independent).Error
	if err != nil {
		t.Fatalf("independent sum: %v", err)
	}
	if projet.PrixVente != independent {
		t.Fatalf("prix_vente %v diverges from article sum %v", projet.PrixVente, independent)
	}
	if projet.PrixVente != 500 {
		t.Fatalf("prix_vente = %v, want 500", projet.PrixVente)
	}
}

func TestRecomputeMissingRows(t *testing.T) {
	db := setupTestDB(t)
	cascade := NewCascadeService(nil)

	if err := cascade.RecomputeOuvrage(db, 9999); !errors.Is(err, ErrStructuralNotFound) {
		t.Fatalf("missing ouvrage: got %v", err)
	}
	if err := cascade.RecomputeBloc(db, 9999); !errors.Is(err, ErrStructuralNotFound) {
		t.Fatalf("missing bloc: got %v", err)
	}
	if _, err := cascade.RecomputeProjet(db, 9999); !errors.Is(err, ErrStructuralNotFound) {
		t.Fatalf("missing projet: got %v", err)
	}
}

// The recompute is a full SUM from children, never an incremental delta:
// a manually corrupted cache self-heals on the next mutation.
func TestCascadeSelfHeals(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestPlacement(db, nil)
	projetID := createProjet(t, db, "Chantier E")

	place(t, svc, projetID, "Alimentation", "", 0, "Cable 3G2.5", 1, 100)

	if err := db.Model(&models.Ouvrage{}).Where("1 = 1").Update("cached_total", 999999).Error; err != nil {
		t.Fatalf("corrupt cache: %v", err)
	}
	place(t, svc, projetID, "Alimentation", "", 0, "Gaine ICTA", 1, 50)

	var ouvrage models.Ouvrage
	if err := db.Take(&ouvrage).Error; err != nil {
		t.Fatalf("load ouvrage: %v", err)
	}
	if ouvrage.CachedTotal != 150 {
		t.Fatalf("cache must self-heal to 150, got %v", ouvrage.CachedTotal)
	}
}
