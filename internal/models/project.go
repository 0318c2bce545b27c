package models

import "time"

// Structural tree of a project: Projet -> Lot -> Ouvrage -> (Bloc) ->
// ProjetArticle. Cached totals (PrixVente, CachedTotal, CachedSousTotal)
// are derived fields maintained by the aggregation cascade; they are never
// edited directly.

type Projet struct {
	ID        uint   `gorm:"primaryKey"`
	Nom       string `gorm:"not null"`
	Client    string
	// PrixVente = somme des TotalTTC de tous les articles du projet.
	PrixVente float64 `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Projet) TableName() string { return "projets" }

// Lot links a project to a niveau2 catalog node. One row per
// (projet, niveau2) pair; Libelle is a display aid ("Lot 1 : Électricité").
type Lot struct {
	ID        uint   `gorm:"primaryKey"`
	ProjetID  uint   `gorm:"not null;uniqueIndex:idx_lot_scope,priority:1"`
	Niveau2ID uint   `gorm:"not null;uniqueIndex:idx_lot_scope,priority:2"`
	Libelle   string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Lot) TableName() string { return "lots" }

// Ouvrage is a named subdivision of a Lot.
type Ouvrage struct {
	ID          uint   `gorm:"primaryKey"`
	LotID       uint   `gorm:"not null;uniqueIndex:idx_ouvrage_scope,priority:1"`
	Nom         string `gorm:"not null"`
	NomKey      string `gorm:"size:255;not null;uniqueIndex:idx_ouvrage_scope,priority:2"`
	Designation string // ex: "Ouvrage 2", assigned at creation
	// CachedTotal = somme des TotalTTC des articles rattachés à l'ouvrage
	// (blocs inclus).
	CachedTotal float64 `gorm:"not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Ouvrage) TableName() string { return "ouvrages" }

// Bloc is an optional further subdivision of an Ouvrage. Articles reach it
// through the Structure junction; OuvrageID is carried here as well so the
// composite unique index can arbitrate concurrent creates by name the same
// way the catalog levels do.
type Bloc struct {
	ID          uint   `gorm:"primaryKey"`
	OuvrageID   uint   `gorm:"not null;uniqueIndex:idx_bloc_scope,priority:1"`
	Nom         string `gorm:"not null"`
	NomKey      string `gorm:"size:255;not null;uniqueIndex:idx_bloc_scope,priority:2"`
	Designation string
	Quantite    float64 `gorm:"not null;default:0"`
	// CachedSousTotal = somme des TotalTTC des articles du bloc;
	// CachedPrixUnitaire = sous-total / quantité (NULL quand quantité <= 0).
	CachedSousTotal    float64  `gorm:"not null;default:0"`
	CachedPrixUnitaire *float64 `gorm:""`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (Bloc) TableName() string { return "blocs" }

// Structure kinds: a line item sits either directly under an ouvrage or
// inside one of its blocs.
const (
	StructureKindOuvrage = "ouvrage"
	StructureKindBloc    = "bloc"
)

// Structure is the junction disambiguating ouvrage-only vs ouvrage+bloc
// placements. BlocID is 0 for an ouvrage-only row; at most one row exists
// per (ouvrage, bloc) pair.
type Structure struct {
	ID        uint   `gorm:"primaryKey"`
	OuvrageID uint   `gorm:"not null;uniqueIndex:idx_structure_pair,priority:1"`
	BlocID    uint   `gorm:"not null;default:0;uniqueIndex:idx_structure_pair,priority:2"`
	Kind      string `gorm:"size:16;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Structure) TableName() string { return "structures" }

// ProjetArticle is a priced article instance placed at a Structure
// position. Niveau6ID is nil while the row is only a structural
// placeholder (an empty lot/ouvrage/bloc made visible to traversal
// queries); a later placement may fill it.
type ProjetArticle struct {
	ID          uint  `gorm:"primaryKey"`
	StructureID uint  `gorm:"not null;index"`
	Niveau6ID   *uint `gorm:"index"`
	Quantite    float64
	PrixUnitaire float64
	TauxTVA      float64 // pourcentage, ex: 20 pour 20%
	// Derived: TotalHT = Quantite * PrixUnitaire,
	// TotalTTC = TotalHT * (1 + TauxTVA/100).
	TotalHT      float64
	TotalTTC     float64
	Localisation string
	Description  string
	Designation  string // overrides the catalog label when set
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (ProjetArticle) TableName() string { return "projet_articles" }

// Placeholder reports whether the row is a structural placeholder with no
// catalog article attached yet.
func (a *ProjetArticle) Placeholder() bool { return a.Niveau6ID == nil }
