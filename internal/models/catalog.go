package models

import "time"

// Catalog hierarchy: six ordered levels (famille -> ... -> article).
// Levels 4 and 5 are elastic: a chain may skip either or both, so niveau5
// and niveau6 carry coalesced parent references back to niveau3. An absent
// optional parent is stored as 0 (never NULL) so the composite unique
// indexes below can arbitrate concurrent find-or-create races on both
// sqlite and postgres.
//
// LibelleKey is the lower-cased, accent-folded form of Libelle (see
// services.LabelKey); all scoped uniqueness applies to the key, the raw
// Libelle keeps its display casing/accents.

type Niveau1 struct {
	ID         uint   `gorm:"primaryKey"`
	Libelle    string `gorm:"not null"` // ex: Gros œuvre, Électricité
	LibelleKey string `gorm:"size:255;not null;uniqueIndex:idx_niv1_key"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (Niveau1) TableName() string { return "hierarchie_niveau1" }

type Niveau2 struct {
	ID         uint   `gorm:"primaryKey"`
	Libelle    string `gorm:"not null"`
	LibelleKey string `gorm:"size:255;not null;uniqueIndex:idx_niv2_scope,priority:2"`
	Niveau1ID  uint   `gorm:"not null;uniqueIndex:idx_niv2_scope,priority:1"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (Niveau2) TableName() string { return "hierarchie_niveau2" }

type Niveau3 struct {
	ID         uint   `gorm:"primaryKey"`
	Libelle    string `gorm:"not null"`
	LibelleKey string `gorm:"size:255;not null;uniqueIndex:idx_niv3_scope,priority:2"`
	Niveau2ID  uint   `gorm:"not null;uniqueIndex:idx_niv3_scope,priority:1"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (Niveau3) TableName() string { return "hierarchie_niveau3" }

// Niveau4 is optional in a chain.
type Niveau4 struct {
	ID         uint   `gorm:"primaryKey"`
	Libelle    string `gorm:"not null"`
	LibelleKey string `gorm:"size:255;not null;uniqueIndex:idx_niv4_scope,priority:2"`
	Niveau3ID  uint   `gorm:"not null;uniqueIndex:idx_niv4_scope,priority:1"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (Niveau4) TableName() string { return "hierarchie_niveau4" }

// Niveau5 is optional; it always points at its niveau3 and additionally at
// a niveau4 when the chain has one (0 otherwise).
type Niveau5 struct {
	ID         uint   `gorm:"primaryKey"`
	Libelle    string `gorm:"not null"`
	LibelleKey string `gorm:"size:255;not null;uniqueIndex:idx_niv5_scope,priority:3"`
	Niveau3ID  uint   `gorm:"not null;uniqueIndex:idx_niv5_scope,priority:1"`
	Niveau4ID  uint   `gorm:"not null;default:0;uniqueIndex:idx_niv5_scope,priority:2"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (Niveau5) TableName() string { return "hierarchie_niveau5" }

// Niveau6 is the catalog leaf referenced by placed articles. Its uniqueness
// scope is the full (niveau3, niveau4-or-0, niveau5-or-0) triple so that
// identical labels reached through different chain shapes stay distinct.
type Niveau6 struct {
	ID         uint   `gorm:"primaryKey"`
	Libelle    string `gorm:"not null"`
	LibelleKey string `gorm:"size:255;not null;uniqueIndex:idx_niv6_scope,priority:4"`
	Niveau3ID  uint   `gorm:"not null;uniqueIndex:idx_niv6_scope,priority:1"`
	Niveau4ID  uint   `gorm:"not null;default:0;uniqueIndex:idx_niv6_scope,priority:2"`
	Niveau5ID  uint   `gorm:"not null;default:0;uniqueIndex:idx_niv6_scope,priority:3"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (Niveau6) TableName() string { return "hierarchie_niveau6" }
