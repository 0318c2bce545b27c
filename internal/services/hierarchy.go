package services

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/diewo77/devis-app/internal/models"
)

// ResolveInput carries the label (and/or an explicit node id) per catalog
// level. Niveaux 1, 2, 3 and 6 are mandatory, 4 and 5 are elastic. A
// non-zero Niveau6ID short-circuits resolution entirely.
type ResolveInput struct {
	Niveau1 string `json:"niveau1"`
	Niveau2 string `json:"niveau2"`
	Niveau3 string `json:"niveau3"`
	Niveau4 string `json:"niveau4"`
	Niveau5 string `json:"niveau5"`
	Niveau6 string `json:"niveau6"`

	Niveau1ID uint `json:"niveau1_id"`
	Niveau2ID uint `json:"niveau2_id"`
	Niveau3ID uint `json:"niveau3_id"`
	Niveau4ID uint `json:"niveau4_id"`
	Niveau5ID uint `json:"niveau5_id"`
	Niveau6ID uint `json:"niveau6_id"`
}

// ResolvedPath is the resolved chain of node ids; skipped optional levels
// stay 0. LeafID is the niveau6 id articles reference.
type ResolvedPath struct {
	Niveau1ID uint `json:"niveau1_id"`
	Niveau2ID uint `json:"niveau2_id"`
	Niveau3ID uint `json:"niveau3_id"`
	Niveau4ID uint `json:"niveau4_id,omitempty"`
	Niveau5ID uint `json:"niveau5_id,omitempty"`
	Niveau6ID uint `json:"niveau6_id"`
}

func (p ResolvedPath) LeafID() uint { return p.Niveau6ID }

func (p *ResolvedPath) id(niveau int) uint {
	switch niveau {
	case 1:
		return p.Niveau1ID
	case 2:
		return p.Niveau2ID
	case 3:
		return p.Niveau3ID
	case 4:
		return p.Niveau4ID
	case 5:
		return p.Niveau5ID
	default:
		return p.Niveau6ID
	}
}

func (p *ResolvedPath) set(niveau int, id uint) {
	switch niveau {
	case 1:
		p.Niveau1ID = id
	case 2:
		p.Niveau2ID = id
	case 3:
		p.Niveau3ID = id
	case 4:
		p.Niveau4ID = id
	case 5:
		p.Niveau5ID = id
	default:
		p.Niveau6ID = id
	}
}

func (in ResolveInput) label(niveau int) string {
	switch niveau {
	case 1:
		return in.Niveau1
	case 2:
		return in.Niveau2
	case 3:
		return in.Niveau3
	case 4:
		return in.Niveau4
	case 5:
		return in.Niveau5
	default:
		return in.Niveau6
	}
}

func (in ResolveInput) explicitID(niveau int) uint {
	switch niveau {
	case 1:
		return in.Niveau1ID
	case 2:
		return in.Niveau2ID
	case 3:
		return in.Niveau3ID
	case 4:
		return in.Niveau4ID
	case 5:
		return in.Niveau5ID
	default:
		return in.Niveau6ID
	}
}

// levelSpec drives the generic bottom-up resolution loop: one entry per
// level instead of six hand-written query sites. scope returns the parent
// columns that delimit both matching and uniqueness for the level, given
// the ids resolved so far (0 for skipped optional parents).
type levelSpec struct {
	niveau   int
	table    string
	required bool
	scope    func(p *ResolvedPath) map[string]any
}

var levelSpecs = []levelSpec{
	{1, models.Niveau1{}.TableName(), true, func(_ *ResolvedPath) map[string]any {
		return map[string]any{}
	}},
	{2, models.Niveau2{}.TableName(), true, func(p *ResolvedPath) map[string]any {
		return map[string]any{"niveau1_id": p.Niveau1ID}
	}},
	{3, models.Niveau3{}.TableName(), true, func(p *ResolvedPath) map[string]any {
		return map[string]any{"niveau2_id": p.Niveau2ID}
	}},
	{4, models.Niveau4{}.TableName(), false, func(p *ResolvedPath) map[string]any {
		return map[string]any{"niveau3_id": p.Niveau3ID}
	}},
	{5, models.Niveau5{}.TableName(), false, func(p *ResolvedPath) map[string]any {
		return map[string]any{"niveau3_id": p.Niveau3ID, "niveau4_id": p.Niveau4ID}
	}},
	{6, models.Niveau6{}.TableName(), true, func(p *ResolvedPath) map[string]any {
		return map[string]any{"niveau3_id": p.Niveau3ID, "niveau4_id": p.Niveau4ID, "niveau5_id": p.Niveau5ID}
	}},
}

// HierarchyService resolves or creates catalog chains. All methods operate
// on the transaction handle they are given so the orchestrator controls
// atomicity.
type HierarchyService struct{}

func NewHierarchyService() *HierarchyService { return &HierarchyService{} }

// Resolve finds or creates the catalog chain described by in and returns
// the resolved ids. Resolution is idempotent: identical inputs yield the
// same ids with no new rows, including under concurrent callers (lost
// insert races are recovered by a retry read inside findOrCreate).
func (s *HierarchyService) Resolve(tx *gorm.DB, in ResolveInput) (ResolvedPath, error) {
	var path ResolvedPath

	// An explicit leaf reference bypasses label resolution.
	if in.Niveau6ID != 0 {
		return s.pathFromLeaf(tx, in.Niveau6ID)
	}

	for _, spec := range levelSpecs {
		if spec.required && strings.TrimSpace(in.label(spec.niveau)) == "" && in.explicitID(spec.niveau) == 0 {
			return ResolvedPath{}, fmt.Errorf("%w: niveau %d", ErrMissingHierarchyLevel, spec.niveau)
		}
	}

	for _, spec := range levelSpecs {
		if err := s.resolveLevel(tx, spec, in, &path); err != nil {
			return ResolvedPath{}, err
		}
	}
	return path, nil
}

// ResolveNiveau2 resolves (or creates) only the niveau1→niveau2 head of a
// chain; used when a lot is created before any article exists under it.
func (s *HierarchyService) ResolveNiveau2(tx *gorm.DB, in ResolveInput) (uint, error) {
	var path ResolvedPath
	for _, spec := range levelSpecs[:2] {
		if strings.TrimSpace(in.label(spec.niveau)) == "" && in.explicitID(spec.niveau) == 0 {
			return 0, fmt.Errorf("%w: niveau %d", ErrMissingHierarchyLevel, spec.niveau)
		}
		if err := s.resolveLevel(tx, spec, in, &path); err != nil {
			return 0, err
		}
	}
	return path.Niveau2ID, nil
}

// resolveLevel resolves one level in parent order: explicit id wins (and
// must exist), then find-or-create by normalized label in the parent
// scope, then skip when the level is optional and absent.
func (s *HierarchyService) resolveLevel(tx *gorm.DB, spec levelSpec, in ResolveInput, path *ResolvedPath) error {
	if id := in.explicitID(spec.niveau); id != 0 {
		ok, err := rowExists(tx, spec.table, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: niveau %d id=%d", ErrAncestorNotFound, spec.niveau, id)
		}
		path.set(spec.niveau, id)
		return nil
	}
	label := strings.TrimSpace(in.label(spec.niveau))
	if label == "" {
		// optional level skipped; scope columns of deeper levels keep 0
		return nil
	}
	key := models.LabelKey(label)
	scope := spec.scope(path)
	match := map[string]any{"libelle_key": key}
	insert := map[string]any{"libelle": label, "libelle_key": key}
	for col, val := range scope {
		match[col] = val
		insert[col] = val
	}
	id, err := findOrCreate(tx, spec.table, match, insert)
	if err != nil {
		return fmt.Errorf("résolution niveau %d: %w", spec.niveau, err)
	}
	path.set(spec.niveau, id)
	return nil
}

// pathFromLeaf reconstructs the full chain from an existing niveau6 id by
// walking the coalesced parent references upward.
func (s *HierarchyService) pathFromLeaf(tx *gorm.DB, leafID uint) (ResolvedPath, error) {
	var leaf models.Niveau6
	if err := tx.Take(&leaf, leafID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ResolvedPath{}, fmt.Errorf("%w: niveau 6 id=%d", ErrAncestorNotFound, leafID)
		}
		return ResolvedPath{}, err
	}
	var n3 models.Niveau3
	if err := tx.Take(&n3, leaf.Niveau3ID).Error; err != nil {
		return ResolvedPath{}, fmt.Errorf("chaîne incohérente pour niveau6 id=%d: %w", leafID, err)
	}
	var n2 models.Niveau2
	if err := tx.Take(&n2, n3.Niveau2ID).Error; err != nil {
		return ResolvedPath{}, fmt.Errorf("chaîne incohérente pour niveau6 id=%d: %w", leafID, err)
	}
	return ResolvedPath{
		Niveau1ID: n2.Niveau1ID,
		Niveau2ID: n2.ID,
		Niveau3ID: n3.ID,
		Niveau4ID: leaf.Niveau4ID,
		Niveau5ID: leaf.Niveau5ID,
		Niveau6ID: leaf.ID,
	}, nil
}

// UpdateLabel corrects the label of an existing node. The normalized key
// is re-derived; colliding with a sibling label is an error.
func (s *HierarchyService) UpdateLabel(tx *gorm.DB, niveau int, id uint, label string) error {
	if niveau < 1 || niveau > 6 {
		return fmt.Errorf("niveau invalide: %d", niveau)
	}
	if models.LabelKey(label) == "" {
		return fmt.Errorf("libellé vide pour niveau %d id=%d", niveau, id)
	}
	table := levelSpecs[niveau-1].table
	ok, err := rowExists(tx, table, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: niveau %d id=%d", ErrAncestorNotFound, niveau, id)
	}
	res := tx.Table(table).Where("id = ?", id).
		Updates(map[string]any{"libelle": label, "libelle_key": models.LabelKey(label)})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return fmt.Errorf("libellé déjà utilisé dans ce scope: %q", label)
		}
		return res.Error
	}
	return nil
}

func rowExists(tx *gorm.DB, table string, id uint) (bool, error) {
	var count int64
	if err := tx.Table(table).Where("id = ?", id).Limit(1).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
