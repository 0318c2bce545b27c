package services

import "errors"

// Sentinel errors surfaced to callers. Wrapped with context where raised;
// match with errors.Is.
var (
	// ErrMissingHierarchyLevel: the caller supplied an incomplete label
	// set (niveaux 1, 2, 3 et 6 are mandatory). Rejected before any write.
	ErrMissingHierarchyLevel = errors.New("niveau de hiérarchie manquant")

	// ErrAncestorNotFound: an explicitly referenced catalog node does not
	// exist. Indicates inconsistent input, always fatal.
	ErrAncestorNotFound = errors.New("niveau de hiérarchie introuvable")

	// ErrStructuralNotFound: the operation targets a projet, lot, ouvrage,
	// bloc or article id that does not exist.
	ErrStructuralNotFound = errors.New("élément de structure introuvable")
)
