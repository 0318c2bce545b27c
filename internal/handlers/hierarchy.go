package handlers

import (
	"net/http"

	"gorm.io/gorm"

	"github.com/diewo77/devis-app/internal/httpx"
	"github.com/diewo77/devis-app/internal/services"
	"github.com/diewo77/devis-app/internal/validation"
)

type HierarchyHandler struct {
	DB        *gorm.DB
	Hierarchy *services.HierarchyService
}

func NewHierarchyHandler(db *gorm.DB, h *services.HierarchyService) *HierarchyHandler {
	return &HierarchyHandler{DB: db, Hierarchy: h}
}

// Resolve finds or creates the catalog chain for the supplied labels and
// returns the resolved ids. Creation happens inside one transaction so a
// failed deep level leaves no partial chain behind.
func (h *HierarchyHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var input services.ResolveInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	var path services.ResolvedPath
	err := h.DB.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		var rerr error
		path, rerr = h.Hierarchy.Resolve(tx, input)
		return rerr
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, path)
}

// UpdateLabel corrects a node label (niveau + id + new libellé).
func (h *HierarchyHandler) UpdateLabel(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var input struct {
		Niveau  int    `json:"niveau"`
		ID      uint   `json:"id"`
		Libelle string `json:"libelle"`
	}
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	v := validation.Violations{}
	validation.Required("libelle", input.Libelle, v)
	validation.MaxLen("libelle", input.Libelle, 255, v)
	if input.Niveau < 1 || input.Niveau > 6 {
		v["niveau"] = "out_of_range"
	}
	if !v.Empty() {
		httpx.JSONError(w, http.StatusUnprocessableEntity, "validation_failed", v)
		return
	}
	err := h.DB.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		return h.Hierarchy.UpdateLabel(tx, input.Niveau, input.ID, input.Libelle)
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
