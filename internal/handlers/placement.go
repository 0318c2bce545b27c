package handlers

import (
	"net/http"

	"github.com/diewo77/devis-app/internal/httpx"
	"github.com/diewo77/devis-app/internal/services"
	"github.com/diewo77/devis-app/internal/validation"
)

type PlacementHandler struct {
	Svc *services.PlacementService
}

func NewPlacementHandler(svc *services.PlacementService) *PlacementHandler {
	return &PlacementHandler{Svc: svc}
}

// Create places an article into a project tree.
func (h *PlacementHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var input services.PlaceArticleInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	v := validation.Violations{}
	if input.ProjetID == 0 {
		v["projet_id"] = "required"
	}
	validation.Required("ouvrage", input.Ouvrage, v)
	validation.NonNegativeFloat("quantite", input.Quantite, v)
	validation.NonNegativeFloat("prix_unitaire", input.PrixUnitaire, v)
	validation.RangeFloat("taux_tva", input.TauxTVA, 0, 100, v)
	if !v.Empty() {
		httpx.JSONError(w, http.StatusUnprocessableEntity, "validation_failed", v)
		return
	}
	article, warning, err := h.Svc.PlaceArticle(r.Context(), input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"article": article, "aggregate_warning": warning})
}

// Update applies a partial edit to a placed article.
func (h *PlacementHandler) Update(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var input struct {
		ID uint `json:"id"`
		services.PlacementPatch
	}
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	if input.ID == 0 {
		httpx.JSONError(w, http.StatusUnprocessableEntity, "validation_failed", validation.Violations{"id": "required"})
		return
	}
	v := validation.Violations{}
	if input.Quantite != nil {
		validation.NonNegativeFloat("quantite", *input.Quantite, v)
	}
	if input.PrixUnitaire != nil {
		validation.NonNegativeFloat("prix_unitaire", *input.PrixUnitaire, v)
	}
	if input.TauxTVA != nil {
		validation.RangeFloat("taux_tva", *input.TauxTVA, 0, 100, v)
	}
	if !v.Empty() {
		httpx.JSONError(w, http.StatusUnprocessableEntity, "validation_failed", v)
		return
	}
	article, warning, err := h.Svc.UpdatePlacement(r.Context(), input.ID, input.PlacementPatch)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"article": article, "aggregate_warning": warning})
}

// Delete removes a placed article.
func (h *PlacementHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var input struct {
		ID uint `json:"id"`
	}
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	if input.ID == 0 {
		httpx.JSONError(w, http.StatusUnprocessableEntity, "validation_failed", validation.Violations{"id": "required"})
		return
	}
	warning, err := h.Svc.RemovePlacement(r.Context(), input.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": true, "aggregate_warning": warning})
}
