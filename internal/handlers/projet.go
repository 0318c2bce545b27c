package handlers

import (
	"net/http"
	"strconv"

	"gorm.io/gorm"

	"github.com/diewo77/devis-app/internal/httpx"
	"github.com/diewo77/devis-app/internal/models"
	"github.com/diewo77/devis-app/internal/services"
	"github.com/diewo77/devis-app/internal/validation"
)

type ProjetHandler struct {
	DB  *gorm.DB
	Svc *services.PlacementService
}

func NewProjetHandler(db *gorm.DB, svc *services.PlacementService) *ProjetHandler {
	return &ProjetHandler{DB: db, Svc: svc}
}

// List returns projects, most recent first.
func (h *ProjetHandler) List(w http.ResponseWriter, r *http.Request) {
	var projets []models.Projet
	if err := h.DB.Order("id desc").Limit(200).Find(&projets).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_list_projets", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": projets})
}

// Create inserts a new project.
func (h *ProjetHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Nom    string `json:"nom"`
		Client string `json:"client"`
	}
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	v := validation.Violations{}
	validation.Required("nom", input.Nom, v)
	validation.MaxLen("nom", input.Nom, 255, v)
	if !v.Empty() {
		httpx.JSONError(w, http.StatusUnprocessableEntity, "validation_failed", v)
		return
	}
	projet := models.Projet{Nom: input.Nom, Client: input.Client}
	if err := h.DB.Create(&projet).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_create_projet", nil)
		return
	}
	httpx.JSON(w, http.StatusCreated, projet)
}

// Aggregate returns the cached selling price of a project.
func (h *ProjetHandler) Aggregate(w http.ResponseWriter, r *http.Request) {
	id := queryID(r)
	if id == 0 {
		httpx.JSONError(w, http.StatusBadRequest, "missing_id", nil)
		return
	}
	prixVente, err := h.Svc.GetProjetAggregate(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"projet_id": id, "prix_vente": prixVente})
}

// treeOuvrage / treeBloc / treeLot shape the nested tree response.
type treeBloc struct {
	models.Bloc
	Articles []models.ProjetArticle `json:"articles"`
}

type treeOuvrage struct {
	models.Ouvrage
	Articles []models.ProjetArticle `json:"articles"` // direct placements
	Blocs    []treeBloc             `json:"blocs"`
}

type treeLot struct {
	models.Lot
	Ouvrages []treeOuvrage `json:"ouvrages"`
}

// Tree returns the full structural tree of a project with its placed
// articles, the traversal view the cascade's cached totals decorate.
func (h *ProjetHandler) Tree(w http.ResponseWriter, r *http.Request) {
	id := queryID(r)
	if id == 0 {
		httpx.JSONError(w, http.StatusBadRequest, "missing_id", nil)
		return
	}
	var projet models.Projet
	if err := h.DB.Take(&projet, id).Error; err != nil {
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	var lots []models.Lot
	if err := h.DB.Where("projet_id = ?", id).Order("id").Find(&lots).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_load_tree", nil)
		return
	}
	out := make([]treeLot, 0, len(lots))
	for _, lot := range lots {
		var ouvrages []models.Ouvrage
		if err := h.DB.Where("lot_id = ?", lot.ID).Order("id").Find(&ouvrages).Error; err != nil {
			httpx.JSONError(w, http.StatusInternalServerError, "failed_to_load_tree", nil)
			return
		}
		tl := treeLot{Lot: lot}
		for _, o := range ouvrages {
			to := treeOuvrage{Ouvrage: o}
			var structures []models.Structure
			if err := h.DB.Where("ouvrage_id = ?", o.ID).Order("id").Find(&structures).Error; err != nil {
				httpx.JSONError(w, http.StatusInternalServerError, "failed_to_load_tree", nil)
				return
			}
			for _, st := range structures {
				var articles []models.ProjetArticle
				if err := h.DB.Where("structure_id = ?", st.ID).Order("id").Find(&articles).Error; err != nil {
					httpx.JSONError(w, http.StatusInternalServerError, "failed_to_load_tree", nil)
					return
				}
				if st.BlocID == 0 {
					to.Articles = append(to.Articles, articles...)
					continue
				}
				var bloc models.Bloc
				if err := h.DB.Take(&bloc, st.BlocID).Error; err != nil {
					httpx.JSONError(w, http.StatusInternalServerError, "failed_to_load_tree", nil)
					return
				}
				to.Blocs = append(to.Blocs, treeBloc{Bloc: bloc, Articles: articles})
			}
			tl.Ouvrages = append(tl.Ouvrages, to)
		}
		out = append(out, tl)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"projet": projet, "lots": out})
}

// CreateLot builds an empty lot from niveau1/niveau2 labels.
func (h *ProjetHandler) CreateLot(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var input struct {
		ProjetID   uint                  `json:"projet_id"`
		Hierarchie services.ResolveInput `json:"hierarchie"`
	}
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	if input.ProjetID == 0 {
		httpx.JSONError(w, http.StatusUnprocessableEntity, "validation_failed", validation.Violations{"projet_id": "required"})
		return
	}
	lotID, err := h.Svc.CreateLot(r.Context(), input.ProjetID, input.Hierarchie)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"lot_id": lotID})
}

// CreateOuvrage builds an empty ouvrage under a lot.
func (h *ProjetHandler) CreateOuvrage(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var input struct {
		LotID uint   `json:"lot_id"`
		Nom   string `json:"nom"`
	}
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	v := validation.Violations{}
	if input.LotID == 0 {
		v["lot_id"] = "required"
	}
	validation.Required("nom", input.Nom, v)
	if !v.Empty() {
		httpx.JSONError(w, http.StatusUnprocessableEntity, "validation_failed", v)
		return
	}
	ouvrageID, err := h.Svc.CreateOuvrage(r.Context(), input.LotID, input.Nom)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"ouvrage_id": ouvrageID})
}

// CreateBloc builds an empty bloc under an ouvrage.
func (h *ProjetHandler) CreateBloc(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var input struct {
		OuvrageID uint    `json:"ouvrage_id"`
		Nom       string  `json:"nom"`
		Quantite  float64 `json:"quantite"`
	}
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	v := validation.Violations{}
	if input.OuvrageID == 0 {
		v["ouvrage_id"] = "required"
	}
	validation.Required("nom", input.Nom, v)
	validation.NonNegativeFloat("quantite", input.Quantite, v)
	if !v.Empty() {
		httpx.JSONError(w, http.StatusUnprocessableEntity, "validation_failed", v)
		return
	}
	blocID, err := h.Svc.CreateBloc(r.Context(), input.OuvrageID, input.Nom, input.Quantite)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"bloc_id": blocID})
}

// DeleteLot removes a lot and all its descendants.
func (h *ProjetHandler) DeleteLot(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var input struct {
		ProjetID uint `json:"projet_id"`
		LotID    uint `json:"lot_id"`
	}
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	warning, err := h.Svc.DeleteLot(r.Context(), input.ProjetID, input.LotID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": true, "aggregate_warning": warning})
}

// DeleteOuvrage removes an ouvrage and all its descendants.
func (h *ProjetHandler) DeleteOuvrage(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var input struct {
		LotID     uint `json:"lot_id"`
		OuvrageID uint `json:"ouvrage_id"`
	}
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	warning, err := h.Svc.DeleteOuvrage(r.Context(), input.LotID, input.OuvrageID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": true, "aggregate_warning": warning})
}

// DeleteBloc removes a bloc, its junction row and its articles.
func (h *ProjetHandler) DeleteBloc(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var input struct {
		OuvrageID uint `json:"ouvrage_id"`
		BlocID    uint `json:"bloc_id"`
	}
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	warning, err := h.Svc.DeleteBloc(r.Context(), input.OuvrageID, input.BlocID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": true, "aggregate_warning": warning})
}

func queryID(r *http.Request) uint {
	v := r.URL.Query().Get("id")
	if v == "" {
		return 0
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0
	}
	return uint(n)
}
