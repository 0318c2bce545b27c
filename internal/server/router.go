package server

import (
	"context"
	"net/http"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/diewo77/devis-app/internal/auth"
	"github.com/diewo77/devis-app/internal/handlers"
	"github.com/diewo77/devis-app/internal/httpx"
	"github.com/diewo77/devis-app/internal/models"
	"github.com/diewo77/devis-app/internal/services"
)

// New constructs the root http.Handler with all routes and middlewares
// applied. sink may be nil (events are then logged).
func New(db *gorm.DB, log *zap.Logger, sink services.EventSink) http.Handler {
	mux := http.NewServeMux()

	// Configure a user verifier so RequireAuth can ensure the user still exists.
	auth.SetUserVerifier(func(_ context.Context, uid uint) bool {
		var count int64
		if err := db.Model(&models.User{}).Where("id = ?", uid).Limit(1).Count(&count).Error; err != nil {
			return false
		}
		return count > 0
	})

	// --- Health endpoints ---
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		// Lightweight DB check (SELECT 1); detailed errors stay out of the body.
		if err := db.Exec("SELECT 1").Error; err != nil {
			httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// --- Core services ---
	hierarchySvc := services.NewHierarchyService()
	structureSvc := services.NewStructureService()
	cascadeSvc := services.NewCascadeService(log)
	if sink == nil {
		sink = services.LogSink{Log: log}
	}
	placementSvc := services.NewPlacementService(db, hierarchySvc, structureSvc, cascadeSvc, sink, log)

	// Auth endpoints
	authHandler := handlers.NewAuthHandler(db)
	authHandler.Register(mux)

	protected := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(auth.RequireAuth(h))
	}

	// Hierarchy endpoints
	hh := handlers.NewHierarchyHandler(db, hierarchySvc)
	mux.Handle("/hierarchie/resolve", protected(hh.Resolve))
	mux.Handle("/hierarchie/label", protected(hh.UpdateLabel))

	// Project endpoints. List/Create via /projets; the rest via explicit
	// action paths for simplicity.
	ph := handlers.NewProjetHandler(db, placementSvc)
	mux.Handle("/projets", protected(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			ph.List(w, r)
		case http.MethodPost:
			ph.Create(w, r)
		default:
			w.Header().Set("Allow", "GET,POST")
			httpx.JSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		}
	}))
	mux.Handle("/projets/aggregate", protected(ph.Aggregate))
	mux.Handle("/projets/tree", protected(ph.Tree))
	mux.Handle("/lots", protected(ph.CreateLot))
	mux.Handle("/lots/delete", protected(ph.DeleteLot))
	mux.Handle("/ouvrages", protected(ph.CreateOuvrage))
	mux.Handle("/ouvrages/delete", protected(ph.DeleteOuvrage))
	mux.Handle("/blocs", protected(ph.CreateBloc))
	mux.Handle("/blocs/delete", protected(ph.DeleteBloc))

	// Placement endpoints
	plh := handlers.NewPlacementHandler(placementSvc)
	mux.Handle("/placements", protected(plh.Create))
	mux.Handle("/placements/update", protected(plh.Update))
	mux.Handle("/placements/delete", protected(plh.Delete))

	return mux
}
