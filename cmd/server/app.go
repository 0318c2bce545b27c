package main

import (
	"net/http"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/diewo77/devis-app/internal/server"
	"github.com/diewo77/devis-app/internal/services"
)

// NewApp bundles the API routes behind the session middleware; end-to-end
// tests drive this handler directly.
func NewApp(dbConn *gorm.DB, log *zap.Logger, sink services.EventSink) http.Handler {
	return server.New(dbConn, log, sink)
}
