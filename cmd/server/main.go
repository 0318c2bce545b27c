package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/diewo77/devis-app/internal/auth"
	"github.com/diewo77/devis-app/internal/config"
	"github.com/diewo77/devis-app/internal/db"
	"github.com/diewo77/devis-app/internal/logging"
)

var migrateOnlyFlag = flag.Bool("migrate-only", false, "Run DB migrations and exit")

func withLogging(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

func main() {
	flag.Parse()
	_ = godotenv.Load()
	cfg := config.Load()
	log := logging.New(cfg.Env)
	defer func() { _ = log.Sync() }()
	auth.SetSecret(cfg.SessionSecret)

	if migrateOnlyFlag != nil && *migrateOnlyFlag {
		if err := db.RunMigrations(cfg, log); err != nil {
			log.Fatal("migrate-only failed", zap.Error(err))
		}
		log.Info("migrations completed; exiting as requested")
		return
	}

	dbConn, err := db.ConnectAndMigrate(cfg, log)
	if err != nil {
		log.Fatal("erreur connexion DB", zap.Error(err))
	}
	log.Info("starting server", zap.String("env", cfg.Env), zap.String("port", cfg.Port))

	appHandler := NewApp(dbConn, log, nil)
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: withLogging(log, appHandler)}

	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("forced shutdown", zap.Error(err))
	}
}
