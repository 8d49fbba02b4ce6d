// main wires high-level dependencies and keeps the server lifecycle small.
// The data-access core lives in internal packages; route handlers stay thin.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"dealerdesk/internal/datastore"
	"dealerdesk/internal/datastore/memory"
	"dealerdesk/internal/datastore/mongomulti"
	"dealerdesk/internal/entity"
	"dealerdesk/internal/jwttoken"
	"dealerdesk/internal/platform/config"
	"dealerdesk/internal/platform/health"
	"dealerdesk/internal/platform/logger"
	"dealerdesk/internal/requestdata"
	httptransport "dealerdesk/internal/transport/http"
)

const tokenTTL = 15 * time.Minute

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing dealerdesk",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
	)

	registry := entity.NewRegistry()
	if err := entity.RegisterCatalog(registry); err != nil {
		log.Error("entity catalog registration failed", "error", err)
		os.Exit(1)
	}

	opener, err := buildOpener(cfg, log)
	if err != nil {
		log.Error("store opener initialization failed", "error", err)
		os.Exit(1)
	}

	manager := datastore.NewManager(opener, datastore.Config{
		Capacity:      cfg.CacheCapacity,
		IdleTTL:       cfg.CacheIdleTTL,
		SweepInterval: cfg.CacheSweepInterval,
	}, log)

	startupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	sharedConn, err := opener.OpenShared(startupCtx)
	cancel()
	if err != nil {
		log.Error("shared store connection failed", "error", err)
		os.Exit(1)
	}

	factory := requestdata.NewFactory(registry, manager, sharedConn, log)
	tokens := jwttoken.NewService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience, tokenTTL)

	healthHandler := health.New(cfg.Environment, manager.Stats)
	healthHandler.RegisterCheck("shared_store", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return sharedConn.Ping(ctx)
	})

	router := httptransport.NewRouter(httptransport.NewHandler(log), tokens, factory, healthHandler, log)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("starting http server", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown on SIGINT
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	log.Info("shutting down server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	// All requests drained: now the connection cache can be torn down.
	manager.Close(ctx)
	if err := sharedConn.Close(ctx); err != nil {
		log.Warn("failed to close shared store connection", "error", err)
	}

	log.Info("server stopped")
}

// buildOpener picks the MongoDB opener when a URI is configured and falls back
// to the in-memory opener for local development.
func buildOpener(cfg config.Server, log *slog.Logger) (datastore.Opener, error) {
	if cfg.MongoURI == "" {
		log.Warn("MONGO_URI not set; using in-memory stores (development only)")
		return memory.NewOpener(), nil
	}

	mongoCfg := mongomulti.DefaultConfig()
	mongoCfg.URI = cfg.MongoURI
	mongoCfg.SharedDatabase = cfg.SharedDatabase
	mongoCfg.TenantPrefix = cfg.TenantPrefix
	return mongomulti.NewOpener(mongoCfg)
}
