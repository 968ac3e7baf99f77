package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"routier/internal/audit"
	"routier/internal/auth"
	"routier/internal/compose"
	"routier/internal/dispatch"
	"routier/internal/platform/config"
	"routier/internal/platform/database"
	"routier/internal/platform/httpserver"
	"routier/internal/platform/logger"
	"routier/internal/platform/metrics"
	"routier/internal/platform/middleware"
	"routier/internal/records"
	"routier/internal/upload"
)

// main wires the dependency graph and keeps the server lifecycle small.
// Business logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Production)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	m := metrics.New()

	manager := database.NewManager(database.Options{
		Logger:     log,
		Metrics:    m,
		Production: cfg.Production,
		Primary:    database.Target{Name: "primary", DSN: cfg.PrimaryDSN},
		Fallbacks:  fallbackTargets(cfg.FallbackDSNs),
	})
	handle := database.NewHandle(manager)
	defer handle.Close()

	startupCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := applySchemas(startupCtx, handle); err != nil {
		return err
	}

	composer := compose.NewComposer(manager, log)
	store := records.NewPostgresStore(handle, composer)
	auditStore := audit.NewPostgresStore(handle)
	recorder := audit.NewRecorder(auditStore, log, m, cfg.AuditBuffer)

	tokens := auth.NewTokenService(cfg.JWTSigningKey, 12*time.Hour)
	authService := auth.NewService(handle, tokens, log)

	ingestor := upload.NewIngestor(cfg.UploadRoot, log, m)

	dispatcher := dispatch.New(log, m, recorder, "/api")
	dispatcher.MustRegister(auth.NewHandler(authService).Routes()...)
	dispatcher.MustRegister(records.NewHandlers(store, ingestor, recorder, log, cfg.MaxUploadBytes).Routes()...)
	dispatcher.MustRegister(audit.NewHandler(auditStore, log).Routes()...)
	dispatcher.Seal()

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.CORS)
	router.Use(middleware.ClientMetadata)
	router.Use(auth.Middleware(tokens))

	router.Handle("/metrics", promhttp.Handler())
	router.Handle(upload.PublicPrefix+"/*", http.StripPrefix(upload.PublicPrefix+"/", http.FileServer(http.Dir(cfg.UploadRoot))))
	router.Mount("/api", dispatcher)
	router.Mount("/", dispatcher)

	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return recorder.Run(gctx)
	})
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr, "production", cfg.Production)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// applySchemas brings the three table groups up to date. All statements are
// idempotent, so reruns on restart are safe.
func applySchemas(ctx context.Context, handle *database.Handle) error {
	db, err := handle.DB(ctx)
	if err != nil {
		return err
	}
	for _, schema := range []string{auth.Schema, records.Schema, audit.Schema} {
		if _, err := db.ExecContext(ctx, schema); err != nil {
			return err
		}
	}
	return nil
}

func fallbackTargets(dsns []string) []database.Target {
	targets := make([]database.Target, 0, len(dsns))
	for i, dsn := range dsns {
		targets = append(targets, database.Target{Name: "fallback-" + strconv.Itoa(i+1), DSN: dsn})
	}
	return targets
}
