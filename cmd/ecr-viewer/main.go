package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	ecrapi "github.com/dibbs-platform/ecr-viewer/internal/ecr/api"
	"github.com/dibbs-platform/ecr-viewer/internal/ecrstore"
	"github.com/dibbs-platform/ecr-viewer/internal/orchestration"
	"github.com/dibbs-platform/ecr-viewer/internal/shared/auth"
	"github.com/dibbs-platform/ecr-viewer/internal/shared/config"
	"github.com/dibbs-platform/ecr-viewer/internal/shared/database"
	"github.com/dibbs-platform/ecr-viewer/internal/shared/metrics"
	sharedmw "github.com/dibbs-platform/ecr-viewer/internal/shared/middleware"
)

// App holds the wired application dependencies.
type App struct {
	Config *config.Config
	Repo   ecrstore.Repository
	health func(context.Context) error
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "ecr-viewer").Logger()
	if cfg.Server.Env == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	loc, err := time.LoadLocation(cfg.Viewer.Timezone)
	if err != nil {
		logger.Fatal().Err(err).Str("timezone", cfg.Viewer.Timezone).Msg("invalid display timezone")
	}

	app := &App{Config: cfg}

	// The metadata backend is optional: without one the viewer still accepts
	// uploads and renders bundles passed through, but list queries fail with
	// an explicit message.
	switch cfg.Viewer.MetadataDBType {
	case config.MetadataDBPostgres:
		db, err := database.NewPostgres(ctx, cfg.Postgres)
		if err != nil {
			logger.Warn().Err(err).Msg("PostgreSQL not available, running without metadata backend")
		} else {
			defer db.Close()
			app.Repo = ecrstore.NewPostgresRepository(db.Pool, loc)
			app.health = db.Health
			logger.Info().Msg("PostgreSQL metadata backend connected")
		}
	case config.MetadataDBSQLServer:
		db, err := database.NewSQLServer(ctx, cfg.SQLServer)
		if err != nil {
			logger.Warn().Err(err).Msg("SQL Server not available, running without metadata backend")
		} else {
			defer db.Close()
			app.Repo = ecrstore.NewSQLServerRepository(db.DB, loc)
			app.health = db.Health
			logger.Info().Msg("SQL Server metadata backend connected")
		}
	}

	orch := orchestration.New(orchestration.Config{
		URL:            cfg.Orchestration.URL,
		ConfigFileName: orchestration.ConfigFileName(cfg.Viewer.NonIntegratedViewer, cfg.Viewer.MetadataSchema),
	})

	handler := ecrapi.NewHandler(app.Repo, orch, ecrapi.Config{
		Schema:   cfg.Viewer.MetadataSchema,
		Env:      cfg.Server.Env,
		Location: loc,
		Logger:   logger,
	})

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(120 * time.Second))
	r.Use(sharedmw.Logger(logger))
	r.Use(sharedmw.SecurityHeaders)
	r.Use(metrics.Middleware)

	// Health checks and metrics (unauthenticated)
	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	basePath := cfg.Server.BasePath
	r.Route(basePath+"/api", func(r chi.Router) {
		if cfg.Auth.Enabled {
			verifier, err := auth.NewVerifier(cfg.Auth, basePath+"/auth-failed")
			if err != nil {
				logger.Fatal().Err(err).Msg("failed to initialize token verifier")
			}
			r.Use(verifier.Middleware)
			logger.Info().Msg("NBS token gate enabled")
		}

		// Uploads are throttled; conversion is the expensive path.
		r.With(sharedmw.RateLimiter(5, 10)).Post("/process-zip", handler.ProcessZip)
		r.Mount("/", handler.Routes())
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info().Msg("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}
		close(done)
	}()

	logger.Info().
		Str("env", cfg.Server.Env).
		Int("port", cfg.Server.Port).
		Str("base_path", basePath).
		Str("metadata_db", string(cfg.Viewer.MetadataDBType)).
		Str("metadata_schema", string(cfg.Viewer.MetadataSchema)).
		Bool("non_integrated_viewer", cfg.Viewer.NonIntegratedViewer).
		Msg("ecr-viewer listening")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("server error")
	}

	<-done
	logger.Info().Msg("server stopped")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, `{"status":"healthy"}`)
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{"server": "ready"}

		if app.health != nil {
			if err := app.health(r.Context()); err != nil {
				checks["database"] = "not ready: " + err.Error()
			} else {
				checks["database"] = "ready"
			}
		} else {
			checks["database"] = "not configured"
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"status":%q,"checks":{"server":%q,"database":%q}}`+"\n",
			map[bool]string{true: "ready", false: "not ready"}[allReady],
			checks["server"], checks["database"])
	}
}
