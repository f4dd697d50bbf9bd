package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/Simplici0/merchcalc/internal/config"
	"github.com/Simplici0/merchcalc/internal/db"
	"github.com/Simplici0/merchcalc/internal/migrations"
	"github.com/Simplici0/merchcalc/internal/pricing"
	"github.com/Simplici0/merchcalc/internal/recalc"
	"github.com/Simplici0/merchcalc/internal/seed"
	"github.com/Simplici0/merchcalc/internal/session"
	"github.com/Simplici0/merchcalc/internal/store"
)

var (
	migrateFlag     = flag.Bool("migrate", false, "Run DB migrations on startup outside development")
	migrateOnlyFlag = flag.Bool("migrate-only", false, "Run DB migrations and exit")
)

type server struct {
	store   *store.Store
	engine  *pricing.Engine
	recalc  *recalc.Service
	auth    *authService
	logger  *slog.Logger
	limiter *rate.Limiter
}

func main() {
	flag.Parse()

	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(cfg.DBDriver, cfg.DSN())
	if err != nil {
		return err
	}
	defer database.Close()

	if cfg.IsDev() || *migrateFlag || *migrateOnlyFlag {
		if err := migrations.Up(ctx, database.DB, cfg.DBDriver); err != nil {
			return err
		}
		logger.Info("migrations applied", "driver", cfg.DBDriver)
	}
	if *migrateOnlyFlag {
		return nil
	}

	catalog, err := config.LoadCatalog(cfg.TariffsFile)
	if err != nil {
		return err
	}

	st := store.New(database)
	stats, err := seed.Run(ctx, st, catalog.Factories)
	if err != nil {
		return err
	}
	logger.Info("factories seeded", "inserted", stats.Inserts, "skipped", stats.Skipped)

	sessions := session.NewStore(cfg.SessionTTL)
	go sweepSessions(ctx, sessions, logger)

	srv := newServer(st, pricing.NewEngine(catalog.Tariffs), newAuthService(cfg.AdminEmail, cfg.AdminPassword, sessions), logger,
		rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst))

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpServer.Addr, "env", cfg.Env, "auth", srv.auth.enabled())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newServer(st *store.Store, engine *pricing.Engine, auth *authService, logger *slog.Logger, limiter *rate.Limiter) *server {
	return &server{
		store:   st,
		engine:  engine,
		recalc:  recalc.NewService(st, engine, logger),
		auth:    auth,
		logger:  logger,
		limiter: limiter,
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(s.logger.Handler(), slog.LevelInfo),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	r.Use(s.rateLimit)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/session", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)

			r.Delete("/session", s.handleLogout)
			r.Get("/categories", s.handleCategories)
			r.Post("/quote", s.handleQuote)

			r.Route("/positions", func(r chi.Router) {
				r.Get("/", s.handleListPositions)
				r.Post("/", s.handleCreatePosition)
				r.Get("/{id}", s.handleGetPosition)
				r.Put("/{id}", s.handleUpdatePosition)
				r.Delete("/{id}", s.handleDeletePosition)
				r.Get("/{id}/calculations", s.handleListPositionCalculations)
			})

			r.Route("/factories", func(r chi.Router) {
				r.Get("/", s.handleListFactories)
				r.Post("/", s.handleCreateFactory)
				r.Get("/{id}", s.handleGetFactory)
				r.Put("/{id}", s.handleUpdateFactory)
				r.Delete("/{id}", s.handleDeleteFactory)
			})

			r.Route("/calculations", func(r chi.Router) {
				r.Post("/", s.handleCreateCalculation)
				r.Get("/{id}", s.handleGetCalculation)
				r.Put("/{id}", s.handleUpdateCalculation)
				r.Delete("/{id}", s.handleDeleteCalculation)
				r.Post("/{id}/recalculate", s.handleRecalculate)
				r.Get("/{id}/routes", s.handleListRoutes)
				r.Get("/{id}/proposal.xlsx", s.handleProposal)
			})
		})
	})

	return r
}

func sweepSessions(ctx context.Context, sessions *session.Store, logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepOnce(ctx, sessions, logger)
		}
	}
}

func sweepOnce(ctx context.Context, sessions *session.Store, logger *slog.Logger) {
	if n := sessions.Sweep(); n > 0 {
		logger.DebugContext(ctx, "expired sessions removed", "count", n, "active", sessions.Len())
	}
}
