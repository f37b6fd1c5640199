// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

// Command api is the entry point for the Nexio admission API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool) and Redis.
//  4. Run database migrations (idempotent).
//  5. Wire the admission pipeline and its collaborators.
//  6. Start the job runner and the audit writer.
//  7. Start the HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nexioerp/nexio/internal/admission"
	"github.com/nexioerp/nexio/internal/api"
	"github.com/nexioerp/nexio/internal/audit"
	"github.com/nexioerp/nexio/internal/catalog"
	"github.com/nexioerp/nexio/internal/iam"
	"github.com/nexioerp/nexio/internal/iam/authz"
	"github.com/nexioerp/nexio/internal/iam/credential"
	"github.com/nexioerp/nexio/internal/iam/session"
	"github.com/nexioerp/nexio/internal/jobs"
	"github.com/nexioerp/nexio/internal/obs"
	"github.com/nexioerp/nexio/internal/platform/clock"
	"github.com/nexioerp/nexio/internal/platform/config"
	"github.com/nexioerp/nexio/internal/platform/constants"
	"github.com/nexioerp/nexio/internal/platform/migration"
	pgstore "github.com/nexioerp/nexio/internal/platform/postgres"
	redisstore "github.com/nexioerp/nexio/internal/platform/redis"
	"github.com/nexioerp/nexio/internal/platform/sec"
	"github.com/nexioerp/nexio/internal/platform/settings"
	"github.com/nexioerp/nexio/internal/ratelimit"
	"github.com/nexioerp/nexio/internal/tenancy"
	"github.com/nexioerp/nexio/internal/waf"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	log := rawLog.With(slog.String("app", constants.AppName))
	slog.SetDefault(log)

	log.Info("[Nexio] service_initializing", slog.String("version", constants.AppVersion))

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", constants.AppName))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	clk := clock.System{}

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// runCtx outlives startup; cancelling it drains every background loop.
	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Metrics + Settings ─────────────────────────────────────────────
	obs.Init()

	registry, err := settings.NewRegistry(startupCtx, settings.NewPostgresLoader(pool), log)
	must(log, err, "load settings registry")
	registry.Start(runCtx)

	// ── 7. Identity + Sessions ────────────────────────────────────────────
	tokens, err := sec.NewTokenService(cfg.JWTPrivKeyPath, cfg.PublicKeyPaths(), constants.AuthIssuer, clk)
	must(log, err, "initialize token service")

	revocations := session.NewRedisRevocationList(rdb)
	sessions := session.NewManager(session.NewPostgresStore(pool), revocations, registry, clk)
	principals := iam.NewPostgresPrincipalStore(pool)
	verifier := credential.NewVerifier(tokens, sessions, principals, revocations)
	iamService := iam.NewService(principals, sessions, tokens, registry, clk, log)

	// ── 8. Audit ──────────────────────────────────────────────────────────
	sink := audit.NewSink(audit.NewPostgresStore(pool), clk, log)
	go sink.Run(runCtx)

	// ── 9. Tenancy + Authorization ────────────────────────────────────────
	tenants := tenancy.NewCachedStore(tenancy.NewPostgresStore(pool), clk, constants.TenantCacheTTL)
	resolver := tenancy.NewResolver(tenants, log)
	quota := tenancy.NewQuotaEvaluator(tenants, log)

	limiter := ratelimit.New(clk)
	limiter.StartSweep(runCtx)
	guests := ratelimit.NewGuestGuard()

	authzEngine := authz.NewEngine(principals, guests, sink, clk, log)

	// ── 10. Request Screening ─────────────────────────────────────────────
	wafRules := waf.NewPostgresRuleStore(pool)
	screen := waf.NewEngine(wafRules, waf.NewPostgresHitStore(pool), registry, clk, log)
	must(log, screen.Reload(startupCtx), "load screening rules")
	screen.Start(runCtx, constants.WAFReloadInterval)

	// ── 11. Admission Pipeline ────────────────────────────────────────────
	pipeline := admission.NewPipeline(registry, screen, verifier, resolver, quota, limiter, sink, clk, log)

	// ── 12. Jobs + Catalog ────────────────────────────────────────────────
	catalogService := catalog.NewService(catalog.NewPostgresStore(pool), clk, log)

	runner := jobs.NewRunner(jobs.NewPostgresStore(pool), jobs.NewRedisCooldown(rdb), sink, cfg.JobWorkers, clk, log)
	jobs.RegisterBuiltins(runner, jobs.HandlerDeps{
		Catalog: catalogService,
		Tenants: tenants,
		Log:     log,
	})
	go runner.Run(runCtx)

	// ── 13. HTTP Server ───────────────────────────────────────────────────
	apiServer := api.NewServer(
		log, pipeline, authzEngine, iamService, sessions,
		audit.NewPostgresStore(pool), wafRules, screen,
		runner, catalogService, tenants, pool, rdb,
	)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           apiServer.Router(),
		ReadTimeout:       constants.DefaultReadTimeout,
		ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
		WriteTimeout:      constants.DefaultWriteTimeout,
		IdleTimeout:       constants.DefaultIdleTimeout,
	}

	// ── 14. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server_listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
	}

	// Stop background loops, then let the audit writer flush its queue.
	runCancel()
	sink.Wait()

	log.Info("server stopped cleanly")
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
