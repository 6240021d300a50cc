package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-access/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-access/internal/app"
	"github.com/odyssey-erp/odyssey-access/internal/audit"
	audithttp "github.com/odyssey-erp/odyssey-access/internal/audit/http"
	"github.com/odyssey-erp/odyssey-access/internal/auth"
	"github.com/odyssey-erp/odyssey-access/internal/invitations"
	"github.com/odyssey-erp/odyssey-access/internal/locations"
	"github.com/odyssey-erp/odyssey-access/internal/observability"
	"github.com/odyssey-erp/odyssey-access/internal/onboarding"
	"github.com/odyssey-erp/odyssey-access/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-access/internal/platform/db"
	"github.com/odyssey-erp/odyssey-access/internal/rbac"
	"github.com/odyssey-erp/odyssey-access/internal/roles"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
	"github.com/odyssey-erp/odyssey-access/internal/users"
	"github.com/odyssey-erp/odyssey-access/jobs"
	"github.com/odyssey-erp/odyssey-access/migrations"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	cmd := "serve"
	var args []string
	if len(os.Args) > 1 {
		cmd, args = os.Args[1], os.Args[2:]
	}
	switch cmd {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "migrate":
		err = migrate(ctx, cfg, logger)
	case "jobs":
		err = runJobs(ctx, cfg, args)
	case "gaps":
		os.Exit(runGaps(ctx, cfg, args))
	default:
		err = fmt.Errorf("unknown command %q (serve, migrate, jobs, gaps)", cmd)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(cmd, slog.Any("error", err))
		os.Exit(1)
	}
}

func migrate(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()
	return migrations.Apply(ctx, pool, logger)
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) error {
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() { _ = jobsCLI.Close() }()

	if len(args) >= 2 && args[0] == "trigger" {
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s (%s)\n", info.Type, info.ID)
		return nil
	}
	stats, err := jobsCLI.InspectQueue(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n", stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	return nil
}

func runGaps(ctx context.Context, cfg *app.Config, args []string) int {
	fs := flag.NewFlagSet("gaps", flag.ContinueOnError)
	opts := cli.GapsOptions{}
	fs.IntVar(&opts.Limit, "limit", 100, "maximum gaps to list")
	fs.BoolVar(&opts.Exhausted, "exhausted", false, "include gaps past the retry limit")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		fmt.Fprintf(os.Stderr, "gaps: %v\n", err)
		return 1
	}
	defer pool.Close()
	gapsCLI, err := cli.NewGapsCLI(onboarding.NewStore(pool))
	if err != nil {
		fmt.Fprintf(os.Stderr, "gaps: %v\n", err)
		return 1
	}
	return gapsCLI.ListCommand(ctx, opts)
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
	if err != nil {
		return err
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, permission cache disabled", slog.Any("error", err))
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	sessionManager := shared.NewSessionManager(redisClient, "odyssey_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	tokens, err := auth.NewTokens(cfg.AuthSecret, cfg.AuthTokenTTL)
	if err != nil {
		return err
	}
	authService := auth.NewService(auth.NewRepository(dbpool), tokens)
	authHandler := auth.NewHandler(logger, authService, sessionManager)

	rbacService := rbac.NewService(rbac.NewRepository(dbpool), logger,
		rbac.WithCache(rbac.NewCache(redisClient, cfg.PermissionCacheTTL)),
		rbac.WithRecorder(metrics),
		rbac.WithAuditor(auditLogger),
	)
	guard := rbac.Middleware{Service: rbacService, Logger: logger}
	rbacHandler := rbac.NewHandler(logger, rbacService, guard)

	rolesService := roles.NewService(roles.NewRepository(dbpool), rbacService, logger)
	rolesHandler := roles.NewHandler(logger, rolesService, guard)

	usersService := users.NewService(users.NewRepository(dbpool))
	usersHandler := users.NewHandler(logger, usersService, guard)

	locationsService := locations.NewService(locations.NewRepository(dbpool))
	locationsHandler := locations.NewHandler(logger, locationsService, rbacService, guard)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		return err
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	invitationsService := invitations.NewService(invitations.Config{
		SiteURL:     cfg.SiteURL,
		DefaultDays: cfg.InviteDefaultDays,
	}, invitations.Deps{
		Repo:        invitations.NewRepository(dbpool),
		Permissions: rbacService,
		Flags:       usersService,
		Locations:   locationsService,
		Mailer:      jobClient,
		Auditor:     auditLogger,
		Recorder:    metrics,
		Logger:      logger,
	})
	invitationsHandler := invitations.NewHandler(logger, invitationsService, idempotencyStore)

	onboardingService := onboarding.NewService(onboarding.Deps{
		Store:       onboarding.NewStore(dbpool),
		Lookup:      invitationsService,
		Invalidator: rbacService,
		Auditor:     auditLogger,
		Recorder:    metrics,
		Logger:      logger,
	})
	onboardingHandler := onboarding.NewHandler(logger, onboardingService, sessionManager, authService)

	auditHandler := audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), guard)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		Tokens:             tokens,
		RBACMiddleware:     guard,
		Metrics:            metrics,
		AuthHandler:        authHandler,
		RBACHandler:        rbacHandler,
		RolesHandler:       rolesHandler,
		UsersHandler:       usersHandler,
		LocationsHandler:   locationsHandler,
		InvitationsHandler: invitationsHandler,
		OnboardingHandler:  onboardingHandler,
		AuditHandler:       auditHandler,
		JobHandler:         jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
