// Command taskbrokerd runs the task broker MCP server.
//
// It communicates over stdio or Streamable HTTP using JSON-RPC 2.0
// (MCP protocol) and persists all state to a Postgres or SQLite store.
//
// Configuration is read from a TOML file (optional) layered under
// environment variables; see internal/config for the full key list.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentbroker/taskbroker/internal/audit"
	"github.com/agentbroker/taskbroker/internal/broker"
	"github.com/agentbroker/taskbroker/internal/config"
	"github.com/agentbroker/taskbroker/internal/consistency"
	"github.com/agentbroker/taskbroker/internal/content"
	"github.com/agentbroker/taskbroker/internal/distlock"
	"github.com/agentbroker/taskbroker/internal/mcp"
	"github.com/agentbroker/taskbroker/internal/mcptools"
	"github.com/agentbroker/taskbroker/internal/propagator"
	"github.com/agentbroker/taskbroker/internal/reclaimer"
	"github.com/agentbroker/taskbroker/internal/recurrence"
	"github.com/agentbroker/taskbroker/internal/relationship"
	"github.com/agentbroker/taskbroker/internal/scheduler"
	"github.com/agentbroker/taskbroker/internal/statemachine"
	"github.com/agentbroker/taskbroker/internal/store"
	"github.com/agentbroker/taskbroker/internal/store/postgres"
	"github.com/agentbroker/taskbroker/internal/store/sqlite"
	"github.com/agentbroker/taskbroker/internal/tenant"
)

// Version is set via ldflags at build time.
var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "taskbrokerd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("TASKBROKER_CONFIG"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logLevel := parseLogLevel(cfg.Log.Level)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	version := cfg.Server.Version
	if Version != "dev" {
		version = Version
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting taskbrokerd",
		"version", version,
		"dialect", cfg.Database.Dialect,
		"transport", cfg.Transport.Mode,
	)

	s, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	graph := relationship.NewGraph(s)
	prop := propagator.New(s, graph)
	auditLog := audit.New(s)
	sm := statemachine.New(s, auditLog, prop)
	guard := tenant.New(s)
	b := broker.New(s, sm, graph, prop, auditLog, guard)
	auditor := consistency.New(s, graph, auditLog)

	locker := newLocker(cfg.Redis.URL, logger)

	sched := scheduler.NewScheduler(logger)
	sched.AddJob(
		reclaimer.New(s, locker, time.Duration(cfg.Reclaimer.TimeoutHours)*time.Hour, logger),
		time.Duration(cfg.Reclaimer.PeriodSeconds)*time.Second,
	)
	sched.AddJob(
		recurrence.New(s, locker, logger),
		time.Duration(cfg.Recurrence.PeriodSeconds)*time.Second,
	)
	sched.Start(ctx)
	defer sched.Stop()

	registry := mcp.NewRegistry()
	for _, t := range mcptools.All(b) {
		registry.Register(t)
	}
	registry.Register(mcptools.NewConsistencyTool(auditor))

	registry.RegisterPrompt(&content.ClaimAndWorkPrompt{})
	registry.RegisterPrompt(&content.TriageStaleWorkPrompt{})
	registry.RegisterPrompt(&content.ProvisionProjectPrompt{})

	registry.RegisterResource(&content.EntityModelResource{})
	registry.RegisterResource(&content.ErrorTaxonomyResource{})
	registry.RegisterResource(&content.ToolReferenceResource{})

	server := mcp.NewServer(registry, mcp.ServerInfo{
		Name:    cfg.Server.Name,
		Version: version,
	}, logger)

	switch strings.ToLower(cfg.Transport.Mode) {
	case "http":
		return runHTTP(ctx, server, guard, cfg, logger)
	default:
		return server.Run(ctx)
	}
}

func runHTTP(ctx context.Context, server *mcp.Server, guard *tenant.Guard, cfg *config.Config, logger *slog.Logger) error {
	httpServer := mcp.NewHTTPServer(server, guard, cfg.Transport.CORSOrigins, logger)
	addr := cfg.Transport.Host + ":" + cfg.Transport.Port

	srv := &http.Server{
		Addr:    addr,
		Handler: httpServer.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (store.Store, error) {
	switch strings.ToLower(cfg.Dialect) {
	case "postgres":
		return postgres.Open(ctx, cfg.URL, logger)
	case "sqlite", "":
		return sqlite.Open(ctx, cfg.URL, logger)
	default:
		return nil, fmt.Errorf("unknown database dialect %q", cfg.Dialect)
	}
}

// newLocker builds the scheduler's distributed lock. With no Redis URL
// configured, jobs run under an always-acquire no-op lock — correct for
// a single-replica deployment, unsafe for multiple replicas sharing one
// database.
func newLocker(redisURL string, logger *slog.Logger) distlock.Locker {
	if redisURL == "" {
		logger.Warn("no redis url configured; scheduler jobs run without a distributed lock")
		return distlock.NoopLocker{}
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url; falling back to no-op lock", "error", err)
		return distlock.NoopLocker{}
	}
	return distlock.NewRedisLocker(redis.NewClient(opts))
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
