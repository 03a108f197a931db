package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/excelsql/internal/archive"
	"github.com/JonMunkholm/excelsql/internal/config"
	"github.com/JonMunkholm/excelsql/internal/converter"
	"github.com/JonMunkholm/excelsql/internal/history"
	"github.com/JonMunkholm/excelsql/internal/logging"
	"github.com/JonMunkholm/excelsql/internal/session"
	"github.com/JonMunkholm/excelsql/internal/web"
	"github.com/JonMunkholm/excelsql/internal/workflow"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"converter", cfg.Converter.BaseURL,
		"session_max", cfg.Session.MaxEntries,
		"history_db", cfg.Database.URL != "",
		"archive_enabled", cfg.Archive.Enabled(),
	)
	slog.Debug("effective configuration", "config", cfg.String())

	ctx := context.Background()

	recorder, closeHistory, err := openHistory(ctx, cfg)
	if err != nil {
		slog.Error("failed to open history", "error", err)
		os.Exit(1)
	}
	defer closeHistory()

	var artifacts *archive.Sink
	if cfg.Archive.Enabled() {
		artifacts, err = archive.New(archive.Config{
			Endpoint:  cfg.Archive.Endpoint,
			Region:    cfg.Archive.Region,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Bucket:    cfg.Archive.Bucket,
			Prefix:    cfg.Archive.Prefix,
			UseSSL:    cfg.Archive.UseSSL,
		})
		if err != nil {
			slog.Error("failed to configure archive", "error", err)
			os.Exit(1)
		}
		slog.Info("artifact archive enabled", "endpoint", cfg.Archive.Endpoint, "bucket", cfg.Archive.Bucket)
	}

	client := converter.NewLimiter(
		converter.New(cfg.Converter.BaseURL, cfg.Converter.Timeout),
		cfg.Converter.MaxConcurrent,
		cfg.Converter.QueueWait,
	)
	defaults := workflow.Configuration{
		TenantID:      cfg.Defaults.TenantID,
		OperatedByUID: cfg.Defaults.OperatedByUID,
		StartingUID:   cfg.Defaults.StartingUID,
	}

	sessions := session.NewStore(cfg.Session.MaxEntries, cfg.Session.TTL, func(id string) *workflow.Workflow {
		slog.Debug("session created", "session_id", id)
		return workflow.New(workflow.Options{
			Service:     client,
			Defaults:    &defaults,
			Logger:      slog.Default().With("session_id", id),
			OnGenerated: history.Hook(recorder, id, cfg.Server.ShutdownTimeout),
		})
	})
	defer sessions.Close()

	server := web.NewServer(cfg, web.Deps{
		Sessions: sessions,
		History:  recorder,
		Archive:  artifacts,
		Limiter:  client,
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...", "sessions", sessions.Len(), "converter", client.Status())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		if err := client.WaitForDrain(shutdownCtx); err != nil {
			slog.Warn("conversion calls still in flight", "active", client.ActiveCount())
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}

// openHistory connects to Postgres when a database URL is configured and
// falls back to an in-memory ring otherwise.
func openHistory(ctx context.Context, cfg *config.Config) (history.Recorder, func(), error) {
	if cfg.Database.URL == "" {
		slog.Info("no database configured, keeping history in memory", "size", cfg.Database.HistorySize)
		return history.NewMemoryRecorder(cfg.Database.HistorySize), func() {}, nil
	}

	// Parse and configure connection pool
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	rec := history.NewPostgresRecorder(pool)
	if err := rec.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return rec, pool.Close, nil
}
