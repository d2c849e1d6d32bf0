package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container
	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/opconsole/internal/adapter/driven/livefeed"
	sqliteadapter "github.com/ericfisherdev/opconsole/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/opconsole/internal/adapter/driving/http"
	webhandler "github.com/ericfisherdev/opconsole/internal/adapter/driving/web"
	"github.com/ericfisherdev/opconsole/internal/application"
	"github.com/ericfisherdev/opconsole/internal/config"
	"github.com/ericfisherdev/opconsole/internal/domain/port/driven"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on invalid env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	logger.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"preview_length", cfg.PreviewLength,
		"decrypt_timeout", cfg.DecryptTimeout,
		"device_log_depth", cfg.DeviceLogDepth,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database and run migrations when persistence is enabled.
	var (
		captureStore driven.CaptureStore
		scriptStore  driven.ScriptStore
	)
	if cfg.Persistent() {
		db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		logger.Info("database opened", "path", cfg.DBPath)

		version, err := sqliteadapter.RunMigrations(db.Writer)
		if err != nil {
			return err
		}
		logger.Info("migrations complete", "schema_version", version)

		captureStore = sqliteadapter.NewCaptureRepo(db)
		scriptStore = sqliteadapter.NewScriptRepo(db)
	} else {
		logger.Info("no database path configured, console state is kept in memory only")
	}

	// 4. Select the decryption capability. SIGHUP re-reads it.
	provider := application.NewDecrypterProvider(newDecrypter(cfg, logger))

	// 5. Create application services.
	tracker := application.NewScriptProgressTracker()
	credentials := application.NewCredentialLogStore(provider, captureStore, cfg.DecryptTimeout, logger)
	deviceLog := application.NewDeviceLog(cfg.DeviceLogDepth)
	telemetry := application.NewTelemetryService(tracker, credentials, deviceLog, scriptStore, logger)

	// 6. Wire the live feed before restoring so clients see restored state.
	hub := livefeed.NewHub(cfg.PreviewLength, logger)
	defer tracker.Subscribe(hub)()
	defer credentials.Subscribe(hub)()
	defer deviceLog.Subscribe(hub)()

	if err := telemetry.Restore(ctx); err != nil {
		return err
	}

	// 7. Create HTTP handlers and register routes.
	mux := http.NewServeMux()
	apiHandler := httphandler.NewHandler(telemetry, tracker, credentials, deviceLog, provider, cfg.PreviewLength, logger)
	httphandler.RegisterAPIRoutes(mux, apiHandler)

	webHandler := webhandler.NewHandler(tracker, credentials, deviceLog, provider, hub, cfg.PreviewLength, logger)
	webhandler.RegisterRoutes(mux, webHandler)

	// Apply middleware.
	handler := httphandler.ApplyMiddleware(mux, logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 8. Serve until a shutdown signal arrives or the listener fails.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return watchReload(gctx, provider, logger)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		// 9. Graceful shutdown with 10s timeout for HTTP drain.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		return nil
	})

	logger.Info("opconsole started",
		"listen_addr", cfg.ListenAddr,
		"decrypter", provider.Name(),
		"captures", credentials.Len(),
	)

	serveErr := g.Wait()

	// 10. Close live feed clients and let background decrypts settle.
	hub.Close()
	credentials.Wait()
	if serveErr != nil {
		return serveErr
	}

	// 11. Log shutdown complete.
	logger.Info("shutdown complete")
	return nil
}
