package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/italolelis/chapter_downloader/internal/cleanup"
	"github.com/italolelis/chapter_downloader/internal/config"
	"github.com/italolelis/chapter_downloader/internal/downloader"
	"github.com/italolelis/chapter_downloader/internal/http/rest"
	"github.com/italolelis/chapter_downloader/internal/logctx"
	"github.com/italolelis/chapter_downloader/internal/notifier"
	"github.com/italolelis/chapter_downloader/internal/paths"
	"github.com/italolelis/chapter_downloader/internal/provider"
	"github.com/italolelis/chapter_downloader/internal/provider/httpapi"
	"github.com/italolelis/chapter_downloader/internal/storage/sqldb"
	"github.com/italolelis/chapter_downloader/internal/telemetry"
)

const serviceName = "chapter_downloader"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger, closer := logctx.NewLogger(cfg.LoggerOptions())
	defer closer.Close()

	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("chapter downloader starting...", "log_level", cfg.LogLevel, "version", cfg.AppVersion)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		logger.Error("fatal error", "err", err)
		closer.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: cfg.AppVersion,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	database, err := sqldb.InitDB(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.Error("DB error", "err", err, "driver", cfg.DBDriver)

		return err
	}
	defer database.Close()

	repo := sqldb.NewInstrumentedDownloadRepository(sqldb.NewDownloadRepository(database), tel)

	// =========================================================================
	// Start Content Provider
	client, err := httpapi.NewClient(cfg.ProviderBaseURL, cfg.ProviderToken, cfg.HTTPTimeout)
	if err != nil {
		return fmt.Errorf("failed to build provider client: %w", err)
	}

	prov := provider.NewInstrumentedProvider(client, tel, "httpapi")

	// =========================================================================
	// Start Downloader
	events := downloader.NewBroadcaster()

	d, err := downloader.New(downloader.Options{
		Repository: repo,
		Provider:   prov,
		Resolver:   paths.NewResolver(cfg.DataDir),
		HTTPClient: &http.Client{
			Timeout:   cfg.HTTPTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Reporter:    events,
		Telemetry:   tel,
		ArchiveMode: cfg.ArchiveMode,
		AppVersion:  cfg.AppVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to build downloader: %w", err)
	}

	if err := d.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover downloads: %w", err)
	}

	// =========================================================================
	// Start Cleanup
	scheduler, err := cleanup.NewScheduler(ctx, cfg.CleanupSchedule, d)
	if err != nil {
		return err
	}

	// =========================================================================
	// Start Notification
	setupNotification(ctx, events, cfg)

	// =========================================================================
	// Start API Service
	server := setupServer(ctx, d, events, tel, cfg)

	logger.Info("waiting for chapters...",
		"data_dir", cfg.DataDir,
		"archive_mode", cfg.ArchiveMode,
		"cleanup_schedule", cfg.CleanupSchedule,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return d.Run(gctx)
	})

	g.Go(func() error {
		return scheduler.Run(gctx)
	})

	g.Go(func() error {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func setupNotification(ctx context.Context, events *downloader.Broadcaster, cfg *config.Config) {
	if cfg.DiscordWebhookURL == "" {
		logctx.LoggerFromContext(ctx).Debug("notifications disabled")

		return
	}

	sub, _ := events.Subscribe(64)

	go notifier.Forward(ctx, sub, notifier.NewDiscordNotifier(cfg.DiscordWebhookURL))
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(ctx context.Context, d *downloader.Downloader, events *downloader.Broadcaster, tel *telemetry.Telemetry, cfg *config.Config) *http.Server {
	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      rest.NewRouter(d, events, tel),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
