package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/2thetop/scalar/config"
	"github.com/2thetop/scalar/fetch"
	"github.com/2thetop/scalar/git"
	"github.com/2thetop/scalar/git/metadata"
	"github.com/2thetop/scalar/ipc"
	"github.com/2thetop/scalar/maintenance"
	"github.com/2thetop/scalar/transport"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the maintenance scheduler and the request socket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

// serve wires the service together and blocks until SIGINT or SIGTERM.
func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cfg.SlogLevel())
	logger.Info("scalar maintenance starting",
		"enlistment_root", cfg.EnlistmentRoot,
		"origin_url", cfg.OriginURL,
		"unattended", cfg.Unattended,
	)

	httpClient := &http.Client{Timeout: cfg.Timeout}
	cacheServerURL := cfg.CacheServerURL
	if cacheServerURL == "" {
		cacheServerURL = discoverCacheServer(ctx, cfg, httpClient, logger)
	}

	objects, err := git.Open(cfg.GitDir(),
		git.WithOriginURL(cfg.OriginURL),
		git.WithCacheServer(cacheServerURL),
		git.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("opening object store: %w", err)
	}

	meta, err := metadata.Open(osfs.New(cfg.EnlistmentRoot), config.DotScalarDir,
		metadata.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("opening repo metadata: %w", err)
	}
	defer func() {
		if err := meta.Close(); err != nil {
			logger.Error("failed to close repo metadata", "error", err)
		}
	}()

	enlistmentID, err := meta.EnlistmentID()
	if err != nil {
		return fmt.Errorf("reading enlistment id: %w", err)
	}
	logger = logger.With("enlistment_id", enlistmentID)

	remote := transport.New(cfg.OriginURL,
		transport.WithHTTPClient(httpClient),
		transport.WithCacheServer(cacheServerURL),
		transport.WithAuthToken(cfg.AuthToken.Unmask()),
		transport.WithUserAgent(cfg.UserAgent),
		transport.WithLogger(logger),
	)

	fetcher := fetch.New(remote, objects,
		fetch.WithRetryPolicy(cfg.RetryPolicy()),
		fetch.WithLogger(logger),
	)

	scheduler := newScheduler(ctx, &maintenance.Context{
		Objects:    objects,
		Fetcher:    fetcher,
		Metadata:   meta,
		Unattended: cfg.Unattended,
		Config:     cfg.MaintenanceConfig(),
		Logger:     logger,
	}, maintenance.WithQueueOptions(maintenance.WithQueueLogger(logger)))

	server := ipc.NewServer(cfg.IPCSocketPath(), ipc.WithServerLogger(logger))
	ipc.NewHandler(scheduler, logger).Register(server)
	if err := server.Start(); err != nil {
		scheduler.Close()
		return fmt.Errorf("starting request socket: %w", err)
	}

	logger.Info("scalar maintenance ready",
		"socket_path", server.SocketPath(),
		"using_cache_server", objects.IsUsingCacheServer(),
		"timers", len(scheduler.Registrations()),
	)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	server.Stop()
	scheduler.Close()

	logger.Info("scalar maintenance stopped")
	return nil
}

// newScheduler starts the scheduler detached from ctx's cancellation. A
// shutdown signal must not abort the in-flight step; Close stops the queue
// and waits for that step within the queue's stop timeout.
func newScheduler(ctx context.Context, mctx *maintenance.Context, opts ...maintenance.SchedulerOption) *maintenance.Scheduler {
	return maintenance.NewScheduler(context.WithoutCancel(ctx), mctx, opts...)
}

// discoverCacheServer asks the origin for its default cache server. Any
// failure falls back to the origin.
func discoverCacheServer(ctx context.Context, cfg *config.Config, httpClient *http.Client, logger *slog.Logger) string {
	origin := transport.New(cfg.OriginURL,
		transport.WithHTTPClient(httpClient),
		transport.WithAuthToken(cfg.AuthToken.Unmask()),
		transport.WithUserAgent(cfg.UserAgent),
		transport.WithLogger(logger),
	)

	serverConfig, err := origin.QueryConfig(ctx)
	if err != nil {
		logger.Warn("cache server discovery failed, using origin", "error", err)
		return ""
	}
	cs, ok := serverConfig.DefaultCacheServer()
	if !ok {
		return ""
	}
	logger.Info("using default cache server", "name", cs.Name, "url", cs.URL)
	return cs.URL
}
