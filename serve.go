package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"roundify/config"
	"roundify/credentials"
	"roundify/delivery"
	"roundify/encoder"
	"roundify/failures"
	"roundify/hub"
	"roundify/job"
	"roundify/logger"
	"roundify/metrics"
	"roundify/routes"
	"roundify/success"
	taskqueue "roundify/taskQueue"
	"roundify/utils"

	"github.com/spf13/cobra"
)

type configLoader func() (*config.Config, error)

func newServeCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the clip service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			defer logger.Close()
			return runServer(cmd.Context(), cfg)
		},
	}
}

func newCleanupCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Run one janitor pass over the data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			defer logger.Close()

			stores, err := openStores(cfg)
			if err != nil {
				return err
			}
			defer stores.close()

			svc, err := newJobService(cfg, stores.jobs, nil)
			if err != nil {
				return err
			}
			report, err := svc.Sweep(time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "artifacts: %d\nuploads: %d\njobs: %d\nfailures: %d\nstrays: %d\n",
				report.Artifacts, report.Uploads, report.Jobs, report.Failures, report.Strays)
			return nil
		},
	}
}

// stores holds the pebble databases opened for a command.
type stores struct {
	jobs *taskqueue.JobStore
}

func openStores(cfg *config.Config) (*stores, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	logger.Debug("Initializing credentials database")
	if err := credentials.OpenDB(cfg.Paths.CredentialsDBPath()); err != nil {
		return nil, fmt.Errorf("failed to initialize credentials store: %w", err)
	}
	logger.Debug("Initializing failures database")
	if err := failures.Init(cfg.Paths.FailuresDBPath()); err != nil {
		credentials.CloseDB()
		return nil, fmt.Errorf("failed to initialize failure store: %w", err)
	}
	logger.Debug("Initializing success database")
	if err := success.Init(cfg.Paths.SuccessDBPath()); err != nil {
		failures.Close()
		credentials.CloseDB()
		return nil, fmt.Errorf("failed to initialize success store: %w", err)
	}
	logger.Debug("Initializing job database")
	jobs, err := taskqueue.OpenJobStore(cfg.Paths.JobsDBPath())
	if err != nil {
		success.Close()
		failures.Close()
		credentials.CloseDB()
		return nil, fmt.Errorf("failed to initialize job store: %w", err)
	}
	logger.Info("Databases initialized successfully")
	return &stores{jobs: jobs}, nil
}

func (s *stores) close() {
	s.jobs.Close()
	success.Close()
	failures.Close()
	credentials.CloseDB()
}

func newJobService(cfg *config.Config, jobs *taskqueue.JobStore, m *metrics.Metrics) (*job.Service, error) {
	key := []byte(cfg.Artifacts.SigningKey)
	if len(key) == 0 {
		generated, err := utils.GenerateRandomHex(32)
		if err != nil {
			return nil, err
		}
		key = []byte(generated)
		logger.Warn("No signing key configured; download links will not survive a restart")
	}
	return job.NewService(job.Deps{
		Config:     cfg,
		Store:      jobs,
		Hub:        hub.New(),
		Sender:     delivery.NewTelegram(cfg.Delivery.TelegramAPIBase, cfg.DeliveryTimeout()),
		Metrics:    m,
		SigningKey: key,
	})
}

func runServer(ctx context.Context, cfg *config.Config) error {
	logger.Info("Starting Roundify server initialization")
	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer st.close()

	encoder.RegisterDefaults(cfg.Encoding.FFmpegPath)
	if len(encoder.Names()) == 0 {
		logger.Warnf("ffmpeg not found at %q; every conversion will be rejected", cfg.Encoding.FFmpegPath)
	}

	m := metrics.New()
	svc, err := newJobService(cfg, st.jobs, m)
	if err != nil {
		return err
	}

	logger.Info("Recovering jobs from the previous run")
	if err := svc.Recover(); err != nil {
		// Don't exit - continue with server startup
		logger.Errorf("Failed to recover jobs: %v", err)
	}
	svc.Start(ctx)
	defer svc.Stop()
	go svc.RunJanitor(ctx, cfg.JanitorInterval())

	server := &http.Server{
		Addr:              cfg.Server.Bind,
		Handler:           routes.NewRouter(svc, m),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Roundify server listening on %s", cfg.Server.Bind)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Graceful shutdown failed: %v", err)
	}
	return nil
}
