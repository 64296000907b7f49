package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jo-hoe/ytscribe/internal/jobs"
	"github.com/jo-hoe/ytscribe/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	logger, cfg := a.log, a.cfg

	rootCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Async jobs
	queue := jobs.NewQueue(logger, cfg.Server.QueueCapacity, cfg.Server.WorkerCount)
	if err := queue.Start(rootCtx, a.orch); err != nil {
		return err
	}

	svc := &server.Service{
		Log:          logger,
		Cfg:          cfg,
		Store:        a.store,
		Queue:        queue,
		Orchestrator: a.orch,
		Engine:       a.provider,
		Downloader:   a.tools,
	}
	httpSrv := server.NewHTTPServer(svc)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "address", cfg.Server.Addr, "engine", cfg.Engine.Provider)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error("server error", "err", serveErr)
		}
	}

	// Graceful shutdown
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	queue.Shutdown(cfg.Server.ShutdownGrace)
	logger.Info("server stopped")
	return serveErr
}
