// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adiadia/prompt-runner/internal/config"
	"github.com/adiadia/prompt-runner/internal/dispatch"
	"github.com/adiadia/prompt-runner/internal/document"
	"github.com/adiadia/prompt-runner/internal/events"
	"github.com/adiadia/prompt-runner/internal/executor"
	"github.com/adiadia/prompt-runner/internal/logging"
	"github.com/adiadia/prompt-runner/internal/persistence/postgres"
	"github.com/adiadia/prompt-runner/internal/tracker"
	httptransport "github.com/adiadia/prompt-runner/internal/transport/http"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.NewLogger(cfg.Env)

	store := document.NewStore(logger)
	tracked := tracker.New(logger)
	bus := events.NewBus(logger)

	var database dispatch.Database
	if cfg.DatabaseURL != "" {
		lazy := postgres.NewLazy(cfg.DatabaseURL)
		defer lazy.Close()
		database = lazy
	}

	dispatcher := dispatch.New(dispatch.Deps{
		Logger:    logger,
		Database:  database,
		EditorCLI: cfg.EditorCLI,
	})

	webhooks := events.NewWebhookNotifier(
		&http.Client{Timeout: 10 * time.Second},
		cfg.WebhookSecret,
		logger,
	)

	engine := executor.New(executor.Deps{
		Store:      store,
		Tracker:    tracked,
		Dispatcher: dispatcher,
		Bus:        bus,
		Webhooks:   webhooks,
		Logger:     logger,
		Config: executor.Config{
			MaxConcurrent: cfg.MaxConcurrent,
			AutoRetry:     cfg.AutoRetry,
			MaxRetries:    cfg.MaxRetries,
			RetryDelay:    cfg.RetryDelay,
			StepTimeout:   cfg.StepTimeout,
			PromptTimeout: cfg.PromptTimeout,
		},
	})

	handler := httptransport.NewRouter(httptransport.Deps{
		Documents:       store,
		Engine:          engine,
		Tracker:         tracked,
		Events:          bus,
		Logger:          logger,
		APIToken:        cfg.APIToken,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Version:         Version,
		Commit:          Commit,
		BuildDate:       BuildDate,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api listening",
			"addr", cfg.HTTPAddr,
			"version", Version,
			"commit", Commit,
			"build_date", BuildDate,
		)

		if err := srv.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
}
