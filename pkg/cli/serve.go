package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/gitrelay/pkg/cli/config"
	ghcontroller "github.com/m-mizutani/gitrelay/pkg/controller/github"
	controller "github.com/m-mizutani/gitrelay/pkg/controller/http"
	"github.com/m-mizutani/gitrelay/pkg/usecase"
	"github.com/m-mizutani/gitrelay/pkg/utils/async"
)

func cmdServe() *cli.Command {
	var (
		serverCfg   config.Server
		githubCfg   config.GitHub
		registryCfg config.Registry
		concurrency int
	)

	flags := append(serverCfg.Flags(), githubCfg.Flags()...)
	flags = append(flags, registryCfg.Flags()...)
	flags = append(flags, &cli.IntFlag{
		Name:        "notify-concurrency",
		Usage:       "Number of jobs examined concurrently per notification",
		Value:       8,
		Destination: &concurrency,
		Sources:     cli.EnvVars("GITRELAY_NOTIFY_CONCURRENCY"),
	})

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := ctxlog.From(ctx)

			logger.Info("Starting gitrelay server",
				slog.String("addr", serverCfg.Addr),
				slog.String("jobs_file", registryCfg.JobsFile),
				slog.Any("github", githubCfg),
			)

			registry, err := registryCfg.New()
			if err != nil {
				return err
			}

			// Create use cases
			notifyUC := usecase.NewNotify(usecase.WithNotifyConcurrency(concurrency))

			opts := []controller.Option{
				controller.WithAddr(serverCfg.Addr),
			}
			if githubCfg.WebhookSecret != "" {
				opts = append(opts,
					controller.WithWebhookSecret(githubCfg.WebhookSecret),
					controller.WithWebhookProcessor(ghcontroller.NewEventProcessor(notifyUC, registry)),
				)
			} else {
				logger.Warn("GitHub webhook secret is not set, /hooks/github is disabled")
			}

			// Create HTTP server with options
			server, err := controller.NewServer(ctx, notifyUC, registry, opts...)
			if err != nil {
				return goerr.Wrap(err, "failed to create HTTP server")
			}

			// Start server in goroutine
			go func() {
				logger.Info("HTTP server starting", slog.String("addr", serverCfg.Addr))
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("HTTP server error", slog.Any("error", err))
				}
			}()

			// Wait for interrupt signal
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			select {
			case <-ctx.Done():
				logger.Info("Context cancelled, shutting down...")
			case sig := <-sigChan:
				logger.Info("Signal received, shutting down...", slog.Any("signal", sig))
			}

			// Graceful shutdown
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				return goerr.Wrap(err, "failed to shutdown server gracefully")
			}
			if err := async.Wait(shutdownCtx); err != nil {
				logger.Warn("Pending triggers were abandoned", slog.Any("error", err))
			}

			logger.Info("Server shutdown complete")
			return nil
		},
	}
}
