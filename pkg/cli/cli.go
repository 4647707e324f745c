package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/m-mizutani/ctxlog"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/gitrelay/pkg/cli/config"
	"github.com/m-mizutani/gitrelay/pkg/domain/types"
)

type runConfig struct {
	writer    io.Writer
	logOutput io.Writer
}

// Option configures Run
type Option func(*runConfig)

// WithWriter sets the destination of command output
func WithWriter(w io.Writer) Option {
	return func(c *runConfig) {
		c.writer = w
	}
}

// WithLogOutput sets the destination of logs
func WithLogOutput(w io.Writer) Option {
	return func(c *runConfig) {
		c.logOutput = w
	}
}

// Run runs the CLI application
func Run(ctx context.Context, args []string, opts ...Option) error {
	var rc runConfig
	for _, opt := range opts {
		opt(&rc)
	}

	var (
		loggerCfg config.Logger
		sentryCfg config.Sentry
		logger    *slog.Logger
		flush     = func() {}
	)
	loggerCfg.Output = rc.logOutput

	app := &cli.Command{
		Name:    "gitrelay",
		Usage:   "Commit notification and post-build push relay for git repositories",
		Version: types.Version,
		Writer:  rc.writer,
		Flags:   append(loggerCfg.Flags(), sentryCfg.Flags()...),
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			var err error
			logger, err = loggerCfg.Configure()
			if err != nil {
				return nil, err
			}

			flush, err = sentryCfg.Configure()
			if err != nil {
				return nil, err
			}

			slog.SetDefault(logger)
			ctx = ctxlog.With(ctx, logger)
			return ctx, nil
		},
		Commands: []*cli.Command{
			cmdServe(),
			cmdNotify(),
			cmdPublish(),
			cmdCheckURL(),
		},
	}

	err := app.Run(ctx, args)
	flush()
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("CLI execution failed", slog.Any("error", err))
		return err
	}

	return nil
}
