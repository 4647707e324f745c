package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/gitrelay/pkg/cli/config"
	"github.com/m-mizutani/gitrelay/pkg/domain/model"
	"github.com/m-mizutani/gitrelay/pkg/domain/types"
	"github.com/m-mizutani/gitrelay/pkg/usecase"
	"github.com/m-mizutani/gitrelay/pkg/utils/async"
)

func cmdNotify() *cli.Command {
	var (
		registryCfg config.Registry
		repository  string
		branches    string
		commit      string
		waitTimeout time.Duration
	)

	flags := append(registryCfg.Flags(),
		&cli.StringFlag{
			Name:        "url",
			Usage:       "Repository URL the commit was pushed to",
			Required:    true,
			Destination: &repository,
		},
		&cli.StringFlag{
			Name:        "branches",
			Usage:       "Comma separated branches the commit is on",
			Destination: &branches,
		},
		&cli.StringFlag{
			Name:        "sha1",
			Usage:       "Commit ID",
			Destination: &commit,
		},
		&cli.DurationFlag{
			Name:        "wait",
			Usage:       "How long to wait for job triggers to complete",
			Value:       time.Minute,
			Destination: &waitTimeout,
		},
	)

	return &cli.Command{
		Name:  "notify",
		Usage: "Notify jobs of a commit once and print the jobs scheduled for polling",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if strings.TrimSpace(repository) == "" {
				return goerr.New("url is required", goerr.T(types.ErrTagConfiguration))
			}

			registry, err := registryCfg.New()
			if err != nil {
				return err
			}

			outcome, err := usecase.NewNotify().Notify(ctx, &model.NotificationRequest{
				RepositoryIdentifier: strings.TrimSpace(repository),
				CommitID:             commit,
				BranchesCSV:          branches,
			}, registry)
			if err != nil {
				return err
			}

			printDispatchOutcome(c, outcome, repository, branches)

			waitCtx, cancel := context.WithTimeout(ctx, waitTimeout)
			defer cancel()
			if err := async.Wait(waitCtx); err != nil {
				ctxlog.From(ctx).Warn("Job triggers did not complete", "error", err)
			}
			return nil
		},
	}
}

func printDispatchOutcome(c *cli.Command, outcome *model.DispatchOutcome, repository, branches string) {
	w := c.Root().Writer
	for _, job := range outcome.Triggered {
		fmt.Fprintf(w, "Scheduled polling of %s\n", job)
	}
	if len(outcome.Triggered) == 0 {
		fmt.Fprintf(w, "No git jobs using repository: %s and branches: %s\n", repository, branches)
	}

	warn := color.New(color.FgYellow)
	for _, job := range outcome.OptedOut {
		warn.Fprintf(w, "Ignored %s (notifyCommit disabled)\n", job)
	}
	for _, job := range outcome.Unreadable {
		warn.Fprintf(w, "Skipped %s (configuration unreadable)\n", job)
	}
	for _, job := range outcome.Failed {
		color.New(color.FgRed).Fprintf(w, "Failed to schedule polling of %s\n", job)
	}
}
