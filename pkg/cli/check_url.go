package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/gitrelay/pkg/cli/config"
	"github.com/m-mizutani/gitrelay/pkg/domain/types"
	gitinfra "github.com/m-mizutani/gitrelay/pkg/infra/git"
)

func cmdCheckURL() *cli.Command {
	var (
		githubCfg  config.GitHub
		gitCfg     config.Git
		repository string
	)

	flags := append(githubCfg.Flags(), gitCfg.Flags()...)
	flags = append(flags, &cli.StringFlag{
		Name:        "url",
		Usage:       "Repository URL to check",
		Destination: &repository,
	})

	return &cli.Command{
		Name:  "check-url",
		Usage: "Check that a repository URL can be reached",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			w := c.Root().Writer

			url := strings.TrimSpace(repository)
			if url == "" {
				return goerr.New("please enter a git repository URL", goerr.T(types.ErrTagConfiguration))
			}
			// Parameterized URLs are only known at build time
			if strings.Contains(url, "$") {
				fmt.Fprintf(w, "Skipped %s: URL contains a build parameter\n", url)
				return nil
			}

			tokens, err := githubCfg.TokenSource()
			if err != nil {
				return err
			}

			refs, err := gitinfra.ListRemote(ctx, url, gitCfg.Auth(tokens))
			if err != nil {
				color.New(color.FgRed).Fprintf(w, "Failed to connect to repository: %s\n", url)
				return err
			}

			color.New(color.FgGreen).Fprintf(w, "OK %s (%d refs)\n", url, len(refs))
			return nil
		},
	}
}
