package config

import (
	"time"

	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/gitrelay/pkg/domain/interfaces"
	gitinfra "github.com/m-mizutani/gitrelay/pkg/infra/git"
	"github.com/m-mizutani/gitrelay/pkg/usecase"
)

// Git holds push transport configuration
type Git struct {
	Token       string `masq:"secret"`
	Username    string
	PushTimeout time.Duration
	Parallelism int
}

// Flags returns CLI flags for git configuration
func (c *Git) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "git-token",
			Usage:       "Access token for HTTPS remotes. Takes precedence over GitHub App credentials",
			Destination: &c.Token,
			Sources:     cli.EnvVars("GITRELAY_GIT_TOKEN"),
		},
		&cli.StringFlag{
			Name:        "git-username",
			Usage:       "User name paired with the access token",
			Value:       gitinfra.DefaultUsername,
			Destination: &c.Username,
			Sources:     cli.EnvVars("GITRELAY_GIT_USERNAME"),
		},
		&cli.DurationFlag{
			Name:        "push-timeout",
			Usage:       "Timeout of a single push",
			Value:       usecase.DefaultPushTimeout,
			Destination: &c.PushTimeout,
			Sources:     cli.EnvVars("GITRELAY_PUSH_TIMEOUT"),
		},
		&cli.IntFlag{
			Name:        "push-parallelism",
			Usage:       "Number of remotes pushed to concurrently",
			Value:       4,
			Destination: &c.Parallelism,
			Sources:     cli.EnvVars("GITRELAY_PUSH_PARALLELISM"),
		},
	}
}

// Auth builds transport credentials. A static token wins over the fallback source.
func (c *Git) Auth(fallback interfaces.TokenSource) *gitinfra.Auth {
	auth := &gitinfra.Auth{Username: c.Username}
	switch {
	case c.Token != "":
		auth.Tokens = gitinfra.StaticToken(c.Token)
	case fallback != nil:
		auth.Tokens = fallback
	}
	return auth
}

// PublishOptions returns orchestrator options from the configuration
func (c *Git) PublishOptions() []usecase.PublishOption {
	return []usecase.PublishOption{
		usecase.WithPushTimeout(c.PushTimeout),
		usecase.WithRemoteParallelism(c.Parallelism),
	}
}
