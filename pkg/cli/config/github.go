package config

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/gitrelay/pkg/domain/interfaces"
	"github.com/m-mizutani/gitrelay/pkg/domain/types"
	"github.com/m-mizutani/gitrelay/pkg/infra/github"
)

// GitHub holds GitHub configuration
type GitHub struct {
	WebhookSecret  string `masq:"secret"`
	AppID          int64
	InstallationID int64
	PrivateKey     string `masq:"secret"`
	PrivateKeyFile string
}

// Flags returns CLI flags for GitHub configuration
func (c *GitHub) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "github-webhook-secret",
			Usage:       "GitHub webhook secret. The webhook endpoint is disabled when empty",
			Destination: &c.WebhookSecret,
			Sources:     cli.EnvVars("GITRELAY_GITHUB_WEBHOOK_SECRET"),
		},
		&cli.Int64Flag{
			Name:        "github-app-id",
			Usage:       "GitHub App ID used to push over HTTPS",
			Destination: &c.AppID,
			Sources:     cli.EnvVars("GITRELAY_GITHUB_APP_ID"),
		},
		&cli.Int64Flag{
			Name:        "github-installation-id",
			Usage:       "GitHub App installation ID",
			Destination: &c.InstallationID,
			Sources:     cli.EnvVars("GITRELAY_GITHUB_INSTALLATION_ID"),
		},
		&cli.StringFlag{
			Name:        "github-private-key",
			Usage:       "GitHub App private key (PEM)",
			Destination: &c.PrivateKey,
			Sources:     cli.EnvVars("GITRELAY_GITHUB_PRIVATE_KEY"),
		},
		&cli.StringFlag{
			Name:        "github-private-key-file",
			Usage:       "Path to GitHub App private key (PEM)",
			Destination: &c.PrivateKeyFile,
			Sources:     cli.EnvVars("GITRELAY_GITHUB_PRIVATE_KEY_FILE"),
		},
	}
}

// IsAppEnabled reports whether GitHub App credentials were given
func (c *GitHub) IsAppEnabled() bool {
	return c.AppID != 0
}

// TokenSource returns installation tokens of the configured GitHub App, or nil when no App is configured
func (c *GitHub) TokenSource() (interfaces.TokenSource, error) {
	if !c.IsAppEnabled() {
		return nil, nil
	}
	if c.InstallationID == 0 {
		return nil, goerr.New("github-installation-id is required with github-app-id",
			goerr.T(types.ErrTagConfiguration))
	}

	key := []byte(c.PrivateKey)
	if len(key) == 0 && c.PrivateKeyFile != "" {
		data, err := os.ReadFile(c.PrivateKeyFile)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read GitHub App private key",
				goerr.T(types.ErrTagConfiguration),
				goerr.V("path", c.PrivateKeyFile))
		}
		key = data
	}
	if len(key) == 0 {
		return nil, goerr.New("GitHub App private key is required",
			goerr.T(types.ErrTagConfiguration))
	}

	src, err := github.NewTokenSource(c.AppID, c.InstallationID, key)
	if err != nil {
		return nil, err
	}
	return src, nil
}
