package config

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/gitrelay/pkg/domain/types"
	"github.com/m-mizutani/gitrelay/pkg/infra/jobfile"
)

// Registry holds job registry configuration
type Registry struct {
	JobsFile       string
	TriggerTimeout time.Duration
}

// Flags returns CLI flags for registry configuration
func (c *Registry) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "jobs-file",
			Aliases:     []string{"j"},
			Usage:       "Jobs file (.toml, .yaml or .yml)",
			Destination: &c.JobsFile,
			Sources:     cli.EnvVars("GITRELAY_JOBS_FILE"),
		},
		&cli.DurationFlag{
			Name:        "trigger-timeout",
			Usage:       "Timeout of a job trigger request",
			Value:       30 * time.Second,
			Destination: &c.TriggerTimeout,
			Sources:     cli.EnvVars("GITRELAY_TRIGGER_TIMEOUT"),
		},
	}
}

// New creates the job registry
func (c *Registry) New() (*jobfile.Registry, error) {
	if c.JobsFile == "" {
		return nil, goerr.New("jobs-file is required", goerr.T(types.ErrTagConfiguration))
	}
	return jobfile.New(c.JobsFile, jobfile.WithTriggerTimeout(c.TriggerTimeout)), nil
}
