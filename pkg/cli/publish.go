package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fatih/color"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/gitrelay/pkg/cli/config"
	"github.com/m-mizutani/gitrelay/pkg/domain/model"
	"github.com/m-mizutani/gitrelay/pkg/domain/types"
	"github.com/m-mizutani/gitrelay/pkg/infra/env"
	gitinfra "github.com/m-mizutani/gitrelay/pkg/infra/git"
	"github.com/m-mizutani/gitrelay/pkg/usecase"
)

// buildFlags holds the completed build unit described on the command line
type buildFlags struct {
	Job         string
	Workspace   string
	Commit      string
	Result      string
	Kind        string
	Branch      string
	Number      int
	MergeRemote string
	MergeBranch string
	Vars        []string
}

func (b *buildFlags) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "job",
			Usage:       "Name of the job in the jobs file",
			Required:    true,
			Destination: &b.Job,
			Sources:     cli.EnvVars("JOB_NAME"),
		},
		&cli.StringFlag{
			Name:        "workspace",
			Usage:       "Local repository the build ran in",
			Value:       ".",
			Destination: &b.Workspace,
			Sources:     cli.EnvVars("WORKSPACE"),
		},
		&cli.StringFlag{
			Name:        "commit",
			Usage:       "Commit the build unit built",
			Required:    true,
			Destination: &b.Commit,
			Sources:     cli.EnvVars("GIT_COMMIT"),
		},
		&cli.StringFlag{
			Name:        "result",
			Usage:       "Build result (SUCCESS, UNSTABLE, FAILURE, ABORTED, NOT_BUILT)",
			Value:       string(model.ResultSuccess),
			Destination: &b.Result,
			Sources:     cli.EnvVars("BUILD_RESULT"),
		},
		&cli.StringFlag{
			Name:        "kind",
			Usage:       "Build unit kind (standalone, matrix-parent, matrix-axis)",
			Value:       string(model.BuildKindStandalone),
			Destination: &b.Kind,
		},
		&cli.StringFlag{
			Name:        "branch",
			Usage:       "Branch the commit was built from",
			Destination: &b.Branch,
			Sources:     cli.EnvVars("GIT_BRANCH"),
		},
		&cli.IntFlag{
			Name:        "number",
			Usage:       "Build number",
			Destination: &b.Number,
			Sources:     cli.EnvVars("BUILD_NUMBER"),
		},
		&cli.StringFlag{
			Name:        "merge-remote",
			Usage:       "Remote of the pre-build merge target",
			Destination: &b.MergeRemote,
		},
		&cli.StringFlag{
			Name:        "merge-branch",
			Usage:       "Branch of the pre-build merge target",
			Destination: &b.MergeBranch,
		},
		&cli.StringSliceFlag{
			Name:        "var",
			Usage:       "Build variable as KEY=VALUE, overriding the environment",
			Destination: &b.Vars,
		},
	}
}

var buildResults = map[model.BuildResult]bool{
	model.ResultSuccess:  true,
	model.ResultUnstable: true,
	model.ResultFailure:  true,
	model.ResultAborted:  true,
	model.ResultNotBuilt: true,
}

var buildKinds = map[model.BuildKind]bool{
	model.BuildKindStandalone:   true,
	model.BuildKindMatrixParent: true,
	model.BuildKindMatrixAxis:   true,
}

// Build converts the flags into a CompletedBuild with the given remotes
func (b *buildFlags) Build(remotes []model.RemoteConfig) (*model.CompletedBuild, error) {
	result := model.BuildResult(strings.ToUpper(b.Result))
	if !buildResults[result] {
		return nil, goerr.New("invalid build result", goerr.T(types.ErrTagConfiguration), goerr.V("result", b.Result))
	}
	kind := model.BuildKind(strings.ToLower(b.Kind))
	if !buildKinds[kind] {
		return nil, goerr.New("invalid build kind", goerr.T(types.ErrTagConfiguration), goerr.V("kind", b.Kind))
	}

	build := &model.CompletedBuild{
		JobName: b.Job,
		Number:  b.Number,
		Result:  result,
		Kind:    kind,
		Commit:  b.Commit,
		Branch:  b.Branch,
		Remotes: remotes,
	}

	if b.MergeBranch != "" {
		build.MergeTarget = &model.MergeTarget{
			RemoteName: b.MergeRemote,
			BranchName: b.MergeBranch,
		}
		if build.MergeTarget.RemoteName == "" {
			build.MergeTarget.RemoteName = model.DefaultRemoteName
		}
	}

	for _, v := range b.Vars {
		key, value, ok := strings.Cut(v, "=")
		if !ok || key == "" {
			return nil, goerr.New("invalid build variable, KEY=VALUE expected",
				goerr.T(types.ErrTagConfiguration), goerr.V("var", v))
		}
		if build.Characteristic == nil {
			build.Characteristic = make(map[string]string)
		}
		build.Characteristic[key] = value
	}

	return build, nil
}

func cmdPublish() *cli.Command {
	var (
		registryCfg config.Registry
		githubCfg   config.GitHub
		gitCfg      config.Git
		build       buildFlags
		jsonOutput  bool
	)

	flags := append(registryCfg.Flags(), githubCfg.Flags()...)
	flags = append(flags, gitCfg.Flags()...)
	flags = append(flags, build.Flags()...)
	flags = append(flags, &cli.BoolFlag{
		Name:        "json",
		Usage:       "Print the publish result as JSON",
		Destination: &jsonOutput,
	})

	return &cli.Command{
		Name:  "publish",
		Usage: "Push tags, branches and notes for a completed build",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := ctxlog.From(ctx)

			registry, err := registryCfg.New()
			if err != nil {
				return err
			}
			job, err := registry.Lookup(ctx, build.Job)
			if err != nil {
				return err
			}
			remotes, err := job.Remotes()
			if err != nil {
				return goerr.Wrap(err, "failed to read remotes of job", goerr.V("job", build.Job))
			}
			policy, err := job.PublishPolicy()
			if err != nil {
				return goerr.Wrap(err, "failed to read publisher of job", goerr.V("job", build.Job))
			}

			completed, err := build.Build(remotes)
			if err != nil {
				return err
			}

			tokens, err := githubCfg.TokenSource()
			if err != nil {
				return err
			}
			client, err := gitinfra.Open(build.Workspace, gitinfra.WithAuth(gitCfg.Auth(tokens)))
			if err != nil {
				return err
			}

			logger.Info("Publishing build",
				slog.String("job", completed.JobName),
				slog.Int("number", completed.Number),
				slog.String("commit", completed.Commit),
				slog.Any("git", gitCfg),
			)

			uc := usecase.NewPublish(client, env.New(), gitCfg.PublishOptions()...)
			result, err := uc.Publish(ctx, completed, policy)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(c.Root().Writer)
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return goerr.Wrap(err, "failed to encode publish result")
				}
			} else {
				printPublishResult(c, result)
			}

			if result.Failed() {
				return goerr.New("publish failed", goerr.V("job", completed.JobName), goerr.V("state", result.State))
			}
			return nil
		},
	}
}

func printPublishResult(c *cli.Command, result *model.PublishResult) {
	w := c.Root().Writer
	if result.State == model.PublishStateNoop {
		fmt.Fprintf(w, "Nothing published: %s\n", result.Reason)
		return
	}

	for _, o := range result.Outcomes {
		switch o.Status {
		case model.ActionSucceeded:
			color.New(color.FgGreen).Fprintln(w, o.String())
		case model.ActionFailed:
			color.New(color.FgRed).Fprintln(w, o.String())
		default:
			color.New(color.FgYellow).Fprintln(w, o.String())
		}
	}
}
