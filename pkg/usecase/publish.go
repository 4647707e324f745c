package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"

	"github.com/m-mizutani/gitrelay/pkg/domain/interfaces"
	"github.com/m-mizutani/gitrelay/pkg/domain/model"
	"github.com/m-mizutani/gitrelay/pkg/domain/types"
	"github.com/m-mizutani/gitrelay/pkg/infra/env"
	"github.com/m-mizutani/gitrelay/pkg/utils/errutil"
)

const (
	DefaultPushTimeout       = 5 * time.Minute
	defaultRemoteParallelism = 4
)

type publishUseCase struct {
	transport   interfaces.GitTransport
	resolver    interfaces.EnvironmentResolver
	pushTimeout time.Duration
	parallelism int
}

type PublishOption func(*publishUseCase)

// WithPushTimeout bounds every single git operation of a publish run
func WithPushTimeout(d time.Duration) PublishOption {
	return func(uc *publishUseCase) {
		if d > 0 {
			uc.pushTimeout = d
		}
	}
}

// WithRemoteParallelism sets how many remotes are pushed to at once within one action kind
func WithRemoteParallelism(n int) PublishOption {
	return func(uc *publishUseCase) {
		if n > 0 {
			uc.parallelism = n
		}
	}
}

// NewPublish creates a new instance of PublishUseCase
func NewPublish(transport interfaces.GitTransport, resolver interfaces.EnvironmentResolver, opts ...PublishOption) interfaces.PublishUseCase {
	uc := &publishUseCase{
		transport:   transport,
		resolver:    resolver,
		pushTimeout: DefaultPushTimeout,
		parallelism: defaultRemoteParallelism,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// publishRun carries the per-call state of one Publish invocation
type publishRun struct {
	build  *model.CompletedBuild
	policy model.PublishPolicy
	vars   map[string]string
}

// Publish pushes the configured merge result, tags, branches and notes of a completed build.
// Kinds are processed strictly in that order. A failed action does not stop the others; it is
// reported in the result. Only a build without job name or commit is an error.
func (uc *publishUseCase) Publish(ctx context.Context, build *model.CompletedBuild, policy model.PublishPolicy) (*model.PublishResult, error) {
	if build == nil {
		return nil, goerr.New("no build to publish", goerr.T(types.ErrTagConfiguration))
	}
	if build.JobName == "" || build.Commit == "" {
		return nil, goerr.New("build has no job name or commit",
			goerr.T(types.ErrTagConfiguration),
			goerr.V("job", build.JobName),
			goerr.V("commit", build.Commit),
			goerr.V("number", build.Number))
	}

	logger := ctxlog.From(ctx).With("job", build.JobName, "build", build.Number)
	ctx = ctxlog.With(ctx, logger)

	if !build.IsAggregationRoot() {
		logger.Debug("Skipping publish of matrix axis run")
		return model.NewNoopResult("matrix axis run"), nil
	}
	if policy.PushOnlyIfSuccess && !build.IsSuccess() {
		logger.Info("Skipping publish of unsuccessful build", "result", build.Result)
		return model.NewNoopResult(fmt.Sprintf("build result is %s", build.Result)), nil
	}

	run := &publishRun{
		build:  build,
		policy: policy,
		vars:   uc.resolver.Resolve(build),
	}

	var groups [][]model.PushAction
	if policy.PushMerge && build.MergeTarget != nil {
		groups = append(groups, []model.PushAction{model.NewMergeAction(*build.MergeTarget)})
	}
	groups = append(groups, policy.Actions()...)

	result := &model.PublishResult{State: model.PublishStateSuccess}
	for _, group := range groups {
		result.Outcomes = append(result.Outcomes, uc.runGroup(ctx, run, group)...)
	}
	if result.Failed() {
		result.State = model.PublishStatePartialFailure
	}

	logger.Info("Publish finished",
		"state", result.State,
		"actions", len(result.Outcomes),
	)
	return result, nil
}

// runGroup runs actions of one kind. Actions on the same remote run in configuration order;
// different remotes may run concurrently. Outcomes keep configuration order.
func (uc *publishUseCase) runGroup(ctx context.Context, run *publishRun, actions []model.PushAction) []model.ActionOutcome {
	if len(actions) == 0 {
		return nil
	}

	var remotes []string
	byRemote := make(map[string][]int)
	for i, action := range actions {
		name := action.RemoteName
		if name == "" {
			name = model.DefaultRemoteName
		}
		if _, ok := byRemote[name]; !ok {
			remotes = append(remotes, name)
		}
		byRemote[name] = append(byRemote[name], i)
	}

	outcomes := make([]model.ActionOutcome, len(actions))
	var eg errgroup.Group
	eg.SetLimit(uc.parallelism)
	for _, remote := range remotes {
		eg.Go(func() error {
			for _, i := range byRemote[remote] {
				outcomes[i] = uc.runAction(ctx, run, actions[i])
			}
			return nil
		})
	}
	_ = eg.Wait()

	return outcomes
}

func (uc *publishUseCase) runAction(ctx context.Context, run *publishRun, action model.PushAction) model.ActionOutcome {
	outcome := model.ActionOutcome{
		Kind:       action.Kind,
		RemoteName: action.RemoteName,
		Target:     uc.target(run, action),
	}
	if outcome.RemoteName == "" {
		outcome.RemoteName = model.DefaultRemoteName
	}

	if err := ctx.Err(); err != nil {
		outcome.Status = model.ActionSkipped
		outcome.Error = err.Error()
		return outcome
	}

	start := time.Now()
	err := uc.execute(ctx, run, action, outcome.Target)
	outcome.Duration = time.Since(start)

	logger := ctxlog.From(ctx).With(
		"kind", outcome.Kind,
		"remote", outcome.RemoteName,
		"target", outcome.Target,
	)
	if err != nil {
		outcome.Status = model.ActionFailed
		outcome.Error = err.Error()
		errutil.Handle(ctx, "Failed to publish", goerr.Wrap(err, "push action failed",
			goerr.V("kind", outcome.Kind),
			goerr.V("remote", outcome.RemoteName),
			goerr.V("target", outcome.Target)))
		return outcome
	}

	outcome.Status = model.ActionSucceeded
	logger.Info("Published", "duration", outcome.Duration)
	return outcome
}

// target returns the expanded name the action pushes
func (uc *publishUseCase) target(run *publishRun, action model.PushAction) string {
	switch action.Kind {
	case model.PushKindTag:
		return env.Expand(action.Tag.TagName, run.vars)
	case model.PushKindBranch, model.PushKindMerge:
		return env.Expand(action.Branch.BranchName, run.vars)
	case model.PushKindNote:
		return model.NotesRef(env.Expand(action.Note.NoteNamespace, run.vars))
	default:
		return ""
	}
}

func (uc *publishUseCase) execute(ctx context.Context, run *publishRun, action model.PushAction, target string) error {
	remote, ok := model.FindRemote(run.build.Remotes, action.RemoteName)
	if !ok {
		return goerr.New("unknown remote",
			goerr.T(types.ErrTagConfiguration),
			goerr.V("remote", action.RemoteName))
	}
	if target == "" {
		return goerr.New("empty target name", goerr.T(types.ErrTagConfiguration))
	}

	switch action.Kind {
	case model.PushKindTag:
		return uc.pushTag(ctx, run, remote, *action.Tag, target)
	case model.PushKindBranch, model.PushKindMerge:
		return uc.guard(ctx, "push branch", func(ctx context.Context) error {
			return uc.transport.PushBranch(ctx, remote, run.build.Commit, target, run.policy.ForcePush)
		})
	case model.PushKindNote:
		return uc.pushNote(ctx, run, remote, *action.Note, target)
	default:
		return goerr.New("unsupported push action", goerr.V("kind", action.Kind))
	}
}

func (uc *publishUseCase) pushTag(ctx context.Context, run *publishRun, remote model.RemoteConfig, tag model.TagToPush, name string) error {
	var exists bool
	if err := uc.guard(ctx, "lookup tag", func(ctx context.Context) error {
		var err error
		exists, err = uc.transport.TagExists(ctx, name)
		return err
	}); err != nil {
		return err
	}

	// updateTag alone also creates a missing tag, and moves an existing one
	switch {
	case !exists && !tag.CreateNewTag && !tag.ForceOverwrite:
		return goerr.New("tag does not exist and tag creation is disabled",
			goerr.T(types.ErrTagConfiguration),
			goerr.V("tag", name))

	case exists && tag.CreateNewTag && !tag.ForceOverwrite:
		return goerr.New("tag already exists and tag update is disabled",
			goerr.T(types.ErrTagConfiguration),
			goerr.V("tag", name))

	case tag.CreateNewTag || tag.ForceOverwrite:
		message := env.Expand(tag.TagMessage, run.vars)
		if message == "" {
			message = "tagging with " + name
		}
		if err := uc.guard(ctx, "create tag", func(ctx context.Context) error {
			return uc.transport.CreateTag(ctx, name, message, run.build.Commit, tag.ForceOverwrite)
		}); err != nil {
			return err
		}
	}

	force := tag.ForceOverwrite || run.policy.ForcePush
	return uc.guard(ctx, "push tag", func(ctx context.Context) error {
		return uc.transport.PushTag(ctx, remote, name, force)
	})
}

func (uc *publishUseCase) pushNote(ctx context.Context, run *publishRun, remote model.RemoteConfig, note model.NoteToPush, ref string) error {
	message := env.Expand(note.NoteMsg, run.vars)

	if err := uc.guard(ctx, "add note", func(ctx context.Context) error {
		return uc.transport.AddNote(ctx, run.build.Commit, message, ref, note.NoteReplace)
	}); err != nil {
		return err
	}

	return uc.guard(ctx, "push notes", func(ctx context.Context) error {
		return uc.transport.PushNotes(ctx, remote, ref, run.policy.ForcePush)
	})
}

// guard runs fn under the push timeout. It returns once the deadline passes even when fn
// does not observe its context.
func (uc *publishUseCase) guard(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, uc.pushTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		if err != nil && !goerr.HasTag(err, types.ErrTagConfiguration) && !goerr.HasTag(err, types.ErrTagTransport) {
			return goerr.Wrap(err, op+" failed", goerr.T(types.ErrTagTransport))
		}
		return err

	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return goerr.Wrap(ctx.Err(), op+" timed out",
				goerr.T(types.ErrTagTimeout),
				goerr.V("timeout", uc.pushTimeout))
		}
		return goerr.Wrap(ctx.Err(), op+" cancelled", goerr.T(types.ErrTagTransport))
	}
}
