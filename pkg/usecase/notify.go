package usecase

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"

	"github.com/m-mizutani/gitrelay/pkg/domain/interfaces"
	"github.com/m-mizutani/gitrelay/pkg/domain/model"
	"github.com/m-mizutani/gitrelay/pkg/utils/giturl"
)

const defaultNotifyConcurrency = 8

type notifyUseCase struct {
	concurrency int
}

type NotifyOption func(*notifyUseCase)

// WithNotifyConcurrency bounds how many jobs are examined at once
func WithNotifyConcurrency(n int) NotifyOption {
	return func(uc *notifyUseCase) {
		if n > 0 {
			uc.concurrency = n
		}
	}
}

// NewNotify creates a new instance of NotifyUseCase
func NewNotify(opts ...NotifyOption) interfaces.NotifyUseCase {
	uc := &notifyUseCase{concurrency: defaultNotifyConcurrency}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// notifyState collects per-job decisions from concurrent workers
type notifyState struct {
	mu         sync.Mutex
	seen       map[string]struct{}
	triggered  []string
	optedOut   []string
	unreadable []string
	failed     []string
}

// claim reports whether the caller is the first to trigger job name
func (s *notifyState) claim(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[name]; ok {
		return false
	}
	s.seen[name] = struct{}{}
	return true
}

func (s *notifyState) record(list *[]string, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*list = append(*list, name)
}

// Notify selects the jobs that use the notified repository and branches, and triggers a
// polling of each selected job exactly once. Only a failure to list jobs is returned as an error.
func (uc *notifyUseCase) Notify(ctx context.Context, req *model.NotificationRequest, registry interfaces.JobRegistry) (*model.DispatchOutcome, error) {
	requestID := req.ID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	logger := ctxlog.From(ctx).With("request_id", requestID)
	ctx = ctxlog.With(ctx, logger)

	jobs, err := registry.ListJobs(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list jobs",
			goerr.V("request_id", requestID),
			goerr.V("repository", req.RepositoryIdentifier))
	}

	branches := req.Branches()
	logger.Info("Processing commit notification",
		"repository", req.RepositoryIdentifier,
		"commit", req.CommitID,
		"branches", branches,
		"job_count", len(jobs),
	)

	state := &notifyState{seen: make(map[string]struct{})}
	trigger := model.TriggerRequest{
		RequestID: requestID,
		CommitID:  req.CommitID,
		Branches:  branches,
	}

	// Workers never return errors, so one job cannot cancel the scan of another
	var eg errgroup.Group
	eg.SetLimit(uc.concurrency)
	for _, job := range jobs {
		eg.Go(func() error {
			uc.examine(ctx, job, req.RepositoryIdentifier, branches, trigger, state)
			return nil
		})
	}
	_ = eg.Wait()

	outcome := &model.DispatchOutcome{
		RequestID:  requestID,
		Triggered:  sorted(state.triggered),
		OptedOut:   sorted(state.optedOut),
		Unreadable: sorted(state.unreadable),
		Failed:     sorted(state.failed),
	}

	logger.Info("Commit notification processed",
		"triggered", outcome.Triggered,
		"opted_out", outcome.OptedOut,
		"unreadable", outcome.Unreadable,
		"failed", outcome.Failed,
	)

	return outcome, nil
}

func (uc *notifyUseCase) examine(ctx context.Context, job interfaces.Job, repository string, branches []string, trigger model.TriggerRequest, state *notifyState) {
	logger := ctxlog.From(ctx).With("job", job.Name())

	remotes, err := job.Remotes()
	if err != nil {
		logger.Warn("Skipping job with unreadable remotes", "error", err)
		state.record(&state.unreadable, job.Name())
		return
	}

	var remoteNames []string
	for _, remote := range remotes {
		if giturl.Matches(repository, remote.URL) {
			remoteNames = append(remoteNames, remote.EffectiveName())
		}
	}
	if len(remoteNames) == 0 {
		return
	}

	if job.IsNotifyCommitDisabled() {
		logger.Info("Job opted out of commit notifications")
		state.record(&state.optedOut, job.Name())
		return
	}

	if len(branches) > 0 {
		specs, err := job.BranchSpecs()
		if err != nil {
			logger.Warn("Skipping job with unreadable branch specs", "error", err)
			state.record(&state.unreadable, job.Name())
			return
		}
		if !model.AnyBranchMatches(specs, branches, remoteNames) {
			logger.Debug("No branch spec matches notified branches", "branches", branches)
			return
		}
	}

	if !state.claim(job.Name()) {
		return
	}

	trigger.Job = job.Name()
	if err := job.TriggerPoll(ctx, trigger); err != nil {
		logger.Error("Failed to trigger polling", "error", err)
		state.record(&state.failed, job.Name())
		return
	}

	logger.Info("Scheduled polling", "remotes", remoteNames)
	state.record(&state.triggered, job.Name())
}

func sorted(s []string) []string {
	sort.Strings(s)
	return s
}
