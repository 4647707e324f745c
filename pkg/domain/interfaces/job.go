package interfaces

import (
	"context"

	"github.com/m-mizutani/gitrelay/pkg/domain/model"
)

// JobRegistry enumerates the jobs that may be notified of commits
type JobRegistry interface {
	ListJobs(ctx context.Context) ([]Job, error)
}

// Job is a configured build job as seen by the notification dispatcher.
// Remotes and BranchSpecs may fail independently for a single job whose configuration
// cannot be read.
type Job interface {
	Name() string
	Remotes() ([]model.RemoteConfig, error)
	BranchSpecs() ([]model.BranchSpec, error)
	IsNotifyCommitDisabled() bool

	// TriggerPoll schedules a polling of the job's repositories
	TriggerPoll(ctx context.Context, req model.TriggerRequest) error
}
