package interfaces

import (
	"context"

	"github.com/m-mizutani/gitrelay/pkg/domain/model"
)

// GitTransport performs the local and remote git operations needed to publish a build.
// Local writes (tags, notes) act on the build workspace repository.
type GitTransport interface {
	TagExists(ctx context.Context, name string) (bool, error)
	// CreateTag creates an annotated tag at commit. force moves an existing tag.
	CreateTag(ctx context.Context, name, message, commit string, force bool) error
	PushTag(ctx context.Context, remote model.RemoteConfig, tag string, force bool) error
	PushBranch(ctx context.Context, remote model.RemoteConfig, commit, branch string, force bool) error
	// AddNote attaches note to commit in the notes namespace, appending to an existing
	// note unless replace is set.
	AddNote(ctx context.Context, commit, note, namespace string, replace bool) error
	PushNotes(ctx context.Context, remote model.RemoteConfig, namespace string, force bool) error
}

// EnvironmentResolver builds the variable set used to expand names and messages of a build
type EnvironmentResolver interface {
	Resolve(build *model.CompletedBuild) map[string]string
}

// TokenSource provides credentials for pushing to hosted remotes
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}
