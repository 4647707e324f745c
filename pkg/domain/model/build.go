package model

// BuildResult is the outcome of a completed build
type BuildResult string

const (
	ResultSuccess  BuildResult = "SUCCESS"
	ResultUnstable BuildResult = "UNSTABLE"
	ResultFailure  BuildResult = "FAILURE"
	ResultAborted  BuildResult = "ABORTED"
	ResultNotBuilt BuildResult = "NOT_BUILT"
)

// BuildKind tells the publisher where a build unit sits in a matrix
type BuildKind string

const (
	BuildKindStandalone   BuildKind = "standalone"
	BuildKindMatrixParent BuildKind = "matrix-parent"
	BuildKindMatrixAxis   BuildKind = "matrix-axis"
)

// MergeTarget is the branch a pre-build merge was made into
type MergeTarget struct {
	RemoteName string `json:"remote" toml:"remote" yaml:"remote"`
	BranchName string `json:"branch" toml:"branch" yaml:"branch"`
}

// CompletedBuild describes a finished build unit handed to the publisher by the host
type CompletedBuild struct {
	JobName string
	Number  int
	Result  BuildResult
	Kind    BuildKind

	// Commit is the revision this build unit actually built
	Commit string
	// Branch is the branch the commit was built from, if known
	Branch string

	Remotes     []RemoteConfig
	MergeTarget *MergeTarget

	// Characteristic holds build-identity variables that take precedence over inherited ones
	Characteristic map[string]string
}

// IsAggregationRoot reports whether this build unit is where publishing happens.
// Per-axis runs of a matrix build are not; their parent is.
func (b *CompletedBuild) IsAggregationRoot() bool {
	return b.Kind != BuildKindMatrixAxis
}

// IsSuccess reports whether the build result is SUCCESS
func (b *CompletedBuild) IsSuccess() bool {
	return b.Result == ResultSuccess
}
