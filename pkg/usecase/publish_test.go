package usecase_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/gitrelay/pkg/domain/model"
	"github.com/m-mizutani/gitrelay/pkg/usecase"
)

// fakeTransport is an in-memory GitTransport. Remote branch tips are keyed by
// "<url> <branch>" and parents records commit ancestry for fast-forward checks.
type fakeTransport struct {
	mu      sync.Mutex
	tags    map[string]string
	tips    map[string]string
	parents map[string]string
	notes   map[string]string
	calls   []string

	pushBranchFunc func(ctx context.Context, remote model.RemoteConfig, commit, branch string, force bool) error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		tags:    map[string]string{},
		tips:    map[string]string{},
		parents: map[string]string{},
		notes:   map[string]string{},
	}
}

func (f *fakeTransport) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeTransport) callsWithPrefix(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeTransport) TagExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.tags[name]
	return ok, nil
}

func (f *fakeTransport) CreateTag(ctx context.Context, name, message, commit string, force bool) error {
	f.record("create-tag " + name + " " + message)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tags[name]; ok && !force {
		return errors.New("tag already exists")
	}
	f.tags[name] = commit
	return nil
}

func (f *fakeTransport) PushTag(ctx context.Context, remote model.RemoteConfig, tag string, force bool) error {
	f.record("push-tag " + remote.EffectiveName() + " " + tag)
	return nil
}

func (f *fakeTransport) PushBranch(ctx context.Context, remote model.RemoteConfig, commit, branch string, force bool) error {
	f.record("push-branch " + remote.EffectiveName() + " " + branch)
	if f.pushBranchFunc != nil {
		return f.pushBranchFunc(ctx, remote, commit, branch, force)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	key := remote.URL + " " + branch
	if tip, ok := f.tips[key]; ok && !force && !f.isAncestor(tip, commit) {
		return errors.New("non-fast-forward update: refs/heads/" + branch)
	}
	f.tips[key] = commit
	return nil
}

func (f *fakeTransport) isAncestor(ancestor, commit string) bool {
	for c := commit; c != ""; c = f.parents[c] {
		if c == ancestor {
			return true
		}
	}
	return false
}

func (f *fakeTransport) AddNote(ctx context.Context, commit, note, namespace string, replace bool) error {
	f.record("add-note " + namespace + " " + note)
	f.mu.Lock()
	defer f.mu.Unlock()
	key := namespace + " " + commit
	if old, ok := f.notes[key]; ok && !replace {
		note = old + "\n" + note
	}
	f.notes[key] = note
	return nil
}

func (f *fakeTransport) PushNotes(ctx context.Context, remote model.RemoteConfig, namespace string, force bool) error {
	f.record("push-notes " + remote.EffectiveName() + " " + namespace)
	return nil
}

type staticResolver map[string]string

func (r staticResolver) Resolve(build *model.CompletedBuild) map[string]string {
	return r
}

func newBuild(kind model.BuildKind) *model.CompletedBuild {
	return &model.CompletedBuild{
		JobName: "app",
		Number:  12,
		Result:  model.ResultSuccess,
		Kind:    kind,
		Commit:  "c2",
		Remotes: []model.RemoteConfig{
			model.NewRemoteConfig("https://example.com/app.git", "origin", ""),
			model.NewRemoteConfig("https://mirror.example.com/app.git", "mirror", ""),
		},
	}
}

func TestPublish_MatrixBuildPushesOnce(t *testing.T) {
	transport := newFakeTransport()
	uc := usecase.NewPublish(transport, staticResolver{})
	policy := model.PublishPolicy{
		BranchesToPush: []model.BranchToPush{{RemoteName: "origin", BranchName: "integration"}},
	}

	// two axis runs complete before their parent
	for range 2 {
		result, err := uc.Publish(context.Background(), newBuild(model.BuildKindMatrixAxis), policy)
		gt.NoError(t, err)
		gt.V(t, result.State).Equal(model.PublishStateNoop)
		gt.V(t, result.Reason).Equal("matrix axis run")
	}

	result, err := uc.Publish(context.Background(), newBuild(model.BuildKindMatrixParent), policy)
	gt.NoError(t, err)
	gt.V(t, result.State).Equal(model.PublishStateSuccess)
	gt.A(t, transport.callsWithPrefix("push-branch")).Length(1)
}

func TestPublish_PushOnlyIfSuccess(t *testing.T) {
	transport := newFakeTransport()
	uc := usecase.NewPublish(transport, staticResolver{})
	policy := model.PublishPolicy{
		PushOnlyIfSuccess: true,
		BranchesToPush:    []model.BranchToPush{{RemoteName: "origin", BranchName: "integration"}},
	}

	build := newBuild(model.BuildKindStandalone)
	build.Result = model.ResultFailure

	result, err := uc.Publish(context.Background(), build, policy)
	gt.NoError(t, err)
	gt.V(t, result.State).Equal(model.PublishStateNoop)
	gt.False(t, result.Failed())
	gt.S(t, result.Reason).Contains("FAILURE")
	gt.A(t, transport.calls).Length(0)

	t.Run("unsuccessful build is pushed without the gate", func(t *testing.T) {
		policy.PushOnlyIfSuccess = false
		result, err := uc.Publish(context.Background(), build, policy)
		gt.NoError(t, err)
		gt.V(t, result.State).Equal(model.PublishStateSuccess)
		gt.A(t, transport.callsWithPrefix("push-branch")).Length(1)
	})
}

func TestPublish_ExistingTagIsPushedWithoutCreation(t *testing.T) {
	transport := newFakeTransport()
	transport.tags["v1.0"] = "c1"
	uc := usecase.NewPublish(transport, staticResolver{})
	policy := model.PublishPolicy{
		TagsToPush: []model.TagToPush{{RemoteName: "origin", TagName: "v1.0", CreateNewTag: false}},
	}

	for range 2 {
		result, err := uc.Publish(context.Background(), newBuild(model.BuildKindStandalone), policy)
		gt.NoError(t, err)
		gt.V(t, result.State).Equal(model.PublishStateSuccess)
	}

	gt.A(t, transport.callsWithPrefix("create-tag")).Length(0)
	gt.A(t, transport.callsWithPrefix("push-tag")).Length(2)
}

func TestPublish_TagRules(t *testing.T) {
	tests := []struct {
		name        string
		existing    bool
		tag         model.TagToPush
		wantStatus  model.ActionStatus
		wantCreated bool
	}{
		{
			name:        "create missing tag",
			tag:         model.TagToPush{TagName: "v2", CreateNewTag: true},
			wantStatus:  model.ActionSucceeded,
			wantCreated: true,
		},
		{
			name:       "missing tag without creation",
			tag:        model.TagToPush{TagName: "v2"},
			wantStatus: model.ActionFailed,
		},
		{
			name:       "existing tag without update",
			existing:   true,
			tag:        model.TagToPush{TagName: "v2", CreateNewTag: true},
			wantStatus: model.ActionFailed,
		},
		{
			name:        "update creates missing tag",
			tag:         model.TagToPush{TagName: "v2", ForceOverwrite: true},
			wantStatus:  model.ActionSucceeded,
			wantCreated: true,
		},
		{
			name:        "update moves existing tag",
			existing:    true,
			tag:         model.TagToPush{TagName: "v2", ForceOverwrite: true},
			wantStatus:  model.ActionSucceeded,
			wantCreated: true,
		},
		{
			name:       "missing tag with neither create nor update",
			tag:        model.TagToPush{TagName: "v2", CreateNewTag: false, ForceOverwrite: false},
			wantStatus: model.ActionFailed,
		},
		{
			name:        "existing tag with update",
			existing:    true,
			tag:         model.TagToPush{TagName: "v2", CreateNewTag: true, ForceOverwrite: true},
			wantStatus:  model.ActionSucceeded,
			wantCreated: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := newFakeTransport()
			if tt.existing {
				transport.tags["v2"] = "c1"
			}
			uc := usecase.NewPublish(transport, staticResolver{})

			result, err := uc.Publish(context.Background(), newBuild(model.BuildKindStandalone),
				model.PublishPolicy{TagsToPush: []model.TagToPush{tt.tag}})
			gt.NoError(t, err)
			gt.A(t, result.Outcomes).Length(1)
			gt.V(t, result.Outcomes[0].Status).Equal(tt.wantStatus)
			gt.V(t, result.Outcomes[0].RemoteName).Equal("origin")
			gt.V(t, len(transport.callsWithPrefix("create-tag")) == 1).Equal(tt.wantCreated)
			switch {
			case tt.wantCreated:
				gt.V(t, transport.tags["v2"]).Equal("c2")
			case tt.existing:
				gt.V(t, transport.tags["v2"]).Equal("c1")
			}
		})
	}
}

func TestPublish_ForcePushOverDivergedRemote(t *testing.T) {
	setup := func() (*fakeTransport, *model.CompletedBuild) {
		transport := newFakeTransport()
		// c2 is built on c0; the remote moved to c1, also on c0
		transport.parents["c1"] = "c0"
		transport.parents["c2"] = "c0"
		transport.tips["https://example.com/app.git integration"] = "c1"
		return transport, newBuild(model.BuildKindStandalone)
	}
	branches := []model.BranchToPush{{RemoteName: "origin", BranchName: "integration"}}

	t.Run("forced push replaces the remote tip", func(t *testing.T) {
		transport, build := setup()
		uc := usecase.NewPublish(transport, staticResolver{})

		result, err := uc.Publish(context.Background(), build, model.PublishPolicy{ForcePush: true, BranchesToPush: branches})
		gt.NoError(t, err)
		gt.V(t, result.State).Equal(model.PublishStateSuccess)
		gt.V(t, transport.tips["https://example.com/app.git integration"]).Equal("c2")
	})

	t.Run("unforced push fails and keeps the remote tip", func(t *testing.T) {
		transport, build := setup()
		uc := usecase.NewPublish(transport, staticResolver{})

		result, err := uc.Publish(context.Background(), build, model.PublishPolicy{BranchesToPush: branches})
		gt.NoError(t, err)
		gt.V(t, result.State).Equal(model.PublishStatePartialFailure)
		gt.V(t, result.Outcomes[0].Status).Equal(model.ActionFailed)
		gt.S(t, result.Outcomes[0].Error).Contains("non-fast-forward")
		gt.V(t, transport.tips["https://example.com/app.git integration"]).Equal("c1")
	})

	t.Run("fast-forward push succeeds without force", func(t *testing.T) {
		transport, build := setup()
		transport.tips["https://example.com/app.git integration"] = "c0"
		uc := usecase.NewPublish(transport, staticResolver{})

		result, err := uc.Publish(context.Background(), build, model.PublishPolicy{BranchesToPush: branches})
		gt.NoError(t, err)
		gt.V(t, result.State).Equal(model.PublishStateSuccess)
	})
}

func TestPublish_ExpandsVariables(t *testing.T) {
	transport := newFakeTransport()
	uc := usecase.NewPublish(transport, staticResolver{"BRANCH": "master", "NOTE_TEXT": "built"})
	policy := model.PublishPolicy{
		TagsToPush: []model.TagToPush{
			{RemoteName: "origin", TagName: "${BRANCH}-tag", TagMessage: "${BRANCH} tag message", CreateNewTag: false, ForceOverwrite: true},
			{RemoteName: "origin", TagName: "${UNSET_VAR}-tag", CreateNewTag: true},
		},
		BranchesToPush: []model.BranchToPush{{RemoteName: "origin", BranchName: "${BRANCH}-branch"}},
		NotesToPush:    []model.NoteToPush{{RemoteName: "origin", NoteMsg: "note for ${NOTE_TEXT}"}},
	}

	result, err := uc.Publish(context.Background(), newBuild(model.BuildKindStandalone), policy)
	gt.NoError(t, err)
	gt.V(t, result.State).Equal(model.PublishStateSuccess)

	gt.V(t, transport.tags["master-tag"]).Equal("c2")
	gt.V(t, transport.tags["${UNSET_VAR}-tag"]).Equal("c2")
	gt.V(t, transport.callsWithPrefix("create-tag master-tag")).Equal([]string{"create-tag master-tag master tag message"})
	gt.V(t, transport.callsWithPrefix("push-branch")).Equal([]string{"push-branch origin master-branch"})
	gt.V(t, transport.notes["refs/notes/commits c2"]).Equal("note for built")

	targets := make([]string, 0, len(result.Outcomes))
	for _, o := range result.Outcomes {
		targets = append(targets, o.Target)
	}
	gt.V(t, targets).Equal([]string{"master-tag", "${UNSET_VAR}-tag", "master-branch", "refs/notes/commits"})
}

func TestPublish_KindsRunInOrder(t *testing.T) {
	transport := newFakeTransport()
	uc := usecase.NewPublish(transport, staticResolver{}, usecase.WithRemoteParallelism(2))

	build := newBuild(model.BuildKindStandalone)
	build.MergeTarget = &model.MergeTarget{RemoteName: "origin", BranchName: "master"}
	policy := model.PublishPolicy{
		PushMerge:      true,
		NotesToPush:    []model.NoteToPush{{RemoteName: "origin", NoteMsg: "n", NoteNamespace: "ci"}},
		BranchesToPush: []model.BranchToPush{{RemoteName: "mirror", BranchName: "b"}},
		TagsToPush:     []model.TagToPush{{RemoteName: "origin", TagName: "t", CreateNewTag: true}},
	}

	result, err := uc.Publish(context.Background(), build, policy)
	gt.NoError(t, err)

	var kinds []model.PushKind
	for _, o := range result.Outcomes {
		kinds = append(kinds, o.Kind)
	}
	gt.V(t, kinds).Equal([]model.PushKind{model.PushKindMerge, model.PushKindTag, model.PushKindBranch, model.PushKindNote})

	gt.V(t, transport.calls).Equal([]string{
		"push-branch origin master",
		"create-tag t tagging with t",
		"push-tag origin t",
		"push-branch mirror b",
		"add-note refs/notes/ci n",
		"push-notes origin refs/notes/ci",
	})
}

func TestPublish_FailedActionDoesNotStopOthers(t *testing.T) {
	transport := newFakeTransport()
	uc := usecase.NewPublish(transport, staticResolver{})
	policy := model.PublishPolicy{
		BranchesToPush: []model.BranchToPush{
			{RemoteName: "unknown", BranchName: "a"},
			{RemoteName: "origin", BranchName: "b"},
		},
		NotesToPush: []model.NoteToPush{{RemoteName: "mirror", NoteMsg: "done"}},
	}

	result, err := uc.Publish(context.Background(), newBuild(model.BuildKindStandalone), policy)
	gt.NoError(t, err)
	gt.V(t, result.State).Equal(model.PublishStatePartialFailure)
	gt.A(t, result.Outcomes).Length(3)

	gt.V(t, result.Outcomes[0].Status).Equal(model.ActionFailed)
	gt.S(t, result.Outcomes[0].Error).Contains("unknown remote")
	gt.S(t, result.Outcomes[0].String()).Contains("unknown")
	gt.V(t, result.Outcomes[1].Status).Equal(model.ActionSucceeded)
	gt.V(t, result.Outcomes[2].Status).Equal(model.ActionSucceeded)
}

func TestPublish_TimeoutFailsOnlyThatAction(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	transport := newFakeTransport()
	transport.pushBranchFunc = func(ctx context.Context, remote model.RemoteConfig, commit, branch string, force bool) error {
		if remote.EffectiveName() == "mirror" {
			// ignores its context, like a hung network call
			<-release
		}
		return nil
	}
	uc := usecase.NewPublish(transport, staticResolver{}, usecase.WithPushTimeout(50*time.Millisecond))
	policy := model.PublishPolicy{
		BranchesToPush: []model.BranchToPush{
			{RemoteName: "mirror", BranchName: "a"},
			{RemoteName: "origin", BranchName: "b"},
		},
		NotesToPush: []model.NoteToPush{{RemoteName: "origin", NoteMsg: "after"}},
	}

	result, err := uc.Publish(context.Background(), newBuild(model.BuildKindStandalone), policy)
	gt.NoError(t, err)
	gt.V(t, result.State).Equal(model.PublishStatePartialFailure)
	gt.V(t, result.Outcomes[0].Status).Equal(model.ActionFailed)
	gt.S(t, result.Outcomes[0].Error).Contains("timed out")
	gt.V(t, result.Outcomes[1].Status).Equal(model.ActionSucceeded)
	gt.V(t, result.Outcomes[2].Status).Equal(model.ActionSucceeded)
}

func TestPublish_NotesAppendUnlessReplaced(t *testing.T) {
	transport := newFakeTransport()
	transport.notes["refs/notes/commits c2"] = "first"
	uc := usecase.NewPublish(transport, staticResolver{})

	_, err := uc.Publish(context.Background(), newBuild(model.BuildKindStandalone), model.PublishPolicy{
		NotesToPush: []model.NoteToPush{{RemoteName: "origin", NoteMsg: "second"}},
	})
	gt.NoError(t, err)
	gt.V(t, transport.notes["refs/notes/commits c2"]).Equal("first\nsecond")

	_, err = uc.Publish(context.Background(), newBuild(model.BuildKindStandalone), model.PublishPolicy{
		NotesToPush: []model.NoteToPush{{RemoteName: "origin", NoteMsg: "only", NoteReplace: true}},
	})
	gt.NoError(t, err)
	gt.V(t, transport.notes["refs/notes/commits c2"]).Equal("only")
}

func TestPublish_InvalidBuildIsFatal(t *testing.T) {
	uc := usecase.NewPublish(newFakeTransport(), staticResolver{})

	_, err := uc.Publish(context.Background(), nil, model.PublishPolicy{})
	gt.Error(t, err)

	build := newBuild(model.BuildKindStandalone)
	build.Commit = ""
	_, err = uc.Publish(context.Background(), build, model.PublishPolicy{})
	gt.Error(t, err)
}
