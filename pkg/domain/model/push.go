package model

import "strings"

// PushKind discriminates the variants of PushAction
type PushKind string

const (
	PushKindMerge  PushKind = "merge"
	PushKindTag    PushKind = "tag"
	PushKindBranch PushKind = "branch"
	PushKindNote   PushKind = "note"
)

// DefaultNotesRef is the namespace used when a note does not name one
const DefaultNotesRef = "refs/notes/commits"

const notesRefPrefix = "refs/notes/"

// TagToPush creates (optionally) and pushes a tag pointing at the built commit
type TagToPush struct {
	RemoteName     string `json:"targetRepoName" toml:"targetRepoName" yaml:"targetRepoName"`
	TagName        string `json:"tagName" toml:"tagName" yaml:"tagName"`
	TagMessage     string `json:"tagMessage,omitempty" toml:"tagMessage,omitempty" yaml:"tagMessage,omitempty"`
	CreateNewTag   bool   `json:"createTag" toml:"createTag" yaml:"createTag"`
	ForceOverwrite bool   `json:"updateTag" toml:"updateTag" yaml:"updateTag"`
}

// BranchToPush pushes the built commit to a branch on the remote
type BranchToPush struct {
	RemoteName string `json:"targetRepoName" toml:"targetRepoName" yaml:"targetRepoName"`
	BranchName string `json:"branchName" toml:"branchName" yaml:"branchName"`
}

// NoteToPush attaches a note to the built commit and pushes the notes ref
type NoteToPush struct {
	RemoteName    string `json:"targetRepoName" toml:"targetRepoName" yaml:"targetRepoName"`
	NoteMsg       string `json:"noteMsg" toml:"noteMsg" yaml:"noteMsg"`
	NoteNamespace string `json:"noteNamespace,omitempty" toml:"noteNamespace,omitempty" yaml:"noteNamespace,omitempty"`
	NoteReplace   bool   `json:"noteReplace" toml:"noteReplace" yaml:"noteReplace"`
}

// NotesRef returns the fully qualified notes reference for the namespace
func (n NoteToPush) NotesRef() string {
	return NotesRef(n.NoteNamespace)
}

// NotesRef qualifies a notes namespace: "" is refs/notes/commits, "foo" is refs/notes/foo
func NotesRef(namespace string) string {
	namespace = strings.TrimSpace(namespace)
	switch {
	case namespace == "":
		return DefaultNotesRef
	case strings.HasPrefix(namespace, notesRefPrefix):
		return namespace
	default:
		return notesRefPrefix + strings.TrimPrefix(namespace, "/")
	}
}

// PushAction is one entry of work for the publisher. Exactly one of Tag, Branch or Note is
// set, selected by Kind. Merge actions carry a Branch naming the merge target.
type PushAction struct {
	Kind       PushKind
	RemoteName string
	Tag        *TagToPush
	Branch     *BranchToPush
	Note       *NoteToPush
}

func NewTagAction(t TagToPush) PushAction {
	return PushAction{Kind: PushKindTag, RemoteName: t.RemoteName, Tag: &t}
}

func NewBranchAction(b BranchToPush) PushAction {
	return PushAction{Kind: PushKindBranch, RemoteName: b.RemoteName, Branch: &b}
}

func NewNoteAction(n NoteToPush) PushAction {
	return PushAction{Kind: PushKindNote, RemoteName: n.RemoteName, Note: &n}
}

func NewMergeAction(target MergeTarget) PushAction {
	return PushAction{
		Kind:       PushKindMerge,
		RemoteName: target.RemoteName,
		Branch:     &BranchToPush{RemoteName: target.RemoteName, BranchName: target.BranchName},
	}
}

// PublishPolicy is the publisher configuration of a job
type PublishPolicy struct {
	PushOnlyIfSuccess bool           `json:"pushOnlyIfSuccess" toml:"pushOnlyIfSuccess" yaml:"pushOnlyIfSuccess"`
	PushMerge         bool           `json:"pushMerge" toml:"pushMerge" yaml:"pushMerge"`
	ForcePush         bool           `json:"forcePush" toml:"forcePush" yaml:"forcePush"`
	TagsToPush        []TagToPush    `json:"tagsToPush,omitempty" toml:"tagsToPush,omitempty" yaml:"tagsToPush,omitempty"`
	BranchesToPush    []BranchToPush `json:"branchesToPush,omitempty" toml:"branchesToPush,omitempty" yaml:"branchesToPush,omitempty"`
	NotesToPush       []NoteToPush   `json:"notesToPush,omitempty" toml:"notesToPush,omitempty" yaml:"notesToPush,omitempty"`
}

func (p PublishPolicy) IsPushTags() bool     { return len(p.TagsToPush) > 0 }
func (p PublishPolicy) IsPushBranches() bool { return len(p.BranchesToPush) > 0 }
func (p PublishPolicy) IsPushNotes() bool    { return len(p.NotesToPush) > 0 }

// Actions returns the configured actions grouped by kind in processing order:
// tags, then branches, then notes.
func (p PublishPolicy) Actions() [][]PushAction {
	tags := make([]PushAction, 0, len(p.TagsToPush))
	for _, t := range p.TagsToPush {
		tags = append(tags, NewTagAction(t))
	}
	branches := make([]PushAction, 0, len(p.BranchesToPush))
	for _, b := range p.BranchesToPush {
		branches = append(branches, NewBranchAction(b))
	}
	notes := make([]PushAction, 0, len(p.NotesToPush))
	for _, n := range p.NotesToPush {
		notes = append(notes, NewNoteAction(n))
	}
	return [][]PushAction{tags, branches, notes}
}
