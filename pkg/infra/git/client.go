package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/storage"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/gitrelay/pkg/domain/model"
	"github.com/m-mizutani/gitrelay/pkg/domain/types"
)

const (
	anonymousRemote = "anonymous"

	defaultSignatureName  = "gitrelay"
	defaultSignatureEmail = "gitrelay@localhost"
)

// Client is a GitTransport operating on a build workspace repository with go-git.
// Local writes hold the write lock. Pushes copy the source ref under the read lock
// and run the network exchange unlocked.
type Client struct {
	repo *gogit.Repository
	auth *Auth

	sigName  string
	sigEmail string

	mu sync.RWMutex
}

type Option func(*Client)

func WithAuth(auth *Auth) Option {
	return func(c *Client) {
		c.auth = auth
	}
}

// WithSignature sets the identity recorded on created tags and notes commits
func WithSignature(name, email string) Option {
	return func(c *Client) {
		if name != "" {
			c.sigName = name
		}
		if email != "" {
			c.sigEmail = email
		}
	}
}

// Open opens the repository at dir
func Open(dir string, opts ...Option) (*Client, error) {
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open repository", goerr.V("dir", dir))
	}
	return New(repo, opts...), nil
}

// New wraps an already opened repository
func New(repo *gogit.Repository, opts ...Option) *Client {
	c := &Client{
		repo:     repo,
		sigName:  defaultSignatureName,
		sigEmail: defaultSignatureEmail,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) signature() object.Signature {
	return object.Signature{
		Name:  c.sigName,
		Email: c.sigEmail,
		When:  time.Now(),
	}
}

func (c *Client) resolveCommit(commit string) (plumbing.Hash, error) {
	hash, err := c.repo.ResolveRevision(plumbing.Revision(commit))
	if err != nil {
		return plumbing.ZeroHash, goerr.Wrap(err, "failed to resolve commit",
			goerr.T(types.ErrTagConfiguration),
			goerr.V("commit", commit))
	}
	return *hash, nil
}

func (c *Client) TagExists(ctx context.Context, name string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, err := c.repo.Tag(name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, gogit.ErrTagNotFound):
		return false, nil
	default:
		return false, goerr.Wrap(err, "failed to look up tag", goerr.V("tag", name))
	}
}

// CreateTag creates an annotated tag. With force an existing tag is moved.
func (c *Client) CreateTag(ctx context.Context, name, message, commit string, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash, err := c.resolveCommit(commit)
	if err != nil {
		return err
	}

	if force {
		if err := c.repo.DeleteTag(name); err != nil && !errors.Is(err, gogit.ErrTagNotFound) {
			return goerr.Wrap(err, "failed to delete existing tag", goerr.V("tag", name))
		}
	}

	sig := c.signature()
	if _, err := c.repo.CreateTag(name, hash, &gogit.CreateTagOptions{
		Tagger:  &sig,
		Message: message,
	}); err != nil {
		if errors.Is(err, gogit.ErrTagExists) {
			return goerr.Wrap(err, "tag already exists", goerr.T(types.ErrTagConfiguration), goerr.V("tag", name))
		}
		return goerr.Wrap(err, "failed to create tag", goerr.V("tag", name), goerr.V("commit", commit))
	}

	ctxlog.From(ctx).Debug("Created tag", "tag", name, "commit", hash.String())
	return nil
}

func (c *Client) PushTag(ctx context.Context, remote model.RemoteConfig, tag string, force bool) error {
	ref := plumbing.NewTagReferenceName(tag)
	return c.push(ctx, remote, refSpec(ref.String(), ref, force))
}

func (c *Client) PushBranch(ctx context.Context, remote model.RemoteConfig, commit, branch string, force bool) error {
	c.mu.RLock()
	hash, err := c.resolveCommit(commit)
	c.mu.RUnlock()
	if err != nil {
		return err
	}

	dst := plumbing.ReferenceName(branch)
	if !dst.IsBranch() {
		dst = plumbing.NewBranchReferenceName(branch)
	}
	return c.push(ctx, remote, refSpec(hash.String(), dst, force))
}

func (c *Client) PushNotes(ctx context.Context, remote model.RemoteConfig, namespace string, force bool) error {
	ref := plumbing.ReferenceName(model.NotesRef(namespace))
	return c.push(ctx, remote, refSpec(ref.String(), ref, force))
}

func refSpec(src string, dst plumbing.ReferenceName, force bool) config.RefSpec {
	spec := fmt.Sprintf("%s:%s", src, dst)
	if force {
		spec = "+" + spec
	}
	return config.RefSpec(spec)
}

// push copies the source ref under the read lock and talks to the remote unlocked.
func (c *Client) push(ctx context.Context, remote model.RemoteConfig, spec config.RefSpec) error {
	cfg := &config.RemoteConfig{
		Name: anonymousRemote,
		URLs: []string{remote.URL},
	}
	if err := cfg.Validate(); err != nil {
		return goerr.Wrap(err, "invalid remote",
			goerr.T(types.ErrTagConfiguration),
			goerr.V("remote", remote.EffectiveName()))
	}

	refs, err := c.snapshotRefs(spec)
	if err != nil {
		return err
	}

	auth, err := c.auth.Method(ctx, remote.URL)
	if err != nil {
		return err
	}

	r := gogit.NewRemote(&snapshotStorer{Storer: c.repo.Storer, refs: refs}, cfg)
	err = r.PushContext(ctx, &gogit.PushOptions{
		RemoteName: anonymousRemote,
		RefSpecs:   []config.RefSpec{spec},
		Auth:       auth,
	})
	switch {
	case err == nil, errors.Is(err, gogit.NoErrAlreadyUpToDate):
		ctxlog.From(ctx).Debug("Pushed", "remote", remote.EffectiveName(), "refspec", string(spec))
		return nil
	case errors.Is(err, gogit.ErrNonFastForwardUpdate), strings.Contains(err.Error(), "non-fast-forward update"):
		return goerr.Wrap(err, "push rejected",
			goerr.T(types.ErrTagTransport),
			goerr.V("remote", remote.EffectiveName()),
			goerr.V("refspec", string(spec)))
	default:
		return goerr.Wrap(err, "failed to push",
			goerr.T(types.ErrTagTransport),
			goerr.V("remote", remote.EffectiveName()),
			goerr.V("refspec", string(spec)))
	}
}

// snapshotRefs copies the ref named by the source of spec. Hash sources need no refs.
func (c *Client) snapshotRefs(spec config.RefSpec) (memory.ReferenceStorage, error) {
	refs := make(memory.ReferenceStorage)
	src := plumbing.ReferenceName(spec.Src())
	if spec.IsExactSHA1() || spec.IsDelete() {
		return refs, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	ref, err := c.repo.Reference(src, false)
	switch {
	case err == nil:
		if err := refs.SetReference(ref); err != nil {
			return nil, goerr.Wrap(err, "failed to copy ref", goerr.V("ref", src))
		}
	case errors.Is(err, plumbing.ErrReferenceNotFound):
	default:
		return nil, goerr.Wrap(err, "failed to read ref", goerr.V("ref", src))
	}
	return refs, nil
}

// snapshotStorer serves objects from the repository and refs from a snapshot.
// Objects are immutable once written, refs are not.
type snapshotStorer struct {
	storage.Storer
	refs memory.ReferenceStorage
}

func (s *snapshotStorer) SetReference(ref *plumbing.Reference) error {
	return s.refs.SetReference(ref)
}

func (s *snapshotStorer) CheckAndSetReference(ref, old *plumbing.Reference) error {
	return s.refs.CheckAndSetReference(ref, old)
}

func (s *snapshotStorer) Reference(name plumbing.ReferenceName) (*plumbing.Reference, error) {
	return s.refs.Reference(name)
}

func (s *snapshotStorer) IterReferences() (storer.ReferenceIter, error) {
	return s.refs.IterReferences()
}

func (s *snapshotStorer) RemoveReference(name plumbing.ReferenceName) error {
	return s.refs.RemoveReference(name)
}

func (s *snapshotStorer) CountLooseRefs() (int, error) {
	return s.refs.CountLooseRefs()
}

func (s *snapshotStorer) PackRefs() error {
	return s.refs.PackRefs()
}

// AddNote writes note for commit into the notes ref of namespace. Existing notes of the
// commit are appended to unless replace is set. The notes tree is kept flat.
func (c *Client) AddNote(ctx context.Context, commit, note, namespace string, replace bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	target, err := c.resolveCommit(commit)
	if err != nil {
		return err
	}

	ref := plumbing.ReferenceName(model.NotesRef(namespace))
	var parents []plumbing.Hash
	var entries []object.TreeEntry

	current, err := c.repo.Reference(ref, true)
	switch {
	case err == nil:
		notesCommit, err := c.repo.CommitObject(current.Hash())
		if err != nil {
			return goerr.Wrap(err, "failed to read notes commit", goerr.V("ref", ref))
		}
		tree, err := notesCommit.Tree()
		if err != nil {
			return goerr.Wrap(err, "failed to read notes tree", goerr.V("ref", ref))
		}
		parents = []plumbing.Hash{current.Hash()}
		entries = append(entries, tree.Entries...)
	case errors.Is(err, plumbing.ErrReferenceNotFound):
	default:
		return goerr.Wrap(err, "failed to read notes ref", goerr.V("ref", ref))
	}

	content := note
	idx := -1
	for i, e := range entries {
		if e.Name == target.String() {
			idx = i
			break
		}
	}
	if idx >= 0 && !replace {
		old, err := c.readBlob(entries[idx].Hash)
		if err != nil {
			return err
		}
		content = strings.TrimRight(old, "\n") + "\n\n" + note
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}

	blob, err := c.storeBlob(content)
	if err != nil {
		return err
	}

	entry := object.TreeEntry{Name: target.String(), Mode: filemode.Regular, Hash: blob}
	if idx >= 0 {
		entries[idx] = entry
	} else {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entrySortKey(&entries[i]) < entrySortKey(&entries[j])
	})

	treeHash, err := c.storeObject(&object.Tree{Entries: entries})
	if err != nil {
		return err
	}

	sig := c.signature()
	notesHash, err := c.storeObject(&object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      "Notes added by gitrelay\n",
		TreeHash:     treeHash,
		ParentHashes: parents,
	})
	if err != nil {
		return err
	}

	if err := c.repo.Storer.SetReference(plumbing.NewHashReference(ref, notesHash)); err != nil {
		return goerr.Wrap(err, "failed to update notes ref", goerr.V("ref", ref))
	}

	ctxlog.From(ctx).Debug("Added note", "ref", ref.String(), "commit", target.String())
	return nil
}

// Note returns the note of commit in namespace, or "" when there is none
func (c *Client) Note(commit, namespace string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	target, err := c.resolveCommit(commit)
	if err != nil {
		return "", err
	}

	current, err := c.repo.Reference(plumbing.ReferenceName(model.NotesRef(namespace)), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", nil
	} else if err != nil {
		return "", goerr.Wrap(err, "failed to read notes ref")
	}

	notesCommit, err := c.repo.CommitObject(current.Hash())
	if err != nil {
		return "", goerr.Wrap(err, "failed to read notes commit")
	}
	tree, err := notesCommit.Tree()
	if err != nil {
		return "", goerr.Wrap(err, "failed to read notes tree")
	}
	for _, e := range tree.Entries {
		if e.Name == target.String() {
			return c.readBlob(e.Hash)
		}
	}
	return "", nil
}

// Git sorts tree entries as though directories have '/' appended to them.
func entrySortKey(e *object.TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}

func (c *Client) readBlob(hash plumbing.Hash) (string, error) {
	blob, err := c.repo.BlobObject(hash)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read blob", goerr.V("hash", hash.String()))
	}
	r, err := blob.Reader()
	if err != nil {
		return "", goerr.Wrap(err, "failed to open blob", goerr.V("hash", hash.String()))
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read blob", goerr.V("hash", hash.String()))
	}
	return string(data), nil
}

func (c *Client) storeBlob(value string) (plumbing.Hash, error) {
	data := []byte(value)
	eo := c.repo.Storer.NewEncodedObject()
	eo.SetType(plumbing.BlobObject)
	eo.SetSize(int64(len(data)))

	w, err := eo.Writer()
	if err != nil {
		return plumbing.ZeroHash, goerr.Wrap(err, "failed to open blob writer")
	}
	_, err = w.Write(data)
	w.Close()
	if err != nil {
		return plumbing.ZeroHash, goerr.Wrap(err, "failed to write blob")
	}

	hash, err := c.repo.Storer.SetEncodedObject(eo)
	if err != nil {
		return plumbing.ZeroHash, goerr.Wrap(err, "failed to store blob")
	}
	return hash, nil
}

type encoder interface {
	Encode(o plumbing.EncodedObject) error
}

func (c *Client) storeObject(obj encoder) (plumbing.Hash, error) {
	eo := c.repo.Storer.NewEncodedObject()
	if err := obj.Encode(eo); err != nil {
		return plumbing.ZeroHash, goerr.Wrap(err, "failed to encode object")
	}
	hash, err := c.repo.Storer.SetEncodedObject(eo)
	if err != nil {
		return plumbing.ZeroHash, goerr.Wrap(err, "failed to store object")
	}
	return hash, nil
}

// ListRemote lists the references advertised by the repository at url
func ListRemote(ctx context.Context, url string, auth *Auth) ([]*plumbing.Reference, error) {
	remote := gogit.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: anonymousRemote,
		URLs: []string{url},
	})

	method, err := auth.Method(ctx, url)
	if err != nil {
		return nil, err
	}

	refs, err := remote.ListContext(ctx, &gogit.ListOptions{Auth: method})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect to repository",
			goerr.T(types.ErrTagTransport),
			goerr.V("url", url))
	}
	return refs, nil
}
