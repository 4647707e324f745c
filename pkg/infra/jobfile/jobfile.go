// Package jobfile implements the job registry on top of a TOML or YAML file.
//
// Every [[jobs]] entry is decoded on its own. An entry that cannot be decoded is still
// listed; its accessors return the decode error so the dispatcher can skip it.
package jobfile

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/m-mizutani/gitrelay/pkg/domain/interfaces"
	"github.com/m-mizutani/gitrelay/pkg/domain/model"
	"github.com/m-mizutani/gitrelay/pkg/domain/types"
)

const defaultTriggerTimeout = 30 * time.Second

// entry is the persisted form of one job
type entry struct {
	Name                 string               `toml:"name" yaml:"name"`
	NotifyCommitDisabled bool                 `toml:"notify_commit_disabled" yaml:"notify_commit_disabled"`
	TriggerURL           string               `toml:"trigger_url" yaml:"trigger_url"`
	Branches             []model.BranchSpec   `toml:"branches" yaml:"branches"`
	Remotes              []model.RemoteConfig `toml:"remotes" yaml:"remotes"`
	Publisher            model.PublishPolicy  `toml:"publisher" yaml:"publisher"`
}

func (e *entry) validate() error {
	if e.Name == "" {
		return goerr.New("job has no name", goerr.T(types.ErrTagConfiguration))
	}
	for i := range e.Remotes {
		e.Remotes[i] = model.NewRemoteConfig(e.Remotes[i].URL, e.Remotes[i].Name, e.Remotes[i].Refspec)
		if e.Remotes[i].URL == "" {
			return goerr.New("remote has no url",
				goerr.T(types.ErrTagConfiguration),
				goerr.V("job", e.Name),
				goerr.V("index", i))
		}
	}
	return nil
}

// Registry reads jobs from a file on every ListJobs call, so edits apply without a restart
type Registry struct {
	path           string
	httpClient     *http.Client
	triggerTimeout time.Duration
}

type Option func(*Registry)

// WithHTTPClient sets the client used to call trigger URLs
func WithHTTPClient(c *http.Client) Option {
	return func(r *Registry) {
		r.httpClient = c
	}
}

func WithTriggerTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.triggerTimeout = d
		}
	}
}

func New(path string, opts ...Option) *Registry {
	r := &Registry{
		path:           path,
		httpClient:     http.DefaultClient,
		triggerTimeout: defaultTriggerTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ListJobs returns every job entry of the file. Only an unreadable or malformed file is an error.
func (r *Registry) ListJobs(ctx context.Context) ([]interfaces.Job, error) {
	jobs, err := r.load()
	if err != nil {
		return nil, err
	}

	out := make([]interfaces.Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, job)
	}
	return out, nil
}

// Lookup returns the job named name
func (r *Registry) Lookup(ctx context.Context, name string) (*Job, error) {
	jobs, err := r.load()
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		if job.name == name {
			return job, nil
		}
	}
	return nil, goerr.New("job not found", goerr.T(types.ErrTagConfiguration), goerr.V("job", name))
}

func (r *Registry) load() ([]*Job, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read jobs file", goerr.V("path", r.path))
	}

	var jobs []*Job
	switch ext := strings.ToLower(filepath.Ext(r.path)); ext {
	case ".toml":
		jobs, err = decodeTOML(data)
	case ".yaml", ".yml":
		jobs, err = decodeYAML(data)
	default:
		return nil, goerr.New("unsupported jobs file format", goerr.V("path", r.path), goerr.V("ext", ext))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse jobs file", goerr.V("path", r.path))
	}

	for _, job := range jobs {
		job.registry = r
	}
	return jobs, nil
}

func decodeTOML(data []byte) ([]*Job, error) {
	var file struct {
		Jobs []map[string]any `toml:"jobs"`
	}
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	jobs := make([]*Job, 0, len(file.Jobs))
	for i, raw := range file.Jobs {
		job := &Job{name: rawName(raw["name"], i)}

		// round trip the entry so one broken entry does not break the file
		buf, err := toml.Marshal(raw)
		if err == nil {
			var e entry
			if err = toml.NewDecoder(bytes.NewReader(buf)).Decode(&e); err == nil {
				err = e.validate()
			}
			job.entry = &e
		}
		if err != nil {
			job.err = goerr.Wrap(err, "failed to decode job", goerr.V("job", job.name))
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func decodeYAML(data []byte) ([]*Job, error) {
	var file struct {
		Jobs []yaml.Node `yaml:"jobs"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	jobs := make([]*Job, 0, len(file.Jobs))
	for i, node := range file.Jobs {
		var named struct {
			Name any `yaml:"name"`
		}
		_ = node.Decode(&named)
		job := &Job{name: rawName(named.Name, i)}

		var e entry
		err := node.Decode(&e)
		if err == nil {
			err = e.validate()
		}
		if err != nil {
			job.err = goerr.Wrap(err, "failed to decode job", goerr.V("job", job.name))
		} else {
			job.entry = &e
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func rawName(v any, index int) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fmt.Sprintf("jobs[%d]", index)
}
