package env

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/m-mizutani/gitrelay/pkg/domain/model"
)

// Resolver builds build variables from the process environment and the build identity
type Resolver struct {
	environ func() []string
}

type Option func(*Resolver)

// WithEnviron replaces os.Environ as the source of inherited variables
func WithEnviron(environ func() []string) Option {
	return func(r *Resolver) {
		r.environ = environ
	}
}

func New(opts ...Option) *Resolver {
	r := &Resolver{environ: os.Environ}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the inherited environment overlaid with the characteristic variables of
// build. Characteristic variables take precedence.
func (r *Resolver) Resolve(build *model.CompletedBuild) map[string]string {
	vars := make(map[string]string)
	for _, kv := range r.environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		vars[k] = v
	}

	if build == nil {
		return vars
	}

	vars["JOB_NAME"] = build.JobName
	vars["BUILD_NUMBER"] = strconv.Itoa(build.Number)
	if build.Result != "" {
		vars["BUILD_RESULT"] = string(build.Result)
	}
	if build.Commit != "" {
		vars["GIT_COMMIT"] = build.Commit
	}
	if build.Branch != "" {
		vars["GIT_BRANCH"] = build.Branch
		vars["GIT_LOCAL_BRANCH"] = localBranch(build.Branch, build.Remotes)
	}

	for k, v := range build.Characteristic {
		vars[k] = v
	}
	return vars
}

// localBranch strips refs/heads/ and a leading remote name from branch
func localBranch(branch string, remotes []model.RemoteConfig) string {
	branch = strings.TrimPrefix(branch, "refs/heads/")
	for _, r := range remotes {
		if s, ok := strings.CutPrefix(branch, r.EffectiveName()+"/"); ok {
			return s
		}
	}
	return branch
}

var varPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_.]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// Expand replaces ${NAME} and $NAME references in s with values from vars.
// References to names missing from vars are left as written.
func Expand(s string, vars map[string]string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimPrefix(match, "$")
		name = strings.TrimSuffix(strings.TrimPrefix(name, "{"), "}")
		if v, ok := vars[name]; ok {
			return v
		}
		return match
	})
}
