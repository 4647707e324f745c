// Package giturl decides whether two repository URLs, possibly written in different
// transport syntaxes, name the same remote endpoint.
//
// Matching is a pairwise relation. It is reflexive and symmetric for non-blank input and
// transitive for the usual URL family (https with or without user-info, git://, ssh:// and
// SCP-like user@host:path), but it is not guaranteed to be an equivalence relation for
// arbitrary input.
package giturl

import (
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/gitrelay/pkg/domain/types"
)

// Endpoint is a parsed repository URL
type Endpoint struct {
	Scheme string
	User   string
	Host   string
	Port   int
	Path   string
}

// Parse parses a repository URL in any syntax accepted by git
func Parse(raw string) (*Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, goerr.New("empty repository URL", goerr.T(types.ErrTagParse))
	}

	ep, err := transport.NewEndpoint(raw)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse repository URL",
			goerr.V("url", raw),
			goerr.T(types.ErrTagParse),
		)
	}

	return &Endpoint{
		Scheme: ep.Protocol,
		User:   ep.User,
		Host:   ep.Host,
		Port:   ep.Port,
		Path:   ep.Path,
	}, nil
}

// Normalized returns the endpoint with user-info dropped, the host lower-cased and the
// path stripped of a leading "/", a trailing "/" and a trailing ".git".
// Path case is preserved.
func (e Endpoint) Normalized() Endpoint {
	path := strings.TrimPrefix(e.Path, "/")
	path = strings.TrimSuffix(path, "/")
	path = strings.TrimSuffix(path, ".git")

	scheme := e.Scheme
	if scheme == "" {
		scheme = "ssh"
	}

	return Endpoint{
		Scheme: scheme,
		Host:   strings.ToLower(e.Host),
		Port:   e.Port,
		Path:   path,
	}
}

// SameRepository reports whether two endpoints name the same host and path.
// Scheme and port are ignored.
func (e Endpoint) SameRepository(other Endpoint) bool {
	l, r := e.Normalized(), other.Normalized()
	return l.Host == r.Host && l.Path == r.Path
}

// Matches reports whether a and b denote the same repository. Blank or unparsable input
// never matches anything, including itself.
func Matches(a, b string) bool {
	l, err := Parse(a)
	if err != nil {
		return false
	}
	r, err := Parse(b)
	if err != nil {
		return false
	}
	return l.SameRepository(*r)
}
