package git

import (
	"context"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/gitrelay/pkg/domain/interfaces"
	"github.com/m-mizutani/gitrelay/pkg/domain/types"
)

// DefaultUsername is the user name paired with access tokens for HTTP basic auth
const DefaultUsername = "x-access-token"

// StaticToken is a TokenSource returning a fixed token
type StaticToken string

func (s StaticToken) Token(ctx context.Context) (string, error) {
	return string(s), nil
}

// Auth builds transport credentials for remote URLs. Only HTTP(S) remotes are
// authenticated; other transports use their own defaults.
type Auth struct {
	Username string
	Tokens   interfaces.TokenSource
}

// Method returns the auth method for url, or nil when no credentials apply
func (a *Auth) Method(ctx context.Context, url string) (transport.AuthMethod, error) {
	if a == nil || a.Tokens == nil {
		return nil, nil
	}
	if !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://") {
		return nil, nil
	}

	token, err := a.Tokens.Token(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get access token", goerr.T(types.ErrTagTransport))
	}
	if token == "" {
		return nil, nil
	}

	username := a.Username
	if username == "" {
		username = DefaultUsername
	}
	return &http.BasicAuth{
		Username: username,
		Password: token,
	}, nil
}
