package github

import (
	"context"
	"net/http"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/gitrelay/pkg/domain/types"
)

// TokenSource issues GitHub App installation tokens used as push credentials
type TokenSource struct {
	transport *ghinstallation.Transport
}

// NewTokenSource creates a token source with GitHub App authentication
func NewTokenSource(appID, installationID int64, privateKey []byte) (*TokenSource, error) {
	itr, err := ghinstallation.New(http.DefaultTransport, appID, installationID, privateKey)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create GitHub App transport",
			goerr.T(types.ErrTagConfiguration),
			goerr.V("app_id", appID),
			goerr.V("installation_id", installationID))
	}

	return &TokenSource{transport: itr}, nil
}

// Token returns a valid installation token, refreshing it when it is about to expire
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	token, err := s.transport.Token(ctx)
	if err != nil {
		return "", goerr.Wrap(err, "failed to get installation token", goerr.T(types.ErrTagTransport))
	}
	return token, nil
}
