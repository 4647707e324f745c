package github_test

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/gitrelay/pkg/domain/types"
	githubinfra "github.com/m-mizutani/gitrelay/pkg/infra/github"
)

func TestNewTokenSource_InvalidKey(t *testing.T) {
	_, err := githubinfra.NewTokenSource(1, 2, []byte("not a private key"))
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, types.ErrTagConfiguration))
}

func TestTokenSource_WithRealAPI(t *testing.T) {
	// This test requires GitHub App credentials from environment variables
	appID := os.Getenv("TEST_GITHUB_APP_ID")
	installationID := os.Getenv("TEST_GITHUB_INSTALLATION_ID")
	privateKey := os.Getenv("TEST_GITHUB_PRIVATE_KEY")

	if appID == "" || installationID == "" || privateKey == "" {
		t.Skip("Test GitHub App credentials not provided via environment variables")
	}

	appIDInt, err := strconv.ParseInt(appID, 10, 64)
	gt.NoError(t, err)

	installationIDInt, err := strconv.ParseInt(installationID, 10, 64)
	gt.NoError(t, err)

	src, err := githubinfra.NewTokenSource(appIDInt, installationIDInt, []byte(privateKey))
	gt.NoError(t, err)

	token, err := src.Token(context.Background())
	gt.NoError(t, err)
	gt.V(t, token).NotEqual("")
}
