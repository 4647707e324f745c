package jobfile

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/gitrelay/pkg/domain/model"
	"github.com/m-mizutani/gitrelay/pkg/domain/types"
	"github.com/m-mizutani/gitrelay/pkg/utils/async"
)

// Job is one entry of the jobs file
type Job struct {
	name     string
	entry    *entry
	err      error
	registry *Registry
}

func (j *Job) Name() string { return j.name }

func (j *Job) Remotes() ([]model.RemoteConfig, error) {
	if j.err != nil {
		return nil, j.err
	}
	return j.entry.Remotes, nil
}

func (j *Job) BranchSpecs() ([]model.BranchSpec, error) {
	if j.err != nil {
		return nil, j.err
	}
	return j.entry.Branches, nil
}

func (j *Job) IsNotifyCommitDisabled() bool {
	return j.err == nil && j.entry.NotifyCommitDisabled
}

// PublishPolicy returns the publisher configuration of the job
func (j *Job) PublishPolicy() (model.PublishPolicy, error) {
	if j.err != nil {
		return model.PublishPolicy{}, j.err
	}
	return j.entry.Publisher, nil
}

// TriggerPoll posts req to the job's trigger URL in the background. A job without a
// trigger URL only logs the request.
func (j *Job) TriggerPoll(ctx context.Context, req model.TriggerRequest) error {
	if j.err != nil {
		return j.err
	}

	logger := ctxlog.From(ctx)
	if j.entry.TriggerURL == "" {
		logger.Info("Polling requested", "job", j.name, "commit", req.CommitID, "branches", req.Branches)
		return nil
	}

	target, err := url.Parse(j.entry.TriggerURL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
		return goerr.New("invalid trigger url",
			goerr.T(types.ErrTagConfiguration),
			goerr.V("job", j.name),
			goerr.V("url", j.entry.TriggerURL))
	}

	body, err := json.Marshal(req)
	if err != nil {
		return goerr.Wrap(err, "failed to encode trigger request", goerr.V("job", j.name))
	}

	async.Dispatch(ctx, func(ctx context.Context) error {
		return j.post(ctx, target.String(), req.RequestID, body)
	})
	return nil
}

func (j *Job) post(ctx context.Context, target, requestID string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, j.registry.triggerTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return goerr.Wrap(err, "failed to create trigger request", goerr.V("job", j.name))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)

	resp, err := j.registry.httpClient.Do(httpReq)
	if err != nil {
		return goerr.Wrap(err, "failed to call trigger url",
			goerr.T(types.ErrTagTransport),
			goerr.V("job", j.name),
			goerr.V("url", target))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return goerr.New("trigger url returned error status",
			goerr.T(types.ErrTagTransport),
			goerr.V("job", j.name),
			goerr.V("url", target),
			goerr.V("status", resp.StatusCode))
	}

	ctxlog.From(ctx).Info("Triggered polling", "job", j.name, "status", resp.StatusCode)
	return nil
}
