package github

import (
	"context"
	"strings"

	"github.com/google/go-github/v75/github"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/gitrelay/pkg/domain/interfaces"
	"github.com/m-mizutani/gitrelay/pkg/domain/model"
)

const refsHeadsPrefix = "refs/heads/"

// EventProcessor turns GitHub webhook events into commit notifications
type EventProcessor struct {
	notifyUC interfaces.NotifyUseCase
	registry interfaces.JobRegistry
}

// NewEventProcessor creates a new GitHub event processor
func NewEventProcessor(notifyUC interfaces.NotifyUseCase, registry interfaces.JobRegistry) *EventProcessor {
	return &EventProcessor{
		notifyUC: notifyUC,
		registry: registry,
	}
}

// ProcessEvent processes a GitHub webhook event
func (p *EventProcessor) ProcessEvent(ctx context.Context, event *model.WebhookEvent, payload any) error {
	logger := ctxlog.From(ctx)

	switch event.Type {
	case model.EventTypePush:
		return p.processPushEvent(ctx, event, payload)
	case model.EventTypePing:
		logger.Info("Received ping event", "id", event.ID, "repository", event.Repository)
		return nil
	default:
		logger.Info("Ignoring unsupported event type", "event_type", event.Type)
		return nil
	}
}

// processPushEvent notifies the jobs that use the pushed repository and branch
func (p *EventProcessor) processPushEvent(ctx context.Context, event *model.WebhookEvent, payload any) error {
	logger := ctxlog.From(ctx)

	pushEvent, ok := payload.(*github.PushEvent)
	if !ok {
		logger.Warn("Invalid push event payload")
		return nil
	}

	info, err := extractPushInfo(pushEvent)
	if err != nil {
		return err
	}

	if info.Deleted {
		logger.Info("Ignoring branch deletion", "ref", info.Ref)
		return nil
	}
	if info.Branch == "" {
		logger.Info("Ignoring push of non-branch ref", "ref", info.Ref)
		return nil
	}

	req := &model.NotificationRequest{
		ID:                   event.ID,
		RepositoryIdentifier: info.CloneURL,
		CommitID:             info.After,
		BranchesCSV:          info.Branch,
	}

	outcome, err := p.notifyUC.Notify(ctx, req, p.registry)
	if err != nil {
		return goerr.Wrap(err, "failed to notify jobs",
			goerr.V("repository", info.CloneURL),
			goerr.V("branch", info.Branch))
	}

	logger.Info("Processed push event",
		"repository", event.Repository,
		"branch", info.Branch,
		"commit", info.After,
		"triggered", outcome.Triggered,
	)
	return nil
}

// extractPushInfo extracts the notification relevant parts of a push event
func extractPushInfo(event *github.PushEvent) (*model.PushInfo, error) {
	if event.GetRepo() == nil {
		return nil, goerr.New("missing repository information in push event")
	}

	info := &model.PushInfo{
		CloneURL: event.GetRepo().GetCloneURL(),
		SSHURL:   event.GetRepo().GetSSHURL(),
		Ref:      event.GetRef(),
		After:    event.GetAfter(),
		Deleted:  event.GetDeleted(),
	}
	if info.CloneURL == "" {
		info.CloneURL = info.SSHURL
	}
	if strings.HasPrefix(info.Ref, refsHeadsPrefix) {
		info.Branch = strings.TrimPrefix(info.Ref, refsHeadsPrefix)
	}

	if info.CloneURL == "" || info.Ref == "" {
		return nil, goerr.New("missing required fields in push event",
			goerr.V("clone_url", info.CloneURL),
			goerr.V("ref", info.Ref))
	}
	return info, nil
}
