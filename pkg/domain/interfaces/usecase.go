package interfaces

import (
	"context"

	"github.com/m-mizutani/gitrelay/pkg/domain/model"
)

// NotifyUseCase dispatches commit notifications to the jobs that use the repository
type NotifyUseCase interface {
	Notify(ctx context.Context, req *model.NotificationRequest, registry JobRegistry) (*model.DispatchOutcome, error)
}

// PublishUseCase pushes tags, branches and notes after a build completes
type PublishUseCase interface {
	Publish(ctx context.Context, build *model.CompletedBuild, policy model.PublishPolicy) (*model.PublishResult, error)
}

// WebhookEventProcessor handles a verified webhook event. payload is the event parsed by go-github.
type WebhookEventProcessor interface {
	ProcessEvent(ctx context.Context, event *model.WebhookEvent, payload any) error
}
