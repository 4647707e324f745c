package github_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-github/v75/github"
	"github.com/m-mizutani/gt"

	githubcontroller "github.com/m-mizutani/gitrelay/pkg/controller/github"
	"github.com/m-mizutani/gitrelay/pkg/domain/interfaces"
	"github.com/m-mizutani/gitrelay/pkg/domain/model"
)

// MockNotifyUseCase is a mock implementation of NotifyUseCase
type MockNotifyUseCase struct {
	notifyFunc func(ctx context.Context, req *model.NotificationRequest, registry interfaces.JobRegistry) (*model.DispatchOutcome, error)
	calls      []*model.NotificationRequest
}

func (m *MockNotifyUseCase) Notify(ctx context.Context, req *model.NotificationRequest, registry interfaces.JobRegistry) (*model.DispatchOutcome, error) {
	m.calls = append(m.calls, req)
	if m.notifyFunc != nil {
		return m.notifyFunc(ctx, req, registry)
	}
	return &model.DispatchOutcome{RequestID: req.ID}, nil
}

func newPushEvent(ref, after string, deleted bool) *github.PushEvent {
	return &github.PushEvent{
		Ref:     github.Ptr(ref),
		After:   github.Ptr(after),
		Deleted: github.Ptr(deleted),
		Repo: &github.PushEventRepository{
			FullName: github.Ptr("org/app"),
			CloneURL: github.Ptr("https://github.com/org/app.git"),
			SSHURL:   github.Ptr("git@github.com:org/app.git"),
		},
	}
}

func TestEventProcessor_PushEvent(t *testing.T) {
	ctx := context.Background()
	event := &model.WebhookEvent{ID: "delivery-1", Type: model.EventTypePush, Repository: "org/app"}

	t.Run("branch push notifies jobs", func(t *testing.T) {
		mockUC := &MockNotifyUseCase{}
		processor := githubcontroller.NewEventProcessor(mockUC, nil)

		err := processor.ProcessEvent(ctx, event, newPushEvent("refs/heads/main", "0123abcd", false))
		gt.NoError(t, err)
		gt.A(t, mockUC.calls).Length(1)
		gt.V(t, *mockUC.calls[0]).Equal(model.NotificationRequest{
			ID:                   "delivery-1",
			RepositoryIdentifier: "https://github.com/org/app.git",
			CommitID:             "0123abcd",
			BranchesCSV:          "main",
		})
	})

	t.Run("branch deletion is ignored", func(t *testing.T) {
		mockUC := &MockNotifyUseCase{}
		processor := githubcontroller.NewEventProcessor(mockUC, nil)

		gt.NoError(t, processor.ProcessEvent(ctx, event, newPushEvent("refs/heads/main", "0000000000000000000000000000000000000000", true)))
		gt.A(t, mockUC.calls).Length(0)
	})

	t.Run("tag push is ignored", func(t *testing.T) {
		mockUC := &MockNotifyUseCase{}
		processor := githubcontroller.NewEventProcessor(mockUC, nil)

		gt.NoError(t, processor.ProcessEvent(ctx, event, newPushEvent("refs/tags/v1.0.0", "0123abcd", false)))
		gt.A(t, mockUC.calls).Length(0)
	})

	t.Run("ssh url is used without clone url", func(t *testing.T) {
		mockUC := &MockNotifyUseCase{}
		processor := githubcontroller.NewEventProcessor(mockUC, nil)

		payload := newPushEvent("refs/heads/main", "0123abcd", false)
		payload.Repo.CloneURL = nil
		gt.NoError(t, processor.ProcessEvent(ctx, event, payload))
		gt.A(t, mockUC.calls).Length(1)
		gt.V(t, mockUC.calls[0].RepositoryIdentifier).Equal("git@github.com:org/app.git")
	})

	t.Run("missing repository", func(t *testing.T) {
		mockUC := &MockNotifyUseCase{}
		processor := githubcontroller.NewEventProcessor(mockUC, nil)

		payload := newPushEvent("refs/heads/main", "0123abcd", false)
		payload.Repo = nil
		gt.Error(t, processor.ProcessEvent(ctx, event, payload))
		gt.A(t, mockUC.calls).Length(0)
	})

	t.Run("notify failure is returned", func(t *testing.T) {
		mockUC := &MockNotifyUseCase{
			notifyFunc: func(ctx context.Context, req *model.NotificationRequest, registry interfaces.JobRegistry) (*model.DispatchOutcome, error) {
				return nil, errors.New("registry unavailable")
			},
		}
		processor := githubcontroller.NewEventProcessor(mockUC, nil)

		gt.Error(t, processor.ProcessEvent(ctx, event, newPushEvent("refs/heads/main", "0123abcd", false)))
	})

	t.Run("invalid payload type is ignored", func(t *testing.T) {
		mockUC := &MockNotifyUseCase{}
		processor := githubcontroller.NewEventProcessor(mockUC, nil)

		gt.NoError(t, processor.ProcessEvent(ctx, event, &github.PingEvent{}))
		gt.A(t, mockUC.calls).Length(0)
	})
}

func TestEventProcessor_OtherEvents(t *testing.T) {
	ctx := context.Background()
	mockUC := &MockNotifyUseCase{}
	processor := githubcontroller.NewEventProcessor(mockUC, nil)

	gt.NoError(t, processor.ProcessEvent(ctx, &model.WebhookEvent{Type: model.EventTypePing}, &github.PingEvent{}))
	gt.NoError(t, processor.ProcessEvent(ctx, &model.WebhookEvent{Type: model.EventTypeUnknown}, nil))
	gt.A(t, mockUC.calls).Length(0)
}
