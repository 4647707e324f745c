package http_test

import (
	"context"
	"errors"
	"sync"

	"github.com/m-mizutani/gitrelay/pkg/domain/interfaces"
	"github.com/m-mizutani/gitrelay/pkg/domain/model"
)

// mockNotifyUseCase triggers a fixed list of jobs
type mockNotifyUseCase struct {
	triggered []string
	err       error

	mu    sync.Mutex
	calls []*model.NotificationRequest
}

func (m *mockNotifyUseCase) Notify(ctx context.Context, req *model.NotificationRequest, registry interfaces.JobRegistry) (*model.DispatchOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}
	return &model.DispatchOutcome{RequestID: "req-1", Triggered: m.triggered}, nil
}

// mockProcessor records processed webhook events
type mockProcessor struct {
	err    error
	events []*model.WebhookEvent
}

func (m *mockProcessor) ProcessEvent(ctx context.Context, event *model.WebhookEvent, payload any) error {
	m.events = append(m.events, event)
	return m.err
}

var errProcess = errors.New("processing failed")
