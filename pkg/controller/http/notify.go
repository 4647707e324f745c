package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/gitrelay/pkg/domain/interfaces"
	"github.com/m-mizutani/gitrelay/pkg/domain/model"
)

// NotifyHandler handles commit notifications sent by repository hooks
type NotifyHandler struct {
	notifyUC interfaces.NotifyUseCase
	registry interfaces.JobRegistry
}

// NewNotifyHandler creates a new NotifyHandler
func NewNotifyHandler(notifyUC interfaces.NotifyUseCase, registry interfaces.JobRegistry) *NotifyHandler {
	return &NotifyHandler{
		notifyUC: notifyUC,
		registry: registry,
	}
}

// Handle processes /git/notifyCommit?url=<repository>&branches=<csv>&sha1=<commit>.
// Parameters are read from the query string or a form body.
func (h *NotifyHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := ctxlog.From(ctx)

	repository := strings.TrimSpace(r.FormValue("url"))
	if repository == "" {
		writeError(ctx, w, goerr.New("url parameter is required"), http.StatusBadRequest)
		return
	}
	branches := r.FormValue("branches")

	req := &model.NotificationRequest{
		ID:                   r.Header.Get("X-Request-ID"),
		RepositoryIdentifier: repository,
		CommitID:             strings.TrimSpace(r.FormValue("sha1")),
		BranchesCSV:          branches,
	}

	outcome, err := h.notifyUC.Notify(ctx, req, h.registry)
	if err != nil {
		writeError(ctx, w, err, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Request-ID", outcome.RequestID)
	w.WriteHeader(http.StatusOK)

	var body strings.Builder
	for _, job := range outcome.Triggered {
		fmt.Fprintf(&body, "Scheduled polling of %s\n", job)
	}
	if len(outcome.Triggered) == 0 {
		fmt.Fprintf(&body, "No git jobs using repository: %s and branches: %s\n", repository, branches)
	}

	if _, err := w.Write([]byte(body.String())); err != nil {
		logger.Error("Failed to write notify response", "error", err)
	}
}
