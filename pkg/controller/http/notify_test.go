package http_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	controller "github.com/m-mizutani/gitrelay/pkg/controller/http"
)

func newNotifyServer(t *testing.T, uc *mockNotifyUseCase) http.Handler {
	t.Helper()
	server, err := controller.NewServer(context.Background(), uc, nil)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return server.Handler
}

func TestNotifyCommit(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		form       url.Values
		triggered  []string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "triggered jobs are listed",
			method:     http.MethodGet,
			target:     "/git/notifyCommit?url=https://github.com/org/app.git&branches=master&sha1=abc",
			triggered:  []string{"app", "app-release"},
			wantStatus: http.StatusOK,
			wantBody:   "Scheduled polling of app\nScheduled polling of app-release\n",
		},
		{
			name:       "nothing triggered",
			method:     http.MethodGet,
			target:     "/git/notifyCommit?url=https://github.com/org/other.git&branches=topic",
			wantStatus: http.StatusOK,
			wantBody:   "No git jobs using repository: https://github.com/org/other.git and branches: topic\n",
		},
		{
			name:       "form body",
			method:     http.MethodPost,
			target:     "/git/notifyCommit",
			form:       url.Values{"url": {"git@github.com:org/app.git"}},
			triggered:  []string{"app"},
			wantStatus: http.StatusOK,
			wantBody:   "Scheduled polling of app\n",
		},
		{
			name:       "missing url",
			method:     http.MethodGet,
			target:     "/git/notifyCommit?branches=master",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "blank url",
			method:     http.MethodGet,
			target:     "/git/notifyCommit?url=%20",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := &mockNotifyUseCase{triggered: tt.triggered}
			handler := newNotifyServer(t, uc)

			var req *http.Request
			if tt.form != nil {
				req = httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.form.Encode()))
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			} else {
				req = httptest.NewRequest(tt.method, tt.target, nil)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %v, want %v, body = %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				if len(uc.calls) != 0 {
					t.Errorf("Notify called %d times for rejected request", len(uc.calls))
				}
				return
			}
			if got := w.Body.String(); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
			if len(uc.calls) != 1 {
				t.Fatalf("Notify called %d times, want 1", len(uc.calls))
			}
		})
	}
}

func TestNotifyCommit_Request(t *testing.T) {
	uc := &mockNotifyUseCase{}
	handler := newNotifyServer(t, uc)

	req := httptest.NewRequest(http.MethodGet, "/git/notifyCommit?url=+https://github.com/org/app.git+&branches=master,topic&sha1=0123abcd", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if len(uc.calls) != 1 {
		t.Fatalf("Notify called %d times, want 1", len(uc.calls))
	}
	got := uc.calls[0]
	if got.RepositoryIdentifier != "https://github.com/org/app.git" {
		t.Errorf("repository = %q", got.RepositoryIdentifier)
	}
	if got.BranchesCSV != "master,topic" {
		t.Errorf("branches = %q", got.BranchesCSV)
	}
	if got.CommitID != "0123abcd" {
		t.Errorf("commit = %q", got.CommitID)
	}
	if w.Header().Get("X-Request-ID") != "req-1" {
		t.Errorf("X-Request-ID = %q", w.Header().Get("X-Request-ID"))
	}
}

func TestNotifyCommit_UseCaseError(t *testing.T) {
	uc := &mockNotifyUseCase{err: errors.New("registry unavailable")}
	handler := newNotifyServer(t, uc)

	req := httptest.NewRequest(http.MethodGet, "/git/notifyCommit?url=a", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %v, want %v", w.Code, http.StatusInternalServerError)
	}
}
