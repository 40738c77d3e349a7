package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"

	controller "github.com/WaffleHacks/autodeploy/pkg/controller/http"
	"github.com/WaffleHacks/autodeploy/pkg/domain/model"
	"github.com/WaffleHacks/autodeploy/pkg/domain/types"
)

const secret = "test-secret"

type mockWebhookUseCase struct {
	events  []*model.WebhookEvent
	handle  func(event *model.WebhookEvent) (*model.DeploymentJob, error)
	records map[types.JobID]*model.JobRecord
}

func (m *mockWebhookUseCase) HandleEvent(ctx context.Context, event *model.WebhookEvent) (*model.DeploymentJob, error) {
	m.events = append(m.events, event)
	if m.handle != nil {
		return m.handle(event)
	}
	return nil, nil
}

func (m *mockWebhookUseCase) GetJob(ctx context.Context, id types.JobID) (*model.JobRecord, error) {
	return m.records[id], nil
}

func newServer(t *testing.T, uc *mockWebhookUseCase) http.Handler {
	t.Helper()
	server, err := controller.NewServer(context.Background(), uc,
		controller.WithAddr("localhost:0"),
		controller.WithWebhookSecret(secret),
	)
	gt.NoError(t, err).Required()
	return server.Handler
}

func postWebhook(handler http.Handler, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Delivery", "test-delivery")
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

const pushBody = `{"ref":"refs/heads/main","after":"0123456789abcdef0123456789abcdef01234567","repository":{"full_name":"org/app","clone_url":"https://github.com/org/app.git"}}`

func TestWebhookHandler_Statuses(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		signature      func(body []byte) string
		handleErr      error
		wantStatusCode int
		wantCalled     bool
	}{
		{
			name:           "ping",
			body:           `{"zen":"Speak like a human.","hook_id":1}`,
			wantStatusCode: http.StatusNoContent,
			wantCalled:     true,
		},
		{
			name:           "push",
			body:           pushBody,
			wantStatusCode: http.StatusNoContent,
			wantCalled:     true,
		},
		{
			name:           "missing signature",
			body:           pushBody,
			signature:      func([]byte) string { return "" },
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "invalid signature",
			body:           pushBody,
			signature:      func([]byte) string { return "sha256=00" },
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "undecodable signature",
			body:           pushBody,
			signature:      func([]byte) string { return "sha256=not-hex" },
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "unknown payload",
			body:           `{"action":"opened","issue":{"number":1}}`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "policy rejection",
			body:           pushBody,
			handleErr:      goerr.Wrap(model.ErrUndeployable, "push rejected by policy"),
			wantStatusCode: http.StatusForbidden,
			wantCalled:     true,
		},
		{
			name:           "git failure",
			body:           pushBody,
			handleErr:      goerr.Wrap(model.ErrGit, "failed to fetch"),
			wantStatusCode: http.StatusInternalServerError,
			wantCalled:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := &mockWebhookUseCase{handle: func(*model.WebhookEvent) (*model.DeploymentJob, error) {
				return nil, tt.handleErr
			}}
			body := []byte(tt.body)
			signature := generateSignature(secret, body)
			if tt.signature != nil {
				signature = tt.signature(body)
			}

			w := postWebhook(newServer(t, uc), body, signature)
			gt.Equal(t, w.Code, tt.wantStatusCode)
			gt.Equal(t, len(uc.events) == 1, tt.wantCalled)

			if tt.wantStatusCode != http.StatusNoContent {
				var resp map[string]string
				gt.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
				gt.Value(t, resp["error"]).NotEqual("")
			}
		})
	}
}

func TestWebhookHandler_EventIsForwarded(t *testing.T) {
	jobID := types.JobID("job-1")
	uc := &mockWebhookUseCase{handle: func(*model.WebhookEvent) (*model.DeploymentJob, error) {
		return &model.DeploymentJob{ID: jobID, Repository: "org/app"}, nil
	}}

	body := []byte(pushBody)
	w := postWebhook(newServer(t, uc), body, generateSignature(secret, body))
	gt.Equal(t, w.Code, http.StatusNoContent)
	gt.Equal(t, w.Header().Get(controller.HeaderJobID), "job-1")

	gt.Equal(t, len(uc.events), 1)
	event := uc.events[0]
	gt.Equal(t, event.DeliveryID, "test-delivery")
	gt.False(t, event.ReceivedAt.IsZero())
	gt.Equal(t, event.Payload, model.Payload(model.PushPayload{
		Reference: "refs/heads/main",
		After:     "0123456789abcdef0123456789abcdef01234567",
		Repository: model.RepositoryRef{
			FullName: "org/app",
			CloneURL: "https://github.com/org/app.git",
		},
	}))
}

// reportingRequest attaches a hub to the request whose events are handed to the returned channel
func reportingRequest(t *testing.T, req *http.Request) (*http.Request, <-chan *sentry.Event) {
	t.Helper()
	events := make(chan *sentry.Event, 1)
	client, err := sentry.NewClient(sentry.ClientOptions{
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			events <- event
			return nil
		},
	})
	gt.NoError(t, err).Required()
	hub := sentry.NewHub(client, sentry.NewScope())
	return req.WithContext(sentry.SetHubOnContext(req.Context(), hub)), events
}

func TestWebhookHandler_Reporting(t *testing.T) {
	body := []byte(pushBody)
	newRequest := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
		req.Header.Set("X-Hub-Signature-256", generateSignature(secret, body))
		return req
	}

	t.Run("server errors carry the request", func(t *testing.T) {
		uc := &mockWebhookUseCase{handle: func(*model.WebhookEvent) (*model.DeploymentJob, error) {
			return nil, goerr.Wrap(model.ErrGit, "failed to fetch", goerr.V("repository", "org/app"))
		}}
		req, events := reportingRequest(t, newRequest())

		w := httptest.NewRecorder()
		newServer(t, uc).ServeHTTP(w, req)
		gt.Equal(t, w.Code, http.StatusInternalServerError)

		event := <-events
		gt.Equal(t, event.Tags["message"], "Failed to handle webhook")
		gt.Value(t, event.Contexts["goerr"]["repository"]).Equal(any("org/app"))
		gt.Value(t, event.Request).NotNil()
		gt.Equal(t, event.Request.Method, http.MethodPost)
	})

	t.Run("rejections are not reported", func(t *testing.T) {
		uc := &mockWebhookUseCase{handle: func(*model.WebhookEvent) (*model.DeploymentJob, error) {
			return nil, goerr.Wrap(model.ErrUndeployable, "push rejected by policy")
		}}
		req, events := reportingRequest(t, newRequest())

		w := httptest.NewRecorder()
		newServer(t, uc).ServeHTTP(w, req)
		gt.Equal(t, w.Code, http.StatusForbidden)
		gt.Equal(t, len(events), 0)
	})

	t.Run("panics are reported and answered", func(t *testing.T) {
		uc := &mockWebhookUseCase{handle: func(*model.WebhookEvent) (*model.DeploymentJob, error) {
			panic("use case exploded")
		}}
		req, events := reportingRequest(t, newRequest())

		w := httptest.NewRecorder()
		newServer(t, uc).ServeHTTP(w, req)
		gt.Equal(t, w.Code, http.StatusInternalServerError)

		event := <-events
		gt.Equal(t, event.Message, "use case exploded")
		gt.Equal(t, event.Level, sentry.LevelFatal)
	})
}

func TestWebhookHandler_BodyLimit(t *testing.T) {
	uc := &mockWebhookUseCase{}

	// valid JSON padded beyond the limit
	body := []byte(`{"zen":"` + strings.Repeat("a", controller.MaxBodySize) + `","hook_id":1}`)
	w := postWebhook(newServer(t, uc), body, generateSignature(secret, body))
	gt.Equal(t, w.Code, http.StatusBadRequest)
	gt.Equal(t, len(uc.events), 0)
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	newServer(t, &mockWebhookUseCase{}).ServeHTTP(w, req)

	gt.Equal(t, w.Code, http.StatusNoContent)
	gt.Equal(t, w.Body.Len(), 0)
}

func TestJobEndpoint(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	uc := &mockWebhookUseCase{records: map[types.JobID]*model.JobRecord{
		"job-1": {
			ID:         "job-1",
			Repository: "org/app",
			Status:     model.JobStatusFailed,
			Succeeded:  1,
			Total:      3,
			CreatedAt:  created,
		},
	}}
	handler := newServer(t, uc)

	t.Run("found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/jobs/job-1", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		gt.Equal(t, w.Code, http.StatusOK)
		var record model.JobRecord
		gt.NoError(t, json.NewDecoder(w.Body).Decode(&record)).Required()
		gt.Equal(t, record.Status, model.JobStatusFailed)
		gt.Equal(t, record.Succeeded, 1)
		gt.Equal(t, record.Total, 3)
		gt.True(t, record.CreatedAt.Equal(created))
	})

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/jobs/job-2", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		gt.Equal(t, w.Code, http.StatusNotFound)
	})
}
