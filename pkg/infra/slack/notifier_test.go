package slack_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/slack-go/slack"

	"github.com/WaffleHacks/autodeploy/pkg/domain/model"
	"github.com/WaffleHacks/autodeploy/pkg/domain/types"
	slacknotifier "github.com/WaffleHacks/autodeploy/pkg/infra/slack"
)

func TestNotifier_NotifyJob(t *testing.T) {
	started := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	testCases := []struct {
		name      string
		record    *model.JobRecord
		wantText  string
		wantColor string
	}{
		{
			name: "succeeded",
			record: &model.JobRecord{
				ID:         types.JobID("job-1"),
				Repository: "org/app",
				Status:     model.JobStatusSucceeded,
				Succeeded:  3,
				Total:      3,
				StartedAt:  started,
				FinishedAt: started.Add(2 * time.Second),
			},
			wantText:  "Deployment of org/app succeeded",
			wantColor: "good",
		},
		{
			name: "failed",
			record: &model.JobRecord{
				ID:         types.JobID("job-2"),
				Repository: "org/app",
				Status:     model.JobStatusFailed,
				Succeeded:  1,
				Total:      3,
				Error:      "command false exited with status 1",
			},
			wantText:  "Deployment of org/app failed",
			wantColor: "danger",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var got slack.WebhookMessage
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gt.Equal(t, r.Method, http.MethodPost)
				gt.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			notifier := slacknotifier.New(srv.URL, slacknotifier.WithHTTPClient(srv.Client()))
			gt.NoError(t, notifier.NotifyJob(context.Background(), tc.record)).Required()

			gt.Equal(t, got.Text, tc.wantText)
			gt.Equal(t, len(got.Attachments), 1)
			gt.Equal(t, got.Attachments[0].Color, tc.wantColor)
			gt.Equal(t, got.Attachments[0].Fields[0].Value,
				fmt.Sprintf("%d/%d succeeded", tc.record.Succeeded, tc.record.Total))
		})
	}
}

func TestNotifier_SlackError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	notifier := slacknotifier.New(srv.URL)
	err := notifier.NotifyJob(context.Background(), &model.JobRecord{
		ID:         types.JobID("job-3"),
		Repository: "org/app",
		Status:     model.JobStatusSucceeded,
	})
	gt.Error(t, err)
}
