package model_test

import (
	"testing"

	"github.com/WaffleHacks/autodeploy/pkg/domain/model"
)

func TestWebhookEvent_IsSupportedEvent(t *testing.T) {
	repo := model.RepositoryRef{FullName: "test/repo", CloneURL: "https://github.com/test/repo.git"}

	tests := []struct {
		name     string
		event    *model.WebhookEvent
		expected bool
	}{
		{
			name:     "Ping - not supported",
			event:    &model.WebhookEvent{Payload: model.PingPayload{Zen: "zen", HookID: 1}},
			expected: false,
		},
		{
			name: "Push - supported",
			event: &model.WebhookEvent{Payload: model.PushPayload{
				Reference:  "refs/heads/main",
				After:      "0123456789abcdef0123456789abcdef01234567",
				Repository: repo,
			}},
			expected: true,
		},
		{
			name:     "Release released - supported",
			event:    &model.WebhookEvent{Payload: model.ReleasePayload{Action: "released", TagName: "v1.0.0", Repository: repo}},
			expected: true,
		},
		{
			name:     "Release created - not supported",
			event:    &model.WebhookEvent{Payload: model.ReleasePayload{Action: "created", TagName: "v1.0.0", Repository: repo}},
			expected: false,
		},
		{
			name:     "Release published - not supported",
			event:    &model.WebhookEvent{Payload: model.ReleasePayload{Action: "published", TagName: "v1.0.0", Repository: repo}},
			expected: false,
		},
		{
			name:     "Missing payload",
			event:    &model.WebhookEvent{},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.event.IsSupportedEvent()
			if got != tt.expected {
				t.Errorf("IsSupportedEvent() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestPushPayload_Branch(t *testing.T) {
	tests := []struct {
		reference string
		expected  string
	}{
		{reference: "refs/heads/main", expected: "main"},
		{reference: "refs/heads/feature/x", expected: "feature/x"},
		{reference: "main", expected: "main"},
	}

	for _, tt := range tests {
		t.Run(tt.reference, func(t *testing.T) {
			got := model.PushPayload{Reference: tt.reference}.Branch()
			if got != tt.expected {
				t.Errorf("Branch() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestReleasePayload_TagRef(t *testing.T) {
	got := model.ReleasePayload{TagName: "v1.2.3"}.TagRef()
	if got != "refs/tags/v1.2.3" {
		t.Errorf("TagRef() = %v, want refs/tags/v1.2.3", got)
	}
}
