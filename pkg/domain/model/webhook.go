package model

import (
	"strings"
	"time"
)

// EventKind names the variant of a webhook payload
type EventKind string

const (
	EventKindPing    EventKind = "ping"
	EventKindPush    EventKind = "push"
	EventKindRelease EventKind = "release"
)

// ReleaseActionReleased is the only release action that triggers a deployment
const ReleaseActionReleased = "released"

const branchRefPrefix = "refs/heads/"
const tagRefPrefix = "refs/tags/"

// WebhookEvent represents a webhook delivery received from GitHub
type WebhookEvent struct {
	DeliveryID string    // Retrieved from X-GitHub-Delivery header
	ReceivedAt time.Time // Time when the event was received
	Payload    Payload   // Parsed body
}

// Payload is one of PingPayload, PushPayload or ReleasePayload
type Payload interface {
	Kind() EventKind
	payload()
}

// RepositoryRef identifies the repository an event refers to
type RepositoryRef struct {
	FullName string
	CloneURL string
}

// PingPayload is sent by GitHub when a hook is created
type PingPayload struct {
	Zen    string
	HookID int64
}

// PushPayload is sent when commits are pushed to a reference
type PushPayload struct {
	Reference  string
	After      string
	Repository RepositoryRef
}

// ReleasePayload is sent on any change to a release
type ReleasePayload struct {
	Action     string
	TagName    string
	Repository RepositoryRef
}

func (PingPayload) Kind() EventKind    { return EventKindPing }
func (PushPayload) Kind() EventKind    { return EventKindPush }
func (ReleasePayload) Kind() EventKind { return EventKindRelease }

func (PingPayload) payload()    {}
func (PushPayload) payload()    {}
func (ReleasePayload) payload() {}

// Branch returns the pushed branch name without the refs/heads/ prefix
func (p PushPayload) Branch() string {
	return strings.TrimPrefix(p.Reference, branchRefPrefix)
}

// TagRef returns the fully qualified tag reference of the release
func (p ReleasePayload) TagRef() string {
	return tagRefPrefix + p.TagName
}

// IsSupportedEvent checks if the event can lead to a deployment
func (e *WebhookEvent) IsSupportedEvent() bool {
	switch p := e.Payload.(type) {
	case PushPayload:
		return true
	case ReleasePayload:
		return p.Action == ReleaseActionReleased
	default:
		return false
	}
}
