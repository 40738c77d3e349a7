package github

import (
	"encoding/json"

	"github.com/google/go-github/v75/github"
	"github.com/m-mizutani/goerr/v2"

	"github.com/WaffleHacks/autodeploy/pkg/domain/model"
)

// variant decodes body into one payload shape. ok is false when body does not have that shape.
type variant struct {
	keys   []string
	decode func(body []byte) (model.Payload, bool)
}

// variants are tried in this order; the first matching shape wins
var variants = []variant{
	{keys: []string{"zen", "hook_id"}, decode: decodePing},
	{keys: []string{"ref", "after", "repository"}, decode: decodePush},
	{keys: []string{"action", "release", "repository"}, decode: decodeRelease},
}

// ParseEvent identifies the webhook payload by the fields it carries rather than by the
// X-GitHub-Event header. Shapes are tried as ping, push, then release.
func ParseEvent(body []byte) (model.Payload, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, goerr.Wrap(model.ErrBodyParsing, "body is not a JSON object", goerr.V("cause", err.Error()))
	}

	for _, v := range variants {
		if !hasFields(fields, v.keys) {
			continue
		}
		if payload, ok := v.decode(body); ok {
			return payload, nil
		}
	}

	return nil, goerr.Wrap(model.ErrBodyParsing, "payload matches no known event")
}

func hasFields(fields map[string]json.RawMessage, keys []string) bool {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok || string(raw) == "null" {
			return false
		}
	}
	return true
}

func decodePing(body []byte) (model.Payload, bool) {
	var event github.PingEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, false
	}
	if event.Zen == nil || event.HookID == nil {
		return nil, false
	}

	return model.PingPayload{
		Zen:    event.GetZen(),
		HookID: event.GetHookID(),
	}, true
}

func decodePush(body []byte) (model.Payload, bool) {
	var event github.PushEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, false
	}

	repo := event.GetRepo()
	// without after there is no commit to check out and the push would deploy like a release
	if event.GetRef() == "" || event.GetAfter() == "" || repo.GetFullName() == "" || repo.GetCloneURL() == "" {
		return nil, false
	}

	return model.PushPayload{
		Reference: event.GetRef(),
		After:     event.GetAfter(),
		Repository: model.RepositoryRef{
			FullName: repo.GetFullName(),
			CloneURL: repo.GetCloneURL(),
		},
	}, true
}

func decodeRelease(body []byte) (model.Payload, bool) {
	var event github.ReleaseEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, false
	}

	repo := event.GetRepo()
	if event.GetAction() == "" || event.GetRelease().GetTagName() == "" ||
		repo.GetFullName() == "" || repo.GetCloneURL() == "" {
		return nil, false
	}

	return model.ReleasePayload{
		Action:  event.GetAction(),
		TagName: event.GetRelease().GetTagName(),
		Repository: model.RepositoryRef{
			FullName: repo.GetFullName(),
			CloneURL: repo.GetCloneURL(),
		},
	}, true
}
