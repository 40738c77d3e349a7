package usecase_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"

	"github.com/WaffleHacks/autodeploy/pkg/domain/interfaces"
	"github.com/WaffleHacks/autodeploy/pkg/domain/model"
	"github.com/WaffleHacks/autodeploy/pkg/infra/memory"
	"github.com/WaffleHacks/autodeploy/pkg/infra/queue"
	"github.com/WaffleHacks/autodeploy/pkg/usecase"
	"github.com/WaffleHacks/autodeploy/pkg/utils/keylock"
)

type fakeSyncer struct {
	mu       sync.Mutex
	requests []*model.SyncRequest
	err      error
}

func (s *fakeSyncer) Sync(ctx context.Context, req *model.SyncRequest) (*model.SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return &model.SyncResult{Outcome: model.MergeFastForward, FetchedCommit: req.CheckoutCommit, HeadCommit: req.CheckoutCommit}, nil
}

var repo = model.RepositoryRef{FullName: "org/app", CloneURL: "https://github.com/org/app.git"}

func pushEvent(ref string) *model.WebhookEvent {
	return &model.WebhookEvent{
		DeliveryID: "delivery-1",
		ReceivedAt: time.Now(),
		Payload: model.PushPayload{
			Reference:  ref,
			After:      "0123456789abcdef0123456789abcdef01234567",
			Repository: repo,
		},
	}
}

func releaseEvent(action string) *model.WebhookEvent {
	return &model.WebhookEvent{
		DeliveryID: "delivery-2",
		ReceivedAt: time.Now(),
		Payload: model.ReleasePayload{
			Action:     action,
			TagName:    "v1.2.0",
			Repository: repo,
		},
	}
}

type webhookFixture struct {
	syncer *fakeSyncer
	queue  *queue.Queue
	jobs   *memory.JobRepository
	root   string
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	return &webhookFixture{
		syncer: &fakeSyncer{},
		queue:  queue.New(),
		jobs:   memory.NewJobRepository(),
		root:   t.TempDir(),
	}
}

func (f *webhookFixture) useCase(opts ...usecase.WebhookOption) interfaces.WebhookUseCase {
	opts = append([]usecase.WebhookOption{usecase.WithRepositoryRoot(f.root)}, opts...)
	return usecase.NewWebhook(f.syncer, f.queue, f.jobs, keylock.New(), opts...)
}

func TestWebhookUseCase_Ping(t *testing.T) {
	f := newWebhookFixture(t)
	job, err := f.useCase().HandleEvent(context.Background(), &model.WebhookEvent{
		Payload: model.PingPayload{Zen: "Keep it logically awesome.", HookID: 1},
	})
	gt.NoError(t, err)
	gt.Value(t, job).Nil()
	gt.Equal(t, len(f.syncer.requests), 0)
	gt.Equal(t, f.queue.Len(), 0)
}

func TestWebhookUseCase_Push(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()
	uc := f.useCase()

	job, err := uc.HandleEvent(ctx, pushEvent("refs/heads/main"))
	gt.NoError(t, err).Required()
	gt.Value(t, job).NotNil()

	gt.Equal(t, len(f.syncer.requests), 1)
	req := f.syncer.requests[0]
	gt.Equal(t, req.FetchRefspec, "refs/heads/main")
	gt.Equal(t, req.CheckoutCommit, "0123456789abcdef0123456789abcdef01234567")
	gt.Equal(t, req.MirrorPath, filepath.Join(f.root, "org__app"))
	gt.Equal(t, req.Repository, repo)

	gt.Equal(t, job.Repository, "org/app")
	gt.Equal(t, job.MirrorPath, filepath.Join(f.root, "org__app"))
	gt.Equal(t, job.DeliveryID, "delivery-1")

	queued, ok := f.queue.Pop(ctx)
	gt.True(t, ok)
	gt.Equal(t, queued.ID, job.ID)

	record, err := uc.GetJob(ctx, job.ID)
	gt.NoError(t, err)
	gt.Value(t, record).NotNil()
	gt.Equal(t, record.Status, model.JobStatusQueued)
}

func TestWebhookUseCase_Release(t *testing.T) {
	t.Run("released is synchronized without checkout", func(t *testing.T) {
		f := newWebhookFixture(t)
		job, err := f.useCase().HandleEvent(context.Background(), releaseEvent("released"))
		gt.NoError(t, err).Required()
		gt.Value(t, job).NotNil()

		gt.Equal(t, len(f.syncer.requests), 1)
		gt.Equal(t, f.syncer.requests[0].FetchRefspec, "refs/tags/v1.2.0")
		gt.Equal(t, f.syncer.requests[0].CheckoutCommit, "")
		gt.Equal(t, f.queue.Len(), 1)
	})

	for _, action := range []string{"published", "created", "edited", "deleted", "prereleased"} {
		t.Run(action+" never produces a job", func(t *testing.T) {
			f := newWebhookFixture(t)
			job, err := f.useCase().HandleEvent(context.Background(), releaseEvent(action))
			gt.NoError(t, err)
			gt.Value(t, job).Nil()
			gt.Equal(t, len(f.syncer.requests), 0)
			gt.Equal(t, f.queue.Len(), 0)
		})
	}
}

func TestWebhookUseCase_Policy(t *testing.T) {
	rules := model.PolicyRules{
		{Action: model.PushAction("main"), Repo: model.Whitelist("org/app")},
	}

	testCases := []struct {
		name       string
		event      *model.WebhookEvent
		wantReject bool
	}{
		{name: "push to allowed branch", event: pushEvent("refs/heads/main")},
		{name: "push to other branch", event: pushEvent("refs/heads/dev"), wantReject: true},
		{name: "release never matches a push rule", event: releaseEvent("released"), wantReject: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newWebhookFixture(t)
			job, err := f.useCase(usecase.WithPolicyRules(rules)).HandleEvent(context.Background(), tc.event)

			if tc.wantReject {
				gt.Error(t, err)
				gt.True(t, errors.Is(err, model.ErrUndeployable))
				gt.Value(t, job).Nil()
				gt.Equal(t, len(f.syncer.requests), 0)
				gt.Equal(t, f.queue.Len(), 0)
				return
			}
			gt.NoError(t, err)
			gt.Value(t, job).NotNil()
		})
	}
}

func TestWebhookUseCase_SyncFailure(t *testing.T) {
	f := newWebhookFixture(t)
	f.syncer.err = goerr.Wrap(model.ErrGit, "failed to fetch")

	job, err := f.useCase().HandleEvent(context.Background(), pushEvent("refs/heads/main"))
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrGit))
	gt.Value(t, job).Nil()
	gt.Equal(t, f.queue.Len(), 0)
}

func TestWebhookUseCase_QueueClosed(t *testing.T) {
	f := newWebhookFixture(t)
	f.queue.Close()

	job, err := f.useCase().HandleEvent(context.Background(), pushEvent("refs/heads/main"))
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrQueueClosed))
	gt.Value(t, job).Nil()
}

func TestWebhookUseCase_InvalidRepository(t *testing.T) {
	f := newWebhookFixture(t)
	event := pushEvent("refs/heads/main")
	event.Payload = model.PushPayload{
		Reference:  "refs/heads/main",
		After:      "0123456789abcdef0123456789abcdef01234567",
		Repository: model.RepositoryRef{FullName: "..", CloneURL: "https://example.com/x.git"},
	}

	_, err := f.useCase().HandleEvent(context.Background(), event)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrInvalidRepository))
	gt.Equal(t, len(f.syncer.requests), 0)
}
