package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/WaffleHacks/autodeploy/pkg/domain/interfaces"
	"github.com/WaffleHacks/autodeploy/pkg/domain/model"
	"github.com/WaffleHacks/autodeploy/pkg/domain/types"
	"github.com/WaffleHacks/autodeploy/pkg/utils/keylock"
)

const defaultRepositoryRoot = "./repositories"

type webhookUseCase struct {
	syncer interfaces.GitSyncer
	queue  interfaces.JobQueue
	jobs   interfaces.JobRepository
	locks  *keylock.Map

	rules          model.PolicyRules
	repositoryRoot string
	now            func() time.Time
}

// WebhookOption is a functional option for the webhook use case
type WebhookOption func(*webhookUseCase)

// WithPolicyRules sets the rules gating deployments. No rules allow everything.
func WithPolicyRules(rules model.PolicyRules) WebhookOption {
	return func(uc *webhookUseCase) {
		uc.rules = rules
	}
}

// WithRepositoryRoot sets the directory holding the mirrors
func WithRepositoryRoot(root string) WebhookOption {
	return func(uc *webhookUseCase) {
		uc.repositoryRoot = root
	}
}

// WithWebhookClock replaces the clock used for job timestamps
func WithWebhookClock(now func() time.Time) WebhookOption {
	return func(uc *webhookUseCase) {
		uc.now = now
	}
}

// NewWebhook creates the use case turning webhook events into deployment jobs.
// locks must be shared with the worker pool so syncs and deployments of one repository never overlap.
func NewWebhook(syncer interfaces.GitSyncer, queue interfaces.JobQueue, jobs interfaces.JobRepository, locks *keylock.Map, opts ...WebhookOption) interfaces.WebhookUseCase {
	uc := &webhookUseCase{
		syncer:         syncer,
		queue:          queue,
		jobs:           jobs,
		locks:          locks,
		repositoryRoot: defaultRepositoryRoot,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// HandleEvent applies the policy rules to event, synchronizes the mirror and enqueues a deployment job
func (uc *webhookUseCase) HandleEvent(ctx context.Context, event *model.WebhookEvent) (*model.DeploymentJob, error) {
	logger := ctxlog.From(ctx).With("delivery_id", event.DeliveryID)
	if event.Payload == nil {
		return nil, goerr.Wrap(model.ErrBodyParsing, "event has no payload")
	}
	logger.Debug("Handling webhook event",
		"kind", event.Payload.Kind(),
		"supported", event.IsSupportedEvent(),
	)

	var req *model.SyncRequest
	switch p := event.Payload.(type) {
	case model.PingPayload:
		logger.Info("Received ping", "hook_id", p.HookID, "zen", p.Zen)
		return nil, nil

	case model.PushPayload:
		branch := p.Branch()
		logger = logger.With("repository", p.Repository.FullName, "ref", p.Reference, "after", p.After)
		logger.Info("Received push event")

		if !uc.rules.IsDeployable(p.Repository.FullName, &branch) {
			logger.Warn("Repository is not deployable", "branch", branch)
			return nil, goerr.Wrap(model.ErrUndeployable, "push rejected by policy",
				goerr.V("repository", p.Repository.FullName),
				goerr.V("branch", branch),
			)
		}
		req = &model.SyncRequest{
			Repository:     p.Repository,
			FetchRefspec:   p.Reference,
			CheckoutCommit: p.After,
		}

	case model.ReleasePayload:
		logger = logger.With("repository", p.Repository.FullName, "action", p.Action, "tag", p.TagName)
		logger.Info("Received release event")

		if p.Action != model.ReleaseActionReleased {
			logger.Info("Ignoring release action")
			return nil, nil
		}
		if !uc.rules.IsDeployable(p.Repository.FullName, nil) {
			logger.Warn("Repository is not deployable")
			return nil, goerr.Wrap(model.ErrUndeployable, "release rejected by policy",
				goerr.V("repository", p.Repository.FullName),
			)
		}
		req = &model.SyncRequest{
			Repository:   p.Repository,
			FetchRefspec: p.TagRef(),
		}

	default:
		return nil, goerr.Wrap(model.ErrBodyParsing, "unsupported payload")
	}

	mirrorPath, err := model.MirrorPath(uc.repositoryRoot, req.Repository.FullName)
	if err != nil {
		return nil, err
	}
	req.MirrorPath = mirrorPath

	ctx = ctxlog.With(ctx, logger)
	if err := uc.sync(ctx, req); err != nil {
		return nil, err
	}

	job := &model.DeploymentJob{
		ID:         types.NewJobID(),
		Repository: req.Repository.FullName,
		MirrorPath: mirrorPath,
		DeliveryID: event.DeliveryID,
		CreatedAt:  uc.now(),
	}
	if err := uc.jobs.PutJob(ctx, model.NewJobRecord(job)); err != nil {
		return nil, goerr.Wrap(err, "failed to record job", goerr.V("job_id", job.ID))
	}
	if err := uc.queue.Push(job); err != nil {
		record := model.NewJobRecord(job)
		record.Status = model.JobStatusFailed
		record.Error = err.Error()
		if putErr := uc.jobs.PutJob(ctx, record); putErr != nil {
			logger.Warn("Failed to mark job as failed", "job_id", job.ID, "error", putErr)
		}
		return nil, err
	}

	logger.Info("Deployment job queued", "job_id", job.ID, "mirror_path", mirrorPath)
	return job, nil
}

func (uc *webhookUseCase) sync(ctx context.Context, req *model.SyncRequest) error {
	unlock := uc.locks.Lock(req.Repository.FullName)
	defer unlock()

	// a client disconnecting must not abort a fetch half way through
	result, err := uc.syncer.Sync(context.WithoutCancel(ctx), req)
	if err != nil {
		return err
	}

	ctxlog.From(ctx).Info("Mirror synchronized",
		"outcome", result.Outcome.String(),
		"fetched", result.FetchedCommit,
		"head", result.HeadCommit,
	)
	return nil
}

// GetJob returns the record of a job, or nil when unknown
func (uc *webhookUseCase) GetJob(ctx context.Context, id types.JobID) (*model.JobRecord, error) {
	return uc.jobs.GetJob(ctx, id)
}
