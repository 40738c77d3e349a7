package git

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/WaffleHacks/autodeploy/pkg/domain/model"
)

const (
	remoteName = gogit.DefaultRemoteName

	// fetched references are staged here so the local reference can still be compared after fetching
	stagingPrefix = "refs/remotes/" + remoteName + "/"

	defaultSignatureName  = "autodeploy"
	defaultSignatureEmail = "autodeploy@localhost"
)

// Syncer runs the fetch/merge/checkout state machine on repository mirrors
type Syncer struct {
	signatureName  string
	signatureEmail string
	now            func() time.Time
}

// Option is a functional option for Syncer
type Option func(*Syncer)

// WithSignature sets the identity used for merge commits
func WithSignature(name, email string) Option {
	return func(s *Syncer) {
		s.signatureName = name
		s.signatureEmail = email
	}
}

// WithClock replaces the clock used for merge commit timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) {
		s.now = now
	}
}

// New creates a Syncer
func New(opts ...Option) *Syncer {
	s := &Syncer{
		signatureName:  defaultSignatureName,
		signatureEmail: defaultSignatureEmail,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync initializes the mirror if needed, fetches req.FetchRefspec and all tags, merges the fetched
// commit into the local reference and finally hard resets to req.CheckoutCommit when given.
// Every returned error wraps model.ErrGit.
func (s *Syncer) Sync(ctx context.Context, req *model.SyncRequest) (*model.SyncResult, error) {
	logger := ctxlog.From(ctx).With(
		"repository", req.Repository.FullName,
		"refspec", req.FetchRefspec,
	)

	repo, err := openMirror(req.MirrorPath, req.Repository.CloneURL)
	if err != nil {
		return nil, gitError(err, "failed to initialize mirror", req)
	}

	refName := plumbing.ReferenceName(req.FetchRefspec)
	local, err := resolveCommit(repo, refName)
	if err != nil {
		return nil, gitError(err, "failed to resolve local reference", req)
	}

	logger.Info("Fetching from remote", "url", req.Repository.CloneURL)
	fetched, err := fetch(ctx, repo, refName)
	if err != nil {
		return nil, gitError(err, "failed to fetch", req)
	}

	result := &model.SyncResult{FetchedCommit: fetched.Hash.String()}

	logger.Info("Merging fetched commit", "commit", fetched.Hash.String())
	outcome, mergeCommit, err := s.merge(ctx, repo, refName, local, fetched)
	if err != nil {
		return nil, gitError(err, "failed to merge", req)
	}
	result.Outcome = outcome
	if !mergeCommit.IsZero() {
		result.MergeCommit = mergeCommit.String()
	}

	if req.CheckoutCommit != "" {
		logger.Info("Checking out pushed commit", "commit", req.CheckoutCommit)
		if err := checkoutCommit(repo, refName, req.CheckoutCommit); err != nil {
			return nil, gitError(err, "failed to checkout commit", req, goerr.V("commit", req.CheckoutCommit))
		}
	}

	head, err := repo.Head()
	if err != nil {
		return nil, gitError(err, "failed to read HEAD", req)
	}
	result.HeadCommit = head.Hash().String()

	logger.Info("Synchronized mirror",
		"outcome", result.Outcome.String(),
		"head", result.HeadCommit,
	)

	return result, nil
}

func gitError(err error, msg string, req *model.SyncRequest, opts ...goerr.Option) error {
	opts = append(opts,
		goerr.V("repository", req.Repository.FullName),
		goerr.V("mirror_path", req.MirrorPath),
		goerr.V("refspec", req.FetchRefspec),
	)
	return goerr.Wrap(fmt.Errorf("%w: %w", model.ErrGit, err), msg, opts...)
}

// openMirror opens or creates the repository at path and points its remote at cloneURL
func openMirror(path, cloneURL string) (*gogit.Repository, error) {
	repo, err := gogit.PlainOpen(path)
	if errors.Is(err, gogit.ErrRepositoryNotExists) {
		repo, err = gogit.PlainInit(path, false)
	}
	if err != nil {
		return nil, err
	}

	cfg, err := repo.Config()
	if err != nil {
		return nil, err
	}
	cfg.Remotes[remoteName] = &config.RemoteConfig{
		Name: remoteName,
		URLs: []string{cloneURL},
	}
	if err := repo.SetConfig(cfg); err != nil {
		return nil, err
	}

	return repo, nil
}

func stagingRef(refName plumbing.ReferenceName) plumbing.ReferenceName {
	return plumbing.ReferenceName(stagingPrefix + strings.TrimPrefix(refName.String(), "refs/"))
}

// fetch retrieves refName into the staging namespace, plus every tag, and returns the fetched commit
func fetch(ctx context.Context, repo *gogit.Repository, refName plumbing.ReferenceName) (*object.Commit, error) {
	staging := stagingRef(refName)
	spec := config.RefSpec(fmt.Sprintf("+%s:%s", refName, staging))
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	err := repo.FetchContext(ctx, &gogit.FetchOptions{
		RemoteName: remoteName,
		RefSpecs:   []config.RefSpec{spec},
		Tags:       gogit.AllTags,
		Force:      true,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return nil, err
	}

	ref, err := repo.Reference(staging, true)
	if err != nil {
		return nil, err
	}
	return peelCommit(repo, ref.Hash())
}

// resolveCommit returns the commit refName points at, or nil when the reference does not exist
func resolveCommit(repo *gogit.Repository, refName plumbing.ReferenceName) (*object.Commit, error) {
	ref, err := repo.Reference(refName, true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return peelCommit(repo, ref.Hash())
}

// peelCommit resolves annotated tags down to their commit
func peelCommit(repo *gogit.Repository, hash plumbing.Hash) (*object.Commit, error) {
	obj, err := repo.Object(plumbing.AnyObject, hash)
	if err != nil {
		return nil, err
	}

	switch o := obj.(type) {
	case *object.Commit:
		return o, nil
	case *object.Tag:
		return o.Commit()
	default:
		return nil, goerr.New("reference does not point at a commit",
			goerr.V("hash", hash.String()),
			goerr.V("type", obj.Type().String()),
		)
	}
}

// checkoutRef makes refName the current HEAD and force checks out hash.
// Branches are attached symbolically, anything else leaves HEAD detached.
func checkoutRef(repo *gogit.Repository, refName plumbing.ReferenceName, hash plumbing.Hash) error {
	head := plumbing.NewHashReference(plumbing.HEAD, hash)
	if refName.IsBranch() {
		head = plumbing.NewSymbolicReference(plumbing.HEAD, refName)
	}
	if err := repo.Storer.SetReference(head); err != nil {
		return err
	}
	return hardReset(repo, hash)
}

// hardReset force checks out hash. Directories and files standing where the target tree
// needs the other kind are cleared first; the reset cannot replace one with the other.
func hardReset(repo *gogit.Repository, hash plumbing.Hash) error {
	commit, err := repo.CommitObject(hash)
	if err != nil {
		return err
	}
	files, err := commitFiles(commit)
	if err != nil {
		return err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	if err := unblockTree(wt.Filesystem, files); err != nil {
		return err
	}
	return wt.Reset(&gogit.ResetOptions{
		Commit: hash,
		Mode:   gogit.HardReset,
	})
}

// checkoutCommit hard resets the worktree, and refName, to the exact commit id
func checkoutCommit(repo *gogit.Repository, refName plumbing.ReferenceName, id string) error {
	if !plumbing.IsHash(id) {
		return goerr.New("not a commit id", goerr.V("commit", id))
	}

	hash := plumbing.NewHash(id)
	if _, err := repo.CommitObject(hash); err != nil {
		return err
	}
	return checkoutRef(repo, refName, hash)
}
