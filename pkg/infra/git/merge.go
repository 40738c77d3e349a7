package git

import (
	"context"
	"fmt"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/WaffleHacks/autodeploy/pkg/domain/model"
)

// analyze decides how fetched relates to local, the commit refName pointed at before fetching
func analyze(local, fetched *object.Commit) (model.MergeOutcome, error) {
	if local == nil {
		return model.MergeFastForward, nil
	}
	if local.Hash == fetched.Hash {
		return model.MergeNoOp, nil
	}

	ff, err := local.IsAncestor(fetched)
	if err != nil {
		return model.MergeNoOp, err
	}
	if ff {
		return model.MergeFastForward, nil
	}

	reachable, err := fetched.IsAncestor(local)
	if err != nil {
		return model.MergeNoOp, err
	}
	if reachable {
		return model.MergeNoOp, nil
	}

	// diverged; normalMerge settles whether the merge commits or conflicts
	return model.MergeNormalCommitted, nil
}

// merge integrates fetched into refName. The returned hash is the merge commit, if one was created.
func (s *Syncer) merge(ctx context.Context, repo *gogit.Repository, refName plumbing.ReferenceName, local, fetched *object.Commit) (model.MergeOutcome, plumbing.Hash, error) {
	logger := ctxlog.From(ctx)

	outcome, err := analyze(local, fetched)
	if err != nil {
		return outcome, plumbing.ZeroHash, err
	}

	switch outcome {
	case model.MergeFastForward:
		logger.Info("Merging with fast-forward", "ref", refName.String())
		return outcome, plumbing.ZeroHash, fastForward(repo, refName, fetched)

	case model.MergeNoOp:
		logger.Info("No merge necessary", "ref", refName.String())
		return outcome, plumbing.ZeroHash, nil

	default:
		logger.Info("Merging normally", "ref", refName.String())
		return s.normalMerge(ctx, repo, refName, local, fetched)
	}
}

func fastForward(repo *gogit.Repository, refName plumbing.ReferenceName, target *object.Commit) error {
	// tags fetched alongside may already point at the target, possibly through an annotated tag
	current, err := resolveCommit(repo, refName)
	if err != nil {
		return err
	}
	if current == nil || current.Hash != target.Hash {
		if err := repo.Storer.SetReference(plumbing.NewHashReference(refName, target.Hash)); err != nil {
			return err
		}
	}

	return checkoutRef(repo, refName, target.Hash)
}

func (s *Syncer) normalMerge(ctx context.Context, repo *gogit.Repository, refName plumbing.ReferenceName, local, fetched *object.Commit) (model.MergeOutcome, plumbing.Hash, error) {
	logger := ctxlog.From(ctx)

	bases, err := local.MergeBase(fetched)
	if err != nil {
		return model.MergeNoOp, plumbing.ZeroHash, err
	}
	if len(bases) == 0 {
		return model.MergeNoOp, plumbing.ZeroHash, goerr.New("no merge base found",
			goerr.V("local", local.Hash.String()),
			goerr.V("fetched", fetched.Hash.String()),
		)
	}

	baseFiles, err := commitFiles(bases[0])
	if err != nil {
		return model.MergeNoOp, plumbing.ZeroHash, err
	}
	localFiles, err := commitFiles(local)
	if err != nil {
		return model.MergeNoOp, plumbing.ZeroHash, err
	}
	remoteFiles, err := commitFiles(fetched)
	if err != nil {
		return model.MergeNoOp, plumbing.ZeroHash, err
	}

	merged, conflicts := mergeFileSets(baseFiles, localFiles, remoteFiles)
	if len(conflicts) > 0 {
		logger.Error("Merge conflicts detected, cannot resolve automatically",
			"conflicts", conflicts,
			"local", local.Hash.String(),
			"fetched", fetched.Hash.String(),
		)
		if err := checkoutConflicted(repo, refName, local, fetched, localFiles, remoteFiles, merged, conflicts); err != nil {
			return model.MergeNormalConflicted, plumbing.ZeroHash, err
		}
		return model.MergeNormalConflicted, plumbing.ZeroHash, nil
	}

	treeHash, err := writeTree(repo.Storer, merged)
	if err != nil {
		return model.MergeNoOp, plumbing.ZeroHash, err
	}

	sig := object.Signature{
		Name:  s.signatureName,
		Email: s.signatureEmail,
		When:  s.now(),
	}
	commit := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      fmt.Sprintf("Merge: %s into %s", fetched.Hash, local.Hash),
		TreeHash:     treeHash,
		ParentHashes: []plumbing.Hash{local.Hash, fetched.Hash},
	}

	obj := repo.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return model.MergeNoOp, plumbing.ZeroHash, err
	}
	commitHash, err := repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return model.MergeNoOp, plumbing.ZeroHash, err
	}

	if err := repo.Storer.SetReference(plumbing.NewHashReference(refName, commitHash)); err != nil {
		return model.MergeNoOp, plumbing.ZeroHash, err
	}
	if err := checkoutRef(repo, refName, commitHash); err != nil {
		return model.MergeNoOp, plumbing.ZeroHash, err
	}

	logger.Info("Merged fetched commit",
		"merge_commit", commitHash.String(),
		"local", local.Hash.String(),
		"fetched", fetched.Hash.String(),
	)

	return model.MergeNormalCommitted, commitHash, nil
}
