package model

import (
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// MergeOutcome is the result of merging a fetched commit into a mirror
type MergeOutcome int

const (
	MergeNoOp MergeOutcome = iota
	MergeFastForward
	MergeNormalCommitted
	MergeNormalConflicted
)

func (x MergeOutcome) String() string {
	switch x {
	case MergeNoOp:
		return "no-op"
	case MergeFastForward:
		return "fast-forward"
	case MergeNormalCommitted:
		return "merge-committed"
	case MergeNormalConflicted:
		return "merge-conflicted"
	default:
		return "unknown"
	}
}

// SyncRequest describes one synchronization run of a mirror
type SyncRequest struct {
	MirrorPath   string
	Repository   RepositoryRef
	FetchRefspec string
	// CheckoutCommit is the commit the worktree is hard reset to after merging. Empty for releases.
	CheckoutCommit string
}

// SyncResult reports what a synchronization run did
type SyncResult struct {
	Outcome       MergeOutcome
	FetchedCommit string
	MergeCommit   string // set only for MergeNormalCommitted
	HeadCommit    string
}

// MirrorPath maps a repository full name to its mirror directory under root.
// Path separators are replaced so the name cannot escape root.
func MirrorPath(root, fullName string) (string, error) {
	name := strings.NewReplacer("/", "__", `\`, "__").Replace(fullName)
	if name == "" || name == "." || name == ".." {
		return "", goerr.Wrap(ErrInvalidRepository, "cannot build mirror path", goerr.V("repository", fullName))
	}
	return filepath.Join(root, name), nil
}
