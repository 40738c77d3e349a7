package model

// ActionKind selects which kind of event a policy rule applies to
type ActionKind int

const (
	ActionPush ActionKind = iota + 1
	ActionRelease
)

func (x ActionKind) String() string {
	switch x {
	case ActionPush:
		return "push"
	case ActionRelease:
		return "release"
	default:
		return "unknown"
	}
}

// RepoMode selects how a policy rule matches repository names
type RepoMode int

const (
	ModeAll RepoMode = iota + 1
	ModeBlacklist
	ModeWhitelist
)

func (x RepoMode) String() string {
	switch x {
	case ModeAll:
		return "all"
	case ModeBlacklist:
		return "blacklist"
	case ModeWhitelist:
		return "whitelist"
	default:
		return "unknown"
	}
}

// ActionMatcher matches the branch of an event. Branch is only meaningful for ActionPush.
type ActionMatcher struct {
	Kind   ActionKind
	Branch string
}

// PushAction matches pushes to branch
func PushAction(branch string) ActionMatcher {
	return ActionMatcher{Kind: ActionPush, Branch: branch}
}

// ReleaseAction matches any branch, including none
func ReleaseAction() ActionMatcher {
	return ActionMatcher{Kind: ActionRelease}
}

// Matches reports whether branch is accepted. A nil branch stands for a release.
func (m ActionMatcher) Matches(branch *string) bool {
	switch m.Kind {
	case ActionRelease:
		return true
	case ActionPush:
		return branch != nil && *branch == m.Branch
	default:
		return false
	}
}

// RepoMatcher matches repository full names
type RepoMatcher struct {
	Mode         RepoMode
	Repositories map[string]struct{}
}

// AllRepositories matches every repository
func AllRepositories() RepoMatcher {
	return RepoMatcher{Mode: ModeAll}
}

// Blacklist matches every repository except names
func Blacklist(names ...string) RepoMatcher {
	return RepoMatcher{Mode: ModeBlacklist, Repositories: toSet(names)}
}

// Whitelist matches only names
func Whitelist(names ...string) RepoMatcher {
	return RepoMatcher{Mode: ModeWhitelist, Repositories: toSet(names)}
}

// Matches reports whether name is accepted
func (m RepoMatcher) Matches(name string) bool {
	_, listed := m.Repositories[name]
	switch m.Mode {
	case ModeAll:
		return true
	case ModeBlacklist:
		return !listed
	case ModeWhitelist:
		return listed
	default:
		return false
	}
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

// PolicyRule allows deployments matching both its action and repository matcher
type PolicyRule struct {
	Action ActionMatcher
	Repo   RepoMatcher
}

// Matches reports whether the rule accepts the repository and branch
func (r PolicyRule) Matches(repository string, branch *string) bool {
	return r.Repo.Matches(repository) && r.Action.Matches(branch)
}

// PolicyRules is the ordered rule list loaded at startup
type PolicyRules []PolicyRule

// IsDeployable returns true when the rule list is empty or any rule matches.
// Rules are evaluated in order and the first match wins.
func (rs PolicyRules) IsDeployable(repository string, branch *string) bool {
	if len(rs) == 0 {
		return true
	}

	for _, rule := range rs {
		if rule.Matches(repository, branch) {
			return true
		}
	}
	return false
}
