package maintenance

import (
	"strings"

	"github.com/2thetop/scalar/errors"
)

// Kind identifies a maintenance step variant.
type Kind string

const (
	// KindFetchCommitsAndTrees prefetches missing commits and root trees
	// reachable from local refs.
	KindFetchCommitsAndTrees Kind = "fetch_commits_and_trees"

	// KindLooseObjects packs accumulated loose objects.
	KindLooseObjects Kind = "loose_objects"

	// KindPackfile maintains the multi-pack-index and repacks small packs.
	KindPackfile Kind = "packfile"

	// KindCommitGraph rewrites the commit-graph chain.
	KindCommitGraph Kind = "commit_graph"
)

// Kinds lists every step kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindFetchCommitsAndTrees, KindLooseObjects, KindPackfile, KindCommitGraph}
}

func (k Kind) String() string {
	return string(k)
}

// ParseKind resolves a step kind by name. Matching ignores case and accepts
// '-' in place of '_'.
func ParseKind(name string) (Kind, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for _, k := range Kinds() {
		if string(k) == normalized {
			return k, nil
		}
	}
	return "", errors.WithContext(
		errors.New(errors.CodeInvalidInput, "unknown maintenance step"),
		"step", name,
	)
}
