// Package exec runs local commands behind a mockable Executor interface.
//
// The maintenance steps drive the git CLI through this package (pack-objects,
// prune-packed, multi-pack-index, commit-graph). Command is the concrete
// implementation; CommandWrapper pins the program name so callers only pass
// arguments:
//
//	git := exec.NewWrapper(exec.New(exec.WithInheritEnv()), "git")
//	res, err := git.WithDir(repoPath).WithContext(ctx).Run("commit-graph", "write", "--reachable")
//
// Settings passed to New are global defaults; the With* methods set local
// overrides that apply to the next Run only and are reset afterwards.
//
// Failed commands return an *ExecError that carries the exit code and the
// captured output. The Result is returned alongside the error so callers can
// still inspect stderr.
package exec
