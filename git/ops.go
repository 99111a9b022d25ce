package git

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/2thetop/scalar/errors"
	"github.com/2thetop/scalar/exec"
)

// looseObjectsPackPrefix is the pack name prefix used when packing loose
// objects. git appends the pack checksum.
const looseObjectsPackPrefix = "objects/pack/loose"

// MaintenanceOperations runs the git CLI commands used by maintenance.
// go-git has no equivalent for multi-pack-index or split commit-graph
// upkeep, so these shell out.
type MaintenanceOperations interface {
	// PrunePacked removes loose objects that are already in a pack.
	PrunePacked(ctx context.Context) error

	// PackObjects writes ids into a new pack named after prefix.
	PackObjects(ctx context.Context, prefix string, ids []string) error

	// WriteMultiPackIndex writes a multi-pack-index covering every pack.
	WriteMultiPackIndex(ctx context.Context) error

	// ExpireMultiPackIndex deletes packs whose objects are all in newer packs.
	ExpireMultiPackIndex(ctx context.Context) error

	// RepackMultiPackIndex combines small packs up to batchSize.
	RepackMultiPackIndex(ctx context.Context, batchSize string) error

	// VerifyMultiPackIndex checks the multi-pack-index.
	VerifyMultiPackIndex(ctx context.Context) error

	// WriteCommitGraph extends the split commit-graph with reachable commits.
	WriteCommitGraph(ctx context.Context) error

	// VerifyCommitGraph checks the tip of the commit-graph chain.
	VerifyCommitGraph(ctx context.Context) error
}

// defaultMaintenanceOps implements MaintenanceOperations using the git CLI.
type defaultMaintenanceOps struct {
	command exec.Executor
	fs      billy.Filesystem
	gitDir  string
}

func newDefaultMaintenanceOps(command exec.Executor, fs billy.Filesystem, gitDir string) *defaultMaintenanceOps {
	return &defaultMaintenanceOps{
		command: command,
		fs:      fs,
		gitDir:  gitDir,
	}
}

// run executes git with args against the .git directory.
func (d *defaultMaintenanceOps) run(ctx context.Context, stdin string, args ...string) (*exec.Result, error) {
	if isMemoryFilesystem(d.fs) {
		return nil, errors.New(errors.CodeInvalidInput, "git maintenance is not supported with a memory filesystem")
	}

	git := exec.NewWrapper(d.command.Clone(), "git").
		WithInheritEnv().
		WithEnv(map[string]string{"GIT_TERMINAL_PROMPT": "0"}).
		WithContext(ctx)
	if stdin != "" {
		git = git.WithStdin(strings.NewReader(stdin))
	}

	full := append([]string{"--git-dir", d.gitDir}, args...)
	return git.Run(full...)
}

func (d *defaultMaintenanceOps) PrunePacked(ctx context.Context) error {
	if _, err := d.run(ctx, "", "prune-packed", "-q"); err != nil {
		return mapExecError(err, "failed to prune packed objects")
	}
	return nil
}

func (d *defaultMaintenanceOps) PackObjects(ctx context.Context, prefix string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	stdin := strings.Join(ids, "\n") + "\n"
	if _, err := d.run(ctx, stdin, "pack-objects", "-q", filepath.Join(d.gitDir, prefix)); err != nil {
		return mapExecError(err, "failed to pack loose objects")
	}
	return nil
}

func (d *defaultMaintenanceOps) WriteMultiPackIndex(ctx context.Context) error {
	if _, err := d.run(ctx, "", "multi-pack-index", "write", "--no-progress"); err != nil {
		return mapExecError(err, "failed to write multi-pack-index")
	}
	return nil
}

func (d *defaultMaintenanceOps) ExpireMultiPackIndex(ctx context.Context) error {
	if _, err := d.run(ctx, "", "multi-pack-index", "expire", "--no-progress"); err != nil {
		return mapExecError(err, "failed to expire multi-pack-index")
	}
	return nil
}

func (d *defaultMaintenanceOps) RepackMultiPackIndex(ctx context.Context, batchSize string) error {
	args := []string{"multi-pack-index", "repack", "--no-progress"}
	if batchSize != "" {
		args = append(args, "--batch-size="+batchSize)
	}
	if _, err := d.run(ctx, "", args...); err != nil {
		return mapExecError(err, "failed to repack multi-pack-index")
	}
	return nil
}

func (d *defaultMaintenanceOps) VerifyMultiPackIndex(ctx context.Context) error {
	if _, err := d.run(ctx, "", "multi-pack-index", "verify", "--no-progress"); err != nil {
		return mapExecError(err, "multi-pack-index verification failed")
	}
	return nil
}

func (d *defaultMaintenanceOps) WriteCommitGraph(ctx context.Context) error {
	_, err := d.run(ctx, "", "commit-graph", "write", "--reachable", "--split", "--size-multiple=4", "--no-progress")
	if err != nil {
		return mapExecError(err, "failed to write commit-graph")
	}
	return nil
}

func (d *defaultMaintenanceOps) VerifyCommitGraph(ctx context.Context) error {
	if _, err := d.run(ctx, "", "commit-graph", "verify", "--shallow", "--no-progress"); err != nil {
		return mapExecError(err, "commit-graph verification failed")
	}
	return nil
}
