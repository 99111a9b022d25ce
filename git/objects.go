package git

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/objfile"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/2thetop/scalar/errors"
	"github.com/2thetop/scalar/exec"
)

const (
	multiPackIndexPath  = "objects/pack/multi-pack-index"
	commitGraphDir      = "objects/info/commit-graphs"
	commitGraphFilePath = "objects/info/commit-graph"
)

// CommitInfo is the subset of a commit the maintenance steps walk.
type CommitInfo struct {
	ID      string
	Tree    string
	Parents []string
	When    time.Time
}

// Objects is the object database of one .git directory.
//
// Objects is safe for concurrent use. The go-git storage is rebuilt after
// operations that add or remove packs so reads see the new layout.
type Objects struct {
	gitDir         string
	fs             billy.Filesystem
	originURL      string
	cacheServerURL string
	ops            MaintenanceOperations
	logger         *slog.Logger

	mu      sync.RWMutex
	storage *filesystem.Storage
}

// Open opens the object database of the .git directory at gitDir.
//
// Returns a NOT_FOUND error if gitDir has no objects directory.
//
// Examples:
//
//	// Open an enlistment's .git directory
//	objs, err := git.Open("/src/repo/.git", git.WithOriginURL(origin))
//
//	// Open an in-memory object database (for testing)
//	objs, err := git.Open("/repo/.git", git.WithFilesystem(memfs.New()))
func Open(gitDir string, opts ...Option) (*Objects, error) {
	options := &options{}
	for _, opt := range opts {
		opt(options)
	}

	fs := options.fs
	if fs == nil {
		fs = osfs.New(gitDir)
	}

	if _, err := fs.Stat("objects"); err != nil {
		return nil, errors.WithContext(
			wrapError(err, "not a git directory"),
			"git_dir", gitDir,
		)
	}

	logger := options.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ops := options.ops
	if ops == nil {
		command := options.executor
		if command == nil {
			command = exec.New()
		}
		ops = newDefaultMaintenanceOps(command, fs, gitDir)
	}

	return &Objects{
		gitDir:         gitDir,
		fs:             fs,
		originURL:      options.originURL,
		cacheServerURL: options.cacheServerURL,
		ops:            ops,
		logger:         logger.With("git_dir", gitDir),
		storage:        filesystem.NewStorage(fs, cache.NewObjectLRUDefault()),
	}, nil
}

// GitDir returns the path of the .git directory.
func (o *Objects) GitDir() string {
	return o.gitDir
}

// Filesystem returns the filesystem rooted at the .git directory.
func (o *Objects) Filesystem() billy.Filesystem {
	return o.fs
}

// OriginURL returns the origin URL.
func (o *Objects) OriginURL() string {
	return o.originURL
}

// CacheServerURL returns the configured cache server URL, which may be empty.
func (o *Objects) CacheServerURL() string {
	return o.cacheServerURL
}

// IsUsingCacheServer reports whether objects come from a cache server
// rather than the origin. A cache server URL equal to the origin URL
// does not count.
func (o *Objects) IsUsingCacheServer() bool {
	if o.cacheServerURL == "" {
		return false
	}
	return normalizeURL(o.cacheServerURL) != normalizeURL(o.originURL)
}

func normalizeURL(rawURL string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(rawURL), "/"))
}

func (o *Objects) store() *filesystem.Storage {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.storage
}

// refresh rebuilds the storage so newly written or deleted packs are seen.
func (o *Objects) refresh() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.storage = filesystem.NewStorage(o.fs, cache.NewObjectLRUDefault())
}

// HasObject reports whether the object exists loose or in a pack.
func (o *Objects) HasObject(id string) (bool, error) {
	id = NormalizeID(id)
	if err := ValidateID(id); err != nil {
		return false, err
	}

	err := o.store().HasEncodedObject(plumbing.NewHash(id))
	if err == nil {
		return true, nil
	}
	if stderrors.Is(err, plumbing.ErrObjectNotFound) {
		return false, nil
	}
	return false, errors.WithContext(wrapError(err, "failed to look up object"), "object_id", id)
}

// WriteLooseObject stores the compressed loose object read from r under id.
//
// The bytes are written to a temporary file in objects/, then inflated and
// hashed. Only when the hash equals id is the file renamed to its final
// path, replacing any existing copy. buf is used as scratch space for both
// passes; callers writing many objects should reuse one buffer. A nil buf
// allocates.
//
// Returns INVALID_INPUT for a malformed id and CORRUPT_OBJECT when the
// content does not hash to id.
func (o *Objects) WriteLooseObject(r io.Reader, id string, buf []byte) error {
	id = NormalizeID(id)
	if err := ValidateID(id); err != nil {
		return err
	}
	if len(buf) == 0 {
		buf = nil
	}

	if err := o.fs.MkdirAll("objects", 0o755); err != nil {
		return wrapError(err, "failed to create objects directory")
	}

	tmp, err := o.fs.TempFile("objects", "tmp_obj_")
	if err != nil {
		return wrapError(err, "failed to create temporary object file")
	}
	tmpName := tmp.Name()

	cleanup := func() {
		_ = o.fs.Remove(tmpName)
	}

	if _, err := copyBuffer(tmp, r, buf); err != nil {
		_ = tmp.Close()
		cleanup()
		return errors.WithContext(
			errors.Wrap(err, errors.CodeNetwork, "failed to read object content"),
			"object_id", id,
		)
	}
	if err := syncFile(tmp); err != nil {
		_ = tmp.Close()
		cleanup()
		return wrapError(err, "failed to sync temporary object file")
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return wrapError(err, "failed to close temporary object file")
	}

	if err := o.verifyLooseObject(tmpName, id, buf); err != nil {
		cleanup()
		return err
	}

	final := looseObjectPath(id)
	if err := o.fs.MkdirAll(path.Dir(final), 0o755); err != nil {
		cleanup()
		return wrapError(err, "failed to create object directory")
	}
	if err := o.fs.Rename(tmpName, final); err != nil {
		cleanup()
		return errors.WithContext(wrapError(err, "failed to move object into place"), "object_id", id)
	}

	return nil
}

// copyBuffer is io.CopyBuffer that always stages through buf. io.CopyBuffer
// bypasses buf when src implements io.WriterTo or dst implements
// io.ReaderFrom, as *os.File does.
func copyBuffer(dst io.Writer, src io.Reader, buf []byte) (int64, error) {
	return io.CopyBuffer(struct{ io.Writer }{dst}, struct{ io.Reader }{src}, buf)
}

// verifyLooseObject checks that the file at name is a well-formed loose
// object whose hash equals id.
func (o *Objects) verifyLooseObject(name, id string, buf []byte) error {
	corrupt := func(err error, msg string) error {
		var pe errors.PlatformError
		if err == nil {
			pe = errors.New(errors.CodeCorruptObject, msg)
		} else {
			pe = errors.Wrap(err, errors.CodeCorruptObject, msg)
		}
		return errors.WithContext(pe, "object_id", id)
	}

	f, err := o.fs.Open(name)
	if err != nil {
		return wrapError(err, "failed to reopen temporary object file")
	}
	defer f.Close()

	rd, err := objfile.NewReader(f)
	if err != nil {
		return corrupt(err, "object is not zlib compressed")
	}
	defer rd.Close()

	_, size, err := rd.Header()
	if err != nil {
		return corrupt(err, "object header is malformed")
	}

	n, err := io.CopyBuffer(io.Discard, rd, buf)
	if err != nil {
		return corrupt(err, "object content is malformed")
	}
	if n != size {
		return corrupt(nil, "object content is truncated")
	}

	if got := rd.Hash().String(); got != id {
		return errors.WithContext(corrupt(nil, "object hash does not match id"), "actual_id", got)
	}
	return nil
}

// LooseObjectIDs returns up to limit loose object ids. A limit of zero or
// less returns all of them.
func (o *Objects) LooseObjectIDs(limit int) ([]string, error) {
	var ids []string
	err := o.store().ForEachObjectHash(func(h plumbing.Hash) error {
		ids = append(ids, h.String())
		if limit > 0 && len(ids) >= limit {
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, wrapError(err, "failed to enumerate loose objects")
	}
	return ids, nil
}

// References returns the distinct object ids that refs point at, with
// symbolic refs such as HEAD resolved. Dangling symbolic refs are skipped.
func (o *Objects) References() ([]string, error) {
	s := o.store()

	iter, err := s.IterReferences()
	if err != nil {
		return nil, wrapError(err, "failed to list references")
	}
	defer iter.Close()

	seen := make(map[string]struct{})
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() == plumbing.SymbolicReference {
			resolved, err := storer.ResolveReference(s, ref.Name())
			if err != nil {
				o.logger.Debug("skipping unresolvable reference",
					"ref", ref.Name().String(),
					"error", err)
				return nil
			}
			ref = resolved
		}
		if !ref.Hash().IsZero() {
			seen[ref.Hash().String()] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, wrapError(err, "failed to iterate references")
	}

	// HEAD is not always returned by the iterator.
	if head, err := storer.ResolveReference(s, plumbing.HEAD); err == nil && !head.Hash().IsZero() {
		seen[head.Hash().String()] = struct{}{}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ReadCommit decodes the commit with the given id.
//
// Returns NOT_FOUND if the commit is not present locally.
func (o *Objects) ReadCommit(id string) (*CommitInfo, error) {
	id = NormalizeID(id)
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	s := o.store()
	obj, err := s.EncodedObject(plumbing.CommitObject, plumbing.NewHash(id))
	if err != nil {
		return nil, errors.WithContext(wrapError(err, "failed to read commit"), "object_id", id)
	}

	commit, err := object.DecodeCommit(s, obj)
	if err != nil {
		return nil, errors.WithContext(
			errors.Wrap(err, errors.CodeCorruptObject, "failed to decode commit"),
			"object_id", id,
		)
	}

	parents := make([]string, 0, len(commit.ParentHashes))
	for _, p := range commit.ParentHashes {
		parents = append(parents, p.String())
	}

	return &CommitInfo{
		ID:      id,
		Tree:    commit.TreeHash.String(),
		Parents: parents,
		When:    commit.Committer.When,
	}, nil
}

// ReadSubtrees returns the ids of the directories directly inside the tree
// with the given id. Submodule entries are not included.
//
// Returns NOT_FOUND if the tree is not present locally.
func (o *Objects) ReadSubtrees(id string) ([]string, error) {
	id = NormalizeID(id)
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	s := o.store()
	obj, err := s.EncodedObject(plumbing.TreeObject, plumbing.NewHash(id))
	if err != nil {
		return nil, errors.WithContext(wrapError(err, "failed to read tree"), "object_id", id)
	}

	tree, err := object.DecodeTree(s, obj)
	if err != nil {
		return nil, errors.WithContext(
			errors.Wrap(err, errors.CodeCorruptObject, "failed to decode tree"),
			"object_id", id,
		)
	}

	var subtrees []string
	for _, entry := range tree.Entries {
		if entry.Mode == filemode.Dir {
			subtrees = append(subtrees, entry.Hash.String())
		}
	}
	return subtrees, nil
}

// PrunePacked deletes loose objects that already exist in a pack.
func (o *Objects) PrunePacked(ctx context.Context) error {
	return o.ops.PrunePacked(ctx)
}

// PackLooseObjects packs ids into a new pack under objects/pack.
func (o *Objects) PackLooseObjects(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	defer o.refresh()
	return o.ops.PackObjects(ctx, looseObjectsPackPrefix, ids)
}

// WriteMultiPackIndex writes a multi-pack-index over all packs.
func (o *Objects) WriteMultiPackIndex(ctx context.Context) error {
	defer o.refresh()
	return o.ops.WriteMultiPackIndex(ctx)
}

// ExpireMultiPackIndex removes packs no longer referenced by the multi-pack-index.
func (o *Objects) ExpireMultiPackIndex(ctx context.Context) error {
	defer o.refresh()
	return o.ops.ExpireMultiPackIndex(ctx)
}

// RepackMultiPackIndex combines small packs into one of at most batchSize.
func (o *Objects) RepackMultiPackIndex(ctx context.Context, batchSize string) error {
	defer o.refresh()
	return o.ops.RepackMultiPackIndex(ctx, batchSize)
}

// VerifyMultiPackIndex checks the multi-pack-index.
func (o *Objects) VerifyMultiPackIndex(ctx context.Context) error {
	return o.ops.VerifyMultiPackIndex(ctx)
}

// RemoveMultiPackIndex deletes the multi-pack-index file if present.
func (o *Objects) RemoveMultiPackIndex() error {
	defer o.refresh()
	if err := o.fs.Remove(multiPackIndexPath); err != nil && !os.IsNotExist(err) {
		return wrapError(err, "failed to remove multi-pack-index")
	}
	return nil
}

// WriteCommitGraph extends the commit-graph with all reachable commits.
func (o *Objects) WriteCommitGraph(ctx context.Context) error {
	return o.ops.WriteCommitGraph(ctx)
}

// VerifyCommitGraph checks the commit-graph.
func (o *Objects) VerifyCommitGraph(ctx context.Context) error {
	return o.ops.VerifyCommitGraph(ctx)
}

// RemoveCommitGraph deletes the commit-graph chain and any single-file graph.
func (o *Objects) RemoveCommitGraph() error {
	entries, err := o.fs.ReadDir(commitGraphDir)
	if err != nil && !os.IsNotExist(err) {
		return wrapError(err, "failed to list commit-graph files")
	}
	for _, entry := range entries {
		if err := o.fs.Remove(path.Join(commitGraphDir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return wrapError(err, "failed to remove commit-graph file")
		}
	}
	if err := o.fs.Remove(commitGraphFilePath); err != nil && !os.IsNotExist(err) {
		return wrapError(err, "failed to remove commit-graph")
	}
	return nil
}
