// Package maintenance keeps a local object store healthy in the background.
//
// Work is modeled as Steps. A Scheduler owns one recurring timer per step
// kind and pushes fresh steps into a Queue, whose single worker runs them
// one at a time so no two steps ever mutate the object store concurrently.
// Out-of-band requests enter the same queue through
// Scheduler.EnqueueOneTimeStep.
//
// Basic usage:
//
//	mctx := &maintenance.Context{
//	    Objects: objects,
//	    Fetcher: fetcher,
//	    Config:  maintenance.DefaultConfig(),
//	    Logger:  logger,
//	}
//	sched := maintenance.NewScheduler(ctx, mctx)
//	defer sched.Close()
//
//	step, _ := sched.NewOneTimeStep(maintenance.KindCommitGraph)
//	sched.EnqueueOneTimeStep(step)
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/2thetop/scalar/fetch"
	"github.com/2thetop/scalar/git"
)

// HistoryStore reads commits and refs from the local object store.
type HistoryStore interface {
	References() ([]string, error)
	HasObject(id string) (bool, error)
	ReadCommit(id string) (*git.CommitInfo, error)
}

// LooseObjectStore compacts loose objects.
type LooseObjectStore interface {
	LooseObjectIDs(limit int) ([]string, error)
	PrunePacked(ctx context.Context) error
	PackLooseObjects(ctx context.Context, ids []string) error
}

// PackStore maintains the multi-pack-index.
type PackStore interface {
	WriteMultiPackIndex(ctx context.Context) error
	ExpireMultiPackIndex(ctx context.Context) error
	RepackMultiPackIndex(ctx context.Context, batchSize string) error
	VerifyMultiPackIndex(ctx context.Context) error
	RemoveMultiPackIndex() error
}

// CommitGraphStore maintains the commit-graph chain.
type CommitGraphStore interface {
	WriteCommitGraph(ctx context.Context) error
	VerifyCommitGraph(ctx context.Context) error
	RemoveCommitGraph() error
}

// ObjectStore is everything the steps need from the object store.
// *git.Objects satisfies it.
type ObjectStore interface {
	HistoryStore
	LooseObjectStore
	PackStore
	CommitGraphStore
	IsUsingCacheServer() bool
}

// ObjectFetcher downloads a set of missing objects with one scratch buffer.
// *fetch.Fetcher satisfies it.
type ObjectFetcher interface {
	FetchAll(ctx context.Context, ids []string, retryOnFailure bool) fetch.BatchResult
}

// MetadataStore persists step bookkeeping. *metadata.Store satisfies it.
type MetadataStore interface {
	Entry(key string) (string, bool)
	SetEntry(key, value string) error
}

// Config carries per-step tuning.
type Config struct {
	// FetchBatchSize is the number of objects requested per fetch batch.
	FetchBatchSize int

	// FetchMaxCommits bounds the history walk of FetchCommitsAndTrees.
	FetchMaxCommits int

	// LooseObjectsBatchSize bounds the number of loose objects packed per run.
	LooseObjectsBatchSize int

	// PackfileBatchSize is passed to git multi-pack-index repack --batch-size.
	PackfileBatchSize string

	// LooseObjectsMinInterval and PackfileMinInterval skip timer-triggered
	// runs that follow a successful run too closely.
	LooseObjectsMinInterval time.Duration
	PackfileMinInterval     time.Duration
}

// DefaultConfig returns the default step tuning.
func DefaultConfig() Config {
	return Config{
		FetchBatchSize:          4000,
		FetchMaxCommits:         1000,
		LooseObjectsBatchSize:   50000,
		PackfileBatchSize:       "2g",
		LooseObjectsMinInterval: 24 * time.Hour,
		PackfileMinInterval:     24 * time.Hour,
	}
}

// Context is the shared state every step runs against. It is constructed
// once by the owner and passed explicitly; steps never mutate it.
type Context struct {
	Objects ObjectStore

	// Fetcher may be nil, in which case FetchCommitsAndTrees fails.
	Fetcher ObjectFetcher

	// Metadata may be nil, in which case run-interval gating is disabled.
	Metadata MetadataStore

	// Unattended disables recurring timers.
	Unattended bool

	Config Config
	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

func (c *Context) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Context) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// StepResult is the immutable outcome of one step execution. It is only
// logged and reported; it never changes scheduling.
type StepResult struct {
	Kind    Kind
	Success bool

	// Skipped is set when the step decided there was nothing to do yet.
	Skipped bool

	// Objects is the number of objects packed or written.
	Objects int

	// NotFound counts objects the remote reported absent.
	NotFound int

	Err      error
	Duration time.Duration
}

// Step is one unit of maintenance work. A Step is executed at most once.
type Step interface {
	Kind() Kind

	// DedupKey coalesces pending duplicates in the queue. Empty means the
	// step is never coalesced.
	DedupKey() string

	Execute(ctx context.Context) StepResult
}
