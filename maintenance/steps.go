package maintenance

import (
	"context"
	"time"

	"github.com/2thetop/scalar/errors"
)

// lastRunKey is the metadata key holding a kind's last successful run.
func lastRunKey(kind Kind) string {
	return "maintenance." + string(kind) + ".last_run"
}

// NewStep creates a step of the given kind.
//
// Forced steps are one-time requests: they ignore the minimum run interval
// and carry no dedup key. Unforced steps come from timers and are coalesced
// by kind.
func NewStep(kind Kind, mctx *Context, forced bool) (Step, error) {
	if mctx == nil || mctx.Objects == nil {
		return nil, errors.New(errors.CodeInvalidInput, "maintenance context requires an object store")
	}

	b := base{kind: kind, mctx: mctx, forced: forced}
	switch kind {
	case KindFetchCommitsAndTrees:
		return &fetchCommitsAndTreesStep{base: b}, nil
	case KindLooseObjects:
		b.minInterval = mctx.Config.LooseObjectsMinInterval
		return &looseObjectsStep{base: b}, nil
	case KindPackfile:
		b.minInterval = mctx.Config.PackfileMinInterval
		return &packfileStep{base: b}, nil
	case KindCommitGraph:
		return &commitGraphStep{base: b}, nil
	default:
		return nil, errors.WithContext(
			errors.New(errors.CodeInvalidInput, "unknown maintenance step"),
			"step", string(kind),
		)
	}
}

type base struct {
	kind        Kind
	mctx        *Context
	forced      bool
	minInterval time.Duration
}

func (b *base) Kind() Kind {
	return b.kind
}

func (b *base) DedupKey() string {
	if b.forced {
		return ""
	}
	return string(b.kind)
}

// recentlyRan reports whether the last recorded success is within the
// minimum interval.
func (b *base) recentlyRan(now time.Time) bool {
	if b.forced || b.minInterval <= 0 || b.mctx.Metadata == nil {
		return false
	}
	value, ok := b.mctx.Metadata.Entry(lastRunKey(b.kind))
	if !ok {
		return false
	}
	last, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		b.mctx.logger().Warn("ignoring unparsable last run time",
			"step", string(b.kind),
			"value", value)
		return false
	}
	return now.Sub(last) < b.minInterval
}

// run wraps a step body with gating, timing, bookkeeping and logging.
func (b *base) run(ctx context.Context, body func(ctx context.Context, res *StepResult) error) StepResult {
	logger := b.mctx.logger().With("step", string(b.kind))
	now := b.mctx.now()
	start := time.Now()
	res := StepResult{Kind: b.kind}

	if b.recentlyRan(now) {
		res.Success = true
		res.Skipped = true
		logger.Debug("skipping step, ran recently")
		return res
	}

	if err := ctx.Err(); err != nil {
		res.Err = errors.FromContext(err)
		return res
	}

	logger.Info("starting maintenance step", "forced", b.forced)
	err := body(ctx, &res)
	res.Duration = time.Since(start)

	if err != nil {
		res.Success = false
		res.Err = err
		logger.Error("maintenance step failed",
			"objects", res.Objects,
			"duration", res.Duration,
			"error", err)
		return res
	}

	res.Success = true
	if !res.Skipped && b.mctx.Metadata != nil {
		if err := b.mctx.Metadata.SetEntry(lastRunKey(b.kind), now.UTC().Format(time.RFC3339Nano)); err != nil {
			logger.Warn("failed to record last run", "error", err)
		}
	}
	logger.Info("maintenance step finished",
		"objects", res.Objects,
		"not_found", res.NotFound,
		"skipped", res.Skipped,
		"duration", res.Duration)
	return res
}

type fetchCommitsAndTreesStep struct{ base }

// Execute walks up to FetchMaxCommits commits breadth-first from every ref
// and fetches the commits and root trees missing locally. Missing commits
// are fetched before they are read so the walk can continue through them.
func (s *fetchCommitsAndTreesStep) Execute(ctx context.Context) StepResult {
	return s.run(ctx, func(ctx context.Context, res *StepResult) error {
		if s.mctx.Fetcher == nil {
			return errors.New(errors.CodeInvalidConfig, "no object fetcher configured")
		}
		store := s.mctx.Objects
		cfg := s.mctx.Config

		frontier, err := store.References()
		if err != nil {
			return err
		}

		visited := make(map[string]struct{}, len(frontier))
		for _, id := range frontier {
			visited[id] = struct{}{}
		}

		failed := 0
		walked := 0
		for len(frontier) > 0 && (cfg.FetchMaxCommits <= 0 || walked < cfg.FetchMaxCommits) {
			if cfg.FetchMaxCommits > 0 && len(frontier) > cfg.FetchMaxCommits-walked {
				frontier = frontier[:cfg.FetchMaxCommits-walked]
			}

			missing, err := s.missing(frontier)
			if err != nil {
				return err
			}
			failed += s.fetchBatches(ctx, missing, res)
			if err := ctx.Err(); err != nil {
				return errors.FromContext(err)
			}

			var next, trees []string
			for _, id := range frontier {
				walked++
				commit, err := store.ReadCommit(id)
				if errors.IsNotFound(err) {
					continue
				}
				if err != nil {
					return err
				}

				if _, seen := visited[commit.Tree]; !seen {
					visited[commit.Tree] = struct{}{}
					trees = append(trees, commit.Tree)
				}
				for _, p := range commit.Parents {
					if _, seen := visited[p]; !seen {
						visited[p] = struct{}{}
						next = append(next, p)
					}
				}
			}

			missingTrees, err := s.missing(trees)
			if err != nil {
				return err
			}
			failed += s.fetchBatches(ctx, missingTrees, res)
			if err := ctx.Err(); err != nil {
				return errors.FromContext(err)
			}

			frontier = next
		}

		if failed > 0 {
			return errors.WithContext(
				errors.Newf(errors.CodeNetwork, "failed to fetch %d objects", failed),
				"written", res.Objects,
			)
		}
		return nil
	})
}

func (s *fetchCommitsAndTreesStep) missing(ids []string) ([]string, error) {
	var out []string
	for _, id := range ids {
		has, err := s.mctx.Objects.HasObject(id)
		if err != nil {
			return nil, err
		}
		if !has {
			out = append(out, id)
		}
	}
	return out, nil
}

// fetchBatches fetches ids FetchBatchSize at a time and returns the number
// of objects that failed.
func (s *fetchCommitsAndTreesStep) fetchBatches(ctx context.Context, ids []string, res *StepResult) int {
	size := s.mctx.Config.FetchBatchSize
	if size <= 0 {
		size = len(ids)
	}

	failed := 0
	for start := 0; start < len(ids); start += size {
		if ctx.Err() != nil {
			break
		}
		end := min(start+size, len(ids))
		batch := s.mctx.Fetcher.FetchAll(ctx, ids[start:end], true)
		res.Objects += batch.Written
		res.NotFound += batch.NotFound
		failed += batch.Errors
	}
	return failed
}

type looseObjectsStep struct{ base }

// Execute removes loose objects that already live in a pack, then packs up
// to LooseObjectsBatchSize of the remaining ones.
func (s *looseObjectsStep) Execute(ctx context.Context) StepResult {
	return s.run(ctx, func(ctx context.Context, res *StepResult) error {
		store := s.mctx.Objects
		logger := s.mctx.logger().With("step", string(s.kind))

		before, err := store.LooseObjectIDs(0)
		if err != nil {
			return err
		}
		logger.Debug("loose objects before prune", "count", len(before))
		if len(before) == 0 {
			return nil
		}

		if err := store.PrunePacked(ctx); err != nil {
			return err
		}

		ids, err := store.LooseObjectIDs(s.mctx.Config.LooseObjectsBatchSize)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		if err := store.PackLooseObjects(ctx, ids); err != nil {
			return err
		}
		res.Objects = len(ids)
		return nil
	})
}

type packfileStep struct{ base }

// Execute writes, expires and repacks the multi-pack-index, then verifies
// it. A failed verification rewrites the index from scratch and fails the
// step.
func (s *packfileStep) Execute(ctx context.Context) StepResult {
	return s.run(ctx, func(ctx context.Context, res *StepResult) error {
		store := s.mctx.Objects

		if err := store.WriteMultiPackIndex(ctx); err != nil {
			return err
		}
		if err := store.ExpireMultiPackIndex(ctx); err != nil {
			return err
		}
		if err := store.RepackMultiPackIndex(ctx, s.mctx.Config.PackfileBatchSize); err != nil {
			return err
		}

		verifyErr := store.VerifyMultiPackIndex(ctx)
		if verifyErr == nil {
			return nil
		}
		if errors.IsCanceled(verifyErr) {
			return verifyErr
		}

		s.mctx.logger().Warn("multi-pack-index failed verification, rewriting",
			"step", string(s.kind),
			"error", verifyErr)
		if err := store.RemoveMultiPackIndex(); err != nil {
			return err
		}
		if err := store.WriteMultiPackIndex(ctx); err != nil {
			return err
		}
		return verifyErr
	})
}

type commitGraphStep struct{ base }

// Execute extends the split commit-graph and verifies its tip. A failed
// verification deletes the chain, rewrites it and fails the step.
func (s *commitGraphStep) Execute(ctx context.Context) StepResult {
	return s.run(ctx, func(ctx context.Context, res *StepResult) error {
		store := s.mctx.Objects

		if err := store.WriteCommitGraph(ctx); err != nil {
			return err
		}

		verifyErr := store.VerifyCommitGraph(ctx)
		if verifyErr == nil {
			return nil
		}
		if errors.IsCanceled(verifyErr) {
			return verifyErr
		}

		s.mctx.logger().Warn("commit-graph failed verification, rewriting",
			"step", string(s.kind),
			"error", verifyErr)
		if err := store.RemoveCommitGraph(); err != nil {
			return err
		}
		if err := store.WriteCommitGraph(ctx); err != nil {
			return err
		}
		return verifyErr
	})
}
