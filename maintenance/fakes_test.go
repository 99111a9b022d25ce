package maintenance_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/2thetop/scalar/fetch"
	"github.com/2thetop/scalar/git"
	"github.com/2thetop/scalar/git/testutil"
	"github.com/2thetop/scalar/maintenance"
)

// fakeStore records maintenance primitive calls. History queries are not
// supported; use a real git.Objects for FetchCommitsAndTrees.
type fakeStore struct {
	mu          sync.Mutex
	events      []string
	looseIDs    []string
	cacheServer bool
	errs        map[string]error
	delays      map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		errs:   make(map[string]error),
		delays: make(map[string]time.Duration),
	}
}

func (s *fakeStore) record(name string) error {
	s.mu.Lock()
	s.events = append(s.events, name)
	delay := s.delays[name]
	err := s.errs[name]
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
		s.mu.Lock()
		s.events = append(s.events, name+":done")
		s.mu.Unlock()
	}
	return err
}

func (s *fakeStore) failWith(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[name] = err
}

func (s *fakeStore) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func (s *fakeStore) IsUsingCacheServer() bool { return s.cacheServer }

func (s *fakeStore) References() ([]string, error) {
	return nil, s.record("References")
}

func (s *fakeStore) HasObject(string) (bool, error) {
	return true, s.record("HasObject")
}

func (s *fakeStore) ReadCommit(string) (*git.CommitInfo, error) {
	return nil, s.record("ReadCommit")
}

func (s *fakeStore) LooseObjectIDs(limit int) ([]string, error) {
	if err := s.record("LooseObjectIDs"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.looseIDs
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return append([]string(nil), ids...), nil
}

func (s *fakeStore) PrunePacked(context.Context) error {
	return s.record("PrunePacked")
}

func (s *fakeStore) PackLooseObjects(_ context.Context, ids []string) error {
	return s.record("PackLooseObjects")
}

func (s *fakeStore) WriteMultiPackIndex(context.Context) error {
	return s.record("WriteMultiPackIndex")
}

func (s *fakeStore) ExpireMultiPackIndex(context.Context) error {
	return s.record("ExpireMultiPackIndex")
}

func (s *fakeStore) RepackMultiPackIndex(_ context.Context, batchSize string) error {
	return s.record("RepackMultiPackIndex:" + batchSize)
}

func (s *fakeStore) VerifyMultiPackIndex(context.Context) error {
	return s.record("VerifyMultiPackIndex")
}

func (s *fakeStore) RemoveMultiPackIndex() error {
	return s.record("RemoveMultiPackIndex")
}

func (s *fakeStore) WriteCommitGraph(context.Context) error {
	return s.record("WriteCommitGraph")
}

func (s *fakeStore) VerifyCommitGraph(context.Context) error {
	return s.record("VerifyCommitGraph")
}

func (s *fakeStore) RemoveCommitGraph() error {
	return s.record("RemoveCommitGraph")
}

// fakeFetcher "downloads" by storing objects it holds into fs.
type fakeFetcher struct {
	t         testing.TB
	fs        billy.Filesystem
	available map[string]testutil.EncodedObject
	failing   map[string]bool

	mu      sync.Mutex
	batches [][]string
}

func newFakeFetcher(t testing.TB, fs billy.Filesystem, objs ...testutil.EncodedObject) *fakeFetcher {
	f := &fakeFetcher{
		t:         t,
		fs:        fs,
		available: make(map[string]testutil.EncodedObject),
		failing:   make(map[string]bool),
	}
	for _, o := range objs {
		f.available[o.ID] = o
	}
	return f
}

func (f *fakeFetcher) FetchAll(ctx context.Context, ids []string, retryOnFailure bool) fetch.BatchResult {
	f.mu.Lock()
	f.batches = append(f.batches, append([]string(nil), ids...))
	f.mu.Unlock()

	res := fetch.BatchResult{Results: make(map[string]fetch.Result)}
	for _, id := range ids {
		switch obj, ok := f.available[id]; {
		case f.failing[id]:
			res.Results[id] = fetch.Error
			res.Errors++
		case ok:
			testutil.Store(f.t, f.fs, obj)
			res.Results[id] = fetch.Success
			res.Written++
		default:
			res.Results[id] = fetch.NotFound
			res.NotFound++
		}
	}
	return res
}

func (f *fakeFetcher) Batches() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.batches...)
}

// memMetadata is an in-memory MetadataStore.
type memMetadata struct {
	mu      sync.Mutex
	entries map[string]string
}

func newMemMetadata() *memMetadata {
	return &memMetadata{entries: make(map[string]string)}
}

func (m *memMetadata) Entry(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok
}

func (m *memMetadata) SetEntry(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

// funcStep is a Step backed by a function.
type funcStep struct {
	kind maintenance.Kind
	key  string
	fn   func(ctx context.Context) maintenance.StepResult
}

func (s *funcStep) Kind() maintenance.Kind { return s.kind }
func (s *funcStep) DedupKey() string       { return s.key }

func (s *funcStep) Execute(ctx context.Context) maintenance.StepResult {
	if s.fn == nil {
		return maintenance.StepResult{Kind: s.kind, Success: true}
	}
	return s.fn(ctx)
}

// resultCollector gathers queue results.
type resultCollector struct {
	ch chan maintenance.StepResult
}

func newResultCollector() *resultCollector {
	return &resultCollector{ch: make(chan maintenance.StepResult, 64)}
}

func (c *resultCollector) handle(r maintenance.StepResult) {
	c.ch <- r
}

func (c *resultCollector) next(t *testing.T) maintenance.StepResult {
	t.Helper()
	select {
	case r := <-c.ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for step result")
		return maintenance.StepResult{}
	}
}

func (c *resultCollector) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case r := <-c.ch:
		t.Fatalf("unexpected step result for %s", r.Kind)
	case <-time.After(wait):
	}
}
