// Package fetch downloads individual missing objects into the local object
// store.
//
// A Fetcher consults a negative cache before touching the network, retries
// transient failures through a retry.Invoker and records definitive 404s so
// the same absent object is not requested again within the cache TTL.
// Concurrent requests for the same id share one round-trip.
package fetch

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/2thetop/scalar/errors"
	"github.com/2thetop/scalar/git"
	"github.com/2thetop/scalar/negcache"
	"github.com/2thetop/scalar/retry"
)

// DefaultBufferSize is the size of the scratch buffer used to copy object
// bodies.
const DefaultBufferSize = 80 * 1024

// Result is the outcome of a fetch.
type Result int

const (
	// Success means the object is now durably present in the store.
	Success Result = iota

	// NotFound means the remote definitively does not have the object.
	NotFound

	// Error means the fetch failed for any other reason.
	Error
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case NotFound:
		return "not_found"
	case Error:
		return "error"
	default:
		return "result(" + strconv.Itoa(int(r)) + ")"
	}
}

// Downloader requests a single compressed loose object from the remote.
type Downloader interface {
	DownloadLooseObject(ctx context.Context, id string) (io.ReadCloser, error)
}

// ObjectWriter stores a compressed loose object.
type ObjectWriter interface {
	WriteLooseObject(r io.Reader, id string, buf []byte) error
}

// Fetcher downloads objects on demand. It is safe for concurrent use.
type Fetcher struct {
	downloader Downloader
	objects    ObjectWriter
	negative   *negcache.Cache
	invoker    *retry.Invoker[struct{}]
	group      singleflight.Group
	bufferSize int
	logger     *slog.Logger
}

// Option configures a Fetcher.
type Option func(*fetcherOptions)

type fetcherOptions struct {
	negative   *negcache.Cache
	policy     retry.Policy
	retryOpts  []retry.Option
	bufferSize int
	logger     *slog.Logger
}

// WithNegativeCache shares a negative cache. By default each Fetcher has
// its own with negcache.DefaultTTL.
func WithNegativeCache(c *negcache.Cache) Option {
	return func(o *fetcherOptions) {
		o.negative = c
	}
}

// WithRetryPolicy sets the retry policy and optional invoker options.
func WithRetryPolicy(policy retry.Policy, opts ...retry.Option) Option {
	return func(o *fetcherOptions) {
		o.policy = policy
		o.retryOpts = opts
	}
}

// WithBufferSize sets the scratch buffer size.
func WithBufferSize(n int) Option {
	return func(o *fetcherOptions) {
		o.bufferSize = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *fetcherOptions) {
		o.logger = logger
	}
}

// New creates a Fetcher that downloads with downloader and writes into objects.
func New(downloader Downloader, objects ObjectWriter, opts ...Option) *Fetcher {
	o := &fetcherOptions{
		policy:     retry.DefaultPolicy(),
		bufferSize: DefaultBufferSize,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.negative == nil {
		o.negative = negcache.New()
	}
	if o.bufferSize <= 0 {
		o.bufferSize = DefaultBufferSize
	}

	retryOpts := append([]retry.Option{retry.WithLogger(o.logger)}, o.retryOpts...)
	return &Fetcher{
		downloader: downloader,
		objects:    objects,
		negative:   o.negative,
		invoker:    retry.New[struct{}](o.policy, retryOpts...),
		bufferSize: o.bufferSize,
		logger:     o.logger,
	}
}

// NegativeCache returns the cache of ids known to be absent.
func (f *Fetcher) NegativeCache() *negcache.Cache {
	return f.negative
}

// FetchAndStore downloads id and writes it into the object store with a
// freshly allocated buffer. See Batch.FetchAndStore.
func (f *Fetcher) FetchAndStore(ctx context.Context, id string, retryOnFailure bool) (Result, error) {
	return f.fetch(ctx, id, retryOnFailure, make([]byte, f.bufferSize))
}

func (f *Fetcher) fetch(ctx context.Context, id string, retryOnFailure bool, buf []byte) (Result, error) {
	id = git.NormalizeID(id)
	if git.IsZeroID(id) {
		return Error, errors.New(errors.CodeInvalidInput, "refusing to fetch the all-zero object id")
	}
	if err := git.ValidateHexID(id); err != nil {
		return Error, err
	}

	if f.negative.Lookup(id) {
		f.logger.Debug("object absent per negative cache", "object_id", id)
		return NotFound, nil
	}

	key := id + ":" + strconv.FormatBool(retryOnFailure)
	v, err, shared := f.group.Do(key, func() (interface{}, error) {
		return f.download(ctx, id, retryOnFailure, buf)
	})
	if shared {
		f.logger.Debug("joined in-flight fetch", "object_id", id)
	}
	return v.(Result), err
}

// download runs one retried download-and-write. The object body and write
// happen inside the same attempt so a corrupt transfer is downloaded again.
func (f *Fetcher) download(ctx context.Context, id string, retryOnFailure bool, buf []byte) (Result, error) {
	// A concurrent flight may have just recorded the id.
	if f.negative.Lookup(id) {
		return NotFound, nil
	}

	start := time.Now()
	out := f.invoker.Invoke(ctx, func(ctx context.Context, attempt int) (struct{}, error) {
		body, err := f.downloader.DownloadLooseObject(ctx, id)
		if err != nil {
			return struct{}{}, err
		}
		defer body.Close()

		return struct{}{}, f.objects.WriteLooseObject(body, id, buf)
	}, retryOnFailure)

	switch {
	case out.Succeeded:
		f.negative.Invalidate(id)
		f.logger.Debug("fetched object",
			"object_id", id,
			"attempts", out.Attempts,
			"duration", time.Since(start))
		return Success, nil

	case out.NotFound():
		f.negative.Record(id)
		f.logger.Debug("object not found on remote", "object_id", id)
		return NotFound, nil

	default:
		f.logger.Warn("failed to fetch object",
			"object_id", id,
			"attempts", out.Attempts,
			"error", out.Err)
		return Error, out.Err
	}
}

// Batch fetches a series of objects with one shared scratch buffer.
// A Batch must not be used by two goroutines at once.
type Batch struct {
	f   *Fetcher
	buf []byte
}

// NewBatch returns a Batch with its own scratch buffer.
func (f *Fetcher) NewBatch() *Batch {
	return &Batch{f: f, buf: make([]byte, f.bufferSize)}
}

// Buffer returns the batch's scratch buffer.
func (b *Batch) Buffer() []byte {
	return b.buf
}

// FetchAndStore downloads id into the object store.
//
//  1. The all-zero id and ids that are empty or not hex return Error
//     without a request.
//  2. An id with a live negative cache record returns NotFound without a request.
//  3. Otherwise the object is downloaded, retried on transient failures when
//     retryOnFailure is set, verified and written.
//  4. A definitive 404 is recorded in the negative cache and returns NotFound.
//
// The returned error is non-nil only for Error.
func (b *Batch) FetchAndStore(ctx context.Context, id string, retryOnFailure bool) (Result, error) {
	return b.f.fetch(ctx, id, retryOnFailure, b.buf)
}

// BatchResult summarizes FetchAll.
type BatchResult struct {
	Results  map[string]Result
	Written  int
	NotFound int
	Errors   int
}

// FetchAll fetches ids in order with a single Batch. Duplicate ids are
// fetched once. Once ctx is done the remaining ids are marked Error without
// a request.
func (f *Fetcher) FetchAll(ctx context.Context, ids []string, retryOnFailure bool) BatchResult {
	batch := f.NewBatch()
	res := BatchResult{Results: make(map[string]Result, len(ids))}

	for _, id := range ids {
		id = git.NormalizeID(id)
		if _, done := res.Results[id]; done {
			continue
		}

		var r Result
		if ctx.Err() != nil {
			r = Error
		} else {
			r, _ = batch.FetchAndStore(ctx, id, retryOnFailure)
		}

		res.Results[id] = r
		switch r {
		case Success:
			res.Written++
		case NotFound:
			res.NotFound++
		default:
			res.Errors++
		}
	}

	return res
}
