package git

import (
	"log/slog"

	"github.com/go-git/go-billy/v5"

	"github.com/2thetop/scalar/exec"
)

// Option configures Objects.
type Option func(*options)

type options struct {
	fs             billy.Filesystem
	originURL      string
	cacheServerURL string
	ops            MaintenanceOperations
	executor       exec.Executor
	logger         *slog.Logger
}

// WithFilesystem sets the filesystem rooted at the .git directory.
// Defaults to the OS filesystem at the path passed to Open.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(o *options) {
		o.fs = fs
	}
}

// WithOriginURL sets the enlistment's origin URL.
func WithOriginURL(url string) Option {
	return func(o *options) {
		o.originURL = url
	}
}

// WithCacheServer sets the cache server URL objects are downloaded from.
func WithCacheServer(url string) Option {
	return func(o *options) {
		o.cacheServerURL = url
	}
}

// WithMaintenanceOperations replaces the git CLI backed operations.
// This is mainly useful for testing.
func WithMaintenanceOperations(ops MaintenanceOperations) Option {
	return func(o *options) {
		o.ops = ops
	}
}

// WithExecutor sets the executor used to run git. Ignored when
// WithMaintenanceOperations is also given.
func WithExecutor(executor exec.Executor) Option {
	return func(o *options) {
		o.executor = executor
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
