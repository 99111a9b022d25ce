package exec

import (
	"context"
	"io"
	"time"
)

//go:generate go run github.com/matryer/moq@latest -out mocks/executor.go -pkg mocks . Executor

// Executor runs commands with a fluent configuration API.
type Executor interface {
	// WithEnv sets environment variables for the next run.
	WithEnv(env map[string]string) Executor

	// WithDir sets the working directory for the next run.
	WithDir(dir string) Executor

	// WithContext sets the context for the next run. Canceling it kills the process.
	WithContext(ctx context.Context) Executor

	// WithStdin feeds r to the process's standard input for the next run.
	WithStdin(r io.Reader) Executor

	// WithTimeout bounds the next run.
	WithTimeout(timeout time.Duration) Executor

	// WithInheritEnv passes the parent environment to the next run.
	WithInheritEnv() Executor

	// Run executes args[0] with the remaining arguments.
	Run(args ...string) (*Result, error)

	// Clone returns an independent copy with the same global configuration.
	Clone() Executor
}

// Result is the captured outcome of a command.
type Result struct {
	Stdout   string
	Stderr   string
	Combined string
	ExitCode int
}

// Option configures global defaults for a Command.
type Option func(*Command)

// WithEnv sets global environment variables.
func WithEnv(env map[string]string) Option {
	return func(c *Command) {
		for k, v := range env {
			c.config.globalEnv[k] = v
		}
	}
}

// WithDir sets the global working directory.
func WithDir(dir string) Option {
	return func(c *Command) {
		c.config.globalDir = dir
	}
}

// WithInheritEnv makes every run inherit the parent environment.
func WithInheritEnv() Option {
	return func(c *Command) {
		c.config.globalInheritEnv = true
	}
}

// WithTimeout sets a default timeout for every run.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Command) {
		c.config.globalTimeout = timeout
	}
}
