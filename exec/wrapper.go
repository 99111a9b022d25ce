package exec

import (
	"context"
	"io"
	"time"
)

// CommandWrapper prepends a fixed program name (for example "git") to every
// Run. It implements Executor so it can wrap a mock.
type CommandWrapper struct {
	executor Executor
	cmd      string
}

// NewWrapper creates a CommandWrapper around executor.
func NewWrapper(executor Executor, cmd string) *CommandWrapper {
	return &CommandWrapper{executor: executor, cmd: cmd}
}

func (w *CommandWrapper) WithEnv(env map[string]string) Executor {
	w.executor = w.executor.WithEnv(env)
	return w
}

func (w *CommandWrapper) WithDir(dir string) Executor {
	w.executor = w.executor.WithDir(dir)
	return w
}

func (w *CommandWrapper) WithContext(ctx context.Context) Executor {
	w.executor = w.executor.WithContext(ctx)
	return w
}

func (w *CommandWrapper) WithStdin(r io.Reader) Executor {
	w.executor = w.executor.WithStdin(r)
	return w
}

func (w *CommandWrapper) WithTimeout(timeout time.Duration) Executor {
	w.executor = w.executor.WithTimeout(timeout)
	return w
}

func (w *CommandWrapper) WithInheritEnv() Executor {
	w.executor = w.executor.WithInheritEnv()
	return w
}

// Run executes the wrapped program with args.
func (w *CommandWrapper) Run(args ...string) (*Result, error) {
	full := make([]string, 0, len(args)+1)
	full = append(full, w.cmd)
	full = append(full, args...)
	return w.executor.Run(full...)
}

func (w *CommandWrapper) Clone() Executor {
	return &CommandWrapper{executor: w.executor.Clone(), cmd: w.cmd}
}
