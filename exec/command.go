package exec

import (
	"context"
	"io"
	"os"
	osexec "os/exec"
	"sort"
	"time"
)

// Command is the os/exec backed Executor.
type Command struct {
	config *config
	ctx    context.Context
	stdin  io.Reader
}

// New creates a Command with the given global options.
func New(opts ...Option) *Command {
	cmd := &Command{
		config: newConfig(),
		ctx:    context.Background(),
	}
	for _, opt := range opts {
		opt(cmd)
	}
	return cmd
}

// WithEnv sets environment variables for the next run.
func (c *Command) WithEnv(env map[string]string) Executor {
	for k, v := range env {
		c.config.localEnv[k] = v
	}
	return c
}

// WithDir sets the working directory for the next run.
func (c *Command) WithDir(dir string) Executor {
	c.config.localDir = dir
	return c
}

// WithContext sets the context for the next run.
func (c *Command) WithContext(ctx context.Context) Executor {
	c.ctx = ctx
	return c
}

// WithStdin sets standard input for the next run.
func (c *Command) WithStdin(r io.Reader) Executor {
	c.stdin = r
	return c
}

// WithTimeout bounds the next run.
func (c *Command) WithTimeout(timeout time.Duration) Executor {
	c.config.localTimeout = timeout
	return c
}

// WithInheritEnv passes the parent environment to the next run.
func (c *Command) WithInheritEnv() Executor {
	val := true
	c.config.localInheritEnv = &val
	return c
}

// Run executes the command. Local settings are reset afterwards whether or
// not the command succeeded.
func (c *Command) Run(args ...string) (*Result, error) {
	defer c.reset()

	if len(args) == 0 {
		return nil, &ExecError{Command: args, ExitCode: -1, Err: osexec.ErrNotFound}
	}

	ctx := c.ctx
	if timeout := c.config.effectiveTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := osexec.CommandContext(ctx, args[0], args[1:]...)
	if dir := c.config.effectiveDir(); dir != "" {
		cmd.Dir = dir
	}
	cmd.Env = c.environment()
	if c.stdin != nil {
		cmd.Stdin = c.stdin
	}

	out := newCapture()
	cmd.Stdout = out.stdoutWriter()
	cmd.Stderr = out.stderrWriter()

	err := cmd.Run()

	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	result := &Result{
		Stdout:   out.stdout.String(),
		Stderr:   out.stderr.String(),
		Combined: out.combined.String(),
		ExitCode: exitCode,
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return result, &ExecError{
			Command:  args,
			ExitCode: exitCode,
			Stdout:   result.Stdout,
			Stderr:   result.Stderr,
			Err:      err,
		}
	}

	return result, nil
}

// Clone returns a copy that shares only the global configuration.
func (c *Command) Clone() Executor {
	return &Command{
		config: c.config.clone(),
		ctx:    context.Background(),
	}
}

// environment builds the process environment. A nil slice means "inherit"
// to os/exec, so an empty non-nil slice is returned when nothing is set.
func (c *Command) environment() []string {
	env := []string{}
	if c.config.effectiveInheritEnv() {
		env = append(env, os.Environ()...)
	}

	vars := c.config.effectiveEnv()
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+vars[k])
	}
	return env
}

func (c *Command) reset() {
	c.config.resetLocal()
	c.ctx = context.Background()
	c.stdin = nil
}
