package git

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/2thetop/scalar/errors"
	"github.com/2thetop/scalar/exec"
)

// wrapError classifies err and wraps it with message.
// If err is nil, returns nil.
func wrapError(err error, message string) error {
	if err == nil {
		return nil
	}

	classified := classifyError(err)
	if errors.GetCode(classified) == errors.CodeUnknown {
		return errors.Wrap(classified, errors.CodeInternal, message)
	}
	return errors.Wrap(classified, errors.GetCode(classified), message)
}

// classifyError maps go-git and filesystem errors to platform errors.
// Unrecognized errors are returned unchanged.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var pe errors.PlatformError
	if stderrors.As(err, &pe) {
		return err
	}

	switch {
	case stderrors.Is(err, plumbing.ErrObjectNotFound):
		return errors.Wrap(err, errors.CodeNotFound, "object not found")
	case stderrors.Is(err, plumbing.ErrReferenceNotFound):
		return errors.Wrap(err, errors.CodeNotFound, "reference not found")
	case stderrors.Is(err, plumbing.ErrInvalidType):
		return errors.Wrap(err, errors.CodeCorruptObject, "invalid object type")
	case stderrors.Is(err, os.ErrNotExist):
		return errors.Wrap(err, errors.CodeNotFound, "file not found")
	case stderrors.Is(err, os.ErrPermission):
		return errors.Wrap(err, errors.CodeForbidden, "permission denied")
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return errors.FromContext(err)
	}

	return err
}

// mapExecError converts a git CLI failure into a platform error. Context
// errors keep their CANCELED or TIMEOUT code so callers can tell a shutdown
// from a broken repository.
func mapExecError(err error, message string) error {
	if err == nil {
		return nil
	}

	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		ctxErr := errors.FromContext(err)
		return errors.Wrap(ctxErr, ctxErr.Code(), message)
	}

	var execErr *exec.ExecError
	if stderrors.As(err, &execErr) {
		wrapped := errors.Wrap(err, errors.CodeExecutionFailed, message)
		wrapped = errors.WithContext(wrapped, "exit_code", execErr.ExitCode)
		if execErr.Stderr != "" {
			wrapped = errors.WithContext(wrapped, "stderr", execErr.Stderr)
		}
		return wrapped
	}

	return errors.Wrap(err, errors.CodeExecutionFailed, fmt.Sprintf("%s: %v", message, err))
}
