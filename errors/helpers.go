package errors

import (
	"context"
	stderrors "errors"
)

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// GetCode extracts the code of the outermost PlatformError in err's chain.
// Returns CodeUnknown for nil and non-platform errors.
func GetCode(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	var pe PlatformError
	if stderrors.As(err, &pe) {
		return pe.Code()
	}
	return CodeUnknown
}

// GetClassification extracts the classification of the outermost
// PlatformError in err's chain. Non-platform errors are PERMANENT so that
// unknown failures are never retried by accident.
func GetClassification(err error) ErrorClassification {
	if err == nil {
		return ClassificationPermanent
	}

	var pe PlatformError
	if stderrors.As(err, &pe) {
		return pe.Classification()
	}
	return ClassificationPermanent
}

// IsRetryable returns true if err is classified as retryable.
func IsRetryable(err error) bool {
	return GetClassification(err).IsRetryable()
}

// IsNotFound returns true if err carries CodeNotFound anywhere in its chain.
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

// IsCanceled returns true if err carries CodeCanceled or is a context cancellation.
func IsCanceled(err error) bool {
	if stderrors.Is(err, context.Canceled) {
		return true
	}
	return hasCode(err, CodeCanceled)
}

// FromContext converts a context error into a PlatformError: cancellation
// becomes CodeCanceled and an exceeded deadline becomes CodeTimeout.
// Returns nil if err is nil.
func FromContext(err error) PlatformError {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, context.DeadlineExceeded):
		return Wrap(err, CodeTimeout, "deadline exceeded")
	case stderrors.Is(err, context.Canceled):
		return Wrap(err, CodeCanceled, "operation canceled")
	default:
		return Wrap(err, CodeUnknown, "context error")
	}
}

func hasCode(err error, code ErrorCode) bool {
	for err != nil {
		if pe, ok := err.(PlatformError); ok && pe.Code() == code {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}
