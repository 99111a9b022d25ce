package errors

import (
	"errors"
	"fmt"
)

// New creates a PlatformError whose classification follows the code.
//
// Example:
//
//	err := errors.New(errors.CodeNotFound, "object not found on remote")
func New(code ErrorCode, message string) PlatformError {
	return &platformError{
		code:           code,
		classification: defaultClassification(code),
		message:        message,
	}
}

// Newf creates a PlatformError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) PlatformError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps err with a code and message. If err already carries a
// PlatformError its classification is kept, so a retryable network error
// wrapped as CodeInternal stays retryable.
//
// Returns nil if err is nil.
func Wrap(err error, code ErrorCode, message string) PlatformError {
	if err == nil {
		return nil
	}

	classification := defaultClassification(code)
	var inner PlatformError
	if errors.As(err, &inner) {
		classification = inner.Classification()
	}

	return &platformError{
		code:           code,
		classification: classification,
		message:        message,
		cause:          err,
	}
}

// Wrapf wraps err with a formatted message.
//
// Returns nil if err is nil.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) PlatformError {
	if err == nil {
		return nil
	}
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// WithContext returns a copy of err with key=value added to its metadata.
// Non-platform errors are converted with CodeUnknown.
//
// Returns nil if err is nil.
//
// Example:
//
//	err = errors.WithContext(err, "object_id", id)
func WithContext(err error, key string, value interface{}) PlatformError {
	if err == nil {
		return nil
	}

	var pe PlatformError
	if !errors.As(err, &pe) {
		pe = &platformError{
			code:           CodeUnknown,
			classification: ClassificationPermanent,
			message:        err.Error(),
			cause:          err,
		}
	}

	ctx := pe.Context()
	if ctx == nil {
		ctx = make(map[string]interface{}, 1)
	}
	ctx[key] = value

	return &platformError{
		code:           pe.Code(),
		classification: pe.Classification(),
		message:        pe.Message(),
		context:        ctx,
		cause:          pe.Unwrap(),
	}
}

// WithClassification returns a copy of err with its classification replaced.
// This is used where the same code is transient in one place and definitive
// in another.
//
// Returns nil if err is nil.
func WithClassification(err error, class ErrorClassification) PlatformError {
	if err == nil {
		return nil
	}

	var pe PlatformError
	if !errors.As(err, &pe) {
		return &platformError{
			code:           CodeUnknown,
			classification: class,
			message:        err.Error(),
			cause:          err,
		}
	}

	return &platformError{
		code:           pe.Code(),
		classification: class,
		message:        pe.Message(),
		context:        pe.Context(),
		cause:          pe.Unwrap(),
	}
}
