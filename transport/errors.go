package transport

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/sony/gobreaker/v2"

	"github.com/2thetop/scalar/errors"
)

// mapError translates a failed round-trip into a platform error.
func mapError(ctx context.Context, resp *http.Response, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.FromContext(ctxErr)
	}

	if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Wrap(err, errors.CodeUnavailable, "circuit breaker is open; remote unavailable")
	}

	if resp != nil {
		return statusError(resp.StatusCode, resp.Request.URL.String())
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, errors.CodeTimeout, "request timed out")
	}

	return errors.Wrap(err, errors.CodeNetwork, "request failed")
}

// statusError maps a non-2xx status to a platform error.
func statusError(status int, url string) error {
	var err errors.PlatformError
	switch {
	case status == http.StatusNotFound:
		err = errors.New(errors.CodeNotFound, "object not found on remote")
	case status == http.StatusUnauthorized:
		err = errors.New(errors.CodeUnauthorized, "remote rejected credentials")
	case status == http.StatusForbidden:
		err = errors.New(errors.CodeForbidden, "remote denied access")
	case status == http.StatusTooManyRequests:
		err = errors.New(errors.CodeRateLimit, "remote rate limit exceeded")
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		err = errors.New(errors.CodeTimeout, "remote timed out")
	case status >= 500:
		err = errors.Newf(errors.CodeUnavailable, "remote returned %d", status)
	default:
		err = errors.Newf(errors.CodeInvalidInput, "unexpected status %d", status)
	}
	err = errors.WithContext(err, "status", status)
	return errors.WithContext(err, "url", url)
}
