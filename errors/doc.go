// Package errors provides the structured error type shared by the maintenance
// engine and the object-fetch path.
//
// Every error carries an ErrorCode and an ErrorClassification. The
// classification is what the retry layer consults: RETRYABLE errors (network
// failures, timeouts, throttling, an unavailable cache server) may be
// attempted again, PERMANENT errors may not. CodeNotFound is the definitive
// "object does not exist on the remote" signal and is always permanent.
//
// Errors remain compatible with the standard library (errors.Is, errors.As,
// errors.Unwrap).
//
// Creating errors:
//
//	err := errors.New(errors.CodeNotFound, "object not found on remote")
//	err := errors.Newf(errors.CodeInvalidInput, "invalid object id %q", id)
//
// Wrapping errors:
//
//	if err := ops.WriteCommitGraph(ctx); err != nil {
//	    return errors.Wrap(err, errors.CodeExecutionFailed, "failed to write commit-graph")
//	}
//
// Retry decisions:
//
//	if errors.IsRetryable(err) {
//	    // back off and try again
//	}
//
// Serialization for IPC responses:
//
//	resp := errors.ToJSON(err)
package errors
