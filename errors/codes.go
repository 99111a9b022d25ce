package errors

// ErrorCode represents a specific error condition.
// Codes are strings so they read well in logs and serialize naturally.
type ErrorCode string

const (
	// CodeNotFound indicates a requested object or resource does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeAlreadyExists indicates a resource already exists.
	CodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// CodeConflict indicates a state conflict, e.g. a lock held by another process.
	CodeConflict ErrorCode = "CONFLICT"

	// CodeUnauthorized indicates missing or rejected credentials.
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// CodeForbidden indicates the credentials lack permission.
	CodeForbidden ErrorCode = "FORBIDDEN"

	// CodeInvalidInput indicates malformed input such as a bad object id.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeInvalidConfig indicates a configuration error.
	CodeInvalidConfig ErrorCode = "INVALID_CONFIGURATION"

	// CodeNetwork indicates a transport-level failure.
	CodeNetwork ErrorCode = "NETWORK_ERROR"

	// CodeTimeout indicates an operation exceeded its deadline.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeRateLimit indicates the remote throttled the request.
	CodeRateLimit ErrorCode = "RATE_LIMIT_EXCEEDED"

	// CodeUnavailable indicates the remote is temporarily unavailable.
	CodeUnavailable ErrorCode = "SERVICE_UNAVAILABLE"

	// CodeCanceled indicates the caller canceled the operation.
	CodeCanceled ErrorCode = "CANCELED"

	// CodeCorruptObject indicates downloaded object content did not match its id.
	CodeCorruptObject ErrorCode = "CORRUPT_OBJECT"

	// CodeExecutionFailed indicates an external command (git) failed.
	CodeExecutionFailed ErrorCode = "EXECUTION_FAILED"

	// CodeInternal indicates an internal error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeUnknown indicates an unclassified error.
	CodeUnknown ErrorCode = "UNKNOWN"
)
