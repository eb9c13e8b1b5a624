// Package errors provides the structured error codes canoup reports.
// Every failure that ends a run carries one of these codes so the command
// line can map it to a stable exit status.
package errors

// ErrorCode represents a specific error condition in canoup.
// Error codes are string-based for debuggability and natural log output.
type ErrorCode string

const (
	// Resource errors.

	// CodeConflict indicates a resource state conflict that prevents the operation,
	// such as another update already holding the lock.
	CodeConflict ErrorCode = "CONFLICT"

	// Validation errors.

	// CodeInvalidConfig indicates a configuration or environment error prevents the operation.
	CodeInvalidConfig ErrorCode = "INVALID_CONFIGURATION"

	// Infrastructure errors.

	// CodeRepository indicates the local mirror could not be opened, cloned or updated.
	CodeRepository ErrorCode = "REPOSITORY_ERROR"

	// CodeNetwork indicates a network operation failed.
	CodeNetwork ErrorCode = "NETWORK_ERROR"

	// Execution errors.

	// CodeExecutionFailed indicates a general execution failure.
	CodeExecutionFailed ErrorCode = "EXECUTION_FAILED"

	// CodeBuildFailed indicates a build operation failed.
	CodeBuildFailed ErrorCode = "BUILD_FAILED"

	// CodeInstallFailed indicates the install step failed.
	CodeInstallFailed ErrorCode = "INSTALL_FAILED"

	// System errors.

	// CodeInternal indicates an internal error occurred.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// Generic errors.

	// CodeUnknown indicates an unknown or unclassified error occurred.
	CodeUnknown ErrorCode = "UNKNOWN"
)
