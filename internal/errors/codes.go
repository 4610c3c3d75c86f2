// Package errors provides structured error handling for cocowatch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Watch errors (filesystem subscription)
//   - 3XX: Index errors (indexing pipeline)
//   - 4XX: Store errors (index store connectivity)
//   - 5XX: Serve errors (query endpoint)
//   - 6XX: Shutdown errors
//   - 7XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryWatch indicates filesystem watch errors.
	CategoryWatch Category = "WATCH"
	// CategoryIndex indicates indexing pipeline errors.
	CategoryIndex Category = "INDEX"
	// CategoryStore indicates index store errors.
	CategoryStore Category = "STORE"
	// CategoryServe indicates query endpoint errors.
	CategoryServe Category = "SERVE"
	// CategoryShutdown indicates shutdown/drain errors.
	CategoryShutdown Category = "SHUTDOWN"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but the process can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigInvalid    = "ERR_101_CONFIG_INVALID"
	ErrCodeWatchPathInvalid = "ERR_102_WATCH_PATH_INVALID"
	ErrCodeFlowMissing      = "ERR_103_FLOW_MISSING"

	// Watch errors (200-299)
	ErrCodeWatchInit     = "ERR_201_WATCH_INIT"
	ErrCodeWatchLost     = "ERR_202_WATCH_LOST"
	ErrCodeWatchOverflow = "ERR_203_WATCH_OVERFLOW"

	// Index errors (300-399)
	ErrCodeIndexTransient = "ERR_301_INDEX_TRANSIENT"
	ErrCodeIndexFatal     = "ERR_302_INDEX_FATAL"
	ErrCodeIndexCancelled = "ERR_303_INDEX_CANCELLED"

	// Store errors (400-499)
	ErrCodeStoreUnavailable = "ERR_401_STORE_UNAVAILABLE"
	ErrCodeStoreQuery       = "ERR_402_STORE_QUERY"
	ErrCodeStoreLocked      = "ERR_403_STORE_LOCKED"

	// Serve errors (500-599)
	ErrCodeServeRequest = "ERR_501_SERVE_REQUEST"

	// Shutdown errors (600-699)
	ErrCodeShutdownTimeout = "ERR_601_SHUTDOWN_TIMEOUT"

	// Internal errors (700-799)
	ErrCodeInternal = "ERR_701_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Leading digit of the numeric portion selects the category
	// (e.g., '2' in "ERR_201_WATCH_INIT").
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryWatch
	case '3':
		return CategoryIndex
	case '4':
		return CategoryStore
	case '5':
		return CategoryServe
	case '6':
		return CategoryShutdown
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeConfigInvalid, ErrCodeWatchPathInvalid, ErrCodeFlowMissing,
		ErrCodeWatchInit, ErrCodeStoreLocked:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeWatchLost, ErrCodeIndexTransient, ErrCodeStoreUnavailable:
		return true
	}
	return false
}
