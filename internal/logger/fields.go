package logger

import "log/slog"

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so that runs can be
// aggregated and filtered by row, session, or endpoint.
const (
	KeySessionID  = "session_id"  // reconciliation session identifier
	KeyBatchID    = "batch_id"    // checkpoint batch identifier
	KeyRowID      = "row_id"      // input row identifier
	KeyObjectType = "object_type" // resource kind (ip4_network, host_record, ...)
	KeyOperation  = "operation"   // create, update, delete
	KeyResourceID = "resource_id" // remote numeric identifier
	KeyPath       = "path"        // hierarchical resource path
	KeyEndpoint   = "endpoint"    // remote API endpoint
	KeyStatus     = "status"      // HTTP status code
	KeyDurationMs = "duration_ms" // operation duration in milliseconds
	KeyAttempt    = "attempt"     // retry attempt number
	KeyLimit      = "limit"       // throttle concurrency limit
	KeyErrorKind  = "error_kind"  // classified error kind
	KeyError      = "error"       // error message
)

// SessionID returns a slog.Attr for the reconciliation session identifier
func SessionID(id string) slog.Attr {
	return slog.String(KeySessionID, id)
}

// RowID returns a slog.Attr for an input row identifier
func RowID(id string) slog.Attr {
	return slog.String(KeyRowID, id)
}

// ObjectType returns a slog.Attr for a resource kind
func ObjectType(t string) slog.Attr {
	return slog.String(KeyObjectType, t)
}

// Operation returns a slog.Attr for an operation type
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// ResourceID returns a slog.Attr for a remote numeric identifier
func ResourceID(id int64) slog.Attr {
	return slog.Int64(KeyResourceID, id)
}

// Path returns a slog.Attr for a hierarchical resource path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Endpoint returns a slog.Attr for a remote API endpoint
func Endpoint(e string) slog.Attr {
	return slog.String(KeyEndpoint, e)
}

// Status returns a slog.Attr for an HTTP status code
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Attempt returns a slog.Attr for a retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
