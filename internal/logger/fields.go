package logger

import "log/slog"

// Standard field keys for structured logging across the orchestration
// core: volume/block identify the command target, op/addr identify which
// command and which peer a given log line belongs to.
const (
	// Distributed tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Command identification
	KeyOp     = "op"     // create, delete, modify, replace, list, info
	KeyVolume = "volume"
	KeyBlock  = "block"
	KeyAddr   = "addr" // peer address

	// RPC / fan-out
	KeyExitCode = "exit_code"
	KeyRPCSent  = "rpc_sent"
	KeyOutcome  = "outcome" // attempted, succeeded, skipped

	// Status transitions
	KeyStatus     = "status"
	KeyPrevStatus = "prev_status"

	// Capability negotiation
	KeyCapability = "capability"

	// Operation metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorCode  = "error_code"

	// Lock
	KeyLockPath = "lock_path"
)

// TraceID returns a slog.Attr for OpenTelemetry trace ID.
func TraceID(id string) slog.Attr { return slog.String(KeyTraceID, id) }

// SpanID returns a slog.Attr for OpenTelemetry span ID.
func SpanID(id string) slog.Attr { return slog.String(KeySpanID, id) }

// Op returns a slog.Attr for the orchestrated command name.
func Op(op string) slog.Attr { return slog.String(KeyOp, op) }

// Volume returns a slog.Attr for the volume name.
func Volume(v string) slog.Attr { return slog.String(KeyVolume, v) }

// Block returns a slog.Attr for the block name.
func Block(b string) slog.Attr { return slog.String(KeyBlock, b) }

// Addr returns a slog.Attr for a peer address.
func Addr(a string) slog.Attr { return slog.String(KeyAddr, a) }

// ExitCode returns a slog.Attr for an RPC exit code.
func ExitCode(code int) slog.Attr { return slog.Int(KeyExitCode, code) }

// RPCSent returns a slog.Attr indicating whether the RPC reached the wire.
func RPCSent(sent bool) slog.Attr { return slog.Bool(KeyRPCSent, sent) }

// Outcome returns a slog.Attr for a fan-out outcome bucket.
func Outcome(o string) slog.Attr { return slog.String(KeyOutcome, o) }

// StatusAttr returns a slog.Attr for a per-host status token.
func StatusAttr(s string) slog.Attr { return slog.String(KeyStatus, s) }

// Capability returns a slog.Attr for a capability name.
func Capability(name string) slog.Attr { return slog.String(KeyCapability, name) }

// DurationMs returns a slog.Attr for an operation duration in milliseconds.
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Err returns a slog.Attr for an error value, or an empty Attr (which
// slog omits) for a nil error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a numeric error code.
func ErrorCode(code int) slog.Attr { return slog.Int(KeyErrorCode, code) }

// LockPath returns a slog.Attr for a lock file path.
func LockPath(p string) slog.Attr { return slog.String(KeyLockPath, p) }
