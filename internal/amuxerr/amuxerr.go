// Package amuxerr defines the daemon's error kinds (spec §7). Handlers
// translate these into structured {code, message, field} responses; they
// never carry stack traces to the client.
package amuxerr

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrPreconditionFailed  = errors.New("precondition failed")
	ErrSpawnFailed         = errors.New("spawn failed")
	ErrIO                  = errors.New("io error")
	ErrProtocol            = errors.New("protocol violation")
	ErrInternal            = errors.New("internal error")
	ErrNotARepository      = errors.New("not a git repository")
	ErrWriteClosed         = errors.New("write to closed pty")
	ErrResizeFailed        = errors.New("resize failed")
)

// Code returns the wire error code for err, walking wrapped errors with
// errors.Is. Unrecognized errors map to Internal so nothing leaks an
// unstructured message by accident.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrConflict):
		return "Conflict"
	case errors.Is(err, ErrPreconditionFailed):
		return "PreconditionFailed"
	case errors.Is(err, ErrSpawnFailed):
		return "SpawnFailed"
	case errors.Is(err, ErrIO), errors.Is(err, ErrNotARepository):
		return "IoError"
	case errors.Is(err, ErrProtocol):
		return "Protocol"
	default:
		return "Internal"
	}
}

// HTTPStatus maps an error kind to the status code the daemon's unary RPC
// handlers write, following the teacher's writeError convention.
func HTTPStatus(err error) int {
	switch Code(err) {
	case "NotFound":
		return 404
	case "Conflict":
		return 409
	case "PreconditionFailed":
		return 412
	case "SpawnFailed":
		return 502
	case "IoError":
		return 500
	default:
		return 500
	}
}
