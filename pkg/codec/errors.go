package codec

import (
	"errors"
	"fmt"
)

// Sentinel error kinds.  Callers match with errors.Is; the concrete
// *Error wrapper adds the operation and the zlib-style code.
var (
	// ErrStream marks an operation that is invalid in the current
	// stream state (bad parameters, wrong dictionary timing, feed
	// after finish).
	ErrStream = errors.New("stream state error")
	// ErrData marks corrupt or truncated compressed input.
	ErrData = errors.New("invalid compressed data")
	// ErrBuffer marks an internal buffer sizing inconsistency.
	ErrBuffer = errors.New("buffer inconsistency")
	// ErrMemory is reserved for allocation failures.  The pure-Go
	// backend cannot observe them; the kind exists for taxonomy
	// parity with zlib bindings.
	ErrMemory = errors.New("allocation failure")
	// ErrVersion is reserved for codec library version or ABI
	// incompatibilities detected at initialization.
	ErrVersion = errors.New("codec version mismatch")
	// ErrNeedDictionary reports that decompression is paused until
	// SetDictionary supplies the preset dictionary.
	ErrNeedDictionary = errors.New("dictionary required")
)

var (
	errInvalidLevel   = errors.New("compression level out of range")
	errInvalidMemory  = errors.New("memory budget out of range")
	errInvalidWindow  = errors.New("window bits out of range")
	errAutoCompress   = errors.New("auto-detect format is decompression only")
	errGzipDictionary = errors.New("preset dictionary is not valid for gzip streams")
	errHeaderFormat   = errors.New("gzip header requires the gzip format")

	errClosed        = errors.New("stream is closed")
	errFinished      = errors.New("stream already finished")
	errDictTiming    = errors.New("dictionary not accepted in this state")
	errDictMismatch  = errors.New("dictionary id mismatch")
	errUnknownMethod = errors.New("unknown compression method")
	errWindowTooBig  = errors.New("window size exceeds 32k")
	errHeaderCheck   = errors.New("incorrect header check")
	errChecksum      = errors.New("checksum mismatch")
)

// Error is a failed codec operation.  Code preserves the native-style
// status for diagnostics; Err is one of the package sentinels or an
// underlying cause.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("codec: %s: %v (%s)", e.Op, e.Err, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

func dataErr(op string, err error) *Error {
	return &Error{Code: CodeDataError, Op: op, Err: fmt.Errorf("%w: %w", ErrData, err)}
}

func streamErr(op string, err error) *Error {
	return &Error{Code: CodeStreamError, Op: op, Err: fmt.Errorf("%w: %w", ErrStream, err)}
}
