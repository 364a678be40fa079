// Package zflate exposes incremental DEFLATE-family compression and
// decompression as a stateful stream engine, plus chunked file-to-file
// processing with progress reporting and cooperative cancellation
// built on top of it.
package zflate

import (
	"errors"
	"fmt"

	"github.com/zflateio/deflate-stream-go/pkg/codec"
)

// Sentinel kinds re-exported from the codec boundary so callers can
// match with errors.Is without importing both packages.
var (
	// ErrNeedDictionary pauses decompression until SetDictionary is
	// called.  It is a required-action signal, not a failure.
	ErrNeedDictionary = codec.ErrNeedDictionary
	// ErrData marks corrupt or truncated compressed input.
	ErrData = codec.ErrData
	// ErrBuffer marks an internal buffer sizing inconsistency.
	ErrBuffer = codec.ErrBuffer
	// ErrMemory is the reserved allocation-failure kind.
	ErrMemory = codec.ErrMemory
	// ErrVersion is the reserved codec-version-mismatch kind.
	ErrVersion = codec.ErrVersion

	// ErrCanceled reports a cooperative stop between chunks.
	// Output already flushed to the sink stays in place.
	ErrCanceled = errors.New("operation canceled")
)

// CompressionError reports that the codec rejected a feed or finish
// call on a compression stream.
type CompressionError struct {
	Code codec.Code
	Err  error
}

func (e *CompressionError) Error() string {
	return fmt.Sprintf("compression failed (%s): %v", e.Code, e.Err)
}

func (e *CompressionError) Unwrap() error { return e.Err }

// DecompressionError reports that the codec rejected a feed or finish
// call on a decompression stream.
type DecompressionError struct {
	Code codec.Code
	Err  error
}

func (e *DecompressionError) Error() string {
	return fmt.Sprintf("decompression failed (%s): %v", e.Code, e.Err)
}

func (e *DecompressionError) Unwrap() error { return e.Err }

// StreamError reports an operation that is invalid in the engine's
// current state: uninitialized, already finished, or wrong dictionary
// timing.
type StreamError struct {
	Op  string
	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream error: %s: %v", e.Op, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// FileError wraps exactly one layer of file-system failure at the file
// orchestration boundary.  An error that is already a FileError or an
// engine taxonomy kind is never wrapped again.
type FileError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

var (
	errAlreadyFinished = errors.New("stream already finished; Reset before feeding again")
	errEngineClosed    = errors.New("engine is closed")
)

// wrapCodec translates a codec-boundary failure into the engine
// taxonomy for the given mode.
func wrapCodec(mode Mode, err error) error {
	if err == nil {
		return nil
	}
	var ce *codec.Error
	if !errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, codec.ErrStream) {
		return &StreamError{Op: ce.Op, Err: err}
	}
	if mode == ModeCompress {
		return &CompressionError{Code: ce.Code, Err: err}
	}
	return &DecompressionError{Code: ce.Code, Err: err}
}

// wrapFile wraps a file-system failure once.  Errors that already
// belong to the taxonomy pass through untouched.
func wrapFile(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var (
		fe *FileError
		se *StreamError
		co *CompressionError
		de *DecompressionError
	)
	if errors.As(err, &fe) || errors.As(err, &se) || errors.As(err, &co) || errors.As(err, &de) ||
		errors.Is(err, ErrCanceled) || errors.Is(err, ErrNeedDictionary) {
		return err
	}
	return &FileError{Op: op, Path: path, Err: err}
}

func canceled(cause error) error {
	if cause == nil {
		return ErrCanceled
	}
	return fmt.Errorf("%w: %w", ErrCanceled, cause)
}
