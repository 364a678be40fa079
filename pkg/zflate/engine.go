package zflate

import (
	"bytes"
	"io"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/zflateio/deflate-stream-go/pkg/codec"
)

// Mode is the fixed direction of an Engine.
type Mode int

const (
	ModeCompress Mode = iota
	ModeDecompress
)

func (m Mode) String() string {
	if m == ModeCompress {
		return "compress"
	}
	return "decompress"
}

// StreamInfo is a cheap snapshot of the engine's cumulative counters.
type StreamInfo struct {
	TotalIn  int64
	TotalOut int64
	Active   bool
}

// Engine wraps exactly one resumable codec stream.  The mode is fixed
// at construction; once a finishing flush has been accepted no feed
// operation succeeds until Reset.
//
// An Engine is not safe for concurrent use.  Independent engines run
// fully in parallel with no shared state.
type Engine struct {
	mode   Mode
	params codec.Params
	strm   codec.Stream

	logger *zap.Logger

	totalIn  atomic.Int64
	totalOut atomic.Int64

	// pending holds input the codec had not consumed when it
	// signaled need-dictionary; it is replayed on the next feed.
	pending []byte

	finished bool
	closed   bool
}

// NewCompressor initializes a compression engine.  The default is a
// default-level zlib stream.
func NewCompressor(opts ...Option) (*Engine, error) {
	return newEngine(ModeCompress, codec.Params{Level: codec.DefaultCompression}, opts)
}

// NewDecompressor initializes a decompression engine.  The default
// container format is auto-detect.
func NewDecompressor(opts ...Option) (*Engine, error) {
	return newEngine(ModeDecompress, codec.Params{Format: codec.FormatAuto}, opts)
}

func newEngine(mode Mode, params codec.Params, opts []Option) (*Engine, error) {
	e := &Engine{
		mode:   mode,
		params: params,
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		if err := o(e); err != nil {
			return nil, err
		}
	}

	var (
		strm codec.Stream
		err  error
	)
	if mode == ModeCompress {
		strm, err = codec.NewDeflator(e.params)
	} else {
		strm, err = codec.NewInflator(e.params)
	}
	if err != nil {
		return nil, wrapCodec(mode, err)
	}
	e.strm = strm

	e.logger.Debug("engine initialized",
		zap.Stringer("mode", mode),
		zap.Stringer("format", e.params.Format),
		zap.Int("level", int(e.params.Level)))
	return e, nil
}

// Mode returns the engine's fixed direction.
func (e *Engine) Mode() Mode { return e.mode }

// Finished reports whether the stream has accepted its finishing
// flush (or, for decompression, reached stream end).
func (e *Engine) Finished() bool { return e.finished }

// Feed pushes one input span through the stream and returns every
// output byte producible from it.  With FlushFinish the stream is
// terminated and drained.
func (e *Engine) Feed(in []byte, flush FlushMode) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := e.FeedTo(in, flush, &buf); err != nil {
		return buf.Bytes(), err
	}
	return buf.Bytes(), nil
}

// FeedTo is Feed writing produced output straight to sink, keeping
// memory bounded by the drain-step size instead of the output size.
func (e *Engine) FeedTo(in []byte, flush FlushMode, sink io.Writer) (int64, error) {
	if e.closed {
		return 0, &StreamError{Op: "feed", Err: errEngineClosed}
	}
	if e.finished {
		return 0, &StreamError{Op: "feed", Err: errAlreadyFinished}
	}

	if len(e.pending) > 0 {
		in = append(e.pending, in...)
		e.pending = nil
	}

	var written int64
	emit := func(p []byte) error {
		n, err := sink.Write(p)
		written += int64(n)
		e.totalOut.Add(int64(n))
		if err != nil {
			return err
		}
		if n != len(p) {
			return io.ErrShortWrite
		}
		return nil
	}

	consumed, st, err := e.strm.Process(in, flush, emit)
	e.totalIn.Add(int64(consumed))
	if err != nil {
		return written, wrapCodec(e.mode, err)
	}

	switch st {
	case codec.StatusStreamEnd:
		e.finished = true
		e.logger.Debug("stream finished",
			zap.Int64("totalIn", e.totalIn.Load()),
			zap.Int64("totalOut", e.totalOut.Load()))
	case codec.StatusNeedDict:
		e.pending = append([]byte(nil), in[consumed:]...)
		return written, ErrNeedDictionary
	}
	return written, nil
}

// Finish terminates the stream, draining any remaining internal state.
// Equivalent to Feed(nil, FlushFinish).
func (e *Engine) Finish() ([]byte, error) {
	return e.Feed(nil, codec.FlushFinish)
}

// FinishTo is Finish writing to sink.
func (e *Engine) FinishTo(sink io.Writer) (int64, error) {
	return e.FeedTo(nil, codec.FlushFinish, sink)
}

// Reset reinitializes the underlying codec stream with the original
// parameters and clears the counters and the finished flag.
func (e *Engine) Reset() error {
	if e.closed {
		return &StreamError{Op: "reset", Err: errEngineClosed}
	}
	if err := e.strm.Reset(); err != nil {
		return wrapCodec(e.mode, err)
	}
	e.totalIn.Store(0)
	e.totalOut.Store(0)
	e.pending = nil
	e.finished = false
	return nil
}

// SetDictionary injects the preset dictionary.  For compression it is
// valid before the first feed or after Reset; for decompression only
// while the stream is paused on ErrNeedDictionary.
func (e *Engine) SetDictionary(dict []byte) error {
	if e.closed {
		return &StreamError{Op: "set-dictionary", Err: errEngineClosed}
	}
	if err := e.strm.SetDictionary(dict); err != nil {
		return wrapCodec(e.mode, err)
	}
	return nil
}

// StreamInfo returns the cumulative byte counters.
func (e *Engine) StreamInfo() StreamInfo {
	return StreamInfo{
		TotalIn:  e.totalIn.Load(),
		TotalOut: e.totalOut.Load(),
		Active:   !e.finished && !e.closed,
	}
}

// GzipHeader returns the container metadata parsed from a gzip stream
// being decompressed, or nil if none has been seen.
func (e *Engine) GzipHeader() *GzipHeader {
	if hr, ok := e.strm.(codec.HeaderReader); ok {
		return hr.GzipHeader()
	}
	return nil
}

// Close releases the codec resources.  The engine is unusable
// afterwards.
func (e *Engine) Close() (err error) {
	if e.closed {
		return nil
	}
	e.closed = true
	err = multierr.Append(err, e.strm.Close())
	return
}
