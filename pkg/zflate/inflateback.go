package zflate

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/zflateio/deflate-stream-go/pkg/codec"
)

// InputFunc supplies the next span of raw compressed input.  A nil or
// empty span means the source is exhausted.
type InputFunc func() ([]byte, error)

// OutputFunc receives a span of decompressed output and returns how
// many bytes it accepted.  Accepting fewer than offered fails the
// operation; there is no backpressure protocol at this layer.
type OutputFunc func(p []byte) (int, error)

// CallbackContext bundles the two caller-supplied functions and an
// opaque payload for one pull/push invocation.  It is released when
// the invocation returns, success or not, and cannot be reused.
type CallbackContext struct {
	input    InputFunc
	output   OutputFunc
	payload  any
	released bool
}

// NewCallbackContext builds a context record for a single Run call.
func NewCallbackContext(input InputFunc, output OutputFunc, payload any) *CallbackContext {
	return &CallbackContext{input: input, output: output, payload: payload}
}

// Payload returns the caller-supplied value.
func (c *CallbackContext) Payload() any { return c.payload }

// Released reports whether the context has been consumed by a Run
// call.
func (c *CallbackContext) Released() bool { return c.released }

func (c *CallbackContext) release() {
	c.released = true
	c.input = nil
	c.output = nil
}

var (
	errContextReleased = errors.New("callback context already released")
	errEngineRunning   = errors.New("pull/push invocation already in flight")
)

// InflateBack decompresses raw DEFLATE streams in pull/push mode: the
// engine pulls input and pushes output through caller-supplied
// functions instead of the caller driving a feed loop.  The history
// window is a fixed 2^windowBits arena allocated once at construction
// and reused for every invocation; output is staged through it so the
// consumer only ever sees engine-owned memory.
type InflateBack struct {
	windowBits WindowBits
	window     []byte
	logger     *zap.Logger

	running bool
	closed  bool
}

// InflateBackOption configures an InflateBack engine.
type InflateBackOption func(*InflateBack) error

// WithInflateBackLogger replaces the default no-op logger.
func WithInflateBackLogger(l *zap.Logger) InflateBackOption {
	return func(b *InflateBack) error { b.logger = l; return nil }
}

// NewInflateBack allocates the engine and its window arena.
func NewInflateBack(windowBits WindowBits, opts ...InflateBackOption) (*InflateBack, error) {
	if !windowBits.Valid() {
		return nil, &StreamError{Op: "inflate-back", Err: fmt.Errorf("window bits %d out of range", windowBits)}
	}
	b := &InflateBack{
		windowBits: windowBits,
		window:     make([]byte, windowBits.WindowSize()),
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		if err := o(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Run decompresses one complete raw stream, pulling input and pushing
// output through cc.  The context is released when Run returns; the
// engine itself stays ready for another logical stream.
func (b *InflateBack) Run(cc *CallbackContext) (err error) {
	if b.closed {
		return &StreamError{Op: "inflate-back", Err: errEngineClosed}
	}
	if b.running {
		return &StreamError{Op: "inflate-back", Err: errEngineRunning}
	}
	if cc == nil || cc.released {
		return &StreamError{Op: "inflate-back", Err: errContextReleased}
	}
	b.running = true
	defer func() {
		b.running = false
		cc.release()
	}()

	strm, err := codec.NewInflator(codec.Params{
		Format:     codec.FormatRaw,
		WindowBits: b.windowBits,
	})
	if err != nil {
		return wrapCodec(ModeDecompress, err)
	}
	defer func() {
		err = multierr.Append(err, strm.Close())
	}()

	emit := func(p []byte) error {
		for len(p) > 0 {
			n := copy(b.window, p)
			accepted, oerr := cc.output(b.window[:n])
			if oerr != nil {
				return fmt.Errorf("output consumer: %w", oerr)
			}
			if accepted < n {
				return &DecompressionError{
					Code: codec.CodeBufError,
					Err:  fmt.Errorf("%w: consumer accepted %d of %d bytes", ErrBuffer, accepted, n),
				}
			}
			p = p[n:]
		}
		return nil
	}

	for {
		in, ierr := cc.input()
		if ierr != nil {
			return fmt.Errorf("input provider: %w", ierr)
		}
		flush := codec.FlushNone
		if len(in) == 0 {
			// Exhausted provider; an incomplete stream at this
			// point surfaces as ErrData.
			flush = codec.FlushFinish
		}
		_, st, perr := strm.Process(in, flush, emit)
		if perr != nil {
			return wrapCodec(ModeDecompress, perr)
		}
		if st == codec.StatusStreamEnd {
			b.logger.Debug("pull/push stream complete")
			return nil
		}
	}
}

// Close tears the engine down and releases the window association.
func (b *InflateBack) Close() error {
	if b.closed {
		return nil
	}
	if b.running {
		return &StreamError{Op: "inflate-back-close", Err: errEngineRunning}
	}
	b.closed = true
	b.window = nil
	return nil
}
