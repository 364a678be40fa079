package zflate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	fastcdc "github.com/SaveTheRbtz/fastcdc-go"
	"go.uber.org/zap"
)

// DefaultChunkSize is the fixed chunk size of the driver.
const DefaultChunkSize = 64 << 10

// Driver adapts an unbounded byte source and sink to the engine's
// call-per-chunk contract.  It reads fixed-size chunks, feeds each one
// with no flush (finish on the last), and streams every produced block
// to the sink immediately, so total memory stays O(chunk size)
// regardless of stream length.
type Driver struct {
	engine    *Engine
	chunkSize int
	rep       *reporter
	interval  time.Duration
	total     int64

	progress ProgressFunc
	simple   SimpleProgressFunc
	ch       chan<- ProgressInfo

	// cdc switches to content-defined chunk boundaries with a sync
	// flush at each cut point, producing rsync-friendly output.
	cdc *fastcdc.Options

	logger *zap.Logger
}

// DriverOption configures a Driver.
type DriverOption func(*Driver) error

// WithChunkSize overrides the fixed chunk size.
func WithChunkSize(n int) DriverOption {
	return func(d *Driver) error {
		if n < 1 {
			return &StreamError{Op: "driver", Err: fmt.Errorf("chunk size %d < 1", n)}
		}
		d.chunkSize = n
		return nil
	}
}

// WithProgressInterval overrides the progress emission interval.
func WithProgressInterval(interval time.Duration) DriverOption {
	return func(d *Driver) error { d.interval = interval; return nil }
}

// WithProgress registers the cancellable progress callback.
func WithProgress(fn ProgressFunc) DriverOption {
	return func(d *Driver) error { d.progress = fn; return nil }
}

// WithSimpleProgress registers the plain (processed, total) callback.
func WithSimpleProgress(fn SimpleProgressFunc) DriverOption {
	return func(d *Driver) error { d.simple = fn; return nil }
}

// WithProgressChannel delivers snapshots over ch.  Sends are blocking;
// the consumer must drain until the operation returns.
func WithProgressChannel(ch chan<- ProgressInfo) DriverOption {
	return func(d *Driver) error { d.ch = ch; return nil }
}

// WithTotalSize supplies the source size when known, enabling
// percentage and ETA in progress snapshots.
func WithTotalSize(n int64) DriverOption {
	return func(d *Driver) error { d.total = n; return nil }
}

// WithContentDefinedChunks switches to fastcdc boundaries with a sync
// flush at each cut, so unchanged regions of the input keep producing
// identical compressed runs.
func WithContentDefinedChunks(minSize, avgSize, maxSize int) DriverOption {
	return func(d *Driver) error {
		d.cdc = &fastcdc.Options{
			MinSize:     minSize,
			AverageSize: avgSize,
			MaxSize:     maxSize,
		}
		return nil
	}
}

// WithDriverLogger replaces the default no-op logger.
func WithDriverLogger(l *zap.Logger) DriverOption {
	return func(d *Driver) error { d.logger = l; return nil }
}

// NewDriver wraps an engine.  The engine must be fresh or reset; the
// driver owns it for the duration of Run.
func NewDriver(engine *Engine, opts ...DriverOption) (*Driver, error) {
	d := &Driver{
		engine:    engine,
		chunkSize: DefaultChunkSize,
		interval:  DefaultProgressInterval,
		logger:    zap.NewNop(),
	}
	for _, o := range opts {
		if err := o(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Driver) activePhase() Phase {
	if d.engine.Mode() == ModeCompress {
		return PhaseCompress
	}
	return PhaseDecompress
}

// Run drives src through the engine into dst.  It returns the number
// of bytes written to dst.  Cancellation is cooperative: the context
// is polled between chunks, never mid-feed, and a callback returning
// false stops the loop the same way.  On cancellation or failure the
// sink keeps whatever prefix was already flushed.
func (d *Driver) Run(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	d.rep = newReporter(d.interval, d.total)
	d.rep.fn = d.progress
	d.rep.simple = d.simple
	d.rep.ch = d.ch
	d.rep.begin()

	if d.cdc != nil {
		return d.runCDC(ctx, dst, src)
	}
	return d.runFixed(ctx, dst, src)
}

func (d *Driver) runFixed(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var written int64
	buf := make([]byte, d.chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return written, canceled(err)
		}
		if !d.rep.maybeEmit(PhaseRead) {
			return written, canceled(nil)
		}

		n, rerr := io.ReadFull(src, buf)
		last := false
		switch {
		case rerr == nil:
		case errors.Is(rerr, io.EOF), errors.Is(rerr, io.ErrUnexpectedEOF):
			// Short read or exhausted source marks the final
			// chunk.
			last = true
		default:
			return written, rerr
		}

		flush := FlushNone
		if last {
			flush = FlushFinish
		}
		w, ferr := d.engine.FeedTo(buf[:n], flush, dst)
		written += w
		d.rep.add(int64(n))
		if ferr != nil {
			return written, ferr
		}
		if last || d.engine.Finished() {
			d.rep.emit(PhaseFinished)
			d.logger.Debug("chunk loop finished",
				zap.Int64("read", d.rep.processed.Load()),
				zap.Int64("written", written))
			return written, nil
		}
	}
}

func (d *Driver) runCDC(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	chunker, err := fastcdc.NewChunker(src, *d.cdc)
	if err != nil {
		return 0, &StreamError{Op: "chunker", Err: err}
	}

	var (
		written int64
		cur     []byte
		have    bool
	)
	feed := func(p []byte, flush FlushMode) error {
		w, ferr := d.engine.FeedTo(p, flush, dst)
		written += w
		d.rep.add(int64(len(p)))
		return ferr
	}
	for {
		if err := ctx.Err(); err != nil {
			return written, canceled(err)
		}
		if !d.rep.maybeEmit(PhaseRead) {
			return written, canceled(nil)
		}

		chunk, cerr := chunker.Next()
		if cerr != nil && !errors.Is(cerr, io.EOF) {
			return written, cerr
		}
		if errors.Is(cerr, io.EOF) {
			if err := feed(cur, FlushFinish); err != nil {
				return written, err
			}
			d.rep.emit(PhaseFinished)
			return written, nil
		}
		if have {
			if err := feed(cur, FlushSync); err != nil {
				return written, err
			}
		}
		// Chunk data is only valid until the next call.
		cur = append(cur[:0], chunk.Data...)
		have = true
	}
}
