package zflate

import (
	"context"
	"os"
	"path/filepath"
	"runtime"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zflateio/deflate-stream-go/pkg/codec"
)

// FilePair names one source/destination job for batch processing.
type FilePair struct {
	Source      string
	Destination string
}

type fileConfig struct {
	engineOpts  []Option
	driverOpts  []DriverOption
	logger      *zap.Logger
	concurrency int
}

// FileOption configures the file-level operations.
type FileOption func(*fileConfig) error

// WithEngineOptions forwards options to the underlying engine.
func WithEngineOptions(opts ...Option) FileOption {
	return func(c *fileConfig) error { c.engineOpts = append(c.engineOpts, opts...); return nil }
}

// WithDriverOptions forwards options to the underlying chunk driver.
func WithDriverOptions(opts ...DriverOption) FileOption {
	return func(c *fileConfig) error { c.driverOpts = append(c.driverOpts, opts...); return nil }
}

// WithFileLogger replaces the default no-op logger.
func WithFileLogger(l *zap.Logger) FileOption {
	return func(c *fileConfig) error { c.logger = l; return nil }
}

// WithConcurrency bounds how many files a batch operation processes in
// parallel.  Defaults to GOMAXPROCS.
func WithConcurrency(n int) FileOption {
	return func(c *fileConfig) error { c.concurrency = n; return nil }
}

func newFileConfig(opts []FileOption) (*fileConfig, error) {
	c := &fileConfig{
		logger:      zap.NewNop(),
		concurrency: runtime.GOMAXPROCS(0),
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// CompressFile compresses source into destination as a gzip stream,
// driving the chunk driver with progress and cooperative cancellation.
// On failure, output already written to destination is left in place.
func CompressFile(ctx context.Context, source, destination string, opts ...FileOption) error {
	cfg, err := newFileConfig(opts)
	if err != nil {
		return err
	}
	return processFile(ctx, ModeCompress, source, destination, cfg)
}

// DecompressFile decompresses source into destination, auto-detecting
// the container format.
func DecompressFile(ctx context.Context, source, destination string, opts ...FileOption) error {
	cfg, err := newFileConfig(opts)
	if err != nil {
		return err
	}
	return processFile(ctx, ModeDecompress, source, destination, cfg)
}

// CompressFileAsync runs CompressFile in the background and yields
// ProgressInfo values over the returned channel until the operation
// completes.  The error channel receives exactly one value.
func CompressFileAsync(ctx context.Context, source, destination string, opts ...FileOption) (<-chan ProgressInfo, <-chan error) {
	return processFileAsync(ctx, ModeCompress, source, destination, opts)
}

// DecompressFileAsync is the asynchronous variant of DecompressFile.
func DecompressFileAsync(ctx context.Context, source, destination string, opts ...FileOption) (<-chan ProgressInfo, <-chan error) {
	return processFileAsync(ctx, ModeDecompress, source, destination, opts)
}

func processFileAsync(ctx context.Context, mode Mode, source, destination string, opts []FileOption) (<-chan ProgressInfo, <-chan error) {
	progress := make(chan ProgressInfo, 16)
	errs := make(chan error, 1)
	go func() {
		defer close(progress)
		defer close(errs)
		cfg, err := newFileConfig(opts)
		if err != nil {
			errs <- err
			return
		}
		cfg.driverOpts = append(cfg.driverOpts, WithProgressChannel(progress))
		errs <- processFile(ctx, mode, source, destination, cfg)
	}()
	return progress, errs
}

// CompressFiles compresses every pair concurrently, each on its own
// independent engine.  The first failure cancels the remaining jobs.
func CompressFiles(ctx context.Context, pairs []FilePair, opts ...FileOption) error {
	return processFiles(ctx, ModeCompress, pairs, opts)
}

// DecompressFiles is the batch variant of DecompressFile.
func DecompressFiles(ctx context.Context, pairs []FilePair, opts ...FileOption) error {
	return processFiles(ctx, ModeDecompress, pairs, opts)
}

func processFiles(ctx context.Context, mode Mode, pairs []FilePair, opts []FileOption) error {
	cfg, err := newFileConfig(opts)
	if err != nil {
		return err
	}
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.concurrency)
	for _, pair := range pairs {
		pair := pair
		g.Go(func() error {
			return processFile(gCtx, mode, pair.Source, pair.Destination, cfg)
		})
	}
	return g.Wait()
}

// withDefaultGzipHeader attaches the metadata only when the stream
// ends up as gzip and the caller supplied no header of their own.  It
// must run after every caller option.
func withDefaultGzipHeader(h *GzipHeader) Option {
	return func(e *Engine) error {
		if e.params.Format == codec.FormatGzip && e.params.Header == nil {
			e.params.Header = h
		}
		return nil
	}
}

func processFile(ctx context.Context, mode Mode, source, destination string, cfg *fileConfig) (err error) {
	fi, err := os.Stat(source)
	if err != nil {
		return wrapFile("stat", source, err)
	}

	in, err := os.Open(source)
	if err != nil {
		return wrapFile("open", source, err)
	}
	defer func() {
		err = multierr.Append(err, wrapFile("close", source, in.Close()))
	}()

	out, err := os.Create(destination)
	if err != nil {
		return wrapFile("create", destination, err)
	}
	defer func() {
		err = multierr.Append(err, wrapFile("close", destination, out.Close()))
	}()

	engineOpts := append([]Option{WithLogger(cfg.logger)}, cfg.engineOpts...)
	if mode == ModeCompress {
		// Files default to gzip; explicit engine options override.
		engineOpts = append([]Option{WithFormat(FormatGzip)}, engineOpts...)
		// Seed container metadata the way gzip(1) does.
		engineOpts = append(engineOpts, withDefaultGzipHeader(&GzipHeader{
			Name:    filepath.Base(source),
			ModTime: fi.ModTime(),
		}))
	}

	var engine *Engine
	if mode == ModeCompress {
		engine, err = NewCompressor(engineOpts...)
	} else {
		engine, err = NewDecompressor(engineOpts...)
	}
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, engine.Close())
	}()

	driverOpts := append([]DriverOption{
		WithTotalSize(fi.Size()),
		WithDriverLogger(cfg.logger),
	}, cfg.driverOpts...)
	driver, err := NewDriver(engine, driverOpts...)
	if err != nil {
		return err
	}

	written, err := driver.Run(ctx, out, in)
	if err != nil {
		// Partial output stays in place; cleanup is the caller's
		// decision.
		return wrapFile("process", source, err)
	}

	cfg.logger.Info("file processed",
		zap.Stringer("mode", mode),
		zap.String("source", source),
		zap.String("destination", destination),
		zap.Int64("bytesIn", fi.Size()),
		zap.Int64("bytesOut", written))
	return nil
}
