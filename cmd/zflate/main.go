// Command zflate compresses and decompresses files through the chunked
// stream engine, with a progress bar and cooperative cancellation on
// SIGINT.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/zflateio/deflate-stream-go/pkg/zflate"
)

type options struct {
	Decompress bool   `short:"d" long:"decompress" description:"decompress instead of compress"`
	Output     string `short:"o" long:"output" description:"output filename"`
	Level      int    `short:"l" long:"level" default:"-1" description:"compression level: -1 default, 0 store, 1 fastest, 9 best"`
	Format     string `short:"F" long:"format" choice:"gzip" choice:"zlib" choice:"raw" default:"gzip" description:"container format"`
	ChunkSize  int    `short:"c" long:"chunk-size" default:"65536" description:"chunk size in bytes"`
	Rsyncable  bool   `long:"rsyncable" description:"content-defined chunk boundaries with sync flushes"`
	Verify     bool   `short:"t" long:"verify" description:"decompress the result and compare digests"`
	Verbose    bool   `short:"v" long:"verbose" description:"be verbose"`

	Args struct {
		File string `positional-arg-name:"file" required:"yes" description:"the file to process"`
	} `positional-args:"yes"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}

	var (
		logger *zap.Logger
		err    error
	)
	if opts.Verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, logger, &opts); err != nil {
		if errors.Is(err, zflate.ErrCanceled) {
			logger.Warn("canceled; partial output left in place")
			os.Exit(130)
		}
		logger.Fatal("failed", zap.Error(err))
	}
}

func format(name string) zflate.Format {
	switch name {
	case "zlib":
		return zflate.FormatZlib
	case "raw":
		return zflate.FormatRaw
	default:
		return zflate.FormatGzip
	}
}

func suffix(f zflate.Format) string {
	switch f {
	case zflate.FormatZlib:
		return ".zz"
	case zflate.FormatRaw:
		return ".deflate"
	default:
		return ".gz"
	}
}

func outputName(opts *options, f zflate.Format) string {
	if opts.Output != "" {
		return opts.Output
	}
	if !opts.Decompress {
		return opts.Args.File + suffix(f)
	}
	for _, s := range []string{".gz", ".zz", ".deflate"} {
		if strings.HasSuffix(opts.Args.File, s) {
			return strings.TrimSuffix(opts.Args.File, s)
		}
	}
	return opts.Args.File + ".out"
}

func run(ctx context.Context, logger *zap.Logger, opts *options) error {
	f := format(opts.Format)
	source := opts.Args.File
	destination := outputName(opts, f)

	fi, err := os.Stat(source)
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions64(fi.Size(),
		progressbar.OptionSetDescription(destination),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowBytes(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprint(os.Stderr, "\n")
		}),
	)
	progress := func(info zflate.ProgressInfo) bool {
		_ = bar.Set64(info.Processed)
		return true
	}

	driverOpts := []zflate.DriverOption{
		zflate.WithChunkSize(opts.ChunkSize),
		zflate.WithProgress(progress),
	}
	if opts.Rsyncable {
		driverOpts = append(driverOpts,
			zflate.WithContentDefinedChunks(16<<10, 64<<10, 256<<10))
	}
	fileOpts := []zflate.FileOption{
		zflate.WithFileLogger(logger),
		zflate.WithDriverOptions(driverOpts...),
	}

	start := time.Now()
	if opts.Decompress {
		err = zflate.DecompressFile(ctx, source, destination, fileOpts...)
	} else {
		fileOpts = append(fileOpts, zflate.WithEngineOptions(
			zflate.WithLevel(zflate.Level(opts.Level)),
			zflate.WithFormat(f),
		))
		err = zflate.CompressFile(ctx, source, destination, fileOpts...)
	}
	_ = bar.Finish()
	if err != nil {
		return err
	}

	outInfo, err := os.Stat(destination)
	if err != nil {
		return err
	}
	logger.Info("done",
		zap.String("in", humanize.IBytes(uint64(fi.Size()))),
		zap.String("out", humanize.IBytes(uint64(outInfo.Size()))),
		zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)))

	if opts.Verify && !opts.Decompress {
		if err := verify(ctx, source, destination); err != nil {
			return err
		}
		logger.Info("verification succeeded")
	}
	return nil
}

// verify decompresses destination again and compares digests with the
// original file.
func verify(ctx context.Context, source, destination string) error {
	expected, err := digestFile(source)
	if err != nil {
		return err
	}

	in, err := os.Open(destination)
	if err != nil {
		return err
	}
	defer in.Close()

	engine, err := zflate.NewDecompressor()
	if err != nil {
		return err
	}
	defer engine.Close()

	driver, err := zflate.NewDriver(engine)
	if err != nil {
		return err
	}

	actual := xxhash.New()
	if _, err := driver.Run(ctx, actual, in); err != nil {
		return err
	}
	if actual.Sum64() != expected {
		return fmt.Errorf("digest mismatch: %x != %x", actual.Sum64(), expected)
	}
	return nil
}

func digestFile(name string) (uint64, error) {
	f, err := os.Open(name)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.CopyBuffer(h, f, make([]byte, 128<<10)); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
