package zflate

import (
	"go.uber.org/zap"

	"github.com/zflateio/deflate-stream-go/pkg/codec"
)

// Option configures an Engine at construction time.
type Option func(*Engine) error

// WithLevel sets the compression level.
func WithLevel(l Level) Option {
	return func(e *Engine) error { e.params.Level = l; return nil }
}

// WithStrategy sets the compression strategy.
func WithStrategy(s Strategy) Option {
	return func(e *Engine) error { e.params.Strategy = s; return nil }
}

// WithFormat selects the container format.
func WithFormat(f Format) Option {
	return func(e *Engine) error { e.params.Format = f; return nil }
}

// WithWindowBits sets the history window size, 8..15 bits.
func WithWindowBits(w WindowBits) Option {
	return func(e *Engine) error { e.params.WindowBits = w; return nil }
}

// WithMemoryBudget sets one of the nine memory/speed trade-off levels.
func WithMemoryBudget(m MemoryBudget) Option {
	return func(e *Engine) error { e.params.Memory = m; return nil }
}

// WithDictionary seeds the preset dictionary.  On a decompressor it
// also satisfies a need-dictionary signal automatically.
func WithDictionary(dict []byte) Option {
	return func(e *Engine) error {
		e.params.Dictionary = append([]byte(nil), dict...)
		return nil
	}
}

// WithGzipHeader attaches container metadata to a compression stream
// and selects the gzip format.  The header must stay unmodified until
// the stream finishes; the codec may read it lazily at flush time.
func WithGzipHeader(h *GzipHeader) Option {
	return func(e *Engine) error {
		e.params.Header = h
		e.params.Format = codec.FormatGzip
		return nil
	}
}

// WithLogger replaces the default no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) error { e.logger = l; return nil }
}
