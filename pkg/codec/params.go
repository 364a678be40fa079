// Package codec wraps the DEFLATE-family primitives from
// github.com/klauspost/compress behind a resumable stream boundary:
// feed input, drain output, report a closed status tag.
//
// The package frames the zlib container itself (header, FDICT/DICTID,
// adler32 trailer) so that preset-dictionary timing matches zlib
// semantics exactly; gzip and raw streams delegate framing to the
// underlying library.
package codec

import (
	"github.com/klauspost/compress/flate"
)

// Level selects the speed / ratio trade-off, mirroring zlib levels.
type Level int

const (
	DefaultCompression Level = -1
	NoCompression      Level = 0
	BestSpeed          Level = 1
	BestCompression    Level = 9
)

// Valid reports whether l is within the zlib level range.
func (l Level) Valid() bool {
	return l >= DefaultCompression && l <= BestCompression
}

// Strategy tunes the compressed data encoding, mirroring the zlib
// strategies.  The pure-Go backend has no direct equivalent for
// Filtered and Fixed; those keep the configured level.  HuffmanOnly
// and RLE map onto the backend's Huffman-only entropy coder.
type Strategy int

const (
	StrategyDefault Strategy = iota
	StrategyFiltered
	StrategyHuffmanOnly
	StrategyRLE
	StrategyFixed
)

// MemoryBudget trades working-set size for speed on the nine discrete
// zlib memLevel steps.  It scales the drain-step buffer used by the
// feed loop.
type MemoryBudget int

const DefaultMemoryBudget MemoryBudget = 8

// Valid reports whether m is one of the nine budget levels.
func (m MemoryBudget) Valid() bool { return m >= 1 && m <= 9 }

// stepBytes is the size of one drain step under this budget.
func (m MemoryBudget) stepBytes() int { return 256 << uint(m) }

// Format selects the container around the raw DEFLATE stream.
type Format int

const (
	// FormatZlib is an RFC 1950 stream: 2-byte header, optional
	// dictionary id, adler32 trailer.
	FormatZlib Format = iota
	// FormatRaw is a bare RFC 1951 stream with no framing.
	FormatRaw
	// FormatGzip is an RFC 1952 stream with header metadata and a
	// CRC-32 trailer.
	FormatGzip
	// FormatAuto detects zlib vs gzip vs raw from the first bytes.
	// Decompression only.
	FormatAuto
)

func (f Format) String() string {
	switch f {
	case FormatZlib:
		return "zlib"
	case FormatRaw:
		return "raw"
	case FormatGzip:
		return "gzip"
	case FormatAuto:
		return "auto"
	default:
		return "unknown"
	}
}

// WindowBits is log2 of the history window, 8..15.  The backend codec
// always compresses and decompresses with the full 32 KiB history, so
// on streams the setting is accepted for parameter parity only; it
// sizes the window arena of the pull/push engine.
type WindowBits int

const DefaultWindowBits WindowBits = 15

// Valid reports whether w is within the DEFLATE window range.
func (w WindowBits) Valid() bool { return w >= 8 && w <= 15 }

// WindowSize returns the history window size in bytes.
func (w WindowBits) WindowSize() int { return 1 << uint(w) }

// FlushMode instructs a feed call how eagerly to emit output and
// whether to terminate the logical stream.
type FlushMode int

const (
	// FlushNone is normal incremental operation.
	FlushNone FlushMode = iota
	// FlushSync forces out all pending output on a byte boundary.
	FlushSync
	// FlushFull behaves as FlushSync with the pure-Go backend.
	FlushFull
	// FlushFinish terminates the stream; no more input is valid
	// until the stream is reset.
	FlushFinish
)

// Params configures a stream in either direction.  Level follows the
// zlib numbering, so the zero value describes a store-only zlib
// stream; pass DefaultCompression for the usual level.
type Params struct {
	Level      Level
	Strategy   Strategy
	Memory     MemoryBudget
	Format     Format
	WindowBits WindowBits

	// Dictionary seeds the history window before the first input.
	// For decompression it also satisfies a need-dictionary signal
	// automatically.
	Dictionary []byte

	// Header carries the gzip container metadata to emit.  Only
	// meaningful with FormatGzip on the compression side.  It must
	// stay unmodified until the stream finishes.
	Header *GzipHeader
}

// withDefaults fills unset sizing fields with their zlib defaults.
// Level zero stays NoCompression to keep the zlib numbering intact;
// callers wanting the default level pass DefaultCompression.
func (p Params) withDefaults() Params {
	if p.Memory == 0 {
		p.Memory = DefaultMemoryBudget
	}
	if p.WindowBits == 0 {
		p.WindowBits = DefaultWindowBits
	}
	return p
}

// validate rejects parameter combinations the codec cannot accept.
func (p Params) validate(decompress bool) error {
	if !p.Level.Valid() {
		return streamErr("init", errInvalidLevel)
	}
	if !p.Memory.Valid() {
		return streamErr("init", errInvalidMemory)
	}
	if !p.WindowBits.Valid() {
		return streamErr("init", errInvalidWindow)
	}
	if p.Format == FormatAuto && !decompress {
		return streamErr("init", errAutoCompress)
	}
	if p.Format == FormatGzip && len(p.Dictionary) > 0 {
		// zlib rejects preset dictionaries on gzip streams.
		return streamErr("init", errGzipDictionary)
	}
	if p.Header != nil && p.Format != FormatGzip {
		return streamErr("init", errHeaderFormat)
	}
	return nil
}

// flateLevel maps Level and Strategy onto the backend's level space.
func (p Params) flateLevel() int {
	switch p.Strategy {
	case StrategyHuffmanOnly, StrategyRLE:
		return flate.HuffmanOnly
	}
	return int(p.Level)
}
