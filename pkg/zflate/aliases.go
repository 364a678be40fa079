package zflate

import "github.com/zflateio/deflate-stream-go/pkg/codec"

// Codec parameter value types, re-exported so the engine surface is
// self-contained.
type (
	Level        = codec.Level
	Strategy     = codec.Strategy
	MemoryBudget = codec.MemoryBudget
	Format       = codec.Format
	WindowBits   = codec.WindowBits
	FlushMode    = codec.FlushMode
	GzipHeader   = codec.GzipHeader
)

const (
	DefaultCompression = codec.DefaultCompression
	NoCompression      = codec.NoCompression
	BestSpeed          = codec.BestSpeed
	BestCompression    = codec.BestCompression

	StrategyDefault     = codec.StrategyDefault
	StrategyFiltered    = codec.StrategyFiltered
	StrategyHuffmanOnly = codec.StrategyHuffmanOnly
	StrategyRLE         = codec.StrategyRLE
	StrategyFixed       = codec.StrategyFixed

	FormatZlib = codec.FormatZlib
	FormatRaw  = codec.FormatRaw
	FormatGzip = codec.FormatGzip
	FormatAuto = codec.FormatAuto

	FlushNone   = codec.FlushNone
	FlushSync   = codec.FlushSync
	FlushFull   = codec.FlushFull
	FlushFinish = codec.FlushFinish

	DefaultWindowBits   = codec.DefaultWindowBits
	DefaultMemoryBudget = codec.DefaultMemoryBudget
)
