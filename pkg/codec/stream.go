package codec

// Stream is a resumable codec handle: feed bounded input, drain
// bounded output, observe a closed status tag.
//
// Process hands the codec one input span and an emit callback that
// receives every producible output block (each at most one drain step
// long) before the call returns.  The returned consumed count is how
// many input bytes the codec accepted; on StatusNeedDict it points at
// the first unconsumed payload byte.
//
// A Stream is not safe for concurrent use.
type Stream interface {
	Process(in []byte, flush FlushMode, emit func(p []byte) error) (consumed int, status Status, err error)

	// SetDictionary injects the preset dictionary.  Compression
	// accepts it only before the first Process call (or after
	// Reset); decompression only while the stream is paused on
	// StatusNeedDict.
	SetDictionary(dict []byte) error

	// Reset returns the stream to its freshly initialized state
	// with the original parameters.
	Reset() error

	// Close releases codec resources.  The stream is unusable
	// afterwards.
	Close() error
}

// HeaderReader is implemented by decompression streams that expose the
// parsed gzip container metadata.
type HeaderReader interface {
	// GzipHeader returns the container metadata, or nil if no gzip
	// header has been parsed yet.
	GzipHeader() *GzipHeader
}
