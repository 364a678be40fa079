package codec

import (
	"time"

	"github.com/klauspost/compress/gzip"
)

// GzipHeader is the structured gzip container metadata.  On the
// compression side it is attached through Params and may be inspected
// by the codec lazily until the stream finishes, so callers must not
// mutate it while the stream is active.  On the decompression side it
// is captured from the stream once the container header has been
// parsed.
type GzipHeader struct {
	Name    string
	Comment string
	Extra   []byte
	ModTime time.Time
	OS      byte
}

// apply copies the metadata onto the writer's pending header.
func (h *GzipHeader) apply(w *gzip.Writer) {
	if h == nil {
		return
	}
	w.Name = h.Name
	w.Comment = h.Comment
	w.Extra = h.Extra
	w.ModTime = h.ModTime
	w.OS = h.OS
}

// headerFromGzip captures the parsed container metadata.
func headerFromGzip(h gzip.Header) *GzipHeader {
	return &GzipHeader{
		Name:    h.Name,
		Comment: h.Comment,
		Extra:   h.Extra,
		ModTime: h.ModTime,
		OS:      h.OS,
	}
}
