package codec

import (
	"encoding/binary"
	"errors"
	"hash"
	"hash/adler32"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

// pushReader adapts the pull-based backend readers to push-based feed
// semantics.  The decoder goroutine pulls from it; every time it runs
// out of bytes it announces a stall and blocks until Process hands it
// the next input span.  Closing the input channel reads as EOF.
//
// It implements io.ByteReader so the backend consumes it directly,
// without a read-ahead buffer that would swallow container trailers.
//
// nread counts the bytes the decoder actually read, net of replayed
// header bytes.  Process reads it only while the decoder is parked on
// a stall or has exited, so no further synchronization is needed.
type pushReader struct {
	in    chan []byte
	stall chan struct{}
	cur   []byte
	nread int64
}

func (r *pushReader) Read(p []byte) (int, error) {
	for len(r.cur) == 0 {
		r.stall <- struct{}{}
		chunk, ok := <-r.in
		if !ok {
			return 0, io.EOF
		}
		r.cur = chunk
	}
	n := copy(p, r.cur)
	r.cur = r.cur[n:]
	r.nread += int64(n)
	return n, nil
}

func (r *pushReader) ReadByte() (byte, error) {
	for len(r.cur) == 0 {
		r.stall <- struct{}{}
		chunk, ok := <-r.in
		if !ok {
			return 0, io.EOF
		}
		r.cur = chunk
	}
	b := r.cur[0]
	r.cur = r.cur[1:]
	r.nread++
	return b, nil
}

// inflator is the decompression side of the codec boundary.  The
// container header is scanned incrementally by Process itself so that
// the need-dictionary signal fires with exact zlib timing; the DEFLATE
// body is decoded by a confined goroutine bridged through pushReader.
type inflator struct {
	params Params
	step   int
	dict   []byte

	// container scanning state, before the decoder starts.
	format  Format
	hdr     []byte
	replay  []byte
	hdrDone bool

	needDict bool
	dictID   uint32

	src        *pushReader
	out        chan []byte
	done       chan error
	started    bool
	srcWaiting bool
	inClosed   bool

	// reported is how many body bytes have been returned as consumed
	// so far; settle reconciles it against the decoder's read count.
	reported int64

	finished bool
	finErr   error
	closed   bool

	mu    sync.Mutex
	gzHdr *GzipHeader
}

// NewInflator initializes a decompression stream with the given
// parameters.
func NewInflator(p Params) (Stream, error) {
	p = p.withDefaults()
	if err := p.validate(true); err != nil {
		return nil, err
	}
	return &inflator{
		params: p,
		step:   p.Memory.stepBytes(),
		dict:   append([]byte(nil), p.Dictionary...),
		format: p.Format,
	}, nil
}

// scanHeader consumes container header bytes from in.  It tolerates
// arbitrarily small spans; callers keep feeding until hdrDone flips or
// a status/error is returned.
func (f *inflator) scanHeader(in []byte) (int, Status, error) {
	consumed := 0
	if f.format == FormatRaw {
		f.hdrDone = true
		return 0, StatusOK, nil
	}
	for {
		if f.format == FormatGzip {
			// The backend parses the gzip header itself; hand
			// back anything consumed while sniffing.
			f.replay = f.hdr
			f.hdr = nil
			f.hdrDone = true
			return consumed, StatusOK, nil
		}
		if len(f.hdr) < 2 {
			if consumed == len(in) {
				return consumed, StatusOK, nil
			}
			f.hdr = append(f.hdr, in[consumed])
			consumed++
			continue
		}
		if f.format == FormatAuto {
			b0, b1 := f.hdr[0], f.hdr[1]
			switch {
			case b0 == 0x1f && b1 == 0x8b:
				f.format = FormatGzip
				continue
			case b0&0x0f == 8 && b0>>4 <= 7 && (uint16(b0)<<8|uint16(b1))%31 == 0:
				f.format = FormatZlib
			default:
				f.format = FormatRaw
				f.replay = f.hdr
				f.hdr = nil
				f.hdrDone = true
				return consumed, StatusOK, nil
			}
		}

		cmf, flg := f.hdr[0], f.hdr[1]
		if cmf&0x0f != 8 {
			return consumed, StatusOK, dataErr("inflate-header", errUnknownMethod)
		}
		if cmf>>4 > 7 {
			return consumed, StatusOK, dataErr("inflate-header", errWindowTooBig)
		}
		if (uint16(cmf)<<8|uint16(flg))%31 != 0 {
			return consumed, StatusOK, dataErr("inflate-header", errHeaderCheck)
		}
		if flg&0x20 == 0 {
			f.hdr = nil
			f.hdrDone = true
			return consumed, StatusOK, nil
		}
		for len(f.hdr) < 6 {
			if consumed == len(in) {
				return consumed, StatusOK, nil
			}
			f.hdr = append(f.hdr, in[consumed])
			consumed++
		}
		f.dictID = binary.BigEndian.Uint32(f.hdr[2:6])
		f.hdr = nil
		f.hdrDone = true
		if len(f.dict) > 0 {
			if adler32.Checksum(f.dict) != f.dictID {
				return consumed, StatusOK, dataErr("inflate-dictionary", errDictMismatch)
			}
			return consumed, StatusOK, nil
		}
		f.needDict = true
		return consumed, StatusNeedDict, nil
	}
}

func (f *inflator) start() {
	f.src = &pushReader{
		in:    make(chan []byte),
		stall: make(chan struct{}),
		cur:   f.replay,
		// Replayed bytes were already counted by the header scan.
		nread: -int64(len(f.replay)),
	}
	f.replay = nil
	f.out = make(chan []byte)
	f.done = make(chan error, 1)
	f.started = true
	switch f.format {
	case FormatGzip:
		go f.runGzip()
	case FormatZlib:
		go f.runFlate(true)
	default:
		go f.runFlate(false)
	}
}

// runFlate decodes the DEFLATE body and, for zlib streams, verifies
// the adler32 trailer against the produced output.
func (f *inflator) runFlate(zlibTrailer bool) {
	var fr io.ReadCloser
	if len(f.dict) > 0 {
		fr = flate.NewReaderDict(f.src, f.dict)
	} else {
		fr = flate.NewReader(f.src)
	}
	var sum hash.Hash32
	if zlibTrailer {
		sum = adler32.New()
	}
	buf := make([]byte, f.step)
	for {
		n, err := fr.Read(buf)
		if n > 0 {
			p := make([]byte, n)
			copy(p, buf[:n])
			if sum != nil {
				_, _ = sum.Write(p)
			}
			f.out <- p
		}
		if err == nil {
			continue
		}
		if err == io.EOF {
			if zlibTrailer {
				var tr [4]byte
				if _, terr := io.ReadFull(f.src, tr[:]); terr != nil {
					f.done <- dataErr("inflate-trailer", terr)
					return
				}
				if binary.BigEndian.Uint32(tr[:]) != sum.Sum32() {
					f.done <- dataErr("inflate-trailer", errChecksum)
					return
				}
			}
			f.done <- io.EOF
			return
		}
		f.done <- mapInflateErr(err)
		return
	}
}

// runGzip decodes a single gzip member; the backend verifies the
// CRC-32 trailer itself.
func (f *inflator) runGzip() {
	zr, err := gzip.NewReader(f.src)
	if err != nil {
		f.done <- mapInflateErr(err)
		return
	}
	zr.Multistream(false)
	f.mu.Lock()
	f.gzHdr = headerFromGzip(zr.Header)
	f.mu.Unlock()

	buf := make([]byte, f.step)
	for {
		n, err := zr.Read(buf)
		if n > 0 {
			p := make([]byte, n)
			copy(p, buf[:n])
			f.out <- p
		}
		if err == nil {
			continue
		}
		if err == io.EOF {
			f.done <- io.EOF
			return
		}
		f.done <- mapInflateErr(err)
		return
	}
}

// mapInflateErr translates backend failures into the boundary types.
func mapInflateErr(err error) error {
	var corrupt flate.CorruptInputError
	switch {
	case errors.As(err, &corrupt),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, gzip.ErrHeader),
		errors.Is(err, gzip.ErrChecksum):
		return dataErr("inflate", err)
	}
	return &Error{Code: CodeErrno, Op: "inflate", Err: err}
}

func (f *inflator) Process(in []byte, flush FlushMode, emit func(p []byte) error) (int, Status, error) {
	if f.closed {
		return 0, StatusOK, streamErr("inflate", errClosed)
	}
	if f.finished {
		if f.finErr != nil {
			return 0, StatusOK, f.finErr
		}
		if len(in) > 0 {
			return 0, StatusOK, streamErr("inflate", errFinished)
		}
		return 0, StatusStreamEnd, nil
	}
	if f.needDict {
		return 0, StatusNeedDict, nil
	}

	consumed := 0
	if !f.hdrDone {
		n, st, err := f.scanHeader(in)
		consumed += n
		if err != nil {
			f.finished = true
			f.finErr = err
			return consumed, StatusOK, err
		}
		if st == StatusNeedDict {
			return consumed, StatusNeedDict, nil
		}
		if !f.hdrDone {
			if flush == FlushFinish {
				f.finished = true
				f.finErr = dataErr("inflate-header", io.ErrUnexpectedEOF)
				return consumed, StatusOK, f.finErr
			}
			return consumed, StatusOK, nil
		}
		in = in[n:]
	}
	if !f.started {
		f.start()
	}

	deliver := in
	delivered := 0
	if f.srcWaiting {
		switch {
		case len(deliver) > 0:
			f.src.in <- deliver
			delivered += len(deliver)
			deliver = nil
			f.srcWaiting = false
		case flush == FlushFinish && !f.inClosed:
			close(f.src.in)
			f.inClosed = true
			f.srcWaiting = false
		default:
			return consumed, StatusOK, nil
		}
	}

	for {
		select {
		case p := <-f.out:
			if err := emit(p); err != nil {
				// The decoder may be mid-read here, so the exact
				// count is unavailable; charge everything handed
				// over.
				f.reported += int64(delivered)
				return consumed + delivered, StatusOK, err
			}
		case <-f.src.stall:
			switch {
			case len(deliver) > 0:
				f.src.in <- deliver
				delivered += len(deliver)
				deliver = nil
			case flush == FlushFinish && !f.inClosed:
				close(f.src.in)
				f.inClosed = true
			default:
				f.srcWaiting = true
				return consumed + f.settle(), StatusOK, nil
			}
		case err := <-f.done:
			f.finished = true
			body := f.settle()
			f.src.cur = nil
			if err == io.EOF {
				return consumed + body, StatusStreamEnd, nil
			}
			f.finErr = err
			return consumed + body, StatusOK, err
		}
	}
}

// settle returns the body bytes consumed since the last reconciliation
// point.  Bytes the decoder is still holding undrained are not counted
// until it reads them; reported only ever moves forward, so a byte is
// never charged twice.  Valid only while the decoder is parked on a
// stall or has exited.
func (f *inflator) settle() int {
	if f.src.nread <= f.reported {
		return 0
	}
	n := f.src.nread - f.reported
	f.reported = f.src.nread
	return int(n)
}

func (f *inflator) SetDictionary(dict []byte) error {
	if f.closed {
		return streamErr("inflate-set-dictionary", errClosed)
	}
	if !f.needDict {
		return streamErr("inflate-set-dictionary", errDictTiming)
	}
	if adler32.Checksum(dict) != f.dictID {
		return dataErr("inflate-set-dictionary", errDictMismatch)
	}
	f.dict = append([]byte(nil), dict...)
	f.needDict = false
	return nil
}

// stop reaps the decoder goroutine.  Safe to call in any state.
func (f *inflator) stop() {
	if !f.started || f.finished {
		return
	}
	if f.srcWaiting && !f.inClosed {
		close(f.src.in)
		f.inClosed = true
		f.srcWaiting = false
	}
	for {
		select {
		case <-f.out:
		case <-f.src.stall:
			if !f.inClosed {
				close(f.src.in)
				f.inClosed = true
			}
		case <-f.done:
			f.finished = true
			return
		}
	}
}

func (f *inflator) Reset() error {
	if f.closed {
		return streamErr("inflate-reset", errClosed)
	}
	f.stop()
	f.mu.Lock()
	f.gzHdr = nil
	f.mu.Unlock()

	f.dict = append([]byte(nil), f.params.Dictionary...)
	f.format = f.params.Format
	f.hdr = nil
	f.replay = nil
	f.hdrDone = false
	f.needDict = false
	f.dictID = 0
	f.src = nil
	f.out = nil
	f.done = nil
	f.started = false
	f.srcWaiting = false
	f.inClosed = false
	f.reported = 0
	f.finished = false
	f.finErr = nil
	return nil
}

func (f *inflator) Close() error {
	if f.closed {
		return nil
	}
	f.stop()
	f.closed = true
	return nil
}

// GzipHeader returns the parsed container metadata, or nil before the
// gzip header has been decoded.
func (f *inflator) GzipHeader() *GzipHeader {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gzHdr
}
