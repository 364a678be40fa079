package codec

import (
	"bytes"
	"encoding/binary"
	"hash"
	"hash/adler32"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

// deflator is the compression side of the codec boundary.  Input is
// pushed into the backend writer, container framing is applied around
// it, and pending output accumulates in buf until drained step by
// step through emit.
type deflator struct {
	params Params
	dict   []byte

	buf bytes.Buffer
	fw  *flate.Writer
	gw  *gzip.Writer

	// adler tracks the running checksum of the uncompressed input
	// for the zlib trailer.
	adler hash.Hash32

	step []byte

	started  bool
	finished bool
	closed   bool
}

// NewDeflator initializes a compression stream with the given
// parameters.
func NewDeflator(p Params) (Stream, error) {
	p = p.withDefaults()
	if err := p.validate(false); err != nil {
		return nil, err
	}
	return &deflator{
		params: p,
		dict:   append([]byte(nil), p.Dictionary...),
		step:   make([]byte, p.Memory.stepBytes()),
	}, nil
}

// writeZlibHeader emits the RFC 1950 CMF/FLG pair plus the DICTID when
// a preset dictionary is attached.
//
// CINFO always declares the 32 KiB window: the backend writer keeps a
// full-size history no matter what WindowBits asks for, and a smaller
// declared window would promise distance limits the stream does not
// honor.
func (d *deflator) writeZlibHeader() {
	cmf := byte(0x08 | 7<<4)
	var flg byte
	switch {
	case d.params.Level >= 2 && d.params.Level <= 5:
		flg = 1 << 6
	case d.params.Level == DefaultCompression || d.params.Level == 6:
		flg = 2 << 6
	case d.params.Level >= 7:
		flg = 3 << 6
	}
	if len(d.dict) > 0 {
		flg |= 1 << 5
	}
	flg += byte(31 - (uint16(cmf)<<8|uint16(flg))%31)
	d.buf.WriteByte(cmf)
	d.buf.WriteByte(flg)
	if len(d.dict) > 0 {
		var id [4]byte
		binary.BigEndian.PutUint32(id[:], adler32.Checksum(d.dict))
		d.buf.Write(id[:])
	}
}

func (d *deflator) start() error {
	switch d.params.Format {
	case FormatGzip:
		gw, err := gzip.NewWriterLevel(&d.buf, d.params.flateLevel())
		if err != nil {
			return streamErr("deflate-init", err)
		}
		d.params.Header.apply(gw)
		d.gw = gw
	default:
		if d.params.Format == FormatZlib {
			d.writeZlibHeader()
			d.adler = adler32.New()
		}
		var (
			fw  *flate.Writer
			err error
		)
		if len(d.dict) > 0 {
			fw, err = flate.NewWriterDict(&d.buf, d.params.flateLevel(), d.dict)
		} else {
			fw, err = flate.NewWriter(&d.buf, d.params.flateLevel())
		}
		if err != nil {
			return streamErr("deflate-init", err)
		}
		d.fw = fw
	}
	d.started = true
	return nil
}

func (d *deflator) Process(in []byte, flush FlushMode, emit func(p []byte) error) (int, Status, error) {
	if d.closed {
		return 0, StatusOK, streamErr("deflate", errClosed)
	}
	if d.finished {
		if len(in) > 0 {
			return 0, StatusOK, streamErr("deflate", errFinished)
		}
		return 0, StatusStreamEnd, nil
	}
	if !d.started {
		if err := d.start(); err != nil {
			return 0, StatusOK, err
		}
	}

	if len(in) > 0 {
		var err error
		if d.gw != nil {
			_, err = d.gw.Write(in)
		} else {
			_, err = d.fw.Write(in)
		}
		if err != nil {
			return 0, StatusOK, &Error{Code: CodeErrno, Op: "deflate", Err: err}
		}
		if d.adler != nil {
			_, _ = d.adler.Write(in)
		}
	}

	switch flush {
	case FlushSync, FlushFull:
		var err error
		if d.gw != nil {
			err = d.gw.Flush()
		} else {
			err = d.fw.Flush()
		}
		if err != nil {
			return len(in), StatusOK, &Error{Code: CodeErrno, Op: "deflate-flush", Err: err}
		}
	case FlushFinish:
		var err error
		if d.gw != nil {
			err = d.gw.Close()
		} else {
			err = d.fw.Close()
		}
		if err != nil {
			return len(in), StatusOK, &Error{Code: CodeErrno, Op: "deflate-finish", Err: err}
		}
		if d.adler != nil {
			var tr [4]byte
			binary.BigEndian.PutUint32(tr[:], d.adler.Sum32())
			d.buf.Write(tr[:])
		}
		d.finished = true
	}

	for d.buf.Len() > 0 {
		n := d.buf.Len()
		if n > len(d.step) {
			n = len(d.step)
		}
		if err := emit(d.buf.Next(n)); err != nil {
			return len(in), StatusOK, err
		}
	}

	if d.finished {
		return len(in), StatusStreamEnd, nil
	}
	return len(in), StatusOK, nil
}

func (d *deflator) SetDictionary(dict []byte) error {
	if d.closed {
		return streamErr("deflate-set-dictionary", errClosed)
	}
	if d.started {
		return streamErr("deflate-set-dictionary", errDictTiming)
	}
	if d.params.Format == FormatGzip {
		return streamErr("deflate-set-dictionary", errGzipDictionary)
	}
	d.dict = append([]byte(nil), dict...)
	return nil
}

func (d *deflator) Reset() error {
	if d.closed {
		return streamErr("deflate-reset", errClosed)
	}
	d.buf.Reset()
	d.fw = nil
	d.gw = nil
	d.adler = nil
	// A dictionary injected after construction does not survive the
	// reset; only the construction-time parameters do.
	d.dict = append([]byte(nil), d.params.Dictionary...)
	d.started = false
	d.finished = false
	return nil
}

func (d *deflator) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.buf.Reset()
	d.fw = nil
	d.gw = nil
	return nil
}
