package codec

import "bytes"

// Compress is the whole-buffer convenience operation.  Unlike the
// chunked path it materializes the full result in memory.
func Compress(src []byte, p Params) ([]byte, error) {
	d, err := NewDeflator(p)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	var out bytes.Buffer
	out.Grow(len(src)/2 + 64)
	_, _, err = d.Process(src, FlushFinish, func(p []byte) error {
		_, werr := out.Write(p)
		return werr
	})
	if err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Decompress is the whole-buffer convenience operation.  src must hold
// one complete stream; truncated input fails with ErrData.
func Decompress(src []byte, p Params) ([]byte, error) {
	f, err := NewInflator(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out bytes.Buffer
	out.Grow(len(src) * 2)
	_, st, err := f.Process(src, FlushFinish, func(p []byte) error {
		_, werr := out.Write(p)
		return werr
	})
	if err != nil {
		return nil, err
	}
	if st == StatusNeedDict {
		return nil, &Error{Code: CodeNeedDict, Op: "decompress", Err: ErrNeedDictionary}
	}
	return out.Bytes(), nil
}
