package zflate

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zflateio/deflate-stream-go/pkg/codec"
)

func testPayload(t *testing.T, n int) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	phrase := []byte("incremental compression exercises the feed/drain loop. ")
	out := make([]byte, 0, n)
	for len(out) < n {
		if rng.Intn(4) == 0 {
			out = append(out, byte(rng.Intn(256)))
		} else {
			out = append(out, phrase...)
		}
	}
	return out[:n]
}

// compressChunked pushes data through a fresh compressor in fixed
// spans, finishing on the last.
func compressChunked(t *testing.T, data []byte, chunkSize int, opts ...Option) []byte {
	t.Helper()
	e, err := NewCompressor(opts...)
	require.NoError(t, err)
	defer e.Close()

	var comp []byte
	for len(data) > chunkSize {
		out, ferr := e.Feed(data[:chunkSize], FlushNone)
		require.NoError(t, ferr)
		comp = append(comp, out...)
		data = data[chunkSize:]
	}
	out, err := e.Feed(data, FlushFinish)
	require.NoError(t, err)
	require.True(t, e.Finished())
	return append(comp, out...)
}

// decompressChunked pushes compressed spans through a fresh
// decompressor until it reports stream end.
func decompressChunked(t *testing.T, comp []byte, chunkSize int, opts ...Option) []byte {
	t.Helper()
	e, err := NewDecompressor(opts...)
	require.NoError(t, err)
	defer e.Close()

	var dec []byte
	for len(comp) > 0 && !e.Finished() {
		n := chunkSize
		if n > len(comp) {
			n = len(comp)
		}
		out, ferr := e.Feed(comp[:n], FlushNone)
		require.NoError(t, ferr)
		dec = append(dec, out...)
		comp = comp[n:]
	}
	if !e.Finished() {
		out, ferr := e.Finish()
		require.NoError(t, ferr)
		dec = append(dec, out...)
	}
	return dec
}

func TestEngineRoundTripChunkSizes(t *testing.T) {
	t.Parallel()

	payload := testPayload(t, 100<<10)
	for _, size := range []int{1, 7, 50, 4096, DefaultChunkSize, len(payload) + 1} {
		size := size
		t.Run(fmt.Sprintf("chunk-%d", size), func(t *testing.T) {
			t.Parallel()

			comp := compressChunked(t, payload, size)
			// Output must not depend on how the input was split.
			assert.Equal(t, compressChunked(t, payload, len(payload)+1), comp)

			for _, decSize := range []int{1, 333, len(comp) + 1} {
				assert.Equal(t, payload, decompressChunked(t, comp, decSize))
			}
		})
	}
}

func TestEngineShortFinalChunk(t *testing.T) {
	t.Parallel()

	// 44 bytes in spans of 8: five full feeds and one final short
	// feed carrying the finishing flush.
	payload := testPayload(t, 44)
	e, err := NewCompressor()
	require.NoError(t, err)
	defer e.Close()

	var comp []byte
	feeds := 0
	for off := 0; off < len(payload); off += 8 {
		end := off + 8
		flush := FlushNone
		if end >= len(payload) {
			end = len(payload)
			flush = FlushFinish
		}
		out, ferr := e.Feed(payload[off:end], flush)
		require.NoError(t, ferr)
		comp = append(comp, out...)
		feeds++
	}
	assert.Equal(t, 6, feeds)
	assert.True(t, e.Finished())
	assert.Equal(t, payload, decompressChunked(t, comp, 8))
}

func TestEngineStreamInfo(t *testing.T) {
	t.Parallel()

	payload := testPayload(t, 32<<10)
	e, err := NewCompressor()
	require.NoError(t, err)
	defer e.Close()

	info := e.StreamInfo()
	assert.Zero(t, info.TotalIn)
	assert.Zero(t, info.TotalOut)
	assert.True(t, info.Active)

	out, err := e.Feed(payload, FlushFinish)
	require.NoError(t, err)

	info = e.StreamInfo()
	assert.EqualValues(t, len(payload), info.TotalIn)
	assert.EqualValues(t, len(out), info.TotalOut)
	assert.False(t, info.Active)
}

// TotalIn counts only stream bytes, even when trailing bytes ride in
// the same feed as the stream end or the stream spans several feeds.
func TestEngineTotalInStopsAtStreamEnd(t *testing.T) {
	t.Parallel()

	payload := testPayload(t, 16<<10)
	comp := compressChunked(t, payload, 4096)
	padded := append(append([]byte(nil), comp...), []byte("trailing junk")...)

	e, err := NewDecompressor()
	require.NoError(t, err)
	defer e.Close()

	split := len(comp) - 3
	var dec []byte
	out, err := e.Feed(padded[:split], FlushNone)
	require.NoError(t, err)
	dec = append(dec, out...)
	out, err = e.Feed(padded[split:], FlushNone)
	require.NoError(t, err)
	dec = append(dec, out...)

	require.True(t, e.Finished())
	assert.Equal(t, payload, dec)
	assert.EqualValues(t, len(comp), e.StreamInfo().TotalIn)
}

func TestEngineFeedAfterFinish(t *testing.T) {
	t.Parallel()

	e, err := NewCompressor()
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Feed([]byte("data"), FlushFinish)
	require.NoError(t, err)

	_, err = e.Feed([]byte("more"), FlushNone)
	var se *StreamError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "feed", se.Op)
}

func TestEngineReset(t *testing.T) {
	t.Parallel()

	payload := testPayload(t, 16<<10)
	e, err := NewCompressor()
	require.NoError(t, err)
	defer e.Close()

	first, err := e.Feed(payload, FlushFinish)
	require.NoError(t, err)

	require.NoError(t, e.Reset())
	info := e.StreamInfo()
	assert.Zero(t, info.TotalIn)
	assert.True(t, info.Active)

	second, err := e.Feed(payload, FlushFinish)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEngineClosed(t *testing.T) {
	t.Parallel()

	e, err := NewCompressor()
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close(), "closing twice is a no-op")

	_, err = e.Feed([]byte("data"), FlushNone)
	var se *StreamError
	assert.ErrorAs(t, err, &se)
	assert.ErrorAs(t, e.Reset(), &se)
}

func TestEngineOptionValidation(t *testing.T) {
	t.Parallel()

	_, err := NewCompressor(WithLevel(42))
	assert.Error(t, err)

	_, err = NewCompressor(WithFormat(FormatAuto))
	assert.Error(t, err, "auto-detect is decompression only")

	_, err = NewDecompressor(WithFormat(FormatGzip), WithDictionary([]byte("d")))
	assert.Error(t, err, "gzip takes no preset dictionary")
}

func TestEngineNeedDictionaryResume(t *testing.T) {
	t.Parallel()

	dict := []byte("shared preamble for all messages in this stream")
	payload := append(append([]byte(nil), dict...), testPayload(t, 8<<10)...)
	comp := compressChunked(t, payload, 1024,
		WithFormat(FormatZlib), WithDictionary(dict))

	e, err := NewDecompressor()
	require.NoError(t, err)
	defer e.Close()

	out, err := e.Feed(comp, FlushFinish)
	require.ErrorIs(t, err, ErrNeedDictionary)
	require.Empty(t, out)

	// Wrong dictionary is rejected and the stream stays paused.
	err = e.SetDictionary([]byte("not the dictionary"))
	var de *DecompressionError
	require.ErrorAs(t, err, &de)
	require.ErrorIs(t, err, ErrData)

	require.NoError(t, e.SetDictionary(dict))

	// The unconsumed remainder was retained; an empty finishing feed
	// resumes from the pause point.
	out, err = e.Feed(nil, FlushFinish)
	require.NoError(t, err)
	assert.True(t, e.Finished())
	assert.Equal(t, payload, out)
}

func TestEnginePresetDictionary(t *testing.T) {
	t.Parallel()

	dict := []byte("shared preamble for all messages in this stream")
	payload := append(append([]byte(nil), dict...), testPayload(t, 8<<10)...)
	comp := compressChunked(t, payload, 1024,
		WithFormat(FormatZlib), WithDictionary(dict))

	dec := decompressChunked(t, comp, 512, WithDictionary(dict))
	assert.Equal(t, payload, dec)
}

func TestEngineCompressDictionaryTiming(t *testing.T) {
	t.Parallel()

	e, err := NewCompressor(WithFormat(FormatZlib))
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Feed([]byte("data"), FlushNone)
	require.NoError(t, err)

	var se *StreamError
	assert.ErrorAs(t, e.SetDictionary([]byte("too late")), &se)
}

func TestEngineTruncatedInput(t *testing.T) {
	t.Parallel()

	payload := testPayload(t, 16<<10)
	comp := compressChunked(t, payload, 1024, WithFormat(FormatZlib))

	e, err := NewDecompressor()
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Feed(comp[:len(comp)-6], FlushFinish)
	var de *DecompressionError
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, err, ErrData)
}

func TestEngineSyncFlushBoundary(t *testing.T) {
	t.Parallel()

	first := testPayload(t, 4<<10)
	e, err := NewCompressor(WithFormat(FormatZlib))
	require.NoError(t, err)
	defer e.Close()

	flushed, err := e.Feed(first, FlushSync)
	require.NoError(t, err)
	require.NotEmpty(t, flushed)

	// The flushed prefix decodes on its own.
	d, err := NewDecompressor()
	require.NoError(t, err)
	defer d.Close()
	partial, err := d.Feed(flushed, FlushNone)
	require.NoError(t, err)
	assert.Equal(t, first, partial)
}

func TestEngineFullFlushBoundary(t *testing.T) {
	t.Parallel()

	payload := testPayload(t, 4<<10)
	e, err := NewCompressor(WithFormat(FormatZlib))
	require.NoError(t, err)
	defer e.Close()

	out, err := e.Feed(payload, FlushFull)
	require.NoError(t, err)
	tail, err := e.Feed(testPayload(t, 1<<10), FlushFinish)
	require.NoError(t, err)

	dec := decompressChunked(t, append(out, tail...), 777)
	assert.Equal(t, payload, dec[:len(payload)])
}

func TestEngineGzipHeaderReadback(t *testing.T) {
	t.Parallel()

	hdr := &GzipHeader{Name: "report.txt", Comment: "nightly export"}
	payload := testPayload(t, 8<<10)
	comp := compressChunked(t, payload, 2048, WithGzipHeader(hdr))

	e, err := NewDecompressor()
	require.NoError(t, err)
	defer e.Close()

	dec, err := e.Feed(comp, FlushFinish)
	require.NoError(t, err)
	assert.Equal(t, payload, dec)

	got := e.GzipHeader()
	require.NotNil(t, got)
	assert.Equal(t, "report.txt", got.Name)
	assert.Equal(t, "nightly export", got.Comment)

	// Compressors expose no container metadata.
	c, err := NewCompressor()
	require.NoError(t, err)
	defer c.Close()
	assert.Nil(t, c.GzipHeader())
}

func TestEngineModes(t *testing.T) {
	t.Parallel()

	c, err := NewCompressor()
	require.NoError(t, err)
	defer c.Close()
	d, err := NewDecompressor()
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, ModeCompress, c.Mode())
	assert.Equal(t, ModeDecompress, d.Mode())
	assert.Equal(t, "compress", ModeCompress.String())
	assert.Equal(t, "decompress", ModeDecompress.String())
}

func TestEngineRawFormat(t *testing.T) {
	t.Parallel()

	payload := testPayload(t, 32<<10)
	comp := compressChunked(t, payload, 4096, WithFormat(FormatRaw))
	dec := decompressChunked(t, comp, 4096, WithFormat(FormatRaw))
	assert.Equal(t, payload, dec)
}

func TestWrapCodecTaxonomy(t *testing.T) {
	t.Parallel()

	assert.NoError(t, wrapCodec(ModeCompress, nil))

	_, err := codec.Decompress([]byte{0x78, 0x00, 0xde, 0xad}, codec.Params{Format: codec.FormatZlib})
	require.Error(t, err)
	wrapped := wrapCodec(ModeDecompress, err)
	var de *DecompressionError
	require.ErrorAs(t, wrapped, &de)
	assert.Equal(t, codec.CodeDataError, de.Code)
}
