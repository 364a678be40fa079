package zflate

import (
	"bytes"
	"context"
	"io"
	"runtime"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func driverRoundTrip(t *testing.T, payload []byte, compOpts, decOpts []DriverOption) {
	t.Helper()
	ctx := context.Background()

	ce, err := NewCompressor()
	require.NoError(t, err)
	defer ce.Close()
	cd, err := NewDriver(ce, compOpts...)
	require.NoError(t, err)

	var comp bytes.Buffer
	written, err := cd.Run(ctx, &comp, bytes.NewReader(payload))
	require.NoError(t, err)
	require.EqualValues(t, comp.Len(), written)

	de, err := NewDecompressor()
	require.NoError(t, err)
	defer de.Close()
	dd, err := NewDriver(de, decOpts...)
	require.NoError(t, err)

	sum := xxhash.New()
	written, err = dd.Run(ctx, sum, bytes.NewReader(comp.Bytes()))
	require.NoError(t, err)
	require.EqualValues(t, len(payload), written)
	assert.Equal(t, xxhash.Sum64(payload), sum.Sum64())
}

func TestDriverRoundTrip(t *testing.T) {
	t.Parallel()
	driverRoundTrip(t, testPayload(t, 1<<20), nil, nil)
}

func TestDriverSmallChunks(t *testing.T) {
	t.Parallel()
	driverRoundTrip(t, testPayload(t, 10_000),
		[]DriverOption{WithChunkSize(1)},
		[]DriverOption{WithChunkSize(3)})
}

func TestDriverEmptySource(t *testing.T) {
	t.Parallel()
	driverRoundTrip(t, nil, nil, nil)
}

func TestDriverChunkSizeValidation(t *testing.T) {
	t.Parallel()

	e, err := NewCompressor()
	require.NoError(t, err)
	defer e.Close()

	_, err = NewDriver(e, WithChunkSize(0))
	var se *StreamError
	assert.ErrorAs(t, err, &se)
}

func TestDriverCallbackCancel(t *testing.T) {
	t.Parallel()

	e, err := NewCompressor()
	require.NoError(t, err)
	defer e.Close()

	calls := 0
	d, err := NewDriver(e,
		WithChunkSize(1024),
		WithProgressInterval(1),
		WithProgress(func(ProgressInfo) bool {
			calls++
			return calls < 3
		}))
	require.NoError(t, err)

	var out bytes.Buffer
	_, err = d.Run(context.Background(), &out, bytes.NewReader(testPayload(t, 1<<20)))
	require.ErrorIs(t, err, ErrCanceled)
	assert.Equal(t, 3, calls)
	assert.False(t, e.Finished(), "cancellation skips the finishing flush")
}

func TestDriverContextCancel(t *testing.T) {
	t.Parallel()

	e, err := NewCompressor()
	require.NoError(t, err)
	defer e.Close()
	d, err := NewDriver(e)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	_, err = d.Run(ctx, &out, bytes.NewReader(testPayload(t, 1024)))
	require.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
}

// A canceled run leaves the already-flushed prefix in the sink instead
// of discarding it.
func TestDriverCancelKeepsPrefix(t *testing.T) {
	t.Parallel()

	payload := testPayload(t, 1<<20)
	e, err := NewCompressor()
	require.NoError(t, err)
	defer e.Close()

	calls := 0
	d, err := NewDriver(e,
		WithChunkSize(4096),
		WithProgressInterval(1),
		WithProgress(func(ProgressInfo) bool {
			calls++
			return calls < 50
		}))
	require.NoError(t, err)

	var out bytes.Buffer
	written, err := d.Run(context.Background(), &out, bytes.NewReader(payload))
	require.ErrorIs(t, err, ErrCanceled)
	assert.EqualValues(t, out.Len(), written)
}

func TestDriverContentDefinedChunks(t *testing.T) {
	t.Parallel()
	driverRoundTrip(t, testPayload(t, 300<<10),
		[]DriverOption{WithContentDefinedChunks(1<<10, 4<<10, 16<<10)},
		nil)
}

func TestDriverDecompressTruncated(t *testing.T) {
	t.Parallel()

	payload := testPayload(t, 64<<10)
	comp := compressChunked(t, payload, 4096)

	e, err := NewDecompressor()
	require.NoError(t, err)
	defer e.Close()
	d, err := NewDriver(e, WithChunkSize(1000))
	require.NoError(t, err)

	var out bytes.Buffer
	_, err = d.Run(context.Background(), &out, bytes.NewReader(comp[:len(comp)-8]))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrData)
}

// patternReader synthesizes a compressible stream on demand without
// ever materializing it, and records the largest read request it saw.
type patternReader struct {
	remaining int64
	maxReq    int
}

func (r *patternReader) Read(p []byte) (int, error) {
	if len(p) > r.maxReq {
		r.maxReq = len(p)
	}
	if r.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}
	for i := range p {
		p[i] = byte(i)
	}
	r.remaining -= int64(len(p))
	return len(p), nil
}

// Peak memory of the chunk loop stays O(chunk size) no matter how long
// the stream is: the source is read one chunk buffer at a time and the
// live heap after a 64 MiB run grows by a small constant, not by
// anything proportional to the stream.
//
// Deliberately not parallel: it compares heap readings.
func TestDriverMemoryBounded(t *testing.T) {
	const total = 64 << 20

	src := &patternReader{remaining: total}
	e, err := NewCompressor(WithLevel(BestSpeed))
	require.NoError(t, err)
	defer e.Close()
	d, err := NewDriver(e)
	require.NoError(t, err)

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)

	written, err := d.Run(context.Background(), io.Discard, src)
	require.NoError(t, err)
	require.NotZero(t, written)

	runtime.GC()
	runtime.ReadMemStats(&after)

	assert.Equal(t, DefaultChunkSize, src.maxReq, "source is read in chunk-sized pieces")
	growth := int64(after.HeapAlloc) - int64(before.HeapAlloc)
	assert.Less(t, growth, int64(16<<20),
		"live heap growth must not scale with the %d byte stream", int64(total))
}

// Decompression can reach stream end before the source is exhausted;
// the driver must stop at the engine's word, not the reader's.
func TestDriverStopsAtStreamEnd(t *testing.T) {
	t.Parallel()

	payload := testPayload(t, 10_000)
	comp := compressChunked(t, payload, 4096)
	trailing := append(append([]byte(nil), comp...), []byte("garbage past the stream")...)

	e, err := NewDecompressor()
	require.NoError(t, err)
	defer e.Close()
	d, err := NewDriver(e, WithChunkSize(len(comp)))
	require.NoError(t, err)

	var out bytes.Buffer
	_, err = d.Run(context.Background(), &out, bytes.NewReader(trailing))
	require.NoError(t, err)
	assert.Equal(t, payload, out.Bytes())
	assert.True(t, e.Finished())
}
