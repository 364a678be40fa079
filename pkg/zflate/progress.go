package zflate

import (
	"time"

	"go.uber.org/atomic"
)

// Phase labels which stage of the chunk loop a progress snapshot was
// taken in.
type Phase int

const (
	PhaseRead Phase = iota
	PhaseCompress
	PhaseDecompress
	PhaseWrite
	PhaseFlush
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseRead:
		return "reading"
	case PhaseCompress:
		return "compressing"
	case PhaseDecompress:
		return "decompressing"
	case PhaseWrite:
		return "writing"
	case PhaseFlush:
		return "flushing"
	case PhaseFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// ProgressInfo is an immutable progress snapshot.  Total is zero when
// the source size is unknown; Throughput is zero until enough wall
// time has elapsed to measure it; ETA is meaningful only when HasETA
// is set.
type ProgressInfo struct {
	Processed  int64
	Total      int64
	Percent    float64
	Throughput float64
	ETA        time.Duration
	HasETA     bool
	Phase      Phase
	Timestamp  time.Time
}

// ProgressFunc receives progress snapshots.  Returning false requests
// a cooperative stop; the chunk loop then fails with ErrCanceled
// without completing the finishing flush.
type ProgressFunc func(ProgressInfo) bool

// SimpleProgressFunc is the plain observation callback.
type SimpleProgressFunc func(processed, total int64)

// DefaultProgressInterval gates how often snapshots are emitted.
const DefaultProgressInterval = 100 * time.Millisecond

// reporter computes interval-gated progress snapshots and fans them
// out to whichever delivery mechanisms are configured.  All mechanisms
// observe the same values; they differ only in delivery.
type reporter struct {
	interval time.Duration
	total    int64

	fn     ProgressFunc
	simple SimpleProgressFunc
	ch     chan<- ProgressInfo

	processed atomic.Int64
	start     time.Time
	lastEmit  time.Time
	emitted   bool

	now func() time.Time
}

func newReporter(interval time.Duration, total int64) *reporter {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &reporter{
		interval: interval,
		total:    total,
		now:      time.Now,
	}
}

// begin marks the start of the observed operation for throughput and
// ETA math.
func (r *reporter) begin() { r.start = r.now() }

func (r *reporter) add(n int64) { r.processed.Add(n) }

func (r *reporter) active() bool {
	return r.fn != nil || r.simple != nil || r.ch != nil
}

func (r *reporter) snapshot(phase Phase) ProgressInfo {
	now := r.now()
	info := ProgressInfo{
		Processed: r.processed.Load(),
		Total:     r.total,
		Phase:     phase,
		Timestamp: now,
	}
	if r.total > 0 {
		info.Percent = float64(info.Processed) / float64(r.total) * 100
	}
	if elapsed := now.Sub(r.start); elapsed > 0 && info.Processed > 0 {
		info.Throughput = float64(info.Processed) / elapsed.Seconds()
		if r.total > 0 && info.Throughput > 0 {
			remaining := float64(r.total-info.Processed) / info.Throughput
			info.ETA = time.Duration(remaining * float64(time.Second))
			info.HasETA = true
		}
	}
	return info
}

// emit delivers a snapshot unconditionally.  The returned bool is the
// cancellable callback's continue decision.
func (r *reporter) emit(phase Phase) bool {
	if !r.active() {
		return true
	}
	info := r.snapshot(phase)
	r.lastEmit = info.Timestamp
	r.emitted = true

	cont := true
	if r.fn != nil {
		cont = r.fn(info)
	}
	if r.simple != nil {
		r.simple(info.Processed, info.Total)
	}
	if r.ch != nil {
		r.ch <- info
	}
	return cont
}

// maybeEmit delivers a snapshot if this is the first report or the
// configured interval has elapsed since the last one.
func (r *reporter) maybeEmit(phase Phase) bool {
	if !r.active() {
		return true
	}
	if r.emitted && r.now().Sub(r.lastEmit) < r.interval {
		return true
	}
	return r.emit(phase)
}
