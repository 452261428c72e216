package tracestore

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/camhal/internal/hal"
	"github.com/tphakala/camhal/internal/logger"
)

// Recorder defaults
const (
	DefaultQueueSize     = 1024
	DefaultFlushInterval = 50 * time.Millisecond
	maxBatch             = 200
)

// Recorder is a hal.ResultSink that forwards every callback to the next
// sink and records it in the store. Device callbacks run under the device
// lock, so events are queued and written by a background goroutine; when
// the queue is full the event is counted as dropped.
type Recorder struct {
	store *Store
	run   *Run
	next  hal.ResultSink

	seq     atomic.Int64
	dropped atomic.Int64
	events  chan Event

	done      chan struct{}
	closeOnce sync.Once
	err       error
}

var _ hal.ResultSink = (*Recorder)(nil)

// NewRecorder starts recording into run. next may be nil.
func NewRecorder(store *Store, run *Run, next hal.ResultSink) *Recorder {
	r := &Recorder{
		store:  store,
		run:    run,
		next:   next,
		events: make(chan Event, DefaultQueueSize),
		done:   make(chan struct{}),
	}
	go r.writer()
	return r
}

func (r *Recorder) NotifyShutter(frame uint32, timestamp int64) {
	if r.next != nil {
		r.next.NotifyShutter(frame, timestamp)
	}
	r.enqueue(Event{Kind: KindShutter, FrameNumber: frame, Timestamp: timestamp})
}

func (r *Recorder) NotifyError(frame uint32, code hal.ErrorCode, stream *hal.Stream) {
	if r.next != nil {
		r.next.NotifyError(frame, code, stream)
	}
	e := Event{Kind: KindError, FrameNumber: frame, ErrorCode: code.String()}
	if stream != nil {
		id := stream.ID
		e.StreamID = &id
	}
	r.enqueue(e)
}

func (r *Recorder) DeliverResult(result hal.CaptureResult) {
	if r.next != nil {
		r.next.DeliverResult(result)
	}
	e := Event{
		Kind:        KindResult,
		FrameNumber: result.FrameNumber,
		Buffers:     len(result.Buffers),
		HasMetadata: result.Metadata != nil,
	}
	for _, b := range result.Buffers {
		if b.Status == hal.BufferStatusError {
			e.BufferErrors++
		}
	}
	r.enqueue(e)
}

func (r *Recorder) enqueue(e Event) {
	e.RunID = r.run.ID
	e.Seq = r.seq.Add(1)
	e.RecordedAt = time.Now()
	select {
	case r.events <- e:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns the number of events lost to a full queue
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close stops accepting events, writes everything queued and returns the
// first write error. Callbacks must not race with Close.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.events)
		<-r.done
		r.run.Dropped = r.dropped.Load()
	})
	return r.err
}

func (r *Recorder) writer() {
	defer close(r.done)

	ticker := time.NewTicker(DefaultFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, maxBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.store.insert(batch); err != nil {
			if r.err == nil {
				r.err = err
			}
			getLogger().Error("failed to write trace events",
				logger.String("run_id", r.run.ID),
				logger.Int("events", len(batch)),
				logger.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case e, ok := <-r.events:
			if !ok {
				flush()
				return
			}
			batch = append(batch, e)
			if len(batch) >= maxBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
