package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"www.github.com/Wanderer0074348/RoastRouter/src/logger"
	"www.github.com/Wanderer0074348/RoastRouter/src/models"
)

const sinkWriteTimeout = 5 * time.Second

// Recorder fans routing log entries out to sinks on a background worker.
// Log never blocks the request path: when the queue is full the entry is
// dropped and counted.
type Recorder struct {
	sinks []models.RoutingLogSink
	queue chan *models.RoutingLogEntry
	done  chan struct{}

	mu     sync.RWMutex
	closed bool

	dropped atomic.Int64
}

func NewRecorder(queueSize int, sinks ...models.RoutingLogSink) *Recorder {
	if queueSize <= 0 {
		queueSize = 1
	}

	r := &Recorder{
		sinks: sinks,
		queue: make(chan *models.RoutingLogEntry, queueSize),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

// Log enqueues an entry, filling in its ID and timestamp when unset.
func (r *Recorder) Log(entry *models.RoutingLogEntry) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.dropped.Add(1)
		logger.Log.WithField("entry_id", entry.ID).Warn("Routing log entry dropped after shutdown")
		return
	}

	select {
	case r.queue <- entry:
	default:
		r.dropped.Add(1)
		logger.Log.WithField("entry_id", entry.ID).Warn("Routing log queue full, entry dropped")
	}
}

// Dropped is the number of entries that never reached a sink queue.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close stops accepting entries and waits for queued ones to be written.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)

	for entry := range r.queue {
		for _, sink := range r.sinks {
			r.write(sink, entry)
		}
	}
}

func (r *Recorder) write(sink models.RoutingLogSink, entry *models.RoutingLogEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkWriteTimeout)
	defer cancel()

	if err := sink.Write(ctx, entry); err != nil {
		logger.ForUser(entry.UserID).WithError(err).
			WithField("entry_id", entry.ID).
			Warn("Failed to write routing log entry")
	}
}
