package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/lemuria/internal/logging"
)

// Type identifies what happened
type Type string

const (
	ConnectionAccepted Type = "connection_accepted"
	ConnectionRejected Type = "connection_rejected"
	ConnectionClosed   Type = "connection_closed"
	StreamEnabled      Type = "stream_enabled"
	StreamDisabled     Type = "stream_disabled"
)

// Event is a notification about the emulated device's sessions and streams
type Event struct {
	Type       Type      `json:"type"`
	Serial     string    `json:"serial"`
	SessionID  string    `json:"session_id,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	Stream     *int      `json:"stream,omitempty"` // Set for stream events only
	Time       time.Time `json:"time"`
}

// Publisher accepts events without blocking
type Publisher interface {
	Publish(e Event)
}

// Sink delivers events to one destination
type Sink interface {
	Name() string
	Handle(ctx context.Context, e Event) error
	Close() error
}

const (
	// sinkQueueSize is the number of events buffered per sink
	sinkQueueSize = 256

	// handleTimeout bounds a single sink delivery
	handleTimeout = 5 * time.Second
)

// Bus fans events out to sinks. Each sink has its own queue and goroutine,
// so a slow sink only loses its own events.
type Bus struct {
	serial  string
	workers []*sinkWorker

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type sinkWorker struct {
	sink  Sink
	queue chan Event
}

// NewBus creates a bus for the device with the given serial number and
// starts one delivery goroutine per sink
func NewBus(serial string, sinks ...Sink) *Bus {
	b := &Bus{serial: serial}
	for _, s := range sinks {
		w := &sinkWorker{sink: s, queue: make(chan Event, sinkQueueSize)}
		b.workers = append(b.workers, w)
		b.wg.Add(1)
		go b.deliver(w)
	}
	return b
}

// Publish stamps e with the serial number and time and queues it for every
// sink. Events for a sink whose queue is full are dropped.
func (b *Bus) Publish(e Event) {
	if e.Serial == "" {
		e.Serial = b.serial
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, w := range b.workers {
		select {
		case w.queue <- e:
		default:
			logging.Warn("Event sink queue full, dropping event",
				zap.String("sink", w.sink.Name()),
				zap.String("event", string(e.Type)))
		}
	}
}

// StreamEnabled publishes a stream_enabled event
func (b *Bus) StreamEnabled(index int) {
	b.Publish(Event{Type: StreamEnabled, Stream: &index})
}

// StreamDisabled publishes a stream_disabled event
func (b *Bus) StreamDisabled(index int) {
	b.Publish(Event{Type: StreamDisabled, Stream: &index})
}

// Close drains every sink queue and closes the sinks
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, w := range b.workers {
		close(w.queue)
	}
	b.mu.Unlock()

	b.wg.Wait()

	for _, w := range b.workers {
		if err := w.sink.Close(); err != nil {
			logging.Warn("Failed to close event sink",
				zap.String("sink", w.sink.Name()),
				zap.Error(err))
		}
	}
}

func (b *Bus) deliver(w *sinkWorker) {
	defer b.wg.Done()

	for e := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		err := w.sink.Handle(ctx, e)
		cancel()

		if err != nil {
			logging.Warn("Event delivery failed",
				zap.String("sink", w.sink.Name()),
				zap.String("event", string(e.Type)),
				zap.Error(err))
		}
	}
}

// LogSink writes every event to the application log
type LogSink struct{}

// Name returns "log"
func (LogSink) Name() string { return "log" }

// Handle logs e at info level
func (LogSink) Handle(_ context.Context, e Event) error {
	fields := []zap.Field{
		zap.String("event", string(e.Type)),
		zap.String("serial", e.Serial),
	}
	if e.SessionID != "" {
		fields = append(fields, zap.String("session_id", e.SessionID))
	}
	if e.RemoteAddr != "" {
		fields = append(fields, zap.String("remote_addr", e.RemoteAddr))
	}
	if e.Stream != nil {
		fields = append(fields, zap.Int("stream", *e.Stream))
	}
	logging.Info("Device event", fields...)
	return nil
}

// Close does nothing
func (LogSink) Close() error { return nil }
