package playback

import (
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/lemuria/internal/logging"
)

// PacketSink receives stream packets when they become due. It must not block.
type PacketSink interface {
	SendStreamPacket(payload []byte)
}

// Engine replays captured stream packets in real time while at least one
// device stream is enabled. It implements device.StreamObserver.
//
// Playback time is virtual: startTime + (now - arm time). Every arm begins
// from startTime, so disabling all streams and enabling one again replays
// the same packets.
type Engine struct {
	index     Index
	startTime float64
	sink      PacketSink
	now       func() time.Time

	// mu guards the arm state. Stream callbacks only ever wait for it, never
	// for capture decoding.
	mu          sync.Mutex
	active      int
	armed       bool
	streamStart time.Time
	generation  uint64 // bumped on every disarm
	sent        uint64

	// The file cursor is owned by the pacing goroutine
	cursorGen uint64
	fileIdx   int
	reader    *CaptureReader
	skipping  bool
	pending   *Record

	wake      chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewEngine creates an idle engine positioned at startTime
func NewEngine(index Index, startTime float64, sink PacketSink) *Engine {
	e := &Engine{
		index:     index,
		startTime: startTime,
		sink:      sink,
		now:       time.Now,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	e.seek()
	return e
}

// Run starts the pacing goroutine
func (e *Engine) Run() {
	e.wg.Add(1)
	go e.loop()
}

// Close stops the pacing goroutine and releases the open capture file
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.done)
		e.signal()
	})
	e.wg.Wait()
	e.closeReader()
}

// StreamEnabled arms playback when the first stream is enabled
func (e *Engine) StreamEnabled(index int) {
	e.mu.Lock()
	e.active++
	if e.active == 1 {
		e.armed = true
		e.streamStart = e.now()
		logging.Info("Playback armed",
			zap.Int("stream", index),
			zap.Float64("start_time", e.startTime))
	}
	e.mu.Unlock()

	e.signal()
}

// StreamDisabled disarms playback and rewinds to startTime when the last
// stream is disabled
func (e *Engine) StreamDisabled(index int) {
	e.mu.Lock()
	if e.active > 0 {
		e.active--
	}
	if e.active == 0 && e.armed {
		e.armed = false
		e.generation++
		logging.Info("Playback disarmed",
			zap.Int("stream", index),
			zap.Uint64("packets_sent", e.sent))
	}
	e.mu.Unlock()

	e.signal()
}

// Armed reports whether packets are currently being paced out
func (e *Engine) Armed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.armed
}

// PacketsSent returns the number of packets handed to the sink
func (e *Engine) PacketsSent() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sent
}

// signal wakes the pacing goroutine without blocking
func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) loop() {
	defer e.wg.Done()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		wait, park := e.step()

		var timeout <-chan time.Time
		if !park {
			timer.Reset(wait)
			timeout = timer.C
		}

		select {
		case <-e.done:
			return
		case <-e.wake:
		case <-timeout:
		}

		if !park && !timer.Stop() {
			// Drain a fire that raced with the wake signal
			select {
			case <-timer.C:
			default:
			}
		}
	}
}

// step sends every due packet and reports how long to wait for the next one.
// park is true when there is nothing to wait for until the next signal.
// Capture files are read without holding mu.
func (e *Engine) step() (wait time.Duration, park bool) {
	for {
		e.mu.Lock()
		armed, gen, streamStart := e.armed, e.generation, e.streamStart
		e.mu.Unlock()

		// Every disarm rewinds the cursor to startTime
		if gen != e.cursorGen {
			e.seek()
			e.cursorGen = gen
		}
		if !armed {
			return 0, true
		}

		if e.pending == nil {
			rec, ok := e.nextRecord()
			if !ok {
				return 0, true
			}
			e.pending = &rec
		}

		virtualNow := e.startTime + e.now().Sub(streamStart).Seconds()
		if e.pending.Timestamp > virtualNow {
			return time.Duration((e.pending.Timestamp - virtualNow) * float64(time.Second)), false
		}

		e.mu.Lock()
		if !e.armed || e.generation != gen {
			// Disarmed while the record was being read
			e.mu.Unlock()
			continue
		}
		e.sink.SendStreamPacket(e.pending.Payload)
		e.sent++
		e.mu.Unlock()
		e.pending = nil
	}
}

// nextRecord reads forward through the index, opening files as needed.
// It returns false once every file is exhausted.
func (e *Engine) nextRecord() (Record, bool) {
	for {
		if e.reader == nil {
			if e.fileIdx >= len(e.index) {
				return Record{}, false
			}
			path := e.index[e.fileIdx].Path
			r, err := OpenCapture(path)
			if err != nil {
				logging.Warn("Skipping capture file", zap.String("path", path), zap.Error(err))
				e.fileIdx++
				e.skipping = false
				continue
			}
			logging.Debug("Opened capture file", zap.String("path", path))
			e.reader = r
		}

		rec, err := e.reader.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logging.Warn("Capture file ended early", zap.String("path", e.reader.Path()), zap.Error(err))
			}
			e.closeReader()
			e.fileIdx++
			e.skipping = false
			continue
		}

		// Only the file containing startTime is scanned for the seek point
		if e.skipping && rec.Timestamp <= e.startTime {
			continue
		}
		e.skipping = false
		return rec, true
	}
}

// seek rewinds the cursor to the file containing startTime
func (e *Engine) seek() {
	e.closeReader()
	e.pending = nil
	e.fileIdx = e.index.seek(e.startTime)
	e.skipping = true
}

func (e *Engine) closeReader() {
	if e.reader != nil {
		e.reader.Close()
		e.reader = nil
	}
}
