//go:build unix

package playback

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// openWriterEnd opens the writing side of a FIFO once a reader is waiting on it
func openWriterEnd(t *testing.T, path string) *os.File {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		f, err := os.OpenFile(path, os.O_WRONLY|unix.O_NONBLOCK, 0)
		if err == nil {
			return f
		}
		if time.Now().After(deadline) {
			t.Fatalf("open %s for writing: %v", path, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEngine_StreamCallbacksDoNotWaitOnCaptureIO(t *testing.T) {
	dir := t.TempDir()
	fifo := filepath.Join(dir, "a.apd")
	if err := unix.Mkfifo(fifo, 0o600); err != nil {
		t.Skipf("mkfifo: %v", err)
	}
	later := writeFixture(t, dir, "b.apd", 1, 1.0)

	e := NewEngine(Index{{Timestamp: 0, Path: fifo}, {Timestamp: 1, Path: later}}, -0.001, newChanSink())
	e.Run()
	defer e.Close()

	// Opening the FIFO blocks the pacing goroutine until a writer appears
	e.StreamEnabled(0)
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		e.StreamDisabled(0)
		e.StreamEnabled(0)
		e.StreamDisabled(0)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream callbacks blocked behind capture file I/O")
	}
	if e.Armed() {
		t.Error("Armed() = true after last stream disabled")
	}

	// An empty FIFO fails the header read and the engine moves on
	openWriterEnd(t, fifo).Close()
}
