package device

// StreamObserver is notified when a stream changes between disabled and
// enabled. Repeated enables or disables of the same stream are not reported.
//
// Callbacks run on the goroutine that handled the command and must not block.
type StreamObserver interface {
	StreamEnabled(index int)
	StreamDisabled(index int)
}

// StreamState is a snapshot of one stream's runtime flags
type StreamState struct {
	Enabled   bool
	WarmingUp bool
}

// streamTransition records an enable flag change to deliver to observers
// once the stream lock is released
type streamTransition struct {
	index   int
	enabled bool
}

// AddStreamObserver registers o for stream enable/disable transitions
func (d *Device) AddStreamObserver(o StreamObserver) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, o)
}

// StreamStatus returns the flags for stream index
func (d *Device) StreamStatus(index int) (StreamState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if index < 0 || index >= len(d.streamEnabled) {
		return StreamState{}, false
	}
	return StreamState{
		Enabled:   d.streamEnabled[index],
		WarmingUp: d.streamWarmUp[index],
	}, true
}

// ActiveStreams returns the indices of all enabled streams
func (d *Device) ActiveStreams() []int {
	d.mu.Lock()
	defer d.mu.Unlock()

	var active []int
	for i, enabled := range d.streamEnabled {
		if enabled {
			active = append(active, i)
		}
	}
	return active
}

// setStreamEnabled updates one enable flag and reports the observers to call
func (d *Device) setStreamEnabled(index int, enabled bool) (streamTransition, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.streamEnabled[index] == enabled {
		return streamTransition{}, false
	}
	d.streamEnabled[index] = enabled
	return streamTransition{index: index, enabled: enabled}, true
}

func (d *Device) setStreamWarmUp(index int, warmUp bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.streamWarmUp[index] = warmUp
}

// resetStreams disables every stream and clears warm-up
func (d *Device) resetStreams() []streamTransition {
	d.mu.Lock()
	defer d.mu.Unlock()

	var changed []streamTransition
	for i := range d.streamEnabled {
		if d.streamEnabled[i] {
			changed = append(changed, streamTransition{index: i, enabled: false})
		}
		d.streamEnabled[i] = false
		d.streamWarmUp[i] = false
	}
	return changed
}

// notify delivers transitions to observers without holding the stream lock
func (d *Device) notify(transitions ...streamTransition) {
	if len(transitions) == 0 {
		return
	}

	d.mu.Lock()
	observers := make([]StreamObserver, len(d.observers))
	copy(observers, d.observers)
	d.mu.Unlock()

	for _, t := range transitions {
		for _, o := range observers {
			if t.enabled {
				o.StreamEnabled(t.index)
			} else {
				o.StreamDisabled(t.index)
			}
		}
	}
}
