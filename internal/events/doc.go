// Package events publishes notifications about the emulated device:
// connections accepted, rejected and closed, and streams enabled and
// disabled.
//
// A Bus fans events out to any number of sinks, each with its own bounded
// queue so that a slow or unreachable destination never stalls the device
// server. Available sinks:
//
//   - LogSink writes events to the application log
//   - NATSSink publishes JSON on lemuria.<serial>.<type> and lemuria.all
//   - RedisSink maintains a session registry with expiring keys
//   - Hub pushes events to WebSocket clients of the monitor endpoint
//
// Bus also implements device.StreamObserver, so it can be registered
// directly with a Device to report stream transitions.
package events
