// Package nvmstore persists the emulated device's non-volatile memory so
// that user tags and settings written by clients survive restarts.
//
// Snapshots are CBOR maps with integer keys, written with a temporary file
// and rename so that a crash never leaves a partial image behind. A snapshot
// records the serial number it was taken from and is refused by a store
// configured for a different device.
package nvmstore
