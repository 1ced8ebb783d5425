// Package playback replays recorded Asphodel stream packets in real time.
//
// # Capture Files
//
// A capture file is an xz (or legacy lzma) compressed sequence of records:
//
//	[0-7]   timestamp   f64, big-endian, seconds
//	[8-11]  length      u32, big-endian
//	[12+]   payload     length bytes
//
// The first record is a header whose timestamp is the start time of the file
// and whose payload is ignored. Every following record is one stream packet.
// A file that ends in the middle of a record is played up to the last
// complete record.
//
// # Pacing
//
// An Engine is driven by stream enable and disable notifications. Enabling
// the first stream arms playback; from then on a packet with timestamp ts is
// sent once startTime + (now - armTime) >= ts. Disabling the last stream
// disarms playback and rewinds to startTime.
//
// Usage:
//
//	idx, err := playback.LoadIndex("/var/lib/lemuria/captures", playback.DefaultPattern)
//	if err != nil {
//	    return err
//	}
//	engine := playback.NewEngine(idx, startTime, srv)
//	dev.AddStreamObserver(engine)
//	engine.Run()
//	defer engine.Close()
package playback
