// Package stservo implements the 0xFF 0xFF byte-oriented serial protocol
// spoken by ST/STS-series servo actuators.
//
// It provides three layers:
//
//   - Transport: byte-level serial I/O with per-call deadlines.
//   - Packet codec: instruction packet encoding and response packet
//     decoding with header resynchronization and checksum validation.
//   - Driver: semantic operations (ping, register reads, motion writes)
//     with bounded retry over an exclusive half-duplex link.
//
// The protocol is strictly request/response with no multiplexing, so all
// exchanges on a connection are serialized by the Driver. Transient link
// errors (timeouts, corrupted frames) are retried inside the Driver;
// only retry exhaustion surfaces to callers.
package stservo
