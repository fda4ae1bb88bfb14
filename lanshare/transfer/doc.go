// Package transfer implements the point-to-point file transfer protocol.
//
// A Sender dials one peer, writes a protocol.Header in the clear and streams
// the file behind it; a Receiver accepts exactly one connection and writes the
// payload to disk. When a password is given the payload runs through
// AES-256-CBC keyed by crypto.DeriveKey, with the per-transfer IV carried in
// the header. Payload LZ4 compression is opt-in and flagged in the header.
//
// Transfers are single-connection and blocking. There is no retry or resume:
// a failed transfer has to be started again.
package transfer
