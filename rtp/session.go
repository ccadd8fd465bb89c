package rtp

import (
	"math/rand/v2"
)

// Session tracks the per-call RTP counters: the outgoing SSRC, sequence
// number and timestamp, and the last received sequence number for gap
// detection.
//
// The outgoing counters are touched only by the send path and the received
// state only by the receive path, so no locking is needed as long as each
// direction runs on a single goroutine.
type Session struct {
	ssrc            uint32
	seq             uint16
	timestamp       uint32
	samplesPerFrame uint32

	lastReceivedSeq uint16
	receivedAny     bool
}

// GapReport describes the sequence continuity of one received packet.
type GapReport struct {
	// Sequence is the sequence number of the received packet.
	Sequence uint16

	// Gap is the number of sequence values skipped since the previous
	// packet, computed modulo 2^16. Zero means in-order delivery; a
	// reordered (late) packet produces a large value near 65535.
	Gap uint16

	// First marks the first packet of the stream, for which no gap is
	// defined.
	First bool
}

// NewSession creates a session with randomized SSRC, initial sequence number
// and initial timestamp, per RFC 3550. samplesPerFrame is the timestamp
// increment per outgoing packet (160 for μ-law at 8 kHz, 480 for L16 at
// 24 kHz).
func NewSession(samplesPerFrame uint32) *Session {
	return &Session{
		ssrc:            rand.Uint32(),
		seq:             uint16(rand.Uint32()),
		timestamp:       rand.Uint32(),
		samplesPerFrame: samplesPerFrame,
	}
}

// SSRC returns the synchronization source identifier for outgoing packets.
func (s *Session) SSRC() uint32 {
	return s.ssrc
}

// NextOutgoingHeader returns the sequence number and timestamp for the next
// outgoing packet and advances both counters: the sequence by one modulo
// 2^16, the timestamp by the frame's sample count modulo 2^32.
func (s *Session) NextOutgoingHeader() (seq uint16, timestamp uint32) {
	seq = s.seq
	timestamp = s.timestamp
	s.seq++
	s.timestamp += s.samplesPerFrame
	return seq, timestamp
}

// OnReceived records an incoming packet's sequence number and reports any
// discontinuity. Gaps are signal only: the packet is still processed, and
// the next expectation is based on what actually arrived.
func (s *Session) OnReceived(seq uint16) GapReport {
	report := GapReport{Sequence: seq}
	if !s.receivedAny {
		report.First = true
		s.receivedAny = true
	} else {
		expected := s.lastReceivedSeq + 1
		report.Gap = seq - expected
	}
	s.lastReceivedSeq = seq
	return report
}
