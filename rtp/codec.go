// Package rtp implements RTP packet framing and PCM byte-order conversion
// for the voice bridge media path.
//
// The wire format is the RFC 3550 subset used by the bridge: a fixed 12-byte
// header (version 2, no padding, no extensions, no CSRC list) followed by an
// opaque payload. Two payload types are supported: G.711 μ-law at 8 kHz
// (payload type 0) and dynamic linear 16-bit big-endian PCM at 24 kHz
// (payload type 96).
package rtp

import (
	"encoding/binary"
	"errors"
	"fmt"

	pionrtp "github.com/pion/rtp"
)

// Wire format constants.
const (
	// HeaderSize is the fixed RTP header size with no CSRC entries.
	HeaderSize = 12

	// Version is the RTP version required by RFC 3550.
	Version = 2

	// PayloadTypePCMU is G.711 μ-law, 8000 Hz, mono.
	PayloadTypePCMU uint8 = 0

	// PayloadTypeL16 is dynamic linear PCM, 16-bit big-endian, 24000 Hz, mono.
	PayloadTypeL16 uint8 = 96
)

// Audio framing constants. Every frame carries 20 ms of mono audio.
const (
	SampleRatePCMU = 8000
	SampleRateL16  = 24000

	SamplesPerFramePCMU = 160 // 20 ms at 8 kHz
	SamplesPerFrameL16  = 480 // 20 ms at 24 kHz
)

var (
	// ErrMalformedPacket indicates a packet too short to carry an RTP header
	// or one with an unexpected version field. Callers drop the packet and
	// continue.
	ErrMalformedPacket = errors.New("malformed RTP packet")

	// ErrInvalidSampleBuffer indicates a PCM buffer whose length is not a
	// whole number of 16-bit samples.
	ErrInvalidSampleBuffer = errors.New("invalid sample buffer length")
)

// Encode builds a complete RTP packet: a 12-byte header followed by the
// payload. No padding, no extensions, no CSRC list. It never fails for
// well-formed inputs; payload may be empty.
func Encode(payload []byte, seq uint16, timestamp, ssrc uint32, payloadType uint8, marker bool) ([]byte, error) {
	pkt := pionrtp.Packet{
		Header: pionrtp.Header{
			Version:        Version,
			Marker:         marker,
			PayloadType:    payloadType,
			SequenceNumber: seq,
			Timestamp:      timestamp,
			SSRC:           ssrc,
		},
		Payload: payload,
	}

	buf, err := pkt.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal RTP packet: %w", err)
	}
	return buf, nil
}

// Decode parses an RTP packet and returns its payload, sequence number and
// timestamp. It fails with ErrMalformedPacket if the buffer is shorter than
// the fixed header or the version field is not 2.
func Decode(buf []byte) (payload []byte, seq uint16, timestamp uint32, err error) {
	if len(buf) < HeaderSize {
		return nil, 0, 0, fmt.Errorf("%w: %d bytes", ErrMalformedPacket, len(buf))
	}
	if version := buf[0] >> 6; version != Version {
		return nil, 0, 0, fmt.Errorf("%w: version %d", ErrMalformedPacket, version)
	}

	var pkt pionrtp.Packet
	if err := pkt.Unmarshal(buf); err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}

	return pkt.Payload, pkt.SequenceNumber, pkt.Timestamp, nil
}

// PCMToNetwork reinterprets a buffer of 16-bit little-endian samples as
// big-endian (network order). The input length must be even.
func PCMToNetwork(pcm []byte) ([]byte, error) {
	return swapSampleOrder(pcm, binary.LittleEndian, binary.BigEndian)
}

// NetworkToPCM reinterprets a buffer of 16-bit big-endian samples as
// little-endian (host/device order). The input length must be even.
func NetworkToPCM(network []byte) ([]byte, error) {
	return swapSampleOrder(network, binary.BigEndian, binary.LittleEndian)
}

// swapSampleOrder converts each 16-bit sample from one byte order to another.
func swapSampleOrder(in []byte, from, to binary.ByteOrder) ([]byte, error) {
	if len(in)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidSampleBuffer, len(in))
	}

	out := make([]byte, len(in))
	for i := 0; i < len(in); i += 2 {
		to.PutUint16(out[i:i+2], from.Uint16(in[i:i+2]))
	}
	return out, nil
}
