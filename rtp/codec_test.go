package rtp

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name        string
		payload     []byte
		seq         uint16
		timestamp   uint32
		ssrc        uint32
		payloadType uint8
		marker      bool
	}{
		{
			name:        "mulaw frame",
			payload:     bytes.Repeat([]byte{0xFF}, SamplesPerFramePCMU),
			seq:         100,
			timestamp:   16000,
			ssrc:        0xDEADBEEF,
			payloadType: PayloadTypePCMU,
		},
		{
			name:        "L16 frame with marker",
			payload:     bytes.Repeat([]byte{0x01, 0x02}, SamplesPerFrameL16),
			seq:         65535,
			timestamp:   0xFFFFFFFF,
			ssrc:        1,
			payloadType: PayloadTypeL16,
			marker:      true,
		},
		{
			name:        "empty payload",
			payload:     nil,
			seq:         0,
			timestamp:   0,
			ssrc:        42,
			payloadType: PayloadTypePCMU,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packet, err := Encode(tt.payload, tt.seq, tt.timestamp, tt.ssrc, tt.payloadType, tt.marker)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if len(packet) != HeaderSize+len(tt.payload) {
				t.Errorf("packet size = %d, want %d", len(packet), HeaderSize+len(tt.payload))
			}
			if version := packet[0] >> 6; version != Version {
				t.Errorf("version = %d, want %d", version, Version)
			}

			payload, seq, timestamp, err := Decode(packet)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if seq != tt.seq {
				t.Errorf("seq = %d, want %d", seq, tt.seq)
			}
			if timestamp != tt.timestamp {
				t.Errorf("timestamp = %d, want %d", timestamp, tt.timestamp)
			}
			if !bytes.Equal(payload, tt.payload) {
				t.Errorf("payload mismatch: got %d bytes, want %d", len(payload), len(tt.payload))
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"short header", make([]byte, HeaderSize-1)},
		{"wrong version", append([]byte{0x40}, make([]byte, HeaderSize-1)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := Decode(tt.buf)
			if !errors.Is(err, ErrMalformedPacket) {
				t.Errorf("Decode error = %v, want ErrMalformedPacket", err)
			}
		})
	}
}

func TestPCMToNetworkRoundTrip(t *testing.T) {
	pcm := []byte{0x34, 0x12, 0x78, 0x56, 0x00, 0x80}

	network, err := PCMToNetwork(pcm)
	if err != nil {
		t.Fatalf("PCMToNetwork failed: %v", err)
	}
	want := []byte{0x12, 0x34, 0x56, 0x78, 0x80, 0x00}
	if !bytes.Equal(network, want) {
		t.Errorf("network bytes = %x, want %x", network, want)
	}

	back, err := NetworkToPCM(network)
	if err != nil {
		t.Fatalf("NetworkToPCM failed: %v", err)
	}
	if !bytes.Equal(back, pcm) {
		t.Errorf("round trip = %x, want %x", back, pcm)
	}
}

func TestByteOrderConversionOddLength(t *testing.T) {
	if _, err := PCMToNetwork([]byte{0x01, 0x02, 0x03}); !errors.Is(err, ErrInvalidSampleBuffer) {
		t.Errorf("PCMToNetwork error = %v, want ErrInvalidSampleBuffer", err)
	}
	if _, err := NetworkToPCM([]byte{0x01}); !errors.Is(err, ErrInvalidSampleBuffer) {
		t.Errorf("NetworkToPCM error = %v, want ErrInvalidSampleBuffer", err)
	}
}

// TestSilenceFramePipeline sends one silence frame of 240 L16 samples
// (480 bytes) through the full send path and verifies the packet layout,
// 12-byte header plus 480 payload bytes, and that the payload converts
// back to bit-identical silence.
func TestSilenceFramePipeline(t *testing.T) {
	silence := make([]byte, 480)

	network, err := PCMToNetwork(silence)
	if err != nil {
		t.Fatalf("PCMToNetwork failed: %v", err)
	}

	session := NewSession(SamplesPerFrameL16)
	seq, timestamp := session.NextOutgoingHeader()

	packet, err := Encode(network, seq, timestamp, session.SSRC(), PayloadTypeL16, false)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(packet) != 492 {
		t.Fatalf("packet size = %d, want 492", len(packet))
	}

	payload, gotSeq, gotTS, err := Decode(packet)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if gotSeq != seq || gotTS != timestamp {
		t.Errorf("header = (%d, %d), want (%d, %d)", gotSeq, gotTS, seq, timestamp)
	}

	pcm, err := NetworkToPCM(payload)
	if err != nil {
		t.Fatalf("NetworkToPCM failed: %v", err)
	}
	if !bytes.Equal(pcm, silence) {
		t.Error("round-tripped payload is not bit-identical silence")
	}
}
