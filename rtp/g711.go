package rtp

import "fmt"

// G.711 μ-law companding constants.
const (
	mulawBias = 0x84
	mulawClip = 32635
)

// mulawSegments maps the top bits of a biased linear sample to its μ-law
// exponent segment.
var mulawSegments = [8]int16{0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF, 0x1FFF, 0x3FFF, 0x7FFF}

// MulawCompress encodes 16-bit little-endian PCM samples to G.711 μ-law,
// one byte per sample. The input length must be even.
func MulawCompress(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidSampleBuffer, len(pcm))
	}

	out := make([]byte, len(pcm)/2)
	for i := 0; i < len(pcm); i += 2 {
		sample := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
		out[i/2] = linearToMulaw(sample)
	}
	return out, nil
}

// MulawExpand decodes G.711 μ-law bytes to 16-bit little-endian PCM, two
// bytes per input byte.
func MulawExpand(mulaw []byte) []byte {
	out := make([]byte, len(mulaw)*2)
	for i, b := range mulaw {
		sample := mulawToLinear(b)
		out[i*2] = byte(sample)
		out[i*2+1] = byte(uint16(sample) >> 8)
	}
	return out
}

func linearToMulaw(in int16) byte {
	sample := int(in)
	sign := byte(0)
	if sample < 0 {
		sign = 0x80
		sample = -sample
	}
	if sample > mulawClip {
		sample = mulawClip
	}
	sample += mulawBias

	segment := 7
	for i, bound := range mulawSegments {
		if sample <= int(bound) {
			segment = i
			break
		}
	}

	mantissa := byte((sample >> (uint(segment) + 3)) & 0x0F)
	return ^(sign | byte(segment)<<4 | mantissa)
}

func mulawToLinear(b byte) int16 {
	b = ^b
	sign := b & 0x80
	segment := (b >> 4) & 0x07
	mantissa := b & 0x0F

	sample := (int16(mantissa)<<3 + mulawBias) << segment
	sample -= mulawBias
	if sign != 0 {
		return -sample
	}
	return sample
}
