// Package relay moves audio between an RTP peer and a local audio pipeline.
// The send pipeline reads 20 ms PCM frames from an AudioSource, converts
// them to the stream's payload format and transmits RTP packets; the
// receive pipeline decodes incoming packets back to PCM and writes them to
// an AudioSink. Both run until the context is cancelled.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AltairaLabs/voicebridge/logger"
	"github.com/AltairaLabs/voicebridge/metrics/prometheus"
	"github.com/AltairaLabs/voicebridge/rtp"
)

// sendBackoff is the pause after a failed transmit before the send
// pipeline continues with the next frame.
const sendBackoff = 50 * time.Millisecond

// AudioSource produces 20 ms frames of 16-bit little-endian PCM.
// ReadFrame blocks until a frame is available or the context is cancelled.
type AudioSource interface {
	ReadFrame(ctx context.Context) ([]byte, error)
}

// AudioSink consumes 20 ms frames of 16-bit little-endian PCM. Flush
// discards anything the sink has buffered but not yet played.
type AudioSink interface {
	WriteFrame(pcm []byte) error
	Flush()
}

// Relay runs the two pipelines for one RTP stream.
type Relay struct {
	transport   *rtp.UDPTransport
	session     *rtp.Session
	source      AudioSource
	sink        AudioSink
	payloadType uint8
}

// New creates a relay. payloadType selects the wire format: PCMU for
// G.711 μ-law at 8 kHz, L16 for linear 16-bit big-endian at 24 kHz.
func New(transport *rtp.UDPTransport, session *rtp.Session, source AudioSource, sink AudioSink, payloadType uint8) (*Relay, error) {
	if payloadType != rtp.PayloadTypePCMU && payloadType != rtp.PayloadTypeL16 {
		return nil, fmt.Errorf("unsupported payload type %d", payloadType)
	}
	return &Relay{
		transport:   transport,
		session:     session,
		source:      source,
		sink:        sink,
		payloadType: payloadType,
	}, nil
}

// Run drives both pipelines until the context is cancelled or one of them
// fails. The transport is closed on every exit path.
func (r *Relay) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.sendLoop(ctx) })
	g.Go(func() error { return r.receiveLoop(ctx) })

	err := g.Wait()
	_ = r.transport.Close()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// sendLoop reads frames from the source and transmits them as RTP packets.
// A transmit failure is logged and retried with the next frame after a
// short backoff; it never tears the relay down.
func (r *Relay) sendLoop(ctx context.Context) error {
	ctx = logger.WithDirection(ctx, "send")
	for {
		frame, err := r.source.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("audio source failed: %w", err)
		}

		payload, err := r.encodePayload(frame)
		if err != nil {
			logger.WarnContext(ctx, "dropping unencodable frame", "error", err)
			continue
		}

		seq, timestamp := r.session.NextOutgoingHeader()
		packet, err := rtp.Encode(payload, seq, timestamp, r.session.SSRC(), r.payloadType, false)
		if err != nil {
			logger.WarnContext(ctx, "dropping frame", "error", err)
			continue
		}

		if err := r.transport.Send(packet); err != nil {
			logger.WarnContext(ctx, "transmit failed", "seq", seq, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(sendBackoff):
			}
			continue
		}
		prometheus.RecordRTPSent()
	}
}

// receiveLoop reads RTP packets, tracks sequence continuity and writes the
// decoded PCM to the sink. Read deadline expiry is a poll, not a failure;
// malformed packets are counted and dropped.
func (r *Relay) receiveLoop(ctx context.Context) error {
	ctx = logger.WithDirection(ctx, "receive")
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := r.transport.Receive(buf)
		if err != nil {
			if rtp.IsTimeout(err) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("receive failed: %w", err)
		}

		payload, seq, _, err := rtp.Decode(buf[:n])
		if err != nil {
			prometheus.RecordRTPMalformed()
			logger.DebugContext(ctx, "dropping malformed packet", "size", n, "error", err)
			continue
		}
		prometheus.RecordRTPReceived()

		if report := r.session.OnReceived(seq); !report.First && report.Gap != 0 {
			prometheus.RecordRTPGap()
			logger.WarnContext(ctx, "sequence gap detected", "seq", seq, "gap", report.Gap)
		}

		pcm, err := r.decodePayload(payload)
		if err != nil {
			logger.DebugContext(ctx, "dropping undecodable payload", "seq", seq, "error", err)
			continue
		}
		if err := r.sink.WriteFrame(pcm); err != nil {
			logger.WarnContext(ctx, "sink write failed", "error", err)
		}
	}
}

// encodePayload converts a PCM frame to the stream's payload format.
func (r *Relay) encodePayload(pcm []byte) ([]byte, error) {
	if r.payloadType == rtp.PayloadTypePCMU {
		return rtp.MulawCompress(pcm)
	}
	return rtp.PCMToNetwork(pcm)
}

// decodePayload converts a received payload back to 16-bit LE PCM.
func (r *Relay) decodePayload(payload []byte) ([]byte, error) {
	if r.payloadType == rtp.PayloadTypePCMU {
		return rtp.MulawExpand(payload), nil
	}
	return rtp.NetworkToPCM(payload)
}
