// Command rtpbridge relays audio between an RTP peer and a media socket:
// received RTP payloads are decoded to PCM and written to the socket,
// socket playback frames are packetized and sent back out as RTP.
//
// Usage:
//
//	rtpbridge -config config.yaml -payload-type 96
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AltairaLabs/voicebridge/config"
	"github.com/AltairaLabs/voicebridge/logger"
	"github.com/AltairaLabs/voicebridge/metrics/prometheus"
	"github.com/AltairaLabs/voicebridge/relay"
	"github.com/AltairaLabs/voicebridge/rtp"
	"github.com/AltairaLabs/voicebridge/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	payloadType := flag.Uint("payload-type", uint(rtp.PayloadTypePCMU),
		"RTP payload type: 0 (G.711 mu-law, 8 kHz) or 96 (L16, 24 kHz)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetVersionInfo("rtpbridge"))
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.SetVerbose(cfg.Verbose)

	var samplesPerFrame uint32
	switch uint8(*payloadType) {
	case rtp.PayloadTypePCMU:
		samplesPerFrame = rtp.SamplesPerFramePCMU
	case rtp.PayloadTypeL16:
		samplesPerFrame = rtp.SamplesPerFrameL16
	default:
		fmt.Fprintf(os.Stderr, "unsupported payload type: %d\n", *payloadType)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		exporter := prometheus.NewExporter(cfg.MetricsAddr)
		if err := exporter.Start(); err != nil {
			logger.Error("failed to start metrics exporter", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = exporter.Shutdown(shutdownCtx)
		}()
	}

	transport, err := rtp.NewUDPTransport(rtp.TransportConfig{
		LocalAddr:  fmt.Sprintf(":%d", cfg.RTPPort),
		RemoteAddr: cfg.RTPRemote,
	})
	if err != nil {
		logger.Error("failed to bind RTP transport", "error", err)
		os.Exit(1)
	}

	socketURL := "ws://" + cfg.MediaSocketAddr
	socket, err := relay.DialMediaSocket(ctx, socketURL)
	if err != nil {
		logger.Error("failed to connect media socket", "url", socketURL, "error", err)
		_ = transport.Close()
		os.Exit(1)
	}
	defer socket.Close()

	session := rtp.NewSession(samplesPerFrame)

	r, err := relay.New(transport, session, socket, socket, uint8(*payloadType))
	if err != nil {
		logger.Error("failed to create relay", "error", err)
		os.Exit(1)
	}

	logger.Info("starting rtpbridge", version.GetBuildInfo()...)
	logger.Info("configuration",
		"rtp_port", cfg.RTPPort,
		"rtp_remote", cfg.RTPRemote,
		"media_socket", socketURL,
		"payload_type", *payloadType,
		"ssrc", session.SSRC())

	if err := r.Run(ctx); err != nil {
		logger.Error("relay failed", "error", err)
		os.Exit(1)
	}

	logger.Info("rtpbridge stopped")
}
