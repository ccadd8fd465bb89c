// Command voicebridge runs the media socket bridge: it accepts websocket
// calls and connects each one to a cloud voice provider session.
//
// Usage:
//
//	export OPENAI_API_KEY=sk-...
//	voicebridge -config config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AltairaLabs/voicebridge/bridge"
	"github.com/AltairaLabs/voicebridge/config"
	"github.com/AltairaLabs/voicebridge/logger"
	"github.com/AltairaLabs/voicebridge/metrics/prometheus"
	"github.com/AltairaLabs/voicebridge/providers"
	_ "github.com/AltairaLabs/voicebridge/providers/all"
	"github.com/AltairaLabs/voicebridge/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetVersionInfo("voicebridge"))
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.SetVerbose(cfg.Verbose)

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

	server := bridge.NewServer(providers.Config{
		Variant:      cfg.Variant,
		Credential:   cfg.Credential,
		Model:        cfg.Model,
		Region:       cfg.Region,
		RoleARN:      cfg.RoleARN,
		SystemPrompt: cfg.SystemPrompt,
		Voice:        cfg.Voice,
	}, bridge.WithAddr(cfg.MediaSocketAddr))

	logger.Info("starting voicebridge", version.GetBuildInfo()...)
	logger.Info("configuration",
		"addr", cfg.MediaSocketAddr,
		"variant", cfg.Variant,
		"variants", providers.Variants())

	if err := server.ListenAndServe(ctx); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("voicebridge stopped")
}
