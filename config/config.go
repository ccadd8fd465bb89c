// Package config loads bridge configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultMediaSocketAddr is where the bridge server listens and the
	// RTP relay connects.
	DefaultMediaSocketAddr = "localhost:8765"

	// DefaultRTPPort is the local UDP port for RTP.
	DefaultRTPPort = 5004

	// DefaultMetricsAddr serves /metrics and /health.
	DefaultMetricsAddr = ":9090"
)

// Config is the full configuration surface shared by both binaries.
type Config struct {
	// RTPPort is the local UDP port the relay binds for RTP.
	RTPPort int `yaml:"rtp_port"`

	// RTPRemote is the far-end RTP endpoint, host:port. Empty means the
	// relay learns the far end from the first received packet.
	RTPRemote string `yaml:"rtp_remote"`

	// MediaSocketAddr is the media socket address. The bridge server
	// listens on it; the RTP relay dials ws://{addr}.
	MediaSocketAddr string `yaml:"media_socket_addr"`

	// Variant selects the provider: "openai" or "nova".
	Variant string `yaml:"variant"`

	// Credential is the API key for token-authenticated variants.
	Credential string `yaml:"credential"`

	// Model overrides the variant's default model.
	Model string `yaml:"model"`

	// Region is the AWS region for Bedrock-hosted variants.
	Region string `yaml:"region"`

	// RoleARN, when set, makes AWS-authenticated variants assume that IAM
	// role instead of using the default credential chain directly.
	RoleARN string `yaml:"role_arn"`

	// SystemPrompt is the conversation's system instructions.
	SystemPrompt string `yaml:"system_prompt"`

	// Voice overrides the variant's default voice.
	Voice string `yaml:"voice"`

	// MetricsAddr is the Prometheus exporter address. Empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`

	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose"`
}

// Default returns a config with defaults applied.
func Default() *Config {
	return &Config{
		RTPPort:         DefaultRTPPort,
		MediaSocketAddr: DefaultMediaSocketAddr,
		Variant:         "openai",
		MetricsAddr:     DefaultMetricsAddr,
	}
}

// Load reads the YAML file at path, applies environment overrides, and
// validates the result. An empty path skips the file and uses defaults
// plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values from VOICEBRIDGE_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("VOICEBRIDGE_RTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.RTPPort = port
		}
	}
	if v := os.Getenv("VOICEBRIDGE_RTP_REMOTE"); v != "" {
		c.RTPRemote = v
	}
	if v := os.Getenv("VOICEBRIDGE_MEDIA_SOCKET_ADDR"); v != "" {
		c.MediaSocketAddr = v
	}
	if v := os.Getenv("VOICEBRIDGE_VARIANT"); v != "" {
		c.Variant = v
	}
	if v := os.Getenv("VOICEBRIDGE_CREDENTIAL"); v != "" {
		c.Credential = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.Credential == "" {
		c.Credential = v
	}
	if v := os.Getenv("VOICEBRIDGE_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("VOICEBRIDGE_REGION"); v != "" {
		c.Region = v
	}
	if v := os.Getenv("VOICEBRIDGE_ROLE_ARN"); v != "" {
		c.RoleARN = v
	}
	if v := os.Getenv("VOICEBRIDGE_SYSTEM_PROMPT"); v != "" {
		c.SystemPrompt = v
	}
	if v := os.Getenv("VOICEBRIDGE_VOICE"); v != "" {
		c.Voice = v
	}
	if v := os.Getenv("VOICEBRIDGE_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("VOICEBRIDGE_VERBOSE"); v != "" {
		if verbose, err := strconv.ParseBool(v); err == nil {
			c.Verbose = verbose
		}
	}
}

// Validate checks required fields and ranges.
func (c *Config) Validate() error {
	if c.RTPPort < 0 || c.RTPPort > 65535 {
		return fmt.Errorf("invalid rtp_port: %d", c.RTPPort)
	}
	if c.MediaSocketAddr == "" {
		return fmt.Errorf("missing required field: media_socket_addr")
	}
	if c.Variant == "" {
		return fmt.Errorf("missing required field: variant")
	}
	return nil
}
