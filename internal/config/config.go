// Package config provides the configuration structure for the echoverse-service.
package config

import (
	"fmt"
	"os"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Defaults applied after loading when the TOML leaves a field unset.
const (
	defaultPort              = 8080
	defaultSessionTTLHours   = 24
	defaultMaxTextLength     = 5000
	defaultSessionSecretEnv  = "ECHOVERSE_SESSION_SECRET"
	defaultRewriteTokenEnv   = "HF_API_TOKEN"
	defaultRewriteModelID    = "ibm-granite/granite-3.1-8b-instruct"
	defaultRewriteBaseURL    = "https://api-inference.huggingface.co"
	defaultRewriteTimeoutSec = 60
	defaultTTSAPIKeyEnv      = "IBM_API_KEY"
	defaultIAMTokenURL       = "https://iam.cloud.ibm.com/identity/token"
	defaultIAMTimeoutSec     = 30
	defaultTTSTimeoutSec     = 120
	defaultAudioBucket       = "ECHOVERSE_AUDIO"
)

// ServerConfig holds the HTTP server and session settings.
type ServerConfig struct {
	Host             string `toml:"host"`
	Port             int    `toml:"port"`
	SessionSecretEnv string `toml:"session_secret_env"`
	SessionTTLHours  int    `toml:"session_ttl_hours"`
	MaxTextLength    int    `toml:"max_text_length"`
}

// RewriteConfig holds the Hugging Face Inference settings for the
// tone-rewrite model.
type RewriteConfig struct {
	TokenEnv       string `toml:"token_env"`
	ModelID        string `toml:"model_id"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// TTSConfig holds the IBM Watson Text-to-Speech settings.
type TTSConfig struct {
	APIKeyEnv         string `toml:"api_key_env"`
	ServiceURL        string `toml:"service_url"`
	IAMTokenURL       string `toml:"iam_token_url"`
	IAMTimeoutSeconds int    `toml:"iam_timeout_seconds"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
}

// NATSConfig holds the optional NATS settings for the durable audio store.
// When URL is empty the service keeps audio in process memory.
type NATSConfig struct {
	URL         string `toml:"url"`
	AudioBucket string `toml:"audio_bucket"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Rewrite RewriteConfig `toml:"rewrite"`
	TTS     TTSConfig     `toml:"ibm_tts"`
	NATS    NATSConfig    `toml:"nats"`
	Paths   PathsConfig   `toml:"paths"`
}

// Load loads the configuration for the echoverse-service.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults fills unset fields with the documented defaults. Secrets are
// never defaulted; only the names of the environment variables that carry
// them are.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}

	if c.Server.SessionTTLHours == 0 {
		c.Server.SessionTTLHours = defaultSessionTTLHours
	}

	if c.Server.MaxTextLength == 0 {
		c.Server.MaxTextLength = defaultMaxTextLength
	}

	if c.Server.SessionSecretEnv == "" {
		c.Server.SessionSecretEnv = defaultSessionSecretEnv
	}

	if c.Rewrite.TokenEnv == "" {
		c.Rewrite.TokenEnv = defaultRewriteTokenEnv
	}

	if c.Rewrite.ModelID == "" {
		c.Rewrite.ModelID = defaultRewriteModelID
	}

	if c.Rewrite.BaseURL == "" {
		c.Rewrite.BaseURL = defaultRewriteBaseURL
	}

	if c.Rewrite.TimeoutSeconds == 0 {
		c.Rewrite.TimeoutSeconds = defaultRewriteTimeoutSec
	}

	if c.TTS.APIKeyEnv == "" {
		c.TTS.APIKeyEnv = defaultTTSAPIKeyEnv
	}

	if c.TTS.IAMTokenURL == "" {
		c.TTS.IAMTokenURL = defaultIAMTokenURL
	}

	if c.TTS.IAMTimeoutSeconds == 0 {
		c.TTS.IAMTimeoutSeconds = defaultIAMTimeoutSec
	}

	if c.TTS.TimeoutSeconds == 0 {
		c.TTS.TimeoutSeconds = defaultTTSTimeoutSec
	}

	if c.NATS.AudioBucket == "" {
		c.NATS.AudioBucket = defaultAudioBucket
	}
}

// RewriteToken resolves the Hugging Face API token from the environment.
// An empty result means the rewrite client is not configured.
func (c *Config) RewriteToken() string {
	return os.Getenv(c.Rewrite.TokenEnv)
}

// TTSAPIKey resolves the IBM Cloud API key from the environment.
func (c *Config) TTSAPIKey() string {
	return os.Getenv(c.TTS.APIKeyEnv)
}

// SessionSecret resolves the session-cookie signing secret from the
// environment. An empty result tells the caller to generate an ephemeral
// secret for the process lifetime.
func (c *Config) SessionSecret() string {
	return os.Getenv(c.Server.SessionSecretEnv)
}
