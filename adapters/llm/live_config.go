package llm

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/eburondeveloperph-gif/engr/domain"
)

const (
	defaultLiveModel        = "gemini-2.5-flash-native-audio-preview-09-2025"
	defaultLiveVoice        = "Charon"
	defaultLiveEndpoint     = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	defaultHandshakeTimeout = 10 * time.Second
	defaultOutputSampleRate = 24000
)

// LiveConfig holds the settings shared by the Gemini Live transports
type LiveConfig struct {
	APIKey           string
	Model            string
	Voice            string
	Endpoint         string
	HandshakeTimeout time.Duration
}

// NewLiveConfigFromEnv reads GEMINI_* variables
func NewLiveConfigFromEnv() LiveConfig {
	config := LiveConfig{
		APIKey:   os.Getenv("GEMINI_API_KEY"),
		Model:    os.Getenv("GEMINI_LIVE_MODEL"),
		Voice:    os.Getenv("GEMINI_VOICE"),
		Endpoint: os.Getenv("GEMINI_LIVE_ENDPOINT"),
	}
	if v := os.Getenv("GEMINI_HANDSHAKE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.HandshakeTimeout = d
		}
	}
	return config
}

// ValidateLiveConfig validates the LiveConfig
func ValidateLiveConfig(config LiveConfig) error {
	if config.APIKey == "" {
		return domain.NewConfigurationError("GEMINI_API_KEY", "an API key is required to start the assistant")
	}
	if config.HandshakeTimeout < 0 {
		return fmt.Errorf("handshake timeout must be positive, got %v", config.HandshakeTimeout)
	}
	return nil
}

// WithDefaults fills unset fields, logging each default used
func (c LiveConfig) WithDefaults(logger *zap.Logger) LiveConfig {
	if c.Model == "" {
		c.Model = defaultLiveModel
		logger.Info("Using default model", zap.String("model", c.Model))
	}
	if c.Voice == "" {
		c.Voice = defaultLiveVoice
		logger.Info("Using default voice", zap.String("voice", c.Voice))
	}
	if c.Endpoint == "" {
		c.Endpoint = defaultLiveEndpoint
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
		logger.Info("Using default handshake timeout", zap.Duration("handshakeTimeout", c.HandshakeTimeout))
	}
	return c
}
