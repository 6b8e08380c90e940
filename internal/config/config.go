// Package config loads process settings from the environment and an optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/eburondeveloperph-gif/engr/domain"
)

const (
	TransportGenAI     = "genai"
	TransportWebSocket = "websocket"
	TransportMock      = "mock"

	StoreMemory = "memory"
	StoreMongo  = "mongo"

	DevicesTerminal = "terminal"
	DevicesMock     = "mock"
)

const (
	defaultPort              = "8080"
	defaultRetention         = 720 * time.Hour
	defaultToolQueryTimeout  = 5 * time.Second
	defaultLowStockThreshold = 50
)

// Config holds the process settings
type Config struct {
	Port   string
	AppEnv string

	AssistantTransport string
	StoreBackend       string
	DeviceBackend      string

	MongoURI      string
	MongoDatabase string

	JWTSecret   string
	OperatorPIN string

	SessionLogRetention time.Duration
	ToolQueryTimeout    time.Duration
	LowStockThreshold   float64
}

// IsDevelopment reports whether APP_ENV is development
func (c Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// Load reads .env when present and then the environment
func Load() (Config, error) {
	// .env is optional
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an environment lookup function
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return v
	}

	config := Config{
		Port:               get("PORT"),
		AppEnv:             get("APP_ENV"),
		AssistantTransport: get("ASSISTANT_TRANSPORT"),
		StoreBackend:       get("STORE_BACKEND"),
		DeviceBackend:      get("DEVICE_BACKEND"),
		MongoURI:           get("MONGODB_URI"),
		MongoDatabase:      get("MONGODB_DATABASE"),
		JWTSecret:          get("JWT_SECRET"),
		OperatorPIN:        get("OPERATOR_PIN"),
	}

	var err error
	if config.SessionLogRetention, err = parseDuration("SESSION_LOG_RETENTION", get("SESSION_LOG_RETENTION")); err != nil {
		return Config{}, err
	}
	if config.ToolQueryTimeout, err = parseDuration("TOOL_QUERY_TIMEOUT", get("TOOL_QUERY_TIMEOUT")); err != nil {
		return Config{}, err
	}
	if v := get("LOW_STOCK_THRESHOLD"); v != "" {
		threshold, err := strconv.ParseFloat(v, 64)
		if err != nil || threshold < 0 {
			return Config{}, domain.NewConfigurationError("LOW_STOCK_THRESHOLD", fmt.Sprintf("must be a non-negative number, got %q", v))
		}
		config.LowStockThreshold = threshold
	}

	if err := ValidateConfig(config); err != nil {
		return Config{}, err
	}
	return config, nil
}

func parseDuration(key, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return 0, domain.NewConfigurationError(key, fmt.Sprintf("must be a positive duration, got %q", value))
	}
	return d, nil
}

// ValidateConfig checks the enumerated settings
func ValidateConfig(config Config) error {
	switch config.AssistantTransport {
	case "", TransportGenAI, TransportWebSocket, TransportMock:
	default:
		return domain.NewConfigurationError("ASSISTANT_TRANSPORT", fmt.Sprintf("unknown transport %q", config.AssistantTransport))
	}
	switch config.StoreBackend {
	case "", StoreMemory, StoreMongo:
	default:
		return domain.NewConfigurationError("STORE_BACKEND", fmt.Sprintf("unknown store backend %q", config.StoreBackend))
	}
	switch config.DeviceBackend {
	case "", DevicesTerminal, DevicesMock:
	default:
		return domain.NewConfigurationError("DEVICE_BACKEND", fmt.Sprintf("unknown device backend %q", config.DeviceBackend))
	}
	return nil
}

// WithDefaults fills unset fields, logging each default used
func (c Config) WithDefaults(logger *zap.Logger) Config {
	if c.Port == "" {
		c.Port = defaultPort
	}
	if c.AssistantTransport == "" {
		c.AssistantTransport = TransportGenAI
		logger.Info("Using default assistant transport", zap.String("transport", c.AssistantTransport))
	}
	if c.StoreBackend == "" {
		c.StoreBackend = StoreMemory
		logger.Info("Using default store backend", zap.String("store", c.StoreBackend))
	}
	if c.DeviceBackend == "" {
		c.DeviceBackend = DevicesTerminal
		logger.Info("Using default device backend", zap.String("devices", c.DeviceBackend))
	}
	if c.SessionLogRetention == 0 {
		c.SessionLogRetention = defaultRetention
		logger.Info("Using default session log retention", zap.Duration("retention", c.SessionLogRetention))
	}
	if c.ToolQueryTimeout == 0 {
		c.ToolQueryTimeout = defaultToolQueryTimeout
	}
	if c.LowStockThreshold == 0 {
		c.LowStockThreshold = defaultLowStockThreshold
	}
	return c
}
