// Package config provides configuration loading and management for the application.
package config

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/vault-bff/internal/types"
)

// Config holds all application configuration
type Config struct {
	// HTTP server port
	Port      string
	LogLevel  string
	LogFormat string

	// OpenTelemetry endpoint for observability
	OtelEndpoint string

	// YAML overrides for the embedded definitions
	PortfolioConfig string
	TokenRegistry   string

	// RPC endpoint per chain, from RPC_URL_<CHAIN>
	Chains map[types.ChainID]types.ChainConfig

	// Off-chain APIs
	OneInchURL      string
	OneInchAPIKey   string
	ZeroXURL        string
	ZeroXAPIKey     string
	ParaSwapURL     string
	AcrossURL       string
	PendleURL       string
	CamelotURL      string
	DeBankURL       string
	DeBankAccessKey string
	PriceURL        string
	PriceAPIKey     string
	PriceTTL        time.Duration

	// Storage
	DatabaseURL string
	// CacheBackend is "gcs" or "memory"
	CacheBackend     string
	CacheBucket      string
	CacheCredentials string

	// Timeouts, limits and circuit breaker settings
	RequestTimeout      time.Duration
	RateLimit           float64
	RateBurst           int
	MaxPriceImpact      float64
	MaxProviderFailures int
	CircuitResetDelay   time.Duration
	TestMode            bool

	// Bundle signing; empty disables it
	SigningKey        string
	SignatureValidity time.Duration

	// Telemetry webhook
	TelemetryURL      string
	TelemetryAPIKey   string
	TelemetryBatch    int
	TelemetryInterval time.Duration
}

// LoadDotEnv reads a .env file into the environment without overriding set variables.
// A missing file is not an error.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{"path": p}).Warn("Failed to load env file")
			continue
		}
		logrus.WithFields(logrus.Fields{"path": p}).Debug("Loaded env file")
	}
}

// Load creates a new Config from environment variables
func Load() Config {
	return Config{
		Port:                GetEnvOrDefault("PORT", "8080"),
		LogLevel:            strings.ToLower(GetEnvOrDefault("LOG_LEVEL", "info")),
		LogFormat:           strings.ToLower(GetEnvOrDefault("LOG_FORMAT", "json")),
		OtelEndpoint:        GetEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		PortfolioConfig:     GetEnvOrDefault("PORTFOLIO_CONFIG", ""),
		TokenRegistry:       GetEnvOrDefault("TOKEN_REGISTRY", ""),
		Chains:              LoadChains(),
		OneInchURL:          GetEnvOrDefault("ONEINCH_URL", ""),
		OneInchAPIKey:       GetEnvOrDefault("ONEINCH_API_KEY", ""),
		ZeroXURL:            GetEnvOrDefault("ZEROX_URL", ""),
		ZeroXAPIKey:         GetEnvOrDefault("ZEROX_API_KEY", ""),
		ParaSwapURL:         GetEnvOrDefault("PARASWAP_URL", ""),
		AcrossURL:           GetEnvOrDefault("ACROSS_URL", ""),
		PendleURL:           GetEnvOrDefault("PENDLE_URL", ""),
		CamelotURL:          GetEnvOrDefault("CAMELOT_URL", ""),
		DeBankURL:           GetEnvOrDefault("DEBANK_URL", ""),
		DeBankAccessKey:     GetEnvOrDefault("DEBANK_ACCESSKEY", ""),
		PriceURL:            GetEnvOrDefault("PRICE_URL", ""),
		PriceAPIKey:         GetEnvOrDefault("PRICE_API_KEY", ""),
		PriceTTL:            GetEnvAsDuration("PRICE_TTL", time.Minute),
		DatabaseURL:         GetEnvOrDefault("DATABASE_URL", ""),
		CacheBackend:        strings.ToLower(GetEnvOrDefault("CACHE_BACKEND", "memory")),
		CacheBucket:         GetEnvOrDefault("CACHE_BUCKET", "all-weather-portfolio"),
		CacheCredentials:    GetEnvOrDefault("GOOGLE_APPLICATION_CREDENTIALS", ""),
		RequestTimeout:      GetEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),
		RateLimit:           GetEnvAsFloat("RATE_LIMIT", 20),
		RateBurst:           GetEnvAsInt("RATE_BURST", 40),
		MaxPriceImpact:      GetEnvAsFloat("MAX_PRICE_IMPACT", 10),
		MaxProviderFailures: GetEnvAsInt("MAX_PROVIDER_FAILURES", 5),
		CircuitResetDelay:   GetEnvAsDuration("CIRCUIT_RESET_DELAY", time.Minute),
		TestMode:            GetEnvAsBool("TEST_MODE", false),
		SigningKey:          GetEnvOrDefault("SIGNING_KEY", ""),
		SignatureValidity:   GetEnvAsDuration("SIGNATURE_VALIDITY", 10*time.Minute),
		TelemetryURL:        GetEnvOrDefault("TELEMETRY_WEBHOOK_URL", ""),
		TelemetryAPIKey:     GetEnvOrDefault("TELEMETRY_WEBHOOK_API_KEY", ""),
		TelemetryBatch:      GetEnvAsInt("TELEMETRY_BATCH_SIZE", 100),
		TelemetryInterval:   GetEnvAsDuration("TELEMETRY_INTERVAL", time.Minute),
	}
}

// LoadChains reads RPC_URL_<CHAIN> for every supported chain. Chains without
// an endpoint are left out.
func LoadChains() map[types.ChainID]types.ChainConfig {
	out := map[types.ChainID]types.ChainConfig{}
	for _, id := range types.SupportedChains() {
		key := "RPC_URL_" + strings.ToUpper(id.String())
		url, ok := GetEnv(key)
		if !ok || url == "" {
			continue
		}
		out[id] = types.ChainConfig{
			Enabled:     GetEnvAsBool("CHAIN_ENABLED_"+strings.ToUpper(id.String()), true),
			RPCEndpoint: url,
		}
	}
	return out
}

// RPCEndpoints returns the endpoints of enabled chains
func (c Config) RPCEndpoints() map[types.ChainID]string {
	out := make(map[types.ChainID]string, len(c.Chains))
	for id, cc := range c.Chains {
		if cc.Enabled {
			out[id] = cc.RPCEndpoint
		}
	}
	return out
}

// EnabledChains lists enabled chains in id order
func (c Config) EnabledChains() []types.ChainID {
	out := make([]types.ChainID, 0, len(c.Chains))
	for id := range c.RPCEndpoints() {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// GetEnv retrieves an environment variable and whether it exists
func GetEnv(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	return value, exists
}

// GetEnvOrDefault retrieves an environment variable or returns the default value if not set
func GetEnvOrDefault(key, defaultValue string) string {
	if value, exists := GetEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt retrieves an environment variable as an integer with a default value
func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := GetEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvAsFloat retrieves an environment variable as a float with a default value
func GetEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := GetEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// GetEnvAsBool retrieves an environment variable as a bool with a default value
func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := GetEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvAsDuration retrieves an environment variable as a duration with a default value
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := GetEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
