package config

import (
	"os"
	"strconv"
	"time"
)

const (
	DefaultPort          = 9000
	DefaultRedisAddr     = "localhost:6379"
	DefaultRegisterPath  = "/config"
	DefaultURLPrefix     = "http://localhost:9000"
	DefaultKeyTTLSec     = 3600
	DefaultArchCacheSize = 32
	DefaultCertCacheSize = 16
)

type Config struct {
	Server ServerConfig
	Redis  RedisConfig
	Cache  CacheConfig
	PKI    PKIConfig
}

type ServerConfig struct {
	Env      string
	Host     string
	Port     int
	LogLevel string
}

type RedisConfig struct {
	Addr string
}

type CacheConfig struct {
	// ArchTTL and CertTTL govern how long raw configurations and
	// individual certificates survive in the shared store.
	ArchTTL time.Duration
	CertTTL time.Duration

	// ArchCacheSize bounds the per-process architecture LRU;
	// CertCacheSize bounds the per-architecture certificate LRU.
	// Zero disables the respective local layer.
	ArchCacheSize int
	CertCacheSize int
}

type PKIConfig struct {
	// KeyDir holds the shared key material; all workers must see the
	// same directory for cross-worker rebuilds to pair up with cached
	// certificates.
	KeyDir string

	// ConfigSearchDir is scanned at startup for static architecture
	// files (*.yml, *.yaml).
	ConfigSearchDir string

	// ExternalURLPrefix is the base of the service endpoint URLs
	// reported in bundles.
	ExternalURLPrefix string

	// RegisterPath is the sub-path bound to configuration submission.
	RegisterPath string
}

func Load() *Config {
	defaultTTL := getEnvInt("REDIS_KEY_TTL", DefaultKeyTTLSec)

	return &Config{
		Server: ServerConfig{
			Env:      getEnv("APP_ENV", "development"),
			Host:     getEnv("HOST", "0.0.0.0"),
			Port:     getEnvInt("PORT", DefaultPort),
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", DefaultRedisAddr),
		},
		Cache: CacheConfig{
			ArchTTL:       time.Duration(getEnvInt("ARCH_TTL", defaultTTL)) * time.Second,
			CertTTL:       time.Duration(getEnvInt("CERT_TTL", defaultTTL)) * time.Second,
			ArchCacheSize: getEnvInt("ARCH_CACHE_SIZE", DefaultArchCacheSize),
			CertCacheSize: getEnvInt("CERT_CACHE_SIZE", DefaultCertCacheSize),
		},
		PKI: PKIConfig{
			KeyDir:            getEnv("KEY_DIR", ""),
			ConfigSearchDir:   getEnv("CONFIG_SEARCH_DIR", ""),
			ExternalURLPrefix: getEnv("EXTERNAL_URL_PREFIX", DefaultURLPrefix),
			RegisterPath:      getEnv("REGISTER_PATH", DefaultRegisterPath),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
