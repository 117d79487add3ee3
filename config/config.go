package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents the application configuration
type Config struct {
	// Redis configuration (publisher and optional cache backend)
	RedisAddr            string
	RedisDB              int
	ProductStream        string
	ProductStreamCount   int
	ProductStreamMaxLen  int
	PriceChangeTopic     string

	// Cache configuration
	CacheBackend   string // memory, memcache or redis
	MemcacheAddr   string
	SearchCacheTTL time.Duration
	DetailCacheTTL time.Duration

	// Fetcher configuration
	FetchTimeout time.Duration
	RetryCount   int
	RetryDelay   time.Duration
	DelayMin     time.Duration
	DelayMax     time.Duration
	UseProxy     bool
	RequireProxy bool
	ProxyFile    string

	// Rate limiting (default per-domain budget)
	RateMaxCalls int
	RateWindow   time.Duration

	// Orchestration
	BatchConcurrency int
	MonitorInterval  time.Duration

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() Config {
	return Config{
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:             getEnvInt("REDIS_DB", 0),
		ProductStream:       getEnv("PRODUCT_STREAM", "products"),
		ProductStreamCount:  getEnvInt("PRODUCT_STREAM_COUNT", 4),
		ProductStreamMaxLen: getEnvInt("PRODUCT_STREAM_MAX_LENGTH", 500),
		PriceChangeTopic:    getEnv("PRICE_CHANGE_TOPIC", "price_changes"),

		CacheBackend:   getEnv("CACHE_BACKEND", "memory"),
		MemcacheAddr:   getEnv("MEMCACHE_ADDR", "localhost:11211"),
		SearchCacheTTL: getEnvSeconds("SEARCH_CACHE_TTL_SECONDS", 1800),
		DetailCacheTTL: getEnvSeconds("DETAIL_CACHE_TTL_SECONDS", 3600),

		FetchTimeout: getEnvSeconds("FETCH_TIMEOUT_SECONDS", 10),
		RetryCount:   getEnvInt("FETCH_RETRY_COUNT", 3),
		RetryDelay:   getEnvSeconds("FETCH_RETRY_DELAY_SECONDS", 2),
		DelayMin:     getEnvMillis("FETCH_DELAY_MIN_MS", 500),
		DelayMax:     getEnvMillis("FETCH_DELAY_MAX_MS", 2000),
		UseProxy:     getEnvBool("USE_PROXY", false),
		RequireProxy: getEnvBool("REQUIRE_PROXY", false),
		ProxyFile:    getEnv("PROXY_FILE", ""),

		RateMaxCalls: getEnvInt("RATE_MAX_CALLS", 10),
		RateWindow:   getEnvSeconds("RATE_WINDOW_SECONDS", 60),

		BatchConcurrency: getEnvInt("BATCH_CONCURRENCY", 5),
		MonitorInterval:  getEnvSeconds("MONITOR_INTERVAL_SECONDS", 300),

		Environment: getEnv("SMARTSHOP_ENVIRONMENT", "development"),
	}
}

// Validate checks the configuration for caller mistakes
func (c *Config) Validate() error {
	switch c.CacheBackend {
	case "memory", "memcache", "redis":
	default:
		return fmt.Errorf("unknown cache backend %q", c.CacheBackend)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive")
	}
	if c.RetryCount <= 0 {
		return fmt.Errorf("retry count must be positive")
	}
	if c.DelayMin > c.DelayMax {
		return fmt.Errorf("delay min %v exceeds delay max %v", c.DelayMin, c.DelayMax)
	}
	if c.RateMaxCalls <= 0 || c.RateWindow <= 0 {
		return fmt.Errorf("rate limit budget must be positive")
	}
	if c.BatchConcurrency <= 0 {
		return fmt.Errorf("batch concurrency must be positive")
	}
	if c.RequireProxy && !c.UseProxy {
		return fmt.Errorf("REQUIRE_PROXY needs USE_PROXY enabled")
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Second
}

func getEnvMillis(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Millisecond
}
