package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	// Test with default values
	config := LoadConfig()
	assert.Equal(t, "localhost:6379", config.RedisAddr)
	assert.Equal(t, 0, config.RedisDB)
	assert.Equal(t, "products", config.ProductStream)
	assert.Equal(t, 4, config.ProductStreamCount)
	assert.Equal(t, "memory", config.CacheBackend)
	assert.Equal(t, 30*time.Minute, config.SearchCacheTTL)
	assert.Equal(t, time.Hour, config.DetailCacheTTL)
	assert.Equal(t, 10*time.Second, config.FetchTimeout)
	assert.Equal(t, 3, config.RetryCount)
	assert.Equal(t, 500*time.Millisecond, config.DelayMin)
	assert.Equal(t, 2*time.Second, config.DelayMax)
	assert.False(t, config.UseProxy)
	assert.Equal(t, 10, config.RateMaxCalls)
	assert.Equal(t, time.Minute, config.RateWindow)
	assert.Equal(t, 5*time.Minute, config.MonitorInterval)

	// Test with environment variables
	os.Setenv("REDIS_ADDR", "redis.example.com:6379")
	os.Setenv("REDIS_DB", "1")
	os.Setenv("CACHE_BACKEND", "redis")
	os.Setenv("FETCH_RETRY_COUNT", "5")
	os.Setenv("RATE_MAX_CALLS", "20")
	os.Setenv("RATE_WINDOW_SECONDS", "30")
	os.Setenv("USE_PROXY", "true")
	os.Setenv("PROXY_FILE", "/tmp/proxies.json")

	config = LoadConfig()
	assert.Equal(t, "redis.example.com:6379", config.RedisAddr)
	assert.Equal(t, 1, config.RedisDB)
	assert.Equal(t, "redis", config.CacheBackend)
	assert.Equal(t, 5, config.RetryCount)
	assert.Equal(t, 20, config.RateMaxCalls)
	assert.Equal(t, 30*time.Second, config.RateWindow)
	assert.True(t, config.UseProxy)
	assert.Equal(t, "/tmp/proxies.json", config.ProxyFile)

	// Clean up
	os.Unsetenv("REDIS_ADDR")
	os.Unsetenv("REDIS_DB")
	os.Unsetenv("CACHE_BACKEND")
	os.Unsetenv("FETCH_RETRY_COUNT")
	os.Unsetenv("RATE_MAX_CALLS")
	os.Unsetenv("RATE_WINDOW_SECONDS")
	os.Unsetenv("USE_PROXY")
	os.Unsetenv("PROXY_FILE")
}

func TestConfig_Validate(t *testing.T) {
	valid := LoadConfig()
	assert.NoError(t, valid.Validate())

	bad := LoadConfig()
	bad.CacheBackend = "etcd"
	assert.Error(t, bad.Validate())

	bad = LoadConfig()
	bad.DelayMin = 3 * time.Second
	bad.DelayMax = time.Second
	assert.Error(t, bad.Validate())

	bad = LoadConfig()
	bad.RateMaxCalls = 0
	assert.Error(t, bad.Validate())

	bad = LoadConfig()
	bad.RequireProxy = true
	bad.UseProxy = false
	assert.Error(t, bad.Validate())

	bad = LoadConfig()
	bad.BatchConcurrency = -1
	assert.Error(t, bad.Validate())
}
