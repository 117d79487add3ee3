package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"smartshop/crawler/config"
	"smartshop/crawler/internal/extractor"
	"smartshop/crawler/internal/fetcher"
	"smartshop/crawler/internal/ratelimit"
	"smartshop/crawler/logger"
	"smartshop/crawler/services/cache"
	"smartshop/crawler/services/orchestrator"
	"smartshop/crawler/services/proxy"
	"smartshop/crawler/services/publisher"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("cache_backend", cfg.CacheBackend).
		Bool("use_proxy", cfg.UseProxy).
		Msg("Starting application")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize services
	services, err := initializeServices(ctx, &cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Cleanup(&cfg)

	// Create the fetch pipeline
	limiter := ratelimit.New(ratelimit.Limit{
		MaxCalls: cfg.RateMaxCalls,
		Window:   cfg.RateWindow,
	})
	f := fetcher.New(fetcher.Config{
		Timeout:      cfg.FetchTimeout,
		RetryCount:   cfg.RetryCount,
		RetryDelay:   cfg.RetryDelay,
		DelayMin:     cfg.DelayMin,
		DelayMax:     cfg.DelayMax,
		UseProxy:     cfg.UseProxy,
		RequireProxy: cfg.RequireProxy,
	}, services.Proxies, limiter)

	// Create platform extractors
	extractors := []extractor.Extractor{
		extractor.NewJD(f),
		extractor.NewTaobao(f),
		extractor.NewPDD(f),
	}

	svc := orchestrator.NewService(
		extractors,
		services.Cache,
		services.Publisher,
		services.Proxies,
		cfg.SearchCacheTTL,
		cfg.DetailCacheTTL,
	)
	log.Info().
		Strs("platforms", svc.Platforms()).
		Msg("Created platform extractors")

	// Start the price monitor when products are tracked
	var monitor *orchestrator.Monitor
	if tracked := trackedProducts(); len(tracked) > 0 {
		monitor = orchestrator.NewMonitor(svc, tracked, cfg.MonitorInterval, nil)
		if err := monitor.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to start price monitor")
		}
		log.Info().
			Int("tracked", len(tracked)).
			Dur("interval", cfg.MonitorInterval).
			Msg("Price monitor started")
	}

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info().
		Str("signal", sig.String()).
		Msg("Received shutdown signal")
	cancel()

	if monitor != nil {
		monitor.Stop()
	}

	log.Info().
		Interface("statistics", svc.Statistics()).
		Msg("Shutting down gracefully...")
}

// Services holds all the initialized services
type Services struct {
	Cache     cache.CacheService
	Publisher publisher.Publisher
	Proxies   *proxy.Pool
}

// Cleanup cleans up all services
func (s *Services) Cleanup(cfg *config.Config) {
	if s.Proxies != nil {
		if cfg.ProxyFile != "" {
			if err := s.Proxies.SaveFile(cfg.ProxyFile); err != nil {
				logger.Error("Failed to save proxy records: %v", err)
			}
		}
		s.Proxies.Close()
	}
	if s.Publisher != nil {
		if err := s.Publisher.TrimStreams(); err != nil {
			logger.Warn("Failed to trim product streams: %v", err)
		}
		s.Publisher.Close()
	}
	switch c := s.Cache.(type) {
	case interface{ Close() }:
		c.Close()
	case interface{ Close() error }:
		c.Close()
	}
}

// initializeServices initializes all required services
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{}

	// Initialize cache service
	switch cfg.CacheBackend {
	case "memcache":
		services.Cache = cache.NewMemcacheService(cfg.MemcacheAddr)
		logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
	case "redis":
		services.Cache = cache.NewRedisService(ctx, cfg.RedisAddr, cfg.RedisDB)
		logger.Info("Connected to Redis cache at %s (DB: %d)", cfg.RedisAddr, cfg.RedisDB)
	default:
		services.Cache = cache.NewMemoryService(10 * time.Minute)
		logger.Info("Using in-memory cache")
	}
	if services.Cache == nil {
		return nil, fmt.Errorf("failed to create cache service")
	}

	// Initialize publisher
	redisPublisher := publisher.NewRedisPublisher(
		ctx,
		cfg.RedisAddr,
		cfg.RedisDB,
		cfg.ProductStream,
		cfg.ProductStreamCount,
		cfg.ProductStreamMaxLen,
		cfg.PriceChangeTopic,
	)
	if redisPublisher == nil {
		return nil, fmt.Errorf("failed to create redis publisher")
	}
	services.Publisher = redisPublisher

	logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
		cfg.RedisAddr, cfg.RedisDB, cfg.ProductStream)

	// Initialize the proxy pool
	services.Proxies = proxy.NewPool()
	if cfg.ProxyFile != "" {
		if err := services.Proxies.LoadFile(cfg.ProxyFile); err != nil {
			logger.Warn("Failed to load proxy records from %s: %v", cfg.ProxyFile, err)
		} else {
			logger.Info("Loaded %d proxy records from %s", services.Proxies.Len(), cfg.ProxyFile)
		}
	}

	return services, nil
}

// trackedProducts parses MONITOR_PRODUCTS, a comma separated list of
// platform:product_id pairs, e.g. "jd:100012043978,taobao:6542231"
func trackedProducts() []orchestrator.TrackedProduct {
	raw := os.Getenv("MONITOR_PRODUCTS")
	if raw == "" {
		return nil
	}

	var tracked []orchestrator.TrackedProduct
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			logger.Warn("Skipping malformed MONITOR_PRODUCTS entry %q", entry)
			continue
		}
		tracked = append(tracked, orchestrator.TrackedProduct{
			Platform:  parts[0],
			ProductID: parts[1],
		})
	}
	return tracked
}
