// Package orchestrator fans searches and detail lookups out across the
// platform extractors, caches results, bounds batch concurrency, and runs
// the price monitor.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"smartshop/crawler/internal/extractor"
	"smartshop/crawler/logger"
	cerrors "smartshop/crawler/pkg/errors"
	"smartshop/crawler/services/cache"
	"smartshop/crawler/services/proxy"
	"smartshop/crawler/services/publisher"
)

// SearchResult carries per-platform products plus per-platform error
// annotations. A platform that failed has an empty slice and an entry in
// Errors; the other platforms are unaffected.
type SearchResult struct {
	Products map[string][]extractor.Product `json:"products"`
	Errors   map[string]string              `json:"errors,omitempty"`
}

// DetailRequest identifies one product for a batch lookup
type DetailRequest struct {
	ProductID string `json:"product_id"`
	Platform  string `json:"platform"`
}

// Counters are the aggregate request statistics
type Counters struct {
	Searches       int64 `json:"searches"`
	DetailLookups  int64 `json:"detail_lookups"`
	CacheHits      int64 `json:"cache_hits"`
	CacheMisses    int64 `json:"cache_misses"`
	PlatformErrors int64 `json:"platform_errors"`
}

// Statistics is the operational health snapshot
type Statistics struct {
	Requests  Counters     `json:"requests"`
	Platforms []string     `json:"platforms"`
	CacheSize int          `json:"cache_size,omitempty"`
	Proxies   *proxy.Stats `json:"proxies,omitempty"`
}

// Service is the crawl orchestrator
type Service struct {
	extractors map[string]extractor.Extractor
	cache      cache.CacheService
	pub        publisher.Publisher
	pool       *proxy.Pool
	searchTTL  time.Duration
	detailTTL  time.Duration
	log        *logger.Logger

	mu    sync.Mutex
	stats Counters
}

// NewService creates the orchestrator. Publisher and pool may be nil; the
// cache must not be.
func NewService(extractors []extractor.Extractor, cacheSvc cache.CacheService, pub publisher.Publisher, pool *proxy.Pool, searchTTL, detailTTL time.Duration) *Service {
	if searchTTL <= 0 {
		searchTTL = 30 * time.Minute
	}
	if detailTTL <= 0 {
		detailTTL = time.Hour
	}
	byName := make(map[string]extractor.Extractor, len(extractors))
	for _, ext := range extractors {
		byName[normalizePlatform(ext.Platform())] = ext
	}
	return &Service{
		extractors: byName,
		cache:      cacheSvc,
		pub:        pub,
		pool:       pool,
		searchTTL:  searchTTL,
		detailTTL:  detailTTL,
		log:        logger.ForOrchestrator(),
	}
}

// Platforms returns the registered platform names, sorted
func (s *Service) Platforms() []string {
	names := make([]string, 0, len(s.extractors))
	for name := range s.extractors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Search runs the keyword search on every requested platform concurrently.
// One platform failing yields an empty list plus an error annotation for it,
// never an error for the whole call. An unknown platform name is a caller
// bug and fails synchronously.
func (s *Service) Search(ctx context.Context, keyword string, platforms []string, maxPages int, forceRefresh bool) (*SearchResult, error) {
	if keyword == "" {
		return nil, cerrors.NewConfiguration("empty search keyword", nil)
	}
	if maxPages <= 0 {
		maxPages = 1
	}
	if len(platforms) == 0 {
		platforms = s.Platforms()
	}

	normalized := make([]string, 0, len(platforms))
	seen := make(map[string]bool)
	for _, p := range platforms {
		name := normalizePlatform(p)
		if _, ok := s.extractors[name]; !ok {
			return nil, cerrors.NewConfiguration(fmt.Sprintf("unknown platform %q", p), nil)
		}
		if !seen[name] {
			seen[name] = true
			normalized = append(normalized, name)
		}
	}

	s.count(func(c *Counters) { c.Searches++ })

	key := searchKey(keyword, normalized, maxPages)
	if !forceRefresh {
		if cached := s.cachedSearch(key); cached != nil {
			s.count(func(c *Counters) { c.CacheHits++ })
			return cached, nil
		}
	}
	s.count(func(c *Counters) { c.CacheMisses++ })

	result := &SearchResult{
		Products: make(map[string][]extractor.Product, len(normalized)),
		Errors:   make(map[string]string),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, name := range normalized {
		wg.Add(1)
		go func(name string, ext extractor.Extractor) {
			defer wg.Done()
			products, err := ext.Search(ctx, keyword, maxPages)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Products[name] = []extractor.Product{}
				result.Errors[name] = err.Error()
				s.count(func(c *Counters) { c.PlatformErrors++ })
				s.log.Warn().
					Str("platform", name).
					Str("keyword", keyword).
					Err(err).
					Msg("Platform search failed")
				return
			}
			result.Products[name] = products
		}(name, s.extractors[name])
	}
	wg.Wait()

	s.storeSearch(key, result)
	s.publishProducts(result)

	return result, nil
}

// GetDetails looks up one product. Ordinary crawl failures come back as nil
// without an error; only an unknown platform errors.
func (s *Service) GetDetails(ctx context.Context, productID, platform string, forceRefresh bool) (*extractor.Product, error) {
	name := normalizePlatform(platform)
	ext, ok := s.extractors[name]
	if !ok {
		return nil, cerrors.NewConfiguration(fmt.Sprintf("unknown platform %q", platform), nil)
	}

	s.count(func(c *Counters) { c.DetailLookups++ })

	key := detailKey(name, productID)
	if !forceRefresh {
		if data, err := s.cache.Get(key); err == nil {
			var p extractor.Product
			if json.Unmarshal(data, &p) == nil {
				s.count(func(c *Counters) { c.CacheHits++ })
				return &p, nil
			}
			// Corrupt entry: drop it and refetch
			s.cache.Delete(key)
		}
	}
	s.count(func(c *Counters) { c.CacheMisses++ })

	product, err := ext.GetDetails(ctx, productID)
	if err != nil {
		s.count(func(c *Counters) { c.PlatformErrors++ })
		s.log.Warn().
			Str("platform", name).
			Str("product_id", productID).
			Err(err).
			Msg("Detail lookup failed")
		return nil, nil
	}
	if product == nil {
		return nil, nil
	}

	if data, err := json.Marshal(product); err == nil {
		if err := s.cache.Set(key, data, s.detailTTL); err != nil {
			s.log.Debug().Str("key", key).Err(err).Msg("Failed to cache details")
		}
		s.publish(name, data)
	}
	return product, nil
}

// BatchGetDetails resolves all requests under a bounded concurrency gate.
// The output order matches the input order regardless of completion order;
// failed lookups are nil slots.
func (s *Service) BatchGetDetails(ctx context.Context, requests []DetailRequest, concurrency int) []*extractor.Product {
	if concurrency <= 0 {
		concurrency = 5
	}
	results := make([]*extractor.Product, len(requests))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, req := range requests {
		wg.Add(1)
		go func(i int, req DetailRequest) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			product, err := s.GetDetails(ctx, req.ProductID, req.Platform, false)
			if err != nil {
				s.log.Warn().
					Str("platform", req.Platform).
					Str("product_id", req.ProductID).
					Err(err).
					Msg("Batch detail slot rejected")
				return
			}
			results[i] = product
		}(i, req)
	}

	wg.Wait()
	return results
}

// Statistics returns the health snapshot for operational checks
func (s *Service) Statistics() Statistics {
	s.mu.Lock()
	counters := s.stats
	s.mu.Unlock()

	stats := Statistics{
		Requests:  counters,
		Platforms: s.Platforms(),
	}
	if mem, ok := s.cache.(*cache.MemoryService); ok {
		stats.CacheSize = mem.Len()
	}
	if s.pool != nil {
		poolStats := s.pool.Statistics()
		stats.Proxies = &poolStats
	}
	return stats
}

func (s *Service) cachedSearch(key string) *SearchResult {
	data, err := s.cache.Get(key)
	if err != nil {
		return nil
	}
	var result SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		s.cache.Delete(key)
		return nil
	}
	return &result
}

func (s *Service) storeSearch(key string, result *SearchResult) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := s.cache.Set(key, data, s.searchTTL); err != nil {
		s.log.Debug().Str("key", key).Err(err).Msg("Failed to cache search result")
	}
}

func (s *Service) publishProducts(result *SearchResult) {
	if s.pub == nil {
		return
	}
	for platform, products := range result.Products {
		for i := range products {
			data, err := json.Marshal(&products[i])
			if err != nil {
				continue
			}
			if err := s.pub.PublishProduct(platform, data); err != nil {
				s.log.Warn().Str("platform", platform).Err(err).Msg("Product publish failed")
			}
		}
	}
}

func (s *Service) publish(platform string, data []byte) {
	if s.pub == nil {
		return
	}
	if err := s.pub.PublishProduct(platform, data); err != nil {
		s.log.Warn().Str("platform", platform).Err(err).Msg("Product publish failed")
	}
}

func (s *Service) publishPriceChange(data []byte) {
	if s.pub == nil {
		return
	}
	if err := s.pub.PublishPriceChange(data); err != nil {
		s.log.Warn().Err(err).Msg("Price change publish failed")
	}
}

func (s *Service) count(update func(*Counters)) {
	s.mu.Lock()
	update(&s.stats)
	s.mu.Unlock()
}
