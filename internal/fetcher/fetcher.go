// Package fetcher issues HTTP requests with randomized browser identity,
// per-domain pacing, retry with backoff, and anti-bot-page detection.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/html/charset"

	"smartshop/crawler/internal/ratelimit"
	"smartshop/crawler/logger"
	cerrors "smartshop/crawler/pkg/errors"
	"smartshop/crawler/services/proxy"
)

// ProxySource is the slice of the proxy pool the fetcher needs
type ProxySource interface {
	Select() *proxy.Record
	ReportSuccess(key string, responseTime time.Duration)
	ReportFailure(key string, reason string)
}

// Config holds per-fetcher request policy; immutable after construction
type Config struct {
	Timeout      time.Duration
	RetryCount   int
	RetryDelay   time.Duration
	DelayMin     time.Duration
	DelayMax     time.Duration
	UseProxy     bool
	RequireProxy bool
}

// Fetcher performs paced, retried HTTP fetches
type Fetcher struct {
	cfg     Config
	proxies ProxySource
	limiter *ratelimit.Limiter
	log     *logger.Logger

	mu      sync.Mutex
	lastHit map[string]time.Time
	rnd     *rand.Rand
}

// New creates a fetcher. The proxy source may be nil when UseProxy is false.
func New(cfg Config, proxies ProxySource, limiter *ratelimit.Limiter) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Fetcher{
		cfg:     cfg,
		proxies: proxies,
		limiter: limiter,
		log:     logger.ForFetcher(),
		lastHit: make(map[string]time.Time),
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Fetch retrieves a URL, returning the UTF-8 body. Terminal failures come
// back as typed errors; no raw transport error crosses this boundary.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return nil, cerrors.NewConfiguration(fmt.Sprintf("invalid url %q", rawURL), err)
	}
	domain := u.Hostname()
	traceID := uuid.NewString()

	if f.limiter != nil {
		if err := f.limiter.Acquire(ctx, domain); err != nil {
			return nil, cerrors.NewNetwork(domain, "rate limit wait aborted", err)
		}
	}
	if err := f.smartDelay(ctx, domain); err != nil {
		return nil, cerrors.NewNetwork(domain, "pacing delay aborted", err)
	}

	var lastErr error
	for attempt := 1; attempt <= f.cfg.RetryCount; attempt++ {
		body, done, attemptErr := f.attempt(ctx, rawURL, domain, traceID, attempt)
		if done {
			return body, attemptErr
		}
		lastErr = attemptErr

		if ctx.Err() != nil {
			return nil, cerrors.NewNetwork(domain, "fetch cancelled", ctx.Err())
		}
		if attempt < f.cfg.RetryCount {
			if err := f.sleep(ctx, f.backoff(attempt, attemptErr)); err != nil {
				return nil, cerrors.NewNetwork(domain, "retry wait aborted", err)
			}
		}
	}

	f.log.Debug().
		Str("trace_id", traceID).
		Str("url", rawURL).
		Err(lastErr).
		Msg("Fetch failed after all attempts")
	return nil, lastErr
}

// attempt performs one request. done=true means the result is final and the
// retry loop must stop, whether body or error.
func (f *Fetcher) attempt(ctx context.Context, rawURL, domain, traceID string, attempt int) (body []byte, done bool, err error) {
	var rec *proxy.Record
	if f.cfg.UseProxy && f.proxies != nil {
		rec = f.proxies.Select()
		if rec == nil && f.cfg.RequireProxy {
			// Policy forbids a direct request; count it as a transport failure
			return nil, false, cerrors.NewProxyExhausted(domain)
		}
	}

	client := f.clientFor(rec)
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if reqErr != nil {
		return nil, true, cerrors.NewConfiguration("failed to build request", reqErr)
	}

	f.mu.Lock()
	setRandomHeaders(req, f.rnd)
	f.mu.Unlock()

	start := time.Now()
	resp, doErr := client.Do(req)
	f.markHit(domain)

	if doErr != nil {
		f.reportProxy(rec, false, 0, "transport error")
		return nil, false, cerrors.NewNetwork(domain, "request failed", doErr)
	}
	defer resp.Body.Close()
	rtt := time.Since(start)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		f.reportProxy(rec, true, rtt, "")
		return nil, true, cerrors.NewNotFound(domain, rawURL)

	case resp.StatusCode == http.StatusForbidden:
		// Risk-control systems answer 403 before serving a verification page
		f.reportProxy(rec, false, 0, "http 403")
		return nil, false, cerrors.NewAntiBot(domain, fmt.Sprintf("blocked with status %d", resp.StatusCode))

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		f.reportProxy(rec, true, rtt, "")
		return nil, false, cerrors.NewServer(domain, fmt.Sprintf("status %d", resp.StatusCode), nil)

	case resp.StatusCode != http.StatusOK:
		f.reportProxy(rec, true, rtt, "")
		return nil, false, cerrors.NewServer(domain, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	raw, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		f.reportProxy(rec, false, 0, "body read error")
		return nil, false, cerrors.NewNetwork(domain, "failed to read response body", readErr)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	if IsBlocked(finalURL, raw) {
		f.reportProxy(rec, false, 0, "anti-bot page")
		f.log.Warn().
			Str("trace_id", traceID).
			Str("url", rawURL).
			Int("attempt", attempt).
			Msg("Anti-bot page detected, rotating identity")
		return nil, false, cerrors.NewAntiBot(domain, "verification page served")
	}

	decoded, decErr := toUTF8(raw, resp.Header.Get("Content-Type"))
	if decErr != nil {
		f.reportProxy(rec, true, rtt, "")
		return nil, true, cerrors.NewParsing(domain, "charset conversion failed", decErr)
	}

	f.reportProxy(rec, true, rtt, "")
	return decoded, true, nil
}

// FetchMany fetches all URLs under a bounded concurrency gate. Each slot
// resolves independently; a failed URL yields a nil slot, never aborts the
// batch.
func (f *Fetcher) FetchMany(ctx context.Context, urls []string, concurrency int) [][]byte {
	if concurrency <= 0 {
		concurrency = 5
	}
	results := make([][]byte, len(urls))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			body, err := f.Fetch(ctx, u)
			if err != nil {
				f.log.Debug().Str("url", u).Err(err).Msg("Batch fetch slot failed")
				return
			}
			results[i] = body
		}(i, u)
	}

	wg.Wait()
	return results
}

// clientFor builds an HTTP client, routed through the proxy when given
func (f *Fetcher) clientFor(rec *proxy.Record) *http.Client {
	if rec == nil {
		return &http.Client{Timeout: f.cfg.Timeout}
	}
	return &http.Client{
		Timeout: f.cfg.Timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyURL(rec.URL()),
		},
	}
}

func (f *Fetcher) reportProxy(rec *proxy.Record, ok bool, rtt time.Duration, reason string) {
	if rec == nil || f.proxies == nil {
		return
	}
	if ok {
		f.proxies.ReportSuccess(rec.Key(), rtt)
	} else {
		f.proxies.ReportFailure(rec.Key(), reason)
	}
}

// smartDelay sleeps a random interval in [DelayMin, DelayMax], stretched when
// the previous request to the same domain was very recent
func (f *Fetcher) smartDelay(ctx context.Context, domain string) error {
	if f.cfg.DelayMax <= 0 {
		return nil
	}

	f.mu.Lock()
	last, seen := f.lastHit[domain]
	spread := f.cfg.DelayMax - f.cfg.DelayMin
	delay := f.cfg.DelayMin
	if spread > 0 {
		delay += time.Duration(f.rnd.Int63n(int64(spread)))
	}
	f.mu.Unlock()

	if seen {
		if since := time.Since(last); since < delay {
			delay += delay / 2
		}
	}
	return f.sleep(ctx, delay)
}

// backoff computes the wait before the next attempt. Anti-bot hits get an
// extended cool-down on top of the linear schedule.
func (f *Fetcher) backoff(attempt int, err error) time.Duration {
	f.mu.Lock()
	jitter := time.Duration(f.rnd.Int63n(int64(f.cfg.RetryDelay)/2 + 1))
	f.mu.Unlock()

	wait := f.cfg.RetryDelay*time.Duration(attempt) + jitter
	if cerrors.IsType(err, cerrors.ErrorTypeAntiBot) {
		wait += f.cfg.RetryDelay * 2
	}
	return wait
}

func (f *Fetcher) markHit(domain string) {
	f.mu.Lock()
	f.lastHit[domain] = time.Now()
	f.mu.Unlock()
}

func (f *Fetcher) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// toUTF8 converts the body to UTF-8 based on the Content-Type header and
// byte sniffing; GBK marketplace pages need this before goquery sees them
func toUTF8(body []byte, contentType string) ([]byte, error) {
	enc, name, _ := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" || name == "UTF-8" {
		return body, nil
	}
	reader := enc.NewDecoder().Reader(bytes.NewReader(body))
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return nil, fmt.Errorf("failed to convert body to UTF-8: %w", err)
	}
	return buf.Bytes(), nil
}
