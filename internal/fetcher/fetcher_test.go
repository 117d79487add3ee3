package fetcher

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	cerrors "smartshop/crawler/pkg/errors"
	"smartshop/crawler/services/proxy"
)

// fakeProxySource records reports so tests can assert exactly which ones
// were filed, which the real pool hides behind its counters
type fakeProxySource struct {
	mu        sync.Mutex
	record    *proxy.Record
	successes []string
	failures  []string
}

func (f *fakeProxySource) Select() *proxy.Record {
	if f.record == nil {
		return nil
	}
	snapshot := *f.record
	return &snapshot
}

func (f *fakeProxySource) ReportSuccess(key string, responseTime time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes = append(f.successes, key)
}

func (f *fakeProxySource) ReportFailure(key string, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, reason)
}

// fastConfig keeps retries quick so the tests stay fast
func fastConfig() Config {
	return Config{
		Timeout:    2 * time.Second,
		RetryCount: 3,
		RetryDelay: 10 * time.Millisecond,
	}
}

func TestFetcher_SuccessSetsBrowserIdentity(t *testing.T) {
	var gotUA, gotReferer, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotReferer = r.Header.Get("Referer")
		gotAccept = r.Header.Get("Accept-Language")
		w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer server.Close()

	f := New(fastConfig(), nil, nil)
	body, err := f.Fetch(context.Background(), server.URL)

	assert.NoError(t, err)
	assert.Contains(t, string(body), "ok")
	assert.NotEmpty(t, gotUA, "a browser User-Agent must be sent")
	assert.Contains(t, gotUA, "Mozilla")
	assert.NotEmpty(t, gotReferer)
	assert.Contains(t, gotAccept, "zh-CN")
}

func TestFetcher_NotFoundIsTerminal(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := New(fastConfig(), nil, nil)
	body, err := f.Fetch(context.Background(), server.URL)

	assert.Nil(t, body)
	assert.True(t, cerrors.IsType(err, cerrors.ErrorTypeNotFound))
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests),
		"404 must not be retried")
}

func TestFetcher_ServerErrorRetriesUpToLimit(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := fastConfig()
	f := New(cfg, nil, nil)
	_, err := f.Fetch(context.Background(), server.URL)

	assert.True(t, cerrors.IsType(err, cerrors.ErrorTypeServer))
	assert.Equal(t, int32(cfg.RetryCount), atomic.LoadInt32(&requests))
}

func TestFetcher_RecoversAfterTransientServerError(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("<html>recovered</html>"))
	}))
	defer server.Close()

	f := New(fastConfig(), nil, nil)
	body, err := f.Fetch(context.Background(), server.URL)

	assert.NoError(t, err)
	assert.Contains(t, string(body), "recovered")
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestFetcher_AntiBotPageRotatesAndRetries(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			w.Write([]byte("<html><body>请输入验证码</body></html>"))
			return
		}
		w.Write([]byte("<html><body>real products</body></html>"))
	}))
	defer server.Close()

	// Use the test server itself as the proxy so the proxied transport
	// still reaches the handler
	proxies := &fakeProxySource{record: recordFor(server)}
	cfg := fastConfig()
	cfg.UseProxy = true
	f := New(cfg, proxies, nil)

	body, err := f.Fetch(context.Background(), server.URL)

	assert.NoError(t, err)
	assert.Contains(t, string(body), "real products")
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))

	proxies.mu.Lock()
	defer proxies.mu.Unlock()
	assert.Equal(t, []string{"anti-bot page"}, proxies.failures,
		"the blocked attempt files exactly one failure")
	assert.Len(t, proxies.successes, 1,
		"the clean attempt files exactly one success")
}

func TestFetcher_AntiBotStatusExhaustsRetries(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	cfg := fastConfig()
	f := New(cfg, nil, nil)
	_, err := f.Fetch(context.Background(), server.URL)

	assert.True(t, cerrors.IsType(err, cerrors.ErrorTypeAntiBot))
	assert.Equal(t, int32(cfg.RetryCount), atomic.LoadInt32(&requests))
}

func TestFetcher_RequireProxyWithEmptyPool(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("must not be reached"))
	}))
	defer server.Close()

	cfg := fastConfig()
	cfg.UseProxy = true
	cfg.RequireProxy = true
	f := New(cfg, &fakeProxySource{}, nil)

	_, err := f.Fetch(context.Background(), server.URL)
	assert.True(t, cerrors.IsType(err, cerrors.ErrorTypeProxyExhausted))
}

func TestFetcher_InvalidURL(t *testing.T) {
	f := New(fastConfig(), nil, nil)
	_, err := f.Fetch(context.Background(), "not a url")
	assert.True(t, cerrors.IsType(err, cerrors.ErrorTypeConfiguration))
}

func TestFetcher_ContextCancelStopsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := fastConfig()
	cfg.RetryDelay = time.Second
	f := New(cfg, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := f.Fetch(ctx, server.URL)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFetcher_FetchMany(t *testing.T) {
	var inFlight, peak int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)

		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("page " + r.URL.Path))
	}))
	defer server.Close()

	f := New(fastConfig(), nil, nil)
	urls := []string{
		server.URL + "/a",
		server.URL + "/missing",
		server.URL + "/b",
		server.URL + "/c",
		server.URL + "/d",
		server.URL + "/e",
	}

	results := f.FetchMany(context.Background(), urls, 2)

	assert.Len(t, results, len(urls))
	assert.Contains(t, string(results[0]), "/a")
	assert.Nil(t, results[1], "the failed URL yields a nil slot")
	assert.Contains(t, string(results[5]), "/e")
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2),
		"concurrency gate must bound in-flight requests")
}

func TestIsBlocked(t *testing.T) {
	testCases := []struct {
		name    string
		url     string
		body    string
		blocked bool
	}{
		{"clean page", "https://item.jd.com/1.html", "<html>product</html>", false},
		{"captcha redirect", "https://passport.jd.com/captcha?return=x", "<html></html>", true},
		{"risk handler redirect", "https://sec.taobao.com/query.htm", "<html></html>", true},
		{"verification body", "https://item.jd.com/1.html", "<html>请输入验证码</html>", true},
		{"slider body", "https://s.taobao.com/search", "<html>滑动验证</html>", true},
		{"english challenge", "https://example.com/x", "<html>unusual traffic from your network</html>", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.blocked, IsBlocked(tc.url, []byte(tc.body)))
		})
	}
}

// recordFor builds a proxy record that routes through the test server itself;
// plain HTTP proxying forwards the request, so the handler still sees it
func recordFor(server *httptest.Server) *proxy.Record {
	host, portStr, _ := net.SplitHostPort(server.Listener.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return &proxy.Record{Host: host, Port: port, Protocol: "http"}
}
