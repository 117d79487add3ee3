package fetcher

import (
	"fmt"
	"math/rand"
	"net/http"
	"strings"
)

// Browser identity templates. One family is picked per attempt so retries
// after an anti-bot hit present a different fingerprint.
var (
	userAgents = []string{
		// Chrome / Windows
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		// Chrome / macOS
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
		// Safari / macOS
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
		// Firefox / Windows
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:122.0) Gecko/20100101 Firefox/122.0",
		// Edge / Windows
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
	}

	referers = []string{
		"https://www.baidu.com/",
		"https://www.google.com/",
		"https://www.bing.com/",
	}
)

// setRandomHeaders fills a request with a randomized but realistic header set
func setRandomHeaders(req *http.Request, rnd *rand.Rand) {
	req.Header.Set("User-Agent", userAgents[rnd.Intn(len(userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Referer", referers[rnd.Intn(len(referers))])
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	req.Header.Set("Sec-Fetch-User", "?1")

	if cookie := syntheticCookie(req.URL.Hostname(), rnd); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
}

// syntheticCookie produces plausible per-platform session cookie values.
// The marketplaces treat a cookieless request as a strong bot signal.
func syntheticCookie(host string, rnd *rand.Rand) string {
	switch {
	case strings.Contains(host, "jd.com"):
		return fmt.Sprintf("__jda=%d.%d; __jdv=%d|direct|-|none|-; shshshfpa=%s",
			122270672, rnd.Int63n(1e15), 122270672, randomHex(rnd, 16))
	case strings.Contains(host, "taobao.com") || strings.Contains(host, "tmall.com"):
		return fmt.Sprintf("t=%s; _tb_token_=%s; cookie2=%s",
			randomHex(rnd, 16), randomHex(rnd, 8), randomHex(rnd, 16))
	case strings.Contains(host, "pinduoduo.com") || strings.Contains(host, "yangkeduo.com"):
		return fmt.Sprintf("api_uid=%s; pdd_user_id=%d",
			randomHex(rnd, 12), rnd.Int63n(1e10))
	default:
		return ""
	}
}

func randomHex(rnd *rand.Rand, n int) string {
	const digits = "0123456789abcdef"
	b := make([]byte, n)
	for i := range b {
		b[i] = digits[rnd.Intn(len(digits))]
	}
	return string(b)
}
