package fetcher

import (
	"bytes"
	"strings"
)

// Heuristic markers of bot-verification and risk-control pages. The match is
// best-effort: a hit means back off and rotate identity, a miss means nothing.
var (
	antiBotURLMarkers = []string{
		"captcha",
		"verify",
		"risk_handler",
		"sec.taobao.com",
		"login.jd.com/captcha",
		"punish",
		"security_check",
		"_____tmd_____",
	}

	antiBotBodyMarkers = [][]byte{
		[]byte("captcha"),
		[]byte("verify yourself"),
		[]byte("security verification"),
		[]byte("unusual traffic"),
		[]byte("滑动验证"),
		[]byte("访问验证"),
		[]byte("安全验证"),
		[]byte("请输入验证码"),
		[]byte("风险拦截"),
	}
)

// IsBlocked reports whether the final URL or body looks like an anti-bot page
func IsBlocked(finalURL string, body []byte) bool {
	lowered := strings.ToLower(finalURL)
	for _, marker := range antiBotURLMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}

	loweredBody := bytes.ToLower(body)
	for _, marker := range antiBotBodyMarkers {
		if bytes.Contains(loweredBody, marker) {
			return true
		}
	}
	return false
}
