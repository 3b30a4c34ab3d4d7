package fetcher

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectBlock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		header http.Header
		body   string
		want   BlockType
	}{
		{"cloudflare 403", 403, http.Header{"Cf-Ray": {"abc"}}, "", BlockCloudflare},
		{"cloudflare 503 server", 503, http.Header{"Server": {"cloudflare"}}, "", BlockCloudflare},
		{"mitigated header", 200, http.Header{"Cf-Mitigated": {"challenge"}}, "", BlockCloudflare},
		{"challenge body", 200, http.Header{}, "<p>Checking your browser before accessing</p>", BlockCloudflare},
		{"captcha body", 200, http.Header{}, "<div>Please solve the hCaptcha</div>", BlockCaptcha},
		{"js shell", 200, http.Header{}, "<noscript>Enable JavaScript</noscript>", BlockJSShell},
		{"meta refresh", 200, http.Header{}, `<meta http-equiv="refresh" content="0">`, BlockJSShell},
		{"normal page", 200, http.Header{}, "<html><h3>Przychodnia</h3></html>", BlockNone},
		{"large page with widget", 200, http.Header{}, strings.Repeat("x", challengeMaxBytes) + "recaptcha", BlockNone},
		{"json mentioning captcha", 200, http.Header{"Content-Type": {"application/json; charset=utf-8"}}, `{"note":"captcha"}`, BlockNone},
		{"problem json mentioning challenge", 200, http.Header{"Content-Type": {"application/problem+json"}}, `{"detail":"checking your browser"}`, BlockNone},
		{"html mentioning captcha", 200, http.Header{"Content-Type": {"text/html; charset=utf-8"}}, `{"note":"captcha"}`, BlockCaptcha},
		{"json behind cloudflare challenge", 403, http.Header{"Cf-Ray": {"abc"}, "Content-Type": {"application/json"}}, "{}", BlockCloudflare},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DetectBlock(tt.status, tt.header, []byte(tt.body)))
		})
	}
}
