package fetcher

import (
	"mime"
	"net/http"
	"strings"
)

// BlockType describes the kind of anti-bot response detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// challengeMaxBytes is the largest body treated as a possible challenge
// page. Real catalog pages are far larger and may embed captcha widgets.
const challengeMaxBytes = 32 << 10

// DetectBlock reports whether a response that looks successful is actually
// an anti-bot interstitial. Such responses are treated as a failed attempt
// on the tier that served them.
func DetectBlock(status int, header http.Header, body []byte) BlockType {
	if header.Get("cf-mitigated") == "challenge" {
		return BlockCloudflare
	}
	if status == http.StatusForbidden || status == http.StatusServiceUnavailable {
		if header.Get("cf-ray") != "" || strings.EqualFold(header.Get("server"), "cloudflare") {
			return BlockCloudflare
		}
	}

	if len(body) > challengeMaxBytes || isJSON(header.Get("Content-Type")) {
		return BlockNone
	}

	lower := strings.ToLower(string(body))
	switch {
	case strings.Contains(lower, "checking your browser"),
		strings.Contains(lower, "cf-browser-verification"),
		strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge"):
		return BlockCloudflare
	case strings.Contains(lower, "captcha"):
		return BlockCaptcha
	case strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") && len(body) < 2000,
		strings.Contains(lower, `meta http-equiv="refresh"`):
		return BlockJSShell
	}
	return BlockNone
}

// isJSON reports whether contentType names a JSON payload. Body heuristics
// only apply to HTML; JSON feeds may contain any text.
func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}
