package fetcher

import (
	"context"
	"net/http"
)

// Fetcher retrieves a catalog page.
type Fetcher interface {
	// Fetch performs a GET for url and returns the decoded body of the first
	// successful response.
	Fetch(ctx context.Context, url string) (*Response, error)
}

// Response is a successful page fetch.
type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        string
	// Tier is the proxy tier that served the response.
	Tier Tier
}

// DefaultUserAgent is a desktop browser user agent. The catalog serves
// reduced markup to unknown agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// defaultHeaders returns the headers sent with every request.
func defaultHeaders(userAgent string) http.Header {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	h := make(http.Header)
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	h.Set("Accept-Language", "pl-PL,pl;q=0.9,en;q=0.8")
	return h
}
