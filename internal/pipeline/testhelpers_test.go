package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/zl-scraper/internal/fetcher"
	"github.com/sells-group/zl-scraper/internal/resilience"
	"github.com/sells-group/zl-scraper/internal/store"
)

const testBaseURL = "http://catalog.test"

// fakeFetcher serves canned bodies by URL and counts calls.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	fail  map[string]bool
	calls map[string]int
	// onFetch, when set, runs after each call is counted.
	onFetch func(url string)
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages: make(map[string]string),
		fail:  make(map[string]bool),
		calls: make(map[string]int),
	}
}

func (f *fakeFetcher) serve(url, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = body
}

func (f *fakeFetcher) failAlways(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[url] = true
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*fetcher.Response, error) {
	if f.onFetch != nil {
		defer f.onFetch(url)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	if f.fail[url] {
		return nil, resilience.NewTransientError(eris.Errorf("fake: %s unavailable", url), 503)
	}
	body, ok := f.pages[url]
	if !ok {
		return nil, eris.Errorf("fake: no page for %s", url)
	}
	return &fetcher.Response{URL: url, StatusCode: 200, Body: body, Tier: fetcher.TierDatacenter}, nil
}

func (f *fakeFetcher) callsTo(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}
}

// searchPage renders a results page listing one card per slug with
// pagination up to total.
func searchPage(total int, slugs ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for _, s := range slugs {
		fmt.Fprintf(&b,
			`<li><h3 class="h4 mb-0"><a class="text-body" href="/placowki/%s"><span>%s</span></a></h3>`+
				`<span data-test-id="doctor-specializations">test</span></li>`, s, s)
	}
	b.WriteString("</ul>")
	if total > 1 {
		b.WriteString(`<ul class="pagination">`)
		for p := 1; p <= total; p++ {
			fmt.Fprintf(&b, `<li><a href="/szukaj?page=%d">%d</a></li>`, p, p)
		}
		b.WriteString("</ul>")
	}
	b.WriteString("</body></html>")
	return b.String()
}

// profilePage renders a profile page with one address.
func profilePage(profileID, address string) string {
	return fmt.Sprintf(`<html><body>
<div id="facility-basic-profile" data-eec-entity-id="%s">
  <div class="tab-content"><div class="tab-pane">
    <div class="d-flex"><div class="d-flex"><div><div><div class="mr-1">%s</div></div></div></div></div>
    <div class="mb-2 mb-md-0"><a class="map-placeholder" href="https://maps.google.com/?query=52.23,21.01"></a></div>
    <a href="https://example-clinic.pl">www</a>
  </div></div>
  <div id="facility-opinion-stats"><h2 class="h3">42 opinie</h2></div>
  <div class="about-description about-content">Opis placówki</div>
  <div data-id="facility-about-us-details">
    <span data-test-id="fiscal-number">1234567890</span>
    <span data-test-id="fiscal-name">Clinic Sp. z o.o.</span>
  </div>
</div></body></html>`, profileID, address)
}

func clinicURL(slug string) string {
	return testBaseURL + "/placowki/" + slug
}
