package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/zl-scraper/internal/fetcher"
	"github.com/sells-group/zl-scraper/internal/model"
	"github.com/sells-group/zl-scraper/internal/registry"
	"github.com/sells-group/zl-scraper/internal/store"
)

func newTestDiscoverer(st store.Store, f fetcher.Fetcher) *Discoverer {
	return NewDiscoverer(st, f, DiscoverConfig{
		BaseURL:     testBaseURL,
		Concurrency: 3,
		Retry:       fastRetry(),
	})
}

func TestSearchURL(t *testing.T) {
	got := SearchURL(testBaseURL+"/", model.Facet{ID: 57, Name: "lekarz rodzinny"}, 2)
	assert.Equal(t,
		"http://catalog.test/szukaj?q=lekarz%20rodzinny&loc=&filters[entity_type][0]=facility&filters[specializations][0]=57&page=2",
		got)
}

func TestDoctorsURL(t *testing.T) {
	assert.Equal(t,
		"https://www.znanylekarz.pl/facility/4411/profile/doctors?filters%5BisSearchIndexable%5D=true",
		DoctorsURL("", "4411"))
}

func TestDiscover_DedupAcrossFacets(t *testing.T) {
	st := newTestStore(t)
	f := newFakeFetcher()
	a := model.Facet{ID: 1, Name: "alergolog"}
	b := model.Facet{ID: 2, Name: "kardiolog"}
	f.serve(SearchURL(testBaseURL, a, 1), searchPage(1, "x"))
	f.serve(SearchURL(testBaseURL, b, 1), searchPage(1, "x", "y"))

	sum, err := newTestDiscoverer(st, f).Run(context.Background(), []model.Facet{a, b}, DiscoverOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.New)
	assert.Equal(t, 1, sum.Duplicate)
	require.Len(t, sum.Facets, 2)
	assert.Equal(t, model.FacetDone, sum.Facets[0].Status)
	assert.Equal(t, model.FacetDone, sum.Facets[1].Status)

	stats, err := st.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Clinics)
	assert.Equal(t, 3, stats.FacetLinks)

	summaries, err := st.FacetSummaries(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, 1, summaries[0].Shared)
}

func TestDiscover_RerunFetchesNothing(t *testing.T) {
	st := newTestStore(t)
	f := newFakeFetcher()
	facet := model.Facet{ID: 12, Name: "ortopeda"}
	for p := 1; p <= 3; p++ {
		f.serve(SearchURL(testBaseURL, facet, p), searchPage(3, "c"+strconv.Itoa(p)))
	}

	d := newTestDiscoverer(st, f)
	first, err := d.Run(context.Background(), []model.Facet{facet}, DiscoverOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, first.New)
	assert.Equal(t, 3, first.PagesOK)
	calls := f.totalCalls()
	assert.Equal(t, 3, calls)

	second, err := d.Run(context.Background(), []model.Facet{facet}, DiscoverOptions{})
	require.NoError(t, err)
	assert.Equal(t, calls, f.totalCalls())
	assert.Equal(t, 1, second.Skipped)
	assert.Zero(t, second.New)
}

func TestDiscover_FailedPageIsSkipped(t *testing.T) {
	st := newTestStore(t)
	f := newFakeFetcher()
	facet := model.Facet{ID: 57, Name: "ginekolog"}
	f.serve(SearchURL(testBaseURL, facet, 1), searchPage(3, "p1a", "p1b"))
	f.failAlways(SearchURL(testBaseURL, facet, 2))
	f.serve(SearchURL(testBaseURL, facet, 3), searchPage(3, "p3a"))

	sum, err := newTestDiscoverer(st, f).Run(context.Background(), []model.Facet{facet}, DiscoverOptions{})
	require.NoError(t, err)
	require.Len(t, sum.Facets, 1)
	res := sum.Facets[0]
	assert.Equal(t, model.FacetDone, res.Status)
	assert.Equal(t, 2, res.PagesOK)
	assert.Equal(t, 1, res.PagesFailed)
	assert.Equal(t, 3, res.New)
	assert.Equal(t, 2, f.callsTo(SearchURL(testBaseURL, facet, 2)))

	p, err := st.GetProgress(context.Background(), 57)
	require.NoError(t, err)
	assert.Equal(t, model.FacetDone, p.Status)
	assert.Equal(t, 3, p.LastPageScraped)

	stats, err := st.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Clinics)
}

func TestDiscover_FirstPageFailureLeavesFacetPending(t *testing.T) {
	st := newTestStore(t)
	f := newFakeFetcher()
	bad := model.Facet{ID: 1, Name: "alergolog"}
	good := model.Facet{ID: 2, Name: "kardiolog"}
	f.failAlways(SearchURL(testBaseURL, bad, 1))
	f.serve(SearchURL(testBaseURL, good, 1), searchPage(1, "k"))

	sum, err := newTestDiscoverer(st, f).Run(context.Background(), []model.Facet{bad, good}, DiscoverOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.PagesFailed)
	assert.Equal(t, 1, sum.New)

	p, err := st.GetProgress(context.Background(), bad.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FacetPending, p.Status)

	p, err = st.GetProgress(context.Background(), good.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FacetDone, p.Status)
}

func TestDiscover_MaxPagesThenResume(t *testing.T) {
	st := newTestStore(t)
	f := newFakeFetcher()
	facet := model.Facet{ID: 3, Name: "kardiolog"}
	for p := 1; p <= 4; p++ {
		f.serve(SearchURL(testBaseURL, facet, p), searchPage(4, "k"+strconv.Itoa(p)))
	}
	d := newTestDiscoverer(st, f)

	capped, err := d.Run(context.Background(), []model.Facet{facet}, DiscoverOptions{MaxPages: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, capped.New)
	assert.Equal(t, model.FacetInProgress, capped.Facets[0].Status)
	assert.Equal(t, 2, capped.Facets[0].LastPage)
	assert.Zero(t, f.callsTo(SearchURL(testBaseURL, facet, 3)))

	rest, err := d.Run(context.Background(), []model.Facet{facet}, DiscoverOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, rest.New)
	assert.Equal(t, model.FacetDone, rest.Facets[0].Status)
	assert.Equal(t, 1, f.callsTo(SearchURL(testBaseURL, facet, 1)))
	assert.Equal(t, 1, f.callsTo(SearchURL(testBaseURL, facet, 4)))
}

func TestDiscover_ResumesCappedDoneFacet(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	facet := model.Facet{ID: 9, Name: "dermatolog"}
	require.NoError(t, st.UpsertFacets(ctx, []model.Facet{facet}))
	total := 3
	require.NoError(t, st.RecordPage(ctx, facet.ID, 1, &total))
	require.NoError(t, st.MarkFacetDone(ctx, facet.ID))

	f := newFakeFetcher()
	f.serve(SearchURL(testBaseURL, facet, 2), searchPage(3, "d2"))
	f.serve(SearchURL(testBaseURL, facet, 3), searchPage(3, "d3"))

	sum, err := newTestDiscoverer(st, f).Run(ctx, []model.Facet{facet}, DiscoverOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.New)
	assert.Zero(t, f.callsTo(SearchURL(testBaseURL, facet, 1)))
	assert.Equal(t, 3, sum.Facets[0].LastPage)
	assert.Equal(t, model.FacetDone, sum.Facets[0].Status)
}

func TestDiscover_FilterSelectsFacets(t *testing.T) {
	st := newTestStore(t)
	f := newFakeFetcher()
	facets := []model.Facet{{ID: 1, Name: "alergolog"}, {ID: 2, Name: "kardiolog"}, {ID: 3, Name: "ortopeda"}}
	for _, fc := range facets {
		f.serve(SearchURL(testBaseURL, fc, 1), searchPage(1, fc.Name+"-clinic"))
	}

	sum, err := newTestDiscoverer(st, f).Run(context.Background(), facets, DiscoverOptions{
		Filter: registry.Filter{Offset: 1, Limit: 1},
	})
	require.NoError(t, err)
	require.Len(t, sum.Facets, 1)
	assert.Equal(t, 2, sum.Facets[0].FacetID)
	assert.Equal(t, 1, f.totalCalls())

	// Every facet is registered even when filtered out.
	summaries, err := st.FacetSummaries(context.Background())
	require.NoError(t, err)
	assert.Len(t, summaries, 3)
}

func TestDiscover_NoFacetsMatched(t *testing.T) {
	st := newTestStore(t)
	f := newFakeFetcher()

	sum, err := newTestDiscoverer(st, f).Run(context.Background(),
		[]model.Facet{{ID: 1, Name: "alergolog"}},
		DiscoverOptions{Filter: registry.Filter{Name: "nonexistent"}})
	require.NoError(t, err)
	assert.Empty(t, sum.Facets)
	assert.Zero(t, f.totalCalls())
}

func TestDiscover_CancelStopsFurtherFacets(t *testing.T) {
	st := newTestStore(t)
	f := newFakeFetcher()
	a := model.Facet{ID: 1, Name: "alergolog"}
	b := model.Facet{ID: 2, Name: "kardiolog"}
	f.serve(SearchURL(testBaseURL, a, 1), searchPage(1, "a"))
	f.serve(SearchURL(testBaseURL, b, 1), searchPage(1, "b"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.onFetch = func(string) { cancel() }

	sum, err := newTestDiscoverer(st, f).Run(ctx, []model.Facet{a, b}, DiscoverOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.totalCalls())
	require.Len(t, sum.Facets, 1)
	assert.Equal(t, model.FacetDone, sum.Facets[0].Status)
	assert.Zero(t, f.callsTo(SearchURL(testBaseURL, b, 1)))

	runs, err := st.ListRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, sum.RunID, runs[0].ID)
	assert.Equal(t, model.RunStatusCancelled, runs[0].Status)
}

func TestDiscover_ThroughWaterfall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/szukaj" {
			http.NotFound(w, r)
			return
		}
		page := r.URL.Query().Get("page")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		switch page {
		case "1":
			_, _ = w.Write([]byte(searchPage(2, "w1", "w2")))
		case "2":
			_, _ = w.Write([]byte(searchPage(2, "w3")))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client, err := fetcher.NewWaterfallClient(fetcher.WaterfallOptions{
		StartTier: fetcher.TierNone,
		Timeout:   2 * time.Second,
	})
	require.NoError(t, err)

	st := newTestStore(t)
	d := NewDiscoverer(st, client, DiscoverConfig{BaseURL: srv.URL, Concurrency: 2, Retry: fastRetry()})
	sum, err := d.Run(context.Background(), []model.Facet{{ID: 5, Name: "pediatra"}}, DiscoverOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.New)
	assert.Equal(t, model.FacetDone, sum.Facets[0].Status)

	unenriched, err := st.UnenrichedEntities(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, unenriched, 3)
	assert.Equal(t, srv.URL+"/placowki/w1", unenriched[0].URL)
}
