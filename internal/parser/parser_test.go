package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchFixture = `<html><body>
<ul class="list-unstyled">
  <li data-eec-entity-id="4411">
    <h3 class="h4 mb-0"><a class="text-body" href="/placowki/centrum-medyczne-alfa"><span> Centrum Medyczne  Alfa </span></a></h3>
    <span data-test-id="doctor-specializations">Ginekolog, Położnik</span>
  </li>
  <li>
    <h3 class="h4 mb-0"><a class="text-body" href="https://www.znanylekarz.pl/placowki/przychodnia-beta"><span>Przychodnia Beta</span></a></h3>
    <span data-test-id="doctor-specializations">Ortopeda</span>
  </li>
</ul>
<ul class="pagination">
  <li><a href="/szukaj?q=&page=1">1</a></li>
  <li><a href="/szukaj?q=&page=2">2</a></li>
  <li><a href="/szukaj?q=&page=14">14</a></li>
  <li><a href="/szukaj?q=&page=2">Następna</a></li>
</ul>
</body></html>`

func TestParseSearchPage(t *testing.T) {
	stubs, err := ParseSearchPage(searchFixture, "https://catalog.test")
	require.NoError(t, err)
	require.Len(t, stubs, 2)

	assert.Equal(t, "Centrum Medyczne Alfa", stubs[0].Name)
	assert.Equal(t, "https://catalog.test/placowki/centrum-medyczne-alfa", stubs[0].URL)
	assert.Equal(t, "4411", stubs[0].ProfileID)
	assert.Equal(t, "Ginekolog, Położnik", stubs[0].Specializations)

	assert.Equal(t, "https://www.znanylekarz.pl/placowki/przychodnia-beta", stubs[1].URL)
	assert.Empty(t, stubs[1].ProfileID)
	assert.Equal(t, "Ortopeda", stubs[1].Specializations)
}

func TestParseSearchPage_NoResults(t *testing.T) {
	stubs, err := ParseSearchPage(`<html><body><p>Brak wyników</p></body></html>`, "")
	require.NoError(t, err)
	assert.Empty(t, stubs)
}

func TestParseSearchPage_Malformed(t *testing.T) {
	_, err := ParseSearchPage("   ", "")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ParseSearchPage(`<h3 class="h4 mb-0"><a class="text-body" href=""></a></h3>`, "")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseTotalPages(t *testing.T) {
	tests := []struct {
		name string
		html string
		want int
	}{
		{"pagination", searchFixture, 14},
		{"no pagination", `<html><body></body></html>`, 1},
		{"text only", `<ul class="pagination"><li><a>3</a></li><li><a>7</a></li></ul>`, 7},
		{"empty", "", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseTotalPages(tt.html))
		})
	}
}

const profileFixture = `<html><body>
<div id="facility-premium-profile" data-eec-entity-id="98765">
  <div class="tab-content">
    <div class="tab-pane">
      <div class="d-flex"><div class="d-flex"><div><div><div class="mr-1">ul. Marszałkowska 1, Warszawa</div></div></div></div></div>
      <div class="mb-2 mb-md-0"><a class="map-placeholder" href="https://www.google.com/maps?query=52.2297,21.0122"></a></div>
      <a href="https://www.facebook.com/centrumalfa">fb</a>
      <a href="https://instagram.com/centrumalfa">ig</a>
      <a href="https://centrumalfa.pl">www</a>
      <a href="/placowki/centrum-medyczne-alfa/opinie">opinie</a>
    </div>
    <div class="tab-pane">
      <div class="d-flex"><div class="d-flex"><div><div><div class="mr-1">ul. Długa 5, Kraków</div></div></div></div></div>
      <div class="mb-2 mb-md-0"><a class="map-placeholder" href="https://www.google.com/maps"></a></div>
      <a href="https://www.linkedin.com/company/alfa">in</a>
      <a href="https://youtu.be/abc">yt</a>
    </div>
  </div>
  <div id="facility-opinion-stats"><h2 class="h3">1 234 opinii</h2></div>
  <div class="about-description about-content">  Nowoczesna   placówka. </div>
  <div data-id="facility-about-us-details">
    <span data-test-id="fiscal-number">525-000-00-00</span>
    <span data-test-id="fiscal-name">Alfa Sp. z o.o.</span>
  </div>
</div>
</body></html>`

func TestParseProfile(t *testing.T) {
	p, err := ParseProfile(profileFixture)
	require.NoError(t, err)

	assert.Equal(t, "98765", p.ProfileID)
	assert.Equal(t, "525-000-00-00", p.NIP)
	assert.Equal(t, "Alfa Sp. z o.o.", p.LegalName)
	assert.Equal(t, "Nowoczesna placówka.", p.Description)
	require.NotNil(t, p.ReviewCount)
	assert.Equal(t, 1234, *p.ReviewCount)

	require.Len(t, p.Locations, 2)
	first := p.Locations[0]
	assert.Equal(t, "ul. Marszałkowska 1, Warszawa", first.Address)
	require.True(t, first.HasCoordinates())
	assert.InDelta(t, 52.2297, *first.Latitude, 1e-9)
	assert.InDelta(t, 21.0122, *first.Longitude, 1e-9)
	assert.Equal(t, "https://www.facebook.com/centrumalfa", first.FacebookURL)
	assert.Equal(t, "https://instagram.com/centrumalfa", first.InstagramURL)
	assert.Equal(t, "https://centrumalfa.pl", first.WebsiteURL)
	assert.Empty(t, first.LinkedInURL)

	second := p.Locations[1]
	assert.Equal(t, "ul. Długa 5, Kraków", second.Address)
	assert.False(t, second.HasCoordinates())
	assert.Equal(t, "https://www.linkedin.com/company/alfa", second.LinkedInURL)
	assert.Equal(t, "https://youtu.be/abc", second.YouTubeURL)
	assert.Empty(t, second.WebsiteURL)
}

func TestParseProfile_Minimal(t *testing.T) {
	p, err := ParseProfile(`<div id="facility-basic-profile" data-eec-entity-id="1"></div>`)
	require.NoError(t, err)
	assert.Equal(t, "1", p.ProfileID)
	assert.Nil(t, p.ReviewCount)
	assert.Empty(t, p.Locations)
}

func TestParseProfile_Malformed(t *testing.T) {
	_, err := ParseProfile(`<html><body><h1>Access denied</h1></body></html>`)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ParseProfile("")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseCoordinates(t *testing.T) {
	tests := []struct {
		in     string
		lat    float64
		lng    float64
		wantOK bool
	}{
		{"https://maps.google.com/?query=50.0614,19.9366", 50.0614, 19.9366, true},
		{"https://maps.google.com/?query=-33.8688,151.2093&z=3", -33.8688, 151.2093, true},
		{"https://maps.google.com/?q=50,19", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tt := range tests {
		lat, lng, ok := ParseCoordinates(tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		assert.InDelta(t, tt.lat, lat, 1e-9, tt.in)
		assert.InDelta(t, tt.lng, lng, 1e-9, tt.in)
	}
}

func TestParseDoctors(t *testing.T) {
	docs, err := ParseDoctors(`[
		{"id": 1001, "name": " Anna ", "surname": "Nowak", "url": "/anna-nowak"},
		{"id": "1002", "name": "Jan", "surname": "Kowalski"},
		"unexpected"
	]`)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, int64(1001), docs[0].ID)
	assert.Equal(t, "Anna", docs[0].Name)
	assert.Equal(t, "https://www.znanylekarz.pl/anna-nowak", docs[0].URL)
	assert.Equal(t, int64(1002), docs[1].ID)
	assert.Empty(t, docs[1].URL)
	assert.Zero(t, docs[2].ID)
}

func TestParseDoctors_NotAList(t *testing.T) {
	docs, err := ParseDoctors(`{"error": "not found"}`)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestParseDoctors_Malformed(t *testing.T) {
	_, err := ParseDoctors(`<html>`)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ParseDoctors("")
	assert.ErrorIs(t, err, ErrMalformed)
}
