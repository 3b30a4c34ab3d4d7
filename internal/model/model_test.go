package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFacetStatusValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status FacetStatus
		want   string
	}{
		{FacetPending, "pending"},
		{FacetInProgress, "in_progress"},
		{FacetDone, "done"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.status))
		})
	}
}

func TestFacetProgress_Capped(t *testing.T) {
	t.Parallel()

	three := 3
	assert.False(t, (*FacetProgress)(nil).Capped())
	assert.False(t, (&FacetProgress{LastPageScraped: 2}).Capped())
	assert.True(t, (&FacetProgress{LastPageScraped: 2, TotalPages: &three}).Capped())
	assert.False(t, (&FacetProgress{LastPageScraped: 3, TotalPages: &three}).Capped())
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "zażó", Truncate("zażółć", 4))
	assert.Equal(t, "abc", Truncate("abc", 0))
}

func TestEnrichment_Normalize(t *testing.T) {
	t.Parallel()

	e := Enrichment{
		Description: strings.Repeat("ą", 600),
		Locations:   []Location{{Address: "ul. Prosta 1", WebsiteURL: "https://x.pl/" + strings.Repeat("a", 600)}},
		Doctors:     []Doctor{{ID: 1, URL: strings.Repeat("u", 700)}},
	}
	e.Normalize()

	assert.Equal(t, MaxDescriptionLen, len([]rune(e.Description)))
	assert.Len(t, e.Locations[0].WebsiteURL, MaxURLLen)
	assert.Equal(t, "ul. Prosta 1", e.Locations[0].Address)
	assert.Len(t, e.Doctors[0].URL, MaxURLLen)
}

func TestEnrichment_NormalizeIdentityFields(t *testing.T) {
	t.Parallel()

	e := Enrichment{
		ProfileID: strings.Repeat("9", 100),
		NIP:       strings.Repeat("1", 40),
		LegalName: strings.Repeat("Ł", 600),
		Doctors:   []Doctor{{ID: 1, Name: strings.Repeat("n", 300), Surname: "Nowak"}},
	}
	e.Normalize()

	assert.Len(t, e.ProfileID, MaxProfileIDLen)
	assert.Len(t, e.NIP, MaxNIPLen)
	assert.Equal(t, MaxNameLen, len([]rune(e.LegalName)))
	assert.Len(t, e.Doctors[0].Name, MaxPersonNameLen)
	assert.Equal(t, "Nowak", e.Doctors[0].Surname)
}

func TestClinicStub_Normalize(t *testing.T) {
	t.Parallel()

	s := ClinicStub{
		Name:      strings.Repeat("ż", 700),
		URL:       "https://www.znanylekarz.pl/placowki/" + strings.Repeat("a", 600),
		ProfileID: strings.Repeat("7", 80),
	}
	s.Normalize()

	assert.Equal(t, MaxNameLen, len([]rune(s.Name)))
	assert.Len(t, s.URL, MaxURLLen)
	assert.Len(t, s.ProfileID, MaxProfileIDLen)
}

func TestClinic_Enriched(t *testing.T) {
	t.Parallel()

	c := Clinic{}
	assert.False(t, c.Enriched())
	now := time.Now()
	c.EnrichedAt = &now
	assert.True(t, c.Enriched())
}

func TestLocation_HasCoordinates(t *testing.T) {
	t.Parallel()

	lat, lng := 52.23, 21.01
	assert.False(t, Location{Latitude: &lat}.HasCoordinates())
	assert.True(t, Location{Latitude: &lat, Longitude: &lng}.HasCoordinates())
}
