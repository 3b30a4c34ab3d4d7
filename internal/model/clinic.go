package model

import (
	"time"
	"unicode/utf8"
)

// Column length limits applied on write.
const (
	MaxDescriptionLen = 500
	MaxURLLen         = 512
	MaxNameLen        = 512
	MaxProfileIDLen   = 64
	MaxNIPLen         = 32
	MaxPersonNameLen  = 256
)

// ClinicStub is the minimal clinic record extracted from a search result card.
type ClinicStub struct {
	Name            string `json:"name"`
	URL             string `json:"url"`
	ProfileID       string `json:"profile_id,omitempty"`
	Specializations string `json:"specializations,omitempty"`
}

// Normalize applies column length limits in place.
func (s *ClinicStub) Normalize() {
	s.URL = Truncate(s.URL, MaxURLLen)
	s.Name = Truncate(s.Name, MaxNameLen)
	s.ProfileID = Truncate(s.ProfileID, MaxProfileIDLen)
}

// Clinic is a deduplicated catalog entity keyed by its canonical URL.
type Clinic struct {
	ID           int64      `json:"id"`
	URL          string     `json:"url"`
	Name         string     `json:"name"`
	ProfileID    string     `json:"profile_id,omitempty"`
	NIP          string     `json:"nip,omitempty"`
	LegalName    string     `json:"legal_name,omitempty"`
	Description  string     `json:"description,omitempty"`
	ReviewCount  *int       `json:"review_count,omitempty"`
	DoctorCount  *int       `json:"doctor_count,omitempty"`
	DiscoveredAt time.Time  `json:"discovered_at"`
	EnrichedAt   *time.Time `json:"enriched_at,omitempty"`
}

// Enriched reports whether the clinic has been enriched.
func (c *Clinic) Enriched() bool {
	return c.EnrichedAt != nil
}

// Location is a physical address of a clinic. Locations exist only for
// enriched clinics.
type Location struct {
	ClinicID     int64    `json:"clinic_id"`
	Address      string   `json:"address"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	FacebookURL  string   `json:"facebook_url,omitempty"`
	InstagramURL string   `json:"instagram_url,omitempty"`
	YouTubeURL   string   `json:"youtube_url,omitempty"`
	LinkedInURL  string   `json:"linkedin_url,omitempty"`
	WebsiteURL   string   `json:"website_url,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are known.
func (l Location) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// Doctor is a practitioner listed by a clinic. ID is the catalog's own id.
type Doctor struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Surname string `json:"surname"`
	URL     string `json:"url,omitempty"`
}

// Enrichment is everything written to a clinic in a single enrichment step.
type Enrichment struct {
	ProfileID   string
	NIP         string
	LegalName   string
	Description string
	ReviewCount *int
	DoctorCount int
	Locations   []Location
	Doctors     []Doctor
}

// Normalize applies column length limits in place.
func (e *Enrichment) Normalize() {
	e.ProfileID = Truncate(e.ProfileID, MaxProfileIDLen)
	e.NIP = Truncate(e.NIP, MaxNIPLen)
	e.LegalName = Truncate(e.LegalName, MaxNameLen)
	e.Description = Truncate(e.Description, MaxDescriptionLen)
	for i := range e.Locations {
		l := &e.Locations[i]
		l.Address = Truncate(l.Address, MaxURLLen)
		l.FacebookURL = Truncate(l.FacebookURL, MaxURLLen)
		l.InstagramURL = Truncate(l.InstagramURL, MaxURLLen)
		l.YouTubeURL = Truncate(l.YouTubeURL, MaxURLLen)
		l.LinkedInURL = Truncate(l.LinkedInURL, MaxURLLen)
		l.WebsiteURL = Truncate(l.WebsiteURL, MaxURLLen)
	}
	for i := range e.Doctors {
		d := &e.Doctors[i]
		d.Name = Truncate(d.Name, MaxPersonNameLen)
		d.Surname = Truncate(d.Surname, MaxPersonNameLen)
		d.URL = Truncate(d.URL, MaxURLLen)
	}
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// ClinicExport is an enriched clinic with its locations and facet names,
// flattened for export.
type ClinicExport struct {
	Clinic
	Locations []Location `json:"locations"`
	Facets    []string   `json:"specializations"`
}

// Stats is a snapshot of store-wide counts.
type Stats struct {
	Facets       int `json:"facets"`
	FacetsDone   int `json:"facets_done"`
	FacetsActive int `json:"facets_in_progress"`
	Clinics      int `json:"clinics"`
	Enriched     int `json:"enriched"`
	Unenriched   int `json:"unenriched"`
	Locations    int `json:"locations"`
	Doctors      int `json:"doctors"`
	FacetLinks   int `json:"facet_links"`
	PagesScraped int `json:"pages_scraped"`
}
