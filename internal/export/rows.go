package export

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/zl-scraper/internal/model"
)

// Row is the flat, one-line-per-clinic export record.
type Row struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	URL             string `json:"url"`
	ProfileID       string `json:"profile_id"`
	NIP             string `json:"nip"`
	LegalName       string `json:"legal_name"`
	Description     string `json:"description"`
	ReviewCount     *int   `json:"review_count"`
	DoctorCount     *int   `json:"doctor_count"`
	Specializations string `json:"specializations"`
	Addresses       string `json:"addresses"`
	Coordinates     string `json:"coordinates"`
	AddressCount    int    `json:"address_count"`
	WebsiteURL      string `json:"website_url"`
	LinkedInURL     string `json:"linkedin_url"`
	DiscoveredAt    string `json:"discovered_at"`
	EnrichedAt      string `json:"enriched_at"`
}

// Header is the column order used by tabular formats.
var Header = []string{
	"id", "name", "url", "profile_id", "nip", "legal_name", "description",
	"review_count", "doctor_count", "specializations", "addresses",
	"coordinates", "address_count", "website_url", "linkedin_url",
	"discovered_at", "enriched_at",
}

const listSep = "; "

// BuildRows flattens clinics into export rows. Multi-valued fields are
// joined with "; ".
func BuildRows(clinics []model.ClinicExport) []Row {
	rows := make([]Row, 0, len(clinics))
	for _, c := range clinics {
		var addrs, coords, sites, linkedins []string
		for _, l := range c.Locations {
			if l.Address != "" {
				addrs = append(addrs, l.Address)
			}
			if l.HasCoordinates() {
				coords = append(coords, formatFloat(*l.Latitude)+","+formatFloat(*l.Longitude))
			}
			sites = appendUnique(sites, l.WebsiteURL)
			linkedins = appendUnique(linkedins, l.LinkedInURL)
		}

		facets := append([]string(nil), c.Facets...)
		sort.Strings(facets)

		row := Row{
			ID:              c.ID,
			Name:            c.Name,
			URL:             c.URL,
			ProfileID:       c.ProfileID,
			NIP:             c.NIP,
			LegalName:       c.LegalName,
			Description:     c.Description,
			ReviewCount:     c.ReviewCount,
			DoctorCount:     c.DoctorCount,
			Specializations: strings.Join(facets, listSep),
			Addresses:       strings.Join(addrs, listSep),
			Coordinates:     strings.Join(coords, listSep),
			AddressCount:    len(c.Locations),
			WebsiteURL:      strings.Join(sites, listSep),
			LinkedInURL:     strings.Join(linkedins, listSep),
			DiscoveredAt:    formatTime(&c.DiscoveredAt),
			EnrichedAt:      formatTime(c.EnrichedAt),
		}
		rows = append(rows, row)
	}
	return rows
}

// Values returns the row's cells in Header order.
func (r Row) Values() []string {
	return []string{
		strconv.FormatInt(r.ID, 10), r.Name, r.URL, r.ProfileID, r.NIP, r.LegalName,
		r.Description, formatIntPtr(r.ReviewCount), formatIntPtr(r.DoctorCount),
		r.Specializations, r.Addresses, r.Coordinates, strconv.Itoa(r.AddressCount),
		r.WebsiteURL, r.LinkedInURL, r.DiscoveredAt, r.EnrichedAt,
	}
}

func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatIntPtr(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
