package pipeline

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/zl-scraper/internal/model"
)

// DefaultExcludedKeywords exclude a specialization when its name contains
// any of them.
var DefaultExcludedKeywords = []string{
	"psychiatra",
	"psycholog",
	"geriatra",
	"fizjo",
	"weterynarz",
	"stomatolog",
	"lekarz rodzinny",
	"położna",
	"logopeda",
	"onkolog",
	"medycyny estetycznej",
	"rehabilitac",
	"biegły sądowy",
	"chirurg",
	"lekarz pierwszego kontaktu",
}

// DefaultMinDoctors is the default doctor count threshold.
const DefaultMinDoctors = 20

// FilterCriteria select enriched clinics worth exporting.
type FilterCriteria struct {
	MinDoctors       int
	ExcludedKeywords []string
}

// FilterResult holds the matched clinics and per-stage rejection counts.
type FilterResult struct {
	TotalEnriched          int
	RejectedDoctors        int
	RejectedSpecialization int
	Matched                []model.ClinicExport
}

// DoctorsInMatched sums the doctor counts of the matched clinics.
func (r *FilterResult) DoctorsInMatched() int {
	n := 0
	for _, c := range r.Matched {
		n += doctorCount(c)
	}
	return n
}

// AvgDoctors is the mean doctor count of the matched clinics.
func (r *FilterResult) AvgDoctors() float64 {
	if len(r.Matched) == 0 {
		return 0
	}
	return float64(r.DoctorsInMatched()) / float64(len(r.Matched))
}

// Coverage counts matched clinics with a NIP, a website and a LinkedIn page.
func (r *FilterResult) Coverage() (withNIP, withWebsite, withLinkedIn int) {
	for _, c := range r.Matched {
		if c.NIP != "" {
			withNIP++
		}
		var site, li bool
		for _, l := range c.Locations {
			site = site || l.WebsiteURL != ""
			li = li || l.LinkedInURL != ""
		}
		if site {
			withWebsite++
		}
		if li {
			withLinkedIn++
		}
	}
	return withNIP, withWebsite, withLinkedIn
}

var polishLower = cases.Lower(language.Polish)

// Excluded reports whether a specialization name contains any keyword,
// ignoring case.
func Excluded(name string, keywords []string) bool {
	lower := polishLower.String(name)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, polishLower.String(kw)) {
			return true
		}
	}
	return false
}

// PartitionFacets splits facet names into allowed and excluded lists.
func PartitionFacets(facets []model.Facet, keywords []string) (allowed, excluded []string) {
	for _, f := range facets {
		if Excluded(f.Name, keywords) {
			excluded = append(excluded, f.Name)
		} else {
			allowed = append(allowed, f.Name)
		}
	}
	sort.Strings(allowed)
	sort.Strings(excluded)
	return allowed, excluded
}

// FilterClinics keeps clinics with at least MinDoctors doctors and at least
// one specialization not excluded by keyword. Matches are ordered by doctor
// count, largest first.
func FilterClinics(clinics []model.ClinicExport, c FilterCriteria) *FilterResult {
	res := &FilterResult{TotalEnriched: len(clinics), Matched: []model.ClinicExport{}}
	for _, cl := range clinics {
		if doctorCount(cl) < c.MinDoctors {
			res.RejectedDoctors++
			continue
		}
		allowed := false
		for _, name := range cl.Facets {
			if !Excluded(name, c.ExcludedKeywords) {
				allowed = true
				break
			}
		}
		if !allowed {
			res.RejectedSpecialization++
			continue
		}
		res.Matched = append(res.Matched, cl)
	}
	sort.SliceStable(res.Matched, func(i, j int) bool {
		return doctorCount(res.Matched[i]) > doctorCount(res.Matched[j])
	})
	return res
}

func doctorCount(c model.ClinicExport) int {
	if c.DoctorCount == nil {
		return 0
	}
	return *c.DoctorCount
}
