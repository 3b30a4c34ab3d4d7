package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/zl-scraper/internal/model"
)

func exportClinic(id int64, doctors *int, nip string, facets ...string) model.ClinicExport {
	return model.ClinicExport{
		Clinic:    model.Clinic{ID: id, NIP: nip, DoctorCount: doctors},
		Locations: []model.Location{},
		Facets:    facets,
	}
}

func TestExcluded(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"Chirurg naczyniowy", true},
		{"POŁOŻNA", true},
		{"psychoterapeuta", false},
		{"Psycholog dziecięcy", true},
		{"ginekolog", false},
		{"Fizjoterapeuta", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Excluded(tt.name, DefaultExcludedKeywords))
		})
	}
}

func TestPartitionFacets(t *testing.T) {
	allowed, excluded := PartitionFacets([]model.Facet{
		{ID: 1, Name: "kardiolog"},
		{ID: 2, Name: "stomatolog"},
		{ID: 3, Name: "alergolog"},
	}, DefaultExcludedKeywords)
	assert.Equal(t, []string{"alergolog", "kardiolog"}, allowed)
	assert.Equal(t, []string{"stomatolog"}, excluded)
}

func TestFilterClinics(t *testing.T) {
	n := func(v int) *int { return &v }
	clinics := []model.ClinicExport{
		exportClinic(1, n(25), "1", "kardiolog"),
		exportClinic(2, n(5), "", "kardiolog"),
		exportClinic(3, nil, "", "kardiolog"),
		exportClinic(4, n(40), "", "stomatolog", "chirurg"),
		exportClinic(5, n(60), "2", "stomatolog", "ginekolog"),
	}
	clinics[0].Locations = []model.Location{{WebsiteURL: "https://a.pl", LinkedInURL: "https://linkedin.com/a"}}

	res := FilterClinics(clinics, FilterCriteria{MinDoctors: DefaultMinDoctors, ExcludedKeywords: DefaultExcludedKeywords})
	assert.Equal(t, 5, res.TotalEnriched)
	assert.Equal(t, 2, res.RejectedDoctors)
	assert.Equal(t, 1, res.RejectedSpecialization)
	require.Len(t, res.Matched, 2)
	assert.Equal(t, int64(5), res.Matched[0].ID)
	assert.Equal(t, int64(1), res.Matched[1].ID)
	assert.Equal(t, 85, res.DoctorsInMatched())
	assert.InDelta(t, 42.5, res.AvgDoctors(), 1e-9)

	nip, site, li := res.Coverage()
	assert.Equal(t, 2, nip)
	assert.Equal(t, 1, site)
	assert.Equal(t, 1, li)
}

func TestFilterClinics_Empty(t *testing.T) {
	res := FilterClinics(nil, FilterCriteria{MinDoctors: 1})
	assert.Empty(t, res.Matched)
	assert.Zero(t, res.AvgDoctors())
}
