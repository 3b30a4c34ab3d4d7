package export

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/zl-scraper/internal/model"
)

// BuildFeatures returns one point feature per clinic location with known
// coordinates. Locations without coordinates are skipped.
func BuildFeatures(clinics []model.ClinicExport) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{}}
	for _, c := range clinics {
		for i, l := range c.Locations {
			if !l.HasCoordinates() {
				continue
			}
			props := map[string]interface{}{
				"clinic_id":       c.ID,
				"name":            c.Name,
				"url":             c.URL,
				"address":         l.Address,
				"specializations": c.Facets,
			}
			if c.DoctorCount != nil {
				props["doctor_count"] = *c.DoctorCount
			}
			if l.WebsiteURL != "" {
				props["website_url"] = l.WebsiteURL
			}
			fc.Features = append(fc.Features, &geojson.Feature{
				ID:         strconv.FormatInt(c.ID, 10) + "-" + strconv.Itoa(i),
				Geometry:   geom.NewPointFlat(geom.XY, []float64{*l.Longitude, *l.Latitude}),
				Properties: props,
			})
		}
	}
	return fc
}

// WriteGeoJSON writes clinic locations as a GeoJSON FeatureCollection.
func WriteGeoJSON(w io.Writer, clinics []model.ClinicExport) error {
	data, err := json.Marshal(BuildFeatures(clinics))
	if err != nil {
		return eris.Wrap(err, "geojson: marshal")
	}
	if _, err := w.Write(data); err != nil {
		return eris.Wrap(err, "geojson: write")
	}
	return nil
}
