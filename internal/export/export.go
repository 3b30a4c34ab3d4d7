// Package export renders enriched clinics as csv, json, xlsx or geojson.
package export

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/zl-scraper/internal/model"
)

// Format is an output encoding.
type Format string

// Supported formats.
const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatXLSX    Format = "xlsx"
	FormatGeoJSON Format = "geojson"
)

// Formats lists every supported format.
func Formats() []Format {
	return []Format{FormatCSV, FormatJSON, FormatXLSX, FormatGeoJSON}
}

// ParseFormat validates a format name. Empty means csv.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return FormatCSV, nil
	}
	for _, f := range Formats() {
		if string(f) == s {
			return f, nil
		}
	}
	return "", eris.Errorf("export: unknown format %q", s)
}

// Write renders clinics to w in the given format.
func Write(w io.Writer, format Format, clinics []model.ClinicExport) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, BuildRows(clinics))
	case FormatJSON:
		return WriteJSON(w, BuildRows(clinics))
	case FormatXLSX:
		return WriteXLSX(w, BuildRows(clinics))
	case FormatGeoJSON:
		return WriteGeoJSON(w, clinics)
	default:
		return eris.Errorf("export: unknown format %q", format)
	}
}

// WriteFile renders clinics to path, appending the format extension when
// path has none. It returns the path written.
func WriteFile(path string, format Format, clinics []model.ClinicExport) (string, error) {
	if filepath.Ext(path) == "" {
		path += "." + string(format)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", eris.Wrap(err, "export: create file")
	}
	if err := Write(f, format, clinics); err != nil {
		f.Close() //nolint:errcheck
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", eris.Wrap(err, "export: close file")
	}
	return path, nil
}
