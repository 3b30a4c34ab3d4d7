// Package registry loads the static list of search facets.
package registry

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/zl-scraper/internal/model"
)

// LoadFacets reads an ordered list of facets from a JSON or YAML file.
// Facets with a non-positive id or an empty name, and repeated ids, are
// rejected.
func LoadFacets(path string) ([]model.Facet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read facets file")
	}
	return ParseFacets(data)
}

// ParseFacets decodes and validates a facet list. JSON input is accepted as
// YAML.
func ParseFacets(data []byte) ([]model.Facet, error) {
	var facets []model.Facet
	if err := yaml.Unmarshal(data, &facets); err != nil {
		return nil, eris.Wrap(err, "registry: unmarshal facets")
	}

	seen := make(map[int]struct{}, len(facets))
	for i := range facets {
		f := &facets[i]
		f.Name = strings.TrimSpace(f.Name)
		if f.ID <= 0 {
			return nil, eris.Errorf("registry: facet %d has invalid id %d", i, f.ID)
		}
		if f.Name == "" {
			return nil, eris.Errorf("registry: facet %d has no name", f.ID)
		}
		if _, dup := seen[f.ID]; dup {
			return nil, eris.Errorf("registry: duplicate facet id %d", f.ID)
		}
		seen[f.ID] = struct{}{}
	}
	return facets, nil
}

// Filter narrows a facet list. Zero values disable a criterion.
type Filter struct {
	Name   string
	ID     int
	Offset int
	Limit  int
}

// Apply returns the facets that pass the filter, applying name, id, offset
// and limit in that order. Name matching is exact.
func (f Filter) Apply(facets []model.Facet) []model.Facet {
	out := make([]model.Facet, 0, len(facets))
	for _, fc := range facets {
		if f.Name != "" && fc.Name != f.Name {
			continue
		}
		if f.ID != 0 && fc.ID != f.ID {
			continue
		}
		out = append(out, fc)
	}
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return out[:0]
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out
}
