package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sells-group/zl-scraper/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFacets_JSON(t *testing.T) {
	path := writeFile(t, "specializations.json", `[
		{"id": 57, "name": "ginekolog"},
		{"id": 12, "name": " ortopeda "}
	]`)

	got, err := LoadFacets(path)
	if err != nil {
		t.Fatalf("LoadFacets() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 facets, got %d", len(got))
	}
	if got[0] != (model.Facet{ID: 57, Name: "ginekolog"}) {
		t.Errorf("unexpected first facet %+v", got[0])
	}
	if got[1].Name != "ortopeda" {
		t.Errorf("expected trimmed name ortopeda, got %q", got[1].Name)
	}
}

func TestLoadFacets_YAML(t *testing.T) {
	path := writeFile(t, "facets.yaml", "- id: 3\n  name: kardiolog\n- id: 4\n  name: dermatolog\n")

	got, err := LoadFacets(path)
	if err != nil {
		t.Fatalf("LoadFacets() error: %v", err)
	}
	if len(got) != 2 || got[1].Name != "dermatolog" {
		t.Errorf("unexpected facets %+v", got)
	}
}

func TestLoadFacets_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"duplicate id", `[{"id": 1, "name": "a"}, {"id": 1, "name": "b"}]`},
		{"zero id", `[{"id": 0, "name": "a"}]`},
		{"empty name", `[{"id": 5, "name": "  "}]`},
		{"not a list", `{"id": 5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "facets.json", tt.content)
			if _, err := LoadFacets(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadFacets_MissingFile(t *testing.T) {
	if _, err := LoadFacets("/nonexistent/facets.json"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFilter_Apply(t *testing.T) {
	facets := []model.Facet{
		{ID: 1, Name: "alergolog"},
		{ID: 2, Name: "chirurg"},
		{ID: 3, Name: "kardiolog"},
		{ID: 4, Name: "ginekolog"},
	}

	tests := []struct {
		name   string
		filter Filter
		want   []int
	}{
		{"none", Filter{}, []int{1, 2, 3, 4}},
		{"name", Filter{Name: "kardiolog"}, []int{3}},
		{"id", Filter{ID: 4}, []int{4}},
		{"name and id disagree", Filter{Name: "kardiolog", ID: 4}, nil},
		{"offset", Filter{Offset: 2}, []int{3, 4}},
		{"offset past end", Filter{Offset: 9}, nil},
		{"limit", Filter{Limit: 2}, []int{1, 2}},
		{"offset then limit", Filter{Offset: 1, Limit: 2}, []int{2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.filter.Apply(facets)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d facets, got %d", len(tt.want), len(got))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("facet %d: expected id %d, got %d", i, id, got[i].ID)
				}
			}
		})
	}
}
