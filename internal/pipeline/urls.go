package pipeline

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/sells-group/zl-scraper/internal/model"
	"github.com/sells-group/zl-scraper/internal/parser"
)

// SearchURL builds the facility search URL for one page of a facet.
func SearchURL(baseURL string, facet model.Facet, page int) string {
	q := strings.ReplaceAll(url.QueryEscape(facet.Name), "+", "%20")
	return baseOrDefault(baseURL) + "/szukaj?q=" + q + "&loc=" +
		"&filters[entity_type][0]=facility" +
		"&filters[specializations][0]=" + strconv.Itoa(facet.ID) +
		"&page=" + strconv.Itoa(page)
}

// DoctorsURL builds the doctors feed URL for a facility profile id.
func DoctorsURL(baseURL, profileID string) string {
	return baseOrDefault(baseURL) + "/facility/" + url.PathEscape(profileID) +
		"/profile/doctors?filters%5BisSearchIndexable%5D=true"
}

func baseOrDefault(baseURL string) string {
	if baseURL == "" {
		baseURL = parser.DefaultBaseURL
	}
	return strings.TrimRight(baseURL, "/")
}
