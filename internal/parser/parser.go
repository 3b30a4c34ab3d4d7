// Package parser extracts clinic data from catalog HTML and JSON payloads.
// Functions here are pure: no I/O and no retries.
package parser

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// ErrMalformed marks a payload that does not look like the expected page.
var ErrMalformed = eris.New("parser: malformed page")

// DefaultBaseURL resolves relative catalog links.
const DefaultBaseURL = "https://www.znanylekarz.pl"

var coordsRe = regexp.MustCompile(`query=(-?\d+\.\d+),(-?\d+\.\d+)`)

// ParseCoordinates extracts latitude and longitude from a Google Maps link
// of the form ...?query=LAT,LNG. ok is false when the link carries none.
func ParseCoordinates(mapsURL string) (lat, lng float64, ok bool) {
	m := coordsRe.FindStringSubmatch(mapsURL)
	if m == nil {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, 0, false
	}
	lng, err = strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lng, true
}

func newDocument(html string) (*goquery.Document, error) {
	if strings.TrimSpace(html) == "" {
		return nil, eris.Wrap(ErrMalformed, "empty document")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrapf(ErrMalformed, "read document: %v", err)
	}
	return doc, nil
}

// text returns the whitespace-collapsed text of the selection.
func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// absURL resolves href against base. Unparseable hrefs are returned as-is.
func absURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if ref.IsAbs() {
		return ref.String()
	}
	if base == "" {
		base = DefaultBaseURL
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}

var nonDigits = regexp.MustCompile(`\D`)

// digits parses the digits contained in s. ok is false if there are none.
func digits(s string) (int, bool) {
	d := nonDigits.ReplaceAllString(s, "")
	if d == "" {
		return 0, false
	}
	n, err := strconv.Atoi(d)
	if err != nil {
		return 0, false
	}
	return n, true
}
