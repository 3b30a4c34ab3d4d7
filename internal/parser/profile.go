package parser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/zl-scraper/internal/model"
)

const (
	profileRootSelector = "#facility-basic-profile, #facility-premium-profile"
	locationPaneSel     = ".tab-content .tab-pane"
	addressSelector     = "div.d-flex div.d-flex div div div.mr-1"
	mapLinkSelector     = "div.mb-2.mb-md-0 a.map-placeholder"
	reviewsSelector     = "#facility-opinion-stats h2.h3"
	descriptionSel      = "div.about-description.about-content"
	aboutDetailsSel     = `div[data-id="facility-about-us-details"]`
	fiscalNumberSel     = `span[data-test-id="fiscal-number"]`
	fiscalNameSel       = `span[data-test-id="fiscal-name"]`
)

// Profile is the data extracted from a clinic profile page.
type Profile struct {
	ProfileID   string
	NIP         string
	LegalName   string
	Description string
	ReviewCount *int
	Locations   []model.Location
}

// ParseProfile extracts profile fields, addresses with coordinates and the
// per-address social links from a clinic profile page.
func ParseProfile(html string) (*Profile, error) {
	doc, err := newDocument(html)
	if err != nil {
		return nil, err
	}

	root := doc.Find(profileRootSelector).First()
	panes := doc.Find(locationPaneSel)
	about := doc.Find(aboutDetailsSel)
	if root.Length() == 0 && panes.Length() == 0 && about.Length() == 0 {
		return nil, eris.Wrap(ErrMalformed, "no facility profile markup")
	}

	p := &Profile{}
	if id, ok := root.Attr(entityIDAttr); ok {
		p.ProfileID = strings.TrimSpace(id)
	}

	var addresses []string
	panes.Find(addressSelector).Each(func(_ int, s *goquery.Selection) {
		if a := text(s); a != "" {
			addresses = append(addresses, a)
		}
	})

	var coords [][2]*float64
	doc.Find(mapLinkSelector).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		lat, lng, ok := ParseCoordinates(href)
		if !ok {
			coords = append(coords, [2]*float64{})
			return
		}
		coords = append(coords, [2]*float64{&lat, &lng})
	})

	for i, addr := range addresses {
		loc := model.Location{Address: addr}
		if i < len(coords) {
			loc.Latitude, loc.Longitude = coords[i][0], coords[i][1]
		}
		if i < panes.Length() {
			applySocialLinks(&loc, panes.Eq(i))
		}
		p.Locations = append(p.Locations, loc)
	}

	if n, ok := digits(doc.Find(reviewsSelector).First().Text()); ok {
		p.ReviewCount = &n
	}
	p.Description = text(doc.Find(descriptionSel).First())
	p.NIP = text(about.Find(fiscalNumberSel).First())
	p.LegalName = text(about.Find(fiscalNameSel).First())

	return p, nil
}

// applySocialLinks classifies the outbound links of one address pane.
func applySocialLinks(loc *model.Location, pane *goquery.Selection) {
	pane.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		u, err := url.Parse(strings.TrimSpace(href))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return
		}
		host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		target := &loc.WebsiteURL
		switch {
		case hostIs(host, "facebook.com", "fb.com"):
			target = &loc.FacebookURL
		case hostIs(host, "instagram.com"):
			target = &loc.InstagramURL
		case hostIs(host, "youtube.com", "youtu.be"):
			target = &loc.YouTubeURL
		case hostIs(host, "linkedin.com"):
			target = &loc.LinkedInURL
		case hostIs(host, "znanylekarz.pl", "google.com", "goo.gl", "maps.app.goo.gl"):
			return
		}
		if *target == "" {
			*target = u.String()
		}
	})
}

func hostIs(host string, domains ...string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
