package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/zl-scraper/internal/model"
)

const (
	cardLinkSelector  = "h3.h4.mb-0 a.text-body[href]"
	cardSpecSelector  = `span[data-test-id="doctor-specializations"]`
	entityIDAttr      = "data-eec-entity-id"
	paginationLinkSel = "ul.pagination li a"
)

var pageParamRe = regexp.MustCompile(`page=(\d+)`)

// ParseSearchPage extracts clinic stubs from a search results page. Relative
// profile links are resolved against baseURL. A page with no result cards
// yields an empty slice.
func ParseSearchPage(html, baseURL string) ([]model.ClinicStub, error) {
	doc, err := newDocument(html)
	if err != nil {
		return nil, err
	}

	links := doc.Find(cardLinkSelector)
	specs := doc.Find(cardSpecSelector)

	stubs := make([]model.ClinicStub, 0, links.Length())
	links.Each(func(i int, a *goquery.Selection) {
		name := text(a.Find("span").First())
		if name == "" {
			name = text(a)
		}
		href, _ := a.Attr("href")
		u := absURL(baseURL, href)
		if name == "" || u == "" {
			return
		}

		stub := model.ClinicStub{Name: name, URL: u}
		if i < specs.Length() {
			stub.Specializations = text(specs.Eq(i))
		}
		if id, ok := a.Closest("[" + entityIDAttr + "]").Attr(entityIDAttr); ok {
			stub.ProfileID = strings.TrimSpace(id)
		}
		stubs = append(stubs, stub)
	})

	if links.Length() > 0 && len(stubs) == 0 {
		return nil, eris.Wrap(ErrMalformed, "result cards without name or link")
	}
	return stubs, nil
}

// ParseTotalPages returns the highest page number referenced by the
// pagination control, or 1 when the page has none.
func ParseTotalPages(html string) int {
	doc, err := newDocument(html)
	if err != nil {
		return 1
	}

	maxPage := 1
	doc.Find(paginationLinkSel).Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok {
			if m := pageParamRe.FindStringSubmatch(href); m != nil {
				if n, err := strconv.Atoi(m[1]); err == nil && n > maxPage {
					maxPage = n
				}
			}
		}
		if n, err := strconv.Atoi(text(a)); err == nil && n > maxPage {
			maxPage = n
		}
	})
	return maxPage
}
