// Package monograph fetches Health Canada DPD product pages and extracts
// product monograph references from them.
package monograph

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/dosevalidator/dpd-enricher/internal/catalog"
)

const (
	anchorHostFragment = "pdf.hres.ca"
	anchorPathFragment = "dpd_pm"
	anchorSuffix       = ".pdf"
)

var (
	pdfPattern  = regexp.MustCompile(`(?i)https?://pdf\.hres\.ca/dpd_pm/\d+\.PDF`)
	datePattern = regexp.MustCompile(`(?i)Product Monograph.*?Date:\s*(\d{4}-\d{2}-\d{2})`)
)

// Extract pulls the monograph PDF URL and date out of a product page body.
// Anchor hrefs win over the raw-body pattern scan; the date is extracted
// independently of the URL. Absent values are empty strings, never errors.
func Extract(body []byte) catalog.PageInfo {
	var info catalog.PageInfo

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		// Unparseable markup still gets the raw pattern scan.
		if m := pdfPattern.Find(body); m != nil {
			info.PDFURL = string(m)
		}
		return info
	}

	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if isMonographHref(href) {
			info.PDFURL = href
			return false
		}
		return true
	})

	if info.PDFURL == "" {
		if m := pdfPattern.Find(body); m != nil {
			info.PDFURL = string(m)
		}
	}

	text := strings.Join(strings.Fields(doc.Text()), " ")
	if m := datePattern.FindStringSubmatch(text); m != nil {
		info.MonographDate = m[1]
	}

	return info
}

func isMonographHref(href string) bool {
	return strings.Contains(href, anchorHostFragment) &&
		strings.Contains(href, anchorPathFragment) &&
		strings.HasSuffix(strings.ToLower(href), anchorSuffix)
}
