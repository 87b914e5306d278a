package crawler

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ThreadLinkSuffix marks a thread permalink on an index page.
const ThreadLinkSuffix = "/T/#t"

// Extracted holds what one index page links to.
type Extracted struct {
	Links []ThreadLink
	// Next is the raw href of the rel="next" anchor, empty on the last page.
	Next string
}

// ExtractPage finds thread permalinks and the next-page link in an index page.
// Links are returned in page order, duplicates included.
func ExtractPage(body []byte) (Extracted, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Extracted{}, fmt.Errorf("parse index html: %w", err)
	}

	var out Extracted
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if !strings.HasSuffix(href, ThreadLinkSuffix) {
			return
		}
		link, _, _ := strings.Cut(href, "#")
		out.Links = append(out.Links, ThreadLink{
			URL:   link,
			Title: strings.TrimSpace(s.Text()),
		})
	})
	if next := doc.Find(`a[rel="next"]`).First(); next.Length() > 0 {
		out.Next, _ = next.Attr("href")
	}
	return out, nil
}
