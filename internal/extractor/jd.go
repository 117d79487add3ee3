package extractor

import (
	"regexp"
	"strings"
	"time"

	"smartshop/crawler/helpers"
	"smartshop/crawler/internal/fetcher"
)

var jdItemPattern = regexp.MustCompile(`item\.jd\.com/(\d+)\.html`)

// JDConfig returns the selector configuration for JD search and detail pages
func JDConfig() PlatformConfig {
	return PlatformConfig{
		Platform:  "jd",
		BaseURL:   "https://search.jd.com",
		SearchURL: "https://search.jd.com/Search?keyword=%s&enc=utf-8&page=%d",
		DetailURL: "https://item.jd.com/%s.html",
		Selectors: Selectors{
			ItemList:      "li.gl-item",
			Title:         "div.p-name a em",
			Price:         "div.p-price strong i",
			OriginalPrice: "div.p-price del",
			Shop:          "div.p-shop a",
			Reviews:       "div.p-commit strong a",
			Image:         "div.p-img img",
			Link:          "div.p-name a",
		},
		Details: DetailSelectors{
			Title:         "div.sku-name",
			Price:         "span.p-price span.price",
			OriginalPrice: "span.p-price-ori del",
			Shop:          "div.J-hove-wrap div.name a",
			Brand:         "ul#parameter-brand li a",
			Description:   "div.news div.item-detail",
			Images:        "div#spec-list img",
			SpecRow:       "ul.parameter2 li",
			Rating:        "div.percent-con",
		},
		IDAttrs: []string{"data-sku", "data-pid"},
		IDExtractors: []IDExtractorFunc{
			func(link string) (string, error) {
				if m := jdItemPattern.FindStringSubmatch(link); len(m) == 2 {
					return m[1], nil
				}
				// Fallback: last path segment without extension
				base := strings.Split(link, "?")[0]
				seg, err := helpers.GetSplitPart(base, "/", 3)
				if err != nil {
					return "", err
				}
				return helpers.TrimExt(seg), nil
			},
		},
		PageDelayMin: 1 * time.Second,
		PageDelayMax: 3 * time.Second,
	}
}

// NewJD creates the JD extractor
func NewJD(f *fetcher.Fetcher) *SiteExtractor {
	return NewSiteExtractor(JDConfig(), f)
}
