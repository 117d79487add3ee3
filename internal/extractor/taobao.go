package extractor

import (
	"net/url"
	"regexp"
	"time"

	"smartshop/crawler/internal/fetcher"
)

var taobaoIDPattern = regexp.MustCompile(`[?&]id=(\d+)`)

// TaobaoConfig returns the selector configuration for Taobao search and
// detail pages
func TaobaoConfig() PlatformConfig {
	return PlatformConfig{
		Platform:  "taobao",
		BaseURL:   "https://s.taobao.com",
		SearchURL: "https://s.taobao.com/search?q=%s&s=%d",
		DetailURL: "https://item.taobao.com/item.htm?id=%s",
		Selectors: Selectors{
			ItemList:      "div.item",
			Title:         "div.title a",
			Price:         "div.price strong",
			OriginalPrice: "div.price-ori",
			Shop:          "div.shop a span",
			Sales:         "div.deal-cnt",
			Image:         "div.pic img",
			Link:          "div.title a",
		},
		Details: DetailSelectors{
			Title:         "h3.tb-main-title",
			Price:         "em.tb-rgb-price",
			OriginalPrice: "strong#J_StrPrice em.tb-rgb-price",
			Shop:          "div.tb-shop-name a",
			Brand:         "ul#J_AttrUL li[title]",
			Description:   "div.tb-detail-hd h1",
			Images:        "ul#J_UlThumb img",
			SpecRow:       "ul#J_AttrUL li",
			Rating:        "div.tb-rate-higher em",
		},
		IDAttrs: []string{"data-nid", "data-itemid"},
		IDExtractors: []IDExtractorFunc{
			func(link string) (string, error) {
				if m := taobaoIDPattern.FindStringSubmatch(link); len(m) == 2 {
					return m[1], nil
				}
				u, err := url.Parse(link)
				if err != nil {
					return "", err
				}
				return u.Query().Get("id"), nil
			},
		},
		PageDelayMin: 2 * time.Second,
		PageDelayMax: 5 * time.Second,
	}
}

// NewTaobao creates the Taobao extractor
func NewTaobao(f *fetcher.Fetcher) *SiteExtractor {
	return NewSiteExtractor(TaobaoConfig(), f)
}
