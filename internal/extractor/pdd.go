package extractor

import (
	"net/url"
	"regexp"
	"time"

	"smartshop/crawler/internal/fetcher"
)

var pddGoodsPattern = regexp.MustCompile(`goods_id=(\d+)`)

// PDDConfig returns the selector configuration for Pinduoduo search and
// detail pages (mobile site; the desktop one is a login wall)
func PDDConfig() PlatformConfig {
	return PlatformConfig{
		Platform:  "pdd",
		BaseURL:   "https://mobile.yangkeduo.com",
		SearchURL: "https://mobile.yangkeduo.com/search_result.html?search_key=%s&page=%d",
		DetailURL: "https://mobile.yangkeduo.com/goods.html?goods_id=%s",
		Selectors: Selectors{
			ItemList: "div.goods-item",
			Title:    "div.goods-name",
			Price:    "div.goods-price span.price-num",
			Sales:    "div.goods-sales",
			Image:    "div.goods-img img",
			Link:     "a.goods-link",
		},
		Details: DetailSelectors{
			Title:       "div.goods-title",
			Price:       "div.current-price span.price-value",
			OriginalPrice: "div.market-price",
			Shop:        "div.mall-name",
			Description: "div.goods-desc",
			Images:      "div.goods-gallery img",
			SpecRow:     "div.goods-property div.property-item",
			SpecName:    "span.property-key",
			SpecValue:   "span.property-value",
		},
		IDAttrs: []string{"data-goods-id"},
		IDExtractors: []IDExtractorFunc{
			func(link string) (string, error) {
				if m := pddGoodsPattern.FindStringSubmatch(link); len(m) == 2 {
					return m[1], nil
				}
				u, err := url.Parse(link)
				if err != nil {
					return "", err
				}
				return u.Query().Get("goods_id"), nil
			},
		},
		PageDelayMin: 2 * time.Second,
		PageDelayMax: 4 * time.Second,
	}
}

// NewPDD creates the Pinduoduo extractor
func NewPDD(f *fetcher.Fetcher) *SiteExtractor {
	return NewSiteExtractor(PDDConfig(), f)
}
