package extractor

import (
	"fmt"
	"net/url"
	"time"
)

// Selectors contains CSS selectors for the search result list
type Selectors struct {
	ItemList      string
	Title         string
	Price         string
	OriginalPrice string
	Shop          string
	Sales         string
	Reviews       string
	Rating        string
	Image         string
	Link          string
}

// DetailSelectors contains CSS selectors for the product detail page
type DetailSelectors struct {
	Title         string
	Price         string
	OriginalPrice string
	Shop          string
	Brand         string
	Description   string
	Images        string
	SpecRow       string
	SpecName      string
	SpecValue     string
	Rating        string
}

// PlatformConfig drives a SiteExtractor for one marketplace
type PlatformConfig struct {
	Platform  string
	BaseURL   string
	SearchURL string // fmt template: keyword, page
	DetailURL string // fmt template: product id

	Selectors Selectors
	Details   DetailSelectors

	// ID extraction fallback chain: item attributes first, then link parsers
	IDAttrs      []string
	IDExtractors []IDExtractorFunc

	PageDelayMin time.Duration
	PageDelayMax time.Duration
}

func (c *PlatformConfig) searchPageURL(keyword string, page int) string {
	return fmt.Sprintf(c.SearchURL, url.QueryEscape(keyword), page)
}

func (c *PlatformConfig) detailPageURL(productID string) string {
	return fmt.Sprintf(c.DetailURL, url.PathEscape(productID))
}
