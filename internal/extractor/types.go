package extractor

import (
	"context"
	"time"
)

// Product is the normalized, platform-agnostic record all extractors
// converge to. A later crawl supersedes an earlier one by
// (Platform, ProductID); instances are never mutated after creation.
type Product struct {
	Platform      string            `json:"platform"`
	ProductID     string            `json:"product_id"`
	Title         string            `json:"title"`
	Price         float64           `json:"price,omitempty"`
	OriginalPrice float64           `json:"original_price,omitempty"`
	DiscountRate  float64           `json:"discount_rate,omitempty"`
	ShopName      string            `json:"shop_name,omitempty"`
	SalesCount    int               `json:"sales_count,omitempty"`
	ReviewCount   int               `json:"review_count,omitempty"`
	Rating        float64           `json:"rating,omitempty"`
	ImageURL      string            `json:"image_url,omitempty"`
	ProductURL    string            `json:"product_url,omitempty"`
	Brand         string            `json:"brand,omitempty"`
	Description   string            `json:"description,omitempty"`
	Images        []string          `json:"images,omitempty"`
	Specs         map[string]string `json:"specs,omitempty"`
	CrawlTime     time.Time         `json:"crawl_time"`
}

// Extractor turns raw marketplace pages into normalized product records
type Extractor interface {
	// Platform returns the marketplace identifier (e.g. "jd")
	Platform() string

	// Search crawls up to maxPages of search results for a keyword.
	// Pages collected before a failure are still returned.
	Search(ctx context.Context, keyword string, maxPages int) ([]Product, error)

	// GetDetails fetches one product's detail page; nil means not available
	GetDetails(ctx context.Context, productID string) (*Product, error)
}

// IDExtractorFunc extracts a product id from an item link
type IDExtractorFunc func(link string) (string, error)
