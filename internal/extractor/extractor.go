// Package extractor turns fetched marketplace pages into normalized product
// records. One selector-driven engine serves all platforms; each marketplace
// supplies a PlatformConfig.
package extractor

import (
	"bytes"
	"context"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"smartshop/crawler/internal/fetcher"
	"smartshop/crawler/logger"
	cerrors "smartshop/crawler/pkg/errors"
)

// SiteExtractor is the selector-driven extractor engine
type SiteExtractor struct {
	cfg     PlatformConfig
	fetcher *fetcher.Fetcher
	log     *logger.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSiteExtractor creates an extractor for one marketplace
func NewSiteExtractor(cfg PlatformConfig, f *fetcher.Fetcher) *SiteExtractor {
	return &SiteExtractor{
		cfg:     cfg,
		fetcher: f,
		log:     logger.ForPlatform(cfg.Platform),
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Platform returns the marketplace identifier
func (e *SiteExtractor) Platform() string {
	return e.cfg.Platform
}

// Search crawls search result pages 1..maxPages. A page failure after the
// first stops early and returns what was already collected; item-level parse
// problems skip only that item.
func (e *SiteExtractor) Search(ctx context.Context, keyword string, maxPages int) ([]Product, error) {
	if maxPages <= 0 {
		maxPages = 1
	}

	var products []Product
	for page := 1; page <= maxPages; page++ {
		pageURL := e.cfg.searchPageURL(keyword, page)
		body, err := e.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			e.log.Warn().
				Int("page", page).
				Int("collected", len(products)).
				Err(err).
				Msg("Search page fetch failed, returning collected pages")
			break
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			if page == 1 {
				return nil, cerrors.NewParsing(e.cfg.Platform, "search page parse failed", err)
			}
			break
		}

		before := len(products)
		doc.Find(e.cfg.Selectors.ItemList).Each(func(_ int, s *goquery.Selection) {
			if p := e.parseItem(s); p != nil {
				products = append(products, *p)
			}
		})
		e.log.Debug().
			Int("page", page).
			Int("items", len(products)-before).
			Msg("Search page parsed")

		if page < maxPages {
			if err := e.interPageDelay(ctx); err != nil {
				break
			}
		}
	}
	return products, nil
}

// GetDetails fetches and parses one product detail page. A missing product
// (404 or an empty page shell) is nil without error.
func (e *SiteExtractor) GetDetails(ctx context.Context, productID string) (*Product, error) {
	if productID == "" {
		return nil, cerrors.NewConfiguration("empty product id", nil)
	}

	body, err := e.fetcher.Fetch(ctx, e.cfg.detailPageURL(productID))
	if err != nil {
		if cerrors.IsType(err, cerrors.ErrorTypeNotFound) {
			return nil, nil
		}
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, cerrors.NewParsing(e.cfg.Platform, "detail page parse failed", err)
	}

	d := e.cfg.Details
	title := cleanText(doc.Find(d.Title).First().Text())
	if title == "" {
		// Page shell without product content
		return nil, nil
	}

	p := &Product{
		Platform:    e.cfg.Platform,
		ProductID:   productID,
		Title:       title,
		ShopName:    cleanText(doc.Find(d.Shop).First().Text()),
		Brand:       cleanText(doc.Find(d.Brand).First().Text()),
		Description: cleanText(doc.Find(d.Description).First().Text()),
		ProductURL:  e.cfg.detailPageURL(productID),
		Rating:      parseRating(doc.Find(d.Rating).First().Text()),
		CrawlTime:   time.Now(),
	}

	if price := ParsePrice(doc.Find(d.Price).First().Text()); price != nil {
		p.Price = *price
	}
	if orig := ParsePrice(doc.Find(d.OriginalPrice).First().Text()); orig != nil {
		p.OriginalPrice = *orig
	}
	p.DiscountRate = discountRate(p.Price, p.OriginalPrice)

	doc.Find(d.Images).Each(func(_ int, s *goquery.Selection) {
		if src := e.imageSource(s); src != "" {
			p.Images = append(p.Images, src)
		}
	})
	if len(p.Images) > 0 {
		p.ImageURL = p.Images[0]
	}

	if d.SpecRow != "" {
		specs := make(map[string]string)
		doc.Find(d.SpecRow).Each(func(_ int, s *goquery.Selection) {
			name, value := e.specPair(s)
			if name != "" && value != "" {
				specs[name] = value
			}
		})
		if len(specs) > 0 {
			p.Specs = specs
		}
	}

	return p, nil
}

// parseItem extracts one search result item; nil skips the item
func (e *SiteExtractor) parseItem(s *goquery.Selection) *Product {
	sel := e.cfg.Selectors

	titleSel := s.Find(sel.Title)
	title := ""
	if attr, ok := titleSel.Attr("title"); ok && attr != "" {
		title = attr
	} else {
		title = titleSel.Text()
	}
	title = cleanText(title)
	if title == "" {
		return nil
	}

	link := ""
	if href, ok := s.Find(sel.Link).Attr("href"); ok {
		link = e.resolveURL(strings.TrimSpace(href))
	}

	id := e.extractID(s, link)
	if id == "" {
		return nil
	}

	p := &Product{
		Platform:    e.cfg.Platform,
		ProductID:   id,
		Title:       title,
		ShopName:    cleanText(s.Find(sel.Shop).Text()),
		SalesCount:  parseCount(s.Find(sel.Sales).Text()),
		ReviewCount: parseCount(s.Find(sel.Reviews).Text()),
		Rating:      parseRating(s.Find(sel.Rating).Text()),
		ProductURL:  link,
		ImageURL:    e.imageSource(s.Find(sel.Image)),
		CrawlTime:   time.Now(),
	}

	if price := ParsePrice(s.Find(sel.Price).Text()); price != nil {
		p.Price = *price
	}
	if orig := ParsePrice(s.Find(sel.OriginalPrice).Text()); orig != nil {
		p.OriginalPrice = *orig
	}
	p.DiscountRate = discountRate(p.Price, p.OriginalPrice)

	return p
}

// specPair reads one spec row. With name/value selectors configured it uses
// them; otherwise it splits the row text on the first colon, which is how
// flat "brand：value" parameter lists are marked up.
func (e *SiteExtractor) specPair(s *goquery.Selection) (string, string) {
	d := e.cfg.Details
	if d.SpecName != "" && d.SpecValue != "" {
		return cleanText(s.Find(d.SpecName).Text()), cleanText(s.Find(d.SpecValue).Text())
	}

	text := cleanText(s.Text())
	for _, sep := range []string{"：", ":"} {
		if idx := strings.Index(text, sep); idx > 0 {
			return cleanText(text[:idx]), cleanText(text[idx+len(sep):])
		}
	}
	return "", ""
}

// extractID tries item attributes first, then the link parsers
func (e *SiteExtractor) extractID(s *goquery.Selection, link string) string {
	for _, attr := range e.cfg.IDAttrs {
		if v, ok := s.Attr(attr); ok && v != "" {
			return v
		}
	}
	if link == "" {
		return ""
	}
	for _, extract := range e.cfg.IDExtractors {
		if id, err := extract(link); err == nil && id != "" {
			return id
		}
	}
	return ""
}

// imageSource handles lazy-loaded images
func (e *SiteExtractor) imageSource(s *goquery.Selection) string {
	for _, attr := range []string{"src", "data-lazy-img", "data-src", "data-original"} {
		if v, ok := s.Attr(attr); ok {
			v = strings.TrimSpace(v)
			if v != "" && v != "done" {
				return e.resolveURL(v)
			}
		}
	}
	return ""
}

func (e *SiteExtractor) resolveURL(link string) string {
	switch {
	case link == "":
		return ""
	case strings.HasPrefix(link, "//"):
		return "https:" + link
	case strings.HasPrefix(link, "/"):
		return e.cfg.BaseURL + link
	default:
		return link
	}
}

func (e *SiteExtractor) interPageDelay(ctx context.Context) error {
	min, max := e.cfg.PageDelayMin, e.cfg.PageDelayMax
	if max <= 0 {
		return nil
	}
	e.mu.Lock()
	delay := min
	if spread := max - min; spread > 0 {
		delay += time.Duration(e.rnd.Int63n(int64(spread)))
	}
	e.mu.Unlock()

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func discountRate(price, original float64) float64 {
	if price <= 0 || original <= 0 || price > original {
		return 0
	}
	return math.Round(price/original*100) / 100
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
