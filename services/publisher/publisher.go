package publisher

// Publisher hands crawl output to external collaborators: the product stream
// feeds the persistence upsert keyed by (platform, product_id), and price
// changes feed the alerting side.
type Publisher interface {
	// PublishProduct publishes one normalized product record
	PublishProduct(platform string, message []byte) error

	// PublishPriceChange publishes one price-change event
	PublishPriceChange(message []byte) error

	// TrimStreams trims all product streams to the configured maximum length
	TrimStreams() error

	// Close releases the underlying connection
	Close() error
}
