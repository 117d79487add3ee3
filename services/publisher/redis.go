package publisher

import (
	"context"
	"encoding/base64"
	"strconv"

	"math/rand"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher implements Publisher using Redis streams
type RedisPublisher struct {
	client           *redis.Client
	ctx              context.Context
	streamPrefix     string
	streamCount      int
	streamMaxLength  int
	priceChangeTopic string
}

// NewRedisPublisher creates a new Redis publisher
func NewRedisPublisher(ctx context.Context, addr string, db int, streamPrefix string, streamCount int, streamMaxLength int, priceChangeTopic string) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	if streamCount <= 0 {
		streamCount = 1
	}
	return &RedisPublisher{
		client:           client,
		ctx:              ctx,
		streamPrefix:     streamPrefix,
		streamCount:      streamCount,
		streamMaxLength:  streamMaxLength,
		priceChangeTopic: priceChangeTopic,
	}
}

// PublishProduct publishes a product record to a sharded Redis stream.
// The message is base64 encoded before publishing.
func (p *RedisPublisher) PublishProduct(platform string, message []byte) error {
	encodedMessage := base64.StdEncoding.EncodeToString(message)

	// random stream shard by streamCount
	// if streamCount is 10, stream name will be stream:0 ~ stream:9
	stream := p.streamPrefix + ":" + strconv.Itoa(rand.Intn(p.streamCount))

	return p.client.XAdd(p.ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			platform: encodedMessage,
		},
	}).Err()
}

// PublishPriceChange publishes a price-change event to the alert channel
func (p *RedisPublisher) PublishPriceChange(message []byte) error {
	return p.client.Publish(p.ctx, p.priceChangeTopic, message).Err()
}

// TrimStreams trims all product streams to the configured maximum length
func (p *RedisPublisher) TrimStreams() error {
	pattern := p.streamPrefix + ":*"
	streams, err := p.client.Keys(p.ctx, pattern).Result()
	if err != nil {
		return err
	}

	for _, stream := range streams {
		err := p.client.XTrimMaxLen(p.ctx, stream, int64(p.streamMaxLength)).Err()
		if err != nil {
			return err
		}
	}
	return nil
}

// Close closes the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
