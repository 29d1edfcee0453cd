package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	liveQuotePrefix = "stock:live:"
	prevClosePrefix = "stock:prev:"

	prevCloseTTL = 24 * time.Hour
)

// LivePriceStore caches quotes and previous-close prices in Redis so
// restarts and sibling processes stay warm without extra provider calls.
// All methods are best-effort and nil-safe: without Redis the in-memory
// cache simply carries the whole load.
type LivePriceStore struct {
	client *redis.Client
}

// NewLivePriceStore connects to Redis, returning nil if unreachable
func NewLivePriceStore(host, port, password string) *LivePriceStore {
	addr := fmt.Sprintf("%s:%s", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("Failed to connect to Redis at %s, live price store disabled: %v", addr, err)
		return nil
	}

	log.Printf("Connected to Redis at %s", addr)
	return &LivePriceStore{client: client}
}

// CacheQuote stores a quote with the given TTL
func (s *LivePriceStore) CacheQuote(ctx context.Context, q *Quote, ttl time.Duration) error {
	if s == nil || s.client == nil {
		return nil
	}

	data, err := json.Marshal(q)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, liveQuotePrefix+q.Symbol, data, ttl).Err()
}

// GetQuote retrieves a cached quote, returning nil on miss
func (s *LivePriceStore) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	if s == nil || s.client == nil {
		return nil, nil
	}

	val, err := s.client.Get(ctx, liveQuotePrefix+symbol).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var q Quote
	if err := json.Unmarshal([]byte(val), &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// CachePreviousClose stores the previous day's close for 24 hours
func (s *LivePriceStore) CachePreviousClose(ctx context.Context, symbol string, price float64) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Set(ctx, prevClosePrefix+symbol, strconv.FormatFloat(price, 'f', -1, 64), prevCloseTTL).Err()
}

// GetPreviousClose retrieves the cached previous close, ok=false on miss
func (s *LivePriceStore) GetPreviousClose(ctx context.Context, symbol string) (float64, bool) {
	if s == nil || s.client == nil {
		return 0, false
	}

	val, err := s.client.Get(ctx, prevClosePrefix+symbol).Result()
	if err != nil {
		return 0, false
	}
	price, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false
	}
	return price, true
}

// Close closes the Redis connection
func (s *LivePriceStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
