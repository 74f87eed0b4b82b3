package pricecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"stock-alerts/internal/model"
)

// RedisOptions configure the shared cache client.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Redis stores quotes as JSON with SETEX semantics.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis dials nothing; the first command establishes the connection.
func NewRedis(opts RedisOptions) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisWithClient(client, opts.TTL)
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Ping verifies connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Get(ctx context.Context, symbol string) (model.Quote, bool, error) {
	data, err := r.client.Get(ctx, Key(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Quote{}, false, nil
	}
	if err != nil {
		return model.Quote{}, false, fmt.Errorf("redis get %s: %w", symbol, err)
	}
	var quote model.Quote
	if err := json.Unmarshal(data, &quote); err != nil {
		// a corrupt entry is a miss; the next write overwrites it
		return model.Quote{}, false, nil
	}
	return quote, true, nil
}

func (r *Redis) Set(ctx context.Context, quote model.Quote) error {
	data, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("marshal quote: %w", err)
	}
	if err := r.client.Set(ctx, Key(quote.Symbol), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", quote.Symbol, err)
	}
	return nil
}

var _ Cache = (*Redis)(nil)
