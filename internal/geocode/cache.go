package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cached wraps a Resolver with a redis cache. Only successful lookups are
// stored; misses and failures always reach the upstream resolver.
type Cached struct {
	next    Resolver
	redis   *redis.Client
	ttl     time.Duration
	observe func(outcome string)
}

func NewCached(next Resolver, rdb *redis.Client, ttl time.Duration, observe func(outcome string)) *Cached {
	if observe == nil {
		observe = func(string) {}
	}
	return &Cached{next: next, redis: rdb, ttl: ttl, observe: observe}
}

func (c *Cached) Resolve(ctx context.Context, place string) (Place, error) {
	key := cacheKey(place)
	if c.redis != nil {
		raw, err := c.redis.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var p Place
			if jerr := json.Unmarshal(raw, &p); jerr == nil {
				c.observe("hit")
				return p, nil
			}
		case !errors.Is(err, redis.Nil):
			log.Printf("geocode cache get error: %v", err)
		}
	}

	p, err := c.next.Resolve(ctx, place)
	switch {
	case errors.Is(err, ErrNotFound):
		c.observe("not_found")
		return Place{}, err
	case err != nil:
		c.observe("error")
		return Place{}, err
	}
	c.observe("miss")

	if c.redis != nil {
		b, _ := json.Marshal(p)
		if err := c.redis.Set(ctx, key, b, c.ttl).Err(); err != nil {
			log.Printf("geocode cache set error: %v", err)
		}
	}
	return p, nil
}

func cacheKey(place string) string {
	return "geocode:" + strings.ToLower(strings.Join(strings.Fields(place), " "))
}
