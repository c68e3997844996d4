// Package cache keeps the per-venue slot boards in Redis.  A board is
// stored as one field of a per-date hash so that every write touching a
// date can drop all venues of that date with a single DEL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/court-booking/internal/config"
	"github.com/iliyamo/court-booking/internal/repository"
)

// Loader reads a board from the store on a cache miss.
type Loader func(ctx context.Context, venueID int64, date string) ([]repository.SlotAvailability, error)

// Availability is a read-through cache of slot boards.  With caching
// disabled or no Redis client every call goes to the loader.  Redis errors
// are logged and never fail a request.
type Availability struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	load   Loader
}

func NewAvailability(cfg config.CacheConfig, rdb *redis.Client, load Loader) *Availability {
	if !cfg.Enabled {
		rdb = nil
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Availability{rdb: rdb, ttl: ttl, prefix: cfg.Prefix, load: load}
}

// Key returns the hash key holding every board of date.
func (a *Availability) Key(date string) string {
	return a.prefix + ":slots:" + date
}

// Slots returns the board of venueID on date.  hit reports whether it was
// served from Redis.
func (a *Availability) Slots(ctx context.Context, venueID int64, date string) (slots []repository.SlotAvailability, hit bool, err error) {
	field := strconv.FormatInt(venueID, 10)
	if a.rdb != nil {
		raw, err := a.rdb.HGet(ctx, a.Key(date), field).Bytes()
		switch {
		case err == nil:
			if jerr := json.Unmarshal(raw, &slots); jerr == nil {
				return slots, true, nil
			}
		case !errors.Is(err, redis.Nil):
			log.Printf("cache: read %s failed: %v", a.Key(date), err)
		}
	}

	slots, err = a.load(ctx, venueID, date)
	if err != nil {
		return nil, false, err
	}
	if a.rdb != nil {
		if raw, err := json.Marshal(slots); err == nil {
			key := a.Key(date)
			pipe := a.rdb.TxPipeline()
			pipe.HSet(ctx, key, field, raw)
			pipe.Expire(ctx, key, a.ttl)
			if _, err := pipe.Exec(ctx); err != nil {
				log.Printf("cache: write %s failed: %v", key, err)
			}
		}
	}
	return slots, false, nil
}

// InvalidateDate drops every cached board of date.
func (a *Availability) InvalidateDate(ctx context.Context, date string) {
	if a == nil || a.rdb == nil {
		return
	}
	if err := a.rdb.Del(ctx, a.Key(date)).Err(); err != nil {
		log.Printf("cache: invalidate %s failed: %v", a.Key(date), err)
	}
}
