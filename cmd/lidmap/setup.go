package main

import (
	"fmt"
	"log/slog"

	"github.com/bluesky-social/lidmap/mapping"
	"github.com/bluesky-social/lidmap/mapping/httplookup"
	"github.com/bluesky-social/lidmap/mapping/pebblestore"
	"github.com/bluesky-social/lidmap/mapping/redisstore"
	"github.com/bluesky-social/lidmap/mapping/sqlstore"
	"github.com/bluesky-social/lidmap/pkg/robusthttp"

	"github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v2"
	"golang.org/x/time/rate"
)

// Everything a command needs, and how to release it.
type backend struct {
	Resolver *mapping.Resolver
	Store    mapping.KeyValueStore
	closers  []func() error
	logger   *slog.Logger
}

func (b *backend) Close() {
	if b.Resolver != nil {
		b.Resolver.Close()
	}
	// release in reverse order of acquisition
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			b.logger.Error("failed to close backend resource", "err", err)
		}
	}
}

func openStore(cctx *cli.Context, logger *slog.Logger) (mapping.KeyValueStore, func() error, error) {
	switch kind := cctx.String("store"); kind {
	case "memory":
		return mapping.NewMemStore(), func() error { return nil }, nil
	case "pebble":
		s, err := pebblestore.Open(cctx.String("pebble-path"), logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "sqlite", "postgres":
		s, err := sqlstore.Open(cctx.String("database-url"), sqlstore.Options{
			MaxConnections: cctx.Int("max-db-connections"),
			Tracing:        cctx.Bool("db-tracing"),
			Logger:         logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "redis":
		s, err := redisstore.New(cctx.String("redis-url"), logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store type: %s", kind)
	}
}

// Builds the external lookup chain from flags. Returns nil if no lookup host is configured.
func openLookup(cctx *cli.Context, store mapping.KeyValueStore, b *backend) (mapping.LookupFunc, error) {
	host := cctx.String("lookup-host")
	if host == "" {
		return nil, nil
	}
	client := httplookup.NewClient(host, robusthttp.WithLogger(b.logger))
	lookup := mapping.LookupFunc(client.Lookup)

	ttl := cctx.Duration("lookup-cache-ttl")
	if ttl <= 0 {
		return lookup, nil
	}
	var rdb *redis.Client
	if cctx.Bool("lookup-cache-redis") {
		if rs, ok := store.(*redisstore.Store); ok {
			rdb = rs.Client()
		} else {
			c, err := redisstore.Connect(cctx.Context, cctx.String("redis-url"))
			if err != nil {
				return nil, err
			}
			b.closers = append(b.closers, c.Close)
			rdb = c
		}
	}
	lc := redisstore.NewLookupCache(lookup, rdb, ttl, cctx.Duration("lookup-cache-miss-ttl"), 50_000)
	return lc.Lookup, nil
}

func openBackend(cctx *cli.Context, logger *slog.Logger) (*backend, error) {
	b := &backend{logger: logger}
	store, closeStore, err := openStore(cctx, logger)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cctx.String("store"), err)
	}
	b.Store = store
	b.closers = append(b.closers, closeStore)

	lookup, err := openLookup(cctx, store, b)
	if err != nil {
		b.Close()
		return nil, err
	}

	var limiter *rate.Limiter
	if rl := cctx.Float64("lookup-rate-limit"); rl > 0 {
		limiter = rate.NewLimiter(rate.Limit(rl), 1)
	}

	b.Resolver = mapping.NewResolver(store, lookup, mapping.Config{
		Collection: cctx.String("collection"),
		CacheConfig: &mapping.CacheConfig{
			Capacity:      cctx.Int("cache-size"),
			TTL:           cctx.Duration("cache-ttl"),
			Resolution:    mapping.DefaultCacheResolution,
			RefreshOnRead: true,
		},
		BulkConcurrency: cctx.Int("bulk-concurrency"),
		ExternalLimiter: limiter,
		Logger:          logger,
	})
	return b, nil
}
