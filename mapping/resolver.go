package mapping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bluesky-social/lidmap/jid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("lidmap")

// Identifier was not in the expected namespace, or did not parse. Single resolutions return this wrapped; batch and bulk operations log and skip the item.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// No mapping was found after consulting every permitted source. This is a normal outcome, not a failure.
var ErrNotFound = errors.New("mapping not found")

// Committing a batch of mappings to the store failed. Nothing from the batch was written to the cache.
var ErrStoreTransaction = errors.New("mapping store transaction failed")

// External lookup failed (transport, timeout, bad response). Recovered inside the resolver; returned by LookupFunc implementations.
var ErrLookupFailed = errors.New("external lookup failed")

// How long a caller waits on another caller's in-flight external lookup for the same PN before re-checking the cache.
const DefaultInflightWait = 100 * time.Millisecond

// One answer from an external directory. LID is a full identifier (eg "1234:5@lid"), only meaningful when Exists is true.
type LookupResult struct {
	Exists bool   `json:"exists"`
	LID    string `json:"lid,omitempty"`
}

// Asks an external directory for the LID of a PN identifier. May be slow, and may fail; it is only called when nothing is known locally. Implementations own any retry policy.
type LookupFunc func(ctx context.Context, pn string) ([]LookupResult, error)

type Config struct {
	// store collection for mapping records. Defaults to DefaultCollection
	Collection string
	// pre-constructed cache. If nil, one is created from CacheConfig. Either way, the resolver owns it and closes it on Close
	Cache *ExpiringCache
	// if nil, DefaultCacheConfig() is used
	CacheConfig *CacheConfig
	// defaults to DefaultInflightWait
	InflightWait time.Duration
	// max number of concurrent resolutions per bulk call; zero means unlimited
	BulkConcurrency int
	// if not nil, every external lookup waits on this limiter first
	ExternalLimiter *rate.Limiter
	Logger          *slog.Logger
}

// Resolves PN and LID identifiers to each other, via cache, store, and external lookup.
//
// Safe for concurrent use. Construct with [NewResolver] and release with [Resolver.Close].
type Resolver struct {
	store           KeyValueStore
	lookup          LookupFunc
	cache           *ExpiringCache
	inflight        *InflightTracker
	collection      string
	inflightWait    time.Duration
	bulkConcurrency int
	limiter         *rate.Limiter
	logger          *slog.Logger
}

// Options for single and bulk resolution. The zero value is device-aware, uses the cache, and allows external lookup.
type ResolveOptions struct {
	// never call the external lookup, even if nothing is known locally
	SkipExternal bool
	// resolve to device 0 regardless of the input's device
	IgnoreDevice bool
	// neither read nor populate the cache
	SkipCache bool
}

// `lookup` may be nil, in which case no external resolution is attempted.
func NewResolver(store KeyValueStore, lookup LookupFunc, config Config) *Resolver {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collection := config.Collection
	if collection == "" {
		collection = DefaultCollection
	}
	cache := config.Cache
	if cache == nil {
		cc := DefaultCacheConfig()
		if config.CacheConfig != nil {
			cc = *config.CacheConfig
		}
		cache = NewExpiringCache(cc)
	}
	wait := config.InflightWait
	if wait <= 0 {
		wait = DefaultInflightWait
	}
	return &Resolver{
		store:           store,
		lookup:          lookup,
		cache:           cache,
		inflight:        NewInflightTracker(),
		collection:      collection,
		inflightWait:    wait,
		bulkConcurrency: config.BulkConcurrency,
		limiter:         config.ExternalLimiter,
		logger:          logger.With("component", "lidmap"),
	}
}

// Stops background cache maintenance. The resolver should not be used afterwards.
func (r *Resolver) Close() error {
	r.cache.Close()
	return nil
}

type direction struct {
	name         string
	isSource     func(raw string) bool
	sourceName   string
	targetServer string
	cacheKey     func(user string) string
	recordKey    func(user string) RecordKey
	// whether the external lookup can answer this direction
	external bool
}

var pnToLID = direction{
	name:         "pn_to_lid",
	isSource:     jid.IsPN,
	sourceName:   "PN",
	targetServer: jid.ServerLID,
	cacheKey:     pnCacheKey,
	recordKey:    ForwardKey,
	external:     true,
}

var lidToPN = direction{
	name:         "lid_to_pn",
	isSource:     jid.IsLID,
	sourceName:   "LID",
	targetServer: jid.ServerPN,
	cacheKey:     lidCacheKey,
	recordKey:    ReverseKey,
	external:     false,
}

func pnCacheKey(pnUser string) string {
	return "pn:" + pnUser
}

func lidCacheKey(lidUser string) string {
	return "lid:" + lidUser
}

// Resolves a PN identifier (eg "5511999999999:3@s.whatsapp.net") to the corresponding LID identifier, carrying over the input's device (eg "123456789:3@lid").
//
// Returns an error wrapping ErrInvalidIdentifier for input which is not a PN, and ErrNotFound if no mapping is known and external lookup did not find one either.
func (r *Resolver) LIDForPN(ctx context.Context, pn string, opts ResolveOptions) (string, error) {
	return r.resolve(ctx, pn, pnToLID, opts)
}

// Resolves a LID identifier to the corresponding PN identifier, carrying over the input's device. Only the cache and store are consulted.
func (r *Resolver) PNForLID(ctx context.Context, lid string, opts ResolveOptions) (string, error) {
	return r.resolve(ctx, lid, lidToPN, opts)
}

func (r *Resolver) resolve(ctx context.Context, raw string, d direction, opts ResolveOptions) (string, error) {
	ctx, span := tracer.Start(ctx, "resolve")
	defer span.End()
	span.SetAttributes(attribute.String("direction", d.name), attribute.String("jid", raw))

	if !d.isSource(raw) {
		r.logger.Warn("invalid identifier for resolution", "direction", d.name, "jid", raw)
		return "", fmt.Errorf("%w: not a %s identifier: %q", ErrInvalidIdentifier, d.sourceName, raw)
	}
	src, err := jid.Parse(raw)
	if err != nil {
		r.logger.Warn("invalid identifier for resolution", "direction", d.name, "jid", raw, "err", err)
		return "", fmt.Errorf("%w: %w", ErrInvalidIdentifier, err)
	}
	var device uint16
	if !opts.IgnoreDevice {
		device = src.Device
	}

	user, source := r.lookupLocal(ctx, d, src.User, opts)
	if user == "" && d.external && !opts.SkipExternal && r.lookup != nil {
		user = r.fetchExternal(ctx, raw, src.User)
		source = "external"
	}
	if user == "" {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		resolutions.WithLabelValues(d.name, "not_found").Inc()
		r.logger.Debug("no mapping found", "direction", d.name, "jid", raw)
		return "", ErrNotFound
	}

	out := jid.NewDeviceJID(user, device, d.targetServer).String()
	span.SetAttributes(attribute.String("source", source))
	resolutions.WithLabelValues(d.name, source).Inc()
	r.logger.Debug("resolved mapping", "direction", d.name, "jid", raw, "resolved", out, "source", source)
	return out, nil
}

// Checks the cache, then the store. Returns the bare opposite-namespace user and which source answered, or empty strings.
func (r *Resolver) lookupLocal(ctx context.Context, d direction, user string, opts ResolveOptions) (string, string) {
	key := d.cacheKey(user)
	if !opts.SkipCache {
		if v, ok := r.cache.Get(key); ok && v != "" {
			cacheHits.WithLabelValues(d.name).Inc()
			return v, "cache"
		}
		cacheMisses.WithLabelValues(d.name).Inc()
	}

	v := r.readStore(ctx, d.recordKey(user))
	if v == "" {
		return "", ""
	}
	if !opts.SkipCache {
		r.cache.Set(key, v)
	}
	return v, "store"
}

// Read failures are logged and treated as a miss.
func (r *Resolver) readStore(ctx context.Context, key RecordKey) string {
	found, err := r.store.Get(ctx, r.collection, []RecordKey{key})
	if err != nil {
		storeReadErrors.Inc()
		r.logger.Error("failed to read mapping from store", "kind", key.Kind, "user", key.User, "err", err)
		return ""
	}
	return found[key]
}
