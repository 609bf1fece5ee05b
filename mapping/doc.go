/*
Package mapping maintains a bidirectional mapping between phone-number (PN) and linked (LID) user identifiers.

The [Resolver] consults an in-process [ExpiringCache] first, then a persistent [KeyValueStore], and finally (for PN to LID resolution only) an external [LookupFunc]. Concurrent external lookups for the same PN user are de-duplicated with an [InflightTracker]. Freshly learned mappings are written back to both the store and the cache.

The resolver is a local cache over a (possibly shared) store: multiple resolver instances are not kept consistent with each other, and staleness up to the cache TTL is expected.

Store implementations live in sub-packages (pebblestore, redisstore, sqlstore). [MemStore] is an in-memory implementation, mostly useful for tests.
*/
package mapping
