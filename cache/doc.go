// Package cache provides the time-expiring caches TaskMesh uses to avoid
// redundant engine lookups: a generic TTL cache (Cache) and the definition
// cache (DefinitionCache) that parses process definition XML once and serves
// task descriptors from the parsed form.
//
// Expiry is purely time based. Hit/miss counters are maintained for
// observability but never influence eviction.
package cache
