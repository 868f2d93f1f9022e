package session

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mercatto/authd/internal/cache"
	"github.com/mercatto/authd/internal/domain/repository"
	"github.com/mercatto/authd/internal/metrics"
	"github.com/mercatto/authd/internal/observability/logger"
)

// FetchFunc is the canonical lookup invoked on cache miss. It must filter
// soft-deleted rows and join the role. Returning repository.ErrNotFound (or
// any other error) makes the resolve fail closed.
type FetchFunc func(ctx context.Context, realm repository.Realm, id string) (*repository.Identity, error)

// Resolver resolves authentication snapshots through the TTL cache,
// deduplicating concurrent refreshes per key with singleflight.
//
// Cache hits never synchronize. Misses for the same (realm, id) serialize
// through one in-flight canonical fetch; misses for different keys run fully
// in parallel. singleflight clears its in-flight marker on every exit path,
// fetch failure and panic included, so a failed refresh can never deadlock
// later callers.
type Resolver struct {
	cache cache.Cache
	fetch FetchFunc
	ttl   time.Duration
	sf    singleflight.Group
}

func NewResolver(c cache.Cache, fetch FetchFunc, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Resolver{cache: c, fetch: fetch, ttl: ttl}
}

// Resolve returns the snapshot for (realm, id). ok=false means the identity
// could not be established (unknown id, soft-deleted row or a failed
// canonical fetch) and callers must treat the request as not authenticated.
// It never retries within the same request.
func (r *Resolver) Resolve(ctx context.Context, realm repository.Realm, id string) (*Snapshot, bool) {
	key := cacheKey(realm, id)

	if b, ok := r.cache.Get(key); ok {
		var snap Snapshot
		if err := json.Unmarshal(b, &snap); err == nil {
			metrics.SnapshotCacheHits.WithLabelValues(string(realm)).Inc()
			return &snap, true
		}
		// Entrada corrupta: tratar como miss.
		r.cache.Delete(key)
	}
	metrics.SnapshotCacheMisses.WithLabelValues(string(realm)).Inc()

	v, err, _ := r.sf.Do(key, func() (any, error) {
		identity, err := r.fetch(ctx, realm, id)
		if err != nil {
			return nil, err
		}
		snap := FromIdentity(identity)
		if b, err := json.Marshal(snap); err == nil {
			r.cache.Set(key, b, r.ttl)
		}
		return snap, nil
	})
	if err != nil {
		if !repository.IsNotFound(err) {
			metrics.SnapshotRefreshFailures.WithLabelValues(string(realm)).Inc()
			logger.From(ctx).Warn("snapshot refresh failed",
				logger.Component("session.resolver"),
				logger.Realm(string(realm)),
				logger.Err(err),
			)
		}
		return nil, false
	}
	return v.(*Snapshot), true
}

// Invalidate drops the cached snapshot so the next resolve hits canonical
// storage. Called after mutations that must be visible immediately (logout,
// disable).
func (r *Resolver) Invalidate(realm repository.Realm, id string) {
	r.cache.Delete(cacheKey(realm, id))
}
