// Package resolver maps hierarchical paths (configuration, view, zone,
// block, network, address, location) to remote numeric IDs.
//
// Lookups are layered: a session-scoped negative cache short-circuits
// repeated not-found probes, an in-memory LRU holds short-lived view
// contexts, and a badger-backed disk cache persists positive hits across
// runs. Every cache can be bypassed for correctness-critical runs.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/netgrove/bamsync/internal/logger"
	"github.com/netgrove/bamsync/pkg/bam"
	"github.com/netgrove/bamsync/pkg/metrics"
	"github.com/netgrove/bamsync/pkg/model"
)

// Options tunes the resolver caches.
type Options struct {
	// CacheDir is the disk cache directory. Empty disables the disk layer.
	CacheDir string

	// TTL bounds disk cache entries. Default 1h.
	TTL time.Duration

	// ViewTTL bounds the in-memory view-context cache. Default 5m.
	ViewTTL time.Duration

	// NegativeTTL bounds the not-found cache. Default 5m.
	NegativeTTL time.Duration

	// Bypass disables all cache reads and writes.
	Bypass bool

	// Metrics receives per-layer hit and miss counts. Nil disables
	// instrumentation.
	Metrics *metrics.SyncMetrics
}

func (o *Options) applyDefaults() {
	if o.TTL == 0 {
		o.TTL = time.Hour
	}
	if o.ViewTTL == 0 {
		o.ViewTTL = 5 * time.Minute
	}
	if o.NegativeTTL == 0 {
		o.NegativeTTL = 5 * time.Minute
	}
}

// Resolver resolves canonical paths to entity IDs. Safe for concurrent use.
type Resolver struct {
	client *bam.Client
	opts   Options

	diskMu   sync.Mutex
	disk     *diskCache
	views    *expirable.LRU[string, int64]
	negative *expirable.LRU[string, struct{}]
}

// New creates a resolver over the given client. The disk cache is opened
// lazily on demand, so a resolver for a validate-only run never touches
// the cache directory.
func New(client *bam.Client, opts Options) *Resolver {
	opts.applyDefaults()
	return &Resolver{
		client:   client,
		opts:     opts,
		views:    expirable.NewLRU[string, int64](1024, nil, opts.ViewTTL),
		negative: expirable.NewLRU[string, struct{}](4096, nil, opts.NegativeTTL),
	}
}

// ResolveConfiguration resolves a configuration by name.
func (r *Resolver) ResolveConfiguration(ctx context.Context, name string) (int64, error) {
	key := cacheKey(model.TypeConfiguration, name)
	return r.resolve(ctx, key, func(ctx context.Context) (int64, error) {
		entity, err := r.client.GetConfigurationByName(ctx, name)
		if err != nil {
			return 0, err
		}
		return entity.ID, nil
	})
}

// ResolveView resolves a DNS view inside a configuration. View contexts
// churn during zone migrations, so hits land in the short-lived memory
// cache rather than the disk layer.
func (r *Resolver) ResolveView(ctx context.Context, configuration, view string) (int64, error) {
	key := cacheKey(model.TypeView, configuration, view)

	if !r.opts.Bypass {
		if id, ok := r.views.Get(key); ok {
			r.opts.Metrics.RecordCacheHit("view")
			return id, nil
		}
		if r.isNegative(key) {
			r.opts.Metrics.RecordCacheHit("negative")
			return 0, fmt.Errorf("view %s/%s: %w", configuration, view, bam.ErrNotFound)
		}
		r.opts.Metrics.RecordCacheMiss("view")
	}

	configID, err := r.ResolveConfiguration(ctx, configuration)
	if err != nil {
		return 0, err
	}

	entity, err := r.client.GetViewByName(ctx, configID, view)
	if err != nil {
		r.recordMiss(key, err)
		return 0, err
	}

	if !r.opts.Bypass {
		r.views.Add(key, entity.ID)
	}
	return entity.ID, nil
}

// ResolveZone resolves a zone FQDN within a view.
func (r *Resolver) ResolveZone(ctx context.Context, configuration, view, fqdn string) (int64, error) {
	key := cacheKey(model.TypeDNSZone, configuration, view, model.NormalizeFQDN(fqdn))
	return r.resolve(ctx, key, func(ctx context.Context) (int64, error) {
		viewID, err := r.ResolveView(ctx, configuration, view)
		if err != nil {
			return 0, err
		}
		entity, err := r.client.GetZoneByFQDN(ctx, viewID, fqdn)
		if err != nil {
			return 0, err
		}
		return entity.ID, nil
	})
}

// ResolveBlock resolves a block by CIDR under a configuration.
func (r *Resolver) ResolveBlock(ctx context.Context, configuration, cidr string) (int64, error) {
	key := cacheKey(model.TypeIP4Block, configuration, cidr)
	return r.resolve(ctx, key, func(ctx context.Context) (int64, error) {
		configID, err := r.ResolveConfiguration(ctx, configuration)
		if err != nil {
			return 0, err
		}
		entity, err := r.client.GetBlockByRange(ctx, configID, cidr)
		if err != nil {
			return 0, err
		}
		return entity.ID, nil
	})
}

// ResolveNetwork resolves a network by CIDR under a configuration.
func (r *Resolver) ResolveNetwork(ctx context.Context, configuration, cidr string) (int64, error) {
	key := cacheKey(model.TypeIP4Network, configuration, cidr)
	return r.resolve(ctx, key, func(ctx context.Context) (int64, error) {
		configID, err := r.ResolveConfiguration(ctx, configuration)
		if err != nil {
			return 0, err
		}
		entity, err := r.client.GetNetworkByRange(ctx, configID, cidr)
		if err != nil {
			return 0, err
		}
		return entity.ID, nil
	})
}

// ResolveAddress resolves an address entity by IP under a configuration.
// Addresses are volatile, so positive hits skip the disk layer.
func (r *Resolver) ResolveAddress(ctx context.Context, configuration, address string) (int64, error) {
	key := cacheKey(model.TypeIP4Address, configuration, address)

	if !r.opts.Bypass && r.isNegative(key) {
		r.opts.Metrics.RecordCacheHit("negative")
		return 0, fmt.Errorf("address %s/%s: %w", configuration, address, bam.ErrNotFound)
	}

	configID, err := r.ResolveConfiguration(ctx, configuration)
	if err != nil {
		return 0, err
	}
	entity, err := r.client.GetAddressByIP(ctx, configID, address)
	if err != nil {
		r.recordMiss(key, err)
		return 0, err
	}
	return entity.ID, nil
}

// ResolveLocation resolves a location by its hierarchical code.
func (r *Resolver) ResolveLocation(ctx context.Context, code string) (int64, error) {
	key := cacheKey(model.TypeLocation, code)
	return r.resolve(ctx, key, func(ctx context.Context) (int64, error) {
		entity, err := r.client.ListOne(ctx, "/"+bam.CollectionLocations, bam.ListOptions{
			Filter: bam.BuildFilter(map[string]any{"hierarchicalCode": code}),
		})
		if err != nil {
			return 0, err
		}
		return entity.ID, nil
	})
}

// ResolveNamed resolves an entity by exact name in a top-level collection.
// Used for tag groups, MAC pools, device types, and similar flat kinds.
func (r *Resolver) ResolveNamed(ctx context.Context, typ model.ObjectType, collection, name string) (int64, error) {
	key := cacheKey(typ, name)
	return r.resolve(ctx, key, func(ctx context.Context) (int64, error) {
		entity, err := r.client.ListOne(ctx, "/"+collection, bam.ListOptions{
			Filter: bam.BuildFilter(map[string]any{"name": name}),
		})
		if err != nil {
			return 0, err
		}
		return entity.ID, nil
	})
}

// ResolveNamedUnder resolves an entity by exact name in a parent-scoped
// collection, e.g. a tag inside a tag group.
func (r *Resolver) ResolveNamedUnder(ctx context.Context, typ model.ObjectType, parentCollection string, parentID int64, collection, name string) (int64, error) {
	key := cacheKey(typ, fmt.Sprintf("%s/%d", parentCollection, parentID), name)
	return r.resolve(ctx, key, func(ctx context.Context) (int64, error) {
		entities, err := r.client.ListUnder(ctx, parentCollection, parentID, collection, bam.ListOptions{
			Filter:   bam.BuildFilter(map[string]any{"name": name}),
			MaxItems: 1,
		})
		if err != nil {
			return 0, err
		}
		if len(entities) == 0 {
			return 0, fmt.Errorf("%s %q under %s/%d: %w", typ, name, parentCollection, parentID, bam.ErrNotFound)
		}
		return entities[0].ID, nil
	})
}

// Invalidate drops one cached path from all layers. The executor calls
// this after deleting an entity so later rows re-probe the server.
func (r *Resolver) Invalidate(typ model.ObjectType, parts ...string) {
	key := cacheKey(typ, parts...)
	r.views.Remove(key)
	r.negative.Remove(key)

	r.diskMu.Lock()
	disk := r.disk
	r.diskMu.Unlock()
	if disk != nil {
		if err := disk.delete(key); err != nil {
			logger.Warn("failed to invalidate disk cache entry", "path", key, "error", err)
		}
	}
}

// Flush drops every cache layer, including the persisted disk entries.
func (r *Resolver) Flush() error {
	r.views.Purge()
	r.negative.Purge()

	disk, err := r.openDisk()
	if err != nil {
		return err
	}
	if disk == nil {
		return nil
	}
	return disk.flush()
}

// Close releases the disk cache. The resolver must not be used after.
func (r *Resolver) Close() error {
	r.diskMu.Lock()
	defer r.diskMu.Unlock()
	if r.disk == nil {
		return nil
	}
	err := r.disk.close()
	r.disk = nil
	return err
}

// resolve runs the shared lookup ladder for disk-cacheable kinds.
func (r *Resolver) resolve(ctx context.Context, key string, fetch func(context.Context) (int64, error)) (int64, error) {
	if !r.opts.Bypass {
		if r.isNegative(key) {
			r.opts.Metrics.RecordCacheHit("negative")
			return 0, fmt.Errorf("%s: %w", key, bam.ErrNotFound)
		}
		if disk, err := r.openDisk(); err == nil && disk != nil {
			if id, ok, err := disk.get(key); err == nil && ok {
				r.opts.Metrics.RecordCacheHit("disk")
				return id, nil
			}
		}
		r.opts.Metrics.RecordCacheMiss("disk")
	}

	id, err := fetch(ctx)
	if err != nil {
		r.recordMiss(key, err)
		return 0, err
	}

	if !r.opts.Bypass {
		if disk, derr := r.openDisk(); derr == nil && disk != nil {
			if perr := disk.put(key, id, r.opts.TTL); perr != nil {
				logger.Warn("failed to persist cache entry", "path", key, "error", perr)
			}
		}
	}
	return id, nil
}

func (r *Resolver) isNegative(key string) bool {
	_, ok := r.negative.Get(key)
	return ok
}

// recordMiss remembers a not-found result. Other error kinds are
// transient from the resolver's point of view and are never cached.
func (r *Resolver) recordMiss(key string, err error) {
	if r.opts.Bypass {
		return
	}
	if errors.Is(err, bam.ErrNotFound) {
		r.negative.Add(key, struct{}{})
	}
}

// openDisk opens the badger layer on first use.
func (r *Resolver) openDisk() (*diskCache, error) {
	if r.opts.CacheDir == "" {
		return nil, nil
	}

	r.diskMu.Lock()
	defer r.diskMu.Unlock()
	if r.disk != nil {
		return r.disk, nil
	}

	disk, err := openDiskCache(r.opts.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open resolver cache at %s: %w", r.opts.CacheDir, err)
	}
	r.disk = disk
	return disk, nil
}
