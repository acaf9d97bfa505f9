package cache

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"

	"github.com/syssam/linkage"
)

// member is the cached form of one related record.
type member struct {
	Type string `msgpack:"t"`
	ID   string `msgpack:"i"`
}

// Loader wraps a linkage.Loader and caches the member ids it returns.
// Cached ids are turned back into records through the identity map, so
// every session sharing the cache still sees one instance per id.
//
// Concurrent misses for the same relationship share one call to the
// wrapped loader. Loads marked with linkage.WithReload skip the cache
// lookup and refresh the entry.
type Loader struct {
	next     linkage.Loader
	cache    linkage.Cache
	identity linkage.IdentityMap
	ttl      time.Duration
	logger   *slog.Logger
	group    singleflight.Group
}

// LoaderOption configures the Loader.
type LoaderOption func(*Loader)

// WithTTL sets how long cached membership stays valid. Zero means no expiry.
// Default is 5 minutes.
func WithTTL(d time.Duration) LoaderOption {
	return func(l *Loader) {
		l.ttl = d
	}
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader returns a caching loader in front of next.
//
// Example:
//
//	ids := identity.New()
//	loader := cache.NewLoader(sqlLoader, cache.NewMemory(), ids, cache.WithTTL(time.Minute))
//	sess := graph.NewSession(reg, graph.WithLoader(loader), graph.WithIdentityMap(ids))
func NewLoader(next linkage.Loader, c linkage.Cache, ids linkage.IdentityMap, opts ...LoaderOption) *Loader {
	l := &Loader{
		next:     next,
		cache:    c,
		identity: ids,
		ttl:      5 * time.Minute,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load implements linkage.Loader.
func (l *Loader) Load(ctx context.Context, owner linkage.Record, relationship string) ([]linkage.Record, error) {
	if owner.ID() == "" {
		return l.next.Load(ctx, owner, relationship)
	}
	key := linkage.CacheKeyFor(owner, relationship).String()
	reload := linkage.IsReload(ctx)
	if !reload {
		if records, ok := l.lookup(ctx, key); ok {
			return records, nil
		}
	}
	flight := key
	if reload {
		flight = "reload:" + key
	}
	v, err, _ := l.group.Do(flight, func() (any, error) {
		records, err := l.next.Load(ctx, owner, relationship)
		if err != nil {
			return nil, err
		}
		l.store(ctx, key, records)
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]linkage.Record)), nil
}

// Invalidate drops the cached membership of the owner's relationship.
func (l *Loader) Invalidate(ctx context.Context, owner linkage.Record, relationship string) error {
	return l.cache.Delete(ctx, linkage.CacheKeyFor(owner, relationship).String())
}

// InvalidateRecord drops the cached membership of every relationship of owner.
func (l *Loader) InvalidateRecord(ctx context.Context, owner linkage.Record) error {
	return l.cache.DeletePrefix(ctx, linkage.CacheKeyFor(owner, "").Prefix())
}

func (l *Loader) lookup(ctx context.Context, key string) ([]linkage.Record, bool) {
	data, err := l.cache.Get(ctx, key)
	if err != nil {
		l.logger.WarnContext(ctx, "cache get failed", "key", key, "error", err)
		return nil, false
	}
	if data == nil {
		return nil, false
	}
	var members []member
	if err := msgpack.Unmarshal(data, &members); err != nil {
		l.logger.WarnContext(ctx, "dropping undecodable cache entry", "key", key, "error", err)
		_ = l.cache.Delete(ctx, key)
		return nil, false
	}
	records := make([]linkage.Record, 0, len(members))
	for _, m := range members {
		rec, err := l.identity.Resolve(ctx, m.Type, m.ID)
		if err != nil {
			l.logger.WarnContext(ctx, "cache entry does not resolve", "key", key, "error", err)
			return nil, false
		}
		records = append(records, rec)
	}
	l.logger.DebugContext(ctx, "relationship served from cache", "key", key, "records", len(records))
	return records, true
}

func (l *Loader) store(ctx context.Context, key string, records []linkage.Record) {
	members := make([]member, len(records))
	for i, rec := range records {
		if rec.ID() == "" {
			// Unsaved records cannot be resolved later.
			return
		}
		members[i] = member{Type: rec.TypeName(), ID: rec.ID()}
	}
	data, err := msgpack.Marshal(members)
	if err != nil {
		l.logger.WarnContext(ctx, "cache encode failed", "key", key, "error", err)
		return
	}
	if err := l.cache.Set(ctx, key, data, l.ttl); err != nil {
		l.logger.WarnContext(ctx, "cache set failed", "key", key, "error", err)
	}
}

var _ linkage.Loader = (*Loader)(nil)
