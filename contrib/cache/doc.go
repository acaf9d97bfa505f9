// Package cache caches relationship membership across sessions.
//
// Memory is an in-process linkage.Cache with LRU eviction and TTL. Loader
// wraps any linkage.Loader, stores the member ids it returns and resolves
// them through the identity map on the next load:
//
//	ids := identity.New()
//	cached := cache.NewLoader(sqlLoader, cache.NewMemory(cache.WithMaxSize(64<<20)), ids)
//	sess := graph.NewSession(reg, graph.WithLoader(cached), graph.WithIdentityMap(ids))
//
// Reloads (graph.Relationship.Reload) bypass the lookup and refresh the
// entry. Call Invalidate after writing a relationship to the remote source.
package cache
