package httpapi

import (
	"context"
	"errors"
	"strconv"

	"stackpad.org/internal/auth"
	"stackpad.org/internal/cache"
	"stackpad.org/internal/obs"
)

// listScope names the slice of a list a principal may see; it becomes part
// of the cache key so pages are never shared across scopes.
func listScope(p *auth.Principal) string {
	owner, ok := auth.ListScope(p)
	if !ok {
		return ""
	}
	if owner == "" {
		return "all"
	}
	return owner
}

// listKey builds the cache key for a paged list response. Returns "" when
// caching is off, which callers treat as a pass-through.
func (a *API) listKey(kind, scope string, limit, offset int) string {
	if a.rcache == nil {
		return ""
	}
	return a.rcache.Key(kind, scope, strconv.Itoa(limit), strconv.Itoa(offset))
}

// cacheGet reports whether out was filled from the cache. Redis failures
// degrade to a miss so reads never depend on the cache being up.
func (a *API) cacheGet(ctx context.Context, key string, out any) bool {
	if key == "" {
		return false
	}
	err := a.rcache.Get(ctx, key, out)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrMiss) {
		obs.LogRequest(map[string]any{"level": "warn", "msg": "cache read failed", "error": err.Error()})
	}
	return false
}

func (a *API) cachePut(ctx context.Context, key string, v any) {
	if key == "" {
		return
	}
	if err := a.rcache.Set(ctx, key, v); err != nil {
		obs.LogRequest(map[string]any{"level": "warn", "msg": "cache write failed", "error": err.Error()})
	}
}

// invalidate drops every cached page of a list kind after a write.
func (a *API) invalidate(ctx context.Context, kind string) {
	if a.rcache == nil {
		return
	}
	if err := a.rcache.DeleteByPrefix(ctx, a.rcache.Key(kind)); err != nil {
		obs.LogRequest(map[string]any{"level": "warn", "msg": "cache invalidation failed", "error": err.Error()})
	}
}
