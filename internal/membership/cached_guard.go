package membership

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/wes-io-dm/internal/roomid"
	pkglog "github.com/weiawesome/wes-io-dm/pkg/log"
)

// CachedGuard answers from the cache and falls back to the source on a
// miss. Concurrent misses for one pair share a single source lookup. A
// cache outage degrades to direct lookups.
type CachedGuard struct {
	source Guard
	cache  Cache
	group  singleflight.Group
}

func NewCachedGuard(source Guard, cache Cache) *CachedGuard {
	return &CachedGuard{source: source, cache: cache}
}

func (g *CachedGuard) IsConnected(ctx context.Context, a, b string) (bool, error) {
	key, err := roomid.Compute(a, b)
	if err != nil {
		return false, err
	}
	l := pkglog.Ctx(ctx)

	connected, hit, err := g.cache.Get(ctx, a, b)
	if err != nil {
		l.Warn().Err(err).Msg("membership cache read failed")
	} else if hit {
		return connected, nil
	}

	v, err, _ := g.group.Do(key, func() (any, error) {
		ok, err := g.source.IsConnected(ctx, a, b)
		if err != nil {
			return false, err
		}
		if err := g.cache.Set(ctx, a, b, ok); err != nil {
			l.Warn().Err(err).Msg("membership cache write failed")
		}
		return ok, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Invalidate drops the cached answer for the pair.
func (g *CachedGuard) Invalidate(ctx context.Context, a, b string) error {
	return g.cache.Invalidate(ctx, a, b)
}

var _ Guard = (*CachedGuard)(nil)
