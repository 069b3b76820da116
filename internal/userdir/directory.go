package userdir

import (
	"context"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	pkglog "github.com/weiawesome/wes-io-dm/pkg/log"
)

const presenceLookupLimit = 8

// CachedDirectory is cache-aside over a Source, with live presence merged
// in on every call.
type CachedDirectory struct {
	source   Source
	cache    ProfileCache
	presence PresenceReader
	sf       singleflight.Group
}

// NewCachedDirectory wires the directory. cache and presence may be nil.
func NewCachedDirectory(source Source, cache ProfileCache, presence PresenceReader) *CachedDirectory {
	return &CachedDirectory{source: source, cache: cache, presence: presence}
}

func (d *CachedDirectory) Resolve(ctx context.Context, ids ...string) (map[string]Profile, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return map[string]Profile{}, nil
	}
	l := pkglog.Ctx(ctx)

	profiles := make(map[string]Profile, len(ids))
	missing := ids
	if d.cache != nil {
		hits, miss, err := d.cache.GetMany(ctx, ids)
		if err != nil {
			l.Warn().Err(err).Msg("profile cache get error")
		} else {
			for id, p := range hits {
				profiles[id] = p
			}
			missing = miss
		}
	}

	if len(missing) > 0 {
		v, err, _ := d.sf.Do(strings.Join(missing, ","), func() (any, error) {
			loaded, err := d.source.FindByIDs(ctx, missing)
			if err != nil {
				return nil, err
			}
			if d.cache != nil {
				if err := d.cache.SetMany(ctx, loaded); err != nil {
					l.Warn().Err(err).Msg("profile cache set error")
				}
			}
			return loaded, nil
		})
		if err != nil {
			return nil, err
		}
		for id, p := range v.(map[string]Profile) {
			profiles[id] = p
		}
	}

	d.mergePresence(ctx, profiles)
	return profiles, nil
}

// mergePresence fills IsOnline and LastActive. A failed lookup leaves the
// user shown as offline.
func (d *CachedDirectory) mergePresence(ctx context.Context, profiles map[string]Profile) {
	if d.presence == nil || len(profiles) == 0 {
		return
	}

	ids := make([]string, 0, len(profiles))
	for id := range profiles {
		ids = append(ids, id)
	}

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(presenceLookupLimit)
	for _, id := range ids {
		g.Go(func() error {
			rec, err := d.presence.Get(gCtx, id)
			if err != nil {
				l := pkglog.Ctx(ctx)
				l.Warn().Err(err).Str(pkglog.FieldUserID, id).Msg("presence lookup failed")
				return nil
			}
			mu.Lock()
			p := profiles[id]
			p.IsOnline = rec.IsOnline
			p.LastActive = rec.LastActive
			profiles[id] = p
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

var _ Directory = (*CachedDirectory)(nil)
