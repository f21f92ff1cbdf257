package db

import (
	"context"
	"errors"

	"github.com/leolive/onebody/consts"
	"github.com/leolive/onebody/helpers"
	"github.com/leolive/onebody/mailroom"
	"github.com/leolive/onebody/pkg/lookupcache"
)

// CachedDirectory wraps a mailroom.Directory with a lookup cache.
// Not-found results are cached too, with the cache's negative TTL, so a
// burst of mail for a nonexistent address does not hammer the database.
type CachedDirectory struct {
	dir   mailroom.Directory
	cache *lookupcache.Cache
}

func NewCachedDirectory(dir mailroom.Directory, cache *lookupcache.Cache) *CachedDirectory {
	return &CachedDirectory{dir: dir, cache: cache}
}

// lookup funnels every directory method through the cache. A sentinel
// not-found error is a cacheable negative result; anything else is a
// transient failure and bypasses the cache.
func (d *CachedDirectory) lookup(key string, fetch func() (any, error)) (any, error) {
	return d.cache.GetOrFetch(key, func() (any, error, bool) {
		value, err := fetch()
		if err != nil {
			negative := errors.Is(err, consts.ErrSiteNotFound) ||
				errors.Is(err, consts.ErrGroupNotFound) ||
				errors.Is(err, consts.ErrPersonNotFound)
			return nil, err, negative
		}
		return value, nil, false
	})
}

func (d *CachedDirectory) SiteByAlias(ctx context.Context, alias string) (*mailroom.Site, error) {
	v, err := d.lookup(lookupcache.Key("site_alias", helpers.NormalizeAddress(alias)), func() (any, error) {
		return d.dir.SiteByAlias(ctx, alias)
	})
	if err != nil {
		return nil, err
	}
	return v.(*mailroom.Site), nil
}

func (d *CachedDirectory) SiteByID(ctx context.Context, id int64) (*mailroom.Site, error) {
	v, err := d.lookup(lookupcache.Key("site_id", id), func() (any, error) {
		return d.dir.SiteByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*mailroom.Site), nil
}

func (d *CachedDirectory) GroupByAddress(ctx context.Context, siteID int64, localPart string) (*mailroom.Group, error) {
	v, err := d.lookup(lookupcache.Key("group", siteID, helpers.NormalizeAddress(localPart)), func() (any, error) {
		return d.dir.GroupByAddress(ctx, siteID, localPart)
	})
	if err != nil {
		return nil, err
	}
	return v.(*mailroom.Group), nil
}

func (d *CachedDirectory) GroupMemberAddresses(ctx context.Context, groupID int64) ([]string, error) {
	v, err := d.lookup(lookupcache.Key("members", groupID), func() (any, error) {
		return d.dir.GroupMemberAddresses(ctx, groupID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

func (d *CachedDirectory) PersonByEmail(ctx context.Context, siteID int64, address string) (*mailroom.Person, error) {
	v, err := d.lookup(lookupcache.Key("person", siteID, helpers.NormalizeAddress(address)), func() (any, error) {
		return d.dir.PersonByEmail(ctx, siteID, address)
	})
	if err != nil {
		return nil, err
	}
	return v.(*mailroom.Person), nil
}

// personWithSite is the cache value for PersonByAnyEmail, which returns
// two objects.
type personWithSite struct {
	person *mailroom.Person
	site   *mailroom.Site
}

func (d *CachedDirectory) PersonByAnyEmail(ctx context.Context, address string) (*mailroom.Person, *mailroom.Site, error) {
	v, err := d.lookup(lookupcache.Key("sender", helpers.NormalizeAddress(address)), func() (any, error) {
		person, site, err := d.dir.PersonByAnyEmail(ctx, address)
		if err != nil {
			return nil, err
		}
		return &personWithSite{person: person, site: site}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	ps := v.(*personWithSite)
	return ps.person, ps.site, nil
}

func (d *CachedDirectory) PersonByID(ctx context.Context, id int64) (*mailroom.Person, error) {
	v, err := d.lookup(lookupcache.Key("person_id", id), func() (any, error) {
		return d.dir.PersonByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*mailroom.Person), nil
}
