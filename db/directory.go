package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/leolive/onebody/consts"
	"github.com/leolive/onebody/helpers"
	"github.com/leolive/onebody/mailroom"
)

// Directory implements mailroom.Directory over the sites, people,
// groups and memberships tables. All lookups are read-only.
type Directory struct {
	db *Database
}

func NewDirectory(db *Database) *Directory {
	return &Directory{db: db}
}

const siteColumns = `id, name, host, COALESCE(secondary_host, ''), noreply_address`

func scanSite(row pgx.Row) (*mailroom.Site, error) {
	var site mailroom.Site
	err := row.Scan(&site.ID, &site.Name, &site.Host, &site.SecondaryHost, &site.NoreplyAddress)
	if err != nil {
		return nil, err
	}
	return &site, nil
}

// SiteByAlias resolves a hostname/alias to its tenant.
func (d *Directory) SiteByAlias(ctx context.Context, alias string) (*mailroom.Site, error) {
	alias = helpers.NormalizeAddress(alias)
	site, err := scanSite(d.db.ReadPool.QueryRow(ctx, `
		SELECT `+siteColumns+`
		FROM sites
		WHERE LOWER(host) = $1 OR LOWER(secondary_host) = $1
	`, alias))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, consts.ErrSiteNotFound
		}
		return nil, fmt.Errorf("failed to look up site by alias: %w", err)
	}
	return site, nil
}

func (d *Directory) SiteByID(ctx context.Context, id int64) (*mailroom.Site, error) {
	site, err := scanSite(d.db.ReadPool.QueryRow(ctx, `
		SELECT `+siteColumns+`
		FROM sites
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, consts.ErrSiteNotFound
		}
		return nil, fmt.Errorf("failed to look up site by id: %w", err)
	}
	return site, nil
}

// GroupByAddress resolves a local part to a group within one site.
func (d *Directory) GroupByAddress(ctx context.Context, siteID int64, localPart string) (*mailroom.Group, error) {
	var group mailroom.Group
	err := d.db.ReadPool.QueryRow(ctx, `
		SELECT id, site_id, name, address
		FROM groups
		WHERE site_id = $1 AND LOWER(address) = $2
	`, siteID, helpers.NormalizeAddress(localPart)).
		Scan(&group.ID, &group.SiteID, &group.Name, &group.Address)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, consts.ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to look up group: %w", err)
	}
	return &group, nil
}

// GroupMemberAddresses expands a group to its members' email addresses.
// Members without an address are skipped; fan-out deduplication happens
// on address, not identity, so duplicates are left to the planner.
func (d *Directory) GroupMemberAddresses(ctx context.Context, groupID int64) ([]string, error) {
	rows, err := d.db.ReadPool.Query(ctx, `
		SELECT p.email
		FROM memberships m
		JOIN people p ON p.id = m.person_id
		WHERE m.group_id = $1 AND p.email IS NOT NULL AND p.email <> ''
		ORDER BY m.id
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to expand group members: %w", err)
	}
	defer rows.Close()

	var addresses []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("failed to scan member address: %w", err)
		}
		addresses = append(addresses, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read member addresses: %w", err)
	}
	return addresses, nil
}

const personColumns = `id, site_id, name, COALESCE(email, ''), COALESCE(mobile_phone, '')`

func scanPerson(row pgx.Row) (*mailroom.Person, error) {
	var p mailroom.Person
	err := row.Scan(&p.ID, &p.SiteID, &p.Name, &p.Email, &p.MobilePhone)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// PersonByEmail resolves a primary email address within one site.
func (d *Directory) PersonByEmail(ctx context.Context, siteID int64, address string) (*mailroom.Person, error) {
	person, err := scanPerson(d.db.ReadPool.QueryRow(ctx, `
		SELECT `+personColumns+`
		FROM people
		WHERE site_id = $1 AND LOWER(email) = $2
		ORDER BY id
		LIMIT 1
	`, siteID, helpers.NormalizeAddress(address)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, consts.ErrPersonNotFound
		}
		return nil, fmt.Errorf("failed to look up person: %w", err)
	}
	return person, nil
}

// PersonByAnyEmail resolves a primary email address across all sites,
// returning the person together with their site. Used for sender
// attribution.
func (d *Directory) PersonByAnyEmail(ctx context.Context, address string) (*mailroom.Person, *mailroom.Site, error) {
	row := d.db.ReadPool.QueryRow(ctx, `
		SELECT p.id, p.site_id, p.name, COALESCE(p.email, ''), COALESCE(p.mobile_phone, ''),
		       s.id, s.name, s.host, COALESCE(s.secondary_host, ''), s.noreply_address
		FROM people p
		JOIN sites s ON s.id = p.site_id
		WHERE LOWER(p.email) = $1
		ORDER BY p.id
		LIMIT 1
	`, helpers.NormalizeAddress(address))

	var p mailroom.Person
	var s mailroom.Site
	err := row.Scan(&p.ID, &p.SiteID, &p.Name, &p.Email, &p.MobilePhone,
		&s.ID, &s.Name, &s.Host, &s.SecondaryHost, &s.NoreplyAddress)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, consts.ErrPersonNotFound
		}
		return nil, nil, fmt.Errorf("failed to look up sender: %w", err)
	}
	return &p, &s, nil
}

func (d *Directory) PersonByID(ctx context.Context, id int64) (*mailroom.Person, error) {
	person, err := scanPerson(d.db.ReadPool.QueryRow(ctx, `
		SELECT `+personColumns+`
		FROM people
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, consts.ErrPersonNotFound
		}
		return nil, fmt.Errorf("failed to look up person by id: %w", err)
	}
	return person, nil
}
