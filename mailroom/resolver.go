package mailroom

import (
	"context"
	"errors"
	"fmt"

	"github.com/leolive/onebody/consts"
	"github.com/leolive/onebody/helpers"
)

// TargetKind classifies what one To/Cc address denotes.
type TargetKind int

const (
	// TargetUnknown covers addresses at unknown domains (UnknownSite)
	// and unmatched local parts at known sites (UnknownRecipient).
	TargetUnknown TargetKind = iota
	TargetNoreply
	TargetGroup
	TargetPerson
)

// Target is the resolution of a single address. Exactly the fields
// implied by Kind are populated; Site is set whenever the domain mapped
// to a tenant, even for TargetUnknown.
type Target struct {
	Address string
	Kind    TargetKind
	Site    *Site
	Group   *Group
	Members []string // member email addresses for TargetGroup
	Person  *Person
}

// resolveTarget classifies one address against the directory.
func (h *Handler) resolveTarget(ctx context.Context, address string) (Target, error) {
	target := Target{Address: address, Kind: TargetUnknown}

	localPart, domain := helpers.SplitAddress(address)
	if domain == "" {
		return target, nil
	}

	site, err := h.dir.SiteByAlias(ctx, domain)
	if err != nil {
		if errors.Is(err, consts.ErrSiteNotFound) {
			return target, nil
		}
		return target, fmt.Errorf("resolving site for %q: %w", address, err)
	}
	target.Site = site

	if address == helpers.NormalizeAddress(site.NoreplyAddress) {
		target.Kind = TargetNoreply
		return target, nil
	}

	group, err := h.dir.GroupByAddress(ctx, site.ID, localPart)
	if err == nil {
		members, err := h.dir.GroupMemberAddresses(ctx, group.ID)
		if err != nil {
			return target, fmt.Errorf("expanding group %q: %w", group.Address, err)
		}
		target.Kind = TargetGroup
		target.Group = group
		target.Members = make([]string, 0, len(members))
		for _, m := range members {
			if m == "" {
				continue
			}
			target.Members = append(target.Members, helpers.NormalizeAddress(m))
		}
		return target, nil
	}
	if !errors.Is(err, consts.ErrGroupNotFound) {
		return target, fmt.Errorf("resolving group for %q: %w", address, err)
	}

	person, err := h.dir.PersonByEmail(ctx, site.ID, address)
	if err == nil {
		target.Kind = TargetPerson
		target.Person = person
		return target, nil
	}
	if !errors.Is(err, consts.ErrPersonNotFound) {
		return target, fmt.Errorf("resolving person for %q: %w", address, err)
	}

	return target, nil
}

// resolveTargets classifies every To/Cc address independently; one
// email may mix Group, Person and Unknown targets.
func (h *Handler) resolveTargets(ctx context.Context, email *DecodedEmail) ([]Target, error) {
	recipients := email.Recipients()
	targets := make([]Target, 0, len(recipients))
	for _, address := range recipients {
		target, err := h.resolveTarget(ctx, address)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}
	return targets, nil
}

// resolveSender looks the From address up across all sites. A nil
// person means the sender is unknown to the platform.
func (h *Handler) resolveSender(ctx context.Context, email *DecodedEmail) (*Person, *Site, error) {
	if email.From == "" {
		return nil, nil, nil
	}
	person, site, err := h.dir.PersonByAnyEmail(ctx, email.From)
	if err != nil {
		if errors.Is(err, consts.ErrPersonNotFound) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("resolving sender %q: %w", email.From, err)
	}
	return person, site, nil
}
