package mailroom

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/leolive/onebody/consts"
	"github.com/leolive/onebody/helpers"
)

// fakeDirectory is an in-memory Directory for tests.
type fakeDirectory struct {
	sites       []*Site
	people      []*Person
	groups      []*Group
	memberships map[int64][]int64 // group id -> person ids
}

func (d *fakeDirectory) SiteByAlias(_ context.Context, alias string) (*Site, error) {
	alias = helpers.NormalizeAddress(alias)
	for _, s := range d.sites {
		if strings.EqualFold(s.Host, alias) || (s.SecondaryHost != "" && strings.EqualFold(s.SecondaryHost, alias)) {
			return s, nil
		}
	}
	return nil, consts.ErrSiteNotFound
}

func (d *fakeDirectory) SiteByID(_ context.Context, id int64) (*Site, error) {
	for _, s := range d.sites {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, consts.ErrSiteNotFound
}

func (d *fakeDirectory) GroupByAddress(_ context.Context, siteID int64, localPart string) (*Group, error) {
	for _, g := range d.groups {
		if g.SiteID == siteID && strings.EqualFold(g.Address, localPart) {
			return g, nil
		}
	}
	return nil, consts.ErrGroupNotFound
}

func (d *fakeDirectory) GroupMemberAddresses(_ context.Context, groupID int64) ([]string, error) {
	var addresses []string
	for _, pid := range d.memberships[groupID] {
		for _, p := range d.people {
			if p.ID == pid && p.Email != "" {
				addresses = append(addresses, p.Email)
			}
		}
	}
	return addresses, nil
}

func (d *fakeDirectory) PersonByEmail(_ context.Context, siteID int64, address string) (*Person, error) {
	address = helpers.NormalizeAddress(address)
	for _, p := range d.people {
		if p.SiteID == siteID && helpers.NormalizeAddress(p.Email) == address {
			return p, nil
		}
	}
	return nil, consts.ErrPersonNotFound
}

func (d *fakeDirectory) PersonByAnyEmail(ctx context.Context, address string) (*Person, *Site, error) {
	address = helpers.NormalizeAddress(address)
	for _, p := range d.people {
		if helpers.NormalizeAddress(p.Email) == address {
			site, err := d.SiteByID(ctx, p.SiteID)
			if err != nil {
				return nil, nil, err
			}
			return p, site, nil
		}
	}
	return nil, nil, consts.ErrPersonNotFound
}

func (d *fakeDirectory) PersonByID(_ context.Context, id int64) (*Person, error) {
	for _, p := range d.people {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, consts.ErrPersonNotFound
}

// fakeStore is an in-memory MessageStore with the same dedup contract
// as the database implementation.
type fakeStore struct {
	mu       sync.Mutex
	nextID   int64
	messages []*Message
	dedup    map[string]bool
	lastNew  *NewMessage
}

func newFakeStore() *fakeStore {
	return &fakeStore{nextID: 1, dedup: make(map[string]bool)}
}

func (s *fakeStore) CreateMessage(_ context.Context, m *NewMessage) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := fmt.Sprintf("%d|%s", m.SiteID, m.DedupHash)
	if s.dedup[key] {
		return nil, consts.ErrMessageExists
	}
	s.dedup[key] = true
	s.lastNew = m

	msg := &Message{
		ID:          s.nextID,
		SiteID:      m.SiteID,
		PersonID:    m.PersonID,
		SenderEmail: m.SenderEmail,
		ToPersonID:  m.ToPersonID,
		GroupID:     m.GroupID,
		Subject:     m.Subject,
		Body:        m.Body,
		HTMLBody:    m.HTMLBody,
		Code:        m.Code,
	}
	s.nextID++
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *fakeStore) FindMessageByToken(_ context.Context, token Token) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == token.MessageID && m.Code == token.Code {
			return m, nil
		}
	}
	return nil, consts.ErrMessageNotFound
}

// seed inserts a pre-existing message, as if delivered earlier.
func (s *fakeStore) seed(m *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID >= s.nextID {
		s.nextID = m.ID + 1
	}
	s.messages = append(s.messages, m)
}

// Test fixture mirroring a small two-tenant directory. People's email
// addresses live at outside domains; groups live at the site host.
const (
	jeremyID = int64(1)
	peterID  = int64(2)
	jennieID = int64(3)
	timID    = int64(4)
	jimID    = int64(5)
	tomID    = int64(6)
)

func newTestDirectory() *fakeDirectory {
	siteExample := &Site{ID: 1, Name: "Example Church", Host: "example.com", NoreplyAddress: "noreply@example.com"}
	siteOne := &Site{ID: 2, Name: "Site One", Host: "site1.org", NoreplyAddress: "noreply@site1.org"}
	siteTwo := &Site{ID: 3, Name: "Site Two", Host: "site2.org", NoreplyAddress: "noreply@site2.org"}

	return &fakeDirectory{
		sites: []*Site{siteExample, siteOne, siteTwo},
		people: []*Person{
			{ID: jeremyID, SiteID: 1, Name: "Jeremy Smith", Email: "user@foobar.com"},
			{ID: peterID, SiteID: 1, Name: "Peter Smith", Email: "peter@foobar.com"},
			{ID: jennieID, SiteID: 1, Name: "Jennie Morgan", Email: "jennie@foobar.com"},
			{ID: timID, SiteID: 1, Name: "Tim Morgan", Email: "tim@example.com"},
			{ID: jimID, SiteID: 2, Name: "Jim Morgan", Email: "jim@foobar.com"},
			{ID: tomID, SiteID: 3, Name: "Tom Morgan", Email: "tom@foobar.com"},
		},
		groups: []*Group{
			{ID: 1, SiteID: 1, Name: "College Group", Address: "college"},
			{ID: 2, SiteID: 2, Name: "Morgan Group", Address: "morgan"},
			{ID: 3, SiteID: 3, Name: "Morgan Group", Address: "morgan"},
		},
		memberships: map[int64][]int64{
			1: {jeremyID, peterID},
			2: {jimID},
			3: {tomID},
		},
	}
}

func newTestHandler() (*Handler, *fakeDirectory, *fakeStore) {
	dir := newTestDirectory()
	store := newFakeStore()
	return New(dir, store), dir, store
}

// rawEmail builds a simple RFC 5322 payload. Empty header values are
// omitted.
func rawEmail(from, to, cc, subject, body string) []byte {
	var b strings.Builder
	if from != "" {
		b.WriteString("From: " + from + "\r\n")
	}
	if to != "" {
		b.WriteString("To: " + to + "\r\n")
	}
	if cc != "" {
		b.WriteString("Cc: " + cc + "\r\n")
	}
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

func rawReply(from, to, cc, subject, body, inReplyTo string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	if cc != "" {
		b.WriteString("Cc: " + cc + "\r\n")
	}
	b.WriteString("Subject: " + subject + "\r\n")
	if inReplyTo != "" {
		b.WriteString("In-Reply-To: " + inReplyTo + "\r\n")
	}
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

func envelopeRecipients(envelopes []Envelope) []string {
	out := make([]string, 0, len(envelopes))
	for _, e := range envelopes {
		out = append(out, e.To)
	}
	return out
}
