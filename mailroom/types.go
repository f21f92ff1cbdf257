// Package mailroom routes inbound email for the multi-tenant community
// platform. A raw MIME payload is decoded, its addresses are resolved
// against the site directory, reply threads are reconstructed from
// correlation tokens, and the delivery planner produces the set of
// outbound envelopes (or a single rejection notice) for the transport
// layer to send.
package mailroom

import (
	"context"
	"time"
)

// Site is a tenant with its own address namespace.
type Site struct {
	ID             int64
	Name           string
	Host           string // primary hostname/alias
	SecondaryHost  string // optional extra alias
	NoreplyAddress string
}

// Person belongs to exactly one Site and has at most one primary email
// address and one mobile number.
type Person struct {
	ID          int64
	SiteID      int64
	Name        string
	Email       string
	MobilePhone string
}

// Group is a named mailing list within a Site, addressed by local part.
type Group struct {
	ID      int64
	SiteID  int64
	Name    string
	Address string // local part at the site's host
}

// Message is the persisted record of an accepted delivery. Its
// correlation token, derived from (ID, Code), is embedded in outbound
// message-id headers so replies can be traced back.
type Message struct {
	ID          int64
	SiteID      int64
	PersonID    *int64 // sender, nil when the sender is not in the directory
	SenderEmail string
	ToPersonID  *int64 // set for private person-to-person deliveries
	GroupID     *int64 // set for group broadcasts
	Subject     string
	Body        string
	HTMLBody    string
	Code        string
	CreatedAt   time.Time
}

// Token returns the message's correlation token.
func (m *Message) Token() Token {
	return Token{MessageID: m.ID, Code: m.Code}
}

// IsPrivate reports whether the message was a private person-to-person
// delivery. Only private threads trigger reply address substitution.
func (m *Message) IsPrivate() bool {
	return m.ToPersonID != nil && m.GroupID == nil
}

// NewMessage carries everything needed to persist an accepted delivery.
type NewMessage struct {
	SiteID      int64
	PersonID    *int64
	SenderEmail string
	ToPersonID  *int64
	GroupID     *int64
	Subject     string
	Body        string
	HTMLBody    string
	Code        string
	DedupHash   string
	Attachments []Attachment
}

// Attachment is one non-text MIME part of a decoded email.
type Attachment struct {
	Name        string
	ContentType string
	Content     []byte
}

// Envelope is one outbound unit of email produced by the routing
// decision. The recipient address is never empty.
type Envelope struct {
	FromName  string // display name, may be empty
	From      string // always a site noreply address
	To        string
	Subject   string
	Body      string
	HTMLBody  string
	MessageID string // "<id_code_disambiguator@host>" for deliveries
	Rejection bool
}

// Directory is the read interface over sites, groups and people.
// Lookups that find nothing return the matching consts.Err*NotFound
// sentinel; any other error is fatal for the inbound message.
type Directory interface {
	SiteByAlias(ctx context.Context, alias string) (*Site, error)
	SiteByID(ctx context.Context, id int64) (*Site, error)
	GroupByAddress(ctx context.Context, siteID int64, localPart string) (*Group, error)
	GroupMemberAddresses(ctx context.Context, groupID int64) ([]string, error)
	PersonByEmail(ctx context.Context, siteID int64, address string) (*Person, error)
	PersonByAnyEmail(ctx context.Context, address string) (*Person, *Site, error)
	PersonByID(ctx context.Context, id int64) (*Person, error)
}

// MessageStore persists Message records and resolves correlation
// tokens. CreateMessage must be atomic with respect to the dedup hash:
// a second insert with the same (site, hash) returns
// consts.ErrMessageExists instead of a new record.
type MessageStore interface {
	CreateMessage(ctx context.Context, m *NewMessage) (*Message, error)
	FindMessageByToken(ctx context.Context, token Token) (*Message, error)
}
