package mailroom

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/leolive/onebody/consts"
	"github.com/leolive/onebody/helpers"
	"github.com/leolive/onebody/logger"
	"github.com/leolive/onebody/server/idgen"
)

// Outcome labels for one planned inbound message.
const (
	OutcomeDelivered = "delivered"
	OutcomeRejected  = "rejected"
	OutcomeDiscarded = "discarded"
	OutcomeDuplicate = "duplicate"
)

// Plan is the routing decision for one inbound email: the envelopes to
// hand to the transport and the Message record created, if any. A
// rejection plan carries exactly the rejection envelopes and no Message.
type Plan struct {
	Envelopes []Envelope
	Message   *Message
	Outcome   string
	Rejection RejectionCategory // set when Outcome is OutcomeRejected
}

func discardPlan(reason string, args ...any) *Plan {
	logger.Debug("discarding message: "+reason, args...)
	return &Plan{Outcome: OutcomeDiscarded}
}

// plan runs the decision ladder over a decoded email. The first
// matching rule wins:
//
//  1. noreply sink (silent discard)
//  2. invalid content (bounce to sender)
//  3. private reply override (deliver to the thread counterpart)
//  4. unknown sender (bounce echoed to the To addresses)
//  5. site mismatch (bounce to sender)
//  6. group fan-out
//  7. unknown recipient, known sender (bounce to sender)
//  8. direct person delivery
func (h *Handler) plan(ctx context.Context, email *DecodedEmail) (*Plan, error) {
	targets, err := h.resolveTargets(ctx, email)
	if err != nil {
		return nil, err
	}
	senderPerson, senderSite, err := h.resolveSender(ctx, email)
	if err != nil {
		return nil, err
	}

	// The site whose noreply address fronts any bounce: the first To/Cc
	// domain that maps to a tenant, else the sender's own site.
	var bounceSite *Site
	for i := range targets {
		if targets[i].Site != nil {
			bounceSite = targets[i].Site
			break
		}
	}
	if bounceSite == nil {
		bounceSite = senderSite
	}

	// A message sent from a site noreply address is itself a bounce;
	// rejecting it would start a loop.
	fromIsNoreply := h.senderIsNoreply(email, targets, senderSite)

	// Rule 1: anything addressed to a noreply address is sunk silently,
	// regardless of sender legitimacy.
	for i := range targets {
		if targets[i].Kind == TargetNoreply {
			return discardPlan("addressed to noreply sink", "from", email.From), nil
		}
	}

	// Rule 2: unusable content bounces back to the sender.
	subject := strings.TrimSpace(email.Subject)
	bodyEmpty := strings.TrimSpace(email.BodyText()) == "" && len(email.Attachments) == 0
	if utf8.RuneCountInString(subject) < consts.MinSubjectLength || bodyEmpty {
		if fromIsNoreply || email.From == "" || bounceSite == nil {
			return discardPlan("unusable content and no bounce path", "from", email.From), nil
		}
		return h.rejectionPlan(RejectionMessageTooShort, bounceSite, email, email.From), nil
	}

	// Rule 3: a reply into a private thread overrides address-based
	// resolution and goes to the original other party.
	original, err := h.correlate(ctx, email)
	if err != nil {
		return nil, err
	}
	if original != nil && original.IsPrivate() {
		return h.privateReplyPlan(ctx, email, original, senderPerson)
	}

	// Rule 4: an unknown sender has no internal identity to notify; the
	// rejection is echoed to the addresses the mail was sent to.
	if senderPerson == nil {
		if fromIsNoreply || bounceSite == nil || len(email.To) == 0 {
			return discardPlan("unknown sender and no bounce path", "from", email.From), nil
		}
		plan := &Plan{Outcome: OutcomeRejected, Rejection: RejectionUnrecognizedSender}
		for _, to := range email.To {
			plan.Envelopes = append(plan.Envelopes, composeRejection(RejectionUnrecognizedSender, bounceSite, email, to))
		}
		return plan, nil
	}

	// Rule 5: a known sender posting to a group of another site.
	for i := range targets {
		t := &targets[i]
		if t.Kind == TargetGroup && t.Site.ID != senderSite.ID {
			if fromIsNoreply {
				return discardPlan("wrong site bounce suppressed", "from", email.From), nil
			}
			return h.rejectionPlan(RejectionWrongSite, t.Site, email, senderPerson.Email), nil
		}
	}

	var groupTargets, personTargets []*Target
	for i := range targets {
		switch targets[i].Kind {
		case TargetGroup:
			groupTargets = append(groupTargets, &targets[i])
		case TargetPerson:
			personTargets = append(personTargets, &targets[i])
		}
	}

	// Rule 6: group fan-out.
	if len(groupTargets) > 0 {
		return h.groupPlan(ctx, email, targets, groupTargets, senderPerson)
	}

	// Rule 7: nothing resolved at all.
	if len(personTargets) == 0 {
		if fromIsNoreply {
			return discardPlan("unaddressed bounce suppressed", "from", email.From), nil
		}
		return h.rejectionPlan(RejectionUnaddressed, bounceSite, email, senderPerson.Email), nil
	}

	// Rule 8: direct delivery to each resolved person address.
	return h.directPlan(ctx, email, personTargets, senderPerson)
}

func (h *Handler) rejectionPlan(category RejectionCategory, site *Site, email *DecodedEmail, to string) *Plan {
	return &Plan{
		Envelopes: []Envelope{composeRejection(category, site, email, to)},
		Outcome:   OutcomeRejected,
		Rejection: category,
	}
}

// senderIsNoreply reports whether the From address is the noreply
// address of any site involved in this message.
func (h *Handler) senderIsNoreply(email *DecodedEmail, targets []Target, senderSite *Site) bool {
	if email.From == "" {
		return false
	}
	sites := make([]*Site, 0, len(targets)+1)
	for i := range targets {
		if targets[i].Site != nil {
			sites = append(sites, targets[i].Site)
		}
	}
	if senderSite != nil {
		sites = append(sites, senderSite)
	}
	for _, site := range sites {
		if email.From == helpers.NormalizeAddress(site.NoreplyAddress) {
			return true
		}
	}
	return false
}

// correlate recovers the originating Message for a reply. Candidates
// come from In-Reply-To, then References (nearest parent last), then
// the plain-text body, where delivery trailers embed the message-id.
func (h *Handler) correlate(ctx context.Context, email *DecodedEmail) (*Message, error) {
	var candidates []Token
	for _, id := range email.InReplyTo {
		candidates = append(candidates, FindTokens(id)...)
	}
	for i := len(email.References) - 1; i >= 0; i-- {
		candidates = append(candidates, FindTokens(email.References[i])...)
	}
	candidates = append(candidates, FindTokens(email.Body)...)

	seen := make(map[Token]bool, len(candidates))
	for _, token := range candidates {
		if seen[token] {
			continue
		}
		seen[token] = true
		msg, err := h.store.FindMessageByToken(ctx, token)
		if err != nil {
			if errors.Is(err, consts.ErrMessageNotFound) {
				continue
			}
			return nil, fmt.Errorf("looking up correlation token %s: %w", token, err)
		}
		return msg, nil
	}
	return nil, nil
}

// privateReplyPlan delivers a reply to a private thread to the original
// other party, ignoring the literal To/Cc for that single recipient.
func (h *Handler) privateReplyPlan(ctx context.Context, email *DecodedEmail, original *Message, senderPerson *Person) (*Plan, error) {
	recipient, err := h.dir.PersonByID(ctx, *original.ToPersonID)
	if err != nil {
		if errors.Is(err, consts.ErrPersonNotFound) {
			return discardPlan("private thread recipient no longer exists", "message_id", original.ID), nil
		}
		return nil, fmt.Errorf("resolving thread recipient: %w", err)
	}

	// The counterpart is whichever party of the original leg is not the
	// one replying now.
	counterpartAddress := helpers.NormalizeAddress(recipient.Email)
	counterpartID := &recipient.ID
	if counterpartAddress == email.From {
		counterpartAddress = helpers.NormalizeAddress(original.SenderEmail)
		counterpartID = original.PersonID
		if original.PersonID != nil {
			sender, err := h.dir.PersonByID(ctx, *original.PersonID)
			if err == nil {
				counterpartAddress = helpers.NormalizeAddress(sender.Email)
			} else if !errors.Is(err, consts.ErrPersonNotFound) {
				return nil, fmt.Errorf("resolving thread sender: %w", err)
			}
		}
	}
	if counterpartAddress == "" {
		return discardPlan("private thread counterpart has no address", "message_id", original.ID), nil
	}

	site, err := h.dir.SiteByID(ctx, original.SiteID)
	if err != nil {
		return nil, fmt.Errorf("resolving thread site: %w", err)
	}

	msg, err := h.createMessage(ctx, email, &NewMessage{
		SiteID:     site.ID,
		ToPersonID: counterpartID,
	}, senderPerson)
	if err != nil {
		if errors.Is(err, consts.ErrMessageExists) {
			return &Plan{Outcome: OutcomeDuplicate}, nil
		}
		return nil, err
	}

	envelope := h.deliveryEnvelope(site, msg, email, senderPerson, counterpartAddress)
	return &Plan{Envelopes: []Envelope{envelope}, Message: msg, Outcome: OutcomeDelivered}, nil
}

// groupPlan fans a message out to the union of all addressed groups'
// member addresses, minus anyone who already received a copy out of
// band through a literal To/Cc entry.
func (h *Handler) groupPlan(ctx context.Context, email *DecodedEmail, targets []Target, groupTargets []*Target, senderPerson *Person) (*Plan, error) {
	outOfBand := make(map[string]bool)
	for i := range targets {
		if targets[i].Kind != TargetGroup {
			outOfBand[targets[i].Address] = true
		}
	}

	seen := make(map[string]bool)
	var recipients []string
	for _, t := range groupTargets {
		for _, member := range t.Members {
			if seen[member] || outOfBand[member] {
				continue
			}
			seen[member] = true
			recipients = append(recipients, member)
		}
	}

	// A copy whose whole fan-out was already satisfied out of band must
	// not re-send or bounce; this is what keeps the duplicate copy of a
	// group+Cc mail silent.
	if len(recipients) == 0 {
		return discardPlan("group fan-out fully satisfied out of band", "from", email.From), nil
	}

	site := groupTargets[0].Site
	groupID := groupTargets[0].Group.ID
	msg, err := h.createMessage(ctx, email, &NewMessage{
		SiteID:  site.ID,
		GroupID: &groupID,
	}, senderPerson)
	if err != nil {
		if errors.Is(err, consts.ErrMessageExists) {
			return &Plan{Outcome: OutcomeDuplicate}, nil
		}
		return nil, err
	}

	plan := &Plan{Message: msg, Outcome: OutcomeDelivered}
	for _, to := range recipients {
		plan.Envelopes = append(plan.Envelopes, h.deliveryEnvelope(site, msg, email, senderPerson, to))
	}
	return plan, nil
}

// directPlan delivers to each directly resolved person address,
// deduplicated; two people sharing one mailbox get a single copy.
func (h *Handler) directPlan(ctx context.Context, email *DecodedEmail, personTargets []*Target, senderPerson *Person) (*Plan, error) {
	seen := make(map[string]bool)
	var recipients []string
	for _, t := range personTargets {
		address := helpers.NormalizeAddress(t.Person.Email)
		if address == "" || seen[address] {
			continue
		}
		seen[address] = true
		recipients = append(recipients, address)
	}
	if len(recipients) == 0 {
		return discardPlan("resolved persons have no addresses", "from", email.From), nil
	}

	site := personTargets[0].Site
	newMsg := &NewMessage{SiteID: site.ID}
	if len(recipients) == 1 {
		// A single-person send opens a private thread; replies to it
		// are routed back by correlation token.
		newMsg.ToPersonID = &personTargets[0].Person.ID
	}
	msg, err := h.createMessage(ctx, email, newMsg, senderPerson)
	if err != nil {
		if errors.Is(err, consts.ErrMessageExists) {
			return &Plan{Outcome: OutcomeDuplicate}, nil
		}
		return nil, err
	}

	plan := &Plan{Message: msg, Outcome: OutcomeDelivered}
	for _, to := range recipients {
		plan.Envelopes = append(plan.Envelopes, h.deliveryEnvelope(site, msg, email, senderPerson, to))
	}
	return plan, nil
}

// createMessage fills the content fields shared by every accepted
// delivery and persists the record. The dedup hash makes the insert
// idempotent for identical resubmitted payloads.
func (h *Handler) createMessage(ctx context.Context, email *DecodedEmail, m *NewMessage, senderPerson *Person) (*Message, error) {
	m.SenderEmail = email.From
	if senderPerson != nil {
		m.PersonID = &senderPerson.ID
	}
	m.Subject = email.Subject
	m.Body = email.BodyText()
	m.HTMLBody = email.HTMLBody
	m.Code = idgen.NewCode()
	m.DedupHash = DedupHash(email)
	m.Attachments = email.Attachments

	msg, err := h.store.CreateMessage(ctx, m)
	if err != nil && !errors.Is(err, consts.ErrMessageExists) {
		return nil, fmt.Errorf("creating message: %w", err)
	}
	return msg, err
}

// DedupHash computes the idempotency key of a decoded email: sender,
// sorted recipient set, subject and a truncated body hash input.
func DedupHash(email *DecodedEmail) string {
	recipients := email.Recipients()
	sorted := make([]string, len(recipients))
	copy(sorted, recipients)
	sort.Strings(sorted)

	body := email.BodyText()
	if len(body) > 4096 {
		body = body[:4096]
	}

	key := strings.Join([]string{
		email.From,
		strings.Join(sorted, ","),
		email.Subject,
		body,
	}, "\x00")
	return helpers.HashContent([]byte(key))
}

// deliveryEnvelope renders one outbound copy of an accepted message.
// The From is the site's noreply address carrying the sender's display
// name; the body ends with the trailer that embeds the correlation
// token so replies can be traced back.
func (h *Handler) deliveryEnvelope(site *Site, msg *Message, email *DecodedEmail, senderPerson *Person, to string) Envelope {
	fromName := email.FromName
	if senderPerson != nil && senderPerson.Name != "" {
		fromName = senderPerson.Name
	}
	messageID := NewMessageID(msg, site.Host)
	return Envelope{
		FromName:  fromName,
		From:      site.NoreplyAddress,
		To:        to,
		Subject:   email.Subject,
		Body:      email.BodyText() + deliveryTrailer(site, messageID),
		HTMLBody:  email.HTMLBody,
		MessageID: messageID,
	}
}

func deliveryTrailer(site *Site, messageID string) string {
	return fmt.Sprintf("\n\n%s\nThis message was sent through %s. To respond, simply reply to this email.\n%s\n",
		consts.BodyTrailerDivider, site.Name, messageID)
}
