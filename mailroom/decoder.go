package mailroom

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/k3a/html2text"

	"github.com/leolive/onebody/consts"
	"github.com/leolive/onebody/helpers"
)

// DecodedEmail is the structured form of a raw inbound payload. All
// addresses are normalized, and subject and body text are fully decoded
// (charset and transfer encoding applied).
type DecodedEmail struct {
	From        string
	FromName    string
	To          []string
	Cc          []string
	Subject     string
	Body        string // best text/plain part
	HTMLBody    string // best text/html part
	Attachments []Attachment
	InReplyTo   []string
	References  []string
}

// Recipients returns the combined To+Cc address list with literal
// duplicates removed, order preserved.
func (d *DecodedEmail) Recipients() []string {
	seen := make(map[string]bool, len(d.To)+len(d.Cc))
	var out []string
	for _, addr := range append(append([]string{}, d.To...), d.Cc...) {
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out
}

// BodyText returns the plain-text body, falling back to a text
// rendering of the HTML body when no plain part was present.
func (d *DecodedEmail) BodyText() string {
	if strings.TrimSpace(d.Body) != "" {
		return d.Body
	}
	if d.HTMLBody != "" {
		return html2text.HTML2Text(d.HTMLBody)
	}
	return ""
}

// Decode parses raw bytes into a DecodedEmail. Unparseable payloads
// fail with consts.ErrMalformedMessage; decoding is a pure
// transformation with no side effects.
func Decode(raw []byte) (*DecodedEmail, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("%w: %v", consts.ErrMalformedMessage, err)
	}

	decoded := &DecodedEmail{}
	header := mr.Header

	if list, err := header.AddressList("From"); err == nil && len(list) > 0 {
		decoded.From = helpers.NormalizeAddress(list[0].Address)
		decoded.FromName = helpers.SanitizeUTF8(list[0].Name)
	}
	decoded.To = addressStrings(header, "To")
	decoded.Cc = addressStrings(header, "Cc")

	if subject, err := header.Subject(); err == nil {
		decoded.Subject = helpers.SanitizeUTF8(subject)
	}
	decoded.InReplyTo, _ = header.MsgIDList("In-Reply-To")
	decoded.References, _ = header.MsgIDList("References")

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", consts.ErrMalformedMessage, err)
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			mediaType, params, _ := h.ContentType()
			content, err := io.ReadAll(part.Body)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", consts.ErrMalformedMessage, err)
			}
			switch {
			case mediaType == "text/plain" && decoded.Body == "":
				decoded.Body = helpers.SanitizeUTF8(string(content))
			case mediaType == "text/html" && decoded.HTMLBody == "":
				decoded.HTMLBody = helpers.SanitizeUTF8(string(content))
			case !strings.HasPrefix(mediaType, "text/"):
				decoded.Attachments = append(decoded.Attachments, Attachment{
					Name:        params["name"],
					ContentType: mediaType,
					Content:     content,
				})
			}
		case *mail.AttachmentHeader:
			mediaType, _, _ := h.ContentType()
			filename, _ := h.Filename()
			content, err := io.ReadAll(part.Body)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", consts.ErrMalformedMessage, err)
			}
			decoded.Attachments = append(decoded.Attachments, Attachment{
				Name:        filename,
				ContentType: mediaType,
				Content:     content,
			})
		}
	}

	return decoded, nil
}

func addressStrings(header mail.Header, key string) []string {
	list, err := header.AddressList(key)
	if err != nil || len(list) == 0 {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		if a.Address == "" {
			continue
		}
		out = append(out, helpers.NormalizeAddress(a.Address))
	}
	return out
}
