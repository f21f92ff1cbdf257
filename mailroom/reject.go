package mailroom

import (
	"fmt"

	"github.com/leolive/onebody/consts"
)

// RejectionCategory names one rejection reason. The value doubles as
// the metrics label.
type RejectionCategory string

const (
	RejectionMessageTooShort    RejectionCategory = "message_too_short"
	RejectionUnrecognizedSender RejectionCategory = "unrecognized_sender"
	RejectionUnaddressed        RejectionCategory = "unaddressed"
	RejectionWrongSite          RejectionCategory = "wrong_site"
)

// rejectionTemplates maps each category to its explanation. %s slots
// are filled by composeRejection.
var rejectionTemplates = map[RejectionCategory]string{
	RejectionMessageTooShort:    "Your message was too short or empty and could not be delivered. Please add a subject and a message body and send it again.",
	RejectionUnrecognizedSender: "Your message could not be delivered because the system does not recognize your email address (%s). If you have an account, please send from the email address registered there.",
	RejectionUnaddressed:        "Your message was not properly addressed and could not be delivered. Please send your message to a group address or a member address.",
	RejectionWrongSite:          "Your message could not be delivered because %s does not recognize your email address as one of its members.",
}

// composeRejection renders one bounce envelope. The From is always the
// site's noreply address; the recipient was chosen by the delivery
// planner (sender or original To address, never both).
func composeRejection(category RejectionCategory, site *Site, email *DecodedEmail, to string) Envelope {
	var explanation string
	switch category {
	case RejectionUnrecognizedSender:
		explanation = fmt.Sprintf(rejectionTemplates[category], email.From)
	case RejectionWrongSite:
		explanation = fmt.Sprintf(rejectionTemplates[category], site.Name)
	default:
		explanation = rejectionTemplates[category]
	}

	body := explanation
	if original := email.BodyText(); original != "" {
		body += fmt.Sprintf("\n\n%s\nYour original message:\n\n%s", consts.BodyTrailerDivider, original)
	}

	return Envelope{
		From:      site.NoreplyAddress,
		To:        to,
		Subject:   consts.RejectedSubjectPrefix + email.Subject,
		Body:      body,
		Rejection: true,
	}
}
