package consts

const (
	// MinSubjectLength is the minimum trimmed subject length an inbound
	// message must carry to be accepted for delivery.
	MinSubjectLength = 2

	// RejectedSubjectPrefix is prepended to the original subject on
	// rejection notices.
	RejectedSubjectPrefix = "Message Rejected: "

	// BodyTrailerDivider separates the delivery trailer (site notice and
	// message id) from the message body on outbound envelopes.
	BodyTrailerDivider = "- - -"
)
