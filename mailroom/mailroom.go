package mailroom

import (
	"context"

	"github.com/leolive/onebody/logger"
	"github.com/leolive/onebody/pkg/metrics"
)

// Handler is the inbound routing core. Handlers are stateless between
// invocations apart from the shared Message store; one Handler may
// process independent inbound emails fully in parallel.
type Handler struct {
	dir   Directory
	store MessageStore
}

// New creates a Handler over the given collaborators.
func New(dir Directory, store MessageStore) *Handler {
	return &Handler{dir: dir, store: store}
}

// Receive processes one complete raw MIME payload and returns the
// outbound envelopes to send. A payload that cannot be parsed fails
// with consts.ErrMalformedMessage; no bounce is possible then since
// there is no reliable sender. Directory or store failures propagate as
// errors for this single message and are not retried here.
func (h *Handler) Receive(ctx context.Context, raw []byte) ([]Envelope, error) {
	metrics.MessageSizeBytes.Observe(float64(len(raw)))

	email, err := Decode(raw)
	if err != nil {
		metrics.InboundMessagesTotal.WithLabelValues("malformed").Inc()
		logger.Warn("failed to decode inbound message", "error", err)
		return nil, err
	}

	plan, err := h.plan(ctx, email)
	if err != nil {
		metrics.InboundMessagesTotal.WithLabelValues("error").Inc()
		logger.Error("failed to plan delivery", "from", email.From, "error", err)
		return nil, err
	}

	metrics.InboundMessagesTotal.WithLabelValues(plan.Outcome).Inc()
	for _, env := range plan.Envelopes {
		if env.Rejection {
			metrics.EnvelopesTotal.WithLabelValues("rejection").Inc()
		} else {
			metrics.EnvelopesTotal.WithLabelValues("delivery").Inc()
		}
	}
	if plan.Outcome == OutcomeRejected {
		metrics.RejectionsTotal.WithLabelValues(string(plan.Rejection)).Inc()
	}

	logger.Info("inbound message processed",
		"from", email.From,
		"subject", email.Subject,
		"outcome", plan.Outcome,
		"envelopes", len(plan.Envelopes),
	)
	return plan.Envelopes, nil
}
