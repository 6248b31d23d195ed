package events

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/Alijeyrad/teleconsult/pkg/constants"
)

// Consultation events.
const (
	ConsultationScheduled           = "scheduled"
	ConsultationCheckedIn           = "checked_in"
	ConsultationReady               = "ready"
	ConsultationStarted             = "started"
	ConsultationCompleted           = "completed"
	ConsultationCancelled           = "cancelled"
	ConsultationNoShow              = "no_show"
	ConsultationRescheduleRequested = "reschedule_requested"
	ConsultationRescheduleApproved  = "reschedule_approved"
	ConsultationRescheduled         = "rescheduled"
	ConsultationOverdue             = "overdue"
)

// Subject kinds.
const (
	KindConsultation = "consultation"
	KindPayment      = "payment"
	KindReceipt      = "receipt"
)

// Publisher sends a JSON-encoded payload on a subject. Delivery is best
// effort; callers log failures and carry on.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

func ConsultationSubject(event, id string) string {
	return subject(KindConsultation, event, id)
}

func PaymentSubject(state, merchantTxnID string) string {
	return subject(KindPayment, state, merchantTxnID)
}

func ReceiptSubject(consultationID string) string {
	return subject(KindReceipt, "issued", consultationID)
}

// Wildcard matches every subject published under kind, e.g. "consultation".
func Wildcard(kind string) string {
	return constants.SubjectPrefix + "." + kind + ".>"
}

// ParseSubject splits a subject produced by this package into kind, event
// and entity id.
func ParseSubject(s string) (kind, event, id string, ok bool) {
	parts := strings.SplitN(s, ".", 4)
	if len(parts) != 4 || parts[0] != constants.SubjectPrefix {
		return "", "", "", false
	}
	return parts[1], parts[2], parts[3], true
}

func subject(kind, event, id string) string {
	// NATS tokens cannot contain dots or whitespace.
	id = strings.Map(func(r rune) rune {
		switch r {
		case '.', ' ', '*', '>':
			return '_'
		}
		return r
	}, id)
	return fmt.Sprintf("%s.%s.%s.%s", constants.SubjectPrefix, kind, event, id)
}

type natsPublisher struct {
	nc *nats.Conn
}

// NewNats publishes on nc, propagating the trace context in message headers.
func NewNats(nc *nats.Conn) Publisher {
	return &natsPublisher{nc: nc}
}

func (p *natsPublisher) Publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", subject, err)
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(http.Header(msg.Header)))

	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// ContextFromMsg restores the trace context carried by msg.
func ContextFromMsg(ctx context.Context, msg *nats.Msg) context.Context {
	if msg.Header == nil {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(http.Header(msg.Header)))
}

type noop struct{}

// Noop discards everything. Used when NATS is disabled.
func Noop() Publisher { return noop{} }

func (noop) Publish(context.Context, string, any) error { return nil }
