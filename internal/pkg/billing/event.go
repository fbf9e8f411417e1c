package billing

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// EventKind tags the recognized provider event types.
type EventKind string

const (
	EventKindPaymentSucceeded    EventKind = "payment_succeeded"
	EventKindSubscriptionDeleted EventKind = "subscription_deleted"
	EventKindPaymentFailed       EventKind = "payment_failed"
)

// Billing-reason discriminator carried on payment_succeeded events.
const (
	BillingReasonSubscriptionCreate = "subscription_create"
	BillingReasonSubscriptionCycle  = "subscription_cycle"
	BillingReasonOneTime            = "one_time"
)

// Event is the closed set of validated provider events. Payload probing stops
// at the parse boundary; the reconciler switches exhaustively over these types.
type Event interface {
	Kind() EventKind
}

// PaymentSucceededEvent covers both recurring renewals and one-time
// purchases, discriminated by BillingReason.
type PaymentSucceededEvent struct {
	SubscriptionID string
	PaymentID      string
	UserID         string
	PlanID         string
	Email          string
	BillingReason  string
	FixedTerm      bool
}

func (PaymentSucceededEvent) Kind() EventKind { return EventKindPaymentSucceeded }

// OneTime reports whether the payment is a fixed-term purchase rather than a
// subscription create/cycle.
func (e PaymentSucceededEvent) OneTime() bool {
	return e.BillingReason == BillingReasonOneTime
}

type SubscriptionDeletedEvent struct {
	SubscriptionID string
}

func (SubscriptionDeletedEvent) Kind() EventKind { return EventKindSubscriptionDeleted }

type PaymentFailedEvent struct {
	SubscriptionID string
}

func (PaymentFailedEvent) Kind() EventKind { return EventKindPaymentFailed }

type webhookEnvelope struct {
	ID   string        `json:"id"`
	Type string        `json:"type" validate:"required"`
	Data webhookObject `json:"data"`
}

type webhookObject struct {
	SubscriptionID string            `json:"subscription_id"`
	PaymentID      string            `json:"payment_id"`
	BillingReason  string            `json:"billing_reason"`
	Email          string            `json:"email" validate:"omitempty,email"`
	Metadata       map[string]string `json:"metadata"`
}

var validate = validator.New()

// ParseWebhookEvent turns a raw, signature-verified payload into a typed
// event. Missing required metadata yields ErrMalformedEvent (drop and
// acknowledge); event types outside the recognized set yield ErrUnhandledEvent.
func ParseWebhookEvent(raw []byte) (Event, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := validate.Struct(env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch EventKind(strings.TrimSpace(env.Type)) {
	case EventKindPaymentSucceeded:
		return parsePaymentSucceeded(env.Data)
	case EventKindSubscriptionDeleted:
		if env.Data.SubscriptionID == "" {
			return nil, fmt.Errorf("%w: subscription_deleted without subscription_id", ErrMalformedEvent)
		}
		return SubscriptionDeletedEvent{SubscriptionID: env.Data.SubscriptionID}, nil
	case EventKindPaymentFailed:
		if env.Data.SubscriptionID == "" {
			return nil, fmt.Errorf("%w: payment_failed without subscription_id", ErrMalformedEvent)
		}
		return PaymentFailedEvent{SubscriptionID: env.Data.SubscriptionID}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnhandledEvent, env.Type)
	}
}

func parsePaymentSucceeded(obj webhookObject) (Event, error) {
	userID := strings.TrimSpace(obj.Metadata["user_id"])
	planID := strings.TrimSpace(obj.Metadata["plan_id"])
	if userID == "" {
		// There is no way to safely guess the subject of the event.
		return nil, fmt.Errorf("%w: payment_succeeded without user_id metadata", ErrMalformedEvent)
	}

	ev := PaymentSucceededEvent{
		SubscriptionID: strings.TrimSpace(obj.SubscriptionID),
		PaymentID:      strings.TrimSpace(obj.PaymentID),
		UserID:         userID,
		PlanID:         planID,
		Email:          strings.TrimSpace(obj.Email),
		BillingReason:  strings.ToLower(strings.TrimSpace(obj.BillingReason)),
		FixedTerm:      strings.EqualFold(obj.Metadata["fixed_term"], "true"),
	}

	if ev.OneTime() {
		if ev.PaymentID == "" {
			return nil, fmt.Errorf("%w: one_time payment without payment_id", ErrMalformedEvent)
		}
		if ev.PlanID == "" {
			return nil, fmt.Errorf("%w: one_time payment without plan_id metadata", ErrMalformedEvent)
		}
		return ev, nil
	}

	if ev.SubscriptionID == "" {
		return nil, fmt.Errorf("%w: recurring payment without subscription_id", ErrMalformedEvent)
	}
	return ev, nil
}
