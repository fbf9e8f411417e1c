package billing

import "errors"

var (
	// ErrInvalidSignature means the payload failed the HMAC check. Surfaced
	// as a client error; never retried server-side.
	ErrInvalidSignature = errors.New("billing: invalid webhook signature")

	// ErrMalformedEvent means required metadata (user id, subscription or
	// payment id) is missing. The event is dropped and acknowledged, since
	// redelivery cannot supply the missing data.
	ErrMalformedEvent = errors.New("billing: malformed event payload")

	// ErrUnhandledEvent means the event type is outside the recognized set.
	// Acknowledged without effect.
	ErrUnhandledEvent = errors.New("billing: unhandled event type")

	// ErrStoreUnavailable wraps transient store failures. Webhook callers
	// answer 5xx so the provider redelivers; idempotency makes that safe.
	ErrStoreUnavailable = errors.New("billing: entitlement store unavailable")
)
