// Package reconcile translates provider specific payment events into the
// canonical state of a payment record and the order it belongs to.
//
// Every state change, whatever its origin (signed callback, status poll,
// synchronous API call or administrator action), goes through Engine.Apply
// so that the monotonic transition rule and the order summary stay
// consistent across channels.
package reconcile

import (
	"context"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
)

// Adapter is the capability every payment channel provides.
type Adapter interface {
	Channel() payment.Channel
	// Normalize maps a provider status onto the normalized vocabulary.
	Normalize(native string) payment.Status
}

// CallbackVerifier is implemented by channels whose callbacks are signed.
type CallbackVerifier interface {
	// VerifyCallback checks signature against the exact received body and
	// returns payment.ErrInvalidSignature on mismatch.
	VerifyCallback(body []byte, signature string) error
}

// CallbackDecoder is implemented by channels that receive callbacks.
type CallbackDecoder interface {
	DecodeCallback(body []byte) (Notification, error)
}

// StatusPoller is implemented by channels that can be asked for the
// current state of a payment.
type StatusPoller interface {
	PollStatus(ctx context.Context, rec *payment.Record) (Notification, error)
}

// Notification is a provider event decoded by an adapter.
type Notification struct {
	ExternalID string
	// Status is the normalized status carried by the event. An empty Status
	// leaves the stored status as is and only refreshes the detail.
	Status payment.Status
	// Refresh, when set, derives the new channel detail from the stored one.
	Refresh func(payment.Detail) payment.Detail
}

// OrderRecorder receives payment outcomes for orders.
type OrderRecorder interface {
	RecordPaymentOutcome(ctx context.Context, orderID string, status payment.Status, txID string) (*order.Order, error)
}

// Event sources.
const (
	SourceCallback = "callback"
	SourcePoll     = "poll"
	SourceAPI      = "api"
	SourceAdmin    = "admin"
)

// Event is a request to move a payment record to a new status.
type Event struct {
	Channel    payment.Channel
	ExternalID string
	Status     payment.Status
	Refresh    func(payment.Detail) payment.Detail
	// Key identifies the delivery. Events with a key already seen are
	// acknowledged without being applied again.
	Key    string
	Source string
}

// Result is the outcome of applying an event.
type Result struct {
	Record     *payment.Record
	Transition payment.Transition
}

// Applied reports whether the event changed the stored status.
func (r *Result) Applied() bool {
	return r.Transition == payment.TransitionApply
}

// Err converts a stale outcome into payment.ErrStaleTransition for callers
// that must report it synchronously.
func (r *Result) Err() error {
	if r.Transition == payment.TransitionStale {
		return payment.ErrStaleTransition
	}
	return nil
}
