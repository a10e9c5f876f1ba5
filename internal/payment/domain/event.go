// Package domain defines the verified webhook event and its inbox record.
package domain

import "time"

// Stripe event types this subsystem reconciles. Anything else is
// acknowledged and ignored.
const (
	EventTypeCheckoutSessionCompleted = "checkout.session.completed"
	EventTypePaymentIntentSucceeded   = "payment_intent.succeeded"
	EventTypeSubscriptionCreated      = "customer.subscription.created"
	EventTypeSubscriptionUpdated      = "customer.subscription.updated"
	EventTypeSubscriptionDeleted      = "customer.subscription.deleted"
	EventTypeInvoicePaymentSucceeded  = "invoice.payment_succeeded"
	EventTypeInvoicePaymentFailed     = "invoice.payment_failed"
)

// Event is a signature-verified provider event with its object decoded
// into the one typed payload matching its type tag.
type Event struct {
	ID         string
	Type       string
	OccurredAt time.Time
	RawPayload []byte

	CheckoutSession *CheckoutSession
	PaymentIntent   *PaymentIntent
	Invoice         *InvoicePayload
	Subscription    *SubscriptionPayload
}

// CheckoutSession is the subset of Stripe's checkout session object the
// booking reconciler reads. BookingID comes from session metadata set at
// checkout creation time.
type CheckoutSession struct {
	ID              string
	PaymentIntentID string
	CustomerID      string
	SubscriptionID  string
	Mode            string
	BookingID       string
	AmountTotal     int64
	Currency        string
}

type PaymentIntent struct {
	ID       string
	Amount   int64
	Currency string
}

type InvoicePayload struct {
	ID             string
	CustomerID     string
	SubscriptionID string
	BillingReason  string
}

// SubscriptionPayload carries the provider-side subscription state. Plan
// name and billing period travel in metadata.
type SubscriptionPayload struct {
	ID            string
	CustomerID    string
	Status        string
	Plan          string
	BillingPeriod string
}
