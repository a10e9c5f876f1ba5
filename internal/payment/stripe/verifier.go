// Package stripe verifies and decodes Stripe webhook deliveries. The
// endpoint is public and otherwise forgeable, so nothing downstream runs
// until the HMAC checks out.
package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/salonkit/salonkit/internal/clock"
	paymentdomain "github.com/salonkit/salonkit/internal/payment/domain"
)

// DefaultTolerance bounds the age of the signed timestamp, matching
// Stripe's recommended replay window.
const DefaultTolerance = 5 * time.Minute

type Verifier struct {
	secret    string
	tolerance time.Duration
	clock     clock.Clock
}

func NewVerifier(secret string, tolerance time.Duration, clk clock.Clock) (*Verifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("stripe: webhook secret is required")
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{secret: secret, tolerance: tolerance, clock: clk}, nil
}

// VerifyAndParse checks the Stripe-Signature header against the raw body
// and returns the decoded event. Any verification failure comes back as
// ErrInvalidSignature without detail; callers respond 400.
func (v *Verifier) VerifyAndParse(payload []byte, sigHeader string) (*paymentdomain.Event, error) {
	sigHeader = strings.TrimSpace(sigHeader)
	if sigHeader == "" {
		return nil, paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return nil, paymentdomain.ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nil, paymentdomain.ErrInvalidSignature
	}
	now := v.clock.Now()
	signedAt := time.Unix(ts, 0)
	if now.Sub(signedAt) > v.tolerance || signedAt.Sub(now) > v.tolerance {
		return nil, paymentdomain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(v.secret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return parseEvent(payload)
		}
	}

	return nil, paymentdomain.ErrInvalidSignature
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeCheckoutSession struct {
	ID            string            `json:"id"`
	PaymentIntent string            `json:"payment_intent"`
	Customer      string            `json:"customer"`
	Subscription  string            `json:"subscription"`
	Mode          string            `json:"mode"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

type stripePaymentIntent struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type stripeInvoice struct {
	ID            string `json:"id"`
	Customer      string `json:"customer"`
	Subscription  string `json:"subscription"`
	BillingReason string `json:"billing_reason"`
}

type stripeSubscription struct {
	ID       string            `json:"id"`
	Customer string            `json:"customer"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

func parseEvent(payload []byte) (*paymentdomain.Event, error) {
	var raw stripeEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(raw.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	event := &paymentdomain.Event{
		ID:         raw.ID,
		Type:       strings.TrimSpace(raw.Type),
		OccurredAt: timestamp(raw.Created),
		RawPayload: payload,
	}

	switch event.Type {
	case paymentdomain.EventTypeCheckoutSessionCompleted:
		var session stripeCheckoutSession
		if err := json.Unmarshal(raw.Data.Object, &session); err != nil {
			return nil, paymentdomain.ErrInvalidPayload
		}
		event.CheckoutSession = &paymentdomain.CheckoutSession{
			ID:              session.ID,
			PaymentIntentID: session.PaymentIntent,
			CustomerID:      session.Customer,
			SubscriptionID:  session.Subscription,
			Mode:            session.Mode,
			BookingID:       strings.TrimSpace(session.Metadata["bookingId"]),
			AmountTotal:     session.AmountTotal,
			Currency:        strings.ToUpper(strings.TrimSpace(session.Currency)),
		}
	case paymentdomain.EventTypePaymentIntentSucceeded:
		var intent stripePaymentIntent
		if err := json.Unmarshal(raw.Data.Object, &intent); err != nil {
			return nil, paymentdomain.ErrInvalidPayload
		}
		event.PaymentIntent = &paymentdomain.PaymentIntent{
			ID:       intent.ID,
			Amount:   intent.Amount,
			Currency: strings.ToUpper(strings.TrimSpace(intent.Currency)),
		}
	case paymentdomain.EventTypeInvoicePaymentSucceeded, paymentdomain.EventTypeInvoicePaymentFailed:
		var invoice stripeInvoice
		if err := json.Unmarshal(raw.Data.Object, &invoice); err != nil {
			return nil, paymentdomain.ErrInvalidPayload
		}
		event.Invoice = &paymentdomain.InvoicePayload{
			ID:             invoice.ID,
			CustomerID:     invoice.Customer,
			SubscriptionID: invoice.Subscription,
			BillingReason:  invoice.BillingReason,
		}
	case paymentdomain.EventTypeSubscriptionCreated,
		paymentdomain.EventTypeSubscriptionUpdated,
		paymentdomain.EventTypeSubscriptionDeleted:
		var sub stripeSubscription
		if err := json.Unmarshal(raw.Data.Object, &sub); err != nil {
			return nil, paymentdomain.ErrInvalidPayload
		}
		event.Subscription = &paymentdomain.SubscriptionPayload{
			ID:            sub.ID,
			CustomerID:    sub.Customer,
			Status:        strings.TrimSpace(sub.Status),
			Plan:          strings.TrimSpace(sub.Metadata["plan"]),
			BillingPeriod: strings.TrimSpace(sub.Metadata["billingPeriod"]),
		}
	}

	return event, nil
}

func timestamp(created int64) time.Time {
	if created == 0 {
		return time.Now().UTC()
	}
	return time.Unix(created, 0).UTC()
}
