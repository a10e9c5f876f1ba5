// Package notification sends customer-facing emails. Deliveries are
// best-effort: reconciliation never fails because an email did not go out.
package notification

import (
	"context"
	"time"

	"github.com/salonkit/salonkit/internal/observability/metrics"
	"github.com/salonkit/salonkit/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const sendTimeout = 10 * time.Second

type Params struct {
	fx.In

	Log     *zap.Logger
	Email   email.Provider
	Metrics *metrics.Metrics
}

type Dispatcher struct {
	log     *zap.Logger
	email   email.Provider
	metrics *metrics.Metrics
}

func NewDispatcher(p Params) *Dispatcher {
	return &Dispatcher{
		log:     p.Log.Named("notification"),
		email:   p.Email,
		metrics: p.Metrics,
	}
}

// BookingConfirmation mails the client after their payment settles.
func (d *Dispatcher) BookingConfirmation(ctx context.Context, to string, data map[string]interface{}) {
	d.send(ctx, "booking_confirmation", to, data)
}

// SubscriptionWelcome mails the business owner the first time their
// subscription becomes active.
func (d *Dispatcher) SubscriptionWelcome(ctx context.Context, to string, data map[string]interface{}) {
	d.send(ctx, "subscription_welcome", to, data)
}

func (d *Dispatcher) send(ctx context.Context, templateName, to string, data map[string]interface{}) {
	if to == "" {
		d.log.Warn("skipping email with empty recipient", zap.String("template", templateName))
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()

	err := d.email.SendTemplate(sendCtx, []string{to}, templateName, data)
	d.metrics.RecordEmailSent(ctx, templateName, err == nil)
	if err != nil {
		d.log.Warn("email delivery failed",
			zap.String("template", templateName),
			zap.String("to", to),
			zap.Error(err),
		)
		return
	}

	d.log.Info("email sent",
		zap.String("template", templateName),
		zap.String("to", to),
	)
}
