package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/salonkit/salonkit/internal/booking/domain"
	businessdomain "github.com/salonkit/salonkit/internal/business/domain"
	invoicedomain "github.com/salonkit/salonkit/internal/invoice/domain"
	invoiceservice "github.com/salonkit/salonkit/internal/invoice/service"
	paymentdomain "github.com/salonkit/salonkit/internal/payment/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const bookingLockTTL = 30 * time.Second

// reconcileCheckoutSession settles the booking a completed checkout
// session paid for. The session is matched by the bookingId it carries
// in metadata, falling back to a previously stored session reference.
func (s *Service) reconcileCheckoutSession(ctx context.Context, event *paymentdomain.Event) error {
	session := event.CheckoutSession
	if session == nil {
		return paymentdomain.ErrInvalidPayload
	}

	booking, err := s.resolveBookingForSession(ctx, session)
	if err != nil {
		return err
	}
	if booking == nil {
		s.log.Info("no booking matched checkout session",
			zap.String("event_id", event.ID),
			zap.String("session_id", session.ID),
		)
		return nil
	}

	ref := bookingdomain.PaymentReference{
		CheckoutSessionID: nonEmptyPtr(session.ID),
		PaymentIntentID:   nonEmptyPtr(session.PaymentIntentID),
	}
	return s.settleBooking(ctx, booking, ref)
}

// reconcilePaymentIntent settles a booking matched by its stored
// payment-intent reference. Matching is exact; an intent that matches no
// booking is acknowledged and logged, since it can belong to another
// subsystem such as subscription billing.
func (s *Service) reconcilePaymentIntent(ctx context.Context, event *paymentdomain.Event) error {
	intent := event.PaymentIntent
	if intent == nil {
		return paymentdomain.ErrInvalidPayload
	}

	booking, err := s.bookingRepo.FindByPaymentIntentID(ctx, s.db, intent.ID)
	if err != nil {
		return err
	}
	if booking == nil {
		s.log.Info("no booking matched payment intent",
			zap.String("event_id", event.ID),
			zap.String("payment_intent_id", intent.ID),
		)
		return nil
	}

	ref := bookingdomain.PaymentReference{PaymentIntentID: nonEmptyPtr(intent.ID)}
	return s.settleBooking(ctx, booking, ref)
}

func (s *Service) resolveBookingForSession(ctx context.Context, session *paymentdomain.CheckoutSession) (*bookingdomain.Booking, error) {
	if session.BookingID != "" {
		bookingID, err := snowflake.ParseString(session.BookingID)
		if err == nil {
			booking, err := s.bookingRepo.FindByID(ctx, s.db, bookingID)
			if err != nil {
				return nil, err
			}
			if booking != nil {
				return booking, nil
			}
		} else {
			s.log.Warn("checkout session carries malformed booking id",
				zap.String("session_id", session.ID),
				zap.String("booking_id", session.BookingID),
			)
		}
	}
	return s.bookingRepo.FindByCheckoutSessionID(ctx, s.db, session.ID)
}

// settleBooking performs the paid transition, invoice issue, and
// earnings accrual in one transaction. The conditional update in
// MarkPaid is the idempotency gate: only the delivery that wins it runs
// the financial side effects, every other delivery is a no-op.
func (s *Service) settleBooking(ctx context.Context, booking *bookingdomain.Booking, ref bookingdomain.PaymentReference) error {
	if s.locker != nil {
		key := "salonkit:booking:settle:" + booking.ID.String()
		token, ok, err := s.locker.TryLock(ctx, key, bookingLockTTL)
		if err != nil {
			s.log.Warn("booking settle lock unavailable", zap.Error(err))
		} else if ok {
			defer func() {
				if rerr := s.locker.Release(ctx, key, token); rerr != nil {
					s.log.Warn("booking settle lock release failed", zap.Error(rerr))
				}
			}()
		}
	}

	var (
		won      bool
		issued   *invoicedomain.Invoice
		business *businessdomain.BusinessAccount
		client   *bookingdomain.Client
		offering *bookingdomain.ServiceOffering
	)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		won, err = s.bookingRepo.MarkPaid(ctx, tx, booking.ID, ref)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}

		business, err = s.businessRepo.FindByID(ctx, tx, booking.BusinessID)
		if err != nil {
			return err
		}
		if business == nil {
			return fmt.Errorf("business account %s not found for booking %s", booking.BusinessID, booking.ID)
		}
		client, err = s.bookingRepo.FindClient(ctx, tx, booking.ClientID)
		if err != nil {
			return err
		}
		offering, err = s.bookingRepo.FindServiceOffering(ctx, tx, booking.ServiceOfferingID)
		if err != nil {
			return err
		}

		fee, net := invoiceservice.SplitAmount(booking.TotalAmount, s.cfg.PlatformFeePercent)

		req := invoicedomain.IssueRequest{
			BookingID:     booking.ID,
			BusinessID:    business.ID,
			BusinessName:  business.Name,
			BusinessEmail: business.OwnerEmail,
			ServiceName:   "Service",
			AppointmentAt: booking.StartAt,
			Amount:        booking.TotalAmount,
			PlatformFee:   fee,
			NetAmount:     net,
			Currency:      booking.Currency,
		}
		if client != nil {
			req.ClientName = client.Name
			req.ClientEmail = client.Email
		}
		if offering != nil {
			req.ServiceName = offering.Name
		}

		issued, err = s.invoiceSvc.IssueForBooking(ctx, tx, req)
		if err != nil {
			return err
		}

		return s.businessRepo.AccrueEarnings(ctx, tx, business.ID, net)
	})
	if err != nil {
		return err
	}

	if !won {
		s.log.Debug("booking already paid, skipping settlement",
			zap.String("booking_id", booking.ID.String()),
		)
		return nil
	}

	s.log.Info("booking settled",
		zap.String("booking_id", booking.ID.String()),
		zap.String("business_id", booking.BusinessID.String()),
		zap.String("invoice_number", issued.Number),
		zap.String("amount", booking.TotalAmount.StringFixed(2)),
	)
	if s.obsMetrics != nil {
		s.obsMetrics.RecordInvoiceIssued(ctx)
	}
	s.recordReconciliation(ctx, "booking")

	if client != nil && client.Email != "" {
		data := map[string]interface{}{
			"client_name":    client.Name,
			"business_name":  business.Name,
			"service_name":   "your appointment",
			"start_at":       booking.StartAt.Format("Mon, Jan 2 2006 at 15:04"),
			"amount":         booking.TotalAmount.StringFixed(2),
			"currency":       booking.Currency,
			"invoice_number": issued.Number,
		}
		if offering != nil {
			data["service_name"] = offering.Name
		}
		s.notifier.BookingConfirmation(ctx, client.Email, data)
	}

	return nil
}

func nonEmptyPtr(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
