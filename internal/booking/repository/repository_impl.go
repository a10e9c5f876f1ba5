package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/salonkit/salonkit/internal/booking/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const bookingColumns = `id, business_id, client_id, service_offering_id, start_at, end_at,
        total_amount, currency, payment_status, status,
        stripe_payment_intent_id, stripe_checkout_session_id,
        created_at, updated_at`

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Booking, error) {
	var booking domain.Booking
	err := db.WithContext(ctx).Raw(
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`,
		id,
	).Scan(&booking).Error
	if err != nil {
		return nil, err
	}
	if booking.ID == 0 {
		return nil, nil
	}
	return &booking, nil
}

func (r *repo) FindByCheckoutSessionID(ctx context.Context, db *gorm.DB, sessionID string) (*domain.Booking, error) {
	var booking domain.Booking
	err := db.WithContext(ctx).Raw(
		`SELECT `+bookingColumns+` FROM bookings WHERE stripe_checkout_session_id = ?`,
		sessionID,
	).Scan(&booking).Error
	if err != nil {
		return nil, err
	}
	if booking.ID == 0 {
		return nil, nil
	}
	return &booking, nil
}

func (r *repo) FindByPaymentIntentID(ctx context.Context, db *gorm.DB, intentID string) (*domain.Booking, error) {
	var booking domain.Booking
	err := db.WithContext(ctx).Raw(
		`SELECT `+bookingColumns+` FROM bookings WHERE stripe_payment_intent_id = ?`,
		intentID,
	).Scan(&booking).Error
	if err != nil {
		return nil, err
	}
	if booking.ID == 0 {
		return nil, nil
	}
	return &booking, nil
}

// MarkPaid confirms the booking and records the payment references. The
// payment_status guard makes the transition single-shot: a redelivered
// event updates zero rows and the caller skips the side effects.
func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, ref domain.PaymentReference) (bool, error) {
	now := time.Now().UTC()
	result := db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET payment_status = ?,
		     status = ?,
		     stripe_payment_intent_id = COALESCE(?, stripe_payment_intent_id),
		     stripe_checkout_session_id = COALESCE(?, stripe_checkout_session_id),
		     updated_at = ?
		 WHERE id = ? AND payment_status <> ?`,
		domain.PaymentStatusPaid,
		domain.StatusConfirmed,
		ref.PaymentIntentID,
		ref.CheckoutSessionID,
		now,
		id,
		domain.PaymentStatusPaid,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindClient(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Client, error) {
	var client domain.Client
	err := db.WithContext(ctx).Raw(
		`SELECT id, business_id, name, email, phone, created_at, updated_at
		 FROM clients WHERE id = ?`,
		id,
	).Scan(&client).Error
	if err != nil {
		return nil, err
	}
	if client.ID == 0 {
		return nil, nil
	}
	return &client, nil
}

func (r *repo) FindServiceOffering(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.ServiceOffering, error) {
	var offering domain.ServiceOffering
	err := db.WithContext(ctx).Raw(
		`SELECT id, business_id, name, duration_minutes, price, created_at, updated_at
		 FROM service_offerings WHERE id = ?`,
		id,
	).Scan(&offering).Error
	if err != nil {
		return nil, err
	}
	if offering.ID == 0 {
		return nil, nil
	}
	return &offering, nil
}
