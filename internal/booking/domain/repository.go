package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("booking_not_found")

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Booking, error)
	FindByCheckoutSessionID(ctx context.Context, db *gorm.DB, sessionID string) (*Booking, error)
	FindByPaymentIntentID(ctx context.Context, db *gorm.DB, intentID string) (*Booking, error)
	// MarkPaid performs the conditional paid transition and reports whether
	// this call won it. A false return means another delivery got there first.
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, ref PaymentReference) (bool, error)
	FindClient(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Client, error)
	FindServiceOffering(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ServiceOffering, error)
}

// PaymentReference records the provider identifiers that matched the event,
// so replays resolve the same booking.
type PaymentReference struct {
	CheckoutSessionID *string
	PaymentIntentID   *string
}
