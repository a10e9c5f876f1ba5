package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service interface {
	IssueForBooking(ctx context.Context, tx *gorm.DB, req IssueRequest) (*Invoice, error)
	FindByBookingID(ctx context.Context, tx *gorm.DB, bookingID snowflake.ID) (*Invoice, error)
	FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Invoice, error)
}

// IssueRequest carries everything the invoice needs, resolved up front by
// the booking reconciler so issuing stays a single write.
type IssueRequest struct {
	BookingID     snowflake.ID
	BusinessID    snowflake.ID
	BusinessName  string
	BusinessEmail string
	ClientName    string
	ClientEmail   string
	ServiceName   string
	AppointmentAt time.Time
	Amount        decimal.Decimal
	PlatformFee   decimal.Decimal
	NetAmount     decimal.Decimal
	Currency      string
}
