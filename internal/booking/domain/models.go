// Package domain contains persistence models for appointments.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// PaymentStatus tracks whether a booking has been paid for.
type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "UNPAID"
	PaymentStatusPaid   PaymentStatus = "PAID"
)

// Status represents booking lifecycle states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Booking represents one scheduled appointment. The paid transition is
// performed exactly once by the booking reconciler.
type Booking struct {
	ID                      snowflake.ID    `gorm:"primaryKey"`
	BusinessID              snowflake.ID    `gorm:"not null;index"`
	ClientID                snowflake.ID    `gorm:"not null;index"`
	ServiceOfferingID       snowflake.ID    `gorm:"not null;index"`
	StartAt                 time.Time       `gorm:"not null"`
	EndAt                   time.Time       `gorm:"not null"`
	TotalAmount             decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	Currency                string          `gorm:"type:text;not null;default:'USD'"`
	PaymentStatus           PaymentStatus   `gorm:"type:text;not null;default:'UNPAID'"`
	Status                  Status          `gorm:"type:text;not null;default:'pending'"`
	StripePaymentIntentID   *string         `gorm:"type:text;uniqueIndex:ux_booking_payment_intent"`
	StripeCheckoutSessionID *string         `gorm:"type:text;uniqueIndex:ux_booking_checkout_session"`
	CreatedAt               time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt               time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Booking) TableName() string { return "bookings" }

// Client is a business's end customer. Read-only in the reconciliation path.
type Client struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	BusinessID snowflake.ID `gorm:"not null;index"`
	Name       string       `gorm:"type:text;not null"`
	Email      string       `gorm:"type:text;not null"`
	Phone      string       `gorm:"type:text"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Client) TableName() string { return "clients" }

// ServiceOffering is a bookable service. Read-only in the reconciliation path.
type ServiceOffering struct {
	ID              snowflake.ID    `gorm:"primaryKey"`
	BusinessID      snowflake.ID    `gorm:"not null;index"`
	Name            string          `gorm:"type:text;not null"`
	DurationMinutes int             `gorm:"not null"`
	Price           decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	CreatedAt       time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ServiceOffering) TableName() string { return "service_offerings" }
