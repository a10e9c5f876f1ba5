// Package domain contains the invoice persistence model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Invoice is the receipt issued when a booking's payment settles. One
// invoice per booking, enforced by the unique booking_id index.
type Invoice struct {
	ID          snowflake.ID    `gorm:"primaryKey"`
	BookingID   snowflake.ID    `gorm:"not null;uniqueIndex:ux_invoice_booking"`
	BusinessID  snowflake.ID    `gorm:"not null;index"`
	Number      string          `gorm:"type:text;not null;uniqueIndex:ux_invoice_number"`
	Amount      decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	PlatformFee decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	NetAmount   decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	Currency    string          `gorm:"type:text;not null"`
	DocumentURL string          `gorm:"type:text"`
	IssuedAt    time.Time       `gorm:"not null"`
	CreatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }
