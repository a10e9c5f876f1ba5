// Package domain contains persistence models for business accounts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Plan represents the subscription tier of a business account.
type Plan string

const (
	PlanFree     Plan = "free"
	PlanPro      Plan = "pro"
	PlanBusiness Plan = "business"
)

// SubscriptionStatus mirrors the payment provider's subscription state.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusNone     SubscriptionStatus = ""
)

// BusinessAccount represents a tenant. Plan and subscription fields are
// mutated only by the subscription reconciler, TotalEarnings only by the
// booking reconciler.
type BusinessAccount struct {
	ID                   snowflake.ID       `gorm:"primaryKey"`
	Name                 string             `gorm:"type:text;not null"`
	OwnerEmail           string             `gorm:"type:text;not null"`
	StripeCustomerID     string             `gorm:"type:text;not null;uniqueIndex:ux_business_stripe_customer"`
	StripeSubscriptionID *string            `gorm:"type:text"`
	Plan                 Plan               `gorm:"type:text;not null;default:'free'"`
	SubscriptionStatus   SubscriptionStatus `gorm:"type:text;not null;default:''"`
	WelcomeEmailSentAt   *time.Time         `gorm:""`
	TotalEarnings        decimal.Decimal    `gorm:"type:decimal(14,2);not null;default:0"`
	CreatedAt            time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt            time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BusinessAccount) TableName() string { return "business_accounts" }

// NormalizePlan maps provider metadata to a known plan, defaulting to free.
func NormalizePlan(raw string) Plan {
	switch Plan(raw) {
	case PlanPro:
		return PlanPro
	case PlanBusiness:
		return PlanBusiness
	default:
		return PlanFree
	}
}
