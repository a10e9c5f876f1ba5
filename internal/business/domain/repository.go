package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("business_account_not_found")

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*BusinessAccount, error)
	FindByStripeCustomerID(ctx context.Context, db *gorm.DB, customerID string) (*BusinessAccount, error)
	UpdateSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID, update SubscriptionUpdate) error
	MarkWelcomeEmailSent(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	AccrueEarnings(ctx context.Context, db *gorm.DB, id snowflake.ID, delta decimal.Decimal) error
}

// SubscriptionUpdate carries the subscription reconciler's field changes.
// Nil pointers leave the column untouched.
type SubscriptionUpdate struct {
	Plan                 *Plan
	Status               *SubscriptionStatus
	StripeSubscriptionID *string
	ClearSubscriptionID  bool
}
