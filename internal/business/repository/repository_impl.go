package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/salonkit/salonkit/internal/business/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.BusinessAccount, error) {
	var account domain.BusinessAccount
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, owner_email, stripe_customer_id, stripe_subscription_id,
		        plan, subscription_status, welcome_email_sent_at, total_earnings,
		        created_at, updated_at
		 FROM business_accounts WHERE id = ?`,
		id,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) FindByStripeCustomerID(ctx context.Context, db *gorm.DB, customerID string) (*domain.BusinessAccount, error) {
	var account domain.BusinessAccount
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, owner_email, stripe_customer_id, stripe_subscription_id,
		        plan, subscription_status, welcome_email_sent_at, total_earnings,
		        created_at, updated_at
		 FROM business_accounts WHERE stripe_customer_id = ?`,
		customerID,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) UpdateSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID, update domain.SubscriptionUpdate) error {
	fields := map[string]any{
		"updated_at": time.Now().UTC(),
	}
	if update.Plan != nil {
		fields["plan"] = *update.Plan
	}
	if update.Status != nil {
		fields["subscription_status"] = *update.Status
	}
	if update.ClearSubscriptionID {
		fields["stripe_subscription_id"] = nil
	} else if update.StripeSubscriptionID != nil {
		fields["stripe_subscription_id"] = *update.StripeSubscriptionID
	}

	return db.WithContext(ctx).
		Model(&domain.BusinessAccount{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// MarkWelcomeEmailSent flips welcome_email_sent_at once. The conditional
// update makes the welcome mail a one-shot even under redelivery.
func (r *repo) MarkWelcomeEmailSent(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE business_accounts
		 SET welcome_email_sent_at = ?, updated_at = ?
		 WHERE id = ? AND welcome_email_sent_at IS NULL`,
		time.Now().UTC(),
		time.Now().UTC(),
		id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) AccrueEarnings(ctx context.Context, db *gorm.DB, id snowflake.ID, delta decimal.Decimal) error {
	return db.WithContext(ctx).Exec(
		`UPDATE business_accounts
		 SET total_earnings = total_earnings + ?, updated_at = ?
		 WHERE id = ?`,
		delta,
		time.Now().UTC(),
		id,
	).Error
}
