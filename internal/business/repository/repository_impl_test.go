package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/salonkit/salonkit/internal/business/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Exec(`CREATE TABLE IF NOT EXISTS business_accounts (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		owner_email TEXT NOT NULL,
		stripe_customer_id TEXT NOT NULL,
		stripe_subscription_id TEXT,
		plan TEXT NOT NULL DEFAULT 'free',
		subscription_status TEXT NOT NULL DEFAULT '',
		welcome_email_sent_at TIMESTAMP,
		total_earnings NUMERIC NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

func seedAccount(t *testing.T, db *gorm.DB, node *snowflake.Node) *domain.BusinessAccount {
	t.Helper()
	now := time.Now().UTC()
	account := &domain.BusinessAccount{
		ID:               node.Generate(),
		Name:             "Glow Studio",
		OwnerEmail:       "owner@glow.test",
		StripeCustomerID: "cus_glow",
		Plan:             domain.PlanFree,
		TotalEarnings:    decimal.Zero,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return account
}

func TestMarkWelcomeEmailSentOneShot(t *testing.T) {
	db := newTestDB(t)
	node, _ := snowflake.NewNode(1)
	repo := Provide()
	ctx := context.Background()

	account := seedAccount(t, db, node)

	first, err := repo.MarkWelcomeEmailSent(ctx, db, account.ID)
	assert.NoError(t, err)
	assert.True(t, first)

	second, err := repo.MarkWelcomeEmailSent(ctx, db, account.ID)
	assert.NoError(t, err)
	assert.False(t, second, "welcome mark must only fire once")
}

func TestAccrueEarningsSums(t *testing.T) {
	db := newTestDB(t)
	node, _ := snowflake.NewNode(1)
	repo := Provide()
	ctx := context.Background()

	account := seedAccount(t, db, node)

	assert.NoError(t, repo.AccrueEarnings(ctx, db, account.ID, decimal.RequireFromString("95.00")))
	assert.NoError(t, repo.AccrueEarnings(ctx, db, account.ID, decimal.RequireFromString("38.00")))

	got, err := repo.FindByID(ctx, db, account.ID)
	assert.NoError(t, err)
	if assert.NotNil(t, got) {
		assert.True(t, got.TotalEarnings.Equal(decimal.RequireFromString("133")),
			"earnings %s", got.TotalEarnings)
	}
}

func TestFindByStripeCustomerID(t *testing.T) {
	db := newTestDB(t)
	node, _ := snowflake.NewNode(1)
	repo := Provide()
	ctx := context.Background()

	account := seedAccount(t, db, node)

	got, err := repo.FindByStripeCustomerID(ctx, db, "cus_glow")
	assert.NoError(t, err)
	if assert.NotNil(t, got) {
		assert.Equal(t, account.ID, got.ID)
	}

	missing, err := repo.FindByStripeCustomerID(ctx, db, "cus_other")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdateSubscriptionFields(t *testing.T) {
	db := newTestDB(t)
	node, _ := snowflake.NewNode(1)
	repo := Provide()
	ctx := context.Background()

	account := seedAccount(t, db, node)

	plan := domain.PlanPro
	status := domain.SubscriptionStatusActive
	subID := "sub_1"
	assert.NoError(t, repo.UpdateSubscription(ctx, db, account.ID, domain.SubscriptionUpdate{
		Plan:                 &plan,
		Status:               &status,
		StripeSubscriptionID: &subID,
	}))

	got, err := repo.FindByID(ctx, db, account.ID)
	assert.NoError(t, err)
	if assert.NotNil(t, got) {
		assert.Equal(t, domain.PlanPro, got.Plan)
		assert.Equal(t, domain.SubscriptionStatusActive, got.SubscriptionStatus)
		if assert.NotNil(t, got.StripeSubscriptionID) {
			assert.Equal(t, "sub_1", *got.StripeSubscriptionID)
		}
	}

	assert.NoError(t, repo.UpdateSubscription(ctx, db, account.ID, domain.SubscriptionUpdate{
		ClearSubscriptionID: true,
	}))
	got, err = repo.FindByID(ctx, db, account.ID)
	assert.NoError(t, err)
	if assert.NotNil(t, got) {
		assert.Nil(t, got.StripeSubscriptionID)
		assert.Equal(t, domain.PlanPro, got.Plan, "clearing the subscription id must not touch plan")
	}
}
