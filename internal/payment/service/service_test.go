package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	bookingdomain "github.com/salonkit/salonkit/internal/booking/domain"
	bookingrepository "github.com/salonkit/salonkit/internal/booking/repository"
	businessdomain "github.com/salonkit/salonkit/internal/business/domain"
	businessrepository "github.com/salonkit/salonkit/internal/business/repository"
	"github.com/salonkit/salonkit/internal/clock"
	"github.com/salonkit/salonkit/internal/config"
	invoicerepository "github.com/salonkit/salonkit/internal/invoice/repository"
	invoiceservice "github.com/salonkit/salonkit/internal/invoice/service"
	"github.com/salonkit/salonkit/internal/notification"
	paymentdomain "github.com/salonkit/salonkit/internal/payment/domain"
	paymentrepository "github.com/salonkit/salonkit/internal/payment/repository"
	"github.com/salonkit/salonkit/internal/providers/pdf"
	"github.com/salonkit/salonkit/internal/stripeapi"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingEmailProvider struct {
	sent []sentEmail
}

type sentEmail struct {
	to       string
	template string
	data     map[string]interface{}
}

func (p *recordingEmailProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	p.sent = append(p.sent, sentEmail{to: to[0]})
	return nil
}

func (p *recordingEmailProvider) SendTemplate(ctx context.Context, to []string, templateName string, data interface{}) error {
	mail := sentEmail{to: to[0], template: templateName}
	if m, ok := data.(map[string]interface{}); ok {
		mail.data = m
	}
	p.sent = append(p.sent, mail)
	return nil
}

type fakeSubscriptionAPI struct {
	sub *stripeapi.Subscription
	err error
}

func (f *fakeSubscriptionAPI) GetSubscription(ctx context.Context, subscriptionID string) (*stripeapi.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sub, nil
}

type testHarness struct {
	svc    *Service
	db     *gorm.DB
	node   *snowflake.Node
	emails *recordingEmailProvider
	subAPI *fakeSubscriptionAPI
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// Create tables manually to match production schema
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS business_accounts (
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
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_business_stripe_customer ON business_accounts (stripe_customer_id)`,
		`CREATE TABLE IF NOT EXISTS clients (
			id BIGINT PRIMARY KEY,
			business_id BIGINT NOT NULL,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			phone TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS service_offerings (
			id BIGINT PRIMARY KEY,
			business_id BIGINT NOT NULL,
			name TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL,
			price NUMERIC NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bookings (
			id BIGINT PRIMARY KEY,
			business_id BIGINT NOT NULL,
			client_id BIGINT NOT NULL,
			service_offering_id BIGINT NOT NULL,
			start_at TIMESTAMP NOT NULL,
			end_at TIMESTAMP NOT NULL,
			total_amount NUMERIC NOT NULL,
			currency TEXT NOT NULL DEFAULT 'USD',
			payment_status TEXT NOT NULL DEFAULT 'UNPAID',
			status TEXT NOT NULL DEFAULT 'pending',
			stripe_payment_intent_id TEXT,
			stripe_checkout_session_id TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS invoices (
			id BIGINT PRIMARY KEY,
			booking_id BIGINT NOT NULL,
			business_id BIGINT NOT NULL,
			number TEXT NOT NULL,
			amount NUMERIC NOT NULL,
			platform_fee NUMERIC NOT NULL,
			net_amount NUMERIC NOT NULL,
			currency TEXT NOT NULL,
			document_url TEXT,
			issued_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_invoice_booking ON invoices (booking_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_invoice_number ON invoices (number)`,
		`CREATE TABLE IF NOT EXISTS webhook_events (
			id BIGINT PRIMARY KEY,
			provider TEXT NOT NULL,
			provider_event_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT,
			received_at TIMESTAMP NOT NULL,
			processed_at TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_webhook_provider_event ON webhook_events (provider, provider_event_id)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	cfg := config.Config{PlatformFeePercent: 5, InvoiceDir: t.TempDir()}

	emails := &recordingEmailProvider{}
	notifier := notification.NewDispatcher(notification.Params{
		Log:   log,
		Email: emails,
	})

	invoiceSvc := invoiceservice.NewService(invoiceservice.ServiceParam{
		Config: cfg,
		Log:    log,
		GenID:  node,
		Clock:  clk,
		Repo:   invoicerepository.Provide(),
		PDF:    &pdf.NoOpProvider{},
	})

	subAPI := &fakeSubscriptionAPI{}

	svc := &Service{
		db:           db,
		log:          log,
		genID:        node,
		clock:        clk,
		cfg:          cfg,
		repo:         paymentrepository.Provide(),
		businessRepo: businessrepository.Provide(),
		bookingRepo:  bookingrepository.Provide(),
		invoiceSvc:   invoiceSvc,
		stripeAPI:    subAPI,
		notifier:     notifier,
	}

	return &testHarness{svc: svc, db: db, node: node, emails: emails, subAPI: subAPI}
}

func (h *testHarness) seedBusiness(t *testing.T, plan businessdomain.Plan, status businessdomain.SubscriptionStatus) *businessdomain.BusinessAccount {
	t.Helper()
	account := &businessdomain.BusinessAccount{
		ID:                 h.node.Generate(),
		Name:               "Shear Genius",
		OwnerEmail:         "owner@sheargenius.test",
		StripeCustomerID:   "cus_" + h.node.Generate().String(),
		Plan:               plan,
		SubscriptionStatus: status,
		TotalEarnings:      decimal.Zero,
		CreatedAt:          time.Now().UTC(),
		UpdatedAt:          time.Now().UTC(),
	}
	if err := h.db.Create(account).Error; err != nil {
		t.Fatalf("seed business: %v", err)
	}
	return account
}

func (h *testHarness) seedBooking(t *testing.T, businessID snowflake.ID, total string) *bookingdomain.Booking {
	t.Helper()
	now := time.Now().UTC()

	client := &bookingdomain.Client{
		ID:         h.node.Generate(),
		BusinessID: businessID,
		Name:       "Dana Client",
		Email:      "dana@example.test",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.db.Create(client).Error; err != nil {
		t.Fatalf("seed client: %v", err)
	}

	offering := &bookingdomain.ServiceOffering{
		ID:              h.node.Generate(),
		BusinessID:      businessID,
		Name:            "Haircut",
		DurationMinutes: 45,
		Price:           decimal.RequireFromString(total),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := h.db.Create(offering).Error; err != nil {
		t.Fatalf("seed offering: %v", err)
	}

	booking := &bookingdomain.Booking{
		ID:                h.node.Generate(),
		BusinessID:        businessID,
		ClientID:          client.ID,
		ServiceOfferingID: offering.ID,
		StartAt:           now.Add(24 * time.Hour),
		EndAt:             now.Add(24*time.Hour + 45*time.Minute),
		TotalAmount:       decimal.RequireFromString(total),
		Currency:          "USD",
		PaymentStatus:     bookingdomain.PaymentStatusUnpaid,
		Status:            bookingdomain.StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := h.db.Create(booking).Error; err != nil {
		t.Fatalf("seed booking: %v", err)
	}
	return booking
}

func checkoutEvent(eventID string, bookingID snowflake.ID, sessionID string) *paymentdomain.Event {
	return &paymentdomain.Event{
		ID:         eventID,
		Type:       paymentdomain.EventTypeCheckoutSessionCompleted,
		OccurredAt: time.Now().UTC(),
		RawPayload: []byte(`{}`),
		CheckoutSession: &paymentdomain.CheckoutSession{
			ID:              sessionID,
			PaymentIntentID: "pi_" + sessionID,
			Mode:            "payment",
			BookingID:       bookingID.String(),
		},
	}
}

func TestCheckoutSettlementHappyPath(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	account := h.seedBusiness(t, businessdomain.PlanFree, businessdomain.SubscriptionStatusNone)
	booking := h.seedBooking(t, account.ID, "100.00")

	err := h.svc.ProcessEvent(ctx, checkoutEvent("evt_1", booking.ID, "cs_1"))
	assert.NoError(t, err)

	var got bookingdomain.Booking
	assert.NoError(t, h.db.First(&got, "id = ?", booking.ID).Error)
	assert.Equal(t, bookingdomain.PaymentStatusPaid, got.PaymentStatus)
	assert.Equal(t, bookingdomain.StatusConfirmed, got.Status)
	if assert.NotNil(t, got.StripeCheckoutSessionID) {
		assert.Equal(t, "cs_1", *got.StripeCheckoutSessionID)
	}

	var invoiceCount int64
	assert.NoError(t, h.db.Table("invoices").Where("booking_id = ?", booking.ID).Count(&invoiceCount).Error)
	assert.EqualValues(t, 1, invoiceCount)

	var fee, net string
	row := h.db.Raw(`SELECT platform_fee, net_amount FROM invoices WHERE booking_id = ?`, booking.ID).Row()
	assert.NoError(t, row.Scan(&fee, &net))
	assert.True(t, decimal.RequireFromString(fee).Equal(decimal.RequireFromString("5")), "fee %s", fee)
	assert.True(t, decimal.RequireFromString(net).Equal(decimal.RequireFromString("95")), "net %s", net)

	var updated businessdomain.BusinessAccount
	assert.NoError(t, h.db.First(&updated, "id = ?", account.ID).Error)
	assert.True(t, updated.TotalEarnings.Equal(decimal.RequireFromString("95")),
		"earnings %s", updated.TotalEarnings)

	if assert.Len(t, h.emails.sent, 1) {
		assert.Equal(t, "booking_confirmation", h.emails.sent[0].template)
		assert.Equal(t, "dana@example.test", h.emails.sent[0].to)
	}
}

func TestCheckoutSettlementIdempotent(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	account := h.seedBusiness(t, businessdomain.PlanFree, businessdomain.SubscriptionStatusNone)
	booking := h.seedBooking(t, account.ID, "100.00")

	assert.NoError(t, h.svc.ProcessEvent(ctx, checkoutEvent("evt_1", booking.ID, "cs_1")))

	// Same event id redelivered: inbox short-circuit.
	err := h.svc.ProcessEvent(ctx, checkoutEvent("evt_1", booking.ID, "cs_1"))
	assert.True(t, errors.Is(err, paymentdomain.ErrEventAlreadyProcessed))

	// A distinct event for the same booking: payment-status gate.
	assert.NoError(t, h.svc.ProcessEvent(ctx, checkoutEvent("evt_2", booking.ID, "cs_1")))

	var invoiceCount int64
	assert.NoError(t, h.db.Table("invoices").Where("booking_id = ?", booking.ID).Count(&invoiceCount).Error)
	assert.EqualValues(t, 1, invoiceCount)

	var updated businessdomain.BusinessAccount
	assert.NoError(t, h.db.First(&updated, "id = ?", account.ID).Error)
	assert.True(t, updated.TotalEarnings.Equal(decimal.RequireFromString("95")),
		"earnings accrued more than once: %s", updated.TotalEarnings)

	assert.Len(t, h.emails.sent, 1)
}

func TestPaymentIntentMatchesStoredReference(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	account := h.seedBusiness(t, businessdomain.PlanFree, businessdomain.SubscriptionStatusNone)
	booking := h.seedBooking(t, account.ID, "40.00")
	assert.NoError(t, h.db.Exec(
		`UPDATE bookings SET stripe_payment_intent_id = ? WHERE id = ?`, "pi_known", booking.ID,
	).Error)

	event := &paymentdomain.Event{
		ID:            "evt_pi",
		Type:          paymentdomain.EventTypePaymentIntentSucceeded,
		OccurredAt:    time.Now().UTC(),
		RawPayload:    []byte(`{}`),
		PaymentIntent: &paymentdomain.PaymentIntent{ID: "pi_known", Amount: 4000, Currency: "USD"},
	}
	assert.NoError(t, h.svc.ProcessEvent(ctx, event))

	var got bookingdomain.Booking
	assert.NoError(t, h.db.First(&got, "id = ?", booking.ID).Error)
	assert.Equal(t, bookingdomain.PaymentStatusPaid, got.PaymentStatus)
}

func TestPaymentIntentWithoutMatchIsAcknowledged(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	event := &paymentdomain.Event{
		ID:            "evt_orphan",
		Type:          paymentdomain.EventTypePaymentIntentSucceeded,
		OccurredAt:    time.Now().UTC(),
		RawPayload:    []byte(`{}`),
		PaymentIntent: &paymentdomain.PaymentIntent{ID: "pi_nowhere", Amount: 500, Currency: "USD"},
	}
	assert.NoError(t, h.svc.ProcessEvent(ctx, event))

	var processed int64
	assert.NoError(t, h.db.Table("webhook_events").
		Where("provider_event_id = ? AND processed_at IS NOT NULL", "evt_orphan").
		Count(&processed).Error)
	assert.EqualValues(t, 1, processed)
}

func TestUnknownEventTypeAcknowledged(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	event := &paymentdomain.Event{
		ID:         "evt_unknown",
		Type:       "customer.created",
		OccurredAt: time.Now().UTC(),
		RawPayload: []byte(`{}`),
	}
	assert.NoError(t, h.svc.ProcessEvent(ctx, event))
	assert.Empty(t, h.emails.sent)
}

func TestSubscriptionCreatedSetsPlanWhenActive(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	account := h.seedBusiness(t, businessdomain.PlanFree, businessdomain.SubscriptionStatusNone)

	event := &paymentdomain.Event{
		ID:         "evt_sub_created",
		Type:       paymentdomain.EventTypeSubscriptionCreated,
		OccurredAt: time.Now().UTC(),
		RawPayload: []byte(`{}`),
		Subscription: &paymentdomain.SubscriptionPayload{
			ID:         "sub_1",
			CustomerID: account.StripeCustomerID,
			Status:     "active",
			Plan:       "pro",
		},
	}
	assert.NoError(t, h.svc.ProcessEvent(ctx, event))

	var got businessdomain.BusinessAccount
	assert.NoError(t, h.db.First(&got, "id = ?", account.ID).Error)
	assert.Equal(t, businessdomain.PlanPro, got.Plan)
	assert.Equal(t, businessdomain.SubscriptionStatusActive, got.SubscriptionStatus)
	if assert.NotNil(t, got.StripeSubscriptionID) {
		assert.Equal(t, "sub_1", *got.StripeSubscriptionID)
	}
}

func TestSubscriptionUpdatedPastDueKeepsPlan(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	account := h.seedBusiness(t, businessdomain.PlanBusiness, businessdomain.SubscriptionStatusActive)

	event := &paymentdomain.Event{
		ID:         "evt_sub_updated",
		Type:       paymentdomain.EventTypeSubscriptionUpdated,
		OccurredAt: time.Now().UTC(),
		RawPayload: []byte(`{}`),
		Subscription: &paymentdomain.SubscriptionPayload{
			ID:         "sub_1",
			CustomerID: account.StripeCustomerID,
			Status:     "past_due",
			Plan:       "free",
		},
	}
	assert.NoError(t, h.svc.ProcessEvent(ctx, event))

	var got businessdomain.BusinessAccount
	assert.NoError(t, h.db.First(&got, "id = ?", account.ID).Error)
	assert.Equal(t, businessdomain.PlanBusiness, got.Plan, "plan must survive non-active status")
	assert.Equal(t, businessdomain.SubscriptionStatusPastDue, got.SubscriptionStatus)
}

func TestSubscriptionDeletedDowngradesToFree(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	account := h.seedBusiness(t, businessdomain.PlanBusiness, businessdomain.SubscriptionStatusActive)
	assert.NoError(t, h.db.Exec(
		`UPDATE business_accounts SET stripe_subscription_id = ? WHERE id = ?`, "sub_1", account.ID,
	).Error)

	event := &paymentdomain.Event{
		ID:         "evt_sub_deleted",
		Type:       paymentdomain.EventTypeSubscriptionDeleted,
		OccurredAt: time.Now().UTC(),
		RawPayload: []byte(`{}`),
		Subscription: &paymentdomain.SubscriptionPayload{
			ID:         "sub_1",
			CustomerID: account.StripeCustomerID,
			Status:     "canceled",
		},
	}
	assert.NoError(t, h.svc.ProcessEvent(ctx, event))

	var got businessdomain.BusinessAccount
	assert.NoError(t, h.db.First(&got, "id = ?", account.ID).Error)
	assert.Equal(t, businessdomain.PlanFree, got.Plan)
	assert.Equal(t, businessdomain.SubscriptionStatusCanceled, got.SubscriptionStatus)
	assert.Nil(t, got.StripeSubscriptionID)
}

func TestInvoicePaymentSucceededSendsWelcomeOnce(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	account := h.seedBusiness(t, businessdomain.PlanFree, businessdomain.SubscriptionStatusNone)
	h.subAPI.sub = &stripeapi.Subscription{
		ID:         "sub_1",
		Status:     "active",
		CustomerID: account.StripeCustomerID,
		Interval:   "month",
		Metadata:   map[string]string{"plan": "pro", "billingPeriod": "monthly"},
	}

	invoicePaid := func(eventID string) *paymentdomain.Event {
		return &paymentdomain.Event{
			ID:         eventID,
			Type:       paymentdomain.EventTypeInvoicePaymentSucceeded,
			OccurredAt: time.Now().UTC(),
			RawPayload: []byte(`{}`),
			Invoice: &paymentdomain.InvoicePayload{
				ID:             "in_" + eventID,
				CustomerID:     account.StripeCustomerID,
				SubscriptionID: "sub_1",
			},
		}
	}

	assert.NoError(t, h.svc.ProcessEvent(ctx, invoicePaid("evt_inv_1")))
	assert.NoError(t, h.svc.ProcessEvent(ctx, invoicePaid("evt_inv_2")))

	var got businessdomain.BusinessAccount
	assert.NoError(t, h.db.First(&got, "id = ?", account.ID).Error)
	assert.Equal(t, businessdomain.PlanPro, got.Plan)
	assert.Equal(t, businessdomain.SubscriptionStatusActive, got.SubscriptionStatus)
	assert.NotNil(t, got.WelcomeEmailSentAt)

	welcomes := 0
	for _, mail := range h.emails.sent {
		if mail.template == "subscription_welcome" {
			welcomes++
			assert.Equal(t, "owner@sheargenius.test", mail.to)
		}
	}
	assert.Equal(t, 1, welcomes, "welcome email must be one-shot")
}

func TestInvoicePaymentFailedMarksPastDue(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	account := h.seedBusiness(t, businessdomain.PlanPro, businessdomain.SubscriptionStatusActive)

	event := &paymentdomain.Event{
		ID:         "evt_inv_failed",
		Type:       paymentdomain.EventTypeInvoicePaymentFailed,
		OccurredAt: time.Now().UTC(),
		RawPayload: []byte(`{}`),
		Invoice: &paymentdomain.InvoicePayload{
			ID:         "in_failed",
			CustomerID: account.StripeCustomerID,
		},
	}
	assert.NoError(t, h.svc.ProcessEvent(ctx, event))

	var got businessdomain.BusinessAccount
	assert.NoError(t, h.db.First(&got, "id = ?", account.ID).Error)
	assert.Equal(t, businessdomain.PlanPro, got.Plan, "failed payment must not change plan")
	assert.Equal(t, businessdomain.SubscriptionStatusPastDue, got.SubscriptionStatus)
}

func TestUnknownCustomerIsWarnedAndSkipped(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	event := &paymentdomain.Event{
		ID:         "evt_no_account",
		Type:       paymentdomain.EventTypeSubscriptionCreated,
		OccurredAt: time.Now().UTC(),
		RawPayload: []byte(`{}`),
		Subscription: &paymentdomain.SubscriptionPayload{
			ID:         "sub_x",
			CustomerID: "cus_missing",
			Status:     "active",
			Plan:       "pro",
		},
	}
	assert.NoError(t, h.svc.ProcessEvent(ctx, event))
	assert.Empty(t, h.emails.sent)
}
