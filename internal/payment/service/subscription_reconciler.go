package service

import (
	"context"
	"strings"

	businessdomain "github.com/salonkit/salonkit/internal/business/domain"
	paymentdomain "github.com/salonkit/salonkit/internal/payment/domain"
	"go.uber.org/zap"
)

// reconcileSubscriptionChange mirrors the provider's subscription state
// onto the business account. The plan is only overwritten while the
// subscription is active; a past_due or canceled notice keeps the
// previous plan so a recovering payment restores service untouched.
func (s *Service) reconcileSubscriptionChange(ctx context.Context, event *paymentdomain.Event) error {
	sub := event.Subscription
	if sub == nil {
		return paymentdomain.ErrInvalidPayload
	}

	account, err := s.accountForCustomer(ctx, event, sub.CustomerID)
	if err != nil || account == nil {
		return err
	}

	status := mapSubscriptionStatus(sub.Status)
	update := businessdomain.SubscriptionUpdate{
		Status:               &status,
		StripeSubscriptionID: &sub.ID,
	}
	if status == businessdomain.SubscriptionStatusActive {
		plan := businessdomain.NormalizePlan(sub.Plan)
		update.Plan = &plan
	}

	if err := s.businessRepo.UpdateSubscription(ctx, s.db, account.ID, update); err != nil {
		return err
	}

	s.log.Info("subscription state updated",
		zap.String("business_id", account.ID.String()),
		zap.String("subscription_id", sub.ID),
		zap.String("status", string(status)),
	)
	s.recordReconciliation(ctx, "subscription")
	return nil
}

func (s *Service) reconcileSubscriptionDeleted(ctx context.Context, event *paymentdomain.Event) error {
	sub := event.Subscription
	if sub == nil {
		return paymentdomain.ErrInvalidPayload
	}

	account, err := s.accountForCustomer(ctx, event, sub.CustomerID)
	if err != nil || account == nil {
		return err
	}

	status := businessdomain.SubscriptionStatusCanceled
	plan := businessdomain.PlanFree
	update := businessdomain.SubscriptionUpdate{
		Plan:                &plan,
		Status:              &status,
		ClearSubscriptionID: true,
	}
	if err := s.businessRepo.UpdateSubscription(ctx, s.db, account.ID, update); err != nil {
		return err
	}

	s.log.Info("subscription canceled, account downgraded",
		zap.String("business_id", account.ID.String()),
		zap.String("subscription_id", sub.ID),
	)
	s.recordReconciliation(ctx, "subscription")
	return nil
}

// reconcileInvoicePaymentSucceeded refreshes plan and status from the
// live subscription, since the invoice payload does not carry plan
// metadata. The first transition to active also triggers the one-time
// welcome email, gated by the account's welcome_email_sent_at column.
func (s *Service) reconcileInvoicePaymentSucceeded(ctx context.Context, event *paymentdomain.Event) error {
	inv := event.Invoice
	if inv == nil {
		return paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(inv.SubscriptionID) == "" {
		s.log.Debug("invoice payment without subscription reference, nothing to reconcile",
			zap.String("event_id", event.ID),
		)
		return nil
	}

	account, err := s.accountForCustomer(ctx, event, inv.CustomerID)
	if err != nil || account == nil {
		return err
	}

	sub, err := s.stripeAPI.GetSubscription(ctx, inv.SubscriptionID)
	if err != nil {
		return err
	}

	status := mapSubscriptionStatus(sub.Status)
	plan := businessdomain.NormalizePlan(sub.Metadata["plan"])
	update := businessdomain.SubscriptionUpdate{
		Plan:                 &plan,
		Status:               &status,
		StripeSubscriptionID: &sub.ID,
	}
	if err := s.businessRepo.UpdateSubscription(ctx, s.db, account.ID, update); err != nil {
		return err
	}

	if status == businessdomain.SubscriptionStatusActive {
		first, err := s.businessRepo.MarkWelcomeEmailSent(ctx, s.db, account.ID)
		if err != nil {
			return err
		}
		if first {
			billingPeriod := sub.Metadata["billingPeriod"]
			if billingPeriod == "" {
				billingPeriod = sub.Interval
			}
			s.notifier.SubscriptionWelcome(ctx, account.OwnerEmail, map[string]interface{}{
				"owner_name":     account.Name,
				"plan":           string(plan),
				"billing_period": billingPeriod,
			})
		}
	}

	s.recordReconciliation(ctx, "subscription")
	return nil
}

func (s *Service) reconcileInvoicePaymentFailed(ctx context.Context, event *paymentdomain.Event) error {
	inv := event.Invoice
	if inv == nil {
		return paymentdomain.ErrInvalidPayload
	}

	account, err := s.accountForCustomer(ctx, event, inv.CustomerID)
	if err != nil || account == nil {
		return err
	}

	status := businessdomain.SubscriptionStatusPastDue
	update := businessdomain.SubscriptionUpdate{Status: &status}
	if err := s.businessRepo.UpdateSubscription(ctx, s.db, account.ID, update); err != nil {
		return err
	}

	s.log.Warn("subscription payment failed, account marked past_due",
		zap.String("business_id", account.ID.String()),
	)
	s.recordReconciliation(ctx, "subscription")
	return nil
}

// accountForCustomer resolves the business account for a provider
// customer reference. A miss is logged and swallowed: webhooks never
// create accounts, and events for unknown customers belong to other
// subsystems.
func (s *Service) accountForCustomer(ctx context.Context, event *paymentdomain.Event, customerID string) (*businessdomain.BusinessAccount, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		s.log.Warn("event without customer reference",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
		)
		return nil, nil
	}

	account, err := s.businessRepo.FindByStripeCustomerID(ctx, s.db, customerID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		s.log.Warn("no business account for customer reference",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.String("customer_id", customerID),
		)
		return nil, nil
	}
	return account, nil
}

func mapSubscriptionStatus(raw string) businessdomain.SubscriptionStatus {
	switch strings.TrimSpace(raw) {
	case "active", "trialing":
		return businessdomain.SubscriptionStatusActive
	case "past_due", "unpaid", "incomplete":
		return businessdomain.SubscriptionStatusPastDue
	case "canceled", "incomplete_expired":
		return businessdomain.SubscriptionStatusCanceled
	default:
		return businessdomain.SubscriptionStatus(strings.TrimSpace(raw))
	}
}
