package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/salonkit/salonkit/internal/booking/domain"
	businessdomain "github.com/salonkit/salonkit/internal/business/domain"
	"github.com/salonkit/salonkit/internal/clock"
	"github.com/salonkit/salonkit/internal/config"
	invoicedomain "github.com/salonkit/salonkit/internal/invoice/domain"
	"github.com/salonkit/salonkit/internal/locking"
	"github.com/salonkit/salonkit/internal/notification"
	obsmetrics "github.com/salonkit/salonkit/internal/observability/metrics"
	paymentdomain "github.com/salonkit/salonkit/internal/payment/domain"
	"github.com/salonkit/salonkit/internal/stripeapi"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const providerStripe = "stripe"

// SubscriptionFetcher is the slice of the Stripe API the subscription
// reconciler needs. Satisfied by *stripeapi.Client.
type SubscriptionFetcher interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*stripeapi.Subscription, error)
}

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Config       config.Config
	Repo         paymentdomain.Repository
	BusinessRepo businessdomain.Repository
	BookingRepo  bookingdomain.Repository
	InvoiceSvc   invoicedomain.Service
	StripeAPI    *stripeapi.Client
	Notifier     *notification.Dispatcher
	Locker       *locking.Locker     `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	cfg          config.Config
	repo         paymentdomain.Repository
	businessRepo businessdomain.Repository
	bookingRepo  bookingdomain.Repository
	invoiceSvc   invoicedomain.Service
	stripeAPI    SubscriptionFetcher
	notifier     *notification.Dispatcher
	locker       *locking.Locker
	obsMetrics   *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("payment.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		cfg:          p.Config,
		repo:         p.Repo,
		businessRepo: p.BusinessRepo,
		bookingRepo:  p.BookingRepo,
		invoiceSvc:   p.InvoiceSvc,
		stripeAPI:    p.StripeAPI,
		notifier:     p.Notifier,
		locker:       p.Locker,
		obsMetrics:   p.ObsMetrics,
	}
}

// ProcessEvent records the delivery in the webhook inbox, dispatches it
// to the matching reconciler, and marks it processed. A redelivery of an
// already-processed event returns ErrEventAlreadyProcessed, which the
// HTTP layer acknowledges with a 200.
func (s *Service) ProcessEvent(ctx context.Context, event *paymentdomain.Event) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.ID = strings.TrimSpace(event.ID)
	event.Type = strings.TrimSpace(event.Type)
	if event.ID == "" || event.Type == "" {
		return paymentdomain.ErrInvalidEvent
	}

	now := s.clock.Now()
	received := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        providerStripe,
		ProviderEventID: event.ID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(event.RawPayload),
		ReceivedAt:      now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, providerStripe, event.ID)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			s.recordEvent(ctx, event.Type, "duplicate")
			return paymentdomain.ErrEventAlreadyProcessed
		}
	}

	if err := s.route(ctx, event); err != nil {
		s.recordEvent(ctx, event.Type, "failed")
		return err
	}

	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, s.clock.Now()); err != nil {
		return err
	}

	s.recordEvent(ctx, event.Type, "processed")
	return nil
}

// route dispatches exactly one handler per event. Unknown types are
// logged and acknowledged so the provider does not retry them forever.
func (s *Service) route(ctx context.Context, event *paymentdomain.Event) error {
	switch event.Type {
	case paymentdomain.EventTypeCheckoutSessionCompleted:
		return s.reconcileCheckoutSession(ctx, event)
	case paymentdomain.EventTypePaymentIntentSucceeded:
		return s.reconcilePaymentIntent(ctx, event)
	case paymentdomain.EventTypeSubscriptionCreated, paymentdomain.EventTypeSubscriptionUpdated:
		return s.reconcileSubscriptionChange(ctx, event)
	case paymentdomain.EventTypeSubscriptionDeleted:
		return s.reconcileSubscriptionDeleted(ctx, event)
	case paymentdomain.EventTypeInvoicePaymentSucceeded:
		return s.reconcileInvoicePaymentSucceeded(ctx, event)
	case paymentdomain.EventTypeInvoicePaymentFailed:
		return s.reconcileInvoicePaymentFailed(ctx, event)
	default:
		s.log.Info("ignoring unhandled event type",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
		)
		s.recordEvent(ctx, event.Type, "ignored")
		return nil
	}
}

func (s *Service) recordEvent(ctx context.Context, eventType, outcome string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordWebhookEvent(ctx, eventType, outcome)
	}
}

func (s *Service) recordReconciliation(ctx context.Context, kind string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordReconciliation(ctx, kind)
	}
}
