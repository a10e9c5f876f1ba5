package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	bookingdomain "github.com/salonkit/salonkit/internal/booking/domain"
	businessdomain "github.com/salonkit/salonkit/internal/business/domain"
	"github.com/salonkit/salonkit/internal/config"
	invoicedomain "github.com/salonkit/salonkit/internal/invoice/domain"
	"github.com/salonkit/salonkit/internal/observability"
	obsmiddleware "github.com/salonkit/salonkit/internal/observability/logger"
	obsmetrics "github.com/salonkit/salonkit/internal/observability/metrics"
	paymentservice "github.com/salonkit/salonkit/internal/payment/service"
	paymentstripe "github.com/salonkit/salonkit/internal/payment/stripe"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(log, obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(log, obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	verifier     *paymentstripe.Verifier
	paymentSvc   *paymentservice.Service
	bookingRepo  bookingdomain.Repository
	businessRepo businessdomain.Repository
	invoiceSvc   invoicedomain.Service
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Verifier     *paymentstripe.Verifier
	PaymentSvc   *paymentservice.Service
	BookingRepo  bookingdomain.Repository
	BusinessRepo businessdomain.Repository
	InvoiceSvc   invoicedomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		log:          p.Log.Named("server"),
		genID:        p.GenID,
		verifier:     p.Verifier,
		paymentSvc:   p.PaymentSvc,
		bookingRepo:  p.BookingRepo,
		businessRepo: p.BusinessRepo,
		invoiceSvc:   p.InvoiceSvc,
	}

	svc.registerWebhookRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/stripe", s.HandleStripeWebhook)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.GET("/bookings/:id", s.GetBooking)
	api.GET("/invoices/:id", s.GetInvoice)
}
