package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/salonkit/salonkit/internal/clock"
	"github.com/salonkit/salonkit/internal/config"
	invoicedomain "github.com/salonkit/salonkit/internal/invoice/domain"
	"github.com/salonkit/salonkit/internal/providers/pdf"
	"github.com/salonkit/salonkit/pkg/db"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   invoicedomain.Repository
	PDF    pdf.Provider
}

type Service struct {
	cfg   config.Config
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  invoicedomain.Repository
	pdf   pdf.Provider
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		cfg:   p.Config,
		log:   p.Log.Named("invoice.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		pdf:   p.PDF,
	}
}

// IssueForBooking creates the invoice row and renders its PDF. When a
// concurrent delivery already issued one for the same booking, the
// existing invoice is returned instead of an error.
func (s *Service) IssueForBooking(ctx context.Context, tx *gorm.DB, req invoicedomain.IssueRequest) (*invoicedomain.Invoice, error) {
	now := s.clock.Now()

	inv := &invoicedomain.Invoice{
		ID:          s.genID.Generate(),
		BookingID:   req.BookingID,
		BusinessID:  req.BusinessID,
		Number:      s.nextNumber(),
		Amount:      req.Amount,
		PlatformFee: req.PlatformFee,
		NetAmount:   req.NetAmount,
		Currency:    req.Currency,
		IssuedAt:    now,
		CreatedAt:   now,
	}

	docURL, err := s.renderDocument(ctx, inv, req)
	if err != nil {
		// The invoice row is the source of truth; a failed render only
		// costs the attachment.
		s.log.Warn("invoice pdf render failed",
			zap.String("invoice_number", inv.Number),
			zap.Error(err),
		)
	}
	inv.DocumentURL = docURL

	if err := s.repo.Insert(ctx, tx, inv); err != nil {
		if db.IsDuplicateKeyErr(err) {
			existing, ferr := s.repo.FindByBookingID(ctx, tx, req.BookingID)
			if ferr != nil {
				return nil, ferr
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("insert invoice: %w", err)
	}

	return inv, nil
}

func (s *Service) FindByBookingID(ctx context.Context, tx *gorm.DB, bookingID snowflake.ID) (*invoicedomain.Invoice, error) {
	return s.repo.FindByBookingID(ctx, tx, bookingID)
}

func (s *Service) FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return s.repo.FindByID(ctx, tx, id)
}

// nextNumber produces a globally unique, lexically sortable invoice number.
func (s *Service) nextNumber() string {
	id := ulid.MustNew(ulid.Timestamp(s.clock.Now()), rand.Reader)
	return "INV-" + id.String()
}

func (s *Service) renderDocument(ctx context.Context, inv *invoicedomain.Invoice, req invoicedomain.IssueRequest) (string, error) {
	data := pdf.InvoiceData{
		BusinessName:    req.BusinessName,
		BusinessEmail:   req.BusinessEmail,
		InvoiceNumber:   inv.Number,
		IssueDate:       inv.IssuedAt.Format("Jan 2, 2006"),
		BillToName:      req.ClientName,
		BillToEmail:     req.ClientEmail,
		ServiceName:     req.ServiceName,
		AppointmentDate: req.AppointmentAt.Format("Jan 2, 2006 15:04"),
		Amount:          req.Amount.StringFixed(2),
		PlatformFee:     req.PlatformFee.StringFixed(2),
		NetAmount:       req.NetAmount.StringFixed(2),
		Currency:        req.Currency,
	}

	doc, err := s.pdf.GenerateInvoice(ctx, data)
	if err != nil {
		return "", err
	}
	if doc == nil {
		return "", nil
	}

	if err := os.MkdirAll(s.cfg.InvoiceDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.cfg.InvoiceDir, inv.Number+".pdf")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, doc); err != nil {
		return "", err
	}

	return path, nil
}

// SplitAmount applies the platform fee to a booking total. The fee is
// rounded to cents; the business keeps the remainder so the two parts
// always sum back to the total.
func SplitAmount(total decimal.Decimal, feePercent int64) (fee, net decimal.Decimal) {
	fee = total.Mul(decimal.NewFromInt(feePercent)).Div(decimal.NewFromInt(100)).Round(2)
	net = total.Sub(fee)
	return fee, net
}
