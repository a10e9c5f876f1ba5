package pdf

import (
	"bytes"
	"context"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type InvoiceData struct {
	BusinessName  string
	BusinessEmail string
	InvoiceNumber string
	IssueDate     string

	BillToName  string
	BillToEmail string

	ServiceName     string
	AppointmentDate string

	Amount      string
	PlatformFee string
	NetAmount   string
	Currency    string
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateInvoice(ctx context.Context, data InvoiceData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(10,
		text.NewCol(12, "Invoice", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	// Invoice Meta
	m.AddRow(15,
		col.New(6).Add(
			text.New("Invoice number: "+data.InvoiceNumber, props.Text{Top: 0}),
			text.New("Date of issue: "+data.IssueDate, props.Text{Top: 4}),
		),
		col.New(6),
	)

	// Addresses
	m.AddRow(35,
		col.New(6).Add(
			text.New(data.BusinessName, props.Text{Style: fontstyle.Bold}),
			text.New(data.BusinessEmail, props.Text{Top: 5}),
		),
		col.New(6).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold}),
			text.New(data.BillToName, props.Text{Top: 5}),
			text.New(data.BillToEmail, props.Text{Top: 9}),
		),
	)

	// Table Header
	m.AddRow(10,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Appointment", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(3, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	m.AddRow(15,
		text.NewCol(6, data.ServiceName, props.Text{Size: 9}),
		text.NewCol(3, data.AppointmentDate, props.Text{Size: 9, Align: align.Right}),
		text.NewCol(3, data.Amount+" "+data.Currency, props.Text{Size: 9, Align: align.Right}),
	)

	// Footer Totals
	m.AddRow(10,
		col.New(6),
		text.NewCol(3, "Platform fee", props.Text{Size: 9}),
		text.NewCol(3, data.PlatformFee+" "+data.Currency, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(6),
		text.NewCol(3, "Net to business", props.Text{Size: 9}),
		text.NewCol(3, data.NetAmount+" "+data.Currency, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(6),
		text.NewCol(3, "Total paid", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, data.Amount+" "+data.Currency, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}
