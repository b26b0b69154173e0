package invoice

import (
	"bytes"
	"fmt"
	"time"

	"github.com/phpdave11/gofpdf"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/maplecart/api/internal/domain"
)

// Invoice carries everything the PDF renderer needs for one order.
type Invoice struct {
	ShopName       string
	Number         string
	OrderNumber    string
	IssuedAt       time.Time
	CustomerName   string
	CustomerEmail  string
	Address        domain.Address
	Lines          []domain.OrderLine
	TotalAmount    int64
	RefundedAmount int64
	Currency       string
}

// FormatAmount renders a minor-unit amount with its currency symbol.
func FormatAmount(minor int64, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return fmt.Sprintf("%.2f %s", float64(minor)/100, code)
	}
	printer := message.NewPrinter(language.English)
	return printer.Sprint(currency.Symbol(unit.Amount(float64(minor) / 100)))
}

// Renderer produces invoice PDFs.
type Renderer struct{}

// NewRenderer constructs a Renderer.
func NewRenderer() *Renderer { return &Renderer{} }

// Render lays out the invoice as a single page PDF.
func (r *Renderer) Render(inv Invoice) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Invoice %s", inv.Number), false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, inv.ShopName)
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, fmt.Sprintf("Invoice %s", inv.Number))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Order %s", inv.OrderNumber))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Issued %s", inv.IssuedAt.Format("2006-01-02")))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(0, 6, "Bill to")
	pdf.Ln(6)
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, inv.CustomerName)
	pdf.Ln(6)
	if inv.CustomerEmail != "" {
		pdf.Cell(0, 6, inv.CustomerEmail)
		pdf.Ln(6)
	}
	pdf.Cell(0, 6, inv.Address.Recipient)
	pdf.Ln(6)
	pdf.Cell(0, 6, inv.Address.Street)
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("%s %s, %s", inv.Address.PostalCode, inv.Address.City, inv.Address.Country))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(90, 7, "Item", "1", 0, "L", false, 0, "")
	pdf.CellFormat(20, 7, "Qty", "1", 0, "R", false, 0, "")
	pdf.CellFormat(35, 7, "Unit", "1", 0, "R", false, 0, "")
	pdf.CellFormat(35, 7, "Total", "1", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	for _, line := range inv.Lines {
		pdf.CellFormat(90, 7, line.ProductName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 7, fmt.Sprintf("%d", line.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 7, FormatAmount(line.UnitPrice, inv.Currency), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 7, FormatAmount(line.LineTotal, inv.Currency), "1", 1, "R", false, 0, "")
	}

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(145, 8, "Total", "1", 0, "R", false, 0, "")
	pdf.CellFormat(35, 8, FormatAmount(inv.TotalAmount, inv.Currency), "1", 1, "R", false, 0, "")
	if inv.RefundedAmount > 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(145, 8, "Refunded", "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 8, FormatAmount(inv.RefundedAmount, inv.Currency), "1", 1, "R", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("invoice: render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
