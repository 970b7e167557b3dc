package invoicing

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed templates/invoice.html
var templateFS embed.FS

var documentTemplate = template.Must(template.ParseFS(templateFS, "templates/invoice.html"))

// vatRate is the VAT applied on top of the invoice total.
var vatRate = decimal.RequireFromString("0.19")

// Document is the rendered view of an invoice.
type Document struct {
	Title     string
	Reference string
	Date      string
	DueDate   string
	Customer  CustomerSummary
	Lines     []DocumentLine
	TotalHT   string
	VATRate   string
	VAT       string
	TotalTTC  string
	Notes     string
}

type DocumentLine struct {
	Reference string
	Name      string
	Quantity  int
	UnitPrice string
	Total     string
}

// PDF is a rendered invoice ready to be served.
type PDF struct {
	Filename string
	Content  []byte
}

// Amounts holds the tax breakdown of an invoice.
type Amounts struct {
	TotalHT  decimal.Decimal
	VAT      decimal.Decimal
	TotalTTC decimal.Decimal
}

// ComputeAmounts derives HT, VAT and TTC totals from the items.
func ComputeAmounts(items []Item) Amounts {
	ht := decimal.Zero
	for _, it := range items {
		ht = ht.Add(LineTotal(it.Quantity, it.UnitPrice))
	}
	ht = ht.Round(2)
	vat := ht.Mul(vatRate).Round(2)
	return Amounts{TotalHT: ht, VAT: vat, TotalTTC: ht.Add(vat)}
}

// BuildDocument maps an invoice with customer and items onto the template model.
func BuildDocument(inv Invoice) Document {
	p := message.NewPrinter(language.French)
	money := func(d decimal.Decimal) string {
		return p.Sprintf("%.2f", d.Round(2).InexactFloat64())
	}
	doc := Document{
		Title:     "Facture",
		Reference: inv.Reference,
		Date:      inv.Date.Format("02/01/2006"),
		VATRate:   vatRate.Shift(2).String() + " %",
		Notes:     inv.Notes,
	}
	if inv.Type == TypeQuote {
		doc.Title = "Devis"
	}
	if inv.DueDate != nil {
		doc.DueDate = inv.DueDate.Format("02/01/2006")
	}
	if inv.Customer != nil {
		doc.Customer = *inv.Customer
	}
	for _, it := range inv.Items {
		line := DocumentLine{
			Quantity:  it.Quantity,
			UnitPrice: money(it.UnitPrice),
			Total:     money(LineTotal(it.Quantity, it.UnitPrice)),
			Name:      "Produit #" + strconv.FormatInt(it.ProductID, 10),
		}
		if it.Product != nil {
			line.Reference = it.Product.Reference
			line.Name = it.Product.Name
		}
		doc.Lines = append(doc.Lines, line)
	}
	amounts := ComputeAmounts(inv.Items)
	doc.TotalHT = money(amounts.TotalHT)
	doc.VAT = money(amounts.VAT)
	doc.TotalTTC = money(amounts.TotalTTC)
	return doc
}

// RenderHTML executes the invoice template.
func RenderHTML(doc Document) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, doc); err != nil {
		return "", fmt.Errorf("render invoice template: %w", err)
	}
	return buf.String(), nil
}

// Filename is the download name of the rendered document.
func Filename(inv Invoice) string {
	prefix := "facture"
	if inv.Type == TypeQuote {
		prefix = "devis"
	}
	ref := inv.Reference
	if ref == "" {
		ref = strconv.FormatInt(inv.ID, 10)
	}
	return prefix + "-" + ref + ".pdf"
}

// RenderPDF renders an invoice through the document service. Concurrent
// renders of the same invoice share one call.
func (s *Service) RenderPDF(ctx context.Context, id int64) (PDF, error) {
	if s.deps.Renderer == nil {
		return PDF{}, fmt.Errorf("%w: renderer not configured", ErrRenderFailed)
	}
	inv, err := s.Get(ctx, id)
	if err != nil {
		return PDF{}, err
	}
	html, err := RenderHTML(BuildDocument(inv))
	if err != nil {
		return PDF{}, err
	}
	ch := s.renders.DoChan(strconv.FormatInt(id, 10), func() (any, error) {
		return s.deps.Renderer.RenderHTML(context.WithoutCancel(ctx), html)
	})
	select {
	case <-ctx.Done():
		return PDF{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			s.logger.Error("render invoice pdf", slog.Int64("invoice_id", id), slog.Any("error", res.Err))
			return PDF{}, fmt.Errorf("%w: %v", ErrRenderFailed, res.Err)
		}
		return PDF{Filename: Filename(inv), Content: res.Val.([]byte)}, nil
	}
}
