// pkg/export/pdf.go

package export

import (
	"bytes"
	_ "embed"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"go.uber.org/zap"

	"github.com/invoicing-editor/pkg/invoice"
	"github.com/invoicing-editor/pkg/logging"
)

// DejaVu covers Latin, Greek, Cyrillic and the common currency signs.
var (
	//go:embed fonts/DejaVuSansCondensed.ttf
	fontRegular []byte
	//go:embed fonts/DejaVuSansCondensed-Bold.ttf
	fontBold []byte
)

const fontFamily = "DejaVu"

// Document is everything drawn on the exported invoice.
type Document struct {
	Invoice invoice.Invoice
	Totals  invoice.Totals
	QR      []byte // PNG of the payment link, may be nil
	Now     time.Time
}

// NewDocument computes the totals of inv.
func NewDocument(inv invoice.Invoice, qr []byte, now time.Time) Document {
	return Document{Invoice: inv, Totals: inv.Totals(), QR: qr, Now: now}
}

var unsafeName = regexp.MustCompile(`[\s/\\:*?"<>|]+`)

// FileName is the download name of the exported PDF. Whitespace, path
// separators and characters reserved by common filesystems become '-'.
func FileName(number string) string {
	name := unsafeName.ReplaceAllString(number, "-")
	name = strings.Trim(name, ".")
	if name == "" {
		name = "export"
	}
	return "Invoice_" + name + ".pdf"
}

const (
	pageMargin = 15.0
	lineHeight = 6.0
)

func newPDF() *gofpdf.Fpdf {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddUTF8FontFromBytes(fontFamily, "", fontRegular)
	pdf.AddUTF8FontFromBytes(fontFamily, "B", fontBold)
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	return pdf
}

// RenderPDF lays the document out on A4 pages. Items that do not fit on
// one page continue on the next. A logo that cannot be drawn is skipped
// with a warning.
func RenderPDF(doc Document, logger *zap.Logger) ([]byte, error) {
	logger = logging.OrNop(logger)
	inv := doc.Invoice
	cur := inv.Meta.Currency
	money := func(v float64) string { return invoice.FormatMoney(v, cur) }

	pdf := newPDF()
	if pdf.Err() {
		return nil, fmt.Errorf("load fonts: %w", pdf.Error())
	}
	pdf.SetTitle(strings.TrimSpace("Invoice "+inv.Meta.Number), true)
	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 2*pageMargin

	pdf.AddPage()

	if inv.Meta.Logo != "" {
		if err := drawLogo(pdf, inv.Meta.Logo); err != nil {
			pdf.ClearError()
			logger.Warn("logo skipped", zap.Error(err))
		}
	}

	// Header
	pdf.SetFont(fontFamily, "B", 20)
	pdf.CellFormat(contentW/2, 10, "INVOICE", "", 0, "L", false, 0, "")
	pdf.SetFont(fontFamily, "", 11)
	pdf.CellFormat(contentW/2, 10, inv.Meta.Number, "", 1, "R", false, 0, "")
	badges := statusBadges(inv, doc.Now)
	if len(badges) > 0 {
		pdf.SetFont(fontFamily, "B", 11)
		pdf.SetTextColor(200, 30, 30)
		pdf.CellFormat(contentW, lineHeight, strings.Join(badges, "  "), "", 1, "R", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	}
	pdf.Ln(4)

	// From / Bill To columns
	top := pdf.GetY()
	leftEnd := partyBlock(pdf, "From", inv.Sender, pageMargin, top, contentW/2-5, false)
	rightEnd := partyBlock(pdf, "Bill To", inv.Client, pageMargin+contentW/2+5, top, contentW/2-5, true)
	pdf.SetXY(pageMargin, maxf(leftEnd, rightEnd)+4)

	// Meta
	pdf.SetFont(fontFamily, "", 10)
	for _, row := range metaRows(inv) {
		pdf.SetFont(fontFamily, "B", 10)
		pdf.CellFormat(30, lineHeight, row[0], "", 0, "L", false, 0, "")
		pdf.SetFont(fontFamily, "", 10)
		pdf.CellFormat(contentW-30, lineHeight, row[1], "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	// Items
	cols := []float64{contentW - 75, 20, 27.5, 27.5}
	header := func() {
		pdf.SetFont(fontFamily, "B", 10)
		pdf.SetFillColor(235, 235, 235)
		for i, h := range []string{"Description", "Qty", "Price", "Amount"} {
			align := "R"
			if i == 0 {
				align = "L"
			}
			pdf.CellFormat(cols[i], 8, h, "B", 0, align, true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont(fontFamily, "", 10)
	}
	header()
	_, pageH := pdf.GetPageSize()
	for _, it := range inv.Items {
		if pdf.GetY()+lineHeight > pageH-pageMargin {
			pdf.AddPage()
			header()
		}
		pdf.CellFormat(cols[0], lineHeight, it.Description, "", 0, "L", false, 0, "")
		pdf.CellFormat(cols[1], lineHeight, formatQty(it.Quantity), "", 0, "R", false, 0, "")
		pdf.CellFormat(cols[2], lineHeight, money(it.UnitPrice), "", 0, "R", false, 0, "")
		pdf.CellFormat(cols[3], lineHeight, money(it.Amount()), "", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	// Totals
	labelW := contentW - 40
	totalRow := func(label, value string, bold bool) {
		style := ""
		if bold {
			style = "B"
		}
		pdf.SetFont(fontFamily, style, 10)
		pdf.CellFormat(labelW, lineHeight, label, "", 0, "R", false, 0, "")
		pdf.CellFormat(40, lineHeight, value, "", 1, "R", false, 0, "")
	}
	totalRow("Subtotal", money(doc.Totals.Subtotal), false)
	totalRow(fmt.Sprintf("Tax (%s%%)", formatQty(inv.Meta.TaxRate)), money(doc.Totals.Tax), false)
	if doc.Totals.Discount != 0 {
		totalRow("Discount", "-"+money(doc.Totals.Discount), false)
	}
	totalRow("Total", money(doc.Totals.Total), true)
	pdf.Ln(6)

	// Payment
	if inv.Meta.PaymentLink != "" {
		pdf.SetFont(fontFamily, "B", 10)
		pdf.CellFormat(contentW, lineHeight, "Pay online", "", 1, "L", false, 0, "")
		pdf.SetFont(fontFamily, "U", 10)
		pdf.SetTextColor(20, 60, 180)
		pdf.CellFormat(contentW, lineHeight, inv.Meta.PaymentLink, "", 1, "L", false, 0, inv.Meta.PaymentLink)
		pdf.SetTextColor(0, 0, 0)
		if len(doc.QR) > 0 {
			if pdf.GetY()+40 > pageH-pageMargin {
				pdf.AddPage()
			}
			pdf.RegisterImageOptionsReader("payment-qr", gofpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(doc.QR))
			pdf.ImageOptions("payment-qr", pageMargin, pdf.GetY()+2, 36, 36, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")
			pdf.SetY(pdf.GetY() + 40)
		}
		pdf.Ln(2)
	}

	for _, block := range [][2]string{{"Notes", inv.Meta.Notes}, {"Terms", inv.Meta.Terms}} {
		if strings.TrimSpace(block[1]) == "" {
			continue
		}
		pdf.SetFont(fontFamily, "B", 10)
		pdf.CellFormat(contentW, lineHeight, block[0], "", 1, "L", false, 0, "")
		pdf.SetFont(fontFamily, "", 10)
		pdf.MultiCell(contentW, 5, block[1], "", "L", false)
		pdf.Ln(2)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func partyBlock(pdf *gofpdf.Fpdf, title string, p invoice.Party, x, y, w float64, attn bool) float64 {
	pdf.SetXY(x, y)
	pdf.SetFont(fontFamily, "B", 11)
	pdf.CellFormat(w, lineHeight, title, "", 2, "L", false, 0, "")
	pdf.SetFont(fontFamily, "", 10)
	line := func(s string) {
		if strings.TrimSpace(s) == "" {
			return
		}
		pdf.SetX(x)
		pdf.MultiCell(w, 5, s, "", "L", false)
	}
	if p.Company != "" {
		line(p.Company)
		if attn && p.Name != "" {
			line("Attn: " + p.Name)
		} else if !attn {
			line(p.Name)
		}
	} else {
		line(p.Name)
	}
	line(p.Address)
	line(p.Email)
	line(p.Phone)
	if p.TaxID != "" {
		line("VAT/Tax: " + p.TaxID)
	}
	return pdf.GetY()
}

func metaRows(inv invoice.Invoice) [][2]string {
	rows := [][2]string{{"Date", inv.Meta.Date}}
	if inv.Meta.DueDate != "" {
		rows = append(rows, [2]string{"Due", inv.Meta.DueDate})
	}
	if inv.Meta.PONumber != "" {
		rows = append(rows, [2]string{"PO", inv.Meta.PONumber})
	}
	rows = append(rows, [2]string{"Status", string(inv.Meta.Status)})
	return rows
}

func statusBadges(inv invoice.Invoice, now time.Time) []string {
	var out []string
	if inv.Meta.Status == invoice.StatusPaid {
		out = append(out, "PAID")
	}
	if inv.Overdue(now) {
		out = append(out, "OVERDUE")
	}
	return out
}

func formatQty(q float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.4f", q), "0"), ".")
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// ErrBadLogo is returned when the logo is not a base64 image data URL
// the renderer can draw.
var ErrBadLogo = errors.New("logo must be a base64 PNG, JPEG or GIF data URL")

// DecodeDataURL splits a base64 data URL into its media type and bytes.
func DecodeDataURL(s string) (mediaType string, data []byte, err error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, ErrBadLogo
	}
	head, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrBadLogo
	}
	mediaType, isBase64 := strings.CutSuffix(head, ";base64")
	if !isBase64 {
		return "", nil, ErrBadLogo
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrBadLogo, err)
	}
	return mediaType, data, nil
}

// EncodeDataURL is the inverse of DecodeDataURL.
func EncodeDataURL(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func drawLogo(pdf *gofpdf.Fpdf, dataURL string) error {
	mediaType, data, err := DecodeDataURL(dataURL)
	if err != nil {
		return err
	}
	var imageType string
	switch mediaType {
	case "image/png":
		imageType = "PNG"
	case "image/jpeg", "image/jpg":
		imageType = "JPG"
	case "image/gif":
		imageType = "GIF"
	default:
		return fmt.Errorf("%w: unsupported type %q", ErrBadLogo, mediaType)
	}
	opts := gofpdf.ImageOptions{ImageType: imageType}
	info := pdf.RegisterImageOptionsReader("logo", opts, bytes.NewReader(data))
	if pdf.Err() {
		return fmt.Errorf("%w: %v", ErrBadLogo, pdf.Error())
	}
	h := 18.0
	w := h * info.Width() / info.Height()
	pdf.ImageOptions("logo", pageMargin, pdf.GetY(), w, h, false, opts, 0, "")
	pdf.SetY(pdf.GetY() + h + 3)
	return nil
}
