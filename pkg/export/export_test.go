package export

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
	"unicode/utf16"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/invoicing-editor/pkg/invoice"
	"github.com/invoicing-editor/pkg/qrcode"
)

var testNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	for x := 0; x < 20; x++ {
		img.Set(x, 5, color.Black)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func sample() invoice.Invoice {
	inv := invoice.Empty(testNow, func() string { return "a" })
	inv.Sender = invoice.Party{Company: "Acme GmbH", Name: "Ann", Email: "ann@acme.test", TaxID: "DE1"}
	inv.Client = invoice.Party{Company: "Bob Ltd", Name: "Bob", Address: "1 Main St\nSpringfield"}
	inv.Meta.Number = "INV 2024 001"
	inv.Meta.DueDate = "2024-03-01"
	inv.Meta.TaxRate = 10
	inv.Meta.Discount = 3
	inv.Meta.Notes = "Thanks for your business. Überweisung bitte innerhalb von 14 Tagen."
	inv.Meta.Terms = "Net 14"
	inv.Meta.PaymentLink = "https://pay.example.com/inv/1"
	inv.Items = []invoice.LineItem{
		{ID: "a", Description: "Design", Quantity: 2, UnitPrice: 5},
		{ID: "b", Description: "Build", Quantity: 1, UnitPrice: 10},
	}
	return inv
}

func TestFileName(t *testing.T) {
	tests := []struct {
		number string
		want   string
	}{
		{"INV-20240315-001", "Invoice_INV-20240315-001.pdf"},
		{"INV  2024\t1", "Invoice_INV-2024-1.pdf"},
		{"", "Invoice_export.pdf"},
		{"INV/2024/001", "Invoice_INV-2024-001.pdf"},
		{`INV\2024\001`, "Invoice_INV-2024-001.pdf"},
		{`a:b*c?d"e<f>g|h`, "Invoice_a-b-c-d-e-f-g-h.pdf"},
		{"../../etc/passwd", "Invoice_-..-etc-passwd.pdf"},
		{"..", "Invoice_export.pdf"},
	}
	for _, tt := range tests {
		name := FileName(tt.number)
		assert.Equal(t, tt.want, name, tt.number)
		assert.Equal(t, filepath.Base(name), name, tt.number)
	}
}

func TestFileNameSavesToDirSink(t *testing.T) {
	dir := t.TempDir()
	loc, err := DirSink{Dir: dir}.Save(context.Background(), FileName("INV/2024/001"), []byte("%PDF-1.3"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Invoice_INV-2024-001.pdf"), loc)
}

func TestRenderPDF(t *testing.T) {
	qr, err := qrcode.PNGEncoder{}.Encode(context.Background(), "https://pay.example.com/inv/1", qrcode.DefaultOptions())
	require.NoError(t, err)
	inv := sample()
	inv.Meta.Logo = EncodeDataURL("image/png", testPNG(t))

	data, err := RenderPDF(NewDocument(inv, qr, testNow), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestRenderPDFPaginatesLongInvoices(t *testing.T) {
	inv := sample()
	inv.Items = nil
	for i := 0; i < 120; i++ {
		inv.Items = append(inv.Items, invoice.LineItem{ID: string(rune('a' + i%26)), Description: "Line", Quantity: 1, UnitPrice: 1})
	}
	short, err := RenderPDF(NewDocument(sample(), nil, testNow), zaptest.NewLogger(t))
	require.NoError(t, err)
	long, err := RenderPDF(NewDocument(inv, nil, testNow), zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, 1, pageCount(short))
	assert.Greater(t, pageCount(long), 2)
}

func pageCount(pdf []byte) int {
	return bytes.Count(pdf, []byte("/Type /Page")) - bytes.Count(pdf, []byte("/Type /Pages"))
}

func TestRenderPDFNoItems(t *testing.T) {
	inv := sample()
	inv.Items = nil
	_, err := RenderPDF(NewDocument(inv, nil, testNow), zaptest.NewLogger(t))
	assert.NoError(t, err)
}

func testGIF(t *testing.T) []byte {
	t.Helper()
	img := image.NewPaletted(image.Rect(0, 0, 20, 10), color.Palette{color.White, color.Black})
	img.SetColorIndex(3, 3, 1)
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestRenderPDFGIFLogo(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	inv := sample()
	inv.Meta.Logo = EncodeDataURL("image/gif", testGIF(t))

	data, err := RenderPDF(NewDocument(inv, nil, testNow), zap.New(core))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
	assert.Zero(t, logs.Len())
}

func TestRenderPDFSkipsUnusableLogo(t *testing.T) {
	tests := []struct {
		name string
		logo string
	}{
		{"not a data URL", "https://example.com/logo.png"},
		{"svg", EncodeDataURL("image/svg+xml", []byte("<svg/>"))},
		{"webp", EncodeDataURL("image/webp", []byte("RIFF0000WEBP"))},
		{"corrupt gif", EncodeDataURL("image/gif", []byte("GIF89a"))},
		{"corrupt png", EncodeDataURL("image/png", []byte("nope"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.WarnLevel)
			inv := sample()
			inv.Meta.Logo = tt.logo

			data, err := RenderPDF(NewDocument(inv, nil, testNow), zap.New(core))
			require.NoError(t, err)
			assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
			require.Equal(t, 1, logs.FilterMessage("logo skipped").Len())
		})
	}
}

func utf16BE(s string) []byte {
	var out []byte
	for _, u := range utf16.Encode([]rune(s)) {
		out = append(out, byte(u>>8), byte(u))
	}
	return out
}

func TestPDFFontCoversNonLatinText(t *testing.T) {
	pdf := newPDF()
	require.False(t, pdf.Err(), "%v", pdf.Error())
	pdf.SetCompression(false)
	pdf.AddPage()
	pdf.SetFont(fontFamily, "", 10)
	pdf.CellFormat(80, 6, "Иван ₹100 €5", "", 1, "L", false, 0, "")
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))

	assert.True(t, bytes.Contains(buf.Bytes(), utf16BE("Иван ₹100 €5")))
	assert.Contains(t, buf.String(), "/Encoding /Identity-H")
}

func TestRenderPDFNonLatinInvoice(t *testing.T) {
	inv := sample()
	inv.Client = invoice.Party{Name: "Иван Петров", Address: "Москва"}
	inv.Meta.Currency = "INR"
	inv.Items[0].Description = "Дизайн логотипа"
	data, err := RenderPDF(NewDocument(inv, nil, testNow), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestDataURL(t *testing.T) {
	mt, data, err := DecodeDataURL(EncodeDataURL("image/png", []byte{1, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, "image/png", mt)
	assert.Equal(t, []byte{1, 2, 3}, data)

	for _, bad := range []string{"", "image/png;base64,AA", "data:image/png,AA", "data:image/png;base64", "data:image/png;base64,@@@"} {
		_, _, err := DecodeDataURL(bad)
		assert.ErrorIs(t, err, ErrBadLogo, bad)
	}
}

func TestStatusBadges(t *testing.T) {
	inv := sample()
	inv.Meta.Status = invoice.StatusSent
	assert.Equal(t, []string{"OVERDUE"}, statusBadges(inv, testNow))

	inv.Meta.Status = invoice.StatusPaid
	assert.Equal(t, []string{"PAID"}, statusBadges(inv, testNow))

	inv.Meta.DueDate = ""
	inv.Meta.Status = invoice.StatusDraft
	assert.Empty(t, statusBadges(inv, testNow))
}

func TestFormatQty(t *testing.T) {
	assert.Equal(t, "2", formatQty(2))
	assert.Equal(t, "1.5", formatQty(1.5))
	assert.Equal(t, "0", formatQty(0))
	assert.Equal(t, "100", formatQty(100))
}

func TestDirSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	loc, err := DirSink{Dir: dir}.Save(context.Background(), "Invoice_1.pdf", []byte("%PDF-1.3"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Invoice_1.pdf"), loc)

	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.3", string(data))

	_, err = DirSink{Dir: dir}.Save(context.Background(), "../escape.pdf", nil)
	assert.Error(t, err)
}

type fakeUploader struct {
	input *s3manager.UploadInput
	body  []byte
	err   error
}

func (f *fakeUploader) UploadWithContext(_ aws.Context, in *s3manager.UploadInput, _ ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	if f.err != nil {
		return nil, f.err
	}
	return &s3manager.UploadOutput{Location: "https://bucket.s3.amazonaws.com/" + aws.StringValue(in.Key)}, nil
}

func TestS3Sink(t *testing.T) {
	up := &fakeUploader{}
	sink := NewS3SinkWithUploader(up, "bucket", "invoices/2024", zaptest.NewLogger(t))

	loc, err := sink.Save(context.Background(), "Invoice_1.pdf", []byte("pdf"))
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.s3.amazonaws.com/invoices/2024/Invoice_1.pdf", loc)
	assert.Equal(t, "bucket", aws.StringValue(up.input.Bucket))
	assert.Equal(t, "application/pdf", aws.StringValue(up.input.ContentType))
	assert.Equal(t, []byte("pdf"), up.body)

	up.err = errors.New("denied")
	_, err = sink.Save(context.Background(), "Invoice_1.pdf", nil)
	assert.ErrorContains(t, err, "denied")
}
