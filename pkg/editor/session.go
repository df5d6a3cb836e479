// Package editor holds the state of one editing session: the invoice
// being edited, the client directory and the collaborators that export,
// email and render it. Every mutation is persisted before it returns.
package editor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/invoicing-editor/pkg/clients"
	"github.com/invoicing-editor/pkg/export"
	"github.com/invoicing-editor/pkg/invoice"
	"github.com/invoicing-editor/pkg/logging"
	"github.com/invoicing-editor/pkg/notify"
	"github.com/invoicing-editor/pkg/numbering"
	"github.com/invoicing-editor/pkg/qrcode"
	"github.com/invoicing-editor/pkg/store"
)

var (
	// ErrSuperseded is returned by export and email when the invoice
	// changed while the document was being rendered. The stale result is
	// dropped.
	ErrSuperseded = errors.New("invoice changed while the operation was in progress")

	ErrClientNotFound = errors.New("client not found")
	ErrNoViewURL      = errors.New("no public view URL set")
	ErrNoClipboard    = errors.New("no clipboard available")
	ErrLogoType       = errors.New("logo must be a PNG, JPEG or GIF image")
)

// Options configures a Session. Only Repo is required.
type Options struct {
	Repo      *store.Repository
	Now       func() time.Time
	IDs       invoice.IDFunc
	Sender    notify.Sender // nil sends email through a mailto link
	Sink      export.Sink   // nil writes PDFs to the working directory
	QR        *qrcode.Renderer
	Clipboard Clipboard
	Logger    *zap.Logger
}

// Session is the editor state. It is safe for concurrent use; actions
// are applied one at a time.
type Session struct {
	mu  sync.Mutex
	rev uint64
	inv invoice.Invoice
	dir *clients.Directory

	repo      *store.Repository
	now       func() time.Time
	ids       invoice.IDFunc
	sender    notify.Sender
	sink      export.Sink
	qr        *qrcode.Renderer
	clipboard Clipboard
	logger    *zap.Logger
}

// Open loads the persisted invoice and client directory. Missing or
// corrupt records start out empty.
func Open(ctx context.Context, opts Options) (*Session, error) {
	if opts.Repo == nil {
		return nil, errors.New("editor: repository is required")
	}
	s := &Session{
		repo:      opts.Repo,
		now:       opts.Now,
		ids:       opts.IDs,
		sender:    opts.Sender,
		sink:      opts.Sink,
		qr:        opts.QR,
		clipboard: opts.Clipboard,
		logger:    logging.OrNop(opts.Logger),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.ids == nil {
		s.ids = invoice.NewID
	}
	if s.sink == nil {
		s.sink = export.DirSink{Dir: "."}
	}
	if s.qr == nil {
		s.qr = qrcode.NewRenderer(nil, qrcode.DefaultOptions(), s.logger)
	}
	s.inv = s.repo.LoadInvoice(ctx, s.now(), s.ids)
	s.dir = clients.New(s.repo.LoadClients(ctx), s.ids)
	return s, nil
}

// Invoice returns a copy of the current invoice.
func (s *Session) Invoice() invoice.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inv.Clone()
}

// Totals computes the totals of the current invoice.
func (s *Session) Totals() invoice.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inv.Totals()
}

// Now is the session clock.
func (s *Session) Now() time.Time {
	return s.now()
}

// Revision increases with every change to the invoice.
func (s *Session) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rev
}

// commit replaces the invoice and persists it. Callers hold mu. The new
// state is kept even when persisting fails.
func (s *Session) commit(ctx context.Context, inv invoice.Invoice) error {
	s.inv = inv
	s.rev++
	if err := s.repo.SaveInvoice(ctx, inv); err != nil {
		s.logger.Error("persist invoice", zap.Error(err))
		return fmt.Errorf("persist invoice: %w", err)
	}
	return nil
}

func (s *Session) saveClients(ctx context.Context) error {
	if err := s.repo.SaveClients(ctx, s.dir.Records()); err != nil {
		s.logger.Error("persist clients", zap.Error(err))
		return fmt.Errorf("persist clients: %w", err)
	}
	return nil
}

func (s *Session) mutate(ctx context.Context, fn func(invoice.Invoice) (invoice.Invoice, error)) (invoice.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(s.inv)
	if err != nil {
		return s.inv.Clone(), err
	}
	if err := s.commit(ctx, next); err != nil {
		return next.Clone(), err
	}
	return next.Clone(), nil
}

// Reset replaces the invoice with a new empty one.
func (s *Session) Reset(ctx context.Context) (invoice.Invoice, error) {
	return s.mutate(ctx, func(invoice.Invoice) (invoice.Invoice, error) {
		return invoice.Empty(s.now(), s.ids), nil
	})
}

// Import replaces the invoice with raw JSON, normalized.
func (s *Session) Import(ctx context.Context, raw []byte) (invoice.Invoice, error) {
	return s.mutate(ctx, func(invoice.Invoice) (invoice.Invoice, error) {
		return invoice.Normalize(raw, s.now(), s.ids), nil
	})
}

// Apply changes one field.
func (s *Session) Apply(ctx context.Context, u invoice.Update) (invoice.Invoice, error) {
	return s.mutate(ctx, func(inv invoice.Invoice) (invoice.Invoice, error) {
		return invoice.Apply(inv, u)
	})
}

// SetField changes the field with the given name, e.g. "meta.taxRate".
func (s *Session) SetField(ctx context.Context, name, value string) (invoice.Invoice, error) {
	f, err := invoice.ParseField(name)
	if err != nil {
		return s.Invoice(), err
	}
	return s.Apply(ctx, invoice.Set(f, value))
}

// AddItem appends a blank line item and returns it.
func (s *Session) AddItem(ctx context.Context) (invoice.LineItem, error) {
	inv, err := s.mutate(ctx, func(inv invoice.Invoice) (invoice.Invoice, error) {
		return invoice.AddItem(inv, s.ids), nil
	})
	return inv.Items[len(inv.Items)-1], err
}

// RemoveItem deletes a line item. Unknown ids are ignored.
func (s *Session) RemoveItem(ctx context.Context, id string) (invoice.Invoice, error) {
	return s.mutate(ctx, func(inv invoice.Invoice) (invoice.Invoice, error) {
		return invoice.RemoveItem(inv, id), nil
	})
}

// UpdateItem merges patch into a line item. Unknown ids are ignored.
func (s *Session) UpdateItem(ctx context.Context, id string, patch invoice.ItemPatch) (invoice.Invoice, error) {
	return s.mutate(ctx, func(inv invoice.Invoice) (invoice.Invoice, error) {
		return invoice.UpdateItem(inv, id, patch), nil
	})
}

// AutoNumber assigns the next date-scoped invoice number.
func (s *Session) AutoNumber(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	number, st := numbering.Next(s.now(), s.repo.LoadSequence(ctx))
	if err := s.repo.SaveSequence(ctx, st); err != nil {
		return "", fmt.Errorf("persist sequence: %w", err)
	}
	next, err := invoice.Apply(s.inv, invoice.Set(invoice.MetaNumber, number))
	if err != nil {
		return "", err
	}
	s.logger.Debug("invoice number assigned", zap.String("number", number))
	return number, s.commit(ctx, next)
}

// MarkViewed sets the status to viewed.
func (s *Session) MarkViewed(ctx context.Context) (invoice.Invoice, error) {
	return s.SetStatus(ctx, invoice.StatusViewed)
}

// MarkPaid sets the status to paid.
func (s *Session) MarkPaid(ctx context.Context) (invoice.Invoice, error) {
	return s.SetStatus(ctx, invoice.StatusPaid)
}

// SetStatus sets any valid status.
func (s *Session) SetStatus(ctx context.Context, st invoice.Status) (invoice.Invoice, error) {
	return s.Apply(ctx, invoice.Set(invoice.MetaStatus, string(st)))
}

// SetLogo stores a PNG, JPEG or GIF image as the logo.
func (s *Session) SetLogo(ctx context.Context, mediaType string, data []byte) (invoice.Invoice, error) {
	switch mediaType {
	case "image/png", "image/jpeg", "image/gif":
	case "image/jpg":
		mediaType = "image/jpeg"
	default:
		return s.Invoice(), fmt.Errorf("%w: got %q", ErrLogoType, mediaType)
	}
	return s.Apply(ctx, invoice.Set(invoice.MetaLogo, export.EncodeDataURL(mediaType, data)))
}

// RemoveLogo clears the logo.
func (s *Session) RemoveLogo(ctx context.Context) (invoice.Invoice, error) {
	return s.Apply(ctx, invoice.Set(invoice.MetaLogo, ""))
}

// Clients returns the saved clients, newest first.
func (s *Session) Clients() []clients.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir.Records()
}

// SaveClient saves the current invoice's client as a new directory
// entry. Saving the same client twice creates two entries.
func (s *Session) SaveClient(ctx context.Context) (clients.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.dir.Save(s.inv.Client)
	return rec, s.saveClients(ctx)
}

// SelectClient copies a saved client's company, name, email and address
// into the invoice.
func (s *Session) SelectClient(ctx context.Context, id string) (invoice.Invoice, error) {
	return s.mutate(ctx, func(inv invoice.Invoice) (invoice.Invoice, error) {
		p, ok := s.dir.Select(id)
		if !ok {
			return inv, fmt.Errorf("%w: %s", ErrClientNotFound, id)
		}
		out := inv.Clone()
		out.Client.Company = p.Company
		out.Client.Name = p.Name
		out.Client.Email = p.Email
		out.Client.Address = p.Address
		return out, nil
	})
}

// DeleteClient removes a saved client.
func (s *Session) DeleteClient(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dir.Remove(id) {
		return fmt.Errorf("%w: %s", ErrClientNotFound, id)
	}
	return s.saveClients(ctx)
}

// ViewLink is the public view URL of the invoice with its number and
// client email as query parameters.
func (s *Session) ViewLink() (string, error) {
	inv := s.Invoice()
	base := strings.TrimSpace(inv.Meta.PublicViewURL)
	if base == "" {
		return "", ErrNoViewURL
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "invoice=" + url.QueryEscape(inv.Meta.Number) +
		"&email=" + url.QueryEscape(inv.Client.Email), nil
}

// CopyViewLink copies ViewLink to the clipboard.
func (s *Session) CopyViewLink() (string, error) {
	link, err := s.ViewLink()
	if err != nil {
		return "", err
	}
	if s.clipboard == nil {
		return link, ErrNoClipboard
	}
	if err := s.clipboard.Copy(link); err != nil {
		return link, fmt.Errorf("copy view link: %w", err)
	}
	return link, nil
}

// PaymentQR renders the payment link as a QR code PNG. It returns nil
// when there is no link, and qrcode.ErrStale when a newer call started
// before this one finished.
func (s *Session) PaymentQR(ctx context.Context) ([]byte, error) {
	return s.qr.Render(ctx, s.Invoice().Meta.PaymentLink)
}

type snapshot struct {
	inv invoice.Invoice
	rev uint64
}

func (s *Session) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot{inv: s.inv.Clone(), rev: s.rev}
}

// current reports whether the invoice is still at snap's revision.
func (s *Session) current(snap snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rev == snap.rev
}

func (s *Session) render(ctx context.Context, snap snapshot) ([]byte, error) {
	qr := s.qr.Image(ctx, snap.inv.Meta.PaymentLink)
	return export.RenderPDF(export.NewDocument(snap.inv, qr, s.now()), s.logger)
}

// markSent sets the status to sent and records the event in the
// history of every client with the invoice's client email. Both changes
// are applied in memory before either is persisted. Callers hold mu.
func (s *Session) markSent(ctx context.Context) error {
	totals := s.inv.Totals()
	next := s.inv.Clone()
	next.Meta.Status = invoice.StatusSent
	n := s.dir.AppendHistory(next.Client.Email, clients.Event{
		At:     s.now().UnixMilli(),
		Type:   clients.EventSent,
		Total:  totals.Total,
		Number: next.Meta.Number,
	})
	err := s.commit(ctx, next)
	if n > 0 {
		err = errors.Join(err, s.saveClients(ctx))
	}
	return err
}

// Export is the result of ExportPDF.
type Export struct {
	Name     string
	Location string
	Data     []byte
}

// ExportPDF renders the invoice, saves it to the sink and marks the
// invoice sent. Rendering and saving run outside the session lock. When
// the invoice changed in between,
// ErrSuperseded is returned and the invoice is not marked; if the PDF
// was already saved its location is still returned.
func (s *Session) ExportPDF(ctx context.Context) (Export, error) {
	snap := s.snapshot()
	data, err := s.render(ctx, snap)
	if err != nil {
		return Export{}, err
	}
	if !s.current(snap) {
		return Export{}, ErrSuperseded
	}
	out := Export{Name: export.FileName(snap.inv.Meta.Number), Data: data}
	out.Location, err = s.sink.Save(ctx, out.Name, data)
	if err != nil {
		return Export{}, err
	}
	s.logger.Info("invoice exported", zap.String("number", snap.inv.Meta.Number), zap.String("location", out.Location))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rev != snap.rev {
		s.logger.Warn("export superseded", zap.String("location", out.Location))
		return out, ErrSuperseded
	}
	return out, s.markSent(ctx)
}

// EmailResult says how an email went out. Mailto is set when no webhook
// is configured and the user has to open the link to send it.
type EmailResult struct {
	To     string
	Sent   bool
	Mailto string
}

// Email sends the invoice to the client through the webhook with the
// PDF attached, or returns a mailto link when there is no webhook.
// Either way the invoice is marked sent. A failed webhook changes
// nothing. The webhook call runs without holding the session; if the
// invoice changed meanwhile the result carries Sent but the invoice is
// not marked and ErrSuperseded is returned.
func (s *Session) Email(ctx context.Context) (EmailResult, error) {
	snap := s.snapshot()
	mail := notify.Compose(snap.inv, snap.inv.Totals())
	res := EmailResult{To: mail.To}

	if s.sender == nil {
		res.Mailto = mail.MailtoLink()
	} else {
		data, err := s.render(ctx, snap)
		if err != nil {
			return EmailResult{}, err
		}
		if !s.current(snap) {
			return EmailResult{}, ErrSuperseded
		}
		if err := s.sender.Send(ctx, mail.Message(export.EncodeDataURL("application/pdf", data))); err != nil {
			return EmailResult{}, err
		}
		res.Sent = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rev != snap.rev {
		if res.Sent {
			s.logger.Warn("email superseded", zap.String("to", res.To))
		}
		return res, ErrSuperseded
	}
	return res, s.markSent(ctx)
}
