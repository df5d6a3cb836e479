// Package notify sends a rendered invoice to the client, either through
// an HTTP webhook or as a mailto link the user opens themselves.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/invoicing-editor/pkg/invoice"
	"github.com/invoicing-editor/pkg/logging"
)

// ErrSendFailed wraps every webhook delivery failure.
var ErrSendFailed = errors.New("failed to send email")

// Message is the JSON body posted to the webhook.
type Message struct {
	To         string `json:"to"`
	Subject    string `json:"subject"`
	HTML       string `json:"html"`
	Attachment string `json:"attachment"` // data URL
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Email is the composed text of an invoice email.
type Email struct {
	To      string
	Subject string
	Lines   []string
}

// Compose builds the email for inv with the given totals.
func Compose(inv invoice.Invoice, totals invoice.Totals) Email {
	from := inv.Sender.Company
	if from == "" {
		from = inv.Sender.Name
	}
	return Email{
		To:      strings.TrimSpace(inv.Client.Email),
		Subject: "Invoice " + inv.Meta.Number,
		Lines: []string{
			fmt.Sprintf("Hello %s,", inv.Client.Name),
			"",
			fmt.Sprintf("Please find your invoice %s.", inv.Meta.Number),
			fmt.Sprintf("Total: %s.", invoice.FormatMoney(totals.Total, inv.Meta.Currency)),
			"",
			"Regards,",
			from,
		},
	}
}

// Body is the plain text body with CRLF line breaks.
func (e Email) Body() string { return strings.Join(e.Lines, "\r\n") }

// HTML is the body with <br/> line breaks.
func (e Email) HTML() string {
	escaped := make([]string, len(e.Lines))
	for i, l := range e.Lines {
		escaped[i] = html.EscapeString(l)
	}
	return strings.Join(escaped, "<br/>")
}

// Message attaches a data URL to the email.
func (e Email) Message(attachment string) Message {
	return Message{To: e.To, Subject: e.Subject, HTML: e.HTML(), Attachment: attachment}
}

// MailtoLink is the mailto: deep link for e.
func (e Email) MailtoLink() string {
	return MailtoLink(e.To, e.Subject, e.Body())
}

// MailtoLink builds a mailto: URL with percent-encoded parts.
func MailtoLink(to, subject, body string) string {
	return "mailto:" + escape(to) + "?subject=" + escape(subject) + "&body=" + escape(body)
}

// escape percent-encodes s for a mailto URL; spaces become %20 since
// mail clients do not read + as a space.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// Webhook posts messages as JSON to a URL. Repeated failures open a
// circuit breaker so an unreachable endpoint fails fast.
type Webhook struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewWebhook creates a webhook sender. timeout bounds each request.
func NewWebhook(endpoint string, timeout time.Duration, logger *zap.Logger) (*Webhook, error) {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid webhook url %q", endpoint)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	logger = logging.OrNop(logger)
	return &Webhook{
		url:    endpoint,
		client: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "email-webhook",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed",
					zap.String("name", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
		logger: logger,
	}, nil
}

// Send posts msg. Any transport error or non-2xx response is returned
// wrapped in ErrSendFailed.
func (w *Webhook) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	_, err = w.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := w.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("webhook responded %s", resp.Status)
		}
		return nil, nil
	})
	if err != nil {
		w.logger.Error("email webhook failed", zap.String("to", msg.To), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	w.logger.Info("email request sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}
