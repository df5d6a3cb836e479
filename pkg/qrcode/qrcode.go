// Package qrcode renders the payment link of an invoice as a QR code
// PNG.
//
// Rendering is an optional enhancement: a failed render yields no image
// rather than an error. Renders may be superseded by a newer one when
// the link changes; a Tracker hands out generation tokens so the older
// result can be recognised and dropped.
package qrcode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	goqrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/invoicing-editor/pkg/logging"
)

// ErrStale is returned by Renderer.Render when a newer render started
// before this one finished.
var ErrStale = errors.New("qr render superseded")

// Level is the error correction level.
type Level string

const (
	LevelLow      Level = "L"
	LevelMedium   Level = "M"
	LevelQuartile Level = "Q"
	LevelHigh     Level = "H"
)

// Options controls the generated image.
type Options struct {
	Level  Level
	Margin int // quiet zone; 0 disables it
	Width  int // pixels
}

// DefaultOptions are medium error correction, a margin and a 240 pixel
// image.
func DefaultOptions() Options {
	return Options{Level: LevelMedium, Margin: 1, Width: 240}
}

// Encoder turns text into a PNG image.
type Encoder interface {
	Encode(ctx context.Context, text string, opts Options) ([]byte, error)
}

// PNGEncoder encodes with github.com/skip2/go-qrcode.
type PNGEncoder struct{}

func (PNGEncoder) Encode(ctx context.Context, text string, opts Options) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	level, err := recoveryLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	q, err := goqrcode.New(text, level)
	if err != nil {
		return nil, fmt.Errorf("qr encode: %w", err)
	}
	q.DisableBorder = opts.Margin <= 0
	width := opts.Width
	if width <= 0 {
		width = DefaultOptions().Width
	}
	png, err := q.PNG(width)
	if err != nil {
		return nil, fmt.Errorf("qr encode: %w", err)
	}
	return png, nil
}

func recoveryLevel(l Level) (goqrcode.RecoveryLevel, error) {
	switch Level(strings.ToUpper(string(l))) {
	case LevelLow:
		return goqrcode.Low, nil
	case "", LevelMedium:
		return goqrcode.Medium, nil
	case LevelQuartile:
		return goqrcode.High, nil
	case LevelHigh:
		return goqrcode.Highest, nil
	}
	return 0, fmt.Errorf("qr encode: unknown error correction level %q", l)
}

// Token identifies one render.
type Token uint64

// Tracker is a generation counter. Begin supersedes every earlier
// token. It is safe for concurrent use.
type Tracker struct {
	gen atomic.Uint64
}

// Begin starts a new generation.
func (t *Tracker) Begin() Token { return Token(t.gen.Add(1)) }

// Current reports whether tok is still the latest generation.
func (t *Tracker) Current(tok Token) bool { return uint64(tok) == t.gen.Load() }

// Renderer renders payment links, discarding results that were
// superseded while in flight.
type Renderer struct {
	enc     Encoder
	opts    Options
	tracker Tracker
	logger  *zap.Logger
}

// NewRenderer returns a renderer using enc, or PNGEncoder when enc is
// nil.
func NewRenderer(enc Encoder, opts Options, logger *zap.Logger) *Renderer {
	if enc == nil {
		enc = PNGEncoder{}
	}
	return &Renderer{enc: enc, opts: opts, logger: logging.OrNop(logger)}
}

// Render returns the QR image for link. An empty link or a failed
// encode returns a nil image and no error. ErrStale is returned when a
// later call to Render started before this one completed.
func (r *Renderer) Render(ctx context.Context, link string) ([]byte, error) {
	tok := r.tracker.Begin()
	link = strings.TrimSpace(link)
	if link == "" {
		return nil, nil
	}
	png, err := r.enc.Encode(ctx, link, r.opts)
	if !r.tracker.Current(tok) {
		return nil, ErrStale
	}
	if err != nil {
		r.logger.Warn("payment QR code not rendered", zap.Error(err))
		return nil, nil
	}
	return png, nil
}

// Image renders link without taking part in staleness tracking. Callers
// that pin their own snapshot of the invoice, like exports, use it so a
// concurrent preview render does not cancel theirs.
func (r *Renderer) Image(ctx context.Context, link string) []byte {
	link = strings.TrimSpace(link)
	if link == "" {
		return nil
	}
	png, err := r.enc.Encode(ctx, link, r.opts)
	if err != nil {
		r.logger.Warn("payment QR code not rendered", zap.Error(err))
		return nil
	}
	return png
}
