package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/invoicing-editor/pkg/clients"
	"github.com/invoicing-editor/pkg/invoice"
	"github.com/invoicing-editor/pkg/logging"
	"github.com/invoicing-editor/pkg/numbering"
)

// Repository loads and saves the editor records. Load operations never
// fail on bad data: a corrupt or missing record yields its default and
// a warning in the log. Only storage errors on save are returned.
type Repository struct {
	kv     KV
	logger *zap.Logger
}

// NewRepository wraps kv.
func NewRepository(kv KV, logger *zap.Logger) *Repository {
	return &Repository{kv: kv, logger: logging.OrNop(logger)}
}

// KV returns the underlying store.
func (r *Repository) KV() KV { return r.kv }

// LoadInvoice returns the stored invoice passed through the normalizer,
// or a new empty invoice.
func (r *Repository) LoadInvoice(ctx context.Context, now time.Time, ids invoice.IDFunc) invoice.Invoice {
	raw, err := r.kv.Get(ctx, KeyInvoice)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.Warn("could not read invoice, starting a new one", zap.Error(err))
		}
		return invoice.Empty(now, ids)
	}
	if !json.Valid(raw) {
		r.logger.Warn("stored invoice is not valid JSON, starting a new one", zap.Int("bytes", len(raw)))
	}
	return invoice.Normalize(raw, now, ids)
}

// SaveInvoice rewrites the invoice record.
func (r *Repository) SaveInvoice(ctx context.Context, inv invoice.Invoice) error {
	return r.put(ctx, KeyInvoice, inv)
}

// LoadClients returns the stored client records, or none.
func (r *Repository) LoadClients(ctx context.Context) []clients.Record {
	raw, err := r.kv.Get(ctx, KeyClients)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.Warn("could not read clients", zap.Error(err))
		}
		return nil
	}
	var recs []clients.Record
	if err := json.Unmarshal(raw, &recs); err != nil {
		r.logger.Warn("stored clients are corrupt, ignoring them", zap.Error(err))
		return nil
	}
	return recs
}

// SaveClients rewrites the client directory record.
func (r *Repository) SaveClients(ctx context.Context, recs []clients.Record) error {
	if recs == nil {
		recs = []clients.Record{}
	}
	return r.put(ctx, KeyClients, recs)
}

// LoadSequence returns the last numbering state, or nil when there is
// none.
func (r *Repository) LoadSequence(ctx context.Context) *numbering.State {
	raw, err := r.kv.Get(ctx, KeySequence)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.Warn("could not read numbering state", zap.Error(err))
		}
		return nil
	}
	var st *numbering.State
	if err := json.Unmarshal(raw, &st); err != nil {
		r.logger.Warn("stored numbering state is corrupt, restarting the sequence", zap.Error(err))
		return nil
	}
	return st
}

// SaveSequence rewrites the numbering state.
func (r *Repository) SaveSequence(ctx context.Context, st numbering.State) error {
	return r.put(ctx, KeySequence, st)
}

func (r *Repository) put(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := r.kv.Put(ctx, key, raw); err != nil {
		return err
	}
	r.logger.Debug("record saved", zap.String("key", key), zap.Int("bytes", len(raw)))
	return nil
}
