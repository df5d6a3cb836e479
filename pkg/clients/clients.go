// Package clients keeps the address book of saved clients and the
// history of invoices sent to each of them.
package clients

import (
	"strings"

	"github.com/invoicing-editor/pkg/invoice"
)

// EventSent is recorded when an invoice is exported or emailed.
const EventSent = "sent"

// Record is a saved client.
type Record struct {
	ID      string  `json:"id"`
	Company string  `json:"company"`
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Address string  `json:"address"`
	History []Event `json:"history"`
}

// Event is one entry of a client's history.
type Event struct {
	At     int64   `json:"at"` // unix milliseconds
	Type   string  `json:"type"`
	Total  float64 `json:"total"`
	Number string  `json:"number"`
}

// Party returns the fields copied into an invoice's client section.
func (r Record) Party() invoice.Party {
	return invoice.Party{
		Company: r.Company,
		Name:    r.Name,
		Email:   r.Email,
		Address: r.Address,
	}
}

func (r Record) clone() Record {
	out := r
	out.History = make([]Event, len(r.History))
	copy(out.History, r.History)
	return out
}

// Directory is an ordered list of client records, most recently saved
// first. Saving does not deduplicate: two records may share an email.
// The zero value is not usable; call New.
type Directory struct {
	records []Record
	ids     invoice.IDFunc
}

// New returns a directory holding copies of records.
func New(records []Record, ids invoice.IDFunc) *Directory {
	d := &Directory{ids: ids, records: make([]Record, 0, len(records))}
	for _, r := range records {
		d.records = append(d.records, r.clone())
	}
	return d
}

// Len returns the number of records.
func (d *Directory) Len() int { return len(d.records) }

// Records returns a copy of all records in order.
func (d *Directory) Records() []Record {
	out := make([]Record, len(d.records))
	for i, r := range d.records {
		out[i] = r.clone()
	}
	return out
}

// Get returns the record with the given id.
func (d *Directory) Get(id string) (Record, bool) {
	for _, r := range d.records {
		if r.ID == id {
			return r.clone(), true
		}
	}
	return Record{}, false
}

// Save stores p as a new client at the front of the directory.
func (d *Directory) Save(p invoice.Party) Record {
	r := Record{
		ID:      d.ids.Next(),
		Company: p.Company,
		Name:    p.Name,
		Email:   p.Email,
		Address: p.Address,
		History: []Event{},
	}
	d.records = append([]Record{r}, d.records...)
	return r.clone()
}

// Select returns the party fields of the client with the given id.
func (d *Directory) Select(id string) (invoice.Party, bool) {
	r, ok := d.Get(id)
	if !ok {
		return invoice.Party{}, false
	}
	return r.Party(), true
}

// Remove deletes the client with the given id and reports whether it
// existed.
func (d *Directory) Remove(id string) bool {
	for i, r := range d.records {
		if r.ID == id {
			d.records = append(d.records[:i:i], d.records[i+1:]...)
			return true
		}
	}
	return false
}

// Find returns every record whose email matches.
func (d *Directory) Find(email string) []Record {
	key := emailKey(email)
	if key == "" {
		return nil
	}
	var out []Record
	for _, r := range d.records {
		if emailKey(r.Email) == key {
			out = append(out, r.clone())
		}
	}
	return out
}

// AppendHistory puts ev at the front of the history of every client
// whose email matches and returns how many clients were updated. An
// empty email or no match changes nothing; it never creates a client.
func (d *Directory) AppendHistory(email string, ev Event) int {
	key := emailKey(email)
	if key == "" {
		return 0
	}
	n := 0
	for i := range d.records {
		if emailKey(d.records[i].Email) != key {
			continue
		}
		h := make([]Event, 0, len(d.records[i].History)+1)
		d.records[i].History = append(append(h, ev), d.records[i].History...)
		n++
	}
	return n
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
