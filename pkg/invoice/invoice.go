// pkg/invoice/invoice.go

package invoice

import (
	"time"
)

// DateLayout is the layout of the date and due date fields.
const DateLayout = "2006-01-02"

// DefaultNumber is the number given to a brand new invoice before
// auto-numbering is used.
const DefaultNumber = "INV-0001"

// DefaultCurrency is the currency of a brand new invoice.
const DefaultCurrency = "USD"

// Status is the lifecycle state shown on the invoice.
type Status string

const (
	StatusDraft   Status = "draft"
	StatusSent    Status = "sent"
	StatusViewed  Status = "viewed"
	StatusPaid    Status = "paid"
	StatusOverdue Status = "overdue"
)

// Statuses lists every valid status in display order.
var Statuses = []Status{StatusDraft, StatusSent, StatusViewed, StatusPaid, StatusOverdue}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Invoice represents the invoice data model.
type Invoice struct {
	Sender Party      `json:"your"`
	Client Party      `json:"client"`
	Meta   Meta       `json:"meta"`
	Items  []LineItem `json:"items"`
}

// Party represents the sender or the client of an invoice.
type Party struct {
	Company string `json:"company"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	TaxID   string `json:"vatId"`
}

// Meta holds the invoice metadata and the tax and discount terms.
type Meta struct {
	Number        string  `json:"number"`
	Date          string  `json:"date"`
	DueDate       string  `json:"due"`
	Currency      string  `json:"currency"`
	TaxRate       float64 `json:"taxRate"`
	Discount      float64 `json:"discount"`
	Notes         string  `json:"notes"`
	PaymentLink   string  `json:"paymentLink"`
	Logo          string  `json:"logoDataUrl"`
	Status        Status  `json:"status"`
	PONumber      string  `json:"poNumber"`
	Terms         string  `json:"terms"`
	PublicViewURL string  `json:"publicViewUrl"`
}

// LineItem represents an item in the invoice.
type LineItem struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Quantity    float64 `json:"qty"`
	UnitPrice   float64 `json:"price"`
}

// Amount is quantity times unit price.
func (it LineItem) Amount() float64 {
	return finite(it.Quantity) * finite(it.UnitPrice)
}

// NewItem returns a blank line item with a fresh id.
func NewItem(ids IDFunc) LineItem {
	return LineItem{ID: ids.next(), Quantity: 1}
}

// Empty returns the invoice a new session starts with: blank parties,
// default metadata dated today and a single blank item.
func Empty(now time.Time, ids IDFunc) Invoice {
	return Invoice{
		Meta:  defaultMeta(now),
		Items: []LineItem{NewItem(ids)},
	}
}

func defaultMeta(now time.Time) Meta {
	return Meta{
		Number:   DefaultNumber,
		Date:     now.Format(DateLayout),
		Currency: DefaultCurrency,
		Status:   StatusDraft,
	}
}

// Clone returns a deep copy; the item slice is never shared.
func (inv Invoice) Clone() Invoice {
	out := inv
	if inv.Items != nil {
		out.Items = make([]LineItem, len(inv.Items))
		copy(out.Items, inv.Items)
	}
	return out
}

// Totals computes the derived amounts of the invoice.
func (inv Invoice) Totals() Totals {
	return Calculate(inv.Items, inv.Meta.TaxRate, inv.Meta.Discount)
}

// Overdue reports whether the invoice should carry an overdue badge:
// either it is explicitly marked overdue, or its due date is before
// today and it has not been paid.
func (inv Invoice) Overdue(now time.Time) bool {
	if inv.Meta.Status == StatusOverdue {
		return true
	}
	if inv.Meta.Status == StatusPaid || inv.Meta.DueDate == "" {
		return false
	}
	due, err := time.ParseInLocation(DateLayout, inv.Meta.DueDate, now.Location())
	if err != nil {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return due.Before(today)
}

// Item returns the item with the given id.
func (inv Invoice) Item(id string) (LineItem, bool) {
	for _, it := range inv.Items {
		if it.ID == id {
			return it, true
		}
	}
	return LineItem{}, false
}
