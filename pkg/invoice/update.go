package invoice

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrUnknownField is returned for a field name no editable field
	// answers to.
	ErrUnknownField = errors.New("unknown invoice field")

	// ErrInvalidValue is returned when a value does not fit the field,
	// such as text for the tax rate or an unknown status.
	ErrInvalidValue = errors.New("invalid field value")
)

// Field identifies one editable invoice field.
type Field int

const (
	SenderCompany Field = iota + 1
	SenderName
	SenderEmail
	SenderPhone
	SenderAddress
	SenderTaxID
	ClientCompany
	ClientName
	ClientEmail
	ClientPhone
	ClientAddress
	ClientTaxID
	MetaNumber
	MetaDate
	MetaDueDate
	MetaCurrency
	MetaTaxRate
	MetaDiscount
	MetaNotes
	MetaPaymentLink
	MetaLogo
	MetaStatus
	MetaPONumber
	MetaTerms
	MetaPublicViewURL
)

var fieldNames = map[Field]string{
	SenderCompany:     "your.company",
	SenderName:        "your.name",
	SenderEmail:       "your.email",
	SenderPhone:       "your.phone",
	SenderAddress:     "your.address",
	SenderTaxID:       "your.vatId",
	ClientCompany:     "client.company",
	ClientName:        "client.name",
	ClientEmail:       "client.email",
	ClientPhone:       "client.phone",
	ClientAddress:     "client.address",
	ClientTaxID:       "client.vatId",
	MetaNumber:        "meta.number",
	MetaDate:          "meta.date",
	MetaDueDate:       "meta.due",
	MetaCurrency:      "meta.currency",
	MetaTaxRate:       "meta.taxRate",
	MetaDiscount:      "meta.discount",
	MetaNotes:         "meta.notes",
	MetaPaymentLink:   "meta.paymentLink",
	MetaLogo:          "meta.logoDataUrl",
	MetaStatus:        "meta.status",
	MetaPONumber:      "meta.poNumber",
	MetaTerms:         "meta.terms",
	MetaPublicViewURL: "meta.publicViewUrl",
}

var fieldAliases = map[string]Field{
	"sender.company":           SenderCompany,
	"sender.name":              SenderName,
	"sender.email":             SenderEmail,
	"sender.phone":             SenderPhone,
	"sender.address":           SenderAddress,
	"sender.taxid":             SenderTaxID,
	"your.taxid":               SenderTaxID,
	"client.taxid":             ClientTaxID,
	"meta.duedate":             MetaDueDate,
	"meta.taxratepercent":      MetaTaxRate,
	"meta.discountamount":      MetaDiscount,
	"meta.logoimage":           MetaLogo,
	"meta.purchaseordernumber": MetaPONumber,
}

// Fields lists every editable field.
func Fields() []Field {
	out := make([]Field, 0, len(fieldNames))
	for f := SenderCompany; f <= MetaPublicViewURL; f++ {
		out = append(out, f)
	}
	return out
}

func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return "Field(" + strconv.Itoa(int(f)) + ")"
}

// Numeric reports whether the field holds a number.
func (f Field) Numeric() bool {
	return f == MetaTaxRate || f == MetaDiscount
}

// ParseField resolves a dotted field name such as "meta.taxRate" or
// "sender.company". Names are matched case-insensitively.
func ParseField(name string) (Field, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for f, n := range fieldNames {
		if strings.ToLower(n) == key {
			return f, nil
		}
	}
	if f, ok := fieldAliases[key]; ok {
		return f, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownField, name)
}

// Update is a single field assignment.
type Update struct {
	Field Field
	Value string
}

// Set builds an update from text. Numeric fields parse the text when
// the update is applied.
func Set(f Field, value string) Update {
	return Update{Field: f, Value: value}
}

// SetNumber builds an update for a numeric field.
func SetNumber(f Field, n float64) Update {
	return Update{Field: f, Value: strconv.FormatFloat(n, 'f', -1, 64)}
}

// Apply returns a copy of inv with exactly the field named by u
// replaced. inv itself is not modified.
func Apply(inv Invoice, u Update) (Invoice, error) {
	out := inv.Clone()
	if u.Field.Numeric() {
		n, err := strconv.ParseFloat(strings.TrimSpace(u.Value), 64)
		if err != nil || finite(n) != n {
			return inv, fmt.Errorf("%w: %s must be a number, got %q", ErrInvalidValue, u.Field, u.Value)
		}
		if u.Field == MetaTaxRate {
			out.Meta.TaxRate = n
		} else {
			out.Meta.Discount = n
		}
		return out, nil
	}
	if u.Field == MetaStatus {
		s := Status(u.Value)
		if !s.Valid() {
			return inv, fmt.Errorf("%w: unknown status %q", ErrInvalidValue, u.Value)
		}
		out.Meta.Status = s
		return out, nil
	}
	p := textField(&out, u.Field)
	if p == nil {
		return inv, fmt.Errorf("%w: %s", ErrUnknownField, u.Field)
	}
	*p = u.Value
	return out, nil
}

// Get returns the current value of a field as text.
func Get(inv Invoice, f Field) (string, error) {
	switch f {
	case MetaTaxRate:
		return strconv.FormatFloat(inv.Meta.TaxRate, 'f', -1, 64), nil
	case MetaDiscount:
		return strconv.FormatFloat(inv.Meta.Discount, 'f', -1, 64), nil
	case MetaStatus:
		return string(inv.Meta.Status), nil
	}
	p := textField(&inv, f)
	if p == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownField, f)
	}
	return *p, nil
}

func textField(inv *Invoice, f Field) *string {
	switch f {
	case SenderCompany:
		return &inv.Sender.Company
	case SenderName:
		return &inv.Sender.Name
	case SenderEmail:
		return &inv.Sender.Email
	case SenderPhone:
		return &inv.Sender.Phone
	case SenderAddress:
		return &inv.Sender.Address
	case SenderTaxID:
		return &inv.Sender.TaxID
	case ClientCompany:
		return &inv.Client.Company
	case ClientName:
		return &inv.Client.Name
	case ClientEmail:
		return &inv.Client.Email
	case ClientPhone:
		return &inv.Client.Phone
	case ClientAddress:
		return &inv.Client.Address
	case ClientTaxID:
		return &inv.Client.TaxID
	case MetaNumber:
		return &inv.Meta.Number
	case MetaDate:
		return &inv.Meta.Date
	case MetaDueDate:
		return &inv.Meta.DueDate
	case MetaCurrency:
		return &inv.Meta.Currency
	case MetaNotes:
		return &inv.Meta.Notes
	case MetaPaymentLink:
		return &inv.Meta.PaymentLink
	case MetaLogo:
		return &inv.Meta.Logo
	case MetaPONumber:
		return &inv.Meta.PONumber
	case MetaTerms:
		return &inv.Meta.Terms
	case MetaPublicViewURL:
		return &inv.Meta.PublicViewURL
	}
	return nil
}

// ItemPatch holds the fields of a line item to change. Nil fields are
// left as they are.
type ItemPatch struct {
	Description *string  `json:"description,omitempty"`
	Quantity    *float64 `json:"qty,omitempty"`
	UnitPrice   *float64 `json:"price,omitempty"`
}

// AddItem appends a blank item with a fresh id.
func AddItem(inv Invoice, ids IDFunc) Invoice {
	out := inv.Clone()
	out.Items = append(out.Items, NewItem(ids))
	return out
}

// RemoveItem drops the item with the given id, keeping the order of
// the rest. Unknown ids leave the invoice unchanged.
func RemoveItem(inv Invoice, id string) Invoice {
	out := inv.Clone()
	kept := out.Items[:0]
	for _, it := range out.Items {
		if it.ID != id {
			kept = append(kept, it)
		}
	}
	out.Items = kept
	return out
}

// UpdateItem merges patch into the item with the given id. Unknown ids
// leave the invoice unchanged.
func UpdateItem(inv Invoice, id string, patch ItemPatch) Invoice {
	out := inv.Clone()
	for i := range out.Items {
		if out.Items[i].ID != id {
			continue
		}
		if patch.Description != nil {
			out.Items[i].Description = *patch.Description
		}
		if patch.Quantity != nil {
			out.Items[i].Quantity = *patch.Quantity
		}
		if patch.UnitPrice != nil {
			out.Items[i].UnitPrice = *patch.UnitPrice
		}
	}
	return out
}
