package invoice

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Normalize turns a persisted record of unknown shape into a complete
// invoice. Malformed JSON, missing sections and fields of the wrong
// type all fall back to the defaults of Empty; it never fails.
func Normalize(raw []byte, now time.Time, ids IDFunc) Invoice {
	var v any
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return Empty(now, ids)
	}
	return NormalizeValue(v, now, ids)
}

// NormalizeValue is Normalize for a value already decoded by
// encoding/json.
func NormalizeValue(v any, now time.Time, ids IDFunc) Invoice {
	root, ok := v.(map[string]any)
	if !ok {
		return Empty(now, ids)
	}
	meta := defaultMeta(now)
	inv := Invoice{
		Sender: normalizeParty(section(root, "your", "sender")),
		Client: normalizeParty(section(root, "client")),
		Meta:   normalizeMeta(section(root, "meta"), meta),
	}
	raw, ok := lookup(root, "items")
	list, isList := raw.([]any)
	if !ok || !isList {
		inv.Items = []LineItem{NewItem(ids)}
		return inv
	}
	inv.Items = make([]LineItem, 0, len(list))
	for _, el := range list {
		obj, _ := el.(map[string]any)
		inv.Items = append(inv.Items, normalizeItem(obj, ids))
	}
	return inv
}

func normalizeParty(m map[string]any) Party {
	return Party{
		Company: str(m, "", "company"),
		Name:    str(m, "", "name"),
		Email:   str(m, "", "email"),
		Phone:   str(m, "", "phone"),
		Address: str(m, "", "address"),
		TaxID:   str(m, "", "vatId", "taxId"),
	}
}

func normalizeMeta(m map[string]any, d Meta) Meta {
	status := Status(str(m, string(d.Status), "status"))
	if !status.Valid() {
		status = d.Status
	}
	return Meta{
		Number:        str(m, d.Number, "number"),
		Date:          str(m, d.Date, "date"),
		DueDate:       str(m, d.DueDate, "due", "dueDate"),
		Currency:      str(m, d.Currency, "currency"),
		TaxRate:       num(m, 0, "taxRate", "taxRatePercent"),
		Discount:      num(m, 0, "discount", "discountAmount"),
		Notes:         str(m, d.Notes, "notes"),
		PaymentLink:   str(m, d.PaymentLink, "paymentLink"),
		Logo:          str(m, d.Logo, "logoDataUrl", "logoImage"),
		Status:        status,
		PONumber:      str(m, d.PONumber, "poNumber", "purchaseOrderNumber"),
		Terms:         str(m, d.Terms, "terms"),
		PublicViewURL: str(m, d.PublicViewURL, "publicViewUrl"),
	}
}

func normalizeItem(m map[string]any, ids IDFunc) LineItem {
	id := str(m, "", "id")
	if id == "" {
		id = ids.next()
	}
	return LineItem{
		ID:          id,
		Description: str(m, "", "description"),
		Quantity:    num(m, 1, "qty", "quantity"),
		UnitPrice:   num(m, 0, "price", "unitPrice"),
	}
}

// section returns the first of keys holding an object, or nil.
func section(m map[string]any, keys ...string) map[string]any {
	for _, k := range keys {
		if obj, ok := m[k].(map[string]any); ok {
			return obj
		}
	}
	return nil
}

// lookup returns the value of the first key present and not null.
func lookup(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func str(m map[string]any, def string, keys ...string) string {
	v, ok := lookup(m, keys...)
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

func num(m map[string]any, def float64, keys ...string) float64 {
	v, ok := lookup(m, keys...)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return finiteOr(n, def)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return finiteOr(f, def)
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return finiteOr(f, def)
		}
	case int:
		return float64(n)
	}
	return def
}

func finiteOr(f, def float64) float64 {
	if finite(f) != f {
		return def
	}
	return f
}
