package invoice

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAbsentInput(t *testing.T) {
	for _, raw := range []string{"", "null", "{not json", "42", `"text"`, `[1,2]`} {
		t.Run(raw, func(t *testing.T) {
			got := Normalize([]byte(raw), testNow, seqIDs())
			assert.Equal(t, Empty(testNow, seqIDs()), got)
			require.Len(t, got.Items, 1)
		})
	}
}

func TestNormalizeMergesPerSection(t *testing.T) {
	raw := `{
		"your": {"company": "Acme", "vatId": "GB1"},
		"client": "not an object",
		"meta": {"number": "INV-7", "taxRate": "12.5", "discount": "lots", "status": "paid", "extra": true},
		"unknown": 1
	}`
	got := Normalize([]byte(raw), testNow, seqIDs())

	assert.Equal(t, Party{Company: "Acme", TaxID: "GB1"}, got.Sender)
	assert.Equal(t, Party{}, got.Client)
	assert.Equal(t, "INV-7", got.Meta.Number)
	assert.Equal(t, "2024-03-15", got.Meta.Date)
	assert.Equal(t, "USD", got.Meta.Currency)
	assert.Equal(t, 12.5, got.Meta.TaxRate)
	assert.Equal(t, 0.0, got.Meta.Discount)
	assert.Equal(t, StatusPaid, got.Meta.Status)
	require.Len(t, got.Items, 1, "missing items fall back to one blank item")
}

func TestNormalizeItems(t *testing.T) {
	raw := `{"items": [
		{"id": "a", "description": "Design", "qty": 2, "price": 50},
		{"description": "No id", "qty": "3", "price": "1.5"},
		{"id": "", "qty": "many", "price": null},
		"garbage"
	]}`
	got := Normalize([]byte(raw), testNow, seqIDs())

	want := []LineItem{
		{ID: "a", Description: "Design", Quantity: 2, UnitPrice: 50},
		{ID: "id-1", Description: "No id", Quantity: 3, UnitPrice: 1.5},
		{ID: "id-2", Quantity: 1, UnitPrice: 0},
		{ID: "id-3", Quantity: 1, UnitPrice: 0},
	}
	assert.Equal(t, want, got.Items)
}

func TestNormalizeItemsNotAList(t *testing.T) {
	got := Normalize([]byte(`{"items": {"id": "x"}}`), testNow, seqIDs())
	assert.Equal(t, []LineItem{{ID: "id-1", Quantity: 1}}, got.Items)
}

func TestNormalizeKeepsEmptyItems(t *testing.T) {
	got := Normalize([]byte(`{"items": []}`), testNow, seqIDs())
	assert.Empty(t, got.Items)
	assert.Equal(t, Totals{}, got.Totals())
}

func TestNormalizeAliases(t *testing.T) {
	raw := `{
		"sender": {"company": "Acme", "taxId": "T-1"},
		"meta": {"dueDate": "2024-04-01", "taxRatePercent": 8, "discountAmount": 2,
		         "purchaseOrderNumber": "PO-1", "logoImage": "data:image/png;base64,AA=="},
		"items": [{"id": "a", "quantity": 4, "unitPrice": 2.5}]
	}`
	got := Normalize([]byte(raw), testNow, seqIDs())

	assert.Equal(t, "Acme", got.Sender.Company)
	assert.Equal(t, "T-1", got.Sender.TaxID)
	assert.Equal(t, "2024-04-01", got.Meta.DueDate)
	assert.Equal(t, 8.0, got.Meta.TaxRate)
	assert.Equal(t, 2.0, got.Meta.Discount)
	assert.Equal(t, "PO-1", got.Meta.PONumber)
	assert.Equal(t, "data:image/png;base64,AA==", got.Meta.Logo)
	assert.Equal(t, []LineItem{{ID: "a", Quantity: 4, UnitPrice: 2.5}}, got.Items)
}

func TestNormalizeUnknownStatus(t *testing.T) {
	got := Normalize([]byte(`{"meta": {"status": "archived"}}`), testNow, seqIDs())
	assert.Equal(t, StatusDraft, got.Meta.Status)
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"null",
		`{"items": []}`,
		`{"your": {"name": "Ann"}, "meta": {"taxRate": "7"}, "items": [{"description": "x"}, 5]}`,
		`{"client": {"email": " Bob@Example.com "}, "meta": {"status": "sent", "due": "2024-01-01"}}`,
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			once := Normalize([]byte(in), testNow, seqIDs())
			raw, err := json.Marshal(once)
			require.NoError(t, err)
			twice := Normalize(raw, testNow, seqIDs())
			assert.Equal(t, once, twice)
		})
	}
}

func TestNormalizeValueDecoded(t *testing.T) {
	v := map[string]any{
		"meta":  map[string]any{"discount": json.Number("3.5")},
		"items": []any{map[string]any{"id": "z", "qty": 2}},
	}
	got := NormalizeValue(v, testNow, seqIDs())
	assert.Equal(t, 3.5, got.Meta.Discount)
	assert.Equal(t, []LineItem{{ID: "z", Quantity: 2}}, got.Items)
}
