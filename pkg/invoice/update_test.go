package invoice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInvoice() Invoice {
	inv := Empty(testNow, seqIDs())
	inv.Sender = Party{Company: "Acme", Email: "billing@acme.test"}
	inv.Client = Party{Name: "Bob", Email: "bob@example.com"}
	inv.Items = []LineItem{
		{ID: "a", Description: "one", Quantity: 1, UnitPrice: 10},
		{ID: "b", Description: "two", Quantity: 2, UnitPrice: 20},
		{ID: "c", Description: "three", Quantity: 3, UnitPrice: 30},
	}
	return inv
}

func TestApplyChangesOnlyThatField(t *testing.T) {
	before := sampleInvoice()
	snapshot := before.Clone()

	after, err := Apply(before, SetNumber(MetaTaxRate, 8))
	require.NoError(t, err)

	assert.Equal(t, 8.0, after.Meta.TaxRate)
	want := snapshot
	want.Meta.TaxRate = 8
	assert.Equal(t, want, after)
	assert.Equal(t, snapshot, before, "the input must not be modified")

	after.Items[0].Description = "mutated"
	assert.Equal(t, "one", before.Items[0].Description, "items must not be shared")
}

func TestApplyTextFields(t *testing.T) {
	for _, f := range Fields() {
		if f.Numeric() || f == MetaStatus {
			continue
		}
		t.Run(f.String(), func(t *testing.T) {
			got, err := Apply(sampleInvoice(), Set(f, "value"))
			require.NoError(t, err)
			v, err := Get(got, f)
			require.NoError(t, err)
			assert.Equal(t, "value", v)
		})
	}
}

func TestApplyRejectsBadValues(t *testing.T) {
	inv := sampleInvoice()

	_, err := Apply(inv, Set(MetaDiscount, "ten"))
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = Apply(inv, Set(MetaStatus, "archived"))
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = Apply(inv, Set(Field(999), "x"))
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestApplyStatus(t *testing.T) {
	got, err := Apply(sampleInvoice(), Set(MetaStatus, "paid"))
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, got.Meta.Status)
}

func TestParseField(t *testing.T) {
	tests := []struct {
		name string
		want Field
	}{
		{"meta.taxRate", MetaTaxRate},
		{"META.TAXRATE", MetaTaxRate},
		{"meta.taxRatePercent", MetaTaxRate},
		{"your.company", SenderCompany},
		{"sender.company", SenderCompany},
		{"client.vatId", ClientTaxID},
		{"client.taxId", ClientTaxID},
		{"meta.due", MetaDueDate},
		{"meta.dueDate", MetaDueDate},
		{" meta.logoDataUrl ", MetaLogo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseField(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseField("meta")
	assert.ErrorIs(t, err, ErrUnknownField)
	_, err = ParseField("items.0.qty")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestFieldNamesRoundTrip(t *testing.T) {
	for _, f := range Fields() {
		got, err := ParseField(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
}

func TestAddItem(t *testing.T) {
	before := sampleInvoice()
	after := AddItem(before, func() string { return "new" })

	require.Len(t, after.Items, 4)
	assert.Equal(t, LineItem{ID: "new", Quantity: 1}, after.Items[3])
	assert.Len(t, before.Items, 3)
}

func TestRemoveItem(t *testing.T) {
	before := sampleInvoice()
	after := RemoveItem(before, "b")

	assert.Equal(t, []string{"a", "c"}, itemIDs(after))
	assert.Equal(t, []string{"a", "b", "c"}, itemIDs(before))

	same := RemoveItem(before, "missing")
	assert.Equal(t, before, same)
}

func TestUpdateItem(t *testing.T) {
	before := sampleInvoice()
	desc := "renamed"
	qty := 7.0
	after := UpdateItem(before, "b", ItemPatch{Description: &desc, Quantity: &qty})

	assert.Equal(t, LineItem{ID: "b", Description: "renamed", Quantity: 7, UnitPrice: 20}, after.Items[1])
	assert.Equal(t, before.Items[0], after.Items[0])
	assert.Equal(t, before.Items[2], after.Items[2])
	assert.Equal(t, "two", before.Items[1].Description)

	assert.Equal(t, before, UpdateItem(before, "missing", ItemPatch{Description: &desc}))
}

func itemIDs(inv Invoice) []string {
	ids := make([]string, 0, len(inv.Items))
	for _, it := range inv.Items {
		ids = append(ids, it.ID)
	}
	return ids
}
