package clients

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoicing-editor/pkg/invoice"
)

func seqIDs() invoice.IDFunc {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("c-%d", n)
	}
}

func TestSave(t *testing.T) {
	d := New(nil, seqIDs())
	p := invoice.Party{Company: "Acme", Name: "Ann", Email: "ann@acme.test", Phone: "555", Address: "1 Road", TaxID: "X"}

	first := d.Save(p)
	assert.Equal(t, Record{ID: "c-1", Company: "Acme", Name: "Ann", Email: "ann@acme.test", Address: "1 Road", History: []Event{}}, first)

	second := d.Save(p)
	assert.Equal(t, "c-2", second.ID)

	recs := d.Records()
	require.Len(t, recs, 2, "saving the same party twice keeps both")
	assert.Equal(t, "c-2", recs[0].ID, "newest first")
	assert.Equal(t, "c-1", recs[1].ID)
}

func TestSelect(t *testing.T) {
	d := New([]Record{{ID: "x", Company: "Acme", Name: "Ann", Email: "a@b.c", Address: "Street"}}, seqIDs())

	p, ok := d.Select("x")
	require.True(t, ok)
	assert.Equal(t, invoice.Party{Company: "Acme", Name: "Ann", Email: "a@b.c", Address: "Street"}, p)

	_, ok = d.Select("missing")
	assert.False(t, ok)
}

func TestRemove(t *testing.T) {
	d := New([]Record{{ID: "a"}, {ID: "b"}, {ID: "c"}}, seqIDs())

	assert.True(t, d.Remove("b"))
	assert.False(t, d.Remove("b"))
	assert.False(t, d.Remove("zzz"))

	var ids []string
	for _, r := range d.Records() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"a", "c"}, ids)
}

func TestAppendHistoryMatchesAllDuplicates(t *testing.T) {
	d := New([]Record{
		{ID: "a", Email: "Bob@Example.com", History: []Event{{At: 1, Type: "sent", Number: "INV-1"}}},
		{ID: "b", Email: "  bob@example.COM "},
		{ID: "c", Email: "carol@example.com"},
	}, seqIDs())

	ev := Event{At: 2, Type: EventSent, Total: 19, Number: "INV-2"}
	n := d.AppendHistory(" BOB@example.com", ev)
	assert.Equal(t, 2, n)

	recs := d.Records()
	assert.Equal(t, []Event{ev, {At: 1, Type: "sent", Number: "INV-1"}}, recs[0].History)
	assert.Equal(t, []Event{ev}, recs[1].History)
	assert.Empty(t, recs[2].History)
}

func TestAppendHistoryNoMatch(t *testing.T) {
	initial := []Record{{ID: "a", Email: "a@example.com"}}
	d := New(initial, seqIDs())
	before := d.Records()

	assert.Equal(t, 0, d.AppendHistory("nobody@example.com", Event{Type: EventSent}))
	assert.Equal(t, 0, d.AppendHistory("   ", Event{Type: EventSent}))
	assert.Equal(t, before, d.Records())
	assert.Equal(t, 1, d.Len())
}

func TestRecordsAreCopies(t *testing.T) {
	d := New([]Record{{ID: "a", Email: "a@example.com"}}, seqIDs())
	recs := d.Records()
	recs[0].Name = "changed"
	recs[0].History = append(recs[0].History, Event{Type: "x"})

	got, ok := d.Get("a")
	require.True(t, ok)
	assert.Equal(t, "", got.Name)
	assert.Empty(t, got.History)
}

func TestFind(t *testing.T) {
	d := New([]Record{{ID: "a", Email: "A@x.io"}, {ID: "b", Email: "b@x.io"}, {ID: "c", Email: "a@x.io "}}, seqIDs())
	found := d.Find("a@X.io")
	require.Len(t, found, 2)
	assert.Equal(t, "a", found[0].ID)
	assert.Equal(t, "c", found[1].ID)
	assert.Nil(t, d.Find(""))
}
