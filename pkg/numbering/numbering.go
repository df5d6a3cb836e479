// Package numbering mints date-scoped invoice numbers of the form
// INV-YYYYMMDD-NNN. The sequence restarts at 1 every day.
//
// The package keeps no state: callers pass in the last state they
// persisted and store the state returned for the next call.
package numbering

import (
	"fmt"
	"time"
)

// DateKeyLayout is the layout of State.Date.
const DateKeyLayout = "20060102"

// State is the last number handed out.
type State struct {
	Date string `json:"date"`
	Seq  int    `json:"seq"`
}

// Next returns the invoice number following last for the calendar day
// of today (in today's location) together with the state to persist.
func Next(today time.Time, last *State) (string, State) {
	key := today.Format(DateKeyLayout)
	seq := 1
	if last != nil && last.Date == key {
		seq = last.Seq + 1
	}
	return Format(key, seq), State{Date: key, Seq: seq}
}

// Format renders a date key and sequence as an invoice number.
func Format(dateKey string, seq int) string {
	return fmt.Sprintf("INV-%s-%03d", dateKey, seq)
}
