package tail

import (
	"fmt"
	"time"

	"goldex.com/internal/quotes/ws"
)

// Line renders one frame as a single terminal line.
func Line(m ws.ServerMsg) string {
	d := m.Data
	sign := ""
	if d.Change > 0 {
		sign = "+"
	}
	at := d.LastUpdate
	if at.IsZero() {
		at = m.Timestamp
	}
	return fmt.Sprintf("%-7s %10.2f %s%.2f (%s%.2f%%)  %-13s %s",
		d.Symbol, d.Price, sign, d.Change, sign, d.ChangePercent, d.Source, at.UTC().Format(time.RFC3339))
}
