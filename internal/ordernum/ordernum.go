// Package ordernum builds the human-readable identifiers stamped on matched
// orders: a side prefix ('B' or 'A'), the match date as yymmdd, and the
// order's database id zero-padded to five digits. Ids are globally unique, so
// the result is collision-free.
package ordernum

import (
	"fmt"
	"time"

	"github.com/soletrade/marketplace/internal/models"
)

const idDigits = 5

// Generate returns the order number for one matched leg. It must be called
// exactly once per order, after the order row exists (the id is part of the
// number).
func Generate(side models.Side, matchedAt time.Time, orderID int) string {
	prefix := "A"
	if side == models.SideBid {
		prefix = "B"
	}
	return fmt.Sprintf("%s%s%0*d", prefix, matchedAt.Format("060102"), idDigits, orderID)
}
