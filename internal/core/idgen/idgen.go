// Package idgen generates the identifiers this service mints itself:
// order ids and internal withdrawal ids. Payment ids come from the
// processor and are never generated here.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OrderID builds a traceable order identifier: user, millisecond
// timestamp, short random suffix.
func OrderID(userID string) string {
	return fmt.Sprintf("%s_%d_%s", userID, time.Now().UnixMilli(), randHex(4))
}

// WithdrawalID mints the internal withdrawal key. Prefixed so internal
// ids are never mistaken for processor-assigned payout ids.
func WithdrawalID() string {
	return fmt.Sprintf("wd_%d_%s", time.Now().UnixMilli(), randHex(4))
}

func randHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the platform is broken; fall back to
		// a uuid source rather than panic in a request path
		return uuid.New().String()[:n*2]
	}
	return hex.EncodeToString(b)
}
