package checkout

import (
	"crypto/rand"
	"time"
)

const suffixAlphabet = "ABCDEFGHJKMNPQRSTVWXYZ0123456789"

// newOrderNumber builds a human-readable, collision-resistant order number
// before the row is ever persisted, so no second save pass is needed. The
// random suffix disambiguates orders created in the same second.
func newOrderNumber(now time.Time) string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = suffixAlphabet[int(b)%len(suffixAlphabet)]
	}
	return "ORD-" + now.UTC().Format("20060102150405") + "-" + string(buf)
}
