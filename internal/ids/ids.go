// Package ids generates identifiers for stored settlement records.
package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier suitable for storage keys.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Prefixed returns an identifier with a short type prefix, e.g. "pur_01H...".
// Prefixes keep purchase, subscription and tier ids distinguishable in logs.
func Prefixed(prefix string) string {
	return prefix + "_" + New()
}
