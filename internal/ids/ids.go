// Package ids generates ULID identifiers for payment and royalty records.
// ULIDs sort by creation time, so storage keys need no separate timestamp
// index. Contract, dispute and token ids are dense integer sequences owned
// by their services and do not come from here.
package ids

import (
	cryptorand "crypto/rand"
	"sync"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(cryptorand.Reader, 0)
)

// New returns a fresh ULID string. Safe for concurrent use.
func New() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Now(), entropy).String()
}
