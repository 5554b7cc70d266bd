package coordinator

import (
	"math/rand/v2"

	"github.com/creachadair/mds/mapset"
)

// freshCookie samples a uniformly random, non-zero 32-bit identifier
// not already present in set, resampling on collision. Per spec.md
// §4.1.2, collision probability is negligible at the expected
// cardinality (tens of live cookies) and this is explicitly not
// cryptographic. Zero is reserved as an invalid/absent cookie, matching
// the convention other freedesktop inhibit-style APIs use.
func freshCookie(set mapset.Set[uint32]) uint32 {
	for {
		c := rand.Uint32()
		if c == 0 {
			continue
		}
		if _, exists := set[c]; !exists {
			return c
		}
	}
}
