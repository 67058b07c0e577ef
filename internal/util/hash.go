package util

import (
	"fmt"
	"hash/fnv"
)

// ShortHash returns a compact stable hash of s, used to derive an
// identifier from an opaque token without storing the token itself.
func ShortHash(s string) string {
	h := fnv.New64a()
	h.Write([]byte(s))
	return fmt.Sprintf("%016x", h.Sum64())
}
