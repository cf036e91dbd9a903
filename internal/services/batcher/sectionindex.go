package batcher

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// largePrime bounds the hash space for named section ids so they interleave
// with numeric ones instead of collapsing into a single bucket.
const largePrime = 999983

// sectionIndex extracts the adjacency index for a section id. "sec_<n>"
// ids use the integer directly; any other id is hashed (FNV-1a mod
// largePrime) so named sections like "sec_introduction"/"sec_conclusion"
// are treated as non-adjacent to numbered sections.
func sectionIndex(sectionID string) int {
	const prefix = "sec_"
	if strings.HasPrefix(sectionID, prefix) {
		if n, err := strconv.Atoi(strings.TrimPrefix(sectionID, prefix)); err == nil {
			return n
		}
	}

	h := fnv.New32a()
	h.Write([]byte(sectionID))
	return int(h.Sum32() % largePrime)
}
