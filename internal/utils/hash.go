package utils

import "hash/fnv"

// HashStringToUint64 is the deterministic hash behind mock AI behavior and
// anonymous requester pseudo-ids.
func HashStringToUint64(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
