package ingest

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// hashIDLength is the truncated hex length persisted as hash_id. Existing
// rows were written with this length, so it must not change.
const hashIDLength = 8

// RowHash returns the dedup hash over the raw column values of one row,
// joined in fixed column order. Values are hashed as the strings read from
// the CSV, before numeric coercion, so the same export always produces the
// same hash regardless of float formatting.
func RowHash(values []string) string {
	sum := md5.Sum([]byte(strings.Join(values, "_")))
	return hex.EncodeToString(sum[:])[:hashIDLength]
}
