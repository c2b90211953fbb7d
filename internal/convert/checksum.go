package convert

import (
	"encoding/hex"

	"github.com/zeebo/xxh3"
)

// Checksum returns the hex xxh3 digest of raw source bytes. The digest
// keys the envelope cache together with the path and schema version.
func Checksum(raw []byte) string {
	h := xxh3.New()
	h.Write(raw)
	return hex.EncodeToString(h.Sum(nil))
}
