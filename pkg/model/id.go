package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewID generates an opaque, time-sortable identifier for the given
// entity prefix, following the teacher's "para_<ts>_<idx>_<nonce>" /
// "turn_<monotonic>" convention, generalized to every entity rather
// than just chunks and turns. now is a Unix-nanosecond timestamp
// supplied by the caller (ids must not call time.Now internally so
// generation stays deterministic under test).
func NewID(prefix string, nowUnixNano int64, idx int) string {
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%d_%d_%s", prefix, nowUnixNano, idx, nonce)
}
