// Package idgen generates prefixed, creation-ordered identifiers.
//
// An ID looks like "run_0192f3a4b5c67d8e9f0a1b2c3d4e5f60": the entity prefix
// followed by a UUIDv7 in hex. The first 48 bits of a UUIDv7 are the Unix
// millisecond timestamp and the rest is random (with a per-process sequence
// keeping IDs monotonic inside one millisecond), so IDs sort by creation
// time. Uniqueness across processes is only probabilistic.
package idgen

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generate returns a new identifier for prefix.
func Generate(prefix string) (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("idgen: generate %s ID: %w", prefix, err)
	}
	return prefix + "_" + strings.ReplaceAll(u.String(), "-", ""), nil
}

// Func is the signature services use to obtain IDs, so tests can inject
// deterministic sequences.
type Func func(prefix string) (string, error)
