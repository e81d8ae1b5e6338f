package replica

import (
	"encoding/json"
	"fmt"

	"github.com/minio/blake2b-simd"
)

// Digest hashes a canonical encoding of the data tree: map keys sorted and
// numbers printed in their shortest form, so a copy that went through a
// lossless codec hashes the same. Equal digests mean observably equal trees.
func (r *Replica) Digest() ([32]byte, error) {
	return DigestOf(r.data)
}

// DigestOf hashes a data tree like Replica.Digest.
func DigestOf(data map[string]interface{}) ([32]byte, error) {
	encoded, err := json.Marshal(data)
	if err != nil {
		return [32]byte{}, fmt.Errorf("digest: %w", err)
	}
	return blake2b.Sum256(encoded), nil
}
