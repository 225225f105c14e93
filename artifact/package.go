// Package artifact assembles and verifies the self-contained randomness
// beacon artifact (C9): the bit-exact file layout a finalized round
// produces, and the standalone verifier that re-derives every check from
// the sealed package alone, without access to the producer's store.
package artifact

import (
	"fmt"
)

// FileSet is an in-memory, path-keyed view of an artifact package. It
// intentionally does not imply any archival format (zip packaging is out
// of scope); callers that want a zip can walk FileSet themselves.
type FileSet map[string][]byte

// Get returns the bytes stored under path, or an error naming the missing
// entry. Verify reports this error as the rejection reason for some entries
// and substitutes its own reason for others.
func (fs FileSet) Get(path string) ([]byte, error) {
	b, ok := fs[path]
	if !ok {
		return nil, fmt.Errorf("artifact: missing entry %q", path)
	}
	return b, nil
}

// Has reports whether path is present in the set.
func (fs FileSet) Has(path string) bool {
	_, ok := fs[path]
	return ok
}

// VDFProof is the JSON shape of vdf/proof.json, field names bit-exact per
// the artifact layout.
type VDFProof struct {
	SHex  string `json:"S_hex"`
	T     uint64 `json:"T"`
	PHex  string `json:"p_hex"`
	YHex  string `json:"y_hex"`
	T1ISO string `json:"t1_iso"`
}

// Selected is the JSON shape of selected.json.
type Selected struct {
	Indices map[string][]int `json:"indices"`
}

// RawMeta is the JSON shape of raw/<stream>/<i>.meta.json.
type RawMeta struct {
	LeafHashHex string `json:"leaf_hash_hex,omitempty"`
}

// RawSummary is the JSON shape of raw/summary.json. Its presence (not its
// content) is what the verifier treats as "raw payloads are included".
type RawSummary struct {
	Streams []string `json:"streams"`
}
