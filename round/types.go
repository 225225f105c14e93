package round

import (
	"encoding/hex"
	"errors"
	"math/big"
)

// Stage is one of the three states a round passes through, in order.
// It is also the wire representation used by status responses.
type Stage string

const (
	StageCommitted Stage = "committed"
	StageBeaconed  Stage = "beaconed"
	StageFinalized Stage = "finalized"
)

// StreamSubmission is one named group of fixed-size leaves submitted at
// commit. The caller's slice order is the submission order; it fixes both
// the Merkle linearization and, later, the extractor's concatenation
// order. Implementations must never substitute ambient map iteration for
// this order.
type StreamSubmission struct {
	Name   string
	Leaves [][]byte
}

// Manifest is the durable, JSON-serializable projection of a round. It is
// the single source of truth: every stage transition replaces it wholesale
// via store.CommitManifest, and every read (status, finalize, verify)
// starts from it rather than from in-memory state.
type Manifest struct {
	RoundID       string           `json:"round_id"`
	RoundLabel    string           `json:"round_label"`
	Stage         Stage            `json:"stage"`
	LeafSizeBytes int              `json:"leaf_size_bytes"`
	StreamOrder   []string         `json:"stream_order"`
	Streams       map[string]int   `json:"streams"`
	IndexMap      map[string][]int `json:"index_map"`
	MerkleRootHex string           `json:"merkle_root_hex"`
	T0ISO         string           `json:"t0_iso"`

	SRaw          string `json:"s_raw,omitempty"`
	SCanonicalHex string `json:"s_canonical_hex,omitempty"`
	VDFT          uint64 `json:"vdf_t,omitempty"`
	ModulusBits   int    `json:"modulus_bits,omitempty"`
	PHex          string `json:"p_hex,omitempty"`
	YHex          string `json:"y_hex,omitempty"`
	T1ISO         string `json:"t1_iso,omitempty"`

	SelectedIndices map[string][]int `json:"selected_indices,omitempty"`
	OutputBits      int              `json:"output_bits,omitempty"`
	OutputBytesHex  string           `json:"output_bytes_hex,omitempty"`
	T2ISO           string           `json:"t2_iso,omitempty"`
}

// MerkleRoot decodes the committed Merkle root.
func (m *Manifest) MerkleRoot() ([]byte, error) {
	return hex.DecodeString(m.MerkleRootHex)
}

// SCanonical decodes the canonical beacon seed bytes recorded at beacon.
func (m *Manifest) SCanonical() ([]byte, error) {
	if m.SCanonicalHex == "" {
		return nil, errors.New("round: manifest has no canonical seed")
	}
	return hex.DecodeString(m.SCanonicalHex)
}

// P decodes the VDF modulus.
func (m *Manifest) P() (*big.Int, error) {
	return decodeBigHex(m.PHex)
}

// Y decodes the VDF output.
func (m *Manifest) Y() (*big.Int, error) {
	return decodeBigHex(m.YHex)
}

// OutputBytes decodes the extractor output.
func (m *Manifest) OutputBytes() ([]byte, error) {
	return hex.DecodeString(m.OutputBytesHex)
}

func decodeBigHex(s string) (*big.Int, error) {
	if s == "" {
		return nil, errors.New("round: empty hex integer")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}
