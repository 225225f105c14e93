package artifact

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/zabojeb/TSRNG/crypto"
	"github.com/zabojeb/TSRNG/log"
	"github.com/zabojeb/TSRNG/metrics"
	"github.com/zabojeb/TSRNG/round"
	"github.com/zabojeb/TSRNG/store"
)

func repeatByte(b byte, n int) []byte {
	return bytes.Repeat([]byte{b}, n)
}

// finalizedPackage drives a round through commit/beacon/finalize and
// assembles its artifact, returning the package so tampering tests can
// target specific entries.
func finalizedPackage(t *testing.T, withRaw bool) FileSet {
	t.Helper()
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	st := store.NewMemStore()
	svc := round.NewService(st, log.New(zerolog.Disabled), reg)
	ctx := context.Background()

	rawA := []byte("raw-A-payload")
	rawB := []byte("raw-B-payload")
	leafA := crypto.H512(rawA)[:64]
	leafB := crypto.H512(rawB)[:64]
	subs := []round.StreamSubmission{
		{Name: "A", Leaves: [][]byte{leafA}},
		{Name: "B", Leaves: [][]byte{leafB}},
	}
	committed, err := svc.Commit(ctx, "demo", subs, 64)
	require.NoError(t, err)

	sHex := ""
	for i := 0; i < 32; i++ {
		sHex += "ab"
	}
	_, err = svc.Beacon(ctx, committed.RoundID, sHex, 8, 256)
	require.NoError(t, err)

	_, err = svc.Finalize(ctx, committed.RoundID, 128, nil)
	require.NoError(t, err)

	var raws []RawPayload
	if withRaw {
		raws = []RawPayload{
			{Stream: "A", Index: 0, Raw: rawA, LeafHashHex: hex.EncodeToString(leafA)},
			{Stream: "B", Index: 0, Raw: rawB, LeafHashHex: hex.EncodeToString(leafB)},
		}
	}

	fs, err := BuildPackage(ctx, st, committed.RoundID, raws)
	require.NoError(t, err)
	return fs
}

func TestVerify_AcceptsFreshlyBuiltPackage(t *testing.T) {
	fs := finalizedPackage(t, false)
	v, err := Verify(fs)
	require.NoError(t, err)
	require.True(t, v.OK, v.Reason)
	require.False(t, v.RawVerified)
}

func TestVerify_AcceptsWithRawBinding(t *testing.T) {
	fs := finalizedPackage(t, true)
	v, err := Verify(fs)
	require.NoError(t, err)
	require.True(t, v.OK, v.Reason)
	require.True(t, v.RawVerified)
}

func TestVerify_RejectsTamperedLeaf(t *testing.T) {
	fs := finalizedPackage(t, false)
	fs["leaves/A/0.leaf"] = repeatByte(0x99, 64)
	v, err := Verify(fs)
	require.NoError(t, err)
	require.False(t, v.OK)
}

func TestVerify_RejectsTamperedProof(t *testing.T) {
	fs := finalizedPackage(t, false)
	var steps [][2]string
	require.NoError(t, json.Unmarshal(fs["proofs/A/0.proof"], &steps))
	require.NotEmpty(t, steps)
	steps[0][0] = hex.EncodeToString(repeatByte(0x00, 32))
	tampered, err := json.Marshal(steps)
	require.NoError(t, err)
	fs["proofs/A/0.proof"] = tampered

	v, err := Verify(fs)
	require.NoError(t, err)
	require.False(t, v.OK)
}

func TestVerify_RejectsTamperedOutput(t *testing.T) {
	fs := finalizedPackage(t, false)
	out := append([]byte(nil), fs["output.bin"]...)
	out[0] ^= 0xff
	fs["output.bin"] = out

	v, err := Verify(fs)
	require.NoError(t, err)
	require.False(t, v.OK)
	require.Contains(t, v.Reason, "extractor")
}

func TestVerify_RejectsTamperedVDFProof(t *testing.T) {
	fs := finalizedPackage(t, false)
	var proof VDFProof
	require.NoError(t, json.Unmarshal(fs["vdf/proof.json"], &proof))
	proof.YHex = hex.EncodeToString(repeatByte(0x01, len(proof.YHex)/2))
	tampered, err := json.Marshal(proof)
	require.NoError(t, err)
	fs["vdf/proof.json"] = tampered

	v, err := Verify(fs)
	require.NoError(t, err)
	require.False(t, v.OK)
}

func TestVerify_RejectsTamperedMerkleRoot(t *testing.T) {
	fs := finalizedPackage(t, false)
	var manifest round.Manifest
	require.NoError(t, json.Unmarshal(fs["manifest.json"], &manifest))
	manifest.MerkleRootHex = hex.EncodeToString(repeatByte(0x00, 32))
	tampered, err := json.Marshal(manifest)
	require.NoError(t, err)
	fs["manifest.json"] = tampered

	v, err := Verify(fs)
	require.NoError(t, err)
	require.False(t, v.OK)
}

func TestVerify_RejectsTamperedRawPayload(t *testing.T) {
	fs := finalizedPackage(t, true)
	fs["raw/A/0.raw"] = []byte("not the original payload")

	v, err := Verify(fs)
	require.NoError(t, err)
	require.False(t, v.OK)
}
