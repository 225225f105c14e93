package round

import (
	"bytes"
	"context"
	"encoding/hex"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/zabojeb/TSRNG/crypto"
	"github.com/zabojeb/TSRNG/log"
	"github.com/zabojeb/TSRNG/metrics"
	"github.com/zabojeb/TSRNG/store"
)

func newTestService() *Service {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	logger := log.New(zerolog.Disabled)
	return NewService(store.NewMemStore(), logger, reg)
}

func repeatByte(b byte, n int) []byte {
	return bytes.Repeat([]byte{b}, n)
}

func TestCommit_Basic(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	subs := []StreamSubmission{
		{Name: "A", Leaves: [][]byte{repeatByte(0x00, 64)}},
		{Name: "B", Leaves: [][]byte{repeatByte(0xff, 64)}},
	}
	m, err := svc.Commit(ctx, "demo", subs, 64)
	require.NoError(t, err)
	require.Equal(t, StageCommitted, m.Stage)
	require.Equal(t, []string{"A", "B"}, m.StreamOrder)
	require.Equal(t, map[string]int{"A": 1, "B": 1}, m.Streams)
	require.Equal(t, []int{0}, m.IndexMap["A"])
	require.Equal(t, []int{1}, m.IndexMap["B"])

	tree, err := crypto.BuildTree([][]byte{repeatByte(0x00, 64), repeatByte(0xff, 64)})
	require.NoError(t, err)
	require.Equal(t, hex.EncodeToString(tree.Root()), m.MerkleRootHex)
}

func TestCommit_RejectsEmpty(t *testing.T) {
	svc := newTestService()
	_, err := svc.Commit(context.Background(), "demo", nil, 64)
	require.ErrorIs(t, err, ErrEmptyCommit)
}

func TestCommit_RejectsLeafSizeMismatch(t *testing.T) {
	svc := newTestService()
	subs := []StreamSubmission{{Name: "A", Leaves: [][]byte{[]byte("short")}}}
	_, err := svc.Commit(context.Background(), "demo", subs, 64)
	require.ErrorIs(t, err, ErrLeafSizeMismatch)
}

func TestBeacon_RejectsUnknownRound(t *testing.T) {
	svc := newTestService()
	_, err := svc.Beacon(context.Background(), "no-such-round", "00", 8, 256)
	require.ErrorIs(t, err, ErrRoundNotFound)
}

func TestBeacon_RejectsDoubleBeacon(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	subs := []StreamSubmission{{Name: "A", Leaves: [][]byte{repeatByte(0x00, 64)}}}
	m, err := svc.Commit(ctx, "demo", subs, 64)
	require.NoError(t, err)

	_, err = svc.Beacon(ctx, m.RoundID, "00", 8, 256)
	require.NoError(t, err)

	_, err = svc.Beacon(ctx, m.RoundID, "00", 8, 256)
	require.ErrorIs(t, err, ErrBadStage)
}

func TestFinalize_RequiresBeaconedStage(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	subs := []StreamSubmission{{Name: "A", Leaves: [][]byte{repeatByte(0x00, 64)}}}
	m, err := svc.Commit(ctx, "demo", subs, 64)
	require.NoError(t, err)

	_, err = svc.Finalize(ctx, m.RoundID, 128, nil)
	require.ErrorIs(t, err, ErrBadStage)
}

// TestEndToEnd_MatchesSpecScenario exercises the spec's worked example:
// commit streams A=[64x00], B=[64xff], beacon S="00"*32, T=8, 256 bits,
// finalize output_bits=128; the expected output is the first 16 bytes of
// HKDF(SHA3-512(A||B), salt=S, 16).
func TestEndToEnd_MatchesSpecScenario(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	leafA := repeatByte(0x00, 64)
	leafB := repeatByte(0xff, 64)
	subs := []StreamSubmission{
		{Name: "A", Leaves: [][]byte{leafA}},
		{Name: "B", Leaves: [][]byte{leafB}},
	}
	committed, err := svc.Commit(ctx, "demo", subs, 64)
	require.NoError(t, err)

	sHex := ""
	for i := 0; i < 32; i++ {
		sHex += "00"
	}
	beaconed, err := svc.Beacon(ctx, committed.RoundID, sHex, 8, 256)
	require.NoError(t, err)
	require.Equal(t, StageBeaconed, beaconed.Stage)

	finalized, err := svc.Finalize(ctx, committed.RoundID, 128, nil)
	require.NoError(t, err)
	require.Equal(t, StageFinalized, finalized.Stage)
	require.Equal(t, map[string][]int{"A": {0}, "B": {0}}, finalized.SelectedIndices)

	S := crypto.ParseSeed(sHex)
	expected, err := crypto.Extract([][]byte{leafA, leafB}, S, 128)
	require.NoError(t, err)

	got, err := finalized.OutputBytes()
	require.NoError(t, err)
	require.Equal(t, expected, got)
	require.Len(t, got, 16)
}

func TestFinalize_DetectsMerkleInconsistency(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	subs := []StreamSubmission{{Name: "A", Leaves: [][]byte{repeatByte(0x00, 64)}}}
	committed, err := svc.Commit(ctx, "demo", subs, 64)
	require.NoError(t, err)

	_, err = svc.Beacon(ctx, committed.RoundID, "00", 8, 256)
	require.NoError(t, err)

	// Corrupt the stored root so finalize's recomputation diverges.
	h := store.Handle{RoundID: committed.RoundID}
	var m Manifest
	require.NoError(t, svc.store.GetJSON(ctx, h, "manifest.json", &m))
	m.MerkleRootHex = "00"
	require.NoError(t, svc.store.CommitManifest(ctx, h, &m))

	_, err = svc.Finalize(ctx, committed.RoundID, 128, nil)
	require.ErrorIs(t, err, ErrMerkleInconsistency)
}
