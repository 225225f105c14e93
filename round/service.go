// Package round implements the commit/beacon/finalize state machine: the
// time-sandwich protocol's only long-lived aggregate. Crypto kernels
// (Merkle, VDF, sampling, extraction) are pure and live in package crypto;
// this package sequences them against a store.Store and enforces the
// per-round single-writer rule.
package round

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/zabojeb/TSRNG/crypto"
	"github.com/zabojeb/TSRNG/log"
	"github.com/zabojeb/TSRNG/metrics"
	"github.com/zabojeb/TSRNG/store"
)

const modulusDomainTag = "TSRNG/modulus/"

// Service drives the round state machine against a durable store.Store. At
// most one transition per round_id may be in flight at a time; Service
// serializes via a per-round mutex rather than trusting the store to do so.
type Service struct {
	store store.Store
	log   *log.Logger
	mx    *metrics.Registry

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService wires a round state machine on top of st, logging through
// logger and recording outcomes in reg.
func NewService(st store.Store, logger *log.Logger, reg *metrics.Registry) *Service {
	return &Service{
		store: st,
		log:   logger,
		mx:    reg,
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *Service) lockFor(roundID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[roundID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[roundID] = l
	}
	return l
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Commit binds a Merkle root over the submitted leaves and opens a new
// round in StageCommitted. Stream order in submissions fixes the Merkle
// linearization for the rest of the round's life.
func (s *Service) Commit(ctx context.Context, label string, submissions []StreamSubmission, leafSizeBytes int) (*Manifest, error) {
	total := 0
	for _, sub := range submissions {
		total += len(sub.Leaves)
	}
	if total == 0 {
		s.recordError("empty_commit")
		return nil, ErrEmptyCommit
	}
	for _, sub := range submissions {
		if len(sub.Leaves) == 0 {
			s.recordError("empty_commit")
			return nil, fmt.Errorf("%w: stream %q has no leaves", ErrEmptyCommit, sub.Name)
		}
		for _, leaf := range sub.Leaves {
			if len(leaf) != leafSizeBytes {
				s.recordError("leaf_size_mismatch")
				return nil, fmt.Errorf("%w: stream %q", ErrLeafSizeMismatch, sub.Name)
			}
		}
	}

	h, err := s.store.NewRound(ctx)
	if err != nil {
		return nil, err
	}
	lock := s.lockFor(h.RoundID)
	lock.Lock()
	defer lock.Unlock()

	streamOrder := make([]string, 0, len(submissions))
	streams := make(map[string]int, len(submissions))
	indexMap := make(map[string][]int, len(submissions))
	var leavesData [][]byte

	for _, sub := range submissions {
		streamOrder = append(streamOrder, sub.Name)
		streams[sub.Name] = len(sub.Leaves)
		idxs := make([]int, len(sub.Leaves))
		for i := range sub.Leaves {
			idxs[i] = len(leavesData) + i
		}
		indexMap[sub.Name] = idxs
		leavesData = append(leavesData, sub.Leaves...)

		for i, leaf := range sub.Leaves {
			key := fmt.Sprintf("leaves/%s/%d.leaf", sub.Name, i)
			if err := s.store.PutBlob(ctx, h, key, leaf); err != nil {
				return nil, err
			}
		}
	}

	tree, err := crypto.BuildTree(leavesData)
	if err != nil {
		return nil, err
	}

	if err := s.store.PutJSON(ctx, h, "leaves_meta.json", streams); err != nil {
		return nil, err
	}

	manifest := &Manifest{
		RoundID:       h.RoundID,
		RoundLabel:    label,
		Stage:         StageCommitted,
		LeafSizeBytes: leafSizeBytes,
		StreamOrder:   streamOrder,
		Streams:       streams,
		IndexMap:      indexMap,
		MerkleRootHex: hex.EncodeToString(tree.Root()),
		T0ISO:         nowISO(),
	}
	if err := s.store.CommitManifest(ctx, h, manifest); err != nil {
		return nil, err
	}

	s.mx.RoundsCommitted.Inc()
	s.log.Round(h.RoundID).Info("round committed")
	return manifest, nil
}

// Beacon accepts an externally supplied seed, runs the VDF over it, and
// advances a COMMITTED round to BEACONED.
func (s *Service) Beacon(ctx context.Context, roundID, sRaw string, T uint64, modulusBits int) (*Manifest, error) {
	lock := s.lockFor(roundID)
	lock.Lock()
	defer lock.Unlock()

	h := store.Handle{RoundID: roundID}
	manifest, err := s.loadManifest(ctx, h)
	if err != nil {
		return nil, err
	}
	if manifest.Stage != StageCommitted {
		s.recordError("bad_stage")
		return nil, fmt.Errorf("%w: round is %s, want %s", ErrBadStage, manifest.Stage, StageCommitted)
	}

	S := crypto.ParseSeed(sRaw)
	if len(S) == 0 {
		s.recordError("bad_seed")
		return nil, ErrBadSeed
	}

	p, err := crypto.DerivePrime(append([]byte(modulusDomainTag), S...), modulusBits)
	if err != nil {
		return nil, err
	}
	x := crypto.IntFromSeed(S, p)
	started := time.Now()
	y := crypto.SlothEncode(x, T, p)
	squaringSeconds := time.Since(started).Seconds()

	t1 := nowISO()
	vdfProof := map[string]any{
		"S_hex":  hex.EncodeToString(S),
		"T":      T,
		"p_hex":  hex.EncodeToString(p.Bytes()),
		"y_hex":  hex.EncodeToString(y.Bytes()),
		"t1_iso": t1,
	}
	if err := s.store.PutJSON(ctx, h, "vdf/proof.json", vdfProof); err != nil {
		return nil, err
	}

	manifest.Stage = StageBeaconed
	manifest.SRaw = sRaw
	manifest.SCanonicalHex = hex.EncodeToString(S)
	manifest.VDFT = T
	manifest.ModulusBits = modulusBits
	manifest.PHex = hex.EncodeToString(p.Bytes())
	manifest.YHex = hex.EncodeToString(y.Bytes())
	manifest.T1ISO = t1

	if err := s.store.CommitManifest(ctx, h, manifest); err != nil {
		return nil, err
	}

	s.mx.RoundsBeaconed.Inc()
	s.mx.VDFSquarings.Observe(squaringSeconds)
	s.log.Round(roundID).Info("round beaconed")
	return manifest, nil
}

// Finalize selects leaves deterministically from the beacon seed and root,
// extracts output, and advances a BEACONED round to FINALIZED.
func (s *Service) Finalize(ctx context.Context, roundID string, outputBits int, quotas map[string]float64) (*Manifest, error) {
	lock := s.lockFor(roundID)
	lock.Lock()
	defer lock.Unlock()

	h := store.Handle{RoundID: roundID}
	manifest, err := s.loadManifest(ctx, h)
	if err != nil {
		return nil, err
	}
	if manifest.Stage != StageBeaconed {
		s.recordError("bad_stage")
		return nil, fmt.Errorf("%w: round is %s, want %s", ErrBadStage, manifest.Stage, StageBeaconed)
	}

	leavesByStream := make(map[string][][]byte, len(manifest.StreamOrder))
	var leavesData [][]byte
	for _, stream := range manifest.StreamOrder {
		count := manifest.Streams[stream]
		leaves := make([][]byte, count)
		for i := 0; i < count; i++ {
			key := fmt.Sprintf("leaves/%s/%d.leaf", stream, i)
			leaf, err := s.store.GetBlob(ctx, h, key)
			if err != nil {
				return nil, err
			}
			leaves[i] = leaf
		}
		leavesByStream[stream] = leaves
		leavesData = append(leavesData, leaves...)
	}

	tree, err := crypto.BuildTree(leavesData)
	if err != nil {
		return nil, err
	}
	storedRoot, err := manifest.MerkleRoot()
	if err != nil {
		return nil, err
	}
	root := tree.Root()
	if !bytes.Equal(root, storedRoot) {
		s.recordError("merkle_inconsistency")
		s.log.Round(roundID).Error("merkle root recomputation diverged from committed root", ErrMerkleInconsistency)
		return nil, ErrMerkleInconsistency
	}

	S, err := manifest.SCanonical()
	if err != nil {
		return nil, err
	}

	need := int(math.Ceil(float64(outputBits) / float64(manifest.LeafSizeBytes*8)))
	if need < 1 {
		need = 1
	}

	selected := make(map[string][]int, len(manifest.StreamOrder))
	var flatLeaves [][]byte

	for _, stream := range manifest.StreamOrder {
		streamCount := manifest.Streams[stream]
		weight := quotas[stream]
		if quotas == nil {
			weight = 1.0 / float64(len(manifest.StreamOrder))
		}
		k := int(math.Floor(float64(need) * weight))
		if k < 1 {
			k = 1
		}
		if k > streamCount {
			k = streamCount
		}

		domain := []byte("TSRNG/idx/" + stream)
		idxs, err := crypto.Sample(k, uint64(streamCount), domain, S, root)
		if err != nil {
			return nil, err
		}

		localIdxs := make([]int, len(idxs))
		for i, v := range idxs {
			localIdxs[i] = int(v)
		}
		selected[stream] = localIdxs

		globalIdxs := manifest.IndexMap[stream]
		for _, local := range localIdxs {
			flatLeaves = append(flatLeaves, leavesByStream[stream][local])

			globalIdx := globalIdxs[local]
			proof, err := tree.Proof(globalIdx)
			if err != nil {
				return nil, err
			}
			proofJSON := make([][2]string, len(proof))
			for i, step := range proof {
				proofJSON[i] = [2]string{hex.EncodeToString(step.Sibling), step.Side.String()}
			}
			key := fmt.Sprintf("proofs/%s/%d.proof", stream, local)
			if err := s.store.PutJSON(ctx, h, key, proofJSON); err != nil {
				return nil, err
			}
		}
	}

	output, err := crypto.Extract(flatLeaves, S, outputBits)
	if err != nil {
		return nil, err
	}

	if err := s.store.PutJSON(ctx, h, "selected.json", map[string]any{"indices": selected}); err != nil {
		return nil, err
	}
	if err := s.store.PutBlob(ctx, h, "output.bin", output); err != nil {
		return nil, err
	}

	t2 := nowISO()
	manifest.Stage = StageFinalized
	manifest.SelectedIndices = selected
	manifest.OutputBits = outputBits
	manifest.OutputBytesHex = hex.EncodeToString(output)
	manifest.T2ISO = t2

	if err := s.store.CommitManifest(ctx, h, manifest); err != nil {
		return nil, err
	}

	s.mx.RoundsFinalized.Inc()
	s.mx.SelectionLeaves.Observe(float64(len(flatLeaves)))
	s.log.Round(roundID).Info("round finalized")
	return manifest, nil
}

// Status returns the current manifest for a round, whatever stage it is in.
func (s *Service) Status(ctx context.Context, roundID string) (*Manifest, error) {
	h := store.Handle{RoundID: roundID}
	return s.loadManifest(ctx, h)
}

func (s *Service) loadManifest(ctx context.Context, h store.Handle) (*Manifest, error) {
	var m Manifest
	if err := s.store.GetJSON(ctx, h, "manifest.json", &m); err != nil {
		if err == store.ErrNotFound {
			s.recordError("round_not_found")
			return nil, ErrRoundNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *Service) recordError(kind string) {
	if s.mx != nil {
		s.mx.RoundErrors.WithLabelValues(kind).Inc()
	}
}
