package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/zabojeb/TSRNG/bitstring"
	"github.com/zabojeb/TSRNG/round"
	"github.com/zabojeb/TSRNG/store"
)

// ErrNotFinalized is returned when BuildPackage is asked to assemble an
// artifact for a round that has not reached StageFinalized.
var ErrNotFinalized = errors.New("artifact: round is not finalized")

// RawPayload optionally binds a selected leaf back to the external raw
// payload it was derived from (leaf = SHA3-512(raw)[:leaf_size]). Supplying
// these is what lets the verifier run its raw-binding check (C9 step 7).
type RawPayload struct {
	Stream string
	Index  int
	Raw    []byte
	// LeafHashHex, if set, is cross-checked by the verifier against the
	// stored leaf hash -- it models an external producer's own bookkeeping,
	// not a value this package derives.
	LeafHashHex string
}

// BuildPackage reads a finalized round's durable state back out of st and
// assembles the bit-exact artifact layout fixed by the spec. raws is
// optional; when non-empty, raw/summary.json and per-leaf raw files are
// included so the verifier can run its raw-binding check.
func BuildPackage(ctx context.Context, st store.Store, roundID string, raws []RawPayload) (FileSet, error) {
	h := store.Handle{RoundID: roundID}

	var manifest round.Manifest
	if err := st.GetJSON(ctx, h, "manifest.json", &manifest); err != nil {
		if err == store.ErrNotFound {
			return nil, round.ErrRoundNotFound
		}
		return nil, err
	}
	if manifest.Stage != round.StageFinalized {
		return nil, ErrNotFinalized
	}

	fs := make(FileSet)

	manifestBytes, err := json.Marshal(manifest)
	if err != nil {
		return nil, err
	}
	fs["manifest.json"] = manifestBytes

	vdfBytes, err := st.GetBlob(ctx, h, "vdf/proof.json")
	if err != nil {
		return nil, err
	}
	fs["vdf/proof.json"] = vdfBytes

	leavesMeta, err := st.GetBlob(ctx, h, "leaves_meta.json")
	if err != nil {
		return nil, err
	}
	fs["leaves_meta.json"] = leavesMeta

	selectedBytes, err := st.GetBlob(ctx, h, "selected.json")
	if err != nil {
		return nil, err
	}
	fs["selected.json"] = selectedBytes

	output, err := st.GetBlob(ctx, h, "output.bin")
	if err != nil {
		return nil, err
	}
	fs["output.bin"] = output

	if manifest.OutputBits > 0 {
		fs["output_bits.txt"] = []byte(bitstring.Render(output, manifest.OutputBits))
	}

	var selected Selected
	if err := json.Unmarshal(selectedBytes, &selected); err != nil {
		return nil, err
	}
	for _, stream := range manifest.StreamOrder {
		for _, idx := range selected.Indices[stream] {
			leafKey := fmt.Sprintf("leaves/%s/%d.leaf", stream, idx)
			leaf, err := st.GetBlob(ctx, h, leafKey)
			if err != nil {
				return nil, err
			}
			fs[leafKey] = leaf

			proofKey := fmt.Sprintf("proofs/%s/%d.proof", stream, idx)
			proof, err := st.GetBlob(ctx, h, proofKey)
			if err != nil {
				return nil, err
			}
			fs[proofKey] = proof
		}
	}

	if len(raws) > 0 {
		streams := make(map[string]bool)
		for _, r := range raws {
			streams[r.Stream] = true
			fs[fmt.Sprintf("raw/%s/%d.raw", r.Stream, r.Index)] = r.Raw
			meta, err := json.Marshal(RawMeta{LeafHashHex: r.LeafHashHex})
			if err != nil {
				return nil, err
			}
			fs[fmt.Sprintf("raw/%s/%d.meta.json", r.Stream, r.Index)] = meta
		}
		names := make([]string, 0, len(streams))
		for name := range streams {
			names = append(names, name)
		}
		sort.Strings(names)
		summary, err := json.Marshal(RawSummary{Streams: names})
		if err != nil {
			return nil, err
		}
		fs["raw/summary.json"] = summary
	}

	return fs, nil
}
