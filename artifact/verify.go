package artifact

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/zabojeb/TSRNG/crypto"
	"github.com/zabojeb/TSRNG/round"
)

// Verdict is the outcome of Verify: ok and a human-readable reason that
// pinpoints the first offending check, plus whether raw-payload binding
// ran at all.
type Verdict struct {
	OK          bool
	Reason      string
	RawVerified bool
}

func reject(reason string) (*Verdict, error) {
	return &Verdict{OK: false, Reason: reason}, nil
}

const modulusDomainTag = "TSRNG/modulus/"

// Verify re-derives every check from fs alone: the VDF prime and output,
// every selected leaf's Merkle proof, the extractor, and -- when raw
// payloads are present -- the raw-to-leaf binding. Checks run in the exact
// order fixed by the spec; the first failure is the reported reason.
func Verify(fs FileSet) (*Verdict, error) {
	manifestBytes, err := fs.Get("manifest.json")
	if err != nil {
		return reject(err.Error())
	}
	var manifest round.Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return reject("malformed manifest.json: " + err.Error())
	}
	merkleRoot, err := manifest.MerkleRoot()
	if err != nil {
		return reject("malformed merkle_root_hex: " + err.Error())
	}

	seedHex := manifest.SCanonicalHex
	if seedHex == "" {
		seedHex = manifest.SRaw
	}
	S := crypto.ParseSeed(seedHex)

	vdfBytes, err := fs.Get("vdf/proof.json")
	if err != nil {
		return reject("missing VDF proof")
	}
	var vdfProof VDFProof
	if err := json.Unmarshal(vdfBytes, &vdfProof); err != nil {
		return reject("malformed vdf/proof.json: " + err.Error())
	}
	p, ok := new(big.Int).SetString(vdfProof.PHex, 16)
	if !ok {
		return reject("malformed p_hex in vdf/proof.json")
	}
	y, ok := new(big.Int).SetString(vdfProof.YHex, 16)
	if !ok {
		return reject("malformed y_hex in vdf/proof.json")
	}

	modulusBits := manifest.ModulusBits
	if modulusBits == 0 {
		modulusBits = p.BitLen()
	}
	expectedP, err := crypto.DerivePrime(append([]byte(modulusDomainTag), S...), modulusBits)
	if err != nil {
		return reject("could not re-derive VDF prime: " + err.Error())
	}
	if expectedP.Cmp(p) != 0 {
		return reject("VDF prime mismatch")
	}

	x := crypto.IntFromSeed(S, p)
	if !crypto.SlothVerify(x, y, vdfProof.T, p) {
		return reject("VDF verification failed")
	}

	if vdfProof.SHex != "" {
		vdfS := crypto.ParseSeed(vdfProof.SHex)
		if !bytesEqual(vdfS, S) {
			return reject("seed mismatch between manifest and VDF proof")
		}
	}

	selectedBytes, err := fs.Get("selected.json")
	if err != nil {
		return reject(err.Error())
	}
	var selected Selected
	if err := json.Unmarshal(selectedBytes, &selected); err != nil {
		return reject("malformed selected.json: " + err.Error())
	}

	type key struct {
		stream string
		idx    int
	}
	leafCache := make(map[key][]byte)
	var flatLeaves [][]byte
	var flatKeys []key

	for _, stream := range manifest.StreamOrder {
		for _, idx := range selected.Indices[stream] {
			leafPath := fmt.Sprintf("leaves/%s/%d.leaf", stream, idx)
			proofPath := fmt.Sprintf("proofs/%s/%d.proof", stream, idx)

			leaf, err := fs.Get(leafPath)
			if err != nil {
				return reject(fmt.Sprintf("missing leaf %s:%d", stream, idx))
			}
			proofBytes, err := fs.Get(proofPath)
			if err != nil {
				return reject(fmt.Sprintf("missing proof %s:%d", stream, idx))
			}
			var rawSteps [][2]string
			if err := json.Unmarshal(proofBytes, &rawSteps); err != nil {
				return reject(fmt.Sprintf("malformed proof %s:%d", stream, idx))
			}
			steps := make([]crypto.ProofStep, len(rawSteps))
			for i, step := range rawSteps {
				sib, err := hex.DecodeString(step[0])
				if err != nil {
					return reject(fmt.Sprintf("malformed proof sibling %s:%d", stream, idx))
				}
				side := crypto.SideRight
				if step[1] == "L" {
					side = crypto.SideLeft
				}
				steps[i] = crypto.ProofStep{Sibling: sib, Side: side}
			}
			if !crypto.VerifyProof(leaf, steps, merkleRoot) {
				return reject(fmt.Sprintf("merkle proof failed for %s:%d", stream, idx))
			}

			k := key{stream, idx}
			leafCache[k] = leaf
			flatLeaves = append(flatLeaves, leaf)
			flatKeys = append(flatKeys, k)
		}
	}

	outputBytes, err := fs.Get("output.bin")
	if err != nil {
		return reject(err.Error())
	}
	outputBits := manifest.OutputBits
	if outputBits == 0 {
		outputBits = len(outputBytes) * 8
	}
	expectedOutput, err := crypto.Extract(flatLeaves, S, outputBits)
	if err != nil {
		return reject("extractor could not run: " + err.Error())
	}
	if !bytesEqual(expectedOutput, outputBytes) {
		return reject("extractor mismatch")
	}

	rawVerified := false
	if fs.Has("raw/summary.json") {
		leafSize := manifest.LeafSizeBytes
		if leafSize == 0 && len(flatLeaves) > 0 {
			leafSize = len(flatLeaves[0])
		}
		for _, k := range flatKeys {
			rawPath := fmt.Sprintf("raw/%s/%d.raw", k.stream, k.idx)
			metaPath := fmt.Sprintf("raw/%s/%d.meta.json", k.stream, k.idx)
			rawBytes, err := fs.Get(rawPath)
			if err != nil {
				return reject(fmt.Sprintf("missing raw payload for %s:%d", k.stream, k.idx))
			}
			metaBytes, err := fs.Get(metaPath)
			if err != nil {
				return reject(fmt.Sprintf("missing raw metadata for %s:%d", k.stream, k.idx))
			}
			derivedLeaf := crypto.H512(rawBytes)[:leafSize]
			if !bytesEqual(derivedLeaf, leafCache[k]) {
				return reject(fmt.Sprintf("raw payload hash mismatch for %s:%d", k.stream, k.idx))
			}
			var meta RawMeta
			if err := json.Unmarshal(metaBytes, &meta); err != nil {
				return reject(fmt.Sprintf("malformed raw metadata for %s:%d", k.stream, k.idx))
			}
			if meta.LeafHashHex != "" {
				metaHash, err := hex.DecodeString(meta.LeafHashHex)
				if err != nil || !bytesEqual(metaHash, leafCache[k]) {
					return reject(fmt.Sprintf("metadata hash mismatch for %s:%d", k.stream, k.idx))
				}
			}
		}
		rawVerified = true
	}

	return &Verdict{OK: true, Reason: okReason(rawVerified), RawVerified: rawVerified}, nil
}

func okReason(rawVerified bool) string {
	if rawVerified {
		return "OK (raw verified)"
	}
	return "OK"
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
