package crypto

import "errors"

// ErrNoLeaves is returned when Extract is called with an empty leaf set --
// there is nothing to condense into beacon output.
var ErrNoLeaves = errors.New("crypto: extractor requires at least one leaf")

// Extract condenses the selected leaves into beacon output: leaves (in
// finalize's stream-then-selection-order concatenation) are hashed with
// H512 into r_raw, then stretched via HKDFExpand salted with the canonical
// beacon seed S to ceil(outputBits/8) bytes.
func Extract(leaves [][]byte, seedS []byte, outputBits int) ([]byte, error) {
	if len(leaves) == 0 {
		return nil, ErrNoLeaves
	}
	rRaw := H512(leaves...)
	outputBytes := (outputBits + 7) / 8
	return HKDFExpand(rRaw, seedS, outputBytes)
}
