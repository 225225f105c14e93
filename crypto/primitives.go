// Package crypto implements the cryptographic protocol engine of the
// time-sandwich randomness beacon: hash and KDF primitives, the seed parser,
// the Merkle engine, the VDF, the PRF index stream, the unbiased selector,
// and the extractor. Everything here is pure and synchronous; no I/O, no
// clocks, and no randomness except the random Miller-Rabin bases that
// DerivePrime draws.
package crypto

import (
	"crypto/hmac"
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/sha3"
)

// ErrHKDFLengthTooLarge is returned when the requested output length would
// overrun the expansion's 4-byte counter (2^32-1 blocks of 32 bytes, counter
// values 1 through 2^32-1) -- never
// reachable by any output_bits value this protocol produces.
var ErrHKDFLengthTooLarge = errors.New("crypto: hkdf output length exceeds expansion limit")

// H256 computes SHA3-256 over the concatenation of all supplied slices.
func H256(parts ...[]byte) []byte {
	d := sha3.New256()
	for _, p := range parts {
		d.Write(p)
	}
	return d.Sum(nil)
}

// H512 computes SHA3-512 over the concatenation of all supplied slices.
func H512(parts ...[]byte) []byte {
	d := sha3.New512()
	for _, p := range parts {
		d.Write(p)
	}
	return d.Sum(nil)
}

// HMACSHA3256 computes HMAC-SHA3-256 with the given key over msg.
func HMACSHA3256(key, msg []byte) []byte {
	h := hmac.New(sha3.New256, key)
	h.Write(msg)
	return h.Sum(nil)
}

// HKDFExpand runs an RFC5869-style extract-and-expand construction with
// HMAC-SHA3-256 as the underlying PRF: PRK := HMAC-SHA3-256(salt, ikm), then
// T_i := HMAC(PRK, T_{i-1} || counter_i_be32) for a 4-byte big-endian counter
// starting at 1, with no info string (the seed carries the domain separation
// via the salt argument, not an info tag). Hand-rolled rather than delegated
// to x/crypto/hkdf, whose RFC 5869 expansion uses a single-byte counter;
// this protocol's counter is 4 bytes.
func HKDFExpand(ikm, salt []byte, length int) ([]byte, error) {
	const blockSize = 32 // HMAC-SHA3-256 output size
	const maxBlocks = int64(1)<<32 - 1
	if length < 0 {
		return nil, errors.New("crypto: negative hkdf length")
	}
	if int64(length) > maxBlocks*blockSize {
		return nil, ErrHKDFLengthTooLarge
	}

	prk := hmac.New(sha3.New256, salt)
	prk.Write(ikm)
	prkSum := prk.Sum(nil)

	out := make([]byte, 0, length+blockSize)
	var t []byte
	var counter uint32 = 1
	for len(out) < length {
		var counterBuf [4]byte
		binary.BigEndian.PutUint32(counterBuf[:], counter)

		h := hmac.New(sha3.New256, prkSum)
		h.Write(t)
		h.Write(counterBuf[:])
		t = h.Sum(nil)

		out = append(out, t...)
		counter++
	}
	return out[:length], nil
}
