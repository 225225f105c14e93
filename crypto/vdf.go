package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"math/big"
)

// Verifiable Delay Function: sloth squaring over a deterministically derived
// prime p ≡ 3 (mod 4). y = x^(2^T) mod p, computed as T sequential modular
// squarings. Unlike Wesolowski- or Pietrzak-style VDFs, verification is not
// asymmetric: the verifier re-runs the same T squarings. That cost is
// accepted in exchange for a far simpler, fully deterministic construction;
// DefaultParams sets T=50.

// ErrInvalidBitLength is returned when a prime derivation is asked for fewer
// than 2 bits (not enough room to set both the top and bottom bit).
var ErrInvalidBitLength = errors.New("crypto: modulus bit length must be >= 2")

var smallPrimes = []int64{2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37}

// Params holds the VDF's public parameters for one beacon evaluation.
type Params struct {
	T           uint64 // number of sequential squarings
	ModulusBits int    // bit length of the derived sloth prime
}

// DefaultParams returns the protocol defaults: T=50, ModulusBits=512.
func DefaultParams() Params {
	return Params{T: 50, ModulusBits: 512}
}

// DerivePrime deterministically derives a prime p ≡ 3 (mod 4) of the
// requested bit length from seed. For counter c = 0, 1, ...: the first 64
// candidate bytes are SHA3-512(seed || be64(c)); further bytes (only needed
// when bits > 512) are drawn from additional SHA3-512(seed || be64(c) ||
// be32(block)) blocks. The concatenation is masked to exactly `bits` bits,
// then the top and bottom bits are forced to 1 and the value is nudged to be
// ≡ 3 (mod 4). The first candidate that passes trial division against primes
// <= 37 and a 16-round Miller-Rabin test is returned.
func DerivePrime(seed []byte, bits int) (*big.Int, error) {
	if bits < 2 {
		return nil, ErrInvalidBitLength
	}

	for counter := uint64(0); ; counter++ {
		x := primeCandidate(seed, counter, bits)
		if isDivisibleBySmallPrime(x) {
			continue
		}
		if millerRabin(x, 16) {
			return x, nil
		}
	}
}

// primeCandidate builds the counter-th raw candidate for DerivePrime.
func primeCandidate(seed []byte, counter uint64, bits int) *big.Int {
	byteLen := (bits + 7) / 8

	var ctrBuf [8]byte
	binary.BigEndian.PutUint64(ctrBuf[:], counter)

	buf := H512(seed, ctrBuf[:])
	for block := uint32(1); len(buf) < byteLen; block++ {
		var blockBuf [4]byte
		binary.BigEndian.PutUint32(blockBuf[:], block)
		buf = append(buf, H512(seed, ctrBuf[:], blockBuf[:])...)
	}
	buf = buf[:byteLen]

	x := new(big.Int).SetBytes(buf)

	mask := new(big.Int).Lsh(big.NewInt(1), uint(byteLen*8))
	mask.Sub(mask, big.NewInt(1))
	if excess := byteLen*8 - bits; excess > 0 {
		mask.Rsh(mask, uint(excess))
	}
	x.And(x, mask)

	x.SetBit(x, bits-1, 1) // force top bit
	x.SetBit(x, 0, 1)      // force odd

	rem := new(big.Int).Mod(x, big.NewInt(4))
	delta := new(big.Int).Sub(big.NewInt(3), rem)
	x.Add(x, delta)

	return x
}

func isDivisibleBySmallPrime(x *big.Int) bool {
	for _, p := range smallPrimes {
		pb := big.NewInt(p)
		if x.Cmp(pb) == 0 {
			return false
		}
		if new(big.Int).Mod(x, pb).Sign() == 0 {
			return true
		}
	}
	return false
}

// millerRabin runs k rounds of the Miller-Rabin probable-prime test with
// random bases drawn from crypto/rand.
func millerRabin(n *big.Int, k int) bool {
	if n.Cmp(big.NewInt(2)) < 0 {
		return false
	}
	if n.Cmp(big.NewInt(2)) == 0 || n.Cmp(big.NewInt(3)) == 0 {
		return true
	}
	if n.Bit(0) == 0 {
		return false
	}

	nMinus1 := new(big.Int).Sub(n, big.NewInt(1))
	d := new(big.Int).Set(nMinus1)
	s := 0
	for d.Bit(0) == 0 {
		d.Rsh(d, 1)
		s++
	}

	nMinus3 := new(big.Int).Sub(n, big.NewInt(3))
	one := big.NewInt(1)

	for i := 0; i < k; i++ {
		a, err := rand.Int(rand.Reader, nMinus3)
		if err != nil {
			return false
		}
		a.Add(a, big.NewInt(2)) // a in [2, n-2]

		x := new(big.Int).Exp(a, d, n)
		if x.Cmp(one) == 0 || x.Cmp(nMinus1) == 0 {
			continue
		}

		composite := true
		for j := 0; j < s-1; j++ {
			x.Mul(x, x)
			x.Mod(x, n)
			if x.Cmp(nMinus1) == 0 {
				composite = false
				break
			}
		}
		if composite {
			return false
		}
	}
	return true
}

// SlothEncode computes y = x^(2^T) mod p via T sequential modular
// squarings. x is reduced into [0, p) first.
func SlothEncode(x *big.Int, T uint64, p *big.Int) *big.Int {
	y := new(big.Int).Mod(x, p)
	for i := uint64(0); i < T; i++ {
		y.Mul(y, y)
		y.Mod(y, p)
	}
	return y
}

// SlothVerify recomputes the forward evaluation and compares. Verification
// is Θ(T), the same cost as evaluation: this construction has no
// asymmetric shortcut.
func SlothVerify(x, y *big.Int, T uint64, p *big.Int) bool {
	return SlothEncode(x, T, p).Cmp(y) == 0
}

// IntFromSeed computes int(H256(S)) mod p, the sloth input derived from the
// canonical beacon seed.
func IntFromSeed(S []byte, p *big.Int) *big.Int {
	x := new(big.Int).SetBytes(H256(S))
	return x.Mod(x, p)
}
