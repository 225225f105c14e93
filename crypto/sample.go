package crypto

import "errors"

// ErrSampleCountOutOfRange is returned when k is negative or exceeds the
// domain size N (or the inclusive range [a,b] for SampleRange).
var ErrSampleCountOutOfRange = errors.New("crypto: sample count out of range")

// ErrSampleDomainEmpty is returned when N < 1, or when b < a for SampleRange.
var ErrSampleDomainEmpty = errors.New("crypto: sample domain must be non-empty")

// Sample draws k distinct integers from [0, N) in draw order, deterministic
// in (domain, seed, root). It rejects PRF words in the high tail of the
// 2^64 modulus so that `w mod N` is uniform over [0, N) -- a plain `w % N`
// would bias small N noticeably. Duplicate draws are rejected, not
// remapped: distinctness is a protocol invariant, not an implementation
// convenience.
func Sample(k int, n uint64, domain, seed, root []byte) ([]uint64, error) {
	if n < 1 {
		return nil, ErrSampleDomainEmpty
	}
	if k < 0 || uint64(k) > n {
		return nil, ErrSampleCountOutOfRange
	}
	if k == 0 {
		return []uint64{}, nil
	}

	// threshold = floor(2^64/N)*N = 2^64 - (2^64 mod N). 2^64 mod N is
	// computed without overflow as (MaxUint64 % N + 1) % N. When N divides
	// 2^64 exactly there is no bias to correct and every word is accepted.
	rem := (^uint64(0)%n + 1) % n
	checkThreshold := rem != 0
	threshold := ^uint64(0) - rem + 1

	stream := newPRFStream(domain, seed, root)
	seen := make(map[uint64]struct{}, k)
	out := make([]uint64, 0, k)

	for len(out) < k {
		w := stream.next()
		if checkThreshold && w >= threshold {
			continue
		}
		v := w % n
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out, nil
}

// SampleRange draws k distinct integers from the inclusive range [a, b],
// deterministic in (domain, seed, root).
func SampleRange(k int, a, b int64, domain, seed, root []byte) ([]int64, error) {
	if b < a {
		return nil, ErrSampleDomainEmpty
	}
	size := uint64(b-a) + 1
	offsets, err := Sample(k, size, domain, seed, root)
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(offsets))
	for i, off := range offsets {
		out[i] = a + int64(off)
	}
	return out, nil
}
