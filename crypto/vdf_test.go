package crypto

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDerivePrime_Deterministic(t *testing.T) {
	seed := []byte("TSRNG/modulus/\x01")
	p1, err := DerivePrime(seed, 256)
	require.NoError(t, err)
	p2, err := DerivePrime(seed, 256)
	require.NoError(t, err)
	require.Equal(t, p1, p2)
}

func TestDerivePrime_BitLengthAndCongruence(t *testing.T) {
	for _, bits := range []int{64, 128, 256, 512} {
		p, err := DerivePrime([]byte("seed-for-bits-test"), bits)
		require.NoError(t, err)
		require.Equal(t, bits, p.BitLen(), "bits=%d", bits)

		four := big.NewInt(4)
		rem := new(big.Int).Mod(p, four)
		require.Equal(t, big.NewInt(3), rem, "bits=%d", bits)

		require.True(t, p.ProbablyPrime(20), "bits=%d", bits)
	}
}

func TestDerivePrime_RejectsTinyBitLength(t *testing.T) {
	_, err := DerivePrime([]byte("x"), 1)
	require.ErrorIs(t, err, ErrInvalidBitLength)
}

func TestSlothEncode_MatchesManualSquaring(t *testing.T) {
	p := big.NewInt(1000003) // prime
	x := big.NewInt(5)
	y := SlothEncode(x, 3, p)

	expect := new(big.Int).Set(x)
	expect.Mul(expect, expect)
	expect.Mod(expect, p)
	expect.Mul(expect, expect)
	expect.Mod(expect, p)
	expect.Mul(expect, expect)
	expect.Mod(expect, p)

	require.Equal(t, 0, expect.Cmp(y))
}

func TestSlothVerify_AcceptsCorrectOutput(t *testing.T) {
	p := big.NewInt(1000003)
	x := big.NewInt(7)
	y := SlothEncode(x, 10, p)
	require.True(t, SlothVerify(x, y, 10, p))
}

func TestSlothVerify_RejectsTamperedOutput(t *testing.T) {
	p := big.NewInt(1000003)
	x := big.NewInt(7)
	y := SlothEncode(x, 10, p)
	bad := new(big.Int).Add(y, big.NewInt(1))
	require.False(t, SlothVerify(x, bad, 10, p))
}

func TestSlothEncode_ZeroIterationsIsIdentity(t *testing.T) {
	p := big.NewInt(1000003)
	x := big.NewInt(42)
	y := SlothEncode(x, 0, p)
	require.Equal(t, 0, y.Cmp(new(big.Int).Mod(x, p)))
}

func TestIntFromSeed_Deterministic(t *testing.T) {
	p, err := DerivePrime([]byte("int-from-seed-test"), 256)
	require.NoError(t, err)

	x1 := IntFromSeed([]byte("00000000000000000000000000000000"), p)
	x2 := IntFromSeed([]byte("00000000000000000000000000000000"), p)
	require.Equal(t, x1, x2)
	require.True(t, x1.Cmp(p) < 0)
	require.True(t, x1.Sign() >= 0)
}
