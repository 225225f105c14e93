package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSeed_HexWithPrefix(t *testing.T) {
	got := ParseSeed("0xDEADBEEF")
	require.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, got)
}

func TestParseSeed_HexWithoutPrefix(t *testing.T) {
	got := ParseSeed("deadbeef")
	require.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, got)
}

func TestParseSeed_DrandJSON(t *testing.T) {
	got := ParseSeed(`{"randomness":"a1b2"}`)
	require.Equal(t, []byte{0xA1, 0xB2}, got)
}

func TestParseSeed_NISTPulseOutputValue(t *testing.T) {
	got := ParseSeed(`{"pulse":{"outputValue":"a1b2"}}`)
	require.Equal(t, []byte{0xA1, 0xB2}, got)
}

func TestParseSeed_NISTPulseSeedValue(t *testing.T) {
	got := ParseSeed(`{"pulse":{"seedValue":"cafe"}}`)
	require.Equal(t, []byte{0xCA, 0xFE}, got)
}

func TestParseSeed_FallsBackToHashOfString(t *testing.T) {
	s := "not-hex-not-b64-!!"
	got := ParseSeed(s)
	require.Equal(t, H256([]byte(s)), got)
}

func TestParseSeed_StandardBase64(t *testing.T) {
	// "hello" in standard base64 without padding repair needed is "aGVsbG8="
	got := ParseSeed("aGVsbG8=")
	require.Equal(t, []byte("hello"), got)
}

func TestParseSeed_URLSafeBase64NoPadding(t *testing.T) {
	// bytes {0xfb, 0xff} -> url-safe b64 "-_8" without padding
	got := ParseSeed("-_8")
	require.Equal(t, []byte{0xfb, 0xff}, got)
}

func TestParseSeed_Deterministic(t *testing.T) {
	a := ParseSeed("00" + "00")
	b := ParseSeed("0000")
	require.Equal(t, a, b)
}
