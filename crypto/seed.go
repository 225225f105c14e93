package crypto

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// beaconPulse models the handful of external beacon JSON shapes the seed
// parser recognizes: drand's {"randomness": "..."} and NIST randomness
// beacon v2's {"pulse": {"outputValue"|"seedValue": "..."}}.
type beaconPulse struct {
	Randomness string `json:"randomness"`
	Pulse      *struct {
		OutputValue string `json:"outputValue"`
		SeedValue   string `json:"seedValue"`
	} `json:"pulse"`
}

// ParseSeed canonicalizes an externally supplied beacon seed string into
// bytes, trying each recognized encoding in order and returning on first
// success:
//
//  1. JSON beacon payload ({"randomness": ...} or {"pulse": {...}})
//  2. hex, after stripping an optional 0x/0X prefix
//  3. standard then URL-safe base64, with padding repaired to a multiple of 4
//  4. SHA3-256 of the original string, as an always-succeeding fallback
//
// The returned bytes are the canonical form; the caller is responsible for
// retaining the original string for audit if needed.
func ParseSeed(s string) []byte {
	orig := s
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "{") {
		var pulse beaconPulse
		if err := json.Unmarshal([]byte(s), &pulse); err == nil {
			switch {
			case pulse.Randomness != "":
				s = strings.TrimSpace(pulse.Randomness)
			case pulse.Pulse != nil && pulse.Pulse.OutputValue != "":
				s = strings.TrimSpace(pulse.Pulse.OutputValue)
			case pulse.Pulse != nil && pulse.Pulse.SeedValue != "":
				s = strings.TrimSpace(pulse.Pulse.SeedValue)
			}
		}
	}

	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}

	if b, err := hex.DecodeString(s); err == nil {
		return b
	}

	if b, ok := decodeBase64(s); ok {
		return b
	}

	return H256([]byte(orig))
}

// decodeBase64 tries standard then URL-safe base64, repairing padding to a
// multiple of 4 characters in each case.
func decodeBase64(s string) ([]byte, bool) {
	padded := s + strings.Repeat("=", (4-len(s)%4)%4)

	if b, err := base64.StdEncoding.DecodeString(padded); err == nil {
		return b, true
	}
	if b, err := base64.URLEncoding.DecodeString(padded); err == nil {
		return b, true
	}
	return nil, false
}
