// Package rangesvc implements the deterministic number-range service (C10):
// distinct integers in [start, end], keyed by a beaconed or finalized
// round's seed and root plus a caller-chosen domain tag. It is a thin consumer of the round
// machine and the crypto sampler; it owns only domain-tag construction and
// append-only history logging.
package rangesvc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/zabojeb/TSRNG/crypto"
	"github.com/zabojeb/TSRNG/round"
)

// ErrNotReady is returned when the round has no beacon seed and root yet
// (it must be at least BEACONED).
var ErrNotReady = errors.New("rangesvc: round has no beacon seed yet")

// Request is one call to RandomRange.
type Request struct {
	RoundID string
	Start   int64
	End     int64
	Count   int
	Domain  string // defaults to "default"
	Context string // optional, appended to the domain tag
	Salt    []byte // optional, appended to the domain tag
}

// Result is what RandomRange returns to the caller.
type Result struct {
	Numbers            []int64
	DomainBytes        []byte
	HistoryWriteFailed bool
}

// HistoryWriter appends one JSON line per call; failure to persist history
// is non-fatal and only flagged in the Result.
type HistoryWriter interface {
	AppendLine(ctx context.Context, roundID string, line []byte) error
}

// RandomRange draws Count distinct integers from [Start, End], deterministic
// in (round seed, round root, domain, context, salt). The round must be at
// least BEACONED (its seed and Merkle root already fixed).
func RandomRange(ctx context.Context, svc *round.Service, req Request, history HistoryWriter) (*Result, error) {
	if req.End < req.Start || req.Count < 1 {
		return nil, round.ErrRangeInvalid
	}
	rangeSize := uint64(req.End-req.Start) + 1
	if uint64(req.Count) > rangeSize {
		return nil, round.ErrRangeInvalid
	}

	manifest, err := svc.Status(ctx, req.RoundID)
	if err != nil {
		return nil, err
	}
	S, err := manifest.SCanonical()
	if err != nil {
		return nil, ErrNotReady
	}
	root, err := manifest.MerkleRoot()
	if err != nil {
		return nil, ErrNotReady
	}

	domain := buildDomain(req.RoundID, req.Domain, req.Context, req.Salt)

	numbers, err := crypto.SampleRange(req.Count, req.Start, req.End, domain, S, root)
	if err != nil {
		return nil, err
	}

	result := &Result{Numbers: numbers, DomainBytes: domain}

	if history != nil {
		entry := historyEntry{
			RoundID:     req.RoundID,
			RequestedAt: time.Now().UTC().Format(time.RFC3339Nano),
			Start:       req.Start,
			End:         req.End,
			Count:       req.Count,
			Numbers:     numbers,
			DomainHex:   hex.EncodeToString(domain),
			Domain:      domainLabel(req.Domain),
			Context:     req.Context,
		}
		if len(req.Salt) > 0 {
			entry.SaltHex = hex.EncodeToString(req.Salt)
		}
		line, err := json.Marshal(entry)
		if err == nil {
			if err := history.AppendLine(ctx, req.RoundID, line); err != nil {
				result.HistoryWriteFailed = true
			}
		} else {
			result.HistoryWriteFailed = true
		}
	}

	return result, nil
}

type historyEntry struct {
	RoundID     string  `json:"round_id"`
	RequestedAt string  `json:"requested_at"`
	Start       int64   `json:"start"`
	End         int64   `json:"end"`
	Count       int     `json:"count"`
	Numbers     []int64 `json:"numbers"`
	DomainHex   string  `json:"domain_hex"`
	Domain      string  `json:"domain"`
	Context     string  `json:"context,omitempty"`
	SaltHex     string  `json:"salt_hex,omitempty"`
}

func domainLabel(d string) string {
	if d == "" {
		return "default"
	}
	return d
}

// buildDomain constructs "TSRNG/range" | round_id | domain [| context] [| salt],
// matching the wire layout fixed in the spec's domain-tag table exactly.
func buildDomain(roundID, domain, context string, salt []byte) []byte {
	parts := [][]byte{
		[]byte("TSRNG/range"),
		[]byte(roundID),
		[]byte(domainLabel(domain)),
	}
	if context != "" {
		parts = append(parts, []byte(context))
	}
	if len(salt) > 0 {
		parts = append(parts, salt)
	}
	return bytes.Join(parts, []byte("|"))
}
