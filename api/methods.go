package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/zabojeb/TSRNG/artifact"
	"github.com/zabojeb/TSRNG/log"
	"github.com/zabojeb/TSRNG/metrics"
	"github.com/zabojeb/TSRNG/rangesvc"
	"github.com/zabojeb/TSRNG/round"
	"github.com/zabojeb/TSRNG/store"
)

// Defaults seeds request fields the caller omits, sourced from the daemon's
// configuration.
type Defaults struct {
	LeafSizeBytes int
	VDFT          uint64
	ModulusBits   int
	OutputBits    int
}

// Config configures a Server: auth, rate limiting, and request defaults.
type Config struct {
	EnableAuth bool
	AuthToken  string
	RateLimit  int
	RateBurst  int
	Defaults   Defaults
}

// NewServer builds the JSON-RPC 2.0 HTTP handler exposing commit, beacon,
// finalize, status, list_rounds, random_range, verify, and build_artifact
// against svc, st, history, and reg.
func NewServer(cfg Config, svc *round.Service, st store.Store, history rangesvc.HistoryWriter, reg *metrics.Registry, logger *log.Logger) *rpcHandler {
	hc := defaultHandlerConfig()
	hc.enableAuth = cfg.EnableAuth
	hc.authToken = cfg.AuthToken
	if cfg.RateLimit > 0 {
		hc.rateLimit = cfg.RateLimit
	}
	if cfg.RateBurst > 0 {
		hc.rateBurst = cfg.RateBurst
	}

	h := newRPCHandler(hc)
	h.use(loggingMiddleware(logger))
	if cfg.EnableAuth {
		h.use(authMiddleware())
	}

	m := &methods{svc: svc, store: st, history: history, reg: reg, defaults: cfg.Defaults}
	h.registerMethod("tsrng_commit", m.commit)
	h.registerMethod("tsrng_beacon", m.beacon)
	h.registerMethod("tsrng_finalize", m.finalize)
	h.registerMethod("tsrng_status", m.status)
	h.registerMethod("tsrng_listRounds", m.listRounds)
	h.registerMethod("tsrng_randomRange", m.randomRange)
	h.registerMethod("tsrng_verify", m.verify)
	h.registerMethod("tsrng_buildArtifact", m.buildArtifact)
	return h
}

// methods holds the dependencies every registered route closes over.
type methods struct {
	svc      *round.Service
	store    store.Store
	history  rangesvc.HistoryWriter
	reg      *metrics.Registry
	defaults Defaults
}

func (m *methods) param(ctx *requestContext, v interface{}) *response {
	if len(ctx.req.Params) == 0 {
		return errResp(ctx, -32602, "missing params")
	}
	if err := json.Unmarshal(ctx.req.Params[0], v); err != nil {
		return errResp(ctx, -32602, "invalid params: "+err.Error())
	}
	return nil
}

func okResp(ctx *requestContext, result interface{}) *response {
	return &response{JSONRPC: "2.0", Result: result, ID: ctx.req.ID}
}

func errResp(ctx *requestContext, code int, message string) *response {
	return &response{JSONRPC: "2.0", Error: &rpcErr{Code: code, Message: message}, ID: ctx.req.ID}
}

// errCode maps a domain sentinel error to a JSON-RPC error code, falling
// back to a generic internal-error code for anything unrecognized.
func errCode(err error) int {
	switch {
	case errors.Is(err, round.ErrRoundNotFound):
		return -32010
	case errors.Is(err, round.ErrBadStage):
		return -32011
	case errors.Is(err, round.ErrLeafSizeMismatch):
		return -32012
	case errors.Is(err, round.ErrEmptyCommit):
		return -32013
	case errors.Is(err, round.ErrBadSeed):
		return -32014
	case errors.Is(err, round.ErrMerkleInconsistency):
		return -32015
	case errors.Is(err, round.ErrRangeInvalid):
		return -32016
	case errors.Is(err, rangesvc.ErrNotReady):
		return -32017
	case errors.Is(err, artifact.ErrNotFinalized):
		return -32018
	default:
		return -32000
	}
}

// commitParams/commitResult are the wire shapes for tsrng_commit. Leaf
// payloads round-trip as base64 automatically via encoding/json's []byte
// and [][]byte handling.
type commitParams struct {
	Label         string             `json:"label"`
	LeafSizeBytes int                `json:"leaf_size_bytes"`
	Streams       []streamSubmission `json:"streams"`
}

type streamSubmission struct {
	Name   string   `json:"name"`
	Leaves [][]byte `json:"leaves"`
}

func (m *methods) commit(ctx *requestContext) *response {
	var p commitParams
	if r := m.param(ctx, &p); r != nil {
		return r
	}
	leafSize := p.LeafSizeBytes
	if leafSize == 0 {
		leafSize = m.defaults.LeafSizeBytes
	}

	subs := make([]round.StreamSubmission, len(p.Streams))
	for i, s := range p.Streams {
		subs[i] = round.StreamSubmission{Name: s.Name, Leaves: s.Leaves}
	}

	manifest, err := m.svc.Commit(ctx.goCtx, p.Label, subs, leafSize)
	if err != nil {
		return errResp(ctx, errCode(err), err.Error())
	}
	return okResp(ctx, manifest)
}

type beaconParams struct {
	RoundID     string `json:"round_id"`
	S           string `json:"s"`
	VDFT        uint64 `json:"vdf_t"`
	ModulusBits int    `json:"modulus_bits"`
}

func (m *methods) beacon(ctx *requestContext) *response {
	var p beaconParams
	if r := m.param(ctx, &p); r != nil {
		return r
	}
	T := p.VDFT
	if T == 0 {
		T = m.defaults.VDFT
	}
	modulusBits := p.ModulusBits
	if modulusBits == 0 {
		modulusBits = m.defaults.ModulusBits
	}

	manifest, err := m.svc.Beacon(ctx.goCtx, p.RoundID, p.S, T, modulusBits)
	if err != nil {
		return errResp(ctx, errCode(err), err.Error())
	}
	return okResp(ctx, manifest)
}

type finalizeParams struct {
	RoundID    string             `json:"round_id"`
	OutputBits int                `json:"output_bits"`
	Quotas     map[string]float64 `json:"quotas"`
}

func (m *methods) finalize(ctx *requestContext) *response {
	var p finalizeParams
	if r := m.param(ctx, &p); r != nil {
		return r
	}
	outputBits := p.OutputBits
	if outputBits == 0 {
		outputBits = m.defaults.OutputBits
	}

	manifest, err := m.svc.Finalize(ctx.goCtx, p.RoundID, outputBits, p.Quotas)
	if err != nil {
		return errResp(ctx, errCode(err), err.Error())
	}
	return okResp(ctx, manifest)
}

type statusParams struct {
	RoundID string `json:"round_id"`
}

func (m *methods) status(ctx *requestContext) *response {
	var p statusParams
	if r := m.param(ctx, &p); r != nil {
		return r
	}
	manifest, err := m.svc.Status(ctx.goCtx, p.RoundID)
	if err != nil {
		return errResp(ctx, errCode(err), err.Error())
	}
	return okResp(ctx, manifest)
}

type listRoundsResult struct {
	RoundIDs []string `json:"round_ids"`
}

func (m *methods) listRounds(ctx *requestContext) *response {
	ids, err := m.store.ListRounds(ctx.goCtx)
	if err != nil {
		return errResp(ctx, errCode(err), err.Error())
	}
	return okResp(ctx, listRoundsResult{RoundIDs: ids})
}

type randomRangeParams struct {
	RoundID string `json:"round_id"`
	Start   int64  `json:"start"`
	End     int64  `json:"end"`
	Count   int    `json:"count"`
	Domain  string `json:"domain"`
	Context string `json:"context"`
	Salt    []byte `json:"salt"`
}

type randomRangeResult struct {
	Numbers            []int64 `json:"numbers"`
	DomainHex          string  `json:"domain_hex"`
	HistoryWriteFailed bool    `json:"history_write_failed"`
}

func (m *methods) randomRange(ctx *requestContext) *response {
	var p randomRangeParams
	if r := m.param(ctx, &p); r != nil {
		return r
	}

	req := rangesvc.Request{
		RoundID: p.RoundID,
		Start:   p.Start,
		End:     p.End,
		Count:   p.Count,
		Domain:  p.Domain,
		Context: p.Context,
		Salt:    p.Salt,
	}
	result, err := rangesvc.RandomRange(ctx.goCtx, m.svc, req, m.history)
	if err != nil {
		return errResp(ctx, errCode(err), err.Error())
	}
	return okResp(ctx, randomRangeResult{
		Numbers:            result.Numbers,
		DomainHex:          hex.EncodeToString(result.DomainBytes),
		HistoryWriteFailed: result.HistoryWriteFailed,
	})
}

// verifyParams carries a sealed artifact package as a path-to-bytes map;
// json's native []byte handling base64-encodes each file's contents.
type verifyParams struct {
	Files map[string][]byte `json:"files"`
}

type verifyResult struct {
	OK          bool   `json:"ok"`
	Reason      string `json:"reason,omitempty"`
	RawVerified bool   `json:"raw_verified"`
}

func (m *methods) verify(ctx *requestContext) *response {
	var p verifyParams
	if r := m.param(ctx, &p); r != nil {
		return r
	}

	fs := artifact.FileSet(p.Files)
	verdict, err := artifact.Verify(fs)
	if err != nil {
		return errResp(ctx, -32000, err.Error())
	}

	label := "rejected"
	if verdict.OK {
		label = "accepted"
	}
	if m.reg != nil {
		m.reg.ArtifactVerified.WithLabelValues(label).Inc()
	}

	return okResp(ctx, verifyResult{OK: verdict.OK, Reason: verdict.Reason, RawVerified: verdict.RawVerified})
}

// buildArtifactParams optionally supplies raw payloads so the assembled
// package can also carry C9's raw-binding check (artifact/build.go).
type buildArtifactParams struct {
	RoundID string           `json:"round_id"`
	Raws    []rawPayloadWire `json:"raws"`
}

type rawPayloadWire struct {
	Stream      string `json:"stream"`
	Index       int    `json:"index"`
	Raw         []byte `json:"raw"`
	LeafHashHex string `json:"leaf_hash_hex"`
}

type buildArtifactResult struct {
	Files map[string][]byte `json:"files"`
}

func (m *methods) buildArtifact(ctx *requestContext) *response {
	var p buildArtifactParams
	if r := m.param(ctx, &p); r != nil {
		return r
	}

	raws := make([]artifact.RawPayload, len(p.Raws))
	for i, rw := range p.Raws {
		raws[i] = artifact.RawPayload{Stream: rw.Stream, Index: rw.Index, Raw: rw.Raw, LeafHashHex: rw.LeafHashHex}
	}

	fs, err := artifact.BuildPackage(ctx.goCtx, m.store, p.RoundID, raws)
	if err != nil {
		return errResp(ctx, errCode(err), err.Error())
	}
	return okResp(ctx, buildArtifactResult{Files: fs})
}

