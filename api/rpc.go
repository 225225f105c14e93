// Package api exposes the round/rangesvc/artifact machinery over a
// JSON-RPC 2.0 HTTP transport: method routing, a middleware chain (logging,
// optional auth), per-client-IP rate limiting, and batch request support.
// The protocol itself
// (commit/beacon/finalize/status/random_range/verify) is transport-
// agnostic; this package is one concrete binding of it.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zabojeb/TSRNG/log"
)

// handlerConfig configures request handling limits shared by every route.
type handlerConfig struct {
	maxBatchSize   int
	maxRequestSize int64
	enableAuth     bool
	authToken      string
	rateLimit      int
	rateBurst      int
}

func defaultHandlerConfig() handlerConfig {
	return handlerConfig{
		maxBatchSize:   32,
		maxRequestSize: 16 * 1024 * 1024,
		rateBurst:      50,
	}
}

// middleware wraps request handling. It receives the request context and a
// next function to call; it can short-circuit by returning a response
// without calling next.
type middleware func(ctx *requestContext, next handleFunc) *response

// handleFunc processes one RPC request and returns a response.
type handleFunc func(ctx *requestContext) *response

// request is a parsed JSON-RPC 2.0 request.
type request struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      json.RawMessage   `json:"id"`
}

// response is a JSON-RPC 2.0 response.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcErr         `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// rpcErr is a JSON-RPC error object.
type rpcErr struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// requestContext carries per-request metadata through the middleware chain.
type requestContext struct {
	goCtx     context.Context
	req       *request
	remoteIP  string
	startTime time.Time
	requestID uint64
	isBatch   bool
	authOK    bool
}

// rateLimiter tracks per-IP request rates with a simple token bucket.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
	rate    int
	burst   int
}

type tokenBucket struct {
	tokens     float64
	lastTime   time.Time
	ratePerSec float64
	burst      float64
}

func newRateLimiter(rate, burst int) *rateLimiter {
	return &rateLimiter{buckets: make(map[string]*tokenBucket), rate: rate, burst: burst}
}

func (rl *rateLimiter) allow(ip string) bool {
	if rl.rate <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[ip]
	if !ok {
		b = &tokenBucket{tokens: float64(rl.burst), lastTime: time.Now(), ratePerSec: float64(rl.rate), burst: float64(rl.burst)}
		rl.buckets[ip] = b
	}

	now := time.Now()
	b.tokens += now.Sub(b.lastTime).Seconds() * b.ratePerSec
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	b.lastTime = now

	if b.tokens < 1.0 {
		return false
	}
	b.tokens--
	return true
}

// rpcHandler dispatches JSON-RPC requests to registered methods through a
// middleware chain. It implements http.Handler.
type rpcHandler struct {
	config     handlerConfig
	middleware []middleware
	routes     map[string]handleFunc
	limiter    *rateLimiter
	requestSeq atomic.Uint64
	mu         sync.RWMutex
}

func newRPCHandler(cfg handlerConfig) *rpcHandler {
	return &rpcHandler{
		config:  cfg,
		routes:  make(map[string]handleFunc),
		limiter: newRateLimiter(cfg.rateLimit, cfg.rateBurst),
	}
}

func (h *rpcHandler) registerMethod(method string, fn handleFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.routes[method] = fn
}

func (h *rpcHandler) use(mw middleware) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.middleware = append(h.middleware, mw)
}

// ServeHTTP implements http.Handler, dispatching JSON-RPC requests.
func (h *rpcHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.config.maxRequestSize+1))
	if err != nil {
		h.writeError(w, nil, -32700, "failed to read request body")
		return
	}
	if int64(len(body)) > h.config.maxRequestSize {
		h.writeError(w, nil, -32600, "request body too large")
		return
	}

	ip := extractIP(r)
	if !h.limiter.allow(ip) {
		h.writeError(w, nil, -32005, "rate limit exceeded")
		return
	}
	authOK := h.checkAuth(r)

	trimmed := trimLeadingWhitespace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		h.handleBatch(r.Context(), w, body, ip, authOK)
		return
	}

	resp := h.handleSingle(r.Context(), body, ip, authOK, false)
	h.writeJSON(w, resp)
}

func (h *rpcHandler) checkAuth(r *http.Request) bool {
	if !h.config.enableAuth {
		return true
	}
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, prefix) && auth[len(prefix):] == h.config.authToken
}

func (h *rpcHandler) handleSingle(goCtx context.Context, body []byte, ip string, authOK, isBatch bool) *response {
	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		return &response{JSONRPC: "2.0", Error: &rpcErr{Code: -32700, Message: "parse error: invalid JSON"}}
	}

	ctx := &requestContext{
		goCtx:     goCtx,
		req:       &req,
		remoteIP:  ip,
		startTime: time.Now(),
		requestID: h.requestSeq.Add(1),
		isBatch:   isBatch,
		authOK:    authOK,
	}
	return h.dispatch(ctx)
}

func (h *rpcHandler) handleBatch(goCtx context.Context, w http.ResponseWriter, body []byte, ip string, authOK bool) {
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		h.writeError(w, nil, -32700, "parse error: invalid JSON batch")
		return
	}
	if len(raws) == 0 {
		h.writeError(w, nil, -32600, "empty batch")
		return
	}
	if len(raws) > h.config.maxBatchSize {
		h.writeError(w, nil, -32600, "batch too large")
		return
	}

	responses := make([]*response, len(raws))
	var eg errgroup.Group
	for i, raw := range raws {
		i, raw := i, raw
		eg.Go(func() error {
			responses[i] = h.handleSingle(goCtx, raw, ip, authOK, true)
			return nil
		})
	}
	eg.Wait()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(responses)
}

func (h *rpcHandler) dispatch(ctx *requestContext) *response {
	h.mu.RLock()
	mws := make([]middleware, len(h.middleware))
	copy(mws, h.middleware)
	fn, exists := h.routes[ctx.req.Method]
	h.mu.RUnlock()

	if !exists {
		return &response{JSONRPC: "2.0", Error: &rpcErr{Code: -32601, Message: "method not found: " + ctx.req.Method}, ID: ctx.req.ID}
	}

	final := fn
	for i := len(mws) - 1; i >= 0; i-- {
		mw := mws[i]
		next := final
		final = func(c *requestContext) *response { return mw(c, next) }
	}
	return final(ctx)
}

func (h *rpcHandler) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (h *rpcHandler) writeError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	h.writeJSON(w, &response{JSONRPC: "2.0", Error: &rpcErr{Code: code, Message: message}, ID: id})
}

// authMiddleware rejects requests that failed the bearer-token check at the
// HTTP layer. Batch sub-requests inherit the outer request's auth result.
func authMiddleware() middleware {
	return func(ctx *requestContext, next handleFunc) *response {
		if !ctx.authOK {
			return &response{JSONRPC: "2.0", Error: &rpcErr{Code: -32001, Message: "unauthorized"}, ID: ctx.req.ID}
		}
		return next(ctx)
	}
}

// loggingMiddleware logs method, duration, and any error for every request.
func loggingMiddleware(logger *log.Logger) middleware {
	return func(ctx *requestContext, next handleFunc) *response {
		resp := next(ctx)
		elapsed := time.Since(ctx.startTime)
		l := logger.With("method", ctx.req.Method).With("remote_ip", ctx.remoteIP)
		if resp.Error != nil {
			l.With("elapsed", elapsed.String()).Warn("rpc error: " + resp.Error.Message)
		} else {
			l.With("elapsed", elapsed.String()).Info("rpc ok")
		}
		return resp
	}
}

func extractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx >= 0 {
		return addr[:idx]
	}
	return addr
}

func trimLeadingWhitespace(b []byte) []byte {
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\t' || b[0] == '\r' || b[0] == '\n') {
		b = b[1:]
	}
	return b
}
