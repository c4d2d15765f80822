package client

import (
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// Credentials is the slice of the credential store the guard needs.
type Credentials interface {
	Get() (string, bool)
	Clear() error
}

// Guard is an http.RoundTripper that attaches the current bearer
// credential to every request and handles 401 responses uniformly: the
// credential is cleared and the unauthorized hooks run. The response is
// still returned, so the caller's request fails as usual.
type Guard struct {
	base  http.RoundTripper
	creds Credentials
	log   *zap.Logger

	mu    sync.RWMutex
	hooks []func()
}

// NewGuard wraps base (http.DefaultTransport when nil).
func NewGuard(base http.RoundTripper, creds Credentials, log *zap.Logger) *Guard {
	if base == nil {
		base = http.DefaultTransport
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Guard{base: base, creds: creds, log: log}
}

// OnUnauthorized registers fn to run after a 401 cleared the credential.
// Hooks run on the requesting goroutine and must not block.
func (g *Guard) OnUnauthorized(fn func()) {
	g.mu.Lock()
	g.hooks = append(g.hooks, fn)
	g.mu.Unlock()
}

// RoundTrip implements http.RoundTripper.
func (g *Guard) RoundTrip(req *http.Request) (*http.Response, error) {
	if tok, ok := g.creds.Get(); ok {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := g.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		g.log.Warn("authentication rejected, clearing credential",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path))
		if err := g.creds.Clear(); err != nil {
			g.log.Error("clearing credential", zap.Error(err))
		}
		g.runHooks()
	}
	return resp, nil
}

func (g *Guard) runHooks() {
	g.mu.RLock()
	hooks := make([]func(), len(g.hooks))
	copy(hooks, g.hooks)
	g.mu.RUnlock()

	for _, fn := range hooks {
		fn()
	}
}
