// Package health serves liveness and readiness probes backed by periodic
// dependency checks.
//
// A check flips to unhealthy after FailureThreshold consecutive failures and
// back after SuccessThreshold consecutive successes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// Kind selects the probe a check contributes to.
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

func (k Kind) String() string {
	if k == Liveness {
		return "liveness"
	}
	return "readiness"
}

// Option tunes a single check.
type Option func(*check)

// WithFailureThreshold sets consecutive failures before unhealthy. Default 3.
func WithFailureThreshold(n int) Option {
	return func(c *check) { c.failureThreshold = max(n, 1) }
}

// WithSuccessThreshold sets consecutive successes before healthy. Default 1.
func WithSuccessThreshold(n int) Option {
	return func(c *check) { c.successThreshold = max(n, 1) }
}

type check struct {
	name             string
	kind             Kind
	timeout          time.Duration
	fn               CheckFunc
	failureThreshold int
	successThreshold int

	healthy atomic.Bool
	lastErr atomic.Pointer[string]

	// Owned by the single goroutine driving run.
	fails     int
	successes int
}

// run executes the check once and reports whether its health flipped.
func (c *check) run(ctx context.Context) (changed bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.fn(ctx)
	if err != nil {
		msg := err.Error()
		c.lastErr.Store(&msg)
		c.successes = 0
		c.fails++
		if c.fails >= c.failureThreshold && c.healthy.Load() {
			c.healthy.Store(false)
			return true
		}
		return false
	}

	c.lastErr.Store(nil)
	c.fails = 0
	c.successes++
	if c.successes >= c.successThreshold && !c.healthy.Load() {
		c.healthy.Store(true)
		return true
	}
	return false
}

func (c *check) status() (ok bool, msg string) {
	if c.healthy.Load() {
		return true, "ok"
	}
	if p := c.lastErr.Load(); p != nil {
		return false, *p
	}
	return false, "unhealthy"
}

// Health tracks probe state. The zero value is not usable; call New.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	checks []*check
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a Health that reports not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// Add registers a check of the given kind. Checks start healthy.
func (h *Health) Add(kind Kind, name string, timeout time.Duration, fn CheckFunc, opts ...Option) {
	c := &check{
		name:             name,
		kind:             kind,
		timeout:          timeout,
		fn:               fn,
		failureThreshold: 3,
		successThreshold: 1,
	}
	for _, o := range opts {
		o(c)
	}
	c.healthy.Store(true)

	h.mu.Lock()
	h.checks = append(h.checks, c)
	h.mu.Unlock()
}

// AddLivenessCheck is Add(Liveness, ...).
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc, opts ...Option) {
	h.Add(Liveness, name, timeout, fn, opts...)
}

// AddReadinessCheck is Add(Readiness, ...).
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc, opts ...Option) {
	h.Add(Readiness, name, timeout, fn, opts...)
}

// Start runs every registered check now and then every interval until Stop or
// ctx is done. Health transitions are logged with the context logger.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := append([]*check(nil), h.checks...)
	h.mu.Unlock()

	lg := zctx.From(ctx)
	for _, c := range checks {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			tick := time.NewTicker(interval)
			defer tick.Stop()
			for {
				if c.run(ctx) {
					ok, msg := c.status()
					lg.Warn("Health check changed",
						zap.String("check", c.name),
						zap.Stringer("kind", c.kind),
						zap.Bool("healthy", ok),
						zap.String("detail", msg),
					)
				}
				select {
				case <-ctx.Done():
					return
				case <-tick.C:
				}
			}
		}()
	}
}

// Stop cancels the check goroutines and waits for them to exit.
func (h *Health) Stop() {
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	h.wg.Wait()
}

// SetReady toggles the manual readiness gate.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports the readiness gate combined with every readiness check.
func (h *Health) IsReady() bool {
	ok, _ := h.evaluate(Readiness)
	return ok && h.ready.Load()
}

func (h *Health) evaluate(kind Kind) (bool, map[string]string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	all := true
	out := make(map[string]string)
	for _, c := range h.checks {
		if c.kind != kind {
			continue
		}
		ok, msg := c.status()
		all = all && ok
		out[c.name] = msg
	}
	return all, out
}

// Report is the JSON body of the probe endpoints.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	ok, checks := h.evaluate(Liveness)
	write(w, ok, checks)
}

// ReadyEndpoint serves /readyz. It fails while the readiness gate is closed.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	ok, checks := h.evaluate(Readiness)
	if !h.ready.Load() {
		ok = false
		checks["_gate"] = "not ready"
	}
	write(w, ok, checks)
}

func write(w http.ResponseWriter, ok bool, checks map[string]string) {
	rep := Report{Status: "ok", Checks: checks}
	code := http.StatusOK
	if !ok {
		rep.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	if len(rep.Checks) == 0 {
		rep.Checks = nil
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(rep)
}
