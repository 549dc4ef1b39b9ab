// Package health serves liveness and readiness probes.
//
// Every check runs on its own ticker. A check turns unhealthy after three
// consecutive failures and healthy again after one success, so a single
// slow ping does not flip readiness.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
)

// ErrUnknownCheck is returned by Check for a name that was never registered.
var ErrUnknownCheck = errors.New("unknown health check")

const (
	failAfter = 3
	passAfter = 1
)

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

type kind uint8

const (
	liveness kind = iota
	readiness
)

// probe is one registered check. run is only called from the probe's own
// ticker goroutine; healthy and lastErr are read by HTTP handlers.
type probe struct {
	name    string
	kind    kind
	timeout time.Duration
	check   CheckFunc

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	fails  int
	passes int
}

func (p *probe) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(ctx)
	p.lastErr.Store(&err)
	if err != nil {
		p.passes = 0
		if p.fails++; p.fails >= failAfter {
			p.healthy.Store(false)
		}
		return
	}
	p.fails = 0
	if p.passes++; p.passes >= passAfter {
		p.healthy.Store(true)
	}
}

// failure returns why the probe is unhealthy, or "" when it is healthy.
func (p *probe) failure() string {
	if p.healthy.Load() {
		return ""
	}
	if e := p.lastErr.Load(); e != nil && *e != nil {
		return (*e).Error()
	}
	return "check is unhealthy"
}

// Health tracks the probes of one process.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	probes []*probe
	cancel context.CancelFunc
}

// New returns a Health that is not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a check reported by /livez.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.add(liveness, name, timeout, check)
}

// AddReadinessCheck registers a check reported by /readyz.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.add(readiness, name, timeout, check)
}

func (h *Health) add(k kind, name string, timeout time.Duration, check CheckFunc) {
	p := &probe{name: name, kind: k, timeout: timeout, check: check}
	p.healthy.Store(true)

	h.mu.Lock()
	h.probes = append(h.probes, p)
	h.mu.Unlock()
}

func (h *Health) snapshot(k kind) []*probe {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*probe
	for _, p := range h.probes {
		if p.kind == k {
			out = append(out, p)
		}
	}
	return out
}

// Start runs every registered check immediately and then once per
// interval until Stop or ctx cancellation.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := append([]*probe(nil), h.probes...)
	h.mu.Unlock()

	for _, p := range probes {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			p.run(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					p.run(ctx)
				}
			}
		}()
	}
}

// Stop stops the check goroutines. It may be called more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness switch: true once wiring is done,
// false when draining before shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the process is marked ready and every readiness
// check passes.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(failures(h.snapshot(readiness))) == 0
}

// Check returns the state of the named check: nil when healthy, the last
// error otherwise.
func (h *Health) Check(name string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, p := range h.probes {
		if p.name != name {
			continue
		}
		if msg := p.failure(); msg != "" {
			return errors.New(msg)
		}
		return nil
	}
	return ErrUnknownCheck
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, failures(h.snapshot(liveness)))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failed := failures(h.snapshot(readiness))
	if !h.ready.Load() {
		failed["_readiness"] = "service is not ready"
	}
	writeStatus(w, failed)
}

func failures(probes []*probe) map[string]string {
	out := make(map[string]string)
	for _, p := range probes {
		if msg := p.failure(); msg != "" {
			out[p.name] = msg
		}
	}
	return out
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// writeStatus answers 200 {"status":"ok"} or 503 with the failing checks.
func writeStatus(w http.ResponseWriter, failed map[string]string) {
	resp, code := statusResponse{Status: "ok"}, http.StatusOK
	if len(failed) > 0 {
		resp, code = statusResponse{Status: "unhealthy", Checks: failed}, http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
