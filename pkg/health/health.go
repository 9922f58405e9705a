// Package health serves the /livez and /readyz probes of the till server.
//
// Every check runs on its own ticker. A check turns unhealthy only after
// FailureThreshold consecutive failures and healthy again after
// SuccessThreshold consecutive successes, so a single slow catalog fetch does
// not take the till out of rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// Probe selects the endpoint a check contributes to.
type Probe int

const (
	Liveness Probe = iota
	Readiness
)

// Check describes a registered check. Zero thresholds default to 3 failures
// and 1 success; a zero Timeout defaults to one second.
type Check struct {
	Name             string
	Probe            Probe
	Timeout          time.Duration
	Func             CheckFunc
	FailureThreshold int
	SuccessThreshold int
	// StartHealthy marks the check healthy before its first run. Readiness
	// checks usually start unhealthy so traffic waits for warmup.
	StartHealthy bool
}

type checkState struct {
	Check

	healthy atomic.Bool
	lastErr atomic.Pointer[error]
	changed atomic.Int64 // unix nanos of the last transition

	// Only touched by the goroutine running the check.
	fails int
	oks   int
}

func (c *checkState) run(ctx context.Context, now time.Time) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	err := c.Func(ctx)
	c.lastErr.Store(&err)

	if err != nil {
		c.oks = 0
		c.fails++
		if c.fails >= c.FailureThreshold && c.healthy.Swap(false) {
			c.changed.Store(now.UnixNano())
		}
		return
	}
	c.fails = 0
	c.oks++
	if c.oks >= c.SuccessThreshold && !c.healthy.Swap(true) {
		c.changed.Store(now.UnixNano())
	}
}

func (c *checkState) failure() string {
	if p := c.lastErr.Load(); p != nil && *p != nil {
		return (*p).Error()
	}
	return "check is unhealthy"
}

// Health tracks liveness and readiness of the process.
type Health struct {
	draining atomic.Bool
	now      func() time.Time

	mu     sync.RWMutex
	checks []*checkState
	cancel context.CancelFunc
}

// New creates a Health with no checks. Readiness is reported as soon as all
// readiness checks pass, until Drain is called.
func New() *Health {
	return &Health{now: time.Now}
}

// Register adds a check. Checks registered after Start are not run.
func (h *Health) Register(c Check) {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}

	s := &checkState{Check: c}
	s.healthy.Store(c.StartHealthy)
	s.changed.Store(h.now().UnixNano())

	h.mu.Lock()
	h.checks = append(h.checks, s)
	h.mu.Unlock()
}

// Start runs every registered check immediately and then once per interval
// until Stop is called or ctx is cancelled.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	if h.cancel != nil {
		h.cancel()
	}
	h.cancel = cancel
	checks := append([]*checkState(nil), h.checks...)
	h.mu.Unlock()

	for _, c := range checks {
		go h.loop(ctx, c, interval)
	}
}

func (h *Health) loop(ctx context.Context, c *checkState, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.run(ctx, h.now())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.run(ctx, h.now())
		}
	}
}

// Stop cancels the check goroutines. It may be called more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// Drain makes /readyz fail regardless of checks. Called at the start of
// graceful shutdown.
func (h *Health) Drain() {
	h.draining.Store(true)
}

// Ready reports whether /readyz would answer 200.
func (h *Health) Ready() bool {
	return len(h.failures(Readiness)) == 0
}

func (h *Health) failures(p Probe) map[string]string {
	h.mu.RLock()
	checks := append([]*checkState(nil), h.checks...)
	h.mu.RUnlock()

	failed := make(map[string]string)
	for _, c := range checks {
		if c.Probe == p && !c.healthy.Load() {
			failed[c.Name] = c.failure()
		}
	}
	if p == Readiness && h.draining.Load() {
		failed["shutdown"] = "server is draining"
	}
	return failed
}

// Report is the body of both probe endpoints.
type Report struct {
	Status string        `json:"status"`
	Checks []CheckReport `json:"checks,omitempty"`
}

// CheckReport describes one failing check.
type CheckReport struct {
	Name  string    `json:"name"`
	Error string    `json:"error"`
	Since time.Time `json:"since"`
}

func (h *Health) report(p Probe) (Report, bool) {
	failed := h.failures(p)
	if len(failed) == 0 {
		return Report{Status: "ok"}, true
	}

	h.mu.RLock()
	since := make(map[string]time.Time, len(h.checks))
	for _, c := range h.checks {
		since[c.Name] = time.Unix(0, c.changed.Load()).UTC()
	}
	h.mu.RUnlock()

	rep := Report{Status: "unhealthy"}
	for name, msg := range failed {
		rep.Checks = append(rep.Checks, CheckReport{Name: name, Error: msg, Since: since[name]})
	}
	sort.Slice(rep.Checks, func(i, j int) bool { return rep.Checks[i].Name < rep.Checks[j].Name })
	return rep, false
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	rep, ok := h.report(Liveness)
	writeReport(w, rep, ok)
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	rep, ok := h.report(Readiness)
	writeReport(w, rep, ok)
}

func writeReport(w http.ResponseWriter, rep Report, ok bool) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if ok {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(rep)
}
