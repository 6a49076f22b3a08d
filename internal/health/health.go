// Package health tracks the daemon's components and serves liveness and
// readiness probes.
//
// A component is critical when the daemon cannot do its job without it (the
// process inspector, the control socket). Non-critical components (the
// clipboard, desktop notifications) only degrade the overall status.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// DefaultTimeout bounds a single component check.
const DefaultTimeout = 5 * time.Second

// Status is a component or daemon health state.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown" // not checked yet
)

// CheckResult is the outcome of one component check.
type CheckResult struct {
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"duration_ns"`
	Error       string         `json:"error,omitempty"`
}

// Check probes one component.
type Check func(ctx context.Context) CheckResult

// Component is a registered check.
type Component struct {
	Name     string
	Critical bool
	Check    Check
	Timeout  time.Duration
}

// Checker runs component checks and remembers the last result of each.
type Checker struct {
	mu         sync.RWMutex
	components map[string]*Component
	results    map[string]CheckResult
	started    time.Time
	ready      bool
}

// NewChecker creates an empty Checker that is not ready.
func NewChecker() *Checker {
	return &Checker{
		components: make(map[string]*Component),
		results:    make(map[string]CheckResult),
		started:    time.Now(),
	}
}

// Register adds or replaces a component. Its status is unknown until the
// next Check.
func (c *Checker) Register(comp *Component) {
	if comp.Timeout <= 0 {
		comp.Timeout = DefaultTimeout
	}
	c.mu.Lock()
	c.components[comp.Name] = comp
	c.results[comp.Name] = CheckResult{Status: StatusUnknown}
	c.mu.Unlock()
}

// RegisterFunc registers check under name with the default timeout.
func (c *Checker) RegisterFunc(name string, critical bool, check Check) {
	c.Register(&Component{Name: name, Critical: critical, Check: check})
}

// SetReady marks the daemon ready (or not) to serve detection requests.
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	c.ready = ready
	c.mu.Unlock()
}

// IsReady reports the readiness flag.
func (c *Checker) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Check runs every component concurrently and returns the fresh results.
func (c *Checker) Check(ctx context.Context) map[string]CheckResult {
	c.mu.RLock()
	comps := make([]*Component, 0, len(c.components))
	for _, comp := range c.components {
		comps = append(comps, comp)
	}
	c.mu.RUnlock()

	out := make(map[string]CheckResult, len(comps))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, comp := range comps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := probe(ctx, comp)

			c.mu.Lock()
			if _, ok := c.components[comp.Name]; ok {
				c.results[comp.Name] = res
			}
			c.mu.Unlock()

			mu.Lock()
			out[comp.Name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}

// probe runs one check under its timeout. A panic or an expired timeout is
// reported as unhealthy; a check that ignores its context is abandoned.
func probe(ctx context.Context, comp *Component) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, comp.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan CheckResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- CheckResult{Status: StatusUnhealthy, Message: "check panicked", Error: fmt.Sprint(r)}
			}
		}()
		done <- comp.Check(ctx)
	}()

	var res CheckResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res = CheckResult{Status: StatusUnhealthy, Message: "check timed out", Error: ctx.Err().Error()}
	}
	res.LastChecked = start
	res.Duration = time.Since(start)
	return res
}

// OverallStatus folds the last results. An unhealthy critical component makes
// the daemon unhealthy; an unchecked critical component makes it unknown.
func (c *Checker) OverallStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	overall := StatusHealthy
	for name, res := range c.results {
		critical := c.components[name].Critical
		switch {
		case res.Status == StatusUnhealthy && critical:
			return StatusUnhealthy
		case res.Status == StatusUnknown && critical:
			overall = StatusUnknown
		case res.Status == StatusUnhealthy || res.Status == StatusDegraded:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
	}
	return overall
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status     Status                 `json:"status"`
	Ready      bool                   `json:"ready"`
	Uptime     string                 `json:"uptime"`
	Components map[string]CheckResult `json:"components,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// HealthResponse builds a /health body, running the checks when full is set.
func (c *Checker) HealthResponse(ctx context.Context, full bool) HealthResponse {
	var comps map[string]CheckResult
	if full {
		comps = c.Check(ctx)
	}
	c.mu.RLock()
	ready, uptime := c.ready, time.Since(c.started).Round(time.Second)
	c.mu.RUnlock()

	return HealthResponse{
		Status:     c.OverallStatus(),
		Ready:      ready,
		Uptime:     uptime.String(),
		Components: comps,
		Timestamp:  time.Now(),
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// LivenessHandler answers 200 while the process is up.
func (c *Checker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "alive", "timestamp": time.Now()})
	})
}

// ReadinessHandler answers 503 until SetReady(true), and while a critical
// component is unhealthy.
func (c *Checker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.IsReady() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "timestamp": time.Now()})
			return
		}
		status := c.OverallStatus()
		code := http.StatusOK
		if status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{"status": status, "ready": true, "timestamp": time.Now()})
	})
}

// HealthHandler serves the detailed status; ?full=true runs every check.
func (c *Checker) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := c.HealthResponse(r.Context(), r.URL.Query().Get("full") == "true")
		code := http.StatusOK
		if resp.Status != StatusHealthy && resp.Status != StatusDegraded {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	})
}

// Routes registers /healthz, /readyz and /health on r.
func (c *Checker) Routes(r *mux.Router) {
	r.Handle("/healthz", c.LivenessHandler()).Methods(http.MethodGet)
	r.Handle("/readyz", c.ReadinessHandler()).Methods(http.MethodGet)
	r.Handle("/health", c.HealthHandler()).Methods(http.MethodGet)
}

// ErrorCheck turns fn into a Check. A nil error is healthy.
func ErrorCheck(message string, fn func(ctx context.Context) error) Check {
	return func(ctx context.Context) CheckResult {
		if err := fn(ctx); err != nil {
			return CheckResult{
				Status:  StatusUnhealthy,
				Message: message + " failed",
				Error:   err.Error(),
			}
		}
		return CheckResult{Status: StatusHealthy, Message: message + " ok"}
	}
}

// FlagCheck reports degraded while ok returns false.
func FlagCheck(message string, ok func() bool) Check {
	return func(context.Context) CheckResult {
		if !ok() {
			return CheckResult{Status: StatusDegraded, Message: message + " unavailable"}
		}
		return CheckResult{Status: StatusHealthy, Message: message + " available"}
	}
}
