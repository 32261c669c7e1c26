// Package health reports whether the daemon's parts are working.
//
// Components register checks; the aggregated status is served as JSON next
// to the metrics endpoint:
//   - /healthz        overall status, ?full=true adds every component
//   - /healthz/ready  503 until the first keymap is published
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// CheckResult is the outcome of one check.
type CheckResult struct {
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"duration_ns"`
	Error       string         `json:"error,omitempty"`
}

// Check performs a health check. Checks must not touch the layer controller;
// they read state that is already safe for concurrent use.
type Check func(ctx context.Context) CheckResult

type component struct {
	name     string
	critical bool
	check    Check
	timeout  time.Duration
}

// DefaultTimeout bounds a single check.
const DefaultTimeout = time.Second

// Checker runs registered checks and aggregates their results.
type Checker struct {
	mu         sync.RWMutex
	components map[string]*component
	results    map[string]CheckResult
	startTime  time.Time
	ready      bool
	now        func() time.Time
}

// NewChecker creates a Checker that is not ready.
func NewChecker() *Checker {
	return &Checker{
		components: make(map[string]*component),
		results:    make(map[string]CheckResult),
		startTime:  time.Now(),
		now:        time.Now,
	}
}

// Register adds a check. A failing critical check makes the whole daemon
// unhealthy; a failing optional one only degrades it.
func (c *Checker) Register(name string, critical bool, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.components[name] = &component{name: name, critical: critical, check: check, timeout: DefaultTimeout}
	c.results[name] = CheckResult{Status: StatusUnknown}
}

// SetReady sets the readiness state.
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

// IsReady returns the readiness state.
func (c *Checker) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Check runs every check concurrently and stores the results.
func (c *Checker) Check(ctx context.Context) map[string]CheckResult {
	c.mu.RLock()
	components := make([]*component, 0, len(c.components))
	for _, comp := range c.components {
		components = append(components, comp)
	}
	c.mu.RUnlock()

	results := make(map[string]CheckResult, len(components))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, comp := range components {
		wg.Add(1)
		go func(comp *component) {
			defer wg.Done()
			r := c.run(ctx, comp)
			mu.Lock()
			results[comp.name] = r
			mu.Unlock()
		}(comp)
	}
	wg.Wait()

	c.mu.Lock()
	for name, r := range results {
		if _, ok := c.components[name]; ok {
			c.results[name] = r
		}
	}
	c.mu.Unlock()
	return results
}

// run executes one check with a timeout, turning panics into failures.
func (c *Checker) run(ctx context.Context, comp *component) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, comp.timeout)
	defer cancel()

	start := c.now()
	done := make(chan CheckResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- CheckResult{Status: StatusUnhealthy, Message: "check panicked", Error: fmt.Sprint(r)}
			}
		}()
		done <- comp.check(checkCtx)
	}()

	var result CheckResult
	select {
	case result = <-done:
	case <-checkCtx.Done():
		result = CheckResult{Status: StatusUnhealthy, Message: "check timed out", Error: checkCtx.Err().Error()}
	}
	result.LastChecked = start
	result.Duration = c.now().Sub(start)
	return result
}

// OverallStatus aggregates the last results.
func (c *Checker) OverallStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	unknown, degraded := false, false
	for name, result := range c.results {
		comp := c.components[name]
		switch result.Status {
		case StatusUnhealthy:
			if comp.critical {
				return StatusUnhealthy
			}
			degraded = true
		case StatusDegraded:
			degraded = true
		case StatusUnknown:
			if comp.critical {
				unknown = true
			}
		}
	}

	switch {
	case unknown:
		return StatusUnknown
	case degraded:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// Components returns the registered check names, sorted.
func (c *Checker) Components() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.components))
	for name := range c.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Response is the body of the health endpoint.
type Response struct {
	Status     Status                 `json:"status"`
	Ready      bool                   `json:"ready"`
	Uptime     string                 `json:"uptime"`
	Components map[string]CheckResult `json:"components,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Response runs the checks and builds the endpoint body.
func (c *Checker) Response(ctx context.Context, full bool) Response {
	components := c.Check(ctx)
	if !full {
		components = nil
	}

	c.mu.RLock()
	ready := c.ready
	uptime := c.now().Sub(c.startTime).Round(time.Second)
	c.mu.RUnlock()

	return Response{
		Status:     c.OverallStatus(),
		Ready:      ready,
		Uptime:     uptime.String(),
		Components: components,
		Timestamp:  c.now(),
	}
}

// Handler serves the aggregated status. Healthy and degraded answer 200.
func (c *Checker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := c.Response(r.Context(), r.URL.Query().Get("full") == "true")

		w.Header().Set("Content-Type", "application/json")
		switch resp.Status {
		case StatusHealthy, StatusDegraded:
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	})
}

// ReadinessHandler answers 503 until SetReady(true).
func (c *Checker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !c.IsReady() {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]any{"status": "not ready"})
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{"status": "ready"})
	})
}

// Func adapts a plain error-returning probe.
func Func(fn func() error) Check {
	return func(context.Context) CheckResult {
		if err := fn(); err != nil {
			return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
		}
		return CheckResult{Status: StatusHealthy}
	}
}
