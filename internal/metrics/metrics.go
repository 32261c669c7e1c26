// Package metrics keeps in-process counters for the daemon and renders them
// in the Prometheus text exposition format.
//
// Metrics are registered once by name and are safe for concurrent use. The
// layer controller updates them from the pump goroutine while the HTTP
// handler reads them.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Labels are constant labels attached to a metric.
type Labels map[string]string

// String renders labels as {a="1",b="2"}, sorted by name, or "" when empty.
func (l Labels) String() string {
	return l.with("", "")
}

// with renders the labels plus one extra pair, used for histogram buckets.
func (l Labels) with(name, value string) string {
	pairs := make([]string, 0, len(l)+1)
	for k, v := range l {
		pairs = append(pairs, fmt.Sprintf(`%s=%q`, k, v))
	}
	sort.Strings(pairs)
	if name != "" {
		pairs = append(pairs, fmt.Sprintf(`%s=%q`, name, value))
	}
	if len(pairs) == 0 {
		return ""
	}
	return "{" + strings.Join(pairs, ",") + "}"
}

// desc is the identity shared by every metric kind.
type desc struct {
	name   string
	help   string
	labels Labels
}

func (d desc) header(b *strings.Builder, kind string) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s %s\n", d.name, d.help, d.name, kind)
}

// collector is implemented by each metric kind.
type collector interface {
	write(b *strings.Builder)
}

// Counter only goes up.
type Counter struct {
	desc
	n atomic.Uint64
}

// Inc adds one.
func (c *Counter) Inc() { c.n.Add(1) }

// Add adds v.
func (c *Counter) Add(v uint64) { c.n.Add(v) }

// Value returns the current count.
func (c *Counter) Value() uint64 { return c.n.Load() }

func (c *Counter) write(b *strings.Builder) {
	c.header(b, "counter")
	fmt.Fprintf(b, "%s%s %d\n", c.name, c.labels, c.Value())
}

// Gauge holds a value that can go up and down.
type Gauge struct {
	desc
	v atomic.Int64
}

// Set stores v.
func (g *Gauge) Set(v int64) { g.v.Store(v) }

// Value returns the stored value.
func (g *Gauge) Value() int64 { return g.v.Load() }

func (g *Gauge) write(b *strings.Builder) {
	g.header(b, "gauge")
	fmt.Fprintf(b, "%s%s %d\n", g.name, g.labels, g.Value())
}

// DurationBuckets are the default histogram bounds, in seconds. Keymap
// reloads sit well under a second.
var DurationBuckets = []float64{
	0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

// Histogram counts observations into cumulative buckets.
type Histogram struct {
	desc
	bounds []float64

	mu     sync.Mutex
	counts []uint64 // len(bounds)+1, the last one is +Inf
	sum    float64
	total  uint64
}

func newHistogram(d desc, bounds []float64) *Histogram {
	if bounds == nil {
		bounds = DurationBuckets
	}
	sorted := append([]float64(nil), bounds...)
	sort.Float64s(sorted)
	return &Histogram{desc: d, bounds: sorted, counts: make([]uint64, len(sorted)+1)}
}

// Observe records v.
func (h *Histogram) Observe(v float64) {
	i := sort.SearchFloat64s(h.bounds, v)

	h.mu.Lock()
	h.counts[i]++
	h.sum += v
	h.total++
	h.mu.Unlock()
}

// ObserveDuration records d in seconds.
func (h *Histogram) ObserveDuration(d time.Duration) { h.Observe(d.Seconds()) }

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

func (h *Histogram) write(b *strings.Builder) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.header(b, "histogram")
	var cum uint64
	for i, bound := range h.bounds {
		cum += h.counts[i]
		fmt.Fprintf(b, "%s_bucket%s %d\n", h.name, h.labels.with("le", fmt.Sprintf("%g", bound)), cum)
	}
	cum += h.counts[len(h.bounds)]
	fmt.Fprintf(b, "%s_bucket%s %d\n", h.name, h.labels.with("le", "+Inf"), cum)
	fmt.Fprintf(b, "%s_sum%s %g\n", h.name, h.labels, h.sum)
	fmt.Fprintf(b, "%s_count%s %d\n", h.name, h.labels, h.total)
}

// Registry owns a set of metrics under a common name prefix.
type Registry struct {
	prefix string

	mu      sync.RWMutex
	metrics map[string]collector
}

// NewRegistry creates a registry whose metric names start with
// namespace_subsystem_. Either part may be empty.
func NewRegistry(namespace, subsystem string) *Registry {
	var parts []string
	for _, p := range []string{namespace, subsystem} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	prefix := strings.Join(parts, "_")
	if prefix != "" {
		prefix += "_"
	}
	return &Registry{prefix: prefix, metrics: make(map[string]collector)}
}

// lookup returns the metric registered under name, creating it with mk when
// absent. Registering the same name twice with a different kind panics.
func lookup[T collector](r *Registry, name string, mk func(full string) T) T {
	full := r.prefix + name

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.metrics[full]; ok {
		m, ok := existing.(T)
		if !ok {
			panic(fmt.Sprintf("metrics: %s registered with a different type", full))
		}
		return m
	}
	m := mk(full)
	r.metrics[full] = m
	return m
}

// RegisterCounter returns the counter called name, creating it if needed.
func (r *Registry) RegisterCounter(name, help string, labels Labels) *Counter {
	return lookup(r, name, func(full string) *Counter {
		return &Counter{desc: desc{full, help, labels}}
	})
}

// RegisterGauge returns the gauge called name, creating it if needed.
func (r *Registry) RegisterGauge(name, help string, labels Labels) *Gauge {
	return lookup(r, name, func(full string) *Gauge {
		return &Gauge{desc: desc{full, help, labels}}
	})
}

// RegisterHistogram returns the histogram called name, creating it if
// needed. nil buckets means DurationBuckets.
func (r *Registry) RegisterHistogram(name, help string, labels Labels, buckets []float64) *Histogram {
	return lookup(r, name, func(full string) *Histogram {
		return newHistogram(desc{full, help, labels}, buckets)
	})
}

// WritePrometheus writes every metric, sorted by name.
func (r *Registry) WritePrometheus(w io.Writer) error {
	r.mu.RLock()
	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		r.metrics[name].write(&b)
	}
	r.mu.RUnlock()

	_, err := io.WriteString(w, b.String())
	return err
}

// HTTPHandler serves WritePrometheus output.
func (r *Registry) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		if err := r.WritePrometheus(w); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
