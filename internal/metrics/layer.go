package metrics

import "time"

// LayerMetrics counts what the layer controller and keymap loader do. It
// implements layer.Observer.
type LayerMetrics struct {
	registry *Registry

	EventsPassed   *Counter
	EventsConsumed *Counter
	ActionsEmitted *Counter
	ResolveMisses  *Counter
	CapsLockEdges  *Counter
	Reloads        *Counter
	ReloadFailures *Counter
	LayerActive    *Gauge
	HeldModifiers  *Gauge
	MappingsLoaded *Gauge
	ReloadDuration *Histogram
}

// NewLayerMetrics registers the metrics in registry, or a fresh
// "capsunlocked" registry when nil.
func NewLayerMetrics(registry *Registry) *LayerMetrics {
	if registry == nil {
		registry = NewRegistry("capsunlocked", "")
	}
	return &LayerMetrics{
		registry: registry,

		EventsPassed:   registry.RegisterCounter("events_passed_total", "Key events passed through while the layer was inactive", nil),
		EventsConsumed: registry.RegisterCounter("events_consumed_total", "Key events consumed by the active layer", nil),
		ActionsEmitted: registry.RegisterCounter("actions_emitted_total", "Resolved actions sent to the output", nil),
		ResolveMisses:  registry.RegisterCounter("resolve_misses_total", "Keys swallowed by the layer without a mapping", nil),
		CapsLockEdges:  registry.RegisterCounter("capslock_transitions_total", "Layer activations and deactivations", nil),
		Reloads:        registry.RegisterCounter("reloads_total", "Successful keymap loads", nil),
		ReloadFailures: registry.RegisterCounter("reload_failures_total", "Keymap loads that failed and kept the previous keymap", nil),
		LayerActive:    registry.RegisterGauge("layer_active", "1 while CapsLock is held", nil),
		HeldModifiers:  registry.RegisterGauge("held_modifiers", "Layer modifiers currently held", nil),
		MappingsLoaded: registry.RegisterGauge("mappings_loaded", "Definitions in the published keymap", nil),
		ReloadDuration: registry.RegisterHistogram("reload_duration_seconds", "Time to parse and publish a keymap", nil, nil),
	}
}

// Registry returns the registry the metrics live in.
func (m *LayerMetrics) Registry() *Registry {
	return m.registry
}

func (m *LayerMetrics) LayerChanged(active bool) {
	m.CapsLockEdges.Inc()
	if active {
		m.LayerActive.Set(1)
	} else {
		m.LayerActive.Set(0)
	}
}

func (m *LayerMetrics) ModifiersChanged(held int) { m.HeldModifiers.Set(int64(held)) }
func (m *LayerMetrics) EventPassed()              { m.EventsPassed.Inc() }
func (m *LayerMetrics) EventConsumed()            { m.EventsConsumed.Inc() }
func (m *LayerMetrics) ActionEmitted()            { m.ActionsEmitted.Inc() }
func (m *LayerMetrics) ResolveMissed()            { m.ResolveMisses.Inc() }

// KeymapLoaded records a successful load of entries definitions.
func (m *LayerMetrics) KeymapLoaded(entries int, took time.Duration) {
	m.Reloads.Inc()
	m.MappingsLoaded.Set(int64(entries))
	m.ReloadDuration.ObserveDuration(took)
}

// KeymapFailed records a load that left the previous keymap in place.
func (m *LayerMetrics) KeymapFailed() {
	m.ReloadFailures.Inc()
}
