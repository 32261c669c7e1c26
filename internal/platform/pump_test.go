package platform

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capsunlocked/internal/layer"
	"capsunlocked/internal/mapping"
	"capsunlocked/internal/overlay"
)

func newTestPump(t *testing.T, table mapping.Table, reg mapping.Registry, apps AppMonitor, opts ...PumpOption) (*Pump, *Recorder) {
	t.Helper()
	ctrl := layer.New(mapping.NewEngine(mapping.BuildIndex(table, reg)))
	rec := &Recorder{}
	return NewPump(ctrl, NewSimulatedHook(16), rec, apps, opts...), rec
}

func press(key string) Event   { return KeyEvent(key, true) }
func release(key string) Event { return KeyEvent(key, false) }

func repeat(key string) Event {
	ev := KeyEvent(key, true)
	ev.Repeat = true
	return ev
}

func TestPumpSequences(t *testing.T) {
	tests := []struct {
		name   string
		events []Event
		want   []string
	}{
		{
			name:   "inactive passes through",
			events: []Event{press("J"), release("J")},
			want:   []string{"forward J down", "forward J up"},
		},
		{
			name:   "layer remaps",
			events: []Event{press(CapsLockKey), press("J"), release("J"), release(CapsLockKey)},
			want:   []string{"emit LEFT down", "emit LEFT up", "release-all"},
		},
		{
			name: "modifier selects mapping",
			events: []Event{
				press(CapsLockKey), press("D"), press("J"), release("J"), release("D"), release(CapsLockKey),
			},
			want: []string{"emit HOME down", "emit HOME up", "release-all"},
		},
		{
			name:   "unmapped key swallowed",
			events: []Event{press(CapsLockKey), press("X"), release("X"), release(CapsLockKey)},
			want:   []string{"release-all"},
		},
		{
			name:   "key held across layer start",
			events: []Event{press("J"), press(CapsLockKey), release("J"), release(CapsLockKey)},
			want:   []string{"forward J down", "forward J up", "release-all"},
		},
		{
			name:   "key held across layer end",
			events: []Event{press(CapsLockKey), press("J"), release(CapsLockKey), release("J")},
			want:   []string{"emit LEFT down", "release-all"},
		},
		{
			name:   "modifier pressed while key held",
			events: []Event{press(CapsLockKey), press("J"), press("D"), release("J"), release("D"), release(CapsLockKey)},
			want:   []string{"emit LEFT down", "emit LEFT up", "release-all"},
		},
		{
			name:   "autorepeat keeps the pressed action",
			events: []Event{press(CapsLockKey), press("J"), press("D"), repeat("J"), release("J")},
			want:   []string{"emit LEFT down", "emit LEFT down", "emit LEFT up"},
		},
		{
			name:   "autorepeat after layer end dropped",
			events: []Event{press(CapsLockKey), press("J"), release(CapsLockKey), repeat("J"), repeat("J"), release("J")},
			want:   []string{"emit LEFT down", "release-all"},
		},
		{
			name: "autorepeat of a forwarded key",
			events: []Event{
				press("A"), press(CapsLockKey), {Key: "A", Code: KEY_A, Pressed: true, Repeat: true}, release("A"),
			},
			want: []string{"forward A down", "forward A down", "forward A up"},
		},
		{
			name:   "synthetic events dropped",
			events: []Event{{Key: "J", Code: KEY_J, Pressed: true, Synthetic: true}},
			want:   nil,
		},
		{
			name: "capslock never forwarded",
			events: []Event{
				press(CapsLockKey), {Key: CapsLockKey, Code: KEY_CAPSLOCK, Pressed: true, Repeat: true}, release(CapsLockKey),
			},
			want: []string{"release-all"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, rec := newTestPump(t, mapping.DefaultTable(), mapping.DefaultRegistry(), nil)
			for _, ev := range tt.events {
				p.handle(ev)
			}
			assert.Equal(t, tt.want, rec.Records())
		})
	}
}

func TestPumpAppSpecific(t *testing.T) {
	table := mapping.Table{
		"*":      {{Source: "K", Target: "DOWN"}},
		"CHROME": {{Source: "K", Target: "CTRL+TAB"}},
	}
	for app, want := range map[string]string{"chrome": "emit CTRL+TAB down", "firefox": "emit DOWN down"} {
		p, rec := newTestPump(t, table, nil, StaticApp(app))
		p.handle(press(CapsLockKey))
		p.handle(press("K"))
		require.NotEmpty(t, rec.Records(), app)
		assert.Equal(t, want, rec.Records()[0], app)
	}
}

func TestPumpReleaseFollowsPress(t *testing.T) {
	table := mapping.Table{"*": {{Source: "J", Target: "LEFT", RequiredMods: []string{"D"}}}}

	t.Run("release resolves to nothing", func(t *testing.T) {
		p, rec := newTestPump(t, table, mapping.NewRegistry("D"), nil)
		for _, ev := range []Event{press(CapsLockKey), press("D"), press("J"), release("D"), release("J")} {
			p.handle(ev)
		}
		assert.Equal(t, []string{"emit LEFT down", "emit LEFT up"}, rec.Records())
	})

	t.Run("press resolved to nothing", func(t *testing.T) {
		p, rec := newTestPump(t, table, mapping.NewRegistry("D"), nil)
		for _, ev := range []Event{press(CapsLockKey), press("J"), press("D"), release("J")} {
			p.handle(ev)
		}
		assert.Empty(t, rec.Records())
	})
}

type emitterOutput struct{ *Emitter }

func (emitterOutput) Close() error { return nil }

func TestPumpEmitterLeavesNothingHeld(t *testing.T) {
	w := &recordingWriter{}
	em := NewEmitter(w, nil)
	ctrl := layer.New(mapping.NewEngine(mapping.BuildIndex(mapping.DefaultTable(), mapping.DefaultRegistry())))
	p := NewPump(ctrl, NewSimulatedHook(4), emitterOutput{em}, nil)

	for _, ev := range []Event{press(CapsLockKey), press("J"), press("D"), repeat("J"), release("J")} {
		p.handle(ev)
	}
	assert.Equal(t, []string{"LEFT 1", "SYN", "LEFT 2", "SYN", "LEFT 0", "SYN"}, w.take())
	assert.Empty(t, em.Active())
}

func TestPumpCapsLockDedup(t *testing.T) {
	p, rec := newTestPump(t, mapping.DefaultTable(), mapping.DefaultRegistry(), nil)

	p.handle(Event{Key: CapsLockKey, Code: KEY_CAPSLOCK, Pressed: true, Source: SourceEventTap})
	p.handle(Event{Key: CapsLockKey, Code: KEY_CAPSLOCK, Pressed: true, Source: SourceHID})
	assert.Equal(t, uint64(1), p.CapsLock().Transitions())
	assert.Equal(t, SourceEventTap, p.CapsLock().LastSource())

	p.handle(Event{Key: CapsLockKey, Code: KEY_CAPSLOCK, Source: SourceHID})
	p.handle(Event{Key: CapsLockKey, Code: KEY_CAPSLOCK, Source: SourceEventTap})
	assert.Equal(t, uint64(2), p.CapsLock().Transitions())
	assert.Equal(t, []string{"release-all"}, rec.Records())
}

func TestPumpOverlayDoubleTap(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	at := func(ms int, pressed bool) Event {
		ev := KeyEvent(CapsLockKey, pressed)
		ev.Time = base.Add(time.Duration(ms) * time.Millisecond)
		return ev
	}

	m := overlay.New()
	p, _ := newTestPump(t, mapping.DefaultTable(), mapping.DefaultRegistry(), nil, WithOverlay(m, 300*time.Millisecond))

	p.handle(at(0, true))
	p.handle(at(80, false))
	assert.False(t, m.Visible())

	p.handle(at(200, true))
	assert.True(t, m.Visible())
	p.handle(at(260, false))

	p.handle(at(5000, true))
	assert.False(t, m.Visible(), "next press hides")
	p.handle(at(5050, false))

	p.handle(at(9000, true))
	p.handle(at(9050, false))
	p.handle(at(9800, true))
	assert.False(t, m.Visible(), "presses too far apart")
}

func TestPumpOverlayUsesClock(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := overlay.New()
	p, _ := newTestPump(t, mapping.DefaultTable(), mapping.DefaultRegistry(), nil,
		WithOverlay(m, 0),
		WithClock(func() time.Time { return now }))

	p.handle(press(CapsLockKey))
	p.handle(release(CapsLockKey))
	now = now.Add(DefaultDoubleTap / 2)
	p.handle(press(CapsLockKey))
	assert.True(t, m.Visible())
}

func TestPumpRun(t *testing.T) {
	hook := NewSimulatedHook(16)
	ctrl := layer.New(mapping.NewEngine(mapping.BuildIndex(mapping.DefaultTable(), mapping.DefaultRegistry())))
	rec := &Recorder{}
	p := NewPump(ctrl, hook, rec, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return hook.Press(CapsLockKey) }, time.Second, 5*time.Millisecond)
	assert.True(t, p.Running())
	require.True(t, hook.Press("L"))
	require.True(t, hook.Release("L"))

	require.Eventually(t, func() bool { return len(rec.Records()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"emit RIGHT down", "emit RIGHT up"}, rec.Records())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("pump did not stop")
	}
	assert.False(t, ctrl.Active(), "layer dropped on shutdown")
	assert.False(t, p.Running())
	assert.Equal(t, "release-all", rec.Records()[2])
	assert.False(t, hook.Press("J"), "hook stopped")
}

func TestPumpRunHookClosed(t *testing.T) {
	hook := NewSimulatedHook(4)
	p, _ := newTestPump(t, mapping.DefaultTable(), mapping.DefaultRegistry(), nil)
	p.hook = hook

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()
	require.Eventually(t, func() bool { return hook.Press("A") }, time.Second, 5*time.Millisecond)
	require.NoError(t, hook.Stop())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("pump did not stop")
	}
}

func TestPumpRunStartError(t *testing.T) {
	hook := NewSimulatedHook(1)
	require.NoError(t, hook.Start(context.Background()))
	p, _ := newTestPump(t, mapping.DefaultTable(), mapping.DefaultRegistry(), nil)
	p.hook = hook

	err := p.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestPumpRunRecoversPanic(t *testing.T) {
	hook := NewSimulatedHook(4)
	ctrl := layer.New(mapping.NewEngine(mapping.BuildIndex(mapping.DefaultTable(), mapping.DefaultRegistry())))
	panicked := false
	rec := &Recorder{}
	rec.OnRecord = func(s string) {
		if !panicked {
			panicked = true
			panic("output exploded")
		}
	}
	var handled any
	p := NewPump(ctrl, hook, rec, nil, WithPanicHandler(func(v any) { handled = v }))

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()
	require.Eventually(t, func() bool { return hook.Press(CapsLockKey) }, time.Second, 5*time.Millisecond)
	require.True(t, hook.Press("J"))

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "output exploded")
	case <-time.After(time.Second):
		t.Fatal("pump did not stop")
	}
	assert.Equal(t, "output exploded", handled)
	assert.False(t, ctrl.Active())
	assert.Contains(t, rec.Records(), "release-all")
}
