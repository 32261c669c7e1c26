package platform

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capsunlocked/internal/action"
)

type recordingWriter struct {
	log []string
	err error
}

func (w *recordingWriter) WriteKey(code uint16, value int32) error {
	if w.err != nil {
		return w.err
	}
	w.log = append(w.log, fmt.Sprintf("%s %d", KeyName(code), value))
	return nil
}

func (w *recordingWriter) Sync() error {
	w.log = append(w.log, "SYN")
	return nil
}

func (w *recordingWriter) take() []string {
	out := w.log
	w.log = nil
	return out
}

func TestEmitterPlaysActions(t *testing.T) {
	tests := []struct {
		name   string
		action string
		down   []string
		up     []string
	}{
		{
			name:   "single key",
			action: "LEFT",
			down:   []string{"LEFT 1", "SYN"},
			up:     []string{"LEFT 0", "SYN"},
		},
		{
			name:   "chord",
			action: "CTRL+TAB",
			down:   []string{"CTRL 1", "TAB 1", "SYN"},
			up:     []string{"TAB 0", "CTRL 0", "SYN"},
		},
		{
			name:   "held modifier",
			action: "SHIFT! LEFT",
			down:   []string{"SHIFT 1", "LEFT 1", "SYN"},
			up:     []string{"LEFT 0", "SHIFT 0", "SYN"},
		},
		{
			name:   "sequence",
			action: "HOME SHIFT+END",
			down:   []string{"HOME 1", "HOME 0", "SYN", "SHIFT 1", "END 1", "SYN"},
			up:     []string{"END 0", "SHIFT 0", "SYN"},
		},
		{
			name:   "hold only",
			action: "CTRL!",
			down:   []string{"CTRL 1", "SYN"},
			up:     []string{"CTRL 0", "SYN"},
		},
		{
			name:   "hex code",
			action: "0x1d0",
			down:   []string{"0X1D0 1", "SYN"},
			up:     []string{"0X1D0 0", "SYN"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &recordingWriter{}
			e := NewEmitter(w, nil)

			require.NoError(t, e.Emit(tt.action, true))
			assert.Equal(t, tt.down, w.take())
			assert.Equal(t, []string{tt.action}, e.Active())

			require.NoError(t, e.Emit(tt.action, false))
			assert.Equal(t, tt.up, w.take())
			assert.Empty(t, e.Active())
		})
	}
}

func TestEmitterRepeat(t *testing.T) {
	w := &recordingWriter{}
	e := NewEmitter(w, nil)

	require.NoError(t, e.Emit("LEFT", true))
	w.take()
	require.NoError(t, e.Emit("LEFT", true))
	assert.Equal(t, []string{"LEFT 2", "SYN"}, w.take())

	require.NoError(t, e.Emit("CTRL!", true))
	w.take()
	require.NoError(t, e.Emit("CTRL!", true))
	assert.Empty(t, w.take())
}

func TestEmitterSharedKeys(t *testing.T) {
	w := &recordingWriter{}
	e := NewEmitter(w, nil)

	require.NoError(t, e.Emit("SHIFT! LEFT", true))
	w.take()
	require.NoError(t, e.Emit("SHIFT+HOME", true))
	assert.Equal(t, []string{"HOME 1", "SYN"}, w.take())

	require.NoError(t, e.Emit("SHIFT! LEFT", false))
	assert.Equal(t, []string{"LEFT 0", "SYN"}, w.take())

	require.NoError(t, e.Emit("SHIFT+HOME", false))
	assert.Equal(t, []string{"HOME 0", "SHIFT 0", "SYN"}, w.take())
}

func TestEmitterReleaseAll(t *testing.T) {
	w := &recordingWriter{}
	e := NewEmitter(w, nil)

	require.NoError(t, e.Emit("LEFT", true))
	require.NoError(t, e.Emit("CTRL+TAB", true))
	w.take()

	require.NoError(t, e.ReleaseAll())
	assert.Equal(t, []string{"TAB 0", "CTRL 0", "SYN", "LEFT 0", "SYN"}, w.take())
	assert.Empty(t, e.Active())

	require.NoError(t, e.ReleaseAll())
	assert.Empty(t, w.take())
}

func TestEmitterErrors(t *testing.T) {
	w := &recordingWriter{}
	e := NewEmitter(w, nil)

	err := e.Emit("NOSUCHKEY", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOSUCHKEY")

	assert.ErrorIs(t, e.Emit("  ", true), action.ErrEmptyAction)
	assert.NoError(t, e.Emit("LEFT", false), "release of an action that never went down")
	assert.Empty(t, w.take())

	w.err = errors.New("device gone")
	assert.ErrorIs(t, e.Emit("LEFT", true), w.err)
	assert.Empty(t, e.Active())
}

func TestEmitterForward(t *testing.T) {
	w := &recordingWriter{}
	e := NewEmitter(w, nil)

	require.NoError(t, e.Forward(Event{Key: "A", Code: KEY_A, Pressed: true}))
	require.NoError(t, e.Forward(Event{Key: "A", Code: KEY_A, Pressed: true, Repeat: true}))
	require.NoError(t, e.Forward(Event{Key: "A", Code: KEY_A}))
	assert.Equal(t, []string{"A 1", "SYN", "A 2", "SYN", "A 0", "SYN"}, w.take())
}
