package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapsLockTracker(t *testing.T) {
	var tr CapsLockTracker

	steps := []struct {
		src     Source
		pressed bool
		changed bool
	}{
		{SourceEventTap, true, true},
		{SourceHID, true, false},
		{SourceEventTap, true, false},
		{SourceHID, false, true},
		{SourceEventTap, false, false},
		{SourceEvdev, true, true},
	}
	for i, s := range steps {
		assert.Equal(t, s.changed, tr.Report(s.src, s.pressed), "step %d", i)
	}
	assert.True(t, tr.Pressed())
	assert.Equal(t, SourceEvdev, tr.LastSource())
	assert.Equal(t, uint64(3), tr.Transitions())

	tr.Reset()
	assert.False(t, tr.Pressed())
	assert.False(t, tr.Report(SourceHID, false))
	assert.True(t, tr.Report(SourceHID, true))
}

func TestSourceString(t *testing.T) {
	assert.Equal(t, "event-tap", SourceEventTap.String())
	assert.Equal(t, "hid", SourceHID.String())
	assert.Equal(t, "evdev", SourceEvdev.String())
	assert.Equal(t, "simulated", SourceSimulated.String())
	assert.Equal(t, "source(0)", SourceUnknown.String())
}
