package swap

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"swapd/pkg/types"
)

func TestMonitorSetAddIsExclusive(t *testing.T) {
	m := newMonitorSet()

	stop, ok := m.add("s1")
	assert.True(t, ok)
	assert.NotNil(t, stop)
	assert.True(t, m.active("s1"))

	_, ok = m.add("s1")
	assert.False(t, ok)
}

func TestMonitorSetStop(t *testing.T) {
	m := newMonitorSet()
	stop, _ := m.add("s1")

	m.stop("s1")
	assert.False(t, m.active("s1"))
	select {
	case <-stop:
	default:
		t.Fatal("stop channel was not closed")
	}

	// Stopping an unknown id is a no-op.
	m.stop("s1")
	m.stop("never-existed")
}

func TestMonitorSetStopAll(t *testing.T) {
	m := newMonitorSet()
	m.add("s1")
	m.add("s2")

	m.stopAll()
	assert.False(t, m.active("s1"))
	assert.False(t, m.active("s2"))
}

func TestMapBridgeStatus(t *testing.T) {
	cases := map[types.BridgeStatus]types.SwapStatus{
		types.BridgePending:    types.StatusSubmitted,
		types.BridgeProcessing: types.StatusSubmitted,
		types.BridgeBridging:   types.StatusBridging,
		types.BridgeCompleted:  types.StatusCompleted,
		types.BridgeFailed:     types.StatusFailed,
		types.BridgeRefunded:   types.StatusFailed,
	}
	for in, want := range cases {
		assert.Equal(t, want, mapBridgeStatus(in), "status %s", in)
	}
}
