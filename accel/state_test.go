package accel

import (
	"testing"

	"github.com/radeon-kms/adapter/gpustate"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func TestFlushInvalidatesEngineMode(t *testing.T) {
	bus := &gpustate.Bus{}
	state := New(slog.Default(), bus)
	defer state.Close()

	require.True(t, state.Enter(Engine2D))
	require.False(t, state.Enter(Engine2D))
	state.Mark3DInitialized()

	bus.Publish(gpustate.ReasonFlush)
	require.Equal(t, EngineUnknown, state.EngineMode())
	require.True(t, state.Inited3D())
	require.True(t, state.Enter(Engine2D))
	require.Equal(t, 1, state.Invalidations())
}

func TestOwnershipChangeForgets3D(t *testing.T) {
	for _, reason := range []gpustate.Reason{gpustate.ReasonOwnershipLost, gpustate.ReasonOwnershipAcquired} {
		t.Run(reason.String(), func(t *testing.T) {
			bus := &gpustate.Bus{}
			state := New(slog.Default(), bus)
			defer state.Close()

			state.Enter(Engine3D)
			state.Mark3DInitialized()

			bus.Publish(reason)
			require.False(t, state.Inited3D())
			require.Equal(t, EngineUnknown, state.EngineMode())
		})
	}
}

func TestCloseUnsubscribes(t *testing.T) {
	bus := &gpustate.Bus{}
	state := New(slog.Default(), bus)
	state.Close()
	state.Close()

	state.Enter(Engine2D)
	bus.Publish(gpustate.ReasonIdle)
	require.Equal(t, Engine2D, state.EngineMode())
	require.Zero(t, state.Invalidations())
}

func TestConfigure(t *testing.T) {
	state := New(slog.Default(), nil)
	state.Configure(Pool{EmitLimit: 26409369, Residual: 29343744})
	require.Equal(t, Pool{EmitLimit: 26409369, Residual: 29343744}, state.Pool())
	require.Equal(t, "Engine3D", Engine3D.String())
}
