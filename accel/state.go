// Package accel holds the state the driver shares with the accelerated rendering
// layer: which engine the GPU was last programmed for, whether 3D state has been
// initialized, and the memory figures the layer sizes its pixmap pool from.
//
// The rendering layer itself lives outside this module. State only learns about
// invalidations through gpustate events.
package accel

import (
	"sync"

	"github.com/radeon-kms/adapter/gpustate"
	"golang.org/x/exp/slog"
)

// EngineMode is the GPU engine the last emitted commands programmed
type EngineMode int

const (
	EngineUnknown EngineMode = iota
	Engine2D
	Engine3D
)

var engineModeMapping = make(map[EngineMode]string)

func init() {
	engineModeMapping[EngineUnknown] = "EngineUnknown"
	engineModeMapping[Engine2D] = "Engine2D"
	engineModeMapping[Engine3D] = "Engine3D"
}

func (m EngineMode) String() string {
	return engineModeMapping[m]
}

// Pool is what the rendering layer is allowed to use
type Pool struct {
	// EmitLimit is the command channel's VRAM ceiling
	EmitLimit int
	// Residual is the VRAM left after the framebuffer and cursors
	Residual int
}

// State tracks rendering-layer assumptions about GPU state
type State struct {
	logger *slog.Logger

	mutex         sync.Mutex
	engineMode    EngineMode
	inited3D      bool
	pool          Pool
	invalidations int

	unsubscribe func()
}

// New creates a State subscribed to bus
func New(logger *slog.Logger, bus *gpustate.Bus) *State {
	if logger == nil {
		logger = slog.Default()
	}

	s := &State{logger: logger}
	if bus != nil {
		s.unsubscribe = bus.Subscribe(s.invalidate)
	}
	return s
}

func (s *State) invalidate(reason gpustate.Reason) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.engineMode = EngineUnknown
	s.invalidations++

	// Another client may have programmed the 3D engine while ownership was elsewhere
	if reason == gpustate.ReasonOwnershipLost || reason == gpustate.ReasonOwnershipAcquired {
		s.inited3D = false
	}
}

// Configure installs the memory figures for a new mode-set epoch
func (s *State) Configure(pool Pool) {
	s.logger.Debug("State::Configure", slog.Int("emitLimit", pool.EmitLimit), slog.Int("residual", pool.Residual))

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.pool = pool
}

func (s *State) Pool() Pool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.pool
}

// Enter records that the caller is about to emit commands for mode and reports
// whether the engine has to be reprogrammed first
func (s *State) Enter(mode EngineMode) (reprogram bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	reprogram = s.engineMode != mode
	s.engineMode = mode
	return reprogram
}

func (s *State) EngineMode() EngineMode {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.engineMode
}

// Mark3DInitialized records that 3D state has been emitted since the last ownership change
func (s *State) Mark3DInitialized() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.inited3D = true
}

func (s *State) Inited3D() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.inited3D
}

// Invalidations returns how many invalidation events have been received
func (s *State) Invalidations() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.invalidations
}

// Close stops listening for invalidations
func (s *State) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}
