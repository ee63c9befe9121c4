// Package driver is the screen-level entry point of the radeon kernel modesetting
// driver. A Screen is the explicit context for one adapter instance: the display
// server host calls its lifecycle methods (PreInit, ScreenInit, EnterVT, LeaveVT,
// SwitchMode, AdjustFrame, CloseScreen, FreeScreen) and the hooks it installs through
// Host.Intercept.
package driver

import (
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/radeon-kms/adapter/accel"
	"github.com/radeon-kms/adapter/bo"
	"github.com/radeon-kms/adapter/budget"
	"github.com/radeon-kms/adapter/config"
	"github.com/radeon-kms/adapter/cs"
	"github.com/radeon-kms/adapter/gpustate"
	"github.com/radeon-kms/adapter/internal/cleanup"
	"github.com/radeon-kms/adapter/internal/metrics"
	"github.com/radeon-kms/adapter/internal/utils"
	"github.com/radeon-kms/adapter/kms"
	"github.com/radeon-kms/adapter/ownership"
	"golang.org/x/exp/slog"
)

type stage int

const (
	stageNew stage = iota
	stagePreInit
	stageScreen
	stageFailed
)

var stageMapping = make(map[stage]string)

func init() {
	stageMapping[stageNew] = "New"
	stageMapping[stagePreInit] = "PreInit"
	stageMapping[stageScreen] = "Screen"
	stageMapping[stageFailed] = "Failed"
}

func (s stage) String() string {
	return stageMapping[s]
}

// OutputRequest is one CRTC the host wants driven
type OutputRequest struct {
	CRTC       uint32
	Connectors []uint32
	// Mode is the initial mode, or nil for the first entry of PreInitRequest.Modes
	Mode *kms.Mode
}

// PreInitRequest is what the host has learned about the adapter before the driver
// touches it
type PreInitRequest struct {
	// DeviceID is the PCI device id found during enumeration
	DeviceID uint16
	// Width and Height are the virtual screen size in pixels
	Width        int
	Height       int
	BitsPerPixel int
	Depth        int
	// Modes are the validated display modes. At least one is required.
	Modes   []kms.Mode
	Outputs []OutputRequest
}

// Screen is one driver instance bound to one adapter
type Screen struct {
	logger  *slog.Logger
	host    Host
	opener  kms.Opener
	chips   ChipTable
	options config.Options

	mutex   utils.OptionalMutex
	stage   stage
	request PreInitRequest

	// Created by PreInit
	device  kms.Device
	version kms.Version
	chip    ChipInfo
	memory  kms.MemoryInfo
	preinit cleanup.Cleanup

	// Created by ScreenInit
	bus         *gpustate.Bus
	metrics     *metrics.Recorder
	manager     *bo.Manager
	plan        budget.MemoryBudget
	front       *bo.Object
	framebuffer kms.FramebufferID
	cursors     []*bo.Object
	channel     *cs.Channel
	accelState  *accel.State
	accelOn     bool
	machine     *ownership.StateMachine
	offscreen   *swiss.Map[kms.BufferHandle, *bo.Object]
	screen      cleanup.Cleanup
}

// New creates a Screen. No kernel resources are touched until PreInit.
func New(logger *slog.Logger, host Host, opener kms.Opener, chips ChipTable, options config.Options) (*Screen, error) {
	options.Normalize()
	if err := options.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Screen{
		logger:  logger,
		host:    host,
		opener:  opener,
		chips:   chips,
		options: options,
		mutex:   utils.NewOptionalMutex(options.ExternallySynchronized),
		bus:     &gpustate.Bus{},
		metrics: metrics.New(),
	}, nil
}

func (s *Screen) Options() config.Options {
	return s.options
}

// Chip returns the chip identified during PreInit
func (s *Screen) Chip() ChipInfo {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.chip
}

// Version returns the kernel driver version negotiated during PreInit
func (s *Screen) Version() kms.Version {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.version
}

// Budget returns the memory partition of the current screen generation
func (s *Screen) Budget() budget.MemoryBudget {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.plan
}

// EmitLimit is the command channel's VRAM ceiling, for the rendering layer
func (s *Screen) EmitLimit() int {
	return s.Budget().EmitLimit
}

// Residual is the VRAM left for the rendering layer's pixmap pool
func (s *Screen) Residual() int {
	return s.Budget().Residual
}

// Channel returns the command channel, or nil outside ScreenInit..CloseScreen
func (s *Screen) Channel() *cs.Channel {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.channel
}

// AccelState returns the state shared with the rendering layer
func (s *Screen) AccelState() *accel.State {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.accelState
}

// AccelEnabled reports whether the rendering layer attached successfully
func (s *Screen) AccelEnabled() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.accelOn
}

// Bus returns the GPU-state invalidation bus the rendering layer subscribes to
func (s *Screen) Bus() *gpustate.Bus {
	return s.bus
}

// Ownership returns the display ownership state
func (s *Screen) Ownership() ownership.State {
	s.mutex.Lock()
	machine := s.machine
	s.mutex.Unlock()

	if machine == nil {
		return ownership.Unowned
	}
	return machine.State()
}

// Epoch returns the current output configuration
func (s *Screen) Epoch() ownership.Epoch {
	s.mutex.Lock()
	machine := s.machine
	s.mutex.Unlock()

	if machine == nil {
		return ownership.Epoch{}
	}
	return machine.Epoch()
}

// LiveBuffers returns the number of buffer objects this screen holds
func (s *Screen) LiveBuffers() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.manager == nil {
		return 0
	}
	return s.manager.LiveCount()
}

// Metrics returns the registry holding this screen's collectors
func (s *Screen) Metrics() *prometheus.Registry {
	return s.metrics.Registry()
}

// BuildStatsString describes the chip, the memory plan, ownership and every live
// buffer object as JSON
func (s *Screen) BuildStatsString() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	w := jwriter.NewWriter()
	obj := w.Object()

	obj.Name("Stage").String(s.stage.String())
	if s.stage >= stagePreInit && s.stage != stageFailed {
		chip := obj.Name("Chip").Object()
		chip.Name("DeviceID").Int(int(s.chip.DeviceID))
		chip.Name("Name").String(s.chip.Name)
		chip.Name("Family").String(s.chip.Family.String())
		chip.Name("Mobility").Bool(s.chip.Mobility)
		chip.Name("IGP").Bool(s.chip.IGP)
		chip.End()

		mem := obj.Name("Memory").Object()
		mem.Name("VRAMSize").Int(s.memory.VRAMSize)
		mem.Name("VRAMVisible").Int(s.memory.VRAMVisible)
		mem.Name("GARTSize").Int(s.memory.GARTSize)
		mem.End()
	}

	if s.stage == stageScreen {
		plan := obj.Name("Budget").Object()
		s.plan.PrintParameters(&plan)
		plan.End()

		obj.Name("Ownership").String(s.machine.State().String())
		obj.Name("Accel").Bool(s.accelOn)
		obj.Name("PendingDwords").Int(s.channel.Pending())

		buffers := obj.Name("Buffers").Object()
		s.manager.PrintDetailedMap(&buffers)
		buffers.End()
	}

	obj.End()
	return string(w.Bytes())
}
