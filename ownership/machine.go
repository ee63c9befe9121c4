// Package ownership tracks whether this driver instance holds display ownership
// (kernel "master") and reapplies the output configuration every time it regains it.
//
// Mode-setting calls are only meaningful while Owned. Changes requested while
// Unowned are recorded and applied on the next Acquire.
package ownership

import (
	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/radeon-kms/adapter/gpustate"
	"github.com/radeon-kms/adapter/internal/metrics"
	"github.com/radeon-kms/adapter/internal/utils"
	"github.com/radeon-kms/adapter/kms"
	"golang.org/x/exp/slog"
)

type State int

const (
	Unowned State = iota
	Owned
)

var stateMapping = make(map[State]string)

func init() {
	stateMapping[Unowned] = "Unowned"
	stateMapping[Owned] = "Owned"
}

func (s State) String() string {
	return stateMapping[s]
}

// CreateOptions contains optional settings when creating a StateMachine
type CreateOptions struct {
	ExternallySynchronized bool
	// Bus receives ReasonOwnershipAcquired and ReasonOwnershipLost. May be nil.
	Bus     *gpustate.Bus
	Metrics *metrics.Recorder
}

// StateMachine moves between Unowned and Owned. Duplicate transitions are no-ops so
// that repeated or racing terminal-switch signals are harmless.
type StateMachine struct {
	logger     *slog.Logger
	controller kms.Controller
	bus        *gpustate.Bus
	metrics    *metrics.Recorder

	mutex   utils.OptionalMutex
	state   State
	epoch   Epoch
	blanked bool
	// stale is set while the hardware may not show epoch because the last apply failed
	stale bool
}

// New creates a StateMachine in the Unowned state with an empty epoch
func New(logger *slog.Logger, controller kms.Controller, options CreateOptions) *StateMachine {
	if logger == nil {
		logger = slog.Default()
	}

	return &StateMachine{
		logger:     logger,
		controller: controller,
		bus:        options.Bus,
		metrics:    options.Metrics,
		mutex:      utils.NewOptionalMutex(options.ExternallySynchronized),
	}
}

func (m *StateMachine) State() State {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.state
}

// Acquire requests display ownership and reapplies the current epoch, since the
// kernel may have reset the display hardware while another client held it.
//
// A refused request returns an error marked kms.ErrNotMaster and leaves the machine
// Unowned. If ownership is granted but the epoch cannot be reapplied the machine is
// Owned and the mode-set error is returned. Acquire while Owned is a no-op unless the
// last reapply failed, in which case the epoch is applied again.
func (m *StateMachine) Acquire() error {
	m.logger.Debug("StateMachine::Acquire")

	m.mutex.Lock()
	if m.state == Owned {
		if !m.stale || m.blanked {
			m.mutex.Unlock()
			return nil
		}

		err := m.apply()
		m.mutex.Unlock()

		m.metrics.Ownership("acquire", true, err)
		if err != nil {
			return errors.Wrap(err, "reapplying output configuration")
		}
		return nil
	}

	if err := m.controller.SetMaster(); err != nil {
		m.mutex.Unlock()
		err = errors.Mark(errors.Wrap(err, "acquiring display ownership"), kms.ErrNotMaster)
		m.metrics.Ownership("acquire", false, err)
		return err
	}

	m.state = Owned
	m.blanked = false
	err := m.apply()
	m.mutex.Unlock()

	m.bus.Publish(gpustate.ReasonOwnershipAcquired)
	m.metrics.Ownership("acquire", true, err)
	if err != nil {
		return errors.Wrap(err, "reapplying output configuration")
	}
	return nil
}

// Release gives up display ownership. It always completes: cursors are hidden and
// master dropped on a best-effort basis, failures are logged and never returned.
func (m *StateMachine) Release() {
	m.logger.Debug("StateMachine::Release")

	m.mutex.Lock()
	if m.state == Unowned {
		m.mutex.Unlock()
		return
	}

	var result *multierror.Error
	for _, output := range m.epoch.Outputs {
		if output.Cursor == 0 {
			continue
		}
		if err := m.controller.SetCursor(output.CRTC, 0, 0, 0); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "hiding cursor on crtc %d", output.CRTC))
		}
	}
	if err := m.controller.DropMaster(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "dropping display ownership"))
	}

	m.state = Unowned
	m.stale = false
	m.mutex.Unlock()

	err := result.ErrorOrNil()
	if err != nil {
		m.logger.Warn("display ownership release was incomplete", slog.Any("error", err))
	}

	m.bus.Publish(gpustate.ReasonOwnershipLost)
	m.metrics.Ownership("release", false, err)
}

// SetEpoch replaces the output configuration, applying it immediately when Owned
func (m *StateMachine) SetEpoch(epoch Epoch) error {
	m.logger.Debug("StateMachine::SetEpoch", slog.Int("outputs", len(epoch.Outputs)))

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.epoch = epoch.Copy()
	return m.applyIfOwned()
}

// Epoch returns a copy of the current output configuration
func (m *StateMachine) Epoch() Epoch {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.epoch.Copy()
}

// SwitchMode sets mode on every active output
func (m *StateMachine) SwitchMode(mode kms.Mode) error {
	m.logger.Debug("StateMachine::SwitchMode", slog.String("mode", mode.Name))

	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i := range m.epoch.Outputs {
		if m.epoch.Outputs[i].Mode != nil {
			modeCopy := mode
			m.epoch.Outputs[i].Mode = &modeCopy
		}
	}
	return m.applyIfOwned()
}

// AdjustFrame moves the scanout origin of every active output
func (m *StateMachine) AdjustFrame(x, y int) error {
	m.logger.Debug("StateMachine::AdjustFrame", slog.Int("x", x), slog.Int("y", y))

	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i := range m.epoch.Outputs {
		if m.epoch.Outputs[i].Mode != nil {
			m.epoch.Outputs[i].X = x
			m.epoch.Outputs[i].Y = y
		}
	}
	return m.applyIfOwned()
}

// Blank turns every CRTC off, or back on to the current epoch. It does nothing while
// Unowned. Acquire always leaves the outputs unblanked.
func (m *StateMachine) Blank(blank bool) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.state != Owned || m.blanked == blank {
		return nil
	}

	m.blanked = blank
	if !blank {
		return m.apply()
	}

	var result *multierror.Error
	for _, output := range m.epoch.Outputs {
		if err := m.controller.SetCRTC(output.CRTC, 0, 0, 0, nil, nil); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "blanking crtc %d", output.CRTC))
		}
	}
	return result.ErrorOrNil()
}

// Blanked reports whether Blank(true) is in effect
func (m *StateMachine) Blanked() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.blanked
}

func (m *StateMachine) applyIfOwned() error {
	if m.state != Owned || m.blanked {
		return nil
	}
	return m.apply()
}

func (m *StateMachine) apply() error {
	var result *multierror.Error
	for _, output := range m.epoch.Outputs {
		if output.Mode == nil {
			if err := m.controller.SetCRTC(output.CRTC, 0, 0, 0, nil, nil); err != nil {
				result = multierror.Append(result, errors.Wrapf(err, "disabling crtc %d", output.CRTC))
			}
			continue
		}

		err := m.controller.SetCRTC(output.CRTC, m.epoch.Framebuffer, output.X, output.Y, output.Connectors, output.Mode)
		if err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "setting mode %s on crtc %d", output.Mode.Name, output.CRTC))
			continue
		}

		if output.Cursor != 0 {
			err = m.controller.SetCursor(output.CRTC, output.Cursor, m.epoch.CursorWidth, m.epoch.CursorHeight)
			if err != nil {
				result = multierror.Append(result, errors.Wrapf(err, "binding cursor on crtc %d", output.CRTC))
			}
		}
	}

	err := result.ErrorOrNil()
	m.stale = err != nil
	return err
}
