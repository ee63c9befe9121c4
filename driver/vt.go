package driver

import (
	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/radeon-kms/adapter/bo"
	"github.com/radeon-kms/adapter/cs"
	"github.com/radeon-kms/adapter/gpustate"
	"github.com/radeon-kms/adapter/kms"
	"github.com/radeon-kms/adapter/ownership"
	"golang.org/x/exp/slog"
)

var errNoScreen = errors.New("screen is not initialized")

// running returns the ownership machine and channel of an initialized screen
func (s *Screen) running() (*ownership.StateMachine, *cs.Channel, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.stage != stageScreen {
		return nil, nil, errors.Wrapf(errNoScreen, "stage %s", s.stage)
	}
	return s.machine, s.channel, nil
}

// EnterVT reacquires display ownership and reapplies the current outputs. A refusal is
// returned marked kms.ErrNotMaster but leaves the screen running without display
// output until a later EnterVT succeeds.
func (s *Screen) EnterVT() error {
	s.logger.Debug("Screen::EnterVT")

	machine, _, err := s.running()
	if err != nil {
		return err
	}

	if err := machine.Acquire(); err != nil {
		s.logger.Error("failed to reacquire display ownership", slog.Any("error", err))
		return err
	}
	return nil
}

// LeaveVT gives up display ownership. It always completes.
func (s *Screen) LeaveVT() {
	s.logger.Debug("Screen::LeaveVT")

	machine, _, err := s.running()
	if err != nil {
		s.logger.Warn("LeaveVT on a screen that is not running", slog.Any("error", err))
		return
	}

	machine.Release()
}

// SwitchMode sets mode on every active output. The virtual size and the memory plan
// stay as they are.
func (s *Screen) SwitchMode(mode kms.Mode) error {
	s.logger.Debug("Screen::SwitchMode", slog.String("mode", mode.Name))

	machine, _, err := s.running()
	if err != nil {
		return err
	}
	if int(mode.HDisplay) > s.request.Width || int(mode.VDisplay) > s.request.Height {
		return errors.Newf("mode %dx%d does not fit the %dx%d screen",
			mode.HDisplay, mode.VDisplay, s.request.Width, s.request.Height)
	}
	return machine.SwitchMode(mode)
}

// AdjustFrame moves the scanout origin of every active output to x, y
func (s *Screen) AdjustFrame(x, y int) error {
	s.logger.Debug("Screen::AdjustFrame", slog.Int("x", x), slog.Int("y", y))

	machine, _, err := s.running()
	if err != nil {
		return err
	}
	return machine.AdjustFrame(x, y)
}

// SaveScreen blanks or unblanks every output. Nothing reaches the hardware while
// ownership is elsewhere.
func (s *Screen) SaveScreen(blank bool) error {
	s.logger.Debug("Screen::SaveScreen", slog.Bool("blank", blank))

	machine, _, err := s.running()
	if err != nil {
		return err
	}
	if machine.State() != ownership.Owned {
		return nil
	}
	return machine.Blank(blank)
}

// BlockHandler runs once per iteration of the host's idle loop. After the host's own
// handler it marks GPU state unknown and flushes the command channel, whether or not
// anything is pending. Flush failures are logged.
func (s *Screen) BlockHandler(next func()) {
	if next != nil {
		next()
	}

	_, channel, err := s.running()
	if err != nil {
		return
	}

	s.bus.Publish(gpustate.ReasonIdle)
	if err := channel.Flush(); err != nil {
		s.logger.Error("idle flush failed", slog.Any("error", err))
	}
}

// CreateScreenResources runs the host's hook and then checks that the front buffer
// can back the screen pixmap
func (s *Screen) CreateScreenResources(next func() error) error {
	s.logger.Debug("Screen::CreateScreenResources")

	if next != nil {
		if err := next(); err != nil {
			return err
		}
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.stage != stageScreen {
		return errors.Wrapf(errNoScreen, "stage %s", s.stage)
	}
	if s.front.MappedData() == nil {
		return errors.New("front buffer is not mapped")
	}
	return nil
}

// FrontBuffer returns the scanout buffer object the host renders the screen into
func (s *Screen) FrontBuffer() *bo.Object {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.front
}

// CloseScreen tears down everything ScreenInit created, then runs the host's hook.
// The device stays open so ScreenInit can run again.
func (s *Screen) CloseScreen(next func() error) error {
	s.logger.Debug("Screen::CloseScreen")

	var result *multierror.Error

	s.mutex.Lock()
	if s.stage == stageScreen {
		if err := s.screen.Clean(); err != nil {
			s.logger.Error("screen teardown was incomplete", slog.Any("error", err))
			result = multierror.Append(result, err)
		}
		s.resetScreen()
		s.stage = stagePreInit
	}
	s.mutex.Unlock()

	if next != nil {
		if err := next(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// FreeScreen closes the screen if necessary and then the device. The Screen can run
// PreInit again afterwards.
func (s *Screen) FreeScreen() error {
	s.logger.Debug("Screen::FreeScreen")

	var result *multierror.Error
	if err := s.CloseScreen(nil); err != nil {
		result = multierror.Append(result, err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.preinit.Clean(); err != nil {
		s.logger.Error("device teardown was incomplete", slog.Any("error", err))
		result = multierror.Append(result, err)
	}
	s.device = nil
	s.stage = stageNew
	return result.ErrorOrNil()
}

// AllocateOffscreen allocates size bytes of VRAM for the rendering layer, charged
// against the residual the memory plan left after the framebuffer and cursors.
// Exceeding it returns an error marked kms.ErrOutOfMemory and touches no existing
// buffer.
func (s *Screen) AllocateOffscreen(size int) (*bo.Object, error) {
	s.logger.Debug("Screen::AllocateOffscreen", slog.Int("size", size))

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.stage != stageScreen {
		return nil, errors.Wrapf(errNoScreen, "stage %s", s.stage)
	}

	obj, err := s.manager.Allocate(kms.DomainVRAM, size, 0, bo.AllocateWithinBudget)
	if err != nil {
		return nil, err
	}
	obj.SetName("offscreen")
	s.offscreen.Put(obj.Handle(), obj)
	return obj, nil
}

// ReleaseOffscreen unmaps and releases an object from AllocateOffscreen
func (s *Screen) ReleaseOffscreen(obj *bo.Object) error {
	if obj == nil {
		return nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.offscreen == nil {
		return nil
	}
	if _, ok := s.offscreen.Get(obj.Handle()); !ok {
		return errors.Newf("buffer object %d was not allocated offscreen", obj.Handle())
	}
	if err := s.releaseObject(obj); err != nil {
		return err
	}
	s.offscreen.Delete(obj.Handle())
	return nil
}

func (s *Screen) releaseOffscreen() error {
	var objects []*bo.Object
	s.offscreen.Iter(func(_ kms.BufferHandle, obj *bo.Object) bool {
		objects = append(objects, obj)
		return false
	})

	var result *multierror.Error
	for _, obj := range objects {
		if err := s.releaseObject(obj); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		s.offscreen.Delete(obj.Handle())
	}
	return result.ErrorOrNil()
}
