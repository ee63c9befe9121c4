package driver

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/radeon-kms/adapter/accel"
	"github.com/radeon-kms/adapter/bo"
	"github.com/radeon-kms/adapter/budget"
	"github.com/radeon-kms/adapter/cs"
	"github.com/radeon-kms/adapter/internal/cleanup"
	"github.com/radeon-kms/adapter/kms"
	"github.com/radeon-kms/adapter/ownership"
	"golang.org/x/exp/slog"
)

func fatal(err error, stage string) error {
	return errors.Mark(errors.Wrap(err, stage), kms.ErrFatalInit)
}

// Initialize runs PreInit and ScreenInit as one unit
func (s *Screen) Initialize(ctx context.Context, request PreInitRequest) error {
	if err := s.PreInit(ctx, request); err != nil {
		return err
	}
	return s.ScreenInit(ctx)
}

// PreInit opens the device, identifies the chip and reads the memory sizes. Any
// failure is marked kms.ErrFatalInit and leaves nothing open.
func (s *Screen) PreInit(ctx context.Context, request PreInitRequest) (err error) {
	s.logger.Debug("Screen::PreInit", slog.Int("deviceID", int(request.DeviceID)))

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.stage != stageNew {
		return errors.Newf("PreInit called in stage %s", s.stage)
	}

	cu := cleanup.Make(nil)
	defer func() {
		if err != nil {
			s.rollback(&cu, "PreInit")
			s.device = nil
		}
	}()

	if err := validateRequest(request); err != nil {
		return fatal(err, "validating screen request")
	}

	device, err := s.opener.Open(ctx, s.options.DevicePath)
	if err != nil {
		return fatal(err, "opening device")
	}
	s.device = device
	cu.AddNamed("close device", device.Close)

	s.version, err = device.Version()
	if err != nil {
		return fatal(err, "querying kernel driver version")
	}
	s.logger.Info("kernel driver", slog.String("name", s.version.Name),
		slog.Int("major", s.version.Major), slog.Int("minor", s.version.Minor), slog.Int("patch", s.version.Patch))

	chip, ok := s.chips.Lookup(request.DeviceID)
	if !ok {
		return fatal(errors.Newf("ChipID 0x%04x is not recognized", request.DeviceID), "identifying chip")
	}
	s.chip = chip
	s.logger.Info("chipset", slog.String("name", chip.Name), slog.Int("chipID", int(chip.DeviceID)),
		slog.String("family", chip.Family.String()))

	s.memory, err = device.MemoryInfo()
	if err != nil {
		return fatal(err, "querying memory sizes")
	}
	s.logger.Info("mem size init", slog.Int("gart", s.memory.GARTSize),
		slog.Int("vram", s.memory.VRAMSize), slog.Int("visible", s.memory.VRAMVisible))

	s.request = request
	s.preinit = cu.Release()
	s.stage = stagePreInit
	return nil
}

func validateRequest(request PreInitRequest) error {
	if len(request.Modes) == 0 {
		return errors.New("no modes")
	}
	if len(request.Outputs) == 0 {
		return errors.New("no outputs")
	}
	if request.Width <= 0 || request.Height <= 0 {
		return errors.Newf("invalid virtual size %dx%d", request.Width, request.Height)
	}
	if request.Depth <= 0 || request.Depth > request.BitsPerPixel {
		return errors.Newf("depth %d does not fit in %d bits per pixel", request.Depth, request.BitsPerPixel)
	}
	return nil
}

// ScreenInit plans video memory, allocates the framebuffer and cursors, creates the
// command channel, acquires display ownership and applies the initial modes.
//
// Any failure rolls back every resource created so far, including the device opened
// by PreInit, and returns an error marked kms.ErrFatalInit. Afterwards no buffer object
// is live and the device is closed.
func (s *Screen) ScreenInit(ctx context.Context) (err error) {
	s.logger.Debug("Screen::ScreenInit")

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.stage != stagePreInit {
		return errors.Newf("ScreenInit called in stage %s", s.stage)
	}

	cu := cleanup.Make(nil)
	defer func() {
		if err != nil {
			s.rollback(&cu, "ScreenInit")
			s.rollback(&s.preinit, "PreInit")
			s.resetScreen()
			s.device = nil
			s.stage = stageFailed
		}
	}()

	if err := ctx.Err(); err != nil {
		return fatal(err, "starting screen initialization")
	}

	request := s.request
	s.plan, err = budget.Plan(s.memory.VRAMVisible, s.memory.GARTSize, budget.Geometry{
		Width:        request.Width,
		Height:       request.Height,
		BitsPerPixel: request.BitsPerPixel,
	}, len(request.Outputs), s.options.BudgetOptions())
	if err != nil {
		return fatal(err, "planning video memory")
	}
	s.metrics.SetBudget(s.plan.FramebufferSize, s.plan.CursorBytes(), s.plan.Residual, s.plan.EmitLimit)

	s.manager, err = bo.New(s.logger, s.device, bo.CreateOptions{
		ExternallySynchronized: s.options.ExternallySynchronized,
		PageSize:               s.options.PageSize,
		Metrics:                s.metrics,
	})
	if err != nil {
		return fatal(err, "creating buffer manager")
	}

	s.offscreen = swiss.NewMap[kms.BufferHandle, *bo.Object](16)
	cu.AddNamed("release offscreen buffers", s.releaseOffscreen)

	if err := s.allocateCursors(&cu); err != nil {
		return fatal(err, "allocating cursor buffers")
	}
	if err := s.allocateFront(&cu); err != nil {
		return fatal(err, "allocating front buffer")
	}
	s.logger.Info("front buffer size", slog.Int("KiB", s.front.Size()/1024))
	s.logger.Info("remaining VRAM size (used for pixmaps)", slog.Int("KiB", s.plan.Residual/1024))

	if err := s.manager.SetBudget(kms.DomainVRAM, s.plan.Residual); err != nil {
		return fatal(err, "installing offscreen budget")
	}

	s.channel, err = cs.New(s.logger, s.device, s.options.CommandBufferSize, cs.CreateOptions{
		ExternallySynchronized: s.options.ExternallySynchronized,
		Limits: map[kms.Domain]int{
			kms.DomainGTT:  s.plan.GTTLimit,
			kms.DomainVRAM: s.plan.EmitLimit,
		},
		Bus:     s.bus,
		Metrics: s.metrics,
	})
	if err != nil {
		return fatal(err, "creating command channel")
	}
	cu.AddNamed("close command channel", s.channel.Close)

	s.accelState = accel.New(s.logger, s.bus)
	s.accelState.Configure(accel.Pool{EmitLimit: s.plan.EmitLimit, Residual: s.plan.Residual})
	cu.AddNamed("detach acceleration state", func() error {
		s.accelState.Close()
		return nil
	})
	s.attachAcceleration(&cu)

	s.machine = ownership.New(s.logger, s.device, ownership.CreateOptions{
		ExternallySynchronized: s.options.ExternallySynchronized,
		Bus:                    s.bus,
		Metrics:                s.metrics,
	})
	if err := s.machine.SetEpoch(s.initialEpoch()); err != nil {
		return fatal(err, "recording initial modes")
	}
	// Registered first: a granted Acquire whose mode set fails still holds ownership
	cu.AddNamed("release display ownership", func() error {
		s.machine.Release()
		return nil
	})
	if err := s.machine.Acquire(); err != nil {
		return fatal(err, "acquiring display ownership")
	}

	if s.host != nil {
		remove := s.host.Intercept(s)
		cu.AddNamed("remove screen hooks", func() error {
			remove()
			return nil
		})
	}

	s.screen = cu.Release()
	s.stage = stageScreen
	s.logger.Debug("Screen::ScreenInit finished")
	return nil
}

func (s *Screen) allocateCursors(cu *cleanup.Cleanup) error {
	s.cursors = make([]*bo.Object, 0, len(s.request.Outputs))
	for i := range s.request.Outputs {
		cursor, err := s.manager.Allocate(kms.DomainVRAM, s.plan.CursorSize, 0, 0)
		if err != nil {
			return errors.Wrapf(err, "cursor %d", i)
		}
		cursor.SetName("cursor")
		s.cursors = append(s.cursors, cursor)
		cu.AddNamed("release cursor buffer", func() error {
			return s.releaseObject(cursor)
		})

		// The cursor stays usable by the kernel without a CPU mapping
		if _, err := s.manager.Map(cursor); err != nil {
			s.logger.Warn("failed to map cursor buffer memory", slog.Int("crtc", int(s.request.Outputs[i].CRTC)), slog.Any("error", err))
		}
	}
	return nil
}

func (s *Screen) allocateFront(cu *cleanup.Cleanup) error {
	front, err := s.manager.Allocate(kms.DomainVRAM, s.plan.FramebufferSize, 0, bo.AllocateMapped)
	if err != nil {
		return err
	}
	front.SetName("front")
	s.front = front
	cu.AddNamed("release front buffer", func() error {
		return s.releaseObject(front)
	})

	fb, err := s.device.AddFramebuffer(front.Handle(), s.request.Width, s.request.Height,
		s.plan.Stride, s.request.BitsPerPixel, s.request.Depth)
	if err != nil {
		return errors.Wrap(err, "registering scanout framebuffer")
	}
	s.framebuffer = fb
	cu.AddNamed("remove scanout framebuffer", func() error {
		return s.device.RemoveFramebuffer(fb)
	})
	return nil
}

// releaseObject drops every mapping reference and returns obj to the kernel
func (s *Screen) releaseObject(obj *bo.Object) error {
	for obj.MapReferences() > 0 {
		if err := s.manager.Unmap(obj); err != nil {
			return err
		}
	}
	return s.manager.Release(obj)
}

func (s *Screen) attachAcceleration(cu *cleanup.Cleanup) {
	s.accelOn = false
	if s.options.NoAccel || s.host == nil {
		s.logger.Info("acceleration disabled")
		return
	}

	// The host calls back into the screen while it is still locked
	s.mutex.Unlock()
	err := s.host.InitAcceleration(s)
	s.mutex.Lock()

	if err != nil {
		s.logger.Error("acceleration initialization failed", slog.Any("error", err))
		s.logger.Info("acceleration disabled")
		return
	}

	s.logger.Info("acceleration enabled")
	s.accelOn = true
	cu.AddNamed("detach rendering layer", func() error {
		s.mutex.Unlock()
		defer s.mutex.Lock()

		s.host.FiniAcceleration(s)
		return nil
	})
}

func (s *Screen) initialEpoch() ownership.Epoch {
	epoch := ownership.Epoch{
		Framebuffer:  s.framebuffer,
		CursorWidth:  s.options.CursorWidth,
		CursorHeight: s.options.CursorHeight,
	}

	for i, request := range s.request.Outputs {
		mode := request.Mode
		if mode == nil {
			mode = &s.request.Modes[0]
		}
		output := ownership.Output{
			CRTC:       request.CRTC,
			Connectors: request.Connectors,
			Mode:       mode,
		}
		if !s.options.SWCursor {
			output.Cursor = s.cursors[i].Handle()
		}
		epoch.Outputs = append(epoch.Outputs, output)
	}
	return epoch
}

func (s *Screen) rollback(cu *cleanup.Cleanup, stage string) {
	if cu.Len() == 0 {
		return
	}
	if err := cu.Clean(); err != nil {
		s.logger.Error("rollback was incomplete", slog.String("stage", stage), slog.Any("error", err))
	}
}

func (s *Screen) resetScreen() {
	s.manager = nil
	s.plan = budget.MemoryBudget{}
	s.front = nil
	s.framebuffer = 0
	s.cursors = nil
	s.channel = nil
	s.accelState = nil
	s.accelOn = false
	s.machine = nil
	s.offscreen = nil
}
