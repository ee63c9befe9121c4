package driver

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/launchdarkly/go-jsonstream/v3/jreader"
	"github.com/radeon-kms/adapter/accel"
	"github.com/radeon-kms/adapter/config"
	"github.com/radeon-kms/adapter/kms"
	"github.com/radeon-kms/adapter/kms/simkms"
	"github.com/radeon-kms/adapter/ownership"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

var mode1024 = kms.Mode{
	Name: "1024x768", Clock: 65000,
	HDisplay: 1024, HSyncStart: 1048, HSyncEnd: 1184, HTotal: 1344,
	VDisplay: 768, VSyncStart: 771, VSyncEnd: 777, VTotal: 806,
	VRefresh: 60,
}

var mode800 = kms.Mode{
	Name: "800x600", Clock: 40000,
	HDisplay: 800, HSyncStart: 840, HSyncEnd: 968, HTotal: 1056,
	VDisplay: 600, VSyncStart: 601, VSyncEnd: 605, VTotal: 628,
	VRefresh: 60,
}

var errInjected = errors.New("injected fault")

type fakeHost struct {
	interceptors []Interceptor
	removed      int

	initErr    error
	initCalls  int
	finiCalls  int
	emitLimits []int
}

func (h *fakeHost) Intercept(i Interceptor) func() {
	h.interceptors = append(h.interceptors, i)
	return func() {
		h.removed++
	}
}

func (h *fakeHost) InitAcceleration(screen *Screen) error {
	h.initCalls++
	h.emitLimits = append(h.emitLimits, screen.EmitLimit())
	return h.initErr
}

func (h *fakeHost) FiniAcceleration(screen *Screen) {
	h.finiCalls++
}

// 1024x1024 at 32 bits per pixel is a 4 MiB framebuffer
func screenRequest(deviceID uint16) PreInitRequest {
	return PreInitRequest{
		DeviceID:     deviceID,
		Width:        1024,
		Height:       1024,
		BitsPerPixel: 32,
		Depth:        24,
		Modes:        []kms.Mode{mode1024, mode800},
		Outputs:      []OutputRequest{{CRTC: 0, Connectors: []uint32{1}}},
	}
}

type screenSetup struct {
	device *simkms.Device
	host   *fakeHost
	screen *Screen
}

func newScreen(t *testing.T, info kms.MemoryInfo, options config.Options) screenSetup {
	device := simkms.New(info)
	host := &fakeHost{}

	screen, err := New(slog.Default(), host, device.Opener(), NewChipTable(KnownChips...), options)
	require.NoError(t, err)

	return screenSetup{device: device, host: host, screen: screen}
}

func readyScreen(t *testing.T) screenSetup {
	setup := newScreen(t, kms.MemoryInfo{VRAMSize: 32 << 20, GARTSize: 64 << 20}, config.Default())
	require.NoError(t, setup.screen.Initialize(context.Background(), screenRequest(0x5159)))
	return setup
}

func requireNothingLive(t *testing.T, setup screenSetup) {
	require.Equal(t, 0, setup.device.LiveBuffers())
	require.Equal(t, 0, setup.device.LiveFramebuffers())
	require.Equal(t, 0, setup.device.Used(kms.DomainVRAM))
	require.False(t, setup.device.IsMaster())
	require.Equal(t, 0, setup.screen.LiveBuffers())
	require.Equal(t, len(setup.host.interceptors), setup.host.removed)
}

func TestInitialize32MiB(t *testing.T) {
	setup := readyScreen(t)
	screen := setup.screen

	plan := screen.Budget()
	require.Equal(t, 4<<20, plan.FramebufferSize)
	require.Equal(t, 16<<10, plan.CursorSize)
	require.Equal(t, 4<<20+16<<10, plan.Reserved)
	require.Equal(t, 29343744, plan.Residual)
	require.Equal(t, 26409369, plan.EmitLimit)
	require.Equal(t, 29343744, screen.Residual())
	require.Equal(t, 26409369, screen.EmitLimit())

	limit, ok := screen.Channel().Limit(kms.DomainVRAM)
	require.True(t, ok)
	require.Equal(t, 26409369, limit)
	limit, ok = screen.Channel().Limit(kms.DomainGTT)
	require.True(t, ok)
	require.Equal(t, 64<<20, limit)

	require.Equal(t, "ATI Radeon VE/7000 QY (AGP/PCI)", screen.Chip().Name)
	require.Equal(t, "simkms", screen.Version().Name)

	require.Equal(t, ownership.Owned, screen.Ownership())
	require.True(t, setup.device.IsMaster())
	crtc, ok := setup.device.CRTC(0)
	require.True(t, ok)
	require.Equal(t, mode1024, *crtc.Mode)
	require.Equal(t, []uint32{1}, crtc.Connectors)
	cursor, ok := setup.device.Cursor(0)
	require.True(t, ok)
	require.Equal(t, 64, cursor.Width)

	require.Equal(t, 2, screen.LiveBuffers())
	require.Equal(t, 2, setup.device.LiveBuffers())
	require.Equal(t, 1, setup.device.LiveFramebuffers())
	require.Equal(t, plan.Reserved, setup.device.Used(kms.DomainVRAM))
	require.Len(t, screen.FrontBuffer().MappedData(), 4<<20)

	require.Len(t, setup.host.interceptors, 1)
	require.Equal(t, 1, setup.host.initCalls)
	require.Equal(t, []int{26409369}, setup.host.emitLimits)
	require.True(t, screen.AccelEnabled())
	require.Equal(t, accel.Pool{EmitLimit: 26409369, Residual: 29343744}, screen.AccelState().Pool())
}

func TestScreenInitRollback(t *testing.T) {
	testCases := map[string]struct {
		op    simkms.Op
		after int
	}{
		"Version":            {op: simkms.OpVersion},
		"MemoryInfo":         {op: simkms.OpMemoryInfo},
		"CursorAllocation":   {op: simkms.OpCreateBuffer},
		"FrontAllocation":    {op: simkms.OpCreateBuffer, after: 1},
		"FrontMap":           {op: simkms.OpMapBuffer, after: 1},
		"ScanoutFramebuffer": {op: simkms.OpAddFramebuffer},
		"Ownership":          {op: simkms.OpSetMaster},
		"ModeSet":            {op: simkms.OpSetCRTC},
		"CursorBinding":      {op: simkms.OpSetCursor},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			setup := newScreen(t, kms.MemoryInfo{VRAMSize: 32 << 20, GARTSize: 64 << 20}, config.Default())
			setup.device.InjectFaultAfter(testCase.op, testCase.after, errInjected)

			err := setup.screen.Initialize(context.Background(), screenRequest(0x5159))
			require.Error(t, err)
			require.True(t, errors.Is(err, kms.ErrFatalInit))
			require.True(t, errors.Is(err, errInjected))

			requireNothingLive(t, setup)
			require.True(t, setup.device.Closed())
			require.Equal(t, ownership.Unowned, setup.screen.Ownership())
			require.Nil(t, setup.screen.Channel())
			require.Equal(t, setup.host.initCalls, setup.host.finiCalls)
		})
	}
}

func TestOpenFailure(t *testing.T) {
	setup := newScreen(t, kms.MemoryInfo{VRAMSize: 32 << 20}, config.Default())
	setup.device.InjectFault(simkms.OpOpen, errInjected)

	err := setup.screen.Initialize(context.Background(), screenRequest(0x5159))
	require.True(t, errors.Is(err, kms.ErrFatalInit))
	require.Equal(t, 0, setup.device.Calls(simkms.OpVersion))
	require.Equal(t, 0, setup.device.Calls(simkms.OpClose))
}

func TestInsufficientVRAM(t *testing.T) {
	setup := newScreen(t, kms.MemoryInfo{VRAMSize: 4 << 20, GARTSize: 64 << 20}, config.Default())

	err := setup.screen.Initialize(context.Background(), screenRequest(0x5159))
	require.True(t, errors.Is(err, kms.ErrFatalInit))
	require.True(t, errors.Is(err, kms.ErrOutOfMemory))

	require.Equal(t, 0, setup.device.Calls(simkms.OpCreateBuffer))
	require.True(t, setup.device.Closed())
	requireNothingLive(t, setup)
}

func TestPreInitRejects(t *testing.T) {
	testCases := map[string]struct {
		request func() PreInitRequest
		opens   int
	}{
		"UnknownChip": {
			request: func() PreInitRequest { return screenRequest(0xFFFF) },
			opens:   1,
		},
		"NoModes": {
			request: func() PreInitRequest {
				r := screenRequest(0x5159)
				r.Modes = nil
				return r
			},
		},
		"NoOutputs": {
			request: func() PreInitRequest {
				r := screenRequest(0x5159)
				r.Outputs = nil
				return r
			},
		},
		"DepthTooLarge": {
			request: func() PreInitRequest {
				r := screenRequest(0x5159)
				r.Depth = 48
				return r
			},
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			setup := newScreen(t, kms.MemoryInfo{VRAMSize: 32 << 20}, config.Default())

			err := setup.screen.PreInit(context.Background(), testCase.request())
			require.True(t, errors.Is(err, kms.ErrFatalInit))
			require.Equal(t, testCase.opens, setup.device.Calls(simkms.OpOpen))
			require.Equal(t, testCase.opens, setup.device.Calls(simkms.OpClose))

			// The screen is reusable after a failed PreInit
			require.NoError(t, setup.screen.Initialize(context.Background(), screenRequest(0x5159)))
		})
	}
}

func TestStageOrdering(t *testing.T) {
	setup := newScreen(t, kms.MemoryInfo{VRAMSize: 32 << 20}, config.Default())
	screen := setup.screen

	require.Error(t, screen.ScreenInit(context.Background()))
	require.Error(t, screen.EnterVT())
	require.Error(t, screen.SwitchMode(mode800))
	require.Error(t, screen.AdjustFrame(0, 0))
	require.Error(t, screen.SaveScreen(true))
	_, err := screen.AllocateOffscreen(4096)
	require.Error(t, err)
	screen.LeaveVT()
	screen.BlockHandler(nil)

	require.NoError(t, screen.PreInit(context.Background(), screenRequest(0x5159)))
	require.Error(t, screen.PreInit(context.Background(), screenRequest(0x5159)))
	require.Equal(t, 0, setup.device.Calls(simkms.OpSetMaster))
}

func TestCursorMapFailureIsNotFatal(t *testing.T) {
	device := simkms.New(kms.MemoryInfo{VRAMSize: 32 << 20, GARTSize: 64 << 20})
	opener := kms.OpenerFunc(func(ctx context.Context, path string) (kms.Device, error) {
		d, err := device.Opener().Open(ctx, path)
		if err != nil {
			return nil, err
		}
		return &noCursorMapDevice{Device: d}, nil
	})

	screen, err := New(slog.Default(), &fakeHost{}, opener, NewChipTable(KnownChips...), config.Default())
	require.NoError(t, err)
	require.NoError(t, screen.Initialize(context.Background(), screenRequest(0x5159)))

	cursor, ok := device.Cursor(0)
	require.True(t, ok)
	require.Equal(t, 0, device.MapCount(cursor.Handle))
	require.Equal(t, 2, screen.LiveBuffers())
}

// noCursorMapDevice refuses to map buffers the size of a 64x64 cursor
type noCursorMapDevice struct {
	kms.Device
}

func (d *noCursorMapDevice) MapBuffer(handle kms.BufferHandle, size int) ([]byte, error) {
	if size == 16<<10 {
		return nil, errInjected
	}
	return d.Device.MapBuffer(handle, size)
}

func TestAccelerationToggles(t *testing.T) {
	t.Run("InitFailure", func(t *testing.T) {
		setup := newScreen(t, kms.MemoryInfo{VRAMSize: 32 << 20}, config.Default())
		setup.host.initErr = errInjected

		require.NoError(t, setup.screen.Initialize(context.Background(), screenRequest(0x5159)))
		require.False(t, setup.screen.AccelEnabled())
		require.NotNil(t, setup.screen.Channel())

		require.NoError(t, setup.screen.CloseScreen(nil))
		require.Equal(t, 0, setup.host.finiCalls)
	})

	t.Run("NoAccel", func(t *testing.T) {
		options := config.Default()
		options.NoAccel = true
		setup := newScreen(t, kms.MemoryInfo{VRAMSize: 32 << 20}, options)

		require.NoError(t, setup.screen.Initialize(context.Background(), screenRequest(0x5159)))
		require.False(t, setup.screen.AccelEnabled())
		require.Equal(t, 0, setup.host.initCalls)
	})

	t.Run("Enabled", func(t *testing.T) {
		setup := readyScreen(t)

		require.NoError(t, setup.screen.CloseScreen(nil))
		require.Equal(t, 1, setup.host.finiCalls)
	})
}

func TestSWCursor(t *testing.T) {
	options := config.Default()
	options.SWCursor = true
	setup := newScreen(t, kms.MemoryInfo{VRAMSize: 32 << 20}, options)

	require.NoError(t, setup.screen.Initialize(context.Background(), screenRequest(0x5159)))
	_, ok := setup.device.Cursor(0)
	require.False(t, ok)
	require.Equal(t, 0, setup.device.Calls(simkms.OpSetCursor))
	require.Equal(t, 2, setup.screen.LiveBuffers())
	require.Equal(t, kms.BufferHandle(0), setup.screen.Epoch().Outputs[0].Cursor)
}

func TestVTSwitchRoundTrip(t *testing.T) {
	setup := readyScreen(t)
	screen := setup.screen
	device := setup.device

	before := screen.Epoch()
	crtcBefore, _ := device.CRTC(0)
	cursorBefore, _ := device.Cursor(0)

	screen.AccelState().Mark3DInitialized()
	screen.AccelState().Enter(accel.Engine3D)

	screen.LeaveVT()
	require.Equal(t, ownership.Unowned, screen.Ownership())
	require.False(t, device.IsMaster())
	_, ok := device.Cursor(0)
	require.False(t, ok)
	require.False(t, screen.AccelState().Inited3D())
	require.Equal(t, accel.EngineUnknown, screen.AccelState().EngineMode())

	// Another client takes over and resets the hardware
	device.ResetDisplay()

	require.NoError(t, screen.EnterVT())
	require.Equal(t, ownership.Owned, screen.Ownership())
	require.Empty(t, cmp.Diff(before, screen.Epoch()))

	crtcAfter, ok := device.CRTC(0)
	require.True(t, ok)
	require.Empty(t, cmp.Diff(crtcBefore, crtcAfter))
	cursorAfter, ok := device.Cursor(0)
	require.True(t, ok)
	require.Equal(t, cursorBefore, cursorAfter)
}

func TestVTSwitchIdempotence(t *testing.T) {
	setup := readyScreen(t)
	screen := setup.screen
	device := setup.device

	require.NoError(t, screen.EnterVT())
	require.Equal(t, 1, device.Calls(simkms.OpSetMaster))

	screen.LeaveVT()
	screen.LeaveVT()
	require.Equal(t, 1, device.Calls(simkms.OpDropMaster))
	require.Equal(t, ownership.Unowned, screen.Ownership())
}

func TestEnterVTRefused(t *testing.T) {
	setup := readyScreen(t)
	screen := setup.screen

	screen.LeaveVT()
	setup.device.InjectFault(simkms.OpSetMaster, errInjected)

	err := screen.EnterVT()
	require.True(t, errors.Is(err, kms.ErrNotMaster))
	require.Equal(t, ownership.Unowned, screen.Ownership())

	// The screen keeps running
	screen.BlockHandler(nil)
	require.NoError(t, screen.AdjustFrame(16, 16))

	setup.device.ClearFault(simkms.OpSetMaster)
	require.NoError(t, screen.EnterVT())
	crtc, ok := setup.device.CRTC(0)
	require.True(t, ok)
	require.Equal(t, 16, crtc.X)
	require.Equal(t, 16, crtc.Y)
}

func TestEnterVTRetriesFailedModeSet(t *testing.T) {
	setup := readyScreen(t)
	screen := setup.screen
	device := setup.device

	screen.LeaveVT()
	device.ResetDisplay()
	device.InjectFault(simkms.OpSetCRTC, errInjected)

	require.Error(t, screen.EnterVT())
	require.Equal(t, ownership.Owned, screen.Ownership())
	_, ok := device.CRTC(0)
	require.False(t, ok)

	device.ClearFault(simkms.OpSetCRTC)
	require.NoError(t, screen.EnterVT())
	_, ok = device.CRTC(0)
	require.True(t, ok)
}

func TestReleaseFailuresAreSwallowed(t *testing.T) {
	setup := readyScreen(t)
	setup.device.InjectFault(simkms.OpSetCursor, errInjected)
	setup.device.InjectFault(simkms.OpDropMaster, errInjected)

	setup.screen.LeaveVT()
	require.Equal(t, ownership.Unowned, setup.screen.Ownership())
}

func TestSwitchModeAndAdjustFrame(t *testing.T) {
	setup := readyScreen(t)
	screen := setup.screen

	require.NoError(t, screen.SwitchMode(mode800))
	crtc, _ := setup.device.CRTC(0)
	require.Equal(t, mode800, *crtc.Mode)

	require.NoError(t, screen.AdjustFrame(224, 424))
	crtc, _ = setup.device.CRTC(0)
	require.Equal(t, 224, crtc.X)
	require.Equal(t, 424, crtc.Y)

	// The plan belongs to the virtual size, not the mode
	require.Equal(t, 29343744, screen.Residual())

	tooLarge := mode1024
	tooLarge.HDisplay = 1280
	require.Error(t, screen.SwitchMode(tooLarge))

	// Changes while Unowned are applied on the next EnterVT
	screen.LeaveVT()
	require.NoError(t, screen.SwitchMode(mode1024))
	require.NoError(t, screen.EnterVT())
	crtc, _ = setup.device.CRTC(0)
	require.Equal(t, mode1024, *crtc.Mode)
	require.Equal(t, 224, crtc.X)
}

func TestSaveScreen(t *testing.T) {
	setup := readyScreen(t)
	screen := setup.screen

	require.NoError(t, screen.SaveScreen(true))
	_, ok := setup.device.CRTC(0)
	require.False(t, ok)

	require.NoError(t, screen.SaveScreen(false))
	_, ok = setup.device.CRTC(0)
	require.True(t, ok)

	screen.LeaveVT()
	calls := setup.device.Calls(simkms.OpSetCRTC)
	require.NoError(t, screen.SaveScreen(true))
	require.Equal(t, calls, setup.device.Calls(simkms.OpSetCRTC))
}

func TestBlockHandler(t *testing.T) {
	setup := readyScreen(t)
	screen := setup.screen
	state := screen.AccelState()

	nextCalls := 0
	next := func() { nextCalls++ }

	state.Enter(accel.Engine2D)
	screen.BlockHandler(next)
	screen.BlockHandler(next)
	require.Equal(t, 2, nextCalls)
	require.Empty(t, setup.device.Submissions())
	require.Equal(t, accel.EngineUnknown, state.EngineMode())

	channel := screen.Channel()
	require.NoError(t, channel.AddReloc(screen.FrontBuffer(), 0, kms.DomainVRAM))
	require.NoError(t, channel.Write(0xC0001000, 0))
	screen.BlockHandler(next)
	require.Len(t, setup.device.Submissions(), 1)
	require.Equal(t, 0, channel.Pending())
}

func TestAllocateOffscreen(t *testing.T) {
	setup := readyScreen(t)
	screen := setup.screen
	residual := screen.Residual()

	obj, err := screen.AllocateOffscreen(residual + 4096)
	require.Nil(t, obj)
	require.True(t, errors.Is(err, kms.ErrOutOfMemory))
	require.True(t, kms.IsResourceExhaustion(err))
	require.Equal(t, 2, screen.LiveBuffers())
	require.NotNil(t, screen.FrontBuffer().MappedData())

	half, err := screen.AllocateOffscreen(residual / 2)
	require.NoError(t, err)
	require.Equal(t, "offscreen", half.Name())

	_, err = screen.AllocateOffscreen(residual/2 + 4096)
	require.True(t, errors.Is(err, kms.ErrOutOfMemory))
	require.Equal(t, 3, screen.LiveBuffers())

	require.NoError(t, screen.ReleaseOffscreen(half))
	require.Equal(t, 2, screen.LiveBuffers())
	require.Error(t, screen.ReleaseOffscreen(screen.FrontBuffer()))

	// Leftover offscreen buffers are released with the screen
	_, err = screen.AllocateOffscreen(4096)
	require.NoError(t, err)
	require.NoError(t, screen.CloseScreen(nil))
	requireNothingLive(t, setup)
}

func TestCloseScreenAndRestart(t *testing.T) {
	setup := readyScreen(t)
	screen := setup.screen

	nextCalls := 0
	require.NoError(t, screen.CloseScreen(func() error {
		nextCalls++
		return nil
	}))
	require.Equal(t, 1, nextCalls)
	requireNothingLive(t, setup)
	require.False(t, setup.device.Closed())
	require.Nil(t, screen.Channel())

	// A new server generation reuses the open device
	require.NoError(t, screen.ScreenInit(context.Background()))
	require.Equal(t, 2, screen.LiveBuffers())
	require.Equal(t, ownership.Owned, screen.Ownership())

	require.NoError(t, screen.FreeScreen())
	requireNothingLive(t, setup)
	require.True(t, setup.device.Closed())
}

func TestCreateScreenResources(t *testing.T) {
	setup := readyScreen(t)

	require.NoError(t, setup.screen.CreateScreenResources(func() error { return nil }))
	require.True(t, errors.Is(setup.screen.CreateScreenResources(func() error { return errInjected }), errInjected))
}

func TestBuildStatsString(t *testing.T) {
	setup := readyScreen(t)
	stats := setup.screen.BuildStatsString()

	r := jreader.NewReader([]byte(stats))
	var stage, owned string
	residual := 0
	objects := 0
	for obj := r.Object(); obj.Next(); {
		switch string(obj.Name()) {
		case "Stage":
			stage = r.String()
		case "Ownership":
			owned = r.String()
		case "Budget":
			for plan := r.Object(); plan.Next(); {
				if string(plan.Name()) == "Residual" {
					residual = r.Int()
				} else {
					r.SkipValue()
				}
			}
		case "Buffers":
			for buffers := r.Object(); buffers.Next(); {
				if string(buffers.Name()) != "Objects" {
					r.SkipValue()
					continue
				}
				for arr := r.Array(); arr.Next(); {
					objects++
					r.SkipValue()
				}
			}
		default:
			r.SkipValue()
		}
	}
	require.NoError(t, r.Error())
	require.Equal(t, "Screen", stage)
	require.Equal(t, "Owned", owned)
	require.Equal(t, 29343744, residual)
	require.Equal(t, 2, objects)
	require.Contains(t, stats, `"Name":"cursor"`)
}

func TestMetricsRegistered(t *testing.T) {
	setup := readyScreen(t)

	families, err := setup.screen.Metrics().Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			if metric.GetGauge() != nil && len(metric.GetLabel()) == 0 {
				values[family.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}
	require.Equal(t, float64(1), values["radeon_kms_ownership_owned"])
}
