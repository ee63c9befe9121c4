//go:build linux

package drm

import (
	"context"
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/radeon-kms/adapter/kms"
	"golang.org/x/exp/slog"
	"golang.org/x/sys/unix"
)

// Device is an open DRM file descriptor for one radeon adapter
type Device struct {
	logger *slog.Logger
	path   string
	fd     int
}

var _ kms.Device = (*Device)(nil)

// Opener opens DRM character devices
type Opener struct {
	Logger *slog.Logger
}

func (o Opener) Open(ctx context.Context, path string) (kms.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}

	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Device{logger: logger, path: path, fd: fd}, nil
}

func (d *Device) ioctl(request uintptr, arg unsafe.Pointer) error {
	if d.fd < 0 {
		return kms.ErrClosed
	}

	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), request, uintptr(arg))
		switch errno {
		case 0:
			return nil
		case unix.EINTR, unix.EAGAIN:
			continue
		case unix.ENOMEM:
			return errors.Mark(errno, kms.ErrOutOfMemory)
		case unix.EACCES, unix.EPERM:
			return errors.Mark(errno, kms.ErrNotMaster)
		}
		return errno
	}
}

func (d *Device) Version() (kms.Version, error) {
	var v sysVersion
	if err := d.ioctl(ioctlVersion, unsafe.Pointer(&v)); err != nil {
		return kms.Version{}, errors.Wrap(err, "DRM_IOCTL_VERSION")
	}

	name := make([]byte, v.nameLen+1)
	date := make([]byte, v.dateLen+1)
	desc := make([]byte, v.descLen+1)
	v.name = uint64(uintptr(unsafe.Pointer(&name[0])))
	v.date = uint64(uintptr(unsafe.Pointer(&date[0])))
	v.desc = uint64(uintptr(unsafe.Pointer(&desc[0])))
	err := d.ioctl(ioctlVersion, unsafe.Pointer(&v))
	runtime.KeepAlive(name)
	runtime.KeepAlive(date)
	runtime.KeepAlive(desc)
	if err != nil {
		return kms.Version{}, errors.Wrap(err, "DRM_IOCTL_VERSION")
	}

	return kms.Version{
		Major: int(v.major),
		Minor: int(v.minor),
		Patch: int(v.patchlevel),
		Name:  cString(name),
		Date:  cString(date),
		Desc:  cString(desc),
	}, nil
}

func (d *Device) MemoryInfo() (kms.MemoryInfo, error) {
	var info sysRadeonGemInfo
	if err := d.ioctl(ioctlRadeonGemInfo, unsafe.Pointer(&info)); err != nil {
		return kms.MemoryInfo{}, errors.Wrap(err, "DRM_RADEON_GEM_INFO")
	}

	return kms.MemoryInfo{
		VRAMSize:    int(info.vramSize),
		VRAMVisible: int(info.vramVisible),
		GARTSize:    int(info.gartSize),
	}, nil
}

func (d *Device) CreateBuffer(domain kms.Domain, size int, alignment uint) (kms.BufferHandle, error) {
	args := sysRadeonGemCreate{
		size:          uint64(size),
		alignment:     uint64(alignment),
		initialDomain: uint32(domain),
	}
	if err := d.ioctl(ioctlRadeonGemCreate, unsafe.Pointer(&args)); err != nil {
		return 0, errors.Wrapf(err, "DRM_RADEON_GEM_CREATE %d bytes in %s", size, domain)
	}
	return kms.BufferHandle(args.handle), nil
}

func (d *Device) MapBuffer(handle kms.BufferHandle, size int) ([]byte, error) {
	args := sysRadeonGemMmap{
		handle: uint32(handle),
		size:   uint64(size),
	}
	if err := d.ioctl(ioctlRadeonGemMmap, unsafe.Pointer(&args)); err != nil {
		return nil, errors.Wrapf(err, "DRM_RADEON_GEM_MMAP handle %d", handle)
	}

	data, err := unix.Mmap(d.fd, int64(args.addrPtr), size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "mmap handle %d", handle)
	}
	return data, nil
}

func (d *Device) UnmapBuffer(handle kms.BufferHandle, data []byte) error {
	if err := unix.Munmap(data); err != nil {
		return errors.Wrapf(err, "munmap handle %d", handle)
	}
	return nil
}

func (d *Device) CloseBuffer(handle kms.BufferHandle) error {
	args := sysGemClose{handle: uint32(handle)}
	if err := d.ioctl(ioctlGemClose, unsafe.Pointer(&args)); err != nil {
		return errors.Wrapf(err, "DRM_IOCTL_GEM_CLOSE handle %d", handle)
	}
	return nil
}

func (d *Device) Submit(submission kms.Submission) error {
	if len(submission.Commands) == 0 {
		return nil
	}

	req := newCSRequest(submission)
	err := d.ioctl(ioctlRadeonCS, unsafe.Pointer(&req.args))
	runtime.KeepAlive(req)
	if errors.Is(err, kms.ErrOutOfMemory) {
		err = errors.Mark(err, kms.ErrLimitExceeded)
	}
	if err != nil {
		return errors.Wrapf(err, "DRM_RADEON_CS %d dwords", len(submission.Commands))
	}
	return nil
}

func (d *Device) SetMaster() error {
	if err := d.ioctl(ioctlSetMaster, nil); err != nil {
		return errors.Mark(errors.Wrap(err, "DRM_IOCTL_SET_MASTER"), kms.ErrNotMaster)
	}
	return nil
}

func (d *Device) DropMaster() error {
	if err := d.ioctl(ioctlDropMaster, nil); err != nil {
		return errors.Wrap(err, "DRM_IOCTL_DROP_MASTER")
	}
	return nil
}

func toSysMode(mode *kms.Mode) sysModeInfo {
	info := sysModeInfo{
		clock:      mode.Clock,
		hdisplay:   mode.HDisplay,
		hsyncStart: mode.HSyncStart,
		hsyncEnd:   mode.HSyncEnd,
		htotal:     mode.HTotal,
		hskew:      mode.HSkew,
		vdisplay:   mode.VDisplay,
		vsyncStart: mode.VSyncStart,
		vsyncEnd:   mode.VSyncEnd,
		vtotal:     mode.VTotal,
		vscan:      mode.VScan,
		vrefresh:   mode.VRefresh,
		flags:      mode.Flags,
		typ:        mode.Type,
	}
	copy(info.name[:len(info.name)-1], mode.Name)
	return info
}

func (d *Device) SetCRTC(crtc uint32, fb kms.FramebufferID, x, y int, connectors []uint32, mode *kms.Mode) error {
	args := sysCrtc{
		crtcID: crtc,
		fbID:   uint32(fb),
		x:      uint32(x),
		y:      uint32(y),
	}
	if len(connectors) > 0 {
		args.setConnectorsPtr = uint64(uintptr(unsafe.Pointer(&connectors[0])))
		args.countConnectors = uint32(len(connectors))
	}
	if mode != nil {
		args.modeValid = 1
		args.mode = toSysMode(mode)
	}

	if err := d.ioctl(ioctlModeSetCrtc, unsafe.Pointer(&args)); err != nil {
		return errors.Wrapf(err, "DRM_IOCTL_MODE_SETCRTC crtc %d", crtc)
	}
	return nil
}

func (d *Device) SetCursor(crtc uint32, handle kms.BufferHandle, width, height int) error {
	args := sysCursor{
		flags:  cursorFlagBO,
		crtcID: crtc,
		width:  uint32(width),
		height: uint32(height),
		handle: uint32(handle),
	}
	if err := d.ioctl(ioctlModeCursor, unsafe.Pointer(&args)); err != nil {
		return errors.Wrapf(err, "DRM_IOCTL_MODE_CURSOR crtc %d", crtc)
	}
	return nil
}

func (d *Device) AddFramebuffer(handle kms.BufferHandle, width, height, pitch, bpp, depth int) (kms.FramebufferID, error) {
	args := sysFBCmd{
		width:  uint32(width),
		height: uint32(height),
		pitch:  uint32(pitch),
		bpp:    uint32(bpp),
		depth:  uint32(depth),
		handle: uint32(handle),
	}
	if err := d.ioctl(ioctlModeAddFB, unsafe.Pointer(&args)); err != nil {
		return 0, errors.Wrapf(err, "DRM_IOCTL_MODE_ADDFB %dx%d", width, height)
	}
	return kms.FramebufferID(args.fbID), nil
}

func (d *Device) RemoveFramebuffer(fb kms.FramebufferID) error {
	id := uint32(fb)
	if err := d.ioctl(ioctlModeRmFB, unsafe.Pointer(&id)); err != nil {
		return errors.Wrapf(err, "DRM_IOCTL_MODE_RMFB %d", fb)
	}
	return nil
}

func (d *Device) Close() error {
	if d.fd < 0 {
		return kms.ErrClosed
	}

	d.logger.Debug("Device::Close", slog.String("path", d.path))
	err := unix.Close(d.fd)
	d.fd = -1
	return errors.Wrapf(err, "closing %s", d.path)
}
