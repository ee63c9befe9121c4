// Package drm talks to the Linux kernel modesetting driver for radeon adapters through
// the DRM character device.
package drm

import "bytes"

const (
	ioctlNone  = 0
	ioctlWrite = 1
	ioctlRead  = 2

	ioctlNumberBits = 8
	ioctlTypeBits   = 8
	ioctlSizeBits   = 14

	ioctlNumberShift = 0
	ioctlTypeShift   = ioctlNumberShift + ioctlNumberBits
	ioctlSizeShift   = ioctlTypeShift + ioctlTypeBits
	ioctlDirShift    = ioctlSizeShift + ioctlSizeBits

	// ioctlBase is the DRM ioctl type character
	ioctlBase = 'd'
	// commandBase is the first driver-private ioctl number
	commandBase = 0x40
)

func ioctlCode(dir, size, nr uintptr) uintptr {
	return dir<<ioctlDirShift | size<<ioctlSizeShift | ioctlBase<<ioctlTypeShift | nr<<ioctlNumberShift
}

func io(nr uintptr) uintptr {
	return ioctlCode(ioctlNone, 0, nr)
}

func iow(nr, size uintptr) uintptr {
	return ioctlCode(ioctlWrite, size, nr)
}

func iowr(nr, size uintptr) uintptr {
	return ioctlCode(ioctlRead|ioctlWrite, size, nr)
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
