package kms

//go:generate mockgen -destination ./mocks/mock_device.go -package mocks github.com/radeon-kms/adapter/kms Device

import "context"

// BufferHandle identifies a buffer object within one device handle. Zero is never a
// valid handle and is used to unbind cursors.
type BufferHandle uint32

// FramebufferID identifies a scanout framebuffer registered with the kernel
type FramebufferID uint32

// Version is the kernel driver's negotiated interface version
type Version struct {
	Major int
	Minor int
	Patch int
	Name  string
	Date  string
	Desc  string
}

// MemoryInfo reports the memory sizes the kernel exposes for one adapter
type MemoryInfo struct {
	// VRAMSize is the total amount of dedicated video memory
	VRAMSize int
	// VRAMVisible is the part of VRAMSize the CPU can map, which bounds everything
	// the driver allocates
	VRAMVisible int
	// GARTSize is the size of the shared system-memory aperture
	GARTSize int
}

// Mode is one display timing, laid out the way the kernel expects it
type Mode struct {
	Name       string
	Clock      uint32
	HDisplay   uint16
	HSyncStart uint16
	HSyncEnd   uint16
	HTotal     uint16
	HSkew      uint16
	VDisplay   uint16
	VSyncStart uint16
	VSyncEnd   uint16
	VTotal     uint16
	VScan      uint16
	VRefresh   uint32
	Flags      uint32
	Type       uint32
}

// Reloc references a buffer object from a command submission
type Reloc struct {
	Handle      BufferHandle
	Size        int
	ReadDomains Domain
	WriteDomain Domain
}

// Submission is one batch of GPU commands handed to the kernel
type Submission struct {
	Commands []uint32
	Relocs   []Reloc
	// Limits holds the per-domain emission ceilings in bytes. A domain without an entry
	// is not limited beyond its capacity.
	Limits map[Domain]int
}

// BufferAllocator is the buffer-object part of the kernel interface
type BufferAllocator interface {
	CreateBuffer(domain Domain, size int, alignment uint) (BufferHandle, error)
	MapBuffer(handle BufferHandle, size int) ([]byte, error)
	UnmapBuffer(handle BufferHandle, data []byte) error
	CloseBuffer(handle BufferHandle) error
}

// Submitter is the command-submission part of the kernel interface
type Submitter interface {
	Submit(submission Submission) error
}

// Controller is the display-control part of the kernel interface. Every method except
// SetMaster requires that the caller currently holds display ownership.
type Controller interface {
	SetMaster() error
	DropMaster() error
	SetCRTC(crtc uint32, fb FramebufferID, x, y int, connectors []uint32, mode *Mode) error
	SetCursor(crtc uint32, handle BufferHandle, width, height int) error
}

// Device is one open connection to the kernel graphics subsystem
type Device interface {
	BufferAllocator
	Submitter
	Controller

	Version() (Version, error)
	MemoryInfo() (MemoryInfo, error)
	AddFramebuffer(handle BufferHandle, width, height, pitch, bpp, depth int) (FramebufferID, error)
	RemoveFramebuffer(fb FramebufferID) error
	Close() error
}

// Opener opens device handles
type Opener interface {
	Open(ctx context.Context, path string) (Device, error)
}

// OpenerFunc adapts a function to the Opener interface
type OpenerFunc func(ctx context.Context, path string) (Device, error)

func (f OpenerFunc) Open(ctx context.Context, path string) (Device, error) {
	return f(ctx, path)
}
