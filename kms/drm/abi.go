package drm

import (
	"unsafe"

	"github.com/radeon-kms/adapter/kms"
)

type sysVersion struct {
	major      int32
	minor      int32
	patchlevel int32
	nameLen    uint64
	name       uint64
	dateLen    uint64
	date       uint64
	descLen    uint64
	desc       uint64
}

type sysGemClose struct {
	handle uint32
	pad    uint32
}

type sysModeInfo struct {
	clock                                         uint32
	hdisplay, hsyncStart, hsyncEnd, htotal, hskew uint16
	vdisplay, vsyncStart, vsyncEnd, vtotal, vscan uint16
	vrefresh                                      uint32
	flags                                         uint32
	typ                                           uint32
	name                                          [32]byte
}

type sysCrtc struct {
	setConnectorsPtr uint64
	countConnectors  uint32
	crtcID           uint32
	fbID             uint32
	x                uint32
	y                uint32
	gammaSize        uint32
	modeValid        uint32
	mode             sysModeInfo
}

const cursorFlagBO = 0x01

type sysCursor struct {
	flags  uint32
	crtcID uint32
	x      int32
	y      int32
	width  uint32
	height uint32
	handle uint32
}

type sysFBCmd struct {
	fbID   uint32
	width  uint32
	height uint32
	pitch  uint32
	bpp    uint32
	depth  uint32
	handle uint32
}

type sysRadeonGemInfo struct {
	gartSize    uint64
	vramSize    uint64
	vramVisible uint64
}

type sysRadeonGemCreate struct {
	size          uint64
	alignment     uint64
	handle        uint32
	initialDomain uint32
	flags         uint32
	_             uint32
}

type sysRadeonGemMmap struct {
	handle  uint32
	pad     uint32
	offset  uint64
	size    uint64
	addrPtr uint64
}

const (
	csChunkIB     = 0x01
	csChunkRelocs = 0x02
)

type sysRadeonCSChunk struct {
	chunkID   uint32
	lengthDW  uint32
	chunkData uint64
}

type sysRadeonCSReloc struct {
	handle      uint32
	readDomains uint32
	writeDomain uint32
	flags       uint32
}

type sysRadeonCS struct {
	numChunks uint32
	csID      uint32
	chunks    uint64
	gartLimit uint64
	vramLimit uint64
}

var (
	ioctlVersion     = iowr(0x00, unsafe.Sizeof(sysVersion{}))
	ioctlGemClose    = iow(0x09, unsafe.Sizeof(sysGemClose{}))
	ioctlSetMaster   = io(0x1e)
	ioctlDropMaster  = io(0x1f)
	ioctlModeSetCrtc = iowr(0xA2, unsafe.Sizeof(sysCrtc{}))
	ioctlModeCursor  = iowr(0xA3, unsafe.Sizeof(sysCursor{}))
	ioctlModeAddFB   = iowr(0xAE, unsafe.Sizeof(sysFBCmd{}))
	ioctlModeRmFB    = iowr(0xAF, unsafe.Sizeof(uint32(0)))

	ioctlRadeonGemInfo   = iowr(commandBase+0x1c, unsafe.Sizeof(sysRadeonGemInfo{}))
	ioctlRadeonGemCreate = iowr(commandBase+0x1d, unsafe.Sizeof(sysRadeonGemCreate{}))
	ioctlRadeonGemMmap   = iowr(commandBase+0x1e, unsafe.Sizeof(sysRadeonGemMmap{}))
	ioctlRadeonCS        = iowr(commandBase+0x26, unsafe.Sizeof(sysRadeonCS{}))
)

// csRequest owns every buffer a DRM_RADEON_CS call points the kernel at. It is always
// heap allocated and must be kept alive until the ioctl returns.
type csRequest struct {
	commands  []uint32
	relocs    []sysRadeonCSReloc
	chunks    [2]sysRadeonCSChunk
	chunkPtrs [2]uint64
	args      sysRadeonCS
}

// newCSRequest lays out an IB chunk and a relocation chunk for submission, which must
// hold at least one command
func newCSRequest(submission kms.Submission) *csRequest {
	req := &csRequest{
		commands: submission.Commands,
		relocs:   make([]sysRadeonCSReloc, len(submission.Relocs)),
	}
	for i, reloc := range submission.Relocs {
		req.relocs[i] = sysRadeonCSReloc{
			handle:      uint32(reloc.Handle),
			readDomains: uint32(reloc.ReadDomains),
			writeDomain: uint32(reloc.WriteDomain),
		}
	}

	req.chunks[0] = sysRadeonCSChunk{
		chunkID:   csChunkIB,
		lengthDW:  uint32(len(req.commands)),
		chunkData: uint64(uintptr(unsafe.Pointer(&req.commands[0]))),
	}
	req.chunks[1] = sysRadeonCSChunk{
		chunkID:  csChunkRelocs,
		lengthDW: uint32(len(req.relocs) * int(unsafe.Sizeof(sysRadeonCSReloc{})/4)),
	}
	if len(req.relocs) > 0 {
		req.chunks[1].chunkData = uint64(uintptr(unsafe.Pointer(&req.relocs[0])))
	}
	for i := range req.chunks {
		req.chunkPtrs[i] = uint64(uintptr(unsafe.Pointer(&req.chunks[i])))
	}

	req.args = sysRadeonCS{
		numChunks: uint32(len(req.chunks)),
		chunks:    uint64(uintptr(unsafe.Pointer(&req.chunkPtrs[0]))),
		gartLimit: uint64(submission.Limits[kms.DomainGTT]),
		vramLimit: uint64(submission.Limits[kms.DomainVRAM]),
	}
	return req
}
