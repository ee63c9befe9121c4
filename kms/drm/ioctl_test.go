package drm

import (
	"testing"
	"unsafe"

	"github.com/radeon-kms/adapter/kms"
	"github.com/stretchr/testify/require"
)

func TestStructSizes(t *testing.T) {
	require.Equal(t, uintptr(64), unsafe.Sizeof(sysVersion{}))
	require.Equal(t, uintptr(68), unsafe.Sizeof(sysModeInfo{}))
	require.Equal(t, uintptr(104), unsafe.Sizeof(sysCrtc{}))
	require.Equal(t, uintptr(28), unsafe.Sizeof(sysCursor{}))
	require.Equal(t, uintptr(28), unsafe.Sizeof(sysFBCmd{}))
	require.Equal(t, uintptr(24), unsafe.Sizeof(sysRadeonGemInfo{}))
	require.Equal(t, uintptr(32), unsafe.Sizeof(sysRadeonGemCreate{}))
	require.Equal(t, uintptr(32), unsafe.Sizeof(sysRadeonGemMmap{}))
	require.Equal(t, uintptr(32), unsafe.Sizeof(sysRadeonCS{}))
	require.Equal(t, uintptr(16), unsafe.Sizeof(sysRadeonCSReloc{}))
}

func TestIoctlCodes(t *testing.T) {
	testCases := map[string]struct {
		actual   uintptr
		expected uintptr
	}{
		"SetMaster":  {actual: ioctlSetMaster, expected: 0x641e},
		"DropMaster": {actual: ioctlDropMaster, expected: 0x641f},
		"GemClose":   {actual: ioctlGemClose, expected: 0x40086409},
		"Version":    {actual: ioctlVersion, expected: 0xc0406400},
		"SetCrtc":    {actual: ioctlModeSetCrtc, expected: 0xc06864a2},
		"Cursor":     {actual: ioctlModeCursor, expected: 0xc01c64a3},
		"AddFB":      {actual: ioctlModeAddFB, expected: 0xc01c64ae},
		"RmFB":       {actual: ioctlModeRmFB, expected: 0xc00464af},
		"GemInfo":    {actual: ioctlRadeonGemInfo, expected: 0xc018645c},
		"GemCreate":  {actual: ioctlRadeonGemCreate, expected: 0xc020645d},
		"GemMmap":    {actual: ioctlRadeonGemMmap, expected: 0xc020645e},
		"CS":         {actual: ioctlRadeonCS, expected: 0xc0206466},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, testCase.expected, testCase.actual)
		})
	}
}

func TestCString(t *testing.T) {
	require.Equal(t, "radeon", cString([]byte("radeon\x00\x00")))
	require.Equal(t, "radeon", cString([]byte("radeon")))
}

func TestCSRequestLayout(t *testing.T) {
	submission := kms.Submission{
		Commands: []uint32{0xc0001000, 0x1, 0x2, 0x3},
		Relocs: []kms.Reloc{
			{Handle: 7, Size: 4096, ReadDomains: kms.DomainVRAM},
			{Handle: 9, Size: 8192, ReadDomains: kms.DomainGTT, WriteDomain: kms.DomainVRAM},
		},
		Limits: map[kms.Domain]int{kms.DomainVRAM: 1 << 20, kms.DomainGTT: 1 << 16},
	}

	req := newCSRequest(submission)

	addr := func(p unsafe.Pointer) uint64 { return uint64(uintptr(p)) }
	require.Equal(t, uint32(2), req.args.numChunks)
	require.Equal(t, addr(unsafe.Pointer(&req.chunkPtrs[0])), req.args.chunks)
	require.Equal(t, uint64(1<<16), req.args.gartLimit)
	require.Equal(t, uint64(1<<20), req.args.vramLimit)
	require.Equal(t, addr(unsafe.Pointer(&req.chunks[0])), req.chunkPtrs[0])
	require.Equal(t, addr(unsafe.Pointer(&req.chunks[1])), req.chunkPtrs[1])

	require.Equal(t, uint32(csChunkIB), req.chunks[0].chunkID)
	require.Equal(t, uint32(4), req.chunks[0].lengthDW)
	require.Equal(t, addr(unsafe.Pointer(&submission.Commands[0])), req.chunks[0].chunkData)

	require.Equal(t, uint32(csChunkRelocs), req.chunks[1].chunkID)
	require.Equal(t, uint32(8), req.chunks[1].lengthDW)
	require.Equal(t, addr(unsafe.Pointer(&req.relocs[0])), req.chunks[1].chunkData)
	require.Equal(t, sysRadeonCSReloc{handle: 9, readDomains: uint32(kms.DomainGTT), writeDomain: uint32(kms.DomainVRAM)}, req.relocs[1])
}

func TestCSRequestWithoutRelocs(t *testing.T) {
	req := newCSRequest(kms.Submission{Commands: []uint32{0x80000000}})

	require.Equal(t, uint32(1), req.chunks[0].lengthDW)
	require.Zero(t, req.chunks[1].lengthDW)
	require.Zero(t, req.chunks[1].chunkData)
	require.Zero(t, req.args.gartLimit)
	require.Zero(t, req.args.vramLimit)
}
