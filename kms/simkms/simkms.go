// Package simkms implements kms.Device in process. It keeps the same accounting the kernel
// keeps (per-domain capacity, buffer handles, master state, CRTC and cursor bindings)
// and lets callers inject failures into any kernel call.
package simkms

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/radeon-kms/adapter/kms"
	"github.com/radeon-kms/adapter/memutils"
)

// Op names a kernel call that faults can be injected into
type Op string

const (
	OpOpen              Op = "Open"
	OpVersion           Op = "Version"
	OpMemoryInfo        Op = "MemoryInfo"
	OpCreateBuffer      Op = "CreateBuffer"
	OpMapBuffer         Op = "MapBuffer"
	OpUnmapBuffer       Op = "UnmapBuffer"
	OpCloseBuffer       Op = "CloseBuffer"
	OpSubmit            Op = "Submit"
	OpSetMaster         Op = "SetMaster"
	OpDropMaster        Op = "DropMaster"
	OpSetCRTC           Op = "SetCRTC"
	OpSetCursor         Op = "SetCursor"
	OpAddFramebuffer    Op = "AddFramebuffer"
	OpRemoveFramebuffer Op = "RemoveFramebuffer"
	OpClose             Op = "Close"
)

// PageSize is the granularity the simulated kernel rounds buffer sizes to
const PageSize = 4096

type fault struct {
	err   error
	after int
}

type buffer struct {
	domain    kms.Domain
	size      int
	alignment uint
	data      []byte
	mapCount  int
}

type framebuffer struct {
	handle kms.BufferHandle
	width  int
	height int
	pitch  int
}

// CRTCState is what the simulated display hardware is currently scanning out on one CRTC
type CRTCState struct {
	Framebuffer kms.FramebufferID
	X           int
	Y           int
	Connectors  []uint32
	Mode        *kms.Mode
}

// CursorState is the cursor image bound to one CRTC
type CursorState struct {
	Handle kms.BufferHandle
	Width  int
	Height int
}

// Device is a simulated kernel graphics device
type Device struct {
	mutex sync.Mutex

	version kms.Version
	info    kms.MemoryInfo

	faults map[Op]*fault
	calls  map[Op]int

	closed     bool
	master     bool
	nextHandle kms.BufferHandle
	nextFB     kms.FramebufferID

	used         map[kms.Domain]int
	buffers      map[kms.BufferHandle]*buffer
	framebuffers map[kms.FramebufferID]framebuffer
	crtcs        map[uint32]CRTCState
	cursors      map[uint32]CursorState
	submissions  []kms.Submission
}

var _ kms.Device = (*Device)(nil)

// New creates a simulated device with the provided memory sizes
func New(info kms.MemoryInfo) *Device {
	if info.VRAMVisible == 0 {
		info.VRAMVisible = info.VRAMSize
	}

	return &Device{
		version: kms.Version{Major: 2, Minor: 0, Patch: 0, Name: "simkms", Desc: "simulated kernel modesetting device"},
		info:    info,

		faults:       make(map[Op]*fault),
		calls:        make(map[Op]int),
		used:         make(map[kms.Domain]int),
		buffers:      make(map[kms.BufferHandle]*buffer),
		framebuffers: make(map[kms.FramebufferID]framebuffer),
		crtcs:        make(map[uint32]CRTCState),
		cursors:      make(map[uint32]CursorState),
		nextHandle:   1,
		nextFB:       1,
	}
}

// Opener returns a kms.Opener that hands out this device. Opening a closed device
// reopens it, which is what a server restart does with the same adapter.
func (d *Device) Opener() kms.Opener {
	return kms.OpenerFunc(func(ctx context.Context, path string) (kms.Device, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		d.mutex.Lock()
		defer d.mutex.Unlock()

		if err := d.checkFault(OpOpen); err != nil {
			return nil, errors.Wrapf(err, "opening %s", path)
		}
		d.closed = false
		return d, nil
	})
}

// InjectFault makes every later call of op fail with err
func (d *Device) InjectFault(op Op, err error) {
	d.InjectFaultAfter(op, 0, err)
}

// InjectFaultAfter lets the next n calls of op succeed and fails every call after them with err
func (d *Device) InjectFaultAfter(op Op, n int, err error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.faults[op] = &fault{err: err, after: n}
}

// ClearFault removes a fault injected with InjectFault
func (d *Device) ClearFault(op Op) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	delete(d.faults, op)
}

func (d *Device) checkFault(op Op) error {
	d.calls[op]++

	f, ok := d.faults[op]
	if !ok {
		return nil
	}
	if f.after > 0 {
		f.after--
		return nil
	}
	return f.err
}

func (d *Device) begin(op Op) error {
	if d.closed {
		return kms.ErrClosed
	}
	return d.checkFault(op)
}

func (d *Device) Version() (kms.Version, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.begin(OpVersion); err != nil {
		return kms.Version{}, err
	}
	return d.version, nil
}

func (d *Device) MemoryInfo() (kms.MemoryInfo, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.begin(OpMemoryInfo); err != nil {
		return kms.MemoryInfo{}, err
	}
	return d.info, nil
}

func (d *Device) capacity(domain kms.Domain) int {
	switch domain {
	case kms.DomainVRAM:
		return d.info.VRAMVisible
	case kms.DomainGTT:
		return d.info.GARTSize
	}
	return 0
}

func (d *Device) CreateBuffer(domain kms.Domain, size int, alignment uint) (kms.BufferHandle, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.begin(OpCreateBuffer); err != nil {
		return 0, err
	}
	if !domain.Valid() {
		return 0, errors.Newf("invalid buffer domain %s", domain)
	}
	if size <= 0 {
		return 0, errors.Newf("invalid buffer size %d", size)
	}

	size = memutils.AlignUp(size, PageSize)
	if d.used[domain]+size > d.capacity(domain) {
		return 0, errors.Wrapf(kms.ErrOutOfMemory, "%s: %d bytes requested, %d of %d in use",
			domain, size, d.used[domain], d.capacity(domain))
	}

	handle := d.nextHandle
	d.nextHandle++
	d.used[domain] += size
	d.buffers[handle] = &buffer{domain: domain, size: size, alignment: alignment}
	return handle, nil
}

func (d *Device) lookup(handle kms.BufferHandle) (*buffer, error) {
	buf, ok := d.buffers[handle]
	if !ok {
		return nil, errors.Newf("no buffer with handle %d", handle)
	}
	return buf, nil
}

func (d *Device) MapBuffer(handle kms.BufferHandle, size int) ([]byte, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.begin(OpMapBuffer); err != nil {
		return nil, err
	}
	buf, err := d.lookup(handle)
	if err != nil {
		return nil, err
	}
	if size > buf.size {
		return nil, errors.Newf("cannot map %d bytes of a %d byte buffer", size, buf.size)
	}
	if buf.data == nil {
		buf.data = make([]byte, buf.size)
	}
	buf.mapCount++
	return buf.data[:size], nil
}

func (d *Device) UnmapBuffer(handle kms.BufferHandle, data []byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.begin(OpUnmapBuffer); err != nil {
		return err
	}
	buf, err := d.lookup(handle)
	if err != nil {
		return err
	}
	if buf.mapCount == 0 {
		return errors.Newf("buffer %d is not mapped", handle)
	}
	buf.mapCount--
	return nil
}

func (d *Device) CloseBuffer(handle kms.BufferHandle) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.begin(OpCloseBuffer); err != nil {
		return err
	}
	buf, err := d.lookup(handle)
	if err != nil {
		return err
	}
	d.used[buf.domain] -= buf.size
	delete(d.buffers, handle)
	return nil
}

func (d *Device) Submit(submission kms.Submission) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.begin(OpSubmit); err != nil {
		return err
	}

	seen := make(map[kms.BufferHandle]struct{}, len(submission.Relocs))
	referenced := make(map[kms.Domain]int)
	for _, reloc := range submission.Relocs {
		buf, err := d.lookup(reloc.Handle)
		if err != nil {
			return err
		}
		if _, ok := seen[reloc.Handle]; ok {
			continue
		}
		seen[reloc.Handle] = struct{}{}
		referenced[buf.domain] += buf.size
	}

	for domain, bytes := range referenced {
		limit, ok := submission.Limits[domain]
		if ok && bytes > limit {
			return errors.Wrapf(kms.ErrLimitExceeded, "%s: %d bytes referenced, limit %d", domain, bytes, limit)
		}
	}

	copied := kms.Submission{
		Commands: append([]uint32(nil), submission.Commands...),
		Relocs:   append([]kms.Reloc(nil), submission.Relocs...),
		Limits:   make(map[kms.Domain]int, len(submission.Limits)),
	}
	for domain, limit := range submission.Limits {
		copied.Limits[domain] = limit
	}
	d.submissions = append(d.submissions, copied)
	return nil
}

func (d *Device) SetMaster() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.begin(OpSetMaster); err != nil {
		return err
	}
	d.master = true
	return nil
}

func (d *Device) DropMaster() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.begin(OpDropMaster); err != nil {
		return err
	}
	d.master = false
	return nil
}

func (d *Device) requireMaster() error {
	if !d.master {
		return errors.Wrap(kms.ErrNotMaster, "display control requires master")
	}
	return nil
}

func (d *Device) SetCRTC(crtc uint32, fb kms.FramebufferID, x, y int, connectors []uint32, mode *kms.Mode) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.begin(OpSetCRTC); err != nil {
		return err
	}
	if err := d.requireMaster(); err != nil {
		return err
	}
	if mode == nil {
		delete(d.crtcs, crtc)
		return nil
	}
	if _, ok := d.framebuffers[fb]; !ok {
		return errors.Newf("no framebuffer with id %d", fb)
	}

	modeCopy := *mode
	d.crtcs[crtc] = CRTCState{
		Framebuffer: fb,
		X:           x,
		Y:           y,
		Connectors:  append([]uint32(nil), connectors...),
		Mode:        &modeCopy,
	}
	return nil
}

func (d *Device) SetCursor(crtc uint32, handle kms.BufferHandle, width, height int) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.begin(OpSetCursor); err != nil {
		return err
	}
	if err := d.requireMaster(); err != nil {
		return err
	}
	if handle == 0 {
		delete(d.cursors, crtc)
		return nil
	}
	if _, err := d.lookup(handle); err != nil {
		return err
	}
	d.cursors[crtc] = CursorState{Handle: handle, Width: width, Height: height}
	return nil
}

func (d *Device) AddFramebuffer(handle kms.BufferHandle, width, height, pitch, bpp, depth int) (kms.FramebufferID, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.begin(OpAddFramebuffer); err != nil {
		return 0, err
	}
	buf, err := d.lookup(handle)
	if err != nil {
		return 0, err
	}
	if pitch*height > buf.size {
		return 0, errors.Newf("framebuffer %dx%d pitch %d does not fit in %d byte buffer", width, height, pitch, buf.size)
	}

	id := d.nextFB
	d.nextFB++
	d.framebuffers[id] = framebuffer{handle: handle, width: width, height: height, pitch: pitch}
	return id, nil
}

func (d *Device) RemoveFramebuffer(fb kms.FramebufferID) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.begin(OpRemoveFramebuffer); err != nil {
		return err
	}
	if _, ok := d.framebuffers[fb]; !ok {
		return errors.Newf("no framebuffer with id %d", fb)
	}
	delete(d.framebuffers, fb)
	return nil
}

func (d *Device) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.closed {
		return kms.ErrClosed
	}
	if err := d.checkFault(OpClose); err != nil {
		return err
	}
	d.closed = true
	d.master = false
	return nil
}

// ResetDisplay forgets every CRTC and cursor binding and drops master, which is what
// happens to this client when another one takes over the display.
func (d *Device) ResetDisplay() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.master = false
	d.crtcs = make(map[uint32]CRTCState)
	d.cursors = make(map[uint32]CursorState)
}

func (d *Device) Closed() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.closed
}

func (d *Device) IsMaster() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.master
}

// LiveBuffers returns the number of buffer handles that have not been closed
func (d *Device) LiveBuffers() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return len(d.buffers)
}

// LiveFramebuffers returns the number of framebuffers that have not been removed
func (d *Device) LiveFramebuffers() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return len(d.framebuffers)
}

// Used returns the number of bytes allocated in domain
func (d *Device) Used(domain kms.Domain) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.used[domain]
}

// MapCount returns how many mappings of handle are outstanding
func (d *Device) MapCount(handle kms.BufferHandle) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	buf, ok := d.buffers[handle]
	if !ok {
		return 0
	}
	return buf.mapCount
}

func (d *Device) CRTC(crtc uint32) (CRTCState, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	state, ok := d.crtcs[crtc]
	return state, ok
}

func (d *Device) Cursor(crtc uint32) (CursorState, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	state, ok := d.cursors[crtc]
	return state, ok
}

// Submissions returns every batch accepted so far
func (d *Device) Submissions() []kms.Submission {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return append([]kms.Submission(nil), d.submissions...)
}

// Calls returns how many times op was invoked, including failed invocations
func (d *Device) Calls(op Op) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.calls[op]
}
